package pipeline

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/iq/internal/cache"
	"github.com/joescharf/iq/internal/iqerr"
	"github.com/joescharf/iq/internal/llm"
	"github.com/joescharf/iq/internal/models"
	"github.com/joescharf/iq/internal/output"
	"github.com/joescharf/iq/internal/rubric"
)

type fakeCritiquer struct {
	mu       sync.Mutex
	calls    int
	critique *llm.Critique
	err      error
}

func (f *fakeCritiquer) Critique(ctx context.Context, req llm.Request) (*llm.Critique, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	c := *f.critique
	return &c, nil
}

type fakeCommenter struct {
	mu     sync.Mutex
	posted []string
	err    error
}

func (f *fakeCommenter) PostComment(ctx context.Context, key, body string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.mu.Lock()
	f.posted = append(f.posted, key)
	f.mu.Unlock()
	return "10001", nil
}

func goodCritique() *llm.Critique {
	return &llm.Critique{
		OverallAssessment: "Solid issue with clear scope.",
		Strengths:         []string{"Clear title", "Testable criteria"},
		Improvements:      []string{"Add rollout plan"},
		Suggestions:       []string{"Link the design doc"},
	}
}

func richIssue() models.Issue {
	est := 5.0
	return models.Issue{
		Key:         "PROJ-42",
		ProjectKey:  "PROJ",
		Title:       "Add retry with exponential backoff to payment webhook delivery",
		Description: strings.Repeat("The webhook delivery job currently fails permanently on the first network error. ", 4),
		AcceptanceCriteria: "Given a transient failure, when delivery fails, then it retries up to 5 times.\n" +
			"Given 5 failed attempts, when the last retry fails, then the event lands in the dead letter queue.",
		Estimate: &est,
		Labels:   []string{"backend", "reliability"},
		Type:     "Story",
	}
}

func newTestPipeline(t *testing.T, critiquer llm.Critiquer) (*Pipeline, *cache.Cache, *fakeCommenter) {
	t.Helper()

	c, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	engine, err := rubric.NewEngine(rubric.DefaultConfig())
	require.NoError(t, err)

	commenter := &fakeCommenter{}
	ui := output.New()
	ui.Out = io.Discard
	ui.ErrOut = io.Discard

	return &Pipeline{
		Rubric:    engine,
		Critiquer: critiquer,
		Cache:     c,
		Commenter: commenter,
		UI:        ui,
	}, c, commenter
}

func TestRun_DeliversAndRecordsFingerprint(t *testing.T) {
	p, c, commenter := newTestPipeline(t, &fakeCritiquer{critique: goodCritique()})
	ctx := context.Background()
	issue := richIssue()

	res, err := p.Run(ctx, issue, Options{SkipIfUnchanged: true, PostToTracker: true})
	require.NoError(t, err)
	assert.Equal(t, OutcomeDelivered, res.Outcome)
	assert.False(t, res.DuplicateRisk)
	require.NotNil(t, res.Feedback)
	assert.True(t, res.Feedback.PostedToTracker)
	assert.NotEmpty(t, res.Feedback.ID)
	assert.Equal(t, []string{"PROJ-42"}, commenter.posted)

	e, err := c.Get(ctx, issue.Key)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, 1, e.DeliveryCount)
	assert.Equal(t, Fingerprint(issue), e.Fingerprint)
}

func TestRun_SecondRunUnchangedIsSkipped(t *testing.T) {
	p, c, commenter := newTestPipeline(t, &fakeCritiquer{critique: goodCritique()})
	ctx := context.Background()
	issue := richIssue()
	opts := Options{SkipIfUnchanged: true, PostToTracker: true}

	_, err := p.Run(ctx, issue, opts)
	require.NoError(t, err)

	res, err := p.Run(ctx, issue, opts)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, res.Outcome)
	assert.Nil(t, res.Feedback)

	assert.Len(t, commenter.posted, 1, "skip must not deliver again")

	e, err := c.Get(ctx, issue.Key)
	require.NoError(t, err)
	assert.Equal(t, 1, e.DeliveryCount)
}

func TestRun_ChangedContentReprocesses(t *testing.T) {
	p, c, commenter := newTestPipeline(t, &fakeCritiquer{critique: goodCritique()})
	ctx := context.Background()
	issue := richIssue()
	opts := Options{SkipIfUnchanged: true, PostToTracker: true}

	_, err := p.Run(ctx, issue, opts)
	require.NoError(t, err)

	issue.Description += " Updated after review feedback."
	res, err := p.Run(ctx, issue, opts)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDelivered, res.Outcome)

	assert.Len(t, commenter.posted, 2)

	e, err := c.Get(ctx, issue.Key)
	require.NoError(t, err)
	assert.Equal(t, 2, e.DeliveryCount)
	assert.Equal(t, Fingerprint(issue), e.Fingerprint)
}

// Several workers racing on the same unchanged issue must not inflate the
// delivery count past one.
func TestRun_ConcurrentSameIssue(t *testing.T) {
	p, c, _ := newTestPipeline(t, &fakeCritiquer{critique: goodCritique()})
	ctx := context.Background()
	issue := richIssue()
	opts := Options{SkipIfUnchanged: true, PostToTracker: true}

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = p.Run(ctx, issue, opts)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "run %d", i)
	}

	e, err := c.Get(ctx, issue.Key)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, 1, e.DeliveryCount, "racing runs must record at most one delivery")
}

func TestRun_DryRunLeavesCacheUntouched(t *testing.T) {
	p, c, commenter := newTestPipeline(t, &fakeCritiquer{critique: goodCritique()})
	ctx := context.Background()
	issue := richIssue()

	res, err := p.Run(ctx, issue, Options{SkipIfUnchanged: true, DryRun: true, PostToTracker: true})
	require.NoError(t, err)
	assert.Equal(t, OutcomeDryRun, res.Outcome)
	require.NotNil(t, res.Feedback)
	assert.False(t, res.Feedback.PostedToTracker)
	assert.Empty(t, commenter.posted)

	e, err := c.Get(ctx, issue.Key)
	require.NoError(t, err)
	assert.Nil(t, e, "dry run must not mark delivery")
}

func TestRun_LLMTimeoutDegradesGracefully(t *testing.T) {
	p, _, _ := newTestPipeline(t, &fakeCritiquer{
		err: &iqerr.LLMError{Msg: "request timed out after 30s", Timeout: true},
	})
	ctx := context.Background()

	res, err := p.Run(ctx, richIssue(), Options{PostToTracker: true})
	require.NoError(t, err, "critique failure must not fail the run")
	assert.Equal(t, OutcomeDelivered, res.Outcome)

	fb := res.Feedback
	require.NotNil(t, fb)
	assert.True(t, fb.Degraded)
	assert.Greater(t, fb.Score, 0.0, "rubric score survives degradation")
	assert.NotEmpty(t, fb.Strengths)
	assert.Contains(t, fb.OverallAssessment, "Rubric score")
	assert.NotEmpty(t, fb.Breakdown)
}

func TestRun_MalformedCritiqueDegrades(t *testing.T) {
	p, _, _ := newTestPipeline(t, &fakeCritiquer{
		err: &iqerr.LLMError{Msg: "response is not valid JSON", Malformed: true},
	})

	res, err := p.Run(context.Background(), richIssue(), Options{PostToTracker: true})
	require.NoError(t, err)
	require.NotNil(t, res.Feedback)
	assert.True(t, res.Feedback.Degraded)
}

// A weak issue degrades with actionable content: the low-scoring rubric
// findings become the improvement list.
func TestRun_DegradedWeakIssueCarriesFindings(t *testing.T) {
	p, _, _ := newTestPipeline(t, &fakeCritiquer{
		err: &iqerr.LLMError{Msg: "connection refused"},
	})

	res, err := p.Run(context.Background(), models.Issue{Key: "PROJ-7", Title: "Fix bug"}, Options{})
	require.NoError(t, err)

	fb := res.Feedback
	require.NotNil(t, fb)
	assert.True(t, fb.Degraded)
	assert.Less(t, fb.Score, 40.0)
	assert.NotEmpty(t, fb.Improvements)
	assert.NotEmpty(t, fb.Resources)
}

func TestRun_OutOfRangeProviderScoreDiscarded(t *testing.T) {
	bogus := 150.0
	crit := goodCritique()
	crit.Score = &bogus
	p, _, _ := newTestPipeline(t, &fakeCritiquer{critique: crit})

	res, err := p.Run(context.Background(), richIssue(), Options{})
	require.NoError(t, err)

	fb := res.Feedback
	require.NotNil(t, fb)
	assert.False(t, fb.Degraded, "critique text is kept, only the score is dropped")
	assert.LessOrEqual(t, fb.Score, 100.0)
	assert.GreaterOrEqual(t, fb.Score, 0.0)
	assert.Equal(t, crit.OverallAssessment, fb.OverallAssessment)
}

func TestRun_RubricScoreIsAuthoritative(t *testing.T) {
	provider := 12.0
	crit := goodCritique()
	crit.Score = &provider
	p, _, _ := newTestPipeline(t, &fakeCritiquer{critique: crit})

	res, err := p.Run(context.Background(), richIssue(), Options{})
	require.NoError(t, err)
	assert.Greater(t, res.Feedback.Score, 85.0, "provider score never overrides the rubric aggregate")
}

func TestRun_CommentFailureAbortsBeforeCacheWrite(t *testing.T) {
	p, c, commenter := newTestPipeline(t, &fakeCritiquer{critique: goodCritique()})
	commenter.err = iqerr.New(iqerr.KindExternalSource, "tracker returned 503")
	ctx := context.Background()
	issue := richIssue()

	_, err := p.Run(ctx, issue, Options{SkipIfUnchanged: true, PostToTracker: true})
	require.Error(t, err)
	assert.True(t, iqerr.IsKind(err, iqerr.KindExternalSource))

	e, err := c.Get(ctx, issue.Key)
	require.NoError(t, err)
	assert.Nil(t, e, "failed delivery must stay eligible for retry")
}

// Delivery succeeded but the cache became unwritable: the run still reports
// success and flags the duplicate risk instead of failing.
func TestRun_CacheWriteFailureAfterDelivery(t *testing.T) {
	p, c, commenter := newTestPipeline(t, &fakeCritiquer{critique: goodCritique()})
	require.NoError(t, c.Close())

	res, err := p.Run(context.Background(), richIssue(), Options{PostToTracker: true})
	require.NoError(t, err)
	assert.Equal(t, OutcomeDelivered, res.Outcome)
	assert.True(t, res.DuplicateRisk)
	assert.Len(t, commenter.posted, 1, "the comment was already delivered")
}

func TestFingerprint_Stability(t *testing.T) {
	a := richIssue()
	b := richIssue()
	assert.Equal(t, Fingerprint(a), Fingerprint(b))

	b.Labels = []string{"reliability", "backend"}
	assert.Equal(t, Fingerprint(a), Fingerprint(b), "label order must not change the fingerprint")

	b.Status = "In Progress"
	b.Assignee = "sam"
	b.Updated = time.Now()
	assert.Equal(t, Fingerprint(a), Fingerprint(b), "non-content fields are excluded")

	b.Description += "!"
	assert.NotEqual(t, Fingerprint(a), Fingerprint(b))
}
