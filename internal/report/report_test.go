package report

import (
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/iq/internal/models"
)

func sampleFeedback(key string, score float64) *models.Feedback {
	return &models.Feedback{
		ID:                "01HTEST",
		IssueKey:          key,
		Score:             score,
		Grade:             models.GradeForScore(score),
		OverallAssessment: "Reasonable ticket overall.",
		Strengths:         []string{"clear title"},
		Improvements:      []string{"expand description"},
		Suggestions:       []string{"add acceptance criteria", "link the design doc"},
		Breakdown: map[models.RuleID]models.BreakdownEntry{
			models.RuleTitleClarity: {Score: 100, Message: "Title is clear and actionable"},
			models.RuleDescriptionLength: {
				Score:      40,
				Message:    "Description too short: 8/20 words",
				Suggestion: "Expand description",
			},
		},
		CreatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestFormatFeedback(t *testing.T) {
	md := FormatFeedback(sampleFeedback("ABC-1", 72.5))

	assert.Contains(t, md, "## Feedback for ABC-1")
	assert.Contains(t, md, "**Score:** 72.5/100 (good)")
	assert.Contains(t, md, "### Strengths")
	assert.Contains(t, md, "- clear title")
	assert.Contains(t, md, "1. add acceptance criteria")
	assert.Contains(t, md, "2. link the design doc")
	assert.Contains(t, md, "Detailed Rubric Breakdown")
	assert.Contains(t, md, "description_length")

	// Rule order in the breakdown is stable.
	assert.Less(t,
		strings.Index(md, "description_length"),
		strings.Index(md, "title_clarity"))
}

func TestFormatFeedback_OmitsEmptySections(t *testing.T) {
	fb := sampleFeedback("ABC-2", 90)
	fb.Resources = nil
	fb.ImprovedAC = ""

	md := FormatFeedback(fb)
	assert.NotContains(t, md, "Helpful Resources")
	assert.NotContains(t, md, "Proposed Acceptance Criteria")
}

func TestFormatSummary(t *testing.T) {
	job := &models.AnalysisJob{
		Query:     "project = ABC",
		Processed: 3,
		Skipped:   1,
		Failed:    1,
	}
	for _, s := range []float64{85, 62, 91} {
		job.Stats.Add(s)
	}
	feedbacks := []*models.Feedback{
		sampleFeedback("ABC-1", 85),
		sampleFeedback("ABC-2", 62),
		sampleFeedback("ABC-3", 91),
	}

	md := FormatSummary(job, feedbacks)
	assert.Contains(t, md, "Analyzed: 3")
	assert.Contains(t, md, "Skipped (unchanged): 1")
	assert.Contains(t, md, "Failed: 1")
	assert.Contains(t, md, "Average score: 79.3")
	assert.Contains(t, md, "| 90-100 | excellent | 1 |")
	assert.Contains(t, md, "| 60-70 | needs work | 1 |")
}

func TestWriter_AppendCreatesHeaderOnce(t *testing.T) {
	w := NewWriter(t.TempDir())

	require.NoError(t, w.Append(sampleFeedback("ABC-1", 70)))
	require.NoError(t, w.Append(sampleFeedback("ABC-2", 80)))

	data, err := os.ReadFile(w.Path())
	require.NoError(t, err)
	content := string(data)

	assert.Equal(t, 1, strings.Count(content, "# Issue Quality Feedback Report"))
	assert.Contains(t, content, "ABC-1")
	assert.Contains(t, content, "ABC-2")
}

func TestWriter_ConcurrentAppends(t *testing.T) {
	w := NewWriter(t.TempDir())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = w.Append(sampleFeedback("ABC-1", float64(50+i)))
		}(i)
	}
	wg.Wait()

	data, err := os.ReadFile(w.Path())
	require.NoError(t, err)
	assert.Equal(t, 8, strings.Count(string(data), "## Feedback for ABC-1"))
}
