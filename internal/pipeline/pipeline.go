// Package pipeline generates feedback for a single issue: deterministic
// rubric scoring, LLM critique with graceful degradation, delivery, and
// idempotency bookkeeping.
package pipeline

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joescharf/iq/internal/cache"
	"github.com/joescharf/iq/internal/iqerr"
	"github.com/joescharf/iq/internal/llm"
	"github.com/joescharf/iq/internal/models"
	"github.com/joescharf/iq/internal/output"
	"github.com/joescharf/iq/internal/report"
	"github.com/joescharf/iq/internal/rubric"
	"github.com/joescharf/iq/internal/sanitize"
	"github.com/joescharf/iq/internal/store"
	"github.com/joescharf/iq/internal/tracker"
)

// Outcome classifies a successful pipeline run.
type Outcome string

const (
	// OutcomeDelivered means feedback was generated and delivered.
	OutcomeDelivered Outcome = "delivered"
	// OutcomeSkipped means the content fingerprint was unchanged.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeDryRun means feedback was generated but not delivered.
	OutcomeDryRun Outcome = "dry_run"
)

// Result is the outcome of one pipeline run.
type Result struct {
	Outcome  Outcome
	Feedback *models.Feedback
	// DuplicateRisk is set when delivery succeeded but the cache update
	// failed, so a future run may deliver the same content again.
	DuplicateRisk bool
}

// Options controls a single run.
type Options struct {
	SkipIfUnchanged bool
	DryRun          bool
	PostToTracker   bool
	WriteReport     bool
}

// Pipeline wires the rubric engine, sanitizer, critique provider, cache, and
// delivery collaborators. Commenter, Report, and History are optional.
type Pipeline struct {
	Rubric    *rubric.Engine
	Critiquer llm.Critiquer
	Cache     *cache.Cache
	Commenter tracker.Commenter
	Report    *report.Writer
	History   store.Store
	UI        *output.UI
}

// critiqueOutcome makes the two shapes of success explicit: a full provider
// critique, or a rubric-only degradation with the cause attached.
type critiqueOutcome struct {
	critique *llm.Critique
	degraded bool
	cause    error
}

// Run generates and delivers feedback for one issue. Rubric, sanitizer, and
// cache failures abort the attempt (the cache is left untouched so a retry
// reattempts); critique failures degrade instead of propagating.
func (p *Pipeline) Run(ctx context.Context, issue models.Issue, opts Options) (*Result, error) {
	fingerprint := Fingerprint(issue)

	if opts.SkipIfUnchanged {
		proceed, err := p.Cache.ShouldProcess(ctx, issue.Key, fingerprint)
		if err != nil {
			return nil, fmt.Errorf("check cache for %s: %w", issue.Key, err)
		}
		if !proceed {
			p.UI.VerboseLog("%s: content unchanged, skipping", issue.Key)
			return &Result{Outcome: OutcomeSkipped}, nil
		}
	}

	results := p.Rubric.Evaluate(issue)
	score, err := rubric.Aggregate(results)
	if err != nil {
		return nil, fmt.Errorf("aggregate rubric for %s: %w", issue.Key, err)
	}
	p.UI.VerboseLog("%s: rubric score %.1f/100", issue.Key, score)

	clean := sanitize.Issue(issue)
	co := p.critique(ctx, clean, results)

	fb := p.assemble(issue, score, results, co)

	if opts.DryRun {
		p.UI.DryRunMsg("would deliver feedback for %s (%.1f/100)", issue.Key, fb.Score)
		return &Result{Outcome: OutcomeDryRun, Feedback: fb}, nil
	}

	if opts.PostToTracker {
		if p.Commenter == nil {
			return nil, iqerr.New(iqerr.KindConfiguration, "tracker commenter required to post feedback")
		}
		if _, err := p.Commenter.PostComment(ctx, issue.Key, report.FormatFeedback(fb)); err != nil {
			return nil, fmt.Errorf("post comment to %s: %w", issue.Key, err)
		}
		fb.PostedToTracker = true
	}

	if opts.WriteReport && p.Report != nil {
		if err := p.Report.Append(fb); err != nil {
			return nil, fmt.Errorf("append report for %s: %w", issue.Key, err)
		}
	}

	res := &Result{Outcome: OutcomeDelivered, Feedback: fb}

	// Delivery already happened; a cache failure here cannot be rolled back.
	// Retry once, then surface the duplicate risk instead of failing.
	if err := p.markDelivered(ctx, issue.Key, fingerprint); err != nil {
		p.UI.Warning("%s: delivered but cache update failed, duplicate delivery possible: %v", issue.Key, err)
		res.DuplicateRisk = true
	}

	if p.History != nil {
		if err := p.History.SaveFeedback(ctx, fb); err != nil {
			p.UI.Warning("%s: feedback delivered but history save failed: %v", issue.Key, err)
		}
	}

	return res, nil
}

// critique invokes the provider and folds any failure into a degraded
// outcome. Out-of-range provider scores are discarded, critique text kept.
func (p *Pipeline) critique(ctx context.Context, clean models.Issue, results []models.RubricResult) critiqueOutcome {
	estimate := ""
	if clean.Estimate != nil {
		estimate = strconv.FormatFloat(*clean.Estimate, 'g', -1, 64)
	}

	critique, err := p.Critiquer.Critique(ctx, llm.Request{
		Title:          clean.Title,
		Description:    clean.Description,
		AC:             clean.AcceptanceCriteria,
		Labels:         clean.Labels,
		Estimate:       estimate,
		IssueType:      clean.Type,
		RubricFindings: formatFindings(results),
	})
	if err != nil {
		p.UI.Warning("%s: critique failed, falling back to rubric-only feedback: %v", clean.Key, err)
		return critiqueOutcome{degraded: true, cause: err}
	}

	if critique.Score != nil && (*critique.Score < 0 || *critique.Score > 100) {
		p.UI.Warning("%s: provider score %.1f out of bounds, discarding: %v",
			clean.Key, *critique.Score,
			iqerr.New(iqerr.KindValidation, "score must be within [0, 100]"))
		critique.Score = nil
	}

	return critiqueOutcome{critique: critique}
}

// assemble builds the immutable Feedback record. The rubric aggregate is
// always the authoritative score; the provider score is advisory only.
func (p *Pipeline) assemble(issue models.Issue, score float64, results []models.RubricResult, co critiqueOutcome) *models.Feedback {
	fb := &models.Feedback{
		ID:        newULID(),
		IssueKey:  issue.Key,
		Score:     score,
		Grade:     models.GradeForScore(score),
		Breakdown: rubric.Breakdown(results),
		Resources: resourcesFor(results),
		Degraded:  co.degraded,
		CreatedAt: time.Now().UTC(),
	}

	if co.degraded {
		fb.OverallAssessment = fmt.Sprintf("Rubric score: %.1f/100", score)
		fb.Strengths = []string{"Issue submitted for review"}
		for _, r := range results {
			if r.Score < 0.7 {
				fb.Improvements = append(fb.Improvements, r.Message)
			}
			if r.Suggestion != "" {
				fb.Suggestions = append(fb.Suggestions, r.Suggestion)
			}
		}
		return fb
	}

	c := co.critique
	fb.OverallAssessment = c.OverallAssessment
	fb.Strengths = capList(c.Strengths, 4)
	fb.Improvements = capList(c.Improvements, 4)
	fb.Suggestions = capList(c.Suggestions, 5)
	fb.ImprovedAC = c.ImprovedAC
	return fb
}

func (p *Pipeline) markDelivered(ctx context.Context, key, fingerprint string) error {
	if _, err := p.Cache.MarkDelivered(ctx, key, fingerprint); err == nil {
		return nil
	}
	time.Sleep(100 * time.Millisecond)
	_, err := p.Cache.MarkDelivered(ctx, key, fingerprint)
	return err
}

// formatFindings renders rubric results for the critique prompt.
func formatFindings(results []models.RubricResult) string {
	var sb strings.Builder
	for _, r := range results {
		status := "PASS"
		if r.Score < 0.8 {
			status = "FLAG"
		}
		fmt.Fprintf(&sb, "%s %s: %s\n", status, r.RuleID, r.Message)
		if r.Suggestion != "" {
			fmt.Fprintf(&sb, "  -> %s\n", r.Suggestion)
		}
	}
	return sb.String()
}

// resourcesFor picks reading links for rules scoring below 0.7.
func resourcesFor(results []models.RubricResult) []string {
	var out []string
	seen := map[string]bool{}
	add := func(r string) {
		if !seen[r] && len(out) < 3 {
			seen[r] = true
			out = append(out, r)
		}
	}
	for _, r := range results {
		if r.Score >= 0.7 {
			continue
		}
		switch r.RuleID {
		case models.RuleAcceptanceCriteria:
			add("Writing testable acceptance criteria: https://www.atlassian.com/agile/project-management/user-stories")
		case models.RuleTitleClarity:
			add("Writing clear issue titles: https://www.atlassian.com/agile/project-management/epics-stories-themes")
		case models.RuleAmbiguousTerms:
			add("SMART criteria for requirements: https://en.wikipedia.org/wiki/SMART_criteria")
		}
	}
	return out
}

func capList(items []string, max int) []string {
	if len(items) > max {
		return items[:max]
	}
	return items
}

func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}
