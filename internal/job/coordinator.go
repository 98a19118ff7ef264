// Package job coordinates batch analysis runs: it fetches a page of issues,
// fans them out over the feedback pipeline, and tracks job state, counters,
// and progress events.
package job

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/joescharf/iq/internal/models"
	"github.com/joescharf/iq/internal/notify"
	"github.com/joescharf/iq/internal/output"
	"github.com/joescharf/iq/internal/pipeline"
	"github.com/joescharf/iq/internal/report"
	"github.com/joescharf/iq/internal/store"
	"github.com/joescharf/iq/internal/tracker"
)

// Sink receives progress events. Within one job, events arrive in processing
// order; Emit must not block for long since it runs under the job lock.
type Sink interface {
	Emit(e models.Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(e models.Event)

// Emit calls f(e).
func (f SinkFunc) Emit(e models.Event) { f(e) }

// Spec describes one batch run.
type Spec struct {
	Query         string
	MaxResults    int
	Workers       int
	DryRun        bool
	PostToTracker bool
	Notify        bool
	// Force reprocesses issues even when their content fingerprint is
	// unchanged since the last delivery.
	Force bool
}

// Coordinator runs analysis jobs. Store, Notifier, Report, and Sink are
// optional; Source, Pipeline, and UI are required.
type Coordinator struct {
	Source   tracker.Source
	Pipeline *pipeline.Pipeline
	Store    store.Store
	Notifier notify.Notifier
	Report   *report.Writer
	Sink     Sink
	UI       *output.UI

	// mu guards the job record and event emission during a run. The job is
	// mutated only under this lock, so observers via the sink always see a
	// consistent counter snapshot.
	mu sync.Mutex
}

// Run executes one batch job to its terminal state. Per-issue failures are
// counted and reported but never fail the job; only coordinator-level errors
// (the tracker search, an unusable configuration) do. The returned job is
// always non-nil and terminal.
func (c *Coordinator) Run(ctx context.Context, spec Spec) (*models.AnalysisJob, error) {
	workers := spec.Workers
	if workers < 1 {
		workers = 1
	}

	job := &models.AnalysisJob{
		ID:            uuid.NewString(),
		Query:         spec.Query,
		MaxResults:    spec.MaxResults,
		Workers:       workers,
		DryRun:        spec.DryRun,
		PostToTracker: spec.PostToTracker,
		Notify:        spec.Notify,
		Status:        models.JobStatusPending,
		StartedAt:     time.Now().UTC(),
	}
	c.saveJob(ctx, job, false)

	issues, err := c.Source.Search(ctx, spec.Query, spec.MaxResults)
	if err != nil {
		c.fail(ctx, job, fmt.Errorf("search issues: %w", err))
		return job, fmt.Errorf("search issues: %w", err)
	}

	c.mu.Lock()
	job.Status = models.JobStatusRunning
	job.Total = len(issues)
	c.emitLocked(job, models.Event{Type: models.EventJobStarted, JobID: job.ID})
	c.mu.Unlock()
	c.saveJob(ctx, job, true)
	c.UI.VerboseLog("job %s: %d issues matched %q", job.ID, len(issues), spec.Query)

	opts := pipeline.Options{
		SkipIfUnchanged: !spec.Force,
		DryRun:          spec.DryRun,
		PostToTracker:   spec.PostToTracker,
		WriteReport:     !spec.DryRun,
	}

	var delivered []*models.Feedback
	if workers == 1 {
		delivered = c.runSequential(ctx, job, issues, opts)
	} else {
		delivered = c.runPool(ctx, job, issues, opts, workers)
	}

	c.mu.Lock()
	job.CurrentIssue = ""
	job.EndedAt = time.Now().UTC()
	if err := ctx.Err(); err != nil {
		job.Status = models.JobStatusFailed
		job.Error = err.Error()
		c.emitLocked(job, models.Event{Type: models.EventJobFailed, JobID: job.ID, Error: job.Error})
	} else {
		job.Status = models.JobStatusCompleted
		c.emitLocked(job, models.Event{Type: models.EventJobCompleted, JobID: job.ID})
	}
	c.mu.Unlock()
	// The terminal state is persisted even when the run's context is done.
	c.saveJob(context.WithoutCancel(ctx), job, true)

	if c.Report != nil && job.Status == models.JobStatusCompleted && !spec.DryRun && len(delivered) > 0 {
		if path, err := c.Report.WriteSummary(job, delivered); err != nil {
			c.UI.Warning("job %s: write summary report: %v", job.ID, err)
		} else {
			c.UI.VerboseLog("job %s: summary written to %s", job.ID, path)
		}
	}

	if spec.Notify && c.Notifier != nil && job.Status == models.JobStatusCompleted && !spec.DryRun {
		c.notify(job, delivered)
	}

	return job, nil
}

// runSequential processes issues one at a time in fetch order.
func (c *Coordinator) runSequential(ctx context.Context, job *models.AnalysisJob, issues []models.Issue, opts pipeline.Options) []*models.Feedback {
	var delivered []*models.Feedback
	for _, issue := range issues {
		if ctx.Err() != nil {
			break
		}
		if fb := c.processIssue(ctx, job, issue, opts); fb != nil {
			delivered = append(delivered, fb)
		}
	}
	return delivered
}

// runPool fans issues out over a bounded worker pool. Counter updates and
// event emission stay serialized under the job lock, so event order follows
// completion order.
func (c *Coordinator) runPool(ctx context.Context, job *models.AnalysisJob, issues []models.Issue, opts pipeline.Options, workers int) []*models.Feedback {
	var (
		deliveredMu sync.Mutex
		delivered   []*models.Feedback
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, issue := range issues {
		if gctx.Err() != nil {
			break
		}
		issue := issue
		g.Go(func() error {
			if fb := c.processIssue(gctx, job, issue, opts); fb != nil {
				deliveredMu.Lock()
				delivered = append(delivered, fb)
				deliveredMu.Unlock()
			}
			return nil
		})
	}
	// Workers never return errors; Wait only drains in-flight runs.
	_ = g.Wait()
	return delivered
}

// processIssue runs the pipeline for one issue and folds the result into the
// job record. Returns the feedback when it was delivered.
func (c *Coordinator) processIssue(ctx context.Context, job *models.AnalysisJob, issue models.Issue, opts pipeline.Options) *models.Feedback {
	c.mu.Lock()
	job.CurrentIssue = issue.Key
	c.mu.Unlock()

	res, err := c.Pipeline.Run(ctx, issue, opts)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		job.Failed++
		c.emitLocked(job, models.Event{
			Type:     models.EventIssueFailed,
			JobID:    job.ID,
			IssueKey: issue.Key,
			Error:    err.Error(),
		})
		c.emitLocked(job, models.Event{Type: models.EventJobProgress, JobID: job.ID})
		return nil
	}

	ev := models.Event{
		Type:     models.EventIssueComplete,
		JobID:    job.ID,
		IssueKey: issue.Key,
	}

	var fb *models.Feedback
	switch res.Outcome {
	case pipeline.OutcomeSkipped:
		job.Skipped++
		ev.Skipped = true
	default:
		job.Processed++
		job.Stats.Add(res.Feedback.Score)
		ev.Score = res.Feedback.Score
		if res.Outcome == pipeline.OutcomeDelivered {
			fb = res.Feedback
		}
	}

	c.emitLocked(job, ev)
	c.emitLocked(job, models.Event{Type: models.EventJobProgress, JobID: job.ID})
	return fb
}

// fail moves the job to its failed terminal state for a coordinator-level
// error.
func (c *Coordinator) fail(ctx context.Context, job *models.AnalysisJob, err error) {
	c.mu.Lock()
	job.Status = models.JobStatusFailed
	job.Error = err.Error()
	job.EndedAt = time.Now().UTC()
	c.emitLocked(job, models.Event{Type: models.EventJobFailed, JobID: job.ID, Error: job.Error})
	c.mu.Unlock()
	c.saveJob(context.WithoutCancel(ctx), job, true)
}

// emitLocked stamps counters onto the event and delivers it. Callers hold mu.
func (c *Coordinator) emitLocked(job *models.AnalysisJob, ev models.Event) {
	if c.Sink == nil {
		return
	}
	ev.Timestamp = time.Now().UTC()
	ev.Processed = job.Processed
	ev.Skips = job.Skipped
	ev.Failed = job.Failed
	ev.Total = job.Total
	c.Sink.Emit(ev)
}

// saveJob persists the job record. History is best effort: a storage failure
// is reported but never affects the run.
func (c *Coordinator) saveJob(ctx context.Context, job *models.AnalysisJob, update bool) {
	if c.Store == nil {
		return
	}
	c.mu.Lock()
	snapshot := *job
	c.mu.Unlock()

	var err error
	if update {
		err = c.Store.UpdateJob(ctx, &snapshot)
	} else {
		err = c.Store.SaveJob(ctx, &snapshot)
	}
	if err != nil {
		c.UI.Warning("job %s: persist job state: %v", job.ID, err)
	}
}

// notify sends the post-run summary. Failures are reported, not propagated.
func (c *Coordinator) notify(job *models.AnalysisJob, delivered []*models.Feedback) {
	// The run's context may already be done; the summary still goes out.
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	err := c.Notifier.Notify(ctx, notify.Summary{
		JobID:     job.ID,
		Analyzed:  job.Processed,
		Skipped:   job.Skipped,
		Failed:    job.Failed,
		MeanScore: job.Stats.Mean,
		Worst:     delivered,
	})
	if err != nil {
		c.UI.Warning("job %s: summary notification failed: %v", job.ID, err)
	}
}
