package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/joescharf/iq/internal/models"
)

// Writer appends formatted feedback to a date-stamped markdown report file.
// Safe for concurrent use within one process.
type Writer struct {
	dir  string
	mu   sync.Mutex
	path string
}

// NewWriter creates a report writer rooted at dir. One file per run,
// date-stamped at first append.
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// Path returns the report file path, empty until the first append.
func (w *Writer) Path() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.path
}

// Append writes one feedback record to the report file, creating it with a
// header on first use. O_APPEND plus the mutex keeps concurrent appends from
// interleaving.
func (w *Writer) Append(fb *models.Feedback) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.path == "" {
		if err := os.MkdirAll(w.dir, 0755); err != nil {
			return fmt.Errorf("create reports directory: %w", err)
		}
		w.path = filepath.Join(w.dir, time.Now().Format("2006-01-02_1504")+"_report.md")
	}

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open report file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat report file: %w", err)
	}
	if info.Size() == 0 {
		header := fmt.Sprintf("# Issue Quality Feedback Report\n\nGenerated: %s\n\n---\n\n", time.Now().Format(time.RFC3339))
		if _, err := f.WriteString(header); err != nil {
			return fmt.Errorf("write report header: %w", err)
		}
	}

	if _, err := f.WriteString(FormatFeedback(fb) + "\n\n---\n\n"); err != nil {
		return fmt.Errorf("append feedback: %w", err)
	}
	return nil
}

// WriteSummary writes the job summary next to the report file.
func (w *Writer) WriteSummary(job *models.AnalysisJob, feedbacks []*models.Feedback) (string, error) {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return "", fmt.Errorf("create reports directory: %w", err)
	}
	path := filepath.Join(w.dir, time.Now().Format("2006-01-02_1504")+"_summary.md")
	if err := os.WriteFile(path, []byte(FormatSummary(job, feedbacks)), 0644); err != nil {
		return "", fmt.Errorf("write summary: %w", err)
	}
	return path, nil
}
