package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/joescharf/iq/internal/models"
)

func newTestUI() (*UI, *bytes.Buffer, *bytes.Buffer) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &UI{Out: out, ErrOut: errOut}, out, errOut
}

func TestInfo(t *testing.T) {
	u, out, _ := newTestUI()
	u.Info("hello %s", "world")
	assert.Contains(t, out.String(), "hello world")
}

func TestSuccess(t *testing.T) {
	u, out, _ := newTestUI()
	u.Success("done %d", 42)
	assert.Contains(t, out.String(), "done 42")
}

func TestWarning(t *testing.T) {
	u, _, errOut := newTestUI()
	u.Warning("careful %s", "now")
	assert.Contains(t, errOut.String(), "careful now")
}

func TestError(t *testing.T) {
	u, _, errOut := newTestUI()
	u.Error("failed %s", "badly")
	assert.Contains(t, errOut.String(), "failed badly")
}

func TestVerboseLog(t *testing.T) {
	u, out, _ := newTestUI()
	u.VerboseLog("hidden")
	assert.Empty(t, out.String())

	u.Verbose = true
	u.VerboseLog("shown")
	assert.Contains(t, out.String(), "shown")
}

func TestDryRunMsg(t *testing.T) {
	u, _, errOut := newTestUI()
	u.DryRunMsg("skipped")
	assert.Empty(t, errOut.String())

	u.DryRun = true
	u.DryRunMsg("would post")
	assert.Contains(t, errOut.String(), "[DRY-RUN] would post")
}

func TestScoreColor(t *testing.T) {
	assert.Contains(t, ScoreColor(85.5), "85.5")
	assert.Contains(t, ScoreColor(42), "42.0")
}

func TestStatusColor(t *testing.T) {
	assert.Contains(t, StatusColor(models.JobStatusCompleted), "completed")
	assert.Contains(t, StatusColor(models.JobStatusPending), "pending")
}
