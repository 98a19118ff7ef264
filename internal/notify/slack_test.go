package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/iq/internal/models"
)

func TestNotify_PostsWorstFirst(t *testing.T) {
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewSlackNotifier(srv.URL)
	err := n.Notify(context.Background(), Summary{
		Analyzed:  3,
		MeanScore: 61.5,
		Worst: []*models.Feedback{
			{IssueKey: "ABC-1", Score: 75, Grade: models.GradeGood, OverallAssessment: "fine"},
			{IssueKey: "ABC-2", Score: 31, Grade: models.GradePoor, OverallAssessment: "thin ticket"},
		},
	})
	require.NoError(t, err)

	var payload struct {
		Blocks []map[string]any `json:"blocks"`
	}
	require.NoError(t, json.Unmarshal(body, &payload))
	require.GreaterOrEqual(t, len(payload.Blocks), 5)

	text := string(body)
	assert.Less(t, strings.Index(text, "ABC-2"), strings.Index(text, "ABC-1"), "lowest score listed first")
	assert.Contains(t, text, "mean score 61.5")
}

func TestNotify_NonOKStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewSlackNotifier(srv.URL).Notify(context.Background(), Summary{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}
