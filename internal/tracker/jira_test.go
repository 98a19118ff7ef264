package tracker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/iq/internal/iqerr"
)

func newTestJira(t *testing.T, handler http.HandlerFunc) *JiraClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewJiraClient(JiraConfig{
		BaseURL: srv.URL,
		Email:   "bot@example.com",
		Token:   "token",
	})
	require.NoError(t, err)
	return c
}

func TestNewJiraClient_Validation(t *testing.T) {
	_, err := NewJiraClient(JiraConfig{Token: "t"})
	assert.True(t, iqerr.IsKind(err, iqerr.KindConfiguration))

	_, err = NewJiraClient(JiraConfig{BaseURL: "https://x.atlassian.net"})
	assert.True(t, iqerr.IsKind(err, iqerr.KindConfiguration))
}

func TestSearch_NormalizesIssues(t *testing.T) {
	c := newTestJira(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/api/2/search", r.URL.Path)
		assert.Equal(t, "project = ABC", r.URL.Query().Get("jql"))
		assert.Equal(t, "25", r.URL.Query().Get("maxResults"))
		assert.NotEmpty(t, r.Header.Get("Authorization"))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"issues": []map[string]any{
				{
					"key": "ABC-7",
					"fields": map[string]any{
						"summary":           "Add CSV export to reports",
						"description":       "Users need exports.\n\nAcceptance Criteria:\n- CSV downloads",
						"labels":            []string{"reports"},
						"issuetype":         map[string]any{"name": "Story"},
						"status":            map[string]any{"name": "To Do"},
						"assignee":          map[string]any{"displayName": "Dana Scully"},
						"customfield_10016": 5,
						"created":           "2024-03-01T10:00:00.000+0000",
						"updated":           "2024-03-02T11:30:00.000+0000",
					},
				},
			},
		})
	})

	issues, err := c.Search(context.Background(), "project = ABC", 25)
	require.NoError(t, err)
	require.Len(t, issues, 1)

	i := issues[0]
	assert.Equal(t, "ABC-7", i.Key)
	assert.Equal(t, "ABC", i.ProjectKey)
	assert.Equal(t, "Add CSV export to reports", i.Title)
	assert.Equal(t, "Story", i.Type)
	assert.Equal(t, "To Do", i.Status)
	assert.Equal(t, "Dana Scully", i.Assignee)
	assert.Equal(t, []string{"reports"}, i.Labels)
	require.NotNil(t, i.Estimate)
	assert.Equal(t, 5.0, *i.Estimate)
	assert.Contains(t, i.AcceptanceCriteria, "CSV downloads")
	assert.Equal(t, 2024, i.Created.Year())
}

func TestGet_ADFDescription(t *testing.T) {
	c := newTestJira(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/api/2/issue/ABC-9", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"key": "ABC-9",
			"fields": map[string]any{
				"summary": "ADF issue",
				"description": map[string]any{
					"type": "doc",
					"content": []map[string]any{
						{
							"type": "paragraph",
							"content": []map[string]any{
								{"type": "text", "text": "First part."},
								{"type": "text", "text": "Second part."},
							},
						},
					},
				},
			},
		})
	})

	issue, err := c.Get(context.Background(), "ABC-9")
	require.NoError(t, err)
	assert.Equal(t, "First part. Second part.", issue.Description)
}

func TestGet_TimetrackingEstimateFallback(t *testing.T) {
	c := newTestJira(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"key": "ABC-3",
			"fields": map[string]any{
				"summary":      "Estimate via timetracking",
				"timetracking": map[string]any{"originalEstimate": "8"},
			},
		})
	})

	issue, err := c.Get(context.Background(), "ABC-3")
	require.NoError(t, err)
	require.NotNil(t, issue.Estimate)
	assert.Equal(t, 8.0, *issue.Estimate)
}

func TestPostComment(t *testing.T) {
	c := newTestJira(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/rest/api/2/issue/ABC-7/comment", r.URL.Path)

		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Contains(t, payload["body"], "Feedback")

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "10042"})
	})

	id, err := c.PostComment(context.Background(), "ABC-7", "## Feedback\nscore 80")
	require.NoError(t, err)
	assert.Equal(t, "10042", id)
}

func TestStatusErrorMapping(t *testing.T) {
	tests := []struct {
		code    int
		wantMsg string
	}{
		{http.StatusUnauthorized, "authentication"},
		{http.StatusForbidden, "permission"},
		{http.StatusNotFound, "not found"},
		{http.StatusTooManyRequests, "rate limit"},
		{http.StatusInternalServerError, "500"},
	}
	for _, tt := range tests {
		c := newTestJira(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.code)
		})

		_, err := c.Search(context.Background(), "project = X", 10)
		require.Error(t, err, "status %d", tt.code)
		assert.True(t, iqerr.IsKind(err, iqerr.KindExternalSource))
		assert.Contains(t, err.Error(), tt.wantMsg)
	}
}
