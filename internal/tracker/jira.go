package tracker

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/joescharf/iq/internal/iqerr"
	"github.com/joescharf/iq/internal/models"
)

// storyPointFields are the custom fields commonly holding story points,
// checked in order.
var storyPointFields = []string{"customfield_10016", "customfield_10004", "customfield_10002"}

// JiraConfig holds connection and auth settings for a Jira instance.
type JiraConfig struct {
	BaseURL string
	// Basic auth (cloud): email + API token. When Email is empty, Token is
	// sent as a bearer token (server PAT).
	Email string
	Token string
	// EstimateFields overrides the story-point custom fields to probe.
	EstimateFields []string
	Timeout        time.Duration
}

// JiraClient implements Source and Commenter over the Jira REST v2 API.
type JiraClient struct {
	cfg    JiraConfig
	http   *http.Client
	fields []string
}

var (
	_ Source    = (*JiraClient)(nil)
	_ Commenter = (*JiraClient)(nil)
)

// NewJiraClient creates a client for the configured Jira instance.
func NewJiraClient(cfg JiraConfig) (*JiraClient, error) {
	if cfg.BaseURL == "" {
		return nil, iqerr.New(iqerr.KindConfiguration, "jira base URL is required")
	}
	if cfg.Token == "" {
		return nil, iqerr.New(iqerr.KindConfiguration, "jira API token is required")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	fields := cfg.EstimateFields
	if len(fields) == 0 {
		fields = storyPointFields
	}

	return &JiraClient{
		cfg:    cfg,
		http:   &http.Client{Timeout: timeout},
		fields: fields,
	}, nil
}

// Search runs a JQL query and returns normalized issues in tracker order.
func (c *JiraClient) Search(ctx context.Context, jql string, maxResults int) ([]models.Issue, error) {
	q := url.Values{}
	q.Set("jql", jql)
	q.Set("maxResults", strconv.Itoa(maxResults))

	var out struct {
		Issues []jiraIssue `json:"issues"`
	}
	if err := c.do(ctx, http.MethodGet, "/rest/api/2/search?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}

	issues := make([]models.Issue, 0, len(out.Issues))
	for _, ji := range out.Issues {
		issues = append(issues, ji.normalize(c.fields))
	}
	return issues, nil
}

// Get fetches one issue by key.
func (c *JiraClient) Get(ctx context.Context, key string) (models.Issue, error) {
	var ji jiraIssue
	if err := c.do(ctx, http.MethodGet, "/rest/api/2/issue/"+url.PathEscape(key), nil, &ji); err != nil {
		return models.Issue{}, err
	}
	return ji.normalize(c.fields), nil
}

// PostComment adds a comment to the issue and returns the comment ID.
func (c *JiraClient) PostComment(ctx context.Context, key, body string) (string, error) {
	payload := map[string]string{"body": body}
	var out struct {
		ID string `json:"id"`
	}
	err := c.do(ctx, http.MethodPost, "/rest/api/2/issue/"+url.PathEscape(key)+"/comment", payload, &out)
	if err != nil {
		return "", err
	}
	return out.ID, nil
}

func (c *JiraClient) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return iqerr.Wrap(iqerr.KindExternalSource, err, "encode request")
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return iqerr.Wrap(iqerr.KindExternalSource, err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.Email != "" {
		cred := base64.StdEncoding.EncodeToString([]byte(c.cfg.Email + ":" + c.cfg.Token))
		req.Header.Set("Authorization", "Basic "+cred)
	} else {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return iqerr.Wrap(iqerr.KindExternalSource, err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	if err := statusError(resp.StatusCode, path); err != nil {
		return err
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return iqerr.Wrap(iqerr.KindExternalSource, err, "decode response from %s", path)
	}
	return nil
}

func statusError(code int, path string) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized:
		return iqerr.New(iqerr.KindExternalSource, "jira authentication failed (401)")
	case code == http.StatusForbidden:
		return iqerr.New(iqerr.KindExternalSource, "jira permission denied (403) for %s", path)
	case code == http.StatusNotFound:
		return iqerr.New(iqerr.KindExternalSource, "jira resource not found (404): %s", path)
	case code == http.StatusTooManyRequests:
		return iqerr.New(iqerr.KindExternalSource, "jira rate limit exceeded (429)")
	default:
		return iqerr.New(iqerr.KindExternalSource, "jira returned %d for %s", code, path)
	}
}

// jiraIssue is the raw REST shape; normalize flattens it to models.Issue.
type jiraIssue struct {
	Key    string                     `json:"key"`
	Fields map[string]json.RawMessage `json:"fields"`
}

func (ji jiraIssue) normalize(estimateFields []string) models.Issue {
	issue := models.Issue{Key: ji.Key}
	if idx := strings.Index(ji.Key, "-"); idx > 0 {
		issue.ProjectKey = ji.Key[:idx]
	}

	issue.Title = ji.stringField("summary")
	issue.Description = ji.textField("description")
	issue.Labels = ji.labels()
	issue.Type = ji.namedField("issuetype")
	issue.Status = ji.namedField("status")
	issue.Assignee = ji.assignee()
	issue.Estimate = ji.estimate(estimateFields)
	issue.Created = ji.timeField("created")
	issue.Updated = ji.timeField("updated")

	// Jira keeps acceptance criteria inside the description; split out an
	// explicit section when one exists so the AC rules can see it directly.
	if idx := strings.Index(strings.ToLower(issue.Description), "acceptance criteria"); idx >= 0 {
		issue.AcceptanceCriteria = issue.Description[idx:]
	}
	return issue
}

func (ji jiraIssue) stringField(name string) string {
	raw, ok := ji.Fields[name]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// textField handles fields that are plain strings on API v2 but Atlassian
// Document Format objects on some instances.
func (ji jiraIssue) textField(name string) string {
	raw, ok := ji.Fields[name]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var node adfNode
	if err := json.Unmarshal(raw, &node); err == nil {
		return strings.TrimSpace(node.text())
	}
	return ""
}

func (ji jiraIssue) labels() []string {
	raw, ok := ji.Fields["labels"]
	if !ok {
		return nil
	}
	var labels []string
	_ = json.Unmarshal(raw, &labels)
	return labels
}

func (ji jiraIssue) namedField(name string) string {
	raw, ok := ji.Fields[name]
	if !ok {
		return ""
	}
	var v struct {
		Name string `json:"name"`
	}
	_ = json.Unmarshal(raw, &v)
	return v.Name
}

func (ji jiraIssue) assignee() string {
	raw, ok := ji.Fields["assignee"]
	if !ok {
		return ""
	}
	var v struct {
		DisplayName  string `json:"displayName"`
		EmailAddress string `json:"emailAddress"`
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	if v.DisplayName != "" {
		return v.DisplayName
	}
	return v.EmailAddress
}

func (ji jiraIssue) estimate(fields []string) *float64 {
	for _, f := range fields {
		raw, ok := ji.Fields[f]
		if !ok {
			continue
		}
		var v float64
		if err := json.Unmarshal(raw, &v); err == nil {
			return &v
		}
	}

	raw, ok := ji.Fields["timetracking"]
	if !ok {
		return nil
	}
	var tt struct {
		OriginalEstimate string `json:"originalEstimate"`
	}
	if err := json.Unmarshal(raw, &tt); err != nil {
		return nil
	}
	if v, err := strconv.ParseFloat(tt.OriginalEstimate, 64); err == nil {
		return &v
	}
	return nil
}

func (ji jiraIssue) timeField(name string) time.Time {
	s := ji.stringField(name)
	if s == "" {
		return time.Time{}
	}
	// Jira timestamp format: 2024-01-02T15:04:05.000+0000
	for _, layout := range []string{"2006-01-02T15:04:05.000-0700", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// adfNode is a minimal Atlassian Document Format tree for text extraction.
type adfNode struct {
	Type    string    `json:"type"`
	Text    string    `json:"text"`
	Content []adfNode `json:"content"`
}

func (n adfNode) text() string {
	var parts []string
	n.collect(&parts)
	return strings.Join(parts, " ")
}

func (n adfNode) collect(parts *[]string) {
	if n.Type == "text" && n.Text != "" {
		*parts = append(*parts, n.Text)
	}
	for _, child := range n.Content {
		child.collect(parts)
	}
}
