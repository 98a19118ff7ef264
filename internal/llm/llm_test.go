package llm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/iq/internal/iqerr"
)

func TestBuildPrompt(t *testing.T) {
	t.Run("full request", func(t *testing.T) {
		system, user := buildPrompt(Request{
			Title:          "Add CSV export",
			Description:    "Users need to export the report table.",
			AC:             "Given a report, when exported, then a CSV downloads.",
			Labels:         []string{"backend", "reports"},
			Estimate:       "3",
			IssueType:      "Story",
			RubricFindings: "x title_clarity: Title quality issues",
		})

		assert.Contains(t, system, "JSON object")
		assert.Contains(t, system, `"overall_assessment"`)
		assert.Contains(t, system, `"strengths"`)
		assert.Contains(t, system, `"improvements"`)
		assert.Contains(t, system, `"suggestions"`)
		assert.Contains(t, system, `"score"`)
		assert.Contains(t, system, `"improved_acceptance_criteria"`)

		assert.Contains(t, user, "Add CSV export")
		assert.Contains(t, user, "Labels: backend, reports")
		assert.Contains(t, user, "Estimate: 3")
		assert.Contains(t, user, "Type: Story")
		assert.Contains(t, user, "Given a report")
		assert.Contains(t, user, "title_clarity")
	})

	t.Run("sparse request", func(t *testing.T) {
		_, user := buildPrompt(Request{Title: "Fix bug", RubricFindings: "findings"})

		assert.Contains(t, user, "Estimate: none")
		assert.Contains(t, user, "(no description provided)")
		assert.NotContains(t, user, "Labels:")
		assert.NotContains(t, user, "Acceptance criteria:")
	})
}

func TestParseCritique(t *testing.T) {
	raw := `{
		"overall_assessment": "Solid ticket with minor gaps.",
		"strengths": ["clear title", "has estimate"],
		"improvements": ["expand description"],
		"suggestions": ["add acceptance criteria", "link the design doc"],
		"score": 78
	}`

	c, err := parseCritique(raw)
	require.NoError(t, err)
	assert.Equal(t, "Solid ticket with minor gaps.", c.OverallAssessment)
	assert.Len(t, c.Strengths, 2)
	require.NotNil(t, c.Score)
	assert.Equal(t, 78.0, *c.Score)
	assert.Empty(t, c.ImprovedAC)
}

func TestParseCritique_StripsFencing(t *testing.T) {
	raw := "```json\n{\"overall_assessment\": \"ok\", \"strengths\": [], \"improvements\": [], \"suggestions\": []}\n```"

	c, err := parseCritique(raw)
	require.NoError(t, err)
	assert.Equal(t, "ok", c.OverallAssessment)
}

func TestParseCritique_MalformedIsDistinguishable(t *testing.T) {
	_, err := parseCritique("not json at all")
	require.Error(t, err)

	var llmErr *iqerr.LLMError
	require.True(t, errors.As(err, &llmErr))
	assert.True(t, llmErr.Malformed)
	assert.False(t, llmErr.Timeout)
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient("", "claude-sonnet-4-20250514", 0, 0)
	require.NotNil(t, c)
	assert.NotNil(t, c.limiter)
}
