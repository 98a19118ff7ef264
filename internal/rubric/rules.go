package rubric

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/joescharf/iq/internal/models"
)

var (
	fillerWords = []string{"just", "maybe", "perhaps", "kinda", "sort of"}
	actionWords = []string{"add", "fix", "create", "update", "remove", "implement", "refactor", "support", "migrate"}

	acPatterns = []*regexp.Regexp{
		regexp.MustCompile(`acceptance criteria`),
		regexp.MustCompile(`\bac:`),
		regexp.MustCompile(`given.*when.*then`),
		regexp.MustCompile(`\[ \].*\[ \]`),
		regexp.MustCompile(`requirements:`),
		regexp.MustCompile(`must:`),
	}

	scopePatterns = []*regexp.Regexp{
		regexp.MustCompile(`out of scope`),
		regexp.MustCompile(`in scope`),
		regexp.MustCompile(`dependencies:`),
		regexp.MustCompile(`blocked by`),
		regexp.MustCompile(`requires`),
		regexp.MustCompile(`affects`),
	}

	broadWords = []string{"everything", "all", "any", "complete", "total", "entire"}
)

func checkTitleClarity(issue models.Issue, _ Config) models.RubricResult {
	title := strings.TrimSpace(issue.Title)
	lower := strings.ToLower(title)

	score := 1.0
	var problems []string

	if title == "" {
		return models.RubricResult{
			Score:      0,
			Message:    "Title is empty",
			Suggestion: "Add a concise, actionable title (e.g., 'Add user authentication to login page')",
		}
	}

	hasFiller := false
	for _, w := range fillerWords {
		if strings.Contains(lower, w) {
			hasFiller = true
			break
		}
	}
	if hasFiller {
		score -= 0.3
		problems = append(problems, "contains filler words")
	}

	hasAction := false
	for _, w := range actionWords {
		if strings.Contains(lower, w) {
			hasAction = true
			break
		}
	}
	if !hasAction {
		score -= 0.2
		problems = append(problems, "lacks action verb")
	}

	if len(title) < 10 {
		score -= 0.3
		problems = append(problems, "too short")
	}
	if len(title) > 100 {
		score -= 0.2
		problems = append(problems, "too long")
	}

	if len(problems) == 0 {
		return models.RubricResult{Score: 1.0, Message: "Title is clear and actionable"}
	}
	return models.RubricResult{
		Score:      score,
		Message:    "Title quality issues: " + strings.Join(problems, ", "),
		Suggestion: "Rewrite title to be concise, actionable, and specific (e.g., 'Add user authentication to login page')",
	}
}

func checkDescriptionLength(issue models.Issue, cfg Config) models.RubricResult {
	wordCount := len(strings.Fields(issue.Description))
	min := cfg.MinDescriptionWords

	switch {
	case wordCount == 0:
		return models.RubricResult{
			Score:      0,
			Message:    "Description is empty",
			Suggestion: fmt.Sprintf("Add a description with at least %d words explaining the problem and solution", min),
		}
	case wordCount < min:
		return models.RubricResult{
			Score:      float64(wordCount) / float64(min),
			Message:    fmt.Sprintf("Description too short: %d/%d words", wordCount, min),
			Suggestion: fmt.Sprintf("Expand description to at least %d words with more context and details", min),
		}
	default:
		return models.RubricResult{
			Score:   1.0,
			Message: fmt.Sprintf("Description length adequate: %d words", wordCount),
		}
	}
}

func checkAcceptanceCriteria(issue models.Issue, cfg Config) models.RubricResult {
	body := strings.ToLower(issue.Body())

	hasAC := false
	for _, p := range acPatterns {
		if p.MatchString(body) {
			hasAC = true
			break
		}
	}

	if !cfg.RequireAcceptanceCriteria {
		if hasAC {
			return models.RubricResult{Score: 1.0, Message: "Acceptance criteria present (optional)"}
		}
		return models.RubricResult{
			Score:      0.8,
			Message:    "No acceptance criteria (optional)",
			Suggestion: "Consider adding testable acceptance criteria",
		}
	}

	if hasAC {
		return models.RubricResult{Score: 1.0, Message: "Acceptance criteria present"}
	}
	return models.RubricResult{
		Score:      0,
		Message:    "Acceptance criteria required but missing",
		Suggestion: "Add acceptance criteria in Given/When/Then format or as a checklist",
	}
}

func checkAmbiguousTerms(issue models.Issue, cfg Config) models.RubricResult {
	text := strings.ToLower(issue.Title + " " + issue.Body())

	var found []string
	for _, term := range cfg.AmbiguousTerms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		if strings.Contains(text, strings.ToLower(term)) {
			found = append(found, term)
		}
	}

	if len(found) == 0 {
		return models.RubricResult{Score: 1.0, Message: "No ambiguous terms detected"}
	}

	sort.Strings(found)
	return models.RubricResult{
		Score:      1.0 - float64(len(found))*0.15,
		Message:    "Ambiguous terms found: " + strings.Join(found, ", "),
		Suggestion: "Replace vague terms with specific, measurable criteria (e.g., 'reduce load time from 3s to 1s' instead of 'optimize performance')",
	}
}

func checkEstimatePresent(issue models.Issue, _ Config) models.RubricResult {
	if issue.HasEstimate() {
		return models.RubricResult{
			Score:   1.0,
			Message: fmt.Sprintf("Estimate present: %g", *issue.Estimate),
		}
	}
	return models.RubricResult{
		Score:      0,
		Message:    "No estimate provided",
		Suggestion: "Add story points or a time estimate to help with planning",
	}
}

func checkLabels(issue models.Issue, cfg Config) models.RubricResult {
	labels := issue.Labels

	if len(cfg.AllowedLabels) == 0 {
		if len(labels) > 0 {
			return models.RubricResult{
				Score:   1.0,
				Message: "Labels present: " + strings.Join(labels, ", "),
			}
		}
		return models.RubricResult{
			Score:      0.7,
			Message:    "No labels",
			Suggestion: "Add relevant labels for categorization",
		}
	}

	allowed := make(map[string]bool, len(cfg.AllowedLabels))
	for _, l := range cfg.AllowedLabels {
		allowed[l] = true
	}

	var invalid []string
	for _, l := range labels {
		if !allowed[l] {
			invalid = append(invalid, l)
		}
	}

	switch {
	case len(labels) > 0 && len(invalid) == 0:
		return models.RubricResult{
			Score:   1.0,
			Message: "All labels valid: " + strings.Join(labels, ", "),
		}
	case len(invalid) > 0:
		return models.RubricResult{
			Score:      0.5,
			Message:    "Invalid labels: " + strings.Join(invalid, ", "),
			Suggestion: "Use only allowed labels: " + strings.Join(cfg.AllowedLabels, ", "),
		}
	default:
		return models.RubricResult{
			Score:      0.6,
			Message:    "No labels",
			Suggestion: "Add labels from: " + strings.Join(cfg.AllowedLabels, ", "),
		}
	}
}

func checkScopeClarity(issue models.Issue, _ Config) models.RubricResult {
	body := strings.ToLower(issue.Body())

	if len(strings.Fields(body)) < 10 {
		return models.RubricResult{
			Score:      0.3,
			Message:    "Not enough detail to judge scope",
			Suggestion: "Describe the change, its boundaries, and any dependencies",
		}
	}

	for _, p := range scopePatterns {
		if p.MatchString(body) {
			return models.RubricResult{Score: 1.0, Message: "Scope information present"}
		}
	}

	for _, w := range broadWords {
		if containsWord(body, w) {
			return models.RubricResult{
				Score:      0.4,
				Message:    "Scope appears too broad",
				Suggestion: "Narrow scope to specific, deliverable changes. List dependencies or blockers if any.",
			}
		}
	}

	return models.RubricResult{
		Score:      0.7,
		Message:    "Scope could be clearer",
		Suggestion: "Clarify what is in/out of scope and list any dependencies",
	}
}

// containsWord matches w as a whole word so "all" does not fire on "install".
func containsWord(text, w string) bool {
	for _, f := range strings.FieldsFunc(text, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	}) {
		if f == w {
			return true
		}
	}
	return false
}
