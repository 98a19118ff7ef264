package models

import "time"

// RuleID identifies a rubric rule.
type RuleID string

const (
	RuleTitleClarity       RuleID = "title_clarity"
	RuleDescriptionLength  RuleID = "description_length"
	RuleAcceptanceCriteria RuleID = "acceptance_criteria"
	RuleAmbiguousTerms     RuleID = "ambiguous_terms"
	RuleEstimatePresent    RuleID = "estimate_present"
	RuleLabels             RuleID = "labels"
	RuleScopeClarity       RuleID = "scope_clarity"
)

// RubricResult is the outcome of a single rule evaluation. Immutable once
// created; consumed within one pipeline run.
type RubricResult struct {
	RuleID     RuleID
	Score      float64 // 0.0 to 1.0
	Message    string
	Suggestion string
	Weight     float64
}

// BreakdownEntry is the per-rule view stored on a Feedback record.
type BreakdownEntry struct {
	Score      float64 `json:"score"` // 0-100
	Message    string  `json:"message"`
	Suggestion string  `json:"suggestion,omitempty"`
}

// Grade is the qualitative label derived from an overall score.
type Grade string

const (
	GradeExcellent Grade = "excellent"
	GradeVeryGood  Grade = "very good"
	GradeGood      Grade = "good"
	GradeNeedsWork Grade = "needs work"
	GradeWeak      Grade = "weak"
	GradePoor      Grade = "poor"
)

// GradeForScore maps a 0-100 score to its qualitative label.
func GradeForScore(score float64) Grade {
	switch {
	case score >= 90:
		return GradeExcellent
	case score >= 80:
		return GradeVeryGood
	case score >= 70:
		return GradeGood
	case score >= 60:
		return GradeNeedsWork
	case score >= 50:
		return GradeWeak
	default:
		return GradePoor
	}
}

// Feedback is one complete review of an issue. A re-run produces a new
// Feedback record (a new revision), never an in-place edit.
type Feedback struct {
	ID                string // ULID
	IssueKey          string
	Score             float64 // 0-100, rubric aggregate
	Grade             Grade
	OverallAssessment string
	Strengths         []string
	Improvements      []string
	Suggestions       []string
	Breakdown         map[RuleID]BreakdownEntry
	ImprovedAC        string
	Resources         []string
	Degraded          bool // produced without a successful LLM critique
	PostedToTracker   bool
	Notified          bool
	CreatedAt         time.Time
}

// CacheEntry tracks the last delivered content fingerprint for one issue.
type CacheEntry struct {
	IssueKey      string
	Fingerprint   string
	DeliveryCount int
	DeliveredAt   time.Time
}
