// Package rubric implements deterministic, rule-based quality scoring of
// tracker issues. Rules are pure functions over an issue and the rubric
// configuration; the engine aggregates their weighted scores to 0-100.
package rubric

import (
	"github.com/joescharf/iq/internal/iqerr"
	"github.com/joescharf/iq/internal/models"
)

// Config holds rubric thresholds, term lists, and per-rule weight overrides.
type Config struct {
	MinDescriptionWords       int
	RequireAcceptanceCriteria bool
	AllowedLabels             []string
	AmbiguousTerms            []string

	// Weights overrides the default weight per rule. A weight of 0 disables
	// the rule entirely.
	Weights map[models.RuleID]float64
}

// DefaultConfig returns the rubric defaults.
func DefaultConfig() Config {
	return Config{
		MinDescriptionWords:       20,
		RequireAcceptanceCriteria: true,
		AmbiguousTerms: []string{
			"optimize", "asap", "soon", "quickly", "improve", "better",
			"enhance", "somehow", "etc", "urgent",
		},
	}
}

// Rule is one independently evaluable quality check.
type Rule struct {
	ID            models.RuleID
	DefaultWeight float64
	Check         func(issue models.Issue, cfg Config) models.RubricResult
}

// registry is the canonical ordered rule set. Evaluation and reporting follow
// this order.
var registry = []Rule{
	{models.RuleTitleClarity, 1.0, checkTitleClarity},
	{models.RuleDescriptionLength, 1.2, checkDescriptionLength},
	{models.RuleAcceptanceCriteria, 1.5, checkAcceptanceCriteria},
	{models.RuleAmbiguousTerms, 1.0, checkAmbiguousTerms},
	{models.RuleEstimatePresent, 0.8, checkEstimatePresent},
	{models.RuleLabels, 0.7, checkLabels},
	{models.RuleScopeClarity, 1.0, checkScopeClarity},
}

// Rules returns the registered rules in evaluation order.
func Rules() []Rule {
	out := make([]Rule, len(registry))
	copy(out, registry)
	return out
}

// Engine runs the enabled rules of a rubric configuration.
type Engine struct {
	cfg   Config
	rules []Rule
}

// NewEngine validates the configuration and builds an engine over the enabled
// rules. All rules disabled (total weight 0) is a configuration error.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.MinDescriptionWords <= 0 {
		return nil, iqerr.New(iqerr.KindConfiguration, "min_description_words must be positive, got %d", cfg.MinDescriptionWords)
	}

	var enabled []Rule
	total := 0.0
	for _, r := range registry {
		w := weightFor(cfg, r)
		if w < 0 {
			return nil, iqerr.New(iqerr.KindConfiguration, "rule %s: weight must be non-negative, got %g", r.ID, w)
		}
		if w == 0 {
			continue
		}
		total += w
		enabled = append(enabled, r)
	}
	if total == 0 {
		return nil, iqerr.New(iqerr.KindConfiguration, "all rubric rules disabled: total weight is zero")
	}

	return &Engine{cfg: cfg, rules: enabled}, nil
}

func weightFor(cfg Config, r Rule) float64 {
	if w, ok := cfg.Weights[r.ID]; ok {
		return w
	}
	return r.DefaultWeight
}

// Evaluate runs every enabled rule against the issue, in registry order.
// Deterministic and side-effect free.
func (e *Engine) Evaluate(issue models.Issue) []models.RubricResult {
	results := make([]models.RubricResult, 0, len(e.rules))
	for _, r := range e.rules {
		res := r.Check(issue, e.cfg)
		res.RuleID = r.ID
		res.Weight = weightFor(e.cfg, r)
		res.Score = clamp01(res.Score)
		results = append(results, res)
	}
	return results
}

// Weight returns the effective weight of a rule under this engine's
// configuration. Disabled rules report 0.
func (e *Engine) Weight(id models.RuleID) float64 {
	for _, r := range e.rules {
		if r.ID == id {
			return weightFor(e.cfg, r)
		}
	}
	return 0
}

// Aggregate computes the weighted 0-100 score over the given results.
func Aggregate(results []models.RubricResult) (float64, error) {
	totalWeight := 0.0
	weightedSum := 0.0
	for _, r := range results {
		if r.Weight == 0 {
			continue
		}
		totalWeight += r.Weight
		weightedSum += r.Score * r.Weight
	}
	if totalWeight == 0 {
		return 0, iqerr.New(iqerr.KindConfiguration, "cannot aggregate: total rule weight is zero")
	}
	return weightedSum / totalWeight * 100, nil
}

// Breakdown converts rule results to the per-rule entries stored on a
// Feedback record, with scores scaled to 0-100.
func Breakdown(results []models.RubricResult) map[models.RuleID]models.BreakdownEntry {
	out := make(map[models.RuleID]models.BreakdownEntry, len(results))
	for _, r := range results {
		out[r.RuleID] = models.BreakdownEntry{
			Score:      r.Score * 100,
			Message:    r.Message,
			Suggestion: r.Suggestion,
		}
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
