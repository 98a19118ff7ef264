package models

import "time"

// Issue is the normalized tracker issue shape the engine evaluates. It is
// supplied by the tracker source and read-only to the core.
type Issue struct {
	Key                string // project-scoped key, e.g. "ABC-123"
	ProjectKey         string
	Title              string
	Description        string
	AcceptanceCriteria string
	Estimate           *float64 // story points or hours, nil when absent
	Labels             []string
	Type               string // Story, Bug, Task, ...
	Status             string
	Assignee           string
	Created            time.Time
	Updated            time.Time
}

// HasEstimate reports whether the issue carries a positive numeric estimate.
func (i Issue) HasEstimate() bool {
	return i.Estimate != nil && *i.Estimate > 0
}

// Body returns description plus acceptance criteria, the text most rules
// inspect.
func (i Issue) Body() string {
	if i.AcceptanceCriteria == "" {
		return i.Description
	}
	if i.Description == "" {
		return i.AcceptanceCriteria
	}
	return i.Description + "\n" + i.AcceptanceCriteria
}
