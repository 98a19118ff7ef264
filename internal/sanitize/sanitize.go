// Package sanitize scrubs issue text before it is interpolated into an LLM
// prompt. Rubric scoring and stored feedback always see the original text;
// only the prompt copy is cleaned.
package sanitize

import (
	"regexp"
	"strings"

	"github.com/joescharf/iq/internal/models"
)

const (
	// MaxTitleLen caps title text sent to the provider.
	MaxTitleLen = 500
	// MaxBodyLen caps description and acceptance-criteria text.
	MaxBodyLen = 50000
)

var (
	// Role markers at the start of a line hijack chat-structured prompts.
	roleMarker = regexp.MustCompile(`(?im)^\s*(system|assistant|user)\s*:`)

	// Phrases that try to override the prompt's instructions.
	overridePhrase = regexp.MustCompile(`(?i)(ignore|disregard|forget)\s+(all\s+|any\s+)?(previous|prior|above|earlier)\s+(instructions?|prompts?|messages?|context)`)

	fence = regexp.MustCompile("```+")
)

// Clean neutralizes prompt-injection patterns and truncates to max bytes.
func Clean(s string, max int) string {
	s = roleMarker.ReplaceAllString(s, "")
	s = overridePhrase.ReplaceAllString(s, "[removed]")
	s = fence.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	if max > 0 && len(s) > max {
		s = s[:max] + "..."
	}
	return s
}

// Issue returns a scrubbed copy of the issue for LLM consumption. The
// original is never mutated.
func Issue(in models.Issue) models.Issue {
	out := in
	out.Title = Clean(in.Title, MaxTitleLen)
	out.Description = Clean(in.Description, MaxBodyLen)
	out.AcceptanceCriteria = Clean(in.AcceptanceCriteria, MaxBodyLen)
	return out
}
