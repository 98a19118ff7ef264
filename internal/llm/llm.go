// Package llm wraps the Anthropic API for issue critique generation.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/time/rate"

	"github.com/joescharf/iq/internal/iqerr"
)

// Request carries the sanitized issue fields and rubric findings for one
// critique call. Callers must sanitize free text before building a Request.
type Request struct {
	Title          string
	Description    string
	AC             string
	Labels         []string
	Estimate       string
	IssueType      string
	RubricFindings string
}

// Critique is the structured provider output.
type Critique struct {
	OverallAssessment string   `json:"overall_assessment"`
	Strengths         []string `json:"strengths"`
	Improvements      []string `json:"improvements"`
	Suggestions       []string `json:"suggestions"`
	Score             *float64 `json:"score,omitempty"`
	ImprovedAC        string   `json:"improved_acceptance_criteria,omitempty"`
}

// Critiquer is the critique provider boundary, implemented by Client and by
// test fakes.
type Critiquer interface {
	Critique(ctx context.Context, req Request) (*Critique, error)
}

// Client implements Critiquer using the Anthropic API.
type Client struct {
	api     *anthropic.Client
	model   anthropic.Model
	timeout time.Duration
	limiter *rate.Limiter
}

// NewClient creates an LLM client. timeout bounds each call; rps throttles
// calls across all workers to respect provider rate limits (0 disables).
func NewClient(apiKey, model string, timeout time.Duration, rps float64) *Client {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)

	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}

	return &Client{
		api:     &client,
		model:   anthropic.Model(model),
		timeout: timeout,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// buildPrompt constructs the system and user prompts for issue critique.
func buildPrompt(req Request) (system string, user string) {
	system = `You review issue-tracker tickets for quality and return constructive feedback. Return ONLY a JSON object with these fields:
- "overall_assessment": 1-2 sentence summary of issue quality and main concerns
- "strengths": array of 2-4 specific strengths
- "improvements": array of 2-4 specific areas needing improvement
- "suggestions": array of 3-5 specific, actionable suggestions
- "score": optional number 0-100 reflecting overall ticket quality
- "improved_acceptance_criteria": optional rewrite of the acceptance criteria in Given/When/Then format (include only when the current criteria are missing or weak)

Rules:
- Ground every point in the ticket content and the rubric findings provided
- Be specific: name the field or sentence you are commenting on
- Never invent requirements the ticket does not state
- Return valid JSON only, no markdown fencing or explanation`

	var sb strings.Builder
	sb.WriteString("Ticket title: ")
	sb.WriteString(req.Title)
	sb.WriteString("\n")
	if req.IssueType != "" {
		sb.WriteString("Type: ")
		sb.WriteString(req.IssueType)
		sb.WriteString("\n")
	}
	if len(req.Labels) > 0 {
		sb.WriteString("Labels: ")
		sb.WriteString(strings.Join(req.Labels, ", "))
		sb.WriteString("\n")
	}
	sb.WriteString("Estimate: ")
	if req.Estimate != "" {
		sb.WriteString(req.Estimate)
	} else {
		sb.WriteString("none")
	}
	sb.WriteString("\n\nDescription:\n")
	if req.Description != "" {
		sb.WriteString(req.Description)
	} else {
		sb.WriteString("(no description provided)")
	}
	if req.AC != "" {
		sb.WriteString("\n\nAcceptance criteria:\n")
		sb.WriteString(req.AC)
	}
	sb.WriteString("\n\nDeterministic rubric findings:\n")
	sb.WriteString(req.RubricFindings)
	user = sb.String()
	return
}

// Critique sends the issue to the LLM and returns the parsed critique.
// Timeouts, provider failures, and malformed output are all reported as
// *iqerr.LLMError so the pipeline can degrade instead of failing.
func (c *Client) Critique(ctx context.Context, req Request) (*Critique, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &iqerr.LLMError{Msg: "rate limiter", Timeout: true, Err: err}
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	systemPrompt, userPrompt := buildPrompt(req)

	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 2048,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &iqerr.LLMError{Msg: "critique timed out", Timeout: true, Err: err}
		}
		return nil, &iqerr.LLMError{Msg: "anthropic API call", Err: err}
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return nil, &iqerr.LLMError{Msg: "no text content in API response", Malformed: true}
	}

	return parseCritique(text)
}

// parseCritique strips markdown fencing if present and decodes the JSON body.
func parseCritique(text string) (*Critique, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		lines := strings.SplitN(text, "\n", 2)
		if len(lines) > 1 {
			text = lines[1]
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	var critique Critique
	if err := json.Unmarshal([]byte(text), &critique); err != nil {
		return nil, &iqerr.LLMError{
			Msg:       fmt.Sprintf("parse critique as JSON (raw: %.200s)", text),
			Malformed: true,
			Err:       err,
		}
	}
	return &critique, nil
}
