// Package report formats feedback as markdown and appends it to report files.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/joescharf/iq/internal/models"
)

// FormatFeedback renders one feedback record as markdown, suitable both for
// tracker comments and report files.
func FormatFeedback(fb *models.Feedback) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "## Feedback for %s\n\n", fb.IssueKey)
	fmt.Fprintf(&sb, "**Score:** %.1f/100 (%s)\n\n", fb.Score, fb.Grade)

	sb.WriteString("### Overall Assessment\n\n")
	sb.WriteString(fb.OverallAssessment)
	sb.WriteString("\n\n")

	writeList(&sb, "### Strengths", fb.Strengths, false)
	writeList(&sb, "### Areas for Improvement", fb.Improvements, false)
	writeList(&sb, "### Actionable Suggestions", fb.Suggestions, true)

	if fb.ImprovedAC != "" {
		sb.WriteString("### Proposed Acceptance Criteria\n\n")
		fmt.Fprintf(&sb, "```\n%s\n```\n\n", fb.ImprovedAC)
	}

	writeList(&sb, "### Helpful Resources", fb.Resources, false)

	if len(fb.Breakdown) > 0 {
		sb.WriteString("<details>\n<summary>Detailed Rubric Breakdown</summary>\n")
		for _, id := range sortedRuleIDs(fb.Breakdown) {
			entry := fb.Breakdown[id]
			fmt.Fprintf(&sb, "\n**%s:** %.1f/100\n", id, entry.Score)
			fmt.Fprintf(&sb, "- %s\n", entry.Message)
			if entry.Suggestion != "" {
				fmt.Fprintf(&sb, "- *Suggestion:* %s\n", entry.Suggestion)
			}
		}
		sb.WriteString("\n</details>\n")
	}

	sb.WriteString("\n---\n")
	fmt.Fprintf(&sb, "*Generated by iq • %s*\n", fb.CreatedAt.Format("2006-01-02 15:04:05"))

	return sb.String()
}

// FormatSummary renders aggregate statistics for a finished job.
func FormatSummary(job *models.AnalysisJob, feedbacks []*models.Feedback) string {
	var sb strings.Builder

	sb.WriteString("# Issue Quality Summary Report\n\n")
	fmt.Fprintf(&sb, "Generated: %s\n\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(&sb, "Query: `%s`\n\n", job.Query)
	fmt.Fprintf(&sb, "- Analyzed: %d\n- Skipped (unchanged): %d\n- Failed: %d\n\n",
		job.Processed, job.Skipped, job.Failed)

	if job.Stats.Count > 0 {
		sb.WriteString("## Statistics\n\n")
		fmt.Fprintf(&sb, "- Average score: %.1f/100\n", job.Stats.Mean)
		fmt.Fprintf(&sb, "- Highest score: %.1f/100\n", job.Stats.Max)
		fmt.Fprintf(&sb, "- Lowest score: %.1f/100\n\n", job.Stats.Min)
	}

	if len(feedbacks) > 0 {
		sb.WriteString("## Score Distribution\n\n")
		sb.WriteString("| Range | Grade | Count |\n|-------|-------|-------|\n")
		buckets := []struct {
			lo, hi float64
			grade  models.Grade
		}{
			{90, 101, models.GradeExcellent},
			{80, 90, models.GradeVeryGood},
			{70, 80, models.GradeGood},
			{60, 70, models.GradeNeedsWork},
			{50, 60, models.GradeWeak},
			{0, 50, models.GradePoor},
		}
		for _, b := range buckets {
			count := 0
			for _, fb := range feedbacks {
				if fb.Score >= b.lo && fb.Score < b.hi {
					count++
				}
			}
			fmt.Fprintf(&sb, "| %.0f-%.0f | %s | %d |\n", b.lo, min(b.hi, 100), b.grade, count)
		}
	}

	return sb.String()
}

func writeList(sb *strings.Builder, heading string, items []string, numbered bool) {
	if len(items) == 0 {
		return
	}
	sb.WriteString(heading)
	sb.WriteString("\n\n")
	for i, item := range items {
		if numbered {
			fmt.Fprintf(sb, "%d. %s\n", i+1, item)
		} else {
			fmt.Fprintf(sb, "- %s\n", item)
		}
	}
	sb.WriteString("\n")
}

func sortedRuleIDs(m map[models.RuleID]models.BreakdownEntry) []models.RuleID {
	ids := make([]models.RuleID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
