package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/joescharf/iq/internal/models"
)

// Fingerprint hashes the scoring-relevant fields of an issue: title,
// description, acceptance criteria, labels, and estimate. Fields like status
// or assignee do not affect scoring and are excluded, so reassigning an issue
// never triggers a re-delivery.
func Fingerprint(issue models.Issue) string {
	labels := make([]string, len(issue.Labels))
	copy(labels, issue.Labels)
	sort.Strings(labels)

	estimate := ""
	if issue.Estimate != nil {
		estimate = fmt.Sprintf("%g", *issue.Estimate)
	}

	content := strings.Join([]string{
		issue.Title,
		issue.Description,
		issue.AcceptanceCriteria,
		strings.Join(labels, ","),
		estimate,
	}, "|")

	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
