// Package notify turns settlement runs into user-facing notices and posts
// them to a webhook.
//
// A run produces a success notice when it settled entries, an informational
// no-op notice when it settled nothing and hit no errors, and a diagnostic
// notice carrying the error list whenever errors were recorded.
package notify

import (
	"fmt"
	"strings"

	"github.com/albapepper/scoracle-settlement/internal/settlement"
)

// Level classifies a notice.
type Level string

const (
	LevelSuccess    Level = "success"
	LevelInfo       Level = "info"
	LevelDiagnostic Level = "diagnostic"
)

// maxListedErrors caps how many run errors a diagnostic notice spells out.
const maxListedErrors = 10

// Notice is one message about a settlement run.
type Notice struct {
	Level   Level    `json:"level"`
	RunID   string   `json:"run_id"`
	Title   string   `json:"title"`
	Text    string   `json:"text"`
	Details []string `json:"details,omitempty"`
}

// Build returns the notices for run. Zero settled and zero errors is an
// informational no-op, never a failure.
func Build(run settlement.Run) []Notice {
	var notices []Notice

	switch {
	case run.Settled > 0:
		notices = append(notices, Notice{
			Level: LevelSuccess,
			RunID: run.ID,
			Title: "Settlement complete",
			Text: fmt.Sprintf("Settled %d %s: %d won, %d lost.",
				run.Settled, plural(run.Settled, "entry", "entries"), run.Wins, run.Losses),
		})
	case run.IsNoop():
		notices = append(notices, Notice{
			Level: LevelInfo,
			RunID: run.ID,
			Title: "Nothing to settle",
			Text:  noopText(run),
		})
	}

	if len(run.Errors) > 0 {
		details := run.Errors
		if len(details) > maxListedErrors {
			details = append(append([]string{}, details[:maxListedErrors]...),
				fmt.Sprintf("... and %d more", len(run.Errors)-maxListedErrors))
		}
		notices = append(notices, Notice{
			Level:   LevelDiagnostic,
			RunID:   run.ID,
			Title:   "Settlement completed with errors",
			Text:    fmt.Sprintf("%d %s during settlement.", len(run.Errors), plural(len(run.Errors), "error", "errors")),
			Details: details,
		})
	}
	return notices
}

func noopText(run settlement.Run) string {
	if run.EntriesChecked == 0 {
		return "No open entries had finalized games."
	}
	parts := []string{fmt.Sprintf("Checked %d open %s", run.EntriesChecked, plural(run.EntriesChecked, "entry", "entries"))}
	if run.Unmatched > 0 {
		parts = append(parts, fmt.Sprintf("%d still waiting on results", run.Unmatched))
	}
	if run.AlreadySettled > 0 {
		parts = append(parts, fmt.Sprintf("%d settled elsewhere", run.AlreadySettled))
	}
	return strings.Join(parts, ", ") + "."
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
