// Package report renders the per-account daily summary sent to
// notification channels.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"gmdaily/pkg/forum"
	"gmdaily/pkg/tasks"
)

const (
	iconTitle   = "🎉"
	iconCredits = "💳"
	iconStats   = "📊"
	iconTasks   = "📋"
	iconSummary = "📈"
	iconFailed  = "❌"
	iconOK      = "✅"
	iconSkipped = "⏸️"
	bullet      = "•"
)

// plain maps the decorated report onto a plain-text one for mail clients
var plain = strings.NewReplacer(
	iconTitle+" ", "", iconCredits+" ", "", iconStats+" ", "", iconTasks+" ", "", iconSummary+" ", "",
	iconOK, "[ok]", iconFailed, "[failed]", iconSkipped, "[skipped]",
	bullet, "-",
)

// Report is everything gathered for one account run
type Report struct {
	Account string
	RunID   string
	Date    time.Time
	Results []tasks.Result
	Credits []forum.Credit
	Summary []forum.TaskCount
}

// Counts returns successful and total task results
func (r *Report) Counts() (ok, total int) {
	for _, res := range r.Results {
		if res.OK() {
			ok++
		}
	}
	return ok, len(r.Results)
}

// ordered returns results with the exchange last, otherwise in run order
func (r *Report) ordered() []tasks.Result {
	out := make([]tasks.Result, len(r.Results))
	copy(out, r.Results)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Name != tasks.NameExchange && out[j].Name == tasks.NameExchange
	})
	return out
}

func icon(s tasks.Status) string {
	switch s {
	case tasks.StatusSuccess:
		return iconOK
	case tasks.StatusFailed:
		return iconFailed
	default:
		return iconSkipped
	}
}

// Title is the notification subject
func (r *Report) Title() string {
	if r.Account == "" {
		return "GameMale daily tasks"
	}
	return "GameMale daily tasks: " + r.Account
}

// Text renders the report with status icons
func (r *Report) Text() string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s\n", iconTitle, r.Title())
	if !r.Date.IsZero() {
		fmt.Fprintf(&b, "%s", r.Date.Format("2006-01-02 15:04"))
		if r.RunID != "" {
			fmt.Fprintf(&b, " (run %s)", r.RunID)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if len(r.Credits) > 0 {
		fmt.Fprintf(&b, "%s Credits:\n", iconCredits)
		for _, c := range r.Credits {
			fmt.Fprintf(&b, "  %s %s: %s\n", bullet, c.Name, c.Value)
		}
		b.WriteString("\n")
	}

	ok, total := r.Counts()
	fmt.Fprintf(&b, "%s Tasks: %d/%d succeeded\n\n", iconStats, ok, total)

	fmt.Fprintf(&b, "%s Details:\n", iconTasks)
	for _, res := range r.ordered() {
		fmt.Fprintf(&b, "  %s %s: %s", bullet, res.Name, icon(res.Status))
		if res.Detail != "" {
			fmt.Fprintf(&b, " %s", res.Detail)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if len(r.Summary) > 0 {
		fmt.Fprintf(&b, "%s Reward totals:\n", iconSummary)
		for _, row := range r.Summary {
			fmt.Fprintf(&b, "  %s %s: %s times (last: %s)\n", bullet, row.Name, row.Count, row.Last)
		}
		b.WriteString("\n")
	}

	return b.String()
}

// PlainText renders the report without emoji
func (r *Report) PlainText() string {
	return Plain(r.Text())
}

// Plain strips the report decorations from any message
func Plain(message string) string {
	return plain.Replace(message)
}

// Failure renders the message sent when an account could not be processed
func Failure(account, reason string) string {
	if account == "" {
		return fmt.Sprintf("%s GameMale daily tasks failed: %s", iconFailed, reason)
	}
	return fmt.Sprintf("%s GameMale daily tasks failed for %s: %s", iconFailed, account, reason)
}
