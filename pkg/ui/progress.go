package ui

import (
	"fmt"
	"strings"
	"time"
)

const (
	barFull  = "█"
	barEmpty = "░"
	barWidth = 20
)

// QuotaBar renders done/target as a fixed-width bar
func QuotaBar(done, target int) string {
	filled := 0
	if target > 0 {
		filled = done * barWidth / target
	}
	if filled > barWidth {
		filled = barWidth
	}
	if filled < 0 {
		filled = 0
	}
	return fmt.Sprintf("[%s%s] %d/%d",
		strings.Repeat(barFull, filled), strings.Repeat(barEmpty, barWidth-filled), done, target)
}

// RunTracker counts account outcomes across a run
type RunTracker struct {
	Succeeded int
	Skipped   int
	Failed    []string
	StartTime time.Time
}

// NewRunTracker starts the clock
func NewRunTracker() *RunTracker {
	return &RunTracker{StartTime: time.Now()}
}

// Elapsed returns the time since the run started
func (t *RunTracker) Elapsed() time.Duration {
	return time.Since(t.StartTime).Round(time.Second)
}

// Fail records an account that could not be processed
func (t *RunTracker) Fail(account string) {
	t.Failed = append(t.Failed, account)
}

// PrintSummary prints the closing line of a run
func (t *RunTracker) PrintSummary() {
	line := fmt.Sprintf("%d done, %d skipped, %d failed in %s",
		t.Succeeded, t.Skipped, len(t.Failed), t.Elapsed())
	if len(t.Failed) > 0 {
		PrintError(line, strings.Join(t.Failed, ", "))
		return
	}
	PrintSuccess(line)
}
