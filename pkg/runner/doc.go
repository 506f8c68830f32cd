// Package runner is the daily task orchestrator. For each account, one at a
// time, it acquires a session, runs the reward tasks and the feed scan,
// renders a report, notifies and records a checkpoint.
//
// An account that cannot log in is reported and skipped; the remaining
// accounts still run.
package runner
