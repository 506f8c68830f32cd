// Package feed implements the bounded feed scanner: it pages through the
// forum's public blog list, opens each unseen item once and clicks its first
// reaction control until enough reactions have succeeded.
//
// A scan stops on the first of:
//   - the success quota is reached
//   - a page has no item links
//   - a page has no items that were not already seen
//   - the page limit is reached
//   - a feed page cannot be fetched
//
// Per-item failures are logged and skipped; they never abort the scan.
package feed
