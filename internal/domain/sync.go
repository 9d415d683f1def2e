package domain

import "time"

// SyncStats holds statistics about a single sync run.
//
// Skipped counts posts that were unchanged since the last run, Drafts counts
// private posts left out because drafts are not synced.
type SyncStats struct {
	SourceID  string
	Fetched   int
	New       int
	Updated   int
	Skipped   int
	Drafts    int
	Errors    int
	Published int
	Duration  time.Duration
}
