// Package store archives simulation runs in SQLite so event logs can be
// re-evaluated later without regenerating them.
package store

// Run is the stored header of one archived simulation run: the parameters
// that produced the log plus the log's size and content digest.
type Run struct {
	ID                    string
	CreatedAt             int64 // unix nanoseconds
	Seed                  int64
	WarmupSteps           int
	TestSteps             int
	ConfirmationThreshold int
	DegradeThreshold      float64
	EventCount            int
	Digest                string
}
