package sim

import (
	"sort"

	"insidersim/internal/event"
)

// AlertMonitor is the log-level confirmation rule. Once the number of
// distinct actors with at least one malicious event anywhere in the run
// reaches Threshold, the whole set is confirmed, and stays confirmed on
// every following step: the set only ever grows.
type AlertMonitor struct {
	Threshold int
}

// Confirmed scans the cumulative log plus the current step's buffer and
// returns the ascending ids of every implicated actor, or nil while the
// distinct count is still below Threshold.
func (m AlertMonitor) Confirmed(log, buffered []event.Event) []int {
	seen := make(map[int]struct{})
	for _, events := range [][]event.Event{log, buffered} {
		for i := range events {
			if events[i].MaliciousActor() {
				seen[events[i].ActorID] = struct{}{}
			}
		}
	}
	if len(seen) < m.Threshold {
		return nil
	}
	ids := make([]int, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
