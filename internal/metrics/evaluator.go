// Package metrics scores detection quality over a finished simulation log.
//
// All metrics are computed over the test phase only. The warmup prefix of a
// run exists to let actor routines and twin state settle; confirmations and
// degradations that happen there are not scored.
//
// Ratio metrics (precision, recall, F1, SDP) are always defined and fall
// back to 0 when their denominator is empty. Timing metrics (mean TTD,
// impact-weighted TTD) are undefined when no malicious activity was observed
// and are reported as nil rather than 0, so that aggregation can tell
// "detected instantly" apart from "nothing to detect".
package metrics

import (
	"sort"

	"insidersim/internal/event"
)

// DefaultService is the service whose twin snapshots are scored when no
// service name is given.
const DefaultService = "traffic"

// UnknownScenarioImpact is the impact weight assumed for a malicious actor
// whose scenario is absent from ScenarioImpact.
const UnknownScenarioImpact = 0.5

// ScenarioImpact maps a scenario to its assumed impact weight. It is the
// fallback used for actors the twin never blamed for service degradation;
// actors with an observed blame get their peak observed severity instead.
var ScenarioImpact = map[event.Scenario]float64{
	event.ScenarioAcctTakeover: 1.0,
	event.ScenarioStealth:      0.6,
	event.ScenarioStagingExfil: 0.75,
	event.ScenarioExfil:        0.8,
	event.ScenarioEmailOnly:    0.5,
}

// RunMetrics is the detection scorecard of one run. MeanTTD and
// ImpactWeightedTTD are nil when undefined.
type RunMetrics struct {
	NumActors          int      `json:"num_actors"`
	NumMaliciousActors int      `json:"num_mal_actors"`
	Precision          float64  `json:"actor_precision"`
	Recall             float64  `json:"actor_recall"`
	F1                 float64  `json:"actor_f1"`
	MeanTTD            *float64 `json:"mean_ttd"`
	ImpactWeightedTTD  *float64 `json:"iw_ttd"`
	SDP                float64  `json:"sdp"`
	AvgDegradedMode    float64  `json:"avg_degraded_mode_duration"`
}

// Evaluate scores events against ground-truth labels for one monitored
// service. An empty service name means DefaultService. The input may be in
// any order as long as steps are non-decreasing per actor; logs produced by
// a run are already fully ordered.
func Evaluate(events []event.Event, service string) RunMetrics {
	if service == "" {
		service = DefaultService
	}
	test := FilterTest(events)

	actors := make(map[int]struct{})
	malicious := make(map[int]struct{})
	confirmed := make(map[int]struct{})
	firstMal := make(map[int]int)
	firstConf := make(map[int]int)
	scenarioByActor := make(map[int]event.Scenario)
	lastTestStep := 0

	for _, e := range test {
		if e.Step > lastTestStep {
			lastTestStep = e.Step
		}
		if e.ActorID >= 0 {
			actors[e.ActorID] = struct{}{}
		}
		if e.MaliciousActor() {
			malicious[e.ActorID] = struct{}{}
			if _, ok := firstMal[e.ActorID]; !ok {
				firstMal[e.ActorID] = e.Step
			}
			if e.Scenario != "" {
				scenarioByActor[e.ActorID] = e.Scenario
			}
		}
		if e.Type == event.TypeAlertConfirmed && e.ActorID >= 0 {
			confirmed[e.ActorID] = struct{}{}
			if _, ok := firstConf[e.ActorID]; !ok {
				firstConf[e.ActorID] = e.Step
			}
		}
	}

	m := RunMetrics{
		NumActors:          len(actors),
		NumMaliciousActors: len(malicious),
	}

	// Actor-level confusion counts. A confirmation of a benign actor is a
	// false positive even though the current monitor can never produce one;
	// external logs can. System-attributed confirmations (actor id < 0) name
	// no scorable actor and were dropped above.
	tp, fp, fn := 0, 0, 0
	for a := range confirmed {
		if _, ok := malicious[a]; ok {
			tp++
		} else {
			fp++
		}
	}
	for a := range malicious {
		if _, ok := confirmed[a]; !ok {
			fn++
		}
	}
	if tp+fp > 0 {
		m.Precision = float64(tp) / float64(tp+fp)
	}
	if tp+fn > 0 {
		m.Recall = float64(tp) / float64(tp+fn)
	}
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}

	// Mean TTD averages first-confirmation minus first-malicious-action per
	// actor, over actors that were both observed and confirmed. Unconfirmed
	// actors do not censor this metric; the impact-weighted variant covers
	// that.
	var ttdSum, ttdCount int
	for a, start := range firstMal {
		if conf, ok := firstConf[a]; ok {
			ttdSum += conf - start
			ttdCount++
		}
	}
	if ttdCount > 0 {
		v := float64(ttdSum) / float64(ttdCount)
		m.MeanTTD = &v
	}

	states := serviceStates(test, service)
	m.SDP, m.AvgDegradedMode = ServiceDisruption(degradedFlags(states))
	severityByCause := maxSeverityByCause(states)

	// Impact-weighted TTD. Weight is the actor's peak observed blame
	// severity when the twin ever blamed it, even if that peak is 0;
	// otherwise the scenario's assumed impact. Actors never confirmed are
	// censored at the last test step. Summation order is fixed so the
	// result is bit-identical across runs.
	var iwNum, iwDen float64
	for _, a := range sortedIDs(malicious) {
		start, ok := firstMal[a]
		if !ok {
			continue
		}
		w, ok := severityByCause[a]
		if !ok {
			w = UnknownScenarioImpact
			if imp, ok := ScenarioImpact[scenarioByActor[a]]; ok {
				w = imp
			}
		}
		ttd := lastTestStep - start
		if conf, ok := firstConf[a]; ok {
			ttd = conf - start
		}
		iwNum += w * float64(ttd)
		iwDen += w
	}
	if iwDen > 0 {
		v := iwNum / iwDen
		m.ImpactWeightedTTD = &v
	}

	return m
}

// FilterTest returns the test-phase subset of events, preserving order.
func FilterTest(events []event.Event) []event.Event {
	var out []event.Event
	for _, e := range events {
		if e.Phase == event.PhaseTest {
			out = append(out, e)
		}
	}
	return out
}

// ServiceDisruption computes the service disruption probability and the
// average degraded-mode duration from a step-ordered sequence of degraded
// flags.
//
// SDP is 1 if the service was degraded on any snapshot, else 0. The average
// duration is the mean length, in steps, of maximal runs of consecutive
// degraded snapshots, 0 when the service never degraded.
func ServiceDisruption(degraded []bool) (sdp, avgDuration float64) {
	var durations []int
	run := 0
	for _, d := range degraded {
		if d {
			run++
			continue
		}
		if run > 0 {
			durations = append(durations, run)
			run = 0
		}
	}
	if run > 0 {
		durations = append(durations, run)
	}
	if len(durations) == 0 {
		return 0, 0
	}
	total := 0
	for _, d := range durations {
		total += d
	}
	return 1, float64(total) / float64(len(durations))
}

// serviceStates extracts the twin snapshots of one service, sorted by step.
// The sort is stable so same-step snapshots keep their emission order.
func serviceStates(events []event.Event, service string) []event.Event {
	var states []event.Event
	for _, e := range events {
		if e.Type != event.TypeCPSState || e.ServiceState == nil {
			continue
		}
		if e.ServiceState.Service == service {
			states = append(states, e)
		}
	}
	sort.SliceStable(states, func(i, j int) bool { return states[i].Step < states[j].Step })
	return states
}

func sortedIDs(set map[int]struct{}) []int {
	ids := make([]int, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func degradedFlags(states []event.Event) []bool {
	flags := make([]bool, len(states))
	for i, e := range states {
		flags[i] = e.ServiceState.Degraded
	}
	return flags
}

// maxSeverityByCause returns the peak snapshot severity attributed to each
// blamed actor. Presence in the result means the twin blamed the actor at
// least once; the value may be 0.
func maxSeverityByCause(states []event.Event) map[int]float64 {
	out := make(map[int]float64)
	for _, e := range states {
		cause := e.ServiceState.CauseActorID
		if cause == nil {
			continue
		}
		if sev, ok := out[*cause]; !ok || e.ServiceState.Severity > sev {
			out[*cause] = e.ServiceState.Severity
		}
	}
	return out
}
