package sim

import (
	"context"
	"errors"
	"math"
	"reflect"
	"sort"
	"testing"

	"insidersim/internal/event"
)

func runModel(t *testing.T, cfg Config) []event.Event {
	t.Helper()
	log, err := NewModel(cfg).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return log
}

func stepsWith(log []event.Event, match func(event.Event) bool) []int {
	seen := make(map[int]struct{})
	for _, e := range log {
		if match(e) {
			seen[e.Step] = struct{}{}
		}
	}
	steps := make([]int, 0, len(seen))
	for s := range seen {
		steps = append(steps, s)
	}
	sort.Ints(steps)
	return steps
}

func TestModel_Deterministic(t *testing.T) {
	cfg := Config{Seed: 42, WarmupSteps: 20, TestSteps: 80, ConfirmationThreshold: 3, DegradeThreshold: 0.25}

	a := runModel(t, cfg)
	b := runModel(t, cfg)
	if !reflect.DeepEqual(a, b) {
		t.Fatal("two runs with the same config differ")
	}

	da, err := event.Digest(a)
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	db, err := event.Digest(b)
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	if da != db {
		t.Errorf("digests differ: %s vs %s", da, db)
	}
}

func TestModel_SeedChangesLog(t *testing.T) {
	cfg := Config{Seed: 1, WarmupSteps: 20, TestSteps: 80, ConfirmationThreshold: 3, DegradeThreshold: 0.25}
	a := runModel(t, cfg)

	cfg.Seed = 2
	b := runModel(t, cfg)
	if reflect.DeepEqual(a, b) {
		t.Error("different seeds produced identical logs")
	}
}

func TestModel_StepCountAndPhases(t *testing.T) {
	cfg := Config{Seed: 7, WarmupSteps: 10, TestSteps: 50, ConfirmationThreshold: 3, DegradeThreshold: 0.25}
	log := runModel(t, cfg)

	snapshots := 0
	maxStep := -1
	for _, e := range log {
		if e.Step > maxStep {
			maxStep = e.Step
		}
		if e.Type == event.TypeCPSState {
			snapshots++
		}
		wantPhase := event.PhaseTrain
		if e.Step >= cfg.WarmupSteps {
			wantPhase = event.PhaseTest
		}
		if e.Phase != wantPhase {
			t.Fatalf("step %d tagged %q, want %q", e.Step, e.Phase, wantPhase)
		}
	}
	if snapshots != 60 {
		t.Errorf("snapshots = %d, want one per step (60)", snapshots)
	}
	if maxStep != 59 {
		t.Errorf("last step = %d, want 59", maxStep)
	}
}

func TestModel_SeverityAlwaysInRange(t *testing.T) {
	log := runModel(t, Config{Seed: 11, WarmupSteps: 60, TestSteps: 240, ConfirmationThreshold: 4, DegradeThreshold: 0.25})

	for _, e := range log {
		if e.Type != event.TypeCPSState {
			continue
		}
		s := e.ServiceState.Severity
		if s < 0 || s > 1 {
			t.Fatalf("step %d: severity %v out of [0,1]", e.Step, s)
		}
		if scaled := s * 1e4; math.Abs(scaled-math.Round(scaled)) > 1e-6 {
			t.Fatalf("step %d: severity %v not rounded to 4 decimals", e.Step, s)
		}
	}
}

func TestModel_ConfirmationsGrowMonotonically(t *testing.T) {
	log := runModel(t, Config{Seed: 5, WarmupSteps: 10, TestSteps: 120, ConfirmationThreshold: 2, DegradeThreshold: 0.25})

	perStep := make(map[int][]int)
	for _, e := range log {
		if e.Type == event.TypeAlertConfirmed {
			perStep[e.Step] = append(perStep[e.Step], e.ActorID)
		}
	}
	if len(perStep) == 0 {
		t.Fatal("threshold 2 never confirmed over 130 steps")
	}

	steps := make([]int, 0, len(perStep))
	for s := range perStep {
		steps = append(steps, s)
	}
	sort.Ints(steps)

	// A confirmed actor stays confirmed on every following step, emission
	// order ascending by id.
	var prev []int
	for _, s := range steps {
		ids := perStep[s]
		if !sort.IntsAreSorted(ids) {
			t.Fatalf("step %d: confirmations out of order: %v", s, ids)
		}
		set := make(map[int]struct{}, len(ids))
		for _, id := range ids {
			set[id] = struct{}{}
		}
		for _, id := range prev {
			if _, ok := set[id]; !ok {
				t.Fatalf("step %d: actor %d dropped from confirmed set", s, id)
			}
		}
		prev = ids
	}

	// Once the first confirmation fires, every following step replays it.
	first, last := steps[0], steps[len(steps)-1]
	if want := last - first + 1; len(steps) != want {
		t.Errorf("confirmation steps = %d, want every step from %d through %d", len(steps), first, last)
	}
}

func TestModel_UnreachableThresholdStaysQuiet(t *testing.T) {
	log := runModel(t, Config{Seed: 3, WarmupSteps: 30, TestSteps: 200, ConfirmationThreshold: 6, DegradeThreshold: 0.25})

	for _, e := range log {
		if e.Type == event.TypeAlertConfirmed {
			t.Fatalf("step %d: confirmation with only 5 possible actors and threshold 6", e.Step)
		}
		if e.Type == event.TypeCPSCommand && e.ActorID == event.SystemActor {
			t.Fatalf("step %d: synthetic rollback without any confirmation", e.Step)
		}
	}
}

func TestModel_RollbackPairsWithConfirmations(t *testing.T) {
	log := runModel(t, Config{Seed: 9, WarmupSteps: 10, TestSteps: 150, ConfirmationThreshold: 2, DegradeThreshold: 0.25})

	confirmSteps := stepsWith(log, func(e event.Event) bool {
		return e.Type == event.TypeAlertConfirmed
	})
	rollbackSteps := stepsWith(log, func(e event.Event) bool {
		return e.Type == event.TypeCPSCommand && e.ActorID == event.SystemActor && e.Action == CmdRollbackPlan
	})

	if len(confirmSteps) == 0 {
		t.Fatal("no confirmations to pair against")
	}
	if !reflect.DeepEqual(confirmSteps, rollbackSteps) {
		t.Errorf("rollback steps %v do not match confirmation steps %v", rollbackSteps, confirmSteps)
	}

	// Exactly one rollback per confirming step.
	count := make(map[int]int)
	for _, e := range log {
		if e.Type == event.TypeCPSCommand && e.ActorID == event.SystemActor {
			count[e.Step]++
		}
	}
	for s, n := range count {
		if n != 1 {
			t.Errorf("step %d: %d rollbacks, want 1", s, n)
		}
	}
}

func TestModel_RollbackTakesEffectNextStep(t *testing.T) {
	log := runModel(t, Config{Seed: 3, WarmupSteps: 0, TestSteps: 400, ConfirmationThreshold: 1, DegradeThreshold: 0.25})

	severity := make(map[int]float64)
	rollbackAt := make(map[int]bool)
	actorCmdAt := make(map[int]bool)
	for _, e := range log {
		switch e.Type {
		case event.TypeCPSState:
			severity[e.Step] = e.ServiceState.Severity
		case event.TypeCPSCommand:
			if e.ActorID == event.SystemActor {
				rollbackAt[e.Step] = true
			} else {
				actorCmdAt[e.Step] = true
			}
		}
	}

	// Find a rollback step whose following step has no actor commands and
	// check the relief landed one step late. A rollback emitted at the
	// following step only affects the step after it, so it does not
	// disqualify the pair. Snapshot rounding allows 1e-4 slop.
	checked := 0
	for s := range rollbackAt {
		next := s + 1
		if actorCmdAt[next] {
			continue
		}
		cur, ok := severity[s]
		if !ok {
			continue
		}
		want := math.Max(0, cur-severityDecay-rollbackRelief)
		got, ok := severity[next]
		if !ok {
			continue
		}
		if math.Abs(got-want) > 2e-4 {
			t.Fatalf("step %d→%d: severity %v → %v, want relief to %v", s, next, cur, got, want)
		}
		checked++
	}
	if checked == 0 {
		t.Fatal("no rollback step followed by a quiet step in 400 steps")
	}
}

func TestModel_ActorAssignmentsAndService(t *testing.T) {
	log := runModel(t, Config{Seed: 7, WarmupSteps: 10, TestSteps: 50, ConfirmationThreshold: 3, DegradeThreshold: 0.25})

	scenarios := map[int]event.Scenario{
		0: event.ScenarioAcctTakeover,
		1: event.ScenarioStealth,
		2: event.ScenarioStagingExfil,
		3: event.ScenarioExfil,
		4: event.ScenarioEmailOnly,
	}

	sawMalicious := false
	for _, e := range log {
		switch {
		case e.Label == event.LabelMalicious:
			sawMalicious = true
			want, ok := scenarios[e.ActorID]
			if !ok {
				t.Fatalf("step %d: malicious event from actor %d outside 0..4", e.Step, e.ActorID)
			}
			if e.Scenario != want {
				t.Fatalf("step %d: actor %d tagged %q, want %q", e.Step, e.ActorID, e.Scenario, want)
			}
		case e.Type == event.TypeAuth && e.Action == "login":
			if e.ActorID < 5 || e.ActorID > 11 {
				t.Fatalf("step %d: benign login from actor %d outside the noise pool", e.Step, e.ActorID)
			}
		case e.Type == event.TypeCPSState:
			if e.ServiceState.Service != ServiceName {
				t.Fatalf("step %d: snapshot for service %q, want %q", e.Step, e.ServiceState.Service, ServiceName)
			}
		}
	}
	if !sawMalicious {
		t.Error("no malicious activity in 60 steps")
	}
}

func TestModel_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	log, err := NewModel(DefaultConfig()).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run on canceled context: err = %v, want context.Canceled", err)
	}
	if log != nil {
		t.Errorf("canceled run returned %d events, want none", len(log))
	}
}

func TestModel_DefaultConfigShape(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Seed = 7
	log := runModel(t, cfg)

	maxStep := -1
	for _, e := range log {
		if e.Step > maxStep {
			maxStep = e.Step
		}
	}
	if want := DefaultWarmupSteps + DefaultTestSteps - 1; maxStep != want {
		t.Errorf("last step = %d, want %d", maxStep, want)
	}
}
