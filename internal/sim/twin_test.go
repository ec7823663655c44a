package sim

import (
	"math"
	"testing"

	"insidersim/internal/event"
)

func cmdEvent(actorID int, cmd string, inc *float64) event.Event {
	return event.Event{
		Type:     event.TypeCPSCommand,
		ActorID:  actorID,
		Resource: ServiceResource,
		Action:   cmd,
		Command:  &event.CommandPayload{Service: ServiceName, Cmd: cmd, SeverityInc: inc},
	}
}

func sev(v float64) *float64 { return &v }

func TestServiceTwin_HealthySnapshot(t *testing.T) {
	tw := NewServiceTwin(DefaultDegradeThreshold)
	snap := tw.Step(0, nil)

	if snap.Type != event.TypeCPSState || snap.ActorID != event.SystemActor {
		t.Fatalf("unexpected snapshot identity: %+v", snap)
	}
	st := snap.ServiceState
	if st == nil {
		t.Fatal("snapshot missing service state payload")
	}
	if st.Severity != 0 || st.Degraded || st.CauseActorID != nil {
		t.Errorf("healthy twin snapshot = %+v, want zero severity, not degraded, no cause", st)
	}
}

func TestServiceTwin_DecayFloorsAtZero(t *testing.T) {
	tw := NewServiceTwin(DefaultDegradeThreshold)
	for step := 0; step < 10; step++ {
		snap := tw.Step(step, nil)
		if snap.ServiceState.Severity != 0 {
			t.Fatalf("step %d: severity %v, want 0", step, snap.ServiceState.Severity)
		}
	}
}

func TestServiceTwin_PushIsRatchet(t *testing.T) {
	tw := NewServiceTwin(DefaultDegradeThreshold)

	snap := tw.Step(0, []event.Event{cmdEvent(0, CmdPushTimingPlan, sev(0.85))})
	if got := snap.ServiceState.Severity; math.Abs(got-0.85) > 1e-9 {
		t.Fatalf("severity after push = %v, want 0.85", got)
	}
	if !snap.ServiceState.Degraded {
		t.Error("twin not degraded at severity 0.85")
	}

	// A weaker push cannot lower severity below decayed state.
	snap = tw.Step(1, []event.Event{cmdEvent(0, CmdPushTimingPlan, sev(0.3))})
	if got := snap.ServiceState.Severity; math.Abs(got-0.835) > 1e-9 {
		t.Errorf("severity after weak push = %v, want 0.835", got)
	}
}

func TestServiceTwin_TweakSaturatesAtOne(t *testing.T) {
	tw := NewServiceTwin(DefaultDegradeThreshold)
	tw.Step(0, []event.Event{cmdEvent(0, CmdPushTimingPlan, sev(0.98))})

	snap := tw.Step(1, []event.Event{cmdEvent(1, CmdTweakOffset, sev(0.1))})
	if got := snap.ServiceState.Severity; got != 1 {
		t.Errorf("severity after saturating tweak = %v, want 1", got)
	}
}

func TestServiceTwin_DefaultSeverityInc(t *testing.T) {
	tw := NewServiceTwin(DefaultDegradeThreshold)
	snap := tw.Step(0, []event.Event{cmdEvent(0, CmdPushTimingPlan, nil)})
	if got := snap.ServiceState.Severity; math.Abs(got-0.9) > 1e-9 {
		t.Errorf("push default severity = %v, want 0.9", got)
	}

	tw = NewServiceTwin(DefaultDegradeThreshold)
	snap = tw.Step(0, []event.Event{cmdEvent(1, CmdTweakOffset, nil)})
	if got := snap.ServiceState.Severity; math.Abs(got-0.03) > 1e-9 {
		t.Errorf("tweak default severity = %v, want 0.03", got)
	}
}

func TestServiceTwin_CauseAttribution(t *testing.T) {
	tw := NewServiceTwin(DefaultDegradeThreshold)

	// System-issued commands never take the blame.
	snap := tw.Step(0, []event.Event{cmdEvent(event.SystemActor, CmdPushTimingPlan, sev(0.5))})
	if snap.ServiceState.CauseActorID != nil {
		t.Fatalf("system push got cause %v, want none", *snap.ServiceState.CauseActorID)
	}

	snap = tw.Step(1, []event.Event{cmdEvent(2, CmdTweakOffset, sev(0.2))})
	if snap.ServiceState.CauseActorID == nil || *snap.ServiceState.CauseActorID != 2 {
		t.Fatalf("tweak by actor 2 got cause %v, want 2", snap.ServiceState.CauseActorID)
	}

	// Last writer wins.
	snap = tw.Step(2, []event.Event{
		cmdEvent(0, CmdPushTimingPlan, sev(0.85)),
		cmdEvent(1, CmdTweakOffset, sev(0.03)),
	})
	if snap.ServiceState.CauseActorID == nil || *snap.ServiceState.CauseActorID != 1 {
		t.Fatalf("got cause %v, want last writer 1", snap.ServiceState.CauseActorID)
	}
}

func TestServiceTwin_RollbackRelief(t *testing.T) {
	tw := NewServiceTwin(DefaultDegradeThreshold)
	tw.Step(0, []event.Event{cmdEvent(0, CmdPushTimingPlan, sev(0.9))})

	// Each rollback takes 0.3 on top of decay. Cause survives until
	// severity drops below the degrade threshold.
	want := 0.9
	step := 1
	for want >= DefaultDegradeThreshold {
		want = math.Max(0, want-severityDecay-rollbackRelief)
		snap := tw.Step(step, []event.Event{cmdEvent(event.SystemActor, CmdRollbackPlan, nil)})
		if got := snap.ServiceState.Severity; math.Abs(got-roundSeverity(want)) > 1e-9 {
			t.Fatalf("step %d: severity %v, want %v", step, got, roundSeverity(want))
		}
		if want >= DefaultDegradeThreshold {
			if snap.ServiceState.CauseActorID == nil {
				t.Fatalf("step %d: cause cleared while still degraded", step)
			}
		} else if snap.ServiceState.CauseActorID != nil {
			t.Fatalf("step %d: cause %v survived recovery", step, *snap.ServiceState.CauseActorID)
		}
		step++
	}
}

func TestServiceTwin_SnapshotRoundedToFourDecimals(t *testing.T) {
	tw := NewServiceTwin(DefaultDegradeThreshold)
	third := 1.0 / 3.0
	snap := tw.Step(0, []event.Event{cmdEvent(0, CmdTweakOffset, sev(third))})

	if got := snap.ServiceState.Severity; got != 0.3333 {
		t.Errorf("snapshot severity = %v, want 0.3333", got)
	}
	if got := tw.Severity(); math.Abs(got-third) > 1e-12 {
		t.Errorf("internal severity = %v, want exact %v", got, third)
	}
}

func TestServiceTwin_OutOfRangePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("twin accepted severity above 1 without panicking")
		}
	}()
	tw := NewServiceTwin(DefaultDegradeThreshold)
	tw.Step(0, []event.Event{cmdEvent(0, CmdPushTimingPlan, sev(1.5))})
}

func TestServiceTwin_IgnoresNonCommands(t *testing.T) {
	tw := NewServiceTwin(DefaultDegradeThreshold)
	snap := tw.Step(0, []event.Event{
		{Type: event.TypeAuth, ActorID: 6, Resource: "vpn", Action: "login", Label: event.LabelBenign},
		{Type: event.TypeCPSCommand, ActorID: 0, Action: CmdPushTimingPlan}, // no payload
	})
	if got := snap.ServiceState.Severity; got != 0 {
		t.Errorf("severity = %v, want 0 for non-commands", got)
	}
}
