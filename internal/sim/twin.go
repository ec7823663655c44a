package sim

import (
	"fmt"
	"math"

	"insidersim/internal/event"
)

// Per-step twin dynamics.
const (
	severityDecay  = 0.015
	rollbackRelief = 0.3

	defaultPushSeverity  = 0.9
	defaultTweakSeverity = 0.03
)

// ServiceTwin models the controlled service's degradation severity as a
// function of the commands it receives. Severity lives in [0,1]; snapshots
// round it to 4 decimals while the internal state keeps the exact value.
type ServiceTwin struct {
	service          string
	resource         string
	degradeThreshold float64

	severity float64
	cause    *int
}

// NewServiceTwin returns a healthy twin of the traffic service.
func NewServiceTwin(degradeThreshold float64) *ServiceTwin {
	return &ServiceTwin{
		service:          ServiceName,
		resource:         ServiceResource,
		degradeThreshold: degradeThreshold,
	}
}

// Severity returns the current unrounded severity.
func (t *ServiceTwin) Severity() float64 { return t.severity }

// Degraded reports whether severity is at or above the degrade threshold.
func (t *ServiceTwin) Degraded() bool { return t.severity >= t.degradeThreshold }

// Step applies decay, then the given cps_command events in order, and
// returns the state snapshot for this step. Non-command events in the
// slice are ignored.
func (t *ServiceTwin) Step(step int, commands []event.Event) event.Event {
	t.severity = math.Max(0, t.severity-severityDecay)

	for i := range commands {
		e := &commands[i]
		if e.Type != event.TypeCPSCommand || e.Command == nil {
			continue
		}
		switch e.Command.Cmd {
		case CmdPushTimingPlan:
			inc := defaultPushSeverity
			if e.Command.SeverityInc != nil {
				inc = *e.Command.SeverityInc
			}
			t.severity = math.Max(t.severity, inc)
			t.blame(e.ActorID)
		case CmdTweakOffset:
			inc := defaultTweakSeverity
			if e.Command.SeverityInc != nil {
				inc = *e.Command.SeverityInc
			}
			t.severity = math.Min(1, t.severity+inc)
			t.blame(e.ActorID)
		case CmdRollbackPlan:
			t.severity = math.Max(0, t.severity-rollbackRelief)
			if t.severity < t.degradeThreshold {
				t.cause = nil
			}
		}
	}

	if t.severity < 0 || t.severity > 1 {
		panic(fmt.Sprintf("sim: twin severity %v out of [0,1]", t.severity))
	}

	var cause *int
	if t.cause != nil {
		id := *t.cause
		cause = &id
	}
	return event.Event{
		Step:     step,
		Type:     event.TypeCPSState,
		ActorID:  event.SystemActor,
		Resource: t.resource,
		Action:   "service_state",
		Label:    event.LabelBenign,
		ServiceState: &event.ServiceStatePayload{
			Service:      t.service,
			Degraded:     t.Degraded(),
			Severity:     roundSeverity(t.severity),
			CauseActorID: cause,
		},
	}
}

// blame records the last real actor whose command moved severity. System
// commands (actor id < 0) never take the blame.
func (t *ServiceTwin) blame(actorID int) {
	if actorID >= 0 {
		id := actorID
		t.cause = &id
	}
}

func roundSeverity(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
