package sim

import (
	"reflect"
	"testing"

	"insidersim/internal/event"
)

func malEvent(step, actorID int) event.Event {
	return event.Event{
		Step: step, Type: event.TypeEmail, ActorID: actorID,
		Resource: "mail", Action: "phish_send", Label: event.LabelMalicious,
	}
}

func TestAlertMonitor_BelowThreshold(t *testing.T) {
	m := AlertMonitor{Threshold: 3}
	log := []event.Event{malEvent(0, 0), malEvent(1, 1)}

	if got := m.Confirmed(log, nil); got != nil {
		t.Errorf("Confirmed = %v with 2 of 3 actors, want nil", got)
	}
}

func TestAlertMonitor_CountsActorsNotEvents(t *testing.T) {
	m := AlertMonitor{Threshold: 2}

	// One noisy actor does not cross a two-actor threshold.
	log := []event.Event{malEvent(0, 4), malEvent(1, 4), malEvent(2, 4), malEvent(3, 4)}
	if got := m.Confirmed(log, nil); got != nil {
		t.Errorf("Confirmed = %v for a single actor, want nil", got)
	}

	log = append(log, malEvent(4, 1))
	want := []int{1, 4}
	if got := m.Confirmed(log, nil); !reflect.DeepEqual(got, want) {
		t.Errorf("Confirmed = %v, want %v", got, want)
	}
}

func TestAlertMonitor_IgnoresBenignAndSystem(t *testing.T) {
	m := AlertMonitor{Threshold: 1}
	log := []event.Event{
		{Step: 0, Type: event.TypeAuth, ActorID: 6, Resource: "vpn", Action: "login", Label: event.LabelBenign},
		{Step: 0, Type: event.TypeCPSCommand, ActorID: event.SystemActor, Action: CmdRollbackPlan, Label: event.LabelMalicious},
	}
	if got := m.Confirmed(log, nil); got != nil {
		t.Errorf("Confirmed = %v, want nil for benign/system-only log", got)
	}
}

func TestAlertMonitor_CumulativeAcrossLogAndBuffer(t *testing.T) {
	m := AlertMonitor{Threshold: 2}
	log := []event.Event{malEvent(0, 3)}
	buf := []event.Event{malEvent(5, 0)}

	want := []int{0, 3}
	if got := m.Confirmed(log, buf); !reflect.DeepEqual(got, want) {
		t.Errorf("Confirmed = %v, want %v", got, want)
	}
}

func TestAlertMonitor_SortedOutput(t *testing.T) {
	m := AlertMonitor{Threshold: 3}
	log := []event.Event{malEvent(0, 4), malEvent(1, 0), malEvent(2, 2)}

	want := []int{0, 2, 4}
	if got := m.Confirmed(log, nil); !reflect.DeepEqual(got, want) {
		t.Errorf("Confirmed = %v, want ascending %v", got, want)
	}
}
