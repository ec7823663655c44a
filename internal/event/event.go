// Package event defines the simulation event record and its JSONL wire
// encoding. Every actor action, twin state snapshot, monitor confirmation
// and synthetic command in a run is one Event.
package event

import (
	"encoding/json"
	"fmt"
)

// Type identifies the kind of activity an event records.
type Type string

const (
	TypeAuth           Type = "auth"
	TypeDBQuery        Type = "db_query"
	TypeFileAccess     Type = "file_access"
	TypeNetwork        Type = "network"
	TypeEmail          Type = "email"
	TypeCPSCommand     Type = "cps_command"
	TypeCPSState       Type = "cps_service_state"
	TypeAlertConfirmed Type = "alert_confirmed"
)

// Label marks ground truth: whether the event was produced by a malicious
// actor. Monitor confirmations and twin snapshots are benign regardless of
// what they report.
type Label string

const (
	LabelBenign    Label = "benign"
	LabelMalicious Label = "malicious"
)

// Phase tags an event as warmup or scoring traffic.
type Phase string

const (
	PhaseTrain Phase = "train"
	PhaseTest  Phase = "test"
)

// Scenario identifies a malicious behavior profile.
type Scenario string

const (
	ScenarioAcctTakeover Scenario = "acct_takeover"
	ScenarioStealth      Scenario = "stealth"
	ScenarioStagingExfil Scenario = "staging_exfil"
	ScenarioExfil        Scenario = "exfil"
	ScenarioEmailOnly    Scenario = "email_only"
)

// SystemActor is the actor id carried by twin- and system-originated
// events. Actor ids ≥ 0 belong to simulated people.
const SystemActor = -1

// CommandPayload is the structured payload of cps_command events.
type CommandPayload struct {
	Service     string   `json:"service,omitempty"`
	Cmd         string   `json:"cmd"`
	SeverityInc *float64 `json:"severity_inc,omitempty"`
	Unsafe      bool     `json:"unsafe,omitempty"`
}

// ServiceStatePayload is the structured payload of cps_service_state
// events. CauseActorID is nil when no actor is currently blamed for the
// service's condition; the key is always present on the wire.
type ServiceStatePayload struct {
	Service      string  `json:"service"`
	Degraded     bool    `json:"degraded"`
	Severity     float64 `json:"severity"`
	CauseActorID *int    `json:"cause_actor_id"`
}

// Event is one record of a simulation log. Records are append-only: once
// emitted an event is never modified.
//
// At most one of Command, ServiceState and Extra is set, selected by Type.
// All three fold into the single "meta" object on the wire.
type Event struct {
	Step     int
	Type     Type
	ActorID  int
	Resource string
	Action   string
	Label    Label
	Scenario Scenario
	Phase    Phase

	Command      *CommandPayload
	ServiceState *ServiceStatePayload
	Extra        map[string]any
}

// MaliciousActor reports whether the event is a malicious action by a real
// actor, the condition the monitor and the evaluator count.
func (e Event) MaliciousActor() bool {
	return e.Label == LabelMalicious && e.ActorID >= 0
}

// wireEvent is the JSON shape of an Event. The typed payload union is
// carried as a raw "meta" object.
type wireEvent struct {
	Step     int             `json:"step"`
	Type     Type            `json:"event_type"`
	ActorID  int             `json:"actor_id"`
	Resource string          `json:"resource"`
	Action   string          `json:"action"`
	Label    Label           `json:"label"`
	Scenario Scenario        `json:"scenario,omitempty"`
	Phase    Phase           `json:"phase,omitempty"`
	Meta     json.RawMessage `json:"meta,omitempty"`
}

// MetaJSON encodes the event's payload as the wire "meta" object. It
// returns nil for events that carry no payload.
func (e Event) MetaJSON() ([]byte, error) {
	switch {
	case e.Command != nil:
		return json.Marshal(e.Command)
	case e.ServiceState != nil:
		return json.Marshal(e.ServiceState)
	case len(e.Extra) > 0:
		return json.Marshal(e.Extra)
	}
	return nil, nil
}

// ApplyMetaJSON decodes a wire "meta" object into the payload field
// selected by the event's Type. Type must be set before calling. Empty or
// null input clears all payload fields.
func (e *Event) ApplyMetaJSON(data []byte) error {
	e.Command = nil
	e.ServiceState = nil
	e.Extra = nil
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	switch e.Type {
	case TypeCPSCommand:
		var p CommandPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("decode command payload: %w", err)
		}
		e.Command = &p
	case TypeCPSState:
		var p ServiceStatePayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("decode service state payload: %w", err)
		}
		e.ServiceState = &p
	default:
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			return fmt.Errorf("decode meta: %w", err)
		}
		if len(m) > 0 {
			e.Extra = m
		}
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (e Event) MarshalJSON() ([]byte, error) {
	meta, err := e.MetaJSON()
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireEvent{
		Step:     e.Step,
		Type:     e.Type,
		ActorID:  e.ActorID,
		Resource: e.Resource,
		Action:   e.Action,
		Label:    e.Label,
		Scenario: e.Scenario,
		Phase:    e.Phase,
		Meta:     meta,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Event) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	e.Step = w.Step
	e.Type = w.Type
	e.ActorID = w.ActorID
	e.Resource = w.Resource
	e.Action = w.Action
	e.Label = w.Label
	e.Scenario = w.Scenario
	e.Phase = w.Phase
	return e.ApplyMetaJSON(w.Meta)
}
