package sim

import (
	"math/rand"

	"insidersim/internal/event"
)

// Actor is one scripted insider following a fixed scenario.
type Actor struct {
	ID       int
	Scenario event.Scenario
}

// actionRule is one Bernoulli row of a scenario table. Rules fire
// independently of each other; within a step they are drawn in declared
// order.
type actionRule struct {
	p        float64
	typ      event.Type
	resource string
	action   string
	command  *commandSpec
}

// commandSpec describes the cps_command payload a rule emits.
type commandSpec struct {
	cmd         string
	severityInc float64
	unsafe      bool
}

// scenarioRules holds every scenario's behavior table. The probabilities
// and payload values are part of the reproducibility contract: changing
// any of them changes every digest downstream.
var scenarioRules = map[event.Scenario][]actionRule{
	event.ScenarioAcctTakeover: {
		{p: 0.20, typ: event.TypeAuth, resource: "admin_console", action: "after_hours_login"},
		{p: 0.12, typ: event.TypeCPSCommand, resource: ServiceResource, action: CmdPushTimingPlan,
			command: &commandSpec{cmd: CmdPushTimingPlan, severityInc: 0.85, unsafe: true}},
	},
	event.ScenarioStealth: {
		{p: 0.07, typ: event.TypeDBQuery, resource: "citizen_db", action: "suspicious_query"},
		{p: 0.10, typ: event.TypeCPSCommand, resource: ServiceResource, action: CmdTweakOffset,
			command: &commandSpec{cmd: CmdTweakOffset, severityInc: 0.03}},
	},
	event.ScenarioStagingExfil: {
		{p: 0.09, typ: event.TypeFileAccess, resource: "share", action: "zip_batch"},
	},
	event.ScenarioExfil: {
		{p: 0.11, typ: event.TypeNetwork, resource: "egress", action: "bulk_upload"},
	},
	event.ScenarioEmailOnly: {
		{p: 0.08, typ: event.TypeEmail, resource: "mail", action: "phish_send"},
	},
}

// actorScenarios assigns scenarios to malicious actor ids in order.
var actorScenarios = []event.Scenario{
	event.ScenarioAcctTakeover,
	event.ScenarioStealth,
	event.ScenarioStagingExfil,
	event.ScenarioExfil,
	event.ScenarioEmailOnly,
}

// Act draws the actor's scenario table once for the given step. Every rule
// consumes exactly one draw from rng whether or not it fires.
func (a Actor) Act(step int, rng *rand.Rand) []event.Event {
	var out []event.Event
	for _, r := range scenarioRules[a.Scenario] {
		if rng.Float64() >= r.p {
			continue
		}
		e := event.Event{
			Step:     step,
			Type:     r.typ,
			ActorID:  a.ID,
			Resource: r.resource,
			Action:   r.action,
			Label:    event.LabelMalicious,
			Scenario: a.Scenario,
		}
		if r.command != nil {
			inc := r.command.severityInc
			e.Command = &event.CommandPayload{
				Service:     ServiceName,
				Cmd:         r.command.cmd,
				SeverityInc: &inc,
				Unsafe:      r.command.unsafe,
			}
		}
		out = append(out, e)
	}
	return out
}
