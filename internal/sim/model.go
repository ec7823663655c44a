package sim

import (
	"context"
	"math/rand"

	"insidersim/internal/event"
)

// Config holds the parameters of one run.
type Config struct {
	Seed                  int64
	WarmupSteps           int
	TestSteps             int
	ConfirmationThreshold int
	DegradeThreshold      float64
}

// DefaultConfig returns the standard run parameters with a zero seed.
func DefaultConfig() Config {
	return Config{
		WarmupSteps:           DefaultWarmupSteps,
		TestSteps:             DefaultTestSteps,
		ConfirmationThreshold: DefaultConfirmationThreshold,
		DegradeThreshold:      DefaultDegradeThreshold,
	}
}

// benignPool is the fixed set of background actor ids.
var benignPool = []int{5, 6, 7, 8, 9, 10, 11}

// benignLoginProb is each background actor's per-step login probability.
const benignLoginProb = 0.2

// Model orchestrates one run: background noise, actor actions, the twin
// update, the monitor pass and the synthetic rollback, in that order, step
// after step.
type Model struct {
	cfg     Config
	rng     *rand.Rand
	actors  []Actor
	twin    *ServiceTwin
	monitor AlertMonitor

	step  int
	log   []event.Event
	carry []event.Event
}

// NewModel builds a run from cfg. Equal configs always produce equal logs.
func NewModel(cfg Config) *Model {
	actors := make([]Actor, len(actorScenarios))
	for i, s := range actorScenarios {
		actors[i] = Actor{ID: i, Scenario: s}
	}
	return &Model{
		cfg:     cfg,
		rng:     rand.New(rand.NewSource(cfg.Seed)),
		actors:  actors,
		twin:    NewServiceTwin(cfg.DegradeThreshold),
		monitor: AlertMonitor{Threshold: cfg.ConfirmationThreshold},
	}
}

// Run executes warmup plus test steps and returns the finished log. ctx is
// checked between steps; a canceled run returns the context's error and no
// partial log.
func (m *Model) Run(ctx context.Context) ([]event.Event, error) {
	total := m.cfg.WarmupSteps + m.cfg.TestSteps
	for m.step = 0; m.step < total; m.step++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m.runStep()
	}
	return m.log, nil
}

func (m *Model) runStep() {
	var buf []event.Event

	// Background noise first, fixed id order.
	for _, id := range benignPool {
		if m.rng.Float64() < benignLoginProb {
			buf = append(buf, event.Event{
				Step:     m.step,
				Type:     event.TypeAuth,
				ActorID:  id,
				Resource: "vpn",
				Action:   "login",
				Label:    event.LabelBenign,
			})
		}
	}

	// Malicious actors in id order. The draw order is part of the
	// reproducibility contract.
	for _, a := range m.actors {
		buf = append(buf, a.Act(m.step, m.rng)...)
	}

	// The twin sees last step's late rollback ahead of this step's
	// commands.
	state := m.twin.Step(m.step, append(m.carry, buf...))
	m.carry = nil
	buf = append(buf, state)

	confirmed := m.monitor.Confirmed(m.log, buf)
	for _, id := range confirmed {
		buf = append(buf, event.Event{
			Step:     m.step,
			Type:     event.TypeAlertConfirmed,
			ActorID:  id,
			Resource: "siem",
			Action:   "confirm",
			Label:    event.LabelBenign,
		})
	}

	// The rollback lands after the twin already ran, so it takes effect on
	// the next step's update. The one-step lag is deliberate.
	if len(confirmed) > 0 {
		rb := event.Event{
			Step:     m.step,
			Type:     event.TypeCPSCommand,
			ActorID:  event.SystemActor,
			Resource: ServiceResource,
			Action:   CmdRollbackPlan,
			Label:    event.LabelBenign,
			Command:  &event.CommandPayload{Service: ServiceName, Cmd: CmdRollbackPlan},
		}
		buf = append(buf, rb)
		m.carry = []event.Event{rb}
	}

	phase := event.PhaseTrain
	if m.step >= m.cfg.WarmupSteps {
		phase = event.PhaseTest
	}
	for i := range buf {
		buf[i].Phase = phase
	}
	m.log = append(m.log, buf...)
}
