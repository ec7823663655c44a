// Package sim implements the deterministic insider-threat simulation. Five
// scripted malicious actors act over a shared event timeline while a digital
// twin of a traffic-control service absorbs their commands and a monitor
// watches the log for enough distinct offenders to confirm an incident.
//
// Every draw comes from a single seeded source, so a run is a pure function
// of its Config: same parameters, same log, same digest.
package sim

// Default run parameters.
const (
	DefaultWarmupSteps           = 60
	DefaultTestSteps             = 240
	DefaultConfirmationThreshold = 4
	DefaultDegradeThreshold      = 0.25
)

// The single controlled service and the corridor resource it operates on.
const (
	ServiceName     = "traffic"
	ServiceResource = "traffic_corridor_A"
)

// Control-plane commands understood by the service twin.
const (
	CmdPushTimingPlan = "PUSH_TIMING_PLAN"
	CmdTweakOffset    = "TWEAK_OFFSET"
	CmdRollbackPlan   = "ROLLBACK_PLAN"
)

// ModelInsider is the name the built-in model registers under.
const ModelInsider = "insider"
