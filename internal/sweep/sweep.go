// Package sweep runs the confirmation-threshold ablation: one independent
// simulation per (threshold, seed) pair, scored with package metrics and
// aggregated per threshold.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"insidersim/internal/metrics"
	"insidersim/internal/sim"
)

var (
	// ErrInvalidRange marks an empty threshold range (max below min).
	ErrInvalidRange = errors.New("invalid threshold range")
	// ErrInvalidConfig marks sweep parameters outside their domain.
	ErrInvalidConfig = errors.New("invalid sweep parameters")
)

// Params configures one sweep. The threshold range is inclusive on both
// ends; seeds run from 0 to NumSeeds-1.
type Params struct {
	Model            string
	ThresholdMin     int
	ThresholdMax     int
	NumSeeds         int
	WarmupSteps      int
	TestSteps        int
	DegradeThreshold float64
	Service          string

	// Workers bounds concurrent runs; 0 means one per CPU.
	Workers int

	// Logger receives per-run progress at debug level. Nil disables it.
	Logger *slog.Logger
}

// DefaultParams returns the standard ablation grid.
func DefaultParams() Params {
	return Params{
		Model:            sim.ModelInsider,
		ThresholdMin:     3,
		ThresholdMax:     7,
		NumSeeds:         10,
		WarmupSteps:      sim.DefaultWarmupSteps,
		TestSteps:        sim.DefaultTestSteps,
		DegradeThreshold: sim.DefaultDegradeThreshold,
		Service:          sim.ServiceName,
	}
}

// Validate reports the first parameter outside its domain.
func (p Params) Validate() error {
	if p.Model == "" {
		return fmt.Errorf("%w: model name is empty", ErrInvalidConfig)
	}
	if p.ThresholdMin < 1 {
		return fmt.Errorf("%w: threshold min %d, want >= 1", ErrInvalidConfig, p.ThresholdMin)
	}
	if p.ThresholdMax < p.ThresholdMin {
		return fmt.Errorf("%w: min %d, max %d", ErrInvalidRange, p.ThresholdMin, p.ThresholdMax)
	}
	if p.NumSeeds < 1 {
		return fmt.Errorf("%w: num seeds %d, want >= 1", ErrInvalidConfig, p.NumSeeds)
	}
	if p.WarmupSteps < 0 {
		return fmt.Errorf("%w: warmup steps %d, want >= 0", ErrInvalidConfig, p.WarmupSteps)
	}
	if p.TestSteps < 1 {
		return fmt.Errorf("%w: test steps %d, want >= 1", ErrInvalidConfig, p.TestSteps)
	}
	if p.DegradeThreshold <= 0 || p.DegradeThreshold > 1 {
		return fmt.Errorf("%w: degrade threshold %v, want in (0, 1]", ErrInvalidConfig, p.DegradeThreshold)
	}
	if p.Workers < 0 {
		return fmt.Errorf("%w: workers %d, want >= 0", ErrInvalidConfig, p.Workers)
	}
	return nil
}

func (p Params) runConfig(threshold, seed int) sim.Config {
	return sim.Config{
		Seed:                  int64(seed),
		WarmupSteps:           p.WarmupSteps,
		TestSteps:             p.TestSteps,
		ConfirmationThreshold: threshold,
		DegradeThreshold:      p.DegradeThreshold,
	}
}

// Row is the scorecard of a single (threshold, seed) run.
type Row struct {
	Threshold int
	Seed      int
	Metrics   metrics.RunMetrics
}

// Aggregate is the arithmetic mean of one threshold's rows across seeds.
// For the timing metrics, undefined per-run values are excluded from the
// mean; when no run defined a value the aggregate itself is nil.
type Aggregate struct {
	Threshold         int
	Precision         float64
	Recall            float64
	F1                float64
	MeanTTD           *float64
	ImpactWeightedTTD *float64
	SDP               float64
	AvgDegradedMode   float64
}

// Result holds every per-run scorecard plus the per-threshold aggregates,
// both ordered by threshold, then seed.
type Result struct {
	Rows       []Row
	Aggregates []Aggregate
}

// Run executes the grid. Runs are independent and execute on up to
// p.Workers goroutines; each writes into a preallocated slot so result
// order is deterministic regardless of scheduling. The first failed run
// cancels the rest.
func Run(ctx context.Context, p Params) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	// Resolve the model once up front so an unknown name fails the sweep
	// before any run starts.
	if _, err := sim.New(p.Model, p.runConfig(p.ThresholdMin, 0)); err != nil {
		return nil, err
	}

	workers := p.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	log := p.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	thresholds := p.ThresholdMax - p.ThresholdMin + 1
	rows := make([]Row, thresholds*p.NumSeeds)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for ti := 0; ti < thresholds; ti++ {
		for seed := 0; seed < p.NumSeeds; seed++ {
			seed := seed
			threshold := p.ThresholdMin + ti
			slot := ti*p.NumSeeds + seed
			g.Go(func() error {
				runner, err := sim.New(p.Model, p.runConfig(threshold, seed))
				if err != nil {
					return err
				}
				events, err := runner.Run(ctx)
				if err != nil {
					return fmt.Errorf("threshold %d seed %d: %w", threshold, seed, err)
				}
				rows[slot] = Row{
					Threshold: threshold,
					Seed:      seed,
					Metrics:   metrics.Evaluate(events, p.Service),
				}
				log.Debug("run scored",
					"threshold", threshold,
					"seed", seed,
					"events", len(events))
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{Rows: rows, Aggregates: AggregateRows(rows)}
	log.Info("sweep complete",
		"model", p.Model,
		"thresholds", thresholds,
		"seeds", p.NumSeeds,
		"runs", len(rows))
	return res, nil
}

// AggregateRows averages rows per threshold. Thresholds appear in first-seen
// row order, which for Run output is ascending.
func AggregateRows(rows []Row) []Aggregate {
	var order []int
	groups := make(map[int][]Row)
	for _, r := range rows {
		if _, ok := groups[r.Threshold]; !ok {
			order = append(order, r.Threshold)
		}
		groups[r.Threshold] = append(groups[r.Threshold], r)
	}

	aggs := make([]Aggregate, 0, len(order))
	for _, t := range order {
		group := groups[t]
		agg := Aggregate{Threshold: t}
		var prec, rec, f1, sdp, dur float64
		var meanTTDs, iwTTDs []*float64
		for _, r := range group {
			prec += r.Metrics.Precision
			rec += r.Metrics.Recall
			f1 += r.Metrics.F1
			sdp += r.Metrics.SDP
			dur += r.Metrics.AvgDegradedMode
			meanTTDs = append(meanTTDs, r.Metrics.MeanTTD)
			iwTTDs = append(iwTTDs, r.Metrics.ImpactWeightedTTD)
		}
		n := float64(len(group))
		agg.Precision = prec / n
		agg.Recall = rec / n
		agg.F1 = f1 / n
		agg.SDP = sdp / n
		agg.AvgDegradedMode = dur / n
		agg.MeanTTD = meanDefined(meanTTDs)
		agg.ImpactWeightedTTD = meanDefined(iwTTDs)
		aggs = append(aggs, agg)
	}
	return aggs
}

// meanDefined averages the non-nil values, nil when there are none.
func meanDefined(vals []*float64) *float64 {
	var sum float64
	n := 0
	for _, v := range vals {
		if v == nil {
			continue
		}
		sum += *v
		n++
	}
	if n == 0 {
		return nil
	}
	m := sum / float64(n)
	return &m
}
