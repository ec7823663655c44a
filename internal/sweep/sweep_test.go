package sweep

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"

	"insidersim/internal/metrics"
	"insidersim/internal/sim"
)

func smallParams() Params {
	p := DefaultParams()
	p.ThresholdMin = 3
	p.ThresholdMax = 4
	p.NumSeeds = 3
	p.WarmupSteps = 5
	p.TestSteps = 30
	p.Workers = 1
	return p
}

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Params)
		wantErr error
	}{
		{"defaults", func(p *Params) {}, nil},
		{"empty model", func(p *Params) { p.Model = "" }, ErrInvalidConfig},
		{"threshold below one", func(p *Params) { p.ThresholdMin = 0 }, ErrInvalidConfig},
		{"empty range", func(p *Params) { p.ThresholdMax = p.ThresholdMin - 1 }, ErrInvalidRange},
		{"zero seeds", func(p *Params) { p.NumSeeds = 0 }, ErrInvalidConfig},
		{"negative warmup", func(p *Params) { p.WarmupSteps = -1 }, ErrInvalidConfig},
		{"zero test steps", func(p *Params) { p.TestSteps = 0 }, ErrInvalidConfig},
		{"degrade threshold zero", func(p *Params) { p.DegradeThreshold = 0 }, ErrInvalidConfig},
		{"degrade threshold above one", func(p *Params) { p.DegradeThreshold = 1.5 }, ErrInvalidConfig},
		{"negative workers", func(p *Params) { p.Workers = -2 }, ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.mutate(&p)
			err := p.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRun_UnknownModel(t *testing.T) {
	p := smallParams()
	p.Model = "oracle"
	_, err := Run(context.Background(), p)
	if !errors.Is(err, sim.ErrUnknownModel) {
		t.Fatalf("error = %v, want ErrUnknownModel", err)
	}
}

func TestRun_InvalidParams(t *testing.T) {
	p := smallParams()
	p.ThresholdMax = p.ThresholdMin - 1
	_, err := Run(context.Background(), p)
	if !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("error = %v, want ErrInvalidRange", err)
	}
}

func TestRun_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, smallParams())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func TestRun_RowOrderAndShape(t *testing.T) {
	p := smallParams()
	res, err := Run(context.Background(), p)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	wantRows := (p.ThresholdMax - p.ThresholdMin + 1) * p.NumSeeds
	if len(res.Rows) != wantRows {
		t.Fatalf("got %d rows, want %d", len(res.Rows), wantRows)
	}
	i := 0
	for threshold := p.ThresholdMin; threshold <= p.ThresholdMax; threshold++ {
		for seed := 0; seed < p.NumSeeds; seed++ {
			r := res.Rows[i]
			if r.Threshold != threshold || r.Seed != seed {
				t.Fatalf("row %d = (%d, %d), want (%d, %d)", i, r.Threshold, r.Seed, threshold, seed)
			}
			i++
		}
	}
	if len(res.Aggregates) != p.ThresholdMax-p.ThresholdMin+1 {
		t.Fatalf("got %d aggregates, want %d", len(res.Aggregates), p.ThresholdMax-p.ThresholdMin+1)
	}
}

func TestRun_MatchesIndependentRuns(t *testing.T) {
	p := smallParams()
	res, err := Run(context.Background(), p)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, row := range res.Rows {
		runner, err := sim.New(p.Model, p.runConfig(row.Threshold, row.Seed))
		if err != nil {
			t.Fatalf("new model: %v", err)
		}
		events, err := runner.Run(context.Background())
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		want := metrics.Evaluate(events, p.Service)
		if !reflect.DeepEqual(row.Metrics, want) {
			t.Errorf("threshold %d seed %d: sweep row %+v, independent run %+v",
				row.Threshold, row.Seed, row.Metrics, want)
		}
	}
}

func TestRun_ParallelMatchesSequential(t *testing.T) {
	seq := smallParams()
	par := smallParams()
	par.Workers = 4

	a, err := Run(context.Background(), seq)
	if err != nil {
		t.Fatalf("sequential run: %v", err)
	}
	b, err := Run(context.Background(), par)
	if err != nil {
		t.Fatalf("parallel run: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatal("parallel sweep differs from sequential sweep")
	}
}

func fp(v float64) *float64 { return &v }

func rowWith(threshold, seed int, precision float64, meanTTD, iwTTD *float64) Row {
	return Row{
		Threshold: threshold,
		Seed:      seed,
		Metrics: metrics.RunMetrics{
			Precision:         precision,
			Recall:            precision,
			F1:                precision,
			MeanTTD:           meanTTD,
			ImpactWeightedTTD: iwTTD,
			SDP:               1,
			AvgDegradedMode:   2,
		},
	}
}

func TestAggregateRows(t *testing.T) {
	rows := []Row{
		rowWith(3, 0, 1.0, fp(2), nil),
		rowWith(3, 1, 0.5, nil, nil),
		rowWith(3, 2, 0.0, fp(4), nil),
		rowWith(4, 0, 1.0, nil, fp(7)),
	}

	aggs := AggregateRows(rows)
	if len(aggs) != 2 {
		t.Fatalf("got %d aggregates, want 2", len(aggs))
	}

	a3 := aggs[0]
	if a3.Threshold != 3 {
		t.Fatalf("first aggregate threshold = %d, want 3", a3.Threshold)
	}
	if math.Abs(a3.Precision-0.5) > 1e-9 {
		t.Errorf("precision = %v, want 0.5", a3.Precision)
	}
	// Undefined per-run TTDs are excluded, not counted as zero.
	if a3.MeanTTD == nil || math.Abs(*a3.MeanTTD-3) > 1e-9 {
		t.Errorf("mean TTD = %v, want 3", a3.MeanTTD)
	}
	if a3.ImpactWeightedTTD != nil {
		t.Errorf("iw TTD = %v, want nil", *a3.ImpactWeightedTTD)
	}

	a4 := aggs[1]
	if a4.MeanTTD != nil {
		t.Errorf("threshold 4 mean TTD = %v, want nil", *a4.MeanTTD)
	}
	if a4.ImpactWeightedTTD == nil || math.Abs(*a4.ImpactWeightedTTD-7) > 1e-9 {
		t.Errorf("threshold 4 iw TTD = %v, want 7", a4.ImpactWeightedTTD)
	}
}

func TestAggregateRows_Empty(t *testing.T) {
	if got := AggregateRows(nil); len(got) != 0 {
		t.Fatalf("expected no aggregates, got %d", len(got))
	}
}
