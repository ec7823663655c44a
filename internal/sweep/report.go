package sweep

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// WriteReport renders a markdown summary of a finished sweep: the grid
// parameters and one table row per threshold. Undefined timing aggregates
// render as "n/a".
func WriteReport(w io.Writer, p Params, aggs []Aggregate) error {
	var b strings.Builder
	b.WriteString("# Insider Simulation Threshold Ablation\n\n")
	fmt.Fprintf(&b, "Generated: %s\n\n", time.Now().UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Model: `%s` | Seeds per threshold: %d | Warmup steps: %d | Test steps: %d\n\n",
		p.Model, p.NumSeeds, p.WarmupSteps, p.TestSteps)

	b.WriteString("| Threshold | Precision | Recall | F1 | Mean TTD | IW TTD | SDP | Avg Degraded Duration |\n")
	b.WriteString("|---:|---:|---:|---:|---:|---:|---:|---:|\n")
	for _, a := range aggs {
		fmt.Fprintf(&b, "| %d | %.4f | %.4f | %.4f | %s | %s | %.4f | %.4f |\n",
			a.Threshold,
			a.Precision,
			a.Recall,
			a.F1,
			reportCell(a.MeanTTD),
			reportCell(a.ImpactWeightedTTD),
			a.SDP,
			a.AvgDegradedMode)
	}

	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// WriteReportFile writes the markdown summary to path, creating parent
// directories.
func WriteReportFile(path string, p Params, aggs []Aggregate) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create report directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	if err := WriteReport(f, p, aggs); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close report file: %w", err)
	}
	return nil
}

func reportCell(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.4f", *v)
}
