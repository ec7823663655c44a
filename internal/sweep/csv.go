package sweep

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
)

// csvHeader is the column layout of the ablation summary table.
var csvHeader = []string{
	"threshold",
	"actor_precision",
	"actor_recall",
	"actor_f1",
	"mean_ttd",
	"iw_ttd",
	"sdp",
	"avg_degraded_mode_duration",
}

// WriteCSV renders aggregates as the ablation summary table, one row per
// threshold. Undefined timing aggregates become empty cells.
func WriteCSV(w io.Writer, aggs []Aggregate) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, a := range aggs {
		rec := []string{
			strconv.Itoa(a.Threshold),
			formatFloat(a.Precision),
			formatFloat(a.Recall),
			formatFloat(a.F1),
			formatOptional(a.MeanTTD),
			formatOptional(a.ImpactWeightedTTD),
			formatFloat(a.SDP),
			formatFloat(a.AvgDegradedMode),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSVFile writes the summary table to path, creating parent
// directories.
func WriteCSVFile(path string, aggs []Aggregate) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv file: %w", err)
	}
	if err := WriteCSV(f, aggs); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close csv file: %w", err)
	}
	return nil
}

// formatFloat renders a float with the shortest representation that
// round-trips, so 1 prints as "1" rather than "1.000000".
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}
