package writer

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/vegardkv/travelpredict/logger"
	"github.com/vegardkv/travelpredict/models"
)

// exportColumns is the legacy flat-file layout. Durations are written as
// duration strings here, unlike the integer seconds used in the database.
var exportColumns = []string{
	"aimed_arrival",
	"line_id",
	"timestamp",
	"realtime",
	"aimed_departure",
	"expected_arrival",
	"expected_departure",
	"quay_id",
	"line_name",
	"transport_mode",
	"expected_delay",
	"observation_delay",
}

// ExportCSV writes one per-run deviation export into dir and returns its
// path. Returns an empty path when there is nothing to export.
func ExportCSV(records []models.DeviationRecord, dir string) (string, error) {
	log := logger.GetLogger().WithComponent("csv_export")

	if len(records) == 0 {
		log.Info("no deviation records to export")
		return "", nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}

	name := fmt.Sprintf("deviations_%s.csv", time.Now().Format(models.SnapshotTimeFormat))
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create export file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(exportColumns); err != nil {
		return "", fmt.Errorf("write export header: %w", err)
	}

	for _, rec := range records {
		row := []string{
			rec.AimedArrival.Format(time.RFC3339),
			rec.LineID,
			rec.Timestamp.Format(time.RFC3339),
			strconv.FormatBool(rec.Realtime),
			rec.AimedDeparture.Format(time.RFC3339),
			rec.ExpectedArrival.Format(time.RFC3339),
			rec.ExpectedDeparture.Format(time.RFC3339),
			rec.QuayID,
			rec.LineName,
			rec.TransportMode,
			formatLegacyDuration(rec.ExpectedDelay),
			formatLegacyDuration(rec.ObservationDelay),
		}
		if err := w.Write(row); err != nil {
			return "", fmt.Errorf("write export row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flush export: %w", err)
	}

	log.WithFields(logger.Fields{"path": path, "records": len(records)}).Info("deviation export written")
	return path, nil
}
