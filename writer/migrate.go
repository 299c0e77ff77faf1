package writer

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/vegardkv/travelpredict/logger"
	"github.com/vegardkv/travelpredict/models"
)

// Migrator moves historical flat-file deviation exports into the repository.
// Exports from different runs overlap, so rows are deduplicated before the
// upsert: sorted by timestamp ascending, last row per key wins. That is a
// true latest-row-wins policy, deliberately not the column-wise merge used
// during live reconciliation.
type Migrator struct {
	repo      *Repository
	dir       string
	batchSize int
	log       *logger.Log
}

// MigrationSummary reports one migration run.
type MigrationSummary struct {
	Files        int
	FilesSkipped int
	Loaded       int
	Unique       int
	Report       *UpsertReport
	Deleted      bool
}

func NewMigrator(repo *Repository, dir string, batchSize int) *Migrator {
	return &Migrator{repo: repo, dir: dir, batchSize: batchSize, log: logger.GetLogger()}
}

// Run loads every export, deduplicates, upserts and finally deletes the
// source files, but only when deleteAfter is set and no batch failed.
// Deletion never happens implicitly.
func (m *Migrator) Run(ctx context.Context, deleteAfter bool) (*MigrationSummary, error) {
	log := m.log.WithComponent("migrator")

	files, err := filepath.Glob(filepath.Join(m.dir, "*.csv"))
	if err != nil {
		return nil, fmt.Errorf("list exports: %w", err)
	}
	sort.Strings(files)

	summary := &MigrationSummary{Files: len(files)}
	if len(files) == 0 {
		log.Info("no exports to migrate")
		summary.Report = &UpsertReport{}
		return summary, nil
	}

	var all []models.DeviationRecord
	var loadedFiles []string
	for _, path := range files {
		records, err := readExport(path)
		if err != nil {
			summary.FilesSkipped++
			log.WithError(err).WithFields(logger.Fields{"file": path}).Warn("skipping unreadable export")
			continue
		}
		all = append(all, records...)
		loadedFiles = append(loadedFiles, path)
	}
	summary.Loaded = len(all)

	unique := Deduplicate(all)
	summary.Unique = len(unique)

	report, err := m.repo.Upsert(ctx, unique, m.batchSize)
	if err != nil {
		return nil, err
	}
	summary.Report = report

	if deleteAfter && len(report.FailedBatches) == 0 {
		for _, path := range loadedFiles {
			if err := os.Remove(path); err != nil {
				log.WithError(err).WithFields(logger.Fields{"file": path}).Warn("failed to delete export")
			}
		}
		summary.Deleted = true
	}

	log.WithFields(logger.Fields{
		"files":         summary.Files,
		"files_skipped": summary.FilesSkipped,
		"rows_loaded":   summary.Loaded,
		"rows_unique":   summary.Unique,
		"uploaded":      report.Uploaded,
		"deleted":       summary.Deleted,
	}).Info("migration completed")

	return summary, nil
}

// Deduplicate keeps the latest row per (aimed arrival, line). Rows are
// sorted by timestamp ascending first, so on ties the later input order wins,
// matching the historical behaviour.
func Deduplicate(records []models.DeviationRecord) []models.DeviationRecord {
	sorted := make([]models.DeviationRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	last := make(map[models.DeviationKey]models.DeviationRecord)
	for _, rec := range sorted {
		last[rec.Key()] = rec
	}

	out := make([]models.DeviationRecord, 0, len(last))
	for _, rec := range last {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].AimedArrival.Equal(out[j].AimedArrival) {
			return out[i].AimedArrival.Before(out[j].AimedArrival)
		}
		return out[i].LineID < out[j].LineID
	})
	return out
}

func readExport(path string) ([]models.DeviationRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open export: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read export header: %w", err)
	}

	idx := make(map[string]int, len(header))
	for i, col := range header {
		idx[strings.TrimSpace(col)] = i
	}
	for _, col := range []string{"aimed_arrival", "line_id", "timestamp"} {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("export missing column %s", col)
		}
	}

	field := func(row []string, col string) string {
		i, ok := idx[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var records []models.DeviationRecord
	for line := 2; ; line++ {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read export row %d: %w", line, err)
		}

		rec := models.DeviationRecord{
			LineID:        field(row, "line_id"),
			QuayID:        field(row, "quay_id"),
			LineName:      field(row, "line_name"),
			TransportMode: field(row, "transport_mode"),
			Realtime:      strings.EqualFold(field(row, "realtime"), "true"),
		}

		if rec.AimedArrival, err = parseLegacyTime(field(row, "aimed_arrival")); err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		if rec.Timestamp, err = parseLegacyTime(field(row, "timestamp")); err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		if v := field(row, "aimed_departure"); v != "" {
			if rec.AimedDeparture, err = parseLegacyTime(v); err != nil {
				return nil, fmt.Errorf("row %d: %w", line, err)
			}
		}
		if v := field(row, "expected_arrival"); v != "" {
			if rec.ExpectedArrival, err = parseLegacyTime(v); err != nil {
				return nil, fmt.Errorf("row %d: %w", line, err)
			}
		}
		if v := field(row, "expected_departure"); v != "" {
			if rec.ExpectedDeparture, err = parseLegacyTime(v); err != nil {
				return nil, fmt.Errorf("row %d: %w", line, err)
			}
		}

		if v := field(row, "expected_delay"); v != "" {
			if rec.ExpectedDelay, err = parseLegacyDuration(v); err != nil {
				return nil, fmt.Errorf("row %d: %w", line, err)
			}
		}
		// Older exports call the observation delay "timestamp_delay".
		delay := field(row, "observation_delay")
		if delay == "" {
			delay = field(row, "timestamp_delay")
		}
		if delay != "" {
			if rec.ObservationDelay, err = parseLegacyDuration(delay); err != nil {
				return nil, fmt.Errorf("row %d: %w", line, err)
			}
		}

		records = append(records, rec)
	}

	return records, nil
}
