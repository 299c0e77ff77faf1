package writer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	appconfig "github.com/vegardkv/travelpredict/config"
	"github.com/vegardkv/travelpredict/logger"
	"github.com/vegardkv/travelpredict/models"
)

// deviationColumns is the storage schema, in insert order. The composite
// (aimed_arrival, line_id) carries the unique constraint.
var deviationColumns = []string{
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
	"expected_delay_seconds",
	"observation_delay_seconds",
}

// UpsertBatchError reports one failed batch. Other batches are unaffected.
type UpsertBatchError struct {
	Batch int
	Err   error
}

func (e *UpsertBatchError) Error() string {
	return fmt.Sprintf("upsert batch %d: %v", e.Batch, e.Err)
}

func (e *UpsertBatchError) Unwrap() error { return e.Err }

// UpsertReport is the outcome of one batched upsert call.
type UpsertReport struct {
	Uploaded      int
	Batches       int
	FailedBatches []int
	Errors        []error
}

// Repository persists deviation records into Postgres with replace-on-conflict
// semantics. Instances are constructed explicitly and injected where needed;
// there is no process-wide client.
type Repository struct {
	pool  *pgxpool.Pool
	table string
	log   *logger.Log
}

// NewRepository opens a connection pool and verifies the connection.
func NewRepository(ctx context.Context, cfg *appconfig.Config) (*Repository, error) {
	pg := cfg.Storage.Postgres

	connStr := pg.URL
	if connStr == "" {
		port := pg.Port
		if port == 0 {
			port = 5432
		}
		connStr = fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
			pg.User, pg.Password, pg.Host, port, pg.Database)
	}

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	poolCfg.MaxConns = 4
	poolCfg.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	log := logger.GetLogger()
	log.WithComponent("deviation_repository").WithFields(logger.Fields{
		"table": pg.Table,
	}).Info("deviation repository initialized")

	return &Repository{pool: pool, table: pg.Table, log: log}, nil
}

// Close releases the connection pool.
func (r *Repository) Close() {
	r.pool.Close()
}

// CreateSchema creates the deviations table when it does not exist.
func (r *Repository) CreateSchema(ctx context.Context) error {
	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		aimed_arrival             TEXT NOT NULL,
		line_id                   TEXT NOT NULL,
		timestamp                 TEXT NOT NULL,
		realtime                  BOOLEAN NOT NULL,
		aimed_departure           TEXT,
		expected_arrival          TEXT,
		expected_departure        TEXT,
		quay_id                   TEXT,
		line_name                 TEXT,
		transport_mode            TEXT,
		expected_delay_seconds    BIGINT NOT NULL,
		observation_delay_seconds BIGINT NOT NULL,
		UNIQUE (aimed_arrival, line_id)
	);`, r.table)

	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Upsert writes records in independent fixed-size batches. A failed batch is
// logged and surfaced in the report without stopping the remaining batches.
// Re-applying the same records is safe: the conflict target replaces rather
// than duplicates.
func (r *Repository) Upsert(ctx context.Context, records []models.DeviationRecord, batchSize int) (*UpsertReport, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be greater than 0")
	}

	log := r.log.WithComponent("deviation_repository")
	report := &UpsertReport{}

	for start := 0; start < len(records); start += batchSize {
		end := start + batchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]
		batchIdx := report.Batches
		report.Batches++

		sql, args := buildUpsertSQL(r.table, batch)
		if _, err := r.pool.Exec(ctx, sql, args...); err != nil {
			batchErr := &UpsertBatchError{Batch: batchIdx, Err: err}
			report.FailedBatches = append(report.FailedBatches, batchIdx)
			report.Errors = append(report.Errors, batchErr)
			log.WithError(batchErr).WithFields(logger.Fields{
				"batch": batchIdx,
				"rows":  len(batch),
			}).Error("batch upsert failed")
			continue
		}

		report.Uploaded += len(batch)
		logger.AddRowsUpserted(len(batch))
	}

	log.WithFields(logger.Fields{
		"uploaded":       report.Uploaded,
		"batches":        report.Batches,
		"failed_batches": report.FailedBatches,
	}).Info("upsert completed")

	return report, nil
}

// buildUpsertSQL expands one multi-row insert with a replace-on-conflict
// clause for the composite key.
func buildUpsertSQL(table string, batch []models.DeviationRecord) (string, []any) {
	placeholders := make([]string, 0, len(batch))
	args := make([]any, 0, len(batch)*len(deviationColumns))

	for i, rec := range batch {
		base := i * len(deviationColumns)
		marks := make([]string, len(deviationColumns))
		for j := range deviationColumns {
			marks[j] = fmt.Sprintf("$%d", base+j+1)
		}
		placeholders = append(placeholders, "("+strings.Join(marks, ",")+")")

		args = append(args,
			encodeTime(rec.AimedArrival),
			rec.LineID,
			encodeTime(rec.Timestamp),
			rec.Realtime,
			encodeTime(rec.AimedDeparture),
			encodeTime(rec.ExpectedArrival),
			encodeTime(rec.ExpectedDeparture),
			rec.QuayID,
			rec.LineName,
			rec.TransportMode,
			encodeSeconds(rec.ExpectedDelay),
			encodeSeconds(rec.ObservationDelay),
		)
	}

	var updates []string
	for _, col := range deviationColumns {
		if col == "aimed_arrival" || col == "line_id" {
			continue
		}
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
	}

	sql := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES %s ON CONFLICT (aimed_arrival, line_id) DO UPDATE SET %s",
		table,
		strings.Join(deviationColumns, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(updates, ", "),
	)
	return sql, args
}
