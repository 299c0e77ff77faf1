package writer

import (
	"strings"
	"testing"
	"time"

	"github.com/vegardkv/travelpredict/models"
)

func TestBuildUpsertSQL(t *testing.T) {
	aimed := time.Date(2025, 1, 6, 8, 10, 0, 0, time.UTC)
	observed := time.Date(2025, 1, 6, 8, 5, 0, 0, time.UTC)
	batch := []models.DeviationRecord{
		record(aimed, observed, "RUT:Line:5260"),
		record(aimed, observed, "RUT:Line:5261"),
	}

	sql, args := buildUpsertSQL("deviations", batch)

	if want := len(batch) * len(deviationColumns); len(args) != want {
		t.Fatalf("got %d args, want %d", len(args), want)
	}
	if !strings.HasPrefix(sql, "INSERT INTO deviations (aimed_arrival, line_id,") {
		t.Fatalf("unexpected sql prefix: %s", sql)
	}
	if !strings.Contains(sql, "ON CONFLICT (aimed_arrival, line_id) DO UPDATE SET") {
		t.Fatalf("missing conflict clause: %s", sql)
	}
	// The key columns must never be rewritten by the update list.
	if strings.Contains(sql, "aimed_arrival = EXCLUDED.aimed_arrival") ||
		strings.Contains(sql, "line_id = EXCLUDED.line_id") {
		t.Fatalf("conflict key in update list: %s", sql)
	}
	if !strings.Contains(sql, "timestamp = EXCLUDED.timestamp") {
		t.Fatalf("missing update assignment: %s", sql)
	}

	last := len(args)
	if !strings.Contains(sql, "($13,") {
		t.Fatalf("second row placeholders not offset: %s", sql)
	}
	if strings.Contains(sql, "$0") {
		t.Fatal("placeholders must start at $1")
	}
	if args[0] != "2025-01-06T08:10:00" {
		t.Fatalf("aimed arrival arg = %v", args[0])
	}
	if args[last-1] != int64(-5*60) {
		t.Fatalf("observation delay arg = %v", args[last-1])
	}
}

func TestUpsertRejectsBadBatchSize(t *testing.T) {
	r := &Repository{table: "deviations", log: nil}
	if _, err := r.Upsert(nil, nil, 0); err == nil {
		t.Fatal("expected error for batch size 0")
	}
}
