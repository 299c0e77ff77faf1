package snapshot

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"testing"

	appconfig "github.com/vegardkv/travelpredict/config"
	"github.com/vegardkv/travelpredict/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	base := t.TempDir()
	store, err := NewStore(filepath.Join(base, "data"), filepath.Join(base, "processed"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func testSnapshot(ts string) *models.Snapshot {
	return &models.Snapshot{
		Response: models.FeedResponse{
			Data: models.FeedData{
				StopPlace: models.StopPlace{
					ID:   "NSR:StopPlace:58366",
					Name: "Nydalen",
					EstimatedCalls: []models.EstimatedCall{
						{Realtime: true, Quay: models.Quay{ID: "NSR:Quay:101356"}},
					},
				},
			},
		},
		Timestamp: ts,
	}
}

func TestStoreWriteReadRoundTrip(t *testing.T) {
	store := newTestStore(t)

	id, err := store.Write(testSnapshot("20250106_080500"))
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	snap, err := store.Read(id)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if snap.Timestamp != "20250106_080500" {
		t.Fatalf("timestamp = %q", snap.Timestamp)
	}
	if got := snap.Response.Data.StopPlace.ID; got != "NSR:StopPlace:58366" {
		t.Fatalf("stop place = %q", got)
	}
}

func TestStoreWriteSameSecondDistinctIDs(t *testing.T) {
	store := newTestStore(t)

	a, err := store.Write(testSnapshot("20250106_080500"))
	if err != nil {
		t.Fatalf("first write: %v", err)
	}
	b, err := store.Write(testSnapshot("20250106_080500"))
	if err != nil {
		t.Fatalf("second write: %v", err)
	}
	if a == b {
		t.Fatalf("artifact ids collided: %s", a)
	}

	ids, err := store.ListPending()
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("pending = %v, want 2 artifacts", ids)
	}
}

func TestStoreReadMalformed(t *testing.T) {
	store := newTestStore(t)

	name := "entur_data_20250106_080500_deadbeef.json"
	if err := os.WriteFile(filepath.Join(store.dir, name), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write malformed artifact: %v", err)
	}

	_, err := store.Read(name)
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if parseErr.Artifact != name {
		t.Fatalf("artifact = %q", parseErr.Artifact)
	}
}

func TestStoreArchiveMovesOutOfPending(t *testing.T) {
	store := newTestStore(t)

	id, err := store.Write(testSnapshot("20250106_080500"))
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := store.Archive([]string{id}); err != nil {
		t.Fatalf("archive: %v", err)
	}

	ids, err := store.ListPending()
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("pending after archive = %v", ids)
	}
	if _, err := os.Stat(filepath.Join(store.processedDir, id)); err != nil {
		t.Fatalf("archived artifact missing: %v", err)
	}
}

func TestStoreArchiveRollsBackOnFailure(t *testing.T) {
	store := newTestStore(t)

	id, err := store.Write(testSnapshot("20250106_080500"))
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	// The second id does not exist, so the batch must fail and the first
	// artifact must come back to the pending set.
	err = store.Archive([]string{id, "entur_data_20250106_081000_00000000.json"})
	if err == nil {
		t.Fatal("expected archive error")
	}

	ids, err := store.ListPending()
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(ids) != 1 || ids[0] != id {
		t.Fatalf("pending after failed archive = %v, want [%s]", ids, id)
	}
}

func TestArchiverCompress(t *testing.T) {
	base := t.TempDir()
	processed := filepath.Join(base, "processed")
	if err := os.MkdirAll(processed, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for _, name := range []string{"entur_data_20250106_080000_aaaaaaaa.json", "entur_data_20250106_080500_bbbbbbbb.json"} {
		if err := os.WriteFile(filepath.Join(processed, name), []byte(`{"timestamp":"x"}`), 0o644); err != nil {
			t.Fatalf("seed processed: %v", err)
		}
	}

	cfg := &appconfig.Config{}
	cfg.Storage.Snapshots.ProcessedDir = processed

	arch, err := NewArchiver(cfg)
	if err != nil {
		t.Fatalf("new archiver: %v", err)
	}

	zipPath, err := arch.Compress()
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	if zipPath == "" {
		t.Fatal("expected a zip to be produced")
	}

	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	defer zr.Close()
	if len(zr.File) != 2 {
		t.Fatalf("zip contains %d files, want 2", len(zr.File))
	}

	entries, err := os.ReadDir(processed)
	if err != nil {
		t.Fatalf("read processed: %v", err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".json" {
			t.Fatalf("compressed artifact %s not removed", e.Name())
		}
	}

	// A second run with nothing left to compress is a no-op.
	again, err := arch.Compress()
	if err != nil {
		t.Fatalf("second compress: %v", err)
	}
	if again != "" {
		t.Fatalf("expected no-op, got %s", again)
	}
}
