package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/vegardkv/travelpredict/logger"
	"github.com/vegardkv/travelpredict/models"
)

const artifactPrefix = "entur_data_"

// ParseError marks an artifact whose content could not be decoded. Callers
// are expected to skip the artifact and continue with the rest of the batch.
type ParseError struct {
	Artifact string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse snapshot %s: %v", e.Artifact, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Store is a durable staging area for snapshot artifacts. Artifacts are
// written once into the pending directory and moved to the processed
// directory after reconciliation. Writes go through a temp file and a rename
// so a concurrent reader never observes a partial artifact.
type Store struct {
	dir          string
	processedDir string
	log          *logger.Log
}

func NewStore(dir, processedDir string) (*Store, error) {
	for _, d := range []string{dir, processedDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("create snapshot dir %s: %w", d, err)
		}
	}
	return &Store{dir: dir, processedDir: processedDir, log: logger.GetLogger()}, nil
}

// Write persists one snapshot and returns its artifact id. The id carries a
// uuid suffix so two polls completing within the same wall-clock second never
// collide.
func (s *Store) Write(snap *models.Snapshot) (string, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}

	id := fmt.Sprintf("%s%s_%s.json", artifactPrefix, snap.Timestamp, uuid.NewString()[:8])

	tmp, err := os.CreateTemp(s.dir, ".pending-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp artifact: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("close artifact: %w", err)
	}

	if err := os.Rename(tmpName, filepath.Join(s.dir, id)); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("publish artifact: %w", err)
	}

	return id, nil
}

// ListPending enumerates staged artifacts that have not been archived yet,
// oldest first. Artifact names embed the capture time so lexicographic order
// is capture order.
func (s *Store) ListPending() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list pending snapshots: %w", err)
	}

	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, artifactPrefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, name)
	}
	sort.Strings(ids)
	return ids, nil
}

// Read deserializes one artifact. Malformed content is reported as a
// *ParseError so the caller can skip it and keep going.
func (s *Store) Read(id string) (*models.Snapshot, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, id))
	if err != nil {
		return nil, fmt.Errorf("read artifact %s: %w", id, err)
	}

	var snap models.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, &ParseError{Artifact: id, Err: err}
	}
	if snap.Timestamp == "" {
		return nil, &ParseError{Artifact: id, Err: fmt.Errorf("missing timestamp field")}
	}
	return &snap, nil
}

// Archive moves consumed artifacts into the processed directory. The move is
// all or nothing: when any rename fails, artifacts moved so far are renamed
// back and the pending set is left as it was.
func (s *Store) Archive(ids []string) error {
	var moved []string
	for _, id := range ids {
		src := filepath.Join(s.dir, id)
		dst := filepath.Join(s.processedDir, id)
		if err := os.Rename(src, dst); err != nil {
			for _, m := range moved {
				if rbErr := os.Rename(filepath.Join(s.processedDir, m), filepath.Join(s.dir, m)); rbErr != nil {
					s.log.WithComponent("snapshot_store").WithError(rbErr).WithFields(logger.Fields{
						"artifact": m,
					}).Error("rollback failed, artifact stranded in processed dir")
				}
			}
			return fmt.Errorf("archive %s: %w", id, err)
		}
		moved = append(moved, id)
	}
	return nil
}
