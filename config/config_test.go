package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validYAML = `
travelpredict:
  name: travelpredict
  version: "0.3.0"
feed:
  url: https://api.entur.io/journey-planner/v3/graphql
  client_name: myorg-travelpredict
  stop_place_id: NSR:StopPlace:58366
collector:
  start_time: "07:00"
  end_time: "23:00"
  interval_seconds: 300
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("ENTUR_CLIENT_NAME", "")

	cfg, err := LoadConfig(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Feed.Timezone != "Europe/Oslo" {
		t.Fatalf("timezone default = %q", cfg.Feed.Timezone)
	}
	if cfg.Collector.IdlePoll != 30*time.Second {
		t.Fatalf("idle poll default = %v", cfg.Collector.IdlePoll)
	}
	if cfg.Writer.BatchSize != 1000 {
		t.Fatalf("batch size default = %d", cfg.Writer.BatchSize)
	}
	if cfg.Storage.Snapshots.Dir != "data" || cfg.Storage.Snapshots.ProcessedDir != "processed" {
		t.Fatalf("snapshot dir defaults = %+v", cfg.Storage.Snapshots)
	}
}

func TestLoadConfigClientNameOverride(t *testing.T) {
	t.Setenv("ENTUR_CLIENT_NAME", "other-client")

	cfg, err := LoadConfig(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Feed.ClientName != "other-client" {
		t.Fatalf("client name = %q, want env override", cfg.Feed.ClientName)
	}
}

func TestLoadConfigMissingFeedURL(t *testing.T) {
	t.Setenv("ENTUR_CLIENT_NAME", "")

	broken := strings.Replace(validYAML, "url: https://api.entur.io/journey-planner/v3/graphql", "", 1)
	if _, err := LoadConfig(writeConfig(t, broken)); err == nil {
		t.Fatal("expected error for missing feed.url")
	}
}

func TestLoadConfigBadWindow(t *testing.T) {
	t.Setenv("ENTUR_CLIENT_NAME", "")

	broken := strings.Replace(validYAML, `start_time: "07:00"`, `start_time: "25:00"`, 1)
	if _, err := LoadConfig(writeConfig(t, broken)); err == nil {
		t.Fatal("expected error for invalid start_time")
	}
}

func TestLoadConfigPostgresRequiresCredentials(t *testing.T) {
	t.Setenv("ENTUR_CLIENT_NAME", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("PGPASSWORD", "")

	yml := validYAML + `
storage:
  postgres:
    enabled: true
`
	if _, err := LoadConfig(writeConfig(t, yml)); err == nil {
		t.Fatal("expected error for postgres enabled without credentials")
	}
}

func TestParseTimeOfDay(t *testing.T) {
	h, m, err := ParseTimeOfDay("7:05")
	if err != nil || h != 7 || m != 5 {
		t.Fatalf("ParseTimeOfDay(7:05) = %d:%d, %v", h, m, err)
	}
	if _, _, err := ParseTimeOfDay("noon"); err == nil {
		t.Fatal("expected error for non-numeric time of day")
	}
}
