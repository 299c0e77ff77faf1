package logger

import (
	"os"
	"testing"
)

func TestWithComponent(t *testing.T) {
	log := Logger()
	entry := log.WithComponent("collector")
	if v, ok := entry.Entry.Data["component"]; !ok || v != "collector" {
		t.Fatalf("component field missing: %v", entry.Entry.Data)
	}
}

func TestConfigureInvalidLevel(t *testing.T) {
	// Ensure environment variables do not override the provided level
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	if err := log.Configure("invalid", "json", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid level")
	}
}

func TestConfigureInvalidFormat(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	if err := log.Configure("info", "xml", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid format")
	}
}

func TestWithEnv(t *testing.T) {
	os.Setenv("ENTUR_CLIENT_NAME", "test-client")
	log := Logger()
	entry := log.WithEnv("ENTUR_CLIENT_NAME")
	if v, ok := entry.Entry.Data["ENTUR_CLIENT_NAME"]; !ok || v != "test-client" {
		t.Fatalf("env field not set: %v", entry.Entry.Data)
	}
}
