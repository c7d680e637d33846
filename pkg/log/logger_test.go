package log

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSetupLoggerWritesCategoryFiles(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer
	if err := SetupLogger(Options{Dir: dir, Level: "debug", Stderr: &console}); err != nil {
		t.Fatalf("SetupLogger() failed: %v", err)
	}
	t.Cleanup(func() { _ = GlobalLogger.Close() })

	DiscordLogger().Info("gateway ready", "session", "abc")
	ErrorLoggerRaw().Error("handler failed")

	data, err := os.ReadFile(filepath.Join(dir, "discord_events.log"))
	if err != nil {
		t.Fatalf("read discord log: %v", err)
	}
	if !strings.Contains(string(data), "gateway ready") || !strings.Contains(string(data), "category=discord_events") {
		t.Fatalf("unexpected discord log contents: %q", data)
	}
	if !strings.Contains(console.String(), "handler failed") {
		t.Fatalf("expected console to receive error line, got %q", console.String())
	}
}

func TestSetupLoggerJSONFormat(t *testing.T) {
	var console bytes.Buffer
	if err := SetupLogger(Options{Format: "json", Stderr: &console}); err != nil {
		t.Fatalf("SetupLogger() failed: %v", err)
	}
	ApplicationLogger().Info("hello")
	if !strings.HasPrefix(strings.TrimSpace(console.String()), "{") {
		t.Fatalf("expected JSON output, got %q", console.String())
	}
}

func TestSetupLoggerRejectsUnknownLevel(t *testing.T) {
	if err := SetupLogger(Options{Level: "loud"}); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestDebugFilteredAtInfo(t *testing.T) {
	var console bytes.Buffer
	if err := SetupLogger(Options{Level: "info", Stderr: &console}); err != nil {
		t.Fatalf("SetupLogger() failed: %v", err)
	}
	ApplicationLogger().Debug("noise")
	if console.Len() != 0 {
		t.Fatalf("debug line should be filtered, got %q", console.String())
	}
}
