package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeEnv(t *testing.T, home, contents string) {
	t.Helper()
	dir := filepath.Join(home, ".local", "bin")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(contents), 0o644); err != nil {
		t.Fatalf("write env: %v", err)
	}
}

// unset removes a variable previously registered with t.Setenv so the
// restore hook still runs.
func unset(t *testing.T, key string) {
	t.Helper()
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("unsetenv %s: %v", key, err)
	}
}
