package util

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// DefaultAppName names the per-user directories when no override is set.
const DefaultAppName = "eventcore"

// AppName can be set by the host before any path helper is called.
var AppName = DefaultAppName

// Replaced in tests.
var (
	goos          = runtime.GOOS
	userConfigDir = os.UserConfigDir
	userCacheDir  = os.UserCacheDir
	userHomeDir   = os.UserHomeDir
)

// ConfigDir returns the per-user configuration directory, as resolved by
// os.UserConfigDir. An optional env file is read from here.
func ConfigDir() string { return filepath.Join(baseDir(userConfigDir), appSegment()) }

// CacheDir returns the per-user cache directory. The snapshot checkpoint
// database lives here by default.
func CacheDir() string { return filepath.Join(baseDir(userCacheDir), appSegment()) }

// LogDir returns the per-user log directory: ~/Library/Logs/<AppName> on
// macOS, a logs folder under CacheDir elsewhere.
func LogDir() string {
	if goos == "darwin" {
		return filepath.Join(baseDir(userHomeDir), "Library", "Logs", appSegment())
	}
	return filepath.Join(CacheDir(), "logs")
}

// baseDir falls back to the working directory when the user directory is
// unknown, as in minimal containers without HOME.
func baseDir(resolve func() (string, error)) string {
	if dir, err := resolve(); err == nil && strings.TrimSpace(dir) != "" {
		return dir
	}
	return "."
}

// appSegment turns AppName into one path segment that is valid on every
// platform.
func appSegment() string {
	n := strings.NewReplacer(
		"/", "-", "\\", "-", ":", "-", "*", "-", "?", "-",
		"\"", "-", "<", "-", ">", "-", "|", "-", "\x00", "",
	).Replace(strings.TrimSpace(AppName))
	n = strings.TrimRight(n, " .")
	if n == "" {
		return DefaultAppName
	}
	return n
}
