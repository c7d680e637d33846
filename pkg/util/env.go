package util

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// EnvFileName is the env file looked up in ConfigDir.
const EnvFileName = "eventcore.env"

// EnvFiles returns the env files consulted by LoadEnvFiles, highest priority
// first: <ConfigDir>/eventcore.env, then $HOME/.local/bin/.env.
func EnvFiles() []string {
	files := []string{filepath.Join(ConfigDir(), EnvFileName)}
	if home, err := userHomeDir(); err == nil && home != "" {
		files = append(files, filepath.Join(home, ".local", "bin", ".env"))
	}
	return files
}

// LoadEnvFiles fills variables missing from the environment from every
// existing file of EnvFiles. Variables already set are never overwritten, so
// the process environment wins over the files and earlier files win over
// later ones. It returns the files it loaded.
func LoadEnvFiles() ([]string, error) {
	var loaded []string
	for _, path := range EnvFiles() {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return loaded, fmt.Errorf("load %s: %w", path, err)
		}
		loaded = append(loaded, path)
	}
	return loaded, nil
}
