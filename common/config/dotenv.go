package config

import (
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/joho/godotenv"
)

var (
	dotenvOnce sync.Once
	dotenvPath string
	dotenvErr  error
)

// LoadDotEnv loads the first .env file found from the working directory up
// to the filesystem root. Variables already present in the environment are
// not overridden. Subsequent calls are no-ops and return the first result.
func LoadDotEnv() (string, error) {
	dotenvOnce.Do(func() {
		path, err := findDotEnv()
		if err != nil || path == "" {
			dotenvErr = err
			return
		}
		if err := godotenv.Load(path); err != nil {
			dotenvErr = err
			return
		}
		dotenvPath = path
	})
	return dotenvPath, dotenvErr
}

func findDotEnv() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		candidate := filepath.Join(dir, ".env")
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, nil
		}
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}
