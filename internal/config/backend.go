package config

import (
	"os"
	"path/filepath"
)

// Backend is where non-secret sdr settings live between runs: UserDefaults
// on macOS, a JSON file elsewhere. Keys are the dotted names from specs.
type Backend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	GetBool(key string) (val bool, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	SetBool(key string, val bool) error
	Delete(key string) error
}

// appDir returns the sdr directory under the XDG base named by env, or under
// fallback relative to the home directory when env is unset.
func appDir(env string, fallback ...string) string {
	dir := os.Getenv(env)
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "sdr-data"
		}
		dir = filepath.Join(append([]string{home}, fallback...)...)
	}
	return filepath.Join(dir, keychainService)
}
