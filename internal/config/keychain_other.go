//go:build !darwin

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// secretsFilePath is secrets.json in the sdr data dir. It holds a flat
// account -> value object, e.g. {"completion_api_key": "xai-..."}.
func secretsFilePath() string {
	return filepath.Join(appDir("XDG_DATA_HOME", ".local", "share"), "secrets.json")
}

func readSecrets(service string) (map[string]string, error) {
	if service != keychainService {
		return nil, fmt.Errorf("unknown secret service %q", service)
	}
	data, err := os.ReadFile(secretsFilePath())
	if err != nil {
		return nil, fmt.Errorf("secret store not available: %w", err)
	}
	secrets := make(map[string]string)
	if err := json.Unmarshal(data, &secrets); err != nil {
		return nil, fmt.Errorf("parsing secrets file: %w", err)
	}
	return secrets, nil
}

func keychainGet(service, account string) ([]byte, error) {
	secrets, err := readSecrets(service)
	if err != nil {
		return nil, err
	}
	val, ok := secrets[account]
	if !ok {
		return nil, fmt.Errorf("no %s in %s", account, secretsFilePath())
	}
	return []byte(val), nil
}

func keychainSet(service, account, value string) error {
	secrets, err := readSecrets(service)
	if err != nil {
		if service != keychainService {
			return err
		}
		secrets = make(map[string]string)
	}
	secrets[account] = value

	p := secretsFilePath()
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return fmt.Errorf("creating secrets dir: %w", err)
	}
	out, err := json.MarshalIndent(secrets, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(p, out, 0o600)
}
