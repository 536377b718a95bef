package config

import (
	"fmt"
	"strings"
)

// KeyInfo describes a config key for display purposes.
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
}

// ShowAll returns all config key/value pairs from the current config. Secret
// values are reported only as set or unset.
func ShowAll(cfg Config) []KeyInfo {
	var result []KeyInfo
	for _, s := range specs {
		value := fmt.Sprintf("%v", s.extract(cfg))
		if s.secret {
			if value == "" {
				value = "(unset)"
			} else {
				value = "(set)"
			}
		}
		result = append(result, KeyInfo{
			Key:    s.key,
			EnvVar: s.env,
			Value:  value,
		})
	}
	return result
}

// SetKey writes a config key to the platform backend. Secret keys go to the
// platform secret store instead.
func SetKey(key, value string) error {
	return setKeyWith(newPlatformBackend(), keychainSet, key, value)
}

func setKeyWith(b Backend, setSecret func(service, account, value string) error, key, value string) error {
	for _, s := range specs {
		if s.key != key {
			continue
		}
		if s.secret {
			// Keys pasted from a dashboard often carry a trailing newline.
			value = strings.TrimSpace(value)
			if value == "" {
				return fmt.Errorf("empty value for %s", key)
			}
			return setSecret(keychainService, keychainAccount, value)
		}
		v, err := parseValue(s.typ, value)
		if err != nil {
			return fmt.Errorf("invalid %s value for %s: %w", typeName(s.typ), key, err)
		}
		switch s.typ {
		case kInt:
			return b.SetInt(key, v.(int))
		case kBool:
			return b.SetBool(key, v.(bool))
		default:
			return b.SetString(key, value)
		}
	}

	return fmt.Errorf("unknown config key: %q", key)
}

// ValidKeys returns the list of settable config key names.
func ValidKeys() []string {
	keys := make([]string, 0, len(specs))
	for _, s := range specs {
		keys = append(keys, s.key)
	}
	return keys
}
