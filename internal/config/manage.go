package config

import (
	"fmt"
	"os"
	"strconv"
)

// KeyInfo is one row of `nlpmodel config show`.
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
	// Overridden is set when the environment variable shadows the file value.
	Overridden bool
}

// ShowAll lists every non-secret key with its effective value.
func ShowAll(cfg Config) []KeyInfo {
	var result []KeyInfo
	for _, s := range specs {
		if s.secret {
			continue
		}
		_, envSet := os.LookupEnv(s.env)
		result = append(result, KeyInfo{
			Key:        s.key,
			EnvVar:     s.env,
			Value:      fmt.Sprintf("%v", s.extract(cfg)),
			Overridden: envSet,
		})
	}
	return result
}

// SetKey persists a config value to the config file.
func SetKey(key, value string) error {
	return setKeyIn(newPlatformBackend(), key, value)
}

// UnsetKey removes a key from the config file so its default applies again.
func UnsetKey(key string) error {
	return unsetKeyIn(newPlatformBackend(), key)
}

func setKeyIn(b ConfigBackend, key, value string) error {
	s, err := writableKey(key)
	if err != nil {
		return err
	}
	if s.typ == kInt {
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s expects an integer: %w", key, err)
		}
		return b.SetInt(key, n)
	}
	return b.SetString(key, value)
}

func unsetKeyIn(b ConfigBackend, key string) error {
	if _, err := writableKey(key); err != nil {
		return err
	}
	return b.Delete(key)
}

// writableKey finds the spec for key, refusing secrets which only come from
// the environment or the secret store.
func writableKey(key string) (keySpec, error) {
	for _, s := range specs {
		if s.key != key {
			continue
		}
		if s.secret {
			return keySpec{}, fmt.Errorf("%q is a secret; use environment variable %s", key, s.env)
		}
		return s, nil
	}
	return keySpec{}, fmt.Errorf("unknown config key: %q", key)
}

// ValidKeys returns the keys accepted by SetKey and UnsetKey.
func ValidKeys() []string {
	var keys []string
	for _, s := range specs {
		if !s.secret {
			keys = append(keys, s.key)
		}
	}
	return keys
}
