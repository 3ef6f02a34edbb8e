package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
)

// xdgDir resolves an XDG base directory, falling back to home/rel.
func xdgDir(env, rel string) (string, bool) {
	if dir := os.Getenv(env); dir != "" {
		return dir, true
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", false
	}
	return filepath.Join(home, rel), true
}

func defaultDataDir() string {
	dir, ok := xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
	if !ok {
		return "nlpmodel-data"
	}
	return filepath.Join(dir, "nlpmodel")
}

func configFilePath() string {
	dir, ok := xdgDir("XDG_CONFIG_HOME", ".config")
	if !ok {
		dir = "."
	}
	return filepath.Join(dir, "nlpmodel", "config.json")
}

// fileBackend keeps config as a flat JSON object keyed by dotted key names.
// A file that fails to parse is reported and never overwritten.
type fileBackend struct {
	path    string
	data    map[string]any
	loadErr error
}

func newPlatformBackend() ConfigBackend {
	return newFileBackend(configFilePath())
}

func newFileBackend(path string) *fileBackend {
	b := &fileBackend{path: path, data: map[string]any{}}
	b.loadErr = b.load()
	if b.loadErr != nil {
		slog.Warn("config file unusable, using defaults", "path", path, "error", b.loadErr)
	}
	return b
}

func (b *fileBackend) load() error {
	raw, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, &b.data); err != nil {
		return fmt.Errorf("parsing %s: %w", b.path, err)
	}
	if b.data == nil {
		b.data = map[string]any{}
	}
	return nil
}

// save writes through a temp file and rename so readers never see a
// half-written config.
func (b *fileBackend) save() error {
	if b.loadErr != nil {
		return fmt.Errorf("refusing to overwrite config file: %w", b.loadErr)
	}
	if err := os.MkdirAll(filepath.Dir(b.path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	out, err := json.MarshalIndent(b.data, "", "  ")
	if err != nil {
		return err
	}
	tmp := b.path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, b.path)
}

func (b *fileBackend) GetString(key string) (string, bool, error) {
	v, ok := b.data[key]
	if !ok {
		return "", false, nil
	}
	if s, isStr := v.(string); isStr {
		return s, true, nil
	}
	return fmt.Sprint(v), true, nil
}

func (b *fileBackend) GetInt(key string) (int, bool, error) {
	v, ok := b.data[key]
	if !ok {
		return 0, false, nil
	}
	n, err := toInt(v)
	if err != nil {
		return 0, true, fmt.Errorf("%s: %w", key, err)
	}
	return n, true, nil
}

// toInt accepts JSON numbers and numeric strings written by hand.
func toInt(v any) (int, error) {
	switch val := v.(type) {
	case float64:
		if val != math.Trunc(val) || val < math.MinInt || val > math.MaxInt {
			return 0, fmt.Errorf("%v is not an integer in range", val)
		}
		return int(val), nil
	case int:
		return val, nil
	case string:
		return strconv.Atoi(val)
	default:
		return 0, fmt.Errorf("unexpected %T value", v)
	}
}

func (b *fileBackend) SetString(key, val string) error {
	b.data[key] = val
	return b.save()
}

func (b *fileBackend) SetInt(key string, val int) error {
	b.data[key] = val
	return b.save()
}

// Delete removes key. Deleting an absent key leaves the file untouched.
func (b *fileBackend) Delete(key string) error {
	if _, ok := b.data[key]; !ok {
		return nil
	}
	delete(b.data, key)
	return b.save()
}
