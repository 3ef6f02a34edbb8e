package config

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const tokenAccount = "api_token"

// SecretStore persists secrets outside the regular config file.
type SecretStore interface {
	Get(account string) (string, error)
	Set(account, value string) error
}

// fileSecrets keeps secrets in a 0600 JSON file under $XDG_DATA_HOME.
type fileSecrets struct {
	path string
}

// NewSecretStore returns the default file-backed secret store.
func NewSecretStore() SecretStore {
	return fileSecrets{path: filepath.Join(defaultDataDir(), "secrets.json")}
}

func (f fileSecrets) Get(account string) (string, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return "", fmt.Errorf("secret store not available: %w", err)
	}
	var secrets map[string]string
	if err := json.Unmarshal(data, &secrets); err != nil {
		return "", fmt.Errorf("parsing secrets file: %w", err)
	}
	val, ok := secrets[account]
	if !ok {
		return "", fmt.Errorf("secret %q not found", account)
	}
	return val, nil
}

func (f fileSecrets) Set(account, value string) error {
	var secrets map[string]string
	data, err := os.ReadFile(f.path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &secrets); err != nil {
			return fmt.Errorf("parsing secrets file: %w", err)
		}
	case !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("secret store not available: %w", err)
	}
	if secrets == nil {
		secrets = make(map[string]string)
	}
	secrets[account] = value

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("creating secrets dir: %w", err)
	}
	out, err := json.MarshalIndent(secrets, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.path, out, 0o600)
}

// GetAPIToken returns the bearer token guarding the HTTP API. The
// NLPMODEL_API_TOKEN environment variable wins; otherwise the token is read
// from the secret store, and generated and saved on first use.
func GetAPIToken(store SecretStore) (string, error) {
	if tok := os.Getenv("NLPMODEL_API_TOKEN"); tok != "" {
		return tok, nil
	}
	if tok, err := store.Get(tokenAccount); err == nil && tok != "" {
		return tok, nil
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating API token: %w", err)
	}
	tok := hex.EncodeToString(buf)
	if err := store.Set(tokenAccount, tok); err != nil {
		return "", fmt.Errorf("saving API token: %w", err)
	}
	return tok, nil
}
