package client

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const identityFileName = "client.id"

// LoadOrCreateIdentity returns the persisted client identifier from the
// datadir, generating and persisting a fresh one when absent or unreadable.
// The identifier re-associates this client with its server-side session
// across restarts.
func LoadOrCreateIdentity(datadir string) (string, error) {
	path := filepath.Join(datadir, identityFileName)

	if raw, err := os.ReadFile(path); err == nil {
		id := strings.TrimSpace(string(raw))
		if _, err := uuid.Parse(id); err == nil {
			return id, nil
		}
		// Corrupt contents; fall through and regenerate.
	}

	id := uuid.NewString()
	if err := SaveIdentity(datadir, id); err != nil {
		return "", err
	}
	return id, nil
}

// SaveIdentity persists the client identifier, replacing any previous one.
// Called at startup and again whenever the server assigns a different id.
func SaveIdentity(datadir, id string) error {
	if err := os.MkdirAll(datadir, 0700); err != nil {
		return fmt.Errorf("create datadir %s: %w", datadir, err)
	}
	path := filepath.Join(datadir, identityFileName)
	if err := os.WriteFile(path, []byte(id+"\n"), 0600); err != nil {
		return fmt.Errorf("write identity file %s: %w", path, err)
	}
	return nil
}
