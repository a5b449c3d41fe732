package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const deviceIDFile = "device_id"

// deviceIdentity returns the stable installation id reported to completion
// backends, creating and persisting one under stateDir on first run. A file
// that does not parse as a UUID is replaced with a fresh id. The returned id
// is always usable; a non-nil error means it could not be read back or
// persisted, so the next run will report a different one.
func deviceIdentity(stateDir string) (string, error) {
	if stateDir == "" {
		return uuid.NewString(), nil
	}

	path := filepath.Join(stateDir, deviceIDFile)
	raw, err := os.ReadFile(path)
	if err == nil {
		if id, parseErr := uuid.Parse(strings.TrimSpace(string(raw))); parseErr == nil {
			return id.String(), nil
		}
		// Corrupt or hand-edited; fall through and replace it.
	} else if !errors.Is(err, fs.ErrNotExist) {
		return uuid.NewString(), fmt.Errorf("reading device id: %w", err)
	}

	id := uuid.NewString()
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return id, fmt.Errorf("persisting device id: %w", err)
	}
	return id, nil
}
