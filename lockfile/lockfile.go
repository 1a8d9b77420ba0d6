// Package lockfile implements the single-instance lock file spec §6
// requires in the user home directory, with stale-PID reclaim verified and
// cleaned at startup. Grounded on dnstc's internal/process.Manager
// JSON-PID-file pattern (os.FindProcess to check liveness before trusting
// a persisted PID).
package lockfile

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

type payload struct {
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
}

// Lock is an acquired single-instance lock. Release removes the file.
type Lock struct {
	path string
}

// Acquire creates path exclusively, reclaiming it first if its owning PID
// is no longer alive (spec §6 "its presence must be verified and cleaned
// on startup").
func Acquire(path string) (*Lock, error) {
	if existing, err := readPayload(path); err == nil {
		if processAlive(existing.PID) {
			return nil, fmt.Errorf("another instance is already running (pid %d, lock %s)", existing.PID, path)
		}
		// Stale: the recorded PID is gone, reclaim the file.
		_ = os.Remove(path)
	}

	data, err := json.Marshal(payload{PID: os.Getpid(), StartedAt: time.Now()})
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("acquiring lock file %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		_ = os.Remove(path)
		return nil, err
	}
	return &Lock{path: path}, nil
}

// Release removes the lock file. Safe to call more than once.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	err := os.Remove(l.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func readPayload(path string) (payload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return payload{}, err
	}
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return payload{}, err
	}
	return p, nil
}

