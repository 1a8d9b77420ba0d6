// Package eventlog implements the append-only structured event log and
// traceroute-snapshot persistence spec.md §9 supplements onto the
// distilled spec (§6 "Persisted state": traceroute snapshots saved on
// connection incidents). Grounded on the teacher's writeSummaryLine
// (engine/daemon.go): a JSON-lines file rotated at 10MiB by renaming to
// .old and starting fresh.
package eventlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const rotateAt = 10 * 1024 * 1024

// Entry is one structured event line.
type Entry struct {
	Time    time.Time `json:"time"`
	Kind    string    `json:"kind"`
	Message string    `json:"message"`
	Data    any       `json:"data,omitempty"`
}

// Log appends JSON-lines events to a file, rotating at 10MiB.
type Log struct {
	path string
}

// New prepares a Log writing to dir/events.jsonl, creating dir if needed.
func New(dir string) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating event log directory %s: %w", dir, err)
	}
	return &Log{path: filepath.Join(dir, "events.jsonl")}, nil
}

// Append writes one event, rotating the file first if it has grown past
// the 10MiB cap (teacher's writeSummaryLine convention).
func (l *Log) Append(kind, message string, data any) error {
	if info, err := os.Stat(l.path); err == nil && info.Size() > rotateAt {
		_ = os.Rename(l.path, l.path+".old")
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("opening event log %s: %w", l.path, err)
	}
	defer f.Close()

	return json.NewEncoder(f).Encode(Entry{Time: time.Now(), Kind: kind, Message: message, Data: data})
}

// SaveTraceroute persists raw traceroute output to
// dir/traceroute_<UTC-ISO>.txt on a connection incident (spec §6
// "Persisted state").
func SaveTraceroute(dir, output string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating traceroute directory %s: %w", dir, err)
	}
	name := fmt.Sprintf("traceroute_%s.txt", isoTimestamp(time.Now()))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(output), 0o600); err != nil {
		return "", fmt.Errorf("writing traceroute snapshot %s: %w", path, err)
	}
	return path, nil
}

func isoTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15-04-05Z")
}
