package eventlog

import (
	"bufio"
	"os"
	"strings"
	"testing"
)

func TestAppendWritesJSONLines(t *testing.T) {
	dir := t.TempDir()
	l, err := New(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := l.Append("test", "hello", map[string]int{"n": 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := l.Append("test", "world", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	f, err := os.Open(l.path)
	if err != nil {
		t.Fatalf("unexpected error opening log: %v", err)
	}
	defer f.Close()

	lines := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines++
	}
	if lines != 2 {
		t.Fatalf("expected 2 lines, got %d", lines)
	}
}

func TestSaveTracerouteWritesISONamedFile(t *testing.T) {
	dir := t.TempDir()
	path, err := SaveTraceroute(dir, "1  10.0.0.1  1.2 ms\n2  8.8.8.8  5.4 ms\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(path, dir) {
		t.Fatalf("expected path under %s, got %s", dir, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("unexpected error reading file: %v", err)
	}
	if !strings.Contains(string(data), "8.8.8.8") {
		t.Fatal("expected traceroute content to be preserved")
	}
}
