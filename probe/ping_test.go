package probe

import (
	"testing"
	"time"

	"github.com/netwatch/netwatch/procsup"
)

func TestParsePingResultPolicy(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name    string
		res     procsup.Result
		wantOK  bool
		wantErr string
	}{
		{"ok", procsup.Result{ExitCode: 0, Stdout: "64 bytes: time=12.3 ms"}, true, ""},
		{"nonzero exit with latency text is still a failure", procsup.Result{ExitCode: 1, Stdout: "time=0 ms"}, false, "unreachable"},
		{"timeout kind", procsup.Result{Kind: procsup.KindTimeout}, false, "timeout"},
		{"killed kind", procsup.Result{Kind: procsup.KindKilled}, false, "cancelled"},
		{"spawn error kind", procsup.Result{Kind: procsup.KindSpawnError}, false, "unreachable"},
		{"unparseable output", procsup.Result{ExitCode: 0, Stdout: "garbage"}, false, "parse-error"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			s := parsePingResult(c.res, now)
			if s.OK != c.wantOK {
				t.Fatalf("OK = %v, want %v", s.OK, c.wantOK)
			}
			if !c.wantOK && string(s.ErrKind) != c.wantErr {
				t.Fatalf("ErrKind = %q, want %q", s.ErrKind, c.wantErr)
			}
		})
	}
}

func TestPingArgvBuildsCommandForSubSecondInterval(t *testing.T) {
	argv := pingArgv("example.com", 500*time.Millisecond)
	if len(argv) == 0 {
		t.Fatal("expected non-empty argv")
	}
}
