package probe

import (
	"testing"

	"github.com/netwatch/netwatch/model"
)

func TestParseTraceroute(t *testing.T) {
	output := "traceroute to example.com, 30 hops max\n" +
		" 1  10.0.0.1  1.234 ms\n" +
		" 2  192.168.1.1  3.456 ms\n" +
		" 3  * * *\n"
	hops := parseTraceroute(output)
	if len(hops) != 2 {
		t.Fatalf("expected 2 parsed hops, got %d: %+v", len(hops), hops)
	}
	if hops[0].Index != 1 || hops[0].IP != "10.0.0.1" {
		t.Fatalf("unexpected first hop: %+v", hops[0])
	}
}

func TestFilterSingleTimeoutsDropsLoneTimeout(t *testing.T) {
	d := &RouteDetector{}
	first := []model.Hop{{Index: 1, IP: "10.0.0.1"}, {Index: 2, IP: ""}}
	out := d.filterSingleTimeouts(first)
	if len(out) != 1 {
		t.Fatalf("expected lone timeout hop dropped, got %d hops", len(out))
	}

	second := []model.Hop{{Index: 1, IP: "10.0.0.1"}, {Index: 2, IP: ""}}
	out = d.filterSingleTimeouts(second)
	if len(out) != 2 {
		t.Fatalf("expected second consecutive timeout kept, got %d hops", len(out))
	}
}

func TestFingerprintChangesOnHopChange(t *testing.T) {
	a := []model.Hop{{Index: 1, IP: "10.0.0.1"}, {Index: 2, IP: "10.0.0.2"}}
	b := []model.Hop{{Index: 1, IP: "10.0.0.1"}, {Index: 2, IP: "10.0.0.3"}}
	if model.FingerprintHops(a) == model.FingerprintHops(b) {
		t.Fatal("expected fingerprint to change when a hop IP changes")
	}
	if model.FingerprintHops(a) != model.FingerprintHops(a) {
		t.Fatal("expected fingerprint to be stable for identical hop sequences")
	}
}
