package classify

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/netwatch/netwatch/model"
	"github.com/netwatch/netwatch/repository"
)

func newTestClassifier() *Classifier {
	return &Classifier{Log: zap.NewNop().Sugar(), Thresholds: DefaultThresholds(), Interval: time.Second}
}

func TestClassifyTableTopDown(t *testing.T) {
	th := DefaultThresholds()
	c := &Classifier{Thresholds: th}

	cases := []struct {
		name string
		ev   repository.Evidence
		want model.ProblemKind
	}{
		{"connection lost wins over everything", repository.Evidence{ConnectionLost: true, DnsScore: 10}, model.ProblemISP},
		{"consecutive lost alone trips isp", repository.Evidence{ConsecutiveLost: 10}, model.ProblemISP},
		{"local: loss + bad first hop", repository.Evidence{Loss30m: 0.2, HaveFirstHop: true, FirstHopLossRatio: 0.5}, model.ProblemLocal},
		{"dns: poor score, low ping loss", repository.Evidence{DnsScore: 20, PingLossRecentRatio: 0.0}, model.ProblemDNS},
		{"mtu: issue + intermittent loss", repository.Evidence{MTUIssue: true, IntermittentLoss: true, DnsScore: 100}, model.ProblemMTU},
		{"unknown: loss with no clear bucket", repository.Evidence{Loss30m: 0.01, DnsScore: 100}, model.ProblemUnknown},
		{"none: nothing wrong", repository.Evidence{DnsScore: 100}, model.ProblemNone},
	}
	for _, c2 := range cases {
		t.Run(c2.name, func(t *testing.T) {
			if got := c.classify(c2.ev); got != c2.want {
				t.Fatalf("classify() = %v, want %v", got, c2.want)
			}
		})
	}
}

func TestRecurringRequiresThreeDistinctOccurrencesWithinWindow(t *testing.T) {
	c := newTestClassifier()
	now := time.Now()

	if r := c.noteAndCheckRecurring(model.ProblemDNS, now); r {
		t.Fatal("first occurrence should not be recurring")
	}
	// Simulate the incident clearing and reappearing, not just ticking again.
	if r := c.noteAndCheckRecurring(model.ProblemNone, now.Add(time.Minute)); r {
		t.Fatal("none should never be recurring")
	}
	if r := c.noteAndCheckRecurring(model.ProblemDNS, now.Add(2*time.Minute)); r {
		t.Fatal("second distinct occurrence should not yet be recurring")
	}
	if r := c.noteAndCheckRecurring(model.ProblemNone, now.Add(3*time.Minute)); r {
		t.Fatal("none should never be recurring")
	}
	if r := c.noteAndCheckRecurring(model.ProblemDNS, now.Add(4*time.Minute)); !r {
		t.Fatal("third distinct occurrence within the window should be recurring")
	}
}

func TestRecurringWindowExpires(t *testing.T) {
	c := newTestClassifier()
	c.Thresholds.RecurringWindow = time.Minute
	now := time.Now()

	c.noteAndCheckRecurring(model.ProblemDNS, now)
	c.noteAndCheckRecurring(model.ProblemNone, now.Add(10*time.Second))
	c.noteAndCheckRecurring(model.ProblemDNS, now.Add(20*time.Second))
	c.noteAndCheckRecurring(model.ProblemNone, now.Add(30*time.Second))

	// Far outside the window: earlier entries should have been pruned.
	if r := c.noteAndCheckRecurring(model.ProblemDNS, now.Add(5*time.Minute)); r {
		t.Fatal("expected earlier occurrences to have aged out of the window")
	}
}
