package probe

import (
	"context"
	"net"
	"os/exec"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

// RawPinger sends a single raw ICMP echo without the system ping binary.
// It requires elevated privileges. No configuration option enables it and
// cmd/run.go does not construct one; the ping worker always runs the
// system ping binary.
type RawPinger struct {
	id int
}

// NewRawPinger creates a raw pinger seeded with the process PID as the ICMP
// echo identifier, so concurrent instances on the same host don't collide.
func NewRawPinger(pid int) *RawPinger {
	return &RawPinger{id: pid & 0xffff}
}

// PingAvailable reports whether the system ping binary can be found on
// PATH; runMonitor refuses to start without it.
func PingAvailable() bool {
	_, err := exec.LookPath("ping")
	return err == nil
}

// Ping sends one ICMP echo to target and returns the round-trip in
// milliseconds. Requires CAP_NET_RAW (Linux) or an elevated process token
// (Windows) — callers should treat a permission error as a permanent-io
// startup failure, not a per-tick sample failure.
func (p *RawPinger) Ping(ctx context.Context, target string, timeout time.Duration) (float64, error) {
	conn, err := icmp.ListenPacket("ip4:icmp", "0.0.0.0")
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	dst, err := net.ResolveIPAddr("ip4", target)
	if err != nil {
		return 0, err
	}

	seq := int(time.Now().UnixNano() & 0xffff)
	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Code: 0,
		Body: &icmp.Echo{
			ID:   p.id,
			Seq:  seq,
			Data: []byte("netwatch-raw-ping"),
		},
	}
	wb, err := msg.Marshal(nil)
	if err != nil {
		return 0, err
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(timeout)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return 0, err
	}

	start := time.Now()
	if _, err := conn.WriteTo(wb, dst); err != nil {
		return 0, err
	}

	rb := make([]byte, 1500)
	for {
		n, _, err := conn.ReadFrom(rb)
		if err != nil {
			return 0, err
		}
		rm, err := icmp.ParseMessage(1, rb[:n])
		if err != nil {
			continue
		}
		if rm.Type != ipv4.ICMPTypeEchoReply {
			continue
		}
		echo, ok := rm.Body.(*icmp.Echo)
		if !ok || echo.ID != p.id || echo.Seq != seq {
			continue // a reply for someone else's concurrent echo
		}
		return float64(time.Since(start)) / float64(time.Millisecond), nil
	}
}
