package mcp

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

func TestReplayGuard_RejectsDuplicateWithinWindow(t *testing.T) {
	g := newReplayGuard(10*time.Second, nil)
	now := time.Unix(1700000000, 0)
	if !g.allow("client_1", "sig_1", "list_tools", now) {
		t.Fatalf("expected first request to pass")
	}
	if g.allow("client_1", "sig_1", "list_tools", now.Add(1*time.Second)) {
		t.Fatalf("expected duplicate signature to be rejected")
	}
	if !g.allow("client_1", "sig_2", "list_tools", now.Add(1*time.Second)) {
		t.Fatalf("expected different signature to pass")
	}
	if !g.allow("client_2", "sig_1", "list_tools", now.Add(1*time.Second)) {
		t.Fatalf("expected same signature from another client to pass")
	}
}

func TestReplayGuard_AllowsAfterExpiry(t *testing.T) {
	g := newReplayGuard(2*time.Second, nil)
	now := time.Unix(1700000000, 0)
	if !g.allow("client_1", "sig_1", "list_tools", now) {
		t.Fatalf("expected first request to pass")
	}
	if g.allow("client_1", "sig_1", "list_tools", now.Add(1*time.Second)) {
		t.Fatalf("expected duplicate request in ttl to fail")
	}
	if !g.allow("client_1", "sig_1", "list_tools", now.Add(3*time.Second)) {
		t.Fatalf("expected request after ttl expiry to pass")
	}
	// The re-admitted entry survives expiry of the first one.
	if g.allow("client_1", "sig_1", "list_tools", now.Add(4*time.Second)) {
		t.Fatalf("expected re-admitted signature to be remembered")
	}
}

func TestReplayGuard_ExpiresOldEntries(t *testing.T) {
	g := newReplayGuard(time.Second, nil)
	now := time.Unix(1700000000, 0)
	for i, sig := range []string{"a", "b", "c"} {
		g.allow("client_1", sig, "list_tools", now.Add(time.Duration(i)*100*time.Millisecond))
	}
	if n := g.size(); n != 3 {
		t.Fatalf("size=%d want 3", n)
	}
	g.allow("client_1", "d", "list_tools", now.Add(1150*time.Millisecond))
	if n := g.size(); n != 2 {
		t.Fatalf("size after expiry=%d want 2 (c and d)", n)
	}
}

func TestReplayGuard_LogsRejectedPlacement(t *testing.T) {
	var buf bytes.Buffer
	g := newReplayGuard(time.Minute, log.New(&buf))
	now := time.Unix(1700000000, 0)
	what := "call_tool voxelstamp.place wall"
	g.allow("client_1", "sig_1", what, now)
	if g.allow("client_1", "sig_1", what, now) {
		t.Fatalf("expected replay to be rejected")
	}
	if !strings.Contains(buf.String(), "voxelstamp.place wall") {
		t.Fatalf("log %q does not name the placement", buf.String())
	}
}
