package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"voxelstamp.ai/internal/protocol"
)

// fakeWorld answers HELLO with WELCOME and PLACE with PLACE_RESULT, or ERROR for "missing".
// A PLACE for "hang" closes the connection without replying.
func fakeWorld(t *testing.T) string {
	t.Helper()
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var hello protocol.HelloMsg
		if err := conn.ReadJSON(&hello); err != nil || hello.Type != protocol.TypeHello {
			return
		}
		_ = conn.WriteJSON(protocol.WelcomeMsg{
			Type:            protocol.TypeWelcome,
			ProtocolVersion: protocol.Version,
			SessionID:       "S1",
			Processors:      []string{"ruins"},
		})
		for {
			var m protocol.PlaceMsg
			if err := conn.ReadJSON(&m); err != nil {
				return
			}
			switch m.Blueprint {
			case "missing":
				_ = conn.WriteJSON(protocol.NewError(m.ReqID, protocol.ErrNotFound, "no such blueprint"))
			case "hang":
				return
			default:
				_ = conn.WriteJSON(protocol.PlaceResultMsg{
					Type:            protocol.TypePlaceResult,
					ProtocolVersion: protocol.Version,
					ReqID:           m.ReqID,
					Placed:          true,
					BlocksWritten:   len(m.Blueprint),
				})
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestManager_PlaceRoundTrip(t *testing.T) {
	m, err := NewManager(Config{WorldWSURL: fakeWorld(t), RequestTimeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	defer m.Close()
	ctx := context.Background()

	raw, err := m.Place(ctx, "c1", protocol.PlaceMsg{Blueprint: "wall", Anchor: [3]int{1, 2, 3}})
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	var res protocol.PlaceResultMsg
	if err := json.Unmarshal(raw, &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !res.Placed || res.BlocksWritten != 4 || !strings.HasPrefix(res.ReqID, "c1-") {
		t.Fatalf("result = %+v", res)
	}

	_, err = m.Place(ctx, "c1", protocol.PlaceMsg{Blueprint: "missing"})
	var re *ReplyError
	if !errors.As(err, &re) || re.Code != protocol.ErrNotFound {
		t.Fatalf("err = %v, want ReplyError %s", err, protocol.ErrNotFound)
	}

	st, _ := m.GetStatus(ctx, "c1")
	if !st.Connected || st.SessionID != "S1" || len(st.Processors) != 1 || st.Pending != 0 {
		t.Fatalf("status = %+v", st)
	}
}

func TestSession_FailsPendingOnDisconnect(t *testing.T) {
	m, _ := NewManager(Config{WorldWSURL: fakeWorld(t)})
	defer m.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := m.Place(ctx, "c1", protocol.PlaceMsg{Blueprint: "hang"})
	if err == nil || ctx.Err() != nil {
		t.Fatalf("err = %v ctx = %v, want connection lost before the deadline", err, ctx.Err())
	}

	// The session reconnects for the next request.
	if _, err := m.Place(ctx, "c1", protocol.PlaceMsg{Blueprint: "wall"}); err != nil {
		t.Fatalf("place after reconnect: %v", err)
	}
}

func TestManager_EvictsLeastRecentlyUsed(t *testing.T) {
	m, _ := NewManager(Config{WorldWSURL: fakeWorld(t), MaxSessions: 2})
	defer m.Close()
	ctx := context.Background()

	for _, k := range []string{"a", "b"} {
		if _, err := m.GetStatus(ctx, k); err != nil {
			t.Fatalf("status %s: %v", k, err)
		}
		time.Sleep(2 * time.Millisecond)
	}
	_, _ = m.GetStatus(ctx, "a")
	_, _ = m.GetStatus(ctx, "c")

	m.mu.Lock()
	_, hasA := m.sessions["a"]
	_, hasB := m.sessions["b"]
	_, hasC := m.sessions["c"]
	m.mu.Unlock()
	if !hasA || hasB || !hasC {
		t.Fatalf("sessions a=%v b=%v c=%v, want b evicted", hasA, hasB, hasC)
	}
}

func TestNewManager_RequiresURL(t *testing.T) {
	if _, err := NewManager(Config{}); err == nil {
		t.Fatalf("expected error for empty url")
	}
}
