package observer

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"voxelstamp.ai/internal/observerproto"
)

// Lister names the stored blueprints for the bootstrap response.
type Lister interface {
	List() ([]string, error)
}

type subscriber struct {
	out    chan []byte
	mu     sync.Mutex
	filter observerproto.SubscribeMsg
}

// Server fans placement events out to observer connections. Publish never blocks;
// a subscriber that falls behind loses events and sees a gap in Seq.
type Server struct {
	params observerproto.WorldParams
	lister Lister
	log    *log.Logger

	upgrader websocket.Upgrader
	nextID   atomic.Uint64
	seq      atomic.Uint64
	dropped  atomic.Uint64

	mu   sync.RWMutex
	subs map[string]*subscriber
}

func NewServer(params observerproto.WorldParams, lister Lister, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		params: params,
		lister: lister,
		log:    logger,
		subs:   map[string]*subscriber{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// PublishPlacement stamps ev with the next sequence number and queues it for every
// matching subscriber.
func (s *Server) PublishPlacement(ev observerproto.PlacementMsg) {
	ev.Type = observerproto.TypePlacement
	ev.ProtocolVersion = observerproto.Version
	ev.Seq = s.seq.Add(1)
	if ev.At == 0 {
		ev.At = time.Now().UnixMilli()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.subs) == 0 {
		return
	}
	b, err := json.Marshal(ev)
	if err != nil {
		s.log.Warn("observer: marshal", "err", err)
		return
	}
	for _, sub := range s.subs {
		sub.mu.Lock()
		ok := sub.filter.Matches(ev)
		sub.mu.Unlock()
		if !ok {
			continue
		}
		select {
		case sub.out <- b:
		default:
			s.dropped.Add(1)
		}
	}
}

// Subscribers and Dropped feed the metrics endpoint.
func (s *Server) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

func (s *Server) Dropped() uint64 { return s.dropped.Load() }

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		resp := observerproto.BootstrapResponse{
			ProtocolVersion: observerproto.Version,
			WorldParams:     s.params,
			LastSeq:         s.seq.Load(),
		}
		if s.lister != nil {
			names, err := s.lister.List()
			if err != nil {
				http.Error(rw, err.Error(), http.StatusInternalServerError)
				return
			}
			resp.Blueprints = names
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		sub, ok := parseSubscribe(msg)
		if !ok {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		sid := fmt.Sprintf("O%d", s.nextID.Add(1))
		me := &subscriber{out: make(chan []byte, 256), filter: sub}
		s.mu.Lock()
		s.subs[sid] = me
		s.mu.Unlock()
		s.log.Debug("observer joined", "session", sid)
		defer func() {
			s.mu.Lock()
			delete(s.subs, sid)
			s.mu.Unlock()
		}()

		// Writer goroutine.
		done := make(chan struct{})
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-done:
					writeErr <- nil
					return
				case b := <-me.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Reader loop: allow SUBSCRIBE updates.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			if sub, ok := parseSubscribe(msg); ok {
				me.mu.Lock()
				me.filter = sub
				me.mu.Unlock()
			}
		}

		close(done)
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func parseSubscribe(msg []byte) (observerproto.SubscribeMsg, bool) {
	var sub observerproto.SubscribeMsg
	if err := json.Unmarshal(msg, &sub); err != nil {
		return sub, false
	}
	if sub.Type != observerproto.TypeSubscribe || sub.ProtocolVersion != observerproto.Version {
		return sub, false
	}
	return sub, true
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
