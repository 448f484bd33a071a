package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"voxelstamp.ai/internal/protocol"
)

type SessionConfig struct {
	Key        string
	WorldWSURL string
	Logger     *log.Logger
}

// build returns the message to send with reqID stamped in.
type build func(reqID string) any

// Session is one world connection. Requests are correlated with replies by req_id.
type Session struct {
	cfg SessionConfig

	mu sync.RWMutex

	startOnce sync.Once
	closeOnce sync.Once
	stop      chan struct{}
	done      chan struct{}
	// ready is closed on the first WELCOME and replaced on disconnect.
	ready chan struct{}

	connected bool
	lastErr   string

	conn    *websocket.Conn
	writeMu sync.Mutex

	welcome protocol.WelcomeMsg

	nextReq uint64
	pending map[string]chan Reply

	lastUsedAt time.Time
}

func NewSession(cfg SessionConfig) *Session {
	if cfg.Key == "" {
		cfg.Key = "default"
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &Session{
		cfg:        cfg,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		ready:      make(chan struct{}),
		pending:    map[string]chan Reply{},
		lastUsedAt: time.Now(),
	}
}

func (s *Session) Start() {
	s.startOnce.Do(func() {
		go s.run()
	})
}

func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.stop)
		// Wake a blocked ReadMessage.
		s.disconnect()
		<-s.done
	})
}

func (s *Session) disconnect() {
	s.mu.Lock()
	c := s.conn
	s.conn = nil
	s.connected = false
	s.mu.Unlock()
	if c != nil {
		_ = c.Close()
	}
}

func (s *Session) LastUsedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUsedAt
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastUsedAt = time.Now()
	s.mu.Unlock()
}

func (s *Session) Status() Status {
	s.touch()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{
		Connected:    s.connected,
		SessionID:    s.welcome.SessionID,
		WorldWSURL:   s.cfg.WorldWSURL,
		WorldParams:  s.welcome.WorldParams,
		Processors:   append([]string(nil), s.welcome.Processors...),
		TuningDigest: s.welcome.Catalogs.TuningDigest,
		Pending:      len(s.pending),
		LastError:    s.lastErr,
	}
}

// Request sends one message and waits for its reply. An ERROR reply is returned as
// *ReplyError.
func (s *Session) Request(ctx context.Context, b build) (Reply, error) {
	s.touch()
	conn, err := s.waitReady(ctx)
	if err != nil {
		return nil, err
	}

	ch := make(chan Reply, 1)
	s.mu.Lock()
	s.nextReq++
	reqID := fmt.Sprintf("%s-%d", s.cfg.Key, s.nextReq)
	s.pending[reqID] = ch
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, reqID)
		s.mu.Unlock()
	}()

	payload, err := json.Marshal(b(reqID))
	if err != nil {
		return nil, err
	}
	s.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	err = conn.WriteMessage(websocket.TextMessage, payload)
	s.writeMu.Unlock()
	if err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case raw, ok := <-ch:
		if !ok {
			return nil, fmt.Errorf("connection lost")
		}
		base, err := protocol.DecodeBase(raw)
		if err != nil {
			return nil, err
		}
		if base.Type == protocol.TypeError {
			var e protocol.ErrorMsg
			if err := json.Unmarshal(raw, &e); err != nil {
				return nil, err
			}
			return nil, &ReplyError{Code: e.Code, Message: e.Message}
		}
		return raw, nil
	}
}

func (s *Session) waitReady(ctx context.Context) (*websocket.Conn, error) {
	for {
		s.mu.RLock()
		ready, conn, connected := s.ready, s.conn, s.connected
		s.mu.RUnlock()
		if connected && conn != nil {
			return conn, nil
		}
		select {
		case <-ctx.Done():
			s.mu.RLock()
			lastErr := s.lastErr
			s.mu.RUnlock()
			if lastErr != "" {
				return nil, fmt.Errorf("not connected: %s", lastErr)
			}
			return nil, ctx.Err()
		case <-s.stop:
			return nil, fmt.Errorf("session closed")
		case <-ready:
		}
	}
}

func (s *Session) run() {
	defer close(s.done)

	backoff := 200 * time.Millisecond
	for {
		select {
		case <-s.stop:
			s.disconnect()
			return
		default:
		}

		err := s.connectAndReadLoop()
		s.failPending()
		if err == nil {
			return
		}
		s.mu.Lock()
		s.lastErr = err.Error()
		s.mu.Unlock()
		s.cfg.Logger.Debug("world connection lost", "err", err, "retry_in", backoff)
		select {
		case <-s.stop:
			s.disconnect()
			return
		case <-time.After(backoff):
		}
		if backoff < 5*time.Second {
			backoff *= 2
			if backoff > 5*time.Second {
				backoff = 5 * time.Second
			}
		}
	}
}

// failPending wakes every waiter after the connection dropped.
func (s *Session) failPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = nil
	s.connected = false
	for id, ch := range s.pending {
		close(ch)
		delete(s.pending, id)
	}
	select {
	case <-s.ready:
		s.ready = make(chan struct{})
	default:
	}
}

func (s *Session) connectAndReadLoop() error {
	d := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, resp, err := d.Dial(s.cfg.WorldWSURL, http.Header{})
	if err != nil {
		return err
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      s.cfg.Key,
		MaxQueue:        16,
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteJSON(hello); err != nil {
		_ = conn.Close()
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.lastErr = ""
	s.mu.Unlock()

	for {
		select {
		case <-s.stop:
			_ = conn.Close()
			return nil
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Minute))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			_ = conn.Close()
			select {
			case <-s.stop:
				return nil
			default:
			}
			return err
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		if base.Type == protocol.TypeWelcome {
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			if w.ProtocolVersion != protocol.Version {
				_ = conn.Close()
				return fmt.Errorf("unsupported protocol version %q", w.ProtocolVersion)
			}
			s.mu.Lock()
			s.welcome = w
			s.connected = true
			close(s.ready)
			s.mu.Unlock()
			s.cfg.Logger.Debug("connected", "session_id", w.SessionID)
			continue
		}
		if base.ReqID == "" {
			if base.Type == protocol.TypeError {
				s.cfg.Logger.Warn("server error", "msg", string(msg))
			}
			continue
		}
		s.mu.RLock()
		ch := s.pending[base.ReqID]
		s.mu.RUnlock()
		if ch != nil {
			select {
			case ch <- append(Reply(nil), msg...):
			default:
			}
		}
	}
}
