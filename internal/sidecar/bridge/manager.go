package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"voxelstamp.ai/internal/protocol"
)

type Config struct {
	WorldWSURL  string
	MaxSessions int
	// RequestTimeout bounds each request when the caller's context has no deadline.
	RequestTimeout time.Duration
	Logger         *log.Logger
}

// Manager keeps one world connection per session key.
type Manager struct {
	cfg Config

	mu       sync.Mutex
	sessions map[string]*Session

	closed bool
}

func NewManager(cfg Config) (*Manager, error) {
	if cfg.WorldWSURL == "" {
		return nil, fmt.Errorf("empty world ws url")
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 256
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &Manager{cfg: cfg, sessions: map[string]*Session{}}, nil
}

func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	return nil
}

func (m *Manager) GetStatus(ctx context.Context, sessionKey string) (Status, error) {
	s, err := m.getOrCreateSession(sessionKey)
	if err != nil {
		return Status{}, err
	}
	_ = ctx
	return s.Status(), nil
}

func (m *Manager) List(ctx context.Context, sessionKey string) (Reply, error) {
	return m.call(ctx, sessionKey, func(reqID string) any {
		return protocol.ListMsg{Type: protocol.TypeList, ProtocolVersion: protocol.Version, ReqID: reqID}
	})
}

func (m *Manager) Place(ctx context.Context, sessionKey string, args protocol.PlaceMsg) (Reply, error) {
	return m.call(ctx, sessionKey, func(reqID string) any {
		args.Type, args.ProtocolVersion, args.ReqID = protocol.TypePlace, protocol.Version, reqID
		return args
	})
}

func (m *Manager) Filter(ctx context.Context, sessionKey string, args protocol.FilterMsg) (Reply, error) {
	return m.call(ctx, sessionKey, func(reqID string) any {
		args.Type, args.ProtocolVersion, args.ReqID = protocol.TypeFilter, protocol.Version, reqID
		return args
	})
}

func (m *Manager) Scan(ctx context.Context, sessionKey string, args protocol.ScanMsg) (Reply, error) {
	return m.call(ctx, sessionKey, func(reqID string) any {
		args.Type, args.ProtocolVersion, args.ReqID = protocol.TypeScan, protocol.Version, reqID
		return args
	})
}

// Disconnect drops the session; the next call for the key reconnects.
func (m *Manager) Disconnect(ctx context.Context, sessionKey string) error {
	_ = ctx
	m.mu.Lock()
	s := m.sessions[keyOrDefault(sessionKey)]
	delete(m.sessions, keyOrDefault(sessionKey))
	m.mu.Unlock()
	if s != nil {
		s.Close()
	}
	return nil
}

func (m *Manager) call(ctx context.Context, sessionKey string, b build) (Reply, error) {
	s, err := m.getOrCreateSession(sessionKey)
	if err != nil {
		return nil, err
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.RequestTimeout)
		defer cancel()
	}
	return s.Request(ctx, b)
}

func keyOrDefault(key string) string {
	if key == "" {
		return "default"
	}
	return key
}

func (m *Manager) getOrCreateSession(key string) (*Session, error) {
	key = keyOrDefault(key)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, fmt.Errorf("bridge manager closed")
	}

	if s := m.sessions[key]; s != nil {
		return s, nil
	}

	// Enforce max sessions (simple LRU by lastUsedAt).
	if len(m.sessions) >= m.cfg.MaxSessions {
		var oldestKey string
		var oldest time.Time
		for k, s := range m.sessions {
			t := s.LastUsedAt()
			if oldestKey == "" || t.Before(oldest) {
				oldestKey = k
				oldest = t
			}
		}
		if oldestKey != "" {
			m.sessions[oldestKey].Close()
			delete(m.sessions, oldestKey)
		}
	}

	s := NewSession(SessionConfig{
		Key:        key,
		WorldWSURL: m.cfg.WorldWSURL,
		Logger:     m.cfg.Logger.With("session", key),
	})
	m.sessions[key] = s
	s.Start()
	return s, nil
}
