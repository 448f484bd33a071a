package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"voxelstamp.ai/internal/protocol"
)

// Backend serves requests for a session. *worldloop.Loop satisfies it.
type Backend interface {
	Submit(ctx context.Context, source string, msg any) any
	Welcome(sessionID, tuningDigest string) protocol.WelcomeMsg
}

type Options struct {
	TuningDigest    string
	MaxMessageBytes int64
	// MaxInFlight caps a session's outstanding requests; HELLO may lower it.
	MaxInFlight int
}

type Server struct {
	backend Backend
	log     *log.Logger
	opts    Options

	upgrader websocket.Upgrader
}

func NewServer(b Backend, logger *log.Logger, opts Options) *Server {
	if logger == nil {
		logger = log.Default()
	}
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = 1 << 20
	}
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = 64
	}
	return &Server{
		backend: b,
		log:     logger,
		opts:    opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.SetReadLimit(s.opts.MaxMessageBytes)

		sessionID, maxQ := s.handshake(conn)
		if sessionID == "" {
			return
		}
		logger := s.log.With("session", sessionID)
		logger.Info("session opened", "remote", r.RemoteAddr)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		out := make(chan []byte, maxQ+1)
		var wg sync.WaitGroup

		// Writer goroutine.
		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		send := func(v any) {
			b, err := json.Marshal(v)
			if err != nil {
				logger.Error("marshal reply", "err", err)
				return
			}
			select {
			case out <- b:
			case <-ctx.Done():
			}
		}

		// Reader loop.
		inflight := make(chan struct{}, maxQ)
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, raw, err := conn.ReadMessage()
			if err != nil {
				break
			}
			msg, errReply := decodeRequest(raw)
			if errReply != nil {
				send(errReply)
				continue
			}
			select {
			case inflight <- struct{}{}:
			default:
				send(protocol.NewError(reqIDOf(raw), protocol.ErrBusy, "too many requests in flight"))
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() { <-inflight }()
				send(s.backend.Submit(ctx, sessionID, msg))
			}()
		}

		cancel()
		wg.Wait()
		<-writerDone
		logger.Info("session closed")
	}
}

func (s *Server) handshake(conn *websocket.Conn) (sessionID string, maxQ int) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return "", 0
	}

	base, err := protocol.DecodeBase(raw)
	if err != nil || base.Type != protocol.TypeHello {
		closeWith(conn, "expected HELLO")
		return "", 0
	}
	if err := protocol.Validate(protocol.TypeHello, raw); err != nil {
		_ = writeJSON(conn, protocol.NewError("", protocol.ErrProtoBadRequest, err.Error()))
		closeWith(conn, "bad HELLO")
		return "", 0
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(raw, &hello); err != nil {
		return "", 0
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = writeJSON(conn, protocol.NewError("", protocol.ErrProtoVersion, fmt.Sprintf("server speaks %s", protocol.Version)))
		closeWith(conn, "bad protocol_version")
		return "", 0
	}

	maxQ = hello.MaxQueue
	if maxQ <= 0 {
		maxQ = 8
	}
	maxQ = min(maxQ, s.opts.MaxInFlight)

	sessionID = uuid.NewString()
	if hello.ClientName != "" {
		s.log.Debug("hello", "client", hello.ClientName, "session", sessionID)
	}
	if err := writeJSON(conn, s.backend.Welcome(sessionID, s.opts.TuningDigest)); err != nil {
		return "", 0
	}
	return sessionID, maxQ
}

// decodeRequest returns the typed request, or an ERROR reply for the client.
func decodeRequest(raw []byte) (any, *protocol.ErrorMsg) {
	base, err := protocol.DecodeBase(raw)
	if err != nil {
		e := protocol.NewError("", protocol.ErrProtoBadRequest, "invalid json")
		return nil, &e
	}
	if base.ProtocolVersion != protocol.Version {
		e := protocol.NewError(base.ReqID, protocol.ErrProtoVersion, fmt.Sprintf("server speaks %s", protocol.Version))
		return nil, &e
	}
	if err := protocol.Validate(base.Type, raw); err != nil {
		e := protocol.NewError(base.ReqID, protocol.ErrProtoBadRequest, err.Error())
		return nil, &e
	}
	var msg any
	switch base.Type {
	case protocol.TypePlace:
		msg = &protocol.PlaceMsg{}
	case protocol.TypeFilter:
		msg = &protocol.FilterMsg{}
	case protocol.TypeScan:
		msg = &protocol.ScanMsg{}
	case protocol.TypeList:
		msg = &protocol.ListMsg{}
	default:
		e := protocol.NewError(base.ReqID, protocol.ErrProtoBadRequest, fmt.Sprintf("unexpected %s", base.Type))
		return nil, &e
	}
	if err := json.Unmarshal(raw, msg); err != nil {
		e := protocol.NewError(base.ReqID, protocol.ErrProtoBadRequest, err.Error())
		return nil, &e
	}
	return msg, nil
}

func reqIDOf(raw []byte) string {
	base, _ := protocol.DecodeBase(raw)
	return base.ReqID
}

func closeWith(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
