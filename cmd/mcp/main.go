package main

import (
	"context"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"voxelstamp.ai/internal/sidecar/bridge"
	"voxelstamp.ai/internal/sidecar/mcp"
)

func main() {
	var (
		listen     = flag.String("listen", "127.0.0.1:8090", "http listen address")
		worldWSURL = flag.String("world-ws-url", "ws://127.0.0.1:8080/v1/ws", "voxelstamp ws url")
		hmacSecret = flag.String("hmac-secret", "", "hmac secret (or set VS_MCP_HMAC_SECRET)")
		maxSess    = flag.Int("max-sessions", 256, "max concurrent sessions")
		reqTimeout = flag.Duration("request-timeout", 10*time.Second, "per-request timeout against the world server")
		replayTTL  = flag.Duration("replay-ttl", 10*time.Minute, "how long signed requests are remembered")
	)
	flag.Parse()

	logger := log.NewWithOptions(os.Stdout, log.Options{Prefix: "mcp", ReportTimestamp: true, TimeFormat: time.StampMicro})

	if strings.TrimSpace(*hmacSecret) == "" {
		*hmacSecret = strings.TrimSpace(os.Getenv("VS_MCP_HMAC_SECRET"))
	}
	requireHMAC := envBoolWithDefault("VS_MCP_REQUIRE_HMAC", defaultRequireMCPHMAC())
	allowLegacyHMAC := envBoolWithDefault("VS_MCP_HMAC_ALLOW_LEGACY", defaultAllowLegacyHMAC())
	if requireHMAC && strings.TrimSpace(*hmacSecret) == "" {
		logger.Fatal("hmac secret required (set -hmac-secret or VS_MCP_HMAC_SECRET)")
	}
	if strings.TrimSpace(*hmacSecret) == "" && !isLoopbackListenAddress(*listen) {
		logger.Fatal("refusing insecure MCP bind on non-loopback address without hmac secret", "listen", *listen)
	}

	authMode := "none"
	if strings.TrimSpace(*hmacSecret) == "" {
		authMode = "none(loopback-only)"
	} else {
		authMode = "hmac"
	}
	logger.Info("auth", "mode", authMode, "require_hmac", requireHMAC, "allow_legacy_hmac", allowLegacyHMAC)

	br, err := bridge.NewManager(bridge.Config{
		WorldWSURL:     *worldWSURL,
		MaxSessions:    *maxSess,
		RequestTimeout: *reqTimeout,
		Logger:         logger.WithPrefix("bridge"),
	})
	if err != nil {
		logger.Fatal("bridge", "err", err)
	}
	defer br.Close()

	srv, err := mcp.NewServer(mcp.Config{
		Bridge:          br,
		HMACSecret:      *hmacSecret,
		AllowLegacyHMAC: allowLegacyHMAC,
		ReplayTTL:       *replayTTL,
		Logger:          logger.WithPrefix("mcp"),
	})
	if err != nil {
		logger.Fatal("mcp", "err", err)
	}

	httpSrv := &http.Server{
		Addr:              *listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, cancel := signalContext()
	defer cancel()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	logger.Info("listening", "addr", "http://"+*listen, "world_ws", *worldWSURL)
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("listen", "err", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func defaultRequireMCPHMAC() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return true
	default:
		return false
	}
}

func defaultAllowLegacyHMAC() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func envBoolWithDefault(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func isLoopbackListenAddress(addr string) bool {
	host := strings.TrimSpace(addr)
	if h, _, err := net.SplitHostPort(addr); err == nil {
		host = strings.TrimSpace(h)
	}
	host = strings.Trim(strings.TrimSpace(host), "[]")
	if host == "" {
		return false
	}
	hostLower := strings.ToLower(host)
	if hostLower == "localhost" {
		return true
	}
	ip := net.ParseIP(hostLower)
	return ip != nil && ip.IsLoopback()
}
