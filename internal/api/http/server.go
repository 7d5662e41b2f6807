// Package apihttp exposes the gateway over HTTP: session lifecycle, file
// listings, range streaming, watch progress and a WebSocket push channel.
package apihttp

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"streamgate/internal/cache"
	"streamgate/internal/domain"
	"streamgate/internal/domain/ports"
	"streamgate/internal/registry"
	"streamgate/internal/stream"
)

const filesCacheTTL = 2 * time.Second

type Server struct {
	logger         *slog.Logger
	registry       *registry.Registry
	streamer       *stream.Streamer
	progress       ports.WatchProgressRepository
	resume         domain.ResumePolicy
	apiToken       string
	allowedOrigins []string
	filesCache     *cache.Cache[string, []domain.FileEntry]
	wsHub          *wsHub
	handler        http.Handler
}

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithStreamer(st *stream.Streamer) ServerOption {
	return func(s *Server) {
		s.streamer = st
	}
}

// WithProgressStore wires the watch-progress endpoints. When absent they
// answer 501.
func WithProgressStore(store ports.WatchProgressRepository) ServerOption {
	return func(s *Server) {
		s.progress = store
	}
}

func WithResumePolicy(policy domain.ResumePolicy) ServerOption {
	return func(s *Server) {
		s.resume = policy
	}
}

// WithAPIToken enables bearer-token auth on the /torrents and /watch-progress
// routes. An empty token leaves the API open.
func WithAPIToken(token string) ServerOption {
	return func(s *Server) {
		s.apiToken = strings.TrimSpace(token)
	}
}

// WithAllowedOrigins configures the CORS allowed origins whitelist.
// When empty (default), any origin is permitted (development mode).
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

func NewServer(reg *registry.Registry, opts ...ServerOption) *Server {
	s := &Server{
		registry: reg,
		resume:   domain.DefaultResumePolicy(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.streamer == nil {
		s.streamer = &stream.Streamer{Log: s.logger}
	}
	s.filesCache = cache.New[string, []domain.FileEntry](filesCacheTTL, 256)

	s.wsHub = newWSHub(s.logger)
	go s.wsHub.run()

	mux := http.NewServeMux()
	mux.HandleFunc("/torrents", s.handleTorrents)
	mux.HandleFunc("/torrents/upload", s.handleUploadTorrent)
	mux.HandleFunc("/torrents/", s.handleTorrentByIdentifier)
	mux.HandleFunc("/watch-progress", s.handleWatchProgress)
	mux.HandleFunc("/watch-progress/", s.handleWatchProgressByKey)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ws", s.handleWS)

	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, authMiddleware(s.apiToken, mux)), "streamgate",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/healthz"
		}),
	)
	s.handler = recoveryMiddleware(s.logger, rateLimitMiddleware(100, 200, metricsMiddleware(corsMiddleware(s.allowedOrigins, traced))))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("ws upgrade failed", slog.String("error", err.Error()))
		return
	}
	client := &wsClient{
		hub:  s.wsHub,
		conn: conn,
		send: make(chan []byte, 256),
	}
	s.wsHub.register <- client
	go client.writePump()
	go client.readPump()
}

// BroadcastSessions pushes the current session summaries to all connected
// WebSocket clients.
func (s *Server) BroadcastSessions() {
	if s.wsHub == nil {
		return
	}
	s.wsHub.Broadcast("sessions", s.registry.List())
}

// Close disconnects all WebSocket clients and stops the hub.
func (s *Server) Close() {
	if s.wsHub != nil {
		s.wsHub.Close()
	}
}
