package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"

	apihttp "streamgate/internal/api/http"
	"streamgate/internal/app"
	"streamgate/internal/domain"
	"streamgate/internal/engine/anacrolix"
	"streamgate/internal/metrics"
	"streamgate/internal/registry"
	mongorepo "streamgate/internal/repository/mongo"
	"streamgate/internal/stream"
	"streamgate/internal/telemetry"
)

func main() {
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), "streamgate")
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", "streamgate"),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.String("dataDir", cfg.DataDir),
		slog.Duration("readinessTimeout", cfg.ReadinessTimeout),
		slog.Duration("idleTimeout", cfg.IdleTimeout),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, err := anacrolix.New(anacrolix.Config{
		DataDir:    cfg.DataDir,
		NoUpload:   cfg.NoUpload,
		ListenPort: cfg.TorrentPort,
	})
	if err != nil {
		logger.Error("torrent engine init failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	reg := registry.New(engine, registry.Config{
		ReadinessTimeout: cfg.ReadinessTimeout,
		MetadataTimeout:  cfg.MetadataTimeout,
		IdleTimeout:      cfg.IdleTimeout,
		MaxSessions:      cfg.MaxSessions,
	}, logger)

	streamer := &stream.Streamer{ReadaheadBytes: cfg.ReadaheadBytes, Log: logger}

	serverOpts := []apihttp.ServerOption{
		apihttp.WithLogger(logger),
		apihttp.WithStreamer(streamer),
		apihttp.WithAPIToken(cfg.APIToken),
		apihttp.WithAllowedOrigins(cfg.CORSAllowedOrigins),
		apihttp.WithResumePolicy(domain.ResumePolicy{
			MinFraction: cfg.ResumeMinRatio,
			MaxFraction: cfg.ResumeMaxRatio,
		}),
	}

	// Watch progress is optional: the gateway streams fine without Mongo,
	// the /watch-progress routes just answer 501.
	mongoClient := connectMongo(rootCtx, cfg, logger)
	if mongoClient != nil {
		serverOpts = append(serverOpts,
			apihttp.WithProgressStore(mongorepo.NewWatchProgressRepository(mongoClient, cfg.MongoDatabase)))
	}

	handler := apihttp.NewServer(reg, serverOpts...)

	go updateMetricsLoop(rootCtx, reg, handler)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      0,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("server started", slog.String("addr", cfg.HTTPAddr))

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	handler.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", slog.String("error", err.Error()))
	}
	reg.Close()
	if err := engine.Close(); err != nil {
		logger.Warn("engine close error", slog.String("error", err.Error()))
	}
	if mongoClient != nil {
		if err := mongoClient.Disconnect(context.Background()); err != nil {
			logger.Warn("mongo disconnect error", slog.String("error", err.Error()))
		}
	}

	logger.Info("server stopped")
}

func connectMongo(ctx context.Context, cfg app.Config, logger *slog.Logger) *mongo.Client {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongorepo.Connect(connectCtx, cfg.MongoURI, options.Client().SetMonitor(otelmongo.NewMonitor()))
	if err != nil {
		logger.Warn("mongo connect failed, watch progress disabled", slog.String("error", err.Error()))
		return nil
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		logger.Warn("mongo ping failed, watch progress disabled", slog.String("error", err.Error()))
		_ = client.Disconnect(context.Background())
		return nil
	}
	return client
}

// updateMetricsLoop refreshes the Prometheus gauges from registry state and
// pushes summaries to WebSocket clients.
func updateMetricsLoop(ctx context.Context, reg *registry.Registry, handler *apihttp.Server) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			summaries := reg.List()
			var speed int64
			var peers int
			for _, s := range summaries {
				speed += s.DownloadSpeed
				peers += s.Peers
			}
			metrics.ActiveSessions.Set(float64(len(summaries)))
			metrics.DownloadSpeedBytes.Set(float64(speed))
			metrics.PeersConnected.Set(float64(peers))
			handler.BroadcastSessions()
		}
	}
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
