package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alfredjeanlab/logbridge/internal/archive"
	"github.com/alfredjeanlab/logbridge/internal/config"
	"github.com/alfredjeanlab/logbridge/internal/events"
	"github.com/alfredjeanlab/logbridge/internal/hub"
	"github.com/alfredjeanlab/logbridge/internal/idgen"
	"github.com/alfredjeanlab/logbridge/internal/presence"
	"github.com/alfredjeanlab/logbridge/internal/proxy"
	"github.com/alfredjeanlab/logbridge/internal/server"
	"github.com/alfredjeanlab/logbridge/internal/store"
	"github.com/alfredjeanlab/logbridge/internal/store/postgres"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Start the logbridge server",
	GroupID: "system",
	Args:    cobra.NoArgs,
	// Override PersistentPreRunE so we don't create a client.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		level, err := parseLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return runServer(ctx, cfg, logger)
	},
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("LOGBRIDGE_LOG_LEVEL: unknown level %q", s)
	}
}

// runServer starts every listener and background worker described by cfg and
// blocks until ctx is cancelled, then shuts them down in reverse order.
func runServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	// Append log file.
	fileSink, err := store.OpenFile(cfg.LogDir, cfg.LogFile)
	if err != nil {
		return err
	}
	logger.Info("appending logs", "path", fileSink.Path())

	sinks := store.Multi{fileSink}
	var mirror server.RecentLister
	if cfg.DatabaseURL != "" {
		pg, err := postgres.New(cfg.DatabaseURL)
		if err != nil {
			fileSink.Close()
			return err
		}
		sinks = append(sinks, pg)
		mirror = pg
		logger.Info("postgres mirror enabled")
	}
	defer func() {
		if err := sinks.Close(); err != nil {
			logger.Error("error closing sinks", "err", err)
		}
	}()

	origin, err := idgen.InstanceID()
	if err != nil {
		return fmt.Errorf("instance id: %w", err)
	}

	// Create event publisher.
	var publisher events.Publisher
	if cfg.NATSURL != "" {
		pub, err := events.NewNATSPublisher(cfg.NATSURL)
		if err != nil {
			return err
		}
		publisher = pub
		logger.Info("events enabled", "nats_url", cfg.NATSURL, "subject", cfg.NATSSubject, "origin", origin)
	} else {
		publisher = &events.NoopPublisher{}
		logger.Info("events disabled (LOGBRIDGE_NATS_URL not set)")
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Error("error closing publisher", "err", err)
		}
	}()

	tracker := presence.New()
	tracker.StartReaper(&presence.ReaperConfig{
		IdleAfter: cfg.AgentIdleAfter,
		OnIdle: func(agent string, lastSeen time.Time) {
			logger.Info("agent idle", "agent", agent, "last_seen", lastSeen)
		},
	})
	defer tracker.Stop()

	srv := server.New(server.Options{
		Hub:       hub.New(),
		History:   hub.NewHistory(cfg.HistorySize),
		Sink:      sinks,
		Publisher: publisher,
		Subject:   cfg.NATSSubject,
		Origin:    origin,
		Presence:  tracker,
		Proxy:     proxy.New(cfg.UpstreamURL, nil),
		Mirror:    mirror,
		Console:   os.Stdout,
		Logger:    logger,
		Keepalive: cfg.KeepaliveInterval,
	})

	// Stream handlers watch this context so shutdown ends open streams.
	baseCtx, cancelStreams := context.WithCancel(context.Background())
	defer cancelStreams()
	baseContext := func(net.Listener) context.Context { return baseCtx }

	errCh := make(chan error, 3)

	ingestServer := &http.Server{
		Addr:        cfg.IngestAddr,
		Handler:     srv.NewIngestHandler(),
		BaseContext: baseContext,
	}
	httpServer := &http.Server{
		Addr:        cfg.HTTPAddr,
		Handler:     srv.NewHTTPHandler(),
		BaseContext: baseContext,
	}

	go func() {
		logger.Info("ingest server listening", "addr", cfg.IngestAddr)
		if err := ingestServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("ingest server: %w", err)
		}
	}()
	go func() {
		logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var (
		grpcServer   *grpc.Server
		healthServer *health.Server
	)
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			shutdownHTTP(logger, cancelStreams, ingestServer, httpServer)
			return err
		}
		grpcServer, healthServer = server.NewGRPCServer(logger)
		go func() {
			logger.Info("gRPC health server listening", "addr", cfg.GRPCAddr)
			if err := grpcServer.Serve(lis); err != nil {
				errCh <- fmt.Errorf("gRPC server: %w", err)
			}
		}()
	}

	// Relay records accepted by other instances.
	var relayCancel context.CancelFunc
	if cfg.NATSURL != "" {
		sub, err := events.NewNATSSubscriber(cfg.NATSURL)
		if err != nil {
			logger.Error("failed to create relay subscriber", "err", err)
		} else {
			relay := &events.Relay{
				Origin:  origin,
				Subject: cfg.NATSSubject,
				Deliver: srv.DeliverRemote,
				Logger:  logger,
			}
			var relayCtx context.Context
			relayCtx, relayCancel = context.WithCancel(context.Background())
			go func() {
				if err := relay.Run(relayCtx, sub); err != nil {
					logger.Error("relay error", "err", err)
				}
				sub.Close()
			}()
		}
	}

	scheduler := startArchive(cfg, fileSink, logger)

	logger.Info("logbridge started",
		"http_addr", cfg.HTTPAddr,
		"ingest_addr", cfg.IngestAddr,
		"grpc_addr", cfg.GRPCAddr,
	)

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("received signal, shutting down")
	case runErr = <-errCh:
		logger.Error("server failed, shutting down", "err", runErr)
	}

	// Graceful shutdown.
	if relayCancel != nil {
		relayCancel()
		logger.Info("relay stopped")
	}
	if scheduler != nil {
		scheduler.Stop()
		logger.Info("archive scheduler stopped")
	}
	if grpcServer != nil {
		healthServer.Shutdown()
		grpcServer.GracefulStop()
		logger.Info("gRPC server stopped")
	}
	shutdownHTTP(logger, cancelStreams, ingestServer, httpServer)

	logger.Info("shutdown complete")
	return runErr
}

// shutdownHTTP stops accepting connections, ends open streams and waits for
// in-flight requests to finish.
func shutdownHTTP(logger *slog.Logger, cancelStreams context.CancelFunc, servers ...*http.Server) {
	cancelStreams()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, s := range servers {
		if err := s.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "addr", s.Addr, "err", err)
		}
	}
	logger.Info("HTTP servers stopped")
}

// startArchive starts the archive scheduler when an interval and at least
// one destination are configured. It returns nil otherwise.
func startArchive(cfg *config.Config, src archive.Source, logger *slog.Logger) *archive.Scheduler {
	if cfg.ArchiveInterval <= 0 {
		return nil
	}

	var dests []archive.Destination
	if cfg.ArchiveS3Bucket != "" {
		s3Dest, err := archive.NewS3Destination(
			context.Background(),
			cfg.ArchiveS3Bucket,
			cfg.ArchiveS3Key,
			cfg.ArchiveS3Region,
			cfg.ArchiveS3Endpoint,
		)
		if err != nil {
			logger.Error("failed to create S3 archive destination", "err", err)
		} else {
			dests = append(dests, s3Dest)
			logger.Info("archive S3 destination enabled", "bucket", cfg.ArchiveS3Bucket, "key", cfg.ArchiveS3Key)
		}
	}
	if cfg.ArchiveGitRepo != "" {
		dests = append(dests, archive.NewGitDestination(cfg.ArchiveGitRepo, cfg.ArchiveGitFile, cfg.ArchiveGitBranch))
		logger.Info("archive git destination enabled", "repo", cfg.ArchiveGitRepo, "file", cfg.ArchiveGitFile)
	}
	if len(dests) == 0 {
		return nil
	}

	scheduler := archive.NewScheduler(src, dests, cfg.ArchiveInterval, logger)
	scheduler.Start()
	logger.Info("archive scheduler started", "interval", cfg.ArchiveInterval)
	return scheduler
}
