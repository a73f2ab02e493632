// Package server wires the store, command engine, replication role and
// ambient background jobs together into one running node: the accept
// loop for client connections, the admin HTTP surface, the active
// expiry sweeper and the stats reporter.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/nishisan-dev/redistore/internal/config"
	"github.com/nishisan-dev/redistore/internal/expiry"
	"github.com/nishisan-dev/redistore/internal/primary"
	"github.com/nishisan-dev/redistore/internal/replica"
	"github.com/nishisan-dev/redistore/internal/server/observability"
	"github.com/nishisan-dev/redistore/internal/session"
	"github.com/nishisan-dev/redistore/internal/snapshot"
	"github.com/nishisan-dev/redistore/internal/stats"
	"github.com/nishisan-dev/redistore/internal/store"
)

// Run starts the node described by cfg and blocks until ctx is
// cancelled. It resolves the startup snapshot, performs the replica
// handshake when configured as a replica, starts the ambient
// background jobs, and then runs the client accept loop.
func Run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("listening on port %d: %w", cfg.Port, err)
	}
	return RunWithListener(ctx, ln, cfg, logger)
}

// RunWithListener is Run with an already-bound listener, so tests can
// pass one bound to an ephemeral port instead of a fixed one.
func RunWithListener(ctx context.Context, ln net.Listener, cfg *config.Config, logger *slog.Logger) error {
	defer ln.Close()

	s := store.New()

	records, err := snapshot.Resolve(ctx, cfg.Dir, cfg.DBFilename)
	if err != nil {
		return fmt.Errorf("resolving startup snapshot: %w", err)
	}
	s.ApplySnapshot(records)

	logger.Info("server listening", "address", ln.Addr().String())

	var activeConns atomic.Int32
	var pr *primary.Primary
	var rc *replica.Client

	listeningPort := cfg.Port
	if tcpAddr, ok := ln.Addr().(*net.TCPAddr); ok && tcpAddr.Port != 0 {
		listeningPort = tcpAddr.Port
	}

	if cfg.IsReplica() {
		rc = replica.New(cfg.ReplicaOf.Host, cfg.ReplicaOf.Port, s, logger)
		if err := rc.Handshake(ctx, listeningPort); err != nil {
			return fmt.Errorf("replica handshake: %w", err)
		}
		logger.Info("replica handshake complete", "primary", fmt.Sprintf("%s:%d", cfg.ReplicaOf.Host, cfg.ReplicaOf.Port))
		go func() {
			if err := rc.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("replica link lost, exiting", "error", err)
			}
		}()
	} else {
		pr = primary.New(logger, cfg.Throttle.BytesPerSecRaw)
	}

	sweeper, err := expiry.New(cfg.Expiry.Schedule, s, logger)
	if err != nil {
		return fmt.Errorf("starting expiry sweeper: %w", err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	reporter := stats.New(statsSource(s, pr, rc), cfg.Stats.Interval, logger)
	go reporter.Run(ctx)

	events := observability.NewEventRing(1000)
	if pr != nil {
		pr.SetEvents(events)
	}
	if cfg.Admin.Enabled {
		adminSrv := startAdmin(cfg, &nodeStatus{store: s, primary: pr, replica: rc}, events, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			adminSrv.Shutdown(shutdownCtx)
		}()
	}

	deps := session.Deps{
		Store:       s,
		Cfg:         cfg,
		Primary:     pr,
		Logger:      logger,
		ActiveConns: &activeConns,
	}
	if rc != nil {
		deps.ReplicaOffset = rc.Offset
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down server")
		ln.Close()
	}()

	return acceptLoop(ctx, ln, deps, logger)
}

func acceptLoop(ctx context.Context, ln net.Listener, deps session.Deps, logger *slog.Logger) error {
	consecutiveErrors := 0
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				logger.Info("server shutdown complete")
				return nil
			default:
				consecutiveErrors++
				logger.Error("accepting connection", "error", err, "consecutive_errors", consecutiveErrors)
				if consecutiveErrors > 5 {
					delay := time.Duration(consecutiveErrors) * 100 * time.Millisecond
					if delay > 5*time.Second {
						delay = 5 * time.Second
					}
					time.Sleep(delay)
				}
				continue
			}
		}

		consecutiveErrors = 0
		go session.Handle(ctx, conn, deps)
	}
}

func statsSource(s *store.Store, pr *primary.Primary, rc *replica.Client) stats.Source {
	src := stats.Source{KeyCount: s.Len}
	switch {
	case pr != nil:
		src.ReplOffset = pr.Offset
		src.ReplicaCount = func() int { return len(pr.Replicas()) }
	case rc != nil:
		src.ReplOffset = rc.Offset
	}
	return src
}

func startAdmin(cfg *config.Config, provider observability.StatusProvider, events *observability.EventRing, logger *slog.Logger) *http.Server {
	acl := observability.NewACL(cfg.Admin.ParsedCIDRs)
	router := observability.NewRouter(provider, events, acl)

	srv := &http.Server{
		Addr:              cfg.Admin.Listen,
		Handler:           router,
		ReadHeaderTimeout: 2 * time.Second,
	}

	go func() {
		logger.Info("admin surface listening", "address", cfg.Admin.Listen)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("admin surface error", "error", err)
		}
	}()

	return srv
}
