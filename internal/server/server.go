// Package server orchestrates all components: NATS client, optional Postgres pool,
// controller registry, dispatcher, transport, and an HTTP health/diagnostics endpoint.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	comms "github.com/nats-io/nats.go"
	"log/slog"

	"github.com/morezero/action-dispatcher/internal/config"
	"github.com/morezero/action-dispatcher/internal/demo"
	"github.com/morezero/action-dispatcher/internal/transport"
	"github.com/morezero/action-dispatcher/pkg/commsutil"
	"github.com/morezero/action-dispatcher/pkg/controller"
	"github.com/morezero/action-dispatcher/pkg/dispatcher"
	"github.com/morezero/action-dispatcher/pkg/livedb"
	"github.com/morezero/action-dispatcher/pkg/semver"
)

const logPrefix = "server:server"

// Server is the action-dispatcher orchestrator.
type Server struct {
	cfg        *config.Config
	nc         *comms.Conn
	pool       *pgxpool.Pool
	httpServer *http.Server
	transport  *transport.Transport
	factory    *dispatcher.Factory
}

// Run starts the server, blocks until a shutdown signal, then cleans up.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}

	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	slog.Info(fmt.Sprintf("%s - starting action-dispatcher", logPrefix))

	if err := cfg.ValidateForServe(); err != nil {
		return err
	}

	ctx := context.Background()
	s := &Server{cfg: cfg}

	serverVersion, err := semver.ParseServerVersion(cfg.ServerVersion)
	if err != nil {
		return fmt.Errorf("%s - invalid SERVER_VERSION %q: %w", logPrefix, cfg.ServerVersion, err)
	}

	nc, err := commsutil.Connect(cfg.COMMSURL, cfg.COMMSName)
	if err != nil {
		return fmt.Errorf("%s - failed to connect to NATS: %w", logPrefix, err)
	}
	s.nc = nc
	slog.Info(fmt.Sprintf("%s - connected to NATS at %s", logPrefix, cfg.COMMSURL))

	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		pool, err = livedb.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			nc.Close()
			return fmt.Errorf("%s - failed to connect to database: %w", logPrefix, err)
		}
		s.pool = pool

		if cfg.RunMigrations {
			migrationSQL, err := livedb.LoadMigrationFiles(cfg.MigrationPath)
			if err != nil {
				pool.Close()
				nc.Close()
				return fmt.Errorf("%s - failed to load migrations: %w", logPrefix, err)
			}
			if err := livedb.RunMigrations(ctx, pool, migrationSQL); err != nil {
				pool.Close()
				nc.Close()
				return fmt.Errorf("%s - failed to run migrations: %w", logPrefix, err)
			}
		}
	} else {
		slog.Info(fmt.Sprintf("%s - DATABASE_URL not set, Orders/Users controllers are disabled", logPrefix))
	}

	reg := controller.NewRegistry(controller.Config{ServerVersion: serverVersion})
	demo.Register(reg, pool)

	factory := dispatcher.NewFactory(reg, nil, nil)
	s.factory = factory

	tr := transport.New(nc, factory, cfg.DispatcherSubject, cfg.SessionIdleTimeout)
	if err := tr.Start(); err != nil {
		if pool != nil {
			pool.Close()
		}
		nc.Close()
		return fmt.Errorf("%s - failed to start transport: %w", logPrefix, err)
	}
	s.transport = tr
	slog.Info(fmt.Sprintf("%s - transport listening on %s", logPrefix, cfg.DispatcherSubject))

	httpAddr := cfg.HTTPAddr
	if httpAddr == "" {
		httpAddr = fmt.Sprintf("0.0.0.0:%d", cfg.HTTPPort)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { healthHandler(w, r, reg) })
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) { readyHandler(w, r, s) })
	s.httpServer = &http.Server{Addr: httpAddr, Handler: mux}

	go func() {
		slog.Info(fmt.Sprintf("%s - HTTP health server listening on %s", logPrefix, httpAddr))
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error(fmt.Sprintf("%s - HTTP server error: %v", logPrefix, err))
		}
	}()

	slog.Info(fmt.Sprintf("%s - action-dispatcher is ready", logPrefix))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info(fmt.Sprintf("%s - received signal %s, shutting down", logPrefix, sig))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HealthCheckTimeout)
	defer cancel()

	tr.Close()
	s.httpServer.Shutdown(shutdownCtx)
	nc.Drain()
	if pool != nil {
		pool.Close()
	}

	slog.Info(fmt.Sprintf("%s - shutdown complete", logPrefix))
	return nil
}

func healthHandler(w http.ResponseWriter, _ *http.Request, reg *controller.Registry) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"ok","controllers":%d,"actions":%d}`, len(reg.ControllerIDs()), reg.ActionCount())
}

func readyHandler(w http.ResponseWriter, r *http.Request, s *Server) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
	defer cancel()
	if s.pool != nil {
		if err := s.pool.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, `{"status":"unready","reason":%q}`, err.Error())
			return
		}
	}
	if !s.nc.IsConnected() {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"status":"unready","reason":"nats not connected"}`)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"status":"ready"}`)
}
