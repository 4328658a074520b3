// Package server orchestrates all components: manifest, integrations, audit stores, COMMS,
// the inbound transport and the HTTP surface.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	comms "github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/morezero/actions-dispatcher/internal/config"
	"github.com/morezero/actions-dispatcher/internal/integrations"
	"github.com/morezero/actions-dispatcher/pkg/blocking"
	"github.com/morezero/actions-dispatcher/pkg/bootstrap"
	"github.com/morezero/actions-dispatcher/pkg/commsutil"
	"github.com/morezero/actions-dispatcher/pkg/db"
	"github.com/morezero/actions-dispatcher/pkg/dispatcher"
	"github.com/morezero/actions-dispatcher/pkg/events"
	"github.com/morezero/actions-dispatcher/pkg/localaudit"
	"github.com/morezero/actions-dispatcher/pkg/metrics"
	"github.com/morezero/actions-dispatcher/pkg/registry"
	"github.com/morezero/actions-dispatcher/pkg/transport"
)

const logPrefix = "server:server"

// Server is the actions-dispatcher orchestrator.
type Server struct {
	cfg        *config.Config
	reg        *registry.Registry
	disp       transport.Dispatcher
	systems    *bootstrap.ResolvedSystems
	httpServer *http.Server
	gatherer   prometheus.Gatherer
	recent     recentSource
	// checks are run by /health in name order; any error marks the service unhealthy.
	checks map[string]func(ctx context.Context) error
}

// resources are closed in reverse order of acquisition on shutdown or a failed start.
type resources struct {
	nc    *comms.Conn
	pool  *pgxpool.Pool
	audit *localaudit.Store
}

func (r *resources) close() {
	if r.audit != nil {
		if err := r.audit.Close(); err != nil {
			slog.Warn(fmt.Sprintf("%s - closing local audit store: %v", logPrefix, err))
		}
	}
	if r.pool != nil {
		r.pool.Close()
	}
	if r.nc != nil {
		if err := r.nc.Drain(); err != nil {
			r.nc.Close()
		}
	}
}

// stopTransport cancels the inbound transport and, while it is still running, waits for it
// to return so its in-flight reply is written before the publishers are closed.
func stopTransport(cancel context.CancelFunc, done <-chan error, running bool) {
	cancel()
	if !running {
		return
	}
	if err := <-done; err != nil {
		slog.Warn(fmt.Sprintf("%s - transport stopped with error: %v", logPrefix, err))
	}
}

// SetupLogging installs the default slog handler for the given level name.
func SetupLogging(level string) {
	var logLevel slog.Level
	switch level {
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
}

// BuildRegistry loads the systems manifest and registers every enabled integration.
// The returned registry is frozen.
func BuildRegistry(cfg *config.Config, pool *blocking.Pool) (*registry.Registry, *bootstrap.ResolvedSystems, error) {
	manifest, err := bootstrap.LoadSystemsConfig(cfg.SystemsFile)
	if err != nil {
		return nil, nil, fmt.Errorf("%s - failed to load systems manifest: %w", logPrefix, err)
	}
	systems := bootstrap.CreateResolvedSystems(manifest)

	reg := registry.NewRegistry(registry.NewRegistryParams{Config: registry.DefaultConfig()})
	err = integrations.Register(reg, integrations.Deps{
		Pool:            pool,
		Systems:         systems,
		TeamID:          cfg.TeamID,
		LLMEndpoint:     cfg.LLMEndpoint,
		GitFlameAPIURL:  cfg.GitFlameAPIURL,
		OutboundTimeout: cfg.OutboundTimeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%s - failed to register integrations: %w", logPrefix, err)
	}
	reg.Freeze()
	return reg, systems, nil
}

// Run starts the dispatcher, blocks until a shutdown signal or a fatal transport error,
// then cleans up.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	SetupLogging(cfg.LogLevel)
	if err := cfg.ValidateForServe(); err != nil {
		return err
	}

	slog.Info(fmt.Sprintf("%s - Starting actions-dispatcher (transport=%s)", logPrefix, cfg.Transport))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Step 1: manifest + registry
	workers := blocking.NewPool(cfg.BlockingWorkers)
	reg, systems, err := BuildRegistry(cfg, workers)
	if err != nil {
		return err
	}
	slog.Info(fmt.Sprintf("%s - Systems manifest %s@%s, %d actions registered",
		logPrefix, systems.Name(), systems.Version(), reg.Len()))

	s := &Server{
		cfg:      cfg,
		reg:      reg,
		systems:  systems,
		gatherer: prometheus.DefaultGatherer,
		checks:   map[string]func(ctx context.Context) error{},
	}
	res := &resources{}

	// Step 2: dispatched-event publishers
	var publishers []events.EventPublisher

	if cfg.NeedsCOMMS() {
		nc, err := commsutil.Connect(cfg.COMMSURL, cfg.COMMSName, commsutil.ConnectOptions{})
		if err != nil {
			return fmt.Errorf("%s - failed to connect to COMMS: %w", logPrefix, err)
		}
		res.nc = nc
		s.checks["comms"] = func(context.Context) error {
			if !nc.IsConnected() {
				return fmt.Errorf("COMMS status %s", nc.Status())
			}
			return nil
		}
		if cfg.EventsEnabled {
			publishers = append(publishers, events.NewCommsPublisher(nc, &events.CommsPublisherOpts{
				GlobalSubject: cfg.DispatchedEventSubject,
			}))
		}
	}

	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			res.close()
			return fmt.Errorf("%s - failed to connect to database: %w", logPrefix, err)
		}
		res.pool = pool
		if cfg.RunMigrations {
			migrations, err := db.LoadMigrationFiles(cfg.MigrationPath)
			if err != nil {
				res.close()
				return fmt.Errorf("%s - failed to load migrations: %w", logPrefix, err)
			}
			if err := db.RunMigrations(ctx, pool, migrations); err != nil {
				res.close()
				return fmt.Errorf("%s - failed to run migrations: %w", logPrefix, err)
			}
		}
		publishers = append(publishers, db.NewAuditPublisher(db.NewRepository(pool)))
		s.checks["database"] = pool.Ping
	}

	if cfg.AuditSQLitePath != "" {
		store, err := localaudit.Open(cfg.AuditSQLitePath)
		if err != nil {
			res.close()
			return fmt.Errorf("%s - failed to open local audit store: %w", logPrefix, err)
		}
		res.audit = store
		publishers = append(publishers, store)
		s.recent = store
	}

	// Step 3: dispatcher
	m, err := metrics.New(prometheus.DefaultRegisterer)
	if err != nil {
		res.close()
		return fmt.Errorf("%s - failed to register metrics: %w", logPrefix, err)
	}
	s.disp = dispatcher.NewDispatcher(dispatcher.NewDispatcherParams{
		Registry:  reg,
		Publisher: events.NewMultiPublisher(publishers...),
		Metrics:   m,
	})

	// Step 4: inbound transport
	transportErr := make(chan error, 1)
	var sub *comms.Subscription
	switch cfg.Transport {
	case config.TransportWebsocket:
		listener := transport.NewWebsocketListener(transport.WebsocketConfig{
			Endpoint:      cfg.SocketEndpoint,
			TeamID:        cfg.TeamID,
			AccessToken:   cfg.AccessToken,
			ReconnectWait: cfg.ReconnectWait,
			MaxReconnects: cfg.MaxReconnects,
		}, s.disp)
		s.checks["transport"] = func(context.Context) error {
			if !listener.Connected() {
				return errors.New("socket not connected")
			}
			return nil
		}
		go func() {
			transportErr <- listener.RunWithReconnect(ctx)
		}()
	case config.TransportNATS:
		subject := cfg.ResolvedDispatchSubject()
		sub, err = transport.SubscribeNATS(ctx, res.nc, subject, s.disp)
		if err != nil {
			res.close()
			return fmt.Errorf("%s - failed to subscribe to %s: %w", logPrefix, subject, err)
		}
	case config.TransportNone:
		slog.Info(fmt.Sprintf("%s - No inbound transport; dispatch via HTTP only", logPrefix))
	}

	// Step 5: HTTP surface
	if cfg.HTTPPort > 0 {
		httpAddr := fmt.Sprintf(":%d", cfg.HTTPPort)
		s.httpServer = &http.Server{Addr: httpAddr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
		go func() {
			slog.Info(fmt.Sprintf("%s - HTTP server listening on %s", logPrefix, httpAddr))
			if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
				slog.Error(fmt.Sprintf("%s - HTTP server error: %v", logPrefix, err))
			}
		}()
	}

	slog.Info(fmt.Sprintf("%s - actions-dispatcher is ready", logPrefix))

	// Wait for shutdown signal or a transport that gave up
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	var runErr error
	transportRunning := cfg.Transport == config.TransportWebsocket
	select {
	case sig := <-sigCh:
		slog.Info(fmt.Sprintf("%s - Received signal %s, shutting down", logPrefix, sig))
	case err := <-transportErr:
		transportRunning = false
		if err != nil {
			slog.Error(fmt.Sprintf("%s - transport stopped: %v", logPrefix, err))
			runErr = err
		}
	}

	// Graceful shutdown
	stopTransport(cancel, transportErr, transportRunning)
	if sub != nil {
		sub.Unsubscribe()
	}
	if s.httpServer != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		s.httpServer.Shutdown(shutdownCtx)
		done()
	}
	res.close()

	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
	return runErr
}
