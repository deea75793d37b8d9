package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-sync/internal/api"
	"github.com/vovakirdan/wirechat-sync/internal/config"
	"github.com/vovakirdan/wirechat-sync/internal/conn"
	"github.com/vovakirdan/wirechat-sync/internal/core"
	"github.com/vovakirdan/wirechat-sync/internal/engine"
	"github.com/vovakirdan/wirechat-sync/internal/metrics"
	"github.com/vovakirdan/wirechat-sync/internal/store"
	"github.com/vovakirdan/wirechat-sync/internal/store/sqlite"
)

const shutdownTimeout = 5 * time.Second

// App wires the engine to its API client, local snapshot and metrics endpoint.
type App struct {
	engine        *engine.Engine
	store         store.Store
	metrics       *metrics.Metrics
	metricsServer *stdhttp.Server
	log           *zerolog.Logger
}

// Options lets callers replace collaborators, e.g. in tests.
type Options struct {
	API    api.Client
	Dialer conn.Dialer
	Store  store.Store
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger, opts Options) (*App, error) {
	st := opts.Store
	if st == nil && cfg.DatabasePath != "" {
		s, err := sqlite.New(cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("init store: %w", err)
		}
		logger.Info().Str("db_path", cfg.DatabasePath).Msg("snapshot store initialized")
		st = s
	}

	client := opts.API
	if client == nil {
		c, err := api.NewHTTPClient(cfg.APIURL, cfg.Token, nil, logger)
		if err != nil {
			closeStore(st, logger)
			return nil, err
		}
		client = c
	}

	m := metrics.New()
	eng, err := engine.New(engine.Options{
		Config:  *cfg,
		API:     client,
		Dialer:  opts.Dialer,
		Logger:  logger,
		Metrics: m,
	})
	if err != nil {
		closeStore(st, logger)
		return nil, err
	}

	a := &App{engine: eng, store: st, metrics: m, log: logger}
	if cfg.MetricsAddr != "" {
		mux := stdhttp.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		a.metricsServer = &stdhttp.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}
	return a, nil
}

// Engine exposes the running engine, e.g. to attach listeners.
func (a *App) Engine() *engine.Engine { return a.engine }

// Metrics exposes the collectors.
func (a *App) Metrics() *metrics.Metrics { return a.metrics }

// Run loads the chat list, keeps the session in sync until ctx is cancelled or
// the connection ends for good, and saves the chat snapshot on the way out.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)
	if a.metricsServer != nil {
		go func() {
			a.log.Info().Str("addr", a.metricsServer.Addr).Msg("serving metrics")
			if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
				serverErr <- err
			}
		}()
	}
	defer a.cleanup()

	if err := a.loadChats(ctx); err != nil {
		return err
	}

	engineErr := make(chan error, 1)
	go func() { engineErr <- a.engine.Run(ctx) }()

	select {
	case err := <-engineErr:
		a.saveSnapshot()
		return err
	case err := <-serverErr:
		a.engine.Close()
		<-engineErr
		a.saveSnapshot()
		return fmt.Errorf("metrics server: %w", err)
	}
}

// loadChats fetches the chat list, falling back to the last snapshot when the API is unreachable.
func (a *App) loadChats(ctx context.Context) error {
	chats, err := a.engine.LoadChats(ctx, api.ChatFilter{})
	if err == nil {
		a.log.Info().Int("chats", len(chats)).Msg("chat list loaded")
		return nil
	}
	var se *api.StatusError
	if errors.As(err, &se) && (se.Code == stdhttp.StatusUnauthorized || se.Code == stdhttp.StatusForbidden) {
		return fmt.Errorf("%w: %v", conn.ErrUnauthorized, err)
	}
	a.log.Warn().Err(err).Msg("chat list unavailable, using snapshot")

	if a.store == nil {
		return nil
	}
	records, err := a.store.LoadChats(ctx)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	restored := make([]core.Chat, len(records))
	for i, r := range records {
		restored[i] = r.Chat()
	}
	if _, err := a.engine.Restore(ctx, restored); err != nil {
		return err
	}
	a.log.Info().Int("chats", len(restored)).Msg("chat list restored from snapshot")
	return nil
}

func (a *App) saveSnapshot() {
	if a.store == nil {
		return
	}
	chats := a.engine.Chats()
	records := make([]store.ChatRecord, len(chats))
	for i, c := range chats {
		records[i] = store.FromChat(c)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.store.SaveChats(ctx, records); err != nil {
		a.log.Warn().Err(err).Msg("failed to save chat snapshot")
		return
	}
	a.log.Info().Int("chats", len(records)).Msg("chat snapshot saved")
}

// cleanup stops the metrics server and closes the store.
func (a *App) cleanup() {
	if a.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			a.log.Warn().Err(err).Msg("failed to stop metrics server")
		}
	}
	closeStore(a.store, a.log)
}

func closeStore(st store.Store, logger *zerolog.Logger) {
	if st == nil {
		return
	}
	if err := st.Close(); err != nil {
		logger.Warn().Err(err).Msg("failed to close store")
	} else {
		logger.Info().Msg("store closed")
	}
}
