package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/notes-quiz/internal/config"
	"github.com/gokatarajesh/notes-quiz/internal/history"
	"github.com/gokatarajesh/notes-quiz/internal/logging"
	"github.com/gokatarajesh/notes-quiz/internal/metrics"
	"github.com/gokatarajesh/notes-quiz/internal/notes"
	"github.com/gokatarajesh/notes-quiz/internal/quiz"
	"github.com/gokatarajesh/notes-quiz/internal/remote"
	"github.com/gokatarajesh/notes-quiz/internal/server"
	"github.com/gokatarajesh/notes-quiz/internal/validation"
	ws "github.com/gokatarajesh/notes-quiz/pkg/http/ws"
)

// Application aggregates shared infrastructure (history backend, HTTP server).
type Application struct {
	cfg    *config.App
	logger zerolog.Logger

	redis   *redis.Client
	db      *sql.DB
	http    *http.Server
	quizzes *quiz.Registry
}

// New bootstraps the logger, metrics, history persistence and HTTP server.
func New(ctx context.Context, cfg *config.App) (*Application, error) {
	logger := logging.New(cfg.Name, cfg.Env)
	logger.Info().Msg("starting application bootstrap")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	a := &Application{cfg: cfg, logger: logger}

	persister, err := a.openPersister(ctx)
	if err != nil {
		a.closeStores()
		return nil, err
	}

	store := history.NewStore(persister, history.Options{
		NotesCapacity: cfg.History.NotesCapacity,
		QuizCapacity:  cfg.History.QuizCapacity,
	}, logger, m)
	if err := store.Load(ctx); err != nil {
		logger.Warn().Err(err).Msg("history restored with errors")
	}

	client := remote.NewClient(remote.Config{
		BaseURL:  cfg.Backend.URL,
		Timeout:  cfg.Backend.Timeout,
		Provider: cfg.Backend.Provider,
		Model:    cfg.Backend.Model,
	}, logger, m)

	v := validation.New()
	hub := ws.NewHub(logger)

	a.quizzes = quiz.NewRegistry(quiz.Dependencies{
		Generator: client,
		Grader:    client,
		Extractor: client,
		History:   store,
		Notifier:  hub,
		Validator: v,
		Metrics:   m,
	}, logger)

	notesSvc := notes.NewService(client, store, v, notes.Defaults{
		Provider: cfg.Notes.Provider,
		Model:    cfg.Notes.Model,
	}, logger)

	a.http = server.NewHTTPServer(cfg, logger, server.Deps{
		Quizzes:  a.quizzes,
		Notes:    notesSvc,
		History:  store,
		Hub:      hub,
		Gatherer: reg,
	})

	logger.Info().
		Str("history_backend", cfg.History.Backend).
		Str("backend_url", cfg.Backend.URL).
		Msg("application ready")
	return a, nil
}

// openPersister connects the configured history backend. Memory needs none.
func (a *Application) openPersister(ctx context.Context) (history.Persister, error) {
	switch a.cfg.History.Backend {
	case config.HistoryRedis:
		a.redis = redis.NewClient(&redis.Options{
			Addr:     a.cfg.Redis.Addr,
			DB:       a.cfg.Redis.DB,
			PoolSize: a.cfg.Redis.PoolSize,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		return history.NewRedisPersister(a.redis, a.cfg.Redis.KeyPrefix), nil

	case config.HistorySQLite:
		db, err := history.OpenSQLite(a.cfg.History.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.db = db
		if a.cfg.History.AutoMigrate {
			if err := history.Migrate(db, "up"); err != nil {
				return nil, err
			}
		}
		return history.NewSQLitePersister(db), nil

	default:
		return nil, nil
	}
}

// Run starts the HTTP server and waits for termination signals.
func (a *Application) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info().Str("addr", a.cfg.HTTPAddr).Msg("http server listening")
		if err := a.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case sig := <-sigCh:
		a.logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-errCh:
		runErr = fmt.Errorf("http server error: %w", err)
	case <-ctx.Done():
		a.logger.Warn().Msg("context canceled")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.GracefulShutdownTimeout)
	defer cancel()

	if err := a.http.Shutdown(shutdownCtx); err != nil {
		a.logger.Error().Err(err).Msg("http shutdown error")
	}

	a.quizzes.Wait()
	a.closeStores()

	a.logger.Info().Msg("shutdown complete")
	return runErr
}

func (a *Application) closeStores() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error().Err(err).Msg("redis shutdown error")
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error().Err(err).Msg("sqlite shutdown error")
		}
	}
}
