package config

import (
	"context"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// History backends.
const (
	HistoryMemory = "memory"
	HistoryRedis  = "redis"
	HistorySQLite = "sqlite"
)

// App holds core runtime configuration shared across services.
type App struct {
	Name                    string        `env:"APP_NAME" envDefault:"notes-quiz"`
	Env                     string        `env:"APP_ENV" envDefault:"development"`
	HTTPAddr                string        `env:"HTTP_ADDR" envDefault:"0.0.0.0:8080"`
	GracefulShutdownTimeout time.Duration `env:"GRACEFUL_SHUTDOWN_SECONDS" envDefault:"20s"`
	// MaxUploadBytes bounds multipart request bodies (PDFs and grading attachments).
	MaxUploadBytes int64 `env:"MAX_UPLOAD_BYTES" envDefault:"33554432"`

	Backend Backend
	Notes   Notes
	History History
	Redis   Redis
	CORS    CORS
}

// Backend configures the service that parses PDFs, generates quizzes and grades.
type Backend struct {
	URL      string        `env:"BACKEND_URL" envDefault:"http://127.0.0.1:8000"`
	Timeout  time.Duration `env:"BACKEND_TIMEOUT" envDefault:"120s"`
	Provider string        `env:"QUIZ_PROVIDER" envDefault:"heuristic"`
	Model    string        `env:"QUIZ_MODEL" envDefault:""`
}

// Notes holds smart-notes defaults applied when a request omits them.
type Notes struct {
	Provider string `env:"NOTES_PROVIDER" envDefault:"openai"`
	Model    string `env:"NOTES_MODEL" envDefault:""`
}

// History selects where history entries are persisted.
type History struct {
	Backend       string `env:"HISTORY_BACKEND" envDefault:"memory"`
	NotesCapacity int    `env:"HISTORY_NOTES_CAPACITY" envDefault:"40"`
	QuizCapacity  int    `env:"HISTORY_QUIZ_CAPACITY" envDefault:"50"`
	SQLitePath    string `env:"HISTORY_SQLITE_PATH" envDefault:"notes-quiz.db"`
	AutoMigrate   bool   `env:"HISTORY_AUTO_MIGRATE" envDefault:"true"`
}

// Redis holds connection settings used by the redis history backend.
type Redis struct {
	Addr      string `env:"REDIS_ADDR" envDefault:"127.0.0.1:6379"`
	DB        int    `env:"REDIS_DB" envDefault:"0"`
	PoolSize  int    `env:"REDIS_POOL_SIZE" envDefault:"10"`
	KeyPrefix string `env:"REDIS_KEY_PREFIX" envDefault:"notes-quiz:"`
}

// CORS holds Cross-Origin Resource Sharing configuration.
type CORS struct {
	AllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000,http://127.0.0.1:3000"`
	AllowedMethods   []string `env:"CORS_ALLOWED_METHODS" envSeparator:"," envDefault:"GET,POST,PUT,DELETE,OPTIONS"`
	AllowedHeaders   []string `env:"CORS_ALLOWED_HEADERS" envSeparator:"," envDefault:"Content-Type,X-Request-ID"`
	AllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS" envDefault:"true"`
	MaxAge           int      `env:"CORS_MAX_AGE" envDefault:"3600"`
}

// Load parses environment variables into App config.
func Load(ctx context.Context) (*App, error) {
	cfg := &App{}
	if err := env.ParseWithOptions(cfg, env.Options{RequiredIfNoDef: true}); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (a *App) validate() error {
	switch a.History.Backend {
	case HistoryMemory, HistoryRedis, HistorySQLite:
	default:
		return fmt.Errorf("parse config: unknown HISTORY_BACKEND %q", a.History.Backend)
	}
	if a.History.NotesCapacity <= 0 || a.History.QuizCapacity <= 0 {
		return fmt.Errorf("parse config: history capacities must be positive")
	}
	return nil
}

// IsProduction reports whether the app runs with production settings.
func (a *App) IsProduction() bool {
	return a.Env == "production"
}
