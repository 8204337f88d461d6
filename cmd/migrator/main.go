package main

import (
	"flag"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gokatarajesh/notes-quiz/internal/history"
)

func main() {
	var (
		command = flag.String("command", "up", "Migration command: up, down, or status")
		path    = flag.String("db", "", "SQLite history database path (defaults to HISTORY_SQLITE_PATH)")
	)
	flag.Parse()

	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

	if os.Getenv("APP_ENV") != "production" {
		_ = godotenv.Load("configs/.env")
	}

	dbPath := *path
	if dbPath == "" {
		dbPath = getEnv("HISTORY_SQLITE_PATH", "notes-quiz.db")
	}

	db, err := history.OpenSQLite(dbPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", dbPath).Msg("failed to open database")
	}
	defer db.Close()

	log.Info().Str("path", dbPath).Str("command", *command).Msg("connected to database")

	switch *command {
	case "up", "down", "status":
		if err := history.Migrate(db, *command); err != nil {
			log.Fatal().Err(err).Str("command", *command).Msg("migration failed")
		}
		log.Info().Str("command", *command).Msg("migration command finished")
	default:
		log.Fatal().Str("command", *command).Msg("unknown command. Use: up, down, or status")
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
