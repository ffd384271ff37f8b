// Package logging wires the service's two log sinks: JSON lines on stdout
// for the container runtime, and an async-batched Postgres sink that keeps
// ERROR records queryable from the admin side.
package logging

import (
	"log/slog"
	"os"

	"gorm.io/gorm"
)

// Setup installs the stdout JSON logger. Called before the database is up so
// that config and connection failures are still structured.
func Setup() {
	slog.SetDefault(slog.New(stdoutHandler()))
}

// SetupSinks replaces the default logger with the full fan-out: stdout plus
// the Postgres ERROR sink. It returns the PG handler so main can flush it on
// shutdown.
func SetupSinks(db *gorm.DB) *PGHandler {
	pg := NewPGHandler(db)
	slog.SetDefault(slog.New(NewMultiHandler(stdoutHandler(), pg)))
	return pg
}

func stdoutHandler() slog.Handler {
	return slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
}
