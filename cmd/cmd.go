// Package cmd provides CLI commands for screenlens.
//
// Commands:
//   - serve: HTTP API server for screenplay analysis
//   - dashboard: browser dashboard server
//   - migrate: apply database migrations and exit
//
// Signal handling and graceful shutdown are implemented
// for all commands via context cancellation.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/screenlens/screenlens/internal/log"
)

// Execute is the main entry point for the screenlens CLI application.
func Execute() error {
	// .env is optional; environment variables win either way.
	_ = godotenv.Load()

	// Initialize logger once at entry point
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(log.New(log.Config{Level: level}))

	if len(os.Args) < 2 {
		runHelp()
		return nil
	}

	switch os.Args[1] {
	case "serve":
		return runServe()
	case "dashboard":
		return runDashboard()
	case "migrate":
		return runMigrate()
	case "version", "--version", "-v":
		runVersion()
		return nil
	case "help", "--help", "-h":
		runHelp()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

// runHelp displays the help message.
func runHelp() {
	fmt.Print(`screenlens - AI-powered screenplay analysis service

Usage:
  screenlens <command> [flags]

Commands:
  serve      Start the HTTP API server (default 127.0.0.1:8000)
  dashboard  Start the browser dashboard server (default 127.0.0.1:8501)
  migrate    Apply database migrations and exit
  version    Print version information
  help       Show this help message

Flags:
  --addr host:port   Listen address for serve and dashboard

Environment:
  GEMINI_KEY, MODEL_CHOICE, DB_* and MONGODB_* variables configure the
  service; see config documentation for the full list. A .env file in the
  working directory is loaded if present.
`)
}
