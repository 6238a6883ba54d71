// Package cmd contains the strand server entry points: command
// dispatch, configuration loading and dependency wiring.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/strandhq/strand/internal/config"
	"github.com/strandhq/strand/internal/log"
)

// Version information (injected at build time via ldflags).
var (
	Version   = "0.0.1"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Execute is the main entry point. All application logic lives in the
// cmd package, leaving main.go as a minimal entry point.
func Execute() error {
	// .env is optional; the environment wins over it either way.
	_ = godotenv.Load()

	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version", "--version", "-v":
			printVersionInfo()
			return nil
		case "help", "--help", "-h":
			printHelp()
			return nil
		case "migrate":
			return runMigrate()
		case "serve":
			return runServe()
		default:
			printHelp()
			return fmt.Errorf("unknown command %q", os.Args[1])
		}
	}

	return runServe()
}

// initLogger builds the process logger from config and installs it as
// the slog default.
func initLogger(cfg *config.Config) *slog.Logger {
	logger := log.New(log.Config{
		Level: log.ParseLevel(cfg.Log.Level),
		JSON:  cfg.Log.JSON,
	})
	slog.SetDefault(logger)
	return logger
}

func printVersionInfo() {
	fmt.Printf("strand v%s\n", Version)
	fmt.Printf("Build: %s\n", BuildTime)
	fmt.Printf("Commit: %s\n", GitCommit)
}

func printHelp() {
	fmt.Println("strand - chat stream, artifact and vote coordination server")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  strand serve       Start the HTTP server (default)")
	fmt.Println("  strand migrate     Apply database migrations and exit")
	fmt.Println("  strand version     Show version information")
	fmt.Println("  strand help        Show this help")
	fmt.Println()
	fmt.Println("Configuration is read from ./config.yaml, ~/.strand/config.yaml")
	fmt.Println("and STRAND_* environment variables. A .env file is loaded when")
	fmt.Println("present. STRAND_OPENAI_API_KEY is required for serve.")
}
