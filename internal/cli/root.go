// Package cli implements the aisquery command line: ask the pipeline a
// question against a local store, or load AIS reports into it.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"aisquery/internal/config"
	"aisquery/internal/db"
)

var (
	dbPath     string
	formatFlag string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "aisquery",
	Short: "Ask questions about vessel movements in plain language",
	Long:  "Query AIS position data in plain language: trajectories, loitering and vessel activity. Reads a local SQLite store by default.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "SQLite database path (default: $AISQ_SQLITE_PATH or aisquery.db)")
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "table", "Output format: table, text or json")
}

func loadConfig() (config.CLIConfig, error) {
	cfg, err := config.LoadCLIConfig()
	if err != nil {
		return cfg, err
	}
	if dbPath != "" {
		cfg.Store.Driver = "sqlite"
		cfg.Store.SQLitePath = dbPath
	}
	return cfg, cfg.Store.Validate()
}

func openStore(cmd *cobra.Command, cfg config.CLIConfig) (db.Backend, error) {
	return db.Open(cmd.Context(), cfg.Store.Driver, cfg.Store.DSN, cfg.Store.SQLitePath)
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "info":
		l = slog.LevelInfo
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
