package cli

import (
	"context"
	"os"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"aisquery/internal/app"
	"aisquery/internal/db"
	"aisquery/internal/domain"
	"aisquery/internal/orchestrator"
)

func init() {
	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Run one natural-language query",
		Long:  "Run one natural-language query through the pipeline and print the result. Use the shell command for follow-up questions that refer back to earlier answers.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runQuery,
	}

	cmd.Flags().StringP("session", "s", "cli", "Session id")
	cmd.Flags().Bool("stages", false, "Print each pipeline stage as it completes")

	RootCmd.AddCommand(cmd)
}

func runQuery(cmd *cobra.Command, args []string) {
	sessionID, _ := cmd.Flags().GetString("session")
	showStages, _ := cmd.Flags().GetBool("stages")

	pipeline, store := setupPipeline(cmd)
	defer store.Close()

	env, err := pipeline.Service.HandleQuery(cmd.Context(), domain.QueryRequest{
		SessionID: sessionID,
		Query:     strings.Join(args, " "),
	}, stagePrinter(showStages))
	if err != nil {
		exitErr("query", err)
	}

	if err := render(os.Stdout, env, formatFlag); err != nil {
		exitErr("render", err)
	}
	if !env.Success {
		os.Exit(2)
	}
}

// setupPipeline exits the process on any setup failure.
func setupPipeline(cmd *cobra.Command) (*app.Pipeline, db.Backend) {
	cfg, err := loadConfig()
	if err != nil {
		exitErr("load config", err)
	}
	logger := newLogger(cfg.LogLevel)

	store, err := openStore(cmd, cfg)
	if err != nil {
		exitErr("open store", err)
	}
	planner, err := app.NewPlanner(cfg.Planner, cfg.Pipeline.PlannerTimeout)
	if err != nil {
		_ = store.Close()
		exitErr("init planner", err)
	}
	clock, err := app.Clock(cmd.Context(), cfg.Pipeline, store, logger)
	if err != nil {
		_ = store.Close()
		exitErr("read data range", err)
	}
	return app.NewPipeline(cfg.Pipeline, planner, store, clock, logger), store
}

func stagePrinter(enabled bool) orchestrator.StageObserver {
	if !enabled {
		return nil
	}
	return orchestrator.ObserverFunc(func(_ context.Context, ev domain.StageEvent) {
		if ev.Status == domain.StageStatusFailed {
			pterm.Warning.Printf("%s failed after %s\n", ev.Stage, ev.Duration)
			return
		}
		pterm.Info.Printf("%s (%s)\n", ev.Stage, ev.Duration)
	})
}
