package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"aisquery/internal/domain"
	"aisquery/internal/orchestrator"
)

func init() {
	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Ask a series of questions in one session",
		Long:  "Read queries line by line from stdin. The session remembers the vessels each answer mentioned. Type :history, :reset or :quit.",
		Run:   runShell,
	}

	cmd.Flags().StringP("session", "s", "shell", "Session id")
	cmd.Flags().Bool("stages", false, "Print each pipeline stage as it completes")

	RootCmd.AddCommand(cmd)
}

func runShell(cmd *cobra.Command, _ []string) {
	sessionID, _ := cmd.Flags().GetString("session")
	showStages, _ := cmd.Flags().GetBool("stages")

	pipeline, store := setupPipeline(cmd)
	defer store.Close()

	if err := shellLoop(cmd, pipeline.Service, sessionID, stagePrinter(showStages), cmd.InOrStdin(), cmd.OutOrStdout()); err != nil {
		exitErr("shell", err)
	}
}

func shellLoop(cmd *cobra.Command, svc *orchestrator.Service, sessionID string, obs orchestrator.StageObserver, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprint(out, "> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
		case ":quit", ":q":
			return nil
		case ":reset":
			if err := svc.Reset(cmd.Context(), sessionID); err != nil {
				return err
			}
			pterm.Success.WithWriter(out).Println("session cleared")
		case ":history":
			conv, ok := svc.History(sessionID)
			if !ok || len(conv.Turns) == 0 {
				fmt.Fprintln(out, "no history")
				break
			}
			for _, t := range conv.Turns {
				fmt.Fprintf(out, "%s  %-9s %s\n", t.At.Format("15:04:05"), t.Role, t.Content)
			}
		default:
			env, err := svc.HandleQuery(cmd.Context(), domain.QueryRequest{SessionID: sessionID, Query: line}, obs)
			if err != nil {
				return err
			}
			if err := render(out, env, formatFlag); err != nil {
				return err
			}
		}
		fmt.Fprint(out, "> ")
	}
	return scanner.Err()
}
