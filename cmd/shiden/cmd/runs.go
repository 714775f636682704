package cmd

import (
	"fmt"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ahoge-moe/Shiden/internal/models"
	"github.com/ahoge-moe/Shiden/internal/repository"
)

var (
	runsLimit  int
	runsStatus string
	runsShow   string
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect the job run history",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent job runs, newest first",
	RunE:  runRunsList,
}

func init() {
	runsListCmd.Flags().IntVar(&runsLimit, "limit", 20, "maximum number of runs to show")
	runsListCmd.Flags().StringVar(&runsStatus, "status", "", "only runs with this status (running, succeeded, failed, killed)")
	runsListCmd.Flags().StringVar(&runsShow, "show", "", "only runs for this show")
	runsCmd.AddCommand(runsListCmd)
	rootCmd.AddCommand(runsCmd)
}

func runRunsList(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.History.Enabled {
		return fmt.Errorf("job history is disabled (history.enabled=false)")
	}

	db, repo, err := openHistoryOnly(cmd.Context(), cfg, slog.Default())
	if err != nil {
		return err
	}
	defer db.Close()

	filter := repository.JobRunFilter{Status: models.JobRunStatus(runsStatus), ShowName: runsShow}
	runs, total, err := repo.List(cmd.Context(), filter, 0, runsLimit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTARTED\tTRIGGER\tSTATUS\tINPUT\tRESULT")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			run.ID, humanize.Time(run.StartedAt), run.Trigger, run.Status, run.InputFile, describeRun(run))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\n%d of %d runs\n", len(runs), total)
	return nil
}

func describeRun(run *models.JobRun) string {
	switch run.Status {
	case models.JobRunSucceeded:
		return fmt.Sprintf("%s (%s, %s, %s)", run.OutputName, humanize.IBytes(uint64(max(run.OutputSize, 0))),
			run.Strategy, (time.Duration(run.DurationMs) * time.Millisecond).Round(time.Second))
	case models.JobRunFailed, models.JobRunKilled:
		return fmt.Sprintf("%d %s", int(run.ErrorCode), run.ErrorName)
	default:
		return "-"
	}
}
