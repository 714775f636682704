package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ahoge-moe/Shiden/internal/queue"
)

var queueJSON bool

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect or clear the persisted job queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued jobs, head first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		jobs, err := queue.NewFileQueue(cfg.Storage.QueueFile).List()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if queueJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(jobs)
		}

		if len(jobs) == 0 {
			fmt.Fprintln(out, "queue is empty")
			return nil
		}
		for i, job := range jobs {
			fmt.Fprintf(out, "%3d  %s -> %s\n", i+1, job.InputFile, job.OutputFolder)
		}
		return nil
	},
}

var queueWipeCmd = &cobra.Command{
	Use:   "wipe",
	Short: "Remove every queued job",
	Long:  "Remove the queue file. Run this only while no serve process is using it.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		q := queue.NewFileQueue(cfg.Storage.QueueFile)
		if err := q.Wipe(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "wiped %s\n", q.Path())
		return nil
	},
}

func init() {
	queueListCmd.Flags().BoolVar(&queueJSON, "json", false, "output jobs as JSON")
	queueCmd.AddCommand(queueListCmd, queueWipeCmd)
	rootCmd.AddCommand(queueCmd)
}
