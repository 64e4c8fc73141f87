package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var reconcileFlags pipelineFlags

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Move flat files in the output directory back under their source paths",
	Long: `Runs only the last step of "run": every file in the output directory is
matched to the source with the same filename and moved to that source's
relative path. Files already in place are left alone.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := reconcileFlags.load(cmd, false)
		if err != nil {
			return err
		}

		started := time.Now()
		res, runErr := newPipeline(cmd, cfg).Reconcile(cmd.Context())
		writeReport(cfg, res, runErr, started)
		if runErr != nil {
			return fmt.Errorf("reconcile failed: %w", runErr)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
	reconcileFlags.register(reconcileCmd)
}
