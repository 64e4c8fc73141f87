package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tristendillon/delombok/core/pipeline"
)

var planFlags pipelineFlags

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show what run would do without touching any file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := planFlags.load(cmd, true)
		if err != nil {
			return err
		}

		res, err := newPipeline(cmd, cfg).Plan()
		if err != nil {
			return err
		}
		printPlan(cmd.OutOrStdout(), res)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(planCmd)
	planFlags.register(planCmd)
}

func printPlan(w io.Writer, res *pipeline.Result) {
	fmt.Fprintf(w, "Root:    %s\n", res.Root)
	fmt.Fprintf(w, "Output:  %s\n", res.Output)
	fmt.Fprintf(w, "Sources: %d (%d to delombok, %d excluded)\n", res.Sources, len(res.Included), len(res.Excluded))

	if len(res.Excluded) > 0 {
		fmt.Fprintln(w, "Excluded:")
		for _, rel := range res.Excluded {
			fmt.Fprintf(w, "  %s\n", rel)
		}
	}

	if len(res.Duplicates) > 0 {
		fmt.Fprintln(w, "Shared filenames (first path receives the output):")
		for _, dup := range res.Duplicates {
			fmt.Fprintf(w, "  %s: %s\n", dup.Base, strings.Join(dup.RelPaths, ", "))
		}
	}

	fmt.Fprintln(w, "Command:")
	if res.Command == nil {
		fmt.Fprintln(w, "  delombok skipped (every source is excluded)")
		return
	}
	fmt.Fprintf(w, "  %s\n", shellJoin(res.Command))
}

// shellJoin quotes arguments that a shell would split.
func shellJoin(argv []string) string {
	quoted := make([]string, len(argv))
	for i, arg := range argv {
		if arg == "" || strings.ContainsAny(arg, " \t\n'\"\\$") {
			quoted[i] = strconv.Quote(arg)
		} else {
			quoted[i] = arg
		}
	}
	return strings.Join(quoted, " ")
}
