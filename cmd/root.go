/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tristendillon/delombok/core/config"
	"github.com/tristendillon/delombok/core/logger"
	"github.com/tristendillon/delombok/core/pipeline"
)

const (
	ExitSuccess     = 0
	ExitToolFailure = 1
	ExitConfigError = 2
	ExitLookupError = 3
	ExitIOError     = 4
)

var rootCmd = &cobra.Command{
	Use:   "delombok",
	Short: "Delomboks a source tree and keeps its directory layout.",
	Long: `delombok runs lombok's delombok over every file under a root directory
and moves each flattened output file back to the path of its source.
Files named in the exclusion set are copied through unchanged.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setupLogging,
}

var (
	configPath string
	logfile    string
	logFormat  string
	verbose    bool
	noColor    bool
)

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		logger.Error("%v", err)
		os.Exit(exitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ./"+config.FileName+" when present)")
	rootCmd.PersistentFlags().StringVar(&logfile, "logfile", "", "File to write logs to")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format: text|json")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored log output")

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &usageError{err}
	})
}

func setupLogging(cmd *cobra.Command, args []string) error {
	logger.SetVerbose(verbose)
	logger.SetColor(!noColor)

	format, err := logger.ParseFormat(logFormat)
	if err != nil {
		return &usageError{err}
	}
	logger.SetFormat(format)

	if logfile != "" {
		f, err := os.OpenFile(logfile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		logger.AddWriterForAll(f)
	}
	return nil
}

type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func exitCode(err error) int {
	var ue *usageError
	if errors.As(err, &ue) {
		return ExitConfigError
	}

	switch pipeline.Classify(err) {
	case pipeline.OutcomeOK:
		return ExitSuccess
	case pipeline.OutcomeToolError:
		return ExitToolFailure
	case pipeline.OutcomeConfigError:
		return ExitConfigError
	case pipeline.OutcomeLookupError:
		return ExitLookupError
	default:
		return ExitIOError
	}
}
