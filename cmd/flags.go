package cmd

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/tristendillon/delombok/core/config"
	"github.com/tristendillon/delombok/core/invoker"
	"github.com/tristendillon/delombok/core/pipeline"
)

// pipelineFlags override values from the config file and environment.
type pipelineFlags struct {
	root      string
	output    string
	exclude   []string
	params    []string
	runtime   string
	archive   string
	timeout   time.Duration
	strict    bool
	skipEmpty bool
	report    string
}

func (f *pipelineFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.root, "root", "", "Source root directory")
	flags.StringVar(&f.output, "output", "", "Output directory")
	flags.StringSliceVar(&f.exclude, "exclude", nil, "Filenames copied verbatim instead of delomboked (replaces the configured set)")
	flags.StringArrayVar(&f.params, "param", nil, "Flag forwarded to delombok as --key or --key=value; repeatable")
	flags.StringVar(&f.runtime, "runtime", "", "Java executable used to run the archive")
	flags.StringVar(&f.archive, "archive", "", "Path to lombok.jar")
	flags.DurationVar(&f.timeout, "timeout", 0, "Kill delombok after this long (0 waits forever)")
	flags.BoolVar(&f.strict, "strict", false, "Fail when two sources share a filename")
	flags.BoolVar(&f.skipEmpty, "skip-empty", false, "Skip delombok when every file is excluded")
	flags.StringVar(&f.report, "report", "", "Write a YAML run report to this path")
}

// load reads the layered config and applies any flags the user set.
func (f *pipelineFlags) load(cmd *cobra.Command, needTool bool) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, &usageError{err}
	}

	changed := cmd.Flags().Changed
	var absErr error
	abs := func(p string) string {
		a, err := filepath.Abs(p)
		if err != nil && absErr == nil {
			absErr = err
		}
		return a
	}

	if changed("root") {
		cfg.Root = abs(f.root)
	}
	if changed("output") {
		cfg.Output = abs(f.output)
	}
	if changed("exclude") {
		cfg.Excluded = f.exclude
	}
	if changed("param") {
		params, err := parseParams(f.params)
		if err != nil {
			return nil, &usageError{err}
		}
		for k, v := range params {
			cfg.Parameters[k] = v
		}
	}
	if changed("runtime") {
		cfg.Tool.Runtime = f.runtime
	}
	if changed("archive") {
		cfg.Tool.Archive = abs(f.archive)
	}
	if changed("timeout") {
		cfg.Tool.Timeout = f.timeout
	}
	if changed("strict") {
		cfg.Strict = f.strict
	}
	if changed("skip-empty") {
		cfg.Tool.SkipEmpty = f.skipEmpty
	}
	if changed("report") {
		cfg.Report = abs(f.report)
	}
	if absErr != nil {
		return nil, absErr
	}

	if err := cfg.Validate(needTool); err != nil {
		return nil, &usageError{err}
	}
	return cfg, nil
}

// parseParams turns "key=value" and bare "key" into a parameter map.
func parseParams(raw []string) (invoker.Parameters, error) {
	params := invoker.Parameters{}
	for _, p := range raw {
		key, value, _ := strings.Cut(p, "=")
		key = strings.TrimLeft(strings.TrimSpace(key), "-")
		if key == "" {
			return nil, fmt.Errorf("invalid --param %q", p)
		}
		params[key] = value
	}
	return params, nil
}

func newPipeline(cmd *cobra.Command, cfg *config.Config) *pipeline.Pipeline {
	return pipeline.New(pipeline.Options{
		Root:       cfg.Root,
		Output:     cfg.Output,
		Excluded:   cfg.ExclusionSet(),
		Parameters: invoker.Parameters(cfg.Parameters),
		Tool:       invoker.Tool{Runtime: cfg.Tool.Runtime, Archive: cfg.Tool.Archive},
		Timeout:    cfg.Tool.Timeout,
		Strict:     cfg.Strict,
		SkipEmpty:  cfg.Tool.SkipEmpty,
		Stdout:     cmd.OutOrStdout(),
		Stderr:     cmd.ErrOrStderr(),
	})
}
