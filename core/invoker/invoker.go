package invoker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tristendillon/delombok/core/logger"
)

// Subcommand selects the lombok jar's source transformation mode.
const Subcommand = "delombok"

const DefaultRuntime = "java"

var (
	ErrToolFailed  = errors.New("delombok failed")
	ErrToolMissing = errors.New("delombok archive not configured")
)

// ToolError reports a non-zero exit from the external tool.
type ToolError struct {
	ExitCode int
	Command  []string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("delombok exited with code %d", e.ExitCode)
}

func (e *ToolError) Is(target error) bool { return target == ErrToolFailed }

// Parameters are forwarded to the tool as --key or --key=value flags.
type Parameters map[string]string

// Flags renders the parameters sorted by key.
func (p Parameters) Flags() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	flags := make([]string, 0, len(keys))
	for _, k := range keys {
		if v := p[k]; v != "" {
			flags = append(flags, fmt.Sprintf("--%s=%s", k, v))
		} else {
			flags = append(flags, "--"+k)
		}
	}
	return flags
}

// Tool locates the runtime and the archive it executes.
type Tool struct {
	Runtime string
	Archive string
}

func (t Tool) runtime() string {
	if t.Runtime == "" {
		return DefaultRuntime
	}
	return t.Runtime
}

// Args builds the argument vector passed to the runtime. Each path and flag
// is its own element, so whitespace inside them survives intact.
func Args(archive string, relPaths []string, outputAbs string, params Parameters) []string {
	args := make([]string, 0, len(relPaths)+len(params)+5)
	args = append(args, "-jar", archive, Subcommand)
	args = append(args, relPaths...)
	args = append(args, "-d", outputAbs)
	args = append(args, params.Flags()...)
	return args
}

type Invoker struct {
	Root    string
	Tool    Tool
	Timeout time.Duration
	Stdout  io.Writer
	Stderr  io.Writer
}

func NewInvoker(root string, tool Tool) *Invoker {
	return &Invoker{
		Root:   root,
		Tool:   tool,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

// Command returns the full argv, runtime first, that Invoke would execute.
func (iv *Invoker) Command(relPaths []string, outputDir string, params Parameters) ([]string, error) {
	if iv.Tool.Archive == "" {
		return nil, ErrToolMissing
	}
	outputAbs, err := filepath.Abs(outputDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve output directory: %w", err)
	}
	return append([]string{iv.Tool.runtime()}, Args(iv.Tool.Archive, relPaths, outputAbs, params)...), nil
}

// Invoke runs the tool from the root directory and waits for it to exit.
// A non-zero exit is returned both as the exit code and as a *ToolError.
func (iv *Invoker) Invoke(ctx context.Context, relPaths []string, outputDir string, params Parameters) (int, error) {
	argv, err := iv.Command(relPaths, outputDir, params)
	if err != nil {
		return -1, err
	}

	if iv.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, iv.Timeout)
		defer cancel()
	}

	logger.Info("Using command: %s", strings.Join(argv, " "))

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = iv.Root
	cmd.Stdout = iv.Stdout
	cmd.Stderr = iv.Stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return -1, fmt.Errorf("delombok did not finish: %w", ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), &ToolError{ExitCode: exitErr.ExitCode(), Command: argv}
		}
		return -1, fmt.Errorf("failed to start delombok: %w", err)
	}

	return 0, nil
}
