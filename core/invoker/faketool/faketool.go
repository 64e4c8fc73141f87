// Package faketool stands in for the lombok jar in tests. A test binary that
// calls MaybeRun from TestMain re-executes itself as the tool: it reads the
// relative paths after the delombok subcommand, writes each file flat into
// the -d directory with Banner prepended, and exits.
package faketool

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	EnvActive = "FAKE_DELOMBOK_TOOL"
	EnvExit   = "FAKE_DELOMBOK_EXIT"
	EnvRecord = "FAKE_DELOMBOK_RECORD"
	EnvSleep  = "FAKE_DELOMBOK_SLEEP"
)

const Banner = "// delomboked\n"

// Runtime is the executable to configure as the tool runtime.
func Runtime() string {
	return os.Args[0]
}

// Activate marks child processes of this test binary as fake tools.
func Activate() {
	os.Setenv(EnvActive, "1")
}

// MaybeRun takes over the process when it was started as a fake tool.
func MaybeRun() {
	if os.Getenv(EnvActive) != "1" {
		return
	}
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if path := os.Getenv(EnvRecord); path != "" {
		if err := os.WriteFile(path, []byte(strings.Join(args, "\n")), 0o644); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 90
		}
	}

	if d := os.Getenv(EnvSleep); d != "" {
		if err := sleep(d); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 91
		}
	}

	paths, out, err := parse(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 92
	}

	for _, p := range paths {
		src, err := os.ReadFile(p)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 93
		}
		if err := os.MkdirAll(out, 0o755); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 94
		}
		if err := os.WriteFile(filepath.Join(out, filepath.Base(p)), append([]byte(Banner), src...), 0o644); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 94
		}
	}

	if code := os.Getenv(EnvExit); code != "" {
		n, err := strconv.Atoi(code)
		if err != nil {
			return 95
		}
		return n
	}
	return 0
}

func parse(args []string) (paths []string, out string, err error) {
	i := 0
	for i < len(args) && args[i] != "delombok" {
		i++
	}
	if i == len(args) {
		return nil, "", fmt.Errorf("missing delombok subcommand in %q", args)
	}
	for i++; i < len(args) && args[i] != "-d"; i++ {
		paths = append(paths, args[i])
	}
	if i+1 >= len(args) {
		return nil, "", fmt.Errorf("missing -d <dir> in %q", args)
	}
	return paths, args[i+1], nil
}

func sleep(d string) error {
	dur, err := time.ParseDuration(d)
	if err != nil {
		return err
	}
	time.Sleep(dur)
	return nil
}
