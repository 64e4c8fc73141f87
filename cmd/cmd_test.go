package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tristendillon/delombok/core/inventory"
	"github.com/tristendillon/delombok/core/invoker"
	"github.com/tristendillon/delombok/core/invoker/faketool"
	"github.com/tristendillon/delombok/core/pipeline"
	"github.com/tristendillon/delombok/core/report"
)

func TestMain(m *testing.M) {
	faketool.MaybeRun()
	faketool.Activate()
	os.Exit(m.Run())
}

func put(t *testing.T, dir, rel, content string) {
	t.Helper()
	p := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func TestParseParams(t *testing.T) {
	params, err := parseParams([]string{"encoding=UTF-8", "--quiet", "format=pretty=yes"})
	require.NoError(t, err)
	assert.Equal(t, invoker.Parameters{
		"encoding": "UTF-8",
		"quiet":    "",
		"format":   "pretty=yes",
	}, params)

	_, err = parseParams([]string{"=oops"})
	assert.Error(t, err)
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"usage", &usageError{errors.New("bad flag")}, ExitConfigError},
		{"root", fmt.Errorf("run: %w", &pipeline.ConfigError{Root: "/nope", Reason: "does not exist"}), ExitConfigError},
		{"tool", &invoker.ToolError{ExitCode: 3}, ExitToolFailure},
		{"lookup", &inventory.NoMatchError{Base: "Foo.java"}, ExitLookupError},
		{"io", os.ErrPermission, ExitIOError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

func TestShellJoin(t *testing.T) {
	got := shellJoin([]string{"java", "-jar", "/opt/my tools/lombok.jar", "delombok", "A/Foo.java"})
	assert.Equal(t, `java -jar "/opt/my tools/lombok.jar" delombok A/Foo.java`, got)
}

func TestRunAndPlanCommands(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(t.TempDir(), "out")
	reportPath := filepath.Join(t.TempDir(), "report.yaml")
	put(t, root, "A/Foo.java", "class Foo {}\n")
	put(t, root, "module-info.java", "module m {}\n")

	common := []string{
		"--root", root,
		"--output", out,
		"--runtime", faketool.Runtime(),
		"--archive", "lombok.jar",
	}

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	rootCmd.SetArgs(append([]string{"plan"}, common...))
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, stdout.String(), "Sources: 2 (1 to delombok, 1 excluded)")
	assert.Contains(t, stdout.String(), "delombok "+filepath.Join("A", "Foo.java"))
	assert.NoDirExists(t, out)

	rootCmd.SetArgs(append([]string{"run", "--report", reportPath}, common...))
	require.NoError(t, rootCmd.Execute())

	data, err := os.ReadFile(filepath.Join(out, "A", "Foo.java"))
	require.NoError(t, err)
	assert.Equal(t, faketool.Banner+"class Foo {}\n", string(data))

	data, err = os.ReadFile(filepath.Join(out, "module-info.java"))
	require.NoError(t, err)
	assert.Equal(t, "module m {}\n", string(data))

	m, err := report.Read(reportPath)
	require.NoError(t, err)
	assert.Equal(t, string(pipeline.OutcomeOK), m.Outcome)
	assert.Equal(t, 2, m.Sources)
}

func TestRunRejectsReportInsideOutput(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(t.TempDir(), "out")
	put(t, root, "A/Foo.java", "class Foo {}\n")
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	rootCmd.SetArgs([]string{"run",
		"--root", root,
		"--output", out,
		"--runtime", faketool.Runtime(),
		"--archive", "lombok.jar",
		"--report", filepath.Join(out, "report.yaml"),
	})
	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitConfigError, exitCode(err))
	assert.NoDirExists(t, out)
}

func TestPrintPlanSkipped(t *testing.T) {
	var buf bytes.Buffer
	printPlan(&buf, &pipeline.Result{Root: "/src", Output: "/out", Sources: 1, Excluded: []string{"module-info.java"}})
	assert.Contains(t, buf.String(), "delombok skipped")
}

func TestInitWritesLoadableConfig(t *testing.T) {
	dir := t.TempDir()
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	rootCmd.SetArgs([]string{"init", dir})
	require.NoError(t, rootCmd.Execute())
	assert.FileExists(t, filepath.Join(dir, "delombok.yaml"))

	rootCmd.SetArgs([]string{"init", dir})
	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitConfigError, exitCode(err))
}
