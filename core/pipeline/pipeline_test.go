package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tristendillon/delombok/core/exclusion"
	"github.com/tristendillon/delombok/core/inventory"
	"github.com/tristendillon/delombok/core/invoker"
	"github.com/tristendillon/delombok/core/invoker/faketool"
	"github.com/tristendillon/delombok/core/telemetry"
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

func tree(t *testing.T, dir string) map[string]string {
	t.Helper()
	files := map[string]string{}
	require.NoError(t, filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		require.NoError(t, err)
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		require.NoError(t, err)
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		files[filepath.ToSlash(rel)] = string(data)
		return nil
	}))
	return files
}

// recordArgs makes the fake tool write its argv to a file and returns a
// reader for it; the reader returns nil when the tool never ran.
func recordArgs(t *testing.T) func() []string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "argv")
	t.Setenv(faketool.EnvRecord, path)
	return func() []string {
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			return nil
		}
		require.NoError(t, err)
		return strings.Split(string(data), "\n")
	}
}

func scenario(t *testing.T) (root, out string) {
	t.Helper()
	root, out = t.TempDir(), filepath.Join(t.TempDir(), "generated")
	put(t, root, "A/Foo.src", "class Foo {}")
	put(t, root, "B/Bar.src", "class Bar {}")
	put(t, root, "module-info.src", "module demo {}\n\x00")
	return root, out
}

func newPipeline(root, out string, mutate ...func(*Options)) *Pipeline {
	opts := Options{
		Root:     root,
		Output:   out,
		Excluded: exclusion.NewSet("module-info.src"),
		Tool:     invoker.Tool{Runtime: faketool.Runtime(), Archive: "lombok.jar"},
		Stdout:   &bytes.Buffer{},
		Stderr:   &bytes.Buffer{},
	}
	for _, fn := range mutate {
		fn(&opts)
	}
	return New(opts)
}

func TestRunEndToEnd(t *testing.T) {
	root, out := scenario(t)
	before := tree(t, root)

	res, err := newPipeline(root, out).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"A/Foo.src":       faketool.Banner + "class Foo {}",
		"B/Bar.src":       faketool.Banner + "class Bar {}",
		"module-info.src": "module demo {}\n\x00",
	}, tree(t, out))
	assert.Equal(t, before, tree(t, root), "root directory must not change")

	assert.Equal(t, 3, res.Sources)
	assert.Equal(t, []string{filepath.FromSlash("A/Foo.src"), filepath.FromSlash("B/Bar.src")}, res.Included)
	assert.Equal(t, []string{"module-info.src"}, res.Excluded)
	assert.True(t, res.Invoked)
	assert.Equal(t, 0, res.ExitCode)
	assert.Len(t, res.Moves, 3)
	assert.Equal(t, 2, res.Relocated())
}

func TestRunInvocationArguments(t *testing.T) {
	root, out := scenario(t)
	args := recordArgs(t)

	_, err := newPipeline(root, out, func(o *Options) {
		o.Parameters = invoker.Parameters{"verbose": "", "encoding": "UTF-8"}
	}).Run(context.Background())
	require.NoError(t, err)

	got := args()
	require.NotNil(t, got)
	assert.Equal(t, []string{"-jar", "lombok.jar", "delombok"}, got[:3])

	var paths, flags []string
	var dir string
	rest := got[3:]
	for i := 0; i < len(rest); i++ {
		switch {
		case rest[i] == "-d":
			dir = rest[i+1]
			i++
		case strings.HasPrefix(rest[i], "--"):
			flags = append(flags, rest[i])
		default:
			paths = append(paths, rest[i])
		}
	}
	sort.Strings(paths)
	sort.Strings(flags)

	assert.Equal(t, []string{filepath.FromSlash("A/Foo.src"), filepath.FromSlash("B/Bar.src")}, paths)
	assert.Equal(t, out, dir)
	assert.True(t, filepath.IsAbs(dir))
	assert.Equal(t, []string{"--encoding=UTF-8", "--verbose"}, flags)
}

func TestRunMissingRoot(t *testing.T) {
	out := filepath.Join(t.TempDir(), "generated")
	args := recordArgs(t)
	metrics := telemetry.New()

	p := newPipeline(filepath.Join(t.TempDir(), "missing"), out)
	p.Metrics = metrics
	_, err := p.Run(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRootNotFound)
	assert.Equal(t, OutcomeConfigError, Classify(err))
	assert.NoDirExists(t, out)
	assert.Nil(t, args(), "tool must not run")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Runs.WithLabelValues("config_error")))
}

func TestRunRootIsFile(t *testing.T) {
	root := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(root, nil, 0o644))

	_, err := newPipeline(root, t.TempDir()).Run(context.Background())
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "not a directory", cfgErr.Reason)
}

func TestRunOutputEqualsRoot(t *testing.T) {
	root, _ := scenario(t)
	_, err := newPipeline(root, root).Run(context.Background())
	assert.ErrorIs(t, err, ErrRootNotFound)
}

func TestRunRootInsideOutput(t *testing.T) {
	out := t.TempDir()
	root := filepath.Join(out, "src")
	put(t, root, "A/Foo.src", "class Foo {}")
	args := recordArgs(t)
	before := tree(t, out)

	_, err := newPipeline(root, out).Run(context.Background())
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Reason, "inside the output directory")
	assert.Equal(t, OutcomeConfigError, Classify(err))
	assert.Nil(t, args(), "tool must not run")
	assert.Equal(t, before, tree(t, out), "root directory must not change")

	_, err = newPipeline(root, out).Reconcile(context.Background())
	assert.ErrorIs(t, err, ErrRootNotFound)
	assert.Equal(t, before, tree(t, out))
}

func TestRunToolFailureSkipsReconciliation(t *testing.T) {
	root, out := scenario(t)
	t.Setenv(faketool.EnvExit, "2")

	res, err := newPipeline(root, out).Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, invoker.ErrToolFailed)
	assert.Equal(t, OutcomeToolError, Classify(err))
	assert.Equal(t, 2, res.ExitCode)
	assert.Empty(t, res.Moves)

	assert.Equal(t, map[string]string{
		"Foo.src":         faketool.Banner + "class Foo {}",
		"Bar.src":         faketool.Banner + "class Bar {}",
		"module-info.src": "module demo {}\n\x00",
	}, tree(t, out))
}

func TestRunTwiceIsStable(t *testing.T) {
	root, out := scenario(t)
	p := newPipeline(root, out)

	_, err := p.Run(context.Background())
	require.NoError(t, err)
	first := tree(t, out)

	_, err = p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, tree(t, out))
}

func TestReconcileOnlyOnReconciledTree(t *testing.T) {
	root, out := scenario(t)
	p := newPipeline(root, out)
	_, err := p.Run(context.Background())
	require.NoError(t, err)
	first := tree(t, out)

	res, err := p.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, tree(t, out))
	assert.Equal(t, 0, res.Relocated())
}

func TestRunDuplicateBasenames(t *testing.T) {
	root, out := t.TempDir(), t.TempDir()
	put(t, root, "A/Foo.src", "a")
	put(t, root, "B/Foo.src", "b")

	t.Run("first in walk order receives the output", func(t *testing.T) {
		res, err := newPipeline(root, out).Run(context.Background())
		require.NoError(t, err)
		require.Len(t, res.Duplicates, 1)
		// The tool writes both to out/Foo.src; B is written last.
		assert.Equal(t, map[string]string{"A/Foo.src": faketool.Banner + "b"}, tree(t, out))
	})

	t.Run("strict fails with an ambiguity error", func(t *testing.T) {
		out := t.TempDir()
		_, err := newPipeline(root, out, func(o *Options) { o.Strict = true }).Run(context.Background())
		var amb *inventory.AmbiguousMatchError
		require.ErrorAs(t, err, &amb)
		assert.Equal(t, OutcomeLookupError, Classify(err))
	})
}

func TestRunSkipEmpty(t *testing.T) {
	root, out := t.TempDir(), t.TempDir()
	put(t, root, "java/module-info.src", "mod")
	args := recordArgs(t)

	res, err := newPipeline(root, out, func(o *Options) { o.SkipEmpty = true }).Run(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Invoked)
	assert.Nil(t, args())
	assert.Equal(t, map[string]string{"java/module-info.src": "mod"}, tree(t, out))
}

func TestRunInvokesWithNoPathsByDefault(t *testing.T) {
	root, out := t.TempDir(), t.TempDir()
	put(t, root, "module-info.src", "mod")
	args := recordArgs(t)

	res, err := newPipeline(root, out).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Invoked)
	assert.Equal(t, []string{"-jar", "lombok.jar", "delombok", "-d", out}, args())
}

func TestRunOutputNestedInRoot(t *testing.T) {
	root, _ := scenario(t)
	out := filepath.Join(root, "target", "delombok")
	p := newPipeline(root, out)

	_, err := p.Run(context.Background())
	require.NoError(t, err)

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Sources)
	assert.Empty(t, res.Duplicates)
}

func TestPlanHasNoSideEffects(t *testing.T) {
	root, out := scenario(t)
	args := recordArgs(t)

	res, err := newPipeline(root, out).Plan()
	require.NoError(t, err)
	assert.NoDirExists(t, out)
	assert.Nil(t, args())

	assert.Equal(t, []string{"module-info.src"}, res.Excluded)
	assert.Equal(t, []string{
		faketool.Runtime(), "-jar", "lombok.jar", "delombok",
		filepath.FromSlash("A/Foo.src"), filepath.FromSlash("B/Bar.src"),
		"-d", out,
	}, res.Command)
}

func TestPlanSkipEmpty(t *testing.T) {
	root, out := t.TempDir(), t.TempDir()
	put(t, root, "module-info.src", "mod")

	res, err := newPipeline(root, out, func(o *Options) { o.SkipEmpty = true }).Plan()
	require.NoError(t, err)
	assert.Equal(t, []string{"module-info.src"}, res.Excluded)
	assert.Nil(t, res.Command)

	res, err = newPipeline(root, out).Plan()
	require.NoError(t, err)
	assert.Equal(t, []string{faketool.Runtime(), "-jar", "lombok.jar", "delombok", "-d", out}, res.Command)
}

func TestRunRecordsMetrics(t *testing.T) {
	root, out := scenario(t)
	metrics := telemetry.New()
	p := newPipeline(root, out)
	p.Metrics = metrics

	_, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Runs.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.FilesExcluded))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.FilesReconciled))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, OutcomeOK, Classify(nil))
	assert.Equal(t, OutcomeConfigError, Classify(invoker.ErrToolMissing))
	assert.Equal(t, OutcomeLookupError, Classify(&inventory.NoMatchError{Base: "x"}))
	assert.Equal(t, OutcomeIOError, Classify(os.ErrPermission))
	assert.Equal(t, OutcomeToolError, Classify(context.DeadlineExceeded))
	assert.Equal(t, OutcomeToolError, Classify(fmt.Errorf("output left unreconciled: delombok did not finish: %w", context.Canceled)))
}
