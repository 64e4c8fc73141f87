package reconcile

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"

	"github.com/tristendillon/delombok/core/inventory"
	"github.com/tristendillon/delombok/core/logger"
)

// Move records one output file being put back under its source's relative path.
type Move struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
	Noop bool   `yaml:"noop,omitempty"`
}

type Report struct {
	Moves []Move
}

func (r *Report) Relocated() int {
	n := 0
	for _, m := range r.Moves {
		if !m.Noop {
			n++
		}
	}
	return n
}

// Reconciler restores the nested layout of a flattened output directory.
type Reconciler struct {
	outputDir string
}

func NewReconciler(outputDir string) *Reconciler {
	return &Reconciler{outputDir: filepath.Clean(outputDir)}
}

// Reconcile moves every regular file under the output directory to
// <output>/<relpath of the source with the same basename>. Files already in
// place are left alone. The first failure aborts; earlier moves are kept.
func (r *Reconciler) Reconcile(inv *inventory.Inventory) (*Report, error) {
	files, err := r.outputFiles()
	if err != nil {
		return nil, err
	}

	report := &Report{Moves: make([]Move, 0, len(files))}
	for _, file := range files {
		move, err := r.reconcileFile(inv, file)
		if err != nil {
			return report, err
		}
		report.Moves = append(report.Moves, move)
	}

	return report, nil
}

// outputFiles snapshots the tree before anything moves, so relocated files
// are never visited twice.
func (r *Reconciler) outputFiles() ([]string, error) {
	var files []string
	err := filepath.WalkDir(r.outputDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk output directory %s: %w", r.outputDir, err)
	}
	return files, nil
}

func (r *Reconciler) reconcileFile(inv *inventory.Inventory, path string) (Move, error) {
	src, err := inv.Lookup(filepath.Base(path))
	if err != nil {
		return Move{}, fmt.Errorf("cannot place %s: %w", path, err)
	}

	target := filepath.Join(r.outputDir, src.RelPath)
	move := Move{From: path, To: target}
	if target == path {
		move.Noop = true
		logger.Debug("Already in place: %s", src.RelPath)
		return move, nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return Move{}, fmt.Errorf("failed to create directory for %s: %w", target, err)
	}

	if err := moveFile(path, target); err != nil {
		return Move{}, fmt.Errorf("failed to move %s to %s: %w", path, target, err)
	}

	logger.Debug("Moved %s -> %s", path, src.RelPath)
	return move, nil
}

// moveFile renames from over to, copying across filesystems when needed.
func moveFile(from, to string) error {
	err := os.Rename(from, to)
	if err == nil || !errors.Is(err, syscall.EXDEV) {
		return err
	}

	in, err := os.Open(from)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(to, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	return os.Remove(from)
}
