package inventory

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tristendillon/delombok/core/logger"
)

// ErrLookup is matched by every failure to map an output file back to a source.
var ErrLookup = errors.New("source lookup failed")

type NoMatchError struct {
	Base string
}

func (e *NoMatchError) Error() string {
	return fmt.Sprintf("no source file named %q under the root directory", e.Base)
}

func (e *NoMatchError) Is(target error) bool { return target == ErrLookup }

type AmbiguousMatchError struct {
	Base       string
	Candidates []string
}

func (e *AmbiguousMatchError) Error() string {
	return fmt.Sprintf("%d source files named %q: %s", len(e.Candidates), e.Base, strings.Join(e.Candidates, ", "))
}

func (e *AmbiguousMatchError) Is(target error) bool { return target == ErrLookup }

// Source is one regular file discovered under the root directory.
type Source struct {
	Path    string
	RelPath string
	Base    string
}

// Duplicate lists every relative path that shares one basename.
type Duplicate struct {
	Base     string   `yaml:"base"`
	RelPaths []string `yaml:"rel_paths"`
}

// Inventory is the ordered set of sources found in one walk.
//
// Lookups resolve a basename to a source. When several sources share a
// basename the first one in walk order wins, unless Strict is set, in which
// case the lookup fails with an AmbiguousMatchError.
type Inventory struct {
	Root    string
	Sources []Source
	Strict  bool

	index map[string][]int
}

func New(root string, sources []Source) *Inventory {
	inv := &Inventory{
		Root:    root,
		Sources: sources,
		index:   make(map[string][]int, len(sources)),
	}
	for i, src := range sources {
		inv.index[src.Base] = append(inv.index[src.Base], i)
	}
	return inv
}

func (inv *Inventory) Len() int {
	return len(inv.Sources)
}

func (inv *Inventory) Lookup(base string) (Source, error) {
	matches := inv.index[base]
	switch {
	case len(matches) == 0:
		return Source{}, &NoMatchError{Base: base}
	case len(matches) > 1 && inv.Strict:
		return Source{}, &AmbiguousMatchError{Base: base, Candidates: inv.relPaths(matches)}
	}
	return inv.Sources[matches[0]], nil
}

func (inv *Inventory) Duplicates() []Duplicate {
	var dups []Duplicate
	for base, matches := range inv.index {
		if len(matches) > 1 {
			dups = append(dups, Duplicate{Base: base, RelPaths: inv.relPaths(matches)})
		}
	}
	sort.Slice(dups, func(i, j int) bool { return dups[i].Base < dups[j].Base })
	return dups
}

// RelPaths returns the root-relative path of every source in walk order.
func (inv *Inventory) RelPaths() []string {
	paths := make([]string, len(inv.Sources))
	for i, src := range inv.Sources {
		paths[i] = src.RelPath
	}
	return paths
}

func (inv *Inventory) relPaths(idx []int) []string {
	paths := make([]string, len(idx))
	for i, n := range idx {
		paths[i] = inv.Sources[n].RelPath
	}
	return paths
}

// Walker lists the regular files under a root, skipping excluded directories.
type Walker struct {
	Exclude []string
}

func NewWalker(exclude ...string) *Walker {
	cleaned := make([]string, 0, len(exclude))
	for _, ex := range exclude {
		if ex != "" {
			cleaned = append(cleaned, filepath.Clean(ex))
		}
	}
	return &Walker{Exclude: cleaned}
}

// List walks root with no exclusions.
func List(root string) (*Inventory, error) {
	return NewWalker().Walk(root)
}

func (w *Walker) Walk(root string) (*Inventory, error) {
	root = filepath.Clean(root)
	var sources []Source

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if path != root && w.shouldExclude(path) {
				logger.Debug("Skipping excluded directory: %s", path)
				return filepath.SkipDir
			}
			return nil
		}

		regular, err := isRegular(path, d)
		if err != nil {
			return err
		}
		if !regular {
			return nil
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		sources = append(sources, Source{
			Path:    path,
			RelPath: relPath,
			Base:    d.Name(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list sources under %s: %w", root, err)
	}

	return New(root, sources), nil
}

func (w *Walker) shouldExclude(path string) bool {
	for _, ex := range w.Exclude {
		if path == ex {
			return true
		}
	}
	return false
}

// isRegular follows symlinks to files but never descends symlinked directories.
func isRegular(path string, d fs.DirEntry) (bool, error) {
	if d.Type().IsRegular() {
		return true, nil
	}
	if d.Type()&fs.ModeSymlink == 0 {
		return false, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Debug("Skipping dangling symlink: %s", path)
			return false, nil
		}
		return false, err
	}
	return info.Mode().IsRegular(), nil
}
