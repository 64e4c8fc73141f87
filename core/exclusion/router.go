package exclusion

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/tristendillon/delombok/core/inventory"
	"github.com/tristendillon/delombok/core/logger"
)

// DefaultExcluded is the module descriptor javac rejects once delomboked.
const DefaultExcluded = "module-info.java"

// Set holds bare filenames that bypass the transformation.
type Set map[string]struct{}

func NewSet(names ...string) Set {
	s := make(Set, len(names))
	for _, name := range names {
		if name != "" {
			s[name] = struct{}{}
		}
	}
	return s
}

func DefaultSet() Set {
	return NewSet(DefaultExcluded)
}

func (s Set) Contains(base string) bool {
	_, ok := s[base]
	return ok
}

func (s Set) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Router decides which sources reach the external tool. Excluded sources are
// copied verbatim to the flat output root, where the tool would have put them,
// so reconciliation treats both kinds the same way.
type Router struct {
	outputDir string
	excluded  Set
}

func NewRouter(outputDir string, excluded Set) *Router {
	if excluded == nil {
		excluded = Set{}
	}
	return &Router{outputDir: outputDir, excluded: excluded}
}

func (r *Router) IsExcluded(src inventory.Source) bool {
	return r.excluded.Contains(src.Base)
}

// Route reports whether src belongs in the transformation batch. An excluded
// source is materialized in the output directory before Route returns.
func (r *Router) Route(src inventory.Source) (bool, error) {
	if !r.IsExcluded(src) {
		return true, nil
	}

	target := filepath.Join(r.outputDir, src.Base)
	if err := copyVerbatim(src.Path, target); err != nil {
		return false, fmt.Errorf("failed to copy excluded file %s: %w", src.RelPath, err)
	}

	logger.Debug("Copied excluded file %s -> %s", src.RelPath, target)
	return false, nil
}

func (r *Router) Split(sources []inventory.Source) (included, excluded []inventory.Source, err error) {
	for _, src := range sources {
		ok, err := r.Route(src)
		if err != nil {
			return nil, nil, err
		}
		if ok {
			included = append(included, src)
		} else {
			excluded = append(excluded, src)
		}
	}
	return included, excluded, nil
}

func copyVerbatim(sourcePath, targetPath string) error {
	src, err := os.ReadFile(sourcePath)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(targetPath), 0755); err != nil {
		return fmt.Errorf("failed to create target directory: %w", err)
	}

	return os.WriteFile(targetPath, src, 0644)
}
