package report

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tristendillon/delombok/core/inventory"
	"github.com/tristendillon/delombok/core/pipeline"
	"github.com/tristendillon/delombok/core/reconcile"
)

// Manifest is the YAML record of one run written by --report.
type Manifest struct {
	Outcome    string                `yaml:"outcome"`
	Error      string                `yaml:"error,omitempty"`
	StartedAt  time.Time             `yaml:"started_at"`
	Root       string                `yaml:"root"`
	Output     string                `yaml:"output"`
	Sources    int                   `yaml:"sources"`
	Included   []string              `yaml:"included"`
	Excluded   []string              `yaml:"excluded"`
	Duplicates []inventory.Duplicate `yaml:"duplicates,omitempty"`
	Command    []string              `yaml:"command,omitempty"`
	ExitCode   int                   `yaml:"exit_code"`
	Moves      []reconcile.Move      `yaml:"moves"`
	Timings    Timings               `yaml:"timings"`
}

type Timings struct {
	Inventory string `yaml:"inventory"`
	Invoke    string `yaml:"invoke"`
	Reconcile string `yaml:"reconcile"`
	Total     string `yaml:"total"`
}

func New(res *pipeline.Result, runErr error, startedAt time.Time) *Manifest {
	m := &Manifest{
		Outcome:    string(pipeline.Classify(runErr)),
		StartedAt:  startedAt.UTC(),
		Root:       res.Root,
		Output:     res.Output,
		Sources:    res.Sources,
		Included:   res.Included,
		Excluded:   res.Excluded,
		Duplicates: res.Duplicates,
		Command:    res.Command,
		ExitCode:   res.ExitCode,
		Moves:      res.Moves,
		Timings: Timings{
			Inventory: res.Timings.Inventory.String(),
			Invoke:    res.Timings.Invoke.String(),
			Reconcile: res.Timings.Reconcile.String(),
			Total:     res.Timings.Total.String(),
		},
	}
	if runErr != nil {
		m.Error = runErr.Error()
	}
	return m
}

func Write(path string, m *Manifest) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write report %s: %w", path, err)
	}
	return nil
}

func Read(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse report %s: %w", path, err)
	}
	return &m, nil
}
