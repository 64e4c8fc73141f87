package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/tristendillon/delombok/core/exclusion"
	"github.com/tristendillon/delombok/core/invoker"
	"github.com/tristendillon/delombok/core/logger"
)

const (
	FileName  = "delombok.yaml"
	EnvPrefix = "DELOMBOK_"
)

type Config struct {
	Root       string            `koanf:"root" yaml:"root"`
	Output     string            `koanf:"output" yaml:"output"`
	Excluded   []string          `koanf:"excluded" yaml:"excluded"`
	Parameters map[string]string `koanf:"parameters" yaml:"parameters"`
	Strict     bool              `koanf:"strict" yaml:"strict"`
	Report     string            `koanf:"report" yaml:"report,omitempty"`
	Tool       Tool              `koanf:"tool" yaml:"tool"`
	Watch      Watch             `koanf:"watch" yaml:"watch"`

	// Source is the config file that was loaded, empty when none was found.
	Source string `koanf:"-" yaml:"-"`
}

type Tool struct {
	Runtime   string        `koanf:"runtime" yaml:"runtime"`
	Archive   string        `koanf:"archive" yaml:"archive"`
	Timeout   time.Duration `koanf:"timeout" yaml:"timeout"`
	SkipEmpty bool          `koanf:"skip_empty" yaml:"skip_empty"`
}

type Watch struct {
	Debounce    time.Duration `koanf:"debounce" yaml:"debounce"`
	MetricsAddr string        `koanf:"metrics_addr" yaml:"metrics_addr,omitempty"`
}

func Default() *Config {
	return &Config{
		Excluded:   []string{exclusion.DefaultExcluded},
		Parameters: map[string]string{},
		Tool: Tool{
			Runtime: invoker.DefaultRuntime,
		},
		Watch: Watch{
			Debounce: 500 * time.Millisecond,
		},
	}
}

// Load reads configuration relative to the working directory.
func Load(path string) (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("cannot determine working dir: %w", err)
	}
	return LoadDir(wd, path)
}

// LoadDir layers, lowest first: defaults, the YAML file, dir/.env, then
// DELOMBOK_* environment variables (nested keys joined with "__"). When path
// is empty, dir/delombok.yaml is used if it exists. Relative paths are
// resolved against the config file's directory, or dir when there is none.
func LoadDir(dir, path string) (*Config, error) {
	k := koanf.New(".")

	explicit := path != ""
	if !explicit {
		path = filepath.Join(dir, FileName)
	} else if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}

	base := dir
	source := ""
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		logger.Debug("No config file found, using defaults")
	} else {
		source = path
		base = filepath.Dir(path)
		logger.Debug("Config file found: %s", path)
	}

	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	cfg := Default()
	cfg.Excluded = nil
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if !k.Exists("excluded") {
		cfg.Excluded = []string{exclusion.DefaultExcluded}
	}
	if cfg.Parameters == nil {
		cfg.Parameters = map[string]string{}
	}
	cfg.Source = source
	cfg.resolve(base)

	logger.Debug("Config: %+v", *cfg)
	return cfg, nil
}

// envKey maps DELOMBOK_TOOL__ARCHIVE to tool.archive.
func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

func (c *Config) resolve(base string) {
	c.Root = absFrom(base, c.Root)
	c.Output = absFrom(base, c.Output)
	c.Report = absFrom(base, c.Report)
	c.Tool.Archive = absFrom(base, c.Tool.Archive)
}

func absFrom(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// Validate checks what a run needs. The tool archive is only required when
// the tool will be invoked.
func (c *Config) Validate(needTool bool) error {
	var errs []error
	if c.Root == "" {
		errs = append(errs, errors.New("root directory is required"))
	}
	if c.Output == "" {
		errs = append(errs, errors.New("output directory is required"))
	}
	if c.Root != "" && c.Root == c.Output {
		errs = append(errs, errors.New("output directory must differ from the root directory"))
	}
	if c.Output != "" && within(c.Output, c.Root) {
		errs = append(errs, errors.New("root directory must not be inside the output directory"))
	}
	if c.Output != "" && c.Report != "" && (c.Report == c.Output || within(c.Output, c.Report)) {
		errs = append(errs, errors.New("report must be written outside the output directory"))
	}
	if needTool && c.Tool.Archive == "" {
		errs = append(errs, errors.New("tool.archive is required (path to lombok.jar)"))
	}
	if c.Tool.Timeout < 0 {
		errs = append(errs, fmt.Errorf("tool.timeout must not be negative (got %s)", c.Tool.Timeout))
	}
	for name := range c.Parameters {
		if name == "" || strings.HasPrefix(name, "-") || strings.ContainsAny(name, " =") {
			errs = append(errs, fmt.Errorf("invalid parameter name %q", name))
		}
	}
	for _, name := range c.Excluded {
		if name != filepath.Base(name) {
			errs = append(errs, fmt.Errorf("excluded entry %q must be a bare filename", name))
		}
	}
	return errors.Join(errs...)
}

// within reports whether path lies strictly below dir.
func within(dir, path string) bool {
	if dir == "" || path == "" {
		return false
	}
	rel, err := filepath.Rel(dir, path)
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (c *Config) ExclusionSet() exclusion.Set {
	return exclusion.NewSet(c.Excluded...)
}

type fileView struct {
	Root       string            `yaml:"root"`
	Output     string            `yaml:"output"`
	Excluded   []string          `yaml:"excluded"`
	Parameters map[string]string `yaml:"parameters"`
	Strict     bool              `yaml:"strict"`
	Report     string            `yaml:"report,omitempty"`
	Tool       struct {
		Runtime   string `yaml:"runtime"`
		Archive   string `yaml:"archive"`
		Timeout   string `yaml:"timeout,omitempty"`
		SkipEmpty bool   `yaml:"skip_empty"`
	} `yaml:"tool"`
	Watch struct {
		Debounce    string `yaml:"debounce"`
		MetricsAddr string `yaml:"metrics_addr,omitempty"`
	} `yaml:"watch"`
}

// MarshalYAML writes durations as strings so the file reads back through Load.
func (c Config) MarshalYAML() (interface{}, error) {
	v := fileView{
		Root:       c.Root,
		Output:     c.Output,
		Excluded:   c.Excluded,
		Parameters: c.Parameters,
		Strict:     c.Strict,
		Report:     c.Report,
	}
	v.Tool.Runtime = c.Tool.Runtime
	v.Tool.Archive = c.Tool.Archive
	v.Tool.SkipEmpty = c.Tool.SkipEmpty
	if c.Tool.Timeout > 0 {
		v.Tool.Timeout = c.Tool.Timeout.String()
	}
	v.Watch.Debounce = c.Watch.Debounce.String()
	v.Watch.MetricsAddr = c.Watch.MetricsAddr
	return v, nil
}
