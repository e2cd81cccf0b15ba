// Package config loads the TOML configuration of dhdmgen and merges command
// line overrides into it.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/BurntSushi/toml"
	"github.com/taigrr/dhdmgen/pkg/logging"
)

// Job kinds accepted in [[job]] entries.
const (
	KindSubdivide = "subdivide"
	KindGenerate  = "generate"
	KindMatch     = "match"
)

// Config is the whole configuration file.
type Config struct {
	Log     logging.Config `toml:"log"`
	Mesh    MeshConfig     `toml:"mesh"`
	DHDM    DHDMConfig     `toml:"dhdm"`
	Workers int            `toml:"workers"`
	Jobs    []Job          `toml:"job"`
}

// MeshConfig holds settings shared by every mesh load and save.
type MeshConfig struct {
	// Scale divides positions on load and multiplies them on save.
	Scale float64 `toml:"scale"`
}

// DHDMConfig holds displacement generation settings.
type DHDMConfig struct {
	Threshold   float64 `toml:"threshold"`
	MatchingDir string  `toml:"matching_dir"`
	Method      string  `toml:"method"`
}

// Job is one unit of batch work.
type Job struct {
	Kind      string   `toml:"kind"`
	Base      string   `toml:"base"`
	UVSet     string   `toml:"uv_set"`
	HD        string   `toml:"hd"`
	Reference string   `toml:"reference"`
	Output    string   `toml:"output"`
	Level     int      `toml:"level"`
	Targets   []string `toml:"targets"`
}

// Flags holds command line values that override the file.
type Flags struct {
	LogFile     string
	LogLevel    string
	Scale       float64
	Threshold   float64
	MatchingDir string
	Workers     int
}

// Load decodes the TOML file at path. Relative paths in the file are taken
// relative to the file's directory.
func Load(path string) (*Config, error) {
	var c Config
	md, err := toml.DecodeFile(path, &c)
	if err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config: %s: unknown key %q", path, undecoded[0].String())
	}
	c.absolutePaths(filepath.Dir(path))
	return &c, nil
}

func (c *Config) absolutePaths(dir string) {
	abs := func(p *string) {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
	}
	abs(&c.Log.Logfile)
	abs(&c.DHDM.MatchingDir)
	for i := range c.Jobs {
		j := &c.Jobs[i]
		abs(&j.Base)
		abs(&j.UVSet)
		abs(&j.HD)
		abs(&j.Reference)
		abs(&j.Output)
		for k := range j.Targets {
			abs(&j.Targets[k])
		}
	}
}

// Resolve applies non-zero flags over the file values and fills in
// defaults for anything still unset.
func (c *Config) Resolve(flags Flags) {
	if flags.LogFile != "" {
		c.Log.Logfile = flags.LogFile
	}
	if flags.LogLevel != "" {
		c.Log.Level = flags.LogLevel
	}
	if flags.Scale > 0 {
		c.Mesh.Scale = flags.Scale
	}
	if flags.Threshold > 0 {
		c.DHDM.Threshold = flags.Threshold
	}
	if flags.MatchingDir != "" {
		c.DHDM.MatchingDir = flags.MatchingDir
	}
	if flags.Workers > 0 {
		c.Workers = flags.Workers
	}

	if c.Mesh.Scale <= 0 {
		c.Mesh.Scale = 1
	}
	if c.DHDM.Threshold <= 0 {
		c.DHDM.Threshold = 1e-2
	}
	if c.DHDM.Method == "" {
		c.DHDM.Method = "mr"
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
}

// Validate checks the batch jobs.
func (c *Config) Validate() error {
	var errs []error
	for i, j := range c.Jobs {
		if err := j.validate(); err != nil {
			errs = append(errs, fmt.Errorf("job %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

func (j Job) validate() error {
	if j.Base == "" {
		return errors.New("missing base mesh")
	}
	switch j.Kind {
	case KindSubdivide:
		if j.Level < 0 {
			return fmt.Errorf("negative level %d", j.Level)
		}
		if j.Output == "" {
			return errors.New("missing output")
		}
	case KindGenerate:
		if j.HD == "" {
			return errors.New("missing hd mesh")
		}
		if j.Output == "" {
			return errors.New("missing output")
		}
	case KindMatch:
		if len(j.Targets) == 0 {
			return errors.New("no target meshes")
		}
		if j.Level != 0 && j.Level != len(j.Targets) {
			return fmt.Errorf("level %d with %d target meshes", j.Level, len(j.Targets))
		}
	default:
		return fmt.Errorf("unknown job kind %q", j.Kind)
	}
	return nil
}
