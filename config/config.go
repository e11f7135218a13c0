// Package config loads provider options from a configuration file.
// Everything the file can express is also available as a runtime.Option;
// the file form exists for tooling and services that wire the provider
// from deployment config rather than code.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/gomlx/go-edgeml/accel"
	"github.com/gomlx/go-edgeml/runtime"
)

// Config holds provider parameters. Zero values mean "unspecified" and
// fall back to the runtime defaults.
type Config struct {
	CacheDir       string `json:"cache_dir" yaml:"cache_dir" toml:"cache_dir"`
	ComputeUnits   string `json:"compute_units" yaml:"compute_units" toml:"compute_units"`
	Precision      string `json:"precision" yaml:"precision" toml:"precision"`
	Profiling      bool   `json:"profiling" yaml:"profiling" toml:"profiling"`
	CompileTimeout string `json:"compile_timeout" yaml:"compile_timeout" toml:"compile_timeout"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, errors.New("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, errors.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// Options converts the configuration into runtime options.
func (c Config) Options() ([]runtime.Option, error) {
	var opts []runtime.Option
	if c.CacheDir != "" {
		opts = append(opts, runtime.WithCacheDir(c.CacheDir))
	}
	if c.ComputeUnits != "" {
		units, err := parseComputeUnits(c.ComputeUnits)
		if err != nil {
			return nil, err
		}
		opts = append(opts, runtime.WithComputeUnits(units))
	}
	if c.Precision != "" {
		hint, err := parsePrecision(c.Precision)
		if err != nil {
			return nil, err
		}
		opts = append(opts, runtime.WithPrecision(hint))
	}
	if c.Profiling {
		opts = append(opts, runtime.WithProfiling(true))
	}
	if c.CompileTimeout != "" {
		d, err := time.ParseDuration(c.CompileTimeout)
		if err != nil {
			return nil, errors.Wrap(err, "compile_timeout")
		}
		opts = append(opts, runtime.WithCompileTimeout(d))
	}
	return opts, nil
}

func parseComputeUnits(s string) (accel.ComputeUnits, error) {
	switch s {
	case "all":
		return accel.ComputeAll, nil
	case "cpu_only":
		return accel.ComputeCPUOnly, nil
	case "cpu_and_gpu":
		return accel.ComputeCPUAndGPU, nil
	case "cpu_and_npu":
		return accel.ComputeCPUAndNPU, nil
	default:
		return 0, errors.Errorf("unknown compute_units %q", s)
	}
}

func parsePrecision(s string) (accel.PrecisionHint, error) {
	switch s {
	case "default":
		return accel.PrecisionDefault, nil
	case "float32":
		return accel.PrecisionFloat32, nil
	case "float16":
		return accel.PrecisionFloat16, nil
	default:
		return 0, errors.Errorf("unknown precision %q", s)
	}
}
