package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gomlx/go-edgeml/accel"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "provider.yaml", `
cache_dir: /var/cache/edgeml
compute_units: cpu_and_npu
precision: float16
profiling: true
compile_timeout: 90s
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/cache/edgeml", cfg.CacheDir)
	assert.Equal(t, "cpu_and_npu", cfg.ComputeUnits)
	assert.Equal(t, "float16", cfg.Precision)
	assert.True(t, cfg.Profiling)
	assert.Equal(t, "90s", cfg.CompileTimeout)
}

func TestLoadJSON(t *testing.T) {
	path := writeConfig(t, "provider.json",
		`{"cache_dir": "/tmp/c", "compute_units": "cpu_only"}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/c", cfg.CacheDir)
	assert.Equal(t, "cpu_only", cfg.ComputeUnits)
}

func TestLoadTOML(t *testing.T) {
	path := writeConfig(t, "provider.toml", `
cache_dir = "/tmp/c"
precision = "float32"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/c", cfg.CacheDir)
	assert.Equal(t, "float32", cfg.Precision)
}

func TestLoadUnsupportedExtension(t *testing.T) {
	path := writeConfig(t, "provider.ini", "cache_dir=/tmp")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadEmptyPath(t *testing.T) {
	_, err := Load("")
	assert.Error(t, err)
}

func TestOptions(t *testing.T) {
	cfg := Config{
		CacheDir:       "/tmp/c",
		ComputeUnits:   "cpu_and_gpu",
		Precision:      "float16",
		Profiling:      true,
		CompileTimeout: "2m",
	}
	opts, err := cfg.Options()
	require.NoError(t, err)
	assert.Len(t, opts, 5)
}

func TestOptionsEmptyConfig(t *testing.T) {
	opts, err := Config{}.Options()
	require.NoError(t, err)
	assert.Empty(t, opts)
}

func TestOptionsBadValues(t *testing.T) {
	_, err := Config{ComputeUnits: "gpu_only"}.Options()
	assert.Error(t, err)

	_, err = Config{Precision: "int8"}.Options()
	assert.Error(t, err)

	_, err = Config{CompileTimeout: "soon"}.Options()
	assert.Error(t, err)
}

func TestParseComputeUnits(t *testing.T) {
	tests := map[string]accel.ComputeUnits{
		"all":         accel.ComputeAll,
		"cpu_only":    accel.ComputeCPUOnly,
		"cpu_and_gpu": accel.ComputeCPUAndGPU,
		"cpu_and_npu": accel.ComputeCPUAndNPU,
	}
	for in, want := range tests {
		got, err := parseComputeUnits(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}
