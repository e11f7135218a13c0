package runtime

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	edgeml "github.com/gomlx/go-edgeml"
	"github.com/gomlx/go-edgeml/accel"
	"github.com/gomlx/go-edgeml/internal/fsutil"
)

// cacheState tracks the compiled-model lifecycle.
type cacheState int

const (
	stateUnloaded cacheState = iota
	stateCompiling
	stateLoaded
	stateFailed
)

// modelCache owns one compiled model: it compiles the source artifact at
// most once, reuses a previously compiled form when one exists at the
// expected cache path, and removes transient artifacts at teardown
// unless a persistent cache directory was configured.
type modelCache struct {
	rt  *Runtime
	src ModelSource
	log zerolog.Logger

	state   cacheState
	loadErr error

	srcPath      string // on-disk source, possibly materialized
	ephemeralSrc bool   // srcPath was materialized from memory
	compiledPath string
	ownsCompiled bool   // we compiled it and no persistent cache holds it
	tempDir      string // compiler scratch dir, removed at teardown
	model        accel.Model
}

func newModelCache(rt *Runtime, src ModelSource) (*modelCache, error) {
	if src.path == "" && src.data == nil {
		return nil, errors.New("empty model source")
	}
	return &modelCache{rt: rt, src: src, log: rt.log}, nil
}

// load drives Unloaded -> Compiling -> Loaded. It is idempotent: a
// repeated call on a loaded cache is a no-op, and a failed cache keeps
// returning its original error.
func (c *modelCache) load() error {
	switch c.state {
	case stateLoaded:
		return nil
	case stateFailed:
		return c.loadErr
	}
	c.state = stateCompiling

	if err := c.resolveSource(); err != nil {
		return c.fail(err)
	}
	if err := c.ensureCompiled(); err != nil {
		return c.fail(err)
	}
	if err := c.loadNative(); err != nil {
		return c.fail(err)
	}
	c.state = stateLoaded
	return nil
}

func (c *modelCache) fail(err error) error {
	c.state = stateFailed
	c.loadErr = err
	return err
}

func (c *modelCache) loaded() bool { return c.state == stateLoaded }

// resolveSource materializes in-memory sources to an ephemeral file.
func (c *modelCache) resolveSource() error {
	if c.src.data == nil {
		c.srcPath = c.src.path
		return nil
	}
	name := c.src.name
	if name == "" {
		name = "model"
	}
	f, err := os.CreateTemp("", name+"-*.edgebin")
	if err != nil {
		return errors.Wrapf(edgeml.ErrModelLoadFailed, "materialize model: %v", err)
	}
	if _, err := f.Write(c.src.data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return errors.Wrapf(edgeml.ErrModelLoadFailed, "materialize model: %v", err)
	}
	if err := f.Close(); err != nil {
		return errors.Wrapf(edgeml.ErrModelLoadFailed, "materialize model: %v", err)
	}
	c.srcPath = f.Name()
	c.ephemeralSrc = true
	return nil
}

// cacheBase returns where the compiled artifact is expected to live: the
// persistent cache directory when configured, else next to the model
// (the package directory itself, or the model file's parent, depending
// on the source format).
func (c *modelCache) cacheBase() string {
	if c.rt.cacheDir != "" {
		return c.rt.cacheDir
	}
	if c.src.format == FormatPackage {
		return c.srcPath
	}
	return filepath.Dir(c.srcPath)
}

// ensureCompiled produces compiledPath, compiling at most once.
func (c *modelCache) ensureCompiled() error {
	persistent := c.rt.cacheDir != ""
	expected := c.rt.acc.CompiledPath(c.srcPath, c.cacheBase())

	if fsutil.PathExists(expected) {
		c.log.Debug().Str("path", expected).Msg("compiled model cache hit")
		c.rt.metrics.cacheHit()
		c.compiledPath = expected
		return nil
	}
	c.rt.metrics.cacheMiss()

	tempDir, err := os.MkdirTemp("", "edgeml-compile-")
	if err != nil {
		return errors.Wrapf(edgeml.ErrModelLoadFailed, "compile scratch dir: %v", err)
	}
	c.tempDir = tempDir

	job, err := c.rt.acc.Compile(c.srcPath, tempDir)
	if err != nil {
		return errors.Wrapf(edgeml.ErrModelLoadFailed, "start compilation: %v", err)
	}
	out, err := job.Wait(c.rt.compileTimeout)
	switch {
	case errors.Is(err, accel.ErrCompileTimeout):
		// The compiler keeps running; proceed against its deterministic
		// output path and let the load attempt surface any real failure.
		out = c.rt.acc.CompiledPath(c.srcPath, tempDir)
		c.log.Warn().
			Dur("timeout", c.rt.compileTimeout).
			Str("path", out).
			Msg("compile wait timed out, proceeding with expected artifact path")
	case err != nil:
		return errors.Wrapf(edgeml.ErrModelLoadFailed, "compile: %v", err)
	}

	if !persistent {
		c.compiledPath = out
		c.ownsCompiled = true
		return nil
	}

	if err := os.MkdirAll(c.rt.cacheDir, 0o755); err != nil {
		return errors.Wrapf(edgeml.ErrCompilationCacheWriteFailed, "%v", err)
	}
	if !fsutil.PathExists(out) {
		return errors.Wrapf(edgeml.ErrCompilationCacheWriteFailed,
			"compiler produced no artifact at %s", out)
	}
	if err := fsutil.MovePath(out, expected); err != nil {
		return errors.Wrapf(edgeml.ErrCompilationCacheWriteFailed, "%v", err)
	}
	c.compiledPath = expected
	return nil
}

// loadNative instantiates the native model from the compiled artifact.
func (c *modelCache) loadNative() error {
	cfg := accel.LoadConfig{
		ComputeUnits: c.rt.computeUnits,
		Precision:    c.rt.precision,
		Profiling:    c.rt.profiling,
	}
	if cfg.Precision != accel.PrecisionDefault && !c.rt.acc.Capabilities().PrecisionHints {
		c.log.Warn().
			Stringer("hint", cfg.Precision).
			Str("accelerator", c.rt.acc.Name()).
			Msg("precision hint not supported, ignoring")
		cfg.Precision = accel.PrecisionDefault
	}

	m, err := c.rt.acc.Load(c.compiledPath, cfg)
	if err != nil {
		return errors.Wrapf(edgeml.ErrModelLoadFailed, "%v", err)
	}
	c.model = m
	return nil
}

// teardown releases the native model and removes transient artifacts.
// The ephemeral source materialized from memory is always removed; the
// compiled artifact is removed only when no persistent cache directory
// holds it. Removal failures are logged, never fatal.
func (c *modelCache) teardown() {
	if c.model != nil {
		if err := c.model.Close(); err != nil {
			c.log.Warn().Err(err).Msg("close native model")
		}
		c.model = nil
	}
	if c.ephemeralSrc && c.srcPath != "" {
		if err := os.Remove(c.srcPath); err != nil && !os.IsNotExist(err) {
			c.log.Warn().Err(err).Str("path", c.srcPath).Msg("remove ephemeral model source")
		}
	}
	if c.ownsCompiled && c.compiledPath != "" {
		if err := os.RemoveAll(c.compiledPath); err != nil {
			c.log.Warn().Err(err).Str("path", c.compiledPath).Msg("remove compiled artifact")
		}
	}
	if c.tempDir != "" {
		if err := os.RemoveAll(c.tempDir); err != nil {
			c.log.Warn().Err(err).Str("path", c.tempDir).Msg("remove compile scratch dir")
		}
	}
	c.state = stateUnloaded
}
