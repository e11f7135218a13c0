// Package runtime provides the execution-provider layer: it compiles and
// caches model artifacts through an injected accelerator, loads the
// compiled form, and marshals tensors across the accelerator boundary on
// every prediction.
//
// Example usage:
//
//	rt := runtime.New(cpu.New(), runtime.WithCacheDir(dir))
//	sess, err := rt.OpenSession(runtime.ModelPackage("mnist.edgepkg"))
//	if err != nil { ... }
//	defer sess.Close()
//
//	if err := sess.Load(); err != nil { ... }
//	err = sess.Predict(inputs, outputs, alloc)
package runtime

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/gomlx/go-edgeml/accel"
)

// DefaultCompileTimeout bounds the wait for the accelerator's background
// compile-completion notification. A timeout is logged, not fatal: the
// load proceeds assuming compilation eventually lands at the expected
// path.
const DefaultCompileTimeout = 5 * time.Minute

// Runtime manages model compilation, caching, and session creation for
// one accelerator.
type Runtime struct {
	acc            accel.Accelerator
	cacheDir       string
	computeUnits   accel.ComputeUnits
	precision      accel.PrecisionHint
	profiling      bool
	compileTimeout time.Duration
	log            zerolog.Logger
	metrics        *metrics
}

// Option configures the runtime.
type Option func(*Runtime)

// WithCacheDir sets a persistent directory for compiled artifacts.
// Compiled models found there are reused across process runs, and
// teardown leaves them in place.
func WithCacheDir(dir string) Option {
	return func(r *Runtime) { r.cacheDir = dir }
}

// WithComputeUnits sets which compute device class loaded models may use.
func WithComputeUnits(units accel.ComputeUnits) Option {
	return func(r *Runtime) { r.computeUnits = units }
}

// WithPrecision sets an optional precision/speed hint. The hint is only
// applied when the accelerator reports support; otherwise it is dropped
// with a warning.
func WithPrecision(hint accel.PrecisionHint) Option {
	return func(r *Runtime) { r.precision = hint }
}

// WithProfiling enables per-prediction timing logs.
func WithProfiling(enabled bool) Option {
	return func(r *Runtime) { r.profiling = enabled }
}

// WithCompileTimeout bounds the wait for background compilation.
func WithCompileTimeout(d time.Duration) Option {
	return func(r *Runtime) { r.compileTimeout = d }
}

// WithLogger sets the logger sink for warnings and cleanup failures.
func WithLogger(log zerolog.Logger) Option {
	return func(r *Runtime) { r.log = log }
}

// WithMetrics registers prediction and cache metrics with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(r *Runtime) { r.metrics = newMetrics(reg) }
}

// New creates a runtime bound to the given accelerator.
func New(acc accel.Accelerator, opts ...Option) *Runtime {
	r := &Runtime{
		acc:            acc,
		computeUnits:   accel.ComputeAll,
		compileTimeout: DefaultCompileTimeout,
		log:            zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SourceFormat selects the serialized program representation of a model
// source.
type SourceFormat int

const (
	// FormatPackage is an .edgepkg directory (manifest, graph, weights).
	FormatPackage SourceFormat = iota + 1
	// FormatGraph is a bare wire-encoded graph file with inline weights.
	FormatGraph
)

// ModelSource identifies the model artifact a session loads.
type ModelSource struct {
	path   string
	format SourceFormat
	data   []byte
	name   string
}

// ModelPackage loads from an .edgepkg directory on disk.
func ModelPackage(path string) ModelSource {
	return ModelSource{path: path, format: FormatPackage}
}

// ModelGraph loads from a bare graph file on disk.
func ModelGraph(path string) ModelSource {
	return ModelSource{path: path, format: FormatGraph}
}

// ModelBytes loads from an in-memory wire-encoded graph. The bytes are
// materialized to an ephemeral file which is always removed at teardown.
func ModelBytes(name string, data []byte) ModelSource {
	return ModelSource{format: FormatGraph, data: data, name: name}
}

// OpenSession creates an execution session for the given source. The
// model is not loaded until Session.Load is called.
func (r *Runtime) OpenSession(src ModelSource) (*Session, error) {
	cache, err := newModelCache(r, src)
	if err != nil {
		return nil, err
	}
	return &Session{rt: r, cache: cache}, nil
}
