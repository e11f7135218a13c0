// Package accel defines the capability surface of an on-device
// accelerator runtime: compiling a model artifact into the accelerator's
// native form, loading the compiled form, and running predictions over
// native tensors.
//
// The provider in package runtime is written against these interfaces so
// the vendor runtime stays an injectable capability rather than ambient
// process state. accel/cpu ships a pure-Go reference implementation.
package accel

import (
	"time"

	"github.com/pkg/errors"
)

// DType is the accelerator-native element type set. It is narrower than
// the host set in package model; hosts outside this set are narrowed by
// the marshaller before crossing the boundary.
type DType int

const (
	Float32 DType = iota + 1
	Float16
	Int32
	Int64
	Bool
)

func (d DType) String() string {
	switch d {
	case Float32:
		return "float32"
	case Float16:
		return "float16"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Bool:
		return "bool"
	default:
		return "invalid"
	}
}

// Size returns the element size in bytes.
func (d DType) Size() int {
	switch d {
	case Float32, Int32:
		return 4
	case Float16:
		return 2
	case Int64:
		return 8
	case Bool:
		return 1
	default:
		return 0
	}
}

// ComputeUnits selects the compute device class a model may use.
// The zero value is not valid; ComputeAll is the default.
type ComputeUnits int

const (
	// ComputeAll lets the accelerator schedule across every available
	// device.
	ComputeAll ComputeUnits = iota + 1
	// ComputeCPUOnly restricts execution to the CPU.
	ComputeCPUOnly
	// ComputeCPUAndGPU allows CPU and GPU execution.
	ComputeCPUAndGPU
	// ComputeCPUAndNPU allows CPU and neural-accelerator execution.
	ComputeCPUAndNPU
)

func (c ComputeUnits) String() string {
	switch c {
	case ComputeAll:
		return "all"
	case ComputeCPUOnly:
		return "cpu_only"
	case ComputeCPUAndGPU:
		return "cpu_and_gpu"
	case ComputeCPUAndNPU:
		return "cpu_and_npu"
	default:
		return "invalid"
	}
}

// Legacy device-flag bits, retained only for boundary conversion.
const (
	legacyFlagCPU = 1 << 0
	legacyFlagGPU = 1 << 1
	legacyFlagNPU = 1 << 2
)

// ComputeUnitsFromBitmask converts a legacy device-flag word into the
// closed enumeration. Unknown or empty masks map to ComputeAll.
func ComputeUnitsFromBitmask(mask uint32) ComputeUnits {
	switch mask {
	case legacyFlagCPU:
		return ComputeCPUOnly
	case legacyFlagCPU | legacyFlagGPU:
		return ComputeCPUAndGPU
	case legacyFlagCPU | legacyFlagNPU:
		return ComputeCPUAndNPU
	default:
		return ComputeAll
	}
}

// PrecisionHint trades numeric precision for speed on accelerators that
// support reduced-precision execution.
type PrecisionHint int

const (
	PrecisionDefault PrecisionHint = iota
	PrecisionFloat32
	PrecisionFloat16
)

func (p PrecisionHint) String() string {
	switch p {
	case PrecisionDefault:
		return "default"
	case PrecisionFloat32:
		return "float32"
	case PrecisionFloat16:
		return "float16"
	default:
		return "invalid"
	}
}

// Capabilities reports what the running accelerator supports.
type Capabilities struct {
	// DTypes is the set of native element types.
	DTypes map[DType]bool

	// PrecisionHints reports whether LoadConfig.Precision is honored.
	PrecisionHints bool
}

// Supports returns whether dt is a native element type.
func (c Capabilities) Supports(dt DType) bool {
	return c.DTypes[dt]
}

// LoadConfig configures native model instantiation.
type LoadConfig struct {
	ComputeUnits ComputeUnits
	Precision    PrecisionHint
	Profiling    bool
}

// Accelerator is the vendor runtime capability object.
type Accelerator interface {
	// Name identifies the accelerator for logs and metrics labels.
	Name() string

	// Capabilities reports the accelerator's supported feature set.
	Capabilities() Capabilities

	// Compile starts compiling the model artifact at srcPath into
	// destDir. Compilation may complete in the background; the returned
	// job reports the compiled artifact path.
	Compile(srcPath, destDir string) (*CompileJob, error)

	// CompiledPath returns the deterministic location of the compiled
	// artifact that Compile(srcPath, destDir) produces. Callers use it
	// to probe for cached artifacts without compiling.
	CompiledPath(srcPath, destDir string) string

	// Load instantiates a native model from a compiled artifact.
	Load(compiledPath string, cfg LoadConfig) (Model, error)
}

// Model is a loaded native model. Implementations do not support
// concurrent Predict calls; callers serialize per instance.
type Model interface {
	// Predict runs one inference over the bound feature set and returns
	// the named output tensors. The returned tensors remain owned by the
	// model and are only valid until the next Predict call.
	Predict(features *Features) (*Results, error)

	// Close releases the native model handle.
	Close() error
}

// CompileJob is a handle on an asynchronous compilation.
// The completion notification is delivered on a channel; Wait blocks on
// it with a bounded timeout.
type CompileJob struct {
	done chan struct{}
	path string
	err  error
}

// NewCompileJob returns a job that Complete resolves.
func NewCompileJob() *CompileJob {
	return &CompileJob{done: make(chan struct{})}
}

// Complete resolves the job with the compiled artifact path or an error.
// It must be called exactly once.
func (j *CompileJob) Complete(path string, err error) {
	j.path = path
	j.err = err
	close(j.done)
}

// ErrCompileTimeout reports that a compile job did not signal completion
// within the wait bound.
var ErrCompileTimeout = errors.New("compile wait timed out")

// Wait blocks until the compilation completes or timeout elapses.
// On timeout the job keeps running; the caller may proceed assuming the
// artifact will eventually appear at its expected path.
func (j *CompileJob) Wait(timeout time.Duration) (string, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-j.done:
		return j.path, j.err
	case <-timer.C:
		return "", ErrCompileTimeout
	}
}
