// Package cpu implements a pure-Go reference accelerator.
//
// It compiles .edgepkg artifacts into a single-file .edgec form with all
// weights inlined and interprets the program op set on the CPU. The
// package exists so the provider runtime is exercisable on any platform;
// it mirrors a native accelerator's constraints, including the missing
// int64 element type and the rank-1 representation of scalars.
package cpu

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/gomlx/go-edgeml/accel"
	"github.com/gomlx/go-edgeml/model"
)

// CompiledExt is the extension of the compiled artifact.
const CompiledExt = ".edgec"

var compiledMagic = [8]byte{'E', 'D', 'G', 'E', 'C', 'M', 'P', '1'}

// Accelerator is the reference accelerator.
type Accelerator struct{}

// New returns a reference accelerator instance.
func New() *Accelerator {
	return &Accelerator{}
}

// Name implements accel.Accelerator.
func (a *Accelerator) Name() string { return "cpu" }

// Capabilities implements accel.Accelerator. Int64 is absent: like most
// on-device runtimes, integer tensors are 32-bit.
func (a *Accelerator) Capabilities() accel.Capabilities {
	return accel.Capabilities{
		DTypes: map[accel.DType]bool{
			accel.Float32: true,
			accel.Float16: true,
			accel.Int32:   true,
			accel.Bool:    true,
		},
		PrecisionHints: false,
	}
}

// Compile implements accel.Accelerator. The source package is parsed and
// re-encoded with weights inline into destDir/<stem>.edgec. Compilation
// runs in the background; the returned job signals completion.
func (a *Accelerator) Compile(srcPath, destDir string) (*accel.CompileJob, error) {
	if _, err := os.Stat(srcPath); err != nil {
		return nil, errors.Wrap(err, "source model")
	}
	job := accel.NewCompileJob()
	go func() {
		job.Complete(compile(srcPath, destDir))
	}()
	return job, nil
}

func compile(srcPath, destDir string) (string, error) {
	p, err := loadSource(srcPath)
	if err != nil {
		return "", errors.Wrap(err, "parse source model")
	}

	// Inline every constant: the compiled form is self-contained.
	for _, c := range p.Constants {
		c.BlobOffset = 0
		if c.Data == nil {
			return "", errors.Errorf("constant %q has no data", c.Name)
		}
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", err
	}
	out := filepath.Join(destDir, CompiledStem(srcPath)+CompiledExt)

	graph := model.EncodeProgram(p)
	buf := make([]byte, 0, len(graph)+16)
	buf = append(buf, compiledMagic[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(graph)))
	buf = append(buf, graph...)
	if err := os.WriteFile(out, buf, 0o644); err != nil {
		return "", errors.Wrap(err, "write compiled artifact")
	}
	return out, nil
}

// loadSource parses either a package directory or a bare wire-encoded
// graph file with inline weights.
func loadSource(srcPath string) (*model.Program, error) {
	info, err := os.Stat(srcPath)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return model.LoadPackage(srcPath)
	}
	raw, err := os.ReadFile(srcPath)
	if err != nil {
		return nil, err
	}
	return model.DecodeProgram(raw)
}

// CompiledStem returns the artifact stem used for compiled output names:
// the source base name without its extension.
func CompiledStem(srcPath string) string {
	base := filepath.Base(filepath.Clean(srcPath))
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// CompiledPath implements accel.Accelerator.
func (a *Accelerator) CompiledPath(srcPath, destDir string) string {
	return filepath.Join(destDir, CompiledStem(srcPath)+CompiledExt)
}

// Load implements accel.Accelerator.
func (a *Accelerator) Load(compiledPath string, cfg accel.LoadConfig) (accel.Model, error) {
	switch cfg.ComputeUnits {
	case accel.ComputeAll, accel.ComputeCPUOnly, accel.ComputeCPUAndGPU, accel.ComputeCPUAndNPU:
	default:
		return nil, errors.Errorf("invalid compute units %d", cfg.ComputeUnits)
	}

	raw, err := os.ReadFile(compiledPath)
	if err != nil {
		return nil, errors.Wrap(err, "read compiled artifact")
	}
	if len(raw) < 16 || [8]byte(raw[:8]) != compiledMagic {
		return nil, errors.Errorf("%s is not a compiled artifact", compiledPath)
	}
	n := binary.LittleEndian.Uint64(raw[8:16])
	if uint64(len(raw)-16) < n {
		return nil, errors.Errorf("truncated compiled artifact: %d of %d graph bytes", len(raw)-16, n)
	}
	p, err := model.DecodeProgram(raw[16 : 16+n])
	if err != nil {
		return nil, err
	}

	consts, err := materializeConstants(p)
	if err != nil {
		return nil, err
	}
	return &Model{program: p, consts: consts, cfg: cfg}, nil
}

// materializeConstants converts the constant pool into native tensors,
// narrowing int64 weights into the accelerator's 32-bit form.
func materializeConstants(p *model.Program) (map[string]*accel.Tensor, error) {
	consts := make(map[string]*accel.Tensor, len(p.Constants))
	for _, c := range p.Constants {
		shape := c.Shape
		if len(shape) == 0 {
			shape = []int64{1}
		}
		var t *accel.Tensor
		var err error
		switch c.DType {
		case model.Float32:
			t, err = accel.NewTensorWithData(shape, nil, accel.Float32, c.Data)
		case model.Float16:
			t, err = accel.NewTensorWithData(shape, nil, accel.Float16, c.Data)
		case model.Int32:
			t, err = accel.NewTensorWithData(shape, nil, accel.Int32, c.Data)
		case model.Bool:
			t, err = accel.NewTensorWithData(shape, nil, accel.Bool, c.Data)
		case model.Int64:
			narrowed := make([]byte, len(c.Data)/2)
			for i := 0; i < len(c.Data)/8; i++ {
				v := int64(binary.LittleEndian.Uint64(c.Data[i*8:]))
				if v > 1<<31-1 || v < -(1<<31) {
					return nil, errors.Errorf("constant %q: value %d exceeds int32 range", c.Name, v)
				}
				binary.LittleEndian.PutUint32(narrowed[i*4:], uint32(int32(v)))
			}
			t, err = accel.NewTensorWithData(shape, nil, accel.Int32, narrowed)
		default:
			return nil, errors.Errorf("constant %q: unsupported weight type %s", c.Name, c.DType)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "constant %q", c.Name)
		}
		consts[c.Name] = t
	}
	return consts, nil
}

// Model is a loaded reference model.
type Model struct {
	program *model.Program
	consts  map[string]*accel.Tensor
	cfg     accel.LoadConfig
	closed  bool
}

// Predict implements accel.Model. Calls must be serialized by the
// caller.
func (m *Model) Predict(features *accel.Features) (*accel.Results, error) {
	if m.closed {
		return nil, errors.New("model is closed")
	}
	return run(m.program, m.consts, features)
}

// Close implements accel.Model.
func (m *Model) Close() error {
	m.closed = true
	m.consts = nil
	return nil
}
