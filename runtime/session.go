package runtime

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	edgeml "github.com/gomlx/go-edgeml"
	"github.com/gomlx/go-edgeml/accel"
	"github.com/gomlx/go-edgeml/internal/marshal"
	"github.com/gomlx/go-edgeml/model"
)

// Input is one named host tensor for a prediction call. Data holds raw
// little-endian elements and stays owned by the caller; the provider
// binds it zero-copy except on the int64 narrowing path.
type Input struct {
	Name  string
	DType model.DType
	Shape []int64
	Data  []byte
}

// AllocFunc is the host output-allocation callback. It is invoked
// exactly once per declared output per prediction call, with the
// reconciled concrete shape, and must return a buffer large enough for
// the given element type and shape.
type AllocFunc func(name string, dtype model.DType, shape []int64) ([]byte, error)

// Session owns one loaded model and serializes prediction calls on it.
// The accelerator prohibits concurrent kernel execution per instance, so
// Predict holds the session mutex for the whole call.
type Session struct {
	rt    *Runtime
	cache *modelCache
	mu    sync.Mutex
}

// Load compiles (or reuses a cached compilation of) the model source and
// instantiates the native model. Load is idempotent: calling it on an
// already loaded session is a no-op returning success.
func (s *Session) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.load()
}

// Predict runs one inference. Every declared output is written into a
// buffer obtained from alloc; input buffers are only read. The call
// never lets a native-layer fault escape: panics from the accelerator
// are recovered and reported as a prediction failure.
func (s *Session) Predict(inputs []Input, outputs []model.FeatureSpec, alloc AllocFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.cache.loaded() {
		return errors.WithStack(edgeml.ErrModelNotLoaded)
	}

	start := time.Now()
	caps := s.rt.acc.Capabilities()

	ins := make([]marshal.Input, len(inputs))
	for i, in := range inputs {
		ins[i] = marshal.Input{Name: in.Name, DType: in.DType, Shape: in.Shape, Data: in.Data}
	}
	features, err := marshal.BuildFeatures(ins, caps)
	if err != nil {
		s.rt.metrics.predictFailed()
		return err
	}

	results, err := s.predictNative(features)
	if err != nil {
		s.rt.metrics.predictFailed()
		return err
	}

	for _, out := range outputs {
		err := marshal.ExtractOutput(results, marshal.Output{
			Name:  out.Name,
			DType: out.DType,
			Shape: out.Shape,
		}, marshal.AllocFunc(alloc))
		if err != nil {
			s.rt.metrics.predictFailed()
			return err
		}
	}

	elapsed := time.Since(start)
	s.rt.metrics.predictOK(elapsed)
	if s.rt.profiling {
		s.rt.log.Debug().
			Dur("elapsed", elapsed).
			Int("inputs", len(inputs)).
			Int("outputs", len(outputs)).
			Msg("prediction complete")
	}
	return nil
}

// predictNative invokes the accelerator, converting any fault raised by
// the native layer into a prediction failure.
func (s *Session) predictNative(features *accel.Features) (results *accel.Results, err error) {
	defer func() {
		if r := recover(); r != nil {
			results = nil
			err = errors.Wrapf(edgeml.ErrPredictionFailed, "native fault: %v", r)
		}
	}()
	results, err = s.cache.model.Predict(features)
	if err != nil {
		return nil, errors.Wrapf(edgeml.ErrPredictionFailed, "%v", err)
	}
	return results, nil
}

// Close tears the session down: the native model is released and
// transient artifacts are removed per the cache retention rules. Close
// is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.teardown()
	return nil
}
