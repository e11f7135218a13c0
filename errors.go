package edgeml

import "errors"

// Failure kinds returned by the provider. Every public operation reports
// one of these as the root cause; use errors.Is to classify.
var (
	// ErrUnsupportedDataType reports an element type outside the set the
	// accelerator (or the result-copy path) can represent.
	ErrUnsupportedDataType = errors.New("unsupported data type")

	// ErrUnsupportedLayout reports a native tensor with more than one
	// non-contiguous axis.
	ErrUnsupportedLayout = errors.New("unsupported tensor layout")

	// ErrShapeMismatch reports a runtime shape that still contains an
	// unresolved dimension.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrRankMismatch reports inferred and runtime shapes of different rank.
	ErrRankMismatch = errors.New("rank mismatch")

	// ErrDimensionConflict reports a static inferred dimension that
	// disagrees with the runtime dimension.
	ErrDimensionConflict = errors.New("dimension conflict")

	// ErrElementCountMismatch reports a native element count that differs
	// from the product of the reconciled output shape.
	ErrElementCountMismatch = errors.New("element count mismatch")

	// ErrMissingOutput reports a declared output absent from the
	// accelerator's results.
	ErrMissingOutput = errors.New("missing output")

	// ErrFeatureConstructionFailed reports a native allocation or
	// type-binding failure while building the input feature set.
	ErrFeatureConstructionFailed = errors.New("feature construction failed")

	// ErrCompilationCacheWriteFailed reports a failure to move a freshly
	// compiled artifact into the persistent cache location.
	ErrCompilationCacheWriteFailed = errors.New("compilation cache write failed")

	// ErrModelLoadFailed reports a native model instantiation failure.
	ErrModelLoadFailed = errors.New("model load failed")

	// ErrModelNotLoaded reports a prediction attempted before a successful
	// load.
	ErrModelNotLoaded = errors.New("model not loaded")

	// ErrPredictionFailed reports a native prediction failure, including
	// faults recovered at the session boundary.
	ErrPredictionFailed = errors.New("prediction failed")

	// ErrValueOutOfRange reports a 64-bit integer input that cannot be
	// narrowed to the accelerator's 32-bit representation without loss.
	ErrValueOutOfRange = errors.New("value out of int32 range")
)
