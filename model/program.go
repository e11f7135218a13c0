package model

// FeatureSpec describes a named model input or output.
//
// Shape entries may be DynamicDim for dimensions that are only known at
// runtime; the runtime reconciles them against concrete output shapes.
type FeatureSpec struct {
	Name  string
	DType DType
	Shape []int64
}

// Constant is a named weight tensor. Data holds the raw little-endian
// element bytes. After package serialization with blob storage, large
// constants reference an entry in the weight file instead of carrying
// inline bytes.
type Constant struct {
	Name  string
	DType DType
	Shape []int64
	Data  []byte

	// BlobOffset is the metadata offset of this constant in the weight
	// file when Data was externalized, or 0 when the value is inline.
	BlobOffset uint64
}

// Operation is a single node in the program graph. Inputs maps the
// operation's parameter names to value names (graph edges); Attrs carries
// static attributes such as convolution strides.
type Operation struct {
	Type   string
	Inputs map[string]string
	Attrs  map[string]Attr
	Output FeatureSpec
}

// Attr is a static operation attribute. Exactly one field is set.
type Attr struct {
	Ints []int64
	Str  string
}

// Program is the serialized-form model graph: a flat operation list in
// topological order plus the input/output features and constant pool.
type Program struct {
	Name      string
	Inputs    []FeatureSpec
	Outputs   []FeatureSpec
	Constants []*Constant
	Ops       []*Operation
}

// Constant returns the named constant, or nil.
func (p *Program) Constant(name string) *Constant {
	for _, c := range p.Constants {
		if c.Name == name {
			return c
		}
	}
	return nil
}
