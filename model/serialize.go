package model

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/gomlx/go-edgeml/blob"
)

// Package layout constants.
const (
	// PackageExt is the extension of a serialized model package directory.
	PackageExt = ".edgepkg"

	// ManifestName is the package manifest file.
	ManifestName = "Manifest.json"

	// GraphName is the wire-encoded program graph file.
	GraphName = "model.bin"

	// WeightsName is the external weight container, relative to the
	// package root.
	WeightsName = "weights/weights.bin"
)

// SerializeOptions configures package serialization.
type SerializeOptions struct {
	// UseBlobStorage enables external weight storage in weights.bin.
	UseBlobStorage bool

	// BlobThreshold is the minimum constant size (bytes) to externalize.
	// Smaller constants stay inline in the graph. Default: 1024 bytes.
	BlobThreshold int64
}

// DefaultOptions returns default serialization options.
func DefaultOptions() SerializeOptions {
	return SerializeOptions{
		UseBlobStorage: true,
		BlobThreshold:  1024,
	}
}

// Manifest is the package-level index written as Manifest.json.
type Manifest struct {
	FormatVersion string                  `json:"formatVersion"`
	Identifier    string                  `json:"identifier"`
	Name          string                  `json:"name"`
	Items         map[string]ManifestItem `json:"items"`
}

// ManifestItem describes one file inside the package.
type ManifestItem struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	Description string `json:"description"`
}

// SavePackage writes a Program to an .edgepkg directory: manifest,
// wire-encoded graph, and (optionally) an external weight file holding
// constants at or above the blob threshold.
func SavePackage(p *Program, path string, opts SerializeOptions) error {
	if err := os.MkdirAll(filepath.Join(path, "weights"), 0o755); err != nil {
		return errors.Wrap(err, "create package dirs")
	}

	serialized := p
	hasWeights := false
	if opts.UseBlobStorage {
		w, err := blob.NewWriter(filepath.Join(path, WeightsName))
		if err != nil {
			return err
		}
		serialized, err = externalizeConstants(p, w, opts.BlobThreshold)
		if err != nil {
			w.Close()
			return errors.Wrap(err, "externalize weights")
		}
		hasWeights = w.EntryCount() > 0
		if err := w.Close(); err != nil {
			return errors.Wrap(err, "close weight file")
		}
		if !hasWeights {
			os.Remove(filepath.Join(path, WeightsName))
		}
	}

	graph := EncodeProgram(serialized)
	if err := os.WriteFile(filepath.Join(path, GraphName), graph, 0o644); err != nil {
		return errors.Wrap(err, "write graph")
	}

	return writeManifest(p.Name, path, hasWeights)
}

// externalizeConstants returns a shallow copy of p in which every
// constant at or above threshold references a weight file entry instead
// of inline bytes. The input program is not mutated.
func externalizeConstants(p *Program, w *blob.Writer, threshold int64) (*Program, error) {
	out := *p
	out.Constants = make([]*Constant, len(p.Constants))
	for i, c := range p.Constants {
		if int64(len(c.Data)) < threshold {
			out.Constants[i] = c
			continue
		}
		bt, err := blobType(c.DType)
		if err != nil {
			return nil, errors.Wrapf(err, "constant %q", c.Name)
		}
		offset, err := w.Add(bt, c.Data)
		if err != nil {
			return nil, errors.Wrapf(err, "constant %q", c.Name)
		}
		ext := *c
		ext.Data = nil
		ext.BlobOffset = offset
		out.Constants[i] = &ext
	}
	return &out, nil
}

// blobType maps a model DType to the weight container's type enum.
func blobType(dt DType) (blob.DataType, error) {
	switch dt {
	case Float16:
		return blob.DataTypeFloat16, nil
	case Float32:
		return blob.DataTypeFloat32, nil
	case Int32:
		return blob.DataTypeInt32, nil
	case Int64:
		return blob.DataTypeInt64, nil
	case Float64:
		return blob.DataTypeFloat64, nil
	case Bool:
		return blob.DataTypeUInt8, nil
	default:
		return 0, errors.Errorf("no weight storage type for %s", dt)
	}
}

func writeManifest(name, path string, hasWeights bool) error {
	rootID := uuid.New().String()
	items := map[string]ManifestItem{
		rootID: {
			Name:        GraphName,
			Path:        GraphName,
			Description: "Program graph",
		},
	}
	if hasWeights {
		items[uuid.New().String()] = ManifestItem{
			Name:        "weights.bin",
			Path:        WeightsName,
			Description: "Model weights",
		}
	}

	manifest := Manifest{
		FormatVersion: "1.0",
		Identifier:    rootID,
		Name:          name,
		Items:         items,
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal manifest")
	}
	return errors.Wrap(os.WriteFile(filepath.Join(path, ManifestName), data, 0o644), "write manifest")
}

// LoadPackage reads an .edgepkg directory, materializing externalized
// constants from the weight file.
func LoadPackage(path string) (*Program, error) {
	manifestData, err := os.ReadFile(filepath.Join(path, ManifestName))
	if err != nil {
		return nil, errors.Wrap(err, "read manifest")
	}
	var manifest Manifest
	if err := json.Unmarshal(manifestData, &manifest); err != nil {
		return nil, errors.Wrap(err, "parse manifest")
	}

	graph, err := os.ReadFile(filepath.Join(path, GraphName))
	if err != nil {
		return nil, errors.Wrap(err, "read graph")
	}
	p, err := DecodeProgram(graph)
	if err != nil {
		return nil, err
	}

	if err := materializeConstants(p, filepath.Join(path, WeightsName)); err != nil {
		return nil, err
	}
	return p, nil
}

// materializeConstants fills in Data for constants that reference the
// weight file.
func materializeConstants(p *Program, weightsPath string) error {
	var r *blob.Reader
	defer func() {
		if r != nil {
			r.Close()
		}
	}()
	for _, c := range p.Constants {
		if c.BlobOffset == 0 {
			continue
		}
		if r == nil {
			var err error
			r, err = blob.OpenReader(weightsPath)
			if err != nil {
				return err
			}
		}
		data, _, err := r.ReadAt(c.BlobOffset)
		if err != nil {
			return errors.Wrapf(err, "constant %q", c.Name)
		}
		c.Data = data
	}
	return nil
}

// Wire encoding of the program graph. The format is protobuf wire data
// assembled by hand with protowire; field numbers below are the schema.
const (
	fProgramName      = 1 // string
	fProgramInput     = 2 // repeated FeatureSpec
	fProgramOutput    = 3 // repeated FeatureSpec
	fProgramConstant  = 4 // repeated Constant
	fProgramOperation = 5 // repeated Operation

	fSpecName  = 1 // string
	fSpecDType = 2 // varint
	fSpecDim   = 3 // repeated sint64 (zigzag; DynamicDim is -1)

	fConstName   = 1 // string
	fConstDType  = 2 // varint
	fConstDim    = 3 // repeated sint64
	fConstData   = 4 // bytes (inline payload)
	fConstOffset = 5 // varint (weight file metadata offset)

	fOpType   = 1 // string
	fOpInput  = 2 // repeated binding {1: arg, 2: value}
	fOpAttr   = 3 // repeated attr {1: name, 2: repeated sint64, 3: string}
	fOpOutput = 4 // FeatureSpec

	fBindingArg   = 1
	fBindingValue = 2

	fAttrName = 1
	fAttrInt  = 2
	fAttrStr  = 3
)

// EncodeProgram serializes a Program to its wire form.
func EncodeProgram(p *Program) []byte {
	var buf []byte
	buf = protowire.AppendTag(buf, fProgramName, protowire.BytesType)
	buf = protowire.AppendString(buf, p.Name)
	for _, s := range p.Inputs {
		buf = appendMessage(buf, fProgramInput, encodeSpec(s))
	}
	for _, s := range p.Outputs {
		buf = appendMessage(buf, fProgramOutput, encodeSpec(s))
	}
	for _, c := range p.Constants {
		buf = appendMessage(buf, fProgramConstant, encodeConstant(c))
	}
	for _, op := range p.Ops {
		buf = appendMessage(buf, fProgramOperation, encodeOperation(op))
	}
	return buf
}

func appendMessage(buf []byte, field protowire.Number, msg []byte) []byte {
	buf = protowire.AppendTag(buf, field, protowire.BytesType)
	return protowire.AppendBytes(buf, msg)
}

func encodeSpec(s FeatureSpec) []byte {
	var buf []byte
	buf = protowire.AppendTag(buf, fSpecName, protowire.BytesType)
	buf = protowire.AppendString(buf, s.Name)
	buf = protowire.AppendTag(buf, fSpecDType, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(s.DType))
	for _, dim := range s.Shape {
		buf = protowire.AppendTag(buf, fSpecDim, protowire.VarintType)
		buf = protowire.AppendVarint(buf, protowire.EncodeZigZag(dim))
	}
	return buf
}

func encodeConstant(c *Constant) []byte {
	var buf []byte
	buf = protowire.AppendTag(buf, fConstName, protowire.BytesType)
	buf = protowire.AppendString(buf, c.Name)
	buf = protowire.AppendTag(buf, fConstDType, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(c.DType))
	for _, dim := range c.Shape {
		buf = protowire.AppendTag(buf, fConstDim, protowire.VarintType)
		buf = protowire.AppendVarint(buf, protowire.EncodeZigZag(dim))
	}
	if c.BlobOffset != 0 {
		buf = protowire.AppendTag(buf, fConstOffset, protowire.VarintType)
		buf = protowire.AppendVarint(buf, c.BlobOffset)
	} else {
		buf = protowire.AppendTag(buf, fConstData, protowire.BytesType)
		buf = protowire.AppendBytes(buf, c.Data)
	}
	return buf
}

func encodeOperation(op *Operation) []byte {
	var buf []byte
	buf = protowire.AppendTag(buf, fOpType, protowire.BytesType)
	buf = protowire.AppendString(buf, op.Type)
	for arg, value := range op.Inputs {
		var binding []byte
		binding = protowire.AppendTag(binding, fBindingArg, protowire.BytesType)
		binding = protowire.AppendString(binding, arg)
		binding = protowire.AppendTag(binding, fBindingValue, protowire.BytesType)
		binding = protowire.AppendString(binding, value)
		buf = appendMessage(buf, fOpInput, binding)
	}
	for name, attr := range op.Attrs {
		var a []byte
		a = protowire.AppendTag(a, fAttrName, protowire.BytesType)
		a = protowire.AppendString(a, name)
		for _, v := range attr.Ints {
			a = protowire.AppendTag(a, fAttrInt, protowire.VarintType)
			a = protowire.AppendVarint(a, protowire.EncodeZigZag(v))
		}
		if attr.Str != "" {
			a = protowire.AppendTag(a, fAttrStr, protowire.BytesType)
			a = protowire.AppendString(a, attr.Str)
		}
		buf = appendMessage(buf, fOpAttr, a)
	}
	buf = appendMessage(buf, fOpOutput, encodeSpec(op.Output))
	return buf
}

// DecodeProgram parses a wire-encoded Program.
func DecodeProgram(data []byte) (*Program, error) {
	p := &Program{}
	err := walkFields(data, func(num protowire.Number, payload []byte) error {
		switch num {
		case fProgramName:
			p.Name = string(payload)
		case fProgramInput:
			s, err := decodeSpec(payload)
			if err != nil {
				return err
			}
			p.Inputs = append(p.Inputs, s)
		case fProgramOutput:
			s, err := decodeSpec(payload)
			if err != nil {
				return err
			}
			p.Outputs = append(p.Outputs, s)
		case fProgramConstant:
			c, err := decodeConstant(payload)
			if err != nil {
				return err
			}
			p.Constants = append(p.Constants, c)
		case fProgramOperation:
			op, err := decodeOperation(payload)
			if err != nil {
				return err
			}
			p.Ops = append(p.Ops, op)
		}
		return nil
	}, nil)
	if err != nil {
		return nil, errors.Wrap(err, "decode program")
	}
	return p, nil
}

// walkFields iterates the fields of a wire-encoded message. Length-
// delimited fields are delivered through onBytes; varints through
// onVarint. Unknown fields are skipped.
func walkFields(data []byte, onBytes func(protowire.Number, []byte) error, onVarint func(protowire.Number, uint64) error) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		switch typ {
		case protowire.BytesType:
			payload, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			data = data[n:]
			if onBytes != nil {
				if err := onBytes(num, payload); err != nil {
					return err
				}
			}
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			data = data[n:]
			if onVarint != nil {
				if err := onVarint(num, v); err != nil {
					return err
				}
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return nil
}

func decodeSpec(data []byte) (FeatureSpec, error) {
	var s FeatureSpec
	err := walkFields(data, func(num protowire.Number, payload []byte) error {
		if num == fSpecName {
			s.Name = string(payload)
		}
		return nil
	}, func(num protowire.Number, v uint64) error {
		switch num {
		case fSpecDType:
			s.DType = DType(v)
		case fSpecDim:
			s.Shape = append(s.Shape, protowire.DecodeZigZag(v))
		}
		return nil
	})
	return s, err
}

func decodeConstant(data []byte) (*Constant, error) {
	c := &Constant{}
	err := walkFields(data, func(num protowire.Number, payload []byte) error {
		switch num {
		case fConstName:
			c.Name = string(payload)
		case fConstData:
			c.Data = append([]byte(nil), payload...)
		}
		return nil
	}, func(num protowire.Number, v uint64) error {
		switch num {
		case fConstDType:
			c.DType = DType(v)
		case fConstDim:
			c.Shape = append(c.Shape, protowire.DecodeZigZag(v))
		case fConstOffset:
			c.BlobOffset = v
		}
		return nil
	})
	return c, err
}

func decodeOperation(data []byte) (*Operation, error) {
	op := &Operation{Inputs: make(map[string]string)}
	err := walkFields(data, func(num protowire.Number, payload []byte) error {
		switch num {
		case fOpType:
			op.Type = string(payload)
		case fOpInput:
			var arg, value string
			err := walkFields(payload, func(n protowire.Number, b []byte) error {
				switch n {
				case fBindingArg:
					arg = string(b)
				case fBindingValue:
					value = string(b)
				}
				return nil
			}, nil)
			if err != nil {
				return err
			}
			op.Inputs[arg] = value
		case fOpAttr:
			var name string
			var attr Attr
			err := walkFields(payload, func(n protowire.Number, b []byte) error {
				switch n {
				case fAttrName:
					name = string(b)
				case fAttrStr:
					attr.Str = string(b)
				}
				return nil
			}, func(n protowire.Number, v uint64) error {
				if n == fAttrInt {
					attr.Ints = append(attr.Ints, protowire.DecodeZigZag(v))
				}
				return nil
			})
			if err != nil {
				return err
			}
			if op.Attrs == nil {
				op.Attrs = make(map[string]Attr)
			}
			op.Attrs[name] = attr
		case fOpOutput:
			s, err := decodeSpec(payload)
			if err != nil {
				return err
			}
			op.Output = s
		}
		return nil
	}, nil)
	return op, err
}
