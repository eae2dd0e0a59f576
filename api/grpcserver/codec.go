package grpcserver

import (
	"fmt"

	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/encoding/protowire"
)

// CodecName is the content-subtype clients must request.
const CodecName = "protowire"

// message is implemented by every Engine request and response. Fields are
// written in protobuf wire format; zero values are omitted and unknown
// fields are skipped.
type message interface {
	appendWire(b []byte) []byte
	consumeWire(b []byte) error
}

type wireCodec struct{}

func (wireCodec) Marshal(v interface{}) ([]byte, error) {
	m, ok := v.(message)
	if !ok {
		return nil, fmt.Errorf("grpcserver: cannot marshal %T", v)
	}
	return m.appendWire(nil), nil
}

func (wireCodec) Unmarshal(data []byte, v interface{}) error {
	m, ok := v.(message)
	if !ok {
		return fmt.Errorf("grpcserver: cannot unmarshal into %T", v)
	}
	return m.consumeWire(data)
}

func (wireCodec) Name() string { return CodecName }

func init() {
	encoding.RegisterCodec(wireCodec{})
}

// ---- writers ----

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendUint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendInt(b []byte, num protowire.Number, v int64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeZigZag(v))
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	return appendUint(b, num, 1)
}

// appendMessage writes m as a length-delimited field, even when empty.
func appendMessage(b []byte, num protowire.Number, m message) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, m.appendWire(nil))
}

// ---- reader ----

// field is one decoded varint or length-delimited field.
type field struct {
	num protowire.Number
	typ protowire.Type
	v   uint64
	s   []byte
}

func (f field) str() string    { return string(f.s) }
func (f field) sint() int64    { return protowire.DecodeZigZag(f.v) }
func (f field) flag() bool     { return f.v != 0 }
func (f field) isBytes() bool  { return f.typ == protowire.BytesType }
func (f field) isVarint() bool { return f.typ == protowire.VarintType }

// consumeFields calls fn for every varint and length-delimited field in b.
// Other wire types are skipped.
func consumeFields(b []byte, fn func(f field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.v, n = protowire.ConsumeVarint(b)
		case protowire.BytesType:
			f.s, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return fmt.Errorf("field %d: %w", num, protowire.ParseError(n))
		}
		b = b[n:]

		if f.isVarint() || f.isBytes() {
			if err := fn(f); err != nil {
				return fmt.Errorf("field %d: %w", num, err)
			}
		}
	}
	return nil
}
