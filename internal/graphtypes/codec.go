package graphtypes

import "github.com/raydb/raydb/internal/codec"

// EncodeValue serializes v for contexts (the WAL, in particular) that
// need the fully self-describing form — unlike the snapshot's property
// sections, there is no surrounding string table to resolve a
// string_id against, so STRING values carry their text inline.
func EncodeValue(w *codec.Writer, v Value) {
	w.PutU8(uint8(v.Tag))
	switch v.Tag {
	case TagBool:
		w.PutBool(v.Bool)
	case TagI64:
		w.PutI64(v.I64)
	case TagF64:
		w.PutF64(v.F64)
	case TagString:
		w.PutBytesLP([]byte(v.Str))
	case TagVectorF32:
		w.PutU64(v.VecRef)
	}
}

// DecodeValue reads a value encoded by EncodeValue.
func DecodeValue(r *codec.Reader) (Value, error) {
	tag, err := r.U8()
	if err != nil {
		return Value{}, err
	}
	switch ValueTag(tag) {
	case TagNull:
		return NullValue(), nil
	case TagBool:
		b, err := r.Bool()
		if err != nil {
			return Value{}, err
		}
		return BoolValue(b), nil
	case TagI64:
		v, err := r.I64()
		if err != nil {
			return Value{}, err
		}
		return I64Value(v), nil
	case TagF64:
		v, err := r.F64()
		if err != nil {
			return Value{}, err
		}
		return F64Value(v), nil
	case TagString:
		b, err := r.BytesLP()
		if err != nil {
			return Value{}, err
		}
		return StringValue(string(b)), nil
	case TagVectorF32:
		v, err := r.U64()
		if err != nil {
			return Value{}, err
		}
		return VectorRefValue(v), nil
	default:
		return NullValue(), nil
	}
}
