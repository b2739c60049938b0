package rtde

import (
	"encoding/binary"
	"fmt"
	"math"
)

// FieldType is an RTDE data type name as used in recipes.
type FieldType string

// Field types.
const (
	Bool          FieldType = "BOOL"
	Uint8         FieldType = "UINT8"
	Uint32        FieldType = "UINT32"
	Uint64        FieldType = "UINT64"
	Int32         FieldType = "INT32"
	Double        FieldType = "DOUBLE"
	Vector3D      FieldType = "VECTOR3D"
	Vector6D      FieldType = "VECTOR6D"
	Vector6Int32  FieldType = "VECTOR6INT32"
	Vector6Uint32 FieldType = "VECTOR6UINT32"
	NotFound      FieldType = "NOT_FOUND"
	InUse         FieldType = "IN_USE"
)

type typeInfo struct {
	count int // number of elements
	width int // bytes per element
}

var typeInfos = map[FieldType]typeInfo{
	Bool:          {1, 1},
	Uint8:         {1, 1},
	Uint32:        {1, 4},
	Uint64:        {1, 8},
	Int32:         {1, 4},
	Double:        {1, 8},
	Vector3D:      {3, 8},
	Vector6D:      {6, 8},
	Vector6Int32:  {6, 4},
	Vector6Uint32: {6, 4},
}

// Valid reports whether t is a data type that can be decoded.
func (t FieldType) Valid() bool {
	_, ok := typeInfos[t]
	return ok
}

// Count returns the number of values a field of this type holds.
func (t FieldType) Count() int {
	return typeInfos[t].count
}

// Size returns the encoded size of a field of this type in bytes.
func (t FieldType) Size() int {
	info := typeInfos[t]
	return info.count * info.width
}

// decode reads one value of type t from b. Integers are widened to float64.
func (t FieldType) decode(b []byte) ([]float64, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("unsupported type %q", t)
	}
	if len(b) < t.Size() {
		return nil, fmt.Errorf("short %s value: %d bytes", t, len(b))
	}
	info := typeInfos[t]
	out := make([]float64, info.count)
	for i := range out {
		e := b[i*info.width : (i+1)*info.width]
		switch t {
		case Bool, Uint8:
			out[i] = float64(e[0])
		case Uint32, Vector6Uint32:
			out[i] = float64(binary.BigEndian.Uint32(e))
		case Int32, Vector6Int32:
			out[i] = float64(int32(binary.BigEndian.Uint32(e)))
		case Uint64:
			out[i] = float64(binary.BigEndian.Uint64(e))
		case Double, Vector3D, Vector6D:
			out[i] = math.Float64frombits(binary.BigEndian.Uint64(e))
		}
	}
	return out, nil
}

// encode is the inverse of decode.
func (t FieldType) encode(v []float64) ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("unsupported type %q", t)
	}
	info := typeInfos[t]
	if len(v) != info.count {
		return nil, fmt.Errorf("%s needs %d values, got %d", t, info.count, len(v))
	}
	b := make([]byte, t.Size())
	for i, x := range v {
		e := b[i*info.width : (i+1)*info.width]
		switch t {
		case Bool, Uint8:
			e[0] = byte(x)
		case Uint32, Vector6Uint32:
			binary.BigEndian.PutUint32(e, uint32(x))
		case Int32, Vector6Int32:
			binary.BigEndian.PutUint32(e, uint32(int32(x)))
		case Uint64:
			binary.BigEndian.PutUint64(e, uint64(x))
		case Double, Vector3D, Vector6D:
			binary.BigEndian.PutUint64(e, math.Float64bits(x))
		}
	}
	return b, nil
}

// Field is a named, typed recipe entry.
type Field struct {
	Name string
	Type FieldType
}

// Columns returns the column names of the field in a recording: the field
// name for scalars, name_0..name_n for vectors.
func (f Field) Columns() []string {
	n := f.Type.Count()
	if n <= 1 {
		return []string{f.Name}
	}
	cols := make([]string, n)
	for i := range cols {
		cols[i] = fmt.Sprintf("%s_%d", f.Name, i)
	}
	return cols
}

// Recipe is an output recipe registered with the controller.
type Recipe struct {
	ID     uint8
	Fields []Field
}

// Names returns the field names in recipe order.
func (r *Recipe) Names() []string {
	names := make([]string, len(r.Fields))
	for i, f := range r.Fields {
		names[i] = f.Name
	}
	return names
}

// Columns returns the recording columns of all fields.
func (r *Recipe) Columns() []string {
	var cols []string
	for _, f := range r.Fields {
		cols = append(cols, f.Columns()...)
	}
	return cols
}

// DataPackage is one frame of output data.
type DataPackage struct {
	RecipeID uint8
	Values   [][]float64 // one entry per recipe field
}

// Value returns the value of the named field.
func (r *Recipe) Value(d DataPackage, name string) ([]float64, bool) {
	for i, f := range r.Fields {
		if f.Name == name && i < len(d.Values) {
			return d.Values[i], true
		}
	}
	return nil, false
}

// Decode parses a DATA_PACKAGE payload for this recipe.
func (r *Recipe) Decode(payload []byte) (DataPackage, error) {
	if len(payload) < 1 {
		return DataPackage{}, fmt.Errorf("empty data package")
	}
	d := DataPackage{RecipeID: payload[0]}
	if d.RecipeID != r.ID {
		return d, fmt.Errorf("data package for recipe %d, want %d", d.RecipeID, r.ID)
	}
	b := payload[1:]
	d.Values = make([][]float64, len(r.Fields))
	for i, f := range r.Fields {
		v, err := f.Type.decode(b)
		if err != nil {
			return d, fmt.Errorf("decode %s: %w", f.Name, err)
		}
		d.Values[i] = v
		b = b[f.Type.Size():]
	}
	if len(b) != 0 {
		return d, fmt.Errorf("%d trailing bytes in data package", len(b))
	}
	return d, nil
}

// Encode builds a DATA_PACKAGE payload for this recipe.
func (r *Recipe) Encode(values [][]float64) ([]byte, error) {
	if len(values) != len(r.Fields) {
		return nil, fmt.Errorf("recipe has %d fields, got %d values", len(r.Fields), len(values))
	}
	out := []byte{r.ID}
	for i, f := range r.Fields {
		b, err := f.Type.encode(values[i])
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", f.Name, err)
		}
		out = append(out, b...)
	}
	return out, nil
}
