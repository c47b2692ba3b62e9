package types

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// NewBuilder returns an Arrow builder for values of type t.
func NewBuilder(mem memory.Allocator, t Type) array.Builder {
	return array.NewBuilder(mem, t.ArrowType())
}

// Append appends a value produced by TryCast to b. A nil value appends NULL.
func Append(b array.Builder, v any) error {
	if v == nil {
		b.AppendNull()
		return nil
	}

	switch builder := b.(type) {
	case *array.BooleanBuilder:
		builder.Append(v.(bool))
	case *array.Int32Builder:
		builder.Append(v.(int32))
	case *array.Int64Builder:
		builder.Append(v.(int64))
	case *array.Float64Builder:
		builder.Append(v.(float64))
	case *array.Time64Builder:
		builder.Append(v.(arrow.Time64))
	case *array.Date32Builder:
		builder.Append(v.(arrow.Date32))
	case *array.TimestampBuilder:
		builder.Append(v.(arrow.Timestamp))
	case *array.StringBuilder:
		builder.Append(v.(string))
	case *array.NullBuilder:
		builder.AppendNull()
	default:
		return fmt.Errorf("unsupported builder %T", b)
	}
	return nil
}

// Value reads row i of arr back as the Go value TryCast would produce.
func Value(arr arrow.Array, i int) any {
	if arr.IsNull(i) {
		return nil
	}

	switch a := arr.(type) {
	case *array.Boolean:
		return a.Value(i)
	case *array.Int32:
		return a.Value(i)
	case *array.Int64:
		return a.Value(i)
	case *array.Float64:
		return a.Value(i)
	case *array.Time64:
		return a.Value(i)
	case *array.Date32:
		return a.Value(i)
	case *array.Timestamp:
		return a.Value(i)
	case *array.String:
		return a.Value(i)
	default:
		return nil
	}
}
