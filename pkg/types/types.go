// Package types defines the logical column types produced by the CSV reader,
// the text-to-value cast primitives and their Arrow representation.
package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
)

// Type is a logical column type.
type Type uint8

const (
	// Null is the type of a column that held only NULL values while sniffing
	Null Type = iota
	Boolean
	Integer
	BigInt
	Double
	Time
	Date
	Timestamp
	Varchar
)

var typeNames = [...]string{
	Null:      "NULL",
	Boolean:   "BOOLEAN",
	Integer:   "INTEGER",
	BigInt:    "BIGINT",
	Double:    "DOUBLE",
	Time:      "TIME",
	Date:      "DATE",
	Timestamp: "TIMESTAMP",
	Varchar:   "VARCHAR",
}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

// MarshalText renders the SQL name of the type.
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText parses a SQL type name.
func (t *Type) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Parse resolves a SQL type name, accepting the usual aliases.
func Parse(name string) (Type, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "NULL", "SQLNULL":
		return Null, nil
	case "BOOLEAN", "BOOL", "LOGICAL":
		return Boolean, nil
	case "INTEGER", "INT", "INT4", "INT32", "SIGNED":
		return Integer, nil
	case "BIGINT", "INT8", "INT64", "LONG":
		return BigInt, nil
	case "DOUBLE", "FLOAT8", "FLOAT", "REAL", "NUMERIC":
		return Double, nil
	case "TIME":
		return Time, nil
	case "DATE":
		return Date, nil
	case "TIMESTAMP", "DATETIME":
		return Timestamp, nil
	case "VARCHAR", "TEXT", "STRING", "CHAR", "BPCHAR":
		return Varchar, nil
	default:
		return Null, fmt.Errorf("unknown type %q", name)
	}
}

// ParseList resolves a list of type names.
func ParseList(names []string) ([]Type, error) {
	out := make([]Type, 0, len(names))
	for _, n := range names {
		t, err := Parse(n)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// DefaultCandidates is the priority order used by type sniffing, most
// specific first. VARCHAR accepts every value and always terminates the list.
var DefaultCandidates = []Type{Boolean, BigInt, Double, Time, Date, Timestamp, Varchar}

// ArrowType maps a logical type to its Arrow representation.
func (t Type) ArrowType() arrow.DataType {
	switch t {
	case Boolean:
		return arrow.FixedWidthTypes.Boolean
	case Integer:
		return arrow.PrimitiveTypes.Int32
	case BigInt:
		return arrow.PrimitiveTypes.Int64
	case Double:
		return arrow.PrimitiveTypes.Float64
	case Time:
		return arrow.FixedWidthTypes.Time64us
	case Date:
		return arrow.FixedWidthTypes.Date32
	case Timestamp:
		return arrow.FixedWidthTypes.Timestamp_us
	case Null:
		return arrow.Null
	default:
		return arrow.BinaryTypes.String
	}
}

// Formats holds the Go time layouts applied to DATE and TIMESTAMP casts.
type Formats struct {
	Date      string
	Timestamp string
}

// Layout returns the layout for t, falling back to the ISO default.
func (f Formats) Layout(t Type) string {
	switch t {
	case Date:
		if f.Date != "" {
			return f.Date
		}
		return DateLayouts[0]
	case Timestamp:
		if f.Timestamp != "" {
			return f.Timestamp
		}
		return TimestampLayouts[0]
	case Time:
		return timeLayout
	default:
		return ""
	}
}

// DateLayouts are the date formats tried while sniffing, in order.
var DateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"02-01-2006",
	"01-02-2006",
	"02/01/2006",
	"01/02/2006",
	"02.01.2006",
	"20060102",
}

// TimestampLayouts are the timestamp formats tried while sniffing, in order.
// Fractional seconds are accepted by every layout.
var TimestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339Nano,
	"2006-01-02 15:04:05Z07:00",
	"2006/01/02 15:04:05",
	"02-01-2006 15:04:05",
	"01-02-2006 15:04:05",
	"02/01/2006 15:04:05",
	"01/02/2006 15:04:05",
}

const timeLayout = "15:04:05"

// TryCast converts raw text to the Go value stored for t. It reports
// failure through the boolean and never panics.
//
// BOOLEAN → bool, INTEGER → int32, BIGINT → int64, DOUBLE → float64,
// TIME → arrow.Time64 (µs), DATE → arrow.Date32, TIMESTAMP →
// arrow.Timestamp (µs), VARCHAR → string.
func TryCast(raw string, t Type, f Formats) (any, bool) {
	switch t {
	case Varchar:
		return raw, true
	case Boolean:
		return castBool(strings.TrimSpace(raw))
	case Integer:
		v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 32)
		if err != nil {
			return nil, false
		}
		return int32(v), true
	case BigInt:
		v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return nil, false
		}
		return v, true
	case Double:
		s := strings.TrimSpace(raw)
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, false
		}
		// Go accepts hex floats and underscores; CSV numbers never carry them.
		if strings.ContainsAny(s, "xX_") {
			return nil, false
		}
		return v, true
	case Time:
		ts, err := time.Parse(timeLayout, strings.TrimSpace(raw))
		if err != nil {
			return nil, false
		}
		return timeOfDay(ts), true
	case Date:
		ts, err := time.Parse(f.Layout(Date), strings.TrimSpace(raw))
		if err != nil {
			return nil, false
		}
		return arrow.Date32FromTime(ts), true
	case Timestamp:
		ts, err := time.Parse(f.Layout(Timestamp), strings.TrimSpace(raw))
		if err != nil {
			return nil, false
		}
		return arrow.Timestamp(ts.UTC().UnixMicro()), true
	default:
		return nil, false
	}
}

// Validate reports whether raw casts to t. Sniffing uses it to walk the
// candidate list without materializing values.
func Validate(raw string, t Type, f Formats) bool {
	_, ok := TryCast(raw, t, f)
	return ok
}

func castBool(s string) (any, bool) {
	switch strings.ToLower(s) {
	case "true", "t":
		return true, true
	case "false", "f":
		return false, true
	default:
		return nil, false
	}
}

func timeOfDay(ts time.Time) arrow.Time64 {
	micros := int64(ts.Hour())*3600e6 + int64(ts.Minute())*60e6 + int64(ts.Second())*1e6 +
		int64(ts.Nanosecond()/1000)
	return arrow.Time64(micros)
}
