package record

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/shopspring/decimal"
)

// DataType identifies the canonical value type of a field.
type DataType string

const (
	String    DataType = "string"
	Integer   DataType = "integer"
	Double    DataType = "double"
	Decimal   DataType = "decimal"
	Boolean   DataType = "boolean"
	Date      DataType = "date"
	Time      DataType = "time"
	Timestamp DataType = "timestamp"
	Geometry  DataType = "geometry"
)

// Layouts used when parsing and formatting temporal values.
const (
	DateLayout      = "2006-01-02"
	TimeLayout      = "15:04:05"
	TimestampLayout = "2006-01-02 15:04:05.000"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	TimestampLayout,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	DateLayout,
}

// ParseDataType maps a schema file type name onto a DataType.
func ParseDataType(name string) (DataType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "string", "text", "varchar":
		return String, nil
	case "integer", "int", "long", "short", "oid":
		return Integer, nil
	case "double", "float", "real":
		return Double, nil
	case "decimal", "numeric":
		return Decimal, nil
	case "boolean", "bool":
		return Boolean, nil
	case "date":
		return Date, nil
	case "time":
		return Time, nil
	case "timestamp", "datetime":
		return Timestamp, nil
	case "geometry", "shape":
		return Geometry, nil
	default:
		return "", fmt.Errorf("unknown data type %q", name)
	}
}

// IsTemporal reports whether values of this type are time.Time.
func (t DataType) IsTemporal() bool {
	return t == Date || t == Time || t == Timestamp
}

// IsNumeric reports whether values of this type are numbers.
func (t DataType) IsNumeric() bool {
	return t == Integer || t == Double || t == Decimal
}

// Convert converts v to the canonical Go representation for t.
// nil converts to nil for every type.
func (t DataType) Convert(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case String:
		return t.Format(v), nil
	case Integer:
		return toInt64(v)
	case Double:
		return toFloat64(v)
	case Decimal:
		return ToDecimal(v)
	case Boolean:
		return toBool(v)
	case Date:
		ts, err := toTime(v, DateLayout)
		if err != nil {
			return nil, err
		}
		y, m, d := ts.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	case Time:
		ts, err := toTime(v, TimeLayout)
		if err != nil {
			return nil, err
		}
		return time.Date(0, 1, 1, ts.Hour(), ts.Minute(), ts.Second(), ts.Nanosecond(), time.UTC), nil
	case Timestamp:
		return toTime(v, TimestampLayout)
	case Geometry:
		return toGeometry(v)
	default:
		return nil, fmt.Errorf("unsupported data type %q", t)
	}
}

// Format renders v as text the way a value of type t is displayed.
func (t DataType) Format(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case time.Time:
		switch t {
		case Date:
			return val.Format(DateLayout)
		case Time:
			return val.Format(TimeLayout)
		default:
			return val.Format(TimestampLayout)
		}
	case orb.Geometry:
		return wkt.MarshalString(val)
	case decimal.Decimal:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case []byte:
		return string(val)
	default:
		return fmt.Sprint(val)
	}
}

// IsNumber reports whether v is one of the Go numeric types a record can hold.
func IsNumber(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64,
		float32, float64, decimal.Decimal:
		return true
	}
	return false
}

// ToDecimal converts a number or numeric string to an arbitrary precision decimal.
func ToDecimal(v any) (decimal.Decimal, error) {
	switch val := v.(type) {
	case decimal.Decimal:
		return val, nil
	case int:
		return decimal.NewFromInt(int64(val)), nil
	case int8:
		return decimal.NewFromInt(int64(val)), nil
	case int16:
		return decimal.NewFromInt(int64(val)), nil
	case int32:
		return decimal.NewFromInt32(val), nil
	case int64:
		return decimal.NewFromInt(val), nil
	case uint:
		return fromUint64(uint64(val)), nil
	case uint8:
		return decimal.NewFromInt(int64(val)), nil
	case uint16:
		return decimal.NewFromInt(int64(val)), nil
	case uint32:
		return decimal.NewFromInt(int64(val)), nil
	case uint64:
		return fromUint64(val), nil
	case float32:
		return decimal.NewFromFloat32(val), nil
	case float64:
		return decimal.NewFromFloat(val), nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(val))
		if err != nil {
			return decimal.Zero, fmt.Errorf("%q is not a number", val)
		}
		return d, nil
	case []byte:
		return ToDecimal(string(val))
	default:
		return decimal.Zero, fmt.Errorf("%v (%T) is not a number", v, v)
	}
}

// FromDecimal converts d back to the runtime type of like.
// Integer types truncate toward zero.
func FromDecimal(d decimal.Decimal, like any) any {
	switch like.(type) {
	case int:
		return int(d.IntPart())
	case int8:
		return int8(d.IntPart())
	case int16:
		return int16(d.IntPart())
	case int32:
		return int32(d.IntPart())
	case int64:
		return d.IntPart()
	case uint:
		return uint(d.IntPart())
	case uint8:
		return uint8(d.IntPart())
	case uint16:
		return uint16(d.IntPart())
	case uint32:
		return uint32(d.IntPart())
	case uint64:
		return uint64(d.IntPart())
	case float32:
		f, _ := d.Float64()
		return float32(f)
	case float64:
		f, _ := d.Float64()
		return f
	default:
		return d
	}
}

func fromUint64(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}

func toInt64(v any) (any, error) {
	switch val := v.(type) {
	case bool:
		if val {
			return int64(1), nil
		}
		return int64(0), nil
	case float64:
		if val != math.Trunc(val) {
			return nil, fmt.Errorf("%v is not an integer", val)
		}
		return int64(val), nil
	case float32:
		return toInt64(float64(val))
	}
	d, err := ToDecimal(v)
	if err != nil {
		return nil, err
	}
	if !d.Equal(d.Truncate(0)) {
		return nil, fmt.Errorf("%s is not an integer", d)
	}
	return d.IntPart(), nil
}

func toFloat64(v any) (any, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case float32:
		return float64(val), nil
	}
	d, err := ToDecimal(v)
	if err != nil {
		return nil, err
	}
	f, _ := d.Float64()
	return f, nil
}

func toBool(v any) (any, error) {
	switch val := v.(type) {
	case bool:
		return val, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(val))
		if err != nil {
			return nil, fmt.Errorf("%q is not a boolean", val)
		}
		return b, nil
	}
	if IsNumber(v) {
		d, _ := ToDecimal(v)
		return !d.IsZero(), nil
	}
	return nil, fmt.Errorf("%v (%T) is not a boolean", v, v)
}

func toTime(v any, layout string) (time.Time, error) {
	switch val := v.(type) {
	case time.Time:
		return val, nil
	case []byte:
		return toTime(string(val), layout)
	case string:
		s := strings.TrimSpace(val)
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
		for _, l := range timestampLayouts {
			if t, err := time.Parse(l, s); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("%q is not a valid %s", val, layout)
	default:
		return time.Time{}, fmt.Errorf("%v (%T) is not a time", v, v)
	}
}

func toGeometry(v any) (any, error) {
	switch val := v.(type) {
	case orb.Geometry:
		return val, nil
	case []byte:
		return toGeometry(string(val))
	case string:
		g, err := wkt.Unmarshal(val)
		if err != nil {
			return nil, fmt.Errorf("invalid geometry text: %w", err)
		}
		return g, nil
	default:
		return nil, fmt.Errorf("%v (%T) is not a geometry", v, v)
	}
}
