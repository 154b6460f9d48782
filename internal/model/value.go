// Package model holds the data types shared by every other package:
// database and metric configuration, queries and the scalar values that
// come back from a driver.
package model

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Scalar is a tagged value coming back from a database row. Drivers hand us
// interface{}, but only three shapes ever matter downstream: a number, a
// string (possibly an arbitrary-precision decimal literal) or NULL.
type Scalar struct {
	isNull bool
	isNum  bool
	num    float64
	str    string
}

// Null is the NULL scalar.
var Null = Scalar{isNull: true}

// NewScalar converts a raw driver value (as returned by sqlx row scanning)
// into a Scalar.
func NewScalar(raw interface{}) Scalar {
	switch v := raw.(type) {
	case nil:
		return Null
	case float64:
		return Scalar{isNum: true, num: v}
	case float32:
		return Scalar{isNum: true, num: float64(v)}
	case int64:
		return Scalar{isNum: true, num: float64(v)}
	case int32:
		return Scalar{isNum: true, num: float64(v)}
	case int:
		return Scalar{isNum: true, num: float64(v)}
	case bool:
		if v {
			return Scalar{isNum: true, num: 1}
		}
		return Scalar{isNum: true, num: 0}
	case []byte:
		return Scalar{str: string(v)}
	case string:
		return Scalar{str: v}
	default:
		return Scalar{str: fmt.Sprintf("%v", v)}
	}
}

// Float64 coerces the scalar to a double, per spec.md §4.2: NULL becomes
// 0.0, numbers pass through, numeric strings (including arbitrary-precision
// decimals) are parsed, anything else is an error.
func (s Scalar) Float64() (float64, error) {
	if s.isNull {
		return 0.0, nil
	}
	if s.isNum {
		return s.num, nil
	}
	trimmed := strings.TrimSpace(s.str)
	if trimmed == "" {
		return 0, fmt.Errorf("invalid metric value: empty string")
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return 0, fmt.Errorf("invalid metric value %q: %w", s.str, err)
	}
	f, _ := d.Float64()
	return f, nil
}

// String returns the scalar's string representation, used for label values.
func (s Scalar) String() string {
	if s.isNull {
		return ""
	}
	if s.isNum {
		return strconvTrimFloat(s.num)
	}
	return s.str
}

func strconvTrimFloat(f float64) string {
	s := fmt.Sprintf("%g", f)
	return s
}
