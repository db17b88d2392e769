package odbc

import "strconv"

// IndicatorKind tells the three indicator states apart.
type IndicatorKind int

const (
	// IndicatorLength means the value exists; Len is its true length in bytes.
	IndicatorLength IndicatorKind = iota
	// IndicatorNull means the field is NULL and the value slot must not be read.
	IndicatorNull
	// IndicatorNoTotal means the value exists but the driver could not report its length.
	IndicatorNoTotal
)

// Indicator is the decoded form of one SQLLEN length/indicator slot.
type Indicator struct {
	Kind IndicatorKind
	Len  int
}

// Null, NoTotal and Length build indicators.
var (
	Null    = Indicator{Kind: IndicatorNull}
	NoTotal = Indicator{Kind: IndicatorNoTotal}
)

// Length returns an indicator for a value of n bytes.
func Length(n int) Indicator { return Indicator{Kind: IndicatorLength, Len: n} }

// IndicatorFromSQLLEN decodes a raw indicator written by the driver.
func IndicatorFromSQLLEN(v SQLLEN) Indicator {
	switch {
	case v == SQL_NULL_DATA:
		return Null
	case v == SQL_NO_TOTAL:
		return NoTotal
	case v < 0:
		// other negative sentinels are never lengths
		return NoTotal
	default:
		return Length(int(v))
	}
}

// SQLLEN encodes the indicator the way the driver expects it.
func (i Indicator) SQLLEN() SQLLEN {
	switch i.Kind {
	case IndicatorNull:
		return SQL_NULL_DATA
	case IndicatorNoTotal:
		return SQL_NO_TOTAL
	default:
		return SQLLEN(i.Len)
	}
}

// IsNull reports whether the indicator marks NULL.
func (i Indicator) IsNull() bool { return i.Kind == IndicatorNull }

// IsTruncated reports whether a value described by i did not fit maxLen bytes.
// NoTotal counts as truncated, the size is unknown.
func (i Indicator) IsTruncated(maxLen int) bool {
	switch i.Kind {
	case IndicatorNull:
		return false
	case IndicatorNoTotal:
		return true
	default:
		return i.Len > maxLen
	}
}

func (i Indicator) String() string {
	switch i.Kind {
	case IndicatorNull:
		return "Null"
	case IndicatorNoTotal:
		return "NoTotal"
	default:
		return "Length(" + strconv.Itoa(i.Len) + ")"
	}
}
