package odbc

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/juju/errgo"
)

// assignValue converts a Go value and writes it into slot row of col. nil stores NULL.
// A text or binary value wider than the column calls grow with the needed
// length first; with a nil grow it is rejected as input truncation.
func assignValue(col ColumnBuffer, row int, value any, grow func(n int) error) error {
	if value == nil {
		return col.SetNull(row)
	}

	switch c := col.(type) {
	case *FixedColumn[int8]:
		n, err := toInt(value, 8)
		if err != nil {
			return err
		}
		return c.Set(row, int8(n))

	case *FixedColumn[int16]:
		n, err := toInt(value, 16)
		if err != nil {
			return err
		}
		return c.Set(row, int16(n))

	case *FixedColumn[int32]:
		n, err := toInt(value, 32)
		if err != nil {
			return err
		}
		return c.Set(row, int32(n))

	case *FixedColumn[int64]:
		n, err := toInt(value, 64)
		if err != nil {
			return err
		}
		return c.Set(row, n)

	case *FixedColumn[uint8]:
		n, err := toInt(value, 64)
		if err != nil {
			return err
		}
		if n < 0 || n > math.MaxUint8 {
			return errgo.Newf("odbc: value %d overflows an unsigned 8-bit column", n)
		}
		return c.Set(row, uint8(n))

	case *FixedColumn[float32]:
		f, err := toFloat(value)
		if err != nil {
			return err
		}
		return c.Set(row, float32(f))

	case *FixedColumn[float64]:
		f, err := toFloat(value)
		if err != nil {
			return err
		}
		return c.Set(row, f)

	case *FixedColumn[Bit]:
		b, err := toBool(value)
		if err != nil {
			return err
		}
		var bit Bit
		if b {
			bit = 1
		}
		return c.Set(row, bit)

	case *FixedColumn[SQL_TIMESTAMP_STRUCT]:
		switch v := value.(type) {
		case time.Time:
			return c.Set(row, TimestampFromTime(v))
		case SQL_TIMESTAMP_STRUCT:
			return c.Set(row, v)
		}

	case *FixedColumn[SQL_DATE_STRUCT]:
		switch v := value.(type) {
		case time.Time:
			return c.Set(row, SQL_DATE_STRUCT{Year: SQLSMALLINT(v.Year()), Month: SQLUSMALLINT(v.Month()), Day: SQLUSMALLINT(v.Day())})
		case SQL_DATE_STRUCT:
			return c.Set(row, v)
		}

	case *FixedColumn[SQL_TIME_STRUCT]:
		switch v := value.(type) {
		case time.Time:
			return c.Set(row, SQL_TIME_STRUCT{Hour: SQLUSMALLINT(v.Hour()), Minute: SQLUSMALLINT(v.Minute()), Second: SQLUSMALLINT(v.Second())})
		case SQL_TIME_STRUCT:
			return c.Set(row, v)
		}

	case *FixedColumn[SQL_GUID_STRUCT]:
		switch v := value.(type) {
		case uuid.UUID:
			return c.Set(row, GUIDFromUUID(v))
		case [16]byte:
			return c.Set(row, GUIDFromUUID(uuid.UUID(v)))
		case string:
			u, err := uuid.Parse(v)
			if err != nil {
				return errgo.Newf("odbc: invalid GUID %q: %v", v, err)
			}
			return c.Set(row, GUIDFromUUID(u))
		case SQL_GUID_STRUCT:
			return c.Set(row, v)
		}

	case *CharColumn:
		v, err := encodeText[byte](textOf(value), c.enc)
		if err != nil {
			return mask(err)
		}
		if len(v) > c.maxLen && grow != nil {
			if err := grow(len(v)); err != nil {
				return err
			}
		}
		return c.Set(row, v)

	case *WCharColumn:
		v, err := encodeText[uint16](textOf(value), nil)
		if err != nil {
			return mask(err)
		}
		if len(v) > c.maxLen && grow != nil {
			if err := grow(len(v)); err != nil {
				return err
			}
		}
		return c.Set(row, v)

	case *BinColumn:
		var v []byte
		switch b := value.(type) {
		case []byte:
			v = b
		case string:
			v = []byte(b)
		default:
			return errgo.Newf("odbc: cannot store %T in a binary column", value)
		}
		if len(v) > c.maxLen && grow != nil {
			if err := grow(len(v)); err != nil {
				return err
			}
		}
		return c.Set(row, v)
	}
	return errgo.Newf("odbc: cannot store %T in a %s column", value, col.Desc().Kind)
}

// textOf renders value the way it is sent to a text column.
func textOf(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case WideString:
		return string(v)
	case []byte:
		return string(v)
	case bool:
		if v {
			return "1"
		}
		return "0"
	case uint64:
		return strconv.FormatUint(v, 10)
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case time.Time:
		return v.Format("2006-01-02 15:04:05.999999999")
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

func toInt(value any, bits int) (int64, error) {
	var n int64
	switch v := value.(type) {
	case int:
		n = int64(v)
	case int8:
		n = int64(v)
	case int16:
		n = int64(v)
	case int32:
		n = int64(v)
	case int64:
		n = v
	case uint:
		if uint64(v) > math.MaxInt64 {
			return 0, errgo.Newf("odbc: value %d overflows a %d-bit column", v, bits)
		}
		n = int64(v)
	case uint8:
		n = int64(v)
	case uint16:
		n = int64(v)
	case uint32:
		n = int64(v)
	case uint64:
		if v > math.MaxInt64 {
			return 0, errgo.Newf("odbc: value %d overflows a %d-bit column", v, bits)
		}
		n = int64(v)
	case bool:
		if v {
			n = 1
		}
	case string:
		parsed, err := strconv.ParseInt(v, 10, bits)
		if err != nil {
			return 0, errgo.Newf("odbc: cannot store %q in a %d-bit column: %v", v, bits, err)
		}
		return parsed, nil
	default:
		return 0, errgo.Newf("odbc: cannot store %T in an integer column", value)
	}
	if bits < 64 && (n < -1<<(bits-1) || n > 1<<(bits-1)-1) {
		return 0, errgo.Newf("odbc: value %d overflows a %d-bit column", n, bits)
	}
	return n, nil
}

func toFloat(value any) (float64, error) {
	switch v := value.(type) {
	case float32:
		return float64(v), nil
	case float64:
		return v, nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, errgo.Newf("odbc: cannot store %q in a float column: %v", v, err)
		}
		return f, nil
	}
	n, err := toInt(value, 64)
	if err != nil {
		return 0, errgo.Newf("odbc: cannot store %T in a float column", value)
	}
	return float64(n), nil
}

func toBool(value any) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, errgo.Newf("odbc: cannot store %q in a bit column: %v", v, err)
		}
		return b, nil
	}
	n, err := toInt(value, 64)
	if err != nil {
		return false, errgo.Newf("odbc: cannot store %T in a bit column", value)
	}
	return n != 0, nil
}
