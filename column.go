package odbc

import "fmt"

// ColumnDescription is the result-set metadata of one column as reported by SQLDescribeCol.
type ColumnDescription struct {
	Name     string
	DataType SQLSMALLINT
	Size     SQLULEN // precision for NUMERIC/DECIMAL, characters or bytes for strings
	Scale    SQLSMALLINT
	Nullable SQLSMALLINT // SQL_NO_NULLS, SQL_NULLABLE or SQL_NULLABLE_UNKNOWN
}

// MayBeNull is true unless the driver guarantees the column has no NULLs.
func (c ColumnDescription) MayBeNull() bool {
	return c.Nullable != SQL_NO_NULLS
}

// Length returns the declared length of variable-length columns.
func (c ColumnDescription) Length() (length int64, ok bool) {
	switch c.DataType {
	case SQL_CHAR, SQL_VARCHAR, SQL_LONGVARCHAR, SQL_WCHAR, SQL_WVARCHAR, SQL_WLONGVARCHAR,
		SQL_BINARY, SQL_VARBINARY, SQL_LONGVARBINARY:
		return int64(c.Size), true
	}
	return 0, false
}

// PrecisionScale returns precision and scale for NUMERIC/DECIMAL columns.
func (c ColumnDescription) PrecisionScale() (precision, scale int64, ok bool) {
	switch c.DataType {
	case SQL_NUMERIC, SQL_DECIMAL:
		return int64(c.Size), int64(c.Scale), true
	}
	return 0, 0, false
}

func (c ColumnDescription) String() string {
	return fmt.Sprintf("%s %s(%d,%d)", c.Name, SQLTypeName(c.DataType), c.Size, c.Scale)
}

// ParameterDescription is what SQLDescribeParam reports for one placeholder.
type ParameterDescription struct {
	DataType SQLSMALLINT
	Size     SQLULEN
	Scale    SQLSMALLINT
	Nullable SQLSMALLINT
}

// BufferDesc picks a parameter buffer for values of the described type.
func (p ParameterDescription) BufferDesc() (BufferDesc, bool) {
	return BufferDescFromColumn(ColumnDescription{DataType: p.DataType, Size: p.Size, Scale: p.Scale, Nullable: p.Nullable})
}

// BufferDescFromColumn picks a buffer layout able to hold every value of col.
// ok is false when the column has no usable bound (long data reporting size 0);
// the caller must then choose a MaxLen itself.
func BufferDescFromColumn(col ColumnDescription) (desc BufferDesc, ok bool) {
	nullable := col.MayBeNull()
	fixed := func(k BufferKind) (BufferDesc, bool) {
		return BufferDesc{Kind: k, Nullable: nullable}, true
	}
	variable := func(k BufferKind, n SQLULEN) (BufferDesc, bool) {
		if n == 0 || n > maxColumnSize {
			return BufferDesc{Kind: k, Nullable: true}, false
		}
		return BufferDesc{Kind: k, MaxLen: int(n), Nullable: true}, true
	}

	switch col.DataType {
	case SQL_TINYINT:
		return fixed(KindI8)
	case SQL_SMALLINT:
		return fixed(KindI16)
	case SQL_INTEGER:
		return fixed(KindI32)
	case SQL_BIGINT:
		return fixed(KindI64)
	case SQL_REAL:
		return fixed(KindF32)
	case SQL_FLOAT, SQL_DOUBLE:
		return fixed(KindF64)
	case SQL_BIT, SQL_BOOLEAN:
		return fixed(KindBit)
	case SQL_TYPE_DATE:
		return fixed(KindDate)
	case SQL_TYPE_TIME:
		return fixed(KindTime)
	case SQL_TYPE_TIMESTAMP, SQL_DATETIME:
		return fixed(KindTimestamp)
	case SQL_GUID:
		return fixed(KindGUID)
	case SQL_NUMERIC, SQL_DECIMAL:
		switch {
		case col.Scale == 0 && col.Size > 0 && col.Size < 10:
			return fixed(KindI32)
		case col.Scale == 0 && col.Size > 0 && col.Size < 19:
			return fixed(KindI64)
		}
		// sign and radix character
		return variable(KindText, col.Size+2)
	case SQL_WCHAR, SQL_WVARCHAR, SQL_WLONGVARCHAR:
		return variable(KindWText, col.Size)
	case SQL_BINARY, SQL_VARBINARY, SQL_LONGVARBINARY:
		return variable(KindBinary, col.Size)
	default:
		return variable(KindText, col.Size)
	}
}

// maxColumnSize bounds what BufferDescFromColumn accepts from a driver; larger
// sizes are what drivers report for unbounded types.
const maxColumnSize = 1 << 20

// SQLTypeName returns a human-readable name for an SQL type
func SQLTypeName(sqlType SQLSMALLINT) string {
	switch sqlType {
	case SQL_CHAR:
		return "CHAR"
	case SQL_VARCHAR:
		return "VARCHAR"
	case SQL_LONGVARCHAR:
		return "LONGVARCHAR"
	case SQL_WCHAR:
		return "WCHAR"
	case SQL_WVARCHAR:
		return "WVARCHAR"
	case SQL_WLONGVARCHAR:
		return "WLONGVARCHAR"
	case SQL_DECIMAL:
		return "DECIMAL"
	case SQL_NUMERIC:
		return "NUMERIC"
	case SQL_SMALLINT:
		return "SMALLINT"
	case SQL_INTEGER:
		return "INTEGER"
	case SQL_REAL:
		return "REAL"
	case SQL_FLOAT:
		return "FLOAT"
	case SQL_DOUBLE:
		return "DOUBLE"
	case SQL_BIT:
		return "BIT"
	case SQL_BOOLEAN:
		return "BOOLEAN"
	case SQL_TINYINT:
		return "TINYINT"
	case SQL_BIGINT:
		return "BIGINT"
	case SQL_BINARY:
		return "BINARY"
	case SQL_VARBINARY:
		return "VARBINARY"
	case SQL_LONGVARBINARY:
		return "LONGVARBINARY"
	case SQL_TYPE_DATE:
		return "DATE"
	case SQL_TYPE_TIME:
		return "TIME"
	case SQL_TYPE_TIMESTAMP:
		return "TIMESTAMP"
	case SQL_DATETIME:
		return "DATETIME"
	case SQL_GUID:
		return "GUID"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", sqlType)
	}
}
