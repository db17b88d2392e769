package odbc

import (
	"time"
	"unsafe"
)

// FixedElement lists the element types a FixedColumn can hold.
type FixedElement interface {
	int8 | int16 | int32 | int64 | uint8 | float32 | float64 | Bit |
		SQL_DATE_STRUCT | SQL_TIME_STRUCT | SQL_TIMESTAMP_STRUCT | SQL_GUID_STRUCT
}

// FixedColumn is a flat array of plain values with an optional indicator array.
// Non-nullable columns bind no indicator and every slot always holds a value.
type FixedColumn[T FixedElement] struct {
	kind   BufferKind
	values []T
	ind    []SQLLEN
	lendState
}

func newFixed[T FixedElement](desc BufferDesc, capacity int) *FixedColumn[T] {
	c := &FixedColumn[T]{
		kind:   desc.Kind,
		values: make([]T, capacity),
	}
	if desc.Nullable {
		c.ind = newIndicators(capacity, SQL_NULL_DATA)
	}
	return c
}

func (c *FixedColumn[T]) Desc() BufferDesc {
	return BufferDesc{Kind: c.kind, Nullable: c.ind != nil}
}

func (c *FixedColumn[T]) Capacity() int { return len(c.values) }

// Values exposes the whole value region. Slots marked NULL hold unspecified data.
func (c *FixedColumn[T]) Values() []T { return c.values }

// ValueAt returns slot i and whether it holds a value.
func (c *FixedColumn[T]) ValueAt(i int) (T, bool) {
	checkSlot(i, len(c.values))
	if c.ind != nil && c.ind[i] == SQL_NULL_DATA {
		var zero T
		return zero, false
	}
	return c.values[i], true
}

func (c *FixedColumn[T]) IndicatorAt(i int) Indicator {
	checkSlot(i, len(c.values))
	if c.ind == nil {
		return Length(int(unsafe.Sizeof(c.values[0])))
	}
	return IndicatorFromSQLLEN(c.ind[i])
}

func (c *FixedColumn[T]) IsNull(i int) bool {
	checkSlot(i, len(c.values))
	return c.ind != nil && c.ind[i] == SQL_NULL_DATA
}

// Set stores v in slot i and marks it non-null.
func (c *FixedColumn[T]) Set(i int, v T) error {
	checkSlot(i, len(c.values))
	if err := c.writable(); err != nil {
		return err
	}
	c.values[i] = v
	if c.ind != nil {
		c.ind[i] = SQLLEN(unsafe.Sizeof(v))
	}
	return nil
}

func (c *FixedColumn[T]) SetNull(i int) error {
	checkSlot(i, len(c.values))
	if c.ind == nil {
		return &BindingError{Index: -1, Reason: "column is not nullable"}
	}
	if err := c.writable(); err != nil {
		return err
	}
	c.ind[i] = SQL_NULL_DATA
	return nil
}

// FillNull marks every slot NULL. On non-nullable columns it zeroes the values.
func (c *FixedColumn[T]) FillNull() {
	if c.ind == nil {
		var zero T
		for i := range c.values {
			c.values[i] = zero
		}
		return
	}
	for i := range c.ind {
		c.ind[i] = SQL_NULL_DATA
	}
}

// Value converts slot i to its natural Go type: temporal structs become
// time.Time in UTC, GUIDs uuid.UUID and bits bool.
func (c *FixedColumn[T]) Value(i int) any {
	v, ok := c.ValueAt(i)
	if !ok {
		return nil
	}
	switch x := any(v).(type) {
	case Bit:
		return x.Bool()
	case SQL_TIMESTAMP_STRUCT:
		return x.Time(time.UTC)
	case SQL_DATE_STRUCT:
		return time.Date(int(x.Year), time.Month(x.Month), int(x.Day), 0, 0, 0, 0, time.UTC)
	case SQL_TIME_STRUCT:
		return time.Date(0, 1, 1, int(x.Hour), int(x.Minute), int(x.Second), 0, time.UTC)
	case SQL_GUID_STRUCT:
		return x.UUID()
	default:
		return x
	}
}

func (c *FixedColumn[T]) binding() bindInfo {
	b := bindInfo{
		ptr:     uintptr(unsafe.Pointer(&c.values[0])),
		elemLen: SQLLEN(unsafe.Sizeof(c.values[0])),
	}
	if c.ind != nil {
		b.ind = &c.ind[0]
	}
	switch c.kind {
	case KindI8:
		b.cType, b.sqlType, b.columnSize = SQL_C_STINYINT, SQL_TINYINT, 3
	case KindI16:
		b.cType, b.sqlType, b.columnSize = SQL_C_SSHORT, SQL_SMALLINT, 5
	case KindI32:
		b.cType, b.sqlType, b.columnSize = SQL_C_SLONG, SQL_INTEGER, 10
	case KindI64:
		b.cType, b.sqlType, b.columnSize = SQL_C_SBIGINT, SQL_BIGINT, 19
	case KindU8:
		b.cType, b.sqlType, b.columnSize = SQL_C_UTINYINT, SQL_TINYINT, 3
	case KindF32:
		b.cType, b.sqlType, b.columnSize = SQL_C_FLOAT, SQL_REAL, 7
	case KindF64:
		b.cType, b.sqlType, b.columnSize = SQL_C_DOUBLE, SQL_DOUBLE, 15
	case KindBit:
		b.cType, b.sqlType, b.columnSize = SQL_C_BIT, SQL_BIT, 1
	case KindDate:
		b.cType, b.sqlType, b.columnSize = SQL_C_DATE, SQL_TYPE_DATE, 10
	case KindTime:
		b.cType, b.sqlType, b.columnSize = SQL_C_TIME, SQL_TYPE_TIME, 8
	case KindTimestamp:
		b.cType, b.sqlType, b.columnSize, b.digits = SQL_C_TIMESTAMP, SQL_TYPE_TIMESTAMP, 27, 7
	case KindGUID:
		b.cType, b.sqlType, b.columnSize = SQL_C_GUID, SQL_GUID, 36
	}
	return b
}

func (c *FixedColumn[T]) lender() *lendState { return &c.lendState }

func (c *FixedColumn[T]) truncatedAt(int) bool { return false }

func (c *FixedColumn[T]) resize(int) error {
	return &BindingError{Index: -1, Reason: c.kind.String() + " elements have a fixed width"}
}

// ResizeMaxLen is not supported on fixed-width columns.
func (c *FixedColumn[T]) ResizeMaxLen(int) error { return c.resize(0) }

func (c *FixedColumn[T]) empty(capacity int) (ColumnBuffer, error) {
	return NewColumnBuffer(c.Desc(), capacity)
}
