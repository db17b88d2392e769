package odbc

import (
	"bytes"
	"database/sql/driver"
	"io"
	"reflect"
	"time"

	"github.com/google/uuid"
)

// Rows implements driver.Rows by walking the blocks of a BlockCursor. A block
// holding a truncated value fails Next with *TruncationError; raise the
// connector's MaxTextLen for such columns.
type Rows struct {
	bc   *BlockCursor
	cols []ColumnDescription
	rs   *RowSet
	row  int

	fetchSize  int
	maxTextLen int

	// released on Close
	params *BulkInserter
	owner  *Stmt
	closed bool
}

// newRows binds a row set shaped after the result set of cursor. A nil cursor
// yields rows without columns.
func newRows(cursor *Cursor, fetchSize, maxTextLen int) (*Rows, error) {
	r := &Rows{fetchSize: fetchSize, maxTextLen: maxTextLen}
	if cursor == nil {
		return r, nil
	}
	if err := r.bind(cursor); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Rows) bind(cursor *Cursor) error {
	cols, err := cursor.Columns()
	if err != nil {
		return err
	}
	descs, err := cursor.BufferDescs(r.maxTextLen)
	if err != nil {
		return err
	}
	rs, err := NewRowSet(descs, r.fetchSize)
	if err != nil {
		return err
	}
	bc, err := cursor.BindBuffer(rs, WithTruncationPolicy(TruncationReport))
	if err != nil {
		return err
	}
	r.bc, r.cols, r.rs, r.row = bc, cols, nil, 0
	return nil
}

// Columns returns the column names
func (r *Rows) Columns() []string {
	names := make([]string, len(r.cols))
	for i, c := range r.cols {
		names[i] = c.Name
	}
	return names
}

// Close closes the cursor and releases the parameters and statement the
// rows were produced with.
func (r *Rows) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	var err error
	if r.bc != nil {
		err = r.bc.Close()
	}
	if r.params != nil {
		if perr := r.params.Close(); err == nil {
			err = perr
		}
	}
	if r.owner != nil {
		if serr := r.owner.Close(); err == nil {
			err = serr
		}
	}
	return err
}

// Next copies the next row into dest, fetching a new block when the current one is used up.
func (r *Rows) Next(dest []driver.Value) error {
	if r.closed || r.bc == nil {
		return io.EOF
	}
	for r.rs == nil || r.row >= r.rs.NumRows() {
		rs, err := r.bc.Fetch()
		if err != nil {
			return err
		}
		if rs == nil {
			return io.EOF
		}
		r.rs, r.row = rs, 0
	}
	for i := range dest {
		dest[i] = driverValue(r.rs.Column(i).Value(r.row))
	}
	r.row++
	return nil
}

// driverValue narrows a buffer value to the types database/sql accepts.
// Byte slices are copied because the next block overwrites them.
func driverValue(v any) driver.Value {
	switch x := v.(type) {
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint8:
		return int64(x)
	case float32:
		return float64(x)
	case uuid.UUID:
		return x.String()
	case []byte:
		return bytes.Clone(x)
	}
	return v
}

func (r *Rows) kind(index int) (BufferKind, bool) {
	if r.bc == nil || index < 0 || index >= len(r.cols) {
		return 0, false
	}
	return r.bc.RowSet().Column(index).Desc().Kind, true
}

// ColumnTypeScanType returns the Go type Next produces for the column.
func (r *Rows) ColumnTypeScanType(index int) reflect.Type {
	kind, ok := r.kind(index)
	if !ok {
		return reflect.TypeOf(new(any)).Elem()
	}
	switch kind {
	case KindBit:
		return reflect.TypeOf(false)
	case KindI8, KindI16, KindI32, KindI64, KindU8:
		return reflect.TypeOf(int64(0))
	case KindF32, KindF64:
		return reflect.TypeOf(float64(0))
	case KindDate, KindTime, KindTimestamp:
		return reflect.TypeOf(time.Time{})
	case KindBinary:
		return reflect.TypeOf([]byte{})
	default:
		return reflect.TypeOf("")
	}
}

// ColumnTypeDatabaseTypeName returns the database type name
func (r *Rows) ColumnTypeDatabaseTypeName(index int) string {
	if index < 0 || index >= len(r.cols) {
		return ""
	}
	return SQLTypeName(r.cols[index].DataType)
}

// ColumnTypeLength returns the length of a column
func (r *Rows) ColumnTypeLength(index int) (length int64, ok bool) {
	if index < 0 || index >= len(r.cols) {
		return 0, false
	}
	return r.cols[index].Length()
}

// ColumnTypeNullable returns whether a column is nullable
func (r *Rows) ColumnTypeNullable(index int) (nullable, ok bool) {
	if index < 0 || index >= len(r.cols) {
		return false, false
	}
	switch r.cols[index].Nullable {
	case SQL_NO_NULLS:
		return false, true
	case SQL_NULLABLE:
		return true, true
	}
	return false, false
}

// ColumnTypePrecisionScale returns the precision and scale for NUMERIC/DECIMAL types
func (r *Rows) ColumnTypePrecisionScale(index int) (precision, scale int64, ok bool) {
	if index < 0 || index >= len(r.cols) {
		return 0, 0, false
	}
	return r.cols[index].PrecisionScale()
}

// HasNextResultSet is always true while the rows are open; NextResultSet
// asks the driver.
func (r *Rows) HasNextResultSet() bool {
	return !r.closed && r.bc != nil
}

// NextResultSet unbinds the current row set and binds a new one shaped after
// the next result set.
func (r *Rows) NextResultSet() error {
	if !r.HasNextResultSet() {
		return io.EOF
	}
	cursor, _, err := r.bc.Unbind()
	if err != nil {
		return err
	}
	more, err := cursor.MoreResults()
	if err != nil {
		return err
	}
	if !more {
		return io.EOF
	}
	return r.bind(cursor)
}

var (
	_ driver.Rows                           = (*Rows)(nil)
	_ driver.RowsColumnTypeScanType         = (*Rows)(nil)
	_ driver.RowsColumnTypeDatabaseTypeName = (*Rows)(nil)
	_ driver.RowsColumnTypeLength           = (*Rows)(nil)
	_ driver.RowsColumnTypeNullable         = (*Rows)(nil)
	_ driver.RowsColumnTypePrecisionScale   = (*Rows)(nil)
	_ driver.RowsNextResultSet              = (*Rows)(nil)
)
