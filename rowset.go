package odbc

import "fmt"

// RowSet is a block of column buffers sharing one array size. It is the unit
// bound to a statement for block fetch. NumRows is written by the driver
// through a pointer that stays valid for the life of the RowSet.
type RowSet struct {
	cols     []ColumnBuffer
	capacity int
	numRows  SQLULEN
}

// NewRowSet allocates one buffer per description, each with capacity slots.
func NewRowSet(descs []BufferDesc, capacity int, opts ...BufferOption) (*RowSet, error) {
	rs := &RowSet{capacity: capacity, cols: make([]ColumnBuffer, 0, len(descs))}
	for i, d := range descs {
		col, err := NewColumnBuffer(d, capacity, opts...)
		if err != nil {
			return nil, withIndex(err, i)
		}
		rs.cols = append(rs.cols, col)
	}
	return rs, nil
}

// RowSetFromColumns groups existing buffers. Every buffer must have exactly capacity slots.
func RowSetFromColumns(capacity int, cols ...ColumnBuffer) (*RowSet, error) {
	for i, c := range cols {
		if c.Capacity() != capacity {
			return nil, &BindingError{Index: i, Reason: fmt.Sprintf("capacity %d does not match array size %d", c.Capacity(), capacity)}
		}
	}
	return &RowSet{capacity: capacity, cols: cols}, nil
}

// NumRows is the number of valid rows delivered by the last fetch.
func (rs *RowSet) NumRows() int { return int(rs.numRows) }

func (rs *RowSet) Capacity() int { return rs.capacity }

func (rs *RowSet) NumCols() int { return len(rs.cols) }

func (rs *RowSet) Column(i int) ColumnBuffer { return rs.cols[i] }

// Descs returns the current layout of every column.
func (rs *RowSet) Descs() []BufferDesc {
	descs := make([]BufferDesc, len(rs.cols))
	for i, c := range rs.cols {
		descs[i] = c.Desc()
	}
	return descs
}

// Row returns the Go values of row i, nil for NULL cells.
func (rs *RowSet) Row(i int) []any {
	row := make([]any, len(rs.cols))
	for j, c := range rs.cols {
		row[j] = c.Value(i)
	}
	return row
}

// Clone allocates an empty RowSet with the same layout.
func (rs *RowSet) Clone() (*RowSet, error) {
	clone := &RowSet{capacity: rs.capacity, cols: make([]ColumnBuffer, len(rs.cols))}
	for i, c := range rs.cols {
		col, err := c.empty(rs.capacity)
		if err != nil {
			return nil, withIndex(err, i)
		}
		clone.cols[i] = col
	}
	return clone, nil
}

// ColumnAs returns column i as its concrete buffer type.
func ColumnAs[B ColumnBuffer](rs *RowSet, i int) (B, bool) {
	b, ok := rs.cols[i].(B)
	return b, ok
}

// maxLenBytes is the width of one cell as the driver counts it, without terminator.
func maxLenBytes(desc BufferDesc) int {
	if desc.Kind == KindWText {
		return 2 * desc.MaxLen
	}
	return desc.MaxLen
}

// FindTruncation scans the delivered rows of every variable-length column and
// reports the first cell whose indicator exceeds the buffer width.
func FindTruncation(rs *RowSet) *TruncationError {
	n := rs.NumRows()
	for j, c := range rs.cols {
		if !c.Desc().Kind.Variable() {
			continue
		}
		for i := 0; i < n; i++ {
			if c.truncatedAt(i) {
				return &TruncationError{Index: j, Row: i, Indicator: c.IndicatorAt(i), MaxLen: maxLenBytes(c.Desc())}
			}
		}
	}
	return nil
}
