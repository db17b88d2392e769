package odbc

import "unsafe"

// BinColumn holds variable-length binary values in cells of MaxLen bytes.
type BinColumn struct {
	maxLen   int
	values   []byte
	ind      []SQLLEN
	appended int
	// zero backs the binding of a zero-width column; a null pointer would unbind it.
	zero [1]byte
	lendState
}

func newBinary(maxLen, capacity int) *BinColumn {
	return &BinColumn{
		maxLen: maxLen,
		values: make([]byte, capacity*maxLen),
		ind:    newIndicators(capacity, SQL_NULL_DATA),
	}
}

func (c *BinColumn) Desc() BufferDesc {
	return BufferDesc{Kind: KindBinary, MaxLen: c.maxLen, Nullable: true}
}

func (c *BinColumn) Capacity() int { return len(c.ind) }

func (c *BinColumn) MaxLen() int { return c.maxLen }

func (c *BinColumn) cell(i int) []byte {
	return c.values[i*c.maxLen : (i+1)*c.maxLen]
}

// ValueAt returns at most MaxLen bytes of slot i and whether it is non-null.
func (c *BinColumn) ValueAt(i int) ([]byte, bool) {
	checkSlot(i, len(c.ind))
	ind := IndicatorFromSQLLEN(c.ind[i])
	switch ind.Kind {
	case IndicatorNull:
		return nil, false
	case IndicatorNoTotal:
		return c.cell(i), true
	}
	return c.cell(i)[:min(ind.Len, c.maxLen)], true
}

func (c *BinColumn) IndicatorAt(i int) Indicator {
	checkSlot(i, len(c.ind))
	return IndicatorFromSQLLEN(c.ind[i])
}

func (c *BinColumn) IsNull(i int) bool {
	checkSlot(i, len(c.ind))
	return c.ind[i] == SQL_NULL_DATA
}

// Set copies v into slot i. Values longer than MaxLen are rejected.
func (c *BinColumn) Set(i int, v []byte) error {
	checkSlot(i, len(c.ind))
	if err := c.writable(); err != nil {
		return err
	}
	if len(v) > c.maxLen {
		return &TruncationError{Index: -1, Row: i, Indicator: Length(len(v)), MaxLen: c.maxLen, Input: true}
	}
	c.put(i, v)
	return nil
}

func (c *BinColumn) put(i int, v []byte) {
	c.ind[i] = SQLLEN(copy(c.cell(i), v))
}

func (c *BinColumn) SetNull(i int) error {
	checkSlot(i, len(c.ind))
	if err := c.writable(); err != nil {
		return err
	}
	c.ind[i] = SQL_NULL_DATA
	return nil
}

// Append writes v into the next free slot, growing the cell width if needed.
func (c *BinColumn) Append(v []byte) (int, error) {
	if c.appended >= len(c.ind) {
		return -1, &BindingError{Index: -1, Reason: "column is full"}
	}
	if len(v) > c.maxLen {
		if err := c.mutable(); err != nil {
			return -1, err
		}
		if err := c.resize(max(len(v), int(float64(len(v))*growthFactor))); err != nil {
			return -1, err
		}
	} else if err := c.writable(); err != nil {
		return -1, err
	}
	i := c.appended
	c.put(i, v)
	c.appended++
	return i, nil
}

func (c *BinColumn) Value(i int) any {
	v, ok := c.ValueAt(i)
	if !ok {
		return nil
	}
	return v
}

// FillNull marks every slot NULL and rewinds Append to slot 0.
func (c *BinColumn) FillNull() {
	for i := range c.ind {
		c.ind[i] = SQL_NULL_DATA
	}
	c.appended = 0
}

// ResizeMaxLen changes the cell width to n bytes, keeping what fits.
func (c *BinColumn) ResizeMaxLen(n int) error {
	if err := c.mutable(); err != nil {
		return err
	}
	return c.resize(n)
}

func (c *BinColumn) resize(n int) error {
	if n < 0 {
		return &BindingError{Index: -1, Reason: "negative max length"}
	}
	values, err := makeRegion[byte](len(c.ind)*n, n)
	if err != nil {
		return err
	}
	keep := min(c.maxLen, n)
	for i := range c.ind {
		copy(values[i*n:i*n+keep], c.values[i*c.maxLen:i*c.maxLen+keep])
	}
	Log.Debug("resized binary column", "from", c.maxLen, "to", n, "capacity", len(c.ind))
	c.values = values
	c.maxLen = n
	return nil
}

func (c *BinColumn) truncatedAt(i int) bool {
	return IndicatorFromSQLLEN(c.ind[i]).IsTruncated(c.maxLen)
}

func (c *BinColumn) binding() bindInfo {
	b := bindInfo{
		cType:      SQL_C_BINARY,
		sqlType:    SQL_VARBINARY,
		columnSize: SQLULEN(max(c.maxLen, 1)),
		elemLen:    SQLLEN(c.maxLen),
		ind:        &c.ind[0],
	}
	if len(c.values) > 0 {
		b.ptr = uintptr(unsafe.Pointer(&c.values[0]))
	} else {
		b.ptr = uintptr(unsafe.Pointer(&c.zero[0]))
	}
	return b
}

func (c *BinColumn) lender() *lendState { return &c.lendState }

func (c *BinColumn) empty(capacity int) (ColumnBuffer, error) {
	if err := checkAllocation(c.Desc(), capacity, 0); err != nil {
		return nil, err
	}
	return newBinary(c.maxLen, capacity), nil
}
