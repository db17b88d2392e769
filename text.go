package odbc

import (
	"encoding/binary"
	"unsafe"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
)

// growthFactor is how much wider than the triggering value a buffer grows on Append.
const growthFactor = 1.2

var utf16LE = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// TextColumn holds variable-length text in fixed-stride cells of MaxLen+1
// elements; the extra element carries the terminator the driver writes.
// Indicators hold byte lengths as reported by the driver.
type TextColumn[C byte | uint16] struct {
	maxLen   int
	values   []C
	ind      []SQLLEN
	enc      encoding.Encoding
	appended int
	lendState
}

// CharColumn stores narrow (SQL_C_CHAR) text.
type CharColumn = TextColumn[byte]

// WCharColumn stores UTF-16 (SQL_C_WCHAR) text.
type WCharColumn = TextColumn[uint16]

func newText[C byte | uint16](maxLen, capacity int, enc encoding.Encoding) *TextColumn[C] {
	return &TextColumn[C]{
		maxLen: maxLen,
		values: make([]C, capacity*(maxLen+1)),
		ind:    newIndicators(capacity, SQL_NULL_DATA),
		enc:    enc,
	}
}

func (c *TextColumn[C]) elemSize() int {
	var zero C
	return int(unsafe.Sizeof(zero))
}

func (c *TextColumn[C]) wide() bool { return c.elemSize() == 2 }

func (c *TextColumn[C]) Desc() BufferDesc {
	kind := KindText
	if c.wide() {
		kind = KindWText
	}
	return BufferDesc{Kind: kind, MaxLen: c.maxLen, Nullable: true}
}

func (c *TextColumn[C]) Capacity() int { return len(c.ind) }

// MaxLen is the longest value, in characters, a cell can hold.
func (c *TextColumn[C]) MaxLen() int { return c.maxLen }

func (c *TextColumn[C]) cell(i int) []C {
	stride := c.maxLen + 1
	return c.values[i*stride : (i+1)*stride]
}

// ValueAt returns the stored elements of slot i and whether it is non-null.
// A truncated value yields its first MaxLen elements; NoTotal yields the whole cell.
func (c *TextColumn[C]) ValueAt(i int) ([]C, bool) {
	checkSlot(i, len(c.ind))
	ind := IndicatorFromSQLLEN(c.ind[i])
	switch ind.Kind {
	case IndicatorNull:
		return nil, false
	case IndicatorNoTotal:
		return c.cell(i)[:c.maxLen], true
	}
	n := min(ind.Len/c.elemSize(), c.maxLen)
	return c.cell(i)[:n], true
}

func (c *TextColumn[C]) IndicatorAt(i int) Indicator {
	checkSlot(i, len(c.ind))
	return IndicatorFromSQLLEN(c.ind[i])
}

func (c *TextColumn[C]) IsNull(i int) bool {
	checkSlot(i, len(c.ind))
	return c.ind[i] == SQL_NULL_DATA
}

// Set copies v into slot i. A value longer than MaxLen is rejected with a
// *TruncationError; input is never cut short.
func (c *TextColumn[C]) Set(i int, v []C) error {
	checkSlot(i, len(c.ind))
	if err := c.writable(); err != nil {
		return err
	}
	if len(v) > c.maxLen {
		return &TruncationError{Index: -1, Row: i, Indicator: Length(len(v) * c.elemSize()), MaxLen: c.maxLen * c.elemSize(), Input: true}
	}
	c.put(i, v)
	return nil
}

// SetString encodes s and stores it in slot i.
func (c *TextColumn[C]) SetString(i int, s string) error {
	v, err := encodeText[C](s, c.enc)
	if err != nil {
		return mask(err)
	}
	return c.Set(i, v)
}

func (c *TextColumn[C]) put(i int, v []C) {
	cell := c.cell(i)
	n := copy(cell, v)
	cell[n] = 0
	c.ind[i] = SQLLEN(n * c.elemSize())
}

func (c *TextColumn[C]) SetNull(i int) error {
	checkSlot(i, len(c.ind))
	if err := c.writable(); err != nil {
		return err
	}
	c.ind[i] = SQL_NULL_DATA
	return nil
}

// Append writes v into the next free slot and returns its index. When v is
// wider than MaxLen the column grows first, keeping every earlier value.
func (c *TextColumn[C]) Append(v []C) (int, error) {
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

// AppendString encodes s and appends it.
func (c *TextColumn[C]) AppendString(s string) (int, error) {
	v, err := encodeText[C](s, c.enc)
	if err != nil {
		return -1, mask(err)
	}
	return c.Append(v)
}

// StringAt decodes slot i for presentation.
func (c *TextColumn[C]) StringAt(i int) (string, bool) {
	v, ok := c.ValueAt(i)
	if !ok {
		return "", false
	}
	// decoders substitute U+FFFD for invalid input
	s, _ := decodeText(v, c.enc)
	return s, true
}

func (c *TextColumn[C]) Value(i int) any {
	s, ok := c.StringAt(i)
	if !ok {
		return nil
	}
	return s
}

// FillNull marks every slot NULL and rewinds Append to slot 0.
func (c *TextColumn[C]) FillNull() {
	for i := range c.ind {
		c.ind[i] = SQL_NULL_DATA
	}
	c.appended = 0
}

// ResizeMaxLen changes the cell width to n characters, keeping the first
// min(old, n) characters of every slot. It fails while the column is bound.
func (c *TextColumn[C]) ResizeMaxLen(n int) error {
	if err := c.mutable(); err != nil {
		return err
	}
	return c.resize(n)
}

func (c *TextColumn[C]) resize(n int) error {
	if n < 0 {
		return &BindingError{Index: -1, Reason: "negative max length"}
	}
	stride := n + 1
	values, err := makeRegion[C](len(c.ind)*stride, stride*c.elemSize())
	if err != nil {
		return err
	}
	keep := min(c.maxLen, n)
	old := c.maxLen + 1
	for i := range c.ind {
		copy(values[i*stride:i*stride+keep], c.values[i*old:i*old+keep])
	}
	Log.Debug("resized text column", "from", c.maxLen, "to", n, "capacity", len(c.ind))
	c.values = values
	c.maxLen = n
	return nil
}

func (c *TextColumn[C]) truncatedAt(i int) bool {
	return IndicatorFromSQLLEN(c.ind[i]).IsTruncated(c.maxLen * c.elemSize())
}

func (c *TextColumn[C]) binding() bindInfo {
	b := bindInfo{
		ptr:        uintptr(unsafe.Pointer(&c.values[0])),
		elemLen:    SQLLEN((c.maxLen + 1) * c.elemSize()),
		ind:        &c.ind[0],
		columnSize: SQLULEN(max(c.maxLen, 1)),
		cType:      SQL_C_CHAR,
		sqlType:    SQL_VARCHAR,
	}
	if c.wide() {
		b.cType, b.sqlType = SQL_C_WCHAR, SQL_WVARCHAR
	}
	return b
}

func (c *TextColumn[C]) lender() *lendState { return &c.lendState }

func (c *TextColumn[C]) empty(capacity int) (ColumnBuffer, error) {
	if err := checkAllocation(c.Desc(), capacity, 0); err != nil {
		return nil, err
	}
	return newText[C](c.maxLen, capacity, c.enc), nil
}

func encodeText[C byte | uint16](s string, enc encoding.Encoding) ([]C, error) {
	var zero C
	if _, wide := any(zero).(uint16); wide {
		b, err := utf16LE.NewEncoder().Bytes([]byte(s))
		if err != nil {
			return nil, err
		}
		units := make([]uint16, len(b)/2)
		for i := range units {
			units[i] = binary.LittleEndian.Uint16(b[2*i:])
		}
		return any(units).([]C), nil
	}
	b := []byte(s)
	if enc != nil {
		var err error
		if b, err = enc.NewEncoder().Bytes(b); err != nil {
			return nil, err
		}
	}
	return any(b).([]C), nil
}

func decodeText[C byte | uint16](v []C, enc encoding.Encoding) (string, error) {
	switch units := any(v).(type) {
	case []uint16:
		b := make([]byte, 2*len(units))
		for i, u := range units {
			binary.LittleEndian.PutUint16(b[2*i:], u)
		}
		out, err := utf16LE.NewDecoder().Bytes(b)
		return string(out), err
	case []byte:
		if enc == nil {
			return string(units), nil
		}
		out, err := enc.NewDecoder().Bytes(units)
		return string(out), err
	}
	return "", nil
}
