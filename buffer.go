package odbc

import (
	"fmt"
	"math"
	"unsafe"

	"golang.org/x/text/encoding"
)

// BufferKind is the closed set of element layouts a column or parameter buffer can have.
type BufferKind int

const (
	KindI8 BufferKind = iota
	KindI16
	KindI32
	KindI64
	KindU8
	KindF32
	KindF64
	KindBit
	KindDate
	KindTime
	KindTimestamp
	KindGUID
	KindText
	KindWText
	KindBinary
)

var kindNames = [...]string{
	KindI8:        "I8",
	KindI16:       "I16",
	KindI32:       "I32",
	KindI64:       "I64",
	KindU8:        "U8",
	KindF32:       "F32",
	KindF64:       "F64",
	KindBit:       "Bit",
	KindDate:      "Date",
	KindTime:      "Time",
	KindTimestamp: "Timestamp",
	KindGUID:      "GUID",
	KindText:      "Text",
	KindWText:     "WText",
	KindBinary:    "Binary",
}

func (k BufferKind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("BufferKind(%d)", int(k))
}

// Variable reports whether elements of this kind carry their own length.
func (k BufferKind) Variable() bool {
	return k == KindText || k == KindWText || k == KindBinary
}

// BufferDesc describes the shape of one column or parameter buffer.
// MaxLen is in characters for text kinds, in bytes for binary, and ignored for fixed kinds.
type BufferDesc struct {
	Kind     BufferKind
	MaxLen   int
	Nullable bool
}

// ColumnBuffer is implemented by *FixedColumn, *TextColumn and *BinColumn only.
// Callers type-switch on the concrete column to reach typed values.
type ColumnBuffer interface {
	Desc() BufferDesc
	Capacity() int
	IndicatorAt(i int) Indicator
	IsNull(i int) bool
	SetNull(i int) error
	// Value returns slot i as a Go value, nil when NULL.
	Value(i int) any
	FillNull()

	binding() bindInfo
	lender() *lendState
	truncatedAt(i int) bool
	resize(maxLen int) error
	empty(capacity int) (ColumnBuffer, error)
}

// bindInfo carries what SQLBindCol and SQLBindParameter need for a buffer.
type bindInfo struct {
	cType      SQLSMALLINT
	sqlType    SQLSMALLINT
	columnSize SQLULEN
	digits     SQLSMALLINT
	ptr        uintptr
	elemLen    SQLLEN
	ind        *SQLLEN
}

// lendState records which statement a buffer is currently bound to.
type lendState struct {
	stmt *Statement
}

func (l *lendState) lend(s *Statement) error {
	if l.stmt != nil && l.stmt != s {
		return ErrBufferLent
	}
	l.stmt = s
	return nil
}

func (l *lendState) release() { l.stmt = nil }

func (l *lendState) bound() bool { return l.stmt != nil }

// mutable is nil when the buffer may be reallocated.
func (l *lendState) mutable() error {
	if l.stmt == nil {
		return nil
	}
	if l.stmt.inFlight() {
		return ErrCallInFlight
	}
	return ErrBufferLent
}

// writable is nil when slots may be written in place.
func (l *lendState) writable() error {
	if l.stmt != nil && l.stmt.inFlight() {
		return ErrCallInFlight
	}
	return nil
}

// BufferOption configures buffer allocation.
type BufferOption func(*bufferConfig)

type bufferConfig struct {
	memoryLimit int
	encoding    encoding.Encoding
}

// WithMemoryLimit rejects any single buffer whose value and indicator regions
// together exceed limit bytes. Zero disables the check.
func WithMemoryLimit(limit int) BufferOption {
	return func(c *bufferConfig) {
		c.memoryLimit = limit
	}
}

// WithTextEncoding sets the charset narrow text columns are presented in.
// The default treats narrow text as UTF-8.
func WithTextEncoding(enc encoding.Encoding) BufferOption {
	return func(c *bufferConfig) {
		c.encoding = enc
	}
}

// elementSize returns the bytes one slot of desc occupies in the value region.
func elementSize(desc BufferDesc) int {
	switch desc.Kind {
	case KindI8, KindU8, KindBit:
		return 1
	case KindI16:
		return 2
	case KindI32, KindF32:
		return 4
	case KindI64, KindF64:
		return 8
	case KindDate:
		return int(unsafe.Sizeof(SQL_DATE_STRUCT{}))
	case KindTime:
		return int(unsafe.Sizeof(SQL_TIME_STRUCT{}))
	case KindTimestamp:
		return int(unsafe.Sizeof(SQL_TIMESTAMP_STRUCT{}))
	case KindGUID:
		return int(unsafe.Sizeof(SQL_GUID_STRUCT{}))
	case KindText:
		return desc.MaxLen + 1
	case KindWText:
		return 2 * (desc.MaxLen + 1)
	case KindBinary:
		return desc.MaxLen
	}
	return 0
}

// NewColumnBuffer allocates a buffer of capacity slots for desc.
// It fails with *AllocationError when the region size overflows, exceeds the
// configured limit, or cannot be allocated; a smaller capacity may succeed.
func NewColumnBuffer(desc BufferDesc, capacity int, opts ...BufferOption) (ColumnBuffer, error) {
	cfg := bufferConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if capacity <= 0 {
		return nil, &BindingError{Index: -1, Reason: fmt.Sprintf("capacity must be positive, got %d", capacity)}
	}
	if desc.Kind.Variable() && desc.MaxLen < 0 {
		return nil, &BindingError{Index: -1, Reason: fmt.Sprintf("negative max length %d", desc.MaxLen)}
	}
	if err := checkAllocation(desc, capacity, cfg.memoryLimit); err != nil {
		return nil, err
	}
	return allocate(desc, capacity, cfg)
}

func checkAllocation(desc BufferDesc, capacity, limit int) error {
	elem := elementSize(desc)
	if elem == 0 && !desc.Kind.Variable() {
		return &BindingError{Index: -1, Reason: "unknown buffer kind " + desc.Kind.String()}
	}
	perRow := elem
	if desc.Nullable || desc.Kind.Variable() {
		perRow += int(unsafe.Sizeof(SQLLEN(0)))
	}
	if desc.MaxLen > math.MaxInt32 || (perRow > 0 && capacity > math.MaxInt/perRow) {
		return &AllocationError{Index: -1, Capacity: capacity, ElementSize: elem, Reason: "size overflows"}
	}
	if limit > 0 && capacity*perRow > limit {
		return &AllocationError{Index: -1, Capacity: capacity, ElementSize: elem,
			Reason: fmt.Sprintf("%d bytes exceeds memory limit of %d", capacity*perRow, limit)}
	}
	return nil
}

func allocate(desc BufferDesc, capacity int, cfg bufferConfig) (buf ColumnBuffer, err error) {
	defer func() {
		if r := recover(); r != nil {
			buf = nil
			err = &AllocationError{Index: -1, Capacity: capacity, ElementSize: elementSize(desc), Reason: fmt.Sprint(r)}
		}
	}()

	switch desc.Kind {
	case KindI8:
		return newFixed[int8](desc, capacity), nil
	case KindI16:
		return newFixed[int16](desc, capacity), nil
	case KindI32:
		return newFixed[int32](desc, capacity), nil
	case KindI64:
		return newFixed[int64](desc, capacity), nil
	case KindU8:
		return newFixed[uint8](desc, capacity), nil
	case KindF32:
		return newFixed[float32](desc, capacity), nil
	case KindF64:
		return newFixed[float64](desc, capacity), nil
	case KindBit:
		return newFixed[Bit](desc, capacity), nil
	case KindDate:
		return newFixed[SQL_DATE_STRUCT](desc, capacity), nil
	case KindTime:
		return newFixed[SQL_TIME_STRUCT](desc, capacity), nil
	case KindTimestamp:
		return newFixed[SQL_TIMESTAMP_STRUCT](desc, capacity), nil
	case KindGUID:
		return newFixed[SQL_GUID_STRUCT](desc, capacity), nil
	case KindText:
		return newText[byte](desc.MaxLen, capacity, cfg.encoding), nil
	case KindWText:
		return newText[uint16](desc.MaxLen, capacity, nil), nil
	case KindBinary:
		return newBinary(desc.MaxLen, capacity), nil
	}
	return nil, &BindingError{Index: -1, Reason: "unknown buffer kind " + desc.Kind.String()}
}

// withIndex attaches a buffer position to allocation and binding errors.
func withIndex(err error, index int) error {
	switch e := err.(type) {
	case *AllocationError:
		e.Index = index
	case *BindingError:
		e.Index = index
	}
	return err
}

func newIndicators(capacity int, fill SQLLEN) []SQLLEN {
	ind := make([]SQLLEN, capacity)
	for i := range ind {
		ind[i] = fill
	}
	return ind
}

func checkSlot(i, capacity int) {
	if i < 0 || i >= capacity {
		panic(fmt.Sprintf("odbc: slot %d out of range [0, %d)", i, capacity))
	}
}

// makeRegion allocates n elements, reporting a refused allocation instead of panicking.
func makeRegion[T any](n, elem int) (s []T, err error) {
	defer func() {
		if r := recover(); r != nil {
			s = nil
			err = &AllocationError{Index: -1, Capacity: n, ElementSize: elem, Reason: fmt.Sprint(r)}
		}
	}()
	return make([]T, n), nil
}
