package odbc

import (
	"fmt"

	"github.com/juju/errgo"
)

// Cursor is a statement positioned on a result set, before any buffer is bound.
type Cursor struct {
	stmt    *Statement
	owned   bool
	numCols int
	cols    []ColumnDescription
	gen     uint64
	// rowWise is set once NextRow reduced the row array size to one.
	rowWise bool
}

// newCursor wraps s if its last execution produced a result set. Column
// bindings left over from an earlier result set are revoked first.
func newCursor(s *Statement) (*Cursor, error) {
	gen := s.nextResult()
	if err := s.claimColumns(nil); err != nil {
		return nil, mask(err)
	}
	n, err := s.NumResultCols()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	return &Cursor{stmt: s, numCols: n, gen: gen}, nil
}

// stale reports whether the statement has been executed again since c was created.
func (c *Cursor) stale() bool {
	return !c.stmt.currentResult(c.gen)
}

// Statement returns the statement the cursor reads from.
func (c *Cursor) Statement() *Statement { return c.stmt }

func (c *Cursor) NumResultCols() int { return c.numCols }

// Columns describes every column of the result set. The result is cached.
func (c *Cursor) Columns() ([]ColumnDescription, error) {
	if c.cols != nil {
		return c.cols, nil
	}
	cols := make([]ColumnDescription, c.numCols)
	for i := range cols {
		d, err := c.stmt.DescribeCol(i + 1)
		if err != nil {
			return nil, err
		}
		cols[i] = d
	}
	c.cols = cols
	return cols, nil
}

// BufferDescs derives a buffer layout for every column. Columns without a
// usable size get maxLen.
func (c *Cursor) BufferDescs(maxLen int) ([]BufferDesc, error) {
	cols, err := c.Columns()
	if err != nil {
		return nil, err
	}
	descs := make([]BufferDesc, len(cols))
	for i, col := range cols {
		d, ok := BufferDescFromColumn(col)
		if !ok {
			d.MaxLen = maxLen
		}
		descs[i] = d
	}
	return descs, nil
}

// MoreResults moves to the next result set. It returns false once there is none.
func (c *Cursor) MoreResults() (bool, error) {
	if c.stale() {
		return false, ErrHandleClosed
	}
	more, err := c.stmt.MoreResults()
	if err != nil || !more {
		return false, err
	}
	n, err := c.stmt.NumResultCols()
	if err != nil {
		return false, err
	}
	c.numCols, c.cols = n, nil
	return true, nil
}

// Close discards the result set. A cursor obtained from Connection.Execute
// also frees its statement. Once the statement was executed again only the
// ownership part applies.
func (c *Cursor) Close() error {
	var err error
	if !c.stale() {
		err = c.stmt.CloseCursor()
	}
	if c.owned {
		if cerr := c.stmt.Close(); err == nil {
			err = cerr
		}
	}
	if err == ErrHandleClosed {
		return nil
	}
	return err
}

// TruncationPolicy decides whether Fetch scans indicators for truncated values.
type TruncationPolicy int

const (
	// TruncationIgnore leaves truncation to be found through IndicatorAt.
	TruncationIgnore TruncationPolicy = iota
	// TruncationReport makes Fetch return a *TruncationError for the first truncated cell.
	TruncationReport
)

// CursorState is the binding state of a BlockCursor.
type CursorState int

const (
	CursorUnbound CursorState = iota
	CursorBound
	CursorFetching
	CursorExhausted
	CursorFailed
)

func (s CursorState) String() string {
	switch s {
	case CursorUnbound:
		return "Unbound"
	case CursorBound:
		return "Bound"
	case CursorFetching:
		return "Fetching"
	case CursorExhausted:
		return "Exhausted"
	case CursorFailed:
		return "Failed"
	}
	return fmt.Sprintf("CursorState(%d)", int(s))
}

// CursorOption configures a BlockCursor
type CursorOption func(*BlockCursor)

// WithTruncationPolicy sets what Fetch does about truncated values. The default is TruncationIgnore.
func WithTruncationPolicy(p TruncationPolicy) CursorOption {
	return func(b *BlockCursor) {
		b.policy = p
	}
}

// BlockCursor is a Cursor with a RowSet bound to it. The RowSet is lent to the
// statement until Unbind returns it; while bound its buffers cannot be resized.
type BlockCursor struct {
	cursor *Cursor
	rs     *RowSet
	state  CursorState
	policy TruncationPolicy
	// revoked is set once another row set or execution took over the statement.
	revoked bool
}

// BindBuffer binds every column of rs to the result set, one SQLBindCol per
// column. A row set still bound to the statement through another BlockCursor
// is unbound first, and that cursor fails with ErrHandleClosed from then on.
func (c *Cursor) BindBuffer(rs *RowSet, opts ...CursorOption) (*BlockCursor, error) {
	b := &BlockCursor{cursor: c, rs: rs}
	for _, opt := range opts {
		opt(b)
	}
	if err := b.bind(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *BlockCursor) bind() error {
	rs, s := b.rs, b.cursor.stmt
	if rs == nil || rs.NumCols() == 0 {
		return &BindingError{Index: -1, Reason: "row set has no columns"}
	}
	for i, col := range rs.cols {
		if col.Capacity() != rs.capacity {
			return &BindingError{Index: i, Reason: fmt.Sprintf("capacity %d does not match array size %d", col.Capacity(), rs.capacity)}
		}
	}
	if b.cursor.stale() {
		return ErrHandleClosed
	}
	if err := s.claimColumns(b); err != nil {
		s.dropColumns(b)
		return mask(err)
	}
	for i, col := range rs.cols {
		if err := col.lender().lend(s); err != nil {
			s.dropColumns(b)
			b.release(i)
			return errgo.Mask(err, errgo.Any)
		}
	}

	err := s.setAttr(SQL_ATTR_ROW_BIND_TYPE, SQL_BIND_BY_COLUMN)
	if err == nil {
		err = s.SetRowArraySize(rs.capacity)
	}
	if err == nil {
		err = s.SetRowsFetchedPtr(&rs.numRows)
	}
	for i := 0; err == nil && i < len(rs.cols); i++ {
		err = s.bindCol(i+1, rs.cols[i].binding())
	}
	if err != nil {
		s.UnbindColumns()
		b.release(len(rs.cols))
		s.dropColumns(b)
		return mask(err)
	}

	rs.numRows = 0
	b.cursor.rowWise = false
	b.state = CursorBound
	Log.Debug("bound row set", "columns", rs.NumCols(), "array_size", rs.capacity)
	return nil
}

func (b *BlockCursor) release(n int) {
	for _, col := range b.rs.cols[:n] {
		col.lender().release()
	}
}

// revoke is called by the statement once the driver no longer writes into b.rs.
func (b *BlockCursor) revoke() {
	if b.state != CursorUnbound {
		b.release(len(b.rs.cols))
	}
	b.state = CursorUnbound
	b.revoked = true
}

// State returns where the cursor is in its lifecycle.
func (b *BlockCursor) State() CursorState { return b.state }

// RowSet returns the bound buffers. Their contents are valid until the next fetch.
func (b *BlockCursor) RowSet() *RowSet { return b.rs }

// Cursor returns the unbound view of the statement.
func (b *BlockCursor) Cursor() *Cursor { return b.cursor }

// Fetch fills the row set with the next block. It returns nil once the result
// set is exhausted. With TruncationReport a truncated cell yields the row set
// together with a *TruncationError; the cursor stays usable.
func (b *BlockCursor) Fetch() (*RowSet, error) {
	return b.FetchWithTruncationCheck(b.policy == TruncationReport)
}

// FetchWithTruncationCheck is Fetch with the truncation scan chosen per call.
func (b *BlockCursor) FetchWithTruncationCheck(strict bool) (*RowSet, error) {
	if err := b.ready(); err != nil || b.state == CursorExhausted {
		return nil, err
	}
	prev := b.state
	b.state = CursorFetching
	outcome, err := b.cursor.stmt.run("SQLFetchScroll", fetchNext)
	return b.finish(prev, outcome, err, strict)
}

func fetchNext(h SQLHSTMT) SQLRETURN {
	return FetchScroll(h, SQL_FETCH_NEXT, 0)
}

func (b *BlockCursor) ready() error {
	if b.revoked {
		return ErrHandleClosed
	}
	switch b.state {
	case CursorFailed:
		return ErrCursorFailed
	case CursorUnbound:
		return errgo.New("odbc: cursor has no bound row set")
	}
	return nil
}

// finish applies the result of one fetch. A call rejected because another
// function is pending on the statement leaves the cursor in prev.
func (b *BlockCursor) finish(prev CursorState, outcome Outcome, err error, strict bool) (*RowSet, error) {
	if errgo.Cause(err) == ErrCallInFlight {
		b.state = prev
		return nil, err
	}
	if err != nil {
		b.state = CursorFailed
		return nil, mask(err)
	}
	if outcome == NoData {
		b.rs.numRows = 0
		b.state = CursorExhausted
		return nil, nil
	}
	b.state = CursorBound
	if strict {
		if t := FindTruncation(b.rs); t != nil {
			return b.rs, t
		}
	}
	return b.rs, nil
}

// Unbind releases the column bindings and hands the row set back. It may be
// called any number of times.
func (b *BlockCursor) Unbind() (*Cursor, *RowSet, error) {
	if b.state == CursorUnbound || b.revoked {
		return b.cursor, b.rs, nil
	}
	s := b.cursor.stmt
	err := s.UnbindColumns()
	if err == nil {
		err = s.SetRowsFetchedPtr(nil)
	}
	b.release(len(b.rs.cols))
	b.state = CursorUnbound
	s.dropColumns(b)
	if err == ErrHandleClosed {
		err = nil
	}
	return b.cursor, b.rs, err
}

// Rebind binds rs in place of the current row set, keeping the cursor position.
func (b *BlockCursor) Rebind(rs *RowSet) error {
	if b.revoked {
		return ErrHandleClosed
	}
	if b.state == CursorFailed {
		return ErrCursorFailed
	}
	exhausted := b.state == CursorExhausted
	if _, _, err := b.Unbind(); err != nil {
		return err
	}
	b.rs = rs
	if err := b.bind(); err != nil {
		return err
	}
	if exhausted {
		b.state = CursorExhausted
	}
	return nil
}

// Close unbinds and closes the cursor. A revoked cursor leaves the statement
// to whoever took it over.
func (b *BlockCursor) Close() error {
	if b.revoked {
		return nil
	}
	c, _, err := b.Unbind()
	if cerr := c.Close(); err == nil {
		err = cerr
	}
	return err
}
