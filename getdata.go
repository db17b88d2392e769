package odbc

import (
	"io"

	"github.com/juju/errgo"
)

// getDataChunk is the most one SQLGetData call transfers.
const getDataChunk = 4096

// NextRow fetches a single row whose columns are then read with GetText and
// GetBinary. It returns false once the result set is exhausted. This is the
// path for long values without a usable size; it fails while a row set is
// bound to the statement.
func (c *Cursor) NextRow() (bool, error) {
	if c.stale() {
		return false, ErrHandleClosed
	}
	if c.stmt.boundRows() {
		return false, &BindingError{Index: -1, Reason: "columns are bound to a row set"}
	}
	if !c.rowWise {
		if err := c.stmt.SetRowArraySize(1); err != nil {
			return false, mask(err)
		}
		c.rowWise = true
	}
	outcome, err := c.stmt.run("SQLFetchScroll", fetchNext)
	if err != nil {
		return false, mask(err)
	}
	return outcome != NoData, nil
}

// GetText streams the narrow text of the 1-based column col of the current
// row into w. ok is false for NULL. Each column can be read once per row.
func (c *Cursor) GetText(col int, w io.Writer) (ok bool, err error) {
	return c.getData(col, SQL_C_CHAR, 1, w)
}

// GetBinary streams the bytes of column col of the current row into w.
func (c *Cursor) GetBinary(col int, w io.Writer) (ok bool, err error) {
	return c.getData(col, SQL_C_BINARY, 0, w)
}

// getData calls SQLGetData until the value is drained. term is the width of
// the terminator the driver appends to every piece.
func (c *Cursor) getData(col int, cType SQLSMALLINT, term int, w io.Writer) (bool, error) {
	if c.stale() {
		return false, ErrHandleClosed
	}
	if col < 1 || col > c.numCols {
		return false, &BindingError{Index: col, Reason: "no such column"}
	}
	buf := make([]byte, getDataChunk+term)
	room := getDataChunk
	for pieces := 0; ; pieces++ {
		outcome, ind, err := c.stmt.GetData(col, cType, buf)
		if err != nil {
			return false, mask(err)
		}
		if outcome == NoData {
			if pieces == 0 {
				return false, errgo.Newf("odbc: column %d of the current row was already read", col)
			}
			return true, nil
		}
		if ind.IsNull() {
			return false, nil
		}
		n := room
		if ind.Kind == IndicatorLength {
			n = min(ind.Len, room)
		}
		if _, err := w.Write(buf[:n]); err != nil {
			return true, err
		}
		if outcome == Success {
			return true, nil
		}
	}
}
