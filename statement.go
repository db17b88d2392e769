package odbc

import (
	"strconv"
	"time"
)

// asyncPollInterval is how long blocking wrappers sleep between re-entries
// when the statement has asynchronous execution enabled.
const asyncPollInterval = time.Millisecond

// Statement wraps one statement handle. All fields below are guarded by the
// connection mutex.
type Statement struct {
	conn *Connection
	h    SQLHSTMT

	closed bool
	// pending names the native function that returned SQL_STILL_EXECUTING and
	// must be re-entered before anything else may run on the handle.
	pending string
	async   bool
	query   []byte

	// rows and params hold the buffers the driver currently writes through.
	// Binding new ones revokes the previous holder.
	rows    *BlockCursor
	params  *BulkInserter
	results uint64
}

// claimColumns makes b the holder of the column bindings. A previous holder
// is unbound on the driver side and loses its buffers.
func (s *Statement) claimColumns(b *BlockCursor) error {
	s.conn.mu.Lock()
	prev := s.rows
	s.rows = b
	s.conn.mu.Unlock()
	if prev == nil || prev == b {
		return nil
	}
	err := s.UnbindColumns()
	if err == nil {
		err = s.SetRowsFetchedPtr(nil)
	}
	prev.revoke()
	Log.Debug("revoked column bindings of a previous block cursor")
	return err
}

// dropColumns forgets b if it still holds the column bindings.
func (s *Statement) boundRows() bool {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	return s.rows != nil
}

func (s *Statement) dropColumns(b *BlockCursor) {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	if s.rows == b {
		s.rows = nil
	}
}

// claimParams makes ins the holder of the parameter bindings. Parameters are
// reset before the previous holder is revoked.
func (s *Statement) claimParams(ins *BulkInserter) error {
	err := s.ResetParameters()
	s.conn.mu.Lock()
	prev := s.params
	s.params = ins
	s.conn.mu.Unlock()
	if prev != nil && prev != ins {
		prev.revoke()
		Log.Debug("revoked parameter bindings of a previous bulk inserter")
	}
	return err
}

func (s *Statement) dropParams(ins *BulkInserter) {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	if s.params == ins {
		s.params = nil
	}
}

// nextResult marks the start of a new result set and returns its generation.
// Cursors over earlier results compare against it.
func (s *Statement) nextResult() uint64 {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	s.results++
	return s.results
}

func (s *Statement) currentResult(gen uint64) bool {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	return s.results == gen
}

func (s *Statement) diag() diagSource {
	return diagSource{handleType: SQL_HANDLE_STMT, handle: SQLHANDLE(s.h), mu: &s.conn.env.diagMu}
}

// Handle returns the raw statement handle.
func (s *Statement) Handle() SQLHSTMT { return s.h }

// invoke runs fn once under the connection lock and interprets its result.
func (s *Statement) invoke(function string, fn func(SQLHSTMT) SQLRETURN) (Outcome, error) {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	if s.closed {
		return Failure, ErrHandleClosed
	}
	if s.pending != "" && s.pending != function {
		return Failure, ErrCallInFlight
	}
	outcome, err := check(s.diag(), function, fn(s.h))
	if outcome == StillExecuting {
		s.pending = function
	} else {
		s.pending = ""
	}
	return outcome, err
}

// run is invoke for blocking callers: on an asynchronous statement it keeps
// re-entering fn until the driver finishes.
func (s *Statement) run(function string, fn func(SQLHSTMT) SQLRETURN) (Outcome, error) {
	for {
		outcome, err := s.invoke(function, fn)
		if outcome != StillExecuting || err != nil {
			return outcome, err
		}
		time.Sleep(asyncPollInterval)
	}
}

// inFlight reports whether an asynchronous call awaits re-entry.
func (s *Statement) inFlight() bool {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	return s.pending != ""
}

func nulTerminated(query string) []byte {
	return append([]byte(query), 0)
}

// ExecDirect executes query without preparing it.
func (s *Statement) ExecDirect(query string) (Outcome, error) {
	if s.inFlight() {
		return Failure, ErrCallInFlight
	}
	s.query = nulTerminated(query)
	return s.run("SQLExecDirect", func(h SQLHSTMT) SQLRETURN {
		return ExecDirect(h, s.query)
	})
}

// Execute runs query directly and wraps the result set, if any, in a cursor
// that shares this statement.
func (s *Statement) Execute(query string) (*Cursor, error) {
	if _, err := s.ExecDirect(query); err != nil {
		return nil, mask(err)
	}
	return newCursor(s)
}

// Prepare prepares query and returns the handle for repeated execution.
func (s *Statement) Prepare(query string) (*Prepared, error) {
	if s.inFlight() {
		return nil, ErrCallInFlight
	}
	s.query = nulTerminated(query)
	if _, err := s.run("SQLPrepare", func(h SQLHSTMT) SQLRETURN {
		return Prepare(h, s.query)
	}); err != nil {
		return nil, mask(err)
	}

	// Non-fatal: some drivers don't support NumParams, -1 means unknown
	numParams := -1
	var n SQLSMALLINT
	if outcome, _ := s.invoke("SQLNumParams", func(h SQLHSTMT) SQLRETURN {
		return NumParams(h, &n)
	}); outcome == Success || outcome == SuccessWithInfo {
		numParams = int(n)
	}
	return &Prepared{stmt: s, numParams: numParams}, nil
}

// ExecutePrepared runs the prepared statement with the currently bound parameters.
func (s *Statement) ExecutePrepared() (Outcome, error) {
	return s.run("SQLExecute", Execute)
}

// NumResultCols returns the column count of the current result set, 0 if there is none.
func (s *Statement) NumResultCols() (int, error) {
	var n SQLSMALLINT
	if _, err := s.run("SQLNumResultCols", func(h SQLHSTMT) SQLRETURN {
		return NumResultCols(h, &n)
	}); err != nil {
		return 0, mask(err)
	}
	return int(n), nil
}

// DescribeCol returns the metadata of the 1-based column col.
func (s *Statement) DescribeCol(col int) (ColumnDescription, error) {
	name := make([]byte, 256)
	var d ColumnDescription
	var nameLen SQLSMALLINT
	fn := func(h SQLHSTMT) SQLRETURN {
		var ret SQLRETURN
		nameLen, d.DataType, d.Size, d.Scale, d.Nullable, ret = DescribeCol(h, SQLUSMALLINT(col), name)
		return ret
	}
	if _, err := s.run("SQLDescribeCol", fn); err != nil {
		return ColumnDescription{}, mask(err)
	}
	if int(nameLen) >= len(name) {
		name = make([]byte, int(nameLen)+1)
		if _, err := s.run("SQLDescribeCol", fn); err != nil {
			return ColumnDescription{}, mask(err)
		}
	}
	d.Name = string(name[:min(int(nameLen), len(name)-1)])
	return d, nil
}

// GetData reads the next piece of column col of the current row into buf.
func (s *Statement) GetData(col int, cType SQLSMALLINT, buf []byte) (Outcome, Indicator, error) {
	var ind SQLLEN
	outcome, err := s.run("SQLGetData", func(h SQLHSTMT) SQLRETURN {
		return GetData(h, SQLUSMALLINT(col), cType, buf, &ind)
	})
	return outcome, IndicatorFromSQLLEN(ind), err
}

// DescribeParam returns what the driver expects for the 1-based placeholder param.
func (s *Statement) DescribeParam(param int) (ParameterDescription, error) {
	var d ParameterDescription
	if _, err := s.run("SQLDescribeParam", func(h SQLHSTMT) SQLRETURN {
		var ret SQLRETURN
		d.DataType, d.Size, d.Scale, d.Nullable, ret = DescribeParam(h, SQLUSMALLINT(param))
		return ret
	}); err != nil {
		return ParameterDescription{}, mask(err)
	}
	return d, nil
}

// RowCount returns the rows affected by the last execute. ok is false when the
// driver cannot tell.
func (s *Statement) RowCount() (n int64, ok bool, err error) {
	var count SQLLEN
	if _, err := s.run("SQLRowCount", func(h SQLHSTMT) SQLRETURN {
		return RowCount(h, &count)
	}); err != nil {
		return 0, false, mask(err)
	}
	if count < 0 {
		return 0, false, nil
	}
	return int64(count), true, nil
}

// MoreResults advances to the next result set and reports whether there was one.
func (s *Statement) MoreResults() (bool, error) {
	outcome, err := s.run("SQLMoreResults", MoreResults)
	if err != nil {
		return false, mask(err)
	}
	return outcome != NoData, nil
}

func (s *Statement) setAttr(attr SQLINTEGER, value uintptr) error {
	_, err := s.run("SQLSetStmtAttr", func(h SQLHSTMT) SQLRETURN {
		return SetStmtAttr(h, attr, value, 0)
	})
	return err
}

// SetRowArraySize sets how many rows one block fetch delivers. A driver that
// rejects the size (HY024) yields a *BindingError.
func (s *Statement) SetRowArraySize(n int) error {
	err := s.setAttr(SQL_ATTR_ROW_ARRAY_SIZE, uintptr(n))
	if e, ok := causeOf[*DiagnosticError](err); ok && e.HasState(SQLStateInvalidAttrValue) {
		return &BindingError{Index: -1, Reason: "driver rejected row array size " + strconv.Itoa(n)}
	}
	return err
}

// SetRowsFetchedPtr points the driver at the counter it updates on every fetch.
func (s *Statement) SetRowsFetchedPtr(p *SQLULEN) error {
	var addr uintptr
	if p != nil {
		addr = ptrOf(p)
	}
	return s.setAttr(SQL_ATTR_ROWS_FETCHED_PTR, addr)
}

// SetParamsetSize sets how many parameter sets one execute covers.
func (s *Statement) SetParamsetSize(n int) error {
	return s.setAttr(SQL_ATTR_PARAMSET_SIZE, uintptr(n))
}

// SetParamsProcessedPtr points the driver at the processed parameter set counter.
func (s *Statement) SetParamsProcessedPtr(p *SQLULEN) error {
	var addr uintptr
	if p != nil {
		addr = ptrOf(p)
	}
	return s.setAttr(SQL_ATTR_PARAMS_PROCESSED_PTR, addr)
}

// SetParamStatusPtr points the driver at the per parameter set status array.
func (s *Statement) SetParamStatusPtr(status []SQLUSMALLINT) error {
	var addr uintptr
	if len(status) > 0 {
		addr = ptrOf(&status[0])
	}
	return s.setAttr(SQL_ATTR_PARAM_STATUS_PTR, addr)
}

// SetQueryTimeout sets SQL_ATTR_QUERY_TIMEOUT. On expiry calls fail with
// *TimeoutError and the statement must be reset before reuse.
func (s *Statement) SetQueryTimeout(d time.Duration) error {
	return s.setAttr(SQL_ATTR_QUERY_TIMEOUT, timeoutSeconds(d))
}

// SetAsync turns asynchronous execution on or off for the statement.
func (s *Statement) SetAsync(on bool) error {
	value := uintptr(SQL_ASYNC_ENABLE_OFF)
	if on {
		value = SQL_ASYNC_ENABLE_ON
	}
	if err := s.setAttr(SQL_ATTR_ASYNC_ENABLE, value); err != nil {
		return err
	}
	s.async = on
	return nil
}

func (s *Statement) enableAsync() error {
	if s.async {
		return nil
	}
	return s.SetAsync(true)
}

// bindCol binds a column array to the 1-based column col.
func (s *Statement) bindCol(col int, b bindInfo) error {
	_, err := s.run("SQLBindCol", func(h SQLHSTMT) SQLRETURN {
		return BindCol(h, SQLUSMALLINT(col), b.cType, b.ptr, b.elemLen, b.ind)
	})
	return err
}

// bindParam binds a parameter array to the 1-based placeholder param.
func (s *Statement) bindParam(param int, dir ParamDirection, b bindInfo) error {
	_, err := s.run("SQLBindParameter", func(h SQLHSTMT) SQLRETURN {
		return BindParameter(h, SQLUSMALLINT(param), dir.ioType(), b.cType, b.sqlType,
			b.columnSize, b.digits, b.ptr, b.elemLen, b.ind)
	})
	return err
}

// Cancel asks the driver to stop the running call. It is allowed while an
// asynchronous call is pending and clears the pending state.
func (s *Statement) Cancel() error {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	if s.closed {
		return ErrHandleClosed
	}
	_, err := check(s.diag(), "SQLCancel", Cancel(s.h))
	if err == nil {
		s.pending = ""
	}
	return err
}

// CloseCursor discards any pending results. It succeeds on a statement without an open cursor.
func (s *Statement) CloseCursor() error {
	_, err := s.run("SQLFreeStmt", func(h SQLHSTMT) SQLRETURN {
		return FreeStmt(h, SQL_CLOSE)
	})
	return err
}

// UnbindColumns releases every column binding.
func (s *Statement) UnbindColumns() error {
	_, err := s.run("SQLFreeStmt", func(h SQLHSTMT) SQLRETURN {
		return FreeStmt(h, SQL_UNBIND)
	})
	return err
}

// ResetParameters releases every parameter binding.
func (s *Statement) ResetParameters() error {
	_, err := s.run("SQLFreeStmt", func(h SQLHSTMT) SQLRETURN {
		return FreeStmt(h, SQL_RESET_PARAMS)
	})
	return err
}

// Close frees the statement handle. Closing twice is a no-op.
func (s *Statement) Close() error {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	if s.closed {
		return nil
	}
	return s.freeLocked()
}

func (s *Statement) freeLocked() error {
	ret := FreeHandle(SQL_HANDLE_STMT, SQLHANDLE(s.h))
	_, err := check(s.diag(), "SQLFreeHandle", ret)
	s.closed = true
	s.pending = ""
	delete(s.conn.stmts, s)
	return err
}

// Prepared is a statement holding a prepared query.
type Prepared struct {
	stmt      *Statement
	numParams int
}

// Statement returns the underlying statement.
func (p *Prepared) Statement() *Statement { return p.stmt }

// NumParams returns the number of placeholders, -1 if the driver does not report it.
func (p *Prepared) NumParams() int { return p.numParams }

// Execute runs the prepared query with the bound parameters. Queries without a
// result set return a nil cursor.
func (p *Prepared) Execute() (*Cursor, error) {
	if _, err := p.stmt.ExecutePrepared(); err != nil {
		return nil, mask(err)
	}
	return newCursor(p.stmt)
}

// DescribeParam describes the 1-based placeholder param. Not every driver supports it.
func (p *Prepared) DescribeParam(param int) (ParameterDescription, error) {
	return p.stmt.DescribeParam(param)
}

// ParameterBufferDescs derives one parameter buffer per placeholder from the
// driver's parameter descriptions. Placeholders without a usable size get maxLen.
func (p *Prepared) ParameterBufferDescs(maxLen int) ([]BufferDesc, error) {
	if p.numParams < 0 {
		return nil, &BindingError{Index: -1, Reason: "driver does not report the number of parameters"}
	}
	descs := make([]BufferDesc, p.numParams)
	for i := range descs {
		pd, err := p.DescribeParam(i + 1)
		if err != nil {
			return nil, err
		}
		d, ok := pd.BufferDesc()
		if !ok {
			d.MaxLen = maxLen
		}
		descs[i] = d
	}
	return descs, nil
}

// Close frees the statement.
func (p *Prepared) Close() error { return p.stmt.Close() }
