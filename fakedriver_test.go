package odbc

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"unicode/utf16"
	"unsafe"
)

// =============================================================================
// Fake driver manager
//
// The package reaches the driver manager only through the sql* function
// variables, so tests replace them with an in-memory driver. Tables hold rows
// of int64, float64, bool, string, []byte, nil and the ODBC date/time/GUID
// structs. Supported statements:
//
//	SELECT * FROM <table>
//	INSERT INTO <table> VALUES (?, ...)
//	DELETE FROM <table>
//	{CALL echo(?, ?)}        copies parameter 1 into parameter 2 per row
//
// SQLGetData reads the first row of the last fetched block.
// =============================================================================

type fakeColumn struct {
	Name     string
	Type     SQLSMALLINT
	Size     SQLULEN
	Scale    SQLSMALLINT
	Nullable bool
}

type fakeTable struct {
	cols []fakeColumn
	rows [][]any
}

type fakeBinding struct {
	cType   SQLSMALLINT
	ptr     uintptr
	elemLen SQLLEN
	ind     *SQLLEN
	io      SQLSMALLINT
}

type fakeStmt struct {
	attrs    map[SQLINTEGER]uintptr
	cols     map[int]fakeBinding
	params   map[int]fakeBinding
	prepared string
	result   *fakeTable
	pos      int
	rowCount SQLLEN
	// current is the first row of the last block, the row SQLGetData reads.
	current []any
	drained map[int]int

	asyncFn   string
	asyncLeft int
}

type fakeDriver struct {
	mu      sync.Mutex
	next    SQLHANDLE
	handles map[SQLHANDLE]SQLSMALLINT
	stmts   map[SQLHANDLE]*fakeStmt
	diags   map[SQLHANDLE][]DiagRecord
	tables  map[string]*fakeTable

	// stillExecuting is how many times an async execute or fetch reports
	// SQL_STILL_EXECUTING before it completes.
	stillExecuting int
	// maxArraySize makes larger SQL_ATTR_ROW_ARRAY_SIZE values fail with HY024.
	maxArraySize uintptr
	noRowCount   bool
	failures     map[string]DiagRecord

	executes int
	fetches  int
	freed    []SQLSMALLINT
	connStr  string
}

func newFakeDriver(t testing.TB) *fakeDriver {
	t.Helper()
	initOnce.Do(func() {})

	d := &fakeDriver{
		next:     1000,
		handles:  make(map[SQLHANDLE]SQLSMALLINT),
		stmts:    make(map[SQLHANDLE]*fakeStmt),
		diags:    make(map[SQLHANDLE][]DiagRecord),
		tables:   make(map[string]*fakeTable),
		failures: make(map[string]DiagRecord),
	}

	saved := []func(){}
	swap := func(restore func()) { saved = append(saved, restore) }
	{
		a, b, c, e := sqlAllocHandle, sqlFreeHandle, sqlSetEnvAttr, sqlDriverConnect
		swap(func() { sqlAllocHandle, sqlFreeHandle, sqlSetEnvAttr, sqlDriverConnect = a, b, c, e })
	}
	{
		a, b, c, e := sqlDisconnect, sqlSetConnectAttr, sqlExecDirect, sqlPrepare
		swap(func() { sqlDisconnect, sqlSetConnectAttr, sqlExecDirect, sqlPrepare = a, b, c, e })
	}
	{
		a, b, c, e := sqlExecute, sqlNumResultCols, sqlDescribeCol, sqlBindCol
		swap(func() { sqlExecute, sqlNumResultCols, sqlDescribeCol, sqlBindCol = a, b, c, e })
	}
	{
		a, b, c, e := sqlBindParameter, sqlFetchScroll, sqlRowCount, sqlNumParams
		swap(func() { sqlBindParameter, sqlFetchScroll, sqlRowCount, sqlNumParams = a, b, c, e })
	}
	{
		a, b := sqlGetData, sqlDescribeParam
		swap(func() { sqlGetData, sqlDescribeParam = a, b })
	}
	{
		a, b, c, e, f, g := sqlGetDiagRec, sqlCloseCursor, sqlCancel, sqlFreeStmt, sqlMoreResults, sqlSetStmtAttr
		swap(func() {
			sqlGetDiagRec, sqlCloseCursor, sqlCancel, sqlFreeStmt, sqlMoreResults, sqlSetStmtAttr = a, b, c, e, f, g
		})
	}
	t.Cleanup(func() {
		for _, restore := range saved {
			restore()
		}
	})

	sqlAllocHandle = d.allocHandle
	sqlFreeHandle = d.freeHandle
	sqlSetEnvAttr = func(env SQLHENV, attr SQLINTEGER, value uintptr, _ SQLINTEGER) SQLRETURN {
		return SQL_SUCCESS
	}
	sqlDriverConnect = d.driverConnect
	sqlDisconnect = func(dbc SQLHDBC) SQLRETURN { return d.simple(SQLHANDLE(dbc), "SQLDisconnect") }
	sqlSetConnectAttr = func(dbc SQLHDBC, attr SQLINTEGER, value uintptr, _ SQLINTEGER) SQLRETURN {
		return d.simple(SQLHANDLE(dbc), "SQLSetConnectAttr")
	}
	sqlExecDirect = func(stmt SQLHSTMT, text *byte, _ SQLINTEGER) SQLRETURN {
		return d.execDirect(SQLHANDLE(stmt), cString(text))
	}
	sqlPrepare = func(stmt SQLHSTMT, text *byte, _ SQLINTEGER) SQLRETURN {
		return d.prepare(SQLHANDLE(stmt), cString(text))
	}
	sqlExecute = func(stmt SQLHSTMT) SQLRETURN { return d.execute(SQLHANDLE(stmt)) }
	sqlNumResultCols = d.numResultCols
	sqlDescribeCol = d.describeCol
	sqlBindCol = d.bindCol
	sqlBindParameter = d.bindParameter
	sqlFetchScroll = d.fetchScroll
	sqlRowCount = d.rowCountOf
	sqlNumParams = d.numParams
	sqlGetData = d.getData
	sqlDescribeParam = d.describeParam
	sqlGetDiagRec = d.getDiagRec
	sqlCloseCursor = func(stmt SQLHSTMT) SQLRETURN { return d.freeStmt(stmt, SQL_CLOSE) }
	sqlCancel = d.cancel
	sqlFreeStmt = d.freeStmt
	sqlMoreResults = func(stmt SQLHSTMT) SQLRETURN { return SQL_NO_DATA }
	sqlSetStmtAttr = d.setStmtAttr
	return d
}

// openFake returns a fake driver with a connected environment that is closed on cleanup.
func openFake(t testing.TB) (*fakeDriver, *Connection) {
	t.Helper()
	d := newFakeDriver(t)
	env, err := NewEnvironment()
	if err != nil {
		t.Fatalf("NewEnvironment: %v", err)
	}
	t.Cleanup(func() { env.Close() })
	conn, err := env.Connect(t.Context(), "DSN=fake")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return d, conn
}

func (d *fakeDriver) addTable(name string, cols []fakeColumn, rows ...[]any) *fakeTable {
	d.mu.Lock()
	defer d.mu.Unlock()
	tbl := &fakeTable{cols: cols, rows: rows}
	d.tables[name] = tbl
	return tbl
}

func (d *fakeDriver) table(name string) *fakeTable {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tables[name]
}

// failOn makes the next call of function fail with rec.
func (d *fakeDriver) failOn(function string, rec DiagRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[function] = rec
}

func (d *fakeDriver) liveHandles(handleType SQLSMALLINT) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, ht := range d.handles {
		if ht == handleType {
			n++
		}
	}
	return n
}

func (d *fakeDriver) executeCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.executes
}

func (d *fakeDriver) fetchCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fetches
}

// begin clears the diagnostics of h and applies a pending injected failure.
// It must be called with d.mu held.
func (d *fakeDriver) begin(h SQLHANDLE, function string) (SQLRETURN, bool) {
	if _, ok := d.handles[h]; !ok {
		return SQL_INVALID_HANDLE, true
	}
	delete(d.diags, h)
	if rec, ok := d.failures[function]; ok {
		delete(d.failures, function)
		d.diags[h] = []DiagRecord{rec}
		return SQL_ERROR, true
	}
	return SQL_SUCCESS, false
}

func (d *fakeDriver) fail(h SQLHANDLE, state, msg string) SQLRETURN {
	d.diags[h] = append(d.diags[h], DiagRecord{SQLState: state, NativeError: 1, Message: msg})
	return SQL_ERROR
}

func (d *fakeDriver) simple(h SQLHANDLE, function string) SQLRETURN {
	d.mu.Lock()
	defer d.mu.Unlock()
	ret, _ := d.begin(h, function)
	return ret
}

func (d *fakeDriver) allocHandle(handleType SQLSMALLINT, input SQLHANDLE, output *SQLHANDLE) SQLRETURN {
	d.mu.Lock()
	defer d.mu.Unlock()
	if handleType != SQL_HANDLE_ENV {
		if ret, done := d.begin(input, "SQLAllocHandle"); done {
			return ret
		}
	}
	d.next++
	h := d.next
	d.handles[h] = handleType
	if handleType == SQL_HANDLE_STMT {
		d.stmts[h] = &fakeStmt{
			attrs:    map[SQLINTEGER]uintptr{SQL_ATTR_ROW_ARRAY_SIZE: 1, SQL_ATTR_PARAMSET_SIZE: 1},
			cols:     make(map[int]fakeBinding),
			params:   make(map[int]fakeBinding),
			rowCount: -1,
		}
	}
	*output = h
	return SQL_SUCCESS
}

func (d *fakeDriver) freeHandle(handleType SQLSMALLINT, h SQLHANDLE) SQLRETURN {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.handles[h]; !ok {
		return SQL_INVALID_HANDLE
	}
	delete(d.handles, h)
	delete(d.stmts, h)
	delete(d.diags, h)
	d.freed = append(d.freed, handleType)
	return SQL_SUCCESS
}

func (d *fakeDriver) driverConnect(dbc SQLHDBC, _ uintptr, in *byte, _ SQLSMALLINT, out *byte, outMax SQLSMALLINT, outLen *SQLSMALLINT, _ SQLUSMALLINT) SQLRETURN {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := SQLHANDLE(dbc)
	if ret, done := d.begin(h, "SQLDriverConnect"); done {
		return ret
	}
	d.connStr = cString(in)
	if strings.Contains(d.connStr, "unreachable") {
		return d.fail(h, SQLStateConnectionFailure, "unable to connect")
	}
	*outLen = SQLSMALLINT(len(d.connStr))
	return SQL_SUCCESS
}

func (d *fakeDriver) stmt(h SQLHSTMT, function string) (*fakeStmt, SQLRETURN, bool) {
	if ret, done := d.begin(SQLHANDLE(h), function); done {
		return nil, ret, true
	}
	return d.stmts[SQLHANDLE(h)], SQL_SUCCESS, false
}

// stillRunning implements asynchronous re-entry for function.
func (d *fakeDriver) stillRunning(st *fakeStmt, function string) bool {
	if st.attrs[SQL_ATTR_ASYNC_ENABLE] != SQL_ASYNC_ENABLE_ON || d.stillExecuting == 0 {
		return false
	}
	if st.asyncFn != function {
		st.asyncFn, st.asyncLeft = function, d.stillExecuting
	}
	if st.asyncLeft > 0 {
		st.asyncLeft--
		return true
	}
	st.asyncFn = ""
	return false
}

func (d *fakeDriver) setStmtAttr(h SQLHSTMT, attr SQLINTEGER, value uintptr, _ SQLINTEGER) SQLRETURN {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ret, done := d.stmt(h, "SQLSetStmtAttr")
	if done {
		return ret
	}
	if attr == SQL_ATTR_ROW_ARRAY_SIZE && d.maxArraySize > 0 && value > d.maxArraySize {
		return d.fail(SQLHANDLE(h), SQLStateInvalidAttrValue, "invalid attribute value")
	}
	st.attrs[attr] = value
	return SQL_SUCCESS
}

func (d *fakeDriver) attr(h SQLHSTMT, attr SQLINTEGER) uintptr {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stmts[SQLHANDLE(h)].attrs[attr]
}

func (d *fakeDriver) prepare(h SQLHANDLE, query string) SQLRETURN {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ret, done := d.stmt(SQLHSTMT(h), "SQLPrepare")
	if done {
		return ret
	}
	st.prepared = query
	return SQL_SUCCESS
}

func (d *fakeDriver) execDirect(h SQLHANDLE, query string) SQLRETURN {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ret, done := d.stmt(SQLHSTMT(h), "SQLExecDirect")
	if done {
		return ret
	}
	if d.stillRunning(st, "SQLExecDirect") {
		return SQL_STILL_EXECUTING
	}
	return d.run(h, st, query)
}

func (d *fakeDriver) execute(h SQLHANDLE) SQLRETURN {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ret, done := d.stmt(SQLHSTMT(h), "SQLExecute")
	if done {
		return ret
	}
	if d.stillRunning(st, "SQLExecute") {
		return SQL_STILL_EXECUTING
	}
	return d.run(h, st, st.prepared)
}

func (d *fakeDriver) run(h SQLHANDLE, st *fakeStmt, query string) SQLRETURN {
	d.executes++
	st.result, st.pos, st.rowCount = nil, 0, -1
	st.current = nil
	fields := strings.Fields(strings.TrimSuffix(query, ";"))
	upper := strings.ToUpper(query)

	switch {
	case strings.HasPrefix(upper, "SELECT * FROM ") && len(fields) == 4:
		tbl, ok := d.tables[fields[3]]
		if !ok {
			return d.fail(h, "42S02", "table not found: "+fields[3])
		}
		st.result = &fakeTable{cols: tbl.cols, rows: append([][]any(nil), tbl.rows...)}
		return SQL_SUCCESS

	case strings.HasPrefix(upper, "INSERT INTO ") && len(fields) >= 3:
		tbl, ok := d.tables[fields[2]]
		if !ok {
			return d.fail(h, "42S02", "table not found: "+fields[2])
		}
		return d.insert(h, st, tbl, strings.Count(query, "?"))

	case strings.HasPrefix(upper, "DELETE FROM ") && len(fields) == 3:
		tbl, ok := d.tables[fields[2]]
		if !ok {
			return d.fail(h, "42S02", "table not found: "+fields[2])
		}
		st.rowCount = SQLLEN(len(tbl.rows))
		tbl.rows = nil
		return SQL_SUCCESS

	case strings.HasPrefix(upper, "{CALL ECHO(?, ?)}"):
		return d.echo(h, st)
	}
	return d.fail(h, "42000", "syntax error")
}

func (d *fakeDriver) paramsetSize(st *fakeStmt) int {
	return int(st.attrs[SQL_ATTR_PARAMSET_SIZE])
}

func (d *fakeDriver) insert(h SQLHANDLE, st *fakeStmt, tbl *fakeTable, numParams int) SQLRETURN {
	n := d.paramsetSize(st)
	var status []SQLUSMALLINT
	if p := st.attrs[SQL_ATTR_PARAM_STATUS_PTR]; p != 0 {
		status = unsafe.Slice(addr[SQLUSMALLINT](p), n)
	}
	for r := 0; r < n; r++ {
		row := make([]any, numParams)
		for p := 1; p <= numParams; p++ {
			b, ok := st.params[p]
			if !ok {
				return d.fail(h, "07002", "parameter "+strconv.Itoa(p)+" is not bound")
			}
			row[p-1] = readCell(b, r)
		}
		tbl.rows = append(tbl.rows, row)
		if status != nil {
			status[r] = SQL_PARAM_SUCCESS
		}
	}
	if p := st.attrs[SQL_ATTR_PARAMS_PROCESSED_PTR]; p != 0 {
		*addr[SQLULEN](p) = SQLULEN(n)
	}
	if !d.noRowCount {
		st.rowCount = SQLLEN(n)
	}
	return SQL_SUCCESS
}

func (d *fakeDriver) echo(h SQLHANDLE, st *fakeStmt) SQLRETURN {
	in, ok1 := st.params[1]
	out, ok2 := st.params[2]
	if !ok1 || !ok2 {
		return d.fail(h, "07002", "parameters are not bound")
	}
	var truncated bool
	for r := 0; r < d.paramsetSize(st); r++ {
		if writeCell(out, r, readCell(in, r)) {
			truncated = true
		}
	}
	if truncated {
		d.diags[h] = append(d.diags[h], DiagRecord{SQLState: SQLStateDataTruncation, Message: "string data, right truncated"})
		return SQL_SUCCESS_WITH_INFO
	}
	return SQL_SUCCESS
}

func (d *fakeDriver) numResultCols(h SQLHSTMT, count *SQLSMALLINT) SQLRETURN {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ret, done := d.stmt(h, "SQLNumResultCols")
	if done {
		return ret
	}
	*count = 0
	if st.result != nil {
		*count = SQLSMALLINT(len(st.result.cols))
	}
	return SQL_SUCCESS
}

func (d *fakeDriver) describeCol(h SQLHSTMT, col SQLUSMALLINT, name *byte, bufLen SQLSMALLINT, nameLen, dataType *SQLSMALLINT, size *SQLULEN, digits, nullable *SQLSMALLINT) SQLRETURN {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ret, done := d.stmt(h, "SQLDescribeCol")
	if done {
		return ret
	}
	if st.result == nil || int(col) < 1 || int(col) > len(st.result.cols) {
		return d.fail(SQLHANDLE(h), "07009", "invalid descriptor index")
	}
	c := st.result.cols[col-1]
	buf := unsafe.Slice(name, int(bufLen))
	n := copy(buf[:len(buf)-1], c.Name)
	buf[n] = 0
	*nameLen = SQLSMALLINT(len(c.Name))
	*dataType, *size, *digits = c.Type, c.Size, c.Scale
	*nullable = SQL_NO_NULLS
	if c.Nullable {
		*nullable = SQL_NULLABLE
	}
	return SQL_SUCCESS
}

func (d *fakeDriver) bindCol(h SQLHSTMT, col SQLUSMALLINT, cType SQLSMALLINT, ptr uintptr, elemLen SQLLEN, ind *SQLLEN) SQLRETURN {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ret, done := d.stmt(h, "SQLBindCol")
	if done {
		return ret
	}
	if ptr == 0 {
		delete(st.cols, int(col))
		return SQL_SUCCESS
	}
	st.cols[int(col)] = fakeBinding{cType: cType, ptr: ptr, elemLen: elemLen, ind: ind}
	return SQL_SUCCESS
}

func (d *fakeDriver) bindParameter(h SQLHSTMT, param SQLUSMALLINT, io, cType, _ SQLSMALLINT, _ SQLULEN, _ SQLSMALLINT, ptr uintptr, elemLen SQLLEN, ind *SQLLEN) SQLRETURN {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ret, done := d.stmt(h, "SQLBindParameter")
	if done {
		return ret
	}
	st.params[int(param)] = fakeBinding{cType: cType, ptr: ptr, elemLen: elemLen, ind: ind, io: io}
	return SQL_SUCCESS
}

func (d *fakeDriver) fetchScroll(h SQLHSTMT, orientation SQLSMALLINT, _ SQLLEN) SQLRETURN {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ret, done := d.stmt(h, "SQLFetchScroll")
	if done {
		return ret
	}
	if d.stillRunning(st, "SQLFetchScroll") {
		return SQL_STILL_EXECUTING
	}
	if st.result == nil {
		return d.fail(SQLHANDLE(h), SQLStateFunctionSequenceError, "function sequence error")
	}
	d.fetches++
	if st.pos >= len(st.result.rows) {
		st.current = nil
		return SQL_NO_DATA
	}
	end := min(st.pos+int(st.attrs[SQL_ATTR_ROW_ARRAY_SIZE]), len(st.result.rows))
	block := st.result.rows[st.pos:end]
	st.pos = end
	st.current, st.drained = block[0], make(map[int]int)

	var truncated bool
	for r, row := range block {
		for col, b := range st.cols {
			if writeCell(b, r, row[col-1]) {
				truncated = true
			}
		}
	}
	if p := st.attrs[SQL_ATTR_ROWS_FETCHED_PTR]; p != 0 {
		*addr[SQLULEN](p) = SQLULEN(len(block))
	}
	if truncated {
		d.diags[SQLHANDLE(h)] = []DiagRecord{{SQLState: SQLStateDataTruncation, Message: "string data, right truncated"}}
		return SQL_SUCCESS_WITH_INFO
	}
	return SQL_SUCCESS
}

func (d *fakeDriver) rowCountOf(h SQLHSTMT, count *SQLLEN) SQLRETURN {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ret, done := d.stmt(h, "SQLRowCount")
	if done {
		return ret
	}
	*count = st.rowCount
	return SQL_SUCCESS
}

func (d *fakeDriver) numParams(h SQLHSTMT, count *SQLSMALLINT) SQLRETURN {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ret, done := d.stmt(h, "SQLNumParams")
	if done {
		return ret
	}
	*count = SQLSMALLINT(strings.Count(st.prepared, "?"))
	return SQL_SUCCESS
}

// getData hands out long values in pieces the way drivers do: every piece
// carries a terminator for character data, the indicator holds the bytes
// still to come, and SQL_NO_DATA follows the last piece.
func (d *fakeDriver) getData(h SQLHSTMT, col SQLUSMALLINT, cType SQLSMALLINT, ptr uintptr, bufLen SQLLEN, ind *SQLLEN) SQLRETURN {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ret, done := d.stmt(h, "SQLGetData")
	if done {
		return ret
	}
	if st.current == nil {
		return d.fail(SQLHANDLE(h), "24000", "invalid cursor state")
	}
	if int(col) < 1 || int(col) > len(st.current) {
		return d.fail(SQLHANDLE(h), "07009", "invalid descriptor index")
	}
	off, seen := st.drained[int(col)]
	if seen && off < 0 {
		return SQL_NO_DATA
	}
	v := st.current[col-1]
	if v == nil {
		*ind = SQL_NULL_DATA
		st.drained[int(col)] = -1
		return SQL_SUCCESS
	}

	var src []byte
	term := 0
	switch cType {
	case SQL_C_CHAR:
		src, term = []byte(textValue(v)), 1
	case SQL_C_BINARY:
		if b, ok := v.([]byte); ok {
			src = b
		} else {
			src = []byte(textValue(v))
		}
	default:
		writeCell(fakeBinding{cType: cType, ptr: ptr, elemLen: bufLen, ind: ind}, 0, v)
		st.drained[int(col)] = -1
		return SQL_SUCCESS
	}

	rest := src[off:]
	*ind = SQLLEN(len(rest))
	dst := unsafe.Slice(addr[byte](ptr), int(bufLen))
	n := copy(dst[:len(dst)-term], rest)
	if term > 0 {
		dst[n] = 0
	}
	if n < len(rest) {
		st.drained[int(col)] = off + n
		d.diags[SQLHANDLE(h)] = []DiagRecord{{SQLState: SQLStateDataTruncation, Message: "string data, right truncated"}}
		return SQL_SUCCESS_WITH_INFO
	}
	st.drained[int(col)] = -1
	return SQL_SUCCESS
}

// describeParam reports the columns of the table an INSERT was prepared for.
func (d *fakeDriver) describeParam(h SQLHSTMT, param SQLUSMALLINT, dataType *SQLSMALLINT, size *SQLULEN, digits, nullable *SQLSMALLINT) SQLRETURN {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ret, done := d.stmt(h, "SQLDescribeParam")
	if done {
		return ret
	}
	fields := strings.Fields(st.prepared)
	if len(fields) < 3 || !strings.EqualFold(fields[0], "INSERT") {
		return d.fail(SQLHANDLE(h), "HYC00", "optional feature not implemented")
	}
	tbl, ok := d.tables[fields[2]]
	if !ok || int(param) < 1 || int(param) > len(tbl.cols) {
		return d.fail(SQLHANDLE(h), "07009", "invalid descriptor index")
	}
	c := tbl.cols[param-1]
	*dataType, *size, *digits = c.Type, c.Size, c.Scale
	*nullable = SQL_NO_NULLS
	if c.Nullable {
		*nullable = SQL_NULLABLE
	}
	return SQL_SUCCESS
}

func (d *fakeDriver) cancel(h SQLHSTMT) SQLRETURN {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ret, done := d.stmt(h, "SQLCancel")
	if done {
		return ret
	}
	st.asyncFn, st.asyncLeft = "", 0
	return SQL_SUCCESS
}

func (d *fakeDriver) freeStmt(h SQLHSTMT, option SQLUSMALLINT) SQLRETURN {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ret, done := d.stmt(h, "SQLFreeStmt")
	if done {
		return ret
	}
	switch option {
	case SQL_CLOSE:
		st.result, st.pos, st.current = nil, 0, nil
	case SQL_UNBIND:
		st.cols = make(map[int]fakeBinding)
	case SQL_RESET_PARAMS:
		st.params = make(map[int]fakeBinding)
	}
	return SQL_SUCCESS
}

func (d *fakeDriver) getDiagRec(handleType SQLSMALLINT, h SQLHANDLE, rec SQLSMALLINT, state *byte, native *SQLINTEGER, msg *byte, bufLen SQLSMALLINT, msgLen *SQLSMALLINT) SQLRETURN {
	d.mu.Lock()
	defer d.mu.Unlock()
	records := d.diags[h]
	if rec < 1 || int(rec) > len(records) {
		return SQL_NO_DATA
	}
	r := records[rec-1]
	st := unsafe.Slice(state, 6)
	copy(st, r.SQLState+"\x00")
	*native = SQLINTEGER(r.NativeError)
	buf := unsafe.Slice(msg, int(bufLen))
	n := copy(buf[:len(buf)-1], r.Message)
	buf[n] = 0
	*msgLen = SQLSMALLINT(len(r.Message))
	return SQL_SUCCESS
}

// setDiagnostics replaces the records of h, for tests of the diagnostic layer alone.
func (d *fakeDriver) setDiagnostics(h SQLHANDLE, records ...DiagRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handles[h] = SQL_HANDLE_STMT
	d.diags[h] = records
}

// =============================================================================
// Cell access through bound pointers
// =============================================================================

//go:nocheckptr
func addr[T any](p uintptr) *T {
	return (*T)(unsafe.Pointer(p))
}

//go:nocheckptr
func cellAt(b fakeBinding, row int) unsafe.Pointer {
	return unsafe.Pointer(b.ptr + uintptr(row)*uintptr(b.elemLen))
}

//go:nocheckptr
func indAt(b fakeBinding, row int) *SQLLEN {
	if b.ind == nil {
		return nil
	}
	return (*SQLLEN)(unsafe.Add(unsafe.Pointer(b.ind), row*int(unsafe.Sizeof(SQLLEN(0)))))
}

// writeCell stores v in row of a column binding the way a driver does and
// reports whether the value was truncated.
func writeCell(b fakeBinding, row int, v any) bool {
	ind := indAt(b, row)
	if v == nil {
		if ind == nil {
			panic("fake driver: NULL fetched into a column without indicators")
		}
		*ind = SQL_NULL_DATA
		return false
	}
	p := cellAt(b, row)
	switch b.cType {
	case SQL_C_CHAR:
		s := []byte(textValue(v))
		dst := unsafe.Slice((*byte)(p), int(b.elemLen))
		n := copy(dst[:len(dst)-1], s)
		dst[n] = 0
		*ind = SQLLEN(len(s))
		return len(s) > n
	case SQL_C_WCHAR:
		units := utf16.Encode([]rune(textValue(v)))
		dst := unsafe.Slice((*uint16)(p), int(b.elemLen)/2)
		n := copy(dst[:len(dst)-1], units)
		dst[n] = 0
		*ind = SQLLEN(2 * len(units))
		return len(units) > n
	case SQL_C_BINARY:
		var src []byte
		switch x := v.(type) {
		case []byte:
			src = x
		default:
			src = []byte(textValue(v))
		}
		dst := unsafe.Slice((*byte)(p), int(b.elemLen))
		n := copy(dst, src)
		*ind = SQLLEN(len(src))
		return len(src) > n
	case SQL_C_SLONG:
		*(*int32)(p) = int32(intValue(v))
	case SQL_C_SBIGINT:
		*(*int64)(p) = intValue(v)
	case SQL_C_SSHORT:
		*(*int16)(p) = int16(intValue(v))
	case SQL_C_STINYINT:
		*(*int8)(p) = int8(intValue(v))
	case SQL_C_UTINYINT, SQL_C_BIT:
		*(*uint8)(p) = uint8(intValue(v))
	case SQL_C_FLOAT:
		*(*float32)(p) = float32(v.(float64))
	case SQL_C_DOUBLE:
		*(*float64)(p) = v.(float64)
	case SQL_C_TIMESTAMP:
		*(*SQL_TIMESTAMP_STRUCT)(p) = v.(SQL_TIMESTAMP_STRUCT)
	case SQL_C_DATE:
		*(*SQL_DATE_STRUCT)(p) = v.(SQL_DATE_STRUCT)
	case SQL_C_TIME:
		*(*SQL_TIME_STRUCT)(p) = v.(SQL_TIME_STRUCT)
	case SQL_C_GUID:
		*(*SQL_GUID_STRUCT)(p) = v.(SQL_GUID_STRUCT)
	default:
		panic(fmt.Sprintf("fake driver: unsupported C type %d", b.cType))
	}
	if ind != nil {
		*ind = b.elemLen
	}
	return false
}

// readCell decodes row of a parameter binding.
func readCell(b fakeBinding, row int) any {
	ind := indAt(b, row)
	if ind != nil && *ind == SQL_NULL_DATA {
		return nil
	}
	p := cellAt(b, row)
	switch b.cType {
	case SQL_C_CHAR:
		return string(unsafe.Slice((*byte)(p), int(*ind)))
	case SQL_C_WCHAR:
		return string(utf16.Decode(unsafe.Slice((*uint16)(p), int(*ind)/2)))
	case SQL_C_BINARY:
		return append([]byte{}, unsafe.Slice((*byte)(p), int(*ind))...)
	case SQL_C_SLONG:
		return int64(*(*int32)(p))
	case SQL_C_SBIGINT:
		return *(*int64)(p)
	case SQL_C_SSHORT:
		return int64(*(*int16)(p))
	case SQL_C_STINYINT:
		return int64(*(*int8)(p))
	case SQL_C_UTINYINT:
		return int64(*(*uint8)(p))
	case SQL_C_BIT:
		return *(*uint8)(p) != 0
	case SQL_C_FLOAT:
		return float64(*(*float32)(p))
	case SQL_C_DOUBLE:
		return *(*float64)(p)
	case SQL_C_TIMESTAMP:
		return *(*SQL_TIMESTAMP_STRUCT)(p)
	case SQL_C_DATE:
		return *(*SQL_DATE_STRUCT)(p)
	case SQL_C_TIME:
		return *(*SQL_TIME_STRUCT)(p)
	case SQL_C_GUID:
		return *(*SQL_GUID_STRUCT)(p)
	}
	panic(fmt.Sprintf("fake driver: unsupported C type %d", b.cType))
}

func textValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		if x {
			return "1"
		}
		return "0"
	}
	return fmt.Sprint(v)
}

func intValue(v any) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case bool:
		if x {
			return 1
		}
		return 0
	case float64:
		return int64(x)
	}
	panic(fmt.Sprintf("fake driver: %T is not an integer", v))
}

func cString(p *byte) string {
	var n int
	for *(*byte)(unsafe.Add(unsafe.Pointer(p), n)) != 0 {
		n++
	}
	return string(unsafe.Slice(p, n))
}
