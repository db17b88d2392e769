package odbc

import (
	"fmt"
	"os"
	"runtime"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

var (
	odbcLib  uintptr
	initOnce sync.Once
	initErr  error
)

// ODBC function pointers - populated by purego
var (
	sqlAllocHandle    func(handleType SQLSMALLINT, inputHandle SQLHANDLE, outputHandle *SQLHANDLE) SQLRETURN
	sqlFreeHandle     func(handleType SQLSMALLINT, handle SQLHANDLE) SQLRETURN
	sqlSetEnvAttr     func(env SQLHENV, attribute SQLINTEGER, value uintptr, stringLength SQLINTEGER) SQLRETURN
	sqlDriverConnect  func(dbc SQLHDBC, hwnd uintptr, inConnStr *byte, inConnStrLen SQLSMALLINT, outConnStr *byte, outConnStrMax SQLSMALLINT, outConnStrLen *SQLSMALLINT, driverCompletion SQLUSMALLINT) SQLRETURN
	sqlDisconnect     func(dbc SQLHDBC) SQLRETURN
	sqlSetConnectAttr func(dbc SQLHDBC, attribute SQLINTEGER, value uintptr, stringLength SQLINTEGER) SQLRETURN
	sqlExecDirect     func(stmt SQLHSTMT, stmtText *byte, textLength SQLINTEGER) SQLRETURN
	sqlPrepare        func(stmt SQLHSTMT, stmtText *byte, textLength SQLINTEGER) SQLRETURN
	sqlExecute        func(stmt SQLHSTMT) SQLRETURN
	sqlNumResultCols  func(stmt SQLHSTMT, columnCount *SQLSMALLINT) SQLRETURN
	sqlDescribeCol    func(stmt SQLHSTMT, colNum SQLUSMALLINT, colName *byte, bufferLen SQLSMALLINT, nameLen *SQLSMALLINT, dataType *SQLSMALLINT, colSize *SQLULEN, decDigits *SQLSMALLINT, nullable *SQLSMALLINT) SQLRETURN
	sqlBindCol        func(stmt SQLHSTMT, colNum SQLUSMALLINT, targetType SQLSMALLINT, targetValue uintptr, bufferLen SQLLEN, strLenOrInd *SQLLEN) SQLRETURN
	sqlBindParameter  func(stmt SQLHSTMT, paramNum SQLUSMALLINT, ioType SQLSMALLINT, valueType SQLSMALLINT, paramType SQLSMALLINT, colSize SQLULEN, decDigits SQLSMALLINT, paramValue uintptr, bufferLen SQLLEN, strLenOrInd *SQLLEN) SQLRETURN
	sqlFetchScroll    func(stmt SQLHSTMT, fetchOrientation SQLSMALLINT, fetchOffset SQLLEN) SQLRETURN
	sqlRowCount       func(stmt SQLHSTMT, rowCount *SQLLEN) SQLRETURN
	sqlNumParams      func(stmt SQLHSTMT, paramCount *SQLSMALLINT) SQLRETURN
	sqlDescribeParam  func(stmt SQLHSTMT, paramNum SQLUSMALLINT, dataType *SQLSMALLINT, paramSize *SQLULEN, decDigits *SQLSMALLINT, nullable *SQLSMALLINT) SQLRETURN
	sqlGetData        func(stmt SQLHSTMT, colNum SQLUSMALLINT, targetType SQLSMALLINT, targetValue uintptr, bufferLen SQLLEN, strLenOrInd *SQLLEN) SQLRETURN
	sqlGetDiagRec     func(handleType SQLSMALLINT, handle SQLHANDLE, recNum SQLSMALLINT, sqlState *byte, nativeError *SQLINTEGER, msgText *byte, bufferLen SQLSMALLINT, textLen *SQLSMALLINT) SQLRETURN
	sqlCloseCursor    func(stmt SQLHSTMT) SQLRETURN
	sqlCancel         func(stmt SQLHSTMT) SQLRETURN
	sqlFreeStmt       func(stmt SQLHSTMT, option SQLUSMALLINT) SQLRETURN
	sqlMoreResults    func(stmt SQLHSTMT) SQLRETURN
	sqlSetStmtAttr    func(stmt SQLHSTMT, attribute SQLINTEGER, value uintptr, stringLength SQLINTEGER) SQLRETURN
)

// entryPoints lists every native function the engine calls. ANSI entry
// points carry an 'A' suffix on Windows only.
var entryPoints = []struct {
	fn   any
	name string
	ansi bool
}{
	{&sqlAllocHandle, "SQLAllocHandle", false},
	{&sqlFreeHandle, "SQLFreeHandle", false},
	{&sqlSetEnvAttr, "SQLSetEnvAttr", false},
	{&sqlDriverConnect, "SQLDriverConnect", true},
	{&sqlDisconnect, "SQLDisconnect", false},
	{&sqlSetConnectAttr, "SQLSetConnectAttr", false},
	{&sqlExecDirect, "SQLExecDirect", true},
	{&sqlPrepare, "SQLPrepare", true},
	{&sqlDescribeCol, "SQLDescribeCol", true},
	{&sqlGetDiagRec, "SQLGetDiagRec", true},
	{&sqlExecute, "SQLExecute", false},
	{&sqlNumResultCols, "SQLNumResultCols", false},
	{&sqlBindCol, "SQLBindCol", false},
	{&sqlBindParameter, "SQLBindParameter", false},
	{&sqlFetchScroll, "SQLFetchScroll", false},
	{&sqlRowCount, "SQLRowCount", false},
	{&sqlNumParams, "SQLNumParams", false},
	{&sqlDescribeParam, "SQLDescribeParam", false},
	{&sqlGetData, "SQLGetData", false},
	{&sqlCloseCursor, "SQLCloseCursor", false},
	{&sqlCancel, "SQLCancel", false},
	{&sqlFreeStmt, "SQLFreeStmt", false},
	{&sqlMoreResults, "SQLMoreResults", false},
	{&sqlSetStmtAttr, "SQLSetStmtAttr", false},
}

// libraryPathOverride is set by WithLibraryPath before the first environment is created.
var libraryPathOverride string

// getLibraryPath returns the platform-specific ODBC library path.
// The GODBC_LIBRARY_PATH environment variable can override the default path.
func getLibraryPath() string {
	if libraryPathOverride != "" {
		return libraryPathOverride
	}
	if path := os.Getenv("GODBC_LIBRARY_PATH"); path != "" {
		return path
	}

	switch runtime.GOOS {
	case "windows":
		return "odbc32.dll"
	case "darwin":
		paths := []string{
			"/opt/homebrew/lib/libodbc.2.dylib", // Apple Silicon Homebrew
			"/usr/local/lib/libodbc.2.dylib",    // Intel Homebrew
			"/opt/homebrew/lib/libodbc.dylib",
			"/usr/local/lib/libodbc.dylib",
		}
		for _, p := range paths {
			if _, err := os.Stat(p); err == nil {
				return p
			}
		}
		return "libodbc.2.dylib"
	default:
		return "libodbc.so.2"
	}
}

// initODBC loads the driver manager and registers the entry points the engine uses.
// It runs once per process; later calls return the first outcome.
func initODBC() error {
	initOnce.Do(func() {
		libPath := getLibraryPath()

		odbcLib, initErr = loadODBCLibrary(libPath)
		if initErr != nil {
			initErr = fmt.Errorf("failed to load ODBC library %q: %w (set GODBC_LIBRARY_PATH to override)", libPath, initErr)
			return
		}
		Log.Debug("loaded ODBC driver manager", "path", libPath)

		suffix := ""
		if runtime.GOOS == "windows" {
			suffix = "A"
		}
		for _, e := range entryPoints {
			name := e.name
			if e.ansi {
				name += suffix
			}
			purego.RegisterLibFunc(e.fn, odbcLib, name)
		}
	})
	return initErr
}

// AllocHandle allocates an ODBC handle
func AllocHandle(handleType SQLSMALLINT, inputHandle SQLHANDLE, outputHandle *SQLHANDLE) SQLRETURN {
	return sqlAllocHandle(handleType, inputHandle, outputHandle)
}

// FreeHandle frees an ODBC handle
func FreeHandle(handleType SQLSMALLINT, handle SQLHANDLE) SQLRETURN {
	return sqlFreeHandle(handleType, handle)
}

// SetEnvAttr sets an environment attribute
func SetEnvAttr(env SQLHENV, attribute SQLINTEGER, value uintptr, stringLength SQLINTEGER) SQLRETURN {
	return sqlSetEnvAttr(env, attribute, value, stringLength)
}

// DriverConnect connects to a data source using a connection string
func DriverConnect(dbc SQLHDBC, hwnd uintptr, inConnStr string, outConnStr []byte, driverCompletion SQLUSMALLINT) (outLen SQLSMALLINT, ret SQLRETURN) {
	inBytes := append([]byte(inConnStr), 0)
	var outLenPtr SQLSMALLINT
	var outPtr *byte
	var outMax SQLSMALLINT
	if len(outConnStr) > 0 {
		outPtr = &outConnStr[0]
		outMax = SQLSMALLINT(len(outConnStr))
	}
	ret = sqlDriverConnect(dbc, hwnd, &inBytes[0], SQLSMALLINT(SQL_NTS), outPtr, outMax, &outLenPtr, driverCompletion)
	return outLenPtr, ret
}

// Disconnect disconnects from a data source
func Disconnect(dbc SQLHDBC) SQLRETURN {
	return sqlDisconnect(dbc)
}

// SetConnectAttr sets a connection attribute
func SetConnectAttr(dbc SQLHDBC, attribute SQLINTEGER, value uintptr, stringLength SQLINTEGER) SQLRETURN {
	return sqlSetConnectAttr(dbc, attribute, value, stringLength)
}

// ExecDirect executes an SQL statement directly
func ExecDirect(stmt SQLHSTMT, query []byte) SQLRETURN {
	return sqlExecDirect(stmt, &query[0], SQLINTEGER(SQL_NTS))
}

// Prepare prepares an SQL statement for execution
func Prepare(stmt SQLHSTMT, query []byte) SQLRETURN {
	return sqlPrepare(stmt, &query[0], SQLINTEGER(SQL_NTS))
}

// Execute executes a prepared statement
func Execute(stmt SQLHSTMT) SQLRETURN {
	return sqlExecute(stmt)
}

// NumResultCols returns the number of columns in a result set
func NumResultCols(stmt SQLHSTMT, columnCount *SQLSMALLINT) SQLRETURN {
	return sqlNumResultCols(stmt, columnCount)
}

// DescribeCol describes a column in a result set
func DescribeCol(stmt SQLHSTMT, colNum SQLUSMALLINT, colName []byte) (nameLen SQLSMALLINT, dataType SQLSMALLINT, colSize SQLULEN, decDigits SQLSMALLINT, nullable SQLSMALLINT, ret SQLRETURN) {
	ret = sqlDescribeCol(stmt, colNum, &colName[0], SQLSMALLINT(len(colName)), &nameLen, &dataType, &colSize, &decDigits, &nullable)
	return
}

// BindCol binds a column array to a statement. A zero targetValue unbinds the column.
func BindCol(stmt SQLHSTMT, colNum SQLUSMALLINT, targetType SQLSMALLINT, targetValue uintptr, bufferLen SQLLEN, strLenOrInd *SQLLEN) SQLRETURN {
	return sqlBindCol(stmt, colNum, targetType, targetValue, bufferLen, strLenOrInd)
}

// BindParameter binds a parameter to a statement
func BindParameter(stmt SQLHSTMT, paramNum SQLUSMALLINT, ioType SQLSMALLINT, valueType SQLSMALLINT, paramType SQLSMALLINT, colSize SQLULEN, decDigits SQLSMALLINT, paramValue uintptr, bufferLen SQLLEN, strLenOrInd *SQLLEN) SQLRETURN {
	return sqlBindParameter(stmt, paramNum, ioType, valueType, paramType, colSize, decDigits, paramValue, bufferLen, strLenOrInd)
}

// FetchScroll fetches the next row set into the bound buffers
func FetchScroll(stmt SQLHSTMT, fetchOrientation SQLSMALLINT, fetchOffset SQLLEN) SQLRETURN {
	return sqlFetchScroll(stmt, fetchOrientation, fetchOffset)
}

// RowCount returns the number of rows affected by an UPDATE, INSERT, or DELETE
func RowCount(stmt SQLHSTMT, rowCount *SQLLEN) SQLRETURN {
	return sqlRowCount(stmt, rowCount)
}

// NumParams returns the number of parameters in a prepared statement
func NumParams(stmt SQLHSTMT, paramCount *SQLSMALLINT) SQLRETURN {
	return sqlNumParams(stmt, paramCount)
}

// DescribeParam describes a parameter marker of a prepared statement
func DescribeParam(stmt SQLHSTMT, paramNum SQLUSMALLINT) (dataType SQLSMALLINT, paramSize SQLULEN, decDigits SQLSMALLINT, nullable SQLSMALLINT, ret SQLRETURN) {
	ret = sqlDescribeParam(stmt, paramNum, &dataType, &paramSize, &decDigits, &nullable)
	return
}

// GetData retrieves data for a single column of the current row. Called
// repeatedly it returns long values piece by piece.
func GetData(stmt SQLHSTMT, colNum SQLUSMALLINT, targetType SQLSMALLINT, target []byte, strLenOrInd *SQLLEN) SQLRETURN {
	return sqlGetData(stmt, colNum, targetType, uintptr(unsafe.Pointer(&target[0])), SQLLEN(len(target)), strLenOrInd)
}

// GetDiagRec retrieves diagnostic records
func GetDiagRec(handleType SQLSMALLINT, handle SQLHANDLE, recNum SQLSMALLINT, sqlState []byte, message []byte) (nativeError SQLINTEGER, msgLen SQLSMALLINT, ret SQLRETURN) {
	ret = sqlGetDiagRec(handleType, handle, recNum, &sqlState[0], &nativeError, &message[0], SQLSMALLINT(len(message)), &msgLen)
	return
}

// CloseCursor closes an open cursor
func CloseCursor(stmt SQLHSTMT) SQLRETURN {
	return sqlCloseCursor(stmt)
}

// Cancel cancels a statement execution
func Cancel(stmt SQLHSTMT) SQLRETURN {
	return sqlCancel(stmt)
}

// FreeStmt frees resources associated with a statement
func FreeStmt(stmt SQLHSTMT, option SQLUSMALLINT) SQLRETURN {
	return sqlFreeStmt(stmt, option)
}

// MoreResults checks for more result sets
func MoreResults(stmt SQLHSTMT) SQLRETURN {
	return sqlMoreResults(stmt)
}

// SetStmtAttr sets a statement attribute
func SetStmtAttr(stmt SQLHSTMT, attribute SQLINTEGER, value uintptr, stringLength SQLINTEGER) SQLRETURN {
	return sqlSetStmtAttr(stmt, attribute, value, stringLength)
}

// ptrOf returns the address of p as the integer the driver manager expects.
func ptrOf[T any](p *T) uintptr {
	return uintptr(unsafe.Pointer(p))
}
