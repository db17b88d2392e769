package odbc

import (
	"encoding/binary"
	"time"

	"github.com/google/uuid"
)

// ODBC Handle types (opaque pointers)
type SQLHANDLE uintptr
type SQLHENV SQLHANDLE
type SQLHDBC SQLHANDLE
type SQLHSTMT SQLHANDLE
type SQLHDESC SQLHANDLE

// ODBC Integer types
type SQLSMALLINT int16
type SQLUSMALLINT uint16
type SQLINTEGER int32
type SQLUINTEGER uint32
type SQLLEN int64   // 64-bit for portability across platforms
type SQLULEN uint64 // 64-bit for portability across platforms
type SQLRETURN SQLSMALLINT

// ODBC Character types
type SQLCHAR byte
type SQLWCHAR uint16 // UTF-16

// Handle type identifiers
const (
	SQL_HANDLE_ENV  SQLSMALLINT = 1
	SQL_HANDLE_DBC  SQLSMALLINT = 2
	SQL_HANDLE_STMT SQLSMALLINT = 3
	SQL_HANDLE_DESC SQLSMALLINT = 4
)

// Return codes
const (
	SQL_SUCCESS           SQLRETURN = 0
	SQL_SUCCESS_WITH_INFO SQLRETURN = 1
	SQL_ERROR             SQLRETURN = -1
	SQL_INVALID_HANDLE    SQLRETURN = -2
	SQL_NO_DATA           SQLRETURN = 100
	SQL_NEED_DATA         SQLRETURN = 99
	SQL_STILL_EXECUTING   SQLRETURN = 2
)

// Null handle constant
const SQL_NULL_HANDLE SQLHANDLE = 0

// ODBC version constants
const (
	SQL_OV_ODBC2 = 2
	SQL_OV_ODBC3 = 3
)

// Environment attributes
const (
	SQL_ATTR_ODBC_VERSION       SQLINTEGER = 200
	SQL_ATTR_CONNECTION_POOLING SQLINTEGER = 201
	SQL_ATTR_CP_MATCH           SQLINTEGER = 202
)

// Connection pooling values
const (
	SQL_CP_OFF            = 0
	SQL_CP_ONE_PER_DRIVER = 1
	SQL_CP_ONE_PER_HENV   = 2
)

// Connection attributes
const (
	SQL_ATTR_ACCESS_MODE     SQLINTEGER = 101
	SQL_ATTR_AUTOCOMMIT      SQLINTEGER = 102
	SQL_ATTR_LOGIN_TIMEOUT   SQLINTEGER = 103
	SQL_ATTR_CONNECTION_DEAD SQLINTEGER = 1209
)

// Autocommit values
const (
	SQL_AUTOCOMMIT_OFF = 0
	SQL_AUTOCOMMIT_ON  = 1
)

// Statement attributes
const (
	SQL_ATTR_QUERY_TIMEOUT        SQLINTEGER = 0
	SQL_ATTR_MAX_ROWS             SQLINTEGER = 1
	SQL_ATTR_ASYNC_ENABLE         SQLINTEGER = 4
	SQL_ATTR_ROW_BIND_TYPE        SQLINTEGER = 5
	SQL_ATTR_CURSOR_TYPE          SQLINTEGER = 6
	SQL_ATTR_CONCURRENCY          SQLINTEGER = 7
	SQL_ATTR_PARAM_BIND_TYPE      SQLINTEGER = 18
	SQL_ATTR_PARAM_STATUS_PTR     SQLINTEGER = 20
	SQL_ATTR_PARAMS_PROCESSED_PTR SQLINTEGER = 21
	SQL_ATTR_PARAMSET_SIZE        SQLINTEGER = 22
	SQL_ATTR_ROW_STATUS_PTR       SQLINTEGER = 25
	SQL_ATTR_ROWS_FETCHED_PTR     SQLINTEGER = 26
	SQL_ATTR_ROW_ARRAY_SIZE       SQLINTEGER = 27
)

// Async enable values
const (
	SQL_ASYNC_ENABLE_OFF = 0
	SQL_ASYNC_ENABLE_ON  = 1
)

// Column-wise binding for both rows and parameters
const (
	SQL_BIND_BY_COLUMN       = 0
	SQL_PARAM_BIND_BY_COLUMN = 0
)

// String terminator
const SQL_NTS SQLINTEGER = -3

// Length/indicator sentinels
const (
	SQL_NULL_DATA    SQLLEN = -1
	SQL_DATA_AT_EXEC SQLLEN = -2
	SQL_NO_TOTAL     SQLLEN = -4
)

// SQLDriverConnect options
const (
	SQL_DRIVER_NOPROMPT          SQLUSMALLINT = 0
	SQL_DRIVER_COMPLETE          SQLUSMALLINT = 1
	SQL_DRIVER_PROMPT            SQLUSMALLINT = 2
	SQL_DRIVER_COMPLETE_REQUIRED SQLUSMALLINT = 3
)

// SQL data types
const (
	SQL_UNKNOWN_TYPE   SQLSMALLINT = 0
	SQL_CHAR           SQLSMALLINT = 1
	SQL_NUMERIC        SQLSMALLINT = 2
	SQL_DECIMAL        SQLSMALLINT = 3
	SQL_INTEGER        SQLSMALLINT = 4
	SQL_SMALLINT       SQLSMALLINT = 5
	SQL_FLOAT          SQLSMALLINT = 6
	SQL_REAL           SQLSMALLINT = 7
	SQL_DOUBLE         SQLSMALLINT = 8
	SQL_DATETIME       SQLSMALLINT = 9
	SQL_VARCHAR        SQLSMALLINT = 12
	SQL_BOOLEAN        SQLSMALLINT = 16 // DB2 BOOLEAN type
	SQL_TYPE_DATE      SQLSMALLINT = 91
	SQL_TYPE_TIME      SQLSMALLINT = 92
	SQL_TYPE_TIMESTAMP SQLSMALLINT = 93
	SQL_LONGVARCHAR    SQLSMALLINT = -1
	SQL_BINARY         SQLSMALLINT = -2
	SQL_VARBINARY      SQLSMALLINT = -3
	SQL_LONGVARBINARY  SQLSMALLINT = -4
	SQL_BIGINT         SQLSMALLINT = -5
	SQL_TINYINT        SQLSMALLINT = -6
	SQL_BIT            SQLSMALLINT = -7
	SQL_WCHAR          SQLSMALLINT = -8
	SQL_WVARCHAR       SQLSMALLINT = -9
	SQL_WLONGVARCHAR   SQLSMALLINT = -10
	SQL_GUID           SQLSMALLINT = -11
)

// C data type identifiers for binding
const (
	SQL_SIGNED_OFFSET   SQLSMALLINT = -20
	SQL_UNSIGNED_OFFSET SQLSMALLINT = -22
)

const (
	SQL_C_CHAR      = SQL_CHAR
	SQL_C_LONG      = SQL_INTEGER
	SQL_C_SHORT     = SQL_SMALLINT
	SQL_C_FLOAT     = SQL_REAL
	SQL_C_DOUBLE    = SQL_DOUBLE
	SQL_C_DATE      = SQL_TYPE_DATE
	SQL_C_TIME      = SQL_TYPE_TIME
	SQL_C_TIMESTAMP = SQL_TYPE_TIMESTAMP
	SQL_C_BINARY    = SQL_BINARY
	SQL_C_BIT       = SQL_BIT
	SQL_C_WCHAR     = SQL_WCHAR
	SQL_C_GUID      = SQL_GUID
	SQL_C_SBIGINT   = SQL_BIGINT + SQL_SIGNED_OFFSET    // -25
	SQL_C_SLONG     = SQL_C_LONG + SQL_SIGNED_OFFSET    // -16
	SQL_C_SSHORT    = SQL_C_SHORT + SQL_SIGNED_OFFSET   // -15
	SQL_C_STINYINT  = SQL_TINYINT + SQL_SIGNED_OFFSET   // -26
	SQL_C_UTINYINT  = SQL_TINYINT + SQL_UNSIGNED_OFFSET // -28
)

// Parameter input/output type
const (
	SQL_PARAM_INPUT        SQLSMALLINT = 1
	SQL_PARAM_INPUT_OUTPUT SQLSMALLINT = 2
	SQL_PARAM_OUTPUT       SQLSMALLINT = 4
)

// Fetch direction
const (
	SQL_FETCH_NEXT SQLSMALLINT = 1
)

// Free statement options
const (
	SQL_CLOSE        SQLUSMALLINT = 0
	SQL_DROP         SQLUSMALLINT = 1
	SQL_UNBIND       SQLUSMALLINT = 2
	SQL_RESET_PARAMS SQLUSMALLINT = 3
)

// Nullable field values
const (
	SQL_NO_NULLS         SQLSMALLINT = 0
	SQL_NULLABLE         SQLSMALLINT = 1
	SQL_NULLABLE_UNKNOWN SQLSMALLINT = 2
)

// Param status values
const (
	SQL_PARAM_SUCCESS           = 0
	SQL_PARAM_SUCCESS_WITH_INFO = 6
	SQL_PARAM_ERROR             = 5
	SQL_PARAM_UNUSED            = 7
	SQL_PARAM_DIAG_UNAVAILABLE  = 1
)

// Timestamp struct for date/time binding
type SQL_TIMESTAMP_STRUCT struct {
	Year     SQLSMALLINT
	Month    SQLUSMALLINT
	Day      SQLUSMALLINT
	Hour     SQLUSMALLINT
	Minute   SQLUSMALLINT
	Second   SQLUSMALLINT
	Fraction SQLUINTEGER // billionths of a second
}

// Time converts the struct to a time.Time in loc.
func (ts SQL_TIMESTAMP_STRUCT) Time(loc *time.Location) time.Time {
	return time.Date(int(ts.Year), time.Month(ts.Month), int(ts.Day),
		int(ts.Hour), int(ts.Minute), int(ts.Second), int(ts.Fraction), loc)
}

// TimestampFromTime builds the ODBC struct from t, keeping nanoseconds.
func TimestampFromTime(t time.Time) SQL_TIMESTAMP_STRUCT {
	return SQL_TIMESTAMP_STRUCT{
		Year:     SQLSMALLINT(t.Year()),
		Month:    SQLUSMALLINT(t.Month()),
		Day:      SQLUSMALLINT(t.Day()),
		Hour:     SQLUSMALLINT(t.Hour()),
		Minute:   SQLUSMALLINT(t.Minute()),
		Second:   SQLUSMALLINT(t.Second()),
		Fraction: SQLUINTEGER(t.Nanosecond()),
	}
}

// Date struct
type SQL_DATE_STRUCT struct {
	Year  SQLSMALLINT
	Month SQLUSMALLINT
	Day   SQLUSMALLINT
}

// Time struct
type SQL_TIME_STRUCT struct {
	Hour   SQLUSMALLINT
	Minute SQLUSMALLINT
	Second SQLUSMALLINT
}

// GUID struct for uniqueidentifier types
type SQL_GUID_STRUCT struct {
	Data1 uint32
	Data2 uint16
	Data3 uint16
	Data4 [8]byte
}

// UUID returns the GUID in RFC 4122 byte order.
func (g SQL_GUID_STRUCT) UUID() uuid.UUID {
	var u uuid.UUID
	binary.BigEndian.PutUint32(u[0:4], g.Data1)
	binary.BigEndian.PutUint16(u[4:6], g.Data2)
	binary.BigEndian.PutUint16(u[6:8], g.Data3)
	copy(u[8:], g.Data4[:])
	return u
}

// String returns the GUID as xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx.
func (g SQL_GUID_STRUCT) String() string {
	return g.UUID().String()
}

// GUIDFromUUID converts u to the struct layout drivers expect.
func GUIDFromUUID(u uuid.UUID) SQL_GUID_STRUCT {
	g := SQL_GUID_STRUCT{
		Data1: binary.BigEndian.Uint32(u[0:4]),
		Data2: binary.BigEndian.Uint16(u[4:6]),
		Data3: binary.BigEndian.Uint16(u[6:8]),
	}
	copy(g.Data4[:], u[8:])
	return g
}

// Bit is the one-byte SQL_C_BIT value.
type Bit uint8

// Bool reports whether the bit is set.
func (b Bit) Bool() bool { return b != 0 }

// IsSuccess checks if the return code indicates success
func IsSuccess(ret SQLRETURN) bool {
	return ret == SQL_SUCCESS || ret == SQL_SUCCESS_WITH_INFO
}

// WideString wraps a Go string for explicit UTF-16 (NVARCHAR/NCHAR) binding.
type WideString string

// ParamDirection specifies the direction of a parameter (input, output, or both)
type ParamDirection int

const (
	// ParamInput is for input-only parameters (default)
	ParamInput ParamDirection = iota
	// ParamOutput is for output-only parameters
	ParamOutput
	// ParamInputOutput is for bidirectional parameters
	ParamInputOutput
)

func (d ParamDirection) ioType() SQLSMALLINT {
	switch d {
	case ParamOutput:
		return SQL_PARAM_OUTPUT
	case ParamInputOutput:
		return SQL_PARAM_INPUT_OUTPUT
	default:
		return SQL_PARAM_INPUT
	}
}

func (d ParamDirection) String() string {
	switch d {
	case ParamOutput:
		return "output"
	case ParamInputOutput:
		return "input/output"
	default:
		return "input"
	}
}
