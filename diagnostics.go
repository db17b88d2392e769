package odbc

import (
	"fmt"
	"sync"

	"github.com/juju/errgo"
)

// Outcome is the structured form of a native return code.
type Outcome int

const (
	Success Outcome = iota
	SuccessWithInfo
	Failure
	NoData
	NeedData
	StillExecuting
	InvalidHandle
)

// OutcomeOf translates a raw SQLRETURN.
func OutcomeOf(ret SQLRETURN) Outcome {
	switch ret {
	case SQL_SUCCESS:
		return Success
	case SQL_SUCCESS_WITH_INFO:
		return SuccessWithInfo
	case SQL_NO_DATA:
		return NoData
	case SQL_NEED_DATA:
		return NeedData
	case SQL_STILL_EXECUTING:
		return StillExecuting
	case SQL_INVALID_HANDLE:
		return InvalidHandle
	default:
		return Failure
	}
}

func (o Outcome) String() string {
	switch o {
	case Success:
		return "SQL_SUCCESS"
	case SuccessWithInfo:
		return "SQL_SUCCESS_WITH_INFO"
	case Failure:
		return "SQL_ERROR"
	case NoData:
		return "SQL_NO_DATA"
	case NeedData:
		return "SQL_NEED_DATA"
	case StillExecuting:
		return "SQL_STILL_EXECUTING"
	case InvalidHandle:
		return "SQL_INVALID_HANDLE"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// FormatReturnCode returns a string representation of an ODBC return code
func FormatReturnCode(ret SQLRETURN) string {
	o := OutcomeOf(ret)
	if o == Failure && ret != SQL_ERROR {
		return fmt.Sprintf("SQLRETURN(%d)", ret)
	}
	return o.String()
}

const diagMessageSize = 1024

// Diagnostics retrieves every diagnostic record for a handle. Records are paged
// until the driver reports SQL_NO_DATA; a message longer than the buffer is read
// again with a buffer of the reported size.
func Diagnostics(handleType SQLSMALLINT, handle SQLHANDLE) []DiagRecord {
	var records []DiagRecord
	sqlState := make([]byte, 6)
	message := make([]byte, diagMessageSize)

	for i := SQLSMALLINT(1); i > 0; i++ {
		nativeError, msgLen, ret := GetDiagRec(handleType, handle, i, sqlState, message)
		if ret == SQL_NO_DATA || !IsSuccess(ret) {
			break
		}
		if int(msgLen) >= len(message) {
			message = make([]byte, int(msgLen)+1)
			nativeError, msgLen, ret = GetDiagRec(handleType, handle, i, sqlState, message)
			if !IsSuccess(ret) {
				break
			}
		}
		n := int(msgLen)
		if n > len(message)-1 {
			n = len(message) - 1
		}
		if n < 0 {
			n = 0
		}
		records = append(records, DiagRecord{
			SQLState:    string(sqlState[:5]),
			NativeError: int32(nativeError),
			Message:     string(message[:n]),
		})
	}
	return records
}

// diagSource identifies the handle diagnostics are read from and the
// environment lock that serializes reading them.
type diagSource struct {
	handleType SQLSMALLINT
	handle     SQLHANDLE
	mu         *sync.Mutex
}

func (d diagSource) records() []DiagRecord {
	if d.mu != nil {
		d.mu.Lock()
		defer d.mu.Unlock()
	}
	return Diagnostics(d.handleType, d.handle)
}

// check interprets ret for function. Warnings are logged and swallowed, errors are
// logged and returned as one aggregated error. The outcome is returned for the
// non-error cases so callers can branch on NoData, NeedData and StillExecuting.
func check(src diagSource, function string, ret SQLRETURN) (Outcome, error) {
	outcome := OutcomeOf(ret)
	switch outcome {
	case Success, NoData, NeedData, StillExecuting:
		return outcome, nil
	case SuccessWithInfo:
		logRecords(function, src.records())
		return outcome, nil
	case InvalidHandle:
		return outcome, errgo.Newf("%s: invalid handle", function)
	}

	records := src.records()
	logRecords(function, records)
	for _, r := range records {
		if r.SQLState == SQLStateTimeout || r.SQLState == SQLStateConnectionTimeout {
			return outcome, &TimeoutError{Function: function, Records: records}
		}
	}
	return outcome, &DiagnosticError{Function: function, Records: records}
}

func logRecords(function string, records []DiagRecord) {
	for _, r := range records {
		if r.SQLState == SQLStateDataTruncation {
			Log.Info("value truncated", "function", function, "state", r.SQLState, "native", r.NativeError, "message", r.Message)
			continue
		}
		Log.Warn("driver diagnostic", "function", function, "state", r.SQLState, "native", r.NativeError, "message", r.Message)
	}
}
