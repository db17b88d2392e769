package odbc

import (
	"errors"
	"fmt"
	"strings"

	"github.com/juju/errgo"
)

var (
	// ErrHandleClosed is returned when a handle, or one of its ancestors, has been freed.
	ErrHandleClosed = errors.New("odbc: handle is closed")
	// ErrBufferLent is returned when a buffer bound to a statement is resized or rebound.
	ErrBufferLent = errors.New("odbc: buffer is bound to a statement")
	// ErrCallInFlight is returned when a statement still has an asynchronous call outstanding.
	ErrCallInFlight = errors.New("odbc: asynchronous call still executing")
	// ErrCursorFailed is returned by fetches after a previous fetch failed.
	ErrCursorFailed = errors.New("odbc: cursor failed on a previous fetch")
	// ErrNoDiagnostics is returned when the driver reports an error without any record.
	ErrNoDiagnostics = errors.New("odbc: driver reported an error without diagnostics")
	// ErrNoResultSet is returned when a cursor is requested from a statement without one.
	ErrNoResultSet = errors.New("odbc: statement did not produce a result set")
)

// DiagRecord represents a single diagnostic record from ODBC
type DiagRecord struct {
	SQLState    string
	NativeError int32
	Message     string
}

func (r DiagRecord) String() string {
	return fmt.Sprintf("[%s] %s (native error: %d)", r.SQLState, r.Message, r.NativeError)
}

// DiagnosticError aggregates every record the driver produced for a failed call.
type DiagnosticError struct {
	Function string
	Records  []DiagRecord
}

func (e *DiagnosticError) Error() string {
	return e.Function + ": " + joinRecords(e.Records)
}

// Unwrap exposes ErrNoDiagnostics when the driver failed without any record.
func (e *DiagnosticError) Unwrap() error {
	if len(e.Records) == 0 {
		return ErrNoDiagnostics
	}
	return nil
}

// SQLState returns the state of the first record.
func (e *DiagnosticError) SQLState() string {
	if len(e.Records) == 0 {
		return ""
	}
	return e.Records[0].SQLState
}

// HasState reports whether any record carries state.
func (e *DiagnosticError) HasState(state string) bool {
	for _, r := range e.Records {
		if r.SQLState == state {
			return true
		}
	}
	return false
}

// TimeoutError is returned when the driver expires a call (HYT00/HYT01).
// The statement must be reset or have its results discarded before reuse,
// and buffers written during the call hold undefined data.
type TimeoutError struct {
	Function string
	Records  []DiagRecord
}

func (e *TimeoutError) Error() string {
	return e.Function + ": timeout expired: " + joinRecords(e.Records)
}

// TruncationError reports a value larger than the buffer element width.
// On fetch Indicator holds the true length; on input it is the rejected value length.
type TruncationError struct {
	Index     int // zero-based column or parameter buffer index
	Row       int
	Indicator Indicator
	MaxLen    int // bytes, the unit of Indicator
	Input     bool
}

func (e *TruncationError) Error() string {
	if e.Input {
		return fmt.Sprintf("odbc: value of %s for buffer %d row %d exceeds max length %d",
			e.Indicator, e.Index, e.Row, e.MaxLen)
	}
	return fmt.Sprintf("odbc: truncated value in buffer %d row %d: indicator %s, max length %d",
		e.Index, e.Row, e.Indicator, e.MaxLen)
}

// AllocationError is returned when buffer memory cannot be provided.
// Retrying with a smaller capacity may succeed.
type AllocationError struct {
	Index       int // buffer index, -1 when not tied to one buffer
	Capacity    int
	ElementSize int
	Reason      string
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("odbc: cannot allocate buffer %d (%d elements of %d bytes): %s",
		e.Index, e.Capacity, e.ElementSize, e.Reason)
}

// BindingError marks a programming error in how buffers are bound: capacity mismatches,
// unknown placeholders, arity mismatches. It is never retried.
type BindingError struct {
	Index  int
	Reason string
}

func (e *BindingError) Error() string {
	if e.Index < 0 {
		return "odbc: invalid binding: " + e.Reason
	}
	return fmt.Sprintf("odbc: invalid binding for buffer %d: %s", e.Index, e.Reason)
}

func joinRecords(records []DiagRecord) string {
	if len(records) == 0 {
		return "unknown ODBC error"
	}
	var sb strings.Builder
	for i, r := range records {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(r.String())
	}
	return sb.String()
}

// SQLState constants for common errors.
const (
	// Connection errors (08xxx)
	SQLStateConnectionFailure = "08001"
	SQLStateConnectionError   = "08S01"

	// Warning states (01xxx)
	SQLStateDataTruncation = "01004"
	SQLStateOptionChanged  = "01S02"

	// Data errors (22xxx)
	SQLStateStringTruncation = "22001"

	// Transaction errors (40xxx)
	SQLStateDeadlock          = "40001"
	SQLStateTransactionFailed = "40003"

	// General errors (HYxxx)
	SQLStateGeneralError          = "HY000"
	SQLStateMemoryAllocationError = "HY001"
	SQLStateInvalidSQLDataType    = "HY004"
	SQLStateFunctionSequenceError = "HY010"
	SQLStateInvalidAttrValue      = "HY024"
	SQLStateInvalidStringLength   = "HY090"
	SQLStateTimeout               = "HYT00"
	SQLStateConnectionTimeout     = "HYT01"
)

func causeOf[T error](err error) (T, bool) {
	var zero T
	if err == nil {
		return zero, false
	}
	if t, ok := errgo.Cause(err).(T); ok {
		return t, true
	}
	var t T
	if errors.As(err, &t) {
		return t, true
	}
	return zero, false
}

func firstState(err error) string {
	if e, ok := causeOf[*DiagnosticError](err); ok {
		return e.SQLState()
	}
	if e, ok := causeOf[*TimeoutError](err); ok && len(e.Records) > 0 {
		return e.Records[0].SQLState
	}
	return ""
}

// IsConnectionError reports whether err indicates a connection problem.
// Connection errors have SQLState codes starting with "08".
func IsConnectionError(err error) bool {
	state := firstState(err)
	return len(state) >= 2 && state[:2] == "08"
}

// IsTruncation reports whether err is a truncation, detected from indicators or
// reported by the driver as 01004/22001.
func IsTruncation(err error) bool {
	if _, ok := causeOf[*TruncationError](err); ok {
		return true
	}
	state := firstState(err)
	return state == SQLStateDataTruncation || state == SQLStateStringTruncation
}

// IsTimeout reports whether the driver expired the call.
func IsTimeout(err error) bool {
	_, ok := causeOf[*TimeoutError](err)
	return ok
}

// IsAllocationFailure reports whether err came from buffer allocation, either ours or
// the driver's (HY001).
func IsAllocationFailure(err error) bool {
	if _, ok := causeOf[*AllocationError](err); ok {
		return true
	}
	return firstState(err) == SQLStateMemoryAllocationError
}

// IsInvalidBinding reports whether err is a binding programming error.
func IsInvalidBinding(err error) bool {
	_, ok := causeOf[*BindingError](err)
	return ok
}

// IsRetryable reports whether err represents a transient error that may
// succeed if retried. Transient errors include connection failures,
// timeouts, and deadlocks.
func IsRetryable(err error) bool {
	if IsTimeout(err) {
		return true
	}
	switch state := firstState(err); state {
	case "":
		return false
	case SQLStateConnectionFailure, SQLStateConnectionError,
		SQLStateDeadlock, SQLStateTransactionFailed:
		return true
	default:
		return len(state) >= 2 && state[:2] == "08"
	}
}

// mask keeps the typed cause visible to the predicates above.
func mask(err error) error {
	return errgo.Mask(err, errgo.Any)
}
