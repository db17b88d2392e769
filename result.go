package odbc

import (
	"database/sql/driver"

	"github.com/juju/errgo"
)

// BatchResult reports what one execute of a parameter array did.
type BatchResult struct {
	// RowsAffected is valid only when HasRowCount is true; drivers may not report counts.
	RowsAffected int64
	HasRowCount  bool

	// ParamsProcessed is the number of parameter sets the driver worked through.
	ParamsProcessed int

	// ParamStatus holds one SQL_PARAM_* code per submitted row.
	ParamStatus []SQLUSMALLINT
}

// FailedRows returns the indices of parameter sets the driver marked as failed.
func (r BatchResult) FailedRows() []int {
	var rows []int
	for i, st := range r.ParamStatus {
		if st == SQL_PARAM_ERROR {
			rows = append(rows, i)
		}
	}
	return rows
}

// execResult is the driver.Result of a statement run through database/sql.
type execResult struct {
	n  int64
	ok bool
}

func newExecResult(s *Statement) (driver.Result, error) {
	n, ok, err := s.RowCount()
	if err != nil {
		return nil, err
	}
	return execResult{n: n, ok: ok}, nil
}

// LastInsertId is not available through ODBC.
func (r execResult) LastInsertId() (int64, error) {
	return 0, errgo.New("odbc: LastInsertId is not supported")
}

// RowsAffected fails when the driver reported no row count.
func (r execResult) RowsAffected() (int64, error) {
	if !r.ok {
		return 0, errgo.New("odbc: driver reported no row count")
	}
	return r.n, nil
}
