package odbc

import (
	"context"
	"database/sql/driver"
	"time"

	"github.com/google/uuid"
	"github.com/juju/errgo"
)

// ErrNoTransactions is returned by Begin. Commit and rollback are left to the
// application, e.g. WithAutocommit(false) plus explicit COMMIT statements.
var ErrNoTransactions = errgo.New("odbc: transactions are not supported by this driver")

// Conn implements driver.Conn over a Connection. sql.Conn.Raw hands out the
// *Conn, and Connection gives access to block cursors and bulk inserters on
// the same session.
type Conn struct {
	conn       *Connection
	fetchSize  int
	maxTextLen int
}

// Connection returns the underlying connection.
func (c *Conn) Connection() *Connection { return c.conn }

// badConn maps a closed handle to driver.ErrBadConn so database/sql discards the connection.
func badConn(err error) error {
	if errgo.Cause(err) == ErrHandleClosed {
		return driver.ErrBadConn
	}
	return err
}

// Prepare prepares a statement for execution
func (c *Conn) Prepare(query string) (driver.Stmt, error) {
	return c.PrepareContext(context.Background(), query)
}

// PrepareContext prepares query. Named parameters (:name, @name, $name) are
// rewritten to positional markers and bound by name at execution.
func (c *Conn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	np := ParseNamedParams(query)
	if np != nil {
		query = np.Query
	}
	p, err := c.conn.Prepare(query)
	if err != nil {
		return nil, badConn(err)
	}
	return &Stmt{conn: c, prepared: p, named: np}, nil
}

// Close closes the connection
func (c *Conn) Close() error {
	return c.conn.Close()
}

// Begin always fails with ErrNoTransactions.
func (c *Conn) Begin() (driver.Tx, error) {
	return nil, ErrNoTransactions
}

// BeginTx always fails with ErrNoTransactions.
func (c *Conn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	return nil, ErrNoTransactions
}

// Ping verifies the connection is still alive
func (c *Conn) Ping(ctx context.Context) error {
	s, err := c.conn.NewStatement()
	if err != nil {
		return driver.ErrBadConn
	}
	defer s.Close()

	err = execDirect(ctx, s, "SELECT 1")
	if IsConnectionError(err) {
		return driver.ErrBadConn
	}
	// some databases reject SELECT 1; the round trip is what counts
	return ctx.Err()
}

// ExecContext executes a query without returning rows
func (c *Conn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	if len(args) > 0 {
		stmt, err := c.PrepareContext(ctx, query)
		if err != nil {
			return nil, err
		}
		defer stmt.Close()
		return stmt.(*Stmt).ExecContext(ctx, args)
	}

	s, err := c.conn.NewStatement()
	if err != nil {
		return nil, badConn(err)
	}
	defer s.Close()
	if err := execDirect(ctx, s, query); err != nil {
		return nil, err
	}
	return newExecResult(s)
}

// QueryContext executes a query that returns rows
func (c *Conn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	if len(args) > 0 {
		stmt, err := c.PrepareContext(ctx, query)
		if err != nil {
			return nil, err
		}
		rows, err := stmt.(*Stmt).QueryContext(ctx, args)
		if err != nil {
			stmt.Close()
			return nil, err
		}
		rows.(*Rows).owner = stmt.(*Stmt)
		return rows, nil
	}

	s, err := c.conn.NewStatement()
	if err != nil {
		return nil, badConn(err)
	}
	cursor, err := func() (*Cursor, error) {
		if err := execDirect(ctx, s, query); err != nil {
			return nil, err
		}
		return newCursor(s)
	}()
	if err != nil || cursor == nil {
		s.Close()
		if err != nil {
			return nil, err
		}
		return newRows(nil, c.fetchSize, c.maxTextLen)
	}
	cursor.owned = true
	rows, err := newRows(cursor, c.fetchSize, c.maxTextLen)
	if err != nil {
		cursor.Close()
		return nil, err
	}
	return rows, nil
}

// ResetSession is called before a connection is reused
func (c *Conn) ResetSession(ctx context.Context) error {
	if !c.IsValid() {
		return driver.ErrBadConn
	}
	return nil
}

// IsValid returns true if the connection is valid
func (c *Conn) IsValid() bool {
	c.conn.mu.Lock()
	defer c.conn.mu.Unlock()
	return !c.conn.closed
}

// CheckNamedValue passes through every type the parameter buffers accept and
// leaves the rest to the default converter.
func (c *Conn) CheckNamedValue(nv *driver.NamedValue) error {
	switch nv.Value.(type) {
	case nil, bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64,
		float32, float64, string, []byte, time.Time, uuid.UUID, WideString:
		return nil
	}
	return driver.ErrSkip
}

// execDirect runs query on s. With a cancellable ctx the call is polled, and
// SQLCancel is sent when ctx ends first.
func execDirect(ctx context.Context, s *Statement, query string) error {
	if ctx.Done() == nil || !asyncCapable(s) {
		_, err := s.ExecDirect(query)
		return err
	}
	_, err := WaitFor(ctx, asyncPollInterval, func() (Poll[Outcome], error) {
		return s.ExecDirectPoll(query)
	})
	return cancelPending(ctx, s, err)
}

// asyncCapable turns on asynchronous execution and reports whether the driver accepted it.
func asyncCapable(s *Statement) bool {
	if err := s.enableAsync(); err != nil {
		Log.Debug("asynchronous execution unavailable", "err", err)
		return false
	}
	return true
}

func cancelPending(ctx context.Context, s *Statement, err error) error {
	if err != nil && ctx.Err() != nil && s.inFlight() {
		if cerr := s.Cancel(); cerr != nil {
			Log.Warn("cancel failed", "err", cerr)
		}
	}
	return err
}

var (
	_ driver.Conn               = (*Conn)(nil)
	_ driver.ConnPrepareContext = (*Conn)(nil)
	_ driver.ConnBeginTx        = (*Conn)(nil)
	_ driver.Pinger             = (*Conn)(nil)
	_ driver.ExecerContext      = (*Conn)(nil)
	_ driver.QueryerContext     = (*Conn)(nil)
	_ driver.SessionResetter    = (*Conn)(nil)
	_ driver.Validator          = (*Conn)(nil)
	_ driver.NamedValueChecker  = (*Conn)(nil)
)
