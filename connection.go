package odbc

import (
	"context"
	"sync"
	"time"
)

// Connection is a connected ODBC connection handle. Native calls on the
// connection and on all of its statements are serialized by one mutex, so
// statements of one connection never call into the driver concurrently.
type Connection struct {
	env *Environment
	h   SQLHDBC

	mu     sync.Mutex
	closed bool
	stmts  map[*Statement]struct{}
	descs  map[*Descriptor]struct{}

	queryTimeout time.Duration
}

// ConnOption configures a Connection
type ConnOption func(*connConfig)

type connConfig struct {
	loginTimeout time.Duration
	queryTimeout time.Duration
	autocommit   *bool
}

// WithLoginTimeout bounds SQLDriverConnect. Without it the context deadline, if any, is used.
func WithLoginTimeout(d time.Duration) ConnOption {
	return func(c *connConfig) {
		c.loginTimeout = d
	}
}

// WithQueryTimeout sets SQL_ATTR_QUERY_TIMEOUT on every statement of the connection.
// A value of 0 means no timeout (the default).
func WithQueryTimeout(d time.Duration) ConnOption {
	return func(c *connConfig) {
		c.queryTimeout = d
	}
}

// WithAutocommit switches autocommit on or off right after connecting.
func WithAutocommit(on bool) ConnOption {
	return func(c *connConfig) {
		c.autocommit = &on
	}
}

// timeoutSeconds rounds d up to whole seconds, the unit ODBC timeouts use.
func timeoutSeconds(d time.Duration) uintptr {
	if d <= 0 {
		return 0
	}
	return uintptr((d + time.Second - 1) / time.Second)
}

// Connect allocates a connection handle and connects with connStr, which is
// passed to the driver manager untouched.
func (e *Environment) Connect(ctx context.Context, connStr string, opts ...ConnOption) (*Connection, error) {
	var cfg connConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := ctx.Err(); err != nil {
		return nil, mask(err)
	}
	if deadline, ok := ctx.Deadline(); ok && cfg.loginTimeout == 0 {
		cfg.loginTimeout = time.Until(deadline)
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrHandleClosed
	}
	var h SQLHDBC
	ret := AllocHandle(SQL_HANDLE_DBC, SQLHANDLE(e.h), (*SQLHANDLE)(&h))
	if _, err := check(e.diag(), "SQLAllocHandle", ret); err != nil {
		e.mu.Unlock()
		return nil, mask(err)
	}
	c := &Connection{
		env:          e,
		h:            h,
		stmts:        make(map[*Statement]struct{}),
		descs:        make(map[*Descriptor]struct{}),
		queryTimeout: cfg.queryTimeout,
	}
	e.conns[c] = struct{}{}
	e.mu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if cfg.loginTimeout > 0 {
		ret = SetConnectAttr(h, SQL_ATTR_LOGIN_TIMEOUT, timeoutSeconds(cfg.loginTimeout), 0)
		if _, err := check(c.diag(), "SQLSetConnectAttr", ret); err != nil {
			c.freeLocked(false)
			return nil, mask(err)
		}
	}

	outConnStr := make([]byte, 1024)
	_, ret = DriverConnect(h, 0, connStr, outConnStr, SQL_DRIVER_NOPROMPT)
	if _, err := check(c.diag(), "SQLDriverConnect", ret); err != nil {
		c.freeLocked(false)
		return nil, mask(err)
	}

	if cfg.autocommit != nil {
		mode := uintptr(SQL_AUTOCOMMIT_OFF)
		if *cfg.autocommit {
			mode = SQL_AUTOCOMMIT_ON
		}
		ret = SetConnectAttr(h, SQL_ATTR_AUTOCOMMIT, mode, 0)
		if _, err := check(c.diag(), "SQLSetConnectAttr", ret); err != nil {
			c.freeLocked(true)
			return nil, mask(err)
		}
	}
	Log.Debug("connected", "handle", h)
	return c, nil
}

func (c *Connection) diag() diagSource {
	return diagSource{handleType: SQL_HANDLE_DBC, handle: SQLHANDLE(c.h), mu: &c.env.diagMu}
}

// Handle returns the raw connection handle.
func (c *Connection) Handle() SQLHDBC { return c.h }

// NewStatement allocates a statement handle on the connection.
func (c *Connection) NewStatement() (*Statement, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrHandleClosed
	}

	var h SQLHSTMT
	ret := AllocHandle(SQL_HANDLE_STMT, SQLHANDLE(c.h), (*SQLHANDLE)(&h))
	if _, err := check(c.diag(), "SQLAllocHandle", ret); err != nil {
		return nil, mask(err)
	}
	s := &Statement{conn: c, h: h}
	if c.queryTimeout > 0 {
		ret = SetStmtAttr(h, SQL_ATTR_QUERY_TIMEOUT, timeoutSeconds(c.queryTimeout), 0)
		if _, err := check(s.diag(), "SQLSetStmtAttr", ret); err != nil {
			FreeHandle(SQL_HANDLE_STMT, SQLHANDLE(h))
			return nil, mask(err)
		}
	}
	c.stmts[s] = struct{}{}
	return s, nil
}

// Prepare allocates a statement and prepares query on it.
func (c *Connection) Prepare(query string) (*Prepared, error) {
	s, err := c.NewStatement()
	if err != nil {
		return nil, err
	}
	p, err := s.Prepare(query)
	if err != nil {
		s.Close()
		return nil, err
	}
	return p, nil
}

// Execute runs query directly. The returned cursor owns its statement and frees it on Close.
// Statements without a result set return a nil cursor.
func (c *Connection) Execute(query string) (*Cursor, error) {
	s, err := c.NewStatement()
	if err != nil {
		return nil, err
	}
	cursor, err := s.Execute(query)
	if err != nil || cursor == nil {
		s.Close()
		return nil, err
	}
	cursor.owned = true
	return cursor, nil
}

// AllocDescriptor allocates an explicit descriptor on the connection.
func (c *Connection) AllocDescriptor() (*Descriptor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrHandleClosed
	}
	var h SQLHDESC
	ret := AllocHandle(SQL_HANDLE_DESC, SQLHANDLE(c.h), (*SQLHANDLE)(&h))
	if _, err := check(c.diag(), "SQLAllocHandle", ret); err != nil {
		return nil, mask(err)
	}
	d := &Descriptor{conn: c, h: h}
	c.descs[d] = struct{}{}
	return d, nil
}

// Close frees every statement and descriptor of the connection, disconnects and
// frees the handle. Closing twice is a no-op.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	return c.freeLocked(true)
}

func (c *Connection) freeLocked(disconnect bool) error {
	var first error
	for s := range c.stmts {
		if err := s.freeLocked(); err != nil && first == nil {
			first = err
		}
	}
	for d := range c.descs {
		if err := d.freeLocked(); err != nil && first == nil {
			first = err
		}
	}
	if disconnect {
		ret := Disconnect(c.h)
		if _, err := check(c.diag(), "SQLDisconnect", ret); err != nil && first == nil {
			first = err
		}
	}
	FreeHandle(SQL_HANDLE_DBC, SQLHANDLE(c.h))
	c.closed = true
	c.env.forget(c)
	Log.Debug("freed connection", "handle", c.h)
	return first
}
