package odbc

import (
	"sync"

	"github.com/juju/errgo"
)

// Environment owns the ODBC environment handle and every connection allocated
// from it. Diagnostic retrieval for all descendant handles is serialized
// through the environment.
type Environment struct {
	h SQLHENV

	diagMu sync.Mutex

	mu     sync.Mutex
	closed bool
	conns  map[*Connection]struct{}
}

// EnvOption configures an Environment
type EnvOption func(*envConfig)

type envConfig struct {
	libraryPath string
	pooling     uintptr
	poolingSet  bool
}

// WithLibraryPath loads the driver manager from path instead of the platform default.
// It only takes effect before the first environment of the process is created.
func WithLibraryPath(path string) EnvOption {
	return func(c *envConfig) {
		c.libraryPath = path
	}
}

// WithConnectionPooling sets the process-wide pooling mode (SQL_CP_OFF,
// SQL_CP_ONE_PER_DRIVER or SQL_CP_ONE_PER_HENV) before the handle is allocated.
func WithConnectionPooling(mode int) EnvOption {
	return func(c *envConfig) {
		c.pooling = uintptr(mode)
		c.poolingSet = true
	}
}

// NewEnvironment loads the driver manager if needed and allocates an ODBC 3 environment.
func NewEnvironment(opts ...EnvOption) (*Environment, error) {
	var cfg envConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.libraryPath != "" {
		if odbcLib != 0 && cfg.libraryPath != getLibraryPath() {
			Log.Warn("driver manager already loaded, ignoring library path", "path", cfg.libraryPath)
		}
		libraryPathOverride = cfg.libraryPath
	}
	if err := initODBC(); err != nil {
		return nil, mask(err)
	}

	if cfg.poolingSet {
		ret := SetEnvAttr(SQLHENV(SQL_NULL_HANDLE), SQL_ATTR_CONNECTION_POOLING, cfg.pooling, 0)
		if _, err := check(diagSource{handleType: SQL_HANDLE_ENV}, "SQLSetEnvAttr", ret); err != nil {
			return nil, mask(err)
		}
	}

	var h SQLHENV
	ret := AllocHandle(SQL_HANDLE_ENV, SQL_NULL_HANDLE, (*SQLHANDLE)(&h))
	if !IsSuccess(ret) {
		return nil, errgo.Newf("failed to allocate ODBC environment handle: %s", FormatReturnCode(ret))
	}
	env := &Environment{h: h, conns: make(map[*Connection]struct{})}

	ret = SetEnvAttr(h, SQL_ATTR_ODBC_VERSION, uintptr(SQL_OV_ODBC3), 0)
	if _, err := check(env.diag(), "SQLSetEnvAttr", ret); err != nil {
		FreeHandle(SQL_HANDLE_ENV, SQLHANDLE(h))
		return nil, mask(err)
	}
	Log.Debug("allocated environment", "handle", h)
	return env, nil
}

func (e *Environment) diag() diagSource {
	return diagSource{handleType: SQL_HANDLE_ENV, handle: SQLHANDLE(e.h), mu: &e.diagMu}
}

// Handle returns the raw environment handle.
func (e *Environment) Handle() SQLHENV { return e.h }

func (e *Environment) forget(c *Connection) {
	e.mu.Lock()
	delete(e.conns, c)
	e.mu.Unlock()
}

// Close closes every open connection and then frees the environment.
// Closing twice is a no-op.
func (e *Environment) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	conns := make([]*Connection, 0, len(e.conns))
	for c := range e.conns {
		conns = append(conns, c)
	}
	e.mu.Unlock()

	var first error
	for _, c := range conns {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	ret := FreeHandle(SQL_HANDLE_ENV, SQLHANDLE(e.h))
	if _, err := check(e.diag(), "SQLFreeHandle", ret); err != nil && first == nil {
		first = err
	}
	Log.Debug("freed environment", "handle", e.h, "connections", len(conns))
	return first
}
