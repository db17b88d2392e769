package odbc

import (
	"context"
	"database/sql/driver"
	"sync"
)

const (
	defaultFetchSize  = 256
	defaultMaxTextLen = 4000
)

// Connector implements driver.Connector. All connections it opens share one
// Environment, which Close frees.
type Connector struct {
	connStr string
	driver  *Driver

	envOpts  []EnvOption
	connOpts []ConnOption

	// FetchSize is the number of rows fetched per block
	FetchSize int
	// MaxTextLen bounds text and binary columns whose size the driver does not report
	MaxTextLen int

	mu  sync.Mutex
	env *Environment
}

// ConnectorOption configures a Connector
type ConnectorOption func(*Connector)

// WithFetchSize sets the row array size of result sets read through database/sql.
func WithFetchSize(n int) ConnectorOption {
	return func(c *Connector) {
		if n > 0 {
			c.FetchSize = n
		}
	}
}

// WithMaxTextLen sets the buffer width for long text and binary columns.
func WithMaxTextLen(n int) ConnectorOption {
	return func(c *Connector) {
		if n > 0 {
			c.MaxTextLen = n
		}
	}
}

// WithEnvironmentOptions passes options to the shared Environment.
func WithEnvironmentOptions(opts ...EnvOption) ConnectorOption {
	return func(c *Connector) {
		c.envOpts = append(c.envOpts, opts...)
	}
}

// WithConnectionOptions passes options to every Connect.
func WithConnectionOptions(opts ...ConnOption) ConnectorOption {
	return func(c *Connector) {
		c.connOpts = append(c.connOpts, opts...)
	}
}

// NewConnector returns a connector for use with sql.OpenDB.
func NewConnector(connStr string, opts ...ConnectorOption) *Connector {
	c := &Connector{
		connStr:    connStr,
		driver:     &Driver{},
		FetchSize:  defaultFetchSize,
		MaxTextLen: defaultMaxTextLen,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Connector) environment() (*Environment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.env == nil {
		env, err := NewEnvironment(c.envOpts...)
		if err != nil {
			return nil, err
		}
		c.env = env
	}
	return c.env, nil
}

// Connect establishes a new connection to the database
func (c *Connector) Connect(ctx context.Context) (driver.Conn, error) {
	env, err := c.environment()
	if err != nil {
		return nil, err
	}
	conn, err := env.Connect(ctx, c.connStr, c.connOpts...)
	if err != nil {
		if IsConnectionError(err) {
			Log.Warn("connect failed", "err", err)
		}
		return nil, err
	}
	return &Conn{conn: conn, fetchSize: c.FetchSize, maxTextLen: c.MaxTextLen}, nil
}

// Driver returns the underlying Driver
func (c *Connector) Driver() driver.Driver {
	return c.driver
}

// Close frees the environment and every connection still open on it.
// sql.DB.Close calls it.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.env == nil {
		return nil
	}
	err := c.env.Close()
	c.env = nil
	return err
}

var _ driver.Connector = (*Connector)(nil)
