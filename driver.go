package odbc

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"sync"
)

// DriverName is the name the driver is registered under with database/sql.
const DriverName = "odbcblock"

func init() {
	sql.Register(DriverName, &Driver{})
}

// Driver implements database/sql/driver.Driver on top of the block engine:
// result sets are fetched in blocks and arguments travel through parameter arrays.
type Driver struct {
	mu sync.Mutex
	// connectors serve Open, one per connection string, so connections to the
	// same data source share an Environment.
	connectors map[string]*Connector
}

// Open opens a new connection. name is an ODBC connection string, e.g.:
//   - "DSN=mydsn;UID=user;PWD=password"
//   - "Driver={PostgreSQL Unicode};Server=localhost;Database=mydb;UID=user;PWD=password"
func (d *Driver) Open(name string) (driver.Conn, error) {
	if err := initODBC(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	c, ok := d.connectors[name]
	if !ok {
		if d.connectors == nil {
			d.connectors = make(map[string]*Connector)
		}
		c = NewConnector(name)
		c.driver = d
		d.connectors[name] = c
	}
	d.mu.Unlock()
	return c.Connect(context.Background())
}

// Close frees the environments behind connections made with Open, closing
// any that are still open.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var first error
	for name, c := range d.connectors {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
		delete(d.connectors, name)
	}
	return first
}

// OpenConnector returns a Connector with default options for name.
func (d *Driver) OpenConnector(name string) (driver.Connector, error) {
	if err := initODBC(); err != nil {
		return nil, err
	}
	c := NewConnector(name)
	c.driver = d
	return c, nil
}

var (
	_ driver.Driver        = (*Driver)(nil)
	_ driver.DriverContext = (*Driver)(nil)
)
