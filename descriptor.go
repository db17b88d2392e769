package odbc

// Descriptor is an explicitly allocated descriptor handle. It is freed with its connection.
type Descriptor struct {
	conn   *Connection
	h      SQLHDESC
	closed bool
}

// Handle returns the raw descriptor handle.
func (d *Descriptor) Handle() SQLHDESC { return d.h }

// Close frees the descriptor. Closing twice is a no-op.
func (d *Descriptor) Close() error {
	d.conn.mu.Lock()
	defer d.conn.mu.Unlock()
	if d.closed {
		return nil
	}
	return d.freeLocked()
}

func (d *Descriptor) freeLocked() error {
	ret := FreeHandle(SQL_HANDLE_DESC, SQLHANDLE(d.h))
	_, err := check(diagSource{handleType: SQL_HANDLE_DESC, handle: SQLHANDLE(d.h), mu: &d.conn.env.diagMu}, "SQLFreeHandle", ret)
	d.closed = true
	delete(d.conn.descs, d)
	return err
}
