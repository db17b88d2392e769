package odbc

import "sync"

const defaultQueueDepth = 2

// ConcurrentOption configures a ConcurrentBlockCursor
type ConcurrentOption func(*ConcurrentBlockCursor)

// WithQueueDepth bounds how many fetched blocks may wait for the consumer.
// Values below 1 are ignored.
func WithQueueDepth(n int) ConcurrentOption {
	return func(c *ConcurrentBlockCursor) {
		if n >= 1 {
			c.depth = n
		}
	}
}

// WithTruncationCheck chooses whether the worker scans every block for
// truncated values. It is on by default; a truncated block ends the stream.
func WithTruncationCheck(strict bool) ConcurrentOption {
	return func(c *ConcurrentBlockCursor) {
		c.strict = strict
	}
}

type block struct {
	rs  *RowSet
	err error
}

// ConcurrentBlockCursor fetches on a worker goroutine while the consumer
// processes earlier blocks. Every block it hands out is unbound and owned by
// the consumer; Release gives it back for reuse.
type ConcurrentBlockCursor struct {
	bc     *BlockCursor
	depth  int
	strict bool

	blocks chan block
	spare  chan *RowSet
	stop   chan struct{}
	done   chan struct{}

	stopOnce sync.Once
	failed   bool
}

// NewConcurrentBlockCursor takes ownership of bc and starts its worker. bc
// must not be used directly until IntoCursor or Close returns.
func NewConcurrentBlockCursor(bc *BlockCursor, opts ...ConcurrentOption) (*ConcurrentBlockCursor, error) {
	if err := bc.ready(); err != nil {
		return nil, err
	}
	c := &ConcurrentBlockCursor{
		bc:     bc,
		depth:  defaultQueueDepth,
		strict: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.blocks = make(chan block, c.depth)
	c.spare = make(chan *RowSet, c.depth+1)
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	go c.run()
	return c, nil
}

func (c *ConcurrentBlockCursor) run() {
	defer close(c.done)
	defer close(c.blocks)
	Log.Debug("fetch worker started", "queue_depth", c.depth)

	var n int
	for {
		select {
		case <-c.stop:
			Log.Debug("fetch worker stopped", "blocks", n)
			return
		default:
		}

		rs, err := c.bc.FetchWithTruncationCheck(c.strict)
		if rs == nil {
			if err != nil {
				c.send(block{err: err})
			}
			Log.Debug("fetch worker finished", "blocks", n, "err", err)
			return
		}
		if _, _, uerr := c.bc.Unbind(); uerr != nil && err == nil {
			err = uerr
		}
		n++
		if err != nil {
			c.send(block{rs: rs, err: err})
			Log.Debug("fetch worker finished", "blocks", n, "err", err)
			return
		}

		next, err := c.nextBuffer(rs)
		if err == nil {
			err = c.bc.Rebind(next)
		}
		if !c.send(block{rs: rs}) {
			return
		}
		if err != nil {
			c.send(block{err: err})
			return
		}
	}
}

// nextBuffer returns a released row set, or a fresh one shaped like rs.
func (c *ConcurrentBlockCursor) nextBuffer(rs *RowSet) (*RowSet, error) {
	select {
	case spare := <-c.spare:
		return spare, nil
	default:
		return rs.Clone()
	}
}

func (c *ConcurrentBlockCursor) send(b block) bool {
	select {
	case c.blocks <- b:
		return true
	case <-c.stop:
		return false
	}
}

// Fetch returns the next block, or nil once the result set is exhausted. A
// block that failed the truncation check is returned together with its error.
func (c *ConcurrentBlockCursor) Fetch() (*RowSet, error) {
	if c.failed {
		return nil, ErrCursorFailed
	}
	b, ok := <-c.blocks
	if !ok {
		return nil, nil
	}
	if b.err != nil {
		c.failed = true
	}
	return b.rs, b.err
}

// Release hands rs back so the worker can bind it instead of allocating.
func (c *ConcurrentBlockCursor) Release(rs *RowSet) {
	if rs == nil {
		return
	}
	select {
	case c.spare <- rs:
	default:
	}
}

// FetchInto releases prev and returns the next block.
func (c *ConcurrentBlockCursor) FetchInto(prev *RowSet) (*RowSet, error) {
	c.Release(prev)
	return c.Fetch()
}

// IntoCursor stops the worker, waits for its fetch in progress and returns the
// unbound cursor. Blocks still queued are dropped.
func (c *ConcurrentBlockCursor) IntoCursor() (*Cursor, error) {
	c.stopOnce.Do(func() { close(c.stop) })
	<-c.done
	cur, _, err := c.bc.Unbind()
	return cur, err
}

// Close stops the worker and closes the cursor.
func (c *ConcurrentBlockCursor) Close() error {
	cur, err := c.IntoCursor()
	if cerr := cur.Close(); err == nil {
		err = cerr
	}
	return err
}
