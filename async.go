package odbc

import (
	"bytes"
	"context"
	"time"
)

// Poll is the result of one step of an asynchronous operation. While Ready is
// false the caller must invoke the same operation again to make progress.
type Poll[T any] struct {
	Ready bool
	Value T
}

func pending[T any]() Poll[T] { return Poll[T]{} }

func ready[T any](v T) Poll[T] { return Poll[T]{Ready: true, Value: v} }

// Pending reports whether the driver is still executing.
func (p Poll[T]) Pending() bool { return !p.Ready }

// ExecDirectPoll is the polling form of ExecDirect. The first call enables
// asynchronous execution on the statement; until it returns Ready every call
// must pass the same query.
func (s *Statement) ExecDirectPoll(query string) (Poll[Outcome], error) {
	q := nulTerminated(query)
	if s.inFlight() {
		if !bytes.Equal(q, s.query) {
			return pending[Outcome](), ErrCallInFlight
		}
	} else {
		if err := s.enableAsync(); err != nil {
			return pending[Outcome](), err
		}
		s.query = q
	}
	outcome, err := s.invoke("SQLExecDirect", func(h SQLHSTMT) SQLRETURN {
		return ExecDirect(h, s.query)
	})
	if err != nil || outcome == StillExecuting {
		return pending[Outcome](), err
	}
	return ready(outcome), nil
}

// ExecutePoll is the polling form of Prepared.Execute.
func (p *Prepared) ExecutePoll() (Poll[*Cursor], error) {
	s := p.stmt
	if !s.inFlight() {
		if err := s.enableAsync(); err != nil {
			return pending[*Cursor](), err
		}
	}
	outcome, err := s.invoke("SQLExecute", Execute)
	if err != nil || outcome == StillExecuting {
		return pending[*Cursor](), err
	}
	cursor, err := newCursor(s)
	if err != nil {
		return pending[*Cursor](), err
	}
	return ready(cursor), nil
}

// FetchPoll is the polling form of Fetch. A Ready nil row set means the result set is exhausted.
func (b *BlockCursor) FetchPoll() (Poll[*RowSet], error) {
	s := b.cursor.stmt
	prev := b.state
	if !s.inFlight() {
		if err := b.ready(); err != nil || b.state == CursorExhausted {
			return ready[*RowSet](nil), err
		}
		if err := s.enableAsync(); err != nil {
			return pending[*RowSet](), err
		}
		b.state = CursorFetching
	}
	outcome, err := s.invoke("SQLFetchScroll", fetchNext)
	if err == nil && outcome == StillExecuting {
		return pending[*RowSet](), nil
	}
	rs, err := b.finish(prev, outcome, err, b.policy == TruncationReport)
	return ready(rs), err
}

// FlushPoll is the polling form of Flush.
func (ins *BulkInserter) FlushPoll() (Poll[BatchResult], error) {
	s := ins.prepared.stmt
	if !s.inFlight() {
		if err := ins.check(); err != nil || ins.filled == 0 {
			return ready(BatchResult{}), err
		}
		if err := s.enableAsync(); err != nil {
			return pending[BatchResult](), err
		}
		if err := ins.beginBatch(); err != nil {
			return pending[BatchResult](), err
		}
	}
	outcome, err := s.invoke("SQLExecute", Execute)
	if err != nil {
		return pending[BatchResult](), mask(err)
	}
	if outcome == StillExecuting {
		return pending[BatchResult](), nil
	}
	res, err := ins.finishBatch()
	return ready(res), err
}

// WaitFor drives poll on the calling goroutine until it is Ready, sleeping
// interval between attempts. If ctx ends first the driver call is left
// pending; the caller should Cancel the statement.
func WaitFor[T any](ctx context.Context, interval time.Duration, poll func() (Poll[T], error)) (T, error) {
	for {
		p, err := poll()
		if err != nil || p.Ready {
			return p.Value, err
		}
		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-time.After(interval):
		}
	}
}
