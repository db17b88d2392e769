package odbc

import (
	"context"
	"database/sql/driver"
	"time"
	"unicode/utf16"

	"github.com/google/uuid"
)

// Stmt implements driver.Stmt. Each execution binds its arguments as a
// one-row parameter array through a BulkInserter.
type Stmt struct {
	conn     *Conn
	prepared *Prepared
	named    *NamedParams
}

// Close closes the statement
func (s *Stmt) Close() error {
	return s.prepared.Close()
}

// NumInput returns the number of arguments, -1 when the driver cannot tell.
func (s *Stmt) NumInput() int {
	if s.named != nil {
		return len(s.named.Names)
	}
	return s.prepared.NumParams()
}

// Exec executes a prepared statement (deprecated, use ExecContext)
func (s *Stmt) Exec(args []driver.Value) (driver.Result, error) {
	return s.ExecContext(context.Background(), namedValues(args))
}

// Query executes a prepared query (deprecated, use QueryContext)
func (s *Stmt) Query(args []driver.Value) (driver.Rows, error) {
	return s.QueryContext(context.Background(), namedValues(args))
}

func namedValues(args []driver.Value) []driver.NamedValue {
	named := make([]driver.NamedValue, len(args))
	for i, arg := range args {
		named[i] = driver.NamedValue{Ordinal: i + 1, Value: arg}
	}
	return named
}

// ExecContext executes a prepared statement with context
func (s *Stmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	cursor, params, err := s.execute(ctx, args)
	if params != nil {
		defer params.Close()
	}
	if err != nil {
		return nil, err
	}
	if cursor != nil {
		defer cursor.Close()
	}
	return newExecResult(s.prepared.Statement())
}

// QueryContext executes a prepared query with context
func (s *Stmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	cursor, params, err := s.execute(ctx, args)
	if err == nil {
		var rows *Rows
		if rows, err = newRows(cursor, s.conn.fetchSize, s.conn.maxTextLen); err == nil {
			rows.params = params
			return rows, nil
		}
		cursor.Close()
	}
	if params != nil {
		params.Close()
	}
	return nil, err
}

// execute binds args and runs the statement. The returned inserter holds the
// parameter buffers and must be closed once the result has been read.
func (s *Stmt) execute(ctx context.Context, args []driver.NamedValue) (*Cursor, *BulkInserter, error) {
	params, err := s.bind(args)
	if err != nil {
		return nil, nil, err
	}
	if params != nil {
		if err := params.beginBatch(); err != nil {
			return nil, params, err
		}
	}

	st := s.prepared.Statement()
	if ctx.Done() == nil || !asyncCapable(st) {
		cursor, err := s.prepared.Execute()
		return cursor, params, badConn(err)
	}
	cursor, err := WaitFor(ctx, asyncPollInterval, s.prepared.ExecutePoll)
	return cursor, params, cancelPending(ctx, st, err)
}

// bind converts args into a one-row BulkInserter. Without arguments it returns nil.
func (s *Stmt) bind(args []driver.NamedValue) (*BulkInserter, error) {
	if len(args) == 0 {
		return nil, nil
	}
	descs := make([]BufferDesc, len(args))
	for i, arg := range args {
		descs[i] = descForValue(arg.Value)
	}

	var opts []InserterOption
	if s.named != nil {
		names := make([]string, len(args))
		for i, arg := range args {
			names[i] = arg.Name
			if names[i] == "" && i < len(s.named.Names) {
				names[i] = s.named.Names[i]
			}
		}
		mapping, err := PlaceholdersFromNames(s.named, names...)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithPlaceholders(mapping))
	} else {
		for _, arg := range args {
			if arg.Name != "" {
				return nil, &ParameterError{Name: arg.Name, Message: "named argument for a query with positional placeholders"}
			}
		}
	}

	params, err := s.prepared.BulkInserter(descs, 1, opts...)
	if err != nil {
		return nil, err
	}
	for i, arg := range args {
		if err := params.Set(0, i, arg.Value); err != nil {
			params.Close()
			return nil, err
		}
	}
	return params, nil
}

// descForValue picks the parameter buffer for one argument. Every buffer is
// nullable so NULL can be sent in any position.
func descForValue(v any) BufferDesc {
	switch x := v.(type) {
	case bool:
		return BufferDesc{Kind: KindBit, Nullable: true}
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return BufferDesc{Kind: KindI64, Nullable: true}
	case float32, float64:
		return BufferDesc{Kind: KindF64, Nullable: true}
	case time.Time:
		return BufferDesc{Kind: KindTimestamp, Nullable: true}
	case uuid.UUID:
		return BufferDesc{Kind: KindGUID, Nullable: true}
	case []byte:
		return BufferDesc{Kind: KindBinary, MaxLen: len(x), Nullable: true}
	case WideString:
		return BufferDesc{Kind: KindWText, MaxLen: len(utf16.Encode([]rune(string(x)))), Nullable: true}
	case string:
		return BufferDesc{Kind: KindText, MaxLen: len(x), Nullable: true}
	}
	return BufferDesc{Kind: KindText, Nullable: true}
}

var (
	_ driver.Stmt             = (*Stmt)(nil)
	_ driver.StmtExecContext  = (*Stmt)(nil)
	_ driver.StmtQueryContext = (*Stmt)(nil)
)
