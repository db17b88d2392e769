package odbc

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// database/sql Adapter Tests (driver.go, connector.go, conn.go, stmt.go, rows.go)
// =============================================================================

func openDB(t *testing.T, opts ...ConnectorOption) (*fakeDriver, *sql.DB) {
	t.Helper()
	d := newFakeDriver(t)
	d.addTable("people", []fakeColumn{
		{Name: "id", Type: SQL_BIGINT, Size: 19},
		{Name: "name", Type: SQL_VARCHAR, Size: 32, Nullable: true},
		{Name: "score", Type: SQL_DOUBLE, Size: 15, Nullable: true},
	},
		[]any{int64(1), "alice", 9.5},
		[]any{int64(2), nil, nil},
	)
	db := sql.OpenDB(NewConnector("DSN=fake", opts...))
	t.Cleanup(func() { db.Close() })
	return d, db
}

func TestDB_Query(t *testing.T) {
	_, db := openDB(t, WithFetchSize(1))

	rows, err := db.Query("SELECT * FROM people")
	require.NoError(t, err)
	defer rows.Close()

	cols, err := rows.Columns()
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name", "score"}, cols)

	types, err := rows.ColumnTypes()
	require.NoError(t, err)
	assert.Equal(t, "BIGINT", types[0].DatabaseTypeName())
	assert.Equal(t, "int64", types[0].ScanType().Name())
	nullable, ok := types[0].Nullable()
	assert.True(t, ok)
	assert.False(t, nullable)
	length, ok := types[1].Length()
	assert.True(t, ok)
	assert.Equal(t, int64(32), length)
	assert.Equal(t, "float64", types[2].ScanType().Name())

	type person struct {
		id    int64
		name  sql.NullString
		score sql.NullFloat64
	}
	var got []person
	for rows.Next() {
		var p person
		require.NoError(t, rows.Scan(&p.id, &p.name, &p.score))
		got = append(got, p)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []person{
		{1, sql.NullString{String: "alice", Valid: true}, sql.NullFloat64{Float64: 9.5, Valid: true}},
		{2, sql.NullString{}, sql.NullFloat64{}},
	}, got)
	assert.False(t, rows.NextResultSet())
}

func TestDB_QueryNoResultSet(t *testing.T) {
	_, db := openDB(t)

	rows, err := db.Query("DELETE FROM people")
	require.NoError(t, err)
	assert.False(t, rows.Next())
	assert.NoError(t, rows.Err())
	require.NoError(t, rows.Close())
}

func TestDB_QueryError(t *testing.T) {
	_, db := openDB(t)

	_, err := db.Query("SELECT * FROM missing")
	require.Error(t, err)
	diag, ok := causeOf[*DiagnosticError](err)
	require.True(t, ok)
	assert.Equal(t, "42S02", diag.SQLState())
}

func TestDB_ExecPositional(t *testing.T) {
	d, db := openDB(t)

	res, err := db.Exec("INSERT INTO people VALUES (?, ?, ?)", 3, "carol", nil)
	require.NoError(t, err)
	n, err := res.RowsAffected()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	_, err = res.LastInsertId()
	assert.Error(t, err)

	rows := d.table("people").rows
	assert.Equal(t, []any{int64(3), "carol", nil}, rows[len(rows)-1])
}

func TestDB_ExecNamed(t *testing.T) {
	d, db := openDB(t)

	_, err := db.Exec("INSERT INTO people VALUES (:id, :name, :score)",
		sql.Named("name", "dave"), sql.Named("score", 1.5), sql.Named("id", int64(4)))
	require.NoError(t, err)

	rows := d.table("people").rows
	assert.Equal(t, []any{int64(4), "dave", 1.5}, rows[len(rows)-1])

	_, err = db.Exec("INSERT INTO people VALUES (?, ?, ?)",
		sql.Named("id", 5), sql.Named("name", "erin"), sql.Named("score", 2.0))
	var perr *ParameterError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "id", perr.Name)

	_, err = db.Exec("INSERT INTO people VALUES (:id, :name, :score)",
		sql.Named("id", 5), sql.Named("nope", "erin"), sql.Named("score", 2.0))
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "nope", perr.Name)
}

func TestDB_ExecNoArgs(t *testing.T) {
	d, db := openDB(t)

	res, err := db.Exec("DELETE FROM people")
	require.NoError(t, err)
	n, err := res.RowsAffected()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Empty(t, d.table("people").rows)
}

func TestDB_PreparedStatement(t *testing.T) {
	d, db := openDB(t)

	stmt, err := db.Prepare("INSERT INTO people VALUES (?, ?, ?)")
	require.NoError(t, err)
	for i := range 3 {
		_, err := stmt.Exec(10+i, "p", float64(i))
		require.NoError(t, err)
	}
	require.NoError(t, stmt.Close())
	assert.Len(t, d.table("people").rows, 5)

	_, err = db.Exec("INSERT INTO people VALUES (?, ?, ?)", 1, 2)
	assert.Error(t, err, "argument count is checked when binding")
}

func TestDB_Truncation(t *testing.T) {
	d, db := openDB(t, WithMaxTextLen(4))
	d.addTable("notes", []fakeColumn{
		{Name: "body", Type: SQL_LONGVARCHAR, Nullable: true},
	}, []any{"abc"}, []any{"abcdefgh"})

	rows, err := db.Query("SELECT * FROM notes")
	require.NoError(t, err)
	defer rows.Close()

	// the whole block is rejected
	assert.False(t, rows.Next())
	require.Error(t, rows.Err())
	assert.True(t, IsTruncation(rows.Err()))
}

func TestDB_QueryContextPollsDriver(t *testing.T) {
	d, db := openDB(t)
	d.stillExecuting = 2

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var name string
	err := db.QueryRowContext(ctx, "SELECT * FROM people").Scan(new(int64), &name, new(float64))
	require.NoError(t, err)
	assert.Equal(t, "alice", name)
}

func TestDB_BeginUnsupported(t *testing.T) {
	_, db := openDB(t)

	_, err := db.Begin()
	assert.Equal(t, ErrNoTransactions, err)
}

func TestDB_PingAndConnectFailure(t *testing.T) {
	_, db := openDB(t)
	require.NoError(t, db.Ping())

	bad := sql.OpenDB(NewConnector("DSN=unreachable"))
	defer bad.Close()
	err := bad.Ping()
	require.Error(t, err)
	assert.True(t, IsConnectionError(err))
}

func TestDB_RawConnection(t *testing.T) {
	_, db := openDB(t)

	conn, err := db.Conn(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	err = conn.Raw(func(dc any) error {
		cursor, err := dc.(*Conn).Connection().Execute("SELECT * FROM people")
		require.NoError(t, err)
		defer cursor.Close()
		assert.Equal(t, 3, cursor.NumResultCols())
		return nil
	})
	require.NoError(t, err)
}

func TestCheckNamedValue(t *testing.T) {
	c := &Conn{}
	for _, v := range []any{nil, true, 1, int8(1), uint64(1), 1.5, "s", []byte("b"), WideString("w")} {
		assert.NoError(t, c.CheckNamedValue(&driver.NamedValue{Value: v}), "%T", v)
	}
	assert.Equal(t, driver.ErrSkip, c.CheckNamedValue(&driver.NamedValue{Value: struct{}{}}))
}

func TestSqlx_Select(t *testing.T) {
	_, db := openDB(t)

	type person struct {
		ID    int64           `db:"id"`
		Name  sql.NullString  `db:"name"`
		Score sql.NullFloat64 `db:"score"`
	}
	x := sqlx.NewDb(db, DriverName)
	var people []person
	require.NoError(t, x.Select(&people, "SELECT * FROM people"))
	require.Len(t, people, 2)
	assert.Equal(t, "alice", people[0].Name.String)
	assert.False(t, people[1].Name.Valid)

	res, err := x.NamedExec("INSERT INTO people VALUES (:id, :name, :score)",
		map[string]any{"id": 7, "name": "gus", "score": 3.0})
	require.NoError(t, err)
	n, err := res.RowsAffected()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var first person
	require.NoError(t, x.Get(&first, "SELECT * FROM people"))
	assert.Equal(t, int64(1), first.ID)
}

func TestDriver_OpenSharesEnvironment(t *testing.T) {
	d := newFakeDriver(t)
	drv := &Driver{}

	c1, err := drv.Open("DSN=fake")
	require.NoError(t, err)
	c2, err := drv.Open("DSN=fake")
	require.NoError(t, err)
	assert.Equal(t, 1, d.liveHandles(SQL_HANDLE_ENV))
	assert.Equal(t, 2, d.liveHandles(SQL_HANDLE_DBC))

	require.NoError(t, c1.Close())
	require.NoError(t, c2.Close())
	assert.Equal(t, 1, d.liveHandles(SQL_HANDLE_ENV))
	require.NoError(t, drv.Close())
	assert.Equal(t, 0, d.liveHandles(SQL_HANDLE_ENV))
}
