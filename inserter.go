package odbc

import "fmt"

// InserterOption configures a BulkInserter
type InserterOption func(*inserterConfig)

type inserterConfig struct {
	placeholders [][]int
	directions   []ParamDirection
	growth       float64
}

// WithPlaceholders maps buffer i to the 1-based placeholders in mapping[i].
// One buffer may feed several placeholders. The default maps buffer i to placeholder i+1.
func WithPlaceholders(mapping [][]int) InserterOption {
	return func(c *inserterConfig) {
		c.placeholders = mapping
	}
}

// WithDirections sets the direction of each buffer. The default is ParamInput for all.
func WithDirections(dirs ...ParamDirection) InserterOption {
	return func(c *inserterConfig) {
		c.directions = dirs
	}
}

// WithGrowthFactor sets how much wider than the triggering value a text or
// binary parameter grows. Values below 1 are ignored.
func WithGrowthFactor(f float64) InserterOption {
	return func(c *inserterConfig) {
		if f >= 1 {
			c.growth = f
		}
	}
}

// BulkInserter binds column buffers as parameter arrays of a prepared
// statement and executes one batch per filled array.
type BulkInserter struct {
	prepared   *Prepared
	params     []ColumnBuffer
	capacity   int
	mapping    [][]int
	directions []ParamDirection
	growth     float64

	lent      int
	filled    int
	processed SQLULEN
	status    []SQLUSMALLINT
	total     int64
	closed    bool
}

// BulkInserter allocates one parameter buffer per description, each holding capacity rows.
func (p *Prepared) BulkInserter(descs []BufferDesc, capacity int, opts ...InserterOption) (*BulkInserter, error) {
	cols := make([]ColumnBuffer, len(descs))
	for i, d := range descs {
		col, err := NewColumnBuffer(d, capacity)
		if err != nil {
			return nil, withIndex(err, i)
		}
		cols[i] = col
	}
	return p.BulkInserterFromColumns(cols, opts...)
}

// BulkInserterFromColumns binds existing buffers. All of them must share one capacity.
// The statement's parameters are reset first, and an inserter bound earlier
// on it fails with ErrHandleClosed from then on. If binding fails every
// parameter binding of the statement is reset.
func (p *Prepared) BulkInserterFromColumns(cols []ColumnBuffer, opts ...InserterOption) (*BulkInserter, error) {
	cfg := inserterConfig{growth: growthFactor}
	for _, opt := range opts {
		opt(&cfg)
	}
	ins := &BulkInserter{
		prepared:   p,
		params:     cols,
		mapping:    cfg.placeholders,
		directions: cfg.directions,
		growth:     cfg.growth,
	}
	if err := ins.validate(); err != nil {
		return nil, err
	}
	ins.status = make([]SQLUSMALLINT, ins.capacity)
	if err := ins.bind(); err != nil {
		if rerr := p.stmt.ResetParameters(); rerr != nil {
			Log.Warn("resetting parameters after failed bind", "err", rerr)
		}
		ins.releaseAll()
		p.stmt.dropParams(ins)
		return nil, err
	}
	Log.Debug("bound parameter arrays", "parameters", len(cols), "array_size", ins.capacity)
	return ins, nil
}

func (ins *BulkInserter) validate() error {
	if len(ins.params) == 0 {
		return &BindingError{Index: -1, Reason: "no parameter buffers"}
	}
	ins.capacity = ins.params[0].Capacity()
	for i, col := range ins.params {
		if col.Capacity() != ins.capacity {
			return &BindingError{Index: i, Reason: fmt.Sprintf("capacity %d does not match array size %d", col.Capacity(), ins.capacity)}
		}
	}

	if ins.mapping == nil {
		ins.mapping = make([][]int, len(ins.params))
		for i := range ins.mapping {
			ins.mapping[i] = []int{i + 1}
		}
	}
	if len(ins.mapping) != len(ins.params) {
		return &BindingError{Index: -1, Reason: fmt.Sprintf("mapping covers %d buffers, got %d buffers", len(ins.mapping), len(ins.params))}
	}
	if ins.directions == nil {
		ins.directions = make([]ParamDirection, len(ins.params))
	}
	if len(ins.directions) != len(ins.params) {
		return &BindingError{Index: -1, Reason: fmt.Sprintf("%d directions for %d buffers", len(ins.directions), len(ins.params))}
	}

	numParams := ins.prepared.NumParams()
	owner := make(map[int]int)
	for i, placeholders := range ins.mapping {
		if len(placeholders) == 0 {
			return &BindingError{Index: i, Reason: "buffer is mapped to no placeholder"}
		}
		for _, ph := range placeholders {
			if ph < 1 || (numParams >= 0 && ph > numParams) {
				return &BindingError{Index: i, Reason: fmt.Sprintf("unknown placeholder %d", ph)}
			}
			if prev, dup := owner[ph]; dup {
				return &BindingError{Index: i, Reason: fmt.Sprintf("placeholder %d already mapped to buffer %d", ph, prev)}
			}
			owner[ph] = i
		}
	}
	for ph := 1; ph <= numParams; ph++ {
		if _, ok := owner[ph]; !ok {
			return &BindingError{Index: -1, Reason: fmt.Sprintf("placeholder %d has no buffer", ph)}
		}
	}
	return nil
}

func (ins *BulkInserter) bind() error {
	s := ins.prepared.stmt
	if err := s.claimParams(ins); err != nil {
		return mask(err)
	}
	for _, col := range ins.params {
		if err := col.lender().lend(s); err != nil {
			return err
		}
		ins.lent++
	}
	err := s.setAttr(SQL_ATTR_PARAM_BIND_TYPE, SQL_PARAM_BIND_BY_COLUMN)
	if err == nil {
		err = s.SetParamsetSize(ins.capacity)
	}
	if err == nil {
		err = s.SetParamsProcessedPtr(&ins.processed)
	}
	if err == nil {
		err = s.SetParamStatusPtr(ins.status)
	}
	if err != nil {
		return mask(err)
	}
	for i := range ins.params {
		if err := ins.bindParam(i); err != nil {
			return err
		}
	}
	return nil
}

// bindParam binds buffer i to each of its placeholders.
func (ins *BulkInserter) bindParam(i int) error {
	b := ins.params[i].binding()
	for _, ph := range ins.mapping[i] {
		if err := ins.prepared.stmt.bindParam(ph, ins.directions[i], b); err != nil {
			return mask(err)
		}
	}
	return nil
}

func (ins *BulkInserter) releaseAll() {
	for _, col := range ins.params[:ins.lent] {
		col.lender().release()
	}
	ins.lent = 0
}

// grow widens text or binary buffer i to hold n elements and rebinds only that buffer.
func (ins *BulkInserter) grow(i, n int) error {
	col := ins.params[i]
	if err := col.lender().writable(); err != nil {
		return err
	}
	width := max(n, int(float64(n)*ins.growth))
	old := col.Desc().MaxLen
	if err := col.resize(width); err != nil {
		return withIndex(err, i)
	}
	Log.Debug("grew parameter buffer", "parameter", i, "from", old, "to", width)
	return ins.bindParam(i)
}

// revoke is called by the statement once another inserter owns its parameters.
func (ins *BulkInserter) revoke() {
	ins.closed = true
	ins.releaseAll()
}

func (ins *BulkInserter) check() error {
	if ins.closed {
		return ErrHandleClosed
	}
	return nil
}

// Capacity is the number of rows one batch holds.
func (ins *BulkInserter) Capacity() int { return ins.capacity }

// NumRows is the number of rows waiting in the current batch.
func (ins *BulkInserter) NumRows() int { return ins.filled }

// NumParams is the number of parameter buffers.
func (ins *BulkInserter) NumParams() int { return len(ins.params) }

// Column returns parameter buffer i, for instance to read output parameters after a flush.
func (ins *BulkInserter) Column(i int) ColumnBuffer { return ins.params[i] }

// Set converts value into row of parameter col, growing text and binary
// buffers when needed. Rows up to row become part of the current batch.
func (ins *BulkInserter) Set(row, col int, value any) error {
	if err := ins.check(); err != nil {
		return err
	}
	if row < 0 || row >= ins.capacity {
		return &BindingError{Index: col, Reason: fmt.Sprintf("row %d outside array size %d", row, ins.capacity)}
	}
	if err := ins.set(row, col, value); err != nil {
		return err
	}
	ins.filled = max(ins.filled, row+1)
	return nil
}

func (ins *BulkInserter) set(row, col int, value any) error {
	err := assignValue(ins.params[col], row, value, func(n int) error {
		return ins.grow(col, n)
	})
	if t, ok := causeOf[*TruncationError](err); ok {
		t.Index = col
	}
	return withIndex(err, col)
}

// SetNull stores NULL in row of parameter col.
func (ins *BulkInserter) SetNull(row, col int) error {
	return ins.Set(row, col, nil)
}

// AppendRow writes one value per parameter into the next free row. A full
// batch is executed right away.
func (ins *BulkInserter) AppendRow(values ...any) error {
	if err := ins.check(); err != nil {
		return err
	}
	if len(values) != len(ins.params) {
		return &BindingError{Index: -1, Reason: fmt.Sprintf("row has %d values, statement has %d parameters", len(values), len(ins.params))}
	}
	if ins.filled == ins.capacity {
		if _, err := ins.Flush(); err != nil {
			return err
		}
	}
	row := ins.filled
	for j, v := range values {
		if err := ins.set(row, j, v); err != nil {
			return err
		}
	}
	ins.filled++
	if ins.filled == ins.capacity {
		_, err := ins.Flush()
		return err
	}
	return nil
}

// Clear drops the rows of the current batch without executing them.
func (ins *BulkInserter) Clear() { ins.filled = 0 }

// ExecuteCurrentBatch is Flush.
func (ins *BulkInserter) ExecuteCurrentBatch() (BatchResult, error) { return ins.Flush() }

// Flush executes the rows of the current batch. An empty batch is a no-op.
// On error the rows stay in place so the caller can inspect or Clear them.
func (ins *BulkInserter) Flush() (BatchResult, error) {
	if err := ins.check(); err != nil || ins.filled == 0 {
		return BatchResult{}, err
	}
	if err := ins.beginBatch(); err != nil {
		return BatchResult{}, err
	}
	if _, err := ins.prepared.stmt.ExecutePrepared(); err != nil {
		return BatchResult{}, mask(err)
	}
	return ins.finishBatch()
}

func (ins *BulkInserter) beginBatch() error {
	ins.processed = 0
	for i := range ins.status[:ins.filled] {
		ins.status[i] = SQL_PARAM_UNUSED
	}
	return mask(ins.prepared.stmt.SetParamsetSize(ins.filled))
}

func (ins *BulkInserter) finishBatch() (BatchResult, error) {
	res := BatchResult{
		ParamsProcessed: int(ins.processed),
		ParamStatus:     append([]SQLUSMALLINT(nil), ins.status[:ins.filled]...),
	}
	n, ok, err := ins.prepared.stmt.RowCount()
	if err != nil {
		return res, err
	}
	res.RowsAffected, res.HasRowCount = n, ok
	if ok {
		ins.total += n
	}
	Log.Debug("executed batch", "rows", ins.filled, "affected", n, "row_count", ok)
	ins.filled = 0
	return res, nil
}

// TotalRowsAffected sums the row counts of every batch the driver reported a count for.
func (ins *BulkInserter) TotalRowsAffected() int64 { return ins.total }

// Close resets the statement's parameter bindings and hands the buffers back.
// Rows not yet flushed are discarded.
func (ins *BulkInserter) Close() error {
	if ins.closed {
		return nil
	}
	ins.closed = true
	s := ins.prepared.stmt
	err := s.ResetParameters()
	if err == nil {
		err = s.SetParamsProcessedPtr(nil)
	}
	if err == nil {
		err = s.SetParamStatusPtr(nil)
	}
	if err == nil {
		err = s.SetParamsetSize(1)
	}
	ins.releaseAll()
	s.dropParams(ins)
	if err == ErrHandleClosed {
		return nil
	}
	return err
}
