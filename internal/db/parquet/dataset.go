// Package parquet implements the dataset engine over directories of
// parquet files. Row ids are global ordinals across the sorted file
// list, so the same dataset always yields the same ids.
package parquet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	pq "github.com/parquet-go/parquet-go"

	"github.com/datalith-io/lakeq/internal/domain"
	"github.com/datalith-io/lakeq/internal/domain/query"
	"github.com/datalith-io/lakeq/table"
)

// Dataset reads and writes a directory of parquet files.
type Dataset struct {
	dir        string
	files      []string
	vectorCols map[string]bool
}

// Option configures a Dataset.
type Option func(*Dataset)

// WithVectorColumns marks byte-array columns that hold packed float32
// vectors rather than strings.
func WithVectorColumns(names ...string) Option {
	return func(d *Dataset) {
		for _, n := range names {
			d.vectorCols[n] = true
		}
	}
}

// Open scans dir for *.parquet files.
func Open(dir string, opts ...Option) (*Dataset, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.parquet"))
	if err != nil {
		return nil, fmt.Errorf("glob parquet files: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no parquet files found in %s", dir)
	}
	sort.Strings(files)

	d := &Dataset{dir: dir, files: files, vectorCols: map[string]bool{}}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Scan streams all rows, filters them with the optional predicate, and
// returns up to limit matches. The result always carries the row id
// column; limit<=0 means no limit.
func (d *Dataset) Scan(
	ctx context.Context, projection query.Projection, filter string, limit int,
) (*table.Table, error) {
	var pred *predicate
	if filter != "" {
		p, err := parsePredicate(filter)
		if err != nil {
			return nil, err
		}
		pred = p
	}

	var (
		ids  []uint64
		rows []map[string]any
	)
	err := d.scanRows(ctx, func(id uint64, row map[string]any) (bool, error) {
		if pred != nil {
			ok, err := pred.match(row)
			if err != nil {
				return false, err
			}
			if !ok {
				return true, nil
			}
		}
		ids = append(ids, id)
		rows = append(rows, row)
		return limit <= 0 || len(rows) < limit, nil
	})
	if err != nil {
		return nil, err
	}
	return d.assemble(ids, rows, projection)
}

// Take fetches rows by id, preserving the requested order.
func (d *Dataset) Take(
	ctx context.Context, rowIDs []uint64, projection query.Projection,
) (*table.Table, error) {
	want := make(map[uint64]int, len(rowIDs))
	for i, id := range rowIDs {
		want[id] = i
	}

	found := 0
	rows := make([]map[string]any, len(rowIDs))
	err := d.scanRows(ctx, func(id uint64, row map[string]any) (bool, error) {
		pos, ok := want[id]
		if !ok {
			return true, nil
		}
		rows[pos] = row
		found++
		return found < len(want), nil
	})
	if err != nil {
		return nil, err
	}
	for i, row := range rows {
		if row == nil {
			return nil, fmt.Errorf("%w: row id %d not in dataset", domain.ErrValidation, rowIDs[i])
		}
	}
	return d.assemble(rowIDs, rows, projection)
}

// Write stores a table as a single parquet file at dest. The schema is
// derived from the column value types; float32 vectors become packed
// byte-array columns.
func (d *Dataset) Write(ctx context.Context, t *table.Table, dest string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	names := t.ColumnNames()
	if len(names) == 0 {
		return fmt.Errorf("%w: cannot write a table with no columns", domain.ErrValidation)
	}

	group := pq.Group{}
	for _, name := range names {
		col, _ := t.Column(name)
		node, err := nodeFor(name, col.Values)
		if err != nil {
			return err
		}
		group[name] = node
	}
	schema := pq.NewSchema("lakeq", group)

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create dataset dir: %w", err)
	}
	f, err := os.Create(filepath.Clean(dest))
	if err != nil {
		return fmt.Errorf("create parquet file: %w", err)
	}
	w := pq.NewGenericWriter[map[string]any](f, schema)

	batch := make([]map[string]any, 0, 1000)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if _, err := w.Write(batch); err != nil {
			return fmt.Errorf("write rows: %w", err)
		}
		batch = batch[:0]
		return nil
	}

	for i := 0; i < t.NumRows(); i++ {
		row := make(map[string]any, len(names))
		for _, name := range names {
			v, _ := t.Value(name, i)
			cell, err := cellValue(name, v)
			if err != nil {
				return err
			}
			row[name] = cell
		}
		batch = append(batch, row)
		if len(batch) == cap(batch) {
			if err := flush(); err != nil {
				_ = f.Close()
				return err
			}
		}
	}
	if err := flush(); err != nil {
		_ = f.Close()
		return err
	}
	if err := w.Close(); err != nil {
		_ = f.Close()
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return f.Close()
}

// FilterRows evaluates a predicate over an in-memory table, returning
// the indices of matching rows.
func (d *Dataset) FilterRows(ctx context.Context, t *table.Table, filter string) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pred, err := parsePredicate(filter)
	if err != nil {
		return nil, err
	}
	var keep []int
	for i := 0; i < t.NumRows(); i++ {
		ok, err := pred.match(t.Row(i))
		if err != nil {
			return nil, err
		}
		if ok {
			keep = append(keep, i)
		}
	}
	return keep, nil
}

// OpenDataset opens another directory with the same vector column
// configuration.
func (d *Dataset) OpenDataset(ctx context.Context, dir string) (*Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(d.vectorCols))
	for n := range d.vectorCols {
		names = append(names, n)
	}
	return Open(dir, WithVectorColumns(names...))
}

// ColumnNames returns the data column names of the first file.
func (d *Dataset) ColumnNames() ([]string, error) {
	h, err := openFile(d.files[0])
	if err != nil {
		return nil, err
	}
	defer h.Close()
	leaves, err := resolveLeaves(h.pf, d.vectorCols)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(leaves))
	for i, l := range leaves {
		names[i] = l.name
	}
	return names, nil
}

// scanRows streams every physical row across all files in order,
// assigning the global ordinal id. The callback returns false to stop.
func (d *Dataset) scanRows(
	ctx context.Context, cb func(id uint64, row map[string]any) (bool, error),
) error {
	var id uint64
	for _, path := range d.files {
		more, err := d.scanFile(ctx, path, &id, cb)
		if err != nil {
			return fmt.Errorf("scan %s: %w", filepath.Base(path), err)
		}
		if !more {
			return nil
		}
	}
	return nil
}

func (d *Dataset) scanFile(
	ctx context.Context, path string, id *uint64, cb func(uint64, map[string]any) (bool, error),
) (bool, error) {
	h, err := openFile(path)
	if err != nil {
		return false, err
	}
	defer h.Close()

	leaves, err := resolveLeaves(h.pf, d.vectorCols)
	if err != nil {
		return false, err
	}

	buf := make([]pq.Row, 1000)
	for _, rg := range h.pf.RowGroups() {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		rows := pq.NewRowGroupReader(rg)
		for {
			cnt, readErr := rows.ReadRows(buf)
			for i := 0; i < cnt; i++ {
				row, err := decodeRow(buf[i], leaves)
				if err != nil {
					return false, err
				}
				more, err := cb(*id, row)
				*id++
				if err != nil {
					return false, err
				}
				if !more {
					return false, nil
				}
			}
			if readErr != nil {
				if errors.Is(readErr, io.EOF) {
					break
				}
				return false, fmt.Errorf("read rows: %w", readErr)
			}
		}
	}
	return true, nil
}

// assemble turns row maps into a column-major table, applying the
// projection and appending the row id column.
func (d *Dataset) assemble(
	ids []uint64, rows []map[string]any, projection query.Projection,
) (*table.Table, error) {
	var entries []query.Entry
	if projection.IsEmpty() {
		names, err := d.ColumnNames()
		if err != nil {
			return nil, err
		}
		for _, n := range names {
			entries = append(entries, query.Entry{Name: n})
		}
	} else {
		entries = projection.Entries()
	}

	cols := make([]table.Column, 0, len(entries)+1)
	for _, e := range entries {
		src := e.Expr
		if src == "" {
			src = e.Name
		}
		values := make([]any, len(rows))
		for i, row := range rows {
			v, ok := row[src]
			if !ok {
				return nil, fmt.Errorf("%w: projection references unknown column %q",
					domain.ErrValidation, src)
			}
			values[i] = v
		}
		cols = append(cols, table.Column{Name: e.Name, Values: values})
	}

	idVals := make([]any, len(ids))
	for i, id := range ids {
		idVals[i] = id
	}
	cols = append(cols, table.Column{Name: table.ColRowID, Values: idVals})
	return table.New(cols...)
}

type leaf struct {
	name     string
	vector   bool
	unsigned bool
}

// resolveLeaves maps parquet leaf column indexes to names and decode
// hints. Only flat schemas are supported.
func resolveLeaves(pf *pq.File, vectorCols map[string]bool) ([]leaf, error) {
	paths := pf.Schema().Columns()
	leaves := make([]leaf, len(paths))
	fields := pf.Schema().Fields()

	for i, path := range paths {
		if len(path) != 1 {
			return nil, fmt.Errorf("%w: nested parquet column %v not supported",
				domain.ErrValidation, path)
		}
		l := leaf{name: path[0], vector: vectorCols[path[0]]}
		for _, f := range fields {
			if f.Name() != l.name || !f.Leaf() {
				continue
			}
			if lt := f.Type().LogicalType(); lt != nil && lt.Integer != nil && !lt.Integer.IsSigned {
				l.unsigned = true
			}
		}
		leaves[i] = l
	}
	return leaves, nil
}

// decodeRow extracts typed cells from a generic parquet row.
func decodeRow(row pq.Row, leaves []leaf) (map[string]any, error) {
	out := make(map[string]any, len(leaves))
	for _, v := range row {
		col := v.Column()
		if col < 0 || col >= len(leaves) {
			continue
		}
		l := leaves[col]
		if v.IsNull() {
			out[l.name] = nil
			continue
		}
		switch v.Kind() {
		case pq.Boolean:
			out[l.name] = v.Boolean()
		case pq.Int32:
			out[l.name] = int64(v.Int32())
		case pq.Int64:
			if l.unsigned {
				out[l.name] = uint64(v.Int64())
			} else {
				out[l.name] = v.Int64()
			}
		case pq.Float:
			out[l.name] = float64(v.Float())
		case pq.Double:
			out[l.name] = v.Double()
		case pq.ByteArray, pq.FixedLenByteArray:
			if l.vector {
				vec, err := bytesToVector(v.ByteArray())
				if err != nil {
					return nil, fmt.Errorf("column %q: %w", l.name, err)
				}
				out[l.name] = vec
			} else {
				out[l.name] = v.String()
			}
		default:
			return nil, fmt.Errorf("%w: column %q has unsupported physical type %s",
				domain.ErrTypeMismatch, l.name, v.Kind())
		}
	}
	return out, nil
}

// nodeFor picks a parquet schema node from the first non-nil value.
func nodeFor(name string, values []any) (pq.Node, error) {
	for _, v := range values {
		switch v.(type) {
		case nil:
			continue
		case string:
			return pq.String(), nil
		case float64, float32:
			return pq.Leaf(pq.DoubleType), nil
		case int, int64:
			return pq.Int(64), nil
		case uint64:
			return pq.Uint(64), nil
		case bool:
			return pq.Leaf(pq.BooleanType), nil
		case []float32:
			return pq.Leaf(pq.ByteArrayType), nil
		default:
			return nil, fmt.Errorf("%w: column %q holds unsupported type %T",
				domain.ErrTypeMismatch, name, v)
		}
	}
	return nil, fmt.Errorf("%w: column %q has no non-null values to derive a type from",
		domain.ErrTypeMismatch, name)
}

// cellValue converts a table cell to the writer representation.
func cellValue(name string, v any) (any, error) {
	switch c := v.(type) {
	case nil:
		return nil, fmt.Errorf("%w: null cell in column %q", domain.ErrValidation, name)
	case string, float64, int64, uint64, bool:
		return c, nil
	case float32:
		return float64(c), nil
	case int:
		return int64(c), nil
	case []float32:
		return vectorToBytes(c), nil
	}
	return nil, fmt.Errorf("%w: column %q holds unsupported type %T", domain.ErrTypeMismatch, name, v)
}

type fileHandle struct {
	pf   *pq.File
	file *os.File
}

func (h *fileHandle) Close() {
	_ = h.file.Close()
}

func openFile(path string) (*fileHandle, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	stat, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat: %w", err)
	}
	pf, err := pq.OpenFile(f, stat.Size())
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("open parquet: %w", err)
	}
	return &fileHandle{pf: pf, file: f}, nil
}
