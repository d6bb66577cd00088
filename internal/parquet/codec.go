// Package parquet reads and writes block event partitions in the parquet format published
// by Xatu, using an embedded in-memory DuckDB.
package parquet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/malbeclabs/blockprop/internal/dataset"
)

var (
	ErrMissingColumn = errors.New("missing required column")
)

const timestampTZ = "TIMESTAMP WITH TIME ZONE"

var requiredColumns = []string{
	dataset.ColumnSlot,
	dataset.ColumnEpoch,
	dataset.ColumnEventTime,
	dataset.ColumnPropagationMs,
}

// Codec decodes and encodes partitions. It is safe for concurrent use.
type Codec struct {
	log *slog.Logger
	db  *sql.DB
	seq atomic.Uint64
}

func NewCodec(log *slog.Logger) (*Codec, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &Codec{log: log, db: db}, nil
}

func (c *Codec) Close() error {
	return c.db.Close()
}

// Decode parses an in-memory parquet payload.
func (c *Codec) Decode(ctx context.Context, data []byte) (*dataset.Frame, error) {
	tmp, err := os.CreateTemp("", "blockprop-*.parquet")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to close temp file: %w", err)
	}
	return c.DecodeFile(ctx, tmp.Name())
}

// DecodeFile reads the parquet file at path into a Frame. Known label columns are kept with
// their stored encoding (BLOB columns stay binary); unknown columns are ignored. Rows with a
// null required value are dropped. Event times are returned in UTC.
func (c *Codec) DecodeFile(ctx context.Context, path string) (*dataset.Frame, error) {
	source := fmt.Sprintf("read_parquet(%s)", quote(path))

	columns, err := c.describe(ctx, source)
	if err != nil {
		return nil, err
	}
	for _, name := range requiredColumns {
		if _, ok := columns[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
	}

	var labels []dataset.ColumnSchema
	for _, field := range dataset.KnownFields {
		typ, ok := columns[string(field)]
		if !ok {
			continue
		}
		enc := dataset.EncodingText
		if typ == "BLOB" {
			enc = dataset.EncodingBinary
		}
		labels = append(labels, dataset.ColumnSchema{Field: field, Encoding: enc})
	}

	selects := []string{
		fmt.Sprintf("CAST(%s AS BIGINT)", dataset.ColumnSlot),
		fmt.Sprintf("CAST(%s AS BIGINT)", dataset.ColumnEpoch),
		eventTimeExpr(columns[dataset.ColumnEventTime]),
		fmt.Sprintf("CAST(%s AS DOUBLE)", dataset.ColumnPropagationMs),
	}
	for _, l := range labels {
		if l.Encoding == dataset.EncodingBinary {
			selects = append(selects, string(l.Field))
		} else {
			selects = append(selects, fmt.Sprintf("CAST(%s AS VARCHAR)", l.Field))
		}
	}
	var notNull []string
	for _, name := range requiredColumns {
		notNull = append(notNull, name+" IS NOT NULL")
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s",
		strings.Join(selects, ", "), source, strings.Join(notNull, " AND "))

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query parquet file: %w", err)
	}
	defer rows.Close()

	f := dataset.NewFrame()
	for _, l := range labels {
		if l.Encoding == dataset.EncodingBinary {
			f.Labels[l.Field] = &dataset.LabelColumn{Binary: [][]byte{}}
		} else {
			f.Labels[l.Field] = &dataset.LabelColumn{Text: []string{}}
		}
	}

	var (
		slot, epoch int64
		eventTimeUs int64
		propagation float64
	)
	text := make([]sql.NullString, len(labels))
	binary := make([][]byte, len(labels))
	dest := []any{&slot, &epoch, &eventTimeUs, &propagation}
	for i, l := range labels {
		if l.Encoding == dataset.EncodingBinary {
			dest = append(dest, &binary[i])
		} else {
			dest = append(dest, &text[i])
		}
	}

	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		f.Slot = append(f.Slot, slot)
		f.Epoch = append(f.Epoch, epoch)
		f.EventTime = append(f.EventTime, time.UnixMicro(eventTimeUs).UTC())
		f.PropagationMs = append(f.PropagationMs, propagation)
		for i, l := range labels {
			col := f.Labels[l.Field]
			if l.Encoding == dataset.EncodingBinary {
				col.Binary = append(col.Binary, append([]byte(nil), binary[i]...))
			} else {
				col.Text = append(col.Text, text[i].String)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}

	c.log.Debug("parquet: decoded file", "path", path, "rows", f.NumRows(), "labels", len(labels))
	return f, nil
}

// eventTimeExpr selects the event time as microseconds since the Unix epoch. Zoned timestamps
// are absolute instants and must not pass through a cast to TIMESTAMP, which renders them in
// the session time zone.
func eventTimeExpr(typ string) string {
	if typ == timestampTZ {
		return fmt.Sprintf("epoch_us(%s)", dataset.ColumnEventTime)
	}
	return fmt.Sprintf("epoch_us(CAST(%s AS TIMESTAMP))", dataset.ColumnEventTime)
}

func (c *Codec) describe(ctx context.Context, source string) (map[string]string, error) {
	rows, err := c.db.QueryContext(ctx, "DESCRIBE SELECT * FROM "+source)
	if err != nil {
		return nil, fmt.Errorf("failed to describe parquet file: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get describe columns: %w", err)
	}

	columns := make(map[string]string)
	for rows.Next() {
		var name, typ string
		dest := []any{&name, &typ}
		for range len(cols) - 2 {
			var skip any
			dest = append(dest, &skip)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan describe row: %w", err)
		}
		columns[name] = typ
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read describe rows: %w", err)
	}
	return columns, nil
}

// EncodeFile writes f to path as a parquet file with the same column layout Xatu publishes.
func (c *Codec) EncodeFile(ctx context.Context, path string, f *dataset.Frame) error {
	if err := f.Validate(); err != nil {
		return fmt.Errorf("failed to validate frame: %w", err)
	}

	conn, err := c.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	table := fmt.Sprintf("blockprop_export_%d", c.seq.Add(1))
	schema := f.Schema()

	defs := []string{
		dataset.ColumnSlot + " BIGINT",
		dataset.ColumnEpoch + " BIGINT",
		dataset.ColumnEventTime + " TIMESTAMP",
		dataset.ColumnPropagationMs + " DOUBLE",
	}
	names := append([]string(nil), requiredColumns...)
	for _, col := range schema {
		typ := "VARCHAR"
		if col.Encoding == dataset.EncodingBinary {
			typ = "BLOB"
		}
		defs = append(defs, fmt.Sprintf("%s %s", col.Field, typ))
		names = append(names, string(col.Field))
	}

	if _, err := conn.ExecContext(ctx, fmt.Sprintf("CREATE TEMP TABLE %s (%s)", table, strings.Join(defs, ", "))); err != nil {
		return fmt.Errorf("failed to create export table: %w", err)
	}
	defer func() {
		if _, err := conn.ExecContext(context.WithoutCancel(ctx), "DROP TABLE IF EXISTS "+table); err != nil {
			c.log.Error("parquet: failed to drop export table", "table", table, "error", err)
		}
	}()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			c.log.Error("parquet: failed to rollback transaction", "error", err)
		}
	}()

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(names, ", "), placeholders))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	args := make([]any, len(names))
	for i := range f.NumRows() {
		args[0] = f.Slot[i]
		args[1] = f.Epoch[i]
		args[2] = f.EventTime[i].UTC()
		args[3] = f.PropagationMs[i]
		for j, col := range schema {
			lc := f.Labels[col.Field]
			if col.Encoding == dataset.EncodingBinary {
				args[4+j] = lc.Binary[i]
			} else {
				args[4+j] = lc.Text[i]
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to insert row %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	if _, err := conn.ExecContext(ctx, fmt.Sprintf("COPY %s TO %s (FORMAT PARQUET)", table, quote(path))); err != nil {
		return fmt.Errorf("failed to copy to parquet: %w", err)
	}
	return nil
}

// Encode returns f as parquet bytes.
func (c *Codec) Encode(ctx context.Context, f *dataset.Frame) ([]byte, error) {
	dir, err := os.MkdirTemp("", "blockprop-encode-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "frame.parquet")
	if err := c.EncodeFile(ctx, path, f); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read encoded file: %w", err)
	}
	return data, nil
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
