package sink

import (
	"context"
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rizalgowandy/duckdb/pkg/errors"
	"go.uber.org/zap"
)

// Conn is the subset of *pgxpool.Pool the Postgres writer uses.
type Conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error)
	Close()
}

// PostgresWriter appends each batch to a table with COPY FROM STDIN.
type PostgresWriter struct {
	conn   Conn
	table  pgx.Identifier
	create bool
	logger *zap.Logger

	ctx     context.Context
	columns []string
	records int64
}

// NewPostgres connects to opts.PostgresDSN.
func NewPostgres(ctx context.Context, opts Options) (*PostgresWriter, error) {
	if opts.PostgresDSN == "" || opts.Table == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "postgres output requires a DSN and a table")
	}
	cfg, err := pgxpool.ParseConfig(opts.PostgresDSN)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid postgres DSN")
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to connect to postgres")
	}
	return NewPostgresWithConn(ctx, pool, opts), nil
}

// NewPostgresWithConn returns a writer over an existing connection, which
// it closes on Close.
func NewPostgresWithConn(ctx context.Context, conn Conn, opts Options) *PostgresWriter {
	return &PostgresWriter{
		conn:   conn,
		table:  splitTable(opts.Table),
		create: opts.CreateTable,
		logger: opts.Logger,
		ctx:    ctx,
	}
}

// splitTable turns "schema.table" into a qualified identifier.
func splitTable(name string) pgx.Identifier {
	return pgx.Identifier(strings.Split(name, "."))
}

func (w *PostgresWriter) Begin(schema *arrow.Schema) error {
	w.columns = make([]string, schema.NumFields())
	for i, f := range schema.Fields() {
		w.columns[i] = f.Name
	}
	if !w.create {
		return nil
	}
	ddl, err := createTableSQL(w.table, schema)
	if err != nil {
		return err
	}
	if _, err := w.conn.Exec(w.ctx, ddl); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create table").
			WithDetail("table", w.table.Sanitize())
	}
	w.logger.Info("created output table", zap.String("table", w.table.Sanitize()))
	return nil
}

func (w *PostgresWriter) Write(ctx context.Context, rec arrow.Record) error {
	cols := rec.Columns()
	n, err := w.conn.CopyFrom(ctx, w.table, w.columns, pgx.CopyFromSlice(int(rec.NumRows()), func(i int) ([]any, error) {
		row := make([]any, len(cols))
		for c, arr := range cols {
			row[c] = pgValue(arr, i)
		}
		return row, nil
	}))
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "copy into postgres failed").
			WithDetail("table", w.table.Sanitize())
	}
	w.records += n
	return nil
}

func (w *PostgresWriter) Close() error {
	w.conn.Close()
	w.logger.Debug("postgres output closed", zap.Int64("rows", w.records))
	return nil
}

func createTableSQL(table pgx.Identifier, schema *arrow.Schema) (string, error) {
	defs := make([]string, schema.NumFields())
	for i, f := range schema.Fields() {
		t, err := pgType(f.Type)
		if err != nil {
			return "", err
		}
		defs[i] = pgx.Identifier{f.Name}.Sanitize() + " " + t
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", table.Sanitize(), strings.Join(defs, ", ")), nil
}

func pgType(t arrow.DataType) (string, error) {
	switch t.ID() {
	case arrow.BOOL:
		return "BOOLEAN", nil
	case arrow.INT32:
		return "INTEGER", nil
	case arrow.INT64:
		return "BIGINT", nil
	case arrow.FLOAT64:
		return "DOUBLE PRECISION", nil
	case arrow.DATE32:
		return "DATE", nil
	case arrow.TIME64:
		return "TIME", nil
	case arrow.TIMESTAMP:
		return "TIMESTAMP", nil
	case arrow.STRING, arrow.NULL:
		return "TEXT", nil
	default:
		return "", errors.Newf(errors.ErrorTypeConfig, "no postgres type for %s", t)
	}
}

// pgValue converts row i of arr to a value pgx can encode.
func pgValue(arr arrow.Array, i int) any {
	if arr.IsNull(i) {
		return nil
	}
	switch a := arr.(type) {
	case *array.Boolean:
		return a.Value(i)
	case *array.Int32:
		return a.Value(i)
	case *array.Int64:
		return a.Value(i)
	case *array.Float64:
		return a.Value(i)
	case *array.String:
		return a.Value(i)
	case *array.Date32:
		return a.Value(i).ToTime()
	case *array.Timestamp:
		return a.Value(i).ToTime(a.DataType().(*arrow.TimestampType).Unit)
	case *array.Time64:
		us := int64(a.Value(i))
		if a.DataType().(*arrow.Time64Type).Unit == arrow.Nanosecond {
			us /= 1000
		}
		return pgtype.Time{Microseconds: us, Valid: true}
	default:
		return nil
	}
}
