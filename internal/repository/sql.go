package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	apperrors "github.com/callpath-core/pkg/errors"
	"github.com/callpath-core/pkg/model"
)

// Dialect selects the bind-parameter style of raw SQL statements.
type Dialect int

const (
	DialectQuestion Dialect = iota // mysql, sqlite: ?
	DialectDollar                  // postgres: $1, $2, ...
)

// DialectFor returns the dialect of a database type name.
func DialectFor(dbType string) Dialect {
	if typ, _ := ParseDBType(dbType); typ == DBTypePostgres {
		return DialectDollar
	}
	return DialectQuestion
}

func (d Dialect) bind(n int) string {
	if d == DialectDollar {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

var traceColumns = []string{
	"run_id", "correlation_id", "kind", "host_node_id", "node_id",
	"device_id", "stream_id", "start_ns", "end_ns", "bytes",
}

// SQLTraceRepository implements TraceRepository on database/sql with
// multi-row INSERT statements, bypassing the ORM on the hot write path.
type SQLTraceRepository struct {
	db      *sql.DB
	dialect Dialect
	batch   int
}

// NewSQLTraceRepository creates a new SQLTraceRepository.
func NewSQLTraceRepository(db *sql.DB, dialect Dialect) *SQLTraceRepository {
	return &SQLTraceRepository{db: db, dialect: dialect, batch: traceBatchSize}
}

// insertQuery returns an INSERT for rows records.
func (r *SQLTraceRepository) insertQuery(rows int) string {
	var b strings.Builder
	b.WriteString("INSERT INTO activity_trace (")
	b.WriteString(strings.Join(traceColumns, ", "))
	b.WriteString(") VALUES ")
	n := 1
	for i := 0; i < rows; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j := range traceColumns {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(r.dialect.bind(n))
			n++
		}
		b.WriteByte(')')
	}
	return b.String()
}

// AppendTrace inserts records in one transaction.
func (r *SQLTraceRepository) AppendTrace(ctx context.Context, records []model.TraceRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeDatabaseError, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	for start := 0; start < len(records); start += r.batch {
		chunk := records[start:min(start+r.batch, len(records))]
		args := make([]interface{}, 0, len(chunk)*len(traceColumns))
		for i := range chunk {
			t := &chunk[i]
			args = append(args,
				t.RunID, t.CorrelationID, t.Kind, t.HostNodeID, t.NodeID,
				t.DeviceID, t.StreamID, t.Start, t.End, t.Bytes,
			)
		}
		if _, err := tx.ExecContext(ctx, r.insertQuery(len(chunk)), args...); err != nil {
			return apperrors.Wrap(apperrors.CodeDatabaseError, "failed to append trace", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(apperrors.CodeDatabaseError, "failed to commit trace", err)
	}
	return nil
}

// CountTraces returns the number of records stored for a run.
func (r *SQLTraceRepository) CountTraces(ctx context.Context, runID int64) (int64, error) {
	query := "SELECT COUNT(*) FROM activity_trace WHERE run_id = " + r.dialect.bind(1)

	var n int64
	if err := r.db.QueryRowContext(ctx, query, runID).Scan(&n); err != nil {
		return 0, apperrors.Wrap(apperrors.CodeDatabaseError, "failed to count traces", err)
	}
	return n, nil
}

// ListTraces returns up to limit records of a run ordered by start time.
func (r *SQLTraceRepository) ListTraces(ctx context.Context, runID int64, limit int) ([]model.TraceRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM activity_trace
		WHERE run_id = %s
		ORDER BY start_ns ASC, id ASC
		LIMIT %s
	`, strings.Join(traceColumns, ", "), r.dialect.bind(1), r.dialect.bind(2))

	rows, err := r.db.QueryContext(ctx, query, runID, limit)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDatabaseError, "failed to query traces", err)
	}
	defer rows.Close()

	var out []model.TraceRecord
	for rows.Next() {
		var t model.TraceRecord
		if err := rows.Scan(
			&t.RunID, &t.CorrelationID, &t.Kind, &t.HostNodeID, &t.NodeID,
			&t.DeviceID, &t.StreamID, &t.Start, &t.End, &t.Bytes,
		); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeDatabaseError, "failed to scan trace", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDatabaseError, "failed to read traces", err)
	}
	return out, nil
}
