package executor

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"time"

	apperrors "session-insights/internal/common/errors"
	"session-insights/internal/common/logger"
	"session-insights/internal/common/metrics"
	"session-insights/internal/query"
)

var (
	ErrUntrustedStatement = errors.New("UNTRUSTED_STATEMENT")
	ErrQueryFailed        = errors.New("QUERY_EXECUTION_FAILED")
	ErrQueryTimeout       = errors.New("QUERY_TIMEOUT")
)

// Executor runs trusted statements. The orchestrator depends on this
// interface so tests can count calls.
type Executor interface {
	Execute(ctx context.Context, stmt query.Statement) (*query.ResultSet, error)
}

type Config struct {
	Timeout time.Duration
	MaxRows int
}

// SQL executes statements against a database/sql pool (lib/pq or sqlite).
type SQL struct {
	db      *sql.DB
	timeout time.Duration
	maxRows int
	logger  logger.Logger
}

func NewSQL(db *sql.DB, cfg Config, log logger.Logger) *SQL {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = 1000
	}
	return &SQL{
		db:      db,
		timeout: cfg.Timeout,
		maxRows: cfg.MaxRows,
		logger:  logger.Named(log, "executor"),
	}
}

// Execute runs one read with a per-call timeout. Rows beyond MaxRows are
// dropped and the result is marked Truncated.
func (e *SQL) Execute(ctx context.Context, stmt query.Statement) (*query.ResultSet, error) {
	if stmt.IsZero() {
		return nil, ErrUntrustedStatement
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		metrics.QueryDuration.WithLabelValues(string(stmt.Origin())).Observe(time.Since(start).Seconds())
	}()

	rows, err := e.db.QueryContext(ctx, stmt.Text(), stmt.Params()...)
	if err != nil {
		return nil, e.wrap(ctx, stmt, err)
	}
	defer rows.Close()

	rs, err := scan(rows, e.maxRows)
	if err != nil {
		return nil, e.wrap(ctx, stmt, err)
	}

	e.logger.Debug("statement executed", map[string]interface{}{
		"origin":    stmt.Origin(),
		"rows":      len(rs.Rows),
		"truncated": rs.Truncated,
		"duration":  time.Since(start).String(),
	})
	return rs, nil
}

// wrap reports err as a StandardError that still matches ErrQueryFailed or
// ErrQueryTimeout under errors.Is.
func (e *SQL) wrap(ctx context.Context, stmt query.Statement, err error) error {
	origin := string(stmt.Origin())
	if ctx.Err() == context.DeadlineExceeded {
		e.logger.Warn("statement timed out", map[string]interface{}{
			"origin":  origin,
			"timeout": e.timeout.String(),
		})
		return apperrors.NewQueryTimeoutError(origin).WithCause(ErrQueryTimeout)
	}
	e.logger.Error("statement failed", map[string]interface{}{
		"origin": origin,
		"error":  err.Error(),
	})
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return apperrors.NewDatabaseConnectionError(err).WithCause(ErrQueryFailed)
	}
	return apperrors.NewDataAccessError(origin, err).WithCause(ErrQueryFailed)
}

func scan(rows *sql.Rows, maxRows int) (*query.ResultSet, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	rs := &query.ResultSet{Columns: cols, Rows: []query.Row{}}
	for rows.Next() {
		if len(rs.Rows) >= maxRows {
			rs.Truncated = true
			break
		}
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := make(query.Row, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		rs.Rows = append(rs.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rs, nil
}
