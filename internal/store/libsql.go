package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/kylasweb/ivrflow/internal/session"
	"github.com/kylasweb/ivrflow/pkg/schema"
)

// LibSQLArchiver persists terminal sessions in an embedded libSQL database.
type LibSQLArchiver struct {
	db *sql.DB
}

// NewLibSQLArchiver opens a libSQL database at the given path. The path
// should be a file URI, e.g. "file:/var/lib/ivrflow/archive.db".
func NewLibSQLArchiver(dbPath string) (*LibSQLArchiver, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "open libsql").WithCause(err)
	}
	db.SetMaxOpenConns(1)

	// Connection-level PRAGMAs; some return rows, so QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLArchiver{db: db}, nil
}

// Migrate applies any pending schema migrations.
func (a *LibSQLArchiver) Migrate(ctx context.Context) error {
	return runMigrations(ctx, a.db)
}

// Close closes the database.
func (a *LibSQLArchiver) Close() error { return a.db.Close() }

func (a *LibSQLArchiver) Archive(ctx context.Context, s *session.Session) error {
	if !s.Terminal() {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"cannot archive session in status %q", s.Status).WithSession(s.ID)
	}
	rec := recordFrom(s)

	variables, err := nullableJSON(rec.Variables)
	if err != nil {
		return schema.NewError(schema.ErrCodeStore, "marshal variables").WithSession(s.ID).WithCause(err)
	}
	history, err := nullableJSON(rec.History)
	if err != nil {
		return schema.NewError(schema.ErrCodeStore, "marshal history").WithSession(s.ID).WithCause(err)
	}

	_, err = a.db.ExecContext(ctx,
		`INSERT INTO archived_sessions
		   (session_id, call_id, workflow_id, workflow_version, status,
		    variables, history, steps, last_error, started_at, ended_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
		   status=excluded.status, variables=excluded.variables,
		   history=excluded.history, steps=excluded.steps,
		   last_error=excluded.last_error, ended_at=excluded.ended_at`,
		rec.SessionID, rec.CallID, rec.WorkflowID, rec.WorkflowVersion, string(rec.Status),
		variables, history, rec.Steps, rec.LastError, rec.StartedAt, rec.EndedAt,
	)
	if err != nil {
		return schema.NewError(schema.ErrCodeStore, "archive session").WithSession(s.ID).WithCause(err)
	}
	return nil
}

func (a *LibSQLArchiver) Get(ctx context.Context, sessionID string) (*Record, error) {
	row := a.db.QueryRowContext(ctx,
		`SELECT session_id, call_id, workflow_id, workflow_version, status,
		        variables, history, steps, last_error, started_at, ended_at
		   FROM archived_sessions WHERE session_id = ?`, sessionID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "archived session %q not found", sessionID)
	}
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "load archived session").WithCause(err)
	}
	return rec, nil
}

func (a *LibSQLArchiver) ListByWorkflow(ctx context.Context, workflowID string, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := a.db.QueryContext(ctx,
		`SELECT session_id, call_id, workflow_id, workflow_version, status,
		        variables, history, steps, last_error, started_at, ended_at
		   FROM archived_sessions WHERE workflow_id = ?
		  ORDER BY ended_at DESC LIMIT ?`, workflowID, limit)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "list archived sessions").WithCause(err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, schema.NewError(schema.ErrCodeStore, "scan archived session").WithCause(err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "list archived sessions").WithCause(err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	rec := &Record{}
	var status string
	var variables, history, lastError sql.NullString
	err := row.Scan(&rec.SessionID, &rec.CallID, &rec.WorkflowID, &rec.WorkflowVersion,
		&status, &variables, &history, &rec.Steps, &lastError, &rec.StartedAt, &rec.EndedAt)
	if err != nil {
		return nil, err
	}
	rec.Status = schema.SessionStatus(status)
	rec.LastError = lastError.String
	if variables.Valid && variables.String != "" {
		if err := json.Unmarshal([]byte(variables.String), &rec.Variables); err != nil {
			return nil, err
		}
	}
	if history.Valid && history.String != "" {
		if err := json.Unmarshal([]byte(history.String), &rec.History); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

func nullableJSON(v any) (sql.NullString, error) {
	switch t := v.(type) {
	case map[string]any:
		if len(t) == 0 {
			return sql.NullString{}, nil
		}
	case []schema.HistoryEntry:
		if len(t) == 0 {
			return sql.NullString{}, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

var _ Archiver = (*LibSQLArchiver)(nil)
