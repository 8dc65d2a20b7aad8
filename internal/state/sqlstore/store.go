package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/flyingrobots/vqa-workqueue/internal/state"
	"github.com/flyingrobots/vqa-workqueue/internal/vqerrors"
	"github.com/google/uuid"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx; every query method below
// goes through it so the same method bodies serve plain calls and calls
// made inside WithTx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Store is the database/sql-backed state.State implementation.
type Store struct {
	conn   *sql.DB
	exec   dbtx
	sqlite bool

	taskCache  *state.TTLCache
	auditCache *state.TTLCache
}

// Open opens dsn, selecting the sqlite3 driver for "sqlite:"/"file:" DSNs
// and postgres otherwise, and ensures the schema exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	sqlite := isSQLite(dsn)
	driver := "postgres"
	dataSource := dsn
	if sqlite {
		driver = "sqlite3"
		// mattn/go-sqlite3 parses its own "file:"/query-param DSN syntax
		// (mode=memory, cache=shared, ...); only our own "sqlite://"
		// scheme prefix needs stripping before it reaches the driver.
		dataSource = strings.TrimPrefix(dsn, "sqlite://")
	}

	db, err := sql.Open(driver, dataSource)
	if err != nil {
		return nil, vqerrors.Wrap(vqerrors.KindConfigInvalid, "open state store", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, vqerrors.Wrap(vqerrors.KindConfigInvalid, "ping state store", err)
	}

	s := &Store{
		conn:       db,
		exec:       db,
		sqlite:     sqlite,
		taskCache:  state.NewTTLCache(5 * time.Second),
		auditCache: state.NewTTLCache(5 * time.Second),
	}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func isSQLite(dsn string) bool {
	return strings.HasPrefix(dsn, "sqlite:") || strings.HasPrefix(dsn, "file:")
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements(s.sqlite) {
		if _, err := s.exec.ExecContext(ctx, stmt); err != nil {
			return vqerrors.Wrap(vqerrors.KindConfigInvalid, "apply state schema", err)
		}
	}
	return nil
}

func (s *Store) Close() error { return s.conn.Close() }

// WithTx runs fn against a Store bound to a single *sql.Tx: every call fn
// makes through it commits or rolls back together. The schema's task ->
// process -> audit foreign keys exist to be written atomically within a
// scope like this one.
func (s *Store) WithTx(ctx context.Context, fn func(state.State) error) error {
	if _, nested := s.exec.(*sql.Tx); nested {
		return vqerrors.New(vqerrors.KindStateConflict, "nested WithTx is not supported")
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return vqerrors.Wrap(vqerrors.KindStateConflict, "begin transaction", err)
	}

	txStore := &Store{
		conn:       s.conn,
		exec:       tx,
		sqlite:     s.sqlite,
		taskCache:  s.taskCache,
		auditCache: s.auditCache,
	}

	if err := fn(txStore); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return vqerrors.Wrap(vqerrors.KindStateConflict, "commit transaction", err)
	}
	return nil
}

// rebind rewrites "?"-style placeholders into "$1".."$N" for Postgres.
func (s *Store) rebind(query string) string {
	if s.sqlite {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// jsonParam marshals value for storage. Both dialects accept a JSON string
// as the bound parameter value -- the distinction the original makes
// between native dict params (Postgres) and serialized strings (SQLite)
// collapses to one code path over database/sql.
func jsonParam(value map[string]interface{}) (interface{}, error) {
	if value == nil {
		return nil, nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func decodeJSON(raw sql.NullString) (map[string]interface{}, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(raw.String), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) CreateTask(ctx context.Context, analysisType, status string) (string, error) {
	taskID := uuid.NewString()
	now := time.Now().UTC()
	q := s.rebind(`INSERT INTO tasks (task_id, analysis_type, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`)
	if _, err := s.exec.ExecContext(ctx, q, taskID, analysisType, status, now, now); err != nil {
		return "", vqerrors.Wrap(vqerrors.KindStateConflict, "create task", err)
	}
	s.taskCache.Invalidate(taskID)
	return taskID, nil
}

func (s *Store) UpdateTaskStatus(ctx context.Context, taskID, status string) error {
	q := s.rebind(`UPDATE tasks SET status = ?, updated_at = ? WHERE task_id = ?`)
	res, err := s.exec.ExecContext(ctx, q, status, time.Now().UTC(), taskID)
	if err != nil {
		return vqerrors.Wrap(vqerrors.KindStateConflict, "update task status", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return vqerrors.New(vqerrors.KindNotFound, "task not found: "+taskID)
	}
	s.taskCache.Invalidate(taskID)
	return nil
}

func (s *Store) GetTaskByID(ctx context.Context, taskID string) (*state.Task, error) {
	if cached, ok := s.taskCache.Get(taskID); ok {
		t := cached.(state.Task)
		return &t, nil
	}

	q := s.rebind(`SELECT task_id, analysis_type, status, created_at, updated_at FROM tasks WHERE task_id = ?`)
	row := s.exec.QueryRowContext(ctx, q, taskID)

	var t state.Task
	if err := row.Scan(&t.TaskID, &t.AnalysisType, &t.Status, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, vqerrors.New(vqerrors.KindNotFound, "task not found: "+taskID)
		}
		return nil, vqerrors.Wrap(vqerrors.KindStateConflict, "get task", err)
	}
	s.taskCache.Set(taskID, t)
	return &t, nil
}

func (s *Store) CreateProcess(ctx context.Context, taskID, workerID, initialState string) (string, error) {
	processID := uuid.NewString()
	q := s.rebind(`INSERT INTO processing_state (process_id, task_id, worker_id, state, started_at) VALUES (?, ?, ?, ?, ?)`)
	if _, err := s.exec.ExecContext(ctx, q, processID, taskID, workerID, initialState, time.Now().UTC()); err != nil {
		return "", vqerrors.Wrap(vqerrors.KindStateConflict, "create process", err)
	}
	return processID, nil
}

func (s *Store) UpdateProcess(ctx context.Context, processID, newState string) error {
	var q string
	var args []interface{}
	if state.IsTerminal(newState) {
		q = s.rebind(`UPDATE processing_state SET state = ?, finished_at = ? WHERE process_id = ?`)
		args = []interface{}{newState, time.Now().UTC(), processID}
	} else {
		q = s.rebind(`UPDATE processing_state SET state = ? WHERE process_id = ?`)
		args = []interface{}{newState, processID}
	}
	res, err := s.exec.ExecContext(ctx, q, args...)
	if err != nil {
		return vqerrors.Wrap(vqerrors.KindStateConflict, "update process", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return vqerrors.New(vqerrors.KindNotFound, "process not found: "+processID)
	}
	return nil
}

func (s *Store) GetProcessByID(ctx context.Context, processID string) (*state.Process, error) {
	q := s.rebind(`SELECT process_id, task_id, worker_id, state, started_at, finished_at FROM processing_state WHERE process_id = ?`)
	row := s.exec.QueryRowContext(ctx, q, processID)

	var p state.Process
	var finishedAt sql.NullTime
	if err := row.Scan(&p.ProcessID, &p.TaskID, &p.WorkerID, &p.State, &p.StartedAt, &finishedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, vqerrors.New(vqerrors.KindNotFound, "process not found: "+processID)
		}
		return nil, vqerrors.Wrap(vqerrors.KindStateConflict, "get process", err)
	}
	if finishedAt.Valid {
		p.FinishedAt = &finishedAt.Time
	}
	return &p, nil
}

func (s *Store) LogQAAttempt(ctx context.Context, taskID, stage string, validationResult, failureReasons map[string]interface{}, correctivePromptUsed *string) (string, error) {
	attemptID := uuid.NewString()

	vr, err := jsonParam(validationResult)
	if err != nil {
		return "", err
	}
	fr, err := jsonParam(failureReasons)
	if err != nil {
		return "", err
	}

	q := s.rebind(`INSERT INTO qa_attempts (attempt_id, task_id, qa_stage, validation_result, failure_reasons, corrective_prompt_used, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if _, err := s.exec.ExecContext(ctx, q, attemptID, taskID, stage, vr, fr, correctivePromptUsed, time.Now().UTC()); err != nil {
		return "", vqerrors.Wrap(vqerrors.KindStateConflict, "log qa attempt", err)
	}
	return attemptID, nil
}

func (s *Store) AttemptCountForTask(ctx context.Context, taskID string) (int, error) {
	q := s.rebind(`SELECT COUNT(*) FROM qa_attempts WHERE task_id = ?`)
	var count int
	if err := s.exec.QueryRowContext(ctx, q, taskID).Scan(&count); err != nil {
		return 0, vqerrors.Wrap(vqerrors.KindStateConflict, "count qa attempts", err)
	}
	return count, nil
}

func (s *Store) AppendAudit(ctx context.Context, processID, eventType string, eventData map[string]interface{}) (string, error) {
	logID := uuid.NewString()
	ed, err := jsonParam(eventData)
	if err != nil {
		return "", err
	}

	q := s.rebind(`INSERT INTO audit_logs (log_id, process_id, event_type, event_data, timestamp) VALUES (?, ?, ?, ?, ?)`)
	if _, err := s.exec.ExecContext(ctx, q, logID, processID, eventType, ed, time.Now().UTC()); err != nil {
		return "", vqerrors.Wrap(vqerrors.KindStateConflict, "append audit log", err)
	}
	s.auditCache.Invalidate(processID)
	return logID, nil
}

func (s *Store) ListAudit(ctx context.Context, processID string) ([]state.AuditLogEntry, error) {
	if cached, ok := s.auditCache.Get(processID); ok {
		return cached.([]state.AuditLogEntry), nil
	}

	q := s.rebind(`SELECT log_id, process_id, event_type, event_data, timestamp FROM audit_logs WHERE process_id = ? ORDER BY timestamp ASC`)
	rows, err := s.exec.QueryContext(ctx, q, processID)
	if err != nil {
		return nil, vqerrors.Wrap(vqerrors.KindStateConflict, "list audit logs", err)
	}
	defer rows.Close()

	var out []state.AuditLogEntry
	for rows.Next() {
		var e state.AuditLogEntry
		var raw sql.NullString
		if err := rows.Scan(&e.LogID, &e.ProcessID, &e.EventType, &raw, &e.Timestamp); err != nil {
			return nil, vqerrors.Wrap(vqerrors.KindStateConflict, "scan audit log", err)
		}
		data, err := decodeJSON(raw)
		if err != nil {
			return nil, err
		}
		e.EventData = data
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, vqerrors.Wrap(vqerrors.KindStateConflict, "iterate audit logs", err)
	}

	s.auditCache.Set(processID, out)
	return out, nil
}

var _ state.State = (*Store)(nil)
