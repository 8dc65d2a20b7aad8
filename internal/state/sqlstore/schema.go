// Package sqlstore implements state.State over database/sql, selecting
// between lib/pq (Postgres) and mattn/go-sqlite3 (SQLite) by DSN prefix --
// the Go analogue of the original's _is_sqlite() switch.
package sqlstore

// schemaStatements returns the DDL for the four append-only tables. JSON
// columns are TEXT on SQLite and JSONB on Postgres; both dialects accept a
// marshaled JSON string as the bound parameter.
func schemaStatements(sqlite bool) []string {
	jsonType := "JSONB"
	if sqlite {
		jsonType = "TEXT"
	}
	return []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			task_id TEXT PRIMARY KEY,
			analysis_type TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS ix_tasks_status ON tasks(status)`,
		`CREATE TABLE IF NOT EXISTS processing_state (
			process_id TEXT PRIMARY KEY,
			task_id TEXT NOT NULL REFERENCES tasks(task_id) ON DELETE CASCADE,
			worker_id TEXT NOT NULL,
			state TEXT NOT NULL,
			started_at TIMESTAMP NOT NULL,
			finished_at TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS ix_processing_state_task_id ON processing_state(task_id)`,
		`CREATE TABLE IF NOT EXISTS qa_attempts (
			attempt_id TEXT PRIMARY KEY,
			task_id TEXT NOT NULL REFERENCES tasks(task_id) ON DELETE CASCADE,
			qa_stage TEXT NOT NULL,
			validation_result ` + jsonType + ` NOT NULL,
			failure_reasons ` + jsonType + `,
			corrective_prompt_used TEXT,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS ix_qa_attempts_task_stage ON qa_attempts(task_id, qa_stage)`,
		`CREATE TABLE IF NOT EXISTS audit_logs (
			log_id TEXT PRIMARY KEY,
			process_id TEXT NOT NULL REFERENCES processing_state(process_id) ON DELETE CASCADE,
			event_type TEXT NOT NULL,
			event_data ` + jsonType + `,
			timestamp TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS ix_audit_logs_process_id ON audit_logs(process_id)`,
	}
}
