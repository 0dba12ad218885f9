package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Драйвер Postgres
	"github.com/xela07ax/gridrules/internal/domain"
)

const verdictColumns = 10

// maxBatchRows держит вставку в пределах 65535 параметров Postgres
const maxBatchRows = 65535 / verdictColumns

const schema = `
CREATE TABLE IF NOT EXISTS verdicts (
	id          UUID PRIMARY KEY,
	trace_id    TEXT NOT NULL,
	env_id      TEXT NOT NULL,
	step        BIGINT NOT NULL,
	rules       TEXT NOT NULL,
	legal       BOOLEAN NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	action      JSONB NOT NULL,
	duration_ms BIGINT NOT NULL,
	timestamp   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS verdicts_env_step_idx ON verdicts (env_id, step);`

// VerdictRepo — журнал вердиктов в PostgreSQL
type VerdictRepo struct {
	db *sql.DB
}

// Open подключается через pgx stdlib
func Open(connString string, maxConns, minConns int) (*sql.DB, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(minConns)
	db.SetConnMaxLifetime(5 * time.Minute)
	return db, nil
}

func NewVerdictRepo(db *sql.DB) *VerdictRepo {
	return &VerdictRepo{db: db}
}

func (r *VerdictRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Migrate создает таблицу журнала, если её нет
func (r *VerdictRepo) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

// WriteBatch реализует audit.Storage пакетными вставками по maxBatchRows строк.
func (r *VerdictRepo) WriteBatch(ctx context.Context, verdicts []domain.Verdict) error {
	for len(verdicts) > 0 {
		n := min(len(verdicts), maxBatchRows)
		if err := r.insert(ctx, verdicts[:n]); err != nil {
			return err
		}
		verdicts = verdicts[n:]
	}
	return nil
}

func (r *VerdictRepo) insert(ctx context.Context, verdicts []domain.Verdict) error {

	var placeholders strings.Builder
	vals := make([]any, 0, len(verdicts)*verdictColumns)

	for i, v := range verdicts {
		if i > 0 {
			placeholders.WriteString(", ")
		}
		p := i * verdictColumns
		fmt.Fprintf(&placeholders, "($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			p+1, p+2, p+3, p+4, p+5, p+6, p+7, p+8, p+9, p+10)

		action, err := json.Marshal(v.Action)
		if err != nil {
			return fmt.Errorf("postgres: marshal action %s: %w", v.ID, err)
		}

		vals = append(vals,
			v.ID, v.TraceID, v.EnvID, v.Step, v.Rules,
			v.Legal, v.Error, action, v.DurationMs, v.Timestamp,
		)
	}

	query := "INSERT INTO verdicts (id, trace_id, env_id, step, rules, legal, error, action, duration_ms, timestamp) VALUES " +
		placeholders.String()

	if _, err := r.db.ExecContext(ctx, query, vals...); err != nil {
		return fmt.Errorf("postgres: write verdicts: %w", err)
	}
	return nil
}

// ListByEnv возвращает последние вердикты окружения, новые первыми.
func (r *VerdictRepo) ListByEnv(ctx context.Context, envID string, limit int) ([]domain.Verdict, error) {
	query := `
		SELECT id, trace_id, env_id, step, rules, legal, error, action, duration_ms, timestamp
		FROM verdicts
		WHERE env_id = $1
		ORDER BY timestamp DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, envID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list verdicts: %w", err)
	}
	defer rows.Close()

	var out []domain.Verdict
	for rows.Next() {
		var (
			v      domain.Verdict
			action []byte
		)
		if err := rows.Scan(&v.ID, &v.TraceID, &v.EnvID, &v.Step, &v.Rules, &v.Legal, &v.Error, &action, &v.DurationMs, &v.Timestamp); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(action, &v.Action); err != nil {
			return nil, fmt.Errorf("postgres: decode action %s: %w", v.ID, err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
