// Package tracker archives usage events in SQLite so reports survive the
// rotation of the assistant's own logs.
package tracker

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/pario-ai/ccmeter/pkg/models"
)

// Tracker stores and queries archived usage events.
type Tracker interface {
	// Record archives events, ignoring ones already present, as one batch.
	Record(ctx context.Context, source string, events []models.UsageEvent) (models.ImportBatch, error)
	// Query returns events with since <= timestamp < until, ascending. Zero
	// bounds are open.
	Query(ctx context.Context, since, until time.Time) ([]models.UsageEvent, error)
	// Stats summarises the archive.
	Stats(ctx context.Context) (models.ArchiveStats, error)
	// Summary returns archived usage grouped by model.
	Summary(ctx context.Context) ([]models.ModelSummary, error)
	// Imports lists import batches, newest first.
	Imports(ctx context.Context) ([]models.ImportBatch, error)
	// Prune deletes events older than before and returns how many were removed.
	Prune(ctx context.Context, before time.Time) (int64, error)
	// Close releases resources.
	Close() error
}

// SQLiteTracker implements Tracker with a SQLite database.
type SQLiteTracker struct {
	db  *sql.DB
	now func() time.Time
}

const createTable = `
CREATE TABLE IF NOT EXISTS usage_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	message_id TEXT NOT NULL,
	request_id TEXT NOT NULL,
	ts INTEGER NOT NULL,
	model TEXT NOT NULL,
	input_tokens INTEGER NOT NULL,
	output_tokens INTEGER NOT NULL,
	cache_creation_tokens INTEGER NOT NULL DEFAULT 0,
	cache_read_tokens INTEGER NOT NULL DEFAULT 0,
	cost_usd REAL,
	session_id TEXT NOT NULL DEFAULT '',
	project_path TEXT NOT NULL DEFAULT '',
	UNIQUE(message_id, request_id)
);
CREATE INDEX IF NOT EXISTS idx_usage_events_ts ON usage_events(ts);
`

const createImportsTable = `
CREATE TABLE IF NOT EXISTS imports (
	id TEXT PRIMARY KEY,
	source TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	inserted INTEGER NOT NULL,
	ignored INTEGER NOT NULL
);
`

// New creates a SQLiteTracker and runs auto-migration.
func New(dbPath string) (*SQLiteTracker, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open tracker db: %w", err)
	}

	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate tracker db: %w", err)
	}

	if _, err := db.Exec(createImportsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate imports table: %w", err)
	}

	// Archives created before batch tagging lack the column.
	if !columnExists(db, "usage_events", "batch_id") {
		if _, err := db.Exec(`ALTER TABLE usage_events ADD COLUMN batch_id TEXT NOT NULL DEFAULT ''`); err != nil {
			db.Close()
			return nil, fmt.Errorf("add batch_id column: %w", err)
		}
	}

	return &SQLiteTracker{db: db, now: time.Now}, nil
}

func columnExists(db *sql.DB, table, column string) bool {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false
	}
	defer rows.Close()
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dflt sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return false
		}
		if name == column {
			return true
		}
	}
	return false
}

// Record archives events in a single transaction. Events whose
// (message id, request id) is already archived are ignored.
func (t *SQLiteTracker) Record(ctx context.Context, source string, events []models.UsageEvent) (models.ImportBatch, error) {
	batch := models.ImportBatch{
		ID:        uuid.NewString(),
		Source:    source,
		CreatedAt: t.now().UTC().Truncate(time.Second),
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return batch, fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO usage_events
		 (message_id, request_id, ts, model, input_tokens, output_tokens,
		  cache_creation_tokens, cache_read_tokens, cost_usd, session_id, project_path, batch_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return batch, fmt.Errorf("prepare import: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		var costUSD sql.NullFloat64
		if ev.CostUSD != nil {
			costUSD = sql.NullFloat64{Float64: *ev.CostUSD, Valid: true}
		}
		res, err := stmt.ExecContext(ctx,
			ev.MessageID, ev.RequestID, ev.Timestamp.UnixNano(), ev.Model,
			ev.Usage.InputTokens, ev.Usage.OutputTokens,
			ev.Usage.CacheCreationInputTokens, ev.Usage.CacheReadInputTokens,
			costUSD, ev.SessionID, ev.ProjectPath, batch.ID,
		)
		if err != nil {
			return batch, fmt.Errorf("record event %s: %w", ev.DedupKey(), err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return batch, fmt.Errorf("record event %s: %w", ev.DedupKey(), err)
		}
		batch.Inserted += n
	}
	batch.Ignored = int64(len(events)) - batch.Inserted

	_, err = tx.ExecContext(ctx,
		`INSERT INTO imports (id, source, created_at, inserted, ignored) VALUES (?, ?, ?, ?, ?)`,
		batch.ID, batch.Source, batch.CreatedAt.Unix(), batch.Inserted, batch.Ignored,
	)
	if err != nil {
		return batch, fmt.Errorf("record import: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return batch, fmt.Errorf("commit import: %w", err)
	}
	return batch, nil
}

// Query returns archived events in [since, until), ascending by timestamp.
func (t *SQLiteTracker) Query(ctx context.Context, since, until time.Time) ([]models.UsageEvent, error) {
	query := `SELECT message_id, request_id, ts, model, input_tokens, output_tokens,
		cache_creation_tokens, cache_read_tokens, cost_usd, session_id, project_path
		FROM usage_events WHERE 1=1`
	var args []any
	if !since.IsZero() {
		query += ` AND ts >= ?`
		args = append(args, since.UnixNano())
	}
	if !until.IsZero() {
		query += ` AND ts < ?`
		args = append(args, until.UnixNano())
	}
	query += ` ORDER BY ts ASC, id ASC`

	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []models.UsageEvent
	for rows.Next() {
		var ev models.UsageEvent
		var ts int64
		var costUSD sql.NullFloat64
		if err := rows.Scan(&ev.MessageID, &ev.RequestID, &ts, &ev.Model,
			&ev.Usage.InputTokens, &ev.Usage.OutputTokens,
			&ev.Usage.CacheCreationInputTokens, &ev.Usage.CacheReadInputTokens,
			&costUSD, &ev.SessionID, &ev.ProjectPath); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Timestamp = time.Unix(0, ts).UTC()
		if costUSD.Valid {
			ev.CostUSD = models.Float(costUSD.Float64)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Stats summarises the archive.
func (t *SQLiteTracker) Stats(ctx context.Context) (models.ArchiveStats, error) {
	var s models.ArchiveStats
	var first, last sql.NullInt64
	err := t.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT NULLIF(session_id, '')), MIN(ts), MAX(ts) FROM usage_events`,
	).Scan(&s.Events, &s.Sessions, &first, &last)
	if err != nil {
		return s, fmt.Errorf("archive stats: %w", err)
	}
	if first.Valid {
		s.FirstEvent = time.Unix(0, first.Int64).UTC()
	}
	if last.Valid {
		s.LastEvent = time.Unix(0, last.Int64).UTC()
	}
	if err := t.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM imports`).Scan(&s.Imports); err != nil {
		return s, fmt.Errorf("archive stats: %w", err)
	}
	return s, nil
}

// Summary returns archived usage grouped by model.
func (t *SQLiteTracker) Summary(ctx context.Context) ([]models.ModelSummary, error) {
	rows, err := t.db.QueryContext(ctx,
		`SELECT model, COUNT(*), SUM(input_tokens), SUM(output_tokens),
		        SUM(cache_creation_tokens), SUM(cache_read_tokens)
		 FROM usage_events GROUP BY model ORDER BY model`,
	)
	if err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	defer rows.Close()

	var summaries []models.ModelSummary
	for rows.Next() {
		var s models.ModelSummary
		if err := rows.Scan(&s.Model, &s.EventCount, &s.Usage.InputTokens, &s.Usage.OutputTokens,
			&s.Usage.CacheCreationInputTokens, &s.Usage.CacheReadInputTokens); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// Imports lists import batches, newest first.
func (t *SQLiteTracker) Imports(ctx context.Context) ([]models.ImportBatch, error) {
	rows, err := t.db.QueryContext(ctx,
		`SELECT id, source, created_at, inserted, ignored FROM imports ORDER BY created_at DESC, rowid DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list imports: %w", err)
	}
	defer rows.Close()

	var batches []models.ImportBatch
	for rows.Next() {
		var b models.ImportBatch
		var created int64
		if err := rows.Scan(&b.ID, &b.Source, &created, &b.Inserted, &b.Ignored); err != nil {
			return nil, fmt.Errorf("scan import: %w", err)
		}
		b.CreatedAt = time.Unix(created, 0).UTC()
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

// Prune deletes events with a timestamp before the cutoff.
func (t *SQLiteTracker) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := t.db.ExecContext(ctx, `DELETE FROM usage_events WHERE ts < ?`, before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	return res.RowsAffected()
}

// Close releases the database connection.
func (t *SQLiteTracker) Close() error {
	return t.db.Close()
}
