package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cognicore/chainkb/pkg/chainkb/internalerr"
	"github.com/cognicore/chainkb/pkg/chainkb/trace"
)

// Journal implements trace.Journal using SQLite
type Journal struct {
	db *sql.DB
}

// OpenJournal opens a SQLite database with WAL mode enabled.
func OpenJournal(ctx context.Context, path string) (*Journal, error) {
	if path == "" {
		return nil, fmt.Errorf("open journal: empty path: %w", internalerr.ErrInvalidInput)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &Journal{db: db}, nil
}

// Close closes the database connection
func (j *Journal) Close() error {
	return j.db.Close()
}

// initSchema creates tables if they don't exist
func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS events (
	id TEXT PRIMARY KEY,
	seq INTEGER NOT NULL,
	op TEXT NOT NULL,
	kind TEXT NOT NULL,
	item TEXT NOT NULL,
	detail TEXT,
	at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS events_item ON events(item);
CREATE INDEX IF NOT EXISTS events_op ON events(op);
`

	_, err := db.ExecContext(ctx, schema)
	return err
}

// Append inserts events in a single transaction. Events already present
// (same ID) are skipped.
func (j *Journal) Append(ctx context.Context, events []trace.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const stmt = `
INSERT INTO events (id, seq, op, kind, item, detail, at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO NOTHING;
`
	prepared, err := tx.PrepareContext(ctx, stmt)
	if err != nil {
		return err
	}
	defer prepared.Close()

	for _, ev := range events {
		if ev.ID == "" {
			return fmt.Errorf("append event %d: missing id: %w", ev.Seq, internalerr.ErrInvalidInput)
		}
		_, err := prepared.ExecContext(ctx,
			ev.ID,
			int64(ev.Seq),
			string(ev.Op),
			ev.Kind,
			ev.Item,
			ev.Detail,
			ev.At.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("append event %s: %w", ev.ID, err)
		}
	}

	return tx.Commit()
}

// Events lists events in ID order (ULIDs sort by time)
func (j *Journal) Events(ctx context.Context, f trace.Filter) ([]trace.Event, error) {
	query := `SELECT id, seq, op, kind, item, detail, at FROM events WHERE 1=1`
	var args []interface{}
	if f.Op != "" {
		query += ` AND op = ?`
		args = append(args, string(f.Op))
	}
	if f.Item != "" {
		query += ` AND item = ?`
		args = append(args, f.Item)
	}
	query += ` ORDER BY id`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []trace.Event
	for rows.Next() {
		var (
			ev     trace.Event
			seq    int64
			op     string
			detail sql.NullString
			at     string
		)
		if err := rows.Scan(&ev.ID, &seq, &op, &ev.Kind, &ev.Item, &detail, &at); err != nil {
			return nil, err
		}
		ev.Seq = uint64(seq)
		ev.Op = trace.Op(op)
		ev.Detail = detail.String
		if parsed, err := time.Parse(time.RFC3339Nano, at); err == nil {
			ev.At = parsed
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Stats counts events per operation and finds the most frequently touched items
func (j *Journal) Stats(ctx context.Context) (trace.Stats, error) {
	stats := trace.Stats{ByOp: make(map[trace.Op]int64)}

	if err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&stats.Total); err != nil {
		return trace.Stats{}, err
	}

	rows, err := j.db.QueryContext(ctx, `SELECT op, COUNT(*) FROM events GROUP BY op`)
	if err != nil {
		return trace.Stats{}, err
	}
	for rows.Next() {
		var (
			op string
			n  int64
		)
		if err := rows.Scan(&op, &n); err != nil {
			rows.Close()
			return trace.Stats{}, err
		}
		stats.ByOp[trace.Op(op)] = n
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return trace.Stats{}, err
	}
	if err := rows.Close(); err != nil {
		return trace.Stats{}, err
	}

	const topQuery = `
SELECT item, COUNT(*) AS n FROM events
GROUP BY item
ORDER BY n DESC, item ASC
LIMIT ?
`
	rows, err = j.db.QueryContext(ctx, topQuery, topItems)
	if err != nil {
		return trace.Stats{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var ic trace.ItemCount
		if err := rows.Scan(&ic.Item, &ic.Count); err != nil {
			return trace.Stats{}, err
		}
		stats.TopItems = append(stats.TopItems, ic)
	}
	return stats, rows.Err()
}

const topItems = 10

var _ trace.Journal = (*Journal)(nil)
