package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"watchbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// timeLayout has fixed-width fractions so text order matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type sqliteStore struct {
	db    *sql.DB
	log   logx.Logger
	limit int
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for sqlite driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log, limit: historyLimit(cfg)}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Driver() string { return "sqlite" }

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) AppendDelivery(ctx context.Context, d Delivery) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if d.At.IsZero() {
		d.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO deliveries(id, at, provider, recipient, action, status, attempts, err, took_ms, preview)
		 VALUES(?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET status=excluded.status, attempts=excluded.attempts, err=excluded.err, took_ms=excluded.took_ms`,
		d.ID, d.At.UTC().Format(timeLayout), d.Provider, d.Recipient, d.Action, d.Status,
		d.Attempts, nullStr(d.Error), d.TookMS, nullStr(d.Preview),
	)
	return err
}

func (s *sqliteStore) RecentDeliveries(ctx context.Context, limit int) ([]Delivery, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, at, provider, recipient, action, status, attempts, err, took_ms, preview
		 FROM deliveries ORDER BY at DESC, rowid DESC LIMIT ?`, clampLimit(limit, s.limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Delivery
	for rows.Next() {
		var (
			d       Delivery
			at      string
			errText sql.NullString
			preview sql.NullString
		)
		if err := rows.Scan(&d.ID, &at, &d.Provider, &d.Recipient, &d.Action, &d.Status,
			&d.Attempts, &errText, &d.TookMS, &preview); err != nil {
			return nil, err
		}
		d.At, _ = time.Parse(timeLayout, at)
		d.Error = errText.String
		d.Preview = preview.String
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *sqliteStore) PutDedup(ctx context.Context, key string, until time.Time) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dedup(key, until) VALUES(?,?)
		 ON CONFLICT(key) DO UPDATE SET until=excluded.until`,
		key, until.UnixMilli(),
	)
	return err
}

func (s *sqliteStore) GetDedup(ctx context.Context, key string) (time.Time, bool, error) {
	if s == nil || s.db == nil {
		return time.Time{}, false, ErrDisabled
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return time.Time{}, false, nil
	}
	var ms int64
	err := s.db.QueryRowContext(ctx, `SELECT until FROM dedup WHERE key = ?`, key).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return time.UnixMilli(ms), true, nil
}

func (s *sqliteStore) PruneDedup(ctx context.Context, now time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM dedup WHERE until < ?`, now.UnixMilli())
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
