//go:build sqlite
// +build sqlite

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

	logx "jobd/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
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

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) PutJob(ctx context.Context, id int64, header []byte) error {
	return s.put(ctx, "jobs", id, header)
}

func (s *sqliteStore) DeleteJob(ctx context.Context, id int64) error {
	return s.del(ctx, "jobs", id)
}

func (s *sqliteStore) ListJobs(ctx context.Context) (map[int64][]byte, error) {
	return s.list(ctx, "jobs")
}

func (s *sqliteStore) PutSchedule(ctx context.Context, id int64, header []byte) error {
	return s.put(ctx, "schedules", id, header)
}

func (s *sqliteStore) DeleteSchedule(ctx context.Context, id int64) error {
	return s.del(ctx, "schedules", id)
}

func (s *sqliteStore) ListSchedules(ctx context.Context) (map[int64][]byte, error) {
	return s.list(ctx, "schedules")
}

func (s *sqliteStore) SetLastScheduleID(ctx context.Context, id int64) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO meta(key, value) VALUES('last_schedule_id', ?)
		 ON CONFLICT(key) DO UPDATE SET value = MAX(value, excluded.value)`,
		id,
	)
	return err
}

func (s *sqliteStore) LastScheduleID(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	var v int64
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM meta WHERE key = 'last_schedule_id'`).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return v, nil
}

func (s *sqliteStore) put(ctx context.Context, table string, id int64, header []byte) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO `+table+`(id, header) VALUES(?,?)
		 ON CONFLICT(id) DO UPDATE SET header=excluded.header`,
		id, string(header),
	)
	return err
}

func (s *sqliteStore) del(ctx context.Context, table string, id int64) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id)
	return err
}

func (s *sqliteStore) list(ctx context.Context, table string) (map[int64][]byte, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, header FROM `+table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[int64][]byte{}
	for rows.Next() {
		var id int64
		var header string
		if err := rows.Scan(&id, &header); err != nil {
			return nil, err
		}
		out[id] = []byte(header)
	}
	return out, rows.Err()
}
