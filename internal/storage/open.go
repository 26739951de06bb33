package storage

import (
	"context"
	"errors"
	"strings"

	logx "jobd/pkg/logx"
)

// Store is the minimal persistence API used by the app wiring.
//
// Headers are stored as opaque JSON blobs keyed by id; the store never
// inspects them. SetLastScheduleID only raises the stored value, so replayed
// writes cannot move id allocation backwards.
type Store interface {
	PutJob(ctx context.Context, id int64, header []byte) error
	DeleteJob(ctx context.Context, id int64) error
	ListJobs(ctx context.Context) (map[int64][]byte, error)

	PutSchedule(ctx context.Context, id int64, header []byte) error
	DeleteSchedule(ctx context.Context, id int64) error
	ListSchedules(ctx context.Context) (map[int64][]byte, error)

	SetLastScheduleID(ctx context.Context, id int64) error
	LastScheduleID(ctx context.Context) (int64, error)

	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
