package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"

	"github.com/linesights/powermon/internal/errors"
	"github.com/linesights/powermon/internal/logger"

	_ "github.com/mattn/go-sqlite3"
)

const defaultDirPerm = 0o755

type sqliteArchive struct {
	db *sql.DB
	mu sync.Mutex
}

func newRepository(dbPath string) (*sqliteArchive, error) {
	errFactory := errors.New()

	logger.Debug().Str("db_path", dbPath).Msg("initializing cycle history archive")

	if err := os.MkdirAll(filepath.Dir(dbPath), defaultDirPerm); err != nil {
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &sqliteArchive{db: db}, nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
        CREATE TABLE IF NOT EXISTS cycles (
            timestamp INTEGER PRIMARY KEY,
            device_id TEXT,
            total_power_w REAL,
            active_channels INTEGER,
            dropped_samples INTEGER,
            payload TEXT,
            upload_status TEXT,
            http_status INTEGER
        )
    `)
	if err != nil {
		return errors.New().Wrap(ErrSchemaInit, err)
	}

	return nil
}

func (r *sqliteArchive) Record(ctx context.Context, rec *CycleRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx, `
        INSERT INTO cycles (
            timestamp, device_id, total_power_w, active_channels,
            dropped_samples, payload, upload_status, http_status
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(timestamp) DO UPDATE SET
            total_power_w = excluded.total_power_w,
            active_channels = excluded.active_channels,
            dropped_samples = excluded.dropped_samples,
            payload = excluded.payload,
            upload_status = excluded.upload_status,
            http_status = excluded.http_status
    `,
		rec.Timestamp.Unix(),
		rec.DeviceID,
		rec.TotalPowerW,
		rec.ActiveChannels,
		rec.DroppedSamples,
		rec.Payload,
		rec.UploadStatus,
		rec.HTTPStatus,
	)
	if err != nil {
		return errors.New().Wrap(ErrStorageAccess, err)
	}

	return nil
}

func (r *sqliteArchive) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.db.Close(); err != nil {
		return errors.New().Wrap(ErrStorageClose, err)
	}
	return nil
}
