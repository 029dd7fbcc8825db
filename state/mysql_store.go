package state

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"

	xerrors "github.com/pinai-network/agent-sdk-go/pkg/errors"
)

// MySQLConfig describes the MySQL connection used for agent state.
type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// MySQLStore keeps agent progress in a small MySQL table, created on demand.
type MySQLStore struct {
	db *sql.DB
}

const createStateTable = `
CREATE TABLE IF NOT EXISTS pinagent_state (
    agent_id   BIGINT      NOT NULL PRIMARY KEY,
    watermark  VARCHAR(32) NOT NULL,
    session_id VARCHAR(64) NOT NULL DEFAULT '',
    updated_at BIGINT      NOT NULL
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`

// NewMySQLStore opens the pool, verifies connectivity and migrates the table.
func NewMySQLStore(ctx context.Context, cfg MySQLConfig) (*MySQLStore, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "mysql dsn is required")
	}
	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "open mysql")
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	} else {
		db.SetMaxOpenConns(10)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	} else {
		db.SetMaxIdleConns(5)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	} else {
		db.SetConnMaxLifetime(30 * time.Minute)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "connect to mysql")
	}
	if _, err := db.ExecContext(ctx, createStateTable); err != nil {
		db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "migrate state table")
	}
	return &MySQLStore{db: db}, nil
}

// Load implements Store.
func (m *MySQLStore) Load(ctx context.Context, agentID int64) (Record, error) {
	row := m.db.QueryRowContext(ctx,
		"SELECT watermark, session_id FROM pinagent_state WHERE agent_id = ?", agentID)
	var rec Record
	if err := row.Scan(&rec.Watermark, &rec.SessionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "load agent state")
	}
	return rec, nil
}

// Save implements Store.
func (m *MySQLStore) Save(ctx context.Context, agentID int64, rec Record) error {
	_, err := m.db.ExecContext(ctx, `
INSERT INTO pinagent_state (agent_id, watermark, session_id, updated_at)
VALUES (?, ?, ?, ?)
ON DUPLICATE KEY UPDATE watermark = VALUES(watermark),
                        session_id = VALUES(session_id),
                        updated_at = VALUES(updated_at)`,
		agentID, rec.Watermark, rec.SessionID, time.Now().Unix())
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "save agent state")
	}
	return nil
}

// Close implements Store.
func (m *MySQLStore) Close() error {
	if m == nil || m.db == nil {
		return nil
	}
	return m.db.Close()
}
