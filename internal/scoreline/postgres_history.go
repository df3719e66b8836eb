package scoreline

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
)

const (
	postgresSnapshotTableName = "scoreline_ranking_snapshots"
	postgresOperationTimeout  = 5 * time.Second
)

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// PostgresSnapshotStore persists ranking snapshots in Postgres. The table is
// created lazily on first use.
type PostgresSnapshotStore struct {
	dsn       string
	tableName string
	openDB    sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

func NewPostgresSnapshotStore(dsn string) (SnapshotStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrInvalidInput
	}
	return &PostgresSnapshotStore{
		dsn:       dsn,
		tableName: postgresSnapshotTableName,
		openDB:    sql.Open,
	}, nil
}

func (s *PostgresSnapshotStore) Append(ctx context.Context, snapshot RankingSnapshot) error {
	if snapshot.OrgID == "" {
		return ErrInvalidInput
	}
	if err := s.ensureReady(); err != nil {
		return err
	}
	entries, err := json.Marshal(snapshot.Entries)
	if err != nil {
		return err
	}
	opCtx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	query := fmt.Sprintf(
		"INSERT INTO %s (id, org_id, taken_at, entries) VALUES ($1, $2, $3, $4)",
		postgresQuoteIdentifier(s.tableName),
	)
	_, err = s.db.ExecContext(opCtx, query, snapshot.ID, snapshot.OrgID, snapshot.TakenAt, string(entries))
	return err
}

func (s *PostgresSnapshotStore) Query(ctx context.Context, orgID string, since time.Time) ([]RankingSnapshot, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	opCtx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT id, taken_at, entries
		FROM %s
		WHERE org_id = $1 AND taken_at >= $2
		ORDER BY taken_at ASC`, postgresQuoteIdentifier(s.tableName))
	rows, err := s.db.QueryContext(opCtx, query, orgID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]RankingSnapshot, 0)
	for rows.Next() {
		var snapshot RankingSnapshot
		var payload string
		if err := rows.Scan(&snapshot.ID, &snapshot.TakenAt, &payload); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payload), &snapshot.Entries); err != nil {
			return nil, err
		}
		snapshot.OrgID = orgID
		result = append(result, snapshot)
	}
	return result, rows.Err()
}

func (s *PostgresSnapshotStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *PostgresSnapshotStore) ensureReady() error {
	if s == nil {
		return ErrInvalidInput
	}
	s.initOnce.Do(func() {
		db, err := s.openDB("postgres", s.dsn)
		if err != nil {
			s.initErr = err
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
		defer cancel()

		createTableQuery := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id TEXT PRIMARY KEY,
				org_id TEXT NOT NULL,
				taken_at TIMESTAMPTZ NOT NULL,
				entries TEXT NOT NULL
			)`, postgresQuoteIdentifier(s.tableName))
		if _, err := db.ExecContext(ctx, createTableQuery); err != nil {
			_ = db.Close()
			s.initErr = err
			return
		}
		indexName := s.tableName + "_org_taken_idx"
		createIndexQuery := fmt.Sprintf(
			"CREATE INDEX IF NOT EXISTS %s ON %s (org_id, taken_at)",
			postgresQuoteIdentifier(indexName),
			postgresQuoteIdentifier(s.tableName),
		)
		if _, err := db.ExecContext(ctx, createIndexQuery); err != nil {
			_ = db.Close()
			s.initErr = err
			return
		}
		s.db = db
	})
	return s.initErr
}

func postgresQuoteIdentifier(identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return "\"\""
	}
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}
