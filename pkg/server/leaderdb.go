package server

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/crystal-mush/xmlattach/pkg/gamedb"
	"github.com/crystal-mush/xmlattach/pkg/quest"
	_ "modernc.org/sqlite"
)

const leaderTable = `CREATE TABLE IF NOT EXISTS quest_leaders (
	rank        INTEGER PRIMARY KEY,
	serial      INTEGER NOT NULL,
	name        TEXT    NOT NULL,
	points      INTEGER NOT NULL,
	completed   INTEGER NOT NULL,
	delta_rank  INTEGER NOT NULL,
	exported_at TEXT    NOT NULL
)`

// LeaderRecord is one exported ranking row.
type LeaderRecord struct {
	Rank       int
	Serial     gamedb.DBRef
	Name       string
	Points     int
	Completed  int
	DeltaRank  int
	ExportedAt time.Time
}

// LeaderDB manages the SQLite3 database the quest ranking is exported to.
type LeaderDB struct {
	db      *sql.DB
	mu      sync.Mutex
	path    string
	timeout time.Duration
}

// OpenLeaderDB opens a SQLite3 database, sets WAL mode and busy timeout,
// and creates the ranking table.
func OpenLeaderDB(path string, timeoutSec int) (*LeaderDB, error) {
	if timeoutSec <= 0 {
		timeoutSec = 5
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite %s: %w", path, err)
	}
	// Set WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}
	// Set busy timeout (milliseconds)
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d", timeoutSec*1000)); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec(leaderTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating quest_leaders: %w", err)
	}
	return &LeaderDB{
		db:      db,
		path:    path,
		timeout: time.Duration(timeoutSec) * time.Second,
	}, nil
}

// Close closes the SQLite3 database connection.
func (s *LeaderDB) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

// Path returns the filesystem path of the SQLite database.
func (s *LeaderDB) Path() string { return s.path }

// Checkpoint forces a WAL checkpoint to flush all writes to the main database file.
func (s *LeaderDB) Checkpoint() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return fmt.Errorf("leaderdb: closed")
	}
	_, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

// Export replaces the stored ranking with standings in one transaction.
func (s *LeaderDB) Export(ctx context.Context, standings []quest.Standing, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return fmt.Errorf("leaderdb: closed")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("leaderdb: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM quest_leaders"); err != nil {
		return fmt.Errorf("leaderdb: clear: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO quest_leaders
		(rank, serial, name, points, completed, delta_rank, exported_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("leaderdb: prepare: %w", err)
	}
	defer stmt.Close()

	stamp := at.UTC().Format(time.RFC3339)
	for _, st := range standings {
		serial := gamedb.Nothing
		if st.Quester != nil {
			serial = st.Quester.Serial
		}
		if _, err := stmt.ExecContext(ctx, st.Rank, int(serial), st.Name, st.Points, st.Completed, st.DeltaRank, stamp); err != nil {
			return fmt.Errorf("leaderdb: insert rank %d: %w", st.Rank, err)
		}
	}
	return tx.Commit()
}

// Top returns the first n exported rows in rank order. n <= 0 returns them
// all.
func (s *LeaderDB) Top(ctx context.Context, n int) ([]LeaderRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, fmt.Errorf("leaderdb: closed")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if n <= 0 {
		n = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx, `SELECT rank, serial, name, points, completed, delta_rank, exported_at
		FROM quest_leaders ORDER BY rank LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LeaderRecord
	for rows.Next() {
		var r LeaderRecord
		var serial int
		var stamp string
		if err := rows.Scan(&r.Rank, &serial, &r.Name, &r.Points, &r.Completed, &r.DeltaRank, &stamp); err != nil {
			return nil, err
		}
		r.Serial = gamedb.DBRef(serial)
		r.ExportedAt, _ = time.Parse(time.RFC3339, stamp)
		out = append(out, r)
	}
	return out, rows.Err()
}
