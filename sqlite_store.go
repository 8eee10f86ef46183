package bamboo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Import SQLite driver for database/sql
)

// sqliteStore keeps feeds in a single SQLite table. Sequence numbers and log
// ids are stored as the int64 with the same bits, so values of 2^63 and above
// do not sort correctly; no log reaches them in practice.
type sqliteStore struct{ db *sql.DB }

// OpenSQLiteStore opens/creates a SQLite DB and ensures schema + PRAGMAs.
func OpenSQLiteStore(dsn string) (Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	st := &sqliteStore{db: db}
	for _, p := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=FULL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA wal_autocheckpoint=1000;",
	} {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set %s: %w", p, err)
		}
	}
	schema := `
CREATE TABLE IF NOT EXISTS entries (
  author      BLOB    NOT NULL,
  log_id      INTEGER NOT NULL,
  seq         INTEGER NOT NULL,
  entry       BLOB    NOT NULL,
  payload     BLOB,              -- NULL when the payload was not replicated
  PRIMARY KEY (author, log_id, seq)
) WITHOUT ROWID;
`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

// Append stores an entry if it extends its feed by exactly one.
func (s *sqliteStore) Append(e StoredEntry) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var last int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq),0) FROM entries WHERE author=? AND log_id=?`,
		e.Feed.Author[:], int64(e.Feed.LogID)).Scan(&last); err != nil {
		return err
	}
	if uint64(last) != e.SeqNum-1 {
		return fmt.Errorf("%w: have %d, got %d", ErrNonContiguous, last, e.SeqNum)
	}

	var payload any
	if e.Payload != nil {
		payload = e.Payload
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO entries(author, log_id, seq, entry, payload) VALUES(?, ?, ?, ?, ?)`,
		e.Feed.Author[:], int64(e.Feed.LogID), int64(e.SeqNum), e.Entry, payload); err != nil {
		return err
	}
	return tx.Commit()
}

// Get returns the entry at seq, or ErrNotFound.
func (s *sqliteStore) Get(feed FeedID, seq uint64) (StoredEntry, error) {
	var entry, payload []byte
	var hasPayload bool
	err := s.db.QueryRow(
		`SELECT entry, payload, payload IS NOT NULL FROM entries WHERE author=? AND log_id=? AND seq=?`,
		feed.Author[:], int64(feed.LogID), int64(seq)).Scan(&entry, &payload, &hasPayload)
	if errors.Is(err, sql.ErrNoRows) {
		return StoredEntry{}, ErrNotFound
	}
	if err != nil {
		return StoredEntry{}, err
	}
	return storedFromRow(feed, seq, entry, payload, hasPayload), nil
}

// Last returns the highest stored sequence number of feed.
func (s *sqliteStore) Last(feed FeedID) (uint64, error) {
	var last int64
	err := s.db.QueryRow(`SELECT COALESCE(MAX(seq),0) FROM entries WHERE author=? AND log_id=?`,
		feed.Author[:], int64(feed.LogID)).Scan(&last)
	if err != nil {
		return 0, err
	}
	return uint64(last), nil
}

// Iter returns a channel that streams entries starting from startSeq in ascending order.
func (s *sqliteStore) Iter(feed FeedID, startSeq uint64) (<-chan StoredEntry, func() error, error) {
	ctx, cancel := context.WithCancel(context.Background())
	query := `SELECT seq, entry, payload, payload IS NOT NULL FROM entries
WHERE author=? AND log_id=? AND seq >= ? ORDER BY seq ASC`
	rows, err := s.db.QueryContext(ctx, query, feed.Author[:], int64(feed.LogID), int64(startSeq))
	if err != nil {
		cancel()
		return nil, nil, err
	}
	out := make(chan StoredEntry, 64)
	errc := make(chan error, 1)
	go func() {
		defer close(out)
		defer rows.Close()
		for rows.Next() {
			var seq int64
			var entry, payload []byte
			var hasPayload bool
			if err := rows.Scan(&seq, &entry, &payload, &hasPayload); err != nil {
				errc <- err
				return
			}
			select {
			case out <- storedFromRow(feed, uint64(seq), entry, payload, hasPayload):
			case <-ctx.Done():
				return
			}
		}
		if err := rows.Err(); err != nil && !errors.Is(err, context.Canceled) {
			errc <- err
		}
	}()
	return out, func() error {
		cancel()
		select {
		case err := <-errc:
			return err
		default:
			return nil
		}
	}, nil
}

// Feeds lists every feed with at least one entry.
func (s *sqliteStore) Feeds() ([]FeedID, error) {
	rows, err := s.db.Query(`SELECT DISTINCT author, log_id FROM entries ORDER BY author, log_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []FeedID
	for rows.Next() {
		var author []byte
		var logID int64
		if err := rows.Scan(&author, &logID); err != nil {
			return nil, err
		}
		if len(author) != PublicKeySize {
			continue
		}
		var f FeedID
		copy(f.Author[:], author)
		f.LogID = uint64(logID)
		out = append(out, f)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *sqliteStore) Close() error { return s.db.Close() }

func storedFromRow(feed FeedID, seq uint64, entry, payload []byte, hasPayload bool) StoredEntry {
	e := StoredEntry{Feed: feed, SeqNum: seq, Entry: entry}
	if hasPayload {
		e.Payload = append([]byte{}, payload...)
	}
	return e
}
