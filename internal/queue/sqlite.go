package queue

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps the queue in a sqlite database. The default connection
// string is ":memory:", which keeps records session-scoped like the memory
// store while exercising a real SQL backend. Row order is maintained with
// lexicographic rank strings (see rank.go).
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(connectionString string) (*SQLiteStore, error) {
	if connectionString == "" {
		connectionString = ":memory:"
	}

	db, err := sql.Open("sqlite", connectionString)
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	// Ensure the schema exists (idempotent), important for in-memory SQLite
	if err := store.ensureSchema(); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) ensureSchema() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS records (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		size INTEGER NOT NULL,
		content_type TEXT NOT NULL,
		original BLOB NOT NULL,
		compressed BLOB,
		compressed_size INTEGER NOT NULL DEFAULT 0,
		compressed_type TEXT NOT NULL DEFAULT '',
		quality INTEGER NOT NULL,
		status TEXT NOT NULL,
		sort_rank TEXT NOT NULL
	)`)
	return err
}

func (s *SQLiteStore) Append(record *Record) error {
	// New records always go to the end of the queue
	var lastRank string
	row := s.db.QueryRow("SELECT sort_rank FROM records ORDER BY sort_rank DESC LIMIT 1")
	if err := row.Scan(&lastRank); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	_, err := s.db.Exec(`INSERT INTO records
		(id, name, size, content_type, original, compressed, compressed_size, compressed_type, quality, status, sort_rank)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.Name, record.Size, record.ContentType,
		record.Original, record.Compressed, record.CompressedSize, record.CompressedType,
		record.Quality, string(record.Status), NextRank(lastRank))
	return err
}

func (s *SQLiteStore) List() ([]*Record, error) {
	rows, err := s.db.Query(`SELECT id, name, size, content_type, original,
		compressed, compressed_size, compressed_type, quality, status, sort_rank
		FROM records ORDER BY sort_rank`)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var records []*Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) Get(id string) (*Record, error) {
	row := s.db.QueryRow(`SELECT id, name, size, content_type, original,
		compressed, compressed_size, compressed_type, quality, status, sort_rank
		FROM records WHERE id = ?`, id)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (s *SQLiteStore) SetQuality(id string, quality int) error {
	result, err := s.db.Exec("UPDATE records SET quality = ? WHERE id = ?", quality, id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

func (s *SQLiteStore) SetCompressed(id string, data []byte, contentType string) error {
	result, err := s.db.Exec(`UPDATE records SET
		compressed = ?, compressed_size = ?, compressed_type = ?, status = ?
		WHERE id = ?`,
		data, int64(len(data)), contentType, string(StatusCompressed), id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

func (s *SQLiteStore) Remove(id string) error {
	result, err := s.db.Exec("DELETE FROM records WHERE id = ?", id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

func (s *SQLiteStore) Clear() error {
	_, err := s.db.Exec("DELETE FROM records")
	return err
}

func (s *SQLiteStore) Len() (int, error) {
	row := s.db.QueryRow("SELECT COUNT(*) FROM records")
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var record Record
	var status string
	err := row.Scan(&record.ID, &record.Name, &record.Size, &record.ContentType,
		&record.Original, &record.Compressed, &record.CompressedSize,
		&record.CompressedType, &record.Quality, &status, &record.Rank)
	if err != nil {
		return nil, err
	}
	record.Status = Status(status)
	return &record, nil
}

// requireRow maps an update that touched no rows to ErrNotFound.
func requireRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
