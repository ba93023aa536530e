// Package store persists voice log records in SQLite.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/voicelog/voicelog/internal/journal"
)

// Store provides durable storage for journal records. Transcript, translation,
// and time-range index are stored as opaque encoded blobs.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS records (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL DEFAULT '',
	text        BLOB,
	translated  BLOB,
	time_ranges BLOB,
	audio_file  TEXT NOT NULL DEFAULT '',
	done        INTEGER NOT NULL DEFAULT 0,
	created_at  REAL NOT NULL,
	updated_at  REAL NOT NULL
);
`

// DefaultDBPath returns the database path under the data directory.
func DefaultDBPath(dataDir string) string {
	return filepath.Join(dataDir, "voicelog.sqlite")
}

// Open opens (creating if needed) the database with WAL enabled.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save inserts or updates a record.
func (s *Store) Save(rec *journal.Record) error {
	textBlob, err := json.Marshal(rec.Text)
	if err != nil {
		return fmt.Errorf("encode text: %w", err)
	}
	translatedBlob, err := json.Marshal(rec.Translated)
	if err != nil {
		return fmt.Errorf("encode translation: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO records (id, title, text, translated, time_ranges, audio_file, done, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			text = excluded.text,
			translated = excluded.translated,
			time_ranges = excluded.time_ranges,
			audio_file = excluded.audio_file,
			done = excluded.done,
			updated_at = excluded.updated_at
	`, rec.ID, rec.Title, textBlob, translatedBlob, rec.Index.Blob(), rec.AudioFile,
		boolToInt(rec.Done), timeToUnix(rec.CreatedAt), timeToUnix(rec.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save record: %w", err)
	}
	return nil
}

// Get loads one record by id. Returns (nil, nil) when absent.
func (s *Store) Get(id string) (*journal.Record, error) {
	row := s.db.QueryRow(`
		SELECT id, title, text, translated, time_ranges, audio_file, done, created_at, updated_at
		FROM records
		WHERE id = ?
	`, id)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan record: %w", err)
	}
	return rec, nil
}

// List returns all records, most recently updated first.
func (s *Store) List() ([]*journal.Record, error) {
	rows, err := s.db.Query(`
		SELECT id, title, text, translated, time_ranges, audio_file, done, created_at, updated_at
		FROM records
		ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var records []*journal.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Delete removes a record and its audio file, if any.
func (s *Store) Delete(id string) error {
	rec, err := s.Get(id)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}
	if _, err := s.db.Exec(`DELETE FROM records WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	if rec.AudioFile != "" {
		if err := os.Remove(rec.AudioFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("delete audio file: %w", err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*journal.Record, error) {
	var (
		rec            journal.Record
		textBlob       []byte
		translatedBlob []byte
		rangesBlob     []byte
		done           int
		createdAt      float64
		updatedAt      float64
	)
	if err := row.Scan(&rec.ID, &rec.Title, &textBlob, &translatedBlob, &rangesBlob,
		&rec.AudioFile, &done, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if len(textBlob) > 0 {
		if err := json.Unmarshal(textBlob, &rec.Text); err != nil {
			return nil, fmt.Errorf("decode text: %w", err)
		}
	}
	if len(translatedBlob) > 0 {
		if err := json.Unmarshal(translatedBlob, &rec.Translated); err != nil {
			return nil, fmt.Errorf("decode translation: %w", err)
		}
	}
	rec.Index.SetBlob(rangesBlob)
	rec.Done = done != 0
	rec.CreatedAt = timeFromUnix(createdAt)
	rec.UpdatedAt = timeFromUnix(updatedAt)
	return &rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func timeToUnix(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func timeFromUnix(ts float64) time.Time {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}
