package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"comexexport/internal/model"
	"comexexport/internal/store"
)

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func New(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite: path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveFilterEntries replaces the cached entries of one dimension and language.
func (s *Store) SaveFilterEntries(ctx context.Context, dimension, language string, entries []model.FilterEntry) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`DELETE FROM filter_entries WHERE dimension = ? AND language = ?`,
		dimension, language,
	); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO filter_entries (
			dimension, language, position, text, label, value, raw, fetched_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	fetchedAt := s.now().UTC().Unix()
	for i, entry := range entries {
		_, err = stmt.ExecContext(
			ctx,
			dimension,
			language,
			i,
			entry.Text,
			entry.Label,
			nullableJSON(entry.Value),
			nullableJSON(entry.Raw),
			fetchedAt,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *Store) ListFilterEntries(ctx context.Context, dimension, language string, maxAge time.Duration) ([]model.FilterEntry, error) {
	query := `
		SELECT text, label, value, raw
		FROM filter_entries
		WHERE dimension = ? AND language = ?
	`
	args := []any{dimension, language}
	if maxAge > 0 {
		query += " AND fetched_at >= ?"
		args = append(args, s.now().UTC().Add(-maxAge).Unix())
	}
	query += " ORDER BY position"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]model.FilterEntry, 0)
	for rows.Next() {
		var entry model.FilterEntry
		var value, raw sql.NullString
		if err := rows.Scan(&entry.Text, &entry.Label, &value, &raw); err != nil {
			return nil, err
		}
		if value.Valid {
			entry.Value = json.RawMessage(value.String)
		}
		if raw.Valid {
			entry.Raw = json.RawMessage(raw.String)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func (s *Store) migrate() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS filter_entries (
			dimension TEXT NOT NULL,
			language TEXT NOT NULL,
			position INTEGER NOT NULL,
			text TEXT NOT NULL,
			label TEXT NOT NULL,
			value TEXT,
			raw TEXT,
			fetched_at INTEGER NOT NULL,
			PRIMARY KEY (dimension, language, position)
		);`,
	}

	for _, statement := range statements {
		if _, err := s.db.Exec(statement); err != nil {
			return err
		}
	}

	return nil
}

var _ store.Store = (*Store)(nil)
