package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// LastObservation returns the last recorded emptiness of a watched
// directory. known is false when the directory was never observed.
func (s *Store) LastObservation(ctx context.Context, path string) (nonEmpty, known bool, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT non_empty FROM watch_observations WHERE path = ?
	`, path).Scan(&nonEmpty)
	if errors.Is(err, sql.ErrNoRows) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("read observation %s: %w", path, err)
	}
	return nonEmpty, true, nil
}

// RecordObservation stores the current emptiness of a watched directory.
func (s *Store) RecordObservation(ctx context.Context, path string, nonEmpty bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO watch_observations (path, non_empty) VALUES (?, ?)
		ON CONFLICT(path) DO UPDATE SET non_empty = excluded.non_empty
	`, path, nonEmpty)
	if err != nil {
		return fmt.Errorf("record observation %s: %w", path, err)
	}
	return nil
}

// Validator returns the ETag remembered for url.
func (s *Store) Validator(ctx context.Context, url string) (string, bool, error) {
	var etag string
	err := s.db.QueryRowContext(ctx, `
		SELECT etag FROM fetch_validators WHERE url = ?
	`, url).Scan(&etag)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read validator %s: %w", url, err)
	}
	return etag, true, nil
}

// SaveValidator remembers the ETag of the latest download of url.
func (s *Store) SaveValidator(ctx context.Context, url, etag string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fetch_validators (url, etag) VALUES (?, ?)
		ON CONFLICT(url) DO UPDATE SET etag = excluded.etag
	`, url, etag)
	if err != nil {
		return fmt.Errorf("save validator %s: %w", url, err)
	}
	return nil
}
