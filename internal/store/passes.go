package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/tileconverge/internal/resource"
)

// PassStatus is the lifecycle state of a recorded pass.
type PassStatus string

const (
	PassRunning PassStatus = "running"
	PassOK      PassStatus = "ok"
	PassFailed  PassStatus = "failed"
)

// ErrPassNotFound is returned when a pass ID is unknown.
var ErrPassNotFound = errors.New("pass not found")

// Pass is one row of the passes table.
type Pass struct {
	ID           string     `json:"id"`
	Seq          int64      `json:"seq"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	Status       PassStatus `json:"status"`
	Error        string     `json:"error,omitempty"`
	ConfigDigest string     `json:"config_digest"`
	Changed      int        `json:"changed"`
	Warnings     []string   `json:"warnings"`
}

// Change is one stored change record.
type Change struct {
	Seq       int64           `json:"seq"`
	Resource  resource.ID     `json:"resource"`
	Action    resource.Action `json:"action"`
	Changed   bool            `json:"changed"`
	Triggered bool            `json:"triggered"`
	Source    string          `json:"source,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// BeginPass records a running pass and assigns it the next seq.
func (s *Store) BeginPass(ctx context.Context, id string, startedAt time.Time, configDigest string) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO passes (id, seq, started_at, status, config_digest)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM passes), ?, ?, ?)
		RETURNING seq
	`, id, formatTime(startedAt), string(PassRunning), configDigest).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("begin pass: %w", err)
	}
	return seq, nil
}

// FinishPass stores the pass's change records and final status in one
// transaction. passErr is nil for a successful pass.
func (s *Store) FinishPass(
	ctx context.Context,
	id string,
	finishedAt time.Time,
	records []resource.ChangeRecord,
	warnings []error,
	passErr error,
) error {
	warningsJSON, err := marshalErrors(warnings)
	if err != nil {
		return fmt.Errorf("finish pass: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("finish pass: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO change_records
		(pass_id, seq, kind, name, action, changed, triggered, source, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("finish pass: %w", err)
	}
	defer stmt.Close()

	changed := 0
	for _, rec := range records {
		source := ""
		if !rec.Source.IsZero() {
			source = rec.Source.String()
		}
		if rec.Changed {
			changed++
		}
		_, err := stmt.ExecContext(ctx,
			id,
			rec.Seq,
			string(rec.Resource.Kind),
			rec.Resource.Name,
			string(rec.Action),
			rec.Changed,
			rec.Triggered,
			source,
			errString(rec.Err),
		)
		if err != nil {
			return fmt.Errorf("finish pass: record %d: %w", rec.Seq, err)
		}
	}

	status := PassOK
	if passErr != nil {
		status = PassFailed
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE passes
		SET finished_at = ?, status = ?, error = ?, changed = ?, warnings = ?
		WHERE id = ?
	`, formatTime(finishedAt), string(status), errString(passErr), changed, warningsJSON, id)
	if err != nil {
		return fmt.Errorf("finish pass: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish pass %s: %w", id, ErrPassNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("finish pass: %w", err)
	}
	return nil
}

// ListPasses returns the most recent passes, newest first. limit <= 0
// returns every pass.
func (s *Store) ListPasses(ctx context.Context, limit int) ([]Pass, error) {
	query := `
		SELECT id, seq, started_at, finished_at, status, error, config_digest, changed, warnings
		FROM passes
		ORDER BY seq DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query passes: %w", err)
	}
	defer rows.Close()

	passes := []Pass{}
	for rows.Next() {
		p, err := scanPass(rows)
		if err != nil {
			return nil, err
		}
		passes = append(passes, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate passes: %w", err)
	}
	return passes, nil
}

// ReadPass returns a pass and its change records in evaluation order.
func (s *Store) ReadPass(ctx context.Context, id string) (Pass, []Change, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, seq, started_at, finished_at, status, error, config_digest, changed, warnings
		FROM passes
		WHERE id = ?
	`, id)
	p, err := scanPass(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Pass{}, nil, fmt.Errorf("read pass %s: %w", id, ErrPassNotFound)
	}
	if err != nil {
		return Pass{}, nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, kind, name, action, changed, triggered, source, error
		FROM change_records
		WHERE pass_id = ?
		ORDER BY seq ASC
	`, id)
	if err != nil {
		return Pass{}, nil, fmt.Errorf("query change records: %w", err)
	}
	defer rows.Close()

	changes := []Change{}
	for rows.Next() {
		var (
			c            Change
			kind, action string
		)
		if err := rows.Scan(&c.Seq, &kind, &c.Resource.Name, &action, &c.Changed, &c.Triggered, &c.Source, &c.Error); err != nil {
			return Pass{}, nil, fmt.Errorf("scan change record: %w", err)
		}
		c.Resource.Kind = resource.Kind(kind)
		c.Action = resource.Action(action)
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return Pass{}, nil, fmt.Errorf("iterate change records: %w", err)
	}
	return p, changes, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPass(row rowScanner) (Pass, error) {
	var (
		p               Pass
		started, status string
		finished        sql.NullString
		warningsJSON    string
	)
	err := row.Scan(&p.ID, &p.Seq, &started, &finished, &status, &p.Error, &p.ConfigDigest, &p.Changed, &warningsJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Pass{}, err
		}
		return Pass{}, fmt.Errorf("scan pass: %w", err)
	}
	p.Status = PassStatus(status)
	if p.StartedAt, err = parseTime(started); err != nil {
		return Pass{}, err
	}
	if finished.Valid {
		t, err := parseTime(finished.String)
		if err != nil {
			return Pass{}, err
		}
		p.FinishedAt = &t
	}
	if err := json.Unmarshal([]byte(warningsJSON), &p.Warnings); err != nil {
		return Pass{}, fmt.Errorf("unmarshal warnings: %w", err)
	}
	return p, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// marshalErrors stores error messages as a JSON array of strings.
func marshalErrors(errs []error) (string, error) {
	msgs := make([]string, 0, len(errs))
	for _, err := range errs {
		msgs = append(msgs, err.Error())
	}
	data, err := json.Marshal(msgs)
	if err != nil {
		return "", fmt.Errorf("marshal warnings: %w", err)
	}
	return string(data), nil
}
