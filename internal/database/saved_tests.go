package database

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kamilpajak/testpilot/internal/storage"
)

// SavedTest is one entry of the saved-test index.
type SavedTest struct {
	ID       uuid.UUID `json:"id"`
	TestName string    `json:"test_name"`
	FilePath string    `json:"file_path"`
	SHA256   string    `json:"sha256"`
	Bytes    int       `json:"bytes"`
	Backend  string    `json:"backend"`
	SavedAt  time.Time `json:"saved_at"`
}

// CreateSavedTestParams contains parameters for indexing a saved test.
type CreateSavedTestParams struct {
	TestName string
	FilePath string
	SHA256   string
	Bytes    int
	Backend  string
	SavedAt  time.Time
}

const savedTestColumns = `id, test_name, file_path, sha256, bytes, backend, saved_at`

func scanSavedTest(row pgx.Row) (*SavedTest, error) {
	var s SavedTest
	err := row.Scan(&s.ID, &s.TestName, &s.FilePath, &s.SHA256, &s.Bytes, &s.Backend, &s.SavedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateSavedTest indexes a saved test.
func (db *DB) CreateSavedTest(ctx context.Context, params CreateSavedTestParams) (*SavedTest, error) {
	if params.SavedAt.IsZero() {
		params.SavedAt = time.Now()
	}
	if params.Backend == "" {
		params.Backend = "simulator"
	}

	row := db.pool.QueryRow(ctx,
		`INSERT INTO saved_tests (test_name, file_path, sha256, bytes, backend, saved_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+savedTestColumns,
		params.TestName, params.FilePath, params.SHA256, params.Bytes, params.Backend, params.SavedAt,
	)
	return scanSavedTest(row)
}

// RecordSave indexes a test written by the local store.
func (db *DB) RecordSave(ctx context.Context, rec storage.Record) error {
	_, err := db.CreateSavedTest(ctx, CreateSavedTestParams{
		TestName: rec.TestName,
		FilePath: rec.FilePath,
		SHA256:   rec.SHA256,
		Bytes:    rec.Bytes,
		SavedAt:  rec.SavedAt,
	})
	return err
}

// GetSavedTestByID retrieves an index entry by ID.
func (db *DB) GetSavedTestByID(ctx context.Context, id uuid.UUID) (*SavedTest, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+savedTestColumns+` FROM saved_tests WHERE id = $1`,
		id,
	)
	return scanSavedTest(row)
}

// ListSavedTestsParams contains parameters for listing saved tests.
type ListSavedTestsParams struct {
	Limit  int
	Offset int
	// FilePath restricts the list to saves of one file.
	FilePath *string
}

// ListSavedTests returns saved tests, newest first.
func (db *DB) ListSavedTests(ctx context.Context, params ListSavedTestsParams) ([]SavedTest, error) {
	if params.Limit <= 0 {
		params.Limit = 50
	}

	var rows pgx.Rows
	var err error

	if params.FilePath != nil {
		rows, err = db.pool.Query(ctx,
			`SELECT `+savedTestColumns+` FROM saved_tests
			 WHERE file_path = $1
			 ORDER BY saved_at DESC
			 LIMIT $2 OFFSET $3`,
			*params.FilePath, params.Limit, params.Offset,
		)
	} else {
		rows, err = db.pool.Query(ctx,
			`SELECT `+savedTestColumns+` FROM saved_tests
			 ORDER BY saved_at DESC
			 LIMIT $1 OFFSET $2`,
			params.Limit, params.Offset,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tests []SavedTest
	for rows.Next() {
		var s SavedTest
		if err := rows.Scan(&s.ID, &s.TestName, &s.FilePath, &s.SHA256, &s.Bytes, &s.Backend, &s.SavedAt); err != nil {
			return nil, err
		}
		tests = append(tests, s)
	}
	return tests, rows.Err()
}

// CountSavedTests returns the number of index entries.
func (db *DB) CountSavedTests(ctx context.Context) (int, error) {
	var count int
	err := db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM saved_tests`).Scan(&count)
	return count, err
}

// DeleteSavedTest deletes an index entry by ID.
func (db *DB) DeleteSavedTest(ctx context.Context, id uuid.UUID) error {
	_, err := db.pool.Exec(ctx,
		`DELETE FROM saved_tests WHERE id = $1`,
		id,
	)
	return err
}

// DeleteOldSavedTests deletes entries saved before olderThan.
func (db *DB) DeleteOldSavedTests(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := db.pool.Exec(ctx,
		`DELETE FROM saved_tests WHERE saved_at < $1`,
		olderThan,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
