package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresRepo struct {
	db      *pgxpool.Pool
	timeout time.Duration
}

func NewPostgresRepo(db *pgxpool.Pool, timeout time.Duration) *PostgresRepo {
	return &PostgresRepo{db: db, timeout: timeout}
}

func (r *PostgresRepo) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

func (r *PostgresRepo) Create(ctx context.Context, s *Session) error {
	flash, err := json.Marshal(s.Flash)
	if err != nil {
		return err
	}

	const insertSQL = `
		INSERT INTO sessions (id, state, provider, subject_id, credentials, username,
		                      email, picture, user_id, next_url, flash, created_at, updated_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.db.QueryRow(timeoutCtx, insertSQL,
		s.State, s.Provider, s.SubjectID, s.Credentials, s.Username,
		s.Email, s.Picture, nullable(s.UserID), s.NextURL, flash,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
}

func (r *PostgresRepo) GetByID(ctx context.Context, id string) (Session, error) {
	const query = `
		SELECT id, state, provider, subject_id, credentials, username,
		       email, picture, COALESCE(user_id::text, ''), next_url, flash,
		       created_at, updated_at
		FROM sessions
		WHERE id = $1
		LIMIT 1
	`
	var (
		s     Session
		flash []byte
	)
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	err := r.db.QueryRow(timeoutCtx, query, id).Scan(
		&s.ID, &s.State, &s.Provider, &s.SubjectID, &s.Credentials, &s.Username,
		&s.Email, &s.Picture, &s.UserID, &s.NextURL, &flash,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, ErrNotFound
		}
		return Session{}, err
	}
	if len(flash) > 0 {
		if err := json.Unmarshal(flash, &s.Flash); err != nil {
			return Session{}, err
		}
	}
	return s, nil
}

func (r *PostgresRepo) Save(ctx context.Context, s *Session) error {
	flash, err := json.Marshal(s.Flash)
	if err != nil {
		return err
	}

	const updateSQL = `
		UPDATE sessions
		SET state = $2, provider = $3, subject_id = $4, credentials = $5,
		    username = $6, email = $7, picture = $8, user_id = $9,
		    next_url = $10, flash = $11, updated_at = NOW()
		WHERE id = $1
	`
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	tag, err := r.db.Exec(timeoutCtx, updateSQL,
		s.ID, s.State, s.Provider, s.SubjectID, s.Credentials,
		s.Username, s.Email, s.Picture, nullable(s.UserID),
		s.NextURL, flash,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteExpired prunes sessions untouched since the cutoff, using the
// updated_at index. It returns the number of rows removed.
func (r *PostgresRepo) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	tag, err := r.db.Exec(timeoutCtx, "DELETE FROM sessions WHERE updated_at < $1", cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// nullable maps "" to NULL for the user_id foreign key.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
