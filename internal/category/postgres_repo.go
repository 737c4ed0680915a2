package category

import (
	"context"
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

// List returns all categories by name, each with its book count.
func (r *PostgresRepo) List(ctx context.Context) ([]Category, error) {
	const query = `
		SELECT c.id, c.name, COUNT(bc.book_id)
		FROM categories c
		LEFT JOIN book_categories bc ON bc.category_id = c.id
		GROUP BY c.id, c.name
		ORDER BY c.name ASC
	`
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	rows, err := r.db.Query(timeoutCtx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.BookCount); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) GetByName(ctx context.Context, name string) (Category, error) {
	const query = `
		SELECT c.id, c.name, COUNT(bc.book_id)
		FROM categories c
		LEFT JOIN book_categories bc ON bc.category_id = c.id
		WHERE c.name = $1
		GROUP BY c.id, c.name
		LIMIT 1
	`
	var c Category
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	err := r.db.QueryRow(timeoutCtx, query, name).Scan(&c.ID, &c.Name, &c.BookCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Category{}, ErrNotFound
		}
		return Category{}, err
	}
	return c, nil
}
