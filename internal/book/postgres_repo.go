package book

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"lendinglib/internal/category"
)

const uniqueViolation = "23505"

const bookColumns = `
	b.id, b.title, b.author, b.year_published, COALESCE(b.synopsis, ''),
	COALESCE(b.picture, ''), b.lender_id, COALESCE(u.name, ''), u.email, b.created_at
`

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

// List returns books matching the filter, with loans, ratings and categories
// loaded. The recent filter orders newest first and caps at 8; every other
// filter orders by title.
func (r *PostgresRepo) List(ctx context.Context, f Filter) ([]Book, error) {
	base := fmt.Sprintf("SELECT %s FROM books b JOIN users u ON u.id = b.lender_id", bookColumns)

	var (
		query string
		args  []any
	)
	switch v := f.(type) {
	case FilterRecent:
		query = base + " ORDER BY b.created_at DESC LIMIT 8"
	case FilterAll:
		query = base + " ORDER BY b.title ASC"
	case FilterMine:
		query = base + " WHERE b.lender_id = $1 ORDER BY b.title ASC"
		args = append(args, v.UserID)
	case FilterFavorites:
		query = base + ` JOIN book_favorites f ON f.book_id = b.id
			WHERE f.user_id = $1 ORDER BY b.title ASC`
		args = append(args, v.UserID)
	case FilterCategory:
		catID, err := r.categoryID(ctx, v.Name)
		if err != nil {
			return nil, err
		}
		query = base + ` JOIN book_categories bc ON bc.book_id = b.id
			WHERE bc.category_id = $1 ORDER BY b.title ASC`
		args = append(args, catID)
	default:
		query = base + " ORDER BY b.created_at DESC LIMIT 8"
	}

	books, err := r.queryBooks(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return r.loadRelations(ctx, books)
}

func (r *PostgresRepo) categoryID(ctx context.Context, name string) (string, error) {
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	var id string
	err := r.db.QueryRow(timeoutCtx, "SELECT id FROM categories WHERE name = $1", name).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", category.ErrNotFound
		}
		return "", err
	}
	return id, nil
}

func (r *PostgresRepo) GetByID(ctx context.Context, id string) (Book, error) {
	query := fmt.Sprintf("SELECT %s FROM books b JOIN users u ON u.id = b.lender_id WHERE b.id = $1 LIMIT 1", bookColumns)

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	var b Book
	err := r.db.QueryRow(timeoutCtx, query, id).Scan(
		&b.ID, &b.Title, &b.Author, &b.YearPublished, &b.Synopsis,
		&b.Picture, &b.LenderID, &b.LenderName, &b.LenderEmail, &b.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Book{}, ErrNotFound
		}
		return Book{}, err
	}

	books, err := r.loadRelations(ctx, []Book{b})
	if err != nil {
		return Book{}, err
	}
	return books[0], nil
}

// Search matches the term against title, author and synopsis,
// case-insensitively.
func (r *PostgresRepo) Search(ctx context.Context, term string) ([]Book, error) {
	query := fmt.Sprintf(`SELECT %s FROM books b JOIN users u ON u.id = b.lender_id
		WHERE b.title ILIKE $1 OR b.author ILIKE $1 OR b.synopsis ILIKE $1
		ORDER BY b.title ASC`, bookColumns)

	books, err := r.queryBooks(ctx, query, "%"+term+"%")
	if err != nil {
		return nil, err
	}
	return r.loadRelations(ctx, books)
}

// ListBorrowedBy returns books the user has ever had on loan.
func (r *PostgresRepo) ListBorrowedBy(ctx context.Context, userID string) ([]Book, error) {
	query := fmt.Sprintf(`SELECT DISTINCT %s FROM books b
		JOIN users u ON u.id = b.lender_id
		JOIN book_borrowers l ON l.book_id = b.id
		WHERE l.user_id = $1
		ORDER BY b.title ASC`, bookColumns)

	books, err := r.queryBooks(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	return r.loadRelations(ctx, books)
}

func (r *PostgresRepo) Create(ctx context.Context, b *Book, categoryIDs []string) error {
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()

	tx, err := r.db.Begin(timeoutCtx)
	if err != nil {
		return err
	}
	defer tx.Rollback(timeoutCtx)

	const insertSQL = `
		INSERT INTO books (id, title, author, year_published, synopsis, picture, lender_id, created_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, NOW())
		RETURNING id, created_at
	`
	err = tx.QueryRow(timeoutCtx, insertSQL,
		b.Title, b.Author, b.YearPublished, b.Synopsis, b.Picture, b.LenderID,
	).Scan(&b.ID, &b.CreatedAt)
	if err != nil {
		return err
	}

	for _, catID := range categoryIDs {
		if _, err := tx.Exec(timeoutCtx,
			"INSERT INTO book_categories (book_id, category_id) VALUES ($1, $2)",
			b.ID, catID); err != nil {
			return err
		}
	}
	return tx.Commit(timeoutCtx)
}

func (r *PostgresRepo) Update(ctx context.Context, b *Book, categoryIDs []string) error {
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()

	tx, err := r.db.Begin(timeoutCtx)
	if err != nil {
		return err
	}
	defer tx.Rollback(timeoutCtx)

	const updateSQL = `
		UPDATE books
		SET title = $2, author = $3, year_published = $4, synopsis = $5, picture = $6
		WHERE id = $1
	`
	tag, err := tx.Exec(timeoutCtx, updateSQL,
		b.ID, b.Title, b.Author, b.YearPublished, b.Synopsis, b.Picture)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	if _, err := tx.Exec(timeoutCtx, "DELETE FROM book_categories WHERE book_id = $1", b.ID); err != nil {
		return err
	}
	for _, catID := range categoryIDs {
		if _, err := tx.Exec(timeoutCtx,
			"INSERT INTO book_categories (book_id, category_id) VALUES ($1, $2)",
			b.ID, catID); err != nil {
			return err
		}
	}
	return tx.Commit(timeoutCtx)
}

// Delete removes a book; join, loan and rating rows go with it via
// ON DELETE CASCADE.
func (r *PostgresRepo) Delete(ctx context.Context, id string) error {
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	tag, err := r.db.Exec(timeoutCtx, "DELETE FROM books WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateLoan opens a loan. A partial unique index on open loans turns a
// concurrent or repeated borrow into ErrAlreadyBorrowed instead of a second
// open row.
func (r *PostgresRepo) CreateLoan(ctx context.Context, bookID, userID string, dueDate time.Time) error {
	const insertSQL = `
		INSERT INTO book_borrowers (id, book_id, user_id, due_date, returned, created_at)
		VALUES (gen_random_uuid(), $1, $2, $3, FALSE, NOW())
	`
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	_, err := r.db.Exec(timeoutCtx, insertSQL, bookID, userID, dueDate)
	if isUniqueViolation(err) {
		return ErrAlreadyBorrowed
	}
	return err
}

// CloseLoan flips the user's open loan on the book to returned.
func (r *PostgresRepo) CloseLoan(ctx context.Context, bookID, userID string) error {
	const updateSQL = `
		UPDATE book_borrowers
		SET returned = TRUE
		WHERE book_id = $1 AND user_id = $2 AND NOT returned
	`
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	tag, err := r.db.Exec(timeoutCtx, updateSQL, bookID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNoOpenLoan
	}
	return nil
}

func (r *PostgresRepo) CreateRating(ctx context.Context, rating Rating) error {
	const insertSQL = `
		INSERT INTO book_ratings (user_id, book_id, rating, review)
		VALUES ($1, $2, $3, $4)
	`
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	_, err := r.db.Exec(timeoutCtx, insertSQL, rating.UserID, rating.BookID, rating.Rating, rating.Review)
	if isUniqueViolation(err) {
		return ErrAlreadyRated
	}
	return err
}

func (r *PostgresRepo) HasRating(ctx context.Context, userID, bookID string) (bool, error) {
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	var exists bool
	err := r.db.QueryRow(timeoutCtx,
		"SELECT EXISTS (SELECT 1 FROM book_ratings WHERE user_id = $1 AND book_id = $2)",
		userID, bookID).Scan(&exists)
	return exists, err
}

func (r *PostgresRepo) AddFavorite(ctx context.Context, bookID, userID string) error {
	const insertSQL = `
		INSERT INTO book_favorites (book_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (book_id, user_id) DO NOTHING
	`
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	_, err := r.db.Exec(timeoutCtx, insertSQL, bookID, userID)
	return err
}

func (r *PostgresRepo) queryBooks(ctx context.Context, query string, args ...any) ([]Book, error) {
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	rows, err := r.db.Query(timeoutCtx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Book
	for rows.Next() {
		var b Book
		if err := rows.Scan(
			&b.ID, &b.Title, &b.Author, &b.YearPublished, &b.Synopsis,
			&b.Picture, &b.LenderID, &b.LenderName, &b.LenderEmail, &b.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// loadRelations fills loans, ratings and categories for the given books with
// one query per relation.
func (r *PostgresRepo) loadRelations(ctx context.Context, books []Book) ([]Book, error) {
	if len(books) == 0 {
		return books, nil
	}

	ids := make([]string, len(books))
	index := make(map[string]int, len(books))
	for i, b := range books {
		ids[i] = b.ID
		index[b.ID] = i
	}

	const loansSQL = `
		SELECT l.id, l.book_id, l.user_id, l.due_date, l.returned, l.created_at,
		       COALESCE(u.name, ''), u.email
		FROM book_borrowers l
		JOIN users u ON u.id = l.user_id
		WHERE l.book_id = ANY($1)
		ORDER BY l.created_at ASC
	`
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	rows, err := r.db.Query(timeoutCtx, loansSQL, ids)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var l Loan
		if err := rows.Scan(&l.ID, &l.BookID, &l.UserID, &l.DueDate, &l.Returned,
			&l.CreatedAt, &l.Borrower.Name, &l.Borrower.Email); err != nil {
			rows.Close()
			return nil, err
		}
		i := index[l.BookID]
		books[i].Loans = append(books[i].Loans, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	const ratingsSQL = `
		SELECT r.book_id, r.user_id, r.rating, COALESCE(r.review, ''),
		       COALESCE(u.name, u.email)
		FROM book_ratings r
		JOIN users u ON u.id = r.user_id
		WHERE r.book_id = ANY($1)
	`
	timeoutCtx2, cancel2 := r.withTimeout(ctx)
	defer cancel2()
	rows, err = r.db.Query(timeoutCtx2, ratingsSQL, ids)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var rt Rating
		if err := rows.Scan(&rt.BookID, &rt.UserID, &rt.Rating, &rt.Review, &rt.RaterName); err != nil {
			rows.Close()
			return nil, err
		}
		i := index[rt.BookID]
		books[i].Ratings = append(books[i].Ratings, rt)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	const categoriesSQL = `
		SELECT bc.book_id, c.id, c.name
		FROM book_categories bc
		JOIN categories c ON c.id = bc.category_id
		WHERE bc.book_id = ANY($1)
		ORDER BY c.name ASC
	`
	timeoutCtx3, cancel3 := r.withTimeout(ctx)
	defer cancel3()
	rows, err = r.db.Query(timeoutCtx3, categoriesSQL, ids)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var bookID string
		var c category.Category
		if err := rows.Scan(&bookID, &c.ID, &c.Name); err != nil {
			rows.Close()
			return nil, err
		}
		i := index[bookID]
		books[i].Categories = append(books[i].Categories, c)
	}
	rows.Close()
	return books, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
