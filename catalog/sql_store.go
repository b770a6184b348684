package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS flights (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	flight_no TEXT NOT NULL,
	flight_date TEXT NOT NULL,
	mfl_id INTEGER NOT NULL,
	registration_number TEXT NOT NULL,
	service_type TEXT NOT NULL,
	flight_status TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_flights_no ON flights(flight_no);

CREATE TABLE IF NOT EXISTS meal_orders (
	mfl_id INTEGER PRIMARY KEY,
	f INTEGER NOT NULL,
	j INTEGER NOT NULL,
	w INTEGER NOT NULL,
	y INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS stock_counts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	transaction_id TEXT NOT NULL,
	item_code TEXT NOT NULL,
	item_desc TEXT NOT NULL,
	book_bulk INTEGER NOT NULL,
	book_actual INTEGER NOT NULL,
	float_book INTEGER NOT NULL,
	float_actual INTEGER NOT NULL,
	is_review_yn TEXT NOT NULL DEFAULT 'N'
);
CREATE INDEX IF NOT EXISTS idx_stock_counts_txn ON stock_counts(transaction_id);

CREATE TABLE IF NOT EXISTS erp_items (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	transaction_id TEXT NOT NULL,
	item_code TEXT NOT NULL,
	item_desc TEXT NOT NULL,
	book_bulk INTEGER NOT NULL,
	book_actual INTEGER NOT NULL,
	float_book INTEGER NOT NULL,
	float_actual INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_erp_items_txn ON erp_items(transaction_id);
`

// SQLStore is a Store backed by a SQL database, normally SQLite.
type SQLStore struct {
	db *sql.DB
}

// OpenSQLStore opens a SQLite database at dsn, creates the schema and seeds
// the fixtures when the database is empty. Use ":memory:" for a throwaway
// database.
func OpenSQLStore(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// An in-memory SQLite database exists per connection.
	db.SetMaxOpenConns(1)

	store := NewSQLStore(db)
	if err := store.Init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLStore wraps an existing database handle. The caller is responsible
// for calling Init when the schema may not exist yet.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Init creates the schema and seeds the fixtures if no flights exist.
func (s *SQLStore) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM flights").Scan(&count); err != nil {
		return fmt.Errorf("failed to count flights: %w", err)
	}
	if count > 0 {
		return nil
	}
	return s.seed(ctx)
}

func (s *SQLStore) seed(ctx context.Context) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin seed transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	flights, meals, stock, erp := Fixtures()
	for _, f := range flights {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO flights (flight_no, flight_date, mfl_id, registration_number, service_type, flight_status)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			f.FlightNo, f.FlightDate, f.MflID, f.RegistrationNumber, f.ServiceType, f.FlightStatus); err != nil {
			return fmt.Errorf("failed to seed flight %s: %w", f.FlightNo, err)
		}
	}
	for _, m := range meals {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO meal_orders (mfl_id, f, j, w, y) VALUES (?, ?, ?, ?, ?)`,
			m.MflID, m.F, m.J, m.W, m.Y); err != nil {
			return fmt.Errorf("failed to seed meal order %d: %w", m.MflID, err)
		}
	}
	for _, i := range stock {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO stock_counts (transaction_id, item_code, item_desc, book_bulk, book_actual, float_book, float_actual, is_review_yn)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			i.TransactionID, i.ItemCode, i.ItemDesc, i.BookBulk, i.BookActual, i.FloatBook, i.FloatActual, i.IsReviewYN); err != nil {
			return fmt.Errorf("failed to seed stock count %s/%s: %w", i.TransactionID, i.ItemCode, err)
		}
	}
	for _, i := range erp {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO erp_items (transaction_id, item_code, item_desc, book_bulk, book_actual, float_book, float_actual)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			i.TransactionID, i.ItemCode, i.ItemDesc, i.BookBulk, i.BookActual, i.FloatBook, i.FloatActual); err != nil {
			return fmt.Errorf("failed to seed ERP item %s/%s: %w", i.TransactionID, i.ItemCode, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit seed: %w", err)
	}
	return nil
}

const flightColumns = "flight_no, flight_date, mfl_id, registration_number, service_type, flight_status"

func scanFlight(row interface{ Scan(...interface{}) error }) (Flight, error) {
	var f Flight
	err := row.Scan(&f.FlightNo, &f.FlightDate, &f.MflID, &f.RegistrationNumber, &f.ServiceType, &f.FlightStatus)
	return f, err
}

// FindFlight implements Store.
func (s *SQLStore) FindFlight(ctx context.Context, flightNo, flightDate string) (Flight, error) {
	query := "SELECT " + flightColumns + " FROM flights WHERE flight_no = ?"
	args := []interface{}{flightNo}
	if flightDate != "" {
		query += " AND flight_date = ?"
		args = append(args, flightDate)
	}
	query += " ORDER BY id LIMIT 1"

	f, err := scanFlight(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return Flight{}, ErrNotFound
	}
	if err != nil {
		return Flight{}, fmt.Errorf("failed to query flight: %w", err)
	}
	return f, nil
}

// ListFlights implements Store.
func (s *SQLStore) ListFlights(ctx context.Context) ([]Flight, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+flightColumns+" FROM flights ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query flights: %w", err)
	}
	defer rows.Close()

	var flights []Flight
	for rows.Next() {
		f, err := scanFlight(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan flight: %w", err)
		}
		flights = append(flights, f)
	}
	return flights, rows.Err()
}

// FindMealOrder implements Store.
func (s *SQLStore) FindMealOrder(ctx context.Context, mflID int) (MealOrder, error) {
	var m MealOrder
	err := s.db.QueryRowContext(ctx,
		"SELECT mfl_id, f, j, w, y FROM meal_orders WHERE mfl_id = ?", mflID,
	).Scan(&m.MflID, &m.F, &m.J, &m.W, &m.Y)
	if errors.Is(err, sql.ErrNoRows) {
		return MealOrder{}, ErrNotFound
	}
	if err != nil {
		return MealOrder{}, fmt.Errorf("failed to query meal order: %w", err)
	}
	return m, nil
}

// StockCountLines implements Store.
func (s *SQLStore) StockCountLines(ctx context.Context, transactionID string) ([]StockCountItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT transaction_id, item_code, item_desc, book_bulk, book_actual, float_book, float_actual, is_review_yn
		 FROM stock_counts WHERE transaction_id = ? ORDER BY id`, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query stock counts: %w", err)
	}
	defer rows.Close()

	var items []StockCountItem
	for rows.Next() {
		var i StockCountItem
		if err := rows.Scan(&i.TransactionID, &i.ItemCode, &i.ItemDesc, &i.BookBulk, &i.BookActual,
			&i.FloatBook, &i.FloatActual, &i.IsReviewYN); err != nil {
			return nil, fmt.Errorf("failed to scan stock count: %w", err)
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read stock counts: %w", err)
	}
	if len(items) == 0 {
		return nil, ErrNotFound
	}
	return items, nil
}

// ERPLines implements Store.
func (s *SQLStore) ERPLines(ctx context.Context, transactionID string) ([]ERPItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT transaction_id, item_code, item_desc, book_bulk, book_actual, float_book, float_actual
		 FROM erp_items WHERE transaction_id = ? ORDER BY id`, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query ERP items: %w", err)
	}
	defer rows.Close()

	var items []ERPItem
	for rows.Next() {
		var i ERPItem
		if err := rows.Scan(&i.TransactionID, &i.ItemCode, &i.ItemDesc, &i.BookBulk, &i.BookActual,
			&i.FloatBook, &i.FloatActual); err != nil {
			return nil, fmt.Errorf("failed to scan ERP item: %w", err)
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ERP items: %w", err)
	}
	if len(items) == 0 {
		return nil, ErrNotFound
	}
	return items, nil
}

// MarkForReview implements Store.
func (s *SQLStore) MarkForReview(ctx context.Context, transactionID string, itemCodes []string) (int, error) {
	if len(itemCodes) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(itemCodes)), ", ")
	args := make([]interface{}, 0, len(itemCodes)+1)
	args = append(args, transactionID)
	for _, c := range itemCodes {
		args = append(args, c)
	}

	res, err := s.db.ExecContext(ctx,
		"UPDATE stock_counts SET is_review_yn = 'Y' WHERE transaction_id = ? AND item_code IN ("+placeholders+")",
		args...)
	if err != nil {
		return 0, fmt.Errorf("failed to mark stock counts for review: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return int(n), nil
}

// Close implements Store.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
