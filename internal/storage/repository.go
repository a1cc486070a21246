package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"bills/internal/core"
	"bills/internal/metrics"

	_ "modernc.org/sqlite"
)

// SQLiteRepository is the bill store. One instance owns the database handle
// for the lifetime of the process.
type SQLiteRepository struct {
	db     *sql.DB
	dbPath string
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	repo := &SQLiteRepository{db: db, dbPath: dbPath}

	if err := repo.EnsureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return repo, nil
}

// NewRepositoryWithDB wraps an already open handle. The schema is assumed to exist.
func NewRepositoryWithDB(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// EnsureSchema creates the bills table on first use and does nothing afterwards.
func (r *SQLiteRepository) EnsureSchema(ctx context.Context) error {
	start := time.Now()
	var err error
	if r.dbPath == "" {
		err = errors.New("database path unknown, cannot run migrations")
	} else {
		err = RunMigrations(r.dbPath)
	}
	metrics.ObserveStorage(OpSchema, start, err)
	if err != nil {
		slog.ErrorContext(ctx, "Error creating bills table", "error", err)
		return wrap(OpSchema, err)
	}
	return nil
}

// Ping checks that the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	start := time.Now()
	err := r.db.PingContext(ctx)
	metrics.ObserveStorage(OpPing, start, err)
	return wrap(OpPing, err)
}

// ListByDate returns the bills due on date in insertion order. The result is
// never nil.
func (r *SQLiteRepository) ListByDate(ctx context.Context, date core.Date) (bills []core.Bill, err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveStorage(OpList, start, err)
		if err != nil {
			slog.ErrorContext(ctx, "Error fetching bills", "date", date, "error", err)
			err = wrap(OpList, err)
		}
	}()

	rows, err := r.db.QueryContext(ctx,
		"SELECT id, title, amount, date FROM bills WHERE date = ? ORDER BY id",
		string(date),
	)
	if err != nil {
		return nil, fmt.Errorf("query bills by date: %w", err)
	}
	defer rows.Close()

	bills = []core.Bill{}
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, err
		}
		bills = append(bills, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bills: %w", err)
	}

	return bills, nil
}

// Get returns a single bill. ErrBillNotFound is returned as is, not as a StorageError.
func (r *SQLiteRepository) Get(ctx context.Context, id int64) (core.Bill, error) {
	start := time.Now()
	row := r.db.QueryRowContext(ctx, "SELECT id, title, amount, date FROM bills WHERE id = ?", id)
	b, err := scanBill(row)
	if errors.Is(err, sql.ErrNoRows) {
		metrics.ObserveStorage(OpGet, start, nil)
		return core.Bill{}, ErrBillNotFound
	}
	metrics.ObserveStorage(OpGet, start, err)
	if err != nil {
		slog.ErrorContext(ctx, "Error fetching bill", "id", id, "error", err)
		return core.Bill{}, wrap(OpGet, err)
	}
	return b, nil
}

// Create inserts a bill and returns it with the id assigned by the database.
func (r *SQLiteRepository) Create(ctx context.Context, title string, amount float64, date core.Date) (core.Bill, error) {
	start := time.Now()
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO bills (title, amount, date) VALUES (?, ?, ?)",
		title, amount, string(date),
	)
	var id int64
	if err == nil {
		id, err = res.LastInsertId()
	}
	metrics.ObserveStorage(OpInsert, start, err)
	if err != nil {
		slog.ErrorContext(ctx, "Error adding bill", "title", title, "date", date, "error", err)
		return core.Bill{}, wrap(OpInsert, err)
	}

	slog.DebugContext(ctx, "Bill saved to SQLite",
		"id", id,
		"title", title,
		"amount", amount,
		"date", date)

	return core.Bill{ID: id, Title: title, Amount: amount, Date: date}, nil
}

// Update rewrites title, amount and date of the bill with the given id.
// It reports whether a row matched; an unknown id is not an error.
func (r *SQLiteRepository) Update(ctx context.Context, id int64, title string, amount float64, date core.Date) (bool, error) {
	start := time.Now()
	res, err := r.db.ExecContext(ctx,
		"UPDATE bills SET title = ?, amount = ?, date = ? WHERE id = ?",
		title, amount, string(date), id,
	)
	affected, err := rowsAffected(res, err)
	metrics.ObserveStorage(OpUpdate, start, err)
	if err != nil {
		slog.ErrorContext(ctx, "Error editing bill", "id", id, "error", err)
		return false, wrap(OpUpdate, err)
	}

	slog.DebugContext(ctx, "Bill updated", "id", id, "date", date, "matched", affected > 0)
	return affected > 0, nil
}

// Delete removes the bill with the given id. It reports whether a row matched.
func (r *SQLiteRepository) Delete(ctx context.Context, id int64) (bool, error) {
	start := time.Now()
	res, err := r.db.ExecContext(ctx, "DELETE FROM bills WHERE id = ?", id)
	affected, err := rowsAffected(res, err)
	metrics.ObserveStorage(OpDelete, start, err)
	if err != nil {
		slog.ErrorContext(ctx, "Error deleting bill", "id", id, "error", err)
		return false, wrap(OpDelete, err)
	}

	slog.DebugContext(ctx, "Bill deleted", "id", id, "matched", affected > 0)
	return affected > 0, nil
}

// DatesWithBills counts bills per day for every day in [from, to] that has any.
func (r *SQLiteRepository) DatesWithBills(ctx context.Context, from, to core.Date) (counts []core.DateCount, err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveStorage(OpDates, start, err)
		if err != nil {
			slog.ErrorContext(ctx, "Error counting bills per day", "from", from, "to", to, "error", err)
			err = wrap(OpDates, err)
		}
	}()

	rows, err := r.db.QueryContext(ctx,
		"SELECT date, COUNT(*) FROM bills WHERE date >= ? AND date <= ? GROUP BY date ORDER BY date",
		string(from), string(to),
	)
	if err != nil {
		return nil, fmt.Errorf("query bill dates: %w", err)
	}
	defer rows.Close()

	counts = []core.DateCount{}
	for rows.Next() {
		var dc core.DateCount
		var date sql.NullString
		if err := rows.Scan(&date, &dc.Count); err != nil {
			return nil, fmt.Errorf("scan bill date: %w", err)
		}
		dc.Date = core.Date(date.String)
		counts = append(counts, dc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bill dates: %w", err)
	}

	return counts, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBill(s scanner) (core.Bill, error) {
	var (
		b      core.Bill
		title  sql.NullString
		amount sql.NullFloat64
		date   sql.NullString
	)
	if err := s.Scan(&b.ID, &title, &amount, &date); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Bill{}, err
		}
		return core.Bill{}, fmt.Errorf("scan bill: %w", err)
	}
	b.Title = title.String
	b.Amount = amount.Float64
	b.Date = core.Date(date.String)
	return b, nil
}

func rowsAffected(res sql.Result, err error) (int64, error) {
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
