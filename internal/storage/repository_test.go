package storage

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bills/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "bills.db"))
	if err != nil {
		t.Fatalf("Failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSQLiteRepository(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	t.Run("ListByDate on empty store", func(t *testing.T) {
		bills, err := repo.ListByDate(ctx, "2025-01-01")
		if err != nil {
			t.Fatalf("ListByDate failed: %v", err)
		}
		if bills == nil || len(bills) != 0 {
			t.Fatalf("expected empty non-nil slice, got %#v", bills)
		}
	})

	t.Run("EnsureSchema is idempotent", func(t *testing.T) {
		if err := repo.EnsureSchema(ctx); err != nil {
			t.Fatalf("second EnsureSchema failed: %v", err)
		}
		if err := repo.EnsureSchema(ctx); err != nil {
			t.Fatalf("third EnsureSchema failed: %v", err)
		}
	})

	t.Run("Create then ListByDate returns the new bill", func(t *testing.T) {
		created, err := repo.Create(ctx, "Electricity", 42.5, "2025-02-10")
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if created.ID == 0 {
			t.Fatal("expected assigned id")
		}

		bills, err := repo.ListByDate(ctx, "2025-02-10")
		if err != nil {
			t.Fatalf("ListByDate failed: %v", err)
		}
		if len(bills) != 1 {
			t.Fatalf("expected 1 bill, got %d", len(bills))
		}
		if bills[0] != created {
			t.Errorf("got %+v, want %+v", bills[0], created)
		}
	})

	t.Run("ListByDate keeps insertion order and filters by date", func(t *testing.T) {
		a, _ := repo.Create(ctx, "Water", 10, "2025-03-01")
		b, _ := repo.Create(ctx, "Water", 10, "2025-03-01")
		_, _ = repo.Create(ctx, "Gas", -3, "2025-03-02")

		bills, err := repo.ListByDate(ctx, "2025-03-01")
		if err != nil {
			t.Fatalf("ListByDate failed: %v", err)
		}
		if len(bills) != 2 || bills[0].ID != a.ID || bills[1].ID != b.ID {
			t.Fatalf("unexpected bills: %+v", bills)
		}
	})

	t.Run("Update moves bill to the new date", func(t *testing.T) {
		orig, _ := repo.Create(ctx, "Phone", 20, "2025-04-01")

		matched, err := repo.Update(ctx, orig.ID, "Phone plan", 25, "2025-04-15")
		if err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		if !matched {
			t.Fatal("expected update to match a row")
		}

		old, _ := repo.ListByDate(ctx, "2025-04-01")
		if len(old) != 0 {
			t.Errorf("old date still lists %+v", old)
		}
		moved, _ := repo.ListByDate(ctx, "2025-04-15")
		want := core.Bill{ID: orig.ID, Title: "Phone plan", Amount: 25, Date: "2025-04-15"}
		if len(moved) != 1 || moved[0] != want {
			t.Errorf("got %+v, want [%+v]", moved, want)
		}
	})

	t.Run("Update and Delete of unknown id are no-ops", func(t *testing.T) {
		matched, err := repo.Update(ctx, 999999, "x", 1, "2025-01-01")
		if err != nil || matched {
			t.Errorf("Update unknown: matched=%v err=%v", matched, err)
		}
		matched, err = repo.Delete(ctx, 999999)
		if err != nil || matched {
			t.Errorf("Delete unknown: matched=%v err=%v", matched, err)
		}
	})

	t.Run("Delete removes the bill", func(t *testing.T) {
		b, _ := repo.Create(ctx, "Internet", 30, "2025-05-05")
		matched, err := repo.Delete(ctx, b.ID)
		if err != nil || !matched {
			t.Fatalf("Delete: matched=%v err=%v", matched, err)
		}
		bills, _ := repo.ListByDate(ctx, "2025-05-05")
		for _, got := range bills {
			if got.ID == b.ID {
				t.Fatalf("deleted bill %d still listed", b.ID)
			}
		}
		if _, err := repo.Get(ctx, b.ID); !errors.Is(err, ErrBillNotFound) {
			t.Fatalf("Get after delete: %v", err)
		}
	})

	t.Run("malformed dates are stored verbatim", func(t *testing.T) {
		b, err := repo.Create(ctx, "Odd", 1, "next tuesday")
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		got, err := repo.Get(ctx, b.ID)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.Date != "next tuesday" {
			t.Errorf("date = %q", got.Date)
		}
	})

	t.Run("DatesWithBills counts per day in range", func(t *testing.T) {
		_, _ = repo.Create(ctx, "A", 1, "2025-06-03")
		_, _ = repo.Create(ctx, "B", 1, "2025-06-03")
		_, _ = repo.Create(ctx, "C", 1, "2025-06-20")
		_, _ = repo.Create(ctx, "D", 1, "2025-07-01")

		counts, err := repo.DatesWithBills(ctx, "2025-06-01", "2025-06-30")
		if err != nil {
			t.Fatalf("DatesWithBills failed: %v", err)
		}
		want := []core.DateCount{{Date: "2025-06-03", Count: 2}, {Date: "2025-06-20", Count: 1}}
		if len(counts) != len(want) {
			t.Fatalf("got %+v, want %+v", counts, want)
		}
		for i := range want {
			if counts[i] != want[i] {
				t.Errorf("counts[%d] = %+v, want %+v", i, counts[i], want[i])
			}
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Fatalf("Ping failed: %v", err)
		}
	})
}

func TestStorageErrorsAreWrapped(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepositoryWithDB(db)
	ctx := context.Background()
	boom := errors.New("disk I/O error")

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, title, amount, date FROM bills WHERE date = ?")).
		WithArgs("2025-01-01").
		WillReturnError(boom)
	_, err = repo.ListByDate(ctx, "2025-01-01")
	assertStorageError(t, err, OpList, boom)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO bills (title, amount, date) VALUES (?, ?, ?)")).
		WithArgs("Rent", 500.0, "2025-01-01").
		WillReturnError(boom)
	_, err = repo.Create(ctx, "Rent", 500, "2025-01-01")
	assertStorageError(t, err, OpInsert, boom)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE bills SET title = ?, amount = ?, date = ? WHERE id = ?")).
		WithArgs("Rent", 500.0, "2025-01-01", int64(7)).
		WillReturnError(boom)
	_, err = repo.Update(ctx, 7, "Rent", 500, "2025-01-01")
	assertStorageError(t, err, OpUpdate, boom)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM bills WHERE id = ?")).
		WithArgs(int64(7)).
		WillReturnError(boom)
	_, err = repo.Delete(ctx, 7)
	assertStorageError(t, err, OpDelete, boom)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, title, amount, date FROM bills WHERE id = ?")).
		WithArgs(int64(7)).
		WillReturnError(boom)
	_, err = repo.Get(ctx, 7)
	assertStorageError(t, err, OpGet, boom)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetNotFoundIsNotStorageError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, title, amount, date FROM bills WHERE id = ?")).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "amount", "date"}))

	_, err = NewRepositoryWithDB(db).Get(context.Background(), 1)
	assert.ErrorIs(t, err, ErrBillNotFound)
	assert.False(t, IsStorageError(err))
}

func TestListByDateScansNullColumns(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, title, amount, date FROM bills WHERE date = ?")).
		WithArgs("2025-01-01").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "amount", "date"}).
			AddRow(int64(3), nil, nil, "2025-01-01"))

	bills, err := NewRepositoryWithDB(db).ListByDate(context.Background(), "2025-01-01")
	require.NoError(t, err)
	require.Len(t, bills, 1)
	assert.Equal(t, core.Bill{ID: 3, Date: "2025-01-01"}, bills[0])
}

func TestEnsureSchemaWithoutPath(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	err = NewRepositoryWithDB(db).EnsureSchema(context.Background())
	require.Error(t, err)
	assert.True(t, IsStorageError(err))
}

func assertStorageError(t *testing.T, err error, op string, cause error) {
	t.Helper()
	require.Error(t, err)
	var se *StorageError
	require.True(t, errors.As(err, &se), "expected *StorageError, got %T", err)
	assert.Equal(t, op, se.Op)
	assert.ErrorIs(t, err, cause)
}
