package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"bills/internal/cache"
	"bills/internal/core"
	applog "bills/internal/log"
	"bills/internal/metrics"
	"bills/internal/storage"
)

var (
	// ErrIncompleteBill is returned when a draft is missing a title, an
	// amount or a date. Nothing is written in that case.
	ErrIncompleteBill = errors.New("incomplete bill")
	ErrBillNotFound   = storage.ErrBillNotFound
	ErrInvalidMonth   = errors.New("invalid month")
)

// BillStore is the persistence contract the service relies on.
type BillStore interface {
	ListByDate(ctx context.Context, date core.Date) ([]core.Bill, error)
	Get(ctx context.Context, id int64) (core.Bill, error)
	Create(ctx context.Context, title string, amount float64, date core.Date) (core.Bill, error)
	Update(ctx context.Context, id int64, title string, amount float64, date core.Date) (bool, error)
	Delete(ctx context.Context, id int64) (bool, error)
	DatesWithBills(ctx context.Context, from, to core.Date) ([]core.DateCount, error)
	Ping(ctx context.Context) error
}

// DayView is the classified list of bills due on one day.
type DayView struct {
	Date  core.Date        `json:"date"`
	Today core.Date        `json:"today"`
	Bills []ClassifiedBill `json:"bills"`
}

// MonthView lists the days of a month that have at least one bill.
type MonthView struct {
	Year    int              `json:"year"`
	Month   int              `json:"month"`
	Markers []core.DateCount `json:"markers"`
}

// BillService orchestrates bill operations across the store, the day cache
// and the event publishers. Every mutation invalidates the affected days and
// returns a view read back from the store.
type BillService struct {
	store      BillStore
	cache      cache.Cache[core.Date, []core.Bill]
	classifier DueClassifier
	publisher  Publisher

	group singleflight.Group
	// generation is bumped on every invalidation so that a read that
	// started before a write does not repopulate the cache with stale rows.
	// fillMu makes the generation check and the cache fill atomic with
	// respect to invalidate.
	fillMu     sync.Mutex
	generation atomic.Uint64
	now        func() time.Time
}

// NewBillService wires the service. cache and publisher may be nil.
func NewBillService(store BillStore, dayCache cache.Cache[core.Date, []core.Bill], clock core.Clock, publisher Publisher) *BillService {
	return &BillService{
		store:      store,
		cache:      dayCache,
		classifier: NewDueClassifier(clock),
		publisher:  publisher,
		now:        time.Now,
	}
}

// Today returns the reference day used for classification.
func (s *BillService) Today() core.Date {
	return s.classifier.Today()
}

// DayView returns the bills due on date, each with its due-date bucket.
func (s *BillService) DayView(ctx context.Context, date core.Date) (DayView, error) {
	bills, err := s.billsFor(ctx, date)
	if err != nil {
		return DayView{}, fmt.Errorf("list bills for %s: %w", date, err)
	}

	today := s.classifier.Today()
	return DayView{
		Date:  date,
		Today: today,
		Bills: s.classifier.ClassifyAll(bills, today),
	}, nil
}

// Create stores a new bill and returns the refreshed view of its day.
func (s *BillService) Create(ctx context.Context, draft core.BillDraft) (core.Bill, DayView, error) {
	if err := draft.Validate(); err != nil {
		return core.Bill{}, DayView{}, fmt.Errorf("%w: %w", ErrIncompleteBill, err)
	}

	bill, err := s.store.Create(ctx, draft.Title, *draft.Amount, draft.Date)
	if err != nil {
		return core.Bill{}, DayView{}, fmt.Errorf("create bill: %w", err)
	}
	slog.DebugContext(ctx, "Bill created", "id", bill.ID, "date", bill.Date)

	s.invalidate(bill.Date)
	view, err := s.DayView(ctx, bill.Date)
	if err != nil {
		return bill, DayView{}, err
	}

	s.publish(ctx, core.BillEvent{Type: core.EventCreated, ID: bill.ID, Date: bill.Date})
	return bill, view, nil
}

// Update overwrites title, amount and date of an existing bill. The
// returned view is the bill's new day; both the old and the new day are
// invalidated. previous is the day the bill moved away from, empty when the
// date did not change.
func (s *BillService) Update(ctx context.Context, id int64, draft core.BillDraft) (bill core.Bill, view DayView, previous core.Date, err error) {
	if err := draft.Validate(); err != nil {
		return core.Bill{}, DayView{}, "", fmt.Errorf("%w: %w", ErrIncompleteBill, err)
	}

	prev, err := s.store.Get(ctx, id)
	if err != nil {
		return core.Bill{}, DayView{}, "", fmt.Errorf("load bill %d: %w", id, err)
	}

	matched, err := s.store.Update(ctx, id, draft.Title, *draft.Amount, draft.Date)
	if err != nil {
		return core.Bill{}, DayView{}, "", fmt.Errorf("update bill %d: %w", id, err)
	}
	if !matched {
		s.invalidate(prev.Date)
		return core.Bill{}, DayView{}, "", fmt.Errorf("update bill %d: %w", id, ErrBillNotFound)
	}

	bill = core.Bill{ID: id, Title: draft.Title, Amount: *draft.Amount, Date: draft.Date}
	if prev.Date != bill.Date {
		previous = prev.Date
	}
	slog.DebugContext(ctx, "Bill updated", "id", id, "date", bill.Date, "previous_date", prev.Date)

	s.invalidate(prev.Date, bill.Date)
	view, err = s.DayView(ctx, bill.Date)
	if err != nil {
		return bill, DayView{}, previous, err
	}

	s.publish(ctx, core.BillEvent{Type: core.EventUpdated, ID: id, Date: bill.Date, PreviousDate: previous})
	return bill, view, previous, nil
}

// Delete removes a bill and returns the refreshed view of the day it was on.
func (s *BillService) Delete(ctx context.Context, id int64) (DayView, error) {
	prev, err := s.store.Get(ctx, id)
	if err != nil {
		return DayView{}, fmt.Errorf("load bill %d: %w", id, err)
	}

	matched, err := s.store.Delete(ctx, id)
	if err != nil {
		return DayView{}, fmt.Errorf("delete bill %d: %w", id, err)
	}
	s.invalidate(prev.Date)
	if !matched {
		return DayView{}, fmt.Errorf("delete bill %d: %w", id, ErrBillNotFound)
	}
	slog.DebugContext(ctx, "Bill deleted", "id", id, "date", prev.Date)

	view, err := s.DayView(ctx, prev.Date)
	if err != nil {
		return DayView{}, err
	}

	s.publish(ctx, core.BillEvent{Type: core.EventDeleted, ID: id, Date: prev.Date})
	return view, nil
}

// MonthMarkers returns the days of the given month that have bills.
func (s *BillService) MonthMarkers(ctx context.Context, year, month int) (MonthView, error) {
	if month < 1 || month > 12 {
		return MonthView{}, fmt.Errorf("%w: %d", ErrInvalidMonth, month)
	}

	from := core.NewDate(year, month, 1)
	to := core.NewDate(year, month+1, 0)
	markers, err := s.store.DatesWithBills(ctx, from, to)
	if err != nil {
		return MonthView{}, fmt.Errorf("month markers %04d-%02d: %w", year, month, err)
	}
	return MonthView{Year: year, Month: month, Markers: markers}, nil
}

// Ready reports whether the store is reachable.
func (s *BillService) Ready(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Close releases the store and the publishers.
func (s *BillService) Close() error {
	var errs []error

	if c, ok := s.store.(interface{ Close() error }); ok && c != nil {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if c, ok := s.publisher.(interface{ Close() error }); ok && c != nil {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("publisher: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close bill service: %w", errors.Join(errs...))
	}
	return nil
}

func (s *BillService) billsFor(ctx context.Context, date core.Date) ([]core.Bill, error) {
	if s.cache != nil {
		if bills, ok := s.cache.Get(date); ok {
			metrics.ObserveCache(true)
			return bills, nil
		}
		metrics.ObserveCache(false)
	}

	v, err, _ := s.group.Do(string(date), func() (any, error) {
		gen := s.generation.Load()
		bills, err := s.store.ListByDate(ctx, date)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			s.fillMu.Lock()
			if s.generation.Load() == gen {
				s.cache.Set(date, bills)
			}
			s.fillMu.Unlock()
		}
		return bills, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]core.Bill), nil
}

func (s *BillService) invalidate(dates ...core.Date) {
	s.fillMu.Lock()
	defer s.fillMu.Unlock()

	s.generation.Add(1)
	for _, d := range dates {
		if s.cache != nil {
			s.cache.Delete(d)
		}
		s.group.Forget(string(d))
	}
}

func (s *BillService) publish(ctx context.Context, event core.BillEvent) {
	if s.publisher == nil {
		return
	}
	event.Timestamp = s.now().UTC()
	if err := s.publisher.Publish(ctx, event); err != nil {
		slog.ErrorContext(ctx, "Failed to publish bill event",
			applog.FieldOperation, applog.OpPublish,
			"type", event.Type, "id", event.ID, "error", err)
	}
}
