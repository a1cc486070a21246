package worker

import (
	"context"
	"fmt"
	"log/slog"

	"bills/internal/amqp"
	"bills/internal/core"
	"bills/internal/services"
)

// DayReader returns the classified bills of a day.
type DayReader interface {
	DayView(ctx context.Context, date core.Date) (services.DayView, error)
	Today() core.Date
}

// DateCounter lists days that have bills in an inclusive range.
type DateCounter interface {
	DatesWithBills(ctx context.Context, from, to core.Date) ([]core.DateCount, error)
}

// Digest summarises the bills around today.
type Digest struct {
	Today   core.Date `json:"today"`
	Overdue int       `json:"overdue"`
	Normal  int       `json:"normal"`
	SoonDue int       `json:"soon_due"`
}

// EventWorker consumes bill events and keeps a running view of what is due.
type EventWorker struct {
	days      DayReader
	dates     DateCounter
	lookback  int
	lookahead int
}

// NewEventWorker creates a worker. The digest covers lookback days before
// today and lookahead days after it.
func NewEventWorker(days DayReader, dates DateCounter, lookback, lookahead int) *EventWorker {
	return &EventWorker{
		days:      days,
		dates:     dates,
		lookback:  lookback,
		lookahead: lookahead,
	}
}

// HandleBillEvent reloads every day touched by the event. An error makes the
// consumer requeue the message.
func (w *EventWorker) HandleBillEvent(ctx context.Context, msg *amqp.BillEventMessage) error {
	slog.InfoContext(ctx, "Processing bill event",
		"type", msg.Type,
		"id", msg.ID,
		"date", msg.Date)

	for _, date := range msg.AffectedDates() {
		view, err := w.days.DayView(ctx, date)
		if err != nil {
			return fmt.Errorf("reload %s: %w", date, err)
		}

		counts := countStatuses(view.Bills)
		slog.InfoContext(ctx, "Day refreshed",
			"date", date,
			"bills", len(view.Bills),
			"overdue", counts[core.Overdue],
			"soon_due", counts[core.SoonDue])

		if msg.Type == core.EventDeleted || date != msg.Date {
			continue
		}
		for _, b := range view.Bills {
			if b.ID == msg.ID && b.Status == core.Overdue {
				slog.WarnContext(ctx, "Bill saved with a past due date",
					"id", b.ID,
					"title", b.Title,
					"date", b.Date)
			}
		}
	}
	return nil
}

// Digest counts the bills in the window around today by due bucket.
func (w *EventWorker) Digest(ctx context.Context) (Digest, error) {
	today := w.days.Today()
	d := Digest{Today: today}

	dates, err := w.dates.DatesWithBills(ctx, today.AddDays(-w.lookback), today.AddDays(w.lookahead))
	if err != nil {
		return d, fmt.Errorf("list dates: %w", err)
	}

	for _, dc := range dates {
		switch core.ClassifyDate(dc.Date, today) {
		case core.Overdue:
			d.Overdue += dc.Count
		case core.SoonDue:
			d.SoonDue += dc.Count
		default:
			d.Normal += dc.Count
		}
	}
	return d, nil
}

// LogDigest computes the digest and writes it to the log.
func (w *EventWorker) LogDigest(ctx context.Context) error {
	d, err := w.Digest(ctx)
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "Bill digest",
		"today", d.Today,
		"overdue", d.Overdue,
		"normal", d.Normal,
		"soon_due", d.SoonDue)
	return nil
}

func countStatuses(bills []services.ClassifiedBill) map[core.DueStatus]int {
	counts := make(map[core.DueStatus]int, 3)
	for _, b := range bills {
		counts[b.Status]++
	}
	return counts
}
