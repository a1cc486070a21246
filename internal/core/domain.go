package core

import (
	"errors"
	"strings"
	"time"
)

// DateLayout is the canonical calendar date form used as the bill partition key.
const DateLayout = "2006-01-02"

const (
	EventCreated EventType = "bill.created"
	EventUpdated EventType = "bill.updated"
	EventDeleted EventType = "bill.deleted"
)

type (
	// Date is a calendar day in YYYY-MM-DD form. The store keeps it verbatim,
	// so a Date read back from storage is not guaranteed to parse.
	Date string

	EventType string

	Bill struct {
		ID     int64   `json:"id"`
		Title  string  `json:"title"`
		Amount float64 `json:"amount"`
		Date   Date    `json:"date"`
	}

	// BillDraft is the add/edit form payload. Amount is nil when the field
	// was left empty.
	BillDraft struct {
		Title  string
		Amount *float64
		Date   Date
	}

	// DateCount is the number of bills due on a given day.
	DateCount struct {
		Date  Date `json:"date"`
		Count int  `json:"count"`
	}

	// BillEvent describes a completed mutation. PreviousDate is only set
	// when an update moved the bill to another day.
	BillEvent struct {
		Type         EventType `json:"type"`
		ID           int64     `json:"id"`
		Date         Date      `json:"date"`
		PreviousDate Date      `json:"previous_date,omitempty"`
		Timestamp    time.Time `json:"timestamp"`
	}
)

var (
	ErrInvalidDate   = errors.New("invalid date")
	ErrInvalidAmount = errors.New("invalid amount")
	ErrEmptyTitle    = errors.New("empty title")
	ErrMissingAmount = errors.New("missing amount")
	ErrMissingDate   = errors.New("missing date")
)

// ParseDate validates s as a YYYY-MM-DD calendar date.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if _, err := time.Parse(DateLayout, s); err != nil {
		return "", ErrInvalidDate
	}
	return Date(s), nil
}

// DateOf returns the calendar day of t in t's location.
func DateOf(t time.Time) Date {
	return Date(t.Format(DateLayout))
}

// NewDate builds a Date from its parts, normalising overflowing values
// the way time.Date does.
func NewDate(year, month, day int) Date {
	return DateOf(time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC))
}

// Time returns midnight UTC of the day.
func (d Date) Time() (time.Time, error) {
	t, err := time.Parse(DateLayout, string(d))
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return t, nil
}

// AddDays shifts the date by n calendar days. A malformed date is returned unchanged.
func (d Date) AddDays(n int) Date {
	t, err := d.Time()
	if err != nil {
		return d
	}
	return DateOf(t.AddDate(0, 0, n))
}

func (d Date) String() string {
	return string(d)
}

func (d Date) IsZero() bool {
	return d == ""
}

// Validate reports the first reason the draft cannot be saved.
func (b BillDraft) Validate() error {
	if strings.TrimSpace(b.Title) == "" {
		return ErrEmptyTitle
	}
	if b.Amount == nil {
		return ErrMissingAmount
	}
	if b.Date.IsZero() {
		return ErrMissingDate
	}
	return nil
}

// Complete reports whether the draft carries a title, an amount and a date.
func (b BillDraft) Complete() bool {
	return b.Validate() == nil
}
