// Package services provides business logic and orchestration services.
//
// This file attaches due-date buckets to bills for presentation. The rule
// itself lives in core.Classify; this layer only decides what "today" is.

package services

import (
	"bills/internal/core"
)

// ClassifiedBill is a bill together with its presentation bucket.
type ClassifiedBill struct {
	core.Bill
	Status core.DueStatus `json:"status"`
}

// DueClassifier buckets bills against the current day of its clock.
type DueClassifier struct {
	clock core.Clock
}

func NewDueClassifier(clock core.Clock) DueClassifier {
	return DueClassifier{clock: clock}
}

// Today returns the reference day used for classification.
func (c DueClassifier) Today() core.Date {
	return c.clock.Today()
}

// Classify returns the bucket of a single due date relative to today.
func (c DueClassifier) Classify(due core.Date, today core.Date) core.DueStatus {
	return core.ClassifyDate(due, today)
}

// ClassifyAll buckets every bill against the same reference day. The result
// has the same order and length as bills.
func (c DueClassifier) ClassifyAll(bills []core.Bill, today core.Date) []ClassifiedBill {
	out := make([]ClassifiedBill, len(bills))
	for i, b := range bills {
		out[i] = ClassifiedBill{Bill: b, Status: c.Classify(b.Date, today)}
	}
	return out
}
