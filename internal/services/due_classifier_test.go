package services

import (
	"testing"

	"bills/internal/core"
)

func TestDueClassifier_Classify(t *testing.T) {
	classifier := NewDueClassifier(core.FixedClock("2024-01-15"))
	today := classifier.Today()
	if today != "2024-01-15" {
		t.Fatalf("Today() = %q", today)
	}

	tests := []struct {
		name string
		due  core.Date
		want core.DueStatus
	}{
		{name: "due yesterday - overdue", due: "2024-01-14", want: core.Overdue},
		{name: "due last year - overdue", due: "2023-12-31", want: core.Overdue},
		{name: "due today - normal", due: "2024-01-15", want: core.Normal},
		{name: "due in two days - normal", due: "2024-01-17", want: core.Normal},
		{name: "due in three days - soon due", due: "2024-01-18", want: core.SoonDue},
		{name: "due in a hundred days - soon due", due: today.AddDays(100), want: core.SoonDue},
		{name: "unparsable date - normal", due: "someday", want: core.Normal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifier.Classify(tt.due, today)
			if got != tt.want {
				t.Errorf("DueClassifier.Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDueClassifier_ClassifyAll(t *testing.T) {
	classifier := NewDueClassifier(core.FixedClock("2024-01-15"))
	bills := []core.Bill{
		{ID: 1, Title: "a", Date: "2024-01-10"},
		{ID: 2, Title: "b", Date: "2024-01-16"},
		{ID: 3, Title: "c", Date: "2024-02-01"},
	}

	got := classifier.ClassifyAll(bills, classifier.Today())
	want := []core.DueStatus{core.Overdue, core.Normal, core.SoonDue}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ID != bills[i].ID || got[i].Status != want[i] {
			t.Errorf("got[%d] = %+v, want id %d status %v", i, got[i], bills[i].ID, want[i])
		}
	}

	if empty := classifier.ClassifyAll(nil, "2024-01-15"); empty == nil || len(empty) != 0 {
		t.Errorf("ClassifyAll(nil) = %#v, want empty slice", empty)
	}
}
