package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"bills/internal/core"
)

var errMissingEventType = errors.New("missing event type")

// BillEventMessage is the wire form of a bill mutation. It only carries
// identifiers; consumers read the bill itself from the store.
type BillEventMessage struct {
	Type         core.EventType `json:"type"`
	ID           int64          `json:"id"`
	Date         core.Date      `json:"date"`
	PreviousDate core.Date      `json:"previous_date,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}

// NewBillEventMessage builds a message from a domain event, stamping it
// with the current time when the event carries none.
func NewBillEventMessage(e core.BillEvent) *BillEventMessage {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return &BillEventMessage{
		Type:         e.Type,
		ID:           e.ID,
		Date:         e.Date,
		PreviousDate: e.PreviousDate,
		Timestamp:    ts,
	}
}

// Event converts the message back into a domain event.
func (m *BillEventMessage) Event() core.BillEvent {
	return core.BillEvent{
		Type:         m.Type,
		ID:           m.ID,
		Date:         m.Date,
		PreviousDate: m.PreviousDate,
		Timestamp:    m.Timestamp,
	}
}

// AffectedDates lists the days whose bill list changed.
func (m *BillEventMessage) AffectedDates() []core.Date {
	if m.PreviousDate != "" && m.PreviousDate != m.Date {
		return []core.Date{m.PreviousDate, m.Date}
	}
	return []core.Date{m.Date}
}

func (m *BillEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// BillEventMessageFromJSON decodes a message. A body without an event
// type is rejected.
func BillEventMessageFromJSON(data []byte) (*BillEventMessage, error) {
	var msg BillEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Type == "" {
		return nil, errMissingEventType
	}
	return &msg, nil
}
