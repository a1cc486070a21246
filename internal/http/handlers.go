package http

import (
	"context"
	"net/http"
	"strconv"

	"bills/internal/core"
	applog "bills/internal/log"
	"bills/internal/services"
)

// BillAPI is the application surface the handlers drive.
type BillAPI interface {
	Today() core.Date
	DayView(ctx context.Context, date core.Date) (services.DayView, error)
	Create(ctx context.Context, draft core.BillDraft) (core.Bill, services.DayView, error)
	Update(ctx context.Context, id int64, draft core.BillDraft) (core.Bill, services.DayView, core.Date, error)
	Delete(ctx context.Context, id int64) (services.DayView, error)
	MonthMarkers(ctx context.Context, year, month int) (services.MonthView, error)
	Ready(ctx context.Context) error
}

// MutationResponse is returned by create, update and delete. Day is the
// refreshed view of the day the bill now lives on (or lived on, for delete).
// PreviousDate is set when an update moved the bill to another day.
type MutationResponse struct {
	Bill         *core.Bill       `json:"bill,omitempty"`
	Day          services.DayView `json:"day"`
	PreviousDate core.Date        `json:"previous_date,omitempty"`
}

// CalendarResponse carries the month markers and the reference day so the
// UI can highlight today.
type CalendarResponse struct {
	services.MonthView
	Today core.Date `json:"today"`
}

func (s *Server) handleDayView(w http.ResponseWriter, r *http.Request) {
	date, err := ParseDateQuery(r.URL.Query(), s.bills.Today())
	if err != nil {
		s.fail(w, r, applog.OpParse, err)
		return
	}

	view, err := s.bills.DayView(r.Context(), date)
	if err != nil {
		s.fail(w, r, applog.OpList, err)
		return
	}

	NewJSONResponse().Payload(view).Write(w)
}

func (s *Server) handleCreateBill(w http.ResponseWriter, r *http.Request) {
	draft, err := s.readDraft(w, r)
	if err != nil {
		s.fail(w, r, applog.OpParse, err)
		return
	}

	bill, view, err := s.bills.Create(r.Context(), draft)
	if err != nil {
		s.fail(w, r, applog.OpCreate, err)
		return
	}

	applog.NewStructuredLogger(applog.FromContext(r.Context())).
		LogBillMutation(r.Context(), applog.OpCreate, bill.ID, bill.Title, bill.Amount, bill.Date.String(), "")

	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/bills/"+strconv.FormatInt(bill.ID, 10)).
		Payload(MutationResponse{Bill: &bill, Day: view}).
		Write(w)
}

func (s *Server) handleUpdateBill(w http.ResponseWriter, r *http.Request) {
	id, err := ParseID(r)
	if err != nil {
		s.fail(w, r, applog.OpParse, err)
		return
	}

	draft, err := s.readDraft(w, r)
	if err != nil {
		s.fail(w, r, applog.OpParse, err)
		return
	}

	bill, view, previous, err := s.bills.Update(r.Context(), id, draft)
	if err != nil {
		s.fail(w, r, applog.OpUpdate, err)
		return
	}

	applog.NewStructuredLogger(applog.FromContext(r.Context())).
		LogBillMutation(r.Context(), applog.OpUpdate, bill.ID, bill.Title, bill.Amount, bill.Date.String(), previous.String())

	NewJSONResponse().Payload(MutationResponse{Bill: &bill, Day: view, PreviousDate: previous}).Write(w)
}

func (s *Server) handleDeleteBill(w http.ResponseWriter, r *http.Request) {
	id, err := ParseID(r)
	if err != nil {
		s.fail(w, r, applog.OpParse, err)
		return
	}

	view, err := s.bills.Delete(r.Context(), id)
	if err != nil {
		s.fail(w, r, applog.OpDelete, err)
		return
	}

	applog.NewStructuredLogger(applog.FromContext(r.Context())).
		LogBillMutation(r.Context(), applog.OpDelete, id, "", 0, view.Date.String(), "")

	NewJSONResponse().Payload(MutationResponse{Day: view}).Write(w)
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	today := s.bills.Today()
	params, err := ParseMonthParams(r.URL.Query(), today)
	if err != nil {
		s.fail(w, r, applog.OpParse, err)
		return
	}

	month, err := s.bills.MonthMarkers(r.Context(), params.Year, params.Month)
	if err != nil {
		s.fail(w, r, applog.OpList, err)
		return
	}

	NewJSONResponse().Payload(CalendarResponse{MonthView: month, Today: today}).Write(w)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.bills.Ready(r.Context()); err != nil {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", applog.FieldError, err)
		ServiceUnavailableError("storage unavailable").Write(w)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) readDraft(w http.ResponseWriter, r *http.Request) (core.BillDraft, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return ParseDraft(NewRequestBodyParser(r))
}

// fail writes the error response for err. Server-side faults are logged
// with the request's logger; client mistakes are logged at debug.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	resp := FromError(err)
	logger := applog.FromContext(r.Context())

	if resp.StatusCode() >= http.StatusInternalServerError {
		applog.NewStructuredLogger(logger).
			LogError(r.Context(), "Bill request failed", err, applog.ComponentHTTP, op, applog.NewFields())
	} else {
		logger.DebugContext(r.Context(), "Bill request rejected",
			applog.FieldOperation, op,
			applog.FieldError, err.Error(),
			applog.FieldStatusCode, resp.StatusCode())
	}

	resp.Write(w)
}
