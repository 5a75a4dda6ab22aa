package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"shinebin/internal/address"
	"shinebin/internal/export"
	"shinebin/internal/logging"
	"shinebin/internal/models"
	"shinebin/internal/service"
)

const submissionWindow = time.Hour

const sessionHeader = "X-Session-ID"

const (
	defaultFailedLimit = 50
	maxFailedLimit     = 500
)

type quoteRequest struct {
	Plan        string   `json:"plan"`
	BinQuantity int      `json:"binQuantity"`
	Addons      []string `json:"addons"`
}

type transitionRequest struct {
	Version int64  `json:"version"`
	Reason  string `json:"reason,omitempty"`
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleCatalog(w http.ResponseWriter, _ *http.Request) {
	cat := s.bookings.Catalog()
	writeJSON(w, http.StatusOK, map[string]any{
		"plans":          cat.Plans(),
		"addons":         cat.Addons(),
		"timeSlots":      cat.TimeSlots(),
		"paymentMethods": cat.PaymentMethods(),
	})
}

func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("date"))
	if raw == "" {
		writeValidation(w, "date", "required")
		return
	}
	date, err := service.ParseDate(raw)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	availability, err := s.bookings.Availability(r.Context(), date)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"date":          raw,
		"occupiedSlots": availability.OccupiedSlots,
	})
}

func (s *HTTPServer) handleQuote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	quote, err := s.bookings.Quote(req.Plan, req.BinQuantity, req.Addons)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

func (s *HTTPServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var candidate models.Candidate
	if !decodeJSON(w, r, &candidate) {
		return
	}

	if !s.allowSubmission(r, candidate.Email) {
		writeError(w, http.StatusTooManyRequests, "rate_limited")
		return
	}

	booking, err := s.bookings.Submit(r.Context(), candidate)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":         booking.ID,
		"totalPrice": booking.TotalPrice,
		"status":     booking.Status,
	})
}

// allowSubmission applies the per-customer hourly throttle. Cache errors let
// the request through.
func (s *HTTPServer) allowSubmission(r *http.Request, email string) bool {
	key := strings.ToLower(strings.TrimSpace(email))
	limit := s.cfg.RateLimit.SubmissionsPerHour
	if s.submissions == nil || key == "" || limit <= 0 {
		return true
	}
	allowed, err := s.submissions.CheckRateLimit(r.Context(), "submit:"+key, limit, submissionWindow)
	if err != nil {
		logging.FromContext(r.Context(), s.logger).Warn().Err(err).Msg("Submission throttle unavailable")
		return true
	}
	return allowed
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	booking, err := s.bookings.GetBooking(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleTransition(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	action := r.PathValue("action")

	var req transitionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Version < 1 {
		writeValidation(w, "version", "required")
		return
	}

	var (
		booking *models.Booking
		err     error
	)
	switch action {
	case "confirm":
		booking, err = s.bookings.Confirm(r.Context(), id, req.Version)
	case "complete":
		booking, err = s.bookings.Complete(r.Context(), id, req.Version)
	case "cancel":
		booking, err = s.bookings.Cancel(r.Context(), id, req.Version, req.Reason)
	default:
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

// parseRange reads the from/to query parameters; both are required.
func parseRange(r *http.Request) (time.Time, time.Time, error) {
	from, err := service.ParseDate(r.URL.Query().Get("from"))
	if err != nil {
		return time.Time{}, time.Time{}, &service.ValidationError{Field: "from", Reason: "expected YYYY-MM-DD"}
	}
	to, err := service.ParseDate(r.URL.Query().Get("to"))
	if err != nil {
		return time.Time{}, time.Time{}, &service.ValidationError{Field: "to", Reason: "expected YYYY-MM-DD"}
	}
	return from, to, nil
}

func (s *HTTPServer) handleListBookings(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseRange(r)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	bookings, err := s.bookings.ListBookings(r.Context(), from, to)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})
}

// handleAddressSuggest answers type-ahead queries. Requests carrying the same
// X-Session-ID (or, without one, from the same client) share a lookup, so an
// older query still in flight is answered 409 superseded.
func (s *HTTPServer) handleAddressSuggest(w http.ResponseWriter, r *http.Request) {
	if s.addresses == nil {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	session := strings.TrimSpace(r.Header.Get(sessionHeader))
	if session == "" {
		session = s.auth.clientKey(r)
	}

	suggestions, err := s.addresses.Suggest(r.Context(), session, r.URL.Query().Get("q"))
	switch {
	case errors.Is(err, address.ErrSuperseded):
		writeError(w, http.StatusConflict, "superseded")
	case err != nil:
		logging.FromContext(r.Context(), s.logger).Error().Err(err).Msg("address suggest")
		writeError(w, http.StatusBadGateway, "address_lookup_failed")
	default:
		writeJSON(w, http.StatusOK, map[string]any{"suggestions": suggestions})
	}
}

func (s *HTTPServer) handleFailedNotifications(w http.ResponseWriter, r *http.Request) {
	if s.failed == nil {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	limit := defaultFailedLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxFailedLimit {
			writeValidation(w, "limit", fmt.Sprintf("must be between 1 and %d", maxFailedLimit))
			return
		}
		limit = n
	}

	tasks, err := s.failed.GetFailedNotificationTasks(r.Context(), limit)
	if err != nil {
		logging.FromContext(r.Context(), s.logger).Error().Err(err).Msg("list failed notifications")
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	if tasks == nil {
		tasks = []models.NotificationTask{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	if s.exporter == nil {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	from, to, err := parseRange(r)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	bookings, err := s.bookings.ListBookings(r.Context(), from, to)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	// render fully before headers go out so failures can still be reported
	var buf bytes.Buffer
	if err := s.exporter.Write(&buf, from, to, bookings); err != nil {
		logging.FromContext(r.Context(), s.logger).Error().Err(err).Msg("Export failed")
		writeError(w, http.StatusInternalServerError, "export_failed")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.FileName(from, to)+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
