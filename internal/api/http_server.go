package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"shinebin/internal/address"
	"shinebin/internal/availability"
	"shinebin/internal/config"
	"shinebin/internal/domain"
	"shinebin/internal/export"
	"shinebin/internal/service"

	"github.com/rs/zerolog"
)

const maxBodyBytes = 64 << 10

// HTTPServer exposes the booking API.
type HTTPServer struct {
	cfg         *config.APIConfig
	bookings    *service.BookingService
	exporter    *export.Exporter
	submissions domain.RateLimiter
	failed      domain.FailedNotifications
	addresses   *address.Sessions
	server      *http.Server
	auth        *HTTPAuth
	logger      *zerolog.Logger
}

// NewHTTPServer wires routes and middleware. submissions may be nil, which
// disables the per-customer throttle. failed and addresses may be nil, which
// hides the dead notification listing and address suggestions.
func NewHTTPServer(
	cfg *config.APIConfig,
	bookings *service.BookingService,
	exporter *export.Exporter,
	submissions domain.RateLimiter,
	failed domain.FailedNotifications,
	addresses *address.Sessions,
	logger *zerolog.Logger,
) *HTTPServer {
	base := zerolog.Nop()
	if logger != nil {
		base = logger.With().Str("component", "http").Logger()
	}

	srv := &HTTPServer{
		cfg:         cfg,
		bookings:    bookings,
		exporter:    exporter,
		submissions: submissions,
		failed:      failed,
		addresses:   addresses,
		auth:        NewHTTPAuth(cfg),
		logger:      &base,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", srv.handleHealth)
	mux.HandleFunc("GET /catalog", srv.handleCatalog)
	mux.HandleFunc("GET /availability", srv.handleAvailability)
	mux.HandleFunc("POST /quote", srv.handleQuote)
	mux.HandleFunc("POST /bookings", srv.handleSubmit)
	mux.HandleFunc("GET /bookings/{id}", srv.handleGetBooking)
	mux.HandleFunc("GET /address/suggest", srv.handleAddressSuggest)

	mux.HandleFunc("GET /admin/bookings", srv.handleListBookings)
	mux.HandleFunc("GET /admin/bookings/export", srv.handleExport)
	mux.HandleFunc("POST /admin/bookings/{id}/{action}", srv.handleTransition)
	mux.HandleFunc("GET /admin/notifications/failed", srv.handleFailedNotifications)

	handler := loggingMiddleware(srv.logger, recoverMiddleware(srv.logger, srv.auth.Wrap(mux)))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
	}

	return srv
}

func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

func writeValidation(w http.ResponseWriter, field, reason string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{
		"error":  "validation_error",
		"field":  field,
		"reason": reason,
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeValidation(w, "body", "invalid JSON body")
		return false
	}
	return true
}

// writeServiceError maps core errors onto the HTTP contract.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, err error) {
	var verr *service.ValidationError
	var perr *service.PersistenceError
	switch {
	case errors.As(err, &verr):
		writeValidation(w, verr.Field, verr.Reason)
	case errors.Is(err, availability.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot_unavailable")
	case errors.Is(err, service.ErrBookingNotFound):
		writeError(w, http.StatusNotFound, "not_found")
	case errors.Is(err, service.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition")
	case errors.Is(err, service.ErrConcurrentModification):
		writeError(w, http.StatusConflict, "concurrent_modification")
	case errors.As(err, &perr):
		s.logger.Error().Err(err).Msg("Persistence failure")
		writeError(w, http.StatusInternalServerError, "persistence_error")
	default:
		s.logger.Error().Err(err).Msg("Request failed")
		writeError(w, http.StatusInternalServerError, "internal_error")
	}
}
