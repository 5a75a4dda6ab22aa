package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"shinebin/internal/availability"
	"shinebin/internal/catalog"
	"shinebin/internal/config"
	"shinebin/internal/database"
	"shinebin/internal/domain"
	"shinebin/internal/events"
	"shinebin/internal/metrics"
	"shinebin/internal/models"

	"github.com/rs/zerolog"
)

// releaseTimeout bounds cleanup that must outlive the caller's context.
const releaseTimeout = 5 * time.Second

type BookingService struct {
	repo                domain.BookingRepository
	index               *availability.Index
	catalog             *catalog.Catalog
	calculator          *catalog.Calculator
	dispatcher          domain.Dispatcher
	eventBus            domain.EventPublisher
	location            *time.Location
	maxBookingDays      int
	rejectPriceMismatch bool
	now                 func() time.Time
	logger              *zerolog.Logger
}

func NewBookingService(
	repo domain.BookingRepository,
	index *availability.Index,
	cat *catalog.Catalog,
	dispatcher domain.Dispatcher,
	eventBus domain.EventPublisher,
	cfg config.BookingConfig,
	logger *zerolog.Logger,
) *BookingService {
	if cat == nil {
		cat = catalog.Default()
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &BookingService{
		repo:                repo,
		index:               index,
		catalog:             cat,
		calculator:          catalog.NewCalculator(cat),
		dispatcher:          dispatcher,
		eventBus:            eventBus,
		location:            cfg.Location(),
		maxBookingDays:      cfg.MaxBookingDays,
		rejectPriceMismatch: cfg.RejectPriceMismatch,
		now:                 time.Now,
		logger:              logger,
	}
}

func (s *BookingService) Catalog() *catalog.Catalog {
	return s.catalog
}

// Submit validates, prices, reserves and persists a new pending booking.
// The operator alert is dispatched afterwards and never affects the result.
func (s *BookingService) Submit(ctx context.Context, c models.Candidate) (*models.Booking, error) {
	booking, err := s.validate(c)
	if err != nil {
		metrics.IncSubmission("invalid")
		return nil, err
	}

	quote, err := s.calculator.Price(booking.Plan, booking.BinQuantity, booking.Addons)
	if err != nil {
		metrics.IncSubmission("invalid")
		return nil, pricingError(err)
	}
	if c.TotalPrice != nil && *c.TotalPrice != quote.Total {
		if s.rejectPriceMismatch {
			metrics.IncSubmission("invalid")
			return nil, invalid("totalPrice", fmt.Sprintf("expected %s", quote.Total.Decimal()))
		}
		s.logger.Debug().
			Str("client_total", c.TotalPrice.Decimal()).
			Str("total", quote.Total.Decimal()).
			Msg("Client total discarded")
	}
	booking.TotalPrice = quote.Total

	token, err := s.index.TryReserve(ctx, booking.Date, booking.TimeSlot)
	if err != nil {
		if errors.Is(err, availability.ErrSlotUnavailable) {
			metrics.IncSubmission("conflict")
			return nil, err
		}
		metrics.IncSubmission("error")
		return nil, &PersistenceError{Op: "reserve slot", Err: err}
	}
	booking.HoldToken = string(token)

	if err := s.repo.CreateBooking(ctx, booking); err != nil {
		s.releaseDetached(ctx, token)
		if errors.Is(err, database.ErrSlotUnavailable) {
			metrics.IncSubmission("conflict")
			return nil, &availability.ConflictError{Date: booking.DateKey(), Slot: booking.TimeSlot}
		}
		metrics.IncSubmission("error")
		s.logger.Error().Err(err).Str("date", booking.DateKey()).Str("slot", booking.TimeSlot).Msg("Failed to persist booking")
		return nil, &PersistenceError{Op: "persist booking", Err: err}
	}

	metrics.IncSubmission("accepted")
	s.logger.Info().
		Str("booking_id", booking.ID).
		Str("date", booking.DateKey()).
		Str("slot", booking.TimeSlot).
		Str("total", booking.TotalPrice.Decimal()).
		Msg("Booking created")

	s.publishEvent(events.EventBookingCreated, booking)
	if s.dispatcher != nil {
		s.dispatcher.Dispatch(booking)
	}

	return booking, nil
}

// releaseDetached frees token even when ctx is already cancelled.
func (s *BookingService) releaseDetached(ctx context.Context, token availability.Token) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := s.index.Release(rctx, token); err != nil {
		s.logger.Error().Err(err).Msg("Failed to release slot hold")
	}
}

func (s *BookingService) Confirm(ctx context.Context, id string, version int64) (*models.Booking, error) {
	return s.transition(ctx, id, version, models.StatusConfirmed, "", events.EventBookingConfirmed)
}

func (s *BookingService) Complete(ctx context.Context, id string, version int64) (*models.Booking, error) {
	return s.transition(ctx, id, version, models.StatusCompleted, "", events.EventBookingCompleted)
}

// Cancel moves a pending or confirmed booking to cancelled and frees its slot.
// An empty reason is recorded as an operator cancellation.
func (s *BookingService) Cancel(ctx context.Context, id string, version int64, reason string) (*models.Booking, error) {
	if reason == "" {
		reason = models.CancelReasonOperator
	}
	return s.transition(ctx, id, version, models.StatusCancelled, reason, events.EventBookingCancelled)
}

func (s *BookingService) transition(ctx context.Context, id string, version int64, to, reason, eventType string) (*models.Booking, error) {
	current, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Version != version {
		return nil, ErrConcurrentModification
	}
	from := current.Status
	if !models.CanTransition(from, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	if err := s.repo.UpdateBookingStatusWithVersion(ctx, id, version, to, reason); err != nil {
		return nil, err
	}
	metrics.IncTransition(to)

	if !models.IsActiveStatus(to) {
		s.releaseDetached(ctx, availability.Token(current.HoldToken))
	}

	updated, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		// the transition itself succeeded
		s.logger.Warn().Err(err).Str("booking_id", id).Msg("Failed to reload booking")
		current.Status = to
		current.CancelReason = reason
		current.Version = version + 1
		updated = current
	}

	s.logger.Info().Str("booking_id", id).Str("from", from).Str("to", to).Msg("Booking status changed")
	s.publishEvent(eventType, updated)
	return updated, nil
}

// ExpirePending cancels up to limit pending bookings created before cutoff.
// Bookings touched concurrently by an operator are skipped.
func (s *BookingService) ExpirePending(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	stale, err := s.repo.GetExpiredPending(ctx, cutoff, limit)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, b := range stale {
		err := s.repo.UpdateBookingStatusWithVersion(ctx, b.ID, b.Version, models.StatusCancelled, models.CancelReasonExpired)
		if err != nil {
			if errors.Is(err, ErrConcurrentModification) || errors.Is(err, ErrBookingNotFound) {
				continue
			}
			return expired, err
		}
		expired++
		metrics.IncTransition(models.StatusCancelled)
		s.releaseDetached(ctx, availability.Token(b.HoldToken))

		b.Status = models.StatusCancelled
		b.CancelReason = models.CancelReasonExpired
		b.Version++
		s.publishEvent(events.EventBookingExpired, b)
	}
	return expired, nil
}

func (s *BookingService) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	return s.repo.GetBooking(ctx, id)
}

// Quote prices a prospective booking without touching availability.
func (s *BookingService) Quote(plan string, quantity int, addons []string) (catalog.Quote, error) {
	q, err := s.calculator.Price(plan, quantity, addons)
	if err != nil {
		return catalog.Quote{}, pricingError(err)
	}
	return q, nil
}

func (s *BookingService) Availability(ctx context.Context, date time.Time) (models.Availability, error) {
	slots, err := s.index.ListOccupied(ctx, date)
	if err != nil {
		return models.Availability{}, err
	}
	return models.Availability{Date: date, OccupiedSlots: slots}, nil
}

// ListBookings returns every booking dated within [from, to], any status.
func (s *BookingService) ListBookings(ctx context.Context, from, to time.Time) ([]*models.Booking, error) {
	if to.Before(from) {
		return nil, invalid("to", "must not be before from")
	}
	return s.repo.GetBookingsByDateRange(ctx, from.Format(models.DateLayout), to.Format(models.DateLayout))
}

func (s *BookingService) publishEvent(eventType string, booking *models.Booking) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.PublishJSON(eventType, events.NewBookingPayload(booking)); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("booking_id", booking.ID).Msg("publish event error")
	}
}
