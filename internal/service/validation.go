package service

import (
	"errors"
	"strings"
	"time"

	"shinebin/internal/catalog"
	"shinebin/internal/models"
)

// ParseDate reads a YYYY-MM-DD calendar date as UTC midnight.
func ParseDate(raw string) (time.Time, error) {
	d, err := time.Parse(models.DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, invalid("date", "expected YYYY-MM-DD")
	}
	return d, nil
}

// today is the current calendar date in the service timezone, as UTC midnight.
func (s *BookingService) today() time.Time {
	y, m, d := s.now().In(s.location).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ValidateBookingDate rejects dates in the past and beyond the booking horizon.
func (s *BookingService) ValidateBookingDate(date time.Time) error {
	today := s.today()
	if date.Before(today) {
		return invalid("date", "date is in the past")
	}
	if s.maxBookingDays > 0 && date.After(today.AddDate(0, 0, s.maxBookingDays)) {
		return invalid("date", "date is too far in the future")
	}
	return nil
}

// validate checks c field by field and stops at the first violation.
// The returned booking carries normalized values and no price.
func (s *BookingService) validate(c models.Candidate) (*models.Booking, error) {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return nil, invalid("name", "required")
	}

	email := strings.TrimSpace(c.Email)
	if email == "" {
		return nil, invalid("email", "required")
	}
	if !strings.Contains(email, "@") {
		return nil, invalid("email", "must contain @")
	}

	address := strings.TrimSpace(c.Address)
	if address == "" {
		return nil, invalid("address", "required")
	}

	if _, ok := s.catalog.Plan(c.Plan); !ok {
		return nil, &ValidationError{Field: "plan", Reason: "unknown plan", Err: &catalog.UnknownPlanError{Plan: c.Plan}}
	}

	if c.BinQuantity < 1 {
		return nil, invalid("binQuantity", "must be at least 1")
	}

	date, err := ParseDate(c.Date)
	if err != nil {
		return nil, err
	}
	if err := s.ValidateBookingDate(date); err != nil {
		return nil, err
	}

	if !s.catalog.HasSlot(c.TimeSlot) {
		return nil, invalid("timeSlot", "unknown time slot")
	}

	seen := make(map[string]bool, len(c.Addons))
	for _, id := range c.Addons {
		if seen[id] {
			return nil, invalid("addons", "duplicate addon "+id)
		}
		seen[id] = true
		if _, ok := s.catalog.Addon(id); !ok {
			return nil, &ValidationError{Field: "addons", Reason: "unknown addon " + id, Err: &catalog.UnknownAddonError{Addon: id}}
		}
	}

	if !s.catalog.HasPaymentMethod(c.PaymentMethod) {
		return nil, invalid("paymentMethod", "unknown payment method")
	}

	return &models.Booking{
		Customer:      models.Customer{Name: name, Email: email},
		Address:       address,
		Plan:          c.Plan,
		BinQuantity:   c.BinQuantity,
		Date:          date,
		TimeSlot:      c.TimeSlot,
		Addons:        append([]string{}, c.Addons...),
		PaymentMethod: c.PaymentMethod,
	}, nil
}

// pricingError maps calculator errors onto the validation class.
func pricingError(err error) error {
	var planErr *catalog.UnknownPlanError
	var addonErr *catalog.UnknownAddonError
	var qtyErr *catalog.InvalidQuantityError
	switch {
	case errors.As(err, &planErr):
		return &ValidationError{Field: "plan", Reason: "unknown plan", Err: err}
	case errors.As(err, &addonErr):
		return &ValidationError{Field: "addons", Reason: "unknown addon " + addonErr.Addon, Err: err}
	case errors.As(err, &qtyErr):
		if qtyErr.TooLarge {
			return &ValidationError{Field: "binQuantity", Reason: "too large", Err: err}
		}
		return &ValidationError{Field: "binQuantity", Reason: "must be at least 1", Err: err}
	}
	return err
}
