package models

import "time"

// DateLayout is the wire and storage format of a booking date.
const DateLayout = "2006-01-02"

type Customer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type Booking struct {
	ID            string    `json:"id"`
	Customer      Customer  `json:"customer"`
	Address       string    `json:"address"`
	Plan          string    `json:"plan"`
	BinQuantity   int       `json:"bin_quantity"`
	Date          time.Time `json:"date"`
	TimeSlot      string    `json:"time_slot"`
	Addons        []string  `json:"addons"`
	PaymentMethod string    `json:"payment_method"`
	TotalPrice    Money     `json:"total_price"`
	Status        string    `json:"status"` // pending, confirmed, completed, cancelled
	CancelReason  string    `json:"cancel_reason,omitempty"`
	HoldToken     string    `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	Version       int64     `json:"version"`
}

// DateKey returns the booking date in DateLayout.
func (b *Booking) DateKey() string {
	return b.Date.Format(DateLayout)
}

// IsActive reports whether the booking occupies its slot.
func (b *Booking) IsActive() bool {
	return IsActiveStatus(b.Status)
}

// Candidate is an unvalidated booking submission as received from a client.
type Candidate struct {
	Name          string   `json:"name"`
	Email         string   `json:"email"`
	Address       string   `json:"address"`
	Plan          string   `json:"plan"`
	BinQuantity   int      `json:"binQuantity"`
	Date          string   `json:"date"`
	TimeSlot      string   `json:"timeSlot"`
	Addons        []string `json:"addons"`
	PaymentMethod string   `json:"paymentMethod"`
	TotalPrice    *Money   `json:"totalPrice,omitempty"`
}

// Availability is the occupancy view of a single date.
type Availability struct {
	Date          time.Time `json:"date"`
	OccupiedSlots []string  `json:"occupied_slots"`
}

// SlotHold is a reservation of one (date, slot) identified by an opaque token.
type SlotHold struct {
	Token string `json:"token"`
	Date  string `json:"date"`
	Slot  string `json:"slot"`
}
