package notify

import (
	"fmt"
	"html"
	"strings"

	"shinebin/internal/catalog"
	"shinebin/internal/models"
)

// Alert is the operator-facing summary of a new booking. It is self-contained so it
// can be queued and delivered long after the request that produced it.
type Alert struct {
	BookingID     string       `json:"booking_id"`
	CustomerName  string       `json:"customer_name"`
	CustomerEmail string       `json:"customer_email"`
	Address       string       `json:"address"`
	Plan          string       `json:"plan"`
	BinQuantity   int          `json:"bin_quantity"`
	Date          string       `json:"date"`
	TimeSlot      string       `json:"time_slot"`
	Addons        []string     `json:"addons"`
	PaymentMethod string       `json:"payment_method"`
	TotalPrice    models.Money `json:"total_price"`
	Status        string       `json:"status"`
}

var nextSteps = []string{
	"Contact customer to confirm service and arrange payment",
	"Schedule your team for the appointment",
	"Confirm the booking in the operator API",
}

// NewAlert renders b with the display names of cat.
func NewAlert(b *models.Booking, cat *catalog.Catalog) Alert {
	a := Alert{
		BookingID:     b.ID,
		CustomerName:  b.Customer.Name,
		CustomerEmail: b.Customer.Email,
		Address:       b.Address,
		Plan:          b.Plan,
		BinQuantity:   b.BinQuantity,
		Date:          b.DateKey(),
		TimeSlot:      b.TimeSlot,
		Addons:        append([]string{}, b.Addons...),
		PaymentMethod: b.PaymentMethod,
		TotalPrice:    b.TotalPrice,
		Status:        b.Status,
	}
	if cat == nil {
		return a
	}

	if p, ok := cat.Plan(b.Plan); ok && p.Name != "" {
		a.Plan = p.Name
	}
	a.TimeSlot = cat.SlotLabel(b.TimeSlot)
	a.PaymentMethod = cat.PaymentLabel(b.PaymentMethod)
	for i, id := range b.Addons {
		if addon, ok := cat.Addon(id); ok && addon.Name != "" {
			a.Addons[i] = addon.Name
		}
	}
	return a
}

func (a Alert) Subject() string {
	return fmt.Sprintf("New Booking: %s - %s", a.CustomerName, a.Address)
}

func (a Alert) addonsLine() string {
	if len(a.Addons) == 0 {
		return "None"
	}
	return strings.Join(a.Addons, ", ")
}

// Text renders the alert as plain text.
func (a Alert) Text() string {
	var sb strings.Builder
	sb.WriteString(a.Subject() + "\n\n")

	sb.WriteString("Customer Details\n")
	fmt.Fprintf(&sb, "Name: %s\n", a.CustomerName)
	fmt.Fprintf(&sb, "Email: %s\n\n", a.CustomerEmail)

	sb.WriteString("Service Details\n")
	fmt.Fprintf(&sb, "Address: %s\n", a.Address)
	fmt.Fprintf(&sb, "Plan: %s x %d\n", a.Plan, a.BinQuantity)
	fmt.Fprintf(&sb, "Date: %s\n", a.Date)
	fmt.Fprintf(&sb, "Time: %s\n", a.TimeSlot)
	fmt.Fprintf(&sb, "Add-ons: %s\n", a.addonsLine())
	fmt.Fprintf(&sb, "Payment Method: %s\n", a.PaymentMethod)
	fmt.Fprintf(&sb, "Total Price: %s\n\n", a.TotalPrice)

	sb.WriteString("Next Steps:\n")
	for _, step := range nextSteps {
		fmt.Fprintf(&sb, "- %s\n", step)
	}
	fmt.Fprintf(&sb, "\nBooking ID: %s", a.BookingID)
	return sb.String()
}

// HTML renders the alert for Telegram's HTML parse mode.
func (a Alert) HTML() string {
	e := html.EscapeString
	var sb strings.Builder
	fmt.Fprintf(&sb, "<b>🗑️ %s</b>\n\n", e(a.Subject()))

	sb.WriteString("<b>👤 Customer Details</b>\n")
	fmt.Fprintf(&sb, "Name: %s\n", e(a.CustomerName))
	fmt.Fprintf(&sb, "Email: %s\n\n", e(a.CustomerEmail))

	sb.WriteString("<b>🏠 Service Details</b>\n")
	fmt.Fprintf(&sb, "Address: %s\n", e(a.Address))
	fmt.Fprintf(&sb, "Plan: %s x %d\n", e(a.Plan), a.BinQuantity)
	fmt.Fprintf(&sb, "Date: %s\n", e(a.Date))
	fmt.Fprintf(&sb, "Time: %s\n", e(a.TimeSlot))
	fmt.Fprintf(&sb, "Add-ons: %s\n", e(a.addonsLine()))
	fmt.Fprintf(&sb, "💳 Payment Method: %s\n", e(a.PaymentMethod))
	fmt.Fprintf(&sb, "<b>💰 Total Price: %s</b>\n\n", e(a.TotalPrice.String()))

	sb.WriteString("<b>📋 Next Steps:</b>\n")
	for _, step := range nextSteps {
		fmt.Fprintf(&sb, "• %s\n", e(step))
	}
	fmt.Fprintf(&sb, "\n<code>%s</code>", e(a.BookingID))
	return sb.String()
}
