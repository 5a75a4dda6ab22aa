package catalog

import (
	"errors"
	"fmt"
	"strings"

	"shinebin/internal/models"
)

// Catalog is the immutable reference data of the booking form: plans,
// add-ons, the daily time slots and the accepted payment methods.
// Build it once with New and share it; its lookups are safe for concurrent use.
type Catalog struct {
	plans    map[string]models.Plan
	addons   map[string]models.Addon
	slots    map[string]models.TimeSlot
	payments map[string]models.PaymentMethod

	planOrder    []models.Plan
	addonOrder   []models.Addon
	slotOrder    []models.TimeSlot
	paymentOrder []models.PaymentMethod
}

// New validates the entries and returns a catalog. Every list must be non-empty,
// ids must be unique and prices non-negative.
func New(plans []models.Plan, addons []models.Addon, slots []models.TimeSlot, payments []models.PaymentMethod) (*Catalog, error) {
	if len(plans) == 0 {
		return nil, errors.New("catalog: at least one plan is required")
	}
	if len(slots) == 0 {
		return nil, errors.New("catalog: at least one time slot is required")
	}
	if len(payments) == 0 {
		return nil, errors.New("catalog: at least one payment method is required")
	}

	c := &Catalog{
		plans:    make(map[string]models.Plan, len(plans)),
		addons:   make(map[string]models.Addon, len(addons)),
		slots:    make(map[string]models.TimeSlot, len(slots)),
		payments: make(map[string]models.PaymentMethod, len(payments)),
	}

	for _, p := range plans {
		if err := checkEntry("plan", p.ID, p.Price, c.hasPlan); err != nil {
			return nil, err
		}
		c.plans[p.ID] = p
		c.planOrder = append(c.planOrder, p)
	}
	for _, a := range addons {
		if err := checkEntry("addon", a.ID, a.Price, c.hasAddon); err != nil {
			return nil, err
		}
		c.addons[a.ID] = a
		c.addonOrder = append(c.addonOrder, a)
	}
	for _, s := range slots {
		if err := checkEntry("time slot", s.ID, 0, c.HasSlot); err != nil {
			return nil, err
		}
		c.slots[s.ID] = s
		c.slotOrder = append(c.slotOrder, s)
	}
	for _, m := range payments {
		if err := checkEntry("payment method", m.ID, 0, c.HasPaymentMethod); err != nil {
			return nil, err
		}
		c.payments[m.ID] = m
		c.paymentOrder = append(c.paymentOrder, m)
	}

	return c, nil
}

func checkEntry(kind, id string, price models.Money, exists func(string) bool) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("catalog: %s with empty id", kind)
	}
	if exists(id) {
		return fmt.Errorf("catalog: duplicate %s id %q", kind, id)
	}
	if price < 0 {
		return fmt.Errorf("catalog: %s %q has negative price", kind, id)
	}
	return nil
}

// Default returns the stock catalog of the service.
func Default() *Catalog {
	c, err := New(DefaultPlans(), DefaultAddons(), DefaultTimeSlots(), DefaultPaymentMethods())
	if err != nil {
		panic(err)
	}
	return c
}

func DefaultPlans() []models.Plan {
	return []models.Plan{
		{ID: "one-time", Name: "One-Time Cleaning", Price: models.Dollars(10, 0)},
	}
}

func DefaultAddons() []models.Addon {
	return []models.Addon{
		{ID: "deodorizer", Name: "Deodorizer Treatment", Price: models.Dollars(2, 0)},
		{ID: "recycle-bin", Name: "Recycle Bin Cleaning", Price: models.Dollars(5, 0)},
	}
}

func DefaultTimeSlots() []models.TimeSlot {
	return []models.TimeSlot{
		{ID: "08:00-10:00", Label: "8:00 AM - 10:00 AM"},
		{ID: "10:00-12:00", Label: "10:00 AM - 12:00 PM"},
		{ID: "12:00-14:00", Label: "12:00 PM - 2:00 PM"},
		{ID: "14:00-16:00", Label: "2:00 PM - 4:00 PM"},
		{ID: "16:00-18:00", Label: "4:00 PM - 6:00 PM"},
	}
}

func DefaultPaymentMethods() []models.PaymentMethod {
	return []models.PaymentMethod{
		{ID: models.PaymentCash, Label: "Cash (paid at time of service)"},
		{ID: models.PaymentCard, Label: "Credit/Debit Card (invoice will be sent)"},
		{ID: models.PaymentVenmo, Label: "Venmo"},
		{ID: models.PaymentApplePay, Label: "Apple Pay"},
	}
}

func (c *Catalog) hasPlan(id string) bool {
	_, ok := c.plans[id]
	return ok
}

func (c *Catalog) hasAddon(id string) bool {
	_, ok := c.addons[id]
	return ok
}

func (c *Catalog) Plan(id string) (models.Plan, bool) {
	p, ok := c.plans[id]
	return p, ok
}

func (c *Catalog) Addon(id string) (models.Addon, bool) {
	a, ok := c.addons[id]
	return a, ok
}

func (c *Catalog) HasSlot(id string) bool {
	_, ok := c.slots[id]
	return ok
}

func (c *Catalog) HasPaymentMethod(id string) bool {
	_, ok := c.payments[id]
	return ok
}

// SlotLabel returns the display label of a slot, or the id itself if unknown.
func (c *Catalog) SlotLabel(id string) string {
	if s, ok := c.slots[id]; ok && s.Label != "" {
		return s.Label
	}
	return id
}

// PaymentLabel returns the display label of a payment method, or the id itself if unknown.
func (c *Catalog) PaymentLabel(id string) string {
	if m, ok := c.payments[id]; ok && m.Label != "" {
		return m.Label
	}
	return id
}

// The list accessors return copies in catalog order.

func (c *Catalog) Plans() []models.Plan {
	return append([]models.Plan(nil), c.planOrder...)
}

func (c *Catalog) Addons() []models.Addon {
	return append([]models.Addon(nil), c.addonOrder...)
}

func (c *Catalog) TimeSlots() []models.TimeSlot {
	return append([]models.TimeSlot(nil), c.slotOrder...)
}

func (c *Catalog) PaymentMethods() []models.PaymentMethod {
	return append([]models.PaymentMethod(nil), c.paymentOrder...)
}

// SlotIndex returns the position of a slot in the daily order, or -1.
func (c *Catalog) SlotIndex(id string) int {
	for i, s := range c.slotOrder {
		if s.ID == id {
			return i
		}
	}
	return -1
}
