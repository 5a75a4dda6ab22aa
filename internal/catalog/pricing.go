package catalog

import (
	"math"

	"shinebin/internal/models"
)

// AddonLine is a priced add-on in a quote.
type AddonLine struct {
	ID    string       `json:"id"`
	Name  string       `json:"name"`
	Price models.Money `json:"price"`
}

// Quote is the price breakdown of a booking.
type Quote struct {
	Plan        string       `json:"plan"`
	BasePerUnit models.Money `json:"basePerUnit"`
	Quantity    int          `json:"quantity"`
	AddonLines  []AddonLine  `json:"addonLines"`
	Total       models.Money `json:"total"`
}

// Calculator prices bookings against a catalog. It holds no mutable state.
type Calculator struct {
	catalog *Catalog
}

func NewCalculator(c *Catalog) *Calculator {
	return &Calculator{catalog: c}
}

// Price computes base*quantity plus one charge per distinct add-on.
// Add-ons are charged once per booking, not per bin.
func (p *Calculator) Price(plan string, quantity int, addons []string) (Quote, error) {
	planEntry, ok := p.catalog.Plan(plan)
	if !ok {
		return Quote{}, &UnknownPlanError{Plan: plan}
	}
	if quantity < 1 {
		return Quote{}, &InvalidQuantityError{Quantity: quantity}
	}
	if planEntry.Price > 0 && int64(quantity) > math.MaxInt64/int64(planEntry.Price) {
		return Quote{}, &InvalidQuantityError{Quantity: quantity, TooLarge: true}
	}

	quote := Quote{
		Plan:        planEntry.ID,
		BasePerUnit: planEntry.Price,
		Quantity:    quantity,
		AddonLines:  []AddonLine{},
		Total:       planEntry.Price * models.Money(quantity),
	}

	seen := make(map[string]bool, len(addons))
	for _, id := range addons {
		if seen[id] {
			continue
		}
		seen[id] = true

		addon, ok := p.catalog.Addon(id)
		if !ok {
			return Quote{}, &UnknownAddonError{Addon: id}
		}
		if quote.Total > models.Money(math.MaxInt64)-addon.Price {
			return Quote{}, &InvalidQuantityError{Quantity: quantity, TooLarge: true}
		}
		quote.AddonLines = append(quote.AddonLines, AddonLine{ID: addon.ID, Name: addon.Name, Price: addon.Price})
		quote.Total += addon.Price
	}

	return quote, nil
}
