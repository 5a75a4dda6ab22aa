package catalog

import "fmt"

type UnknownPlanError struct {
	Plan string
}

func (e *UnknownPlanError) Error() string {
	return fmt.Sprintf("unknown plan %q", e.Plan)
}

type UnknownAddonError struct {
	Addon string
}

func (e *UnknownAddonError) Error() string {
	return fmt.Sprintf("unknown addon %q", e.Addon)
}

// InvalidQuantityError rejects a bin count below 1, or one so large the total
// cannot be represented.
type InvalidQuantityError struct {
	Quantity int
	TooLarge bool
}

func (e *InvalidQuantityError) Error() string {
	if e.TooLarge {
		return fmt.Sprintf("quantity %d is too large to price", e.Quantity)
	}
	return fmt.Sprintf("quantity must be at least 1, got %d", e.Quantity)
}
