// Package address coordinates address-suggestion lookups against a provider
// so that a slow, older response never overwrites a newer one.
package address

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// ErrSuperseded is returned to a caller whose request was overtaken by a newer one.
var ErrSuperseded = errors.New("address lookup superseded")

type Suggestion struct {
	Label   string `json:"label"`
	PlaceID string `json:"placeId,omitempty"`
}

// Provider answers address-suggestion queries.
type Provider interface {
	Suggest(ctx context.Context, query string) ([]Suggestion, error)
}

// Lookup applies only the response of the most recently issued request.
// Each call gets the next sequence number and cancels the call before it.
type Lookup struct {
	provider Provider
	minChars int

	mu      sync.Mutex
	seq     uint64
	applied uint64
	cancel  context.CancelFunc
	current []Suggestion
}

func NewLookup(provider Provider, minChars int) *Lookup {
	return &Lookup{provider: provider, minChars: minChars}
}

// Suggest queries the provider. A result that is no longer the latest is
// discarded and ErrSuperseded returned instead.
func (l *Lookup) Suggest(ctx context.Context, query string) ([]Suggestion, error) {
	query = strings.TrimSpace(query)

	l.mu.Lock()
	l.seq++
	mine := l.seq
	if l.cancel != nil {
		l.cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.mu.Unlock()
	defer cancel()

	var (
		result []Suggestion
		err    error
	)
	if len([]rune(query)) >= l.minChars {
		result, err = l.provider.Suggest(ctx, query)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if mine != l.seq {
		return nil, ErrSuperseded
	}
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = []Suggestion{}
	}
	l.applied = mine
	l.current = result
	return result, nil
}

// Current returns the last applied suggestions and the sequence that produced them.
func (l *Lookup) Current() ([]Suggestion, uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Suggestion(nil), l.current...), l.applied
}
