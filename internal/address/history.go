package address

import (
	"context"

	"shinebin/internal/domain"
)

// HistoryProvider suggests addresses customers have booked before.
type HistoryProvider struct {
	source domain.AddressSource
	limit  int
}

func NewHistoryProvider(source domain.AddressSource, limit int) *HistoryProvider {
	return &HistoryProvider{source: source, limit: limit}
}

func (p *HistoryProvider) Suggest(ctx context.Context, query string) ([]Suggestion, error) {
	addresses, err := p.source.SuggestAddresses(ctx, query, p.limit)
	if err != nil {
		return nil, err
	}
	out := make([]Suggestion, 0, len(addresses))
	for _, a := range addresses {
		out = append(out, Suggestion{Label: a})
	}
	return out, nil
}
