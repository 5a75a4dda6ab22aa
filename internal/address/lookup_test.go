package address

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gatedProvider blocks each query until its gate is released or ctx ends.
type gatedProvider struct {
	gates   map[string]chan struct{}
	started chan string
}

func (p *gatedProvider) Suggest(ctx context.Context, query string) ([]Suggestion, error) {
	p.started <- query
	select {
	case <-p.gates[query]:
		return []Suggestion{{Label: query + " result"}}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestLastRequestWins(t *testing.T) {
	p := &gatedProvider{
		gates:   map[string]chan struct{}{"12 El": make(chan struct{}), "12 Elm": make(chan struct{})},
		started: make(chan string, 2),
	}
	l := NewLookup(p, 3)

	type outcome struct {
		res []Suggestion
		err error
	}
	first := make(chan outcome, 1)
	go func() {
		res, err := l.Suggest(context.Background(), "12 El")
		first <- outcome{res, err}
	}()
	require.Equal(t, "12 El", <-p.started)

	second := make(chan outcome, 1)
	go func() {
		res, err := l.Suggest(context.Background(), "12 Elm")
		second <- outcome{res, err}
	}()
	require.Equal(t, "12 Elm", <-p.started)

	// the first request was cancelled by the second
	o := <-first
	assert.True(t, errors.Is(o.err, ErrSuperseded))

	close(p.gates["12 Elm"])
	o = <-second
	require.NoError(t, o.err)
	assert.Equal(t, "12 Elm result", o.res[0].Label)

	current, seq := l.Current()
	assert.Equal(t, uint64(2), seq)
	assert.Equal(t, "12 Elm result", current[0].Label)
}

func TestStaleResponseDiscarded(t *testing.T) {
	p := &gatedProvider{
		gates:   map[string]chan struct{}{"old": make(chan struct{}), "new": make(chan struct{})},
		started: make(chan string, 2),
	}
	close(p.gates["new"])
	l := NewLookup(p, 0)

	res, err := l.Suggest(context.Background(), "new")
	require.NoError(t, err)
	require.Len(t, res, 1)

	done := make(chan error, 1)
	go func() {
		_, err := l.Suggest(context.Background(), "old")
		done <- err
	}()
	<-p.started
	<-p.started
	_, err = l.Suggest(context.Background(), "new")
	require.NoError(t, err)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrSuperseded)
	case <-time.After(time.Second):
		t.Fatal("superseded lookup did not return")
	}

	_, seq := l.Current()
	assert.Equal(t, uint64(3), seq)
}

func TestShortQuerySkipsProvider(t *testing.T) {
	p := &gatedProvider{started: make(chan string, 1)}
	l := NewLookup(p, 3)

	res, err := l.Suggest(context.Background(), " 1 ")
	require.NoError(t, err)
	assert.Empty(t, res)
	assert.Len(t, p.started, 0)
}
