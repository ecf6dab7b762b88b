package routing

import (
	"artisan-delivery/internal/domain"
	"context"
	"fmt"
	"sync/atomic"
)

type MockRoute struct {
	From, To domain.Coordinate
	Route    domain.RouteResult
}

// MockDirections returns fixed routes keyed by coordinate pair.
// Unknown pairs fail like an unreachable backend. Err, when set, fails every call.
type MockDirections struct {
	m     map[string]domain.RouteResult
	Err   error
	calls atomic.Int64
}

func NewMockDirections(routes []MockRoute) *MockDirections {
	m := make(map[string]domain.RouteResult, len(routes))
	for _, r := range routes {
		m[pairKey(r.From, r.To)] = r.Route
	}
	return &MockDirections{m: m}
}

func (p *MockDirections) Directions(ctx context.Context, from, to domain.Coordinate) (domain.RouteResult, error) {
	p.calls.Add(1)

	if err := ctx.Err(); err != nil {
		return domain.RouteResult{}, err
	}
	if p.Err != nil {
		return domain.RouteResult{}, p.Err
	}

	r, ok := p.m[pairKey(from, to)]
	if !ok {
		return domain.RouteResult{}, fmt.Errorf("missing pair %s -> %s", from.Key(), to.Key())
	}

	return r, nil
}

// Calls reports how many times Directions was invoked.
func (p *MockDirections) Calls() int64 { return p.calls.Load() }

func pairKey(from, to domain.Coordinate) string {
	return from.Key() + "|" + to.Key()
}
