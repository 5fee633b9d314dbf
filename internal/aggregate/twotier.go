package aggregate

import (
	"context"

	"github.com/graaaaa/playpulse/internal/metrics"
)

// SourceNone labels a result for which no tier had usable data.
const SourceNone = "none"

// Tier is one data source for a view.
type Tier[T any] struct {
	Name  string
	Fetch func(ctx context.Context) (T, error)
}

// TwoTier answers a view from Primary, consulting Fallback only when the
// primary result is not Sufficient. An empty primary result is a normal
// outcome, not an error.
type TwoTier[T any] struct {
	View       string
	Primary    Tier[T]
	Fallback   Tier[T]
	Sufficient func(T) bool
}

// Result is a view value together with the tier that produced it.
type Result[T any] struct {
	Value  T
	Source string
}

// Run evaluates the tiers in order. When neither tier is sufficient the
// primary value is returned with Source set to SourceNone.
func (s TwoTier[T]) Run(ctx context.Context) (Result[T], error) {
	primary, err := s.Primary.Fetch(ctx)
	if err != nil {
		return Result[T]{}, err
	}
	if s.Sufficient(primary) {
		metrics.FallbackTier.WithLabelValues(s.View, s.Primary.Name).Inc()
		return Result[T]{Value: primary, Source: s.Primary.Name}, nil
	}

	fallback, err := s.Fallback.Fetch(ctx)
	if err != nil {
		return Result[T]{}, err
	}
	if s.Sufficient(fallback) {
		metrics.FallbackTier.WithLabelValues(s.View, s.Fallback.Name).Inc()
		return Result[T]{Value: fallback, Source: s.Fallback.Name}, nil
	}

	metrics.FallbackTier.WithLabelValues(s.View, SourceNone).Inc()
	return Result[T]{Value: primary, Source: SourceNone}, nil
}

// nonEmpty is the Sufficient func for slice-valued views.
func nonEmpty[E any](v []E) bool {
	return len(v) > 0
}
