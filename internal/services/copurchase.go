package services

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	"github.com/yishak-cs/storefront-recs/internal/database"
	"github.com/yishak-cs/storefront-recs/internal/logger"
	"github.com/yishak-cs/storefront-recs/internal/metrics"
)

// CoPurchaseSource ranks the products bought by the buyers of a product.
// Both the relational store and the Neo4j projection implement it.
type CoPurchaseSource interface {
	AlsoBought(ctx context.Context, productID uint, limit int) ([]database.CoPurchase, error)
}

// BreakerSource calls a primary source through a circuit breaker and
// answers from the fallback when the primary fails or the circuit is open
type BreakerSource struct {
	primary  CoPurchaseSource
	fallback CoPurchaseSource
	cb       *gobreaker.CircuitBreaker
	log      *logger.Logger
}

// BreakerSettings tunes the breaker around the primary source
type BreakerSettings struct {
	Name         string
	Timeout      time.Duration // how long the circuit stays open
	FailureRatio float64
	MinRequests  uint32
}

// NewBreakerSource wraps primary with a breaker that trips once at least
// MinRequests calls were made and FailureRatio of them failed
func NewBreakerSource(primary, fallback CoPurchaseSource, st BreakerSettings, m *metrics.Metrics, log *logger.Logger) *BreakerSource {
	if st.Name == "" {
		st.Name = "copurchase-graph"
	}
	if st.FailureRatio <= 0 {
		st.FailureRatio = 0.5
	}
	if st.MinRequests == 0 {
		st.MinRequests = 5
	}
	if st.Timeout <= 0 {
		st.Timeout = 30 * time.Second
	}
	log = log.With("component", "breaker", "name", st.Name)

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    st.Name,
		Timeout: st.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= st.MinRequests && ratio >= st.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed", "from", from.String(), "to", to.String())
			m.BreakerState.WithLabelValues(name).Set(float64(to))
		},
	})
	m.BreakerState.WithLabelValues(st.Name).Set(float64(gobreaker.StateClosed))

	return &BreakerSource{primary: primary, fallback: fallback, cb: cb, log: log}
}

// AlsoBought implements CoPurchaseSource
func (b *BreakerSource) AlsoBought(ctx context.Context, productID uint, limit int) ([]database.CoPurchase, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.primary.AlsoBought(ctx, productID, limit)
	})
	if err == nil {
		return res.([]database.CoPurchase), nil
	}
	b.log.Warn("primary co-purchase source failed, using fallback", "product_id", productID, "error", err)
	return b.fallback.AlsoBought(ctx, productID, limit)
}

// State reports the breaker state
func (b *BreakerSource) State() gobreaker.State {
	return b.cb.State()
}
