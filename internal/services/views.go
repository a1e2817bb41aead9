package services

import (
	"context"
	"fmt"
	"time"

	"github.com/yishak-cs/storefront-recs/internal/database"
	"github.com/yishak-cs/storefront-recs/internal/logger"
	"github.com/yishak-cs/storefront-recs/internal/metrics"
	"github.com/yishak-cs/storefront-recs/internal/models"
)

// Viewer identifies who is looking at a product: an identified customer,
// or else an anonymous session
type Viewer struct {
	CustomerID *uint
	SessionKey string
}

// Anonymous reports whether the viewer is not an identified customer
func (v Viewer) Anonymous() bool {
	return v.CustomerID == nil
}

// ViewTracker records product views and keeps the recently viewed lists current
type ViewTracker struct {
	store   *database.Store
	metrics *metrics.Metrics
	log     *logger.Logger
	now     func() time.Time
}

// NewViewTracker creates a new view tracker
func NewViewTracker(store *database.Store, m *metrics.Metrics, log *logger.Logger, opts Options) *ViewTracker {
	return &ViewTracker{
		store:   store,
		metrics: m,
		log:     log.With("service", "ViewTracker"),
		now:     opts.clock(),
	}
}

// TrackView appends a view, bumps the product's view counter and, for
// identified customers, rebuilds their recently viewed list from the log.
// Each write is its own statement so the counter never waits on the list.
func (t *ViewTracker) TrackView(ctx context.Context, productID uint, viewer Viewer, ip string) error {
	product, err := t.store.ProductByID(ctx, productID)
	if err != nil {
		return err
	}
	if !product.IsActive {
		return ErrNotFound
	}

	view := &models.ProductView{
		ProductID: productID,
		IPAddress: ip,
		ViewedAt:  t.now(),
	}
	if viewer.CustomerID != nil {
		id := *viewer.CustomerID
		view.CustomerID = &id
	} else if viewer.SessionKey != "" {
		key := viewer.SessionKey
		view.SessionKey = &key
	}

	if err := t.store.AppendView(ctx, view); err != nil {
		return err
	}
	if err := t.store.IncrementViewCount(ctx, productID); err != nil {
		return err
	}
	t.metrics.ViewsTracked.Inc()

	if viewer.CustomerID == nil {
		return nil
	}
	recent, err := t.store.RecentViewedProductIDs(ctx, viewer.CustomerID, "", models.RecentlyViewedLimit)
	if err != nil {
		return fmt.Errorf("failed to rebuild recently viewed: %w", err)
	}
	if err := t.store.ReplaceRecentlyViewed(ctx, *viewer.CustomerID, recent); err != nil {
		return err
	}

	t.log.Debug("Tracked product view", "product_id", productID, "customer_id", *viewer.CustomerID, "recent", len(recent))
	return nil
}
