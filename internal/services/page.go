package services

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/yishak-cs/storefront-recs/internal/models"
	"github.com/yishak-cs/storefront-recs/internal/ranking"
)

// productPageWidgetSize is the length of each recommendation strip on a product page
const productPageWidgetSize = 8

// ProductPage is everything the product detail page shows besides the product form
type ProductPage struct {
	Product        models.Product         `json:"product"`
	Signals        ranking.ProductSignals `json:"signals"`
	AlsoBought     []models.Product       `json:"also_bought"`
	Similar        []models.Product       `json:"similar"`
	RecentlyViewed []models.Product       `json:"recently_viewed"`
}

// ProductPageService assembles the product detail page
type ProductPageService struct {
	recs    *RecommendationService
	tracker *ViewTracker
}

// NewProductPageService creates a new product page service
func NewProductPageService(recs *RecommendationService, tracker *ViewTracker) *ProductPageService {
	return &ProductPageService{recs: recs, tracker: tracker}
}

// Load tracks the view and then builds the page's recommendation strips
// concurrently. Recently viewed is only shown to identified customers.
func (s *ProductPageService) Load(ctx context.Context, productID uint, viewer Viewer, ip string) (*ProductPage, error) {
	if err := s.tracker.TrackView(ctx, productID, viewer, ip); err != nil {
		return nil, err
	}

	product, err := s.recs.activeProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	signals, err := s.recs.store.Signals(ctx, []uint{productID}, s.recs.since())
	if err != nil {
		return nil, fmt.Errorf("failed to load product signals: %w", err)
	}

	page := &ProductPage{
		Product:        *product,
		Signals:        signals[productID],
		RecentlyViewed: []models.Product{},
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		products, err := s.recs.AlsoBought(gctx, productID, productPageWidgetSize)
		page.AlsoBought = products
		return err
	})
	g.Go(func() error {
		products, err := s.recs.Similar(gctx, productID, productPageWidgetSize)
		page.Similar = products
		return err
	})
	if !viewer.Anonymous() {
		g.Go(func() error {
			products, err := s.recs.RecentlyViewed(gctx, viewer, productPageWidgetSize)
			page.RecentlyViewed = products
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return page, nil
}
