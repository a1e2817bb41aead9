package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/yishak-cs/storefront-recs/internal/cache"
	"github.com/yishak-cs/storefront-recs/internal/database"
	"github.com/yishak-cs/storefront-recs/internal/logger"
	"github.com/yishak-cs/storefront-recs/internal/metrics"
	"github.com/yishak-cs/storefront-recs/internal/models"
	"github.com/yishak-cs/storefront-recs/internal/ranking"
)

// ErrNotFound is returned for unknown or inactive products and unknown customers
var ErrNotFound = database.ErrNotFound

// DefaultTrendingWindow is the rolling window for recent sales and views
const DefaultTrendingWindow = 30 * 24 * time.Hour

// Options configures the recommendation and search services
type Options struct {
	TrendingWindow time.Duration
	// Now is the clock; nil means time.Now in UTC
	Now func() time.Time
}

func (o Options) window() time.Duration {
	if o.TrendingWindow <= 0 {
		return DefaultTrendingWindow
	}
	return o.TrendingWindow
}

func (o Options) clock() func() time.Time {
	if o.Now != nil {
		return o.Now
	}
	return func() time.Time { return time.Now().UTC() }
}

// RecommendationService builds every ranked product list
type RecommendationService struct {
	store      *database.Store
	copurchase CoPurchaseSource
	cache      cache.IDCache
	metrics    *metrics.Metrics
	log        *logger.Logger
	window     time.Duration
	now        func() time.Time
}

// NewRecommendationService creates a new recommendation service
func NewRecommendationService(store *database.Store, copurchase CoPurchaseSource, idCache cache.IDCache, m *metrics.Metrics, log *logger.Logger, opts Options) *RecommendationService {
	if copurchase == nil {
		copurchase = store
	}
	if idCache == nil {
		idCache = cache.Noop{}
	}
	return &RecommendationService{
		store:      store,
		copurchase: copurchase,
		cache:      idCache,
		metrics:    m,
		log:        log.With("service", "RecommendationService"),
		window:     opts.window(),
		now:        opts.clock(),
	}
}

func (s *RecommendationService) since() time.Time {
	return s.now().Add(-s.window)
}

// activeProduct loads a product and hides inactive ones
func (s *RecommendationService) activeProduct(ctx context.Context, id uint) (*models.Product, error) {
	p, err := s.store.ProductByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, ErrNotFound
	}
	return p, nil
}

// AlsoBought answers: "Customers who bought this product also bought..."
func (s *RecommendationService) AlsoBought(ctx context.Context, productID uint, limit int) ([]models.Product, error) {
	defer s.metrics.ObserveRecommendation(string(models.StrategyAlsoBought), time.Now())

	if _, err := s.activeProduct(ctx, productID); err != nil {
		return nil, err
	}

	// The graph projection may lag behind product activation, so the full
	// ranking is fetched and the active filter and limit applied here.
	counts, err := s.copurchase.AlsoBought(ctx, productID, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to get also bought products: %w", err)
	}
	ids := make([]uint, 0, len(counts))
	for _, c := range counts {
		if c.ProductID != productID {
			ids = append(ids, c.ProductID)
		}
	}
	products, err := s.store.ProductsByIDs(ctx, ids, true)
	if err != nil {
		return nil, fmt.Errorf("failed to get also bought products: %w", err)
	}
	if limit > 0 && len(products) > limit {
		products = products[:limit]
	}
	return products, nil
}

// Similar answers: "What else shares this product's category, brand or vendor?"
// When that set is empty it retries with the category alone, else the vendor alone.
func (s *RecommendationService) Similar(ctx context.Context, productID uint, limit int) ([]models.Product, error) {
	defer s.metrics.ObserveRecommendation(string(models.StrategySimilar), time.Now())

	product, err := s.activeProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	query := database.ProductQuery{ExcludeIDs: []uint{product.ID}}
	if product.CategoryID != 0 {
		query.CategoryIDs = []uint{product.CategoryID}
	}
	if product.BrandID != nil {
		query.BrandIDs = []uint{*product.BrandID}
	}
	if product.VendorID != nil {
		query.VendorIDs = []uint{*product.VendorID}
	}
	// no category, brand or vendor leaves nothing to compare against
	if len(query.CategoryIDs) == 0 && len(query.BrandIDs) == 0 && len(query.VendorIDs) == 0 {
		return []models.Product{}, nil
	}

	candidates, err := s.store.ActiveProducts(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get similar products: %w", err)
	}

	if len(candidates) == 0 {
		fallback := database.ProductQuery{ExcludeIDs: []uint{product.ID}}
		switch {
		case product.CategoryID != 0:
			fallback.CategoryIDs = []uint{product.CategoryID}
		case product.VendorID != nil:
			fallback.VendorIDs = []uint{*product.VendorID}
		default:
			return []models.Product{}, nil
		}
		s.log.Debug("No similar products, trying fallback", "product_id", productID)
		if candidates, err = s.store.ActiveProducts(ctx, fallback); err != nil {
			return nil, fmt.Errorf("failed to get similar products: %w", err)
		}
	}

	return s.rankByQuality(ctx, candidates, limit)
}

// Personalized answers: "What should this customer look at next?" based on
// the categories and brands of their PAID purchases. Customers without
// purchases get the trending list.
func (s *RecommendationService) Personalized(ctx context.Context, customerID uint, limit int) ([]models.Product, error) {
	defer s.metrics.ObserveRecommendation(string(models.StrategyPersonalized), time.Now())

	exists, err := s.store.CustomerExists(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrNotFound
	}

	purchased, err := s.store.PurchasedProductIDs(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get personalized products: %w", err)
	}
	if len(purchased) == 0 {
		return s.Trending(ctx, limit)
	}

	bought, err := s.store.ProductsByIDs(ctx, purchased, false)
	if err != nil {
		return nil, fmt.Errorf("failed to get personalized products: %w", err)
	}
	query := database.ProductQuery{ExcludeIDs: purchased}
	seenCategory := make(map[uint]bool)
	seenBrand := make(map[uint]bool)
	for _, p := range bought {
		if !seenCategory[p.CategoryID] {
			seenCategory[p.CategoryID] = true
			query.CategoryIDs = append(query.CategoryIDs, p.CategoryID)
		}
		if p.BrandID != nil && !seenBrand[*p.BrandID] {
			seenBrand[*p.BrandID] = true
			query.BrandIDs = append(query.BrandIDs, *p.BrandID)
		}
	}
	if len(query.CategoryIDs) == 0 && len(query.BrandIDs) == 0 {
		return []models.Product{}, nil
	}

	candidates, err := s.store.ActiveProducts(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get personalized products: %w", err)
	}
	return s.rankByQuality(ctx, candidates, limit)
}

func (s *RecommendationService) rankByQuality(ctx context.Context, products []models.Product, limit int) ([]models.Product, error) {
	if len(products) == 0 {
		return []models.Product{}, nil
	}
	cands, err := s.store.Candidates(ctx, products, s.since())
	if err != nil {
		return nil, fmt.Errorf("failed to load product signals: %w", err)
	}
	return ranking.Products(ranking.RankByQuality(cands), limit), nil
}

// Trending ranks every active product by recent sales, recent views, review
// count, rating, lifetime views and recency
func (s *RecommendationService) Trending(ctx context.Context, limit int) ([]models.Product, error) {
	defer s.metrics.ObserveRecommendation(string(models.StrategyTrending), time.Now())

	key := fmt.Sprintf("trending:%d:%d", int(s.window.Hours()/24), limit)
	return s.cached(ctx, key, func() ([]uint, error) {
		ranked, err := s.trendingCandidates(ctx)
		if err != nil {
			return nil, err
		}
		return models.ProductIDs(ranking.Products(ranked, limit)), nil
	})
}

func (s *RecommendationService) trendingCandidates(ctx context.Context) ([]ranking.Candidate, error) {
	products, err := s.store.ActiveProducts(ctx, database.ProductQuery{})
	if err != nil {
		return nil, fmt.Errorf("failed to get trending products: %w", err)
	}
	cands, err := s.store.Candidates(ctx, products, s.since())
	if err != nil {
		return nil, fmt.Errorf("failed to load product signals: %w", err)
	}
	return ranking.RankTrending(cands), nil
}

// Seasonal takes limit/2 featured products by rating and review count, then
// fills the rest from the trending order without repeating a product
func (s *RecommendationService) Seasonal(ctx context.Context, limit int) ([]models.Product, error) {
	defer s.metrics.ObserveRecommendation(string(models.StrategySeasonal), time.Now())

	key := fmt.Sprintf("seasonal:%d:%d", int(s.window.Hours()/24), limit)
	return s.cached(ctx, key, func() ([]uint, error) {
		featured, err := s.store.ActiveProducts(ctx, database.ProductQuery{FeaturedOnly: true})
		if err != nil {
			return nil, fmt.Errorf("failed to get featured products: %w", err)
		}
		cands, err := s.store.Candidates(ctx, featured, s.since())
		if err != nil {
			return nil, fmt.Errorf("failed to load product signals: %w", err)
		}
		picked := models.ProductIDs(ranking.Products(ranking.RankFeatured(cands), limit/2))
		if len(picked) >= limit {
			return picked, nil
		}

		trending, err := s.trendingCandidates(ctx)
		if err != nil {
			return nil, err
		}
		seen := make(map[uint]bool, len(picked))
		for _, id := range picked {
			seen[id] = true
		}
		for _, c := range trending {
			if len(picked) >= limit {
				break
			}
			if !seen[c.Product.ID] {
				seen[c.Product.ID] = true
				picked = append(picked, c.Product.ID)
			}
		}
		return picked, nil
	})
}

// cached serves an id list from the cache, building and storing it on a
// miss. Cache failures are logged and never fail the request.
func (s *RecommendationService) cached(ctx context.Context, key string, build func() ([]uint, error)) ([]models.Product, error) {
	ids, ok, err := s.cache.GetIDs(ctx, key)
	if err != nil {
		s.log.Warn("Cache read failed", "key", key, "error", err)
	}
	if ok {
		s.metrics.CacheLookups.WithLabelValues(cacheLabel(key), "hit").Inc()
	} else {
		s.metrics.CacheLookups.WithLabelValues(cacheLabel(key), "miss").Inc()
		if ids, err = build(); err != nil {
			return nil, err
		}
		if err := s.cache.SetIDs(ctx, key, ids); err != nil {
			s.log.Warn("Cache write failed", "key", key, "error", err)
		}
	}

	products, err := s.store.ProductsByIDs(ctx, ids, true)
	if err != nil {
		return nil, fmt.Errorf("failed to load ranked products: %w", err)
	}
	return products, nil
}

func cacheLabel(key string) string {
	label, _, _ := strings.Cut(key, ":")
	return label
}

// RecentlyViewed returns the viewer's recently viewed active products, most
// recent first. Customers read their stored list; anonymous sessions read the
// view log.
func (s *RecommendationService) RecentlyViewed(ctx context.Context, viewer Viewer, limit int) ([]models.Product, error) {
	defer s.metrics.ObserveRecommendation(string(models.StrategyRecentlyViewed), time.Now())

	var ids []uint
	var err error
	if viewer.CustomerID != nil {
		ids, err = s.store.RecentlyViewedIDs(ctx, *viewer.CustomerID)
	} else {
		ids, err = s.store.RecentViewedProductIDs(ctx, nil, viewer.SessionKey, models.RecentlyViewedLimit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recently viewed products: %w", err)
	}

	products, err := s.store.ProductsByIDs(ctx, ids, true)
	if err != nil {
		return nil, fmt.Errorf("failed to get recently viewed products: %w", err)
	}
	if limit > 0 && len(products) > limit {
		products = products[:limit]
	}
	return products, nil
}
