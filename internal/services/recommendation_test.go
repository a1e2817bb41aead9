package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"

	"github.com/yishak-cs/storefront-recs/internal/cache"
	"github.com/yishak-cs/storefront-recs/internal/database"
	"github.com/yishak-cs/storefront-recs/internal/database/dbtest"
	"github.com/yishak-cs/storefront-recs/internal/logger"
	"github.com/yishak-cs/storefront-recs/internal/metrics"
	"github.com/yishak-cs/storefront-recs/internal/models"
)

type fixture struct {
	store   *database.Store
	seed    *dbtest.Seed
	recs    *RecommendationService
	tracker *ViewTracker
	search  *SearchService
	page    *ProductPageService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.New(t)
	seed := dbtest.NewSeed(t, db)
	store := database.NewStore(db)
	m := metrics.New()
	log := logger.Nop()
	opts := Options{Now: func() time.Time { return seed.Now }}

	recs := NewRecommendationService(store, store, cache.Noop{}, m, log, opts)
	tracker := NewViewTracker(store, m, log, opts)
	return &fixture{
		store:   store,
		seed:    seed,
		recs:    recs,
		tracker: tracker,
		search:  NewSearchService(store, m, log, opts),
		page:    NewProductPageService(recs, tracker),
	}
}

func assertProducts(t *testing.T, got []models.Product, want ...uint) {
	t.Helper()
	ids := models.ProductIDs(got)
	if len(ids) != len(want) {
		t.Fatalf("products: want=%v got=%v", want, ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("products: want=%v got=%v", want, ids)
		}
	}
}

func (f *fixture) reviews(productID uint, ratings ...int) {
	for _, r := range ratings {
		f.seed.Review(productID, r, true)
	}
}

func TestSimilarPrefersSameCategory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	electronics := f.seed.Category("Electronics")
	clothing := f.seed.Category("Clothing")

	p1 := f.seed.Product("P1", electronics.ID)
	p2 := f.seed.Product("P2", electronics.ID)
	p3 := f.seed.Product("P3", clothing.ID)
	f.reviews(p1.ID, 5, 5, 5, 5, 4)
	f.seed.Sales(p1.ID, 50)
	f.reviews(p2.ID, 3)
	f.seed.Sales(p2.ID, 5)
	f.reviews(p3.ID, 5)
	f.seed.Sales(p3.ID, 1)

	got, err := f.recs.Similar(ctx, p1.ID, 5)
	if err != nil {
		t.Fatalf("Similar: %v", err)
	}
	assertProducts(t, got, p2.ID)
}

func TestSimilarRatingBeatsSalesAndSkipsSeed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cat := f.seed.Category("Home")

	seedProduct := f.seed.Product("Seed", cat.ID)
	a := f.seed.Product("A", cat.ID)
	b := f.seed.Product("B", cat.ID)
	hidden := f.seed.Product("Hidden", cat.ID, dbtest.Inactive())
	f.reviews(a.ID, 5)
	f.reviews(b.ID, 3)
	f.seed.Sales(b.ID, 10)
	f.reviews(hidden.ID, 5, 5)

	got, err := f.recs.Similar(ctx, seedProduct.ID, 8)
	if err != nil {
		t.Fatalf("Similar: %v", err)
	}
	assertProducts(t, got, a.ID, b.ID)
}

func TestSimilarMatchesBrandAndVendorAcrossCategories(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	home := f.seed.Category("Home")
	toys := f.seed.Category("Toys")
	garden := f.seed.Category("Garden")
	brand := f.seed.Brand("Acme")
	vendor := f.seed.Vendor("weaverco")

	s := f.seed.Product("Seed", home.ID, dbtest.WithBrand(brand.ID), dbtest.WithVendor(vendor.ID))
	byBrand := f.seed.Product("Robot", toys.ID, dbtest.WithBrand(brand.ID))
	byVendor := f.seed.Product("Planter", garden.ID, dbtest.WithVendor(vendor.ID))
	f.seed.Product("Kite", toys.ID)

	got, err := f.recs.Similar(ctx, s.ID, 8)
	if err != nil {
		t.Fatalf("Similar: %v", err)
	}
	// both unrated: newest first
	assertProducts(t, got, byVendor.ID, byBrand.ID)
}

func TestSimilarEmptyCandidatesIsNotAnError(t *testing.T) {
	f := newFixture(t)
	cat := f.seed.Category("Lonely")
	p := f.seed.Product("Only", cat.ID)

	got, err := f.recs.Similar(context.Background(), p.ID, 8)
	if err != nil {
		t.Fatalf("Similar: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("Similar: want empty slice got=%v", got)
	}
}

func TestUnapprovedReviewDoesNotMoveRank(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cat := f.seed.Category("Home")
	s := f.seed.Product("Seed", cat.ID)
	x := f.seed.Product("X", cat.ID)
	y := f.seed.Product("Y", cat.ID)
	f.reviews(x.ID, 5)
	f.reviews(y.ID, 4, 4)

	before, err := f.recs.Similar(ctx, s.ID, 8)
	if err != nil {
		t.Fatalf("Similar: %v", err)
	}
	assertProducts(t, before, x.ID, y.ID)

	f.seed.Review(x.ID, 1, false)
	f.seed.Review(x.ID, 1, false)

	after, err := f.recs.Similar(ctx, s.ID, 8)
	if err != nil {
		t.Fatalf("Similar: %v", err)
	}
	assertProducts(t, after, x.ID, y.ID)
}

func TestAlsoBoughtIgnoresPendingUntilPaid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cat := f.seed.Category("Home")
	x := f.seed.Product("X", cat.ID)
	y := f.seed.Product("Y", cat.ID)
	z := f.seed.Product("Z", cat.ID)

	buyer := f.seed.Customer()
	f.seed.Order(buyer.ID, models.PaymentPaid, x.ID, y.ID)
	other := f.seed.Customer()
	pending := f.seed.Order(other.ID, models.PaymentPending, x.ID, z.ID)

	got, err := f.recs.AlsoBought(ctx, x.ID, 8)
	if err != nil {
		t.Fatalf("AlsoBought: %v", err)
	}
	assertProducts(t, got, y.ID)

	if err := f.store.DB().Model(&models.Order{}).Where("id = ?", pending.ID).
		Update("payment_status", models.PaymentPaid).Error; err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	got, err = f.recs.AlsoBought(ctx, x.ID, 8)
	if err != nil {
		t.Fatalf("AlsoBought: %v", err)
	}
	assertProducts(t, got, z.ID, y.ID)
}

func TestAlsoBoughtUnknownOrInactiveProduct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cat := f.seed.Category("Home")
	gone := f.seed.Product("Gone", cat.ID, dbtest.Inactive())

	if _, err := f.recs.AlsoBought(ctx, 9999, 8); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown product: want ErrNotFound got=%v", err)
	}
	if _, err := f.recs.AlsoBought(ctx, gone.ID, 8); !errors.Is(err, ErrNotFound) {
		t.Fatalf("inactive product: want ErrNotFound got=%v", err)
	}
}

func TestAlsoBoughtFillsLimitPastInactiveProducts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cat := f.seed.Category("Home")
	x := f.seed.Product("X", cat.ID)
	gone := f.seed.Product("Gone", cat.ID, dbtest.Inactive())
	a := f.seed.Product("A", cat.ID)
	b := f.seed.Product("B", cat.ID)

	// a projection that still ranks a deactivated product first
	src := &fakeSource{result: []database.CoPurchase{
		{ProductID: gone.ID, Frequency: 3},
		{ProductID: b.ID, Frequency: 2},
		{ProductID: a.ID, Frequency: 1},
	}}
	recs := NewRecommendationService(f.store, src, cache.Noop{}, metrics.New(), logger.Nop(), Options{})

	got, err := recs.AlsoBought(ctx, x.ID, 2)
	if err != nil {
		t.Fatalf("AlsoBought: %v", err)
	}
	assertProducts(t, got, b.ID, a.ID)
	if len(src.limits) != 1 || src.limits[0] != 0 {
		t.Fatalf("source limit: want=[0] got=%v", src.limits)
	}
}

func TestPersonalizedWithoutPurchasesIsTrending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cat := f.seed.Category("Home")
	a := f.seed.Product("A", cat.ID)
	b := f.seed.Product("B", cat.ID)
	c := f.seed.Product("C", cat.ID)
	f.seed.Sales(b.ID, 2)
	f.seed.View(c.ID, nil, f.seed.Now.Add(-time.Hour))

	shopper := f.seed.Customer()
	f.seed.Order(shopper.ID, models.PaymentPending, a.ID)

	personal, err := f.recs.Personalized(ctx, shopper.ID, 2)
	if err != nil {
		t.Fatalf("Personalized: %v", err)
	}
	trending, err := f.recs.Trending(ctx, 2)
	if err != nil {
		t.Fatalf("Trending: %v", err)
	}
	assertProducts(t, personal, models.ProductIDs(trending)...)
	assertProducts(t, trending, b.ID, c.ID)
}

func TestPersonalizedUsesPurchasedCategoriesAndBrands(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	catA := f.seed.Category("A")
	catB := f.seed.Category("B")
	catC := f.seed.Category("C")
	brand := f.seed.Brand("Acme")

	bought := f.seed.Product("Bought", catA.ID, dbtest.WithBrand(brand.ID))
	a1 := f.seed.Product("A1", catA.ID)
	a2 := f.seed.Product("A2", catA.ID)
	f.seed.Product("A3", catA.ID, dbtest.Inactive())
	b1 := f.seed.Product("B1", catB.ID, dbtest.WithBrand(brand.ID))
	c1 := f.seed.Product("C1", catC.ID)
	c2 := f.seed.Product("C2", catC.ID)
	f.reviews(a1.ID, 5)
	f.reviews(a2.ID, 3)
	f.reviews(b1.ID, 4)
	f.reviews(c1.ID, 5)

	shopper := f.seed.Customer()
	f.seed.Order(shopper.ID, models.PaymentPaid, bought.ID)
	f.seed.Order(shopper.ID, models.PaymentPending, c2.ID)

	got, err := f.recs.Personalized(ctx, shopper.ID, 12)
	if err != nil {
		t.Fatalf("Personalized: %v", err)
	}
	assertProducts(t, got, a1.ID, b1.ID, a2.ID)
}

func TestPersonalizedUnknownCustomer(t *testing.T) {
	f := newFixture(t)
	if _, err := f.recs.Personalized(context.Background(), 4242, 12); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Personalized: want ErrNotFound got=%v", err)
	}
}

func TestTrendingOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cat := f.seed.Category("Home")
	recent := f.seed.Now.Add(-time.Hour)

	a := f.seed.Product("A", cat.ID)
	b := f.seed.Product("B", cat.ID)
	c := f.seed.Product("C", cat.ID)
	d := f.seed.Product("D", cat.ID)
	e := f.seed.Product("E", cat.ID, dbtest.Inactive())

	f.seed.Sales(a.ID, 2)
	f.seed.Sales(b.ID, 1)
	for i := 0; i < 10; i++ {
		f.seed.View(b.ID, nil, recent)
	}
	old := f.seed.Customer()
	for i := 0; i < 5; i++ {
		f.seed.OrderAt(old.ID, models.PaymentPaid, f.seed.Now.AddDate(0, 0, -60), c.ID)
	}
	for i := 0; i < 3; i++ {
		f.seed.View(c.ID, nil, recent)
	}
	f.seed.Order(old.ID, models.PaymentPending, d.ID)
	f.seed.Order(old.ID, models.PaymentPending, d.ID)
	f.reviews(d.ID, 2)
	f.seed.Sales(e.ID, 10)

	got, err := f.recs.Trending(ctx, 12)
	if err != nil {
		t.Fatalf("Trending: %v", err)
	}
	assertProducts(t, got, a.ID, b.ID, c.ID, d.ID)

	got, err = f.recs.Trending(ctx, 2)
	if err != nil {
		t.Fatalf("Trending: %v", err)
	}
	assertProducts(t, got, a.ID, b.ID)
}

func TestSeasonalFeaturedThenTrendingWithoutDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cat := f.seed.Category("Home")

	f1 := f.seed.Product("F1", cat.ID, dbtest.Featured())
	f2 := f.seed.Product("F2", cat.ID, dbtest.Featured())
	f.seed.Product("F3", cat.ID, dbtest.Featured())
	t1 := f.seed.Product("T1", cat.ID)
	t2 := f.seed.Product("T2", cat.ID)
	f.reviews(f1.ID, 5)
	f.reviews(f2.ID, 4)
	f.seed.Sales(f1.ID, 5)
	f.seed.Sales(t1.ID, 3)
	f.seed.Sales(t2.ID, 1)

	got, err := f.recs.Seasonal(ctx, 4)
	if err != nil {
		t.Fatalf("Seasonal: %v", err)
	}
	assertProducts(t, got, f1.ID, f2.ID, t1.ID, t2.ID)

	got, err = f.recs.Seasonal(ctx, 1)
	if err != nil {
		t.Fatalf("Seasonal: %v", err)
	}
	assertProducts(t, got, f1.ID)
}

type stubCache struct {
	lists map[string][]uint
}

func (c *stubCache) GetIDs(_ context.Context, key string) ([]uint, bool, error) {
	ids, ok := c.lists[key]
	return ids, ok, nil
}

func (c *stubCache) SetIDs(_ context.Context, key string, ids []uint) error {
	c.lists[key] = ids
	return nil
}

func TestTrendingServedFromCacheDropsInactive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cat := f.seed.Category("Home")
	a := f.seed.Product("A", cat.ID)
	b := f.seed.Product("B", cat.ID, dbtest.Inactive())

	stub := &stubCache{lists: map[string][]uint{"trending:30:5": {b.ID, a.ID}}}
	recs := NewRecommendationService(f.store, nil, stub, metrics.New(), logger.Nop(), Options{})

	got, err := recs.Trending(ctx, 5)
	if err != nil {
		t.Fatalf("Trending: %v", err)
	}
	assertProducts(t, got, a.ID)

	if _, err := recs.Seasonal(ctx, 4); err != nil {
		t.Fatalf("Seasonal: %v", err)
	}
	if _, ok := stub.lists["seasonal:30:4"]; !ok {
		t.Fatalf("seasonal list not cached: %v", stub.lists)
	}
}

type fakeSource struct {
	result []database.CoPurchase
	err    error
	calls  int
	limits []int
}

func (f *fakeSource) AlsoBought(_ context.Context, _ uint, limit int) ([]database.CoPurchase, error) {
	f.calls++
	f.limits = append(f.limits, limit)
	return f.result, f.err
}

func TestBreakerSourceFallsBackAndOpens(t *testing.T) {
	primary := &fakeSource{err: errors.New("graph down")}
	fallback := &fakeSource{result: []database.CoPurchase{{ProductID: 7, Frequency: 2}}}
	src := NewBreakerSource(primary, fallback, BreakerSettings{Timeout: time.Minute}, metrics.New(), logger.Nop())

	for i := 0; i < 6; i++ {
		got, err := src.AlsoBought(context.Background(), 1, 8)
		if err != nil {
			t.Fatalf("AlsoBought: %v", err)
		}
		if len(got) != 1 || got[0].ProductID != 7 {
			t.Fatalf("AlsoBought: want fallback result got=%v", got)
		}
	}
	if primary.calls != 5 {
		t.Fatalf("primary calls: want=5 got=%d", primary.calls)
	}
	if src.State() != gobreaker.StateOpen {
		t.Fatalf("breaker state: want open got=%s", src.State())
	}
}

func TestBreakerSourceUsesPrimaryWhenHealthy(t *testing.T) {
	primary := &fakeSource{result: []database.CoPurchase{{ProductID: 3, Frequency: 1}}}
	fallback := &fakeSource{}
	src := NewBreakerSource(primary, fallback, BreakerSettings{}, metrics.New(), logger.Nop())

	got, err := src.AlsoBought(context.Background(), 1, 8)
	if err != nil || len(got) != 1 || got[0].ProductID != 3 {
		t.Fatalf("AlsoBought: got=%v err=%v", got, err)
	}
	if fallback.calls != 0 {
		t.Fatalf("fallback should not be called")
	}
}
