// Package ranking holds the pure scoring and ordering primitives shared by
// every recommender and by product search. Nothing here touches storage:
// callers aggregate ProductSignals once per candidate set and hand the
// candidates in.
package ranking

import (
	"github.com/yishak-cs/storefront-recs/internal/models"
)

// ProductSignals are the per-product aggregates used for ranking.
// They are computed over approved reviews and PAID order items only.
type ProductSignals struct {
	AvgRating   float64 `json:"avg_rating"`
	ReviewCount int64   `json:"review_count"`
	SalesCount  int64   `json:"sales_count"`
	RecentSales int64   `json:"recent_sales"`
	RecentViews int64   `json:"recent_views"`
}

// HasRating reports whether the product has at least one approved review
func (s ProductSignals) HasRating() bool {
	return s.ReviewCount > 0
}

// Candidate is a product paired with its signals
type Candidate struct {
	Product models.Product
	Signals ProductSignals
}

// Popularity is search_count + 2*review_count + sales_count
func Popularity(p *models.Product, s ProductSignals) int64 {
	return p.SearchCount + 2*s.ReviewCount + s.SalesCount
}

// Join pairs products with their signals, keeping product order.
// Products missing from signals get zero signals.
func Join(products []models.Product, signals map[uint]ProductSignals) []Candidate {
	out := make([]Candidate, len(products))
	for i := range products {
		out[i] = Candidate{Product: products[i], Signals: signals[products[i].ID]}
	}
	return out
}

// Products unwraps at most limit candidates. A non-positive limit keeps all.
func Products(cands []Candidate, limit int) []models.Product {
	if limit > 0 && len(cands) > limit {
		cands = cands[:limit]
	}
	out := make([]models.Product, len(cands))
	for i := range cands {
		out[i] = cands[i].Product
	}
	return out
}
