package models

import "github.com/shopspring/decimal"

// Strategy names which ranker produced a recommendation list
type Strategy string

const (
	StrategyAlsoBought     Strategy = "AlsoBought"
	StrategySimilar        Strategy = "Similar"
	StrategyPersonalized   Strategy = "Personalized"
	StrategyTrending       Strategy = "Trending"
	StrategySeasonal       Strategy = "Seasonal"
	StrategyRecentlyViewed Strategy = "RecentlyViewed"
	StrategySearch         Strategy = "Search"
)

// Recommendation is a ranked product list returned to page handlers
type Recommendation struct {
	Strategy    Strategy  `json:"strategy"`
	Description string    `json:"description"`
	Products    []Product `json:"products"`
}

// ProductIDs returns the ids of a product slice in order
func ProductIDs(products []Product) []uint {
	ids := make([]uint, len(products))
	for i := range products {
		ids[i] = products[i].ID
	}
	return ids
}

// Facets are the filter options offered on the search page
type Facets struct {
	Categories []Category       `json:"categories"`
	Vendors    []Vendor         `json:"vendors"`
	MinPrice   *decimal.Decimal `json:"min_price"`
	MaxPrice   *decimal.Decimal `json:"max_price"`
}
