package ranking

import (
	"cmp"
	"slices"
	"strings"
)

// SortMode selects the search result ordering
type SortMode string

const (
	SortNewest     SortMode = "newest"
	SortPriceLow   SortMode = "price_low"
	SortPriceHigh  SortMode = "price_high"
	SortRating     SortMode = "rating"
	SortPopularity SortMode = "popularity"
)

// ParseSortMode maps a query value to a sort mode. Unknown values sort by newest.
func ParseSortMode(s string) SortMode {
	switch mode := SortMode(strings.ToLower(strings.TrimSpace(s))); mode {
	case SortPriceLow, SortPriceHigh, SortRating, SortPopularity:
		return mode
	default:
		return SortNewest
	}
}

// newerFirst breaks ties by creation time, then id, both descending
func newerFirst(a, b Candidate) int {
	if c := b.Product.CreatedAt.Compare(a.Product.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(b.Product.ID, a.Product.ID)
}

// byQuality is the quality-signal ordering:
// rating, review count, sales count, creation time, all descending.
func byQuality(a, b Candidate) int {
	if c := cmp.Compare(b.Signals.AvgRating, a.Signals.AvgRating); c != 0 {
		return c
	}
	if c := cmp.Compare(b.Signals.ReviewCount, a.Signals.ReviewCount); c != 0 {
		return c
	}
	if c := cmp.Compare(b.Signals.SalesCount, a.Signals.SalesCount); c != 0 {
		return c
	}
	return newerFirst(a, b)
}

// byTrending is strictly lexicographic: recent sales, recent views, review
// count, rating, lifetime views, creation time.
func byTrending(a, b Candidate) int {
	if c := cmp.Compare(b.Signals.RecentSales, a.Signals.RecentSales); c != 0 {
		return c
	}
	if c := cmp.Compare(b.Signals.RecentViews, a.Signals.RecentViews); c != 0 {
		return c
	}
	if c := cmp.Compare(b.Signals.ReviewCount, a.Signals.ReviewCount); c != 0 {
		return c
	}
	if c := cmp.Compare(b.Signals.AvgRating, a.Signals.AvgRating); c != 0 {
		return c
	}
	if c := cmp.Compare(b.Product.ViewCount, a.Product.ViewCount); c != 0 {
		return c
	}
	return newerFirst(a, b)
}

// byRating orders featured picks and the "rating" search sort
func byRating(a, b Candidate) int {
	if c := cmp.Compare(b.Signals.AvgRating, a.Signals.AvgRating); c != 0 {
		return c
	}
	if c := cmp.Compare(b.Signals.ReviewCount, a.Signals.ReviewCount); c != 0 {
		return c
	}
	return newerFirst(a, b)
}

func byPopularity(a, b Candidate) int {
	if c := cmp.Compare(Popularity(&b.Product, b.Signals), Popularity(&a.Product, a.Signals)); c != 0 {
		return c
	}
	return newerFirst(a, b)
}

func byPriceAsc(a, b Candidate) int {
	if c := a.Product.Price.Cmp(b.Product.Price); c != 0 {
		return c
	}
	return newerFirst(a, b)
}

func byPriceDesc(a, b Candidate) int {
	if c := b.Product.Price.Cmp(a.Product.Price); c != 0 {
		return c
	}
	return newerFirst(a, b)
}

// RankByQuality sorts candidates in place by the quality-signal ordering
// and returns them. Similar and personalized recommendations both use it.
func RankByQuality(cands []Candidate) []Candidate {
	slices.SortStableFunc(cands, byQuality)
	return cands
}

// RankTrending sorts candidates in place by the trending ordering
func RankTrending(cands []Candidate) []Candidate {
	slices.SortStableFunc(cands, byTrending)
	return cands
}

// RankFeatured sorts featured picks by rating then review count
func RankFeatured(cands []Candidate) []Candidate {
	slices.SortStableFunc(cands, byRating)
	return cands
}

// Sort orders search results by the given mode
func Sort(cands []Candidate, mode SortMode) []Candidate {
	switch mode {
	case SortPriceLow:
		slices.SortStableFunc(cands, byPriceAsc)
	case SortPriceHigh:
		slices.SortStableFunc(cands, byPriceDesc)
	case SortRating:
		slices.SortStableFunc(cands, byRating)
	case SortPopularity:
		slices.SortStableFunc(cands, byPopularity)
	default:
		slices.SortStableFunc(cands, newerFirst)
	}
	return cands
}
