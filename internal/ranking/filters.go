package ranking

import (
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/yishak-cs/storefront-recs/internal/models"
)

// SearchFilters are the optional, AND-combined search facets.
// A nil field means the filter is not applied.
type SearchFilters struct {
	Query          string           `json:"query"`
	CategoryID     *uint            `json:"category_id,omitempty"`
	VendorID       *uint            `json:"vendor_id,omitempty"`
	MinPrice       *decimal.Decimal `json:"min_price,omitempty"`
	MaxPrice       *decimal.Decimal `json:"max_price,omitempty"`
	LocalMaterials bool             `json:"local_materials,omitempty"`
	MinRating      *float64         `json:"min_rating,omitempty"`
}

// ParseSearchFilters reads filters from query parameters. Unparsable
// numeric values are dropped rather than rejected.
func ParseSearchFilters(q url.Values) SearchFilters {
	f := SearchFilters{
		Query:          strings.TrimSpace(q.Get("q")),
		CategoryID:     parseID(q.Get("category")),
		VendorID:       parseID(q.Get("vendor")),
		MinPrice:       parseDecimal(q.Get("min_price")),
		MaxPrice:       parseDecimal(q.Get("max_price")),
		LocalMaterials: q.Get("local_materials") == "true",
	}
	if v := strings.TrimSpace(q.Get("min_rating")); v != "" {
		if r, err := strconv.ParseFloat(v, 64); err == nil && !math.IsNaN(r) && !math.IsInf(r, 0) {
			f.MinRating = &r
		}
	}
	return f
}

func parseID(v string) *uint {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	id, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return nil
	}
	out := uint(id)
	return &out
}

func parseDecimal(v string) *decimal.Decimal {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return nil
	}
	return &d
}

// MatchesText reports whether the query is a case-insensitive substring of
// the product name, descriptions, category name or vendor username.
// An empty query matches everything.
func MatchesText(p *models.Product, query string) bool {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return true
	}
	fields := []string{p.Name, p.Description, p.ShortDescription, p.Category.Name}
	if p.Vendor != nil {
		fields = append(fields, p.Vendor.Username)
	}
	for _, field := range fields {
		if strings.Contains(strings.ToLower(field), query) {
			return true
		}
	}
	return false
}

// Matches applies every present filter to an active product
func (f SearchFilters) Matches(p *models.Product, s ProductSignals) bool {
	if !p.IsActive {
		return false
	}
	if !MatchesText(p, f.Query) {
		return false
	}
	if f.CategoryID != nil && p.CategoryID != *f.CategoryID {
		return false
	}
	if f.VendorID != nil && (p.VendorID == nil || *p.VendorID != *f.VendorID) {
		return false
	}
	if f.MinPrice != nil && p.Price.LessThan(*f.MinPrice) {
		return false
	}
	if f.MaxPrice != nil && p.Price.GreaterThan(*f.MaxPrice) {
		return false
	}
	if f.LocalMaterials && !p.IsMadeFromLocalMaterials {
		return false
	}
	// products without approved reviews have no rating and never pass
	if f.MinRating != nil && (!s.HasRating() || s.AvgRating < *f.MinRating) {
		return false
	}
	return true
}

// Filter keeps the candidates that match
func (f SearchFilters) Filter(cands []Candidate) []Candidate {
	out := make([]Candidate, 0, len(cands))
	for i := range cands {
		if f.Matches(&cands[i].Product, cands[i].Signals) {
			out = append(out, cands[i])
		}
	}
	return out
}
