package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/yishak-cs/storefront-recs/internal/database"
	"github.com/yishak-cs/storefront-recs/internal/logger"
	"github.com/yishak-cs/storefront-recs/internal/metrics"
	"github.com/yishak-cs/storefront-recs/internal/models"
	"github.com/yishak-cs/storefront-recs/internal/ranking"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100

	autocompleteMinLength  = 2
	autocompleteProducts   = 5
	autocompleteCategories = 3
	autocompleteMax        = 8
)

// SearchRequest is one search page request
type SearchRequest struct {
	Filters    ranking.SearchFilters
	Sort       ranking.SortMode
	Page       int
	PageSize   int
	CustomerID *uint
}

// SearchResult is one page of ranked products plus the unpaginated total
type SearchResult struct {
	Query    string           `json:"query"`
	Sort     ranking.SortMode `json:"sort"`
	Products []models.Product `json:"products"`
	Total    int              `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
}

// SearchService filters, ranks and paginates product search results
type SearchService struct {
	store   *database.Store
	metrics *metrics.Metrics
	log     *logger.Logger
	window  time.Duration
	now     func() time.Time
}

// NewSearchService creates a new search service
func NewSearchService(store *database.Store, m *metrics.Metrics, log *logger.Logger, opts Options) *SearchService {
	return &SearchService{
		store:   store,
		metrics: m,
		log:     log.With("service", "SearchService"),
		window:  opts.window(),
		now:     opts.clock(),
	}
}

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return page, size
}

// Search runs a text and facet search. A non-empty query first bumps the
// search_count of every active product matching the text alone, then the
// search is recorded in the history with its total result count.
func (s *SearchService) Search(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	defer s.metrics.ObserveRecommendation(string(models.StrategySearch), time.Now())

	page, size := normalizePage(req.Page, req.PageSize)
	filters := req.Filters
	filters.Query = strings.TrimSpace(filters.Query)
	sort := ranking.ParseSortMode(string(req.Sort))

	if filters.Query != "" {
		if _, err := s.store.IncrementSearchCount(ctx, filters.Query); err != nil {
			return nil, err
		}
	}

	products, err := s.store.ActiveProducts(ctx, database.ProductQuery{TextQuery: filters.Query})
	if err != nil {
		return nil, fmt.Errorf("failed to search products: %w", err)
	}
	cands, err := s.store.Candidates(ctx, products, s.now().Add(-s.window))
	if err != nil {
		return nil, fmt.Errorf("failed to load product signals: %w", err)
	}
	cands = ranking.Sort(filters.Filter(cands), sort)
	total := len(cands)

	if filters.Query != "" {
		history := &models.SearchHistory{
			CustomerID:      req.CustomerID,
			Query:           filters.Query,
			ResultsCount:    int64(total),
			WasProductFound: total > 0,
		}
		if err := s.store.AppendSearchHistory(ctx, history); err != nil {
			return nil, err
		}
		s.metrics.SearchesTotal.WithLabelValues(strconv.FormatBool(total > 0)).Inc()
	}

	start := min((page-1)*size, total)
	end := min(start+size, total)
	s.log.Debug("Search completed", "query", filters.Query, "sort", sort, "total", total, "page", page)

	return &SearchResult{
		Query:    filters.Query,
		Sort:     sort,
		Products: ranking.Products(cands[start:end], 0),
		Total:    total,
		Page:     page,
		PageSize: size,
	}, nil
}

// Autocomplete suggests up to 5 product names then up to 3 category names
// containing the query. Queries shorter than two characters get nothing.
func (s *SearchService) Autocomplete(ctx context.Context, query string) ([]string, error) {
	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) < autocompleteMinLength {
		return []string{}, nil
	}

	names, err := s.store.ProductNameSuggestions(ctx, query, autocompleteProducts)
	if err != nil {
		return nil, err
	}
	categories, err := s.store.CategoryNameSuggestions(ctx, query, autocompleteCategories)
	if err != nil {
		return nil, err
	}

	suggestions := make([]string, 0, len(names)+len(categories))
	suggestions = append(suggestions, names...)
	suggestions = append(suggestions, categories...)
	if len(suggestions) > autocompleteMax {
		suggestions = suggestions[:autocompleteMax]
	}
	return suggestions, nil
}

// Facets returns the filter options for the search page
func (s *SearchService) Facets(ctx context.Context) (models.Facets, error) {
	return s.store.Facets(ctx)
}
