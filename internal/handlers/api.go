package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/yishak-cs/storefront-recs/internal/database"
	"github.com/yishak-cs/storefront-recs/internal/logger"
	"github.com/yishak-cs/storefront-recs/internal/models"
	"github.com/yishak-cs/storefront-recs/internal/ranking"
	"github.com/yishak-cs/storefront-recs/internal/services"
)

const (
	productWidgetLimit = 8
	listWidgetLimit    = 12
	maxLimit           = 50

	customerHeader   = "X-Customer-ID"
	sessionHeader    = "X-Session-Key"
	sessionCookie    = "session_key"
	sessionCookieAge = 60 * 60 * 24 * 14
)

// GraphSyncer rebuilds the co-purchase graph projection
type GraphSyncer interface {
	SyncAll(ctx context.Context) (database.SyncReport, error)
	SyncOrder(ctx context.Context, orderID uint) error
}

// GraphStatus reports node and relationship counts of the graph projection
type GraphStatus interface {
	Status(ctx context.Context) (map[string]int64, error)
}

// HealthCheck is one dependency probe behind /healthz
type HealthCheck func(ctx context.Context) error

// APIHandler handles all API requests
type APIHandler struct {
	recommendationService *services.RecommendationService
	viewTracker           *services.ViewTracker
	productPages          *services.ProductPageService
	searchService         *services.SearchService

	graphSyncer GraphSyncer
	graphStatus GraphStatus
	viewLimiter *clientLimiter
	checks      map[string]HealthCheck
	log         *logger.Logger
}

// NewAPIHandler creates a new API handler
func NewAPIHandler(
	recommendationService *services.RecommendationService,
	viewTracker *services.ViewTracker,
	productPages *services.ProductPageService,
	searchService *services.SearchService,
	log *logger.Logger,
) *APIHandler {
	return &APIHandler{
		recommendationService: recommendationService,
		viewTracker:           viewTracker,
		productPages:          productPages,
		searchService:         searchService,
		checks:                make(map[string]HealthCheck),
		log:                   log.With("component", "api"),
	}
}

// WithGraph enables the graph projection endpoints
func (h *APIHandler) WithGraph(syncer GraphSyncer, status GraphStatus) *APIHandler {
	h.graphSyncer = syncer
	h.graphStatus = status
	return h
}

// WithViewRateLimit limits view tracking per client IP
func (h *APIHandler) WithViewRateLimit(perSecond float64, burst int) *APIHandler {
	h.viewLimiter = newClientLimiter(rate.Limit(perSecond), burst, h.log)
	return h
}

// AddHealthCheck registers a named dependency probe
func (h *APIHandler) AddHealthCheck(name string, check HealthCheck) {
	h.checks[name] = check
}

// SetupRoutes configures all API routes
func (h *APIHandler) SetupRoutes(router *gin.Engine) {
	router.GET("/healthz", h.Health)

	api := router.Group("/api")
	{
		// both routes record a view and share one per-client bucket
		tracksView := func(handler gin.HandlerFunc) []gin.HandlerFunc {
			if h.viewLimiter == nil {
				return []gin.HandlerFunc{handler}
			}
			return []gin.HandlerFunc{h.viewLimiter.middleware(), handler}
		}

		api.GET("/products/:id", tracksView(h.GetProductPage)...)
		api.POST("/products/:id/views", tracksView(h.TrackView)...)
		api.GET("/products/:id/also-bought", h.GetAlsoBought)
		api.GET("/products/:id/similar", h.GetSimilar)

		api.GET("/customers/:id/recommendations", h.GetPersonalized)
		api.GET("/customers/:id/recently-viewed", h.GetRecentlyViewed)

		api.GET("/recommendations/trending", h.GetTrending)
		api.GET("/recommendations/seasonal", h.GetSeasonal)

		api.GET("/search", h.Search)
		api.GET("/search/autocomplete", h.Autocomplete)
		api.GET("/search/facets", h.GetFacets)

		if h.graphSyncer != nil {
			api.POST("/graph/sync", h.SyncGraph)
			api.POST("/graph/orders/:id/sync", h.SyncGraphOrder)
		}
		if h.graphStatus != nil {
			api.GET("/graph/status", h.GetGraphStatus)
		}
	}
}

// GetProductPage tracks the view and returns the product with its recommendation strips
func (h *APIHandler) GetProductPage(c *gin.Context) {
	productID, ok := pathID(c, "Invalid product ID")
	if !ok {
		return
	}

	page, err := h.productPages.Load(c.Request.Context(), productID, h.viewer(c), c.ClientIP())
	if err != nil {
		h.fail(c, err, "Failed to load product page")
		return
	}
	c.JSON(http.StatusOK, page)
}

// TrackView records one product view for the current customer or session
func (h *APIHandler) TrackView(c *gin.Context) {
	productID, ok := pathID(c, "Invalid product ID")
	if !ok {
		return
	}

	viewer := h.viewer(c)
	if err := h.viewTracker.TrackView(c.Request.Context(), productID, viewer, c.ClientIP()); err != nil {
		h.fail(c, err, "Failed to track view")
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"product_id":  productID,
		"customer_id": viewer.CustomerID,
		"session_key": viewer.SessionKey,
	})
}

// GetAlsoBought handles requests for products bought by the same customers
func (h *APIHandler) GetAlsoBought(c *gin.Context) {
	productID, ok := pathID(c, "Invalid product ID")
	if !ok {
		return
	}

	products, err := h.recommendationService.AlsoBought(c.Request.Context(), productID, limitParam(c, productWidgetLimit))
	if err != nil {
		h.fail(c, err, "Failed to get recommendations")
		return
	}
	respond(c, gin.H{"product_id": productID}, models.Recommendation{
		Strategy:    models.StrategyAlsoBought,
		Description: "Customers who bought this also bought",
		Products:    products,
	})
}

// GetSimilar handles requests for products similar to a product
func (h *APIHandler) GetSimilar(c *gin.Context) {
	productID, ok := pathID(c, "Invalid product ID")
	if !ok {
		return
	}

	products, err := h.recommendationService.Similar(c.Request.Context(), productID, limitParam(c, productWidgetLimit))
	if err != nil {
		h.fail(c, err, "Failed to get recommendations")
		return
	}
	respond(c, gin.H{"product_id": productID}, models.Recommendation{
		Strategy:    models.StrategySimilar,
		Description: "Similar products",
		Products:    products,
	})
}

// GetPersonalized handles requests for a customer's personalized recommendations
func (h *APIHandler) GetPersonalized(c *gin.Context) {
	customerID, ok := pathID(c, "Invalid customer ID")
	if !ok {
		return
	}

	products, err := h.recommendationService.Personalized(c.Request.Context(), customerID, limitParam(c, listWidgetLimit))
	if err != nil {
		h.fail(c, err, "Failed to get recommendations")
		return
	}
	respond(c, gin.H{"customer_id": customerID}, models.Recommendation{
		Strategy:    models.StrategyPersonalized,
		Description: "Recommended for you",
		Products:    products,
	})
}

// GetRecentlyViewed handles requests for a customer's recently viewed products
func (h *APIHandler) GetRecentlyViewed(c *gin.Context) {
	customerID, ok := pathID(c, "Invalid customer ID")
	if !ok {
		return
	}

	viewer := services.Viewer{CustomerID: &customerID}
	products, err := h.recommendationService.RecentlyViewed(c.Request.Context(), viewer, limitParam(c, listWidgetLimit))
	if err != nil {
		h.fail(c, err, "Failed to get recently viewed products")
		return
	}
	respond(c, gin.H{"customer_id": customerID}, models.Recommendation{
		Strategy:    models.StrategyRecentlyViewed,
		Description: "Recently viewed",
		Products:    products,
	})
}

// GetTrending handles requests for currently trending products
func (h *APIHandler) GetTrending(c *gin.Context) {
	products, err := h.recommendationService.Trending(c.Request.Context(), limitParam(c, listWidgetLimit))
	if err != nil {
		h.fail(c, err, "Failed to get recommendations")
		return
	}
	respond(c, nil, models.Recommendation{
		Strategy:    models.StrategyTrending,
		Description: "Currently trending products",
		Products:    products,
	})
}

// GetSeasonal handles requests for the featured and trending mix
func (h *APIHandler) GetSeasonal(c *gin.Context) {
	products, err := h.recommendationService.Seasonal(c.Request.Context(), limitParam(c, listWidgetLimit))
	if err != nil {
		h.fail(c, err, "Failed to get recommendations")
		return
	}
	respond(c, nil, models.Recommendation{
		Strategy:    models.StrategySeasonal,
		Description: "Featured picks and trending products",
		Products:    products,
	})
}

// Search handles product search with filters, sorting and pagination
func (h *APIHandler) Search(c *gin.Context) {
	page, _ := strconv.Atoi(c.Query("page"))
	pageSize, _ := strconv.Atoi(c.Query("page_size"))

	req := services.SearchRequest{
		Filters:  ranking.ParseSearchFilters(c.Request.URL.Query()),
		Sort:     ranking.SortMode(c.Query("sort")),
		Page:     page,
		PageSize: pageSize,
	}
	req.CustomerID, _ = customerFromHeader(c)

	result, err := h.searchService.Search(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err, "Failed to search products")
		return
	}
	c.JSON(http.StatusOK, result)
}

// Autocomplete handles search-as-you-type suggestions
func (h *APIHandler) Autocomplete(c *gin.Context) {
	suggestions, err := h.searchService.Autocomplete(c.Request.Context(), c.Query("q"))
	if err != nil {
		h.fail(c, err, "Failed to get suggestions")
		return
	}
	c.JSON(http.StatusOK, gin.H{"suggestions": suggestions})
}

// GetFacets handles requests for the search filter options
func (h *APIHandler) GetFacets(c *gin.Context) {
	facets, err := h.searchService.Facets(c.Request.Context())
	if err != nil {
		h.fail(c, err, "Failed to load search filters")
		return
	}
	c.JSON(http.StatusOK, facets)
}

// SyncGraph rebuilds the whole co-purchase graph projection
func (h *APIHandler) SyncGraph(c *gin.Context) {
	report, err := h.graphSyncer.SyncAll(c.Request.Context())
	if err != nil {
		h.fail(c, err, "Failed to sync graph")
		return
	}
	c.JSON(http.StatusOK, report)
}

// SyncGraphOrder projects one order after a payment status change
func (h *APIHandler) SyncGraphOrder(c *gin.Context) {
	orderID, ok := pathID(c, "Invalid order ID")
	if !ok {
		return
	}

	if err := h.graphSyncer.SyncOrder(c.Request.Context(), orderID); err != nil {
		h.fail(c, err, "Failed to sync order")
		return
	}
	c.JSON(http.StatusOK, gin.H{"order_id": orderID, "synced": true})
}

// GetGraphStatus reports the graph projection counts
func (h *APIHandler) GetGraphStatus(c *gin.Context) {
	status, err := h.graphStatus.Status(c.Request.Context())
	if err != nil {
		h.fail(c, err, "Failed to get graph status")
		return
	}
	c.JSON(http.StatusOK, status)
}

// Health runs every registered dependency check
func (h *APIHandler) Health(c *gin.Context) {
	results := make(map[string]string, len(h.checks))
	healthy := true
	for name, check := range h.checks {
		if err := check(c.Request.Context()); err != nil {
			h.log.Warn("Health check failed", "check", name, "error", err)
			results[name] = "down"
			healthy = false
			continue
		}
		results[name] = "up"
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"healthy": healthy, "checks": results})
}

// viewer identifies the caller by customer header, else by session key.
// A fresh session key is issued as a cookie when none is sent.
func (h *APIHandler) viewer(c *gin.Context) services.Viewer {
	if id, ok := customerFromHeader(c); ok {
		return services.Viewer{CustomerID: id}
	}

	key := strings.TrimSpace(c.GetHeader(sessionHeader))
	if key == "" {
		key, _ = c.Cookie(sessionCookie)
	}
	if key == "" {
		key = uuid.NewString()
		c.SetCookie(sessionCookie, key, sessionCookieAge, "/", "", false, true)
	}
	return services.Viewer{SessionKey: key}
}

// fail maps service errors to status codes; unexpected errors are logged
func (h *APIHandler) fail(c *gin.Context, err error, message string) {
	if errors.Is(err, services.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}
	h.log.Error(message, "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": message})
}

func respond(c *gin.Context, extra gin.H, rec models.Recommendation) {
	body := gin.H{
		"recommendations": rec.Products,
		"strategy":        rec.Strategy,
		"description":     rec.Description,
	}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(http.StatusOK, body)
}

func pathID(c *gin.Context, message string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 0)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": message})
		return 0, false
	}
	return uint(id), true
}

func customerFromHeader(c *gin.Context) (*uint, bool) {
	raw := strings.TrimSpace(c.GetHeader(customerHeader))
	if raw == "" {
		return nil, false
	}
	id, err := strconv.ParseUint(raw, 10, 0)
	if err != nil || id == 0 {
		return nil, false
	}
	customerID := uint(id)
	return &customerID, true
}

// limitParam reads ?limit=, falling back to def when absent or malformed
func limitParam(c *gin.Context, def int) int {
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil {
		return def
	}
	return max(1, min(limit, maxLimit))
}
