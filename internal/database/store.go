package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/yishak-cs/storefront-recs/internal/models"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("record not found")

// Store runs the relational queries behind every recommender
type Store struct {
	db *gorm.DB
	// sqlite's LOWER folds ASCII only, so text matching happens in Go there
	foldInSQL bool
}

// NewStore creates a store over an open gorm connection
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, foldInSQL: db.Dialector == nil || db.Dialector.Name() != "sqlite"}
}

// DB exposes the underlying gorm handle
func (s *Store) DB() *gorm.DB {
	return s.db
}

// ProductQuery describes a candidate set of active products. Category,
// brand and vendor ids are OR-combined when more than one list is set.
type ProductQuery struct {
	CategoryIDs  []uint
	BrandIDs     []uint
	VendorIDs    []uint
	ExcludeIDs   []uint
	FeaturedOnly bool
	TextQuery    string
}

// CoPurchase is a candidate product and how many PAID order items the
// seed product's buyers hold for it
type CoPurchase struct {
	ProductID uint  `json:"product_id"`
	Frequency int64 `json:"frequency"`
}

func (s *Store) withRelations(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).
		Preload("Category").
		Preload("Brand").
		Preload("Vendor")
}

// ProductByID loads one product with its category, brand and vendor
func (s *Store) ProductByID(ctx context.Context, id uint) (*models.Product, error) {
	var p models.Product
	if err := s.withRelations(ctx).First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load product %d: %w", id, err)
	}
	return &p, nil
}

// ProductsByIDs loads products in the order of ids. Missing ids are skipped,
// as are inactive products when activeOnly is set.
func (s *Store) ProductsByIDs(ctx context.Context, ids []uint, activeOnly bool) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}

	tx := s.withRelations(ctx).Where("id IN ?", ids)
	if activeOnly {
		tx = tx.Where("is_active = ?", true)
	}
	var found []models.Product
	if err := tx.Find(&found).Error; err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}

	byID := make(map[uint]models.Product, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}
	out := make([]models.Product, 0, len(found))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			out = append(out, p)
			delete(byID, id)
		}
	}
	return out, nil
}

// ProductsAfter pages through every product by id, active or not
func (s *Store) ProductsAfter(ctx context.Context, afterID uint, batch int) ([]models.Product, error) {
	var out []models.Product
	err := s.db.WithContext(ctx).
		Where("id > ?", afterID).
		Order("id").
		Limit(batch).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to page products: %w", err)
	}
	return out, nil
}

// escapeLike escapes LIKE wildcards so user input is matched literally
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func likePattern(q string) string {
	return "%" + escapeLike(foldQuery(q)) + "%"
}

// textMatch is the text filter over name, descriptions, category name and
// vendor username. It expects categories and vendors to be joined.
func textMatch(q string) (string, []interface{}) {
	pattern := likePattern(q)
	cond := `(LOWER(products.name) LIKE ? ESCAPE '\'` +
		` OR LOWER(products.description) LIKE ? ESCAPE '\'` +
		` OR LOWER(products.short_description) LIKE ? ESCAPE '\'` +
		` OR LOWER(categories.name) LIKE ? ESCAPE '\'` +
		` OR LOWER(vendors.username) LIKE ? ESCAPE '\')`
	return cond, []interface{}{pattern, pattern, pattern, pattern, pattern}
}

func foldQuery(q string) string {
	return strings.ToLower(strings.TrimSpace(q))
}

func containsFolded(field, folded string) bool {
	return strings.Contains(strings.ToLower(field), folded)
}

// matchesText is textMatch evaluated in Go on a product loaded with its
// category and vendor
func matchesText(p *models.Product, folded string) bool {
	if containsFolded(p.Name, folded) || containsFolded(p.Description, folded) ||
		containsFolded(p.ShortDescription, folded) || containsFolded(p.Category.Name, folded) {
		return true
	}
	return p.Vendor != nil && containsFolded(p.Vendor.Username, folded)
}

// filterNames keeps the sorted names containing q, at most limit of them
func filterNames(names []string, q string, limit int) []string {
	folded := foldQuery(q)
	out := make([]string, 0, min(len(names), limit))
	for _, name := range names {
		if len(out) == limit {
			break
		}
		if containsFolded(name, folded) {
			out = append(out, name)
		}
	}
	return out
}

func joinCategoryVendor(tx *gorm.DB) *gorm.DB {
	return tx.
		Joins("LEFT JOIN categories ON categories.id = products.category_id").
		Joins("LEFT JOIN vendors ON vendors.id = products.vendor_id")
}

// ActiveProducts loads the active products described by q, newest first
func (s *Store) ActiveProducts(ctx context.Context, q ProductQuery) ([]models.Product, error) {
	tx := s.withRelations(ctx).
		Model(&models.Product{}).
		Select("products.*").
		Where("products.is_active = ?", true)

	var ors []string
	var args []interface{}
	if len(q.CategoryIDs) > 0 {
		ors = append(ors, "products.category_id IN ?")
		args = append(args, q.CategoryIDs)
	}
	if len(q.BrandIDs) > 0 {
		ors = append(ors, "products.brand_id IN ?")
		args = append(args, q.BrandIDs)
	}
	if len(q.VendorIDs) > 0 {
		ors = append(ors, "products.vendor_id IN ?")
		args = append(args, q.VendorIDs)
	}
	if len(ors) > 0 {
		tx = tx.Where("("+strings.Join(ors, " OR ")+")", args...)
	}
	if len(q.ExcludeIDs) > 0 {
		tx = tx.Where("products.id NOT IN ?", q.ExcludeIDs)
	}
	if q.FeaturedOnly {
		tx = tx.Where("products.is_featured = ?", true)
	}
	hasText := strings.TrimSpace(q.TextQuery) != ""
	if hasText && s.foldInSQL {
		cond, textArgs := textMatch(q.TextQuery)
		tx = joinCategoryVendor(tx).Where(cond, textArgs...)
	}

	var out []models.Product
	if err := tx.Order("products.created_at DESC, products.id DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to load active products: %w", err)
	}
	if hasText && !s.foldInSQL {
		folded := foldQuery(q.TextQuery)
		kept := out[:0]
		for i := range out {
			if matchesText(&out[i], folded) {
				kept = append(kept, out[i])
			}
		}
		out = kept
	}
	return out, nil
}

// PaidBuyers returns the distinct customers holding a PAID order item for the product
func (s *Store) PaidBuyers(ctx context.Context, productID uint) ([]uint, error) {
	var ids []uint
	err := s.db.WithContext(ctx).
		Model(&models.Order{}).
		Distinct("orders.customer_id").
		Joins("JOIN order_items ON order_items.order_id = orders.id").
		Where("order_items.product_id = ? AND orders.payment_status = ?", productID, models.PaymentPaid).
		Pluck("orders.customer_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load buyers of product %d: %w", productID, err)
	}
	return ids, nil
}

// CoPurchaseCounts counts the PAID order items of the given customers per
// active product, excluding one product. Rows come back by frequency, then
// product creation time, then id, all descending. A non-positive limit keeps all.
func (s *Store) CoPurchaseCounts(ctx context.Context, customers []uint, exclude uint, limit int) ([]CoPurchase, error) {
	if len(customers) == 0 {
		return []CoPurchase{}, nil
	}

	tx := s.db.WithContext(ctx).
		Table("order_items").
		Select("products.id AS product_id, COUNT(order_items.id) AS frequency").
		Joins("JOIN orders ON orders.id = order_items.order_id").
		Joins("JOIN products ON products.id = order_items.product_id").
		Where("orders.customer_id IN ?", customers).
		Where("orders.payment_status = ?", models.PaymentPaid).
		Where("products.is_active = ?", true).
		Where("products.id <> ?", exclude).
		Group("products.id, products.created_at").
		Order("frequency DESC, products.created_at DESC, products.id DESC")
	if limit > 0 {
		tx = tx.Limit(limit)
	}

	var out []CoPurchase
	if err := tx.Scan(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to count co-purchases: %w", err)
	}
	return out, nil
}

// AlsoBought ranks the products bought by the buyers of productID
func (s *Store) AlsoBought(ctx context.Context, productID uint, limit int) ([]CoPurchase, error) {
	buyers, err := s.PaidBuyers(ctx, productID)
	if err != nil {
		return nil, err
	}
	if len(buyers) == 0 {
		return []CoPurchase{}, nil
	}
	return s.CoPurchaseCounts(ctx, buyers, productID, limit)
}

// PurchasedProductIDs returns the distinct products a customer bought in PAID orders
func (s *Store) PurchasedProductIDs(ctx context.Context, customerID uint) ([]uint, error) {
	var ids []uint
	err := s.db.WithContext(ctx).
		Model(&models.OrderItem{}).
		Distinct("order_items.product_id").
		Joins("JOIN orders ON orders.id = order_items.order_id").
		Where("orders.customer_id = ? AND orders.payment_status = ?", customerID, models.PaymentPaid).
		Pluck("order_items.product_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load purchases of customer %d: %w", customerID, err)
	}
	return ids, nil
}

// CustomerExists reports whether the customer row exists
func (s *Store) CustomerExists(ctx context.Context, customerID uint) (bool, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Customer{}).Where("id = ?", customerID).Count(&n).Error; err != nil {
		return false, fmt.Errorf("failed to look up customer %d: %w", customerID, err)
	}
	return n > 0, nil
}

// OrderByID loads an order with its items
func (s *Store) OrderByID(ctx context.Context, id uint) (*models.Order, error) {
	var o models.Order
	if err := s.db.WithContext(ctx).Preload("Items").First(&o, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load order %d: %w", id, err)
	}
	return &o, nil
}

// UnpaidOrderIDs pages through ids of orders that are not PAID
func (s *Store) UnpaidOrderIDs(ctx context.Context, afterID uint, batch int) ([]uint, error) {
	var ids []uint
	err := s.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("payment_status <> ? AND id > ?", models.PaymentPaid, afterID).
		Order("id").
		Limit(batch).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to page unpaid orders: %w", err)
	}
	return ids, nil
}

// PaidOrderLines pages through PAID order items by item id
func (s *Store) PaidOrderLines(ctx context.Context, afterID uint, batch int) ([]models.OrderLine, error) {
	var out []models.OrderLine
	err := s.db.WithContext(ctx).
		Table("order_items").
		Select(`order_items.id AS order_item_id, order_items.order_id, orders.customer_id,
			order_items.product_id, order_items.quantity, orders.created_at AS ordered_at`).
		Joins("JOIN orders ON orders.id = order_items.order_id").
		Where("orders.payment_status = ? AND order_items.id > ?", models.PaymentPaid, afterID).
		Order("order_items.id").
		Limit(batch).
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to page paid order lines: %w", err)
	}
	return out, nil
}

// AppendView stores one product view
func (s *Store) AppendView(ctx context.Context, view *models.ProductView) error {
	if err := s.db.WithContext(ctx).Create(view).Error; err != nil {
		return fmt.Errorf("failed to record product view: %w", err)
	}
	return nil
}

// IncrementViewCount bumps view_count in a single UPDATE
func (s *Store) IncrementViewCount(ctx context.Context, productID uint) error {
	err := s.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", productID).
		UpdateColumn("view_count", gorm.Expr("view_count + ?", 1)).Error
	if err != nil {
		return fmt.Errorf("failed to increment view count of product %d: %w", productID, err)
	}
	return nil
}

// RecentViewedProductIDs returns distinct viewed product ids, most recent
// first, for a customer or (when customerID is nil) a session key
func (s *Store) RecentViewedProductIDs(ctx context.Context, customerID *uint, sessionKey string, limit int) ([]uint, error) {
	tx := s.db.WithContext(ctx).Model(&models.ProductView{})
	switch {
	case customerID != nil:
		tx = tx.Where("customer_id = ?", *customerID)
	case sessionKey != "":
		tx = tx.Where("customer_id IS NULL AND session_key = ?", sessionKey)
	default:
		return []uint{}, nil
	}

	var ids []uint
	err := tx.Group("product_id").
		Order("MAX(viewed_at) DESC, MAX(id) DESC").
		Limit(limit).
		Pluck("product_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load viewed products: %w", err)
	}
	return ids, nil
}

// ReplaceRecentlyViewed swaps a customer's recently viewed list in one transaction
func (s *Store) ReplaceRecentlyViewed(ctx context.Context, customerID uint, productIDs []uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("customer_id = ?", customerID).Delete(&models.RecentlyViewed{}).Error; err != nil {
			return fmt.Errorf("failed to clear recently viewed: %w", err)
		}
		if len(productIDs) == 0 {
			return nil
		}
		rows := make([]models.RecentlyViewed, len(productIDs))
		for i, id := range productIDs {
			rows[i] = models.RecentlyViewed{CustomerID: customerID, ProductID: id, Position: i}
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("failed to store recently viewed: %w", err)
		}
		return nil
	})
}

// RecentlyViewedIDs returns a customer's stored list, most recent first
func (s *Store) RecentlyViewedIDs(ctx context.Context, customerID uint) ([]uint, error) {
	var ids []uint
	err := s.db.WithContext(ctx).
		Model(&models.RecentlyViewed{}).
		Where("customer_id = ?", customerID).
		Order("position").
		Pluck("product_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load recently viewed: %w", err)
	}
	return ids, nil
}

// IncrementSearchCount bumps search_count of every active product matching
// the text query in one UPDATE and reports how many rows changed
func (s *Store) IncrementSearchCount(ctx context.Context, query string) (int64, error) {
	if strings.TrimSpace(query) == "" {
		return 0, nil
	}
	var matching interface{}
	if s.foldInSQL {
		cond, args := textMatch(query)
		matching = joinCategoryVendor(s.db.Model(&models.Product{}).Select("products.id")).
			Where("products.is_active = ?", true).
			Where(cond, args...)
	} else {
		products, err := s.ActiveProducts(ctx, ProductQuery{TextQuery: query})
		if err != nil {
			return 0, fmt.Errorf("failed to increment search counts: %w", err)
		}
		if len(products) == 0 {
			return 0, nil
		}
		matching = models.ProductIDs(products)
	}

	res := s.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id IN (?)", matching).
		UpdateColumn("search_count", gorm.Expr("search_count + ?", 1))
	if res.Error != nil {
		return 0, fmt.Errorf("failed to increment search counts: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// AppendSearchHistory stores one search record
func (s *Store) AppendSearchHistory(ctx context.Context, h *models.SearchHistory) error {
	if err := s.db.WithContext(ctx).Create(h).Error; err != nil {
		return fmt.Errorf("failed to record search history: %w", err)
	}
	return nil
}

// ProductNameSuggestions returns distinct active product names containing q
func (s *Store) ProductNameSuggestions(ctx context.Context, q string, limit int) ([]string, error) {
	var names []string
	tx := s.db.WithContext(ctx).
		Model(&models.Product{}).
		Distinct("name").
		Where("is_active = ?", true).
		Order("name")
	if s.foldInSQL {
		tx = tx.Where(`LOWER(name) LIKE ? ESCAPE '\'`, likePattern(q)).Limit(limit)
	}
	if err := tx.Pluck("name", &names).Error; err != nil {
		return nil, fmt.Errorf("failed to suggest product names: %w", err)
	}
	if !s.foldInSQL {
		names = filterNames(names, q, limit)
	}
	return names, nil
}

// CategoryNameSuggestions returns distinct category names containing q
func (s *Store) CategoryNameSuggestions(ctx context.Context, q string, limit int) ([]string, error) {
	var names []string
	tx := s.db.WithContext(ctx).
		Model(&models.Category{}).
		Distinct("name").
		Order("name")
	if s.foldInSQL {
		tx = tx.Where(`LOWER(name) LIKE ? ESCAPE '\'`, likePattern(q)).Limit(limit)
	}
	if err := tx.Pluck("name", &names).Error; err != nil {
		return nil, fmt.Errorf("failed to suggest category names: %w", err)
	}
	if !s.foldInSQL {
		names = filterNames(names, q, limit)
	}
	return names, nil
}

// Facets loads the search page filter options
func (s *Store) Facets(ctx context.Context) (models.Facets, error) {
	facets := models.Facets{Categories: []models.Category{}, Vendors: []models.Vendor{}}
	db := s.db.WithContext(ctx)

	if err := db.Order("name").Find(&facets.Categories).Error; err != nil {
		return facets, fmt.Errorf("failed to load categories: %w", err)
	}

	withActive := s.db.Model(&models.Product{}).
		Select("vendor_id").
		Where("is_active = ? AND vendor_id IS NOT NULL", true)
	if err := db.Where("id IN (?)", withActive).Order("username").Find(&facets.Vendors).Error; err != nil {
		return facets, fmt.Errorf("failed to load vendors: %w", err)
	}

	var bounds struct {
		MinPrice decimal.NullDecimal
		MaxPrice decimal.NullDecimal
	}
	err := db.Model(&models.Product{}).
		Select("MIN(price) AS min_price, MAX(price) AS max_price").
		Where("is_active = ?", true).
		Scan(&bounds).Error
	if err != nil {
		return facets, fmt.Errorf("failed to load price range: %w", err)
	}
	if bounds.MinPrice.Valid {
		facets.MinPrice = &bounds.MinPrice.Decimal
	}
	if bounds.MaxPrice.Valid {
		facets.MaxPrice = &bounds.MaxPrice.Decimal
	}
	return facets, nil
}
