// Package dbtest opens throwaway in-memory databases and seeds catalog,
// order and review rows for tests.
package dbtest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/yishak-cs/storefront-recs/internal/database"
	"github.com/yishak-cs/storefront-recs/internal/logger"
	"github.com/yishak-cs/storefront-recs/internal/models"
)

// New opens a migrated, private in-memory sqlite database closed at test end
func New(t testing.TB) *gorm.DB {
	t.Helper()
	log := logger.Nop()

	db, err := database.Open(database.SQLConfig{
		Driver:       "sqlite",
		DSN:          fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
		MaxOpenConns: 1,
	}, log)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = database.Close(db) })

	if err := database.AutoMigrate(context.Background(), db, log); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// Seed inserts fixtures, failing the test on any error
type Seed struct {
	t   testing.TB
	db  *gorm.DB
	Now time.Time
	seq int
}

// NewSeed creates a seeder anchored at the current time
func NewSeed(t testing.TB, db *gorm.DB) *Seed {
	return &Seed{t: t, db: db, Now: time.Now().UTC().Truncate(time.Second)}
}

func (s *Seed) next() int {
	s.seq++
	return s.seq
}

func (s *Seed) create(v interface{}) {
	s.t.Helper()
	if err := s.db.Create(v).Error; err != nil {
		s.t.Fatalf("seed %T: %v", v, err)
	}
}

func (s *Seed) Category(name string) models.Category {
	s.t.Helper()
	c := models.Category{Name: name, Slug: fmt.Sprintf("cat-%d", s.next())}
	s.create(&c)
	return c
}

func (s *Seed) Brand(name string) models.Brand {
	s.t.Helper()
	b := models.Brand{Name: name, Slug: fmt.Sprintf("brand-%d", s.next())}
	s.create(&b)
	return b
}

func (s *Seed) Vendor(username string) models.Vendor {
	s.t.Helper()
	v := models.Vendor{Username: username}
	s.create(&v)
	return v
}

func (s *Seed) Customer() models.Customer {
	s.t.Helper()
	c := models.Customer{Username: fmt.Sprintf("customer-%d", s.next())}
	s.create(&c)
	return c
}

// ProductOption customizes a seeded product
type ProductOption func(*models.Product)

func Inactive() ProductOption { return func(p *models.Product) { p.IsActive = false } }
func Featured() ProductOption { return func(p *models.Product) { p.IsFeatured = true } }
func LocalMaterials() ProductOption {
	return func(p *models.Product) { p.IsMadeFromLocalMaterials = true }
}
func WithBrand(id uint) ProductOption  { return func(p *models.Product) { p.BrandID = &id } }
func WithVendor(id uint) ProductOption { return func(p *models.Product) { p.VendorID = &id } }
func WithPrice(price string) ProductOption {
	return func(p *models.Product) { p.Price = decimal.RequireFromString(price) }
}
func WithDescription(d string) ProductOption { return func(p *models.Product) { p.Description = d } }
func WithSearchCount(n int64) ProductOption  { return func(p *models.Product) { p.SearchCount = n } }
func WithViewCount(n int64) ProductOption    { return func(p *models.Product) { p.ViewCount = n } }

// CreatedAgo backdates the product creation time
func CreatedAgo(d time.Duration) ProductOption {
	return func(p *models.Product) { p.CreatedAt = p.CreatedAt.Add(-d) }
}

// Product inserts an active product. Later seeds are newer unless backdated.
func (s *Seed) Product(name string, categoryID uint, opts ...ProductOption) models.Product {
	s.t.Helper()
	n := s.next()
	p := models.Product{
		Name:       name,
		Slug:       fmt.Sprintf("product-%d", n),
		CategoryID: categoryID,
		Price:      decimal.RequireFromString("10.00"),
		IsActive:   true,
		CreatedAt:  s.Now.Add(-time.Hour).Add(time.Duration(n) * time.Second),
	}
	for _, opt := range opts {
		opt(&p)
	}
	active := p.IsActive
	s.create(&p)
	// is_active has a column default, so a false value must be written explicitly
	if !active {
		if err := s.db.Model(&p).UpdateColumn("is_active", false).Error; err != nil {
			s.t.Fatalf("deactivate product: %v", err)
		}
		p.IsActive = false
	}
	return p
}

// Order inserts an order with one item per product id
func (s *Seed) Order(customerID uint, status models.PaymentStatus, productIDs ...uint) models.Order {
	return s.OrderAt(customerID, status, s.Now.Add(-time.Hour), productIDs...)
}

// OrderAt inserts an order created at the given time
func (s *Seed) OrderAt(customerID uint, status models.PaymentStatus, at time.Time, productIDs ...uint) models.Order {
	s.t.Helper()
	o := models.Order{CustomerID: customerID, PaymentStatus: status, CreatedAt: at}
	for _, id := range productIDs {
		o.Items = append(o.Items, models.OrderItem{ProductID: id, Quantity: 1, UnitPrice: decimal.RequireFromString("10.00")})
	}
	s.create(&o)
	return o
}

// Sales records n PAID single-item orders for a product from fresh customers
func (s *Seed) Sales(productID uint, n int) {
	s.t.Helper()
	for i := 0; i < n; i++ {
		s.Order(s.Customer().ID, models.PaymentPaid, productID)
	}
}

// Review inserts a review from a fresh customer
func (s *Seed) Review(productID uint, rating int, approved bool) {
	s.t.Helper()
	s.create(&models.ProductReview{
		ProductID:  productID,
		CustomerID: s.Customer().ID,
		Rating:     rating,
		IsApproved: approved,
	})
}

// View inserts a product view at the given time
func (s *Seed) View(productID uint, customerID *uint, at time.Time) {
	s.t.Helper()
	s.create(&models.ProductView{ProductID: productID, CustomerID: customerID, ViewedAt: at})
}
