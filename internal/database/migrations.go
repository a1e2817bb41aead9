package database

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/yishak-cs/storefront-recs/internal/logger"
	"github.com/yishak-cs/storefront-recs/internal/models"
)

// AutoMigrate creates or updates every relational table in dependency order
func AutoMigrate(ctx context.Context, db *gorm.DB, log *logger.Logger) error {
	log.Info("Starting schema migration...")

	steps := []struct {
		name   string
		models []interface{}
	}{
		{"catalog", []interface{}{&models.Category{}, &models.Brand{}, &models.Vendor{}, &models.Customer{}, &models.Product{}}},
		{"orders", []interface{}{&models.Order{}, &models.OrderItem{}}},
		{"reviews", []interface{}{&models.ProductReview{}}},
		{"activity", []interface{}{&models.ProductView{}, &models.RecentlyViewed{}, &models.SearchHistory{}}},
	}

	for _, step := range steps {
		log.Debug("Migrating tables", "step", step.name)
		if err := db.WithContext(ctx).AutoMigrate(step.models...); err != nil {
			return fmt.Errorf("failed to migrate %s: %w", step.name, err)
		}
	}

	log.Info("Schema migration completed")
	return nil
}

// graphConstraints are the uniqueness constraints of the co-purchase graph
var graphConstraints = []string{
	`CREATE CONSTRAINT customer_id IF NOT EXISTS FOR (c:Customer) REQUIRE c.db_id IS UNIQUE`,
	`CREATE CONSTRAINT order_id IF NOT EXISTS FOR (o:Order) REQUIRE o.db_id IS UNIQUE`,
	`CREATE CONSTRAINT product_id IF NOT EXISTS FOR (p:Product) REQUIRE p.db_id IS UNIQUE`,
}

// EnsureSchema creates the graph constraints. Safe to call on every start.
func (g *CoPurchaseGraph) EnsureSchema(ctx context.Context) error {
	for _, stmt := range graphConstraints {
		if err := g.client.ExecuteWrite(ctx, stmt, nil); err != nil {
			return fmt.Errorf("failed to create graph constraint: %w", err)
		}
	}
	return nil
}
