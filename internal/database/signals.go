package database

import (
	"context"
	"fmt"
	"time"

	"github.com/yishak-cs/storefront-recs/internal/models"
	"github.com/yishak-cs/storefront-recs/internal/ranking"
)

// signalBatch bounds the number of ids bound into one IN clause
const signalBatch = 500

type reviewAggregate struct {
	ProductID   uint
	AvgRating   float64
	ReviewCount int64
}

type salesAggregate struct {
	ProductID   uint
	SalesCount  int64
	RecentSales int64
}

type viewAggregate struct {
	ProductID   uint
	RecentViews int64
}

// Signals aggregates ranking signals for the given products. Ratings and
// review counts use approved reviews only; sales use PAID order items only.
// Recent sales and recent views count rows at or after since.
func (s *Store) Signals(ctx context.Context, ids []uint, since time.Time) (map[uint]ranking.ProductSignals, error) {
	out := make(map[uint]ranking.ProductSignals, len(ids))
	for start := 0; start < len(ids); start += signalBatch {
		end := min(start+signalBatch, len(ids))
		if err := s.signalsBatch(ctx, ids[start:end], since.UTC(), out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) signalsBatch(ctx context.Context, ids []uint, since time.Time, out map[uint]ranking.ProductSignals) error {
	db := s.db.WithContext(ctx)

	var reviews []reviewAggregate
	err := db.Model(&models.ProductReview{}).
		Select("product_id, AVG(CAST(rating AS FLOAT)) AS avg_rating, COUNT(id) AS review_count").
		Where("is_approved = ? AND product_id IN ?", true, ids).
		Group("product_id").
		Scan(&reviews).Error
	if err != nil {
		return fmt.Errorf("failed to aggregate reviews: %w", err)
	}
	for _, r := range reviews {
		sig := out[r.ProductID]
		sig.AvgRating = r.AvgRating
		sig.ReviewCount = r.ReviewCount
		out[r.ProductID] = sig
	}

	var sales []salesAggregate
	err = db.Table("order_items").
		Select(`order_items.product_id, COUNT(order_items.id) AS sales_count,
			SUM(CASE WHEN orders.created_at >= ? THEN 1 ELSE 0 END) AS recent_sales`, since).
		Joins("JOIN orders ON orders.id = order_items.order_id").
		Where("orders.payment_status = ? AND order_items.product_id IN ?", models.PaymentPaid, ids).
		Group("order_items.product_id").
		Scan(&sales).Error
	if err != nil {
		return fmt.Errorf("failed to aggregate sales: %w", err)
	}
	for _, r := range sales {
		sig := out[r.ProductID]
		sig.SalesCount = r.SalesCount
		sig.RecentSales = r.RecentSales
		out[r.ProductID] = sig
	}

	var views []viewAggregate
	err = db.Model(&models.ProductView{}).
		Select("product_id, COUNT(id) AS recent_views").
		Where("viewed_at >= ? AND product_id IN ?", since, ids).
		Group("product_id").
		Scan(&views).Error
	if err != nil {
		return fmt.Errorf("failed to aggregate views: %w", err)
	}
	for _, r := range views {
		sig := out[r.ProductID]
		sig.RecentViews = r.RecentViews
		out[r.ProductID] = sig
	}
	return nil
}

// Candidates joins products with their signals
func (s *Store) Candidates(ctx context.Context, products []models.Product, since time.Time) ([]ranking.Candidate, error) {
	signals, err := s.Signals(ctx, models.ProductIDs(products), since)
	if err != nil {
		return nil, err
	}
	return ranking.Join(products, signals), nil
}
