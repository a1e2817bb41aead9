package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is the payment state of an order
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentPaid      PaymentStatus = "PAID"
	PaymentCancelled PaymentStatus = "CANCELLED"
	PaymentRefunded  PaymentStatus = "REFUNDED"
)

// Order is a customer purchase. Only PAID orders count as completed.
type Order struct {
	ID            uint          `gorm:"primaryKey" json:"id"`
	CustomerID    uint          `gorm:"not null;index" json:"customer_id"`
	PaymentStatus PaymentStatus `gorm:"size:20;not null;index" json:"payment_status"`
	Items         []OrderItem   `json:"items,omitempty"`
	CreatedAt     time.Time     `gorm:"index" json:"created_at"`
}

// OrderItem links an order to a product
type OrderItem struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	OrderID   uint            `gorm:"not null;index" json:"order_id"`
	ProductID uint            `gorm:"not null;index" json:"product_id"`
	Quantity  int             `gorm:"not null;default:1" json:"quantity"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(10,2)" json:"unit_price"`
	CreatedAt time.Time       `json:"created_at"`
}

// ProductReview is a customer rating. Only approved reviews feed rankings.
type ProductReview struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ProductID  uint      `gorm:"not null;uniqueIndex:idx_review_product_customer" json:"product_id"`
	CustomerID uint      `gorm:"not null;uniqueIndex:idx_review_product_customer" json:"customer_id"`
	Rating     int       `gorm:"not null" json:"rating"`
	IsApproved bool      `gorm:"not null;default:false;index" json:"is_approved"`
	CreatedAt  time.Time `json:"created_at"`
}

// OrderLine is a flattened PAID order item used for the co-purchase graph projection
type OrderLine struct {
	OrderItemID uint      `json:"order_item_id"`
	OrderID     uint      `json:"order_id"`
	CustomerID  uint      `json:"customer_id"`
	ProductID   uint      `json:"product_id"`
	Quantity    int       `json:"quantity"`
	OrderedAt   time.Time `json:"ordered_at"`
}
