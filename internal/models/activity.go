package models

import "time"

// RecentlyViewedLimit caps a customer's recently viewed list
const RecentlyViewedLimit = 20

// ProductView is one product detail page load. The log is append-only.
type ProductView struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ProductID  uint      `gorm:"not null;index" json:"product_id"`
	CustomerID *uint     `gorm:"index" json:"customer_id,omitempty"`
	SessionKey *string   `gorm:"size:64;index" json:"session_key,omitempty"`
	IPAddress  string    `gorm:"size:45" json:"ip_address,omitempty"`
	ViewedAt   time.Time `gorm:"not null;index" json:"viewed_at"`
}

// RecentlyViewed is one slot of a customer's recently viewed list.
// Position 0 is the most recent product.
type RecentlyViewed struct {
	CustomerID uint      `gorm:"primaryKey;autoIncrement:false" json:"customer_id"`
	ProductID  uint      `gorm:"primaryKey;autoIncrement:false" json:"product_id"`
	Position   int       `gorm:"not null" json:"position"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName keeps the dashboard table name stable
func (RecentlyViewed) TableName() string {
	return "customer_recently_viewed"
}

// SearchHistory records a text search for analytics
type SearchHistory struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	CustomerID      *uint     `gorm:"index" json:"customer_id,omitempty"`
	Query           string    `gorm:"size:255;not null" json:"query"`
	ResultsCount    int64     `gorm:"not null" json:"results_count"`
	WasProductFound bool      `gorm:"not null" json:"was_product_found"`
	CreatedAt       time.Time `json:"created_at"`
}
