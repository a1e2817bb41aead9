package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Category groups products; every product belongs to exactly one
type Category struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:200;uniqueIndex;not null" json:"name"`
	Slug      string    `gorm:"size:200;uniqueIndex" json:"slug"`
	CreatedAt time.Time `json:"created_at"`
}

// Brand is an optional product brand
type Brand struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:200;uniqueIndex;not null" json:"name"`
	Slug      string    `gorm:"size:200;uniqueIndex" json:"slug"`
	CreatedAt time.Time `json:"created_at"`
}

// Vendor is a vendor account that owns products
type Vendor struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Username    string `gorm:"size:150;uniqueIndex;not null" json:"username"`
	DisplayName string `gorm:"size:200" json:"display_name,omitempty"`
}

// Customer is a shopper account
type Customer struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Username string `gorm:"size:150;uniqueIndex;not null" json:"username"`
}

// Product is a catalog entry. Products without a VendorID belong to an
// offline vendor known only by OfflineVendorName.
type Product struct {
	ID                       uint            `gorm:"primaryKey" json:"id"`
	Name                     string          `gorm:"size:200;not null;index" json:"name"`
	Slug                     string          `gorm:"size:200;uniqueIndex" json:"slug"`
	Description              string          `gorm:"type:text" json:"description"`
	ShortDescription         string          `gorm:"size:300" json:"short_description,omitempty"`
	CategoryID               uint            `gorm:"not null;index" json:"category_id"`
	Category                 Category        `json:"category"`
	BrandID                  *uint           `gorm:"index" json:"brand_id,omitempty"`
	Brand                    *Brand          `json:"brand,omitempty"`
	VendorID                 *uint           `gorm:"index" json:"vendor_id,omitempty"`
	Vendor                   *Vendor         `json:"vendor,omitempty"`
	OfflineVendorName        string          `gorm:"size:200" json:"offline_vendor_name,omitempty"`
	Price                    decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price"`
	IsActive                 bool            `gorm:"not null;default:true;index" json:"is_active"`
	IsFeatured               bool            `gorm:"not null;default:false" json:"is_featured"`
	IsMadeFromLocalMaterials bool            `gorm:"not null;default:false" json:"is_made_from_local_materials"`
	ViewCount                int64           `gorm:"not null;default:0" json:"view_count"`
	SearchCount              int64           `gorm:"not null;default:0" json:"search_count"`
	CreatedAt                time.Time       `gorm:"index" json:"created_at"`
	UpdatedAt                time.Time       `json:"updated_at"`
}

// VendorName returns the vendor's display name, falling back to the
// offline vendor name.
func (p *Product) VendorName() string {
	if p.Vendor != nil {
		if p.Vendor.DisplayName != "" {
			return p.Vendor.DisplayName
		}
		return p.Vendor.Username
	}
	if p.OfflineVendorName != "" {
		return p.OfflineVendorName
	}
	return "Local Vendor"
}
