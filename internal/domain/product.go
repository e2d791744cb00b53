package domain

import (
	"github.com/shopspring/decimal"
)

// Product is a catalog item as served by the remote catalog API. The
// storefront only ever holds cached copies.
type Product struct {
	ID                  int         `json:"id"`
	Title               string      `json:"title"`
	Description         string      `json:"description"`
	Price               float64     `json:"price"`
	DiscountPercentage  float64     `json:"discountPercentage"`
	Rating              float64     `json:"rating"`
	Stock               int         `json:"stock"`
	Brand               string      `json:"brand,omitempty"`
	Category            string      `json:"category"`
	Thumbnail           string      `json:"thumbnail"`
	Images              []string    `json:"images"`
	Dimensions          *Dimensions `json:"dimensions,omitempty"`
	WarrantyInformation string      `json:"warrantyInformation,omitempty"`
	ShippingInformation string      `json:"shippingInformation,omitempty"`
	ReturnPolicy        string      `json:"returnPolicy,omitempty"`
	Reviews             []Review    `json:"reviews,omitempty"`
}

// Dimensions holds a product's physical size.
type Dimensions struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Depth  float64 `json:"depth"`
}

// Review is a single customer review attached to a product.
type Review struct {
	ReviewerName string  `json:"reviewerName"`
	Rating       float64 `json:"rating"`
	Comment      string  `json:"comment"`
	Date         string  `json:"date"`
}

// DiscountedPrice returns the price after DiscountPercentage, rounded to cents.
func (p Product) DiscountedPrice() float64 {
	price := decimal.NewFromFloat(p.Price)
	if p.DiscountPercentage <= 0 {
		return price.Round(2).InexactFloat64()
	}
	off := price.Mul(decimal.NewFromFloat(p.DiscountPercentage)).Div(decimal.NewFromInt(100))
	return price.Sub(off).Round(2).InexactFloat64()
}

// InStock reports whether any units are available.
func (p Product) InStock() bool {
	return p.Stock > 0
}

// ProductPage is one page of a product collection.
type ProductPage struct {
	Products []Product `json:"products"`
	Total    int       `json:"total"`
	Skip     int       `json:"skip"`
	Limit    int       `json:"limit"`

	// Approximate is set when Total counts matches within a bulk sample
	// rather than the remote total.
	Approximate bool `json:"approximate,omitempty"`
}

// Normalize replaces missing or negative fields with safe defaults.
func (p *ProductPage) Normalize() {
	if p.Products == nil {
		p.Products = []Product{}
	}
	if p.Total < 0 {
		p.Total = 0
	}
	if p.Skip < 0 {
		p.Skip = 0
	}
	if p.Limit < 0 {
		p.Limit = 0
	}
	if len(p.Products) > 0 && p.Total < p.Skip+len(p.Products) {
		p.Total = p.Skip + len(p.Products)
	}
}

// CreateProductInput holds the fields accepted when adding a product.
type CreateProductInput struct {
	Title              string   `json:"title" validate:"required,notblank,max=255"`
	Description        string   `json:"description,omitempty" validate:"max=4000"`
	Price              *float64 `json:"price" validate:"required,gte=0"`
	DiscountPercentage float64  `json:"discountPercentage,omitempty" validate:"gte=0,lte=100"`
	Stock              int      `json:"stock,omitempty" validate:"gte=0"`
	Brand              string   `json:"brand,omitempty" validate:"max=255"`
	Category           string   `json:"category,omitempty" validate:"max=255"`
	Thumbnail          string   `json:"thumbnail,omitempty" validate:"omitempty,url"`
}

// UpdateProductInput holds a partial product update. Nil fields are left
// unchanged.
type UpdateProductInput struct {
	Title              *string  `json:"title,omitempty" validate:"omitempty,notblank,max=255"`
	Description        *string  `json:"description,omitempty" validate:"omitempty,max=4000"`
	Price              *float64 `json:"price,omitempty" validate:"omitempty,gte=0"`
	DiscountPercentage *float64 `json:"discountPercentage,omitempty" validate:"omitempty,gte=0,lte=100"`
	Stock              *int     `json:"stock,omitempty" validate:"omitempty,gte=0"`
	Brand              *string  `json:"brand,omitempty" validate:"omitempty,max=255"`
	Category           *string  `json:"category,omitempty" validate:"omitempty,max=255"`
	Thumbnail          *string  `json:"thumbnail,omitempty" validate:"omitempty,url"`
}

// IsEmpty reports whether the update carries no fields.
func (in UpdateProductInput) IsEmpty() bool {
	return in.Title == nil && in.Description == nil && in.Price == nil &&
		in.DiscountPercentage == nil && in.Stock == nil && in.Brand == nil &&
		in.Category == nil && in.Thumbnail == nil
}
