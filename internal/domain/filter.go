package domain

import "strings"

// MinSearchLength is the shortest trimmed query that triggers a search.
const MinSearchLength = 3

// ListParams are the paging and sort parameters of a product listing.
type ListParams struct {
	Limit  int    `json:"limit"`
	Skip   int    `json:"skip"`
	SortBy string `json:"sort_by,omitempty"`
	Order  string `json:"order,omitempty"`
}

// PriceRange bounds a price filter. A nil bound is unbounded; both bounds are
// inclusive.
type PriceRange struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// IsZero reports whether neither bound is set.
func (r PriceRange) IsZero() bool {
	return r.Min == nil && r.Max == nil
}

// Contains reports whether price lies within the range.
func (r PriceRange) Contains(price float64) bool {
	if r.Min != nil && price < *r.Min {
		return false
	}
	if r.Max != nil && price > *r.Max {
		return false
	}
	return true
}

// Filters combines every criterion a listing can be narrowed by.
type Filters struct {
	Query    string     `json:"q,omitempty"`
	Category string     `json:"category,omitempty"`
	Price    PriceRange `json:"price,omitempty"`
	ListParams
}

// SearchActive reports whether the trimmed query is long enough to search.
func SearchActive(query string) bool {
	return len([]rune(strings.TrimSpace(query))) >= MinSearchLength
}

// FilterByPrice returns the products whose price lies within r, in order.
func FilterByPrice(products []Product, r PriceRange) []Product {
	out := make([]Product, 0, len(products))
	for _, p := range products {
		if r.Contains(p.Price) {
			out = append(out, p)
		}
	}
	return out
}

// FilterByCategory returns the products whose category contains category,
// case-insensitively.
func FilterByCategory(products []Product, category string) []Product {
	needle := strings.ToLower(strings.TrimSpace(category))
	out := make([]Product, 0, len(products))
	for _, p := range products {
		if strings.Contains(strings.ToLower(p.Category), needle) {
			out = append(out, p)
		}
	}
	return out
}
