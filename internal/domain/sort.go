package domain

import (
	"cmp"
	"slices"
	"strings"
)

// Sort fields understood by the remote API and by client-side sorting.
const (
	SortDefault  = ""
	SortTitle    = "title"
	SortPrice    = "price"
	SortRating   = "rating"
	SortDiscount = "discountPercentage"
	SortStock    = "stock"
	SortBrand    = "brand"
	SortCategory = "category"
)

// Sort orders.
const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// SortOptions lists the sort fields offered to shoppers.
func SortOptions() []string {
	return []string{SortDefault, SortTitle, SortPrice, SortRating, SortDiscount}
}

// PageSizeOptions lists the page sizes offered to shoppers.
func PageSizeOptions() []int {
	return []int{10, 20, 30, 50}
}

var sortable = map[string]bool{
	SortDefault: true, SortTitle: true, SortPrice: true, SortRating: true,
	SortDiscount: true, SortStock: true, SortBrand: true, SortCategory: true,
}

// IsValidSortField reports whether field can be sorted on. Empty is valid.
func IsValidSortField(field string) bool {
	return sortable[field]
}

// IsValidSortOrder reports whether order is asc, desc or empty.
func IsValidSortOrder(order string) bool {
	return order == "" || order == OrderAsc || order == OrderDesc
}

// IsValidPageSize reports whether size is one of PageSizeOptions.
func IsValidPageSize(size int) bool {
	return slices.Contains(PageSizeOptions(), size)
}

// NormalizeOrder returns asc unless order is desc.
func NormalizeOrder(order string) string {
	if strings.EqualFold(order, OrderDesc) {
		return OrderDesc
	}
	return OrderAsc
}

// SortProducts returns a stably sorted copy of products. Text fields compare
// case-insensitively, numeric fields numerically; ties keep their original
// order. An empty field returns an unsorted copy.
func SortProducts(products []Product, field, order string) []Product {
	out := slices.Clone(products)
	if field == SortDefault || !IsValidSortField(field) {
		return out
	}
	desc := NormalizeOrder(order) == OrderDesc
	slices.SortStableFunc(out, func(a, b Product) int {
		c := compareField(a, b, field)
		if desc {
			return -c
		}
		return c
	})
	return out
}

func compareField(a, b Product, field string) int {
	switch field {
	case SortTitle:
		return strings.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
	case SortBrand:
		return strings.Compare(strings.ToLower(a.Brand), strings.ToLower(b.Brand))
	case SortCategory:
		return strings.Compare(strings.ToLower(a.Category), strings.ToLower(b.Category))
	case SortPrice:
		return cmp.Compare(a.Price, b.Price)
	case SortRating:
		return cmp.Compare(a.Rating, b.Rating)
	case SortDiscount:
		return cmp.Compare(a.DiscountPercentage, b.DiscountPercentage)
	case SortStock:
		return cmp.Compare(a.Stock, b.Stock)
	default:
		return 0
	}
}
