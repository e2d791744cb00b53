// Package listing holds the per-session product listing state machine: the
// paged, optionally filtered and sorted listing, and free-text search over a
// locally sorted and paged result set.
package listing

import (
	"github.com/utafrali/EcommerceGo/storefront/internal/domain"
)

// Mode is the listing's top-level state.
type Mode string

const (
	ModeListing   Mode = "listing"
	ModeSearching Mode = "searching"
)

const (
	// DefaultPageSize is the page size a new listing starts with.
	DefaultPageSize = 20

	// MaxPage bounds page numbers so the item offset stays representable.
	MaxPage = 1 << 20
)

// State is everything the user has chosen. Query below the search threshold
// keeps the listing in ModeListing.
type State struct {
	Query    string `json:"query"`
	Category string `json:"category"`
	SortBy   string `json:"sort_by"`
	Order    string `json:"order"`
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
}

// NewState returns the default listing state.
func NewState(pageSize int) State {
	if !domain.IsValidPageSize(pageSize) {
		pageSize = DefaultPageSize
	}
	return State{Page: 1, PageSize: pageSize}
}

// Mode derives the mode from the query.
func (s State) Mode() Mode {
	if domain.SearchActive(s.Query) {
		return ModeSearching
	}
	return ModeListing
}

func (s State) offset() int {
	return (s.Page - 1) * s.PageSize
}

func (s State) listParams() domain.ListParams {
	return domain.ListParams{
		Limit:  s.PageSize,
		Skip:   s.offset(),
		SortBy: s.SortBy,
		Order:  s.Order,
	}
}
