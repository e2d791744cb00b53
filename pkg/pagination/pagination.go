// Package pagination holds page arithmetic shared by the catalog client and
// the listing controller.
package pagination

const (
	// DefaultPerPage is the page size when the client does not choose one.
	DefaultPerPage = 20
	// MaxPerPage caps the page size accepted from clients.
	MaxPerPage = 100
	// MaxVisiblePages is the number of page links shown by a page window.
	MaxVisiblePages = 5
)

// TotalPages returns ceil(total / perPage), or 0 when perPage is not positive.
func TotalPages(total, perPage int) int {
	if perPage <= 0 || total <= 0 {
		return 0
	}
	return (total + perPage - 1) / perPage
}

// Slice returns items[offset : offset+limit] clamped to the slice bounds.
// A non-positive limit returns everything from offset.
func Slice[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}

// Window describes the page links to render around the current page.
// ShowFirst/ShowLast mean the first/last page is outside Pages and gets its
// own link; the ellipsis flags mean it is also not adjacent to Pages.
type Window struct {
	Pages            []int `json:"pages"`
	Current          int   `json:"current"`
	TotalPages       int   `json:"total_pages"`
	ShowFirst        bool  `json:"show_first"`
	LeadingEllipsis  bool  `json:"leading_ellipsis"`
	ShowLast         bool  `json:"show_last"`
	TrailingEllipsis bool  `json:"trailing_ellipsis"`
	HasPrev          bool  `json:"has_prev"`
	HasNext          bool  `json:"has_next"`
}

// PageWindow returns at most maxVisible page numbers, centered on current
// where possible and clamped to [1, totalPages].
func PageWindow(current, totalPages, maxVisible int) Window {
	w := Window{Pages: []int{}, TotalPages: totalPages}
	if totalPages <= 0 {
		return w
	}
	if maxVisible <= 0 {
		maxVisible = MaxVisiblePages
	}
	current = min(max(current, 1), totalPages)
	w.Current = current

	start := max(1, current-maxVisible/2)
	end := min(totalPages, start+maxVisible-1)
	if end-start+1 < maxVisible {
		start = max(1, end-maxVisible+1)
	}

	for p := start; p <= end; p++ {
		w.Pages = append(w.Pages, p)
	}

	w.ShowFirst = start > 1
	w.LeadingEllipsis = start > 2
	w.ShowLast = end < totalPages
	w.TrailingEllipsis = end < totalPages-1
	w.HasPrev = current > 1
	w.HasNext = current < totalPages
	return w
}

// Range is the 1-based span of items shown on a page ("showing 21 to 40 of 194").
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
	Total int `json:"total"`
}

// ItemRange computes the item span for page of size perPage.
func ItemRange(page, perPage, total int) Range {
	if total <= 0 || perPage <= 0 || page < 1 {
		return Range{Total: max(total, 0)}
	}
	if page > TotalPages(total, perPage) {
		return Range{Total: total}
	}
	start := (page-1)*perPage + 1
	return Range{Start: start, End: min(page*perPage, total), Total: total}
}
