package pagination

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTotalPages(t *testing.T) {
	tests := []struct {
		total, perPage, want int
	}{
		{0, 20, 0},
		{1, 20, 1},
		{20, 20, 1},
		{21, 20, 2},
		{194, 20, 10},
		{100, 0, 0},
		{-5, 10, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TotalPages(tt.total, tt.perPage), "total=%d perPage=%d", tt.total, tt.perPage)
	}
}

func TestSlice(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	assert.Equal(t, []int{1, 2}, Slice(items, 0, 2))
	assert.Equal(t, []int{4, 5}, Slice(items, 3, 10))
	assert.Equal(t, []int{3, 4, 5}, Slice(items, 2, 0))
	assert.Equal(t, []int{}, Slice(items, 5, 2))
	assert.Equal(t, []int{1}, Slice(items, -3, 1))
}

func TestSlice_SharesBacking(t *testing.T) {
	items := []string{"a", "b", "c"}
	page := Slice(items, 1, 1)
	page[0] = "B"
	assert.Equal(t, "B", items[1])
}

func TestPageWindow_StartOfRange(t *testing.T) {
	w := PageWindow(1, 12, 5)

	assert.Equal(t, []int{1, 2, 3, 4, 5}, w.Pages)
	assert.False(t, w.ShowFirst)
	assert.False(t, w.LeadingEllipsis)
	assert.True(t, w.ShowLast)
	assert.True(t, w.TrailingEllipsis)
	assert.False(t, w.HasPrev)
	assert.True(t, w.HasNext)
}

func TestPageWindow_EndOfRange(t *testing.T) {
	w := PageWindow(12, 12, 5)

	assert.Equal(t, []int{8, 9, 10, 11, 12}, w.Pages)
	assert.True(t, w.ShowFirst)
	assert.True(t, w.LeadingEllipsis)
	assert.False(t, w.ShowLast)
	assert.False(t, w.TrailingEllipsis)
	assert.True(t, w.HasPrev)
	assert.False(t, w.HasNext)
}

func TestPageWindow_Centered(t *testing.T) {
	w := PageWindow(6, 12, 5)

	assert.Equal(t, []int{4, 5, 6, 7, 8}, w.Pages)
	assert.Equal(t, 6, w.Current)
	assert.True(t, w.LeadingEllipsis)
	assert.True(t, w.TrailingEllipsis)
}

func TestPageWindow_AdjacentEdgeHasNoEllipsis(t *testing.T) {
	w := PageWindow(4, 7, 5)

	assert.Equal(t, []int{2, 3, 4, 5, 6}, w.Pages)
	assert.True(t, w.ShowFirst)
	assert.False(t, w.LeadingEllipsis)
	assert.True(t, w.ShowLast)
	assert.False(t, w.TrailingEllipsis)
}

func TestPageWindow_FewerPagesThanWindow(t *testing.T) {
	w := PageWindow(2, 3, 5)

	assert.Equal(t, []int{1, 2, 3}, w.Pages)
	assert.False(t, w.ShowFirst)
	assert.False(t, w.ShowLast)
}

func TestPageWindow_ClampsCurrent(t *testing.T) {
	assert.Equal(t, 12, PageWindow(40, 12, 5).Current)
	assert.Equal(t, 1, PageWindow(-2, 12, 5).Current)
}

func TestPageWindow_NoPages(t *testing.T) {
	w := PageWindow(1, 0, 5)
	assert.Empty(t, w.Pages)
	assert.False(t, w.HasNext)
	assert.False(t, w.HasPrev)
}

func TestPageWindow_DefaultSize(t *testing.T) {
	w := PageWindow(1, 20, 0)
	assert.Len(t, w.Pages, MaxVisiblePages)
}

func TestItemRange(t *testing.T) {
	assert.Equal(t, Range{Start: 21, End: 40, Total: 194}, ItemRange(2, 20, 194))
	assert.Equal(t, Range{Start: 181, End: 194, Total: 194}, ItemRange(10, 20, 194))
	assert.Equal(t, Range{Total: 0}, ItemRange(1, 20, 0))
	assert.Equal(t, Range{Total: 5}, ItemRange(3, 20, 5))
}

func TestItemRange_PageFarBeyondEnd(t *testing.T) {
	assert.Equal(t, Range{Total: 194}, ItemRange(math.MaxInt/10, 20, 194))
	assert.Equal(t, Range{Total: 194}, ItemRange(math.MaxInt, 100, 194))
}
