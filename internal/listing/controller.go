package listing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/utafrali/EcommerceGo/storefront/internal/domain"
	"github.com/utafrali/EcommerceGo/storefront/internal/query"
	"github.com/utafrali/EcommerceGo/storefront/internal/querycache"
	apperrors "github.com/utafrali/EcommerceGo/storefront/pkg/errors"
	"github.com/utafrali/EcommerceGo/storefront/pkg/logger"
	"github.com/utafrali/EcommerceGo/storefront/pkg/pagination"
)

// ErrSuperseded is returned by Load when the state changed while the load
// was in flight. The result belongs to a state the user already left.
var ErrSuperseded = errors.New("listing: load superseded by a newer state")

// Queries is the subset of the query service a listing needs.
type Queries interface {
	Products(ctx context.Context, params domain.ListParams) (*query.Result[*domain.ProductPage], error)
	ByCategory(ctx context.Context, category string, params domain.ListParams) (*query.Result[*domain.ProductPage], error)
	Search(ctx context.Context, q string, limit, skip int) (*query.Result[*domain.ProductPage], error)
	SearchLimit() int
	DeleteProduct(ctx context.Context, id string) (*domain.Product, error)
}

// View is a resolved page of the listing.
type View struct {
	Mode        Mode              `json:"mode"`
	State       State             `json:"state"`
	Products    []domain.Product  `json:"products"`
	TotalItems  int               `json:"total_items"`
	TotalPages  int               `json:"total_pages"`
	Window      pagination.Window `json:"window"`
	Range       pagination.Range  `json:"range"`
	Approximate bool              `json:"approximate"`
	Status      querycache.Status `json:"status"`
	FetchedAt   time.Time         `json:"fetched_at,omitzero"`
}

// Controller is one user's listing. It is safe for concurrent use; every
// state change bumps a version so late loads can be recognised.
type Controller struct {
	mu      sync.Mutex
	state   State
	version uint64

	queries Queries
	logger  *slog.Logger
}

// NewController creates a listing in its default state.
func NewController(queries Queries, pageSize int, logger *slog.Logger) *Controller {
	return &Controller{
		state:   NewState(pageSize),
		queries: queries,
		logger:  logger,
	}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) update(fn func(s *State)) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := c.state
	fn(&next)
	if next != c.state {
		c.state = next
		c.version++
	}
	return c.state
}

// SetSearch sets the search query. A changed query returns to page 1.
func (c *Controller) SetSearch(q string) State {
	q = strings.TrimSpace(q)
	return c.update(func(s *State) {
		if s.Query != q {
			s.Query = q
			s.Page = 1
		}
	})
}

// ClearSearch leaves search mode.
func (c *Controller) ClearSearch() State {
	return c.SetSearch("")
}

// Type feeds raw keystrokes through Debounce and applies the last effective
// query, if any. It returns the queries that fired.
func (c *Controller) Type(events []InputEvent, wait time.Duration) (State, []QueryEvent) {
	fired := Debounce(events, wait)
	if len(fired) == 0 {
		return c.State(), fired
	}
	return c.SetSearch(fired[len(fired)-1].Query), fired
}

// SetCategory filters by category. It clears any search and returns to
// page 1.
func (c *Controller) SetCategory(category string) State {
	category = strings.TrimSpace(category)
	return c.update(func(s *State) {
		s.Query = ""
		s.Category = category
		s.Page = 1
	})
}

// SetSort changes the sort field and order and returns to page 1. An empty
// field restores the remote default order.
func (c *Controller) SetSort(field, order string) (State, error) {
	if !domain.IsValidSortField(field) {
		return c.State(), apperrors.InvalidInput("unknown sort field " + field)
	}
	if !domain.IsValidSortOrder(order) {
		return c.State(), apperrors.InvalidInput("sort order must be asc or desc")
	}
	if field == domain.SortDefault {
		order = ""
	} else {
		order = domain.NormalizeOrder(order)
	}
	return c.update(func(s *State) {
		s.SortBy = field
		s.Order = order
		s.Page = 1
	}), nil
}

// SetPage moves to page. Other choices are kept.
func (c *Controller) SetPage(page int) (State, error) {
	if page < 1 {
		return c.State(), apperrors.InvalidInput("page must be at least 1")
	}
	if page > MaxPage {
		return c.State(), apperrors.InvalidInput(fmt.Sprintf("page must be at most %d", MaxPage))
	}
	return c.update(func(s *State) {
		s.Page = page
	}), nil
}

// SetPageSize changes the page size and returns to page 1.
func (c *Controller) SetPageSize(size int) (State, error) {
	if !domain.IsValidPageSize(size) {
		return c.State(), apperrors.InvalidInput("unsupported page size")
	}
	return c.update(func(s *State) {
		s.PageSize = size
		s.Page = 1
	}), nil
}

// Load resolves the current state into a view. In ModeListing the page is
// fetched remotely; in ModeSearching the full search result is sorted and
// paged locally, so page turns and re-sorts reuse the cached result. If the
// state changes before the fetch returns, Load returns ErrSuperseded.
//
// A failed fetch returns the error together with a view holding whatever
// data the cache still has.
func (c *Controller) Load(ctx context.Context) (*View, error) {
	c.mu.Lock()
	st, version := c.state, c.version
	c.mu.Unlock()

	var (
		view *View
		err  error
	)
	if st.Mode() == ModeSearching {
		view, err = c.loadSearch(ctx, st)
	} else {
		view, err = c.loadListing(ctx, st)
	}

	c.mu.Lock()
	superseded := c.version != version
	c.mu.Unlock()
	if superseded {
		logger.WithContext(ctx, c.logger).DebugContext(ctx, "listing load superseded",
			slog.String("mode", string(st.Mode())),
			slog.Int("page", st.Page),
		)
		return nil, ErrSuperseded
	}
	return view, err
}

func (c *Controller) loadListing(ctx context.Context, st State) (*View, error) {
	var (
		res *query.Result[*domain.ProductPage]
		err error
	)
	if st.Category != "" {
		res, err = c.queries.ByCategory(ctx, st.Category, st.listParams())
	} else {
		res, err = c.queries.Products(ctx, st.listParams())
	}
	view := newView(ModeListing, st, res)
	if res != nil && res.Data != nil {
		page := *res.Data
		page.Normalize()
		view.Products = page.Products
		view.TotalItems = page.Total
		view.Approximate = page.Approximate
	}
	view.paginate()
	return view, err
}

func (c *Controller) loadSearch(ctx context.Context, st State) (*View, error) {
	res, err := c.queries.Search(ctx, st.Query, c.queries.SearchLimit(), 0)
	view := newView(ModeSearching, st, res)
	if res != nil && res.Data != nil {
		matches := res.Data.Products
		if st.SortBy != "" {
			matches = domain.SortProducts(matches, st.SortBy, st.Order)
		}
		view.Products = pagination.Slice(matches, st.offset(), st.PageSize)
		view.TotalItems = len(matches)
		view.Approximate = res.Data.Total > len(matches)
	}
	view.paginate()
	return view, err
}

func newView(mode Mode, st State, res *query.Result[*domain.ProductPage]) *View {
	v := &View{Mode: mode, State: st, Products: []domain.Product{}}
	if res != nil {
		v.Status = res.Status
		v.FetchedAt = res.FetchedAt
	}
	return v
}

func (v *View) paginate() {
	v.TotalPages = pagination.TotalPages(v.TotalItems, v.State.PageSize)
	v.Window = pagination.PageWindow(v.State.Page, v.TotalPages, pagination.MaxVisiblePages)
	v.Range = pagination.ItemRange(v.State.Page, v.State.PageSize, v.TotalItems)
}

// Delete removes a product after explicit confirmation. Listing caches are
// invalidated by the mutation; local state is left as it is whether or not
// the delete succeeds.
func (c *Controller) Delete(ctx context.Context, id string, confirmed bool) (*domain.Product, error) {
	if !confirmed {
		return nil, apperrors.ConfirmationRequired("delete product")
	}
	product, err := c.queries.DeleteProduct(ctx, id)
	if err != nil {
		logger.WithContext(ctx, c.logger).WarnContext(ctx, "delete product failed",
			slog.String("product_id", id),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	return product, nil
}

// Edit is not implemented.
func (c *Controller) Edit(_ context.Context, _ string, _ domain.UpdateProductInput) error {
	return apperrors.Unsupported("edit product")
}

// AddToCart is not implemented.
func (c *Controller) AddToCart(_ context.Context, _ string, _ int) error {
	return apperrors.Unsupported("add to cart")
}
