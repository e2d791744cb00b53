package http

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/utafrali/EcommerceGo/storefront/internal/domain"
	"github.com/utafrali/EcommerceGo/storefront/internal/listing"
	"github.com/utafrali/EcommerceGo/storefront/internal/session"
	apperrors "github.com/utafrali/EcommerceGo/storefront/pkg/errors"
	"github.com/utafrali/EcommerceGo/storefront/pkg/httputil"
	"github.com/utafrali/EcommerceGo/storefront/pkg/logger"
	"github.com/utafrali/EcommerceGo/storefront/pkg/validator"
)

var errNoSession = errors.New("no listing session in request context")

// ListingHandler exposes the session's listing controller.
type ListingHandler struct {
	logger *slog.Logger
}

// NewListingHandler creates a new listing HTTP handler.
func NewListingHandler(logger *slog.Logger) *ListingHandler {
	return &ListingHandler{logger: logger}
}

// --- Request DTOs ---

// InputEventRequest is one keystroke-level change of the search box.
type InputEventRequest struct {
	AtMS  int64  `json:"at_ms" validate:"gte=0"`
	Value string `json:"value" validate:"max=200"`
}

// SearchRequest sets the query directly or replays raw input through the
// debouncer.
type SearchRequest struct {
	Query  string              `json:"query" validate:"max=200"`
	Events []InputEventRequest `json:"events" validate:"omitempty,max=500,dive"`
	WaitMS int64               `json:"wait_ms" validate:"gte=0"`
}

// CategoryRequest selects a category; empty clears the filter.
type CategoryRequest struct {
	Category string `json:"category" validate:"max=100"`
}

// SortRequest selects the sort field and order.
type SortRequest struct {
	SortBy string `json:"sort_by"`
	Order  string `json:"order"`
}

// PageRequest moves to a page.
type PageRequest struct {
	Page int `json:"page" validate:"required,min=1"`
}

// PageSizeRequest changes the page size.
type PageSizeRequest struct {
	PageSize int `json:"page_size" validate:"required"`
}

// CartItemRequest adds a product to the cart.
type CartItemRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,min=1"`
}

// --- Response DTOs ---

// SearchResponse reports the new state and the queries the debouncer fired.
type SearchResponse struct {
	State listing.State `json:"state"`
	Mode  listing.Mode  `json:"mode"`
	Fired []FiredQuery  `json:"fired,omitempty"`
}

// FiredQuery is an effective query emitted by the debouncer.
type FiredQuery struct {
	AtMS  int64  `json:"at_ms"`
	Query string `json:"query"`
}

// OptionsResponse lists the choices a listing offers.
type OptionsResponse struct {
	SortFields []string `json:"sort_fields"`
	PageSizes  []int    `json:"page_sizes"`
}

// --- Handlers ---

func (h *ListingHandler) controller(w http.ResponseWriter, r *http.Request) (*listing.Controller, bool) {
	ctrl, ok := session.ControllerFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, r, apperrors.Internal(errNoSession), h.logger)
	}
	return ctrl, ok
}

func (h *ListingHandler) writeState(w http.ResponseWriter, st listing.State) {
	httputil.WriteData(w, http.StatusOK, SearchResponse{State: st, Mode: st.Mode()})
}

// GetListing handles GET /api/v1/listing
func (h *ListingHandler) GetListing(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}

	view, err := ctrl.Load(r.Context())
	if errors.Is(err, listing.ErrSuperseded) {
		logger.FromContext(r.Context()).DebugContext(r.Context(), "listing changed during load")
		httputil.WriteErrorCode(w, r, http.StatusConflict, "SUPERSEDED",
			"the listing changed while loading, reload to see the latest state")
		return
	}
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, view)
}

// Options handles GET /api/v1/listing/options
func (h *ListingHandler) Options(w http.ResponseWriter, r *http.Request) {
	httputil.WriteData(w, http.StatusOK, OptionsResponse{
		SortFields: domain.SortOptions(),
		PageSizes:  domain.PageSizeOptions(),
	})
}

// Search handles POST /api/v1/listing/search
func (h *ListingHandler) Search(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	var req SearchRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	if len(req.Events) == 0 {
		st := ctrl.SetSearch(req.Query)
		httputil.WriteData(w, http.StatusOK, SearchResponse{State: st, Mode: st.Mode()})
		return
	}

	events := make([]listing.InputEvent, len(req.Events))
	for i, ev := range req.Events {
		events[i] = listing.InputEvent{At: time.Duration(ev.AtMS) * time.Millisecond, Value: ev.Value}
	}
	st, fired := ctrl.Type(events, time.Duration(req.WaitMS)*time.Millisecond)

	resp := SearchResponse{State: st, Mode: st.Mode(), Fired: make([]FiredQuery, len(fired))}
	for i, q := range fired {
		resp.Fired[i] = FiredQuery{AtMS: q.At.Milliseconds(), Query: q.Query}
	}
	httputil.WriteData(w, http.StatusOK, resp)
}

// ClearSearch handles DELETE /api/v1/listing/search
func (h *ListingHandler) ClearSearch(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	h.writeState(w, ctrl.ClearSearch())
}

// SetCategory handles POST /api/v1/listing/category
func (h *ListingHandler) SetCategory(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	var req CategoryRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.writeState(w, ctrl.SetCategory(req.Category))
}

// SetSort handles POST /api/v1/listing/sort
func (h *ListingHandler) SetSort(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	var req SortRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	st, err := ctrl.SetSort(req.SortBy, req.Order)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.writeState(w, st)
}

// SetPage handles POST /api/v1/listing/page
func (h *ListingHandler) SetPage(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	var req PageRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	st, err := ctrl.SetPage(req.Page)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.writeState(w, st)
}

// SetPageSize handles POST /api/v1/listing/page-size
func (h *ListingHandler) SetPageSize(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	var req PageSizeRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	st, err := ctrl.SetPageSize(req.PageSize)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.writeState(w, st)
}

// AddToCart handles POST /api/v1/cart/items. The cart is not offered.
func (h *ListingHandler) AddToCart(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	var req CartItemRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteError(w, r, ctrl.AddToCart(r.Context(), req.ProductID, req.Quantity), h.logger)
}
