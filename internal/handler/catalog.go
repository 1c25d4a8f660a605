package handler

import (
	"log"
	"net/http"

	"shopsync-api/internal/repository"
	"shopsync-api/pkg/apierror"
	"shopsync-api/pkg/response"
)

// CatalogHandler serves the reconciled orders, products and customers.
type CatalogHandler struct {
	store repository.EntityStore
}

// NewCatalogHandler creates a catalog handler.
func NewCatalogHandler(store repository.EntityStore) *CatalogHandler {
	return &CatalogHandler{store: store}
}

// ListOrders handles GET /api/v1/orders
func (h *CatalogHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	page, limit, offset := parsePage(r)

	orders, total, err := h.store.ListOrders(r.Context(), limit, offset)
	if err != nil {
		log.Printf("[CatalogHandler] ListOrders failed: %v", err)
		response.Error(w, apierror.ServiceUnavailable("failed to list orders"))
		return
	}

	response.JSONWithMeta(w, http.StatusOK, orders, page, limit, total)
}

// GetOrder handles GET /api/v1/orders/{source_id}
func (h *CatalogHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, apiErr := sourceIDParam(r)
	if apiErr != nil {
		response.Error(w, apiErr)
		return
	}

	order, err := h.store.GetOrder(r.Context(), id)
	if err != nil {
		log.Printf("[CatalogHandler] GetOrder %d failed: %v", id, err)
		response.Error(w, apierror.ServiceUnavailable("failed to load order"))
		return
	}
	if order == nil {
		response.Error(w, apierror.NotFound("order not found"))
		return
	}

	response.OK(w, order)
}

// ListProducts handles GET /api/v1/products
func (h *CatalogHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	page, limit, offset := parsePage(r)

	products, total, err := h.store.ListProducts(r.Context(), limit, offset)
	if err != nil {
		log.Printf("[CatalogHandler] ListProducts failed: %v", err)
		response.Error(w, apierror.ServiceUnavailable("failed to list products"))
		return
	}

	response.JSONWithMeta(w, http.StatusOK, products, page, limit, total)
}

// GetProduct handles GET /api/v1/products/{source_id}
func (h *CatalogHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, apiErr := sourceIDParam(r)
	if apiErr != nil {
		response.Error(w, apiErr)
		return
	}

	product, err := h.store.GetProduct(r.Context(), id)
	if err != nil {
		log.Printf("[CatalogHandler] GetProduct %d failed: %v", id, err)
		response.Error(w, apierror.ServiceUnavailable("failed to load product"))
		return
	}
	if product == nil {
		response.Error(w, apierror.NotFound("product not found"))
		return
	}

	response.OK(w, product)
}

// GetCustomer handles GET /api/v1/customers/{source_id}
func (h *CatalogHandler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	id, apiErr := sourceIDParam(r)
	if apiErr != nil {
		response.Error(w, apiErr)
		return
	}

	customer, err := h.store.GetCustomer(r.Context(), id)
	if err != nil {
		log.Printf("[CatalogHandler] GetCustomer %d failed: %v", id, err)
		response.Error(w, apierror.ServiceUnavailable("failed to load customer"))
		return
	}
	if customer == nil {
		response.Error(w, apierror.NotFound("customer not found"))
		return
	}

	response.OK(w, customer)
}
