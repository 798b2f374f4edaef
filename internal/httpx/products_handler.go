package httpx

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/erp-orders/internal/service/catalog"
	grpcsvc "github.com/vladislavdragonenkov/erp-orders/internal/service/grpc"
)

type productsHandler struct {
	catalog grpcsvc.CatalogUseCases
	logger  *log.Entry
}

type updateProductRequest struct {
	Name        *string `json:"name,omitempty"`
	SKU         *string `json:"sku,omitempty"`
	Description *string `json:"description,omitempty"`
	Price       *string `json:"price,omitempty"`
	Active      *bool   `json:"active,omitempty"`
}

type adjustStockRequest struct {
	Delta  int    `json:"delta"`
	Reason string `json:"reason,omitempty"`
}

func (h *productsHandler) create(w http.ResponseWriter, r *http.Request) {
	var req grpcsvc.CreateProductRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	price, ok := parsePrice(w, req.Price)
	if !ok {
		return
	}

	product, err := h.catalog.CreateProduct(r.Context(), catalog.NewProduct{
		Name:        req.Name,
		SKU:         req.SKU,
		Description: req.Description,
		Price:       price,
		Stock:       req.Stock,
		Active:      req.Active,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, grpcsvc.NewProductMessage(product))
}

func (h *productsHandler) get(w http.ResponseWriter, r *http.Request) {
	product, err := h.catalog.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, grpcsvc.NewProductMessage(product))
}

func (h *productsHandler) update(w http.ResponseWriter, r *http.Request) {
	var req updateProductRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	patch := catalog.ProductPatch{
		Name:        req.Name,
		SKU:         req.SKU,
		Description: req.Description,
		Active:      req.Active,
	}
	if req.Price != nil {
		price, ok := parsePrice(w, *req.Price)
		if !ok {
			return
		}
		patch.Price = &price
	}

	product, err := h.catalog.UpdateProduct(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, grpcsvc.NewProductMessage(product))
}

func (h *productsHandler) adjustStock(w http.ResponseWriter, r *http.Request) {
	var req adjustStockRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	product, err := h.catalog.AdjustStock(r.Context(), chi.URLParam(r, "id"), req.Delta, req.Reason)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, grpcsvc.NewProductMessage(product))
}

func parsePrice(w http.ResponseWriter, raw string) (decimal.Decimal, bool) {
	price, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		writeBadRequest(w, "price must be a decimal number")
		return decimal.Decimal{}, false
	}
	return price, true
}
