package httpx

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/erp-orders/internal/domain"
	grpcsvc "github.com/vladislavdragonenkov/erp-orders/internal/service/grpc"
	"github.com/vladislavdragonenkov/erp-orders/internal/service/orders"
)

type ordersHandler struct {
	orders grpcsvc.OrderUseCases
	logger *log.Entry
}

type orderDetailsResponse struct {
	Order *grpcsvc.Order `json:"order"`
	Owner *grpcsvc.User  `json:"owner"`
}

type ordersPageResponse struct {
	Data      []*grpcsvc.Order `json:"data"`
	Total     int              `json:"total"`
	Page      int              `json:"page"`
	PageSize  int              `json:"pageSize"`
	PageCount int              `json:"pageCount"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type cancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (h *ordersHandler) create(w http.ResponseWriter, r *http.Request) {
	var req grpcsvc.CreateOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	items := make([]orders.ItemRequest, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, orders.ItemRequest{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	order, err := h.orders.CreateOrder(r.Context(), orders.CreateOrderInput{
		UserID: req.UserID,
		Items:  items,
		Notes:  req.Notes,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, grpcsvc.NewOrderMessage(order))
}

func (h *ordersHandler) get(w http.ResponseWriter, r *http.Request) {
	details, err := h.orders.GetOrderByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, orderDetailsResponse{
		Order: grpcsvc.NewOrderMessage(details.Order),
		Owner: grpcsvc.NewUserMessage(details.Owner),
	})
}

func (h *ordersHandler) timeline(w http.ResponseWriter, r *http.Request) {
	events, err := h.orders.Timeline(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, grpcsvc.NewTimelineMessages(events))
}

func (h *ordersHandler) listForUser(w http.ResponseWriter, r *http.Request) {
	page, ok := queryInt(w, r, "page")
	if !ok {
		return
	}
	pageSize, ok := queryInt(w, r, "pageSize")
	if !ok {
		return
	}

	result, err := h.orders.ListOrdersForUser(r.Context(), chi.URLParam(r, "userID"), domain.PageRequest{
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	data := make([]*grpcsvc.Order, 0, len(result.Data))
	for _, order := range result.Data {
		data = append(data, grpcsvc.NewOrderMessage(order))
	}
	writeJSON(w, http.StatusOK, ordersPageResponse{
		Data:      data,
		Total:     result.Total,
		Page:      result.Page,
		PageSize:  result.PageSize,
		PageCount: result.PageCount,
	})
}

func (h *ordersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	order, err := h.orders.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, grpcsvc.NewOrderMessage(order))
}

func (h *ordersHandler) cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	// Тело необязательно: пустой запрос отменяет с причиной по умолчанию.
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeDecodeError(w, err)
		return
	}

	order, err := h.orders.CancelOrder(r.Context(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, grpcsvc.NewOrderMessage(order))
}

// queryInt читает необязательный целочисленный параметр; отсутствие даёт 0.
func queryInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		writeBadRequest(w, name+" must be an integer")
		return 0, false
	}
	return value, true
}

