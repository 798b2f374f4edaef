package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/erp-orders/internal/domain"
	"github.com/vladislavdragonenkov/erp-orders/internal/service/orders"
)

type errorBody struct {
	Error     string `json:"error"`
	Kind      string `json:"kind"`
	ProductID string `json:"product_id,omitempty"`
	Requested int    `json:"requested,omitempty"`
	Available *int   `json:"available,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// httpStatus переводит доменную ошибку в HTTP-код.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case domain.IsValidation(err):
		return http.StatusBadRequest
	case domain.IsNotFound(err):
		return http.StatusNotFound
	case domain.IsInsufficientStock(err), domain.IsConflict(err):
		return http.StatusConflict
	case domain.IsInvalidState(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, logger *log.Entry, err error) {
	code := httpStatus(err)
	body := errorBody{Error: err.Error(), Kind: orders.FailureReason(err)}

	var stockErr *domain.InsufficientStockError
	if errors.As(err, &stockErr) {
		body.ProductID = stockErr.ProductID
		body.Requested = stockErr.Requested
		available := stockErr.Available
		body.Available = &available
	}

	if code == http.StatusInternalServerError {
		logger.WithError(err).Error("http handler failed")
		body.Error = "internal error"
	}
	writeJSON(w, code, body)
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg, Kind: "validation"})
}

// writeDecodeError отвечает 413 на превышение лимита тела и 400 на прочие ошибки разбора.
func writeDecodeError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: "request body too large", Kind: "validation"})
		return
	}
	writeBadRequest(w, "invalid json body")
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
