package grpcsvc

import (
	"context"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/erp-orders/internal/domain"
	"github.com/vladislavdragonenkov/erp-orders/internal/service/orders"
)

// OrderUseCases: операции над заказами, которые публикует gRPC-слой.
type OrderUseCases interface {
	CreateOrder(ctx context.Context, in orders.CreateOrderInput) (domain.Order, error)
	GetOrderByID(ctx context.Context, orderID string) (domain.OrderDetails, error)
	Timeline(ctx context.Context, orderID string) ([]domain.TimelineEvent, error)
	ListOrdersForUser(ctx context.Context, userID string, page domain.PageRequest) (domain.Page[domain.Order], error)
	UpdateStatus(ctx context.Context, orderID, status string) (domain.Order, error)
	CancelOrder(ctx context.Context, orderID, reason string) (domain.Order, error)
}

// OrderService реализует erp.v1.OrderService поверх сервиса заказов.
type OrderService struct {
	orders OrderUseCases
	idem   idempotent
	logger *log.Entry
}

// OrderServiceOption настраивает OrderService.
type OrderServiceOption func(*OrderService)

// WithIdempotency включает обязательный idempotency-key для CreateOrder и CancelOrder.
func WithIdempotency(repo domain.IdempotencyRepository, ttl time.Duration) OrderServiceOption {
	return func(s *OrderService) {
		s.idem.repo = repo
		s.idem.ttl = ttl
	}
}

// NewOrderService конструирует сервис с зависимостями.
func NewOrderService(uc OrderUseCases, logger *log.Entry, opts ...OrderServiceOption) *OrderService {
	if logger == nil {
		logger = log.WithField("component", "grpc-order-service")
	}
	s := &OrderService{orders: uc, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	s.idem.logger = logger
	return s
}

func (s *OrderService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	return withIdempotency(ctx, s.idem, MethodCreateOrder, req, func(ctx context.Context) (*CreateOrderResponse, error) {
		items := make([]orders.ItemRequest, 0, len(req.Items))
		for _, item := range req.Items {
			items = append(items, orders.ItemRequest{ProductID: item.ProductID, Quantity: item.Quantity})
		}

		order, err := s.orders.CreateOrder(ctx, orders.CreateOrderInput{
			UserID: req.UserID,
			Items:  items,
			Notes:  req.Notes,
		})
		if err != nil {
			return nil, s.fail("CreateOrder", err, log.Fields{"user_id": req.UserID})
		}
		return &CreateOrderResponse{Order: NewOrderMessage(order)}, nil
	})
}

// GetOrder возвращает заказ, владельца и таймлайн.
func (s *OrderService) GetOrder(ctx context.Context, req *GetOrderRequest) (*GetOrderResponse, error) {
	if req == nil || strings.TrimSpace(req.OrderID) == "" {
		return nil, status.Error(codes.InvalidArgument, "order_id is required")
	}

	details, err := s.orders.GetOrderByID(ctx, req.OrderID)
	if err != nil {
		return nil, s.fail("GetOrder", err, log.Fields{"order_id": req.OrderID})
	}

	timeline, err := s.orders.Timeline(ctx, details.Order.ID)
	if err != nil {
		s.logger.WithError(err).WithField("order_id", details.Order.ID).Warn("failed to list timeline events")
		timeline = nil
	}

	return &GetOrderResponse{
		Order:    NewOrderMessage(details.Order),
		Owner:    NewUserMessage(details.Owner),
		Timeline: NewTimelineMessages(timeline),
	}, nil
}

func (s *OrderService) ListOrders(ctx context.Context, req *ListOrdersRequest) (*ListOrdersResponse, error) {
	if req == nil || strings.TrimSpace(req.UserID) == "" {
		return nil, status.Error(codes.InvalidArgument, "user_id is required")
	}

	page, err := s.orders.ListOrdersForUser(ctx, req.UserID, domain.PageRequest{Page: req.Page, PageSize: req.PageSize})
	if err != nil {
		return nil, s.fail("ListOrders", err, log.Fields{"user_id": req.UserID})
	}

	result := make([]*Order, 0, len(page.Data))
	for _, order := range page.Data {
		result = append(result, NewOrderMessage(order))
	}

	return &ListOrdersResponse{
		Orders:    result,
		Total:     page.Total,
		Page:      page.Page,
		PageSize:  page.PageSize,
		PageCount: page.PageCount,
	}, nil
}

func (s *OrderService) UpdateOrderStatus(ctx context.Context, req *UpdateOrderStatusRequest) (*UpdateOrderStatusResponse, error) {
	if req == nil || strings.TrimSpace(req.OrderID) == "" {
		return nil, status.Error(codes.InvalidArgument, "order_id is required")
	}

	order, err := s.orders.UpdateStatus(ctx, req.OrderID, req.Status)
	if err != nil {
		return nil, s.fail("UpdateOrderStatus", err, log.Fields{"order_id": req.OrderID, "status": req.Status})
	}
	return &UpdateOrderStatusResponse{Order: NewOrderMessage(order)}, nil
}

// CancelOrder отменяет заказ и возвращает товар на склад.
func (s *OrderService) CancelOrder(ctx context.Context, req *CancelOrderRequest) (*CancelOrderResponse, error) {
	if req == nil || strings.TrimSpace(req.OrderID) == "" {
		return nil, status.Error(codes.InvalidArgument, "order_id is required")
	}

	return withIdempotency(ctx, s.idem, MethodCancelOrder, req, func(ctx context.Context) (*CancelOrderResponse, error) {
		order, err := s.orders.CancelOrder(ctx, req.OrderID, req.Reason)
		if err != nil {
			return nil, s.fail("CancelOrder", err, log.Fields{"order_id": req.OrderID})
		}
		return &CancelOrderResponse{Order: NewOrderMessage(order)}, nil
	})
}

func (s *OrderService) fail(operation string, err error, fields log.Fields) error {
	st := statusFromError(err)
	entry := s.logger.WithError(err).WithFields(fields).WithField("operation", operation)
	if status.Code(st) == codes.Internal {
		entry.Error("order operation failed")
	} else {
		entry.Debug("order operation rejected")
	}
	return st
}

var _ OrderServiceServer = (*OrderService)(nil)
