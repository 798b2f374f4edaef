// Package orders реализует оформление заказов и согласованное с ним
// списание и возврат складских остатков.
package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/erp-orders/internal/domain"
	"github.com/vladislavdragonenkov/erp-orders/internal/metrics"
)

const (
	opCreateOrder  = "create_order"
	opGetOrder     = "get_order"
	opListOrders   = "list_orders"
	opUpdateStatus = "update_status"
	opCancelOrder  = "cancel_order"

	defaultCancelReason = "cancelled by request"
)

// ItemRequest: запрошенная позиция заказа.
type ItemRequest struct {
	ProductID string
	Quantity  int
}

// CreateOrderInput: параметры оформления заказа.
type CreateOrderInput struct {
	UserID string
	Items  []ItemRequest
	Notes  string
}

// Service оформляет, читает, обновляет и отменяет заказы.
type Service struct {
	store   domain.UnitOfWork
	users   domain.UserDirectory
	policy  domain.StatusPolicy
	metrics *metrics.OrderMetrics
	logger  *log.Entry
	taxRate decimal.Decimal
	now     func() time.Time
}

// Option настраивает Service.
type Option func(*Service)

// WithUserDirectory подключает справочник пользователей для GetOrderByID.
func WithUserDirectory(users domain.UserDirectory) Option {
	return func(s *Service) { s.users = users }
}

// WithStatusPolicy задаёт политику ручной смены статуса.
func WithStatusPolicy(policy domain.StatusPolicy) Option {
	return func(s *Service) {
		if policy != nil {
			s.policy = policy
		}
	}
}

// WithMetrics подключает prometheus-метрики.
func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTaxRate переопределяет ставку налога.
func WithTaxRate(rate decimal.Decimal) Option {
	return func(s *Service) { s.taxRate = rate }
}

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService конструирует сервис заказов поверх UnitOfWork.
func NewService(store domain.UnitOfWork, opts ...Option) *Service {
	s := &Service{
		store:   store,
		policy:  domain.LooseStatusPolicy{},
		logger:  log.WithField("component", "order-service"),
		taxRate: domain.DefaultTaxRate,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateOrder проверяет наличие всех позиций, фиксирует цены и в одной
// транзакции сохраняет заказ и списывает остатки.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (domain.Order, error) {
	defer s.metrics.ObserveOperation(opCreateOrder)()

	if err := validateCreateInput(in); err != nil {
		s.recordFailure(opCreateOrder, err)
		return domain.Order{}, err
	}

	var created domain.Order
	err := s.store.WithinTx(ctx, func(tx domain.Repositories) error {
		products, err := lockProducts(ctx, tx.Catalog(), in.Items)
		if err != nil {
			return err
		}

		now := s.now()
		number, err := tx.Orders().NextOrderNumber(ctx, now)
		if err != nil {
			return fmt.Errorf("allocate order number: %w", err)
		}

		order := domain.Order{
			ID:          uuid.NewString(),
			OrderNumber: number,
			UserID:      strings.TrimSpace(in.UserID),
			Status:      domain.OrderStatusPending,
			Notes:       in.Notes,
			Items:       make([]domain.OrderItem, 0, len(in.Items)),
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		reserved := make(map[string]int, len(products))
		for _, req := range in.Items {
			product, ok := products[req.ProductID]
			if !ok {
				return fmt.Errorf("%w: %s", domain.ErrProductNotFound, req.ProductID)
			}
			available := product.Stock - reserved[product.ID]
			if available < req.Quantity {
				return &domain.InsufficientStockError{
					ProductID:   product.ID,
					ProductName: product.Name,
					Requested:   req.Quantity,
					Available:   available,
				}
			}
			reserved[product.ID] += req.Quantity

			order.Items = append(order.Items, domain.OrderItem{
				ID:        uuid.NewString(),
				OrderID:   order.ID,
				ProductID: product.ID,
				Quantity:  req.Quantity,
				UnitPrice: product.Price,
				CreatedAt: now,
			})
		}
		order.ApplyTotals(s.taxRate)
		if errs := order.ValidateInvariants(); len(errs) > 0 {
			return errors.Join(errs...)
		}

		if err := tx.Orders().Create(ctx, order); err != nil {
			return fmt.Errorf("persist order: %w", err)
		}

		for _, item := range order.Items {
			product, err := tx.Catalog().AdjustStock(ctx, item.ProductID, -item.Quantity)
			if err != nil {
				return err
			}
			if err := s.enqueueInventory(ctx, tx, product, -item.Quantity, order.ID, "order_placed", now); err != nil {
				return err
			}
		}

		if err := s.appendTimeline(ctx, tx, order.ID, domain.TimelineOrderCreated, "", now); err != nil {
			return err
		}
		if err := s.enqueueOrderEvent(ctx, tx, domain.EventOrderCreated, order, "", "", now); err != nil {
			return err
		}

		created = order
		return nil
	})
	if err != nil {
		s.recordFailure(opCreateOrder, err)
		s.logFailure(opCreateOrder, err, log.Fields{"user_id": in.UserID, "items": len(in.Items)})
		return domain.Order{}, err
	}

	s.metrics.RecordOrderCreated(totalUnits(created.Items))
	s.logger.WithFields(log.Fields{
		"order_id":     created.ID,
		"order_number": created.OrderNumber,
		"user_id":      created.UserID,
		"total":        created.TotalAmount.StringFixed(domain.MoneyScale),
	}).Info("order created")

	return created, nil
}

// GetOrderByID возвращает заказ с позициями и краткими данными владельца.
func (s *Service) GetOrderByID(ctx context.Context, orderID string) (domain.OrderDetails, error) {
	defer s.metrics.ObserveOperation(opGetOrder)()

	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.OrderDetails{}, domain.ErrOrderIDRequired
	}

	order, err := s.store.Orders().Get(ctx, orderID)
	if err != nil {
		s.recordFailure(opGetOrder, err)
		return domain.OrderDetails{}, err
	}

	return domain.OrderDetails{Order: order, Owner: s.lookupOwner(ctx, order.UserID)}, nil
}

// Timeline возвращает события жизненного цикла заказа.
func (s *Service) Timeline(ctx context.Context, orderID string) ([]domain.TimelineEvent, error) {
	if _, err := s.store.Orders().Get(ctx, orderID); err != nil {
		return nil, err
	}
	events, err := s.store.Timeline().List(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("list timeline: %w", err)
	}
	return events, nil
}

// ListOrdersForUser возвращает страницу заказов пользователя, новые первыми.
func (s *Service) ListOrdersForUser(ctx context.Context, userID string, page domain.PageRequest) (domain.Page[domain.Order], error) {
	defer s.metrics.ObserveOperation(opListOrders)()

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Page[domain.Order]{}, domain.ErrUserRequired
	}

	page = page.Normalize()
	orders, total, err := s.store.Orders().ListByUser(ctx, userID, page)
	if err != nil {
		s.recordFailure(opListOrders, err)
		return domain.Page[domain.Order]{}, fmt.Errorf("list orders: %w", err)
	}

	return domain.NewPage(orders, total, page), nil
}

// UpdateStatus меняет статус заказа согласно политике. Остатки не трогает:
// для возврата товара на склад используется CancelOrder.
func (s *Service) UpdateStatus(ctx context.Context, orderID, rawStatus string) (domain.Order, error) {
	defer s.metrics.ObserveOperation(opUpdateStatus)()

	next, err := domain.ParseOrderStatus(rawStatus)
	if err != nil {
		s.recordFailure(opUpdateStatus, err)
		return domain.Order{}, err
	}

	var updated domain.Order
	err = s.store.WithinTx(ctx, func(tx domain.Repositories) error {
		order, err := tx.Orders().GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		previous := order.Status
		if !s.policy.Allowed(previous, next) {
			return fmt.Errorf("%w: %s -> %s", domain.ErrStatusTransition, previous, next)
		}

		now := s.now()
		if err := tx.Orders().UpdateStatus(ctx, order.ID, next, now); err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		order.Status = next
		order.UpdatedAt = now

		if err := s.appendTimeline(ctx, tx, order.ID, domain.TimelineOrderStatusChanged, string(previous)+" -> "+string(next), now); err != nil {
			return err
		}
		if err := s.enqueueOrderEvent(ctx, tx, domain.EventOrderStatusChanged, order, previous, "", now); err != nil {
			return err
		}

		updated = order
		return nil
	})
	if err != nil {
		s.recordFailure(opUpdateStatus, err)
		s.logFailure(opUpdateStatus, err, log.Fields{"order_id": orderID, "status": next})
		return domain.Order{}, err
	}

	s.metrics.RecordStatusUpdate(string(next))
	s.logger.WithFields(log.Fields{
		"order_id": updated.ID,
		"status":   updated.Status,
		"policy":   s.policy.Name(),
	}).Info("order status updated")

	return updated, nil
}

// CancelOrder отменяет заказ и возвращает остатки по всем позициям
// в одной транзакции. Отгруженные, доставленные и уже отменённые заказы
// отменить нельзя.
func (s *Service) CancelOrder(ctx context.Context, orderID, reason string) (domain.Order, error) {
	defer s.metrics.ObserveOperation(opCancelOrder)()

	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = defaultCancelReason
	}

	var cancelled domain.Order
	err := s.store.WithinTx(ctx, func(tx domain.Repositories) error {
		order, err := tx.Orders().GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if !order.Status.Cancellable() {
			return fmt.Errorf("%w: status %s", domain.ErrOrderNotCancellable, order.Status)
		}

		now := s.now()
		for _, item := range order.Items {
			product, err := tx.Catalog().AdjustStock(ctx, item.ProductID, item.Quantity)
			if err != nil {
				return fmt.Errorf("restore stock for %s: %w", item.ProductID, err)
			}
			if err := s.enqueueInventory(ctx, tx, product, item.Quantity, order.ID, "order_cancelled", now); err != nil {
				return err
			}
		}

		previous := order.Status
		if err := tx.Orders().UpdateStatus(ctx, order.ID, domain.OrderStatusCancelled, now); err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		order.Status = domain.OrderStatusCancelled
		order.UpdatedAt = now

		if err := s.appendTimeline(ctx, tx, order.ID, domain.TimelineOrderCanceled, reason, now); err != nil {
			return err
		}
		if err := s.enqueueOrderEvent(ctx, tx, domain.EventOrderCancelled, order, previous, reason, now); err != nil {
			return err
		}

		cancelled = order
		return nil
	})
	if err != nil {
		s.recordFailure(opCancelOrder, err)
		s.logFailure(opCancelOrder, err, log.Fields{"order_id": orderID})
		return domain.Order{}, err
	}

	s.metrics.RecordOrderCancelled(totalUnits(cancelled.Items))
	s.logger.WithFields(log.Fields{
		"order_id": cancelled.ID,
		"reason":   reason,
	}).Info("order cancelled, stock restored")

	return cancelled, nil
}

func validateCreateInput(in CreateOrderInput) error {
	if strings.TrimSpace(in.UserID) == "" {
		return domain.ErrUserRequired
	}
	if len(in.Items) == 0 {
		return domain.ErrItemsRequired
	}
	for idx, item := range in.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			return fmt.Errorf("%w: item[%d]", domain.ErrProductIDRequired, idx)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: item[%d]", domain.ErrItemQtyInvalid, idx)
		}
	}
	return nil
}

// lockProducts блокирует строки товаров в порядке возрастания ID, чтобы
// параллельные заказы с пересекающимися позициями не взаимоблокировались.
// Отсутствующие товары просто не попадают в результат: ошибку по ним
// вызывающий вернёт в порядке позиций заказа.
func lockProducts(ctx context.Context, catalog domain.CatalogRepository, items []ItemRequest) (map[string]domain.Product, error) {
	ids := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	sort.Strings(ids)

	products := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		product, err := catalog.FindByIDForUpdate(ctx, id)
		if errors.Is(err, domain.ErrProductNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("lock product %s: %w", id, err)
		}
		products[id] = product
	}
	return products, nil
}

func (s *Service) lookupOwner(ctx context.Context, userID string) domain.UserSummary {
	owner := domain.UserSummary{ID: userID}
	if s.users == nil {
		return owner
	}
	user, err := s.users.Lookup(ctx, userID)
	if err != nil {
		if !errors.Is(err, domain.ErrUserNotFound) {
			s.logger.WithError(err).WithField("user_id", userID).Warn("user lookup failed")
		}
		return owner
	}
	return user
}

func (s *Service) appendTimeline(ctx context.Context, tx domain.Repositories, orderID, eventType, reason string, at time.Time) error {
	event := domain.TimelineEvent{OrderID: orderID, Type: eventType, Reason: reason, Occurred: at}
	if err := tx.Timeline().Append(ctx, event); err != nil {
		return fmt.Errorf("append timeline event %s: %w", eventType, err)
	}
	s.metrics.RecordTimelineEvent()
	return nil
}

func (s *Service) enqueueOrderEvent(ctx context.Context, tx domain.Repositories, eventType string, order domain.Order, previous domain.OrderStatus, reason string, at time.Time) error {
	return s.enqueue(ctx, tx, domain.AggregateOrder, order.ID, eventType, domain.OrderEventPayload{
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		UserID:         order.UserID,
		Status:         order.Status,
		PreviousStatus: previous,
		TotalAmount:    order.TotalAmount.StringFixed(domain.MoneyScale),
		Reason:         reason,
		OccurredAt:     at,
	})
}

func (s *Service) enqueueInventory(ctx context.Context, tx domain.Repositories, product domain.Product, delta int, orderID, reason string, at time.Time) error {
	return s.enqueue(ctx, tx, domain.AggregateProduct, product.ID, domain.EventInventoryAdjusted, domain.InventoryAdjustedPayload{
		ProductID:  product.ID,
		Delta:      delta,
		Stock:      product.Stock,
		OrderID:    orderID,
		Reason:     reason,
		OccurredAt: at,
	})
}

func (s *Service) enqueue(ctx context.Context, tx domain.Repositories, aggregateType, aggregateID, eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	msg := domain.OutboxMessage{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       data,
	}
	if _, err := tx.Outbox().Enqueue(ctx, msg); err != nil {
		return fmt.Errorf("enqueue %s event: %w", eventType, err)
	}
	s.metrics.RecordOutboxEvent()
	return nil
}

func (s *Service) recordFailure(operation string, err error) {
	s.metrics.RecordFailure(operation, FailureReason(err))
}

func (s *Service) logFailure(operation string, err error, fields log.Fields) {
	entry := s.logger.WithError(err).WithFields(fields).WithField("operation", operation)
	if FailureReason(err) == "internal" {
		entry.Error("order operation failed")
		return
	}
	entry.Warn("order operation rejected")
}

// FailureReason сводит ошибку к метке для метрик и логов.
func FailureReason(err error) string {
	switch {
	case err == nil:
		return ""
	case domain.IsValidation(err):
		return "validation"
	case domain.IsNotFound(err):
		return "not_found"
	case domain.IsInsufficientStock(err):
		return "insufficient_stock"
	case domain.IsInvalidState(err):
		return "invalid_state"
	case domain.IsConflict(err):
		return "conflict"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "internal"
	}
}

func totalUnits(items []domain.OrderItem) int {
	units := 0
	for _, item := range items {
		units += item.Quantity
	}
	return units
}
