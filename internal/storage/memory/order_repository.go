package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/vladislavdragonenkov/erp-orders/internal/domain"
)

// orderRepository: in-memory реализация OrderRepository.
type orderRepository struct {
	scope scope
}

// NextOrderNumber выдаёт следующий номер; как и последовательность в
// PostgreSQL, значение не возвращается при откате транзакции.
func (r *orderRepository) NextOrderNumber(_ context.Context, at time.Time) (string, error) {
	defer r.scope.lock()()
	s := r.scope.store

	s.orderSeq++
	return domain.FormatOrderNumber(at, s.orderSeq), nil
}

// Create сохраняет новый заказ, если ID и номер ещё не заняты.
func (r *orderRepository) Create(_ context.Context, order domain.Order) error {
	defer r.scope.lock()()
	s := r.scope.store

	if _, exists := s.orders[order.ID]; exists {
		return fmt.Errorf("order id %s: %w", order.ID, domain.ErrConflict)
	}
	if _, taken := s.numbers[order.OrderNumber]; taken {
		return domain.ErrOrderNumberConflict
	}

	// Сохраняем копию, чтобы избежать непредсказуемых мутаций извне.
	s.orders[order.ID] = cloneOrder(order)
	s.numbers[order.OrderNumber] = order.ID
	r.scope.onRollback(func() {
		delete(s.orders, order.ID)
		delete(s.numbers, order.OrderNumber)
	})
	return nil
}

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (r *orderRepository) Get(_ context.Context, id string) (domain.Order, error) {
	defer r.scope.rlock()()

	order, ok := r.scope.store.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

func (r *orderRepository) GetForUpdate(ctx context.Context, id string) (domain.Order, error) {
	return r.Get(ctx, id)
}

// ListByUser возвращает страницу заказов пользователя, новые первыми.
func (r *orderRepository) ListByUser(_ context.Context, userID string, page domain.PageRequest) ([]domain.Order, int, error) {
	defer r.scope.rlock()()

	matched := make([]domain.Order, 0)
	for _, order := range r.scope.store.orders {
		if order.UserID == userID {
			matched = append(matched, order)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	total := len(matched)
	start := page.Offset()
	if start < 0 || start >= total || page.PageSize < 1 {
		return []domain.Order{}, total, nil
	}
	end := total
	if page.PageSize < total-start {
		end = start + page.PageSize
	}

	result := make([]domain.Order, 0, end-start)
	for _, order := range matched[start:end] {
		result = append(result, cloneOrder(order))
	}
	return result, total, nil
}

func (r *orderRepository) UpdateStatus(_ context.Context, id string, status domain.OrderStatus, updatedAt time.Time) error {
	defer r.scope.lock()()
	s := r.scope.store

	current, ok := s.orders[id]
	if !ok {
		return domain.ErrOrderNotFound
	}

	updated := current
	updated.Status = status
	updated.UpdatedAt = updatedAt
	s.orders[id] = updated
	r.scope.onRollback(func() {
		s.orders[id] = current
	})
	return nil
}

func cloneOrder(src domain.Order) domain.Order {
	dst := src
	dst.Items = append([]domain.OrderItem(nil), src.Items...)
	return dst
}

var _ domain.OrderRepository = (*orderRepository)(nil)
