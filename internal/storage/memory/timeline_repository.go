package memory

import (
	"context"
	"sort"

	"github.com/vladislavdragonenkov/erp-orders/internal/domain"
)

// timelineRepository хранит события в памяти (для разработки/тестов).
type timelineRepository struct {
	scope scope
}

// Append добавляет событие в хранилище.
func (r *timelineRepository) Append(_ context.Context, event domain.TimelineEvent) error {
	defer r.scope.lock()()
	s := r.scope.store

	previous := s.timeline[event.OrderID]
	events := append(append([]domain.TimelineEvent(nil), previous...), event)
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Occurred.Before(events[j].Occurred)
	})
	s.timeline[event.OrderID] = events

	r.scope.onRollback(func() {
		if previous == nil {
			delete(s.timeline, event.OrderID)
			return
		}
		s.timeline[event.OrderID] = previous
	})
	return nil
}

// List возвращает события заказа в хронологическом порядке.
func (r *timelineRepository) List(_ context.Context, orderID string) ([]domain.TimelineEvent, error) {
	defer r.scope.rlock()()

	events := r.scope.store.timeline[orderID]
	result := make([]domain.TimelineEvent, len(events))
	copy(result, events)
	return result, nil
}

var _ domain.TimelineRepository = (*timelineRepository)(nil)
