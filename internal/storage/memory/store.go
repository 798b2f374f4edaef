package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/erp-orders/internal/domain"
)

// Store: in-memory хранилище каталога, заказов, timeline и outbox для
// локальной разработки и тестов. Все репозитории делят одну блокировку,
// поэтому транзакция видит согласованное состояние.
type Store struct {
	mu sync.RWMutex

	products map[string]domain.Product
	skus     map[string]string

	orders   map[string]domain.Order
	numbers  map[string]string
	orderSeq int64

	timeline map[string][]domain.TimelineEvent

	outbox      map[string]*outboxRecord
	outboxOrder []string
}

// NewStore создаёт пустое хранилище.
func NewStore() *Store {
	return &Store{
		products: make(map[string]domain.Product),
		skus:     make(map[string]string),
		orders:   make(map[string]domain.Order),
		numbers:  make(map[string]string),
		timeline: make(map[string][]domain.TimelineEvent),
		outbox:   make(map[string]*outboxRecord),
	}
}

// Catalog возвращает репозиторий товаров вне транзакции.
func (s *Store) Catalog() domain.CatalogRepository {
	return &catalogRepository{scope: scope{store: s}}
}

// Orders возвращает репозиторий заказов вне транзакции.
func (s *Store) Orders() domain.OrderRepository {
	return &orderRepository{scope: scope{store: s}}
}

// Outbox возвращает outbox-репозиторий вне транзакции.
func (s *Store) Outbox() domain.OutboxRepository {
	return &outboxRepository{scope: scope{store: s}}
}

// Timeline возвращает репозиторий timeline вне транзакции.
func (s *Store) Timeline() domain.TimelineRepository {
	return &timelineRepository{scope: scope{store: s}}
}

// WithinTx удерживает эксклюзивную блокировку на время fn. При ошибке
// или панике изменения откатываются по журналу в обратном порядке.
func (s *Store) WithinTx(ctx context.Context, fn func(tx domain.Repositories) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	j := &journal{}
	defer func() {
		if p := recover(); p != nil {
			j.rollback()
			panic(p)
		}
	}()

	if err = fn(txRepositories{scope: scope{store: s, journal: j}}); err != nil {
		j.rollback()
		return err
	}
	if err = ctx.Err(); err != nil {
		j.rollback()
		return err
	}
	return nil
}

// Ping всегда успешен; нужен для health-проверок.
func (s *Store) Ping(context.Context) error { return nil }

// Close ничего не освобождает.
func (s *Store) Close() error { return nil }

type txRepositories struct {
	scope scope
}

func (t txRepositories) Catalog() domain.CatalogRepository {
	return &catalogRepository{scope: t.scope}
}

func (t txRepositories) Orders() domain.OrderRepository {
	return &orderRepository{scope: t.scope}
}

func (t txRepositories) Outbox() domain.OutboxRepository {
	return &outboxRepository{scope: t.scope}
}

func (t txRepositories) Timeline() domain.TimelineRepository {
	return &timelineRepository{scope: t.scope}
}

// journal копит компенсирующие действия открытой транзакции.
type journal struct {
	undo []func()
}

func (j *journal) rollback() {
	for i := len(j.undo) - 1; i >= 0; i-- {
		j.undo[i]()
	}
	j.undo = nil
}

// scope привязывает репозиторий либо к хранилищу (сам берёт блокировку),
// либо к транзакции (блокировка уже удерживается WithinTx).
type scope struct {
	store   *Store
	journal *journal
}

func (s scope) lock() func() {
	if s.journal != nil {
		return func() {}
	}
	s.store.mu.Lock()
	return s.store.mu.Unlock
}

func (s scope) rlock() func() {
	if s.journal != nil {
		return func() {}
	}
	s.store.mu.RLock()
	return s.store.mu.RUnlock
}

func (s scope) onRollback(undo func()) {
	if s.journal != nil {
		s.journal.undo = append(s.journal.undo, undo)
	}
}

var _ domain.UnitOfWork = (*Store)(nil)
var _ domain.Repositories = txRepositories{}
