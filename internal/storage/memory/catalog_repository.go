package memory

import (
	"context"

	"github.com/vladislavdragonenkov/erp-orders/internal/domain"
)

type catalogRepository struct {
	scope scope
}

// Create сохраняет товар, если ID и SKU ещё не заняты.
func (r *catalogRepository) Create(_ context.Context, product domain.Product) error {
	defer r.scope.lock()()
	s := r.scope.store

	if _, exists := s.products[product.ID]; exists {
		return domain.ErrConflict
	}
	if _, taken := s.skus[product.SKU]; taken {
		return domain.ErrSKUAlreadyExists
	}

	s.products[product.ID] = product
	s.skus[product.SKU] = product.ID
	r.scope.onRollback(func() {
		delete(s.products, product.ID)
		delete(s.skus, product.SKU)
	})
	return nil
}

func (r *catalogRepository) FindByID(_ context.Context, id string) (domain.Product, error) {
	defer r.scope.rlock()()
	return r.find(id)
}

// FindByIDForUpdate в памяти совпадает с FindByID: внутри транзакции
// хранилище и так заблокировано целиком.
func (r *catalogRepository) FindByIDForUpdate(_ context.Context, id string) (domain.Product, error) {
	defer r.scope.rlock()()
	return r.find(id)
}

func (r *catalogRepository) FindBySKU(_ context.Context, sku string) (domain.Product, error) {
	defer r.scope.rlock()()

	id, ok := r.scope.store.skus[sku]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return r.find(id)
}

// Update перезаписывает атрибуты товара; остаток меняется только через AdjustStock.
func (r *catalogRepository) Update(_ context.Context, product domain.Product) error {
	defer r.scope.lock()()
	s := r.scope.store

	current, ok := s.products[product.ID]
	if !ok {
		return domain.ErrProductNotFound
	}
	if product.SKU != current.SKU {
		if _, taken := s.skus[product.SKU]; taken {
			return domain.ErrSKUAlreadyExists
		}
		delete(s.skus, current.SKU)
		s.skus[product.SKU] = product.ID
	}

	product.Stock = current.Stock
	product.CreatedAt = current.CreatedAt
	s.products[product.ID] = product
	r.scope.onRollback(func() {
		delete(s.skus, product.SKU)
		s.skus[current.SKU] = current.ID
		s.products[current.ID] = current
	})
	return nil
}

func (r *catalogRepository) AdjustStock(_ context.Context, id string, delta int) (domain.Product, error) {
	defer r.scope.lock()()
	s := r.scope.store

	current, ok := s.products[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	if current.Stock+delta < 0 {
		return domain.Product{}, &domain.InsufficientStockError{
			ProductID:   current.ID,
			ProductName: current.Name,
			Requested:   -delta,
			Available:   current.Stock,
		}
	}

	updated := current
	updated.Stock += delta
	s.products[id] = updated
	r.scope.onRollback(func() {
		s.products[id] = current
	})
	return updated, nil
}

func (r *catalogRepository) find(id string) (domain.Product, error) {
	product, ok := r.scope.store.products[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return product, nil
}

var _ domain.CatalogRepository = (*catalogRepository)(nil)
