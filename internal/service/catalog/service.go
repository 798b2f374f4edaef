// Package catalog управляет товарами и ручной корректировкой остатков.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/erp-orders/internal/domain"
	"github.com/vladislavdragonenkov/erp-orders/internal/metrics"
)

// NewProduct: параметры создания товара.
type NewProduct struct {
	Name        string
	SKU         string
	Description string
	Price       decimal.Decimal
	Stock       int
	// Active по умолчанию true.
	Active *bool
}

// ProductPatch: частичное обновление; nil-поля не меняются.
type ProductPatch struct {
	Name        *string
	SKU         *string
	Description *string
	Price       *decimal.Decimal
	Active      *bool
}

// Service реализует операции каталога.
type Service struct {
	store   domain.UnitOfWork
	metrics *metrics.OrderMetrics
	logger  *log.Entry
	now     func() time.Time
}

// NewService создаёт сервис каталога.
func NewService(store domain.UnitOfWork, m *metrics.OrderMetrics, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "catalog-service")
	}
	return &Service{
		store:   store,
		metrics: m,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// CreateProduct добавляет товар; SKU должен быть уникальным.
func (s *Service) CreateProduct(ctx context.Context, in NewProduct) (domain.Product, error) {
	now := s.now()
	product := domain.Product{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(in.Name),
		SKU:         strings.TrimSpace(in.SKU),
		Description: in.Description,
		Price:       in.Price.Round(domain.MoneyScale),
		Stock:       in.Stock,
		Active:      in.Active == nil || *in.Active,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := product.Validate(); err != nil {
		return domain.Product{}, err
	}

	err := s.store.WithinTx(ctx, func(tx domain.Repositories) error {
		if _, err := tx.Catalog().FindBySKU(ctx, product.SKU); err == nil {
			return domain.ErrSKUAlreadyExists
		} else if !errors.Is(err, domain.ErrProductNotFound) {
			return fmt.Errorf("check sku: %w", err)
		}
		return tx.Catalog().Create(ctx, product)
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logger.WithFields(log.Fields{
		"product_id": product.ID,
		"sku":        product.SKU,
		"stock":      product.Stock,
	}).Info("product created")
	return product, nil
}

// GetProduct возвращает товар по ID.
func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	return s.store.Catalog().FindByID(ctx, strings.TrimSpace(id))
}

// UpdateProduct применяет patch. Цены в уже оформленных заказах не меняются.
func (s *Service) UpdateProduct(ctx context.Context, id string, patch ProductPatch) (domain.Product, error) {
	var updated domain.Product
	err := s.store.WithinTx(ctx, func(tx domain.Repositories) error {
		product, err := tx.Catalog().FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}

		if patch.Name != nil {
			product.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.SKU != nil {
			sku := strings.TrimSpace(*patch.SKU)
			if sku != product.SKU {
				if _, err := tx.Catalog().FindBySKU(ctx, sku); err == nil {
					return domain.ErrSKUAlreadyExists
				} else if !errors.Is(err, domain.ErrProductNotFound) {
					return fmt.Errorf("check sku: %w", err)
				}
			}
			product.SKU = sku
		}
		if patch.Description != nil {
			product.Description = *patch.Description
		}
		if patch.Price != nil {
			product.Price = patch.Price.Round(domain.MoneyScale)
		}
		if patch.Active != nil {
			product.Active = *patch.Active
		}
		if err := product.Validate(); err != nil {
			return err
		}

		product.UpdatedAt = s.now()
		if err := tx.Catalog().Update(ctx, product); err != nil {
			return err
		}
		updated = product
		return nil
	})
	if err != nil {
		return domain.Product{}, err
	}
	return updated, nil
}

// AdjustStock меняет остаток на delta (приход или списание) и пишет
// событие inventory.adjusted в outbox.
func (s *Service) AdjustStock(ctx context.Context, id string, delta int, reason string) (domain.Product, error) {
	if delta == 0 {
		return s.GetProduct(ctx, id)
	}
	if strings.TrimSpace(reason) == "" {
		reason = "manual_adjustment"
	}

	var adjusted domain.Product
	err := s.store.WithinTx(ctx, func(tx domain.Repositories) error {
		product, err := tx.Catalog().AdjustStock(ctx, id, delta)
		if err != nil {
			return err
		}

		payload, err := json.Marshal(domain.InventoryAdjustedPayload{
			ProductID:  product.ID,
			Delta:      delta,
			Stock:      product.Stock,
			Reason:     reason,
			OccurredAt: s.now(),
		})
		if err != nil {
			return fmt.Errorf("marshal inventory event: %w", err)
		}
		if _, err := tx.Outbox().Enqueue(ctx, domain.OutboxMessage{
			AggregateType: domain.AggregateProduct,
			AggregateID:   product.ID,
			EventType:     domain.EventInventoryAdjusted,
			Payload:       payload,
		}); err != nil {
			return fmt.Errorf("enqueue inventory event: %w", err)
		}

		adjusted = product
		return nil
	})
	if err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"product_id": id,
			"delta":      delta,
		}).Warn("stock adjustment rejected")
		return domain.Product{}, err
	}

	s.metrics.RecordStockAdjusted(delta)
	s.metrics.RecordOutboxEvent()
	s.logger.WithFields(log.Fields{
		"product_id": adjusted.ID,
		"delta":      delta,
		"stock":      adjusted.Stock,
	}).Info("stock adjusted")
	return adjusted, nil
}
