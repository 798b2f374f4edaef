package grpcsvc

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/erp-orders/internal/domain"
	"github.com/vladislavdragonenkov/erp-orders/internal/service/catalog"
)

// CatalogUseCases: операции каталога, доступные по gRPC.
type CatalogUseCases interface {
	CreateProduct(ctx context.Context, in catalog.NewProduct) (domain.Product, error)
	GetProduct(ctx context.Context, id string) (domain.Product, error)
	UpdateProduct(ctx context.Context, id string, patch catalog.ProductPatch) (domain.Product, error)
	AdjustStock(ctx context.Context, id string, delta int, reason string) (domain.Product, error)
}

// CatalogService реализует erp.v1.CatalogService.
type CatalogService struct {
	catalog CatalogUseCases
	logger  *log.Entry
}

func NewCatalogService(uc CatalogUseCases, logger *log.Entry) *CatalogService {
	if logger == nil {
		logger = log.WithField("component", "grpc-catalog-service")
	}
	return &CatalogService{catalog: uc, logger: logger}
}

func (s *CatalogService) CreateProduct(ctx context.Context, req *CreateProductRequest) (*ProductResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	price, err := parsePrice(req.Price)
	if err != nil {
		return nil, err
	}

	product, err := s.catalog.CreateProduct(ctx, catalog.NewProduct{
		Name:        req.Name,
		SKU:         req.SKU,
		Description: req.Description,
		Price:       price,
		Stock:       req.Stock,
		Active:      req.Active,
	})
	if err != nil {
		return nil, s.fail("CreateProduct", err, req.SKU)
	}
	return &ProductResponse{Product: NewProductMessage(product)}, nil
}

func (s *CatalogService) GetProduct(ctx context.Context, req *GetProductRequest) (*ProductResponse, error) {
	if req == nil || strings.TrimSpace(req.ProductID) == "" {
		return nil, status.Error(codes.InvalidArgument, "product_id is required")
	}

	product, err := s.catalog.GetProduct(ctx, req.ProductID)
	if err != nil {
		return nil, s.fail("GetProduct", err, req.ProductID)
	}
	return &ProductResponse{Product: NewProductMessage(product)}, nil
}

func (s *CatalogService) UpdateProduct(ctx context.Context, req *UpdateProductRequest) (*ProductResponse, error) {
	if req == nil || strings.TrimSpace(req.ProductID) == "" {
		return nil, status.Error(codes.InvalidArgument, "product_id is required")
	}

	patch := catalog.ProductPatch{
		Name:        req.Name,
		SKU:         req.SKU,
		Description: req.Description,
		Active:      req.Active,
	}
	if req.Price != nil {
		price, err := parsePrice(*req.Price)
		if err != nil {
			return nil, err
		}
		patch.Price = &price
	}

	product, err := s.catalog.UpdateProduct(ctx, req.ProductID, patch)
	if err != nil {
		return nil, s.fail("UpdateProduct", err, req.ProductID)
	}
	return &ProductResponse{Product: NewProductMessage(product)}, nil
}

// AdjustStock: приход (delta > 0) или ручное списание (delta < 0).
func (s *CatalogService) AdjustStock(ctx context.Context, req *AdjustStockRequest) (*ProductResponse, error) {
	if req == nil || strings.TrimSpace(req.ProductID) == "" {
		return nil, status.Error(codes.InvalidArgument, "product_id is required")
	}

	product, err := s.catalog.AdjustStock(ctx, req.ProductID, req.Delta, req.Reason)
	if err != nil {
		return nil, s.fail("AdjustStock", err, req.ProductID)
	}
	return &ProductResponse{Product: NewProductMessage(product)}, nil
}

func (s *CatalogService) fail(operation string, err error, subject string) error {
	st := statusFromError(err)
	if status.Code(st) == codes.Internal {
		s.logger.WithError(err).WithFields(log.Fields{"operation": operation, "subject": subject}).Error("catalog operation failed")
	}
	return st
}

func parsePrice(raw string) (decimal.Decimal, error) {
	price, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Decimal{}, status.Errorf(codes.InvalidArgument, "price %q is not a decimal number", raw)
	}
	return price, nil
}

var _ CatalogServiceServer = (*CatalogService)(nil)
