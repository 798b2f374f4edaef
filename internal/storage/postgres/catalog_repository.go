package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/erp-orders/internal/domain"
)

const productColumns = `id, name, sku, description, price, stock, active, created_at, updated_at`

type catalogRepository struct {
	q querier
}

func (r *catalogRepository) Create(ctx context.Context, p domain.Product) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, p.ID, p.Name, p.SKU, p.Description, p.Price, p.Stock, p.Active, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return mapProductWriteError(err, "insert product")
	}
	return nil
}

func (r *catalogRepository) FindByID(ctx context.Context, id string) (domain.Product, error) {
	return r.findOne(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
}

func (r *catalogRepository) FindByIDForUpdate(ctx context.Context, id string) (domain.Product, error) {
	return r.findOne(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, id)
}

func (r *catalogRepository) FindBySKU(ctx context.Context, sku string) (domain.Product, error) {
	return r.findOne(ctx, `SELECT `+productColumns+` FROM products WHERE sku = $1`, sku)
}

func (r *catalogRepository) Update(ctx context.Context, p domain.Product) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE products
		SET name = $2,
		    sku = $3,
		    description = $4,
		    price = $5,
		    active = $6,
		    updated_at = $7
		WHERE id = $1
	`, p.ID, p.Name, p.SKU, p.Description, p.Price, p.Active, p.UpdatedAt)
	if err != nil {
		return mapProductWriteError(err, "update product")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

// AdjustStock меняет остаток одним условным UPDATE, поэтому параллельные
// списания не могут увести его в минус.
func (r *catalogRepository) AdjustStock(ctx context.Context, id string, delta int) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	product, err := scanProduct(r.q.QueryRowContext(ctx, `
		UPDATE products
		SET stock = stock + $2,
		    updated_at = NOW()
		WHERE id = $1
		  AND stock + $2 >= 0
		RETURNING `+productColumns, id, delta))
	if err == nil {
		return product, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, fmt.Errorf("adjust stock: %w", err)
	}

	var (
		name  string
		stock int
	)
	err = r.q.QueryRowContext(ctx, `SELECT name, stock FROM products WHERE id = $1`, id).Scan(&name, &stock)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, domain.ErrProductNotFound
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("load stock: %w", err)
	}
	return domain.Product{}, &domain.InsufficientStockError{
		ProductID:   id,
		ProductName: name,
		Requested:   -delta,
		Available:   stock,
	}
}

func (r *catalogRepository) findOne(ctx context.Context, query string, arg any) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	product, err := scanProduct(r.q.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}
	return product, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Name, &p.SKU, &p.Description, &p.Price, &p.Stock, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func mapProductWriteError(err error, op string) error {
	switch uniqueConstraint(err) {
	case "":
		return fmt.Errorf("%s: %w", op, err)
	case "products_sku_key":
		return domain.ErrSKUAlreadyExists
	default:
		return fmt.Errorf("%s: %w", op, domain.ErrConflict)
	}
}

var _ domain.CatalogRepository = (*catalogRepository)(nil)
