package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Product: позиция каталога с текущим остатком на складе.
type Product struct {
	ID          string
	Name        string
	SKU         string
	Description string
	// Price: текущая цена за единицу; в заказ копируется снимок.
	Price decimal.Decimal
	// Stock: доступный остаток, никогда не бывает отрицательным.
	Stock int
	// Active не влияет на возможность заказа, только на отображение в каталоге.
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate проверяет поля товара перед сохранением.
func (p Product) Validate() error {
	switch {
	case strings.TrimSpace(p.Name) == "":
		return ErrProductNameMissing
	case strings.TrimSpace(p.SKU) == "":
		return ErrSKURequired
	case p.Price.IsNegative():
		return ErrPriceNegative
	case p.Stock < 0:
		return ErrStockNegative
	}
	return nil
}
