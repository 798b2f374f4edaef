package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusPending: заказ создан, остатки списаны.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed: заказ подтверждён.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusShipped: заказ передан в доставку.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered: заказ получен покупателем.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled: заказ отменён, остатки возвращены на склад.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// MoneyScale: количество знаков после запятой для денежных сумм.
const MoneyScale = 2

// DefaultTaxRate: ставка налога, применяемая к подытогу заказа.
var DefaultTaxRate = decimal.RequireFromString("0.10")

// AllOrderStatuses возвращает статусы в порядке жизненного цикла.
func AllOrderStatuses() []OrderStatus {
	return []OrderStatus{
		OrderStatusPending,
		OrderStatusConfirmed,
		OrderStatusShipped,
		OrderStatusDelivered,
		OrderStatusCancelled,
	}
}

// ParseOrderStatus разбирает строковое значение статуса.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	status := OrderStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !status.Valid() {
		return "", fmt.Errorf("%w: %q", ErrStatusInvalid, raw)
	}
	return status, nil
}

// Valid проверяет, что статус входит в перечисление.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// Cancellable сообщает, можно ли отменить заказ в этом статусе.
func (s OrderStatus) Cancellable() bool {
	switch s {
	case OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return false
	default:
		return true
	}
}

// OrderItem представляет одну позицию заказа.
type OrderItem struct {
	ID        string
	OrderID   string
	ProductID string
	Quantity  int
	// UnitPrice: цена товара на момент оформления заказа.
	UnitPrice decimal.Decimal
	CreatedAt time.Time
}

// LineTotal возвращает стоимость позиции: цена × количество.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Order агрегирует состояние заказа и его позиции.
type Order struct {
	ID          string
	OrderNumber string
	UserID      string
	Status      OrderStatus
	Subtotal    decimal.Decimal
	TaxAmount   decimal.Decimal
	TotalAmount decimal.Decimal
	Notes       string
	Items       []OrderItem
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Totals: денежные итоги заказа.
type Totals struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// CalculateTotals считает подытог, налог (с округлением до копеек) и итог.
func CalculateTotals(items []OrderItem, taxRate decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.LineTotal())
	}
	subtotal = subtotal.Round(MoneyScale)
	tax := subtotal.Mul(taxRate).Round(MoneyScale)
	return Totals{
		Subtotal: subtotal,
		Tax:      tax,
		Total:    subtotal.Add(tax),
	}
}

// ApplyTotals пересчитывает денежные поля заказа по позициям.
func (o *Order) ApplyTotals(taxRate decimal.Decimal) {
	totals := CalculateTotals(o.Items, taxRate)
	o.Subtotal = totals.Subtotal
	o.TaxAmount = totals.Tax
	o.TotalAmount = totals.Total
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
// Подытог сравнивается с суммой позиций, округлённой до копеек.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if strings.TrimSpace(o.UserID) == "" {
		errs = append(errs, ErrUserRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if !o.Status.Valid() {
		errs = append(errs, ErrStatusInvalid)
	}

	sum := decimal.Zero
	for _, item := range o.Items {
		if item.Quantity <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.UnitPrice.IsNegative() {
			errs = append(errs, ErrPriceNegative)
		}
		sum = sum.Add(item.LineTotal())
	}
	if !sum.Round(MoneyScale).Equal(o.Subtotal) || !o.Subtotal.Add(o.TaxAmount).Equal(o.TotalAmount) {
		errs = append(errs, ErrTotalsMismatch)
	}

	return errs
}

// FormatOrderNumber строит человекочитаемый номер заказа из даты и
// значения последовательности: ORD-20260102-000042.
func FormatOrderNumber(at time.Time, seq int64) string {
	return fmt.Sprintf("ORD-%s-%06d", at.UTC().Format("20060102"), seq)
}

// OrderDetails: заказ вместе с краткой информацией о владельце.
type OrderDetails struct {
	Order Order
	Owner UserSummary
}

// UserSummary: минимальные сведения о пользователе-владельце заказа.
type UserSummary struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
}
