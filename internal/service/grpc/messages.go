package grpcsvc

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/erp-orders/internal/domain"
)

// Денежные суммы передаются строками с двумя знаками после запятой.

type OrderItemInput struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type CreateOrderRequest struct {
	UserID string           `json:"user_id"`
	Items  []OrderItemInput `json:"items"`
	Notes  string           `json:"notes,omitempty"`
}

type CreateOrderResponse struct {
	Order *Order `json:"order"`
}

type GetOrderRequest struct {
	OrderID string `json:"order_id"`
}

type GetOrderResponse struct {
	Order    *Order          `json:"order"`
	Owner    *User           `json:"owner"`
	Timeline []TimelineEvent `json:"timeline"`
}

type ListOrdersRequest struct {
	UserID   string `json:"user_id"`
	Page     int    `json:"page,omitempty"`
	PageSize int    `json:"page_size,omitempty"`
}

type ListOrdersResponse struct {
	Orders    []*Order `json:"orders"`
	Total     int      `json:"total"`
	Page      int      `json:"page"`
	PageSize  int      `json:"page_size"`
	PageCount int      `json:"page_count"`
}

type UpdateOrderStatusRequest struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

type UpdateOrderStatusResponse struct {
	Order *Order `json:"order"`
}

type CancelOrderRequest struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason,omitempty"`
}

type CancelOrderResponse struct {
	Order *Order `json:"order"`
}

type Order struct {
	ID          string      `json:"id"`
	OrderNumber string      `json:"order_number"`
	UserID      string      `json:"user_id"`
	Status      string      `json:"status"`
	Subtotal    string      `json:"subtotal"`
	TaxAmount   string      `json:"tax_amount"`
	TotalAmount string      `json:"total_amount"`
	Notes       string      `json:"notes,omitempty"`
	Items       []OrderItem `json:"items"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

type OrderItem struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	LineTotal string `json:"line_total"`
}

type User struct {
	ID        string `json:"id"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

type TimelineEvent struct {
	Type     string `json:"type"`
	Reason   string `json:"reason,omitempty"`
	UnixTime int64  `json:"unix_time"`
}

type CreateProductRequest struct {
	Name        string `json:"name"`
	SKU         string `json:"sku"`
	Description string `json:"description,omitempty"`
	Price       string `json:"price"`
	Stock       int    `json:"stock"`
	Active      *bool  `json:"active,omitempty"`
}

type GetProductRequest struct {
	ProductID string `json:"product_id"`
}

type UpdateProductRequest struct {
	ProductID   string  `json:"product_id"`
	Name        *string `json:"name,omitempty"`
	SKU         *string `json:"sku,omitempty"`
	Description *string `json:"description,omitempty"`
	Price       *string `json:"price,omitempty"`
	Active      *bool   `json:"active,omitempty"`
}

type AdjustStockRequest struct {
	ProductID string `json:"product_id"`
	Delta     int    `json:"delta"`
	Reason    string `json:"reason,omitempty"`
}

type ProductResponse struct {
	Product *Product `json:"product"`
}

type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	SKU         string    `json:"sku"`
	Description string    `json:"description,omitempty"`
	Price       string    `json:"price"`
	Stock       int       `json:"stock"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func money(d decimal.Decimal) string {
	return d.StringFixed(domain.MoneyScale)
}

// NewOrderMessage переводит заказ в транспортное представление.
func NewOrderMessage(order domain.Order) *Order {
	items := make([]OrderItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderItem{
			ID:        item.ID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: money(item.UnitPrice),
			LineTotal: money(item.LineTotal()),
		})
	}

	return &Order{
		ID:          order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Status:      string(order.Status),
		Subtotal:    money(order.Subtotal),
		TaxAmount:   money(order.TaxAmount),
		TotalAmount: money(order.TotalAmount),
		Notes:       order.Notes,
		Items:       items,
		CreatedAt:   order.CreatedAt,
		UpdatedAt:   order.UpdatedAt,
	}
}

func NewUserMessage(user domain.UserSummary) *User {
	return &User{
		ID:        user.ID,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
	}
}

func NewTimelineMessages(events []domain.TimelineEvent) []TimelineEvent {
	result := make([]TimelineEvent, 0, len(events))
	for _, event := range events {
		result = append(result, TimelineEvent{
			Type:     event.Type,
			Reason:   event.Reason,
			UnixTime: event.Occurred.Unix(),
		})
	}
	return result
}

// NewProductMessage переводит товар в транспортное представление.
func NewProductMessage(p domain.Product) *Product {
	return &Product{
		ID:          p.ID,
		Name:        p.Name,
		SKU:         p.SKU,
		Description: p.Description,
		Price:       money(p.Price),
		Stock:       p.Stock,
		Active:      p.Active,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}
