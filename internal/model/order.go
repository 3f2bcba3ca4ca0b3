package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	StatusPlaced    OrderStatus = "PLACED"
	StatusShipped   OrderStatus = "SHIPPED"
	StatusDelivered OrderStatus = "DELIVERED"
)

// orderStatusRank orders lifecycle states; transitions only move forward.
var orderStatusRank = map[OrderStatus]int{
	StatusPlaced:    1,
	StatusShipped:   2,
	StatusDelivered: 3,
}

// ParseOrderStatus parses a lifecycle status, case-insensitively.
func ParseOrderStatus(s string) (OrderStatus, error) {
	st := OrderStatus(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := orderStatusRank[st]; !ok {
		return "", fmt.Errorf("unknown order status %q", s)
	}
	return st, nil
}

// CanAdvanceTo reports whether next is strictly later in the lifecycle than s.
func (s OrderStatus) CanAdvanceTo(next OrderStatus) bool {
	from, ok := orderStatusRank[s]
	if !ok {
		// Unknown current state: the backend is authoritative, allow any known target.
		_, known := orderStatusRank[next]
		return known
	}
	to, ok := orderStatusRank[next]
	return ok && to > from
}

// UnmarshalJSON validates the status at the decoding boundary.
func (s *OrderStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("order status: %w", err)
	}
	st, err := ParseOrderStatus(raw)
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// PaymentStatus is the payment state of an order.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentCompleted PaymentStatus = "COMPLETED"
)

// ParsePaymentStatus parses a payment status, case-insensitively.
func ParsePaymentStatus(s string) (PaymentStatus, error) {
	switch st := PaymentStatus(strings.ToUpper(strings.TrimSpace(s))); st {
	case PaymentPending, PaymentCompleted:
		return st, nil
	default:
		return "", fmt.Errorf("unknown payment status %q", s)
	}
}

// CanAdvanceTo reports whether next is a forward payment transition.
func (s PaymentStatus) CanAdvanceTo(next PaymentStatus) bool {
	return s != PaymentCompleted && next == PaymentCompleted
}

// UnmarshalJSON validates the status at the decoding boundary.
func (s *PaymentStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("payment status: %w", err)
	}
	st, err := ParsePaymentStatus(raw)
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// OrderUser is the owning user reference embedded in an order.
type OrderUser struct {
	ID       int64  `json:"user_id"`
	Username string `json:"username"`
}

// OrderLine is one immutable product+quantity entry of a placed order.
type OrderLine struct {
	ID       int64   `json:"order_item_id"`
	Product  Product `json:"product"`
	Quantity int     `json:"quantity"`
}

// Order is a placed order as reported by the backend.
type Order struct {
	ID            int64         `json:"order_id"`
	User          OrderUser     `json:"user"`
	Status        OrderStatus   `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	TotalAmount   float64       `json:"total_amount"`
	CreatedAt     time.Time     `json:"order_date"`
	Lines         []OrderLine   `json:"orderItems"`
}

// OrderID returns the order identity. Used by rosters keyed on id.
func OrderID(o Order) int64 { return o.ID }

// WithStatus returns a copy of o with only the lifecycle status replaced.
func (o Order) WithStatus(st OrderStatus) Order {
	o.Status = st
	return o
}

// WithPaymentStatus returns a copy of o with only the payment status replaced.
func (o Order) WithPaymentStatus(st PaymentStatus) Order {
	o.PaymentStatus = st
	return o
}

// OrderItemRequest is one line of an order placement request.
// Prices are never sent; the backend prices the order at commit time.
type OrderItemRequest struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

// OrderRequest is the placement payload built from a submittable cart.
type OrderRequest struct {
	UserID    int64              `json:"userId"`
	OrderDate time.Time          `json:"orderDate"`
	Items     []OrderItemRequest `json:"items"`
}

// StatusChange selects the fields of a status update. Empty fields are left
// unchanged by the backend.
type StatusChange struct {
	Status        OrderStatus
	PaymentStatus PaymentStatus
}
