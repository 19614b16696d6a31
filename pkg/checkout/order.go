package checkout

import (
	"bytes"
	"encoding/json"

	"github.com/avadstore/storefront/pkg/cart"
)

// Order statuses as the backend reports them.
const (
	StatusPendingPayment = "pending-payment"
	StatusPaid           = "paid"
	StatusFailed         = "failed"
	StatusCanceled       = "canceled"
)

// OrderID tolerates backends that serialize the id as a JSON number; the
// widget contract wants it as a string either way.
type OrderID string

func (id *OrderID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = OrderID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = OrderID(n.String())
	return nil
}

func (id OrderID) String() string { return string(id) }

// OrderItem is one line of an order's immutable items snapshot.
type OrderItem struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
	Price     int64 `json:"price"`
}

type Order struct {
	OrderID    OrderID     `json:"orderId"`
	MemberID   int64       `json:"memberId"`
	Status     string      `json:"status"`
	Items      []OrderItem `json:"items"`
	TotalPrice int64       `json:"totalPrice"`
}

// SameItems is the one place order/cart equality is defined: same number of
// items, and every order item matched by a cart item on product id, quantity
// and unit price. Size is deliberately absent; the backend bound sizes when
// the rows were added.
func SameItems(orderItems []OrderItem, cartItems []cart.Item) bool {
	if len(orderItems) != len(cartItems) {
		return false
	}
	for _, oi := range orderItems {
		found := false
		for _, ci := range cartItems {
			if ci.ProductID == oi.ProductID && ci.Quantity == oi.Quantity && ci.UnitPrice() == oi.Price {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func orderItemsFromCart(items []cart.Item) []OrderItem {
	out := make([]OrderItem, 0, len(items))
	for _, it := range items {
		out = append(out, OrderItem{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Price:     it.UnitPrice(),
		})
	}
	return out
}
