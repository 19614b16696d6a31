package checkout

import "context"

// Amount is the widget's payable amount.
type Amount struct {
	Currency string `json:"currency"`
	Value    int64  `json:"value"`
}

// Payment is the request handed to the hosted widget; after this call the
// widget owns the user journey until it redirects to the success or fail URL.
type Payment struct {
	OrderID             string
	OrderName           string
	SuccessURL          string
	FailURL             string
	CustomerEmail       string
	CustomerName        string
	CustomerMobilePhone string
}

// Widget is the seam to the hosted payment SDK. The amount must be reset via
// SetAmount whenever the cart total changes; the coordinator does so right
// before every RequestPayment.
type Widget interface {
	SetAmount(a Amount) error
	RequestPayment(ctx context.Context, p Payment) error
}
