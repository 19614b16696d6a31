// Package checkout reconciles the member's cart with the at-most-one pending
// order the backend holds, drives the hosted payment widget, and confirms
// the payment result idempotently through the storefront proxy.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"

	"github.com/avadstore/storefront/pkg/cart"
	"github.com/avadstore/storefront/pkg/client"
)

var (
	// ErrWidgetKeys means the widget client or customer key is missing;
	// checkout cannot initialize without both.
	ErrWidgetKeys = errors.New("widget client key and customer key required")
	// ErrEmptyCart rejects checkout before any order call is made.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrCheckoutBusy guards against a second widget session while one is
	// outstanding.
	ErrCheckoutBusy = errors.New("checkout already in progress")
	// ErrConfirmRejected is a gateway or backend rejection of the confirm
	// triple; the order stays pending and there is no automatic retry.
	ErrConfirmRejected = errors.New("payment confirmation rejected")
)

// Config carries the widget keys and the customer contact fields passed to
// the hosted widget.
type Config struct {
	ClientKey   string
	CustomerKey string

	CustomerEmail       string
	CustomerName        string
	CustomerMobilePhone string

	// OrderName is the human-readable label shown by the widget.
	OrderName string
}

type Coordinator struct {
	api    *client.Client
	cart   *cart.Facade
	widget Widget
	cfg    Config

	inFlight atomic.Bool
}

func New(api *client.Client, carts *cart.Facade, widget Widget, cfg Config) (*Coordinator, error) {
	if cfg.ClientKey == "" || cfg.CustomerKey == "" {
		return nil, ErrWidgetKeys
	}
	if cfg.OrderName == "" {
		cfg.OrderName = "AVAD STORE order"
	}
	return &Coordinator{api: api, cart: carts, widget: widget, cfg: cfg}, nil
}

// Start resolves an order id that exactly matches the current cart and hands
// it to the widget. Reuse rules, in decision order:
//
//  1. no order, or a non-pending one: POST a fresh order from the cart
//  2. pending order whose items equal the cart: reuse the id, no write
//  3. pending order that differs: PATCH it with the cart items; the id is
//     kept unless the backend answers with a new one
//
// origin is the site origin the widget redirects back to ("/success",
// "/fail").
func (co *Coordinator) Start(ctx context.Context, origin string) error {
	if !co.inFlight.CompareAndSwap(false, true) {
		return ErrCheckoutBusy
	}
	defer co.inFlight.Store(false)

	items, err := co.cart.List(ctx)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return ErrEmptyCart
	}

	orderID, err := co.resolveOrder(ctx, items)
	if err != nil {
		return err
	}

	if err := co.widget.SetAmount(Amount{Currency: "KRW", Value: cart.Total(items)}); err != nil {
		return fmt.Errorf("set amount: %w", err)
	}

	return co.widget.RequestPayment(ctx, Payment{
		OrderID:             orderID.String(),
		OrderName:           co.cfg.OrderName,
		SuccessURL:          origin + "/success",
		FailURL:             origin + "/fail",
		CustomerEmail:       co.cfg.CustomerEmail,
		CustomerName:        co.cfg.CustomerName,
		CustomerMobilePhone: co.cfg.CustomerMobilePhone,
	})
}

func (co *Coordinator) resolveOrder(ctx context.Context, items []cart.Item) (OrderID, error) {
	existing, err := co.fetchPendingOrder(ctx)
	if err != nil {
		return "", err
	}

	if existing == nil || existing.Status != StatusPendingPayment {
		return co.createOrder(ctx, items)
	}
	if SameItems(existing.Items, items) {
		return existing.OrderID, nil
	}
	return co.replaceOrderItems(ctx, existing.OrderID, items)
}

func (co *Coordinator) fetchPendingOrder(ctx context.Context) (*Order, error) {
	resp, err := co.api.Do(ctx, http.MethodGet, "/api/orders", nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		return nil, client.ErrLoginRequired
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		// A failing backend must abort checkout, not provoke an order write.
		return nil, fmt.Errorf("fetch order: %s", client.ErrorText(resp))
	}
	if resp.StatusCode != http.StatusOK {
		// 404 and friends read the same as no order on file.
		resp.Body.Close()
		return nil, nil
	}

	var order *Order
	if err := client.DecodeJSON(resp, &order); err != nil {
		return nil, err
	}
	if order == nil || order.OrderID == "" {
		return nil, nil
	}
	return order, nil
}

func (co *Coordinator) createOrder(ctx context.Context, items []cart.Item) (OrderID, error) {
	body := map[string]any{"items": orderItemsFromCart(items)}
	resp, err := co.api.Do(ctx, http.MethodPost, "/api/orders", body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		return "", client.ErrLoginRequired
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("create order: %s", client.ErrorText(resp))
	}

	var created Order
	if err := client.DecodeJSON(resp, &created); err != nil {
		return "", err
	}
	if created.OrderID == "" {
		return "", fmt.Errorf("create order: response missing order id")
	}
	return created.OrderID, nil
}

func (co *Coordinator) replaceOrderItems(ctx context.Context, id OrderID, items []cart.Item) (OrderID, error) {
	body := map[string]any{"items": orderItemsFromCart(items)}
	resp, err := co.api.Do(ctx, http.MethodPatch, "/api/orders/"+url.PathEscape(id.String()), body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		return "", client.ErrLoginRequired
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("update order: %s", client.ErrorText(resp))
	}

	var updated Order
	if err := client.DecodeJSON(resp, &updated); err != nil {
		// The id survives a body the backend chose not to send.
		return id, nil
	}
	if updated.OrderID != "" {
		return updated.OrderID, nil
	}
	return id, nil
}

// Confirm is the success-page flow: it reads paymentKey, orderId and amount
// from the redirect query, coerces amount to a number, and posts the triple
// to the proxy's confirm endpoint. Any non-2xx answer is ErrConfirmRejected.
func (co *Coordinator) Confirm(ctx context.Context, query url.Values) error {
	paymentKey := query.Get("paymentKey")
	orderID := query.Get("orderId")
	amount, err := strconv.ParseInt(query.Get("amount"), 10, 64)
	if err != nil || paymentKey == "" || orderID == "" {
		return fmt.Errorf("%w: malformed redirect parameters", ErrConfirmRejected)
	}

	body := map[string]any{
		"paymentKey": paymentKey,
		"orderId":    orderID,
		"amount":     amount,
	}
	resp, err := co.api.Do(ctx, http.MethodPost, "/api/confirm", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ErrConfirmRejected
	}
	return nil
}
