// Package cart is the member-facing view over the cart held by the upstream
// backend: list with product hydration, add, quantity update, tuple-keyed
// removal and buy-now replacement. The backend is the ordering authority;
// after any mutation the caller reconciles by re-listing.
package cart

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/avadstore/storefront/pkg/client"
)

// ErrPrecondition marks client-side validation failures; no request has been
// issued when it is returned.
var ErrPrecondition = errors.New("precondition failed")

// Row is a cart row exactly as the backend returns it.
type Row struct {
	CartID        int64 `json:"cartId"`
	MemberID      int64 `json:"memberId"`
	ProductID     int64 `json:"productId"`
	ProductSizeID int64 `json:"productSizeId"`
	Quantity      int   `json:"quantity"`
}

type Product struct {
	ProductID  int64  `json:"productId"`
	Name       string `json:"name"`
	Price      int64  `json:"price"`
	CategoryID int64  `json:"categoryId"`
}

type Size struct {
	ProductSizeID int64  `json:"productSizeId"`
	Size          string `json:"size"`
}

type Image struct {
	ImageURL string `json:"imageUrl"`
	IsMain   bool   `json:"isMain"`
}

type productResponse struct {
	Product Product `json:"product"`
	Images  []Image `json:"images"`
	Sizes   []Size  `json:"sizes"`
}

// Item is a cart row merged with its product name, primary image and the
// resolved size label.
type Item struct {
	Row
	Product   *Product
	Image     *Image
	SizeLabel string
}

// UnitPrice is the denormalized price used for order equality and totals.
func (i Item) UnitPrice() int64 {
	if i.Product == nil {
		return 0
	}
	return i.Product.Price
}

type Facade struct {
	api *client.Client
}

func New(api *client.Client) *Facade {
	return &Facade{api: api}
}

// List fetches the cart and hydrates each row with its product. A row whose
// product lookup fails stays in the result bare; the list never fails over a
// single product.
func (f *Facade) List(ctx context.Context) ([]Item, error) {
	resp, err := f.api.Do(ctx, http.MethodGet, "/api/me/carts", nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		return nil, client.ErrLoginRequired
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list cart: %s", client.ErrorText(resp))
	}

	var rows []Row
	if err := client.DecodeJSON(resp, &rows); err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(rows))
	for _, row := range rows {
		items = append(items, f.hydrate(ctx, row))
	}
	return items, nil
}

func (f *Facade) hydrate(ctx context.Context, row Row) Item {
	item := Item{Row: row}

	resp, err := f.api.Do(ctx, http.MethodGet, fmt.Sprintf("/api/products/%d", row.ProductID), nil)
	if err != nil {
		return item
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return item
	}

	var pr productResponse
	if err := client.DecodeJSON(resp, &pr); err != nil {
		return item
	}

	item.Product = &pr.Product
	if len(pr.Images) > 0 {
		item.Image = &pr.Images[0]
	}
	for _, s := range pr.Sizes {
		if s.ProductSizeID == row.ProductSizeID {
			item.SizeLabel = s.Size
			break
		}
	}
	return item
}

func (f *Facade) Add(ctx context.Context, productID, productSizeID int64, quantity int) error {
	body := map[string]any{
		"productId":     productID,
		"productSizeId": productSizeID,
		"quantity":      quantity,
	}
	return f.mutate(ctx, http.MethodPost, "/api/me/carts", body)
}

// UpdateQuantity changes one row's quantity; values below 1 are rejected
// before any network call.
func (f *Facade) UpdateQuantity(ctx context.Context, cartID int64, quantity int) error {
	if quantity < 1 {
		return fmt.Errorf("%w: quantity must be >= 1", ErrPrecondition)
	}
	body := map[string]any{"quantity": quantity}
	return f.mutate(ctx, http.MethodPatch, fmt.Sprintf("/api/me/carts/%d", cartID), body)
}

// Remove deletes by the (product, size) tuple; that pair is the row's
// identity, not the surrogate cart id.
func (f *Facade) Remove(ctx context.Context, productID, productSizeID int64) error {
	body := map[string]any{
		"productId":     productID,
		"productSizeId": productSizeID,
	}
	return f.mutate(ctx, http.MethodDelete, "/api/me/carts", body)
}

// BuyNow atomically replaces the whole cart with a single item server-side.
// A size must already be selected.
func (f *Facade) BuyNow(ctx context.Context, productID, productSizeID int64, quantity int) error {
	if productSizeID == 0 {
		return fmt.Errorf("%w: size must be selected", ErrPrecondition)
	}
	body := map[string]any{
		"productId":     productID,
		"productSizeId": productSizeID,
		"quantity":      quantity,
	}
	return f.mutate(ctx, http.MethodPost, "/api/me/carts/buy-now", body)
}

func (f *Facade) mutate(ctx context.Context, method, path string, body any) error {
	resp, err := f.api.Do(ctx, method, path, body)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		return client.ErrLoginRequired
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("cart: %s", client.ErrorText(resp))
	}
	resp.Body.Close()
	return nil
}

// Total is the cart total in currency minor units, Σ quantity · unit price.
func Total(items []Item) int64 {
	var total int64
	for _, it := range items {
		total += int64(it.Quantity) * it.UnitPrice()
	}
	return total
}
