package httpserver

import "net/http"

// route maps one public path to its upstream counterpart. An empty upstream
// means the paths are identical. Upstream patterns reuse the public
// :param names. queryDefaults fill in query parameters the caller omitted
// before the request goes upstream.
type route struct {
	methods       []string
	path          string
	upstream      string
	queryDefaults map[string]string
}

func (r route) upstreamPattern() string {
	if r.upstream != "" {
		return r.upstream
	}
	return r.path
}

var proxyRoutes = []route{
	{methods: []string{http.MethodPost}, path: "/api/auth/login"},

	{methods: []string{http.MethodPost}, path: "/api/members"},
	{methods: []string{http.MethodGet}, path: "/api/members/:email", upstream: "/api/members/email/:email"},
	{methods: []string{http.MethodGet}, path: "/api/me/edit", upstream: "/api/members/me"},
	{methods: []string{http.MethodPut}, path: "/api/me/edit", upstream: "/api/members/edit"},
	{methods: []string{http.MethodPut}, path: "/api/me/edit/password", upstream: "/api/members/password"},
	{methods: []string{http.MethodPost}, path: "/api/me/confirm-password", upstream: "/api/members/me/confirm-password"},

	{methods: []string{http.MethodGet, http.MethodPost, http.MethodDelete}, path: "/api/me/carts", upstream: "/api/carts"},
	{methods: []string{http.MethodPost}, path: "/api/me/carts/buy-now", upstream: "/api/carts/buy-now"},
	{methods: []string{http.MethodPatch}, path: "/api/me/carts/:cartId", upstream: "/api/carts/:cartId"},

	// POST /api/orders is registered separately: it publishes order_created.
	{methods: []string{http.MethodGet}, path: "/api/orders"},
	{methods: []string{http.MethodPatch}, path: "/api/orders/:orderId"},

	{methods: []string{http.MethodGet}, path: "/api/mypage/orders", upstream: "/api/members/me/orders"},
	{methods: []string{http.MethodGet}, path: "/api/mypage/wishlist", upstream: "/api/members/me/wishlist"},
	{methods: []string{http.MethodGet}, path: "/api/mypage/likes", upstream: "/api/members/me/likes"},

	{methods: []string{http.MethodGet}, path: "/api/categories"},
	{methods: []string{http.MethodGet}, path: "/api/categories/:categoryId/products"},
	{methods: []string{http.MethodGet, http.MethodPost}, path: "/api/products"},
	{methods: []string{http.MethodGet}, path: "/api/products/search",
		queryDefaults: map[string]string{"page": "0", "size": "12"}},
	{methods: []string{http.MethodGet}, path: "/api/products/:productId"},
	{methods: []string{http.MethodGet}, path: "/api/products/:productId/related"},
	{methods: []string{http.MethodGet, http.MethodPost}, path: "/api/products/:productId/images"},
	{methods: []string{http.MethodGet}, path: "/api/products/:productId/hashtags"},
	{methods: []string{http.MethodPost, http.MethodDelete}, path: "/api/products/:productId/like"},
	{methods: []string{http.MethodPost, http.MethodDelete}, path: "/api/products/:productId/wish"},
	{methods: []string{http.MethodGet}, path: "/api/hashtags"},
}
