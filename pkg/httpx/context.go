package httpx

import (
	"context"
	"net/http"
	"strings"
)

type ctxKey string

const ctxKeyShopID ctxKey = "shop_id"

// Headers carried by authenticated shop requests.
const (
	HeaderClientID     = "x-client-id"
	HeaderRefreshToken = "x-rtoken-id"
)

// WithShopID records the authenticated shop on the context.
func WithShopID(ctx context.Context, shopID string) context.Context {
	return context.WithValue(ctx, ctxKeyShopID, shopID)
}

// ShopIDFromContext returns the authenticated shop, if any.
func ShopIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ctxKeyShopID).(string)
	return v, ok && v != ""
}

// BearerToken returns the token from the Authorization header. Both
// "Bearer <token>" and a bare token are accepted.
func BearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return h
}
