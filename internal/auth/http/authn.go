package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/shopauth/internal/auth/domain"
	"github.com/aussiebroadwan/shopauth/internal/auth/service"
	"github.com/aussiebroadwan/shopauth/pkg/httpx"
	"github.com/aussiebroadwan/shopauth/pkg/jwtx"
	"github.com/aussiebroadwan/shopauth/pkg/slogx"
)

type ctxKey int

const (
	ctxKeySession ctxKey = iota
	ctxKeyClaims
)

// AuthnMiddleware authenticates the request with the x-client-id header and
// the access token in Authorization, and stores the shop's session and
// claims on the context.
func AuthnMiddleware(creds *service.CredentialService) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			shopID := strings.TrimSpace(r.Header.Get(httpx.HeaderClientID))

			sess, claims, err := creds.Authenticate(r.Context(), shopID, httpx.BearerToken(r))
			if err != nil {
				writeServiceError(w, r, err)
				return
			}

			ctx := withAuth(r.Context(), sess, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func withAuth(ctx context.Context, sess domain.Session, claims jwtx.Claims) context.Context {
	ctx = context.WithValue(ctx, ctxKeySession, sess)
	ctx = context.WithValue(ctx, ctxKeyClaims, claims)
	ctx = httpx.WithShopID(ctx, sess.ShopID)
	return slogx.WithShop(ctx, sess.ShopID)
}

// SessionFromContext returns the session set by AuthnMiddleware.
func SessionFromContext(ctx context.Context) (domain.Session, bool) {
	s, ok := ctx.Value(ctxKeySession).(domain.Session)
	return s, ok
}

// ClaimsFromContext returns the access token claims set by AuthnMiddleware.
func ClaimsFromContext(ctx context.Context) (jwtx.Claims, bool) {
	c, ok := ctx.Value(ctxKeyClaims).(jwtx.Claims)
	return c, ok
}
