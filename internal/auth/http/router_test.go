package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	authhttp "github.com/aussiebroadwan/shopauth/internal/auth/http"
	"github.com/aussiebroadwan/shopauth/internal/auth/service"
	"github.com/aussiebroadwan/shopauth/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/shopauth/pkg/cryptox"
	"github.com/aussiebroadwan/shopauth/pkg/httpx"
	"github.com/aussiebroadwan/shopauth/pkg/jwtx"
	"github.com/aussiebroadwan/shopauth/pkg/slogx"
	"github.com/stretchr/testify/require"
)

var generous = httpx.RateLimitConfig{RequestsPerWindow: 1000, Window: time.Minute, Burst: 1000}

type pingerFunc func(context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func newRouter(t *testing.T, limits authhttp.Limits) *authhttp.Router {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	sealer, err := cryptox.NewSealer([]byte("router test key"))
	require.NoError(t, err)

	creds := &service.CredentialService{
		Shops:    st.Shops(),
		Sessions: st.Sessions(),
		Codec:    jwtx.NewCodec("https://auth.shop.example"),
		Sealer:   sealer,
	}

	r := authhttp.NewRouter(creds, "test", limits, slogx.Discard())
	r.AddCheck("database", st)
	r.ApplyRoutes()
	return r
}

type authBody struct {
	Shop struct {
		ID    string `json:"_id"`
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"shop"`
	Tokens jwtx.Pair `json:"tokens"`
}

func do(t *testing.T, h http.Handler, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[httpx.ErrorBody](t, rec).Error
}

func signUp(t *testing.T, h http.Handler, email string) authBody {
	t.Helper()
	rec := do(t, h, "/v1/api/shop/signup", map[string]string{
		"name": "Corner Shop", "email": email, "password": "correct horse battery",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	return decode[authBody](t, rec)
}

func TestSignUpAndLogin(t *testing.T) {
	r := newRouter(t, authhttp.Limits{Strict: generous, Moderate: generous})

	res := signUp(t, r, "a@x.com")
	require.Equal(t, "a@x.com", res.Shop.Email)
	require.NotEmpty(t, res.Shop.ID)
	require.NotEmpty(t, res.Tokens.AccessToken)
	require.NotEmpty(t, res.Tokens.RefreshToken)

	t.Run("duplicate signup", func(t *testing.T) {
		rec := do(t, r, "/v1/api/shop/signup", map[string]string{
			"name": "Other", "email": "a@x.com", "password": "correct horse battery",
		}, nil)
		require.Equal(t, http.StatusConflict, rec.Code)
		require.Equal(t, "already_registered", errorCode(t, rec))
	})

	t.Run("invalid signup", func(t *testing.T) {
		rec := do(t, r, "/v1/api/shop/signup", map[string]string{"name": "x", "email": "nope"}, nil)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, "invalid_request", errorCode(t, rec))
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/api/shop/login", bytes.NewBufferString("{"))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("wrong password", func(t *testing.T) {
		rec := do(t, r, "/v1/api/shop/login", map[string]string{"email": "a@x.com", "password": "wrong password"}, nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, "authentication_failed", errorCode(t, rec))
	})

	t.Run("unknown shop", func(t *testing.T) {
		rec := do(t, r, "/v1/api/shop/login", map[string]string{"email": "b@x.com", "password": "correct horse battery"}, nil)
		require.Equal(t, http.StatusNotFound, rec.Code)
		require.Equal(t, "not_registered", errorCode(t, rec))
	})

	for _, path := range []string{"/v1/api/shop/login", "/v1/api/shop/signin"} {
		t.Run(path, func(t *testing.T) {
			rec := do(t, r, path, map[string]string{"email": "a@x.com", "password": "correct horse battery"}, nil)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			require.Equal(t, res.Shop.ID, decode[authBody](t, rec).Shop.ID)
		})
	}
}

func TestRefreshAndReuse(t *testing.T) {
	r := newRouter(t, authhttp.Limits{Strict: generous, Moderate: generous})
	res := signUp(t, r, "a@x.com")

	rec := do(t, r, "/v1/api/shop/refresh", nil, map[string]string{
		httpx.HeaderClientID:     res.Shop.ID,
		httpx.HeaderRefreshToken: res.Tokens.RefreshToken,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out struct {
		Shop struct {
			UserID string `json:"userId"`
			Email  string `json:"email"`
		} `json:"shop"`
		Tokens jwtx.Pair `json:"tokens"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Equal(t, res.Shop.ID, out.Shop.UserID)
	require.Equal(t, "a@x.com", out.Shop.Email)
	require.NotEqual(t, res.Tokens.RefreshToken, out.Tokens.RefreshToken)

	// The rotated token, this time in the body on the legacy path.
	rec = do(t, r, "/v1/api/shop/handlerRefreshToken", map[string]string{"refreshToken": out.Tokens.RefreshToken},
		map[string]string{httpx.HeaderClientID: res.Shop.ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Replaying the first token revokes everything.
	rec = do(t, r, "/v1/api/shop/refresh", nil, map[string]string{
		httpx.HeaderClientID:     res.Shop.ID,
		httpx.HeaderRefreshToken: res.Tokens.RefreshToken,
	})
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "refresh_token_reused", errorCode(t, rec))

	rec = do(t, r, "/v1/api/shop/logout", nil, map[string]string{
		httpx.HeaderClientID: res.Shop.ID,
		"Authorization":      "Bearer " + out.Tokens.AccessToken,
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRefresh_Rejections(t *testing.T) {
	r := newRouter(t, authhttp.Limits{Strict: generous, Moderate: generous})
	res := signUp(t, r, "a@x.com")

	t.Run("missing token", func(t *testing.T) {
		rec := do(t, r, "/v1/api/shop/refresh", nil, map[string]string{httpx.HeaderClientID: res.Shop.ID})
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("access token presented", func(t *testing.T) {
		rec := do(t, r, "/v1/api/shop/refresh", nil, map[string]string{
			httpx.HeaderClientID:     res.Shop.ID,
			httpx.HeaderRefreshToken: res.Tokens.AccessToken,
		})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, "invalid_token", errorCode(t, rec))
	})

	t.Run("missing client id", func(t *testing.T) {
		rec := do(t, r, "/v1/api/shop/refresh", nil, map[string]string{httpx.HeaderRefreshToken: res.Tokens.RefreshToken})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, "authentication_failed", errorCode(t, rec))
	})
}

func TestLogout(t *testing.T) {
	r := newRouter(t, authhttp.Limits{Strict: generous, Moderate: generous})
	res := signUp(t, r, "a@x.com")

	headers := map[string]string{
		httpx.HeaderClientID: res.Shop.ID,
		"Authorization":      "Bearer " + res.Tokens.AccessToken,
	}

	rec := do(t, r, "/v1/api/shop/logout", nil, headers)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.True(t, decode[struct{ Deleted bool }](t, rec).Deleted)

	// The session is gone, so the same credentials no longer authenticate.
	rec = do(t, r, "/v1/api/shop/logout", nil, headers)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, r, "/v1/api/shop/logout", nil, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogout_ShopLimitCountsAuthenticatedOnly(t *testing.T) {
	once := httpx.RateLimitConfig{RequestsPerWindow: 1, Window: time.Minute, Burst: 1}
	r := newRouter(t, authhttp.Limits{Strict: generous, Moderate: once})
	res := signUp(t, r, "a@x.com")

	forged := map[string]string{
		httpx.HeaderClientID: res.Shop.ID,
		"Authorization":      "Bearer garbage",
	}
	for range 3 {
		rec := do(t, r, "/v1/api/shop/logout", nil, forged)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	// Forged requests did not touch the shop's bucket.
	rec := do(t, r, "/v1/api/shop/logout", nil, map[string]string{
		httpx.HeaderClientID: res.Shop.ID,
		"Authorization":      "Bearer " + res.Tokens.AccessToken,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, r, "/v1/api/shop/login", map[string]string{"email": "a@x.com", "password": "correct horse battery"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	again := decode[authBody](t, rec)

	rec = do(t, r, "/v1/api/shop/logout", nil, map[string]string{
		httpx.HeaderClientID: again.Shop.ID,
		"Authorization":      "Bearer " + again.Tokens.AccessToken,
	})
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "rate_limit_exceeded", errorCode(t, rec))
}

func TestAuthnMiddleware_SetsContext(t *testing.T) {
	r := newRouter(t, authhttp.Limits{Strict: generous, Moderate: generous})
	res := signUp(t, r, "a@x.com")

	var gotShop string
	h := authhttp.AuthnMiddleware(r.Credentials)(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		sess, ok := authhttp.SessionFromContext(req.Context())
		require.True(t, ok)
		claims, ok := authhttp.ClaimsFromContext(req.Context())
		require.True(t, ok)
		require.Equal(t, sess.ShopID, claims.UserID)
		gotShop, _ = httpx.ShopIDFromContext(req.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := do(t, h, "/", nil, map[string]string{
		httpx.HeaderClientID: res.Shop.ID,
		"Authorization":      res.Tokens.AccessToken,
	})
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, res.Shop.ID, gotShop)
}

func TestSignUp_RateLimited(t *testing.T) {
	strict := httpx.RateLimitConfig{RequestsPerWindow: 1, Window: time.Minute, Burst: 1}
	r := newRouter(t, authhttp.Limits{Strict: strict, Moderate: generous})

	signUp(t, r, "a@x.com")

	// Signup spent the bucket shared by every public endpoint.
	rec := do(t, r, "/v1/api/shop/login", map[string]string{"email": "a@x.com", "password": "correct horse battery"}, nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "rate_limit_exceeded", errorCode(t, rec))
}

func TestHealth(t *testing.T) {
	r := newRouter(t, authhttp.Limits{Strict: generous, Moderate: generous})

	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", decode[authhttp.HealthResponse](t, rec).Checks["database"])

	r.AddCheck("redis", pingerFunc(func(context.Context) error { return errors.New("connection refused") }))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "degraded", decode[authhttp.HealthResponse](t, rec).Status)
}

func TestSwaggerDocServed(t *testing.T) {
	r := newRouter(t, authhttp.Limits{Strict: generous, Moderate: generous})

	req := httptest.NewRequest(http.MethodGet, "/swagger/doc.json", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "/v1/api/shop/handlerRefreshToken")
}
