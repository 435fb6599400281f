package http

import (
	"net/http"
	"strings"

	"github.com/aussiebroadwan/shopauth/internal/auth/domain"
	"github.com/aussiebroadwan/shopauth/internal/auth/service"
	"github.com/aussiebroadwan/shopauth/pkg/httpx"
	"github.com/aussiebroadwan/shopauth/pkg/jwtx"
)

// ShopHandler serves the /v1/api/shop credential endpoints.
type ShopHandler struct {
	Credentials *service.CredentialService
}

type signUpRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type authResponse struct {
	Shop   domain.ShopSummary `json:"shop"`
	Tokens jwtx.Pair          `json:"tokens"`
}

type tokenOwner struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

type refreshResponse struct {
	Shop   tokenOwner `json:"shop"`
	Tokens jwtx.Pair  `json:"tokens"`
}

type logoutResponse struct {
	Deleted bool `json:"deleted"`
}

// HandleSignUp serves POST /v1/api/shop/signup.
//
//	@Summary		Register a shop
//	@Description	Create a shop account and open its first session. The returned tokens are signed with a key pair minted for this session.
//	@Tags			Shop
//	@Accept			json
//	@Produce		json
//	@Param			body	body		signUpRequest		true	"Shop details"
//	@Success		201		{object}	authResponse
//	@Failure		400		{object}	httpx.ErrorBody	"Bad Request"
//	@Failure		409		{object}	httpx.ErrorBody	"Already registered"
//	@Failure		429		{object}	httpx.ErrorBody	"Too Many Requests"
//	@Failure		500		{object}	httpx.ErrorBody	"Internal Server Error"
//	@Router			/v1/api/shop/signup [post]
func (h *ShopHandler) HandleSignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}

	res, err := h.Credentials.SignUp(r.Context(), service.SignUpInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, authResponse{Shop: res.Shop, Tokens: res.Tokens})
}

// HandleLogin serves POST /v1/api/shop/login and its /signin alias.
//
//	@Summary		Log in
//	@Description	Verify the password and open a new session. Depending on the session policy the previous session is replaced or the login is refused.
//	@Tags			Shop
//	@Accept			json
//	@Produce		json
//	@Param			body	body		loginRequest		true	"Credentials"
//	@Success		200		{object}	authResponse
//	@Failure		400		{object}	httpx.ErrorBody	"Bad Request"
//	@Failure		401		{object}	httpx.ErrorBody	"Unauthorized"
//	@Failure		404		{object}	httpx.ErrorBody	"Not registered"
//	@Failure		409		{object}	httpx.ErrorBody	"Session exists"
//	@Failure		429		{object}	httpx.ErrorBody	"Too Many Requests"
//	@Failure		500		{object}	httpx.ErrorBody	"Internal Server Error"
//	@Router			/v1/api/shop/login [post]
//	@Router			/v1/api/shop/signin [post]
func (h *ShopHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}

	res, err := h.Credentials.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authResponse{Shop: res.Shop, Tokens: res.Tokens})
}

// HandleRefresh serves POST /v1/api/shop/refresh. The refresh token comes
// from the x-rtoken-id header or, failing that, the JSON body.
//
//	@Summary		Rotate the refresh token
//	@Description	Exchange the current refresh token for a new pair. Presenting an already rotated token revokes every session of the shop.
//	@Tags			Shop
//	@Accept			json
//	@Produce		json
//	@Param			x-client-id	header		string				true	"Shop id"
//	@Param			x-rtoken-id	header		string				false	"Refresh token"
//	@Param			body		body		refreshRequest		false	"Refresh token when the header is absent"
//	@Success		200			{object}	refreshResponse
//	@Failure		400			{object}	httpx.ErrorBody	"Bad Request"
//	@Failure		401			{object}	httpx.ErrorBody	"Unauthorized"
//	@Failure		403			{object}	httpx.ErrorBody	"Refresh token reused"
//	@Failure		404			{object}	httpx.ErrorBody	"Not registered"
//	@Failure		429			{object}	httpx.ErrorBody	"Too Many Requests"
//	@Failure		500			{object}	httpx.ErrorBody	"Internal Server Error"
//	@Router			/v1/api/shop/refresh [post]
//	@Router			/v1/api/shop/handlerRefreshToken [post]
func (h *ShopHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.Header.Get(httpx.HeaderRefreshToken))
	if token == "" {
		var req refreshRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
			return
		}
		token = strings.TrimSpace(req.RefreshToken)
	}
	if token == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "refresh token is required")
		return
	}

	ctx := r.Context()
	shopID := strings.TrimSpace(r.Header.Get(httpx.HeaderClientID))

	sess, claims, err := h.Credentials.ResolveRefresh(ctx, shopID, token)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	ctx = withAuth(ctx, sess, claims)
	res, err := h.Credentials.Refresh(ctx, token, claims, sess)
	if err != nil {
		writeServiceError(w, r.WithContext(ctx), err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, refreshResponse{
		Shop:   tokenOwner{UserID: res.Claims.UserID, Email: res.Claims.Email},
		Tokens: res.Tokens,
	})
}

// HandleLogout serves POST /v1/api/shop/logout. It needs AuthnMiddleware.
//
//	@Summary		Log out
//	@Description	Delete the caller's session.
//	@Tags			Shop
//	@Produce		json
//	@Param			x-client-id	header		string	true	"Shop id"
//	@Success		200			{object}	logoutResponse
//	@Failure		401			{object}	httpx.ErrorBody	"Unauthorized"
//	@Failure		429			{object}	httpx.ErrorBody	"Too Many Requests"
//	@Failure		500			{object}	httpx.ErrorBody	"Internal Server Error"
//	@Security		BearerAuth
//	@Router			/v1/api/shop/logout [post]
func (h *ShopHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	sess, ok := SessionFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "authentication_failed", "authentication required")
		return
	}

	deleted, err := h.Credentials.Logout(r.Context(), sess)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, logoutResponse{Deleted: deleted})
}
