package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/aussiebroadwan/shopauth/internal/auth/audit"
	"github.com/aussiebroadwan/shopauth/internal/auth/domain"
	"github.com/aussiebroadwan/shopauth/internal/auth/store"
	"github.com/aussiebroadwan/shopauth/pkg/cryptox"
	"github.com/aussiebroadwan/shopauth/pkg/idx"
	"github.com/aussiebroadwan/shopauth/pkg/jwtx"
	"github.com/aussiebroadwan/shopauth/pkg/slogx"
)

const (
	MinPasswordLength = 8
	MaxPasswordLength = 128
	MaxNameLength     = 100
)

// CredentialService runs signup, login, refresh rotation and logout for
// shops. Each successful login or signup gets its own key pair; refresh keeps
// signing with the pair of the session it rotates.
type CredentialService struct {
	Shops    store.Shops
	Sessions store.Sessions

	Keys   cryptox.KeyGenerator
	Codec  *jwtx.Codec
	Sealer *cryptox.Sealer
	Hasher cryptox.PasswordHasher

	// Policy applies when a shop that already has a session logs in.
	// Empty means domain.SessionReplace.
	Policy domain.SessionPolicy

	// Events is optional.
	Events audit.Publisher

	Now func() time.Time
}

type SignUpInput struct {
	Name     string
	Email    string
	Password string
}

// AuthResult is returned by SignUp and Login.
type AuthResult struct {
	Shop   domain.ShopSummary
	Tokens jwtx.Pair
}

// RefreshResult is returned by Refresh.
type RefreshResult struct {
	Claims jwtx.Claims
	Tokens jwtx.Pair
}

func (s *CredentialService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *CredentialService) policy() domain.SessionPolicy {
	if s.Policy == "" {
		return domain.SessionReplace
	}
	return s.Policy
}

// SignUp registers a new shop and opens its first session.
//
// The shop and the session are written separately. If the session cannot be
// stored the shop stays registered and ErrSessionPersist is returned; a later
// Login recovers.
func (s *CredentialService) SignUp(ctx context.Context, in SignUpInput) (*AuthResult, error) {
	l := slogx.FromContext(ctx)

	name := strings.TrimSpace(in.Name)
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if name == "" || len(name) > MaxNameLength {
		return nil, fmt.Errorf("%w: name must be 1-%d characters", ErrInvalidInput, MaxNameLength)
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}

	exists, err := s.Shops.ShopExistsByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if exists {
		return nil, ErrAlreadyRegistered
	}

	hash, err := s.Hasher.Hash(in.Password)
	if err != nil {
		l.Error("failed to hash password", slog.Any("error", err))
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	shop := domain.Shop{
		ID:           idx.NewAt(now).String(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Status:       domain.ShopActive,
		Roles:        []domain.Role{domain.RoleShop},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.Shops.CreateShop(ctx, shop); err != nil {
		// Lost a race with a concurrent signup for the same email.
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, ErrAlreadyRegistered
		}
		return nil, fmt.Errorf("create shop: %w", err)
	}

	l = l.With(slog.String("shop_id", shop.ID))
	tokens, sess, err := s.openSession(ctx, shop, now)
	if err != nil {
		l.Error("shop created but session not opened", slog.Any("error", err))
		return nil, err
	}

	l.Info("shop signed up", slog.String("session_id", sess.ID))
	s.publish(ctx, audit.ShopSignedUp, shop.ID, sess.ID, now)

	return &AuthResult{Shop: shop.Summary(), Tokens: tokens}, nil
}

// Login verifies the password and opens a new session for the shop. Under
// the replace policy any previous session and its refresh history is
// discarded.
func (s *CredentialService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	l := slogx.FromContext(ctx)

	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if password == "" {
		return nil, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}

	shop, err := s.Shops.GetShopByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotRegistered
		}
		return nil, fmt.Errorf("load shop: %w", err)
	}

	if err := s.Hasher.Verify(password, shop.PasswordHash); err != nil {
		if !errors.Is(err, cryptox.ErrPasswordMismatch) {
			l.Error("stored password hash unusable", slog.String("shop_id", shop.ID), slog.Any("error", err))
		}
		return nil, ErrAuthentication
	}
	if shop.Status != domain.ShopActive {
		l.Info("login for inactive shop", slog.String("shop_id", shop.ID))
		return nil, ErrAuthentication
	}

	now := s.now()
	tokens, sess, err := s.openSession(ctx, shop, now)
	if err != nil {
		return nil, err
	}

	l.Info("shop logged in", slog.String("shop_id", shop.ID), slog.String("session_id", sess.ID))
	s.publish(ctx, audit.ShopLoggedIn, shop.ID, sess.ID, now)

	return &AuthResult{Shop: shop.Summary(), Tokens: tokens}, nil
}

// Refresh redeems presented, the refresh token the shop sent, against
// session, and returns a new pair signed with the session's key.
//
// A token found in the used set is a replay: every session of the shop is
// deleted and ErrReuseDetected is returned. A token that is neither current
// nor used gives ErrStaleToken with no side effects, and so does losing a
// rotation race to a concurrent refresh.
func (s *CredentialService) Refresh(ctx context.Context, presented string, claims jwtx.Claims, session domain.Session) (*RefreshResult, error) {
	l := slogx.FromContext(ctx).With(slog.String("shop_id", claims.UserID), slog.String("session_id", session.ID))

	if claims.UserID == "" || claims.UserID != session.ShopID {
		return nil, fmt.Errorf("%w: token subject does not own session", jwtx.ErrInvalidToken)
	}

	fp := cryptox.FingerprintToken(presented)
	now := s.now()

	if session.WasUsed(fp) {
		n, err := s.Sessions.DeleteSessionsByShopID(ctx, claims.UserID)
		if err != nil {
			l.Error("refresh token reuse detected, session wipe failed", slog.Any("error", err))
			return nil, fmt.Errorf("%w: wipe sessions: %w", ErrReuseDetected, err)
		}
		l.Warn("refresh token reuse detected, sessions revoked", slog.Int("revoked", n))
		s.publish(ctx, audit.SessionReuseDetected, claims.UserID, session.ID, now)
		return nil, ErrReuseDetected
	}

	if !session.IsCurrent(fp) {
		l.Info("stale refresh token presented")
		return nil, ErrStaleToken
	}

	shop, err := s.Shops.GetShopByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotRegistered
		}
		return nil, fmt.Errorf("load shop: %w", err)
	}

	priv, err := s.Sealer.Open(session.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("open session key: %w", err)
	}
	tokens, err := s.Codec.Issue(jwtx.Identity{UserID: shop.ID, Email: shop.Email}, cryptox.KeyPair{
		Algorithm:  session.Algorithm,
		PublicKey:  session.PublicKey,
		PrivateKey: priv,
	})
	if err != nil {
		return nil, err
	}

	err = s.Sessions.RotateRefreshToken(ctx, session.ID, fp, cryptox.FingerprintToken(tokens.RefreshToken), tokens.RefreshExpiresAt)
	if err != nil {
		if errors.Is(err, store.ErrRotationConflict) {
			l.Info("refresh lost rotation race")
			return nil, ErrStaleToken
		}
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}

	l.Debug("refresh token rotated")
	s.publish(ctx, audit.SessionRotated, shop.ID, session.ID, now)

	return &RefreshResult{Claims: claims, Tokens: tokens}, nil
}

// Logout deletes session. It reports false when the session was already
// gone.
func (s *CredentialService) Logout(ctx context.Context, session domain.Session) (bool, error) {
	deleted, err := s.Sessions.DeleteSessionByID(ctx, session.ID)
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	if deleted {
		slogx.FromContext(ctx).Info("shop logged out",
			slog.String("shop_id", session.ShopID), slog.String("session_id", session.ID))
		s.publish(ctx, audit.SessionLoggedOut, session.ShopID, session.ID, s.now())
	}
	return deleted, nil
}

// Authenticate loads the session of shopID and verifies accessToken against
// its public key.
func (s *CredentialService) Authenticate(ctx context.Context, shopID, accessToken string) (domain.Session, jwtx.Claims, error) {
	return s.resolve(ctx, shopID, accessToken, jwtx.UseAccess)
}

// ResolveRefresh is Authenticate for refresh tokens. The returned session
// and claims feed Refresh.
func (s *CredentialService) ResolveRefresh(ctx context.Context, shopID, refreshToken string) (domain.Session, jwtx.Claims, error) {
	return s.resolve(ctx, shopID, refreshToken, jwtx.UseRefresh)
}

func (s *CredentialService) resolve(ctx context.Context, shopID, token, use string) (domain.Session, jwtx.Claims, error) {
	shopID = strings.TrimSpace(shopID)
	if shopID == "" || token == "" {
		return domain.Session{}, jwtx.Claims{}, fmt.Errorf("%w: missing credentials", ErrAuthentication)
	}

	sess, err := s.Sessions.GetSessionByShopID(ctx, shopID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Session{}, jwtx.Claims{}, fmt.Errorf("%w: no session", ErrAuthentication)
		}
		return domain.Session{}, jwtx.Claims{}, fmt.Errorf("load session: %w", err)
	}

	claims, err := s.Codec.VerifyAs(token, sess.PublicKey, use)
	if err != nil {
		return domain.Session{}, jwtx.Claims{}, err
	}
	if claims.UserID != shopID {
		return domain.Session{}, jwtx.Claims{}, fmt.Errorf("%w: client id does not match token", ErrAuthentication)
	}
	return sess, claims, nil
}

// openSession generates a key pair, issues the first token pair and stores
// the session according to the policy.
func (s *CredentialService) openSession(ctx context.Context, shop domain.Shop, now time.Time) (jwtx.Pair, domain.Session, error) {
	keys := s.Keys.Generate()

	tokens, err := s.Codec.Issue(jwtx.Identity{UserID: shop.ID, Email: shop.Email}, keys)
	if err != nil {
		return jwtx.Pair{}, domain.Session{}, err
	}

	sealed, err := s.Sealer.Seal(keys.PrivateKey)
	if err != nil {
		return jwtx.Pair{}, domain.Session{}, fmt.Errorf("%w: seal key: %w", ErrSessionPersist, err)
	}

	sess := domain.Session{
		ID:               idx.NewAt(now).String(),
		ShopID:           shop.ID,
		Algorithm:        keys.Algorithm,
		PublicKey:        keys.PublicKey,
		PrivateKey:       sealed,
		RefreshTokenHash: cryptox.FingerprintToken(tokens.RefreshToken),
		ExpiresAt:        tokens.RefreshExpiresAt,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	var saved domain.Session
	switch s.policy() {
	case domain.SessionReject:
		saved, err = s.Sessions.CreateSession(ctx, sess)
		if errors.Is(err, store.ErrSessionExists) && s.dropExpired(ctx, shop.ID, now) {
			saved, err = s.Sessions.CreateSession(ctx, sess)
		}
		if errors.Is(err, store.ErrSessionExists) {
			return jwtx.Pair{}, domain.Session{}, ErrSessionExists
		}
	default:
		saved, err = s.Sessions.UpsertSession(ctx, sess)
	}
	if err != nil {
		return jwtx.Pair{}, domain.Session{}, fmt.Errorf("%w: %w", ErrSessionPersist, err)
	}
	return tokens, saved, nil
}

// dropExpired deletes the shop's session if it has expired, so a reject
// policy does not lock a shop out once its refresh token has lapsed.
func (s *CredentialService) dropExpired(ctx context.Context, shopID string, now time.Time) bool {
	old, err := s.Sessions.GetSessionByShopID(ctx, shopID)
	if err != nil || !old.Expired(now) {
		return false
	}
	deleted, err := s.Sessions.DeleteSessionByID(ctx, old.ID)
	return err == nil && deleted
}

func (s *CredentialService) publish(ctx context.Context, typ audit.EventType, shopID, sessionID string, at time.Time) {
	if s.Events == nil {
		return
	}
	if err := s.Events.Publish(ctx, audit.NewEvent(typ, shopID, sessionID, at)); err != nil {
		slogx.FromContext(ctx).Warn("failed to publish audit event",
			slog.String("event_type", string(typ)), slog.Any("error", err))
	}
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: email is malformed", ErrInvalidInput)
	}
	return email, nil
}

func validatePassword(pw string) error {
	if len(pw) < MinPasswordLength || len(pw) > MaxPasswordLength {
		return fmt.Errorf("%w: password must be %d-%d characters", ErrInvalidInput, MinPasswordLength, MaxPasswordLength)
	}
	return nil
}
