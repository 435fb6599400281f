package app

import (
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/shopauth/internal/auth/audit"
	"github.com/aussiebroadwan/shopauth/internal/auth/service"
	"github.com/aussiebroadwan/shopauth/internal/auth/store"
	"github.com/aussiebroadwan/shopauth/pkg/cryptox"
	"github.com/aussiebroadwan/shopauth/pkg/jwtx"
)

// InitCredentials builds the credential service from cfg.
//
// Signing keys are generated per session, so the only long-lived secrets are
// the master key that seals session private keys and the password pepper:
//   - master key: AUTH_MASTER_KEY_PATH, else AUTH_MASTER_KEY, else a random
//     key held in memory. With a random key every stored session becomes
//     unusable on restart and shops have to log in again.
//   - pepper: AUTH_PEPPER_FILE, created on first start.
func InitCredentials(
	cfg Config,
	shops store.Shops,
	sessions store.Sessions,
	events audit.Publisher,
	logger *slog.Logger,
) (*service.CredentialService, error) {
	sealer, ephemeral, err := cryptox.LoadSealer(cfg.MasterKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load master key: %w", err)
	}
	if ephemeral {
		logger.Warn("no master key configured, using an ephemeral one; sessions will not survive a restart")
	} else {
		logger.Info("master key loaded")
	}

	pepper, err := cryptox.LoadPepper(cfg.PepperFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load pepper: %w", err)
	}

	codec := jwtx.NewCodec(cfg.Issuer)
	codec.AccessTTL = cfg.AccessTTL
	codec.RefreshTTL = cfg.RefreshTTL

	logger.Info("credential service configured",
		"algorithm", cfg.Algorithm,
		"issuer", cfg.Issuer,
		"access_ttl", cfg.AccessTTL,
		"refresh_ttl", cfg.RefreshTTL,
		"session_policy", cfg.SessionPolicy,
	)

	return &service.CredentialService{
		Shops:    shops,
		Sessions: sessions,
		Keys:     cryptox.KeyGenerator{Algorithm: cfg.Algorithm, RSABits: cfg.RSABits},
		Codec:    codec,
		Sealer:   sealer,
		Hasher:   cryptox.PasswordHasher{Pepper: pepper},
		Policy:   cfg.SessionPolicy,
		Events:   events,
	}, nil
}
