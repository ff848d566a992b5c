package bootstrap

import (
	"context"
	"errors"

	"github.com/kazak5205/mebelplace-sub009/internal/config"
	"github.com/kazak5205/mebelplace-sub009/internal/modules/model"
	"github.com/kazak5205/mebelplace-sub009/internal/modules/repo"
	"github.com/kazak5205/mebelplace-sub009/internal/pkg/keys"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// EnsureRootServiceKey creates or realigns the root service key from
// auth.root_service_key when the service starts.
func EnsureRootServiceKey(ctx context.Context, keyRepo repo.ServiceKeyRepo, cfg *config.Config, log *zap.Logger) error {
	raw := cfg.Auth.RootServiceKey
	pepper := cfg.Auth.SecretPepper
	if raw == "" || pepper == "" {
		return nil
	}

	secret, ok := keys.Parse(raw, cfg.Auth.ServiceKeyPrefix)
	if !ok {
		secret = raw
	}
	lookup := keys.Lookup(pepper, secret)

	root, err := keyRepo.GetRoot(ctx)
	switch {
	case err == nil:
		if root.SecretKeyHMAC == lookup {
			log.Sugar().Infow("root service key exists", "key", root.ID)
			return nil
		}
		phc, err := keys.Hash(secret, pepper)
		if err != nil {
			return err
		}
		if err := keyRepo.UpdateSecret(ctx, root.ID, lookup, phc); err != nil {
			return err
		}
		log.Sugar().Infow("root service key rotated", "key", root.ID)
		return nil

	case errors.Is(err, gorm.ErrRecordNotFound):
		phc, err := keys.Hash(secret, pepper)
		if err != nil {
			return err
		}
		k := &model.ServiceKey{
			Name:             "root",
			SecretKeyHMAC:    lookup,
			SecretKeyHashPHC: phc,
			IsRoot:           true,
		}
		if err := keyRepo.Create(ctx, k); err != nil {
			return err
		}
		log.Sugar().Infow("root service key created", "key", k.ID)
		return nil

	default:
		return err
	}
}
