package bootstrap

import (
	"context"
	"testing"

	"github.com/kazak5205/mebelplace-sub009/internal/config"
	"github.com/kazak5205/mebelplace-sub009/internal/infra/db/dbtest"
	"github.com/kazak5205/mebelplace-sub009/internal/modules/repo"
	"github.com/kazak5205/mebelplace-sub009/internal/pkg/keys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestEnsureRootServiceKey(t *testing.T) {
	ctx := context.Background()
	keyRepo := repo.NewServiceKeyRepo(dbtest.New(t))
	cfg := &config.Config{Auth: config.AuthCfg{
		ServiceKeyPrefix: "sk-mp-",
		SecretPepper:     "pepper",
		RootServiceKey:   "sk-mp-first",
	}}

	// created
	require.NoError(t, EnsureRootServiceKey(ctx, keyRepo, cfg, zap.NewNop()))
	root, err := keyRepo.GetRoot(ctx)
	require.NoError(t, err)
	assert.Equal(t, keys.Lookup("pepper", "first"), root.SecretKeyHMAC)
	ok, err := keys.Verify("first", "pepper", root.SecretKeyHashPHC)
	require.NoError(t, err)
	assert.True(t, ok)

	// unchanged secret keeps the row
	require.NoError(t, EnsureRootServiceKey(ctx, keyRepo, cfg, zap.NewNop()))
	again, err := keyRepo.GetRoot(ctx)
	require.NoError(t, err)
	assert.Equal(t, root.ID, again.ID)
	assert.Equal(t, root.SecretKeyHashPHC, again.SecretKeyHashPHC)

	// rotated
	cfg.Auth.RootServiceKey = "sk-mp-second"
	require.NoError(t, EnsureRootServiceKey(ctx, keyRepo, cfg, zap.NewNop()))
	rotated, err := keyRepo.GetByHMAC(ctx, keys.Lookup("pepper", "second"))
	require.NoError(t, err)
	assert.Equal(t, root.ID, rotated.ID)
	assert.True(t, rotated.IsRoot)
}

func TestEnsureRootServiceKey_NotConfigured(t *testing.T) {
	keyRepo := repo.NewServiceKeyRepo(dbtest.New(t))
	require.NoError(t, EnsureRootServiceKey(context.Background(), keyRepo, &config.Config{}, zap.NewNop()))
	_, err := keyRepo.GetRoot(context.Background())
	assert.Error(t, err)
}
