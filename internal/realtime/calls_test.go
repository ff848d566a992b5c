package realtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kazak5205/mebelplace-sub009/internal/modules/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisCallStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewRedisCallStore(newTestRedis(t), time.Minute)
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	c := &Call{ChatID: 4, CallerID: 1, CalleeID: 2, CallType: "audio", CreatedAt: start}
	require.NoError(t, store.Create(ctx, c))
	require.NotEmpty(t, c.ID)
	assert.Equal(t, CallRinging, c.Status)

	err := store.Create(ctx, &Call{ID: c.ID})
	assert.True(t, errors.Is(err, service.ErrInvalidTransition))

	got, err := store.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.CalleeID)
	assert.Zero(t, got.Duration(start.Add(time.Minute)))

	answered, err := store.Answer(ctx, c.ID, start.Add(5*time.Second))
	require.NoError(t, err)
	assert.Equal(t, CallActive, answered.Status)

	_, err = store.Answer(ctx, c.ID, start.Add(6*time.Second))
	assert.True(t, errors.Is(err, service.ErrInvalidTransition))

	removed, err := store.Remove(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(40), removed.Duration(start.Add(45*time.Second)))

	for _, op := range []func() error{
		func() error { _, err := store.Get(ctx, c.ID); return err },
		func() error { _, err := store.Answer(ctx, c.ID, start); return err },
		func() error { _, err := store.Remove(ctx, c.ID); return err },
	} {
		assert.True(t, errors.Is(op(), service.ErrNotFound))
	}
}

func TestCall_IsParty(t *testing.T) {
	c := &Call{CallerID: 1, CalleeID: 2}
	assert.True(t, c.IsParty(1))
	assert.True(t, c.IsParty(2))
	assert.False(t, c.IsParty(3))
}
