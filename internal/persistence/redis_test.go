package persistence

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/account-service/internal/config"
)

func TestNewRedis(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled", func(t *testing.T) {
		r := NewRedis(ctx, config.RedisConfig{Enabled: false, Addr: "127.0.0.1:6379"}, zap.NewNop())
		assert.Nil(t, r.Client)
		assert.Error(t, r.Ping(ctx))
		r.Close()
	})

	t.Run("connected", func(t *testing.T) {
		mr := miniredis.RunT(t)
		r := NewRedis(ctx, config.RedisConfig{Enabled: true, Addr: mr.Addr()}, zap.NewNop())
		defer r.Close()

		require.NotNil(t, r.Client)
		assert.NoError(t, r.Ping(ctx))
	})
}

func TestPostgresWithoutDSN(t *testing.T) {
	pg, err := NewPostgres(context.Background(), config.PostgresConfig{}, zap.NewNop())
	require.NoError(t, err)

	assert.False(t, pg.Enabled())
	assert.Nil(t, pg.PoolHandle())
	assert.Error(t, pg.Ping(context.Background()))
	assert.NoError(t, RunMigrations(context.Background(), pg.PoolHandle(), zap.NewNop()))
	pg.Close()
}
