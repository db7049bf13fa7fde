package app

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neuraltrade/tradecore/internal/config"
	"github.com/neuraltrade/tradecore/internal/domain"
)

func standaloneConfig() config.Config {
	cfg := config.Defaults()
	cfg.Mode = "standalone"
	cfg.Engine.Backend = "memory"
	cfg.Admin.Owner = "0x00000000000000000000000000000000000000aa"
	cfg.Admin.APIToken = "test-token"
	cfg.Rebalance.QuoteToken = "0x00000000000000000000000000000000000000cc"
	return cfg
}

func TestWireStandaloneUsesMemoryBackends(t *testing.T) {
	cfg := standaloneConfig()
	require.NoError(t, cfg.Validate())

	deps, cleanup, err := Wire(context.Background(), &cfg)
	require.NoError(t, err)
	defer cleanup()

	assert.Equal(t, "test-token", deps.APIToken)
	assert.NotNil(t, deps.Positions)
	assert.NotNil(t, deps.Trades)
	assert.NotNil(t, deps.Bus)
	assert.NotNil(t, deps.Prices)
	assert.NotNil(t, deps.PricePoster)
	assert.Nil(t, deps.Requests, "rate limiting needs a redis backend")
	assert.Nil(t, deps.Archiver, "archival is off by default")
	assert.Empty(t, deps.Health, "no external dependencies to ping")
}

func TestBuildServicesSeedsPolicyDefaults(t *testing.T) {
	cfg := standaloneConfig()
	deps, cleanup, err := Wire(context.Background(), &cfg)
	require.NoError(t, err)
	defer cleanup()

	a := New(&cfg, slog.New(slog.DiscardHandler))
	svc, err := a.buildServices(context.Background(), deps)
	require.NoError(t, err)

	require.NotNil(t, svc.engine)
	require.NotNil(t, svc.rebalance)
	assert.False(t, svc.admin.Paused())

	for _, strategy := range domain.Strategies {
		_, err := deps.Policies.GetDefault(context.Background(), strategy)
		assert.NoError(t, err, "default policy for %s", strategy)
	}
}

func TestWireRejectsMissingToken(t *testing.T) {
	cfg := standaloneConfig()
	cfg.Admin.APIToken = ""

	_, _, err := Wire(context.Background(), &cfg)
	require.Error(t, err)
}
