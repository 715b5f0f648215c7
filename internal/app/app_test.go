package app

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-dispatch/internal/config"
	"github.com/ignite/campaign-dispatch/internal/domain"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Checkpoint.Driver = "memory"
	cfg.OAuth.RefreshToken = "refresh-123"
	cfg.Transport.FromEmail = "news@example.com"
	return cfg
}

func TestBuild_Gmail(t *testing.T) {
	a, err := Build(context.Background(), testConfig())
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.Session)
	assert.NotNil(t, a.Monitor)
	assert.Nil(t, a.Redis)
	assert.Nil(t, a.DB)
	assert.False(t, a.Session.IsLoading())
	assert.Equal(t, domain.CampaignIdle, a.Session.Status())
}

func TestBuild_GmailNeedsRefreshToken(t *testing.T) {
	cfg := testConfig()
	cfg.OAuth.RefreshToken = ""
	_, err := Build(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrMissingRefreshToken)
}

func TestBuild_SESUsesStaticCredential(t *testing.T) {
	cfg := testConfig()
	cfg.OAuth.RefreshToken = ""
	cfg.Transport.Provider = "ses"
	cfg.Transport.SES.AccessKey = "AKIDEXAMPLE"
	cfg.Transport.SES.SecretKey = "secret"

	a, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	cred, err := a.Monitor.Ensure(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "aws-sigv4", cred)
}

func TestBuild_RedisBackendEnablesLock(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.Checkpoint.Driver = "redis"
	cfg.Checkpoint.RedisURL = "redis://" + mr.Addr()
	cfg.Lock.Enabled = true

	a, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.Redis)
	a.LogSavedCampaign(context.Background())
}

func TestBuild_UnknownDriver(t *testing.T) {
	cfg := testConfig()
	cfg.Checkpoint.Driver = "cassandra"
	_, err := Build(context.Background(), cfg)
	assert.Error(t, err)
}

func TestBuild_UnknownProvider(t *testing.T) {
	cfg := testConfig()
	cfg.Transport.Provider = "pigeon"
	_, err := Build(context.Background(), cfg)
	assert.Error(t, err)
}
