package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/ampere-erp/ampere-erp/internal/testing/guard"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("CSRF_SECRET", "secret")
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, []int64{1, 2}, cfg.PartnerIDs)
	assert.Equal(t, 120, cfg.RateLimitPerMinute)
	assert.Equal(t, 2*time.Minute, cfg.RestoreLockTTL)
	assert.False(t, cfg.IsProduction())

	group, err := cfg.Ownership()
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, group.IDs())
}

func TestLoadConfigRequiresCSRFSecret(t *testing.T) {
	t.Setenv("CSRF_SECRET", "")
	_, err := LoadConfig()
	require.Error(t, err)
}

func TestOwnershipRejectsMismatchedLists(t *testing.T) {
	cfg := &Config{
		PartnerIDs:            []int64{1, 2},
		PartnerDrawCategories: []string{"vale_gustavo"},
	}
	_, err := cfg.Ownership()
	require.Error(t, err)

	cfg.PartnerDrawCategories = []string{"vale_gustavo", "vale_giovanni"}
	cfg.PartnerWeights = []float64{1}
	_, err = cfg.Ownership()
	require.Error(t, err)

	cfg.PartnerWeights = nil
	group, err := cfg.Ownership()
	require.NoError(t, err)
	assert.Len(t, group.Partners(), 2)
}

func TestLocation(t *testing.T) {
	loc, err := (&Config{TimeZone: "America/Sao_Paulo"}).Location()
	require.NoError(t, err)
	assert.Equal(t, "America/Sao_Paulo", loc.String())

	loc, err = (&Config{}).Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	_, err = (&Config{TimeZone: "Mars/Olympus"}).Location()
	require.Error(t, err)
}

func TestLogLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", logLevel(&Config{LogLevel: "debug"}).String())
	assert.Equal(t, "WARN", logLevel(&Config{LogLevel: "WARNING"}).String())
	assert.Equal(t, "INFO", logLevel(nil).String())
}
