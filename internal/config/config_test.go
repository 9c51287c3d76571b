package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{"PORT", "DB_PATH", "ENVIRONMENT", "LOG_LEVEL", "MISMATCH_TOLERANCE",
		"RECON_WORKERS", "SEED_RATE_CARDS", "MAX_UPLOAD_MB"} {
		t.Setenv(k, "")
	}

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 32, cfg.Server.MaxUploadMB)
	assert.Equal(t, "testdata/ratecards.csv", cfg.Server.SeedRateCard)
	assert.Equal(t, "reconciler.db", cfg.Database.Path)
	assert.Equal(t, "1", cfg.Reconcile.Tolerance.String())
	assert.Equal(t, 8, cfg.Reconcile.Workers)
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.False(t, cfg.Logger.Production())
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("MISMATCH_TOLERANCE", "0.50")
	t.Setenv("RECON_WORKERS", "4")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "0.5", cfg.Reconcile.Tolerance.String())
	assert.Equal(t, 4, cfg.Reconcile.Workers)
	assert.True(t, cfg.Logger.Production())
}

func TestLoadFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{"negative tolerance", "MISMATCH_TOLERANCE", "-1", "MISMATCH_TOLERANCE"},
		{"zero workers", "RECON_WORKERS", "0", "RECON_WORKERS"},
		{"port out of range", "PORT", "70000", "PORT"},
		{"unknown log level", "LOG_LEVEL", "verbose", "LOG_LEVEL"},
		{"workers not a number", "RECON_WORKERS", "not-a-number", "RECON_WORKERS"},
		{"mistyped tolerance", "MISMATCH_TOLERANCE", "1,0o", "MISMATCH_TOLERANCE"},
		{"port not a number", "PORT", "80a", "PORT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := LoadFromEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFromEnv_ReportsEveryUnparseableVariable(t *testing.T) {
	t.Setenv("MISMATCH_TOLERANCE", "ten")
	t.Setenv("MAX_UPLOAD_MB", "32MB")

	_, err := LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `MISMATCH_TOLERANCE: "ten"`)
	assert.Contains(t, err.Error(), `MAX_UPLOAD_MB: "32MB"`)
}
