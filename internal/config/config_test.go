package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "secret")
		t.Setenv("DATABASE_URL", "")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "8080", cfg.ServerPort)
		assert.Equal(t, TrashStoreBadger, cfg.TrashStore)
		assert.Equal(t, 30*24*time.Hour, cfg.TrashRetention)
		assert.Equal(t, "sha256", cfg.ChecksumAlgorithm)
		assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
		assert.True(t, cfg.MetricsEnabled)
	})

	t.Run("overrides", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "secret")
		t.Setenv("TRASH_RETENTION", "48h")
		t.Setenv("CHECKSUM_ALGORITHM", "BLAKE2B")
		t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
		t.Setenv("METRICS_ENABLED", "false")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 48*time.Hour, cfg.TrashRetention)
		assert.Equal(t, "blake2b", cfg.ChecksumAlgorithm)
		assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
		assert.False(t, cfg.MetricsEnabled)
	})

	t.Run("missing secret", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "")

		_, err := Load()
		require.ErrorContains(t, err, "JWT_SECRET")
	})

	t.Run("postgres trash needs a database", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "secret")
		t.Setenv("DATABASE_URL", "")
		t.Setenv("TRASH_STORE", "postgres")

		_, err := Load()
		require.ErrorContains(t, err, "DATABASE_URL")
	})

	t.Run("unknown checksum algorithm", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "secret")
		t.Setenv("CHECKSUM_ALGORITHM", "md5")

		_, err := Load()
		require.ErrorContains(t, err, "CHECKSUM_ALGORITHM")
	})
}
