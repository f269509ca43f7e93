package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"JWT_ACCESS_EXPIRATION", "JWT_RESET_EXPIRATION", "BCRYPT_COST", "REDIS_ADDR", "ENV"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 15*time.Minute, cfg.JWT.AccessLifetime)
	assert.Equal(t, 15*time.Minute, cfg.JWT.ResetLifetime)
	assert.Equal(t, 12, cfg.Security.BcryptCost)
	assert.Empty(t, cfg.Redis.Addr)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_ACCESS_EXPIRATION", "5m")
	t.Setenv("BCRYPT_COST", "11")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("ENV", "production")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.JWT.AccessLifetime)
	assert.Equal(t, 11, cfg.Security.BcryptCost)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.False(t, cfg.IsDevelopment())
}

func TestLoadRejectsBadLifetimes(t *testing.T) {
	tests := map[string]string{
		"unparseable": "soon",
		"negative":    "-1m",
	}

	for name, value := range tests {
		t.Run(name, func(t *testing.T) {
			t.Setenv("JWT_RESET_EXPIRATION", value)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestKeyMaterialRead(t *testing.T) {
	dir := t.TempDir()
	privPath := filepath.Join(dir, "private.pem")
	require.NoError(t, os.WriteFile(privPath, []byte("from-file"), 0o600))

	t.Run("inline wins over file", func(t *testing.T) {
		priv, pub, err := KeyMaterial{PrivateKey: "inline", PrivateKeyFile: privPath, PublicKey: "pub"}.Read()
		require.NoError(t, err)
		assert.Equal(t, "inline", string(priv))
		assert.Equal(t, "pub", string(pub))
	})

	t.Run("file", func(t *testing.T) {
		priv, _, err := KeyMaterial{PrivateKeyFile: privPath, PublicKey: "pub"}.Read()
		require.NoError(t, err)
		assert.Equal(t, "from-file", string(priv))
	})

	t.Run("missing public key", func(t *testing.T) {
		_, _, err := KeyMaterial{PrivateKey: "inline"}.Read()
		assert.True(t, errors.Is(err, ErrNoKeyMaterial))
	})

	t.Run("unreadable file", func(t *testing.T) {
		_, _, err := KeyMaterial{PrivateKeyFile: filepath.Join(dir, "absent.pem")}.Read()
		assert.Error(t, err)
	})

	assert.False(t, KeyMaterial{}.Configured())
}
