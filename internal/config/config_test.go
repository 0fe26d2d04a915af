package config

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
server:
  port: 9090
jwt:
  signing_key: dev-signing-key
crypto:
  secret: dev-secret
verification:
  base_url: https://verify.example.com/v/
templates:
  classic:
    size: 400
  brand:
    size: 300
    foreground_color: "#1d3557"
default_template: brand
usage:
  monthly_limit: 500
batch:
  lock_wait: 3s
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("Should read the file and fill defaults", func(t *testing.T) {
		cfg, err := Load(writeFile(t, "config.yaml", sampleYAML))
		require.NoError(t, err)

		assert.Equal(t, 9090, cfg.Server.Port)
		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, "memory", cfg.State.Backend)
		assert.Equal(t, "brand", cfg.DefaultTemplate)
		assert.Equal(t, 300, cfg.Templates["brand"].Size)
		assert.Equal(t, "#1d3557", cfg.Templates["brand"].ForegroundColor)
		assert.Equal(t, 400, cfg.Templates["classic"].Size)
		assert.Equal(t, int64(500), cfg.Usage.MonthlyLimit)
		assert.Zero(t, cfg.Usage.LifetimeLimit)
		assert.Equal(t, 3*time.Second, cfg.Batch.LockWait)
		assert.Equal(t, 1000, cfg.Batch.MaxSize)
		assert.Equal(t, time.Hour, cfg.JWT.AccessTokenTTL)
	})

	t.Run("Should let the environment override the file", func(t *testing.T) {
		t.Setenv("SERVER_PORT", "7070")
		t.Setenv("CRYPTO_SECRET", "from-env")
		t.Setenv("STATE_BACKEND", "redis")

		cfg, err := Load(writeFile(t, "config.yaml", sampleYAML))
		require.NoError(t, err)
		assert.Equal(t, 7070, cfg.Server.Port)
		assert.Equal(t, "from-env", cfg.Crypto.Secret)
		assert.Equal(t, "redis", cfg.State.Backend)
	})

	t.Run("Should run from the environment alone when the file is missing", func(t *testing.T) {
		t.Setenv("CRYPTO_SECRET", "s")
		t.Setenv("JWT_SIGNING_KEY", "k")
		t.Setenv("VERIFICATION_BASE_URL", "https://verify.example.com/v/")

		cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.NoError(t, err)
		assert.Equal(t, "classic", cfg.DefaultTemplate)
		assert.Equal(t, 512, cfg.Templates["classic"].Size)
	})

	t.Run("Should report every missing required setting", func(t *testing.T) {
		_, err := Load(writeFile(t, "config.yaml", "server:\n  port: 1\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "crypto.secret")
		assert.Contains(t, err.Error(), "jwt.signing_key")
		assert.Contains(t, err.Error(), "verification.base_url")
	})

	t.Run("Should reject an unknown state backend", func(t *testing.T) {
		t.Setenv("STATE_BACKEND", "etcd")
		_, err := Load(writeFile(t, "config.yaml", sampleYAML))
		assert.ErrorContains(t, err, "state.backend")
	})
}

func TestLoadDotEnv(t *testing.T) {
	t.Run("Should export variables from the file", func(t *testing.T) {
		path := writeFile(t, ".env", "CODEHUB_DOTENV_PROBE=loaded\n")
		t.Cleanup(func() { _ = os.Unsetenv("CODEHUB_DOTENV_PROBE") })

		ok, err := LoadDotEnv(path)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "loaded", os.Getenv("CODEHUB_DOTENV_PROBE"))
	})

	t.Run("Should ignore a missing file", func(t *testing.T) {
		ok, err := LoadDotEnv(filepath.Join(t.TempDir(), ".env"))
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestRenderTemplates(t *testing.T) {
	t.Run("Should share the configured logo", func(t *testing.T) {
		logoPath := filepath.Join(t.TempDir(), "logo.png")
		img := image.NewRGBA(image.Rect(0, 0, 8, 8))
		img.Set(1, 1, color.RGBA{R: 255, A: 255})
		f, err := os.Create(logoPath)
		require.NoError(t, err)
		require.NoError(t, png.Encode(f, img))
		require.NoError(t, f.Close())

		cfg := &Config{
			Render: RenderConfig{LogoPath: logoPath},
			Templates: map[string]TemplateConfig{
				"plain": {Size: 256},
				"logo":  {Size: 512, Logo: true, LogoRatio: 0.25},
			},
		}
		opts, err := cfg.RenderTemplates()
		require.NoError(t, err)
		assert.Nil(t, opts["plain"].Logo)
		require.NotNil(t, opts["logo"].Logo)
		assert.Equal(t, 0.25, opts["logo"].LogoRatio)
		assert.Equal(t, 512, opts["logo"].Size)
	})

	t.Run("Should fail when a logo template has no logo path", func(t *testing.T) {
		cfg := &Config{Templates: map[string]TemplateConfig{"logo": {Logo: true}}}
		_, err := cfg.RenderTemplates()
		assert.Error(t, err)
	})
}
