package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyAgainstEmbeddedSchema(t *testing.T) {
	t.Run("valid config passes", func(t *testing.T) {
		cfg := &Config{}
		cfg.setDefaults()
		err := VerifyAgainstEmbeddedSchema(cfg)
		require.NoError(t, err)
	})

	t.Run("missing listen fails", func(t *testing.T) {
		cfg := &Config{}
		cfg.Server.Timeout = 30 * time.Second
		cfg.HTTP.UserAgent = "Feedsmith/1.0"
		err := VerifyAgainstEmbeddedSchema(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "server.listen")
	})

	t.Run("missing user agent fails", func(t *testing.T) {
		cfg := &Config{}
		cfg.Server.Listen = ":8080"
		cfg.Server.Timeout = 30 * time.Second
		err := VerifyAgainstEmbeddedSchema(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "http.user_agent")
	})
}

func TestGenerateSchema(t *testing.T) {
	schema, err := GenerateSchema()
	require.NoError(t, err)
	require.NotNil(t, schema)
}
