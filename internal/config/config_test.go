package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		MerchantID:    "merchant-1",
		Password:      "pass-1",
		SSLMerchantID: "ssl-merchant-1",
		SSLPassword:   "ssl-pass-1",
		NotifyURL:     "https://shop.example/notify",
		TokenFlow:     FlowMandate,
		ListenAddr:    ":8080",
	}
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidateRejectsMissingFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "missing merchant id", mutate: func(c *Config) { c.MerchantID = "" }},
		{name: "missing password", mutate: func(c *Config) { c.Password = "" }},
		{name: "missing ssl merchant id", mutate: func(c *Config) { c.SSLMerchantID = "" }},
		{name: "missing ssl password", mutate: func(c *Config) { c.SSLPassword = "" }},
		{name: "missing notify url", mutate: func(c *Config) { c.NotifyURL = "" }},
		{name: "malformed notify url", mutate: func(c *Config) { c.NotifyURL = "not a url" }},
		{name: "unknown token flow", mutate: func(c *Config) { c.TokenFlow = "hybrid" }},
		{name: "missing listen addr", mutate: func(c *Config) { c.ListenAddr = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PAYPLACE_MERCHANT_ID", "merchant-1")
	t.Setenv("PAYPLACE_PASSWORD", "pass-1")
	t.Setenv("PAYPLACE_SSL_MERCHANT_ID", "ssl-merchant-1")
	t.Setenv("PAYPLACE_SSL_PASSWORD", "ssl-pass-1")
	t.Setenv("PAYPLACE_NOTIFY_URL", "https://shop.example/notify")
	t.Setenv("PAYPLACE_SANDBOX", "false")
	t.Setenv("PAYPLACE_TOKEN_FLOW", "legacy")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "merchant-1", cfg.MerchantID)
	assert.False(t, cfg.Sandbox)
	assert.True(t, cfg.Use3DSecure, "3-D Secure defaults on")
	assert.Equal(t, FlowLegacy, cfg.TokenFlow)
	assert.Equal(t, ServerAddr, cfg.ListenAddr)
}

func TestLoadDefaultsToMandateFlowAndSandbox(t *testing.T) {
	t.Setenv("PAYPLACE_MERCHANT_ID", "merchant-1")
	t.Setenv("PAYPLACE_PASSWORD", "pass-1")
	t.Setenv("PAYPLACE_SSL_MERCHANT_ID", "ssl-merchant-1")
	t.Setenv("PAYPLACE_SSL_PASSWORD", "ssl-pass-1")
	t.Setenv("PAYPLACE_NOTIFY_URL", "https://shop.example/notify")
	t.Setenv("PAYPLACE_SANDBOX", "")
	t.Setenv("PAYPLACE_TOKEN_FLOW", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.Sandbox)
	assert.Equal(t, FlowMandate, cfg.TokenFlow)
}

func TestLoadRejectsMalformedBoolean(t *testing.T) {
	t.Setenv("PAYPLACE_MERCHANT_ID", "merchant-1")
	t.Setenv("PAYPLACE_PASSWORD", "pass-1")
	t.Setenv("PAYPLACE_SSL_MERCHANT_ID", "ssl-merchant-1")
	t.Setenv("PAYPLACE_SSL_PASSWORD", "ssl-pass-1")
	t.Setenv("PAYPLACE_NOTIFY_URL", "https://shop.example/notify")
	t.Setenv("PAYPLACE_SANDBOX", "maybe")

	_, err := Load()
	assert.ErrorContains(t, err, "PAYPLACE_SANDBOX")
}
