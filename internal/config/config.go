// Package config loads and validates the gateway options from the
// environment. A .env file is honored when present.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	// ServerAddr is the default HTTP listen address.
	ServerAddr = ":8080"

	// HealthWindowSize is the number of recent provider calls considered for
	// health calculation.
	HealthWindowSize = 50

	// HealthWindowDurationMinutes is the time window for health calculation.
	HealthWindowDurationMinutes = 10

	// DegradedThreshold is the success rate below which the provider is
	// reported degraded.
	DegradedThreshold = 0.8

	// FailingThreshold is the success rate below which the provider is
	// reported failing.
	FailingThreshold = 0.3
)

// Flow selects the token-acquisition strategy. The two strategies carry
// diverging business rules inherited from two generations of the integration
// and are deliberately not merged.
type Flow string

const (
	// FlowLegacy signs card redirect URLs with the standard query HMAC and
	// skips direct-debit mandate gating.
	FlowLegacy Flow = "legacy"
	// FlowMandate signs with the Payplace Express construction and requires
	// mandate acceptance before a direct-debit token is requested.
	FlowMandate Flow = "mandate"
)

// Config holds every option the gateway needs. All credentials are required;
// the booleans default when unset but malformed values are an error.
type Config struct {
	MerchantID    string `validate:"required"`
	Password      string `validate:"required"`
	SSLMerchantID string `validate:"required"`
	SSLPassword   string `validate:"required"`
	NotifyURL     string `validate:"required,url"`
	Sandbox       bool
	Use3DSecure   bool
	TokenFlow     Flow   `validate:"oneof=legacy mandate"`
	ListenAddr    string `validate:"required"`
}

// Load reads the configuration from the environment, loading .env first when
// one exists.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		MerchantID:    os.Getenv("PAYPLACE_MERCHANT_ID"),
		Password:      os.Getenv("PAYPLACE_PASSWORD"),
		SSLMerchantID: os.Getenv("PAYPLACE_SSL_MERCHANT_ID"),
		SSLPassword:   os.Getenv("PAYPLACE_SSL_PASSWORD"),
		NotifyURL:     os.Getenv("PAYPLACE_NOTIFY_URL"),
		TokenFlow:     Flow(getString("PAYPLACE_TOKEN_FLOW", string(FlowMandate))),
		ListenAddr:    getString("LISTEN_ADDR", ServerAddr),
	}

	var err error
	if cfg.Sandbox, err = getBool("PAYPLACE_SANDBOX", true); err != nil {
		return Config{}, err
	}
	if cfg.Use3DSecure, err = getBool("PAYPLACE_USE_3DSECURE", true); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration, returning the first problem found.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var ve validator.ValidationErrors
		if ok := asValidationErrors(err, &ve); ok && len(ve) > 0 {
			return fmt.Errorf("config: invalid %s (%s)", ve[0].StructField(), ve[0].Tag())
		}
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	ve, ok := err.(validator.ValidationErrors)
	if ok {
		*target = ve
	}
	return ok
}

func getString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getBool parses a boolean environment variable. Unset falls back to the
// default; a set but malformed value is a configuration error.
func getBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("config: %s must be a boolean, got %q", key, value)
	}
	return parsed, nil
}
