// Package config holds the process-wide settings of the auth core. It is read
// once at startup and passed to the components that need it.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/ovaphlow/pitchfork/service-civic-auth/pkg/utilities"
)

const (
	DefaultHTTPAddr        = "0.0.0.0:8431"
	DefaultOrgDomainSuffix = "@admin.com"
	DefaultBcryptCost      = 10

	// TokenTTL is the absolute lifetime of a session token.
	TokenTTL = time.Hour

	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

var ErrMissingSecret = errors.New("JWT_SECRET is required")

type Config struct {
	HTTPAddr string
	// JWTSecret signs session tokens (HS256).
	JWTSecret string
	// OrgDomainSuffix grants the admin role at signup to emails ending with it.
	OrgDomainSuffix string
	BcryptCost      int
	StoreDriver     string
	SnowflakeNode   int64
	TokenTTL        time.Duration
}

// ConfigFromEnv reads the auth settings from environment variables.
func ConfigFromEnv() Config {
	cfg := Config{
		HTTPAddr:        os.Getenv("HTTP_ADDR"),
		JWTSecret:       os.Getenv("JWT_SECRET"),
		OrgDomainSuffix: os.Getenv("DOMAIN_NAME"),
		BcryptCost:      DefaultBcryptCost,
		StoreDriver:     os.Getenv("STORE_DRIVER"),
		SnowflakeNode:   utilities.NodeFromEnv(),
		TokenTTL:        TokenTTL,
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = DefaultHTTPAddr
	}
	if cfg.OrgDomainSuffix == "" {
		cfg.OrgDomainSuffix = DefaultOrgDomainSuffix
	}
	if cfg.StoreDriver == "" {
		cfg.StoreDriver = DriverPostgres
	}
	if v, err := strconv.Atoi(os.Getenv("BCRYPT_COST")); err == nil {
		cfg.BcryptCost = v
	}
	return cfg
}

// Validate rejects configurations the service cannot start with.
func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return ErrMissingSecret
	}
	switch c.StoreDriver {
	case DriverPostgres, DriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return fmt.Errorf("BCRYPT_COST out of range: %d", c.BcryptCost)
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("token ttl must be positive")
	}
	return nil
}
