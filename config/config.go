// Package config holds the runtime settings for the server and the paying
// client.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/vitwit/balancerail/types"
	"github.com/vitwit/balancerail/utils"
)

const (
	defaultListenAddr        = ":3000"
	defaultAPIBaseURL        = "http://localhost:3000"
	defaultAllowedOrigin     = "http://localhost:3000"
	defaultSettleTimeout     = 30 * time.Second
	defaultMaxTimeoutSeconds = 300
	defaultLogLevel          = "info"
)

// ServerConfig aggregates runtime settings for the gated API.
type ServerConfig struct {
	ListenAddr           string        `validate:"required"`
	APIBaseURL           string        `validate:"required,url"`
	FacilitatorURL       string        `validate:"required,url"`
	FacilitatorSecretKey string        `validate:"required"`
	ServerWalletAddress  string        `validate:"required"`
	MerchantAddress      string        `validate:"required"`
	Network              types.Network `validate:"required"`
	AssetAddress         string        `validate:"required"`
	RPCURL               string        `validate:"omitempty,url"` // enables on-chain payment simulation
	AllowedOrigins       []string
	SettleTimeout        time.Duration
	MaxTimeoutSeconds    int
	LogLevel             string
	CatalogFile          string
}

// Validate applies defaults and ensures the configuration is usable.
func (cfg *ServerConfig) Validate() error {
	cfg.ListenAddr = defaultIfEmpty(cfg.ListenAddr, defaultListenAddr)
	cfg.APIBaseURL = strings.TrimRight(defaultIfEmpty(cfg.APIBaseURL, defaultAPIBaseURL), "/")
	cfg.FacilitatorURL = strings.TrimRight(strings.TrimSpace(cfg.FacilitatorURL), "/")
	cfg.Network = types.Network(defaultIfEmpty(cfg.Network.String(), types.NetworkAvalancheFuji.String()))
	cfg.AssetAddress = defaultIfEmpty(cfg.AssetAddress, types.USDCFujiAddress)
	cfg.LogLevel = defaultIfEmpty(cfg.LogLevel, defaultLogLevel)
	if cfg.SettleTimeout <= 0 {
		cfg.SettleTimeout = defaultSettleTimeout
	}
	if cfg.MaxTimeoutSeconds <= 0 {
		cfg.MaxTimeoutSeconds = defaultMaxTimeoutSeconds
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{defaultAllowedOrigin}
	}

	if err := utils.Validator().Struct(cfg); err != nil {
		return configError("server config: %v", err)
	}
	if !cfg.Network.IsSupported() {
		return configError("unsupported network %q", cfg.Network)
	}
	for _, origin := range cfg.AllowedOrigins {
		if err := validateOrigin(origin); err != nil {
			return configError("allowed origins: %v", err)
		}
	}
	for name, addr := range map[string]string{
		"server wallet address": cfg.ServerWalletAddress,
		"merchant address":      cfg.MerchantAddress,
		"asset address":         cfg.AssetAddress,
	} {
		if err := utils.ValidateAddress(addr); err != nil {
			return configError("%s: %v", name, err)
		}
	}
	return nil
}

// ClientConfig aggregates settings for the paying client.
type ClientConfig struct {
	APIBaseURL   string        `validate:"required,url"`
	PrivateKey   string        `validate:"required"`
	Network      types.Network `validate:"required"`
	AssetAddress string        // token whose balance is shown; defaults to USDC.e on Fuji
	RPCURL       string        `validate:"omitempty,url"` // enables balance display
	LogLevel     string
}

// Validate applies defaults and ensures the configuration is usable.
func (cfg *ClientConfig) Validate() error {
	cfg.APIBaseURL = strings.TrimRight(defaultIfEmpty(cfg.APIBaseURL, defaultAPIBaseURL), "/")
	cfg.Network = types.Network(defaultIfEmpty(cfg.Network.String(), types.NetworkAvalancheFuji.String()))
	cfg.LogLevel = defaultIfEmpty(cfg.LogLevel, defaultLogLevel)

	if err := utils.Validator().Struct(cfg); err != nil {
		return configError("client config: %v", err)
	}
	if !cfg.Network.IsSupported() {
		return configError("unsupported network %q", cfg.Network)
	}
	cfg.AssetAddress = strings.TrimSpace(cfg.AssetAddress)
	if cfg.AssetAddress == "" {
		if cfg.Network != types.NetworkAvalancheFuji {
			return configError("asset address is required on network %q", cfg.Network)
		}
		cfg.AssetAddress = types.USDCFujiAddress
	}
	if err := utils.ValidateAddress(cfg.AssetAddress); err != nil {
		return configError("asset address: %v", err)
	}
	return nil
}

func defaultIfEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}

// ParseAllowedOrigins splits comma-delimited origins into a slice.
func ParseAllowedOrigins(raw string) []string {
	parts := strings.Split(raw, ",")
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}
	return normalized
}

// validateOrigin accepts "*" or an http(s) origin with a host, the forms the
// CORS middleware can serve.
func validateOrigin(origin string) error {
	if origin == "*" {
		return nil
	}
	u, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("%q: %v", origin, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%q must be \"*\" or an http(s) origin", origin)
	}
	return nil
}

func configError(format string, args ...any) error {
	return &types.X402Error{Code: types.ErrConfigError, Message: fmt.Sprintf(format, args...)}
}
