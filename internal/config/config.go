package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

type APIConfig struct {
	Addr                string
	DatabaseURL         string
	StripeSecretKey     string
	StripeWebhookSecret string
	CheckoutSuccessURL  string
	CheckoutCancelURL   string
	PortalReturnURL     string
	AllowedOrigins      []string
	StripeTimeout       time.Duration
}

type CLIConfig struct {
	APIBaseURL   string
	UserID       string
	StateDir     string
	MarketURL    string
	FetchTimeout time.Duration
}

func LoadAPIFromEnv() (APIConfig, error) {
	addr := os.Getenv("PORT")
	if addr != "" {
		if !strings.HasPrefix(addr, ":") {
			addr = ":" + addr
		}
	} else {
		addr = envDefault("CANDLERUSH_API_ADDR", ":8080")
	}

	cfg := APIConfig{
		Addr:                addr,
		DatabaseURL:         strings.TrimSpace(os.Getenv("DATABASE_URL")),
		StripeSecretKey:     strings.TrimSpace(os.Getenv("STRIPE_SECRET_KEY")),
		StripeWebhookSecret: strings.TrimSpace(os.Getenv("STRIPE_WEBHOOK_SECRET")),
		CheckoutSuccessURL:  envDefault("CANDLERUSH_CHECKOUT_SUCCESS_URL", "https://candlerush.app/checkout/success"),
		CheckoutCancelURL:   envDefault("CANDLERUSH_CHECKOUT_CANCEL_URL", "https://candlerush.app/checkout/cancel"),
		PortalReturnURL:     envDefault("CANDLERUSH_PORTAL_RETURN_URL", "https://candlerush.app/account"),
		AllowedOrigins:      splitList(envDefault("CANDLERUSH_ALLOWED_ORIGINS", "https://candlerush.app")),
		StripeTimeout:       envDurationDefault("CANDLERUSH_STRIPE_TIMEOUT", 20*time.Second),
	}
	if cfg.StripeSecretKey == "" {
		return cfg, fmt.Errorf("STRIPE_SECRET_KEY is required")
	}
	if cfg.StripeWebhookSecret == "" {
		return cfg, fmt.Errorf("STRIPE_WEBHOOK_SECRET is required")
	}
	return cfg, nil
}

func LoadCLIFromEnv() CLIConfig {
	return CLIConfig{
		APIBaseURL:   strings.TrimRight(envDefault("CRUSH_API_BASE_URL", ""), "/"),
		UserID:       strings.TrimSpace(os.Getenv("CRUSH_USER_ID")),
		StateDir:     strings.TrimSpace(os.Getenv("CANDLERUSH_STATE_DIR")),
		MarketURL:    envDefault("CRUSH_MARKET_URL", "https://stooq.com/q/d/l/"),
		FetchTimeout: envDurationDefault("CRUSH_FETCH_TIMEOUT", 15*time.Second),
	}
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
