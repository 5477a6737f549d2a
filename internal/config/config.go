package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Config carries everything the service reads from the environment. Match
// tolerances and the line-pairing key are deployment policy, not code
// constants; the applied values are recorded on every MatchResult.
type Config struct {
	DatabaseURL string
	ListenAddr  string

	// Approval gateway.
	SigningSecret   string
	FreshnessWindow time.Duration

	// Two-way match policy.
	QtyTolerance   decimal.Decimal
	PriceTolerance decimal.Decimal
	LineKey        string // "index" or "sku"

	// Extraction backend selection: "vision" or "stub".
	Extractor       string
	ExtractorURL    string
	ExtractorAPIKey string

	POLookupURL string

	LedgerBaseURL    string
	LedgerMaxRetries int
	LedgerBackoff    time.Duration

	// Reviewer notification routing. Mismatched and needs-review verdicts may
	// go to different reviewer pools per deployment.
	NotifyWebhookURL         string
	ReviewChannelDefault     string
	ReviewChannelMismatched  string
	ReviewChannelNeedsReview string
}

func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:              os.Getenv("DATABASE_URL"),
		ListenAddr:               envOr("LISTEN_ADDR", ":8080"),
		SigningSecret:            os.Getenv("APPROVAL_SIGNING_SECRET"),
		Extractor:                envOr("EXTRACTOR", "stub"),
		ExtractorURL:             os.Getenv("EXTRACTOR_URL"),
		ExtractorAPIKey:          os.Getenv("EXTRACTOR_API_KEY"),
		POLookupURL:              os.Getenv("PO_LOOKUP_URL"),
		LedgerBaseURL:            os.Getenv("LEDGER_BASE_URL"),
		LineKey:                  envOr("MATCH_LINE_KEY", "index"),
		NotifyWebhookURL:         os.Getenv("NOTIFY_WEBHOOK_URL"),
		ReviewChannelDefault:     envOr("REVIEW_CHANNEL_DEFAULT", "#ap-review"),
		ReviewChannelMismatched:  os.Getenv("REVIEW_CHANNEL_MISMATCHED"),
		ReviewChannelNeedsReview: os.Getenv("REVIEW_CHANNEL_NEEDS_REVIEW"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.SigningSecret == "" {
		return nil, fmt.Errorf("APPROVAL_SIGNING_SECRET is required")
	}
	if cfg.LineKey != "index" && cfg.LineKey != "sku" {
		return nil, fmt.Errorf("MATCH_LINE_KEY must be \"index\" or \"sku\", got %q", cfg.LineKey)
	}

	var err error
	if cfg.QtyTolerance, err = envDecimal("MATCH_QTY_TOLERANCE", "0.01"); err != nil {
		return nil, err
	}
	if cfg.PriceTolerance, err = envDecimal("MATCH_PRICE_TOLERANCE", "0.02"); err != nil {
		return nil, err
	}

	freshness, err := envInt("APPROVAL_FRESHNESS_SECONDS", 300)
	if err != nil {
		return nil, err
	}
	cfg.FreshnessWindow = time.Duration(freshness) * time.Second

	if cfg.LedgerMaxRetries, err = envInt("LEDGER_MAX_RETRIES", 3); err != nil {
		return nil, err
	}
	backoffMs, err := envInt("LEDGER_RETRY_BACKOFF_MS", 500)
	if err != nil {
		return nil, err
	}
	cfg.LedgerBackoff = time.Duration(backoffMs) * time.Millisecond

	return cfg, nil
}

// ReviewChannel returns the reviewer channel for a match verdict, falling
// back to the default channel when no per-verdict override is set.
func (c *Config) ReviewChannel(verdict string) string {
	switch verdict {
	case "mismatched":
		if c.ReviewChannelMismatched != "" {
			return c.ReviewChannelMismatched
		}
	case "needs_review":
		if c.ReviewChannelNeedsReview != "" {
			return c.ReviewChannelNeedsReview
		}
	}
	return c.ReviewChannelDefault
}

func InitDB(cfg *Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return db, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envDecimal(key, fallback string) (decimal.Decimal, error) {
	v := os.Getenv(key)
	if v == "" {
		v = fallback
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
