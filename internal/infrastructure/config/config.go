package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/iho/balanceaudit/internal/domain"
)

// Config holds all application configuration. Values are immutable for the
// duration of a run.
type Config struct {
	// Reconciliation
	Tolerance        float64        `env:"AUDIT_TOLERANCE"         envDefault:"0.005"`
	DefaultDecimals  int            `env:"AUDIT_DEFAULT_DECIMALS"  envDefault:"2"`
	CurrencyDecimals map[string]int `env:"AUDIT_CURRENCY_DECIMALS" envDefault:"SAR:3,BHD:4"`

	// Anomaly detection
	MADThreshold       float64       `env:"AUDIT_MAD_THRESHOLD"        envDefault:"6.0"`
	BurstWindow        time.Duration `env:"AUDIT_BURST_WINDOW"         envDefault:"1s"`
	RapidWindow        time.Duration `env:"AUDIT_RAPID_WINDOW"         envDefault:"60s"`
	BusinessOpenHour   int           `env:"AUDIT_BUSINESS_OPEN"        envDefault:"8"`
	BusinessCloseHour  int           `env:"AUDIT_BUSINESS_CLOSE"       envDefault:"18"`
	RoundingPatternMin int           `env:"AUDIT_ROUNDING_PATTERN_MIN" envDefault:"3"`

	// Output
	OutputDir     string `env:"AUDIT_OUTPUT_DIR"  envDefault:"./out"`
	LedgerColumns string `env:"AUDIT_LEDGER_COLUMNS" envDefault:"accounting"`
	RawCSV        bool   `env:"AUDIT_RAW_CSV"     envDefault:"false"`
	Charts        bool   `env:"AUDIT_CHARTS"      envDefault:"true"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects configurations the engine cannot produce trustworthy
// numbers under.
func (c *Config) Validate() error {
	if c.Tolerance < 0 {
		return fmt.Errorf("%w: %f", domain.ErrInvalidTolerance, c.Tolerance)
	}
	if c.DefaultDecimals < 0 {
		return fmt.Errorf("%w: %d", domain.ErrNegativeDecimals, c.DefaultDecimals)
	}
	for currency, places := range c.CurrencyDecimals {
		if places < 0 {
			return fmt.Errorf("%w: %s=%d", domain.ErrNegativeDecimals, currency, places)
		}
	}
	if c.BurstWindow <= 0 || c.RapidWindow <= 0 {
		return fmt.Errorf("%w: burst=%s rapid=%s", domain.ErrInvalidWindow, c.BurstWindow, c.RapidWindow)
	}
	if c.BusinessOpenHour < 0 || c.BusinessCloseHour > 24 || c.BusinessOpenHour >= c.BusinessCloseHour {
		return fmt.Errorf("%w: open=%d close=%d", domain.ErrBusinessHours, c.BusinessOpenHour, c.BusinessCloseHour)
	}
	return nil
}
