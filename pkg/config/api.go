package config

const (
	// DefaultAPIListen is the default listen address for the read API.
	DefaultAPIListen = ":8080"

	// DefaultRequestsPerMinute is the default per-IP request budget.
	DefaultRequestsPerMinute = 600

	// DefaultPageLimit is the page size used when a request sets none.
	DefaultPageLimit = 100

	// DefaultMaxPageLimit caps the page size a request may ask for.
	DefaultMaxPageLimit = 1000
)

// APIConfig contains the read-only API server configuration.
type APIConfig struct {
	Listen      string           `yaml:"listen" mapstructure:"listen"`
	CORSOrigins []string         `yaml:"cors_origins,omitempty" mapstructure:"cors_origins"`
	RateLimit   RateLimitConfig  `yaml:"rate_limit,omitempty" mapstructure:"rate_limit"`
	Pagination  PaginationConfig `yaml:"pagination,omitempty" mapstructure:"pagination"`
}

// RateLimitConfig configures per-IP rate limiting.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
}

// PaginationConfig bounds list endpoint page sizes.
type PaginationConfig struct {
	DefaultLimit int `yaml:"default_limit" mapstructure:"default_limit"`
	MaxLimit     int `yaml:"max_limit" mapstructure:"max_limit"`
}

func (a *APIConfig) applyDefaults() {
	if a.Listen == "" {
		a.Listen = DefaultAPIListen
	}

	if a.RateLimit.RequestsPerMinute <= 0 {
		a.RateLimit.RequestsPerMinute = DefaultRequestsPerMinute
	}

	if a.Pagination.DefaultLimit <= 0 {
		a.Pagination.DefaultLimit = DefaultPageLimit
	}

	if a.Pagination.MaxLimit <= 0 {
		a.Pagination.MaxLimit = DefaultMaxPageLimit
	}

	if a.Pagination.DefaultLimit > a.Pagination.MaxLimit {
		a.Pagination.DefaultLimit = a.Pagination.MaxLimit
	}
}
