package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	Port     string `mapstructure:"PORT"`
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`
	LogPHI   bool   `mapstructure:"LOG_PHI"`

	StoreDriver string `mapstructure:"STORE_DRIVER"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBSchema    string `mapstructure:"DB_SCHEMA"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`
	SQLitePath  string `mapstructure:"SQLITE_PATH"`

	EncryptionKey          string `mapstructure:"PHI_ENCRYPTION_KEY"`
	EncryptionKeyVersion   int    `mapstructure:"PHI_ENCRYPTION_KEY_VERSION"`
	EncryptionPreviousKeys string `mapstructure:"PHI_ENCRYPTION_PREVIOUS_KEYS"`

	FuzzyThreshold            float64  `mapstructure:"FUZZY_THRESHOLD"`
	ReviewConfidenceThreshold float64  `mapstructure:"REVIEW_CONFIDENCE_THRESHOLD"`
	MaxPageCount              int      `mapstructure:"MAX_PAGE_COUNT"`
	Workers                   int      `mapstructure:"WORKERS"`
	BoundaryPatterns          []string `mapstructure:"-"`

	FieldExtractorURL        string        `mapstructure:"FIELD_EXTRACTOR_URL"`
	FieldExtractorTimeout    time.Duration `mapstructure:"FIELD_EXTRACTOR_TIMEOUT"`
	FieldExtractorMaxRetries int           `mapstructure:"FIELD_EXTRACTOR_MAX_RETRIES"`

	BodyLimit      string        `mapstructure:"BODY_LIMIT"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`

	AuthSigningKey string `mapstructure:"AUTH_SIGNING_KEY"`
	AuthJWKSURL    string `mapstructure:"AUTH_JWKS_URL"`
	AuthIssuer     string `mapstructure:"AUTH_ISSUER"`
	AuthAudience   string `mapstructure:"AUTH_AUDIENCE"`

	WebhookURLs   string `mapstructure:"WEBHOOK_URLS"`
	WebhookSecret string `mapstructure:"WEBHOOK_SECRET"`
	WebhookEvents string `mapstructure:"WEBHOOK_EVENTS"`

	CCDOrgName string `mapstructure:"CCD_ORG_NAME"`
	CCDOrgOID  string `mapstructure:"CCD_ORG_OID"`

	ProfileFile string `mapstructure:"PROFILE_FILE"`
}

// Profile is an optional YAML file that tunes the pipeline without touching
// the environment. Zero values leave the environment settings in place.
type Profile struct {
	FuzzyThreshold            float64  `yaml:"fuzzy_threshold"`
	ReviewConfidenceThreshold float64  `yaml:"review_confidence_threshold"`
	MaxPageCount              int      `yaml:"max_page_count"`
	Workers                   int      `yaml:"workers"`
	BoundaryPatterns          []string `yaml:"boundary_patterns"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL", "LOG_PHI",
	"STORE_DRIVER", "DATABASE_URL", "DB_SCHEMA", "DB_MAX_CONNS", "DB_MIN_CONNS", "SQLITE_PATH",
	"PHI_ENCRYPTION_KEY", "PHI_ENCRYPTION_KEY_VERSION", "PHI_ENCRYPTION_PREVIOUS_KEYS",
	"FUZZY_THRESHOLD", "REVIEW_CONFIDENCE_THRESHOLD", "MAX_PAGE_COUNT", "WORKERS",
	"FIELD_EXTRACTOR_URL", "FIELD_EXTRACTOR_TIMEOUT", "FIELD_EXTRACTOR_MAX_RETRIES",
	"BODY_LIMIT", "REQUEST_TIMEOUT", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"AUTH_SIGNING_KEY", "AUTH_JWKS_URL", "AUTH_ISSUER", "AUTH_AUDIENCE",
	"WEBHOOK_URLS", "WEBHOOK_SECRET", "WEBHOOK_EVENTS",
	"CCD_ORG_NAME", "CCD_ORG_OID",
	"PROFILE_FILE",
}

// Load reads .env (if present) and the environment, applies defaults and an
// optional YAML profile, and validates the result.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PHI", false)
	v.SetDefault("STORE_DRIVER", StoreSQLite)
	v.SetDefault("DB_SCHEMA", "visitrecon")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("SQLITE_PATH", "visitrecon.db")
	v.SetDefault("PHI_ENCRYPTION_KEY_VERSION", 1)
	v.SetDefault("FUZZY_THRESHOLD", 0.85)
	v.SetDefault("REVIEW_CONFIDENCE_THRESHOLD", 0.70)
	v.SetDefault("MAX_PAGE_COUNT", 100)
	v.SetDefault("WORKERS", 4)
	v.SetDefault("FIELD_EXTRACTOR_TIMEOUT", 60*time.Second)
	v.SetDefault("FIELD_EXTRACTOR_MAX_RETRIES", 3)
	v.SetDefault("BODY_LIMIT", "10M")
	v.SetDefault("REQUEST_TIMEOUT", 5*time.Minute)
	v.SetDefault("RATE_LIMIT_RPS", 0)
	v.SetDefault("RATE_LIMIT_BURST", 20)
	v.SetDefault("WEBHOOK_EVENTS", "document.*")
	v.SetDefault("CCD_ORG_NAME", "Visit Reconciliation Service")
	// HL7 example root; deployments should set their own
	v.SetDefault("CCD_ORG_OID", "2.16.840.1.113883.19")

	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// a missing .env is fine
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))

	if cfg.ProfileFile != "" {
		p, err := LoadProfile(cfg.ProfileFile)
		if err != nil {
			return nil, err
		}
		cfg.ApplyProfile(p)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadProfile parses a YAML pipeline profile.
func LoadProfile(path string) (*Profile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	var p Profile
	if err := yaml.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("parse profile %s: %w", path, err)
	}
	return &p, nil
}

// ApplyProfile overrides pipeline settings with the non-zero profile values.
func (c *Config) ApplyProfile(p *Profile) {
	if p == nil {
		return
	}
	if p.FuzzyThreshold != 0 {
		c.FuzzyThreshold = p.FuzzyThreshold
	}
	if p.ReviewConfidenceThreshold != 0 {
		c.ReviewConfidenceThreshold = p.ReviewConfidenceThreshold
	}
	if p.MaxPageCount != 0 {
		c.MaxPageCount = p.MaxPageCount
	}
	if p.Workers != 0 {
		c.Workers = p.Workers
	}
	if len(p.BoundaryPatterns) > 0 {
		c.BoundaryPatterns = append(c.BoundaryPatterns, p.BoundaryPatterns...)
	}
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// EncryptionEnabled reports whether stored document bodies are sealed.
func (c *Config) EncryptionEnabled() bool {
	return c.EncryptionKey != ""
}

// AuthEnabled reports whether bearer tokens are verified.
func (c *Config) AuthEnabled() bool {
	return c.AuthSigningKey != "" || c.AuthJWKSURL != ""
}

// Validate rejects settings the pipeline cannot run with. Production
// deployments must verify bearer tokens and encrypt persistent stores.
func (c *Config) Validate() error {
	if c.FuzzyThreshold <= 0 || c.FuzzyThreshold > 1 {
		return fmt.Errorf("FUZZY_THRESHOLD must be in (0, 1], got %v", c.FuzzyThreshold)
	}
	if c.ReviewConfidenceThreshold < 0 || c.ReviewConfidenceThreshold > 1 {
		return fmt.Errorf("REVIEW_CONFIDENCE_THRESHOLD must be in [0, 1], got %v", c.ReviewConfidenceThreshold)
	}
	if c.MaxPageCount < 1 {
		return fmt.Errorf("MAX_PAGE_COUNT must be positive, got %d", c.MaxPageCount)
	}
	if c.Workers < 1 {
		return fmt.Errorf("WORKERS must be positive, got %d", c.Workers)
	}
	if c.FieldExtractorMaxRetries < 0 {
		return fmt.Errorf("FIELD_EXTRACTOR_MAX_RETRIES must not be negative, got %d", c.FieldExtractorMaxRetries)
	}

	switch c.StoreDriver {
	case StoreSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when STORE_DRIVER is %q", StoreSQLite)
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER is %q", StorePostgres)
		}
		if c.DBMinConns > c.DBMaxConns {
			return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
		}
	case StoreMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be %q, %q or %q, got %q", StoreSQLite, StorePostgres, StoreMemory, c.StoreDriver)
	}

	if c.EncryptionEnabled() && c.EncryptionKeyVersion < 1 {
		return fmt.Errorf("PHI_ENCRYPTION_KEY_VERSION must be positive, got %d", c.EncryptionKeyVersion)
	}

	if c.IsProduction() {
		if !c.AuthEnabled() {
			return fmt.Errorf("AUTH_SIGNING_KEY or AUTH_JWKS_URL must be set when ENV=production")
		}
		if c.StoreDriver != StoreMemory && !c.EncryptionEnabled() {
			return fmt.Errorf("PHI_ENCRYPTION_KEY must be set when ENV=production")
		}
	}
	return nil
}
