package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Pacing strategies understood by pace.FromConfig.
const (
	PacingFixed       = "fixed"
	PacingNone        = "none"
	PacingExponential = "exponential"
	PacingRate        = "rate"
)

// Lookup failure policies.
const (
	OnLookupErrorAbort = "abort"
	OnLookupErrorSkip  = "skip"
)

// Default allowed primary taxonomy codes (surgery specialties).
var DefaultAllowedTaxonomies = []string{
	"208200000X",
	"2082S0099X",
	"2082S0105X",
	"2086S0122X",
}

// Config is the immutable configuration of one enrichment run. It is passed
// by value; AllowedTaxonomies must not be modified after Load.
type Config struct {
	RegistryBaseURL string
	APIVersion      string

	AllowedTaxonomies []string
	MailingPurpose    string
	LocationPurpose   string

	Pacing         string
	LookupDelay    time.Duration
	PacingMaxDelay time.Duration
	RatePerSecond  float64
	RequestTimeout time.Duration
	OnLookupError  string
	OutputFile     string

	S3Bucket string
	S3Region string
	S3Prefix string
}

// Default returns the configuration used when no environment is set.
func Default() Config {
	return Config{
		RegistryBaseURL:   "https://npiregistry.cms.hhs.gov/api/",
		APIVersion:        "2.1",
		AllowedTaxonomies: append([]string(nil), DefaultAllowedTaxonomies...),
		MailingPurpose:    "MAILING",
		LocationPurpose:   "LOCATION",
		Pacing:            PacingFixed,
		LookupDelay:       5 * time.Millisecond,
		PacingMaxDelay:    2 * time.Second,
		RatePerSecond:     10,
		RequestTimeout:    10 * time.Second,
		OnLookupError:     OnLookupErrorAbort,
		OutputFile:        "npi_records.csv",
		S3Region:          "us-east-1",
		S3Prefix:          "npi-enrich",
	}
}

// Load builds a Config from the environment, reading a .env file in the
// working directory first when one exists.
func Load() (Config, error) {
	_ = godotenv.Load()

	def := Default()
	cfg := Config{
		RegistryBaseURL:   getEnv("NPI_REGISTRY_URL", def.RegistryBaseURL),
		APIVersion:        getEnv("NPI_API_VERSION", def.APIVersion),
		AllowedTaxonomies: getEnvList("NPI_ALLOWED_TAXONOMIES", def.AllowedTaxonomies),
		MailingPurpose:    def.MailingPurpose,
		LocationPurpose:   def.LocationPurpose,
		Pacing:            strings.ToLower(getEnv("NPI_PACING", def.Pacing)),
		LookupDelay:       getEnvMillis("NPI_LOOKUP_DELAY_MS", def.LookupDelay),
		PacingMaxDelay:    getEnvMillis("NPI_PACING_MAX_DELAY_MS", def.PacingMaxDelay),
		RatePerSecond:     getEnvFloat("NPI_RATE_PER_SEC", def.RatePerSecond),
		RequestTimeout:    getEnvMillis("NPI_REQUEST_TIMEOUT_MS", def.RequestTimeout),
		OnLookupError:     strings.ToLower(getEnv("NPI_ON_LOOKUP_ERROR", def.OnLookupError)),
		OutputFile:        getEnv("NPI_OUTPUT_FILE", def.OutputFile),
		S3Bucket:          getEnv("NPI_S3_BUCKET", def.S3Bucket),
		S3Region:          getEnv("NPI_S3_REGION", def.S3Region),
		S3Prefix:          getEnv("NPI_S3_PREFIX", def.S3Prefix),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if strings.TrimSpace(c.RegistryBaseURL) == "" {
		return fmt.Errorf("registry base URL is empty")
	}
	if len(c.AllowedTaxonomies) == 0 {
		return fmt.Errorf("allowed taxonomy list is empty")
	}
	if c.LookupDelay < 0 || c.PacingMaxDelay < 0 || c.RequestTimeout < 0 {
		return fmt.Errorf("delays and timeouts must not be negative")
	}
	switch c.Pacing {
	case PacingFixed, PacingNone, PacingExponential:
	case PacingRate:
		if c.RatePerSecond <= 0 {
			return fmt.Errorf("rate pacing needs a positive rate, got %v", c.RatePerSecond)
		}
	default:
		return fmt.Errorf("unknown pacing strategy %q", c.Pacing)
	}
	switch c.OnLookupError {
	case OnLookupErrorAbort, OnLookupErrorSkip:
	default:
		return fmt.Errorf("unknown lookup error policy %q (want %q or %q)",
			c.OnLookupError, OnLookupErrorAbort, OnLookupErrorSkip)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	value := getEnv(key, "")
	if strings.TrimSpace(value) == "" {
		return append([]string(nil), fallback...)
	}
	var out []string
	for _, p := range strings.Split(value, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvMillis(key string, fallback time.Duration) time.Duration {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	ms, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

func getEnvFloat(key string, fallback float64) float64 {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
