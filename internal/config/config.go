package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Imagery provider.
	ImageryBaseURL string
	ImageryAPIKey  string
	ImageryTimeout time.Duration
	MapStyle       string
	MapWidth       int
	MapHeight      int
	ZoomLevel      int

	// Fetch retry budget and upstream quota.
	FetchMaxAttempts       int
	FetchBackoffMultiplier time.Duration
	FetchBackoffMin        time.Duration
	FetchBackoffMax        time.Duration
	FetchRateLimit         float64 // requests per second, 0 = unlimited

	// Normalization and quantization. Zero MinResolution and FinalSize fall
	// back to the variant defaults.
	CropPercent     float64
	QuantizeVariant string
	MinResolution   int
	FinalSize       int
	AspectRatio     float64
	BlueNoiseSeed   uint64
	BlueNoiseSize   int

	Workers         int
	OutputDir       string
	UnprocessedDir  string
	DatedOutputDirs bool

	// Completion notifier, disabled when KafkaBrokers is empty.
	KafkaBrokers []string
	KafkaTopic   string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ""),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		ImageryBaseURL:  strings.TrimRight(sharedcfg.EnvOrDefault("IMAGERY_BASE_URL", "https://dev.virtualearth.net/REST/v1/Imagery/Map"), "/"),
		ImageryAPIKey:   sharedcfg.EnvOrDefault("IMAGERY_API_KEY", ""),
		MapStyle:        sharedcfg.EnvOrDefault("MAP_STYLE", "Aerial"),
		QuantizeVariant: strings.ToLower(sharedcfg.EnvOrDefault("QUANTIZE_VARIANT", "halftone")),
		OutputDir:       sharedcfg.EnvOrDefault("OUTPUT_DIR", "output/processed"),
		UnprocessedDir:  sharedcfg.EnvOrDefault("UNPROCESSED_DIR", ""),
		KafkaTopic:      sharedcfg.EnvOrDefault("KAFKA_TOPIC", "stencil-tiles"),
	}

	if brokers := sharedcfg.EnvOrDefault("KAFKA_BROKERS", ""); brokers != "" {
		cfg.KafkaBrokers = sharedcfg.ParseBrokers(brokers)
	}

	p := &parser{}
	cfg.ImageryTimeout = p.duration("IMAGERY_TIMEOUT", "30s")
	cfg.MapWidth, cfg.MapHeight = p.size("MAP_SIZE", "500,500")
	cfg.ZoomLevel = p.integer("ZOOM_LEVEL", "15")
	cfg.FetchMaxAttempts = p.integer("FETCH_MAX_ATTEMPTS", "3")
	cfg.FetchBackoffMultiplier = p.duration("FETCH_BACKOFF_MULTIPLIER", "1s")
	cfg.FetchBackoffMin = p.duration("FETCH_BACKOFF_MIN", "4s")
	cfg.FetchBackoffMax = p.duration("FETCH_BACKOFF_MAX", "10s")
	cfg.FetchRateLimit = p.float("FETCH_RATE_LIMIT", "0")
	cfg.CropPercent = p.float("CROP_PERCENT", "20")
	cfg.MinResolution = p.integer("MIN_RESOLUTION", "0")
	cfg.FinalSize = p.integer("FINAL_SIZE", "0")
	cfg.AspectRatio = p.float("ASPECT_RATIO", "0")
	cfg.BlueNoiseSeed = p.unsigned("BLUE_NOISE_SEED", "42")
	cfg.BlueNoiseSize = p.integer("BLUE_NOISE_SIZE", "64")
	cfg.Workers = p.integer("WORKERS", "1")
	cfg.DatedOutputDirs = p.boolean("DATED_OUTPUT_DIRS", "true")
	if p.err != nil {
		return nil, p.err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.ImageryBaseURL == "":
		return errors.New("IMAGERY_BASE_URL is required")
	case c.ImageryTimeout <= 0:
		return errors.New("invalid IMAGERY_TIMEOUT")
	case c.MapWidth <= 0 || c.MapHeight <= 0:
		return errors.New("invalid MAP_SIZE")
	case c.ZoomLevel < 1 || c.ZoomLevel > 21:
		return errors.New("ZOOM_LEVEL must be between 1 and 21")
	case c.FetchMaxAttempts < 1:
		return errors.New("FETCH_MAX_ATTEMPTS must be at least 1")
	case c.FetchBackoffMin > c.FetchBackoffMax:
		return errors.New("FETCH_BACKOFF_MIN must not exceed FETCH_BACKOFF_MAX")
	case c.FetchRateLimit < 0:
		return errors.New("FETCH_RATE_LIMIT must not be negative")
	case c.CropPercent < 0 || c.CropPercent >= 100:
		return errors.New("CROP_PERCENT must be in [0, 100)")
	case c.MinResolution < 0 || c.FinalSize < 0:
		return errors.New("MIN_RESOLUTION and FINAL_SIZE must not be negative")
	case c.AspectRatio < 0:
		return errors.New("ASPECT_RATIO must not be negative")
	case c.BlueNoiseSize < 1:
		return errors.New("BLUE_NOISE_SIZE must be positive")
	case c.Workers < 1:
		return errors.New("WORKERS must be at least 1")
	case c.OutputDir == "":
		return errors.New("OUTPUT_DIR is required")
	case len(c.KafkaBrokers) > 0 && c.KafkaTopic == "":
		return errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}
	return nil
}

// NotifierEnabled reports whether completion events should be published.
func (c *Config) NotifierEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// parser reads typed values and keeps the first error, so Load can parse
// every variable before checking.
type parser struct {
	err error
}

func (p *parser) fail(key string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s: %w", key, err)
	}
}

func (p *parser) integer(key, def string) int {
	n, err := strconv.Atoi(sharedcfg.EnvOrDefault(key, def))
	if err != nil {
		p.fail(key, err)
	}
	return n
}

func (p *parser) unsigned(key, def string) uint64 {
	n, err := strconv.ParseUint(sharedcfg.EnvOrDefault(key, def), 10, 64)
	if err != nil {
		p.fail(key, err)
	}
	return n
}

func (p *parser) float(key, def string) float64 {
	f, err := strconv.ParseFloat(sharedcfg.EnvOrDefault(key, def), 64)
	if err != nil {
		p.fail(key, err)
	}
	return f
}

func (p *parser) boolean(key, def string) bool {
	b, err := strconv.ParseBool(sharedcfg.EnvOrDefault(key, def))
	if err != nil {
		p.fail(key, err)
	}
	return b
}

func (p *parser) duration(key, def string) time.Duration {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil {
		p.fail(key, err)
	}
	return d
}

// size parses "W,H".
func (p *parser) size(key, def string) (int, int) {
	raw := sharedcfg.EnvOrDefault(key, def)
	w, h, ok := strings.Cut(raw, ",")
	if !ok {
		p.fail(key, fmt.Errorf("want W,H, got %q", raw))
		return 0, 0
	}
	width, errW := strconv.Atoi(strings.TrimSpace(w))
	height, errH := strconv.Atoi(strings.TrimSpace(h))
	if err := errors.Join(errW, errH); err != nil {
		p.fail(key, err)
	}
	return width, height
}
