package llm

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultBaseURL    = "https://generativelanguage.googleapis.com/v1beta"
	DefaultImageModel = "gemini-2.5-flash-image"
	DefaultTextModel  = "gemini-2.5-flash"
)

type Config struct {
	//required fields
	BaseURL string
	// APIKey may be empty at startup; calls then fail with KindConfig
	// before any network I/O.
	APIKey string

	ImageModel      string        // redesign (default: gemini-2.5-flash-image)
	TextModel       string        // advice, shop, describe (default: gemini-2.5-flash)
	UpstreamTimeout time.Duration // per-attempt timeout (default: 60s)

	MaxIdleConns        int // default: 100
	MaxIdleConnsPerHost int // default: 100

	// HTTPClient replaces the pooled default client, mostly in tests.
	HTTPClient *http.Client
}

// Validate checks required fields only.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("BaseURL is required")
	}
	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return fmt.Errorf("BaseURL %q must be an http(s) URL", c.BaseURL)
	}
	return nil
}

// WithDefaults returns a copy of Config with sane defaults applied.
func (c *Config) WithDefaults() Config {
	cfg := *c

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	// Normalize BaseURL: trim trailing slashes so we can safely append paths.
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)

	if cfg.ImageModel == "" {
		cfg.ImageModel = DefaultImageModel
	}
	if cfg.TextModel == "" {
		cfg.TextModel = DefaultTextModel
	}
	if cfg.UpstreamTimeout <= 0 {
		cfg.UpstreamTimeout = 60 * time.Second
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = 100
	}
	if cfg.MaxIdleConnsPerHost <= 0 {
		cfg.MaxIdleConnsPerHost = 100
	}

	return cfg
}

// placeholderKeys are values shipped in sample env files.
var placeholderKeys = map[string]struct{}{
	"placeholder_api_key": {},
	"your_api_key":        {},
	"your-api-key":        {},
	"your_api_key_here":   {},
	"changeme":            {},
}

// keyProblem returns a reason when the key cannot be used, or "".
func (c *Config) keyProblem() string {
	if c.APIKey == "" {
		return "api key is empty"
	}
	if _, ok := placeholderKeys[strings.ToLower(c.APIKey)]; ok {
		return "api key is a placeholder"
	}
	if strings.HasPrefix(c.APIKey, "<") {
		return "api key is a placeholder"
	}
	return ""
}

type client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time
}

// NewClient creates a Gemini client with the given configuration.
func NewClient(cfg Config, logger *zap.Logger) (Client, error) {
	// Apply defaults + normalize BaseURL
	cfg = cfg.WithDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: defaultTransport(cfg),
		}
	}

	c := &client{
		cfg:        cfg,
		httpClient: httpClient,
		logger:     logger.Named("gemini"),
		now:        time.Now,
	}
	if reason := cfg.keyProblem(); reason != "" {
		c.logger.Warn("generation disabled until an api key is configured", zap.String("reason", reason))
	}
	return c, nil
}

// defaultTransport pools connections to the API host. Calls are bounded by
// the per-attempt context deadline, not by the transport.
func defaultTransport(cfg Config) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     90 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// Close releases resources held by the client.
func (c *client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
