// Package config handles configuration management with validation
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration structure
type Config struct {
	Storefront  StorefrontConfig  `yaml:"storefront"`
	Order       OrderConfig       `yaml:"order"`
	Customer    CustomerConfig    `yaml:"customer"`
	Payment     PaymentConfig     `yaml:"payment"`
	System      SystemConfig      `yaml:"system"`
	Timing      TimingConfig      `yaml:"timing"`
	Retry       RetryConfig       `yaml:"retry"`
	Receipts    ReceiptsConfig    `yaml:"receipts"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Feed        FeedConfig        `yaml:"feed"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
}

// StorefrontConfig describes the vendor endpoint and the watched sellers
type StorefrontConfig struct {
	BaseURL      string   `yaml:"base_url"`
	Sellers      []string `yaml:"sellers"`
	SessionToken Secret   `yaml:"session_token"` // optional; keyring/env take precedence
}

// OrderLineConfig is one configured cart line
type OrderLineConfig struct {
	ItemID   string                `yaml:"item_id"`
	Quantity int                   `yaml:"quantity"`
	Options  []OrderOptionConfig   `yaml:"options"`
}

// OrderOptionConfig is one option category selection on a line
type OrderOptionConfig struct {
	CategoryID string   `yaml:"category_id"`
	ChoiceIDs  []string `yaml:"choice_ids"`
}

// OrderConfig describes what to order when a window goes live
type OrderConfig struct {
	Seller       string            `yaml:"seller"`
	Fulfillment  string            `yaml:"fulfillment"` // PICKUP or DELIVERY
	Lines        []OrderLineConfig `yaml:"lines"`
	TimeWindowID string            `yaml:"time_window_id"`
	DryRun       bool              `yaml:"dry_run"`
}

// CustomerConfig is the checkout contact block
type CustomerConfig struct {
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
	Phone string `yaml:"phone"`
}

// PaymentConfig carries the opaque payment token
type PaymentConfig struct {
	Token Secret `yaml:"token"`
}

// SystemConfig contains system settings
type SystemConfig struct {
	LogLevel string `yaml:"log_level"`
}

// TimingConfig contains timing-related settings (durations in milliseconds
// unless suffixed otherwise)
type TimingConfig struct {
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`
	HTTPTimeoutSeconds  int `yaml:"http_timeout_seconds"`
	RateLimitPerSecond  int `yaml:"rate_limit_per_second"`
}

// RetryConfig contains the remote call retry budget
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms"`
}

// ReceiptsConfig contains receipt persistence settings
type ReceiptsConfig struct {
	DBPath string `yaml:"db_path"`
}

// TelemetryConfig contains telemetry settings
type TelemetryConfig struct {
	MetricsPort   int  `yaml:"metrics_port"`
	EnableMetrics bool `yaml:"enable_metrics"`
}

// FeedConfig contains the live status feed settings
type FeedConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// ConcurrencyConfig contains worker pool settings
type ConcurrencyConfig struct {
	PreflightWorkers int `yaml:"preflight_workers"`
	PreflightBuffer  int `yaml:"preflight_buffer"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// LoadConfig loads configuration from a YAML file with environment variable
// expansion
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.System.LogLevel == "" {
		c.System.LogLevel = "INFO"
	}
	if c.Timing.PollIntervalSeconds <= 0 {
		c.Timing.PollIntervalSeconds = 5
	}
	if c.Timing.HTTPTimeoutSeconds <= 0 {
		c.Timing.HTTPTimeoutSeconds = 10
	}
	if c.Timing.RateLimitPerSecond <= 0 {
		c.Timing.RateLimitPerSecond = 10
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = 3
	}
	if c.Retry.InitialBackoffMs <= 0 {
		c.Retry.InitialBackoffMs = 500
	}
	if c.Receipts.DBPath == "" {
		c.Receipts.DBPath = "./data/receipts.db"
	}
	if c.Telemetry.MetricsPort == 0 {
		c.Telemetry.MetricsPort = 9091
	}
	if c.Feed.Port == 0 {
		c.Feed.Port = 8088
	}
	if c.Concurrency.PreflightWorkers <= 0 {
		c.Concurrency.PreflightWorkers = 4
	}
	if c.Concurrency.PreflightBuffer <= 0 {
		c.Concurrency.PreflightBuffer = 32
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	var errs []string

	if err := c.validateStorefront(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateOrder(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateCustomer(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateSystem(); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errs, "\n"))
	}

	return nil
}

func (c *Config) validateStorefront() error {
	if c.Storefront.BaseURL == "" {
		return ValidationError{
			Field:   "storefront.base_url",
			Message: "vendor API base URL is required",
		}
	}
	if !strings.HasPrefix(c.Storefront.BaseURL, "http://") && !strings.HasPrefix(c.Storefront.BaseURL, "https://") {
		return ValidationError{
			Field:   "storefront.base_url",
			Value:   c.Storefront.BaseURL,
			Message: "must be an http(s) URL",
		}
	}
	if len(c.Storefront.Sellers) == 0 {
		return ValidationError{
			Field:   "storefront.sellers",
			Message: "at least one seller must be configured",
		}
	}
	return nil
}

func (c *Config) validateOrder() error {
	if c.Order.Seller == "" {
		return ValidationError{
			Field:   "order.seller",
			Message: "order seller is required",
		}
	}
	if !contains(c.Storefront.Sellers, c.Order.Seller) {
		return ValidationError{
			Field:   "order.seller",
			Value:   c.Order.Seller,
			Message: "seller not present in storefront.sellers",
		}
	}
	mode := strings.ToUpper(c.Order.Fulfillment)
	if mode != "PICKUP" && mode != "DELIVERY" {
		return ValidationError{
			Field:   "order.fulfillment",
			Value:   c.Order.Fulfillment,
			Message: "must be one of: PICKUP, DELIVERY",
		}
	}
	if len(c.Order.Lines) == 0 {
		return ValidationError{
			Field:   "order.lines",
			Message: "at least one line must be configured",
		}
	}
	for i, line := range c.Order.Lines {
		if line.ItemID == "" {
			return ValidationError{
				Field:   fmt.Sprintf("order.lines[%d].item_id", i),
				Message: "item id is required",
			}
		}
		if line.Quantity <= 0 {
			return ValidationError{
				Field:   fmt.Sprintf("order.lines[%d].quantity", i),
				Value:   line.Quantity,
				Message: "quantity must be a positive integer",
			}
		}
	}
	return nil
}

func (c *Config) validateCustomer() error {
	if c.Customer.Name == "" || c.Customer.Email == "" {
		return ValidationError{
			Field:   "customer",
			Message: "customer name and email are required",
		}
	}
	if !strings.Contains(c.Customer.Email, "@") {
		return ValidationError{
			Field:   "customer.email",
			Value:   c.Customer.Email,
			Message: "must be a valid email address",
		}
	}
	return nil
}

func (c *Config) validateSystem() error {
	validLevels := []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	if !contains(validLevels, strings.ToUpper(c.System.LogLevel)) {
		return ValidationError{
			Field:   "system.log_level",
			Value:   c.System.LogLevel,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validLevels, ", ")),
		}
	}
	return nil
}

// PollInterval returns the monitor poll interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Timing.PollIntervalSeconds) * time.Second
}

// HTTPTimeout returns the transport timeout as a duration.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.Timing.HTTPTimeoutSeconds) * time.Second
}

// InitialBackoff returns the retry backoff seed as a duration.
func (c *Config) InitialBackoff() time.Duration {
	return time.Duration(c.Retry.InitialBackoffMs) * time.Millisecond
}

// expandEnvVars replaces ${VAR} references with environment values
func expandEnvVars(s string) string {
	return os.Expand(s, os.Getenv)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
