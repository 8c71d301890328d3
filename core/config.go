package core

import (
	"fmt"
	"strings"
	"time"
)

// UnboundedAttempts disables the max_attempts cap so only the backoff length
// bounds retries. Layers treat a zero max_attempts as unset, so this is how a
// runtime or config layer lifts the default cap.
const UnboundedAttempts = -1

type DeliveryConfig struct {
	TimeoutSeconds    int    `koanf:"timeout_seconds" mapstructure:"timeout_seconds"`
	MaxAttempts       int    `koanf:"max_attempts" mapstructure:"max_attempts"`
	BackoffSeconds    []int  `koanf:"backoff_seconds" mapstructure:"backoff_seconds"`
	Concurrency       int    `koanf:"concurrency" mapstructure:"concurrency"`
	BatchSize         int    `koanf:"batch_size" mapstructure:"batch_size"`
	StaleAfterSeconds int    `koanf:"stale_after_seconds" mapstructure:"stale_after_seconds"`
	ResponseBodyLimit int    `koanf:"response_body_limit" mapstructure:"response_body_limit"`
	UserAgent         string `koanf:"user_agent" mapstructure:"user_agent"`
}

type SigningConfig struct {
	SignatureHeader  string `koanf:"signature_header" mapstructure:"signature_header"`
	TimestampHeader  string `koanf:"timestamp_header" mapstructure:"timestamp_header"`
	EventTypeHeader  string `koanf:"event_type_header" mapstructure:"event_type_header"`
	DeliveryIDHeader string `koanf:"delivery_id_header" mapstructure:"delivery_id_header"`
	SignaturePrefix  string `koanf:"signature_prefix" mapstructure:"signature_prefix"`
}

type HealthConfig struct {
	FailureCap         int  `koanf:"failure_cap" mapstructure:"failure_cap"`
	AutoPause          bool `koanf:"auto_pause" mapstructure:"auto_pause"`
	AutoPauseThreshold int  `koanf:"auto_pause_threshold" mapstructure:"auto_pause_threshold"`
}

type OutboundConfig struct {
	RatePerSecond float64 `koanf:"rate_per_second" mapstructure:"rate_per_second"`
	Burst         int     `koanf:"burst" mapstructure:"burst"`
}

type RetentionConfig struct {
	ArchiveAfterHours int `koanf:"archive_after_hours" mapstructure:"archive_after_hours"`
}

type Config struct {
	ServiceName string          `koanf:"service_name" mapstructure:"service_name"`
	Delivery    DeliveryConfig  `koanf:"delivery" mapstructure:"delivery"`
	Signing     SigningConfig   `koanf:"signing" mapstructure:"signing"`
	Health      HealthConfig    `koanf:"health" mapstructure:"health"`
	Outbound    OutboundConfig  `koanf:"outbound" mapstructure:"outbound"`
	Retention   RetentionConfig `koanf:"retention" mapstructure:"retention"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "relay",
		Delivery: DeliveryConfig{
			TimeoutSeconds:    10,
			MaxAttempts:       3,
			BackoffSeconds:    []int{10, 60, 300},
			Concurrency:       8,
			BatchSize:         50,
			StaleAfterSeconds: 300,
			ResponseBodyLimit: 1024,
			UserAgent:         "go-relay/1.0",
		},
		Signing: SigningConfig{
			SignatureHeader:  "X-Webhook-Signature",
			TimestampHeader:  "X-Webhook-Timestamp",
			EventTypeHeader:  "X-Event-Type",
			DeliveryIDHeader: "X-Webhook-Id",
			SignaturePrefix:  "sha256=",
		},
		Health: HealthConfig{
			FailureCap:         1000,
			AutoPause:          false,
			AutoPauseThreshold: 10,
		},
		Outbound: OutboundConfig{},
		Retention: RetentionConfig{
			ArchiveAfterHours: 720,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Delivery.TimeoutSeconds <= 0 {
		return fmt.Errorf("core: delivery.timeout_seconds must be positive")
	}
	if c.Delivery.MaxAttempts < UnboundedAttempts {
		return fmt.Errorf("core: delivery.max_attempts must be %d (unbounded) or greater", UnboundedAttempts)
	}
	if len(c.Delivery.BackoffSeconds) == 0 {
		return fmt.Errorf("core: delivery.backoff_seconds is required")
	}
	for i, delay := range c.Delivery.BackoffSeconds {
		if delay <= 0 {
			return fmt.Errorf("core: delivery.backoff_seconds[%d] must be positive", i)
		}
	}
	if c.Delivery.Concurrency <= 0 {
		return fmt.Errorf("core: delivery.concurrency must be positive")
	}
	if c.Delivery.BatchSize <= 0 {
		return fmt.Errorf("core: delivery.batch_size must be positive")
	}
	if c.Delivery.StaleAfterSeconds <= 0 {
		return fmt.Errorf("core: delivery.stale_after_seconds must be positive")
	}
	if c.Delivery.ResponseBodyLimit < 0 {
		return fmt.Errorf("core: delivery.response_body_limit must not be negative")
	}
	if strings.TrimSpace(c.Signing.SignatureHeader) == "" || strings.TrimSpace(c.Signing.TimestampHeader) == "" {
		return fmt.Errorf("core: signing headers are required")
	}
	if c.Health.FailureCap <= 0 {
		return fmt.Errorf("core: health.failure_cap must be positive")
	}
	if c.Health.AutoPause && c.Health.AutoPauseThreshold <= 0 {
		return fmt.Errorf("core: health.auto_pause_threshold must be positive when auto_pause is enabled")
	}
	if c.Outbound.RatePerSecond < 0 || c.Outbound.Burst < 0 {
		return fmt.Errorf("core: outbound rate settings must not be negative")
	}
	if c.Retention.ArchiveAfterHours < 0 {
		return fmt.Errorf("core: retention.archive_after_hours must not be negative")
	}
	return nil
}

func (c DeliveryConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c DeliveryConfig) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterSeconds) * time.Second
}

func (c DeliveryConfig) Backoff() []time.Duration {
	out := make([]time.Duration, 0, len(c.BackoffSeconds))
	for _, seconds := range c.BackoffSeconds {
		out = append(out, time.Duration(seconds)*time.Second)
	}
	return out
}

func (c RetentionConfig) ArchiveAfter() time.Duration {
	return time.Duration(c.ArchiveAfterHours) * time.Hour
}
