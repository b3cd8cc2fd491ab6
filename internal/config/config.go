package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DeviceConfig describes how to communicate with the capture device.
// Type selects a concrete implementation (e.g., "sim").
type DeviceConfig struct {
	Type         string `yaml:"type"`           // e.g., "sim"
	PhotoDir     string `yaml:"photo_dir"`      // where captured artifacts are written
	SimLatencyMs int    `yaml:"sim_latency_ms"` // simulator: delay before the captured event (ms)
}

// TimingConfig holds the session timing constants. The defaults mirror
// the hardware-tuned values the kiosk shipped with; they are exposed
// here rather than hardcoded so they can be adjusted per installation.
type TimingConfig struct {
	CountdownSeconds  int `yaml:"countdown_seconds"`    // visible countdown start value
	ReviewSeconds     int `yaml:"review_seconds"`       // retake review window
	SlotPauseMs       int `yaml:"slot_pause_ms"`        // display pause after a slot saves
	AutoClearSeconds  int `yaml:"auto_clear_seconds"`   // auto-clear after composition
	TriggerSpacingMs  int `yaml:"trigger_spacing_ms"`   // minimum spacing between shutter triggers
	CaptureTimeoutMs  int `yaml:"capture_timeout_ms"`   // hard ceiling per capture attempt
	BusyRetryBaseMs   int `yaml:"busy_retry_base_ms"`   // busy backoff base delay
	BusyRetryCapMs    int `yaml:"busy_retry_cap_ms"`    // busy backoff delay cap
	BusyRetryLimit    int `yaml:"busy_retry_limit"`     // busy retries before terminal failure
	DeviceEventBuffer int `yaml:"device_event_buffer"`  // bounded device event queue size
}

// TemplatesConfig locates the print template library.
type TemplatesConfig struct {
	Dir string `yaml:"dir"`
}

// StorageConfig locates the sqlite session store.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// PrintConfig describes the print handoff.
// Type selects an implementation ("spool", "command" or "none").
type PrintConfig struct {
	Type     string `yaml:"type"`
	SpoolDir string `yaml:"spool_dir"` // for type "spool"
	Command  string `yaml:"command"`   // for type "command"; path is appended as last arg
}

// UploadConfig describes the asynchronous upload queue worker.
type UploadConfig struct {
	Enabled    bool   `yaml:"enabled"`
	OutboxDir  string `yaml:"outbox_dir"`
	IntervalMs int    `yaml:"interval_ms"`
}

// TriggerConfig describes the photographer-mode GPIO button and the
// print-ready lamp.
type TriggerConfig struct {
	Enabled    bool `yaml:"enabled"`
	ButtonPin  int  `yaml:"button_pin"`
	LampPin    int  `yaml:"lamp_pin"` // 0 = no lamp
	PollMs     int  `yaml:"poll_ms"`
	DebounceMs int  `yaml:"debounce_ms"`
}

// WebConfig describes the operator HTTP surface.
type WebConfig struct {
	Addr string `yaml:"addr"`
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel int  `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO   bool `yaml:"mock_gpio"`   // use mock GPIO (true=dev/test, false=real Raspberry Pi)
}

// Config aggregates all application configuration.
type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	Timing    TimingConfig    `yaml:"timing"`
	Templates TemplatesConfig `yaml:"templates"`
	Storage   StorageConfig   `yaml:"storage"`
	Print     PrintConfig     `yaml:"print"`
	Upload    UploadConfig    `yaml:"upload"`
	Trigger   TriggerConfig   `yaml:"trigger"`
	Web       WebConfig       `yaml:"web"`
	Defaults  DefaultsConfig  `yaml:"defaults"`
}

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	// Basic validation
	if cfg.Device.Type == "" {
		return nil, fmt.Errorf("device.type is required")
	}
	if cfg.Templates.Dir == "" {
		return nil, fmt.Errorf("templates.dir is required")
	}
	if cfg.Timing.CountdownSeconds != 0 && (cfg.Timing.CountdownSeconds < 3 || cfg.Timing.CountdownSeconds > 10) {
		return nil, fmt.Errorf("timing.countdown_seconds must be between 3 and 10, got %d", cfg.Timing.CountdownSeconds)
	}
	if cfg.Timing.BusyRetryLimit < 0 {
		return nil, fmt.Errorf("timing.busy_retry_limit must be >= 0, got %d", cfg.Timing.BusyRetryLimit)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// applyDefaults fills zero values with the shipped defaults.
func (c *Config) applyDefaults() {
	if c.Device.PhotoDir == "" {
		c.Device.PhotoDir = "photos"
	}
	if c.Device.SimLatencyMs <= 0 {
		c.Device.SimLatencyMs = 400
	}

	if c.Timing.CountdownSeconds <= 0 {
		c.Timing.CountdownSeconds = 5
	}
	if c.Timing.ReviewSeconds <= 0 {
		c.Timing.ReviewSeconds = 12
	}
	if c.Timing.SlotPauseMs <= 0 {
		c.Timing.SlotPauseMs = 3000
	}
	if c.Timing.AutoClearSeconds <= 0 {
		c.Timing.AutoClearSeconds = 60
	}
	if c.Timing.TriggerSpacingMs <= 0 {
		c.Timing.TriggerSpacingMs = 6000
	}
	if c.Timing.CaptureTimeoutMs <= 0 {
		c.Timing.CaptureTimeoutMs = 15000
	}
	if c.Timing.BusyRetryBaseMs <= 0 {
		c.Timing.BusyRetryBaseMs = 200
	}
	if c.Timing.BusyRetryCapMs <= 0 {
		c.Timing.BusyRetryCapMs = 1000
	}
	if c.Timing.BusyRetryLimit == 0 {
		c.Timing.BusyRetryLimit = 20
	}
	if c.Timing.DeviceEventBuffer <= 0 {
		c.Timing.DeviceEventBuffer = 16
	}

	if c.Storage.Path == "" {
		c.Storage.Path = "boothd.db"
	}
	if c.Print.Type == "" {
		c.Print.Type = "spool"
	}
	if c.Print.SpoolDir == "" {
		c.Print.SpoolDir = "spool"
	}
	if c.Upload.OutboxDir == "" {
		c.Upload.OutboxDir = "outbox"
	}
	if c.Upload.IntervalMs <= 0 {
		c.Upload.IntervalMs = 5000
	}
	if c.Trigger.PollMs <= 0 {
		c.Trigger.PollMs = 20
	}
	if c.Trigger.DebounceMs <= 0 {
		c.Trigger.DebounceMs = 80
	}
	if c.Web.Addr == "" {
		c.Web.Addr = ":8080"
	}
}

// Countdown returns the visible countdown start value in seconds.
func (c *Config) Countdown() int { return c.Timing.CountdownSeconds }

// ReviewWindow returns the retake review window duration.
func (c *Config) ReviewWindow() time.Duration {
	return time.Duration(c.Timing.ReviewSeconds) * time.Second
}

// SlotPause returns the post-slot display pause.
func (c *Config) SlotPause() time.Duration {
	return time.Duration(c.Timing.SlotPauseMs) * time.Millisecond
}

// AutoClear returns the post-composition auto-clear delay.
func (c *Config) AutoClear() time.Duration {
	return time.Duration(c.Timing.AutoClearSeconds) * time.Second
}

// TriggerSpacing returns the minimum spacing between shutter triggers.
func (c *Config) TriggerSpacing() time.Duration {
	return time.Duration(c.Timing.TriggerSpacingMs) * time.Millisecond
}

// CaptureTimeout returns the hard per-attempt completion ceiling.
func (c *Config) CaptureTimeout() time.Duration {
	return time.Duration(c.Timing.CaptureTimeoutMs) * time.Millisecond
}

// BusyRetryBase returns the busy backoff base delay.
func (c *Config) BusyRetryBase() time.Duration {
	return time.Duration(c.Timing.BusyRetryBaseMs) * time.Millisecond
}

// BusyRetryCap returns the busy backoff delay cap.
func (c *Config) BusyRetryCap() time.Duration {
	return time.Duration(c.Timing.BusyRetryCapMs) * time.Millisecond
}

// SimLatency returns the simulated capture latency.
func (c *Config) SimLatency() time.Duration {
	return time.Duration(c.Device.SimLatencyMs) * time.Millisecond
}

// UploadInterval returns the upload worker polling interval.
func (c *Config) UploadInterval() time.Duration {
	return time.Duration(c.Upload.IntervalMs) * time.Millisecond
}

// TriggerPoll returns the GPIO button polling interval.
func (c *Config) TriggerPoll() time.Duration {
	return time.Duration(c.Trigger.PollMs) * time.Millisecond
}

// TriggerDebounce returns the GPIO button debounce interval.
func (c *Config) TriggerDebounce() time.Duration {
	return time.Duration(c.Trigger.DebounceMs) * time.Millisecond
}
