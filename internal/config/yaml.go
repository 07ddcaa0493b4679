// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"tinnitus/internal/analysis"
	applog "tinnitus/internal/log"
	"tinnitus/internal/therapy"
)

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	LogLevel   string           `yaml:"log_level"`  // Logging level (e.g., "debug", "info", "warn", "error").
	Therapy    TherapyConfig    `yaml:"therapy"`    // Default therapy parameters.
	Processing ProcessingConfig `yaml:"processing"` // Batch processing settings.
	Analysis   AnalysisConfig   `yaml:"analysis"`   // Notch depth report settings.
	Playback   PlaybackConfig   `yaml:"playback"`   // Audio output settings.
	Transport  TransportConfig  `yaml:"transport"`  // Event transport settings.
}

// TherapyConfig holds the request parameters applied to every file.
type TherapyConfig struct {
	Mode                string  `yaml:"mode"`                  // "notched-music" or "tinnitus-retraining".
	NotchFrequencyHz    float64 `yaml:"notch_frequency_hz"`    // Center of the notch.
	QualityFactor       float64 `yaml:"quality_factor"`        // Notch Q; higher is narrower.
	TinnitusFrequencyHz float64 `yaml:"tinnitus_frequency_hz"` // Reported with retraining results.
}

// ProcessingConfig holds settings for writing results.
type ProcessingConfig struct {
	OutputDir string `yaml:"output_dir"` // Directory receiving processed files.
	Workers   int    `yaml:"workers"`    // Files processed concurrently (0 for one per CPU).
	Report    bool   `yaml:"report"`     // Log the measured notch depth per file.
}

// AnalysisConfig holds settings for the spectrum used by the notch depth report.
type AnalysisConfig struct {
	Window string `yaml:"window"` // Name of the FFT window function (e.g., "Hann", "Hamming").
}

// PlaybackConfig holds settings for playing results.
type PlaybackConfig struct {
	Enabled         bool `yaml:"enabled"`           // Play each result after the batch.
	OutputDevice    int  `yaml:"output_device"`     // PortAudio device index (-1 for default).
	FramesPerBuffer int  `yaml:"frames_per_buffer"` // Frames per output callback.
}

// TransportConfig holds settings for pushing processing events to clients.
type TransportConfig struct {
	WebSocketEnabled bool   `yaml:"websocket_enabled"`  // Serve events on /ws.
	WebSocketAddress string `yaml:"websocket_address"`  // Listen address (e.g., "127.0.0.1:8080").
	UDPEnabled       bool   `yaml:"udp_enabled"`        // Send events as UDP datagrams.
	UDPTargetAddress string `yaml:"udp_target_address"` // Target address and port for UDP packets (e.g., "127.0.0.1:9090").
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel: DefaultLogLevel,
		Therapy: TherapyConfig{
			Mode:                DefaultMode,
			NotchFrequencyHz:    DefaultNotchFrequencyHz,
			QualityFactor:       DefaultQualityFactor,
			TinnitusFrequencyHz: DefaultTinnitusFrequencyHz,
		},
		Processing: ProcessingConfig{
			OutputDir: DefaultOutputDir,
			Workers:   DefaultWorkers,
		},
		Analysis: AnalysisConfig{
			Window: DefaultAnalysisWindow,
		},
		Playback: PlaybackConfig{
			OutputDevice:    DefaultOutputDevice,
			FramesPerBuffer: DefaultFramesPerBuffer,
		},
		Transport: TransportConfig{
			WebSocketAddress: DefaultWebSocketAddress,
			UDPTargetAddress: DefaultUDPTargetAddress,
		},
	}
}

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it searches default locations ("config.yaml"). If no file is found, it uses built-in
// defaults. After loading defaults or from file, it applies environment variable
// overrides and validates the final configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		if _, err := os.Stat(DefaultConfigFileName); err == nil {
			path = DefaultConfigFileName
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		applog.Debugf("Config: Loaded %s", path)
	}

	// Apply environment variable overrides AFTER loading from file.
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks every field against its allowed range.
func (c *Config) Validate() error {
	var errs []error

	if _, ok := applog.ParseLevel(c.LogLevel); !ok {
		errs = append(errs, fmt.Errorf("log_level %q is not a known level", c.LogLevel))
	}
	if _, err := therapy.ParseMode(c.Therapy.Mode); err != nil {
		errs = append(errs, fmt.Errorf("therapy.mode: %w", err))
	}
	if !inRange(c.Therapy.NotchFrequencyHz, MinNotchFrequencyHz, MaxNotchFrequencyHz) {
		errs = append(errs, fmt.Errorf("therapy.notch_frequency_hz %g outside [%g, %g]",
			c.Therapy.NotchFrequencyHz, MinNotchFrequencyHz, MaxNotchFrequencyHz))
	}
	if !inRange(c.Therapy.TinnitusFrequencyHz, MinTinnitusFrequencyHz, MaxTinnitusFrequencyHz) {
		errs = append(errs, fmt.Errorf("therapy.tinnitus_frequency_hz %g outside [%g, %g]",
			c.Therapy.TinnitusFrequencyHz, MinTinnitusFrequencyHz, MaxTinnitusFrequencyHz))
	}
	if !(c.Therapy.QualityFactor > 0) || math.IsInf(c.Therapy.QualityFactor, 0) {
		errs = append(errs, fmt.Errorf("therapy.quality_factor must be positive, got %g", c.Therapy.QualityFactor))
	}
	if c.Processing.Workers < 0 {
		errs = append(errs, fmt.Errorf("processing.workers must not be negative, got %d", c.Processing.Workers))
	}
	if _, err := analysis.ParseWindowFunc(c.Analysis.Window); err != nil {
		errs = append(errs, fmt.Errorf("analysis.window: %w", err))
	}
	if c.Playback.OutputDevice < MinOutputDeviceID {
		errs = append(errs, fmt.Errorf("playback.output_device %d is invalid", c.Playback.OutputDevice))
	}
	if c.Playback.FramesPerBuffer <= 0 || c.Playback.FramesPerBuffer > MaxFramesPerBuffer {
		errs = append(errs, fmt.Errorf("playback.frames_per_buffer %d outside [1, %d]",
			c.Playback.FramesPerBuffer, MaxFramesPerBuffer))
	}
	if c.Transport.WebSocketEnabled && c.Transport.WebSocketAddress == "" {
		errs = append(errs, errors.New("transport.websocket_address must be set when the WebSocket server is enabled"))
	}
	if c.Transport.UDPEnabled && c.Transport.UDPTargetAddress == "" {
		errs = append(errs, errors.New("transport.udp_target_address must be set when UDP is enabled"))
	}

	return errors.Join(errs...)
}

// Request builds the processing request for one source file from the
// therapy settings.
func (c *Config) Request(source string) (therapy.ProcessingRequest, error) {
	mode, err := therapy.ParseMode(c.Therapy.Mode)
	if err != nil {
		return therapy.ProcessingRequest{}, err
	}
	req := therapy.ProcessingRequest{SourcePath: source, Mode: mode}
	switch mode {
	case therapy.NotchedMusicTherapy:
		req.NotchFrequencyHz = c.Therapy.NotchFrequencyHz
		req.QualityFactor = c.Therapy.QualityFactor
	case therapy.TinnitusRetrainingTherapy:
		req.TinnitusFrequencyHz = c.Therapy.TinnitusFrequencyHz
	}
	return req, nil
}

func inRange(v, lo, hi float64) bool {
	return v >= lo && v <= hi
}

// applyEnvOverrides replaces fields for every ENV_* variable that is set and
// parses. Unparsable values are logged and ignored.
func (c *Config) applyEnvOverrides() {
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok {
		c.LogLevel = val
		applog.Debugf("Config: Overriding log_level from env: %s", val)
	}
	if val, ok := os.LookupEnv("ENV_NOTCH_FREQUENCY"); ok {
		envFloat("ENV_NOTCH_FREQUENCY", val, &c.Therapy.NotchFrequencyHz)
	}
	if val, ok := os.LookupEnv("ENV_QUALITY_FACTOR"); ok {
		envFloat("ENV_QUALITY_FACTOR", val, &c.Therapy.QualityFactor)
	}
	if val, ok := os.LookupEnv("ENV_OUTPUT_DIR"); ok {
		c.Processing.OutputDir = val
		applog.Debugf("Config: Overriding processing.output_dir from env: %s", val)
	}
	if val, ok := os.LookupEnv("ENV_WORKERS"); ok {
		if n, err := strconv.Atoi(val); err == nil {
			c.Processing.Workers = n
			applog.Debugf("Config: Overriding processing.workers from env: %d", n)
		} else {
			applog.Warnf("Config: Ignoring ENV_WORKERS=%q: %v", val, err)
		}
	}
	if val, ok := os.LookupEnv("ENV_WS_ENABLED"); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			c.Transport.WebSocketEnabled = b
			applog.Debugf("Config: Overriding transport.websocket_enabled from env: %v", b)
		} else {
			applog.Warnf("Config: Ignoring ENV_WS_ENABLED=%q: %v", val, err)
		}
	}
	if val, ok := os.LookupEnv("ENV_WS_ADDRESS"); ok {
		c.Transport.WebSocketAddress = val
		applog.Debugf("Config: Overriding transport.websocket_address from env: %s", val)
	}
	if val, ok := os.LookupEnv("ENV_UDP_ENABLED"); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			c.Transport.UDPEnabled = b
			applog.Debugf("Config: Overriding transport.udp_enabled from env: %v", b)
		} else {
			applog.Warnf("Config: Ignoring ENV_UDP_ENABLED=%q: %v", val, err)
		}
	}
	if val, ok := os.LookupEnv("ENV_UDP_TARGET_ADDRESS"); ok {
		c.Transport.UDPTargetAddress = val
		applog.Debugf("Config: Overriding transport.udp_target_address from env: %s", val)
	}
}

func envFloat(name, val string, dst *float64) {
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		applog.Warnf("Config: Ignoring %s=%q: %v", name, val, err)
		return
	}
	*dst = f
	applog.Debugf("Config: Overriding %s from env: %g", name, f)
}
