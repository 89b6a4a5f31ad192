// SPDX-License-Identifier: MIT
/*
Package config loads the controller configuration: built-in defaults,
then an optional YAML file, then ENV_* environment overrides, then
validation. Command-line flags are applied by the caller afterwards.
*/
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"amplifier/internal/health"
	"amplifier/internal/log"
)

// Config is the full controller configuration.
type Config struct {
	LogLevel    string            `yaml:"log_level"`
	Audio       AudioConfig       `yaml:"audio"`
	Meter       MeterConfig       `yaml:"meter"`
	Analysis    AnalysisConfig    `yaml:"analysis"`
	Health      health.Thresholds `yaml:"health"`
	USBPriority USBPriorityConfig `yaml:"usb_priority"`
	SigGen      SigGenConfig      `yaml:"siggen"`
	Recording   RecordingConfig   `yaml:"recording"`
	Transport   TransportConfig   `yaml:"transport"`
}

// AudioConfig selects and configures the capture source. Channels are
// taken in stereo pairs: 2 channels meter one ADC, 4 channels meter two.
type AudioConfig struct {
	Source          string  `yaml:"source"`       // portaudio, wav or siggen
	InputDevice     int     `yaml:"input_device"` // -1 for the default device
	SampleRate      float64 `yaml:"sample_rate"`
	FramesPerBuffer int     `yaml:"frames_per_buffer"`
	InputChannels   int     `yaml:"input_channels"`
	LowLatency      bool    `yaml:"low_latency"`
	WAVPath         string  `yaml:"wav_path"`
	WAVLoop         bool    `yaml:"wav_loop"`
}

// MeterConfig holds the ballistics time constants in milliseconds.
type MeterConfig struct {
	VUAttackMs  float64 `yaml:"vu_attack_ms"`
	VUDecayMs   float64 `yaml:"vu_decay_ms"`
	PeakHoldMs  float64 `yaml:"peak_hold_ms"`
	PeakDecayMs float64 `yaml:"peak_decay_ms"`
	VRef        float64 `yaml:"vref"` // full-scale input in volts, for Vrms display
}

type AnalysisConfig struct {
	FFTSize          int           `yaml:"fft_size"`
	FFTWindow        string        `yaml:"fft_window"`
	SpectrumInterval time.Duration `yaml:"spectrum_interval"`
	WaveformInterval time.Duration `yaml:"waveform_interval"`
	SyncInterval     time.Duration `yaml:"sync_interval"`
	SyncFrames       int           `yaml:"sync_frames"`
	SyncSearchRange  int           `yaml:"sync_search_range"`
	SyncThreshold    float64       `yaml:"sync_threshold_samples"`
	DumpInterval     time.Duration `yaml:"dump_interval"`
}

type USBPriorityConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Debounce     time.Duration `yaml:"debounce"`
	HoldOff      time.Duration `yaml:"hold_off"`
	PollInterval time.Duration `yaml:"poll_interval"`
	LeftInput    int           `yaml:"left_input"`
	RightInput   int           `yaml:"right_input"`
}

type SigGenConfig struct {
	Enabled       bool    `yaml:"enabled"`
	Waveform      string  `yaml:"waveform"`
	FrequencyHz   float64 `yaml:"frequency_hz"`
	AmplitudeDBFS float64 `yaml:"amplitude_dbfs"`
	Channel       string  `yaml:"channel"` // left, right or both
	Target        string  `yaml:"target"`  // adc1, adc2 or both
}

// RecordingConfig controls WAV capture of the raw input.
type RecordingConfig struct {
	Enabled   bool   `yaml:"enabled"`
	OutputDir string `yaml:"output_dir"`
	BitDepth  int    `yaml:"bit_depth"`
}

type TransportConfig struct {
	UDPEnabled       bool          `yaml:"udp_enabled"`
	UDPTargetAddress string        `yaml:"udp_target_address"`
	UDPSendInterval  time.Duration `yaml:"udp_send_interval"`
	WSEnabled        bool          `yaml:"ws_enabled"`
	WSAddress        string        `yaml:"ws_address"`
	LogEvery         int           `yaml:"log_every"` // headless log transport, one snapshot in N
}

// DefaultPath is searched when LoadConfig is given no path.
const DefaultPath = "config.yaml"

// LoadConfig loads path, or DefaultPath if path is empty and that file
// exists, or the built-in defaults otherwise. Environment overrides are
// applied after the file and the result is validated.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		if _, err := os.Stat(DefaultPath); err != nil {
			cfg.applyEnvOverrides()
			if err := cfg.Validate(); err != nil {
				return nil, fmt.Errorf("invalid default configuration: %w", err)
			}
			return &cfg, nil
		}
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// applyEnvOverrides reads the ENV_* variables. Malformed values are
// ignored with a warning.
func (c *Config) applyEnvOverrides() {
	str := func(key string, dst *string) {
		if val, ok := os.LookupEnv(key); ok {
			*dst = val
			log.Infof("configuration: %s overrides to %q", key, val)
		}
	}
	boolean := func(key string, dst *bool) {
		if val, ok := os.LookupEnv(key); ok {
			b, err := strconv.ParseBool(val)
			if err != nil {
				log.Warnf("configuration: ignoring %s=%q: %v", key, val, err)
				return
			}
			*dst = b
			log.Infof("configuration: %s overrides to %v", key, b)
		}
	}
	duration := func(key string, dst *time.Duration) {
		if val, ok := os.LookupEnv(key); ok {
			d, err := time.ParseDuration(val)
			if err != nil {
				log.Warnf("configuration: ignoring %s=%q: %v", key, val, err)
				return
			}
			*dst = d
			log.Infof("configuration: %s overrides to %s", key, d)
		}
	}

	str("ENV_LOG_LEVEL", &c.LogLevel)
	str("ENV_AUDIO_SOURCE", &c.Audio.Source)
	str("ENV_WAV_PATH", &c.Audio.WAVPath)
	boolean("ENV_USB_PRIORITY", &c.USBPriority.Enabled)
	boolean("ENV_SIGGEN", &c.SigGen.Enabled)
	boolean("ENV_UDP_ENABLED", &c.Transport.UDPEnabled)
	str("ENV_UDP_TARGET_ADDRESS", &c.Transport.UDPTargetAddress)
	duration("ENV_UDP_SEND_INTERVAL", &c.Transport.UDPSendInterval)
	boolean("ENV_WS_ENABLED", &c.Transport.WSEnabled)
	str("ENV_WS_ADDRESS", &c.Transport.WSAddress)
}
