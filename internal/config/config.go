// Package config provides configuration parsing and validation for the
// client: device identity, audio preferences, and credential storage.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete client configuration.
type Config struct {
	Device      DeviceConfig      `yaml:"device"`
	Auth        AuthConfig        `yaml:"auth"`
	Audio       AudioConfig       `yaml:"audio"`
	Connect     ConnectConfig     `yaml:"connect"`
	Logging     LoggingConfig     `yaml:"logging"`
	CDN         CDNConfig         `yaml:"cdn"`
}

// DeviceConfig identifies this client to Spotify's access point and
// Connect device list.
type DeviceConfig struct {
	// Name is shown in Spotify Connect device pickers. Default: "gosptok".
	Name string `yaml:"name"`
	// ID is the 32-character hex device id. Generated on first run and
	// persisted alongside the credentials cache if left empty.
	ID string `yaml:"id"`
	// ClientID is the Spotify client id this build authenticates as.
	ClientID string `yaml:"client_id"`
}

// AuthConfig controls how login credentials are obtained and persisted.
type AuthConfig struct {
	// CredentialsPath is where the reusable login blob is cached after a
	// successful interactive or OAuth login. Default: "./credentials.json".
	CredentialsPath string `yaml:"credentials_path"`
	// Username, if set, is the default for the login command's
	// --username flag.
	Username string `yaml:"username"`
}

// AudioConfig controls quality/format selection for playback streams.
type AudioConfig struct {
	// Quality is one of "normal", "high", "very_high", "lossless".
	Quality string `yaml:"quality"`
	// PreferFormat is one of "vorbis", "flac".
	PreferFormat string `yaml:"prefer_format"`
	// NormalizationEnabled is parsed and stored only; nothing in the
	// client reads it, and samples are never scaled by the track/album
	// gain values the CDN stream reports.
	NormalizationEnabled bool `yaml:"normalization_enabled"`
}

// ConnectConfig controls access-point session behavior.
type ConnectConfig struct {
	// AccessPointOverride, if set, is dialed directly instead of using
	// apresolve.spotify.com. Host:port form.
	AccessPointOverride string        `yaml:"access_point_override"`
	HandshakeTimeout    time.Duration `yaml:"handshake_timeout"`
	PreferredLocale     string        `yaml:"preferred_locale"`
}

// LoggingConfig controls the slog handler the rest of the client uses.
type LoggingConfig struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string `yaml:"level"`
	// Format is one of "text", "json".
	Format string `yaml:"format"`
}

// CDNConfig controls the per-track chunk fetcher.
type CDNConfig struct {
	// FetchConcurrency is parsed and validated only; each open stream's
	// Fetcher runs a fixed 4 workers regardless of this value.
	FetchConcurrency int `yaml:"fetch_concurrency"`
}

// Default returns a Config with the documented defaults filled in.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			Name:     "gosptok",
			ClientID: "65b708073fc0480ea92a077233ca87bd",
		},
		Auth: AuthConfig{
			CredentialsPath: "./credentials.json",
		},
		Audio: AudioConfig{
			Quality:              "high",
			PreferFormat:         "vorbis",
			NormalizationEnabled: true,
		},
		Connect: ConnectConfig{
			HandshakeTimeout: 10 * time.Second,
			PreferredLocale:  "en",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		CDN: CDNConfig{
			FetchConcurrency: 4,
		},
	}
}

// Load reads and parses a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses configuration from YAML bytes, expanding ${VAR}/$VAR
// environment references before unmarshaling, and validates the result.
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

func expandEnvVars(s string) string {
	return envVarRegex.ReplaceAllStringFunc(s, func(match string) string {
		var name string
		if strings.HasPrefix(match, "${") {
			name = match[2 : len(match)-1]
		} else {
			name = match[1:]
		}
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		return match
	})
}

var validQualities = map[string]bool{"normal": true, "high": true, "very_high": true, "lossless": true}
var validFormats = map[string]bool{"vorbis": true, "flac": true}

// Validate checks the configuration for errors, accumulating every
// violation found rather than stopping at the first.
func (c *Config) Validate() error {
	var errs []string

	if c.Device.Name == "" {
		errs = append(errs, "device.name is required")
	}
	if c.Device.ClientID == "" {
		errs = append(errs, "device.client_id is required")
	}
	if c.Device.ID != "" && len(c.Device.ID) != 32 {
		errs = append(errs, "device.id must be a 32-character hex string when set")
	}

	if c.Auth.CredentialsPath == "" {
		errs = append(errs, "auth.credentials_path is required")
	}

	if !validQualities[c.Audio.Quality] {
		errs = append(errs, fmt.Sprintf("invalid audio.quality: %s (must be normal, high, very_high, or lossless)", c.Audio.Quality))
	}
	if !validFormats[c.Audio.PreferFormat] {
		errs = append(errs, fmt.Sprintf("invalid audio.prefer_format: %s (must be vorbis or flac)", c.Audio.PreferFormat))
	}

	if c.Connect.HandshakeTimeout <= 0 {
		errs = append(errs, "connect.handshake_timeout must be positive")
	}

	if !isValidLogLevel(c.Logging.Level) {
		errs = append(errs, fmt.Sprintf("invalid logging.level: %s (must be debug, info, warn, or error)", c.Logging.Level))
	}
	if !isValidLogFormat(c.Logging.Format) {
		errs = append(errs, fmt.Sprintf("invalid logging.format: %s (must be text or json)", c.Logging.Format))
	}

	if c.CDN.FetchConcurrency < 1 {
		errs = append(errs, "cdn.fetch_concurrency must be at least 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}

func isValidLogFormat(format string) bool {
	switch format {
	case "text", "json":
		return true
	}
	return false
}

// redactedValue is the placeholder for sensitive values.
const redactedValue = "[REDACTED]"

// Redacted returns a copy of the config safe to log: the stored username
// is kept (it is not a secret) but nothing else sensitive is added here
// today, since credentials live in the separate, gitignored credentials
// cache rather than in Config itself.
func (c *Config) Redacted() *Config {
	data, err := yaml.Marshal(c)
	if err != nil {
		return c
	}
	redacted := &Config{}
	if err := yaml.Unmarshal(data, redacted); err != nil {
		return c
	}
	return redacted
}

// String returns a YAML representation safe to log.
func (c *Config) String() string {
	data, _ := yaml.Marshal(c.Redacted())
	return string(data)
}
