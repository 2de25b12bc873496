package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// Default captioner settings
	defaultCaptionTimeout = 30 * time.Second
	defaultMaxNewTokens   = 30
	defaultJPEGQuality    = 90
	defaultWorkers        = 4
	defaultOnError        = "skip"

	// Default pipeline settings
	defaultBatchSize       = 1
	defaultCaptureLogLevel = "warn"

	// Default monitoring settings
	defaultMetricsPrefix = "scenecap"
	defaultJobName       = "scenecap"

	// Default server settings
	defaultServerListenAddr = ":8080"
	defaultMaxHistory       = 100

	// Default logging settings
	defaultLogLevel  = "info"
	defaultLogFormat = "json"
	defaultLogOutput = "stderr"
)

// Environment variables that override values from the config file.
const (
	EnvCaptionerURL       = "SCENECAP_CAPTIONER_URL"
	EnvCaptionerOnError   = "SCENECAP_CAPTIONER_ON_ERROR"
	EnvLogLevel           = "SCENECAP_LOG_LEVEL"
	EnvVictoriaMetricsURL = "SCENECAP_VICTORIAMETRICS_URL"
	EnvBatchSize          = "SCENECAP_BATCH_SIZE"
)

var (
	validOnError   = []string{"skip", "fail"}
	validLogLevels = []string{"debug", "info", "warn", "error"}
)

// Config represents the complete application configuration
type Config struct {
	Captioner  CaptionerConfig  `yaml:"captioner"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// CaptionerConfig holds the captioning model server settings
type CaptionerConfig struct {
	// URL is the base URL of the captioning server. Empty disables activity detection.
	URL string `yaml:"url"`

	// Timeout bounds a single caption request
	Timeout time.Duration `yaml:"timeout"`

	// MaxNewTokens bounds the caption length
	MaxNewTokens int `yaml:"max_new_tokens"`

	// JPEGQuality is the quality frames are uploaded at (1-100)
	JPEGQuality int `yaml:"jpeg_quality"`

	// Workers is the number of frames captioned concurrently within a batch
	Workers int `yaml:"workers"`

	// OnError is the per-frame failure policy: skip or fail
	OnError string `yaml:"on_error"`
}

// PipelineConfig defines how frames are fed to plugins
type PipelineConfig struct {
	BatchSize       int    `yaml:"batch_size"`
	CaptureLogLevel string `yaml:"capture_log_level"` // plugin logs at or above this level go into the report
}

// MonitoringConfig holds metrics and monitoring settings
type MonitoringConfig struct {
	VictoriaMetricsURL string `yaml:"victoriametrics_url"`
	MetricsPrefix      string `yaml:"metrics_prefix"`
	JobName            string `yaml:"jobname"`
	Instance           string `yaml:"instance"`
	ListenAddr         string `yaml:"listen_addr"` // serve /metrics for scraping, e.g. ":9102"
}

// ServerConfig holds the settings of the long-running analysis service
type ServerConfig struct {
	// ListenAddr is the HTTP listen address, defaults to :8080
	ListenAddr string `yaml:"listen_addr"`
	// WatchDir holds the manifests the service may analyse
	WatchDir string `yaml:"watch_dir"`
	// Schedule is a 5-field cron spec; on each tick unanalysed manifests in WatchDir are processed
	Schedule string `yaml:"schedule"`
	// StateDir persists run history across restarts. Empty keeps history in memory.
	StateDir   string `yaml:"state_dir"`
	MaxHistory int    `yaml:"max_history"`
	// TLS is enabled when both files are set
	TLSCertFile string `yaml:"tls_cert_file"`
	TLSKeyFile  string `yaml:"tls_key_file"`
}

// LoggingConfig defines logging behavior settings
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	Output    string `yaml:"output"`
	AddSource bool   `yaml:"add_source"`
}

// Validate performs basic validation on the configuration
func (c *Config) Validate() error {
	if c.Captioner.URL != "" {
		if err := validateURL(c.Captioner.URL); err != nil {
			return fmt.Errorf("captioner url: %w", err)
		}
	}
	if c.Captioner.Timeout <= 0 {
		return fmt.Errorf("captioner timeout must be positive")
	}
	if c.Captioner.MaxNewTokens <= 0 {
		return fmt.Errorf("captioner max_new_tokens must be positive")
	}
	if c.Captioner.JPEGQuality < 1 || c.Captioner.JPEGQuality > 100 {
		return fmt.Errorf("captioner jpeg_quality must be between 1 and 100")
	}
	if c.Captioner.Workers <= 0 {
		return fmt.Errorf("captioner workers must be positive")
	}
	if !slices.Contains(validOnError, c.Captioner.OnError) {
		return fmt.Errorf("captioner on_error must be one of: %s", strings.Join(validOnError, ", "))
	}
	if c.Pipeline.BatchSize <= 0 {
		return fmt.Errorf("pipeline batch_size must be positive")
	}
	if !slices.Contains(validLogLevels, c.Pipeline.CaptureLogLevel) {
		return fmt.Errorf("pipeline capture_log_level must be one of: %s", strings.Join(validLogLevels, ", "))
	}
	if c.Monitoring.VictoriaMetricsURL != "" {
		if err := validateURL(c.Monitoring.VictoriaMetricsURL); err != nil {
			return fmt.Errorf("victoriametrics url: %w", err)
		}
	}
	if c.Server.Schedule != "" && c.Server.WatchDir == "" {
		return fmt.Errorf("server schedule requires watch_dir")
	}
	if c.Server.MaxHistory <= 0 {
		return fmt.Errorf("server max_history must be positive")
	}
	if (c.Server.TLSCertFile == "") != (c.Server.TLSKeyFile == "") {
		return fmt.Errorf("server tls_cert_file and tls_key_file must be set together")
	}
	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}

// SetDefaults sets reasonable default values for optional fields
func (c *Config) SetDefaults() {
	if c.Captioner.Timeout == 0 {
		c.Captioner.Timeout = defaultCaptionTimeout
	}
	if c.Captioner.MaxNewTokens == 0 {
		c.Captioner.MaxNewTokens = defaultMaxNewTokens
	}
	if c.Captioner.JPEGQuality == 0 {
		c.Captioner.JPEGQuality = defaultJPEGQuality
	}
	if c.Captioner.Workers == 0 {
		c.Captioner.Workers = defaultWorkers
	}
	if c.Captioner.OnError == "" {
		c.Captioner.OnError = defaultOnError
	}
	if c.Pipeline.BatchSize == 0 {
		c.Pipeline.BatchSize = defaultBatchSize
	}
	if c.Pipeline.CaptureLogLevel == "" {
		c.Pipeline.CaptureLogLevel = defaultCaptureLogLevel
	}
	if c.Monitoring.MetricsPrefix == "" {
		c.Monitoring.MetricsPrefix = defaultMetricsPrefix
	}
	if c.Monitoring.JobName == "" {
		c.Monitoring.JobName = defaultJobName
	}
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = defaultServerListenAddr
	}
	if c.Server.MaxHistory == 0 {
		c.Server.MaxHistory = defaultMaxHistory
	}
	// Set logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	if c.Logging.Output == "" {
		c.Logging.Output = defaultLogOutput
	}
}

// ApplyEnv overrides fields from environment variables. lookup is usually os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvCaptionerURL); ok {
		c.Captioner.URL = v
	}
	if v, ok := lookup(EnvCaptionerOnError); ok {
		c.Captioner.OnError = v
	}
	if v, ok := lookup(EnvLogLevel); ok {
		c.Logging.Level = strings.ToLower(v)
	}
	if v, ok := lookup(EnvVictoriaMetricsURL); ok {
		c.Monitoring.VictoriaMetricsURL = v
	}
	if v, ok := lookup(EnvBatchSize); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvBatchSize, err)
		}
		c.Pipeline.BatchSize = n
	}
	return nil
}

// LoadDotEnv loads environment variables from the given files, or ".env" when none
// are given. Missing files are ignored. Variables already set in the environment win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// LoadConfig reads the YAML config file at the given path and returns a Config struct.
// An empty path yields the defaults. Environment overrides, including those from a
// .env file in the working directory, are applied before defaults and validation.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return cfg, err
		}
		defer f.Close()
		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return cfg, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	if err := LoadDotEnv(); err != nil {
		return cfg, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
