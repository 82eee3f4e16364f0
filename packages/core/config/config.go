package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "30s"
// as well as plain nanosecond integers.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw any
	if err := value.Decode(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		*d = Duration(parsed)
	case int:
		*d = Duration(v)
	case float64:
		*d = Duration(int64(v))
	default:
		return fmt.Errorf("invalid duration value %v", raw)
	}
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Config represents the ptf project configuration.
type Config struct {
	Environment string `yaml:"environment,omitempty" json:"environment,omitempty"`

	// Browser session
	Browser      string `yaml:"browser,omitempty" json:"browser,omitempty"` // chromium, firefox, webkit
	Headless     *bool  `yaml:"headless,omitempty" json:"headless,omitempty"`
	BaseURL      string `yaml:"baseUrl,omitempty" json:"baseUrl,omitempty"`
	SessionReuse *bool  `yaml:"sessionReuse,omitempty" json:"sessionReuse,omitempty"`
	RecordVideo  *bool  `yaml:"recordVideo,omitempty" json:"recordVideo,omitempty"`
	RecordHAR    *bool  `yaml:"recordHar,omitempty" json:"recordHar,omitempty"`
	RecordTrace  *bool  `yaml:"recordTrace,omitempty" json:"recordTrace,omitempty"`

	// Execution
	Timeout      Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Retries      int      `yaml:"retries,omitempty" json:"retries,omitempty"`
	Workers      int      `yaml:"workers,omitempty" json:"workers,omitempty"`
	StallTimeout Duration `yaml:"stallTimeout,omitempty" json:"stallTimeout,omitempty"`
	RunDeadline  Duration `yaml:"runDeadline,omitempty" json:"runDeadline,omitempty"`

	// Filters applied when the CLI does not override them
	Tags []string `yaml:"tags,omitempty" json:"tags,omitempty"`
	Grep string   `yaml:"grep,omitempty" json:"grep,omitempty"`

	// Output
	ResultsDir string   `yaml:"resultsDir,omitempty" json:"resultsDir,omitempty"`
	Reporters  []string `yaml:"reporters,omitempty" json:"reporters,omitempty"`
	NoColor    *bool    `yaml:"noColor,omitempty" json:"noColor,omitempty"`

	// Integrations
	HistoryDB string        `yaml:"historyDb,omitempty" json:"historyDb,omitempty"`
	Notify    NotifyConfig  `yaml:"notify,omitempty" json:"notify,omitempty"`
	Metrics   MetricsConfig `yaml:"metrics,omitempty" json:"metrics,omitempty"`
}

// NotifyConfig configures run-completion notifications.
type NotifyConfig struct {
	On           string `yaml:"on,omitempty" json:"on,omitempty"` // always, failure, success, recovery
	SlackWebhook string `yaml:"slackWebhook,omitempty" json:"slackWebhook,omitempty"`
	SlackChannel string `yaml:"slackChannel,omitempty" json:"slackChannel,omitempty"`
	TeamsWebhook string `yaml:"teamsWebhook,omitempty" json:"teamsWebhook,omitempty"`
}

// MetricsConfig configures run metrics export.
type MetricsConfig struct {
	Format string `yaml:"format,omitempty" json:"format,omitempty"` // prometheus, json
	Port   int    `yaml:"port,omitempty" json:"port,omitempty"`
	File   string `yaml:"file,omitempty" json:"file,omitempty"`
}

// ConfigFilenames contains the possible config file names, checked in order.
var ConfigFilenames = []string{
	"ptf.yaml",
	"ptf.yml",
	".ptf.yaml",
	".ptf.yml",
}

// Bool returns a pointer to a bool value.
func Bool(b bool) *bool { return &b }

func getBool(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

// GetHeadless defaults to true.
func (c *Config) GetHeadless() bool { return getBool(c.Headless, true) }

// GetSessionReuse defaults to true: the browser stays alive across tests and
// only volatile state is cleared between them.
func (c *Config) GetSessionReuse() bool { return getBool(c.SessionReuse, true) }

// GetRecordVideo defaults to false.
func (c *Config) GetRecordVideo() bool { return getBool(c.RecordVideo, false) }

// GetRecordHAR defaults to false.
func (c *Config) GetRecordHAR() bool { return getBool(c.RecordHAR, false) }

// GetRecordTrace defaults to false.
func (c *Config) GetRecordTrace() bool { return getBool(c.RecordTrace, false) }

// GetNoColor defaults to false.
func (c *Config) GetNoColor() bool { return getBool(c.NoColor, false) }

// GetTimeout returns the per-test timeout, defaulting to 30s.
func (c *Config) GetTimeout() time.Duration {
	if c.Timeout > 0 {
		return time.Duration(c.Timeout)
	}
	return DefaultTimeout
}

// GetWorkers returns the parallel worker count.
func (c *Config) GetWorkers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return DefaultWorkers
}

// GetStallTimeout returns how long a worker may sit on one assignment
// before being recycled.
func (c *Config) GetStallTimeout() time.Duration {
	if c.StallTimeout > 0 {
		return time.Duration(c.StallTimeout)
	}
	return DefaultStallTimeout
}

// GetResultsDir returns the shared artifacts directory.
func (c *Config) GetResultsDir() string {
	if c.ResultsDir != "" {
		return c.ResultsDir
	}
	return DefaultResultsDir
}

// GetBrowser returns the browser engine name.
func (c *Config) GetBrowser() string {
	if c.Browser != "" {
		return c.Browser
	}
	return DefaultBrowser
}

// GetReporters returns the configured reporters, defaulting to console.
func (c *Config) GetReporters() []string {
	if len(c.Reporters) > 0 {
		return c.Reporters
	}
	return []string{"console"}
}

// Load loads configuration from the given path, or searches the working
// directory when path is empty. A .env file next to the config is loaded
// first so PTF_* overrides can come from it.
func Load(path string) (*Config, error) {
	if path != "" {
		return loadFromFile(path)
	}
	return FindAndLoad(".")
}

// FindAndLoad searches for a config file in the given directory, falling
// back to defaults when none exists.
func FindAndLoad(dir string) (*Config, error) {
	_ = godotenv.Load(filepath.Join(dir, ".env"))
	for _, filename := range ConfigFilenames {
		p := filepath.Join(dir, filename)
		if _, err := os.Stat(p); err == nil {
			return loadFromFile(p)
		}
	}
	cfg := Default()
	cfg.ApplyEnv()
	return cfg, nil
}

func loadFromFile(path string) (*Config, error) {
	_ = godotenv.Load(filepath.Join(filepath.Dir(path), ".env"))

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv overlays PTF_* environment variables onto the config. Worker
// processes receive their configuration this way: the orchestrator
// propagates the resolved values into each child's environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("PTF_ENV"); v != "" {
		c.Environment = v
	}
	if v := os.Getenv("PTF_BROWSER"); v != "" {
		c.Browser = v
	}
	if v := os.Getenv("PTF_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("PTF_RESULTS_DIR"); v != "" {
		c.ResultsDir = v
	}
	if v := os.Getenv("PTF_HEADLESS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Headless = Bool(b)
		}
	}
	if v := os.Getenv("PTF_SESSION_REUSE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.SessionReuse = Bool(b)
		}
	}
	if v := os.Getenv("PTF_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Timeout = Duration(d)
		}
	}
	if v := os.Getenv("PTF_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Workers = n
		}
	}
	if v := os.Getenv("PTF_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Retries = n
		}
	}
}

// Env serializes the worker-relevant values as environment variable pairs.
// The orchestrator appends these to each worker's environment so a worker
// reconstructs the same effective configuration without re-reading files.
func (c *Config) Env() []string {
	return []string{
		"PTF_ENV=" + c.Environment,
		"PTF_BROWSER=" + c.GetBrowser(),
		"PTF_BASE_URL=" + c.BaseURL,
		"PTF_RESULTS_DIR=" + c.GetResultsDir(),
		"PTF_HEADLESS=" + strconv.FormatBool(c.GetHeadless()),
		"PTF_SESSION_REUSE=" + strconv.FormatBool(c.GetSessionReuse()),
		"PTF_TIMEOUT=" + c.GetTimeout().String(),
		"PTF_RETRIES=" + strconv.Itoa(c.Retries),
	}
}

// Save writes the configuration to a file. Used by `ptf init`.
func (c *Config) Save(path string) error {
	raw, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}
