// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Network NetworkConfig `mapstructure:"network" yaml:"network"`
	Agent   AgentConfig   `mapstructure:"agent" yaml:"agent"`
	Explore ExploreConfig `mapstructure:"explore" yaml:"explore"`
}

// LoggerConfig controls the zap logger setup.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"` // "console" or "json"
	ServiceName string      `mapstructure:"serviceName" yaml:"serviceName"`
	AddSource   bool        `mapstructure:"addSource" yaml:"addSource"`
	LogFile     string      `mapstructure:"logFile" yaml:"logFile"`
	MaxSize     int         `mapstructure:"maxSize" yaml:"maxSize"` // megabytes
	MaxBackups  int         `mapstructure:"maxBackups" yaml:"maxBackups"`
	MaxAge      int         `mapstructure:"maxAge" yaml:"maxAge"` // days
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig maps log levels to terminal colors for the console encoder.
type ColorConfig struct {
	Debug string `mapstructure:"debug" yaml:"debug"`
	Info  string `mapstructure:"info" yaml:"info"`
	Warn  string `mapstructure:"warn" yaml:"warn"`
	Error string `mapstructure:"error" yaml:"error"`
	Fatal string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig controls the headless browser process.
type BrowserConfig struct {
	Headless        bool     `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors bool     `mapstructure:"ignoreTlsErrors" yaml:"ignoreTlsErrors"`
	DisableCache    bool     `mapstructure:"disableCache" yaml:"disableCache"`
	UserAgent       string   `mapstructure:"userAgent" yaml:"userAgent"`
	Args            []string `mapstructure:"args" yaml:"args"`
}

// NetworkConfig bounds every browser operation.
type NetworkConfig struct {
	NavigationTimeout time.Duration `mapstructure:"navigationTimeout" yaml:"navigationTimeout"`
	ActionTimeout     time.Duration `mapstructure:"actionTimeout" yaml:"actionTimeout"`
	// QuiescenceWait is how long the session settles after a load or a
	// network-heavy interaction before the page is considered quiet.
	QuiescenceWait time.Duration `mapstructure:"quiescenceWait" yaml:"quiescenceWait"`
}

// AgentConfig wires the inference service used by the decision engine.
type AgentConfig struct {
	LLM LLMConfig `mapstructure:"llm" yaml:"llm"`
}

// LLMProvider identifies a supported inference backend.
type LLMProvider string

const (
	ProviderGemini LLMProvider = "gemini"
)

// LLMConfig holds the configured model set and the default to dispatch to.
type LLMConfig struct {
	Models       map[string]LLMModelConfig `mapstructure:"models" yaml:"models"`
	DefaultModel string                    `mapstructure:"defaultModel" yaml:"defaultModel"`
	// RateLimitRPS paces outbound requests. CooldownWindow is how long all
	// callers back off after the service signals a rate limit.
	RateLimitRPS   float64       `mapstructure:"rateLimitRps" yaml:"rateLimitRps"`
	CooldownWindow time.Duration `mapstructure:"cooldownWindow" yaml:"cooldownWindow"`
}

// LLMModelConfig configures a single model endpoint.
type LLMModelConfig struct {
	Provider    LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"apiKey" yaml:"apiKey"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout  time.Duration `mapstructure:"apiTimeout" yaml:"apiTimeout"`
	MaxTokens   int           `mapstructure:"maxTokens" yaml:"maxTokens"`
	Temperature float32       `mapstructure:"temperature" yaml:"temperature"`
}

// Credentials are optional login credentials for the target application.
// They are usually supplied via ROVER_EXPLORE_CREDENTIALS_USERNAME and
// ROVER_EXPLORE_CREDENTIALS_PASSWORD rather than the config file.
type Credentials struct {
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
}

// Configured reports whether both credential slots are present.
func (c Credentials) Configured() bool {
	return c.Username != "" && c.Password != ""
}

// ExploreConfig bounds a single exploration run.
type ExploreConfig struct {
	// Termination policy. A run halts when any of these fires.
	MaxTotalActions        int `mapstructure:"maxTotalActions" yaml:"maxTotalActions"`
	MaxConsecutiveFailures int `mapstructure:"maxConsecutiveFailures" yaml:"maxConsecutiveFailures"`
	// SoftActionCap and SoftFailureCap fire together: a run past the soft
	// action cap tolerates fewer consecutive decision failures.
	SoftActionCap  int `mapstructure:"softActionCap" yaml:"softActionCap"`
	SoftFailureCap int `mapstructure:"softFailureCap" yaml:"softFailureCap"`

	MaxBatchSize  int `mapstructure:"maxBatchSize" yaml:"maxBatchSize"`
	HistoryWindow int `mapstructure:"historyWindow" yaml:"historyWindow"`

	OutputDir   string      `mapstructure:"outputDir" yaml:"outputDir"`
	TestType    string      `mapstructure:"testType" yaml:"testType"`
	Profile     string      `mapstructure:"profile" yaml:"profile"`
	Credentials Credentials `mapstructure:"credentials" yaml:"credentials"`
}

// SetDefaults applies default values for anything unset.
func (c *Config) SetDefaults() {
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Logger.Format == "" {
		c.Logger.Format = "console"
	}
	if c.Logger.ServiceName == "" {
		c.Logger.ServiceName = "rover-cli"
	}
	if c.Logger.MaxSize <= 0 {
		c.Logger.MaxSize = 50
	}
	if c.Logger.MaxBackups <= 0 {
		c.Logger.MaxBackups = 3
	}
	if c.Logger.MaxAge <= 0 {
		c.Logger.MaxAge = 14
	}
	if c.Logger.Colors == (ColorConfig{}) {
		c.Logger.Colors = ColorConfig{Debug: "cyan", Info: "green", Warn: "yellow", Error: "red", Fatal: "red"}
	}

	if c.Browser.UserAgent == "" {
		c.Browser.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"
	}

	if c.Network.NavigationTimeout <= 0 {
		c.Network.NavigationTimeout = 45 * time.Second
	}
	if c.Network.ActionTimeout <= 0 {
		c.Network.ActionTimeout = 10 * time.Second
	}
	if c.Network.QuiescenceWait <= 0 {
		c.Network.QuiescenceWait = 2 * time.Second
	}

	if c.Agent.LLM.RateLimitRPS <= 0 {
		c.Agent.LLM.RateLimitRPS = 0.5
	}
	if c.Agent.LLM.CooldownWindow <= 0 {
		c.Agent.LLM.CooldownWindow = 30 * time.Second
	}

	if c.Explore.MaxTotalActions <= 0 {
		c.Explore.MaxTotalActions = 50
	}
	if c.Explore.MaxConsecutiveFailures <= 0 {
		c.Explore.MaxConsecutiveFailures = 5
	}
	if c.Explore.SoftActionCap <= 0 {
		c.Explore.SoftActionCap = 30
	}
	if c.Explore.SoftFailureCap <= 0 {
		c.Explore.SoftFailureCap = 3
	}
	if c.Explore.MaxBatchSize <= 0 || c.Explore.MaxBatchSize > 4 {
		c.Explore.MaxBatchSize = 4
	}
	if c.Explore.HistoryWindow <= 0 {
		c.Explore.HistoryWindow = 10
	}
	if c.Explore.OutputDir == "" {
		c.Explore.OutputDir = "rover-output"
	}
	if c.Explore.TestType == "" {
		c.Explore.TestType = "exploratory"
	}
}

// Validate rejects configurations the run loop cannot operate under.
func (c *Config) Validate() error {
	if c.Explore.MaxBatchSize < 1 {
		return fmt.Errorf("explore.maxBatchSize must be at least 1")
	}
	if c.Explore.SoftActionCap > c.Explore.MaxTotalActions {
		return fmt.Errorf("explore.softActionCap (%d) must not exceed explore.maxTotalActions (%d)",
			c.Explore.SoftActionCap, c.Explore.MaxTotalActions)
	}
	if len(c.Agent.LLM.Models) > 0 {
		name := c.Agent.LLM.DefaultModel
		if name == "" {
			return fmt.Errorf("agent.llm.defaultModel is required when models are configured")
		}
		if _, ok := c.Agent.LLM.Models[name]; !ok {
			return fmt.Errorf("agent.llm.defaultModel %q not found in agent.llm.models", name)
		}
	}
	return nil
}

// Load unmarshals the current viper state into a validated Config.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}
