package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// PipelineConfig carries every tunable of the query pipeline. It is built
// once at startup and passed to the components that need it.
type PipelineConfig struct {
	LoiterSpeedKn      float64
	LoiterMinDwell     time.Duration
	LoiterMaxGap       time.Duration
	LoiterWorkers      int
	MaxLookback        time.Duration
	DefaultLookback    time.Duration
	DefaultLimit       int
	MaxLimit           int
	NameMatchThreshold float64
	PlannerTimeout     time.Duration
	HistoryLimit       int
	SessionTTL         time.Duration
	SessionSweepEvery  time.Duration
	ForbiddenKeywords  []string
	// AnchorToData pins the pipeline clock to the newest stored report, so
	// relative windows such as "last 24 hours" work on historical datasets.
	AnchorToData bool
}

type StoreConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver     string
	DSN        string
	SQLitePath string
}

type PlannerConfig struct {
	// Mode is "llm" (call a model provider directly) or "remote" (an HTTP
	// planner service).
	Mode              string
	Provider          string
	Model             string
	OpenAIBaseURL     string
	OpenAIAPIKey      string
	AnthropicBaseURL  string
	AnthropicAPIKey   string
	OllamaBaseURL     string
	RemoteURL         string
	RequestsPerSecond float64
	Burst             int
}

type MQTTConfig struct {
	Enabled     bool
	BrokerURL   string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
}

type ServerConfig struct {
	HTTPAddr string
	LogLevel string
	Store    StoreConfig
	Planner  PlannerConfig
	Pipeline PipelineConfig
	MQTT     MQTTConfig
}

type CLIConfig struct {
	LogLevel string
	Store    StoreConfig
	Planner  PlannerConfig
	Pipeline PipelineConfig
}

// fileConfig is the optional AISQ_CONFIG file. Environment variables win
// over anything set here.
type fileConfig struct {
	HTTPAddr string `toml:"http_addr" yaml:"http_addr"`
	LogLevel string `toml:"log_level" yaml:"log_level"`
	Store    struct {
		Driver     string `toml:"driver" yaml:"driver"`
		DSN        string `toml:"dsn" yaml:"dsn"`
		SQLitePath string `toml:"sqlite_path" yaml:"sqlite_path"`
	} `toml:"store" yaml:"store"`
	Planner struct {
		Mode              string  `toml:"mode" yaml:"mode"`
		Provider          string  `toml:"provider" yaml:"provider"`
		Model             string  `toml:"model" yaml:"model"`
		OpenAIBaseURL     string  `toml:"openai_base_url" yaml:"openai_base_url"`
		AnthropicBaseURL  string  `toml:"anthropic_base_url" yaml:"anthropic_base_url"`
		OllamaBaseURL     string  `toml:"ollama_base_url" yaml:"ollama_base_url"`
		RemoteURL         string  `toml:"remote_url" yaml:"remote_url"`
		RequestsPerSecond float64 `toml:"requests_per_second" yaml:"requests_per_second"`
		Burst             int     `toml:"burst" yaml:"burst"`
		TimeoutSeconds    int     `toml:"timeout_seconds" yaml:"timeout_seconds"`
	} `toml:"planner" yaml:"planner"`
	Loitering struct {
		SpeedKn       float64 `toml:"speed_threshold_kn" yaml:"speed_threshold_kn"`
		MinDwellHours float64 `toml:"min_dwell_hours" yaml:"min_dwell_hours"`
		MaxGapMinutes int     `toml:"max_gap_minutes" yaml:"max_gap_minutes"`
		Workers       int     `toml:"workers" yaml:"workers"`
	} `toml:"loitering" yaml:"loitering"`
	Query struct {
		MaxLookbackHours     int      `toml:"max_lookback_hours" yaml:"max_lookback_hours"`
		DefaultLookbackHours int      `toml:"default_lookback_hours" yaml:"default_lookback_hours"`
		DefaultLimit         int      `toml:"default_limit" yaml:"default_limit"`
		MaxLimit             int      `toml:"max_limit" yaml:"max_limit"`
		NameMatchThreshold   float64  `toml:"name_match_threshold" yaml:"name_match_threshold"`
		ForbiddenKeywords    []string `toml:"forbidden_keywords" yaml:"forbidden_keywords"`
		AnchorToData         bool     `toml:"anchor_to_data" yaml:"anchor_to_data"`
	} `toml:"query" yaml:"query"`
	Session struct {
		HistoryLimit int `toml:"history_limit" yaml:"history_limit"`
		TTLMinutes   int `toml:"ttl_minutes" yaml:"ttl_minutes"`
	} `toml:"session" yaml:"session"`
	MQTT struct {
		Enabled     bool   `toml:"enabled" yaml:"enabled"`
		BrokerURL   string `toml:"broker_url" yaml:"broker_url"`
		ClientID    string `toml:"client_id" yaml:"client_id"`
		TopicPrefix string `toml:"topic_prefix" yaml:"topic_prefix"`
	} `toml:"mqtt" yaml:"mqtt"`
}

func defaultFileConfig() fileConfig {
	var f fileConfig
	f.HTTPAddr = ":9020"
	f.LogLevel = "info"
	f.Store.Driver = "postgres"
	f.Store.SQLitePath = "aisquery.db"
	f.Planner.Mode = "llm"
	f.Planner.Provider = "openai"
	f.Planner.Model = "gpt-4o-mini"
	f.Planner.OpenAIBaseURL = "https://api.openai.com/v1"
	f.Planner.AnthropicBaseURL = "https://api.anthropic.com"
	f.Planner.OllamaBaseURL = "http://localhost:11434"
	f.Planner.RequestsPerSecond = 5
	f.Planner.Burst = 2
	f.Planner.TimeoutSeconds = 20
	f.Loitering.SpeedKn = 2.0
	f.Loitering.MinDwellHours = 4
	f.Loitering.MaxGapMinutes = 60
	f.Loitering.Workers = 4
	f.Query.MaxLookbackHours = 30 * 24
	f.Query.DefaultLookbackHours = 24
	f.Query.DefaultLimit = 50
	f.Query.MaxLimit = 10000
	f.Query.NameMatchThreshold = 0.75
	f.Query.ForbiddenKeywords = []string{"exec", "eval", "import", "subprocess", "drop", "delete", "truncate", "alter", "shutdown"}
	f.Session.HistoryLimit = 10
	f.Session.TTLMinutes = 30
	f.MQTT.BrokerURL = "tcp://localhost:1883"
	f.MQTT.ClientID = "aisquery-server"
	f.MQTT.TopicPrefix = "aisq"
	return f
}

// loadFile reads path as TOML or YAML depending on its extension, on top of
// the defaults. An empty path returns the defaults.
func loadFile(path string) (fileConfig, error) {
	f := defaultFileConfig()
	if path == "" {
		return f, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return f, errors.Wrapf(err, "read config file %s", path)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(raw), &f); err != nil {
			return f, errors.Wrapf(err, "parse toml config %s", path)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &f); err != nil {
			return f, errors.Wrapf(err, "parse yaml config %s", path)
		}
	default:
		return f, errors.Newf("config file %s: unsupported extension, use .toml or .yaml", path)
	}
	return f, nil
}

func LoadServerConfig() (ServerConfig, error) {
	f, err := loadFile(os.Getenv("AISQ_CONFIG"))
	if err != nil {
		return ServerConfig{}, err
	}
	cfg := ServerConfig{
		HTTPAddr: getenvDefault("AISQ_HTTP_ADDR", f.HTTPAddr),
		LogLevel: getenvDefault("LOG_LEVEL", f.LogLevel),
		Store:    storeFromEnv(f),
		Planner:  plannerFromEnv(f),
		Pipeline: pipelineFromEnv(f),
		MQTT: MQTTConfig{
			Enabled:     getenvBoolDefault("MQTT_ENABLED", f.MQTT.Enabled),
			BrokerURL:   getenvDefault("MQTT_BROKER_URL", f.MQTT.BrokerURL),
			ClientID:    getenvDefault("AISQ_MQTT_CLIENT_ID", f.MQTT.ClientID),
			Username:    os.Getenv("MQTT_USERNAME"),
			Password:    os.Getenv("MQTT_PASSWORD"),
			TopicPrefix: getenvDefault("MQTT_TOPIC_PREFIX", f.MQTT.TopicPrefix),
		},
	}
	if err := cfg.Store.Validate(); err != nil {
		return ServerConfig{}, err
	}
	if err := cfg.Planner.Validate(); err != nil {
		return ServerConfig{}, err
	}
	if err := cfg.Pipeline.Validate(); err != nil {
		return ServerConfig{}, err
	}
	return cfg, nil
}

// LoadCLIConfig reads the same sources as the server. The CLI defaults to a
// local SQLite database.
func LoadCLIConfig() (CLIConfig, error) {
	f, err := loadFile(os.Getenv("AISQ_CONFIG"))
	if err != nil {
		return CLIConfig{}, err
	}
	if os.Getenv("AISQ_CONFIG") == "" {
		f.Store.Driver = "sqlite"
	}
	cfg := CLIConfig{
		LogLevel: getenvDefault("LOG_LEVEL", "warn"),
		Store:    storeFromEnv(f),
		Planner:  plannerFromEnv(f),
		Pipeline: pipelineFromEnv(f),
	}
	if err := cfg.Planner.Validate(); err != nil {
		return CLIConfig{}, err
	}
	if err := cfg.Pipeline.Validate(); err != nil {
		return CLIConfig{}, err
	}
	return cfg, nil
}

func storeFromEnv(f fileConfig) StoreConfig {
	return StoreConfig{
		Driver:     strings.ToLower(getenvDefault("AISQ_DB_DRIVER", f.Store.Driver)),
		DSN:        getenvDefault("DB_DSN", f.Store.DSN),
		SQLitePath: getenvDefault("AISQ_SQLITE_PATH", f.Store.SQLitePath),
	}
}

func plannerFromEnv(f fileConfig) PlannerConfig {
	return PlannerConfig{
		Mode:              strings.ToLower(getenvDefault("AISQ_PLANNER_MODE", f.Planner.Mode)),
		Provider:          strings.ToLower(getenvDefault("LLM_PROVIDER", f.Planner.Provider)),
		Model:             getenvDefault("LLM_MODEL", f.Planner.Model),
		OpenAIBaseURL:     getenvDefault("OPENAI_BASE_URL", f.Planner.OpenAIBaseURL),
		OpenAIAPIKey:      os.Getenv("OPENAI_API_KEY"),
		AnthropicBaseURL:  getenvDefault("ANTHROPIC_BASE_URL", f.Planner.AnthropicBaseURL),
		AnthropicAPIKey:   os.Getenv("ANTHROPIC_API_KEY"),
		OllamaBaseURL:     getenvDefault("OLLAMA_BASE_URL", f.Planner.OllamaBaseURL),
		RemoteURL:         strings.TrimRight(getenvDefault("AISQ_PLANNER_URL", f.Planner.RemoteURL), "/"),
		RequestsPerSecond: getenvFloatDefault("AISQ_PLANNER_RPS", f.Planner.RequestsPerSecond),
		Burst:             getenvIntDefault("AISQ_PLANNER_BURST", f.Planner.Burst),
	}
}

func pipelineFromEnv(f fileConfig) PipelineConfig {
	keywords := f.Query.ForbiddenKeywords
	if v := os.Getenv("AISQ_FORBIDDEN_KEYWORDS"); v != "" {
		keywords = splitList(v)
	}
	return PipelineConfig{
		LoiterSpeedKn:      getenvFloatDefault("AISQ_LOITER_SPEED_KN", f.Loitering.SpeedKn),
		LoiterMinDwell:     time.Duration(getenvFloatDefault("AISQ_LOITER_MIN_DWELL_HOURS", f.Loitering.MinDwellHours) * float64(time.Hour)),
		LoiterMaxGap:       time.Duration(getenvIntDefault("AISQ_LOITER_MAX_GAP_MINUTES", f.Loitering.MaxGapMinutes)) * time.Minute,
		LoiterWorkers:      getenvIntDefault("AISQ_LOITER_WORKERS", f.Loitering.Workers),
		MaxLookback:        time.Duration(getenvIntDefault("AISQ_MAX_LOOKBACK_HOURS", f.Query.MaxLookbackHours)) * time.Hour,
		DefaultLookback:    time.Duration(getenvIntDefault("AISQ_DEFAULT_LOOKBACK_HOURS", f.Query.DefaultLookbackHours)) * time.Hour,
		DefaultLimit:       getenvIntDefault("AISQ_DEFAULT_LIMIT", f.Query.DefaultLimit),
		MaxLimit:           getenvIntDefault("AISQ_MAX_LIMIT", f.Query.MaxLimit),
		NameMatchThreshold: getenvFloatDefault("AISQ_NAME_MATCH_THRESHOLD", f.Query.NameMatchThreshold),
		PlannerTimeout:     time.Duration(getenvIntDefault("AISQ_PLANNER_TIMEOUT_SECONDS", f.Planner.TimeoutSeconds)) * time.Second,
		HistoryLimit:       getenvIntDefault("CHAT_HISTORY_LIMIT", f.Session.HistoryLimit),
		SessionTTL:         time.Duration(getenvIntDefault("AISQ_SESSION_TTL_MINUTES", f.Session.TTLMinutes)) * time.Minute,
		SessionSweepEvery:  time.Minute,
		ForbiddenKeywords:  keywords,
		AnchorToData:       getenvBoolDefault("AISQ_ANCHOR_TO_DATA", f.Query.AnchorToData),
	}
}

// DefaultPipeline returns the built-in pipeline settings with no file or
// environment applied.
func DefaultPipeline() PipelineConfig {
	return pipelineDefaults(defaultFileConfig())
}

func pipelineDefaults(f fileConfig) PipelineConfig {
	return PipelineConfig{
		LoiterSpeedKn:      f.Loitering.SpeedKn,
		LoiterMinDwell:     time.Duration(f.Loitering.MinDwellHours * float64(time.Hour)),
		LoiterMaxGap:       time.Duration(f.Loitering.MaxGapMinutes) * time.Minute,
		LoiterWorkers:      f.Loitering.Workers,
		MaxLookback:        time.Duration(f.Query.MaxLookbackHours) * time.Hour,
		DefaultLookback:    time.Duration(f.Query.DefaultLookbackHours) * time.Hour,
		DefaultLimit:       f.Query.DefaultLimit,
		MaxLimit:           f.Query.MaxLimit,
		NameMatchThreshold: f.Query.NameMatchThreshold,
		PlannerTimeout:     time.Duration(f.Planner.TimeoutSeconds) * time.Second,
		HistoryLimit:       f.Session.HistoryLimit,
		SessionTTL:         time.Duration(f.Session.TTLMinutes) * time.Minute,
		SessionSweepEvery:  time.Minute,
		ForbiddenKeywords:  f.Query.ForbiddenKeywords,
		AnchorToData:       f.Query.AnchorToData,
	}
}

func (c PipelineConfig) Validate() error {
	switch {
	case c.LoiterSpeedKn <= 0:
		return errors.New("loitering speed threshold must be positive")
	case c.LoiterMinDwell <= 0:
		return errors.New("loitering minimum dwell must be positive")
	case c.LoiterMaxGap <= 0:
		return errors.New("loitering max gap must be positive")
	case c.LoiterWorkers < 1:
		return errors.New("loitering workers must be at least 1")
	case c.MaxLookback <= 0 || c.DefaultLookback <= 0:
		return errors.New("lookback windows must be positive")
	case c.DefaultLookback > c.MaxLookback:
		return errors.Newf("default lookback %s exceeds max lookback %s", c.DefaultLookback, c.MaxLookback)
	case c.DefaultLimit < 1 || c.MaxLimit < c.DefaultLimit:
		return errors.Newf("limits must satisfy 1 <= default (%d) <= max (%d)", c.DefaultLimit, c.MaxLimit)
	case c.NameMatchThreshold <= 0 || c.NameMatchThreshold > 1:
		return errors.Newf("name match threshold %v must be in (0, 1]", c.NameMatchThreshold)
	case c.PlannerTimeout <= 0:
		return errors.New("planner timeout must be positive")
	case c.HistoryLimit < 0:
		return errors.New("history limit must not be negative")
	}
	return nil
}

func (c StoreConfig) Validate() error {
	switch c.Driver {
	case "postgres":
		if c.DSN == "" {
			return errors.New("DB_DSN is required when AISQ_DB_DRIVER=postgres")
		}
	case "sqlite":
		if c.SQLitePath == "" {
			return errors.New("AISQ_SQLITE_PATH is required when AISQ_DB_DRIVER=sqlite")
		}
	default:
		return errors.Newf("unsupported db driver: %s", c.Driver)
	}
	return nil
}

func (c PlannerConfig) Validate() error {
	switch c.Mode {
	case "remote":
		if c.RemoteURL == "" {
			return errors.New("AISQ_PLANNER_URL is required when AISQ_PLANNER_MODE=remote")
		}
		return nil
	case "llm":
	default:
		return errors.Newf("unsupported planner mode: %s", c.Mode)
	}
	if c.Provider == "openai" && c.OpenAIAPIKey == "" {
		return errors.New("OPENAI_API_KEY is required when LLM_PROVIDER=openai")
	}
	if c.Provider == "claude" && c.AnthropicAPIKey == "" {
		return errors.New("ANTHROPIC_API_KEY is required when LLM_PROVIDER=claude")
	}
	return nil
}

func getenvDefault(key, val string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return val
}

func getenvIntDefault(key string, val int) int {
	v := os.Getenv(key)
	if v == "" {
		return val
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return val
	}
	return n
}

func getenvFloatDefault(key string, val float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return val
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return val
	}
	return n
}

func getenvBoolDefault(key string, val bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return val
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return val
	}
	return b
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, strings.ToLower(s))
		}
	}
	return out
}
