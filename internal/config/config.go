package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"fooocus-orchestrator/pkg/types"
)

type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	GPUs      types.GPUConfig `yaml:"gpus" mapstructure:"gpus"`
	Worker    WorkerConfig    `yaml:"worker" mapstructure:"worker"`
	Logger    LoggerConfig    `yaml:"logger" mapstructure:"logger"`
	Metrics   MetricsConfig   `yaml:"metrics" mapstructure:"metrics"`
	Tracing   TracingConfig   `yaml:"tracing" mapstructure:"tracing"`
	Security  SecurityConfig  `yaml:"security" mapstructure:"security"`
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	Catalog   CatalogConfig   `yaml:"catalog" mapstructure:"catalog"`
	History   HistoryConfig   `yaml:"history" mapstructure:"history"`
	Audit     AuditConfig     `yaml:"audit" mapstructure:"audit"`
	Editor    EditorConfig    `yaml:"editor" mapstructure:"editor"`
}

type ServerConfig struct {
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
}

// WorkerConfig controls every worker process the Supervisor spawns:
// one per configured GPU slot, all sharing these timeouts.
type WorkerConfig struct {
	BinaryPath          string        `yaml:"binary_path" mapstructure:"binary_path" env:"WORKER_BINARY_PATH"`
	HealthProbeBudget   time.Duration `yaml:"health_probe_budget" mapstructure:"health_probe_budget" env:"WORKER_HEALTH_PROBE_BUDGET" envDefault:"60s"`
	HealthProbeCooldown time.Duration `yaml:"health_probe_cooldown" mapstructure:"health_probe_cooldown" env:"WORKER_HEALTH_PROBE_COOLDOWN" envDefault:"1s"`
	RPCTimeout          time.Duration `yaml:"rpc_timeout" mapstructure:"rpc_timeout" env:"WORKER_RPC_TIMEOUT" envDefault:"30s"`
	SubTaskWallClockCap time.Duration `yaml:"sub_task_wall_clock_cap" mapstructure:"sub_task_wall_clock_cap" env:"WORKER_SUB_TASK_WALL_CLOCK_CAP" envDefault:"30m"`
}

type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

type TracingConfig struct {
	Enabled        bool    `yaml:"enabled" mapstructure:"enabled" env:"TRACING_ENABLED" envDefault:"true"`
	ServiceName    string  `yaml:"service_name" mapstructure:"service_name" env:"TRACING_SERVICE_NAME" envDefault:"fooocus-orchestrator"`
	JaegerEndpoint string  `yaml:"jaeger_endpoint" mapstructure:"jaeger_endpoint" env:"JAEGER_ENDPOINT"`
	SampleRate     float64 `yaml:"sample_rate" mapstructure:"sample_rate" env:"TRACING_SAMPLE_RATE" envDefault:"1.0"`
}

type SecurityConfig struct {
	CORSEnabled           bool          `yaml:"cors_enabled" mapstructure:"cors_enabled" env:"CORS_ENABLED" envDefault:"true"`
	CORSAllowedOrigins    []string      `yaml:"cors_allowed_origins" mapstructure:"cors_allowed_origins"`
	RequestTimeout        time.Duration `yaml:"request_timeout" mapstructure:"request_timeout" env:"REQUEST_TIMEOUT" envDefault:"30s"`
	MaxRequestSize        int64         `yaml:"max_request_size" mapstructure:"max_request_size" env:"MAX_REQUEST_SIZE" envDefault:"10485760"`
	EnableSecurityHeaders bool          `yaml:"enable_security_headers" mapstructure:"enable_security_headers" env:"ENABLE_SECURITY_HEADERS" envDefault:"true"`
}

// RateLimitConfig backs the one limiter this backend keeps: an
// IP-keyed fixed-window counter in Redis applied to POST /generate.
type RateLimitConfig struct {
	Enabled           bool          `yaml:"enabled" mapstructure:"enabled" env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RequestsPerMinute int           `yaml:"requests_per_minute" mapstructure:"requests_per_minute" env:"RATE_LIMIT_RPM" envDefault:"60"`
	BurstLimit        int           `yaml:"burst_limit" mapstructure:"burst_limit" env:"RATE_LIMIT_BURST" envDefault:"100"`
	WindowDuration    time.Duration `yaml:"window_duration" mapstructure:"window_duration" env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
	RedisAddr         string        `yaml:"redis_addr" mapstructure:"redis_addr" env:"RATE_LIMIT_REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword     string        `yaml:"redis_password" mapstructure:"redis_password" env:"RATE_LIMIT_REDIS_PASSWORD"`
	RedisDB           int           `yaml:"redis_db" mapstructure:"redis_db" env:"RATE_LIMIT_REDIS_DB" envDefault:"0"`
}

// CatalogConfig names the directory roots the catalog reader
// enumerates for GET /settings.
type CatalogConfig struct {
	ModelsDir  string `yaml:"models_dir" mapstructure:"models_dir" env:"CATALOG_MODELS_DIR"`
	LorasDir   string `yaml:"loras_dir" mapstructure:"loras_dir" env:"CATALOG_LORAS_DIR"`
	VAEsDir    string `yaml:"vaes_dir" mapstructure:"vaes_dir" env:"CATALOG_VAES_DIR"`
	PresetsDir string `yaml:"presets_dir" mapstructure:"presets_dir" env:"CATALOG_PRESETS_DIR"`
	StylesDir  string `yaml:"styles_dir" mapstructure:"styles_dir" env:"CATALOG_STYLES_DIR"`
}

// HistoryConfig names the outputs root GET /history walks, and the
// sidecar sqlite database it optionally joins against.
type HistoryConfig struct {
	OutputsDir    string `yaml:"outputs_dir" mapstructure:"outputs_dir" env:"HISTORY_OUTPUTS_DIR"`
	SidecarDBPath string `yaml:"sidecar_db_path" mapstructure:"sidecar_db_path" env:"HISTORY_SIDECAR_DB_PATH"`
	DefaultLimit  int    `yaml:"default_limit" mapstructure:"default_limit" env:"HISTORY_DEFAULT_LIMIT" envDefault:"50"`
	MaxLimit      int    `yaml:"max_limit" mapstructure:"max_limit" env:"HISTORY_MAX_LIMIT" envDefault:"500"`
}

type AuditConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled" env:"AUDIT_ENABLED" envDefault:"true"`
}

// EditorConfig names the document and schema files GET/POST
// /config/editor reads and writes.
type EditorConfig struct {
	ConfigPath string `yaml:"config_path" mapstructure:"config_path" env:"EDITOR_CONFIG_PATH"`
	SchemaPath string `yaml:"schema_path" mapstructure:"schema_path" env:"EDITOR_SCHEMA_PATH"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	viper.AutomaticEnv()
	viper.SetEnvPrefix("ORCH")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "120s")

	viper.SetDefault("gpus.enabled", true)
	viper.SetDefault("gpus.distribute", true)

	viper.SetDefault("worker.binary_path", "./bin/fooocus-worker")
	viper.SetDefault("worker.health_probe_budget", "60s")
	viper.SetDefault("worker.health_probe_cooldown", "1s")
	viper.SetDefault("worker.rpc_timeout", "30s")
	viper.SetDefault("worker.sub_task_wall_clock_cap", "30m")

	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.format", "json")
	viper.SetDefault("logger.output_path", "stdout")

	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.port", 9091)
	viper.SetDefault("metrics.path", "/metrics")

	viper.SetDefault("tracing.enabled", true)
	viper.SetDefault("tracing.service_name", "fooocus-orchestrator")
	viper.SetDefault("tracing.jaeger_endpoint", "")
	viper.SetDefault("tracing.sample_rate", 1.0)

	viper.SetDefault("security.cors_enabled", true)
	viper.SetDefault("security.cors_allowed_origins", []string{"*"})
	viper.SetDefault("security.request_timeout", "30s")
	viper.SetDefault("security.max_request_size", 10485760)
	viper.SetDefault("security.enable_security_headers", true)

	viper.SetDefault("rate_limit.enabled", true)
	viper.SetDefault("rate_limit.requests_per_minute", 60)
	viper.SetDefault("rate_limit.burst_limit", 100)
	viper.SetDefault("rate_limit.window_duration", "1m")
	viper.SetDefault("rate_limit.redis_addr", "localhost:6379")
	viper.SetDefault("rate_limit.redis_db", 0)

	viper.SetDefault("catalog.models_dir", "./models/checkpoints")
	viper.SetDefault("catalog.loras_dir", "./models/loras")
	viper.SetDefault("catalog.vaes_dir", "./models/vae")
	viper.SetDefault("catalog.presets_dir", "./presets")
	viper.SetDefault("catalog.styles_dir", "./sdxl_styles")

	viper.SetDefault("history.outputs_dir", "./outputs")
	viper.SetDefault("history.sidecar_db_path", "./outputs/metadata.db")
	viper.SetDefault("history.default_limit", 50)
	viper.SetDefault("history.max_limit", 500)

	viper.SetDefault("audit.enabled", true)

	viper.SetDefault("editor.config_path", "./user_config.json")
	viper.SetDefault("editor.schema_path", "./config_modification_tutorial.json")
}

func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Metrics.Port <= 0 || config.Metrics.Port > 65535 {
		return fmt.Errorf("invalid metrics port: %d", config.Metrics.Port)
	}

	if config.Worker.HealthProbeBudget <= 0 {
		return fmt.Errorf("worker health_probe_budget must be positive")
	}

	if config.Worker.HealthProbeCooldown <= 0 {
		return fmt.Errorf("worker health_probe_cooldown must be positive")
	}

	if config.History.MaxLimit <= 0 {
		return fmt.Errorf("history max_limit must be positive")
	}

	if config.History.DefaultLimit <= 0 || config.History.DefaultLimit > config.History.MaxLimit {
		return fmt.Errorf("history default_limit must be positive and at most max_limit")
	}

	return nil
}

func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) GetMetricsAddr() string {
	return fmt.Sprintf(":%d", c.Metrics.Port)
}
