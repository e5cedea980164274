package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store drivers
const (
	StoreDriverMySQL  = "mysql"
	StoreDriverMemory = "memory"
)

// Config holds all configuration
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Store       StoreConfig       `mapstructure:"store"`
	MySQL       MySQLConfig       `mapstructure:"mysql"`
	Redis       RedisConfig       `mapstructure:"redis"`
	JWT         JWTConfig         `mapstructure:"jwt"`
	ExternalJWT ExternalJWTConfig `mapstructure:"external_jwt"`
	WebSocket   WebSocketConfig   `mapstructure:"websocket"`
	Engine      EngineConfig      `mapstructure:"engine"`
	Notify      NotifyConfig      `mapstructure:"notify"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	HTTPPort       int      `mapstructure:"http_port"`
	Mode           string   `mapstructure:"mode"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	MachineId      uint16   `mapstructure:"machine_id"` // Sonyflake machine id, unique per instance
}

// StoreConfig selects the durable store
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	// Users seeds the identity directory of the memory driver
	Users []SeedUser `mapstructure:"users"`
}

// SeedUser is a portal account known to the memory driver
type SeedUser struct {
	Id         string `mapstructure:"id"`
	Identifier string `mapstructure:"identifier"`
	Nickname   string `mapstructure:"nickname"`
}

// MySQLConfig holds MySQL configuration
type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	Charset      string `mapstructure:"charset"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	AutoMigrate  bool   `mapstructure:"auto_migrate"`
}

// DSN returns the MySQL data source name
func (c *MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.Database, c.Charset)
}

// RedisConfig holds Redis configuration. An empty host disables Redis.
type RedisConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// Addr returns the Redis address
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Enabled reports whether a Redis server is configured
func (c *RedisConfig) Enabled() bool {
	return c.Host != ""
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

// ExternalJWTConfig holds settings for tokens issued by the portal
type ExternalJWTConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	Secret            string `mapstructure:"secret"`
	DefaultRole       string `mapstructure:"default_role"`
	DefaultPlatformId int    `mapstructure:"default_platform_id"`
}

// WebSocketConfig holds WebSocket configuration
type WebSocketConfig struct {
	MaxConnNum       int64         `mapstructure:"max_conn_num"`
	MaxMessageSize   int64         `mapstructure:"max_message_size"`
	WriteWait        time.Duration `mapstructure:"write_wait"`
	PongWait         time.Duration `mapstructure:"pong_wait"`
	PingPeriod       time.Duration `mapstructure:"ping_period"`
	WriteChannelSize int           `mapstructure:"write_channel_size"`
}

// EngineConfig holds conversation engine tuning
type EngineConfig struct {
	WorkerQueueSize       int           `mapstructure:"worker_queue_size"`
	WorkerIdleTimeout     time.Duration `mapstructure:"worker_idle_timeout"`
	PresenceTimeout       time.Duration `mapstructure:"presence_timeout"`
	PresenceSweepInterval time.Duration `mapstructure:"presence_sweep_interval"`
	SessionBufferSize     int           `mapstructure:"session_buffer_size"`
	MaxNameLength         int           `mapstructure:"max_name_length"`
	MaxContentLength      int           `mapstructure:"max_content_length"`
	ReadPageSize          int           `mapstructure:"read_page_size"`
	ReadRetryAttempts     int           `mapstructure:"read_retry_attempts"`
	ReadRetryBackoff      time.Duration `mapstructure:"read_retry_backoff"`
	DispatchTimeout       time.Duration `mapstructure:"dispatch_timeout"`
}

// NotifyConfig holds notification dispatcher configuration
type NotifyConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Queue    string `mapstructure:"queue"`
	MaxRetry int    `mapstructure:"max_retry"`
}

// Global config instance
var GlobalConfig *Config

// Load loads configuration from file.
// A .env file next to the working directory is loaded first when present,
// and HUDDLE_* environment variables override file values.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("HUDDLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	GlobalConfig = &cfg
	return &cfg, nil
}

// SetDefaults fills zero values with defaults
func (cfg *Config) SetDefaults() {
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8080
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "debug"
	}
	if cfg.Server.MachineId == 0 {
		cfg.Server.MachineId = 1
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = StoreDriverMySQL
	}
	if cfg.MySQL.Charset == "" {
		cfg.MySQL.Charset = "utf8mb4"
	}
	if cfg.MySQL.MaxOpenConns == 0 {
		cfg.MySQL.MaxOpenConns = 100
	}
	if cfg.MySQL.MaxIdleConns == 0 {
		cfg.MySQL.MaxIdleConns = 10
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "huddle:"
	}
	if cfg.JWT.ExpireHours == 0 {
		cfg.JWT.ExpireHours = 168 // 7 days
	}
	if cfg.ExternalJWT.DefaultRole == "" {
		cfg.ExternalJWT.DefaultRole = "student"
	}
	if cfg.WebSocket.MaxConnNum == 0 {
		cfg.WebSocket.MaxConnNum = 10000
	}
	if cfg.WebSocket.MaxMessageSize == 0 {
		cfg.WebSocket.MaxMessageSize = 51200
	}
	if cfg.WebSocket.WriteWait == 0 {
		cfg.WebSocket.WriteWait = 10 * time.Second
	}
	if cfg.WebSocket.PongWait == 0 {
		cfg.WebSocket.PongWait = 30 * time.Second
	}
	if cfg.WebSocket.PingPeriod == 0 {
		cfg.WebSocket.PingPeriod = 27 * time.Second
	}
	if cfg.WebSocket.WriteChannelSize == 0 {
		cfg.WebSocket.WriteChannelSize = 256
	}
	cfg.Engine.SetDefaults()
	if cfg.Notify.Queue == "" {
		cfg.Notify.Queue = "notify"
	}
	if cfg.Notify.MaxRetry == 0 {
		cfg.Notify.MaxRetry = 5
	}
}

// SetDefaults fills zero engine values with defaults
func (c *EngineConfig) SetDefaults() {
	if c.WorkerQueueSize == 0 {
		c.WorkerQueueSize = 128
	}
	if c.WorkerIdleTimeout == 0 {
		c.WorkerIdleTimeout = time.Minute
	}
	if c.PresenceTimeout == 0 {
		c.PresenceTimeout = 60 * time.Second
	}
	if c.PresenceSweepInterval == 0 {
		c.PresenceSweepInterval = 15 * time.Second
	}
	if c.SessionBufferSize == 0 {
		c.SessionBufferSize = 256
	}
	if c.MaxNameLength == 0 {
		c.MaxNameLength = 64
	}
	if c.MaxContentLength == 0 {
		c.MaxContentLength = 4000
	}
	// A page never exceeds what the store returns in one read
	if c.ReadPageSize <= 0 || c.ReadPageSize > 100 {
		c.ReadPageSize = 100
	}
	if c.ReadRetryAttempts == 0 {
		c.ReadRetryAttempts = 3
	}
	if c.ReadRetryBackoff == 0 {
		c.ReadRetryBackoff = 50 * time.Millisecond
	}
	if c.DispatchTimeout == 0 {
		c.DispatchTimeout = 2 * time.Second
	}
}

// Validate checks settings that have no sensible default
func (cfg *Config) Validate() error {
	switch cfg.Store.Driver {
	case StoreDriverMySQL, StoreDriverMemory:
	default:
		return fmt.Errorf("unknown store driver: %q", cfg.Store.Driver)
	}
	for i, u := range cfg.Store.Users {
		if u.Id == "" {
			return fmt.Errorf("store.users[%d].id is required", i)
		}
	}
	if cfg.JWT.Secret == "" && !cfg.ExternalJWT.Enabled {
		return errors.New("jwt.secret is required")
	}
	if cfg.ExternalJWT.Enabled && cfg.ExternalJWT.Secret == "" {
		return errors.New("external_jwt.secret is required when external_jwt is enabled")
	}
	if cfg.Notify.Enabled && !cfg.Redis.Enabled() {
		return errors.New("notify requires redis")
	}
	if cfg.Engine.PresenceSweepInterval > cfg.Engine.PresenceTimeout {
		return errors.New("engine.presence_sweep_interval must not exceed engine.presence_timeout")
	}
	return nil
}
