package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/contact-dispatch/internal/logger"

	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Queue    QueueConfig    `mapstructure:"queue"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Import   ImportConfig   `mapstructure:"import"`
	Device   DeviceConfig   `mapstructure:"device"`
	Security SecurityConfig `mapstructure:"security"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug / release
}

// LogConfig 日志配置
type LogConfig struct {
	Dir        string `mapstructure:"dir"`
	Filename   string `mapstructure:"filename"`
	Level      string `mapstructure:"level"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// ToLoggerOptions 转换为 logger 配置
func (c LogConfig) ToLoggerOptions() logger.Options {
	return logger.Options{
		Dir:        c.Dir,
		Filename:   c.Filename,
		Level:      c.Level,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
		Compress:   c.Compress,
	}
}

// DatabasePoolConfig 数据库连接池配置
type DatabasePoolConfig struct {
	MaxOpenConns           int `mapstructure:"max_open_conns"`
	MaxIdleConns           int `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeSeconds int `mapstructure:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int `mapstructure:"conn_max_idle_time_seconds"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver string             `mapstructure:"driver"` // 数据库驱动（sqlite/postgres）
	DSN    string             `mapstructure:"dsn"`    // 数据库连接串
	Pool   DatabasePoolConfig `mapstructure:"pool"`
}

// JWTConfig 管理端 JWT 配置
type JWTConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	SecretKey string `mapstructure:"secret"`
	Issuer    string `mapstructure:"issuer"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// QueueConfig 异步队列配置
type QueueConfig struct {
	Enabled     bool           `mapstructure:"enabled"`
	Host        string         `mapstructure:"host"`
	Port        int            `mapstructure:"port"`
	Password    string         `mapstructure:"password"`
	DB          int            `mapstructure:"db"`
	Concurrency int            `mapstructure:"concurrency"`
	Queues      map[string]int `mapstructure:"queues"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

// ImportConfig 导入流水线配置
type ImportConfig struct {
	ArtifactDir            string `mapstructure:"artifact_dir"`
	PerDeviceMaxRetries    int    `mapstructure:"per_device_max_retries"`
	PerDeviceRetryDelayMS  int    `mapstructure:"per_device_retry_delay_ms"`
	InterDeviceDelayMS     int    `mapstructure:"inter_device_delay_ms"`
	StrictVerify           bool   `mapstructure:"strict_verify"`
	DefaultScriptKey       string `mapstructure:"default_script_key"`
	PendingLimit           int    `mapstructure:"pending_limit"`
	ConsumptionStrategy    string `mapstructure:"consumption_strategy"` // per_range / merged
	AllocationLockTTLSecs  int    `mapstructure:"allocation_lock_ttl_seconds"`
	DefaultAllocationCount int    `mapstructure:"default_allocation_count"`
}

// PerDeviceRetryDelay 单设备重试间隔
func (c ImportConfig) PerDeviceRetryDelay() time.Duration {
	return time.Duration(c.PerDeviceRetryDelayMS) * time.Millisecond
}

// InterDeviceDelay 设备间固定间隔
func (c ImportConfig) InterDeviceDelay() time.Duration {
	return time.Duration(c.InterDeviceDelayMS) * time.Millisecond
}

// AllocationLockTTL 分配锁过期时间
func (c ImportConfig) AllocationLockTTL() time.Duration {
	return time.Duration(c.AllocationLockTTLSecs) * time.Second
}

// DeviceConfig 设备侧（ADB）配置
type DeviceConfig struct {
	Driver                string `mapstructure:"driver"` // adb / noop
	ADBPath               string `mapstructure:"adb_path"`
	RemoteDir             string `mapstructure:"remote_dir"`
	CommandTimeoutSeconds int    `mapstructure:"command_timeout_seconds"`
}

// CommandTimeout 单条设备命令超时
func (c DeviceConfig) CommandTimeout() time.Duration {
	return time.Duration(c.CommandTimeoutSeconds) * time.Second
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	ExecuteRateLimit RateLimitConfig `mapstructure:"execute_rate_limit"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	WindowSeconds int `mapstructure:"window_seconds"`
	MaxRequests   int `mapstructure:"max_requests"`
}

// Load 从 config.yml 加载配置
func Load() *Config {
	v := viper.GetViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")     // 从当前目录查找
	v.AddConfigPath("../")   // 如果从 cmd/server 运行
	v.AddConfigPath("./etc") // etc 文件夹

	cfg, err := LoadFrom(v)
	if err != nil {
		logger.Errorw("config_unmarshal_failed", "error", err)
		panic(fmt.Errorf("配置解析失败: %w", err))
	}
	return cfg
}

// LoadFrom 使用指定 viper 实例加载配置（便于命令行与测试复用）
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	// 环境变量支持
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // server.port -> SERVER_PORT

	if err := v.ReadInConfig(); err != nil {
		logger.Warnw("config_file_read_failed",
			"error", err,
			"fallback", "env_or_defaults",
		)
	} else {
		logger.Infow("config_file_loaded", "file", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults 写入默认配置
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("log.dir", "")
	v.SetDefault("log.filename", "dispatch.log")
	v.SetDefault("log.level", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.compress", true)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./data/contacts.db")
	v.SetDefault("database.pool.max_open_conns", 1)
	v.SetDefault("database.pool.max_idle_conns", 1)
	v.SetDefault("database.pool.conn_max_lifetime_seconds", 0)
	v.SetDefault("database.pool.conn_max_idle_time_seconds", 0)
	v.SetDefault("jwt.enabled", false)
	v.SetDefault("jwt.secret", "change-me-in-production")
	v.SetDefault("jwt.issuer", "contact-dispatch")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "cd")
	v.SetDefault("queue.enabled", false)
	v.SetDefault("queue.host", "127.0.0.1")
	v.SetDefault("queue.port", 6379)
	v.SetDefault("queue.password", "")
	v.SetDefault("queue.db", 1)
	v.SetDefault("queue.concurrency", 1)
	v.SetDefault("queue.queues", map[string]int{
		"default": 1,
	})
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{
		"Content-Type",
		"Content-Length",
		"Accept-Encoding",
		"Authorization",
		"Cache-Control",
		"X-Requested-With",
	})
	v.SetDefault("cors.allow_credentials", true)
	v.SetDefault("cors.max_age", 600)
	v.SetDefault("import.artifact_dir", "./data/vcf")
	v.SetDefault("import.per_device_max_retries", 2)
	v.SetDefault("import.per_device_retry_delay_ms", 500)
	v.SetDefault("import.inter_device_delay_ms", 150)
	v.SetDefault("import.strict_verify", false)
	v.SetDefault("import.default_script_key", "auto")
	v.SetDefault("import.pending_limit", 1000)
	v.SetDefault("import.allocation_lock_ttl_seconds", 30)
	v.SetDefault("import.default_allocation_count", 100)
	// 消费策略无默认值，需由配置或请求显式选择
	_ = v.BindEnv("import.consumption_strategy")
	v.SetDefault("device.driver", "adb")
	v.SetDefault("device.adb_path", "adb")
	v.SetDefault("device.remote_dir", "/sdcard/Download")
	v.SetDefault("device.command_timeout_seconds", 60)
	v.SetDefault("security.execute_rate_limit.window_seconds", 60)
	v.SetDefault("security.execute_rate_limit.max_requests", 10)
}
