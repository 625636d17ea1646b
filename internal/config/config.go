package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/blues/settlement/internal/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Chain    ChainConfig    `mapstructure:"chain"`
	Sweep    SweepConfig    `mapstructure:"sweep"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Platform PlatformConfig `mapstructure:"platform"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // postgres, sqlite
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	Path     string `mapstructure:"path"` // sqlite 文件路径
}

// ChainConfig 链配置
type ChainConfig struct {
	ChainType      string        `mapstructure:"chain_type"`      // 链类型 (ethereum, polygon, etc.)
	ChainId        int64         `mapstructure:"chain_id"`        // 链ID
	RpcUrl         string        `mapstructure:"rpc_url"`         // RPC节点URL
	PrivateKey     string        `mapstructure:"private_key"`     // 签名私钥
	Confirmations  int           `mapstructure:"confirmations"`   // 确认区块数
	ConfirmTimeout time.Duration `mapstructure:"confirm_timeout"` // 等待确认超时
	PollInterval   time.Duration `mapstructure:"poll_interval"`   // 确认轮询间隔
	ResolveTimeout time.Duration `mapstructure:"resolve_timeout"` // 复查待确认交易时的单笔等待上限
	ABIPath        string        `mapstructure:"abi_path"`        // 托管合约ABI文件，为空时使用内置ABI
}

// SweepConfig 分账任务配置
type SweepConfig struct {
	Cron            string `mapstructure:"cron"`             // 全量分账的cron表达式
	ResolveInterval int    `mapstructure:"resolve_interval"` // 待确认记录检查间隔（秒）
	Workers         int    `mapstructure:"workers"`          // 并发商户数，1为严格串行
}

// LedgerConfig 账本写入配置
type LedgerConfig struct {
	WriteRetries int           `mapstructure:"write_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
}

type PlatformConfig struct {
	VaultAddress string `mapstructure:"vault_address"` // 平台手续费收款地址
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // 日志级别: debug, info, warn, error, fatal
	Output string `mapstructure:"output"` // 输出目标: stdout, stderr, file
	File   string `mapstructure:"file"`   // 日志文件路径（当output为file时使用）
}

// GetLevel 实现 logger.LogConfig 接口
func (l LogConfig) GetLevel() string {
	return l.Level
}

// GetOutput 实现 logger.LogConfig 接口
func (l LogConfig) GetOutput() string {
	return l.Output
}

// GetFile 实现 logger.LogConfig 接口
func (l LogConfig) GetFile() string {
	return l.File
}

// ConfigurationError 配置缺失或非法，服务不能启动
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s %s", e.Field, e.Reason)
}

// setDefaults 设置默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "settlement")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.path", "settlement.db")
	v.SetDefault("chain.chain_type", "ethereum")
	v.SetDefault("chain.chain_id", 1)
	v.SetDefault("chain.confirmations", 1)
	v.SetDefault("chain.confirm_timeout", 5*time.Minute)
	v.SetDefault("chain.poll_interval", 3*time.Second)
	v.SetDefault("chain.resolve_timeout", 30*time.Second)
	v.SetDefault("sweep.cron", "0 0 * * *")
	v.SetDefault("sweep.resolve_interval", 600)
	v.SetDefault("sweep.workers", 1)
	v.SetDefault("ledger.write_retries", 5)
	v.SetDefault("ledger.retry_backoff", 2*time.Second)
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.topic", "distributions")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file", "logs/app.log")
}

// Load 加载配置
func Load() (*Config, error) {
	// .env 不存在时忽略
	if err := godotenv.Load(); err == nil {
		logger.Info("Loaded environment from .env")
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/settlement")

	setDefaults(v)

	// 自动读取环境变量，chain.private_key -> CHAIN_PRIVATE_KEY
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		logger.Warn("Warning: Could not read config file: %v", err)
	}

	// AutomaticEnv 只对已知键生效，敏感项显式绑定
	for _, key := range []string{"chain.rpc_url", "chain.private_key", "platform.vault_address", "kafka.brokers"} {
		_ = v.BindEnv(key)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate 校验启动必需的配置
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Chain.RpcUrl) == "" {
		return &ConfigurationError{Field: "chain.rpc_url", Reason: "is required"}
	}
	if strings.TrimSpace(c.Chain.PrivateKey) == "" {
		return &ConfigurationError{Field: "chain.private_key", Reason: "is required"}
	}
	if c.Chain.ConfirmTimeout <= 0 {
		return &ConfigurationError{Field: "chain.confirm_timeout", Reason: "must be positive"}
	}
	if c.Chain.PollInterval <= 0 {
		return &ConfigurationError{Field: "chain.poll_interval", Reason: "must be positive"}
	}
	if c.Chain.Confirmations < 0 {
		return &ConfigurationError{Field: "chain.confirmations", Reason: "must not be negative"}
	}
	if c.Sweep.Workers < 1 {
		c.Sweep.Workers = 1
	}
	if c.Ledger.WriteRetries < 1 {
		c.Ledger.WriteRetries = 1
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return &ConfigurationError{Field: "database.driver", Reason: fmt.Sprintf("unsupported value %q", c.Database.Driver)}
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return &ConfigurationError{Field: "kafka.brokers", Reason: "is required when kafka is enabled"}
	}
	return nil
}
