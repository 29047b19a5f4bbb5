// Package config 负责加载和管理应用程序的配置。
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix 是环境变量覆盖配置时使用的前缀，例如 CHAT_RELAY_LLM_API_KEY。
const EnvPrefix = "CHAT_RELAY"

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Log         LogConfig         `mapstructure:"log"`
	LLM         LLMConfig         `mapstructure:"llm"`
	Credentials CredentialsConfig `mapstructure:"credentials"`
	Chat        ChatConfig        `mapstructure:"chat"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// LLMConfig 存储推理后端相关的配置。
type LLMConfig struct {
	// Provider 取值 bedrock 或 openai。
	Provider       string              `mapstructure:"provider"`
	Model          string              `mapstructure:"model"`
	Region         string              `mapstructure:"region"`
	Profile        string              `mapstructure:"profile"`
	BaseURL        string              `mapstructure:"base_url"`
	APIKey         string              `mapstructure:"api_key"`
	RequestTimeout time.Duration       `mapstructure:"request_timeout"`
	Generation     LLMGenerationConfig `mapstructure:"generation"`
}

// LLMGenerationConfig 配置生成相关参数。
type LLMGenerationConfig struct {
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
}

// CredentialsConfig 配置凭证刷新命令与重试策略。
type CredentialsConfig struct {
	// RefreshCommand 为空时不执行外部命令，仅重建会话。
	RefreshCommand []string      `mapstructure:"refresh_command"`
	RefreshTimeout time.Duration `mapstructure:"refresh_timeout"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
}

// ChatConfig 配置聊天接口的默认行为。
type ChatConfig struct {
	// Stream 为 true 时，未显式指定模式的请求使用流式响应。
	Stream bool `mapstructure:"stream"`
}

// StorageConfig 配置对话记录的存储介质。
type StorageConfig struct {
	// Driver 取值 file、redis、minio 或 mysql。
	Driver string      `mapstructure:"driver"`
	Dir    string      `mapstructure:"dir"`
	Redis  RedisConfig `mapstructure:"redis"`
	MinIO  MinIOConfig `mapstructure:"minio"`
	MySQL  MySQLConfig `mapstructure:"mysql"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	TTL       time.Duration `mapstructure:"ttl"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
	Prefix          string `mapstructure:"prefix"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// KafkaConfig 存储 Kafka 相关的配置。Brokers 为空时不发布对话事件。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "3000")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.shutdown_timeout", 5*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("llm.provider", "bedrock")
	v.SetDefault("llm.model", "anthropic.claude-3-sonnet-20240229-v1:0")
	v.SetDefault("llm.region", "us-west-2")
	v.SetDefault("llm.profile", "bedrock")
	v.SetDefault("llm.request_timeout", 5*time.Minute)
	v.SetDefault("llm.generation.max_tokens", 4096)
	v.SetDefault("llm.generation.temperature", 0.3)
	v.SetDefault("llm.generation.top_p", 0.999)

	v.SetDefault("credentials.refresh_timeout", 2*time.Minute)
	v.SetDefault("credentials.max_attempts", 2)

	v.SetDefault("storage.driver", "file")
	v.SetDefault("storage.dir", "conversations")
	v.SetDefault("storage.redis.key_prefix", "conversation:")
	v.SetDefault("storage.minio.bucket_name", "conversations")

	v.SetDefault("kafka.topic", "conversation-events")

	// 以下键没有有意义的默认值，注册空值只是为了让 AutomaticEnv 在 Unmarshal 时生效
	for _, key := range []string{
		"log.output_path",
		"llm.base_url", "llm.api_key",
		"storage.redis.addr", "storage.redis.password",
		"storage.minio.endpoint", "storage.minio.access_key_id", "storage.minio.secret_access_key", "storage.minio.prefix",
		"storage.mysql.dsn",
		"kafka.brokers",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.ttl", time.Duration(0))
	v.SetDefault("storage.minio.use_ssl", false)
	v.SetDefault("chat.stream", false)
}

// Load 读取 .env、YAML 配置文件与环境变量，返回合并后的配置。
// 配置文件不存在时使用默认值。
func Load(configPath string) (*Config, error) {
	// .env 是可选的
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("读取配置文件失败: %w", err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 检查配置中互相关联的字段。
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "bedrock", "openai":
	default:
		return fmt.Errorf("不支持的 llm.provider: %q", c.LLM.Provider)
	}
	switch c.Storage.Driver {
	case "file", "redis", "minio", "mysql":
	default:
		return fmt.Errorf("不支持的 storage.driver: %q", c.Storage.Driver)
	}
	if c.Credentials.MaxAttempts < 1 {
		return fmt.Errorf("credentials.max_attempts 必须 >= 1, 当前为 %d", c.Credentials.MaxAttempts)
	}
	return nil
}

// Init 初始化配置加载，并解析到全局 Conf 变量中。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = *cfg
}
