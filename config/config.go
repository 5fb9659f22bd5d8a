// Package config 提供统一的配置加载与热更新能力.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/wyfcoding/gridstore/storage"
)

// Config 全局顶级配置结构.
type Config struct {
	Service string        `mapstructure:"service" toml:"service" validate:"required"`
	Version string        `mapstructure:"version" toml:"version"`
	Log     LogConfig     `mapstructure:"log"     toml:"log"`
	Server  ServerConfig  `mapstructure:"server"  toml:"server"`
	Storage StorageConfig `mapstructure:"storage" toml:"storage"`
}

// LogConfig 日志输出配置.
type LogConfig struct {
	Level      string `mapstructure:"level"       toml:"level"`
	File       string `mapstructure:"file"        toml:"file"`
	MaxSize    int    `mapstructure:"max_size"    toml:"max_size"`
	MaxBackups int    `mapstructure:"max_backups" toml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"     toml:"max_age"`
	Compress   bool   `mapstructure:"compress"    toml:"compress"`
}

// ServerConfig 示例上传服务的网络参数.
type ServerConfig struct {
	Addr         string        `mapstructure:"addr"           toml:"addr"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes" toml:"max_body_bytes"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"   toml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"  toml:"write_timeout"`
}

// StorageConfig 存储引擎的数据源与默认目标参数.
type StorageConfig struct {
	// Driver 选择后端驱动: gridfs 或 minio.
	Driver         string                `mapstructure:"driver"           toml:"driver"           validate:"omitempty,oneof=gridfs minio"`
	DefaultBucket  string                `mapstructure:"default_bucket"   toml:"default_bucket"`
	ChunkSizeBytes int32                 `mapstructure:"chunk_size_bytes" toml:"chunk_size_bytes"`
	ConnectTimeout time.Duration         `mapstructure:"connect_timeout"  toml:"connect_timeout"`
	GridFS         storage.GridFSConfig  `mapstructure:"gridfs"           toml:"gridfs"`
	Minio          storage.MinIOConfig   `mapstructure:"minio"            toml:"minio"`
}

var (
	vInstance = viper.New()

	hookMu   sync.Mutex
	onReload []func(*Config)
)

// RegisterReloadHook 注册配置热更新回调.
func RegisterReloadHook(hook func(*Config)) {
	hookMu.Lock()
	defer hookMu.Unlock()
	onReload = append(onReload, hook)
}

// Load 读取 TOML 配置文件并开启热更新监听.
// 环境变量以 APP_ 前缀覆盖同名配置项.
func Load(path string, conf *Config) error {
	vInstance.SetConfigFile(path)
	vInstance.SetConfigType("toml")

	vInstance.SetEnvPrefix("APP")
	vInstance.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vInstance.AutomaticEnv()

	if err := vInstance.ReadInConfig(); err != nil {
		return fmt.Errorf("read config error: %w", err)
	}
	if err := vInstance.Unmarshal(conf); err != nil {
		return fmt.Errorf("unmarshal config error: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(conf); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	vInstance.WatchConfig()
	vInstance.OnConfigChange(func(event fsnotify.Event) {
		slog.Info("detecting config change", "file", event.Name)
		const debounceTimeout = 500 * time.Millisecond
		time.Sleep(debounceTimeout)

		if unmarshalErr := vInstance.Unmarshal(conf); unmarshalErr != nil {
			slog.Error("reload config unmarshal failed", "error", unmarshalErr)
			return
		}
		if validateErr := validate.Struct(conf); validateErr != nil {
			slog.Error("reload config validation failed", "error", validateErr)
			return
		}
		slog.Info("config hot-reloaded and validated successfully")

		hookMu.Lock()
		hooks := append([]func(*Config){}, onReload...)
		hookMu.Unlock()
		for _, hook := range hooks {
			hook(conf)
		}
	})

	return nil
}

// GetViper 暴露底层 viper 实例，供诊断工具读取原始配置.
func GetViper() *viper.Viper {
	return vInstance
}
