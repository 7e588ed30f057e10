package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// EngineConfig 决策引擎配置
type EngineConfig struct {
	FixedNotional     float64 // 纸面开仓的固定名义金额
	OpenThreshold     float64 // 实盘镜像开仓阈值（> 0）
	CloseThreshold    float64 // 实盘镜像保护性平仓阈值（< 0）
	ClosedTradeWindow int     // 快照保留的已平仓条数
	QueueSize         int     // 每标的事件队列容量
}

// StreamConfig 输入流配置
type StreamConfig struct {
	TickURL     string   // tick 流 WebSocket 地址（可选）
	FeedURL     string   // feed 流 WebSocket 地址（可选）
	FeedSymbols []string // feed 跟踪的标的
}

// DirectoryConfig 标的目录配置
// Path 与 URL 二选一：先取本地文件，没有则拉远端。
type DirectoryConfig struct {
	Path string
	URL  string
}

// Config 应用配置
type Config struct {
	LogLevel string // 日志级别
	LogFile  string // 日志文件路径（可选）

	Listen        string // HTTP 监听地址
	Engine        EngineConfig
	Stream        StreamConfig
	Directory     DirectoryConfig
	OrderEndpoint string // 实盘订单通知端点（为空则 dry-run，只记日志）
	JournalPath   string // 平仓流水 SQLite 路径（为空则不落库）
	TickCachePath string // 最近价缓存目录（为空则不预热）
}

// configFile YAML 配置文件结构
type configFile struct {
	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`
	Listen   string `yaml:"listen"`

	Engine struct {
		FixedNotional     float64 `yaml:"fixed_notional"`
		OpenThreshold     float64 `yaml:"open_threshold"`
		CloseThreshold    float64 `yaml:"close_threshold"`
		ClosedTradeWindow int     `yaml:"closed_trade_window"`
		QueueSize         int     `yaml:"queue_size"`
	} `yaml:"engine"`

	Stream struct {
		TickURL     string   `yaml:"tick_url"`
		FeedURL     string   `yaml:"feed_url"`
		FeedSymbols []string `yaml:"feed_symbols"`
	} `yaml:"stream"`

	Directory struct {
		Path string `yaml:"path"`
		URL  string `yaml:"url"`
	} `yaml:"directory"`

	OrderEndpoint string `yaml:"order_endpoint"`
	JournalPath   string `yaml:"journal_path"`
	TickCachePath string `yaml:"tick_cache_path"`
}

var globalConfig *Config

// Load 加载配置：YAML 文件（可选） + 环境变量回退 + 默认值
func Load(filePath string) (*Config, error) {
	var cf configFile
	if filePath != "" {
		data, err := os.ReadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		if err := yaml.Unmarshal(data, &cf); err != nil {
			return nil, fmt.Errorf("解析配置文件失败: %w", err)
		}
	}

	config := &Config{
		LogLevel: pickString(cf.LogLevel, getEnv("LOG_LEVEL", "info")),
		LogFile:  pickString(cf.LogFile, getEnv("LOG_FILE", "")),
		Listen:   pickString(cf.Listen, getEnv("LISTEN", ":8080")),
		Engine: EngineConfig{
			FixedNotional:     pickFloat(cf.Engine.FixedNotional, getEnvFloat("FIXED_NOTIONAL", 1000)),
			OpenThreshold:     pickFloat(cf.Engine.OpenThreshold, getEnvFloat("LIVE_OPEN_THRESHOLD", 4)),
			CloseThreshold:    pickFloat(cf.Engine.CloseThreshold, getEnvFloat("LIVE_CLOSE_THRESHOLD", -1)),
			ClosedTradeWindow: pickInt(cf.Engine.ClosedTradeWindow, getEnvInt("CLOSED_TRADE_WINDOW", 20)),
			QueueSize:         pickInt(cf.Engine.QueueSize, getEnvInt("QUEUE_SIZE", 1024)),
		},
		Stream: StreamConfig{
			TickURL:     pickString(cf.Stream.TickURL, getEnv("TICK_URL", "")),
			FeedURL:     pickString(cf.Stream.FeedURL, getEnv("FEED_URL", "")),
			FeedSymbols: pickSymbols(cf.Stream.FeedSymbols, getEnv("FEED_SYMBOLS", "")),
		},
		Directory: DirectoryConfig{
			Path: pickString(cf.Directory.Path, getEnv("DIRECTORY_PATH", "")),
			URL:  pickString(cf.Directory.URL, getEnv("DIRECTORY_URL", "")),
		},
		OrderEndpoint: pickString(cf.OrderEndpoint, getEnv("ORDER_ENDPOINT", "")),
		JournalPath:   pickString(cf.JournalPath, getEnv("JOURNAL_PATH", "")),
		TickCachePath: pickString(cf.TickCachePath, getEnv("TICK_CACHE_PATH", "")),
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}
	globalConfig = config
	return config, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.Engine.FixedNotional <= 0 {
		return fmt.Errorf("engine.fixed_notional 必须大于 0")
	}
	if c.Engine.OpenThreshold <= 0 {
		return fmt.Errorf("engine.open_threshold 必须大于 0")
	}
	if c.Engine.CloseThreshold >= 0 {
		return fmt.Errorf("engine.close_threshold 必须小于 0")
	}
	if c.Directory.Path == "" && c.Directory.URL == "" {
		return fmt.Errorf("directory.path 或 directory.url 至少配置一个")
	}
	if c.Stream.FeedURL != "" && len(c.Stream.FeedSymbols) == 0 {
		return fmt.Errorf("配置了 feed_url 但 feed_symbols 为空")
	}
	return nil
}

// Get 获取全局配置（Load 之后可用）
func Get() *Config {
	return globalConfig
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// pickString 配置文件值优先，空则用回退值
func pickString(fileVal, fallback string) string {
	if strings.TrimSpace(fileVal) != "" {
		return fileVal
	}
	return fallback
}

// pickFloat 文件里显式写了就用文件值（非法值交给 Validate 报错）
func pickFloat(fileVal, fallback float64) float64 {
	if fileVal != 0 {
		return fileVal
	}
	return fallback
}

func pickInt(fileVal, fallback int) int {
	if fileVal > 0 {
		return fileVal
	}
	return fallback
}

func pickSymbols(fileVal []string, env string) []string {
	if len(fileVal) > 0 {
		return fileVal
	}
	if env == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(env, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
