package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kasuganosora/contentmcp/pkg/logging"
)

const (
	TransportHTTP  = "http"
	TransportStdio = "stdio"
)

// Config 应用程序配置
type Config struct {
	Server ServerConfig `json:"server" yaml:"server"`
	MCP    MCPConfig    `json:"mcp" yaml:"mcp"`
	Log    LogConfig    `json:"log" yaml:"log"`
	Ingest IngestConfig `json:"ingest" yaml:"ingest"`
	Audit  AuditConfig  `json:"audit" yaml:"audit"`
}

// ServerConfig 服务标识
type ServerConfig struct {
	Name    string `json:"name" yaml:"name"`
	Version string `json:"version" yaml:"version"`
}

// MCPConfig MCP 传输配置
type MCPConfig struct {
	Transport    string `json:"transport" yaml:"transport"` // http or stdio
	Host         string `json:"host" yaml:"host"`
	Port         int    `json:"port" yaml:"port"`
	EndpointPath string `json:"endpoint_path" yaml:"endpoint_path"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `json:"level" yaml:"level"`
	Format     string `json:"format" yaml:"format"` // json or text
	File       string `json:"file" yaml:"file"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days"`
}

// IngestConfig 表格导入配置
type IngestConfig struct {
	// DataRoot 相对路径的解析基准，为空时使用进程工作目录
	DataRoot string `json:"data_root" yaml:"data_root"`
	// Timeout 单次工具调用的解析超时，0 表示不限制
	// JSON 和 YAML 均接受 "30s" 形式的字符串，JSON 中的整数按纳秒解释
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// UnmarshalJSON 允许 timeout 写成时长字符串或纳秒整数
func (c *IngestConfig) UnmarshalJSON(data []byte) error {
	type plain IngestConfig
	aux := struct {
		*plain
		Timeout json.RawMessage `json:"timeout"`
	}{plain: (*plain)(c)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if len(aux.Timeout) == 0 || string(aux.Timeout) == "null" {
		return nil
	}

	var text string
	if err := json.Unmarshal(aux.Timeout, &text); err == nil {
		d, err := time.ParseDuration(text)
		if err != nil {
			return fmt.Errorf("无效的解析超时: %q", text)
		}
		c.Timeout = d
		return nil
	}

	var nanos int64
	if err := json.Unmarshal(aux.Timeout, &nanos); err != nil {
		return fmt.Errorf("无效的解析超时: %s", aux.Timeout)
	}
	c.Timeout = time.Duration(nanos)
	return nil
}

// AuditConfig 审计日志配置
type AuditConfig struct {
	BufferSize int `json:"buffer_size" yaml:"buffer_size"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Name:    "contentmcp",
			Version: "1.0.0",
		},
		MCP: MCPConfig{
			Transport:    TransportHTTP,
			Host:         "0.0.0.0",
			Port:         3000,
			EndpointPath: "/mcp",
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Ingest: IngestConfig{
			Timeout: 0,
		},
		Audit: AuditConfig{
			BufferSize: 10000,
		},
	}
}

// LoadConfig 从文件加载配置，支持 .json 和 .yaml/.yml
func LoadConfig(configPath string) (*Config, error) {
	if configPath == "" {
		return finalize(DefaultConfig())
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("配置文件不存在: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	config := DefaultConfig()
	switch strings.ToLower(filepath.Ext(configPath)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, config)
	default:
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	return finalize(config)
}

// finalize 应用环境变量覆盖并验证
func finalize(config *Config) (*Config, error) {
	if err := applyEnv(config); err != nil {
		return nil, err
	}
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadConfigOrDefault 尝试从常见位置加载配置文件，都不存在时使用默认配置
// 当前目录下的 .env 会先被载入环境变量（不覆盖已有变量）
// 找到的配置文件或环境变量无效时返回错误
func LoadConfigOrDefault() (*Config, error) {
	_ = godotenv.Load()

	if envPath := os.Getenv("CONTENTMCP_CONFIG"); envPath != "" {
		return LoadConfig(envPath)
	}

	possiblePaths := []string{
		"config.json",
		"config.yaml",
		"./config/config.json",
		"./config/config.yaml",
		"/etc/contentmcp/config.json",
	}
	for _, path := range possiblePaths {
		absPath, err := filepath.Abs(path)
		if err != nil {
			continue
		}
		if _, err := os.Stat(absPath); err == nil {
			return LoadConfig(absPath)
		}
	}

	return LoadConfig("")
}

// applyEnv 环境变量覆盖
func applyEnv(config *Config) error {
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("无效的 PORT: %q", v)
		}
		config.MCP.Port = port
	}
	if v := os.Getenv("CONTENTMCP_HOST"); v != "" {
		config.MCP.Host = v
	}
	if v := os.Getenv("CONTENTMCP_TRANSPORT"); v != "" {
		config.MCP.Transport = v
	}
	if v := os.Getenv("CONTENTMCP_DATA_ROOT"); v != "" {
		config.Ingest.DataRoot = v
	}
	if v := os.Getenv("CONTENTMCP_LOG_LEVEL"); v != "" {
		config.Log.Level = v
	}
	return nil
}

// validateConfig 验证配置
func validateConfig(config *Config) error {
	if config.MCP.Port < 1 || config.MCP.Port > 65535 {
		return fmt.Errorf("无效的端口号: %d", config.MCP.Port)
	}

	if config.MCP.Transport != TransportHTTP && config.MCP.Transport != TransportStdio {
		return fmt.Errorf("无效的传输方式: %s", config.MCP.Transport)
	}

	if !strings.HasPrefix(config.MCP.EndpointPath, "/") {
		return fmt.Errorf("端点路径必须以 / 开头: %s", config.MCP.EndpointPath)
	}

	if _, err := logging.ParseLevel(config.Log.Level); err != nil {
		return fmt.Errorf("无效的日志级别: %w", err)
	}

	if config.Log.Format != "text" && config.Log.Format != "json" {
		return fmt.Errorf("无效的日志格式: %s", config.Log.Format)
	}

	if config.Ingest.Timeout < 0 {
		return fmt.Errorf("解析超时不能为负数")
	}

	if config.Audit.BufferSize < 1 {
		return fmt.Errorf("审计缓冲区大小必须大于0")
	}

	return nil
}

// GetListenAddress 返回监听地址
func (c *Config) GetListenAddress() string {
	return fmt.Sprintf("%s:%d", c.MCP.Host, c.MCP.Port)
}

// LoggingOptions 转换为日志选项
func (c *Config) LoggingOptions() logging.Options {
	level, _ := logging.ParseLevel(c.Log.Level)
	return logging.Options{
		Level:      level,
		Format:     c.Log.Format,
		File:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
	}
}
