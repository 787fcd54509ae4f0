// Package config 读取 yaml 配置文件，未配置的项使用默认值
package config

import (
	"fmt"
	"github.com/fansqz/inspector-bridge/injection"
	"gopkg.in/yaml.v3"
	"net"
	"os"
	"strconv"
	"time"
)

// Config 桥的配置
type Config struct {
	Web       WebConfig       `yaml:"web"`
	Debugger  DebuggerConfig  `yaml:"debugger"`
	Injection InjectionConfig `yaml:"injection"`
	Log       LogConfig       `yaml:"log"`
}

// WebConfig 前端监听地址
type WebConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DebuggerConfig 调试进程的调试端口
type DebuggerConfig struct {
	Host        string        `yaml:"host"`
	Port        int           `yaml:"port"`
	DialTimeout time.Duration `yaml:"dialTimeout"`
}

// InjectionConfig 注入调试扩展
type InjectionConfig struct {
	Enabled bool          `yaml:"enabled"`
	Timeout time.Duration `yaml:"timeout"`
	// Options 传给注入程序的选项
	Options map[string]interface{} `yaml:"options"`
}

// LogConfig 日志级别和输出文件，文件为空时输出到标准错误
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Default 默认配置
func Default() *Config {
	return &Config{
		Web: WebConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		Debugger: DebuggerConfig{
			Host:        "127.0.0.1",
			Port:        5858,
			DialTimeout: 10 * time.Second,
		},
		Injection: InjectionConfig{
			Enabled: true,
			Timeout: 5 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load 读取配置文件，path 为空时返回默认配置
func Load(path string) (*Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err = yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return c, nil
}

// Validate 检查端口、日志级别、超时和注入选项
// debugger.dialTimeout 必须为正，injection.timeout 为 0 表示不限时
func (c *Config) Validate() error {
	if err := validPort("web.port", c.Web.Port); err != nil {
		return err
	}
	if err := validPort("debugger.port", c.Debugger.Port); err != nil {
		return err
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log.level %q", c.Log.Level)
	}
	if c.Debugger.DialTimeout <= 0 {
		return fmt.Errorf("debugger.dialTimeout must be positive, got %s", c.Debugger.DialTimeout)
	}
	if c.Injection.Timeout < 0 {
		return fmt.Errorf("injection.timeout must not be negative, got %s", c.Injection.Timeout)
	}
	if err := injection.Options(c.Injection.Options).Validate(); err != nil {
		return fmt.Errorf("invalid injection.options: %w", err)
	}
	return nil
}

// WebAddress 前端监听地址 host:port
func (c *Config) WebAddress() string {
	return net.JoinHostPort(c.Web.Host, strconv.Itoa(c.Web.Port))
}

// DebuggerAddress 调试端口地址 host:port
func (c *Config) DebuggerAddress() string {
	return net.JoinHostPort(c.Debugger.Host, strconv.Itoa(c.Debugger.Port))
}

func validPort(name string, port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("invalid %s %d", name, port)
	}
	return nil
}
