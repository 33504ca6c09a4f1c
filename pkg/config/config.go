// Package config 读取 systrace 的配置文件 ~/.systrace/config.yaml
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"

	"github.com/zqzqsb/systrace/pkg/rlimit"
	"github.com/zqzqsb/systrace/runner"
)

// 输出格式
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Config 是完整的配置，命令行参数会覆盖其中的值
type Config struct {
	Output OutputConfig   `yaml:"output"`
	Trace  TraceConfig    `yaml:"trace"`
	Log    LogConfig      `yaml:"log"`
	Limits rlimit.RLimits `yaml:"limits"`
}

// OutputConfig 控制事件输出到哪里
type OutputConfig struct {
	// Format 是 text 或 json
	Format string `yaml:"format"`
	// Path 为空时输出到标准错误
	Path string `yaml:"path"`
	// Summary 在结束时输出系统调用统计表，不再逐条输出
	Summary bool `yaml:"summary"`
	// Record 是 sqlite 数据库路径，非空时同时记录到数据库
	Record string `yaml:"record"`
	// QueueLen 和 EmitTimeout 控制异步输出的队列
	QueueLen    int           `yaml:"queue_len"`
	EmitTimeout time.Duration `yaml:"emit_timeout"`
}

// TraceConfig 控制跟踪和解码
type TraceConfig struct {
	StringLimit    runner.Size `yaml:"string_limit"`
	ChunkSize      runner.Size `yaml:"chunk_size"`
	MaxVectorItems int         `yaml:"max_vector_items"`
	FollowForks    bool        `yaml:"follow_forks"`
	// Seccomp 用 seccomp 过滤器只让选中的系统调用停止，仅对启动的命令有效
	Seccomp bool `yaml:"seccomp"`
	// Syscalls 是 -e trace= 表达式
	Syscalls string `yaml:"syscalls"`
	// Paths 是 -P 的路径规则
	Paths []string `yaml:"paths"`
	// Failed 只输出失败的系统调用
	Failed bool `yaml:"failed"`
	// Inject 是注入规则，如 openat:error=ENOENT
	Inject []string `yaml:"inject"`
}

// LogConfig 是 logrus 的配置
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Output: OutputConfig{
			Format:      FormatText,
			QueueLen:    4096,
			EmitTimeout: 100 * time.Millisecond,
		},
		Trace: TraceConfig{
			StringLimit:    32,
			ChunkSize:      4096,
			MaxVectorItems: 32,
			Syscalls:       "all",
		},
		Log: LogConfig{
			Level: "warn",
		},
	}
}

// Dir 返回 ~/.systrace
func Dir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".systrace")
	}
	return filepath.Join(homeDir, ".systrace")
}

/*
	Load 读取配置并应用环境变量

参数：
  - path: 配置文件路径；为空时读取 ~/.systrace/config.yaml，文件不存在时使用默认值

返回值：
  - *Config: 默认值、配置文件、环境变量依次覆盖后的配置
  - error: 指定的文件无法读取，或者内容无效
*/
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = filepath.Join(Dir(), "config.yaml")
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Errorf("parsing %s: %w", path, err)
		}
	case explicit || !os.IsNotExist(err):
		return nil, errors.Errorf("reading config: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("SYSTRACE_STRSIZE"); v != "" {
		if err := c.Trace.StringLimit.Set(v); err != nil {
			return errors.Errorf("SYSTRACE_STRSIZE: %w", err)
		}
	}
	if v := os.Getenv("SYSTRACE_FORMAT"); v != "" {
		c.Output.Format = v
	}
	if v := os.Getenv("SYSTRACE_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("SYSTRACE_SECCOMP"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Errorf("SYSTRACE_SECCOMP: %w", err)
		}
		c.Trace.Seccomp = b
	}
	return nil
}

// Validate 检查配置的取值
func (c *Config) Validate() error {
	switch c.Output.Format {
	case FormatText, FormatJSON:
	default:
		return errors.Errorf("unknown output format %q", c.Output.Format)
	}
	if c.Trace.ChunkSize == 0 {
		return errors.New("chunk_size must be positive")
	}
	if c.Trace.MaxVectorItems < 0 {
		return errors.New("max_vector_items must not be negative")
	}
	return nil
}
