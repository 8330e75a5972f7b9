package xconf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// Format 定义配置文件格式。
type Format string

// 支持的配置格式。
const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// Config 是分层加载的配置。
type Config struct {
	mu     sync.RWMutex
	k      *koanf.Koanf
	opts   *Options
	path   string
	format Format
}

// Load 从文件创建配置，按扩展名识别格式。空文件得到空配置。
func Load(path string, opts ...Option) (*Config, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}

	c, err := LoadBytes(data, format, opts...)
	if err != nil {
		return nil, err
	}
	c.path = path
	return c, nil
}

// LoadBytes 从字节数据创建配置，需显式指定格式。
func LoadBytes(data []byte, format Format, opts ...Option) (*Config, error) {
	if !format.valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	options := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}

	c := &Config{
		k:      koanf.New(options.Delim),
		opts:   options,
		format: format,
	}
	if err := loadInto(c.k, data, format); err != nil {
		return nil, err
	}
	return c, nil
}

// Merge 叠加一层配置，同名键以新层为准。解析失败时原配置不变。
func (c *Config) Merge(data []byte, format Format) error {
	if !format.valid() {
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	layer := koanf.New(c.opts.Delim)
	if err := loadInto(layer, data, format); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.k.Merge(layer); err != nil {
		return fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}
	return nil
}

// Unmarshal 将 path 下的配置反序列化到 target，path 为空时反序列化整个配置。
// target 中配置未出现的字段保持原值，可用于预置默认值。
func (c *Config) Unmarshal(path string, target any) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.k.UnmarshalWithConf(path, target, koanf.UnmarshalConf{Tag: c.opts.Tag}); err != nil {
		return fmt.Errorf("%w: %w", ErrUnmarshalFailed, err)
	}
	return nil
}

// Exists 报告键是否存在。
func (c *Config) Exists(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.k.Exists(key)
}

// String 返回键的字符串值，不存在时返回空字符串。
func (c *Config) String(key string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.k.String(key)
}

// Client 返回底层 koanf 实例，供高级用法使用。
func (c *Config) Client() *koanf.Koanf {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.k
}

// Path 返回配置文件路径，LoadBytes 创建的配置返回空字符串。
func (c *Config) Path() string {
	return c.path
}

// Format 返回基础层的格式。
func (c *Config) Format() Format {
	return c.format
}

// DetectFormat 根据文件扩展名识别格式。
func DetectFormat(path string) (Format, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: unknown extension %q", ErrUnsupportedFormat, ext)
	}
}

func (f Format) valid() bool {
	return f == FormatYAML || f == FormatJSON
}

func loadInto(k *koanf.Koanf, data []byte, format Format) error {
	if len(data) == 0 {
		return nil
	}
	var parser koanf.Parser
	switch format {
	case FormatYAML:
		parser = yaml.Parser()
	case FormatJSON:
		parser = json.Parser()
	default:
		return ErrUnsupportedFormat
	}
	if err := k.Load(rawbytes.Provider(data), parser); err != nil {
		return fmt.Errorf("%w: %w", ErrParseFailed, err)
	}
	return nil
}
