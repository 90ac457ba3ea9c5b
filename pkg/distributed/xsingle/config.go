package xsingle

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// Config 单实例锁的进程级配置。
//
// 时间字段使用 Go duration 字符串，如 "30m"、"1h30m"；
// 不带单位的数字按秒解释，300 即 5 分钟。
//
// 示例（yaml）：
//
//	backend: redis://localhost:6379/0
//	key_prefix: billing
//	default_hard_time_limit: 30m
//	log:
//	  level: info
//	  format: json
type Config struct {
	// Backend 后端 URI，见 Open。
	Backend string `koanf:"backend"`
	// KeyPrefix Redis / etcd / Lease 后端的 key 前缀。
	KeyPrefix string `koanf:"key_prefix"`
	// Table 数据库表名或 MongoDB 集合名。
	Table string `koanf:"table"`
	// DefaultHardTimeLimit 进程级默认硬时间限制。
	DefaultHardTimeLimit time.Duration `koanf:"default_hard_time_limit"`
	// DefaultSoftTimeLimit 进程级默认软时间限制。
	DefaultSoftTimeLimit time.Duration `koanf:"default_soft_time_limit"`
	// ReleaseTimeout 作用域退出时释放锁的超时。
	ReleaseTimeout time.Duration `koanf:"release_timeout"`
	// Log 日志配置。
	Log LogConfig `koanf:"log"`
}

// LogConfig 日志配置，字段含义与 xlog.Builder 一致。
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	File   string `koanf:"file"`
}

// LoadConfig 从文件加载配置，按扩展名（.yaml / .yml / .json）选择解析器。
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("xsingle: failed to read config: %w", err)
	}
	return LoadConfigBytes(data, filepath.Ext(path))
}

// LoadConfigBytes 从字节数据加载配置，format 为 "yaml"、"yml" 或 "json"（可带前导点）。
func LoadConfigBytes(data []byte, format string) (*Config, error) {
	var parser koanf.Parser
	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case "yaml", "yml":
		parser = yaml.Parser()
	case "json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	k := koanf.New(".")
	if len(data) > 0 {
		if err := k.Load(rawbytes.Provider(data), parser); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}

	cfg := &Config{}
	conf := koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				secondsToDurationHook,
				mapstructure.StringToTimeDurationHookFunc(),
			),
			Result:           cfg,
			WeaklyTypedInput: true,
		},
	}
	if err := k.UnmarshalWithConf("", cfg, conf); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// secondsToDurationHook 把数字形式的时间字段按秒转换为 time.Duration。
func secondsToDurationHook(from, to reflect.Type, data any) (any, error) {
	if to != durationType {
		return data, nil
	}
	switch from.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return time.Duration(reflect.ValueOf(data).Int()) * time.Second, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return time.Duration(reflect.ValueOf(data).Uint()) * time.Second, nil
	case reflect.Float32, reflect.Float64:
		return time.Duration(reflect.ValueOf(data).Float() * float64(time.Second)), nil
	default:
		return data, nil
	}
}

// Validate 校验配置。后端 URI 允许为空（可由命令行补充）。
func (c *Config) Validate() error {
	if c.DefaultHardTimeLimit < 0 || c.DefaultSoftTimeLimit < 0 || c.ReleaseTimeout < 0 {
		return fmt.Errorf("%w: time limits must not be negative", ErrInvalidConfig)
	}
	if c.Backend != "" && !strings.Contains(c.Backend, "://") {
		return fmt.Errorf("%w: backend %q is not a uri", ErrInvalidConfig, c.Backend)
	}
	return nil
}

// Defaults 返回进程级默认时间限制快照。
func (c *Config) Defaults() Limits {
	return Limits{Hard: c.DefaultHardTimeLimit, Soft: c.DefaultSoftTimeLimit}
}

// OpenOptions 将配置转换为 Open 的选项。
func (c *Config) OpenOptions() []OpenOption {
	return []OpenOption{WithKeyPrefix(c.KeyPrefix), WithTable(c.Table)}
}

// GuardOptions 将配置转换为 NewGuard 的选项。
func (c *Config) GuardOptions() []Option {
	return []Option{WithDefaults(c.Defaults()), WithReleaseTimeout(c.ReleaseTimeout)}
}
