// 包 config 负责加载与校验应用配置（settings.yaml 或 settings.toml），
// 对外提供结构体 Config 及默认值/合法性校验。
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"go-stocktwits-backup/internal/model"
)

const (
	DefaultEndpoint  = "https://firestream.stocktwits.com"
	DefaultStartDate = "2009-01-01"
)

// Config 为一次运行所需的全部静态配置。
type Config struct {
	BaseDir        string      `yaml:"BASE_DIR" toml:"BASE_DIR"`
	Endpoint       string      `yaml:"ENDPOINT" toml:"ENDPOINT"`
	Username       string      `yaml:"USERNAME" toml:"USERNAME"`
	Password       string      `yaml:"PASSWORD" toml:"PASSWORD"`
	StartDate      string      `yaml:"START_DATE" toml:"START_DATE"`
	EndDate        string      `yaml:"END_DATE" toml:"END_DATE"` // 为空表示运行当天
	Categories     []string    `yaml:"CATEGORIES" toml:"CATEGORIES"`
	SampleSize     int         `yaml:"SAMPLE_SIZE" toml:"SAMPLE_SIZE"`
	TimeoutSeconds int         `yaml:"TIMEOUT_SECONDS" toml:"TIMEOUT_SECONDS"` // 建连/响应头/响应体停滞超时，不限制整体传输时长
	CleanupPartial bool        `yaml:"CLEANUP_PARTIAL" toml:"CLEANUP_PARTIAL"`
	Concurrency    Concurrency `yaml:"CONCURRENCY" toml:"CONCURRENCY"`
	Proxy          Proxy       `yaml:"PROXY" toml:"PROXY"`
	History        History     `yaml:"HISTORY" toml:"HISTORY"`
	LogLevel       string      `yaml:"LOG_LEVEL" toml:"LOG_LEVEL"`
	LogFormat      string      `yaml:"LOG_FORMAT" toml:"LOG_FORMAT"` // text|json|pretty
	LogLocale      string      `yaml:"LOG_LOCALE" toml:"LOG_LOCALE"` // zh-CN|en
	LogColor       string      `yaml:"LOG_COLOR" toml:"LOG_COLOR"`   // auto|always|never
}

type Concurrency struct {
	Fetch int `yaml:"fetch" toml:"fetch"`
	Retry int `yaml:"retry" toml:"retry"`
}

type Proxy struct {
	HTTP  string `yaml:"http" toml:"http"`
	HTTPS string `yaml:"https" toml:"https"`
}

// History 为可选的下载日志库（SQLite），不参与缓存判断。
type History struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	DSN     string `yaml:"dsn" toml:"dsn"`
}

// Load 从文件读取配置（按扩展名选择 yaml/toml），应用环境变量覆盖并校验。
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", path, err)
	}
	defer f.Close()
	b, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var c Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(b), &c); err != nil {
			return nil, fmt.Errorf("decode toml config %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("unmarshal config %s: %w", path, err)
		}
	}
	c.ApplyEnv()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// Default 返回仅含默认值的配置，适用于没有配置文件的场景。
func Default() *Config {
	c := &Config{}
	c.ApplyEnv()
	_ = c.Validate()
	return c
}

// ApplyEnv 使用 STOCKTWITS_USERNAME / STOCKTWITS_PASSWORD 覆盖凭据。
func (c *Config) ApplyEnv() {
	if v := os.Getenv("STOCKTWITS_USERNAME"); v != "" {
		c.Username = v
	}
	if v := os.Getenv("STOCKTWITS_PASSWORD"); v != "" {
		c.Password = v
	}
}

// Validate 负责合法性检查与默认值设置，避免在业务层分散判空逻辑。
func (c *Config) Validate() error {
	if c.BaseDir == "" {
		c.BaseDir = "./data"
	}
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}
	c.Endpoint = strings.TrimRight(c.Endpoint, "/")
	if c.StartDate == "" {
		c.StartDate = DefaultStartDate
	}
	start, err := model.ParseDate(c.StartDate)
	if err != nil {
		return fmt.Errorf("START_DATE: %w", err)
	}
	if c.EndDate != "" {
		end, err := model.ParseDate(c.EndDate)
		if err != nil {
			return fmt.Errorf("END_DATE: %w", err)
		}
		if end.Before(start) {
			return errors.New("END_DATE must not be before START_DATE")
		}
	}
	if len(c.Categories) == 0 {
		for _, cat := range model.Categories {
			c.Categories = append(c.Categories, string(cat))
		}
	}
	seen := make(map[model.Category]bool, len(c.Categories))
	for _, s := range c.Categories {
		cat, err := model.ParseCategory(s)
		if err != nil {
			return fmt.Errorf("CATEGORIES: %w", err)
		}
		// 重复类别会让多个 worker 同时写同一个文件
		if seen[cat] {
			return fmt.Errorf("CATEGORIES: duplicate category %q", cat)
		}
		seen[cat] = true
	}
	if c.SampleSize < 0 {
		return errors.New("SAMPLE_SIZE must be >= 0")
	}
	if c.SampleSize == 0 {
		c.SampleSize = 3
	}
	if c.TimeoutSeconds < 0 {
		return errors.New("TIMEOUT_SECONDS must be >= 0")
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 60
	}
	if c.Concurrency.Fetch <= 0 {
		c.Concurrency.Fetch = 1
	}
	if c.Concurrency.Retry < 0 {
		return errors.New("CONCURRENCY.retry must be >= 0")
	}
	if c.History.DSN == "" {
		c.History.DSN = "./history.db"
	}
	if c.LogFormat == "" {
		c.LogFormat = "pretty"
	}
	if c.LogLocale == "" {
		c.LogLocale = "zh-CN"
	}
	if c.LogColor == "" {
		c.LogColor = "auto"
	}
	return nil
}

// CategoryList 返回已校验的类别，保持配置中的顺序。
func (c *Config) CategoryList() []model.Category {
	out := make([]model.Category, 0, len(c.Categories))
	for _, s := range c.Categories {
		if cat, err := model.ParseCategory(s); err == nil {
			out = append(out, cat)
		}
	}
	return out
}

// Range 返回 [START_DATE, END_DATE]；END_DATE 为空时取 now 所在日。
func (c *Config) Range(now time.Time) (model.DateRange, error) {
	start, err := model.ParseDate(c.StartDate)
	if err != nil {
		return model.DateRange{}, err
	}
	end := now
	if c.EndDate != "" {
		if end, err = model.ParseDate(c.EndDate); err != nil {
			return model.DateRange{}, err
		}
	}
	return model.NewDateRange(start, end), nil
}

func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
