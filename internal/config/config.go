// Package config loads service configuration from an optional YAML file and
// the environment. Environment variables override file values.
//
// Example config.yaml:
//
//	redis:
//	  addrs: [localhost:6379]
//	param_prefix: /lead-dashboard
//	report:
//	  path: data/relatorios_conversas.csv
//	openai:
//	  model: gpt-4o-mini
//	  rps: 2
//	sync:
//	  concurrency: 4
//	timezone: America/Sao_Paulo
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

const (
	DefaultReportPath       = "data/relatorios_conversas.csv"
	DefaultLambdaReportPath = "/tmp/relatorios_conversas.csv"
	DefaultModel            = "gpt-4o-mini"
	DefaultRPS              = 2.0
	DefaultMaxAttempts      = 3
	DefaultConcurrency      = 4
	DefaultTimezone         = "America/Sao_Paulo"
)

type Config struct {
	Redis       RedisConfig  `yaml:"redis"`
	ParamPrefix string       `yaml:"param_prefix"`
	RunTable    string       `yaml:"run_table"`
	Report      ReportConfig `yaml:"report"`
	OpenAI      OpenAIConfig `yaml:"openai"`
	Sync        SyncConfig   `yaml:"sync"`
	Timezone    string       `yaml:"timezone"`
}

type RedisConfig struct {
	URL      string   `yaml:"url"`
	Addrs    []string `yaml:"addrs"`
	Password string   `yaml:"password"`
	DB       int      `yaml:"db"`
}

type ReportConfig struct {
	Path        string `yaml:"path"`
	Bucket      string `yaml:"bucket"`
	Prefix      string `yaml:"prefix"`
	RegionTable string `yaml:"region_table"`
}

type OpenAIConfig struct {
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	RPS         float64 `yaml:"rps"`
	MaxAttempts int     `yaml:"max_attempts"`
}

type SyncConfig struct {
	Concurrency int `yaml:"concurrency"`
}

// Load reads the YAML file at path, if any, applies environment overrides
// through getenv and fills defaults. An empty path or a missing file is not an
// error. getenv defaults to os.Getenv.
func Load(path string, getenv func(string) string) (*Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	cfg := &Config{}

	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(b, cfg); err != nil {
				return nil, fmt.Errorf("config: parse yaml %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(getenv); err != nil {
		return nil, err
	}
	cfg.applyDefaults(getenv("AWS_LAMBDA_FUNCTION_NAME") != "")
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	setString := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	setString("REDIS_URL", &c.Redis.URL)
	setString("REDIS_PASSWORD", &c.Redis.Password)
	setString("PARAM_PREFIX", &c.ParamPrefix)
	setString("RUN_TABLE", &c.RunTable)
	setString("REPORT_PATH", &c.Report.Path)
	setString("REPORT_BUCKET", &c.Report.Bucket)
	setString("REPORT_PREFIX", &c.Report.Prefix)
	setString("REGION_TABLE_PATH", &c.Report.RegionTable)
	setString("OPENAI_MODEL", &c.OpenAI.Model)
	setString("OPENAI_BASE_URL", &c.OpenAI.BaseURL)
	setString("TIMEZONE", &c.Timezone)

	if v := strings.TrimSpace(getenv("REDIS_ADDR")); v != "" {
		c.Redis.Addrs = splitList(v)
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"REDIS_DB", &c.Redis.DB},
		{"OPENAI_MAX_ATTEMPTS", &c.OpenAI.MaxAttempts},
		{"SYNC_CONCURRENCY", &c.Sync.Concurrency},
	}
	for _, e := range ints {
		v := strings.TrimSpace(getenv(e.key))
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s must be an integer: %w", e.key, err)
		}
		*e.dst = n
	}

	if v := strings.TrimSpace(getenv("OPENAI_RPS")); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("config: OPENAI_RPS must be a number: %w", err)
		}
		c.OpenAI.RPS = f
	}
	return nil
}

func (c *Config) applyDefaults(inLambda bool) {
	if c.Report.Path == "" {
		c.Report.Path = DefaultReportPath
		if inLambda {
			c.Report.Path = DefaultLambdaReportPath
		}
	}
	if c.OpenAI.Model == "" {
		c.OpenAI.Model = DefaultModel
	}
	if c.OpenAI.RPS == 0 {
		c.OpenAI.RPS = DefaultRPS
	}
	if c.OpenAI.MaxAttempts == 0 {
		c.OpenAI.MaxAttempts = DefaultMaxAttempts
	}
	if c.Sync.Concurrency == 0 {
		c.Sync.Concurrency = DefaultConcurrency
	}
	if c.Timezone == "" {
		c.Timezone = DefaultTimezone
	}
}

// Validate checks required settings and ranges.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Redis.URL) == "" && len(c.Redis.Addrs) == 0 {
		return errors.New("config: REDIS_URL or REDIS_ADDR is required")
	}
	if strings.TrimSpace(c.ParamPrefix) == "" {
		return errors.New("config: PARAM_PREFIX is required")
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("config: invalid redis db %d", c.Redis.DB)
	}
	if c.Sync.Concurrency < 1 {
		return fmt.Errorf("config: invalid sync concurrency %d", c.Sync.Concurrency)
	}
	if c.OpenAI.MaxAttempts < 1 {
		return fmt.Errorf("config: invalid openai max attempts %d", c.OpenAI.MaxAttempts)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
