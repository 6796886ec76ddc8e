package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"beame2e/pkg/model"
)

// Config 配置文件结构体
type Config struct {
	Version string `yaml:"version" mapstructure:"version"`

	BaseURL          string `yaml:"base_url" mapstructure:"base_url" validate:"required,url"`
	APIURL           string `yaml:"api_url" mapstructure:"api_url" validate:"required,url"`
	OnboardingAPIURL string `yaml:"onboarding_api_url" mapstructure:"onboarding_api_url" validate:"required,url"`
	UnleashURL       string `yaml:"unleash_url" mapstructure:"unleash_url" validate:"required,url"`
	StudioID         string `yaml:"studio_id" mapstructure:"studio_id"`
	FixturesDir      string `yaml:"fixtures_dir" mapstructure:"fixtures_dir"`

	User struct {
		Email    string `yaml:"email" mapstructure:"email" validate:"omitempty,email"`
		Password string `yaml:"password" mapstructure:"password"`
	} `yaml:"user" mapstructure:"user"`

	Auth0 struct {
		ClientID string `yaml:"client_id" mapstructure:"client_id"`
		Audience string `yaml:"audience" mapstructure:"audience"`
		Domain   string `yaml:"domain" mapstructure:"domain"`
	} `yaml:"auth0" mapstructure:"auth0"`

	Wait struct {
		Timeout time.Duration `yaml:"timeout" mapstructure:"timeout" validate:"gt=0"`
	} `yaml:"wait" mapstructure:"wait"`

	Session struct {
		Persist bool `yaml:"persist" mapstructure:"persist"`
	} `yaml:"session" mapstructure:"session"`

	Browser struct {
		Headless    bool   `yaml:"headless" mapstructure:"headless"`
		DevToolsURL string `yaml:"devtools_url" mapstructure:"devtools_url"`
	} `yaml:"browser" mapstructure:"browser"`

	Sqlite struct {
		Dsn    string `yaml:"dsn" mapstructure:"dsn"`
		Prefix string `yaml:"prefix" mapstructure:"prefix"`
	} `yaml:"sqlite" mapstructure:"sqlite"`

	Log struct {
		Level  string   `yaml:"level" mapstructure:"level" validate:"oneof=debug info warn error disabled"`
		Writer []string `yaml:"writer" mapstructure:"writer" validate:"dive,oneof=console file"`
		File   string   `yaml:"file" mapstructure:"file"`
	} `yaml:"log" mapstructure:"log"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	c := &Config{
		Version:          "1.0.0",
		BaseURL:          "http://localhost:3000",
		APIURL:           "http://localhost:3001",
		OnboardingAPIURL: "http://localhost:3002",
		UnleashURL:       "http://localhost:4242/api/frontend",
		FixturesDir:      "fixtures",
	}
	c.Wait.Timeout = 10 * time.Second
	c.Browser.Headless = true
	c.Browser.DevToolsURL = "http://127.0.0.1:9222"
	c.Sqlite.Dsn = "beame2e.sqlite3"
	c.Sqlite.Prefix = "beame2e_"
	c.Log.Level = "info"
	c.Log.Writer = []string{"console"}
	c.Log.File = "logs/beame2e.log"
	return c
}

// Load 读取 yaml 配置文件（可选）并应用 BEAM_ 前缀的环境变量覆盖
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, NewConfig())

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config: %w", err)
		}
	}

	v.SetEnvPrefix("BEAM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults 注册所有键的默认值，AutomaticEnv 只对已知键生效
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("version", d.Version)
	v.SetDefault("base_url", d.BaseURL)
	v.SetDefault("api_url", d.APIURL)
	v.SetDefault("onboarding_api_url", d.OnboardingAPIURL)
	v.SetDefault("unleash_url", d.UnleashURL)
	v.SetDefault("studio_id", d.StudioID)
	v.SetDefault("fixtures_dir", d.FixturesDir)
	v.SetDefault("user.email", d.User.Email)
	v.SetDefault("user.password", d.User.Password)
	v.SetDefault("auth0.client_id", d.Auth0.ClientID)
	v.SetDefault("auth0.audience", d.Auth0.Audience)
	v.SetDefault("auth0.domain", d.Auth0.Domain)
	v.SetDefault("wait.timeout", d.Wait.Timeout)
	v.SetDefault("session.persist", d.Session.Persist)
	v.SetDefault("browser.headless", d.Browser.Headless)
	v.SetDefault("browser.devtools_url", d.Browser.DevToolsURL)
	v.SetDefault("sqlite.dsn", d.Sqlite.Dsn)
	v.SetDefault("sqlite.prefix", d.Sqlite.Prefix)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.writer", d.Log.Writer)
	v.SetDefault("log.file", d.Log.File)
}

// Validate 校验配置
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// BaseFor 返回目标 API 的基础地址，未知目标回退到主 API
func (c *Config) BaseFor(target model.APITarget) string {
	switch target {
	case model.APIOnboarding:
		return c.OnboardingAPIURL
	case model.APIUnleash:
		return c.UnleashURL
	default:
		return c.APIURL
	}
}
