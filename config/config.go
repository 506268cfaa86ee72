package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Store    StoreConfig    `yaml:"store"`
	Minio    MinioConfig    `yaml:"minio"`
	Reasoner ReasonerConfig `yaml:"reasoner"`
	Compare  CompareConfig  `yaml:"compare"`
	Auth     AuthConfig     `yaml:"auth"`
	Users    []User         `yaml:"users"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

type StoreConfig struct {
	Path string `yaml:"path"` // sqlite database file
}

type MinioConfig struct {
	Endpoint   string `yaml:"endpoint"`
	AccessKey  string `yaml:"access_key"`
	SecretKey  string `yaml:"secret_key"`
	Bucket     string `yaml:"bucket"`
	UseSSL     bool   `yaml:"use_ssl"`
	ExpireDays int    `yaml:"expire_days"`
}

// ReasonerConfig points at the external reasoning service that performs
// clause extraction, semantic matching, risk analysis and summarization.
type ReasonerConfig struct {
	APIURL         string `yaml:"api_url"`
	APIToken       string `yaml:"api_token"`
	Model          string `yaml:"model"`
	Seed           string `yaml:"seed"` // deterministic request configuration where supported
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type CompareConfig struct {
	RiskConcurrency    int           `yaml:"risk_concurrency"`     // parallel risk-analysis calls per run
	StatusPollInterval time.Duration `yaml:"status_poll_interval"` // broadcaster poll interval
}

type AuthConfig struct {
	JWTSecret        string `yaml:"jwt_secret"`
	TokenExpireHours int    `yaml:"token_expire_hours"`
}

type User struct {
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	Organization string `yaml:"organization"`
}

var GlobalConfig *Config

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "comparator.db"
	}
	if cfg.Minio.ExpireDays == 0 {
		cfg.Minio.ExpireDays = 7
	}
	if cfg.Auth.TokenExpireHours == 0 {
		cfg.Auth.TokenExpireHours = 24
	}
	if cfg.Reasoner.TimeoutSeconds == 0 {
		cfg.Reasoner.TimeoutSeconds = 120
	}
	if cfg.Compare.RiskConcurrency == 0 {
		cfg.Compare.RiskConcurrency = 8
	}
	if cfg.Compare.StatusPollInterval == 0 {
		cfg.Compare.StatusPollInterval = 2 * time.Second
	}

	GlobalConfig = &cfg
	return &cfg, nil
}

// FindUser finds a user by username
func (c *Config) FindUser(username string) *User {
	for i := range c.Users {
		if c.Users[i].Username == username {
			return &c.Users[i]
		}
	}
	return nil
}
