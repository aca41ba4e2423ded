package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

type Config struct {
	HTTP struct {
		Port        string `koanf:"port"`
		CORSOrigins string `koanf:"cors_origins"`
	} `koanf:"http"`

	Log struct {
		Level  string `koanf:"level"`
		Pretty bool   `koanf:"pretty"`
	} `koanf:"log"`

	Store struct {
		Driver string `koanf:"driver"`
	} `koanf:"store"`

	Database struct {
		URL string `koanf:"url"`
	} `koanf:"database"`

	Mongo struct {
		URI      string `koanf:"uri"`
		Database string `koanf:"database"`
	} `koanf:"mongo"`

	OpenAI struct {
		APIKey  string `koanf:"api_key"`
		Model   string `koanf:"model"`
		BaseURL string `koanf:"base_url"`
	} `koanf:"openai"`

	Instagram struct {
		VerifyToken       string  `koanf:"verify_token"`
		AppSecret         string  `koanf:"app_secret"`
		AppID             string  `koanf:"app_id"`
		APIBase           string  `koanf:"api_base"`
		APIVersion        string  `koanf:"api_version"`
		RequestsPerSecond float64 `koanf:"requests_per_second"`
	} `koanf:"instagram"`

	Scheduler struct {
		Secret string `koanf:"secret"`
	} `koanf:"scheduler"`
}

// envKeys maps the deployment's environment variables onto config keys.
var envKeys = map[string]string{
	"PORT":                   "http.port",
	"CORS_ALLOWED_ORIGINS":   "http.cors_origins",
	"LOG_LEVEL":              "log.level",
	"LOG_PRETTY":             "log.pretty",
	"STORE_DRIVER":           "store.driver",
	"DATABASE_URL":           "database.url",
	"MONGO_URI":              "mongo.uri",
	"MONGO_DATABASE":         "mongo.database",
	"OPENAI_API_KEY":         "openai.api_key",
	"OPENAI_MODEL":           "openai.model",
	"OPENAI_BASE_URL":        "openai.base_url",
	"INSTAGRAM_VERIFY_TOKEN": "instagram.verify_token",
	"INSTAGRAM_APP_SECRET":   "instagram.app_secret",
	"INSTAGRAM_APP_ID":       "instagram.app_id",
	"INSTAGRAM_API_BASE":     "instagram.api_base",
	"INSTAGRAM_API_VERSION":  "instagram.api_version",
	"INSTAGRAM_RATE_LIMIT":   "instagram.requests_per_second",
	"CRON_SECRET":            "scheduler.secret",
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"http.port":                     "8080",
		"http.cors_origins":             "*",
		"log.level":                     "info",
		"log.pretty":                    false,
		"store.driver":                  DriverPostgres,
		"mongo.database":                "sowerflow",
		"openai.model":                  "gpt-4o-mini",
		"instagram.api_base":            "https://graph.instagram.com",
		"instagram.api_version":         "v22.0",
		"instagram.requests_per_second": 5.0,
	}
}

// Load reads defaults, then the optional TOML file at path, then .env and the
// process environment; later sources win.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	}

	if err := k.Load(env.Provider("", ".", func(s string) string {
		return envKeys[s]
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}
	return &cfg, nil
}

// CORSOrigins splits the comma separated origin list.
func (c *Config) CORSOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.HTTP.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// ValidateStore checks what every command needs to open storage.
func (c *Config) ValidateStore() error {
	switch c.Store.Driver {
	case DriverPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	case DriverMongo:
		if c.Mongo.URI == "" {
			return fmt.Errorf("MONGO_URI is required for the mongo store")
		}
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required for profiles and media")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	return nil
}

// ValidateServe checks the settings the webhook server cannot run without.
func (c *Config) ValidateServe() error {
	if err := c.ValidateStore(); err != nil {
		return err
	}
	if c.Instagram.AppSecret == "" {
		return fmt.Errorf("INSTAGRAM_APP_SECRET is required")
	}
	if c.Instagram.VerifyToken == "" {
		return fmt.Errorf("INSTAGRAM_VERIFY_TOKEN is required")
	}
	if c.Scheduler.Secret == "" {
		return fmt.Errorf("CRON_SECRET is required")
	}
	return c.validateGenerator()
}

// ValidateDispatch checks the settings a drain run needs.
func (c *Config) ValidateDispatch() error {
	if err := c.ValidateStore(); err != nil {
		return err
	}
	return c.validateGenerator()
}

func (c *Config) validateGenerator() error {
	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	return nil
}
