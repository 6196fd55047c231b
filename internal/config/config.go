package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Addr          string        `yaml:"addr"`
	JWTSecret     string        `yaml:"jwt_secret"`
	APITimeout    time.Duration `yaml:"timeout"`
	DatabasePath  string        `yaml:"database_path"`
	TokenDuration time.Duration `yaml:"token_duration"`

	// External collaborators. Both credentials are startup-fatal when
	// missing: the process must not run with a broken integration.
	PageToken    string `yaml:"page_token"`
	AppScriptURL string `yaml:"app_script_url"`

	AppScript AppScriptConfig `yaml:"app_script"`
	Messenger MessengerConfig `yaml:"messenger"`
	Reminder  ReminderConfig  `yaml:"reminder"`
}

type AppScriptConfig struct {
	Timeout  time.Duration `yaml:"timeout"`
	Retries  int           `yaml:"retries"`
	Backoff  time.Duration `yaml:"backoff"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

type MessengerConfig struct {
	BaseURL   string        `yaml:"base_url"`
	Timeout   time.Duration `yaml:"timeout"`
	SendDelay time.Duration `yaml:"send_delay"`
}

type ReminderConfig struct {
	CooldownHours   int    `yaml:"cooldown_hours"`
	DefaultTemplate string `yaml:"default_template"`
}

// DefaultReminderTemplate is used when no custom template is configured or
// supplied by the caller.
const DefaultReminderTemplate = `Hello {name},

Petit rappel pour remplir le formulaire *{form_name}*, diffusé le {date_envoi}.

Lien du formulaire 👉👉 {form_url}

Bien à toi,
La bise Santana`

func LoadConfig(path string) (*Config, error) {
	cfg := &Config{
		Addr:          getEnv("RELANCE_ADDR", ":8080"),
		JWTSecret:     getEnv("RELANCE_JWT_SECRET", "supersecretkey"),
		APITimeout:    15 * time.Second,
		DatabasePath:  getEnv("RELANCE_DATABASE_PATH", "relance.db"),
		TokenDuration: 1 * time.Hour,
		PageToken:     getEnv("PAGE_TOKEN", ""),
		AppScriptURL:  getEnv("GOOGLE_APP_SCRIPT_URL", ""),
	}
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		if err := dec.Decode(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Validate checks required credentials and fills in defaults for the
// external-client and reminder tunables.
func (c *Config) Validate() error {
	if c.PageToken == "" {
		return fmt.Errorf("missing messaging credential: set PAGE_TOKEN or page_token in config")
	}
	if c.AppScriptURL == "" {
		return fmt.Errorf("missing form endpoint: set GOOGLE_APP_SCRIPT_URL or app_script_url in config")
	}
	if c.JWTSecret == "supersecretkey" && os.Getenv("RELANCE_ENV") != "development" {
		return fmt.Errorf("insecure jwt_secret outside development; set RELANCE_JWT_SECRET")
	}

	if c.AppScript.Timeout <= 0 {
		c.AppScript.Timeout = 30 * time.Second
	}
	if c.AppScript.Retries == 0 {
		c.AppScript.Retries = 2
	}
	if c.AppScript.Backoff <= 0 {
		c.AppScript.Backoff = 500 * time.Millisecond
	}
	if c.AppScript.CacheTTL <= 0 {
		c.AppScript.CacheTTL = 60 * time.Second
	}

	if c.Messenger.BaseURL == "" {
		c.Messenger.BaseURL = "https://graph.facebook.com/v17.0/me/messages"
	}
	if c.Messenger.Timeout <= 0 {
		c.Messenger.Timeout = 30 * time.Second
	}
	if c.Messenger.SendDelay <= 0 {
		c.Messenger.SendDelay = 1 * time.Second
	}

	if c.Reminder.CooldownHours <= 0 {
		c.Reminder.CooldownHours = 24
	}
	if c.Reminder.DefaultTemplate == "" {
		c.Reminder.DefaultTemplate = DefaultReminderTemplate
	}

	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return def
}
