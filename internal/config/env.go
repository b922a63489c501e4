package config

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix namespaces every environment override, e.g. PRAYPAL_TELEGRAM_TOKEN.
const EnvPrefix = "PRAYPAL"

type envSecrets struct {
	TelegramToken  string `envconfig:"TELEGRAM_TOKEN"`
	MuslimsalatKey string `envconfig:"MUSLIMSALAT_KEY"`
	BrevoAPIKey    string `envconfig:"BREVO_API_KEY"`
	LogLevel       string `envconfig:"LOG_LEVEL"`
}

// LoadDotEnv loads KEY=VALUE pairs into the process environment.
// Missing files are ignored; variables already set are never overwritten.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if strings.TrimSpace(p) == "" {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
	}
	return nil
}

// ApplyEnv overlays secrets from the environment onto cfg. Non-empty
// environment values win over the file.
func ApplyEnv(cfg *Config) error {
	if cfg == nil {
		return nil
	}
	var s envSecrets
	if err := envconfig.Process(EnvPrefix, &s); err != nil {
		return err
	}
	if v := strings.TrimSpace(s.TelegramToken); v != "" {
		cfg.Telegram.Token = v
	}
	if v := strings.TrimSpace(s.MuslimsalatKey); v != "" {
		cfg.PrayerTimes.APIKey = v
	}
	if v := strings.TrimSpace(s.BrevoAPIKey); v != "" {
		cfg.Alerts.APIKey = v
	}
	if v := strings.TrimSpace(s.LogLevel); v != "" {
		cfg.Logging.Level = v
	}
	return nil
}
