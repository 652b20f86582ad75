package tomikal

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	ApiUrl       string `mapstructure:"API_URL" validate:"required,url"`
	OrgName      string `mapstructure:"ORG_NAME"`
	SessionStore string `mapstructure:"SESSION_STORE" validate:"oneof=file memory redis postgres"`
	SessionPath  string `mapstructure:"SESSION_PATH"`
	RedisUrl     string `mapstructure:"REDIS_URL"`
	PostgresUrl  string `mapstructure:"POSTGRES_URL" validate:"required_if=SessionStore postgres"`
	ListenAddr   string `mapstructure:"LISTEN_ADDR"`
}

// LoadConfig reads dir/.env if there is one. Environment variables win over the file.
func LoadConfig(dir string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(filepath.Join(dir, ".env"))
	v.SetConfigType("env")

	// every key needs a default so AutomaticEnv can see it during Unmarshal
	v.SetDefault("API_URL", "")
	v.SetDefault("ORG_NAME", DefaultOrgName)
	v.SetDefault("SESSION_STORE", "file")
	v.SetDefault("SESSION_PATH", "")
	v.SetDefault("REDIS_URL", "redis://localhost:6379/0")
	v.SetDefault("POSTGRES_URL", "")
	v.SetDefault("LISTEN_ADDR", "127.0.0.1:8080")

	v.AutomaticEnv()

	err := v.ReadInConfig()
	if err != nil {
		notFound := viper.ConfigFileNotFoundError{}
		if !errors.Is(err, fs.ErrNotExist) && !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("unable to read config: %w", err)
		}
	}

	c := Config{}
	err = v.Unmarshal(&c)
	if err != nil {
		return Config{}, fmt.Errorf("unable to decode config: %w", err)
	}

	if c.OrgName == "" {
		c.OrgName = DefaultOrgName
	}

	if c.SessionPath == "" {
		configDir, err := os.UserConfigDir()
		if err != nil {
			configDir = os.TempDir()
		}
		c.SessionPath = filepath.Join(configDir, "tomikal", "session.json")
	}

	if err := validator.New().Struct(c); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return c, nil
}
