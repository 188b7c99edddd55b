package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// appConfig is the deployment-level configuration of the service. Engine
// internals are derived from it in buildEngineConfig.
type appConfig struct {
	Server struct {
		Addr            string        `mapstructure:"addr"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
		CookieSecure    bool          `mapstructure:"cookie_secure"`
	} `mapstructure:"server"`

	Token struct {
		AccessSecret  string        `mapstructure:"access_secret"`
		RefreshSecret string        `mapstructure:"refresh_secret"`
		AccessTTL     time.Duration `mapstructure:"access_ttl"`
		RefreshTTL    time.Duration `mapstructure:"refresh_ttl"`
		Issuer        string        `mapstructure:"issuer"`
	} `mapstructure:"token"`

	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`

	Postgres struct {
		DSN         string `mapstructure:"dsn"`
		AutoMigrate bool   `mapstructure:"auto_migrate"`
	} `mapstructure:"postgres"`

	TOTP struct {
		Issuer string `mapstructure:"issuer"`
	} `mapstructure:"totp"`

	Logging struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"logging"`

	Seed struct {
		AdminUsername string `mapstructure:"admin_username"`
		AdminEmail    string `mapstructure:"admin_email"`
		AdminPassword string `mapstructure:"admin_password"`
	} `mapstructure:"seed"`
}

func loadConfig() (*appConfig, error) {
	setDefaults()

	viper.SetConfigName("campusauth")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/campusauth")

	viper.SetEnvPrefix("CAMPUSAUTH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// Running from environment variables alone is supported.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg appConfig
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Token.AccessSecret == "" || cfg.Token.RefreshSecret == "" {
		return nil, fmt.Errorf("token.access_secret and token.refresh_secret are required")
	}
	if cfg.Postgres.DSN == "" {
		return nil, fmt.Errorf("postgres.dsn is required")
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.addr", ":8080")
	viper.SetDefault("server.shutdown_timeout", 10*time.Second)
	viper.SetDefault("server.cookie_secure", true)
	viper.SetDefault("token.access_ttl", 15*time.Minute)
	viper.SetDefault("token.refresh_ttl", 7*24*time.Hour)
	viper.SetDefault("token.issuer", "campusmesh")
	viper.SetDefault("totp.issuer", "CampusMesh")
	viper.SetDefault("postgres.auto_migrate", true)
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}
