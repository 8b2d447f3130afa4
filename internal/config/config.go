// Package config loads the relay's TOML configuration.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server ServerSection `toml:"server"`
	Client ClientSection `toml:"client"`
}

type ServerSection struct {
	ListenAddress   string   `toml:"listen_address"`
	WSEndpoint      string   `toml:"ws_endpoint"`
	DatabasePath    string   `toml:"database_path"`
	AllowAllOrigins bool     `toml:"allow_all_origins"`
	AllowedOrigins  []string `toml:"allowed_origins"`
	DeniedOrigins   []string `toml:"denied_origins"`
	MaxMessageSize  int64    `toml:"max_message_size"`
}

type ClientSection struct {
	ReconnectDelaySeconds int `toml:"reconnect_delay_seconds"`
}

// Default returns the configuration used when no file is present. An empty
// database_path selects the in-memory store.
func Default() Config {
	return Config{
		Server: ServerSection{
			ListenAddress:   ":3000",
			WSEndpoint:      "/ws",
			DatabasePath:    "",
			AllowAllOrigins: true,
			MaxMessageSize:  4096,
		},
		Client: ClientSection{
			ReconnectDelaySeconds: 5,
		},
	}
}

// Load reads the config file at path, falling back to defaults when the
// file does not exist, then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("failed to stat config %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CHAT_RELAY_LISTEN_ADDRESS"); v != "" {
		cfg.Server.ListenAddress = v
	}
	if v := os.Getenv("CHAT_RELAY_DATABASE_PATH"); v != "" {
		cfg.Server.DatabasePath = v
	}
}
