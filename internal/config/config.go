// Package config loads the TOML configuration that drives a run: the
// default relay set used for cold start, where the on-disk store and
// key file live, and the knobs that shape connection and fan-out
// behavior. It follows a flag -> env var -> default path resolution,
// and a zero-value-means-default-applies loading convention.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

const envVar = "INBOXCORE_CONFIG"

// Config is the ambient configuration InboxModel and its collaborators
// are constructed from. Every field has a zero-value-safe default
// applied by defaultConfig/LoadConfig so a missing file, or a file that
// only overrides a few fields, both work.
type Config struct {
	DataDir        string   `toml:"data_dir"`
	PrivateKeyFile string   `toml:"private_key_file"`
	Relays         []string `toml:"relays"`
	ConnectWaitSec int      `toml:"connect_wait_seconds"`
	MaxFanOut      int      `toml:"max_fan_out"`
	Debug          bool     `toml:"debug"`
}

// ConnectWait is ConnectWaitSec as a time.Duration, the unit
// inbox.Config.ConnectWait takes.
func (c Config) ConnectWait() time.Duration {
	return time.Duration(c.ConnectWaitSec) * time.Second
}

func defaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{
		DataDir:        filepath.Join(home, ".local", "share", "inboxcore"),
		PrivateKeyFile: filepath.Join(home, ".config", "inboxcore", "key"),
		Relays: []string{
			"wss://relay.damus.io",
			"wss://relay.nostr.band",
			"wss://nos.lol",
		},
		ConnectWaitSec: 10,
		MaxFanOut:      3,
	}
}

// configPath resolves, in order: an explicit flag value, the
// INBOXCORE_CONFIG environment variable, then
// $HOME/.config/inboxcore/config.toml.
func configPath(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	if p := os.Getenv(envVar); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.toml"
	}
	return filepath.Join(home, ".config", "inboxcore", "config.toml")
}

// LoadConfig reads the TOML file at the resolved path, layering its
// values over defaultConfig. A missing file is not an error: every
// field simply keeps its default.
func LoadConfig(flagPath string) (Config, error) {
	cfg := defaultConfig()
	path := configPath(flagPath)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("config: read %q: %w", path, err)
	}

	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %q: %w", path, err)
	}
	if len(cfg.Relays) == 0 {
		cfg.Relays = defaultConfig().Relays
	}
	if cfg.ConnectWaitSec == 0 {
		cfg.ConnectWaitSec = defaultConfig().ConnectWaitSec
	}
	if cfg.MaxFanOut == 0 {
		cfg.MaxFanOut = defaultConfig().MaxFanOut
	}
	return cfg, nil
}
