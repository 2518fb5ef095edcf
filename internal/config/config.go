// Package config loads peerdrop settings from YAML and PEERDROP_* env vars.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "PEERDROP"

type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Transport TransportConfig `mapstructure:"transport"`
	Signal    SignalConfig    `mapstructure:"signal"`
	Relay     RelayConfig     `mapstructure:"relay"`
	Inbox     InboxConfig     `mapstructure:"inbox"`

	// Codec names the envelope serialization: proto, json or cbor.
	Codec string `mapstructure:"codec"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

type TransportConfig struct {
	// Kind is webrtc or quic.
	Kind        string   `mapstructure:"kind"`
	QUICListen  string   `mapstructure:"quic_listen"`
	STUNServers []string `mapstructure:"stun_servers"`
}

type SignalConfig struct {
	URL    string `mapstructure:"url"`
	Listen string `mapstructure:"listen"`
}

type RelayConfig struct {
	Endpoints []string      `mapstructure:"endpoints"`
	Default   string        `mapstructure:"default"`
	Listen    string        `mapstructure:"listen"`
	TTL       time.Duration `mapstructure:"ttl"`
}

type InboxConfig struct {
	DSN         string `mapstructure:"dsn"`
	DownloadDir string `mapstructure:"download_dir"`
}

var defaultRelayEndpoints = []string{
	"https://piping.glitch.me/",
	"https://piping-47q675ro2guv.runkit.sh/",
	"https://ppng.io/",
}

var defaultSTUNServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
	"stun:stun2.l.google.com:19302",
	"stun:stun3.l.google.com:19302",
	"stun:stun4.l.google.com:19302",
}

func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 3,
		},
		Transport: TransportConfig{
			Kind:        "webrtc",
			QUICListen:  ":0",
			STUNServers: append([]string(nil), defaultSTUNServers...),
		},
		Signal: SignalConfig{
			URL:    "ws://localhost:9000/ws",
			Listen: ":9000",
		},
		Relay: RelayConfig{
			Endpoints: append([]string(nil), defaultRelayEndpoints...),
			Default:   defaultRelayEndpoints[0],
			Listen:    ":8080",
			TTL:       5 * time.Minute,
		},
		Inbox: InboxConfig{
			DSN:         ":memory:",
			DownloadDir: "downloads",
		},
		Codec: "proto",
	}
}

// Load reads configuration from path when given, otherwise from
// peerdrop.yaml in the working directory or ~/.peerdrop. A missing file is
// not an error; defaults and environment overrides still apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.file", cfg.Log.File)
	v.SetDefault("log.max_size_mb", cfg.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", cfg.Log.MaxBackups)
	v.SetDefault("transport.kind", cfg.Transport.Kind)
	v.SetDefault("transport.quic_listen", cfg.Transport.QUICListen)
	v.SetDefault("transport.stun_servers", cfg.Transport.STUNServers)
	v.SetDefault("signal.url", cfg.Signal.URL)
	v.SetDefault("signal.listen", cfg.Signal.Listen)
	v.SetDefault("relay.endpoints", cfg.Relay.Endpoints)
	v.SetDefault("relay.default", cfg.Relay.Default)
	v.SetDefault("relay.listen", cfg.Relay.Listen)
	v.SetDefault("relay.ttl", cfg.Relay.TTL)
	v.SetDefault("inbox.dsn", cfg.Inbox.DSN)
	v.SetDefault("inbox.download_dir", cfg.Inbox.DownloadDir)
	v.SetDefault("codec", cfg.Codec)

	if path == "" {
		path = os.Getenv(envPrefix + "_CONFIG")
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("peerdrop")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".peerdrop"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	switch c.Log.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}

	c.Transport.Kind = strings.ToLower(strings.TrimSpace(c.Transport.Kind))
	switch c.Transport.Kind {
	case "webrtc", "quic":
	default:
		return fmt.Errorf("invalid transport.kind: %q", c.Transport.Kind)
	}

	c.Codec = strings.ToLower(strings.TrimSpace(c.Codec))
	switch c.Codec {
	case "proto", "json", "cbor":
	default:
		return fmt.Errorf("invalid codec: %q", c.Codec)
	}

	if len(c.Relay.Endpoints) == 0 {
		return errors.New("relay.endpoints must not be empty")
	}
	for i, e := range c.Relay.Endpoints {
		c.Relay.Endpoints[i] = strings.TrimSpace(e)
	}
	if c.Relay.Default == "" {
		c.Relay.Default = c.Relay.Endpoints[0]
	}
	if c.Relay.TTL <= 0 {
		c.Relay.TTL = 5 * time.Minute
	}
	if c.Inbox.DSN == "" {
		c.Inbox.DSN = ":memory:"
	}
	return nil
}
