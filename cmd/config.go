// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/flatcap/pkg/flatcap"
)

// appConfig is the full configuration file layout.
type appConfig struct {
	Connection connectionConfig `mapstructure:"connection" yaml:"connection"`
	Device     flatcap.Config   `mapstructure:"device" yaml:"device"`
	Log        logConfig        `mapstructure:"log" yaml:"log"`
	Serve      serveConfig      `mapstructure:"serve" yaml:"serve"`
}

type connectionConfig struct {
	Port        string `mapstructure:"port" yaml:"port"`
	Baud        int    `mapstructure:"baud" yaml:"baud"`
	URL         string `mapstructure:"url" yaml:"url"`
	Username    string `mapstructure:"username" yaml:"username"`
	NoSSLVerify bool   `mapstructure:"no_ssl_verify" yaml:"no_ssl_verify"`
}

type logConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"`
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
}

type serveConfig struct {
	Listen  string   `mapstructure:"listen" yaml:"listen"`
	APIKeys []string `mapstructure:"api_keys" yaml:"api_keys"`
}

// v holds flag bindings; loadConfig layers file and environment on top.
var v = viper.New()

// flagKeys maps persistent flag names to configuration keys.
var flagKeys = map[string]string{
	"port":          "connection.port",
	"baud":          "connection.baud",
	"url":           "connection.url",
	"username":      "connection.username",
	"no-ssl-verify": "connection.no_ssl_verify",
	"dialect":       "device.dialect",
	"simulate":      "device.simulate",
	"poll-interval": "device.poll_interval",
	"log-level":     "log.level",
	"log-format":    "log.format",
	"log-file":      "log.file",
}

func bindFlags(fs *pflag.FlagSet) {
	for name, key := range flagKeys {
		if f := fs.Lookup(name); f != nil {
			_ = v.BindPFlag(key, f)
		}
	}
}

func setDefaults(v *viper.Viper) {
	dev := flatcap.DefaultConfig()

	v.SetDefault("connection.baud", 9600)
	v.SetDefault("connection.port", "")
	v.SetDefault("connection.url", "")
	v.SetDefault("connection.username", "")
	v.SetDefault("connection.no_ssl_verify", false)

	v.SetDefault("device.dialect", dev.Dialect)
	v.SetDefault("device.simulate", dev.Simulate)
	v.SetDefault("device.poll_interval", dev.PollInterval)
	v.SetDefault("device.park_timeout", dev.ParkTimeout)
	v.SetDefault("device.retries", dev.Retries)
	v.SetDefault("device.retry_backoff", dev.RetryBackoff)
	v.SetDefault("device.command_gap", dev.CommandGap)
	v.SetDefault("device.ping_without_rts", dev.PingWithoutRTS)
	v.SetDefault("device.handshake_attempts", dev.HandshakeAttempts)
	v.SetDefault("device.handshake_delay", dev.HandshakeDelay)
	v.SetDefault("device.position_threshold", dev.PositionThreshold)
	v.SetDefault("device.temperature_threshold", dev.TemperatureThreshold)
	v.SetDefault("device.max_position", dev.MaxPosition)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "auto")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)

	v.SetDefault("serve.listen", ":8624")
	v.SetDefault("serve.api_keys", []string{})
}

// loadConfig reads path (or the default search locations), the FLATCAP_
// environment and the bound flags, in increasing order of precedence.
func loadConfig(path string) (appConfig, error) {
	return readConfig(v, path)
}

func readConfig(v *viper.Viper, path string) (appConfig, error) {
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("flatcap")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "flatcap"))
		}
	}

	v.SetEnvPrefix("FLATCAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return appConfig{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg appConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return appConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Device.Validate(); err != nil {
		return appConfig{}, fmt.Errorf("invalid device config: %w", err)
	}
	return cfg, nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	Long: `Print the configuration after merging defaults, the config file,
FLATCAP_ environment variables and command line flags.

The output is a valid flatcap.yaml and can be used as a starting point.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if used := v.ConfigFileUsed(); used != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "# loaded from %s\n", used)
		}
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(appCfg)
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
