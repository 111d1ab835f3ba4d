// Package config loads dexd settings from flags, environment and config files, and the
// genesis and console files the binaries start from.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "DEXD"

// Config holds dexd settings loaded from flags, env, or config file.
type Config struct {
	HTTPAddr    string
	CORSOrigins []string
	RateLimit   float64
	RateBurst   int
	MetricsAddr string
	LogLevel    string

	GenesisFile     string
	ExchangeAddress common.Address
	FeeBps          uint16

	EventsJSONL           string
	PostgresDSN           string
	ClickhouseDSN         string
	RecorderBatchSize     int
	RecorderFlushInterval time.Duration
}

// RecordsEvents reports whether any event sink is configured.
func (c Config) RecordsEvents() bool {
	return c.EventsJSONL != "" || c.PostgresDSN != "" || c.ClickhouseDSN != ""
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("http-addr", "127.0.0.1:8545")
	v.SetDefault("cors-origins", []string{"*"})
	v.SetDefault("rate-limit", 0.0)
	v.SetDefault("rate-burst", 50)
	v.SetDefault("metrics-addr", "127.0.0.1:9090")
	v.SetDefault("log-level", "info")
	v.SetDefault("genesis", "genesis.yaml")
	v.SetDefault("exchange-address", "0x000000000000000000000000000000000000dE10")
	v.SetDefault("fee-bps", 30)
	v.SetDefault("recorder-batch-size", 100)
	v.SetDefault("recorder-flush-interval", time.Second)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("dexd")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	exchange := v.GetString("exchange-address")
	if !common.IsHexAddress(exchange) {
		return Config{}, fmt.Errorf("exchange-address %q is not a hex address", exchange)
	}
	feeBps := v.GetUint("fee-bps")
	if feeBps >= 10000 {
		return Config{}, fmt.Errorf("fee-bps %d must be below 10000", feeBps)
	}

	cfg := Config{
		HTTPAddr:              v.GetString("http-addr"),
		CORSOrigins:           getStringSlice(v, "cors-origins"),
		RateLimit:             v.GetFloat64("rate-limit"),
		RateBurst:             v.GetInt("rate-burst"),
		MetricsAddr:           v.GetString("metrics-addr"),
		LogLevel:              v.GetString("log-level"),
		GenesisFile:           v.GetString("genesis"),
		ExchangeAddress:       common.HexToAddress(exchange),
		FeeBps:                uint16(feeBps),
		EventsJSONL:           v.GetString("events-jsonl"),
		PostgresDSN:           v.GetString("postgres-dsn"),
		ClickhouseDSN:         v.GetString("clickhouse-dsn"),
		RecorderBatchSize:     v.GetInt("recorder-batch-size"),
		RecorderFlushInterval: v.GetDuration("recorder-flush-interval"),
	}
	if cfg.HTTPAddr == "" {
		return Config{}, errors.New("http-addr is required")
	}
	if cfg.RateLimit < 0 {
		return Config{}, errors.New("rate-limit cannot be negative")
	}

	return cfg, nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	return cleanStrings(strings.Split(input, ","))
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
