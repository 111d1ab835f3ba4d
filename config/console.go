package config

import (
	"errors"
	"os"

	"gopkg.in/yaml.v3"
)

// ConsoleConfig is read by the console and the stream client.
type ConsoleConfig struct {
	// ServerURL is the dexd JSON-RPC endpoint. The state stream needs ws:// or wss://.
	ServerURL string `yaml:"server_url"`
	// Account is the address the console trades and provides liquidity as.
	Account string `yaml:"account"`
	// SlippageBps is the tolerance applied to quoted swap output. Defaults to 500 (5%).
	SlippageBps uint16 `yaml:"slippage_bps"`
	LogFile     string `yaml:"log_file"`
}

const defaultSlippageBps = 500

// LoadConsoleConfig reads a configuration file from the given path and unmarshals it
// into a ConsoleConfig struct.
func LoadConsoleConfig(path string) (*ConsoleConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg ConsoleConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if cfg.ServerURL == "" {
		return nil, errors.New("server_url is required")
	}
	if cfg.SlippageBps == 0 {
		cfg.SlippageBps = defaultSlippageBps
	}
	if cfg.SlippageBps >= 10000 {
		return nil, errors.New("slippage_bps must be below 10000")
	}
	if cfg.LogFile == "" {
		cfg.LogFile = "console.log"
	}
	return &cfg, nil
}
