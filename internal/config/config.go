// FILE: config.go
// Runtime configuration model and loader: config.json on disk plus the
// environment variables layered on top of it.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// ExchangeConfig is one exchange's entry in config.json.
type ExchangeConfig struct {
	BaseAsset string   `json:"base_asset"`
	Universe  []string `json:"universe"`
	Fee       float64  `json:"fee"`
}

// Credentials holds the API key triple for one exchange, sourced from the
// environment rather than config.json so secrets never sit on disk.
type Credentials struct {
	APIKey     string
	APISecret  string
	Passphrase string
}

// Config is the fully loaded, validated runtime configuration.
type Config struct {
	Exchanges        map[string]ExchangeConfig
	OrderbookWeights []float64

	Port                 int
	OrderExecutionSecret string
	LineNotifyToken      string

	Credentials map[string]Credentials // keyed by exchange name, e.g. "BINANCE"
}

// rawFile mirrors config.json's on-disk shape: a flat map whose keys are
// either an exchange name or the reserved "orderbook_weights" key.
type rawFile map[string]json.RawMessage

// ConfigError marks a fatal, non-recoverable configuration problem.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return "config: " + e.Msg }

var knownExchanges = []string{"BINANCE", "KUCOIN", "BITKUB"}

// Load reads configPath (config.json) plus .env/the process environment
// and returns a validated Config, or a *ConfigError if anything required
// is missing or malformed.
func Load(configPath string) (*Config, error) {
	loadDotEnv()

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, &ConfigError{Msg: fmt.Sprintf("reading %s: %v", configPath, err)}
	}

	var raw rawFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Msg: fmt.Sprintf("parsing %s: %v", configPath, err)}
	}

	cfg := &Config{
		Exchanges:        make(map[string]ExchangeConfig),
		OrderbookWeights: []float64{4, 2, 1, 1, 0, 0},
		Credentials:      make(map[string]Credentials),
	}

	if w, ok := raw["orderbook_weights"]; ok {
		var weights []float64
		if err := json.Unmarshal(w, &weights); err != nil {
			return nil, &ConfigError{Msg: fmt.Sprintf("orderbook_weights: %v", err)}
		}
		cfg.OrderbookWeights = weights
	}
	if len(cfg.OrderbookWeights) != 6 {
		return nil, &ConfigError{Msg: fmt.Sprintf("orderbook_weights must have 6 entries, got %d", len(cfg.OrderbookWeights))}
	}
	for _, w := range cfg.OrderbookWeights {
		if w < 0 {
			return nil, &ConfigError{Msg: "orderbook_weights must be non-negative"}
		}
	}

	for _, name := range knownExchanges {
		raw, ok := raw[name]
		if !ok {
			continue
		}
		var ec ExchangeConfig
		if err := json.Unmarshal(raw, &ec); err != nil {
			return nil, &ConfigError{Msg: fmt.Sprintf("%s: %v", name, err)}
		}
		cfg.Exchanges[name] = ec

		key := getEnv(name+"_API_KEY", "")
		secret := getEnv(name+"_API_SECRET", "")
		if key != "" && secret != "" {
			cfg.Credentials[name] = Credentials{
				APIKey:     key,
				APISecret:  secret,
				Passphrase: getEnv(name+"_PASSPHRASE", ""),
			}
		}
	}

	cfg.Port = getEnvInt("PORT", 8000)
	cfg.OrderExecutionSecret = getEnv("ORDER_EXECUTION_SECRET", "")
	cfg.LineNotifyToken = getEnv("LINE_NOTIFY_TOKEN", "")

	return cfg, nil
}

// HasCredentials reports whether exchange has both an API key and secret
// loaded, the gate the registry uses to decide whether to wire it up at all.
func (c *Config) HasCredentials(exchange string) bool {
	cr, ok := c.Credentials[exchange]
	return ok && cr.APIKey != "" && cr.APISecret != ""
}
