// Package ops loads and validates the runtime configuration files.
//
// param.json maps each traded symbol to its settings; secrets.json
// maps account names to API credentials. Both are validated before the
// pipeline starts so a bad file fails the process up front instead of
// surfacing mid-session.
package ops

import (
	"encoding/json"
	"os"
	"time"

	"github.com/yanun0323/errors"

	"main/internal/bus"
	"main/internal/risk"
)

// DefaultAccount is the secrets entry used when none is given.
const DefaultAccount = "bitget1"

// Duration accepts JSON strings like "1m" or "30s".
type Duration time.Duration

func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// SymbolSettings holds everything one symbol's stages need.
type SymbolSettings struct {
	Granularity      Duration    `json:"granularity"`
	TrixPeriod       int         `json:"trixPeriod"`
	TrixSignalPeriod int         `json:"trixSignalPeriod"`
	OrderSize        float64     `json:"orderSize"`
	QueueCapacity    int         `json:"queueCapacity"`
	Overflow         string      `json:"overflow"`
	StaleThreshold   int         `json:"staleThreshold"`
	Risk             risk.Config `json:"risk"`
}

// OverflowPolicy resolves the overflow knob. Candle and intent queues
// always block regardless of this setting; it governs the tick and
// position queues, where only the latest value matters.
func (s SymbolSettings) OverflowPolicy() bus.OverflowPolicy {
	if s.Overflow == "block" {
		return bus.OverflowBlock
	}
	return bus.OverflowDropOldest
}

// Config is the resolved param.json content.
type Config struct {
	Symbols map[string]SymbolSettings
}

// SymbolNames returns the configured symbols.
func (c Config) SymbolNames() []string {
	names := make([]string, 0, len(c.Symbols))
	for name := range c.Symbols {
		names = append(names, name)
	}
	return names
}

// LoadConfig reads param.json and validates every symbol entry.
func LoadConfig(path string) (Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "read config, path: %s", path)
	}

	symbols := map[string]SymbolSettings{}
	if err := json.Unmarshal(data, &symbols); err != nil {
		return cfg, errors.Wrapf(err, "parse config, path: %s", path)
	}
	if len(symbols) == 0 {
		return cfg, errors.Errorf("config has no symbols, path: %s", path)
	}

	for symbol, settings := range symbols {
		filled, err := validateSymbol(symbol, settings)
		if err != nil {
			return cfg, err
		}
		symbols[symbol] = filled
	}

	cfg.Symbols = symbols
	return cfg, nil
}

func validateSymbol(symbol string, s SymbolSettings) (SymbolSettings, error) {
	if symbol == "" {
		return s, errors.New("config contains an empty symbol key")
	}
	if s.Granularity.Std() < time.Second {
		return s, errors.Errorf("granularity below one second, symbol: %s", symbol)
	}
	if s.TrixPeriod < 2 {
		return s, errors.Errorf("trixPeriod must be at least 2, symbol: %s", symbol)
	}
	if s.TrixSignalPeriod < 1 {
		return s, errors.Errorf("trixSignalPeriod must be at least 1, symbol: %s", symbol)
	}
	if s.OrderSize <= 0 {
		return s, errors.Errorf("orderSize must be positive, symbol: %s", symbol)
	}
	if s.QueueCapacity < 0 {
		return s, errors.Errorf("queueCapacity must not be negative, symbol: %s", symbol)
	}
	if s.QueueCapacity == 0 {
		s.QueueCapacity = 256
	}
	switch s.Overflow {
	case "", "block", "dropOldest":
	default:
		return s, errors.Errorf("unknown overflow policy: %s, symbol: %s", s.Overflow, symbol)
	}
	if s.StaleThreshold == 0 {
		s.StaleThreshold = 10
	}
	return s, nil
}

// Secrets are one account's API credentials.
type Secrets struct {
	APIKey     string `json:"apiKey"`
	SecretKey  string `json:"secretKey"`
	Passphrase string `json:"passphrase"`
}

// LoadSecrets reads secrets.json and picks one account entry.
func LoadSecrets(path, account string) (Secrets, error) {
	var secrets Secrets

	if account == "" {
		account = DefaultAccount
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return secrets, errors.Wrapf(err, "read secrets, path: %s", path)
	}

	accounts := map[string]Secrets{}
	if err := json.Unmarshal(data, &accounts); err != nil {
		return secrets, errors.Wrapf(err, "parse secrets, path: %s", path)
	}

	secrets, ok := accounts[account]
	if !ok {
		return secrets, errors.Errorf("secrets missing account: %s", account)
	}
	if secrets.APIKey == "" || secrets.SecretKey == "" || secrets.Passphrase == "" {
		return secrets, errors.Errorf("secrets incomplete, account: %s", account)
	}
	return secrets, nil
}
