package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"fundingvault/native/amounts"
	"fundingvault/native/fees"
)

// TokenConfig describes one side of the issued/collateral pair.
type TokenConfig struct {
	Address  string `toml:"Address"`
	Decimals uint8  `toml:"Decimals"`
}

// FeeConfig carries the fee percentages and treasuries. Percentages are
// basis points and must stay below 10,000.
type FeeConfig struct {
	ProtocolBuyBps       uint32 `toml:"ProtocolBuyBps"`
	ProtocolSellBps      uint32 `toml:"ProtocolSellBps"`
	ProjectBuyBps        uint32 `toml:"ProjectBuyBps"`
	ProjectSellBps       uint32 `toml:"ProjectSellBps"`
	ProtocolBuyTreasury  string `toml:"ProtocolBuyTreasury"`
	ProtocolSellTreasury string `toml:"ProtocolSellTreasury"`
	ProjectTreasury      string `toml:"ProjectTreasury"`
}

// GenesisAccount seeds a ledger balance at startup so a standalone
// deployment has funded accounts without an external issuance path. Token
// selects which side of the pair is minted: "issued" or "collateral".
type GenesisAccount struct {
	Address string `toml:"Address"`
	Token   string `toml:"Token"`
	Amount  string `toml:"Amount"`
}

type Config struct {
	ListenAddress     string           `toml:"ListenAddress"`
	Environment       string           `toml:"Environment"`
	DataDir           string           `toml:"DataDir"`
	Backend           string           `toml:"Backend"`
	AuthToken         string           `toml:"AuthToken"`
	ChainID           uint64           `toml:"ChainID"`
	EngineAddress     string           `toml:"EngineAddress"`
	QueueAddress      string           `toml:"QueueAddress"`
	DisableAutoSettle bool             `toml:"DisableAutoSettle"`
	IssuedToken       TokenConfig      `toml:"IssuedToken"`
	CollateralToken   TokenConfig      `toml:"CollateralToken"`
	Fees              FeeConfig        `toml:"Fees"`
	Genesis           []GenesisAccount `toml:"Genesis"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.normalise()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalise() {
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = ":8080"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./funding-data"
	}
	if strings.TrimSpace(c.Backend) == "" {
		c.Backend = "memory"
	}
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	if c.ChainID == 0 {
		c.ChainID = 1
	}
	if c.IssuedToken.Decimals == 0 {
		c.IssuedToken.Decimals = 18
	}
	if c.CollateralToken.Decimals == 0 {
		c.CollateralToken.Decimals = 18
	}
}

// Validate rejects configurations that the engine would refuse at wiring
// time, so misconfiguration surfaces on startup rather than on first use.
func (c *Config) Validate() error {
	switch c.Backend {
	case "memory", "leveldb", "bolt":
	default:
		return fmt.Errorf("config: unknown backend %q", c.Backend)
	}
	if c.IssuedToken.Decimals > amounts.MaxDecimals || c.CollateralToken.Decimals > amounts.MaxDecimals {
		return fmt.Errorf("config: token decimals must not exceed %d", amounts.MaxDecimals)
	}
	for name, bps := range map[string]uint32{
		"ProtocolBuyBps":  c.Fees.ProtocolBuyBps,
		"ProtocolSellBps": c.Fees.ProtocolSellBps,
		"ProjectBuyBps":   c.Fees.ProjectBuyBps,
		"ProjectSellBps":  c.Fees.ProjectSellBps,
	} {
		if bps >= fees.BasisPoints {
			return fmt.Errorf("config: %s %d at or above %d bps", name, bps, fees.BasisPoints)
		}
	}
	for name, addr := range map[string]string{
		"EngineAddress":           c.EngineAddress,
		"QueueAddress":            c.QueueAddress,
		"IssuedToken.Address":     c.IssuedToken.Address,
		"CollateralToken.Address": c.CollateralToken.Address,
		"ProtocolBuyTreasury":     c.Fees.ProtocolBuyTreasury,
		"ProtocolSellTreasury":    c.Fees.ProtocolSellTreasury,
		"ProjectTreasury":         c.Fees.ProjectTreasury,
	} {
		if strings.TrimSpace(addr) == "" {
			continue
		}
		if _, err := ParseAddress(addr); err != nil {
			return fmt.Errorf("config: %s: %w", name, err)
		}
	}
	for i, account := range c.Genesis {
		switch strings.ToLower(strings.TrimSpace(account.Token)) {
		case "issued", "collateral":
		default:
			return fmt.Errorf("config: Genesis[%d].Token must be issued or collateral", i)
		}
		if _, err := ParseAddress(account.Address); err != nil {
			return fmt.Errorf("config: Genesis[%d]: %w", i, err)
		}
		if _, err := amounts.Parse(account.Amount); err != nil {
			return fmt.Errorf("config: Genesis[%d]: %w", i, err)
		}
	}
	return nil
}

// ParseAddress decodes a 0x-prefixed 20-byte hex address.
func ParseAddress(value string) ([20]byte, error) {
	var out [20]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return out, fmt.Errorf("invalid address %q: %w", value, err)
	}
	if len(decoded) != 20 {
		return out, fmt.Errorf("invalid address %q: want 20 bytes, got %d", value, len(decoded))
	}
	copy(out[:], decoded)
	return out, nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		ListenAddress: ":8080",
		Environment:   "local",
		DataDir:       "./funding-data",
		Backend:       "memory",
		ChainID:       1,
		IssuedToken:   TokenConfig{Decimals: 18},
		CollateralToken: TokenConfig{
			Decimals: 18,
		},
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return toml.NewEncoder(file).Encode(cfg)
}
