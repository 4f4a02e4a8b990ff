package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"deedvault/crypto"

	"github.com/BurntSushi/toml"
)

type Config struct {
	RPCAddress        string `toml:"RPCAddress"`
	MetricsAddress    string `toml:"MetricsAddress"`
	DataDir           string `toml:"DataDir"`
	VaultKeystorePath string `toml:"VaultKeystorePath"`
	SellerAddress     string `toml:"SellerAddress"`
	BuyerAddress      string `toml:"BuyerAddress"`
	LenderAddress     string `toml:"LenderAddress"`
	InspectorAddress  string `toml:"InspectorAddress"`
}

const defaultConfig = `# deedvault node configuration
RPCAddress = ":8545"
MetricsAddress = ""
DataDir = "./deedvault-data"
VaultKeystorePath = ""

# Transacting roles, bech32 encoded. SellerAddress is required; the other
# roles may be left empty and assigned later through the seller's admin
# operations.
SellerAddress = ""
BuyerAddress = ""
LenderAddress = ""
InspectorAddress = ""
`

// Load reads the configuration from the given path, creating a commented
// default file when none exists.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := createDefault(path); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = ":8545"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./deedvault-data"
	}
	if strings.TrimSpace(cfg.VaultKeystorePath) == "" {
		cfg.VaultKeystorePath = defaultKeystorePath(path)
	}
	return cfg, nil
}

func createDefault(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(defaultConfig), 0o600)
}

func defaultKeystorePath(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), "vault-keystore.json")
}

// EnsureVaultKey loads the vault key from the configured keystore,
// generating and persisting a fresh key on first start.
func (c *Config) EnsureVaultKey(passphrase string) (*crypto.PrivateKey, error) {
	if _, err := os.Stat(c.VaultKeystorePath); os.IsNotExist(err) {
		key, genErr := crypto.GeneratePrivateKey()
		if genErr != nil {
			return nil, genErr
		}
		if err := crypto.SaveToKeystore(c.VaultKeystorePath, key, passphrase); err != nil {
			return nil, err
		}
		return key, nil
	}
	return crypto.LoadFromKeystore(c.VaultKeystorePath, passphrase)
}

// RoleAddress parses one of the configured role addresses. Empty input
// yields the zero address, which the node treats as unassigned.
func RoleAddress(field, value string) ([20]byte, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return [20]byte{}, nil
	}
	addr, err := crypto.DecodeAddress(trimmed)
	if err != nil {
		return [20]byte{}, fmt.Errorf("config: invalid %s: %w", field, err)
	}
	return addr.Raw(), nil
}
