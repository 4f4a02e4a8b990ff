package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"deedvault/crypto"
)

func TestLoadCreatesDefaultFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)

	_, err = os.Stat(path)
	require.NoError(t, err, "default config file must be written")

	require.Equal(t, ":8545", cfg.RPCAddress)
	require.Equal(t, "./deedvault-data", cfg.DataDir)
	require.Equal(t, filepath.Join(dir, "vault-keystore.json"), cfg.VaultKeystorePath)
	require.Empty(t, cfg.SellerAddress)
}

func TestLoadExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := `RPCAddress = ":9000"
MetricsAddress = ":9101"
DataDir = "/tmp/deedvault"
VaultKeystorePath = "/tmp/vault.json"
SellerAddress = "deed1example"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.RPCAddress)
	require.Equal(t, ":9101", cfg.MetricsAddress)
	require.Equal(t, "/tmp/deedvault", cfg.DataDir)
	require.Equal(t, "/tmp/vault.json", cfg.VaultKeystorePath)
	require.Equal(t, "deed1example", cfg.SellerAddress)
}

func TestEnsureVaultKeyPersists(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{VaultKeystorePath: filepath.Join(dir, "vault-keystore.json")}

	first, err := cfg.EnsureVaultKey("passphrase")
	require.NoError(t, err)

	second, err := cfg.EnsureVaultKey("passphrase")
	require.NoError(t, err)
	require.Equal(t, first.PubKey().Address().String(), second.PubKey().Address().String())
}

func TestRoleAddress(t *testing.T) {
	addr, err := RoleAddress("BuyerAddress", "  ")
	require.NoError(t, err)
	require.Equal(t, [20]byte{}, addr, "empty input means unassigned")

	_, err = RoleAddress("BuyerAddress", "not-bech32")
	require.Error(t, err)
	require.Contains(t, err.Error(), "BuyerAddress")

	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	encoded := key.PubKey().Address().String()

	addr, err = RoleAddress("SellerAddress", encoded)
	require.NoError(t, err)
	require.Equal(t, key.PubKey().Address().Raw(), addr)
}
