package crypto

import (
	"os"
	"path/filepath"
	"testing"
)

func TestKeystoreRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	path := filepath.Join(t.TempDir(), "nested", "vault-keystore.json")

	if err := SaveToKeystore(path, key, "passphrase"); err != nil {
		t.Fatalf("save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("keystore permissions = %v, want 0600", info.Mode().Perm())
	}

	loaded, err := LoadFromKeystore(path, "passphrase")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.PubKey().Address().String() != key.PubKey().Address().String() {
		t.Fatalf("loaded key yields a different address")
	}

	if _, err := LoadFromKeystore(path, "wrong"); err == nil {
		t.Fatalf("wrong passphrase must be rejected")
	}
}

func TestKeystoreValidation(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	if err := SaveToKeystore("", key, "passphrase"); err == nil {
		t.Fatalf("empty path must be rejected")
	}
	if err := SaveToKeystore(filepath.Join(t.TempDir(), "k.json"), nil, "passphrase"); err == nil {
		t.Fatalf("nil key must be rejected")
	}
	if _, err := LoadFromKeystore("", "passphrase"); err == nil {
		t.Fatalf("empty path must be rejected on load")
	}
}
