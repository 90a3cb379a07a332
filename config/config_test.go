package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestTokenRoundTrip(t *testing.T) {
	secret := "site-secret-42"
	token := EncryptToken(secret, "ripley", "sk-api-key-123")

	username, key, err := DecryptToken(secret, token)
	if err != nil {
		t.Fatalf("DecryptToken: %v", err)
	}
	if username != "ripley" || key != "sk-api-key-123" {
		t.Errorf("got (%q, %q)", username, key)
	}
	if strings.Contains(token, "sk-api-key-123") {
		t.Error("token leaks the plaintext key")
	}
}

func TestDecryptTokenErrors(t *testing.T) {
	secret := "site-secret-42"
	token := EncryptToken(secret, "ripley", "sk-api-key-123")

	if _, _, err := DecryptToken(secret, "not-a-token"); err == nil {
		t.Error("malformed token should fail")
	}
	if _, _, err := DecryptToken("wrong-secret", token); err == nil {
		t.Error("wrong secret should fail signature verification")
	}
	tampered := strings.Replace(token, "ripley", "burke", 1)
	if _, _, err := DecryptToken(secret, tampered); err == nil {
		t.Error("tampered username should fail signature verification")
	}
}

func TestLoadLayering(t *testing.T) {
	dir := t.TempDir()
	site := strings.Join([]string{
		"# site defaults",
		"ASH_PROVIDER = azure_gateway",
		`ASH_MODEL = "gpt-4o"`,
		"ASH_ENDPOINT = https://gw.example.com/v1",
	}, "\n")
	if err := os.WriteFile(filepath.Join(dir, "site_defaults.txt"), []byte(site), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("ASH_DIR", dir)
	t.Setenv("ASH_MODEL", "gpt-4o-mini")
	for _, key := range []string{"ASH_PROVIDER", "ASH_ENDPOINT", "ASH_API_KEY",
		"ASH_USER_TOKEN", "ASH_TOKEN", "ASH_LOG_DIR", "ASH_LOG_IDENTITY"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Dir != dir {
		t.Errorf("Dir = %q", cfg.Dir)
	}
	// Site file overrides the built-in default.
	if cfg.Provider != "azure_gateway" {
		t.Errorf("Provider = %q, want azure_gateway", cfg.Provider)
	}
	// Quotes in the site file are stripped.
	if cfg.Endpoint != "https://gw.example.com/v1" {
		t.Errorf("Endpoint = %q", cfg.Endpoint)
	}
	// Environment overrides the site file.
	if cfg.Model != "gpt-4o-mini" {
		t.Errorf("Model = %q, want gpt-4o-mini", cfg.Model)
	}
	// LogDir falls back to Dir.
	if cfg.LogDir != dir {
		t.Errorf("LogDir = %q, want %q", cfg.LogDir, dir)
	}
}

func TestLoadUserToken(t *testing.T) {
	dir := t.TempDir()
	secret := "shhh-secret"
	if err := os.WriteFile(filepath.Join(dir, "site_key.txt"), []byte(secret+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	token := EncryptToken(secret, CurrentUsername(), "sk-from-token")

	t.Setenv("ASH_DIR", dir)
	t.Setenv("ASH_USER_TOKEN", token)
	os.Unsetenv("ASH_API_KEY")
	os.Unsetenv("ASH_TOKEN")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIKey != "sk-from-token" {
		t.Errorf("APIKey = %q, want decrypted key", cfg.APIKey)
	}
}

func TestLoadUserTokenWrongUser(t *testing.T) {
	dir := t.TempDir()
	secret := "shhh-secret"
	if err := os.WriteFile(filepath.Join(dir, "site_key.txt"), []byte(secret), 0o644); err != nil {
		t.Fatal(err)
	}
	token := EncryptToken(secret, "somebody-else", "sk-from-token")

	t.Setenv("ASH_DIR", dir)
	t.Setenv("ASH_USER_TOKEN", token)
	os.Unsetenv("ASH_API_KEY")
	os.Unsetenv("ASH_TOKEN")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIKey != "" {
		t.Errorf("a token for another user must not install a key, got %q", cfg.APIKey)
	}
}

func TestLegacyTokenSpelling(t *testing.T) {
	cfg := &Config{}
	setKey(cfg, "ASH_TOKEN", "legacy")
	if cfg.UserToken != "legacy" {
		t.Errorf("UserToken = %q", cfg.UserToken)
	}
	setKey(cfg, "ASH_USER_TOKEN", "modern")
	setKey(cfg, "ASH_TOKEN", "legacy-again")
	if cfg.UserToken != "modern" {
		t.Errorf("legacy spelling must not override ASH_USER_TOKEN, got %q", cfg.UserToken)
	}
}

func TestIdentity(t *testing.T) {
	cfg := &Config{LogIdentity: "username"}
	if got := cfg.Identity(); got != CurrentUsername() {
		t.Errorf("Identity = %q, want current username", got)
	}
	cfg.LogIdentity = "process"
	if got := cfg.Identity(); !strings.Contains(got, ":") {
		t.Errorf("process identity %q should carry host and pid", got)
	}
}
