package config

import (
	"bufio"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/blackmesalabs/ash/errors"
)

// Config is the resolved configuration map consumed by the rest of Ash.
// Values are applied in this order, later entries overriding earlier ones:
//  1. internal defaults
//  2. site_defaults.txt in ASH_DIR (key=value, quoted values allowed)
//  3. explicit ASH_* environment variables
type Config struct {
	Dir         string // ASH_DIR: base directory for site configuration
	Provider    string // ASH_PROVIDER
	Endpoint    string // ASH_ENDPOINT
	Model       string // ASH_MODEL
	APIVersion  string // ASH_API_VERSION
	APIKey      string // ASH_API_KEY (possibly decrypted from a user token)
	UserToken   string // ASH_USER_TOKEN / ASH_TOKEN: encrypted site-managed key
	UserPrompt  string // ASH_USER_PROMPT: prefix added to every AI request
	LogDir      string // ASH_LOG_DIR: usage log directory, defaults to Dir
	LogIdentity string // ASH_LOG_IDENTITY: "username" or "process"
}

const (
	defaultProvider = "gemini"
	defaultEndpoint = "https://generativelanguage.googleapis.com/v1beta/openai"
	defaultModel    = "gemini-2.0-flash"
)

// Load resolves the configuration from defaults, site files, and environment.
// A user token that fails to decrypt is logged and ignored; the key stays
// absent rather than failing the load.
func Load() (*Config, error) {
	home, _ := os.UserHomeDir()
	cfg := &Config{
		Dir:         filepath.Join(home, ".ash"),
		Provider:    defaultProvider,
		Endpoint:    defaultEndpoint,
		Model:       defaultModel,
		LogIdentity: "username",
	}

	if dir := os.Getenv("ASH_DIR"); dir != "" {
		cfg.Dir = dir
	}

	if err := loadSiteDefaults(filepath.Join(cfg.Dir, "site_defaults.txt"), cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not read site_defaults.txt: %v\n", err)
	}

	applyEnv(cfg)

	if cfg.UserToken != "" && cfg.APIKey == "" {
		if err := applyUserToken(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	if cfg.LogDir == "" {
		cfg.LogDir = cfg.Dir
	}
	return cfg, nil
}

// loadSiteDefaults reads key=value lines into cfg. Missing file is not an
// error; a malformed file is.
func loadSiteDefaults(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)
		if len(val) >= 2 && strings.HasPrefix(val, `"`) && strings.HasSuffix(val, `"`) {
			val = val[1 : len(val)-1]
		}
		setKey(cfg, key, val)
	}
	return sc.Err()
}

func applyEnv(cfg *Config) {
	for _, key := range []string{
		"ASH_DIR", "ASH_PROVIDER", "ASH_ENDPOINT", "ASH_MODEL",
		"ASH_API_VERSION", "ASH_API_KEY", "ASH_USER_TOKEN", "ASH_TOKEN",
		"ASH_USER_PROMPT", "ASH_LOG_DIR", "ASH_LOG_IDENTITY",
	} {
		if val, ok := os.LookupEnv(key); ok {
			setKey(cfg, key, val)
		}
	}
}

func setKey(cfg *Config, key, val string) {
	switch key {
	case "ASH_DIR":
		cfg.Dir = val
	case "ASH_PROVIDER":
		cfg.Provider = val
	case "ASH_ENDPOINT":
		cfg.Endpoint = val
	case "ASH_MODEL":
		cfg.Model = val
	case "ASH_API_VERSION":
		cfg.APIVersion = val
	case "ASH_API_KEY":
		cfg.APIKey = val
	case "ASH_USER_TOKEN":
		cfg.UserToken = val
	case "ASH_TOKEN":
		// Legacy spelling; only honored when ASH_USER_TOKEN is absent.
		if cfg.UserToken == "" {
			cfg.UserToken = val
		}
	case "ASH_USER_PROMPT":
		cfg.UserPrompt = val
	case "ASH_LOG_DIR":
		cfg.LogDir = val
	case "ASH_LOG_IDENTITY":
		cfg.LogIdentity = val
	}
}

// applyUserToken decrypts the site-managed token and installs the API key
// when the token's embedded username matches the current user.
func applyUserToken(cfg *Config) error {
	secret, err := LoadSiteSecretKey(cfg.Dir)
	if err != nil {
		return errors.Wrapf(err, "cannot decrypt ASH_USER_TOKEN")
	}
	username, key, err := DecryptToken(secret, cfg.UserToken)
	if err != nil {
		return errors.Wrapf(err, "cannot decrypt ASH_USER_TOKEN")
	}
	if username != CurrentUsername() {
		return errors.New("ASH_USER_TOKEN was issued for user %q", username)
	}
	cfg.APIKey = key
	return nil
}

// LoadSiteSecretKey reads the shared secret from site_key.txt in dir.
func LoadSiteSecretKey(dir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, "site_key.txt"))
	if err != nil {
		return "", errors.Wrapf(err, "site_key.txt not readable in %s", dir)
	}
	key := strings.TrimSpace(string(data))
	if key == "" {
		return "", errors.New("site_key.txt is empty")
	}
	return key, nil
}

// CurrentUsername returns the login name of the invoking user, falling back
// to the USER/USERNAME environment variables.
func CurrentUsername() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	if v := os.Getenv("USER"); v != "" {
		return v
	}
	if v := os.Getenv("USERNAME"); v != "" {
		return v
	}
	return "unknown"
}
