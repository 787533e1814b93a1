package config

import (
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/alexjbarnes/marksync/internal/auth"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all environment-based configuration for marksync.
type Config struct {
	// Environment controls log format
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	// LogFile additionally writes logs to a rotating file.
	LogFile string `env:"LOG_FILE"`

	// StatePath is the bbolt database. Defaults to ~/.marksync/state.db.
	StatePath string `env:"MARKSYNC_STATE_PATH"`
	// AccountsFile lists the accounts. Defaults to ~/.marksync/accounts.yaml.
	AccountsFile string `env:"MARKSYNC_ACCOUNTS_FILE"`

	// Concurrency is the number of server calls in flight per pass.
	Concurrency int `env:"MARKSYNC_CONCURRENCY" envDefault:"10"`
	// FailsafeThreshold is the share of bookmarks a pass may delete.
	FailsafeThreshold float64 `env:"MARKSYNC_FAILSAFE_THRESHOLD" envDefault:"0.5"`
	// Debounce delays passes triggered by local changes.
	Debounce time.Duration `env:"MARKSYNC_DEBOUNCE" envDefault:"2s"`

	// MCP control server settings
	EnableMCP     bool   `env:"ENABLE_MCP" envDefault:"false"`
	MCPListenAddr string `env:"MCP_LISTEN_ADDR" envDefault:":8091"`
	MCPAPIKeys    string `env:"MCP_API_KEYS"`
}

// warnInsecureFile checks whether a file holding credentials (if present)
// has overly permissive permissions. On Unix systems, group or world
// readable files risk exposing credentials to other users.
func warnInsecureFile(path string) {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		return // file does not exist, nothing to check
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: %s has insecure permissions %04o; recommended 0600", path, mode)
	}
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureFile(".env")

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.resolvePaths(); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// resolvePaths fills default paths under ~/.marksync and makes every path
// absolute.
func (c *Config) resolvePaths() error {
	if c.StatePath == "" || c.AccountsFile == "" {
		dir, err := DefaultDir()
		if err != nil {
			return err
		}

		if c.StatePath == "" {
			c.StatePath = filepath.Join(dir, "state.db")
		}

		if c.AccountsFile == "" {
			c.AccountsFile = filepath.Join(dir, "accounts.yaml")
		}
	}

	for _, p := range []*string{&c.StatePath, &c.AccountsFile} {
		abs, err := filepath.Abs(*p)
		if err != nil {
			return fmt.Errorf("resolving %s to absolute path: %w", *p, err)
		}

		*p = abs
	}

	return nil
}

func (c *Config) validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("MARKSYNC_CONCURRENCY must be at least 1, got %d", c.Concurrency)
	}

	if c.FailsafeThreshold <= 0 || c.FailsafeThreshold > 1 {
		return fmt.Errorf("MARKSYNC_FAILSAFE_THRESHOLD must be in (0, 1], got %g", c.FailsafeThreshold)
	}

	if c.Debounce < 0 {
		return fmt.Errorf("MARKSYNC_DEBOUNCE must not be negative")
	}

	if c.EnableMCP && c.MCPAPIKeys == "" {
		return fmt.Errorf("MCP_API_KEYS is required when MCP is enabled")
	}

	if _, err := c.ParseMCPAPIKeys(); err != nil {
		return err
	}

	return nil
}

// DefaultDir returns ~/.marksync.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}

	return filepath.Join(home, ".marksync"), nil
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// APIKeyEntry holds a pre-configured API key and its associated user
// identity parsed from MCP_API_KEYS.
type APIKeyEntry struct {
	UserID string
	Key    string
}

// ParseMCPAPIKeys parses the MCP_API_KEYS string.
// Format: "user1:ms_key1,user2:ms_key2"
func (c *Config) ParseMCPAPIKeys() ([]APIKeyEntry, error) {
	if c.MCPAPIKeys == "" {
		return nil, nil
	}

	seenUsers := make(map[string]struct{})

	var entries []APIKeyEntry

	for _, pair := range strings.Split(c.MCPAPIKeys, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		idx := strings.Index(pair, ":")
		if idx < 0 {
			return nil, fmt.Errorf("invalid API key entry (missing ':')")
		}

		userID := pair[:idx]

		key := pair[idx+1:]
		if userID == "" || key == "" {
			return nil, fmt.Errorf("empty user or key in entry %d", len(entries)+1)
		}

		if !strings.HasPrefix(key, auth.APIKeyPrefix) {
			return nil, fmt.Errorf("API key must start with %q prefix in entry %d", auth.APIKeyPrefix, len(entries)+1)
		}

		if len(key) < auth.APIKeyMinLen {
			return nil, fmt.Errorf("API key too short in entry %d (minimum %d characters)", len(entries)+1, auth.APIKeyMinLen)
		}

		suffix := key[len(auth.APIKeyPrefix):]
		if _, err := hex.DecodeString(suffix); err != nil {
			return nil, fmt.Errorf("API key contains non-hex characters after %q prefix in entry %d", auth.APIKeyPrefix, len(entries)+1)
		}

		if _, dup := seenUsers[userID]; dup {
			return nil, fmt.Errorf("duplicate user_id %q in MCP_API_KEYS", userID)
		}

		seenUsers[userID] = struct{}{}
		entries = append(entries, APIKeyEntry{UserID: userID, Key: key})
	}

	return entries, nil
}

// APIKeys returns the parsed keys as a user to key map.
func (c *Config) APIKeys() (map[string]string, error) {
	entries, err := c.ParseMCPAPIKeys()
	if err != nil {
		return nil, err
	}

	out := make(map[string]string, len(entries))
	for _, e := range entries {
		out[e.UserID] = e.Key
	}

	return out, nil
}
