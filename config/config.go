package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type SystemConfig struct {
	DataDirectory string `toml:"data_directory"`
}

// ProviderConfig is one entry of the [[providers]] list.
type ProviderConfig struct {
	ID      string `toml:"id"`
	Name    string `toml:"name,omitempty"`
	BaseURL string `toml:"base_url,omitempty"`
	Enabled bool   `toml:"enabled"`
}

type ToolsConfig struct {
	Enabled    bool   `toml:"enabled"`
	Force      bool   `toml:"force"`
	TrustLevel string `toml:"trust_level"`
}

type SummarizationConfig struct {
	Enabled bool   `toml:"enabled"`
	Model   string `toml:"model,omitempty"`
}

type SecurityConfig struct {
	CredentialStorage string `toml:"credential_storage"`
	SSHKeyPath        string `toml:"ssh_key_path,omitempty"`
}

type UserConfig struct {
	DefaultProvider string              `toml:"default_provider"`
	DefaultModel    string              `toml:"default_model"`
	ContextLength   int                 `toml:"context_length"`
	SystemPrompt    string              `toml:"system_prompt,omitempty"`
	PrettyPrint     bool                `toml:"pretty_print"`
	Providers       []ProviderConfig    `toml:"providers"`
	Tools           ToolsConfig         `toml:"tools"`
	Summarization   SummarizationConfig `toml:"summarization"`
	Security        SecurityConfig      `toml:"security"`
}

// Config is the resolved configuration: files, then environment.
type Config struct {
	DataDirectory string
	Provider      string
	Model         string
	ContextLength int
	SystemPrompt  string
	PrettyPrint   bool
	Providers     []ProviderConfig
	Tools         ToolsConfig
	Summarization SummarizationConfig

	Security        SecurityMethod
	SSHKeyPath      string
	CredentialStore *CredentialStore

	// baseURLOverride comes from GPTCLI_BASE_URL and applies to the
	// default provider only.
	baseURLOverride string
}

var (
	Debug  = false
	Logger = zap.NewNop()
)

var apiKeyEnv = map[string]string{
	"openai":     "OPENAI_API_KEY",
	"anthropic":  "ANTHROPIC_API_KEY",
	"claude":     "ANTHROPIC_API_KEY",
	"openrouter": "OPENROUTER_API_KEY",
	"gemini":     "GEMINI_API_KEY",
	"google":     "GEMINI_API_KEY",
}

// APIKeyEnvVar returns the environment variable holding the API key of a
// provider, or "" if it takes none.
func APIKeyEnvVar(providerID string) string {
	return apiKeyEnv[providerID]
}

func (c *Config) DataDir() string {
	return ExpandPath(c.DataDirectory)
}

// APIKey resolves the key of a provider: environment first, then the
// credential store.
func (c *Config) APIKey(providerID string) string {
	if env := APIKeyEnvVar(providerID); env != "" {
		if key := os.Getenv(env); key != "" {
			return key
		}
	}
	if c.CredentialStore != nil {
		return c.CredentialStore.Get(providerID)
	}
	return ""
}

// ProviderBaseURL returns the configured endpoint of a provider, or "" to
// use the provider's default.
func (c *Config) ProviderBaseURL(providerID string) string {
	if providerID == c.Provider && c.baseURLOverride != "" {
		return c.baseURLOverride
	}
	for _, p := range c.Providers {
		if p.ID == providerID {
			return p.BaseURL
		}
	}
	return ""
}

// ProviderConfigured reports whether providerID is the default provider or
// an enabled entry of the providers list.
func (c *Config) ProviderConfigured(providerID string) bool {
	if providerID == c.Provider {
		return true
	}
	for _, p := range c.Providers {
		if p.ID == providerID {
			return p.Enabled
		}
	}
	return false
}

func (c *Config) applyUserConfig(u *UserConfig) {
	if u.DefaultProvider != "" {
		c.Provider = u.DefaultProvider
	}
	if u.DefaultModel != "" {
		c.Model = u.DefaultModel
	}
	if u.ContextLength > 0 {
		c.ContextLength = u.ContextLength
	}
	c.SystemPrompt = u.SystemPrompt
	c.PrettyPrint = u.PrettyPrint
	c.Providers = u.Providers
	c.Tools = u.Tools
	c.Summarization = u.Summarization
	if u.Security.CredentialStorage != "" {
		c.Security = SecurityMethod(u.Security.CredentialStorage)
	}
	c.SSHKeyPath = ExpandPath(u.Security.SSHKeyPath)
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("GPTCLI_PROVIDER"); v != "" {
		c.Provider = v
	}
	if v := os.Getenv("GPTCLI_MODEL"); v != "" {
		c.Model = v
	}
	if v := os.Getenv("GPTCLI_DATA_DIR"); v != "" {
		c.DataDirectory = v
	}
	if v := os.Getenv("GPTCLI_BASE_URL"); v != "" {
		c.baseURLOverride = v
	}
	if v := os.Getenv("GPTCLI_TRUST"); v != "" {
		c.Tools.TrustLevel = v
	}
	if v := os.Getenv("GPTCLI_CONTEXT_LENGTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.ContextLength = n
		}
	}
}

func CheckDebug() bool {
	debug := strings.ToLower(os.Getenv("GPTCLI_DEBUG"))
	return debug == "true" || debug == "1"
}

// InitLogger sets Logger to a JSON debug log in dataDir when GPTCLI_DEBUG is
// set (or force is true); otherwise Logger stays a no-op.
func InitLogger(dataDir string, force bool) (*zap.Logger, error) {
	if !force && !CheckDebug() {
		Logger = zap.NewNop()
		return Logger, nil
	}

	if err := EnsureDir(dataDir); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	logPath := filepath.Join(dataDir, "debug.log")

	// The log may contain prompts; create it user-only before zap opens it.
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open debug log at %s: %w", logPath, err)
	}
	f.Close()

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.OutputPaths = []string{logPath}
	cfg.ErrorOutputPaths = []string{logPath}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	Debug = true
	Logger = logger
	Logger.Info("debug logging started", zap.String("path", logPath))
	return Logger, nil
}

// Load reads settings.toml and the user config, then applies environment
// overrides. Missing files are created from the templates.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	systemCfg, err := LoadSystemConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load system config: %w", err)
	}
	if systemCfg.DataDirectory != "" {
		cfg.DataDirectory = systemCfg.DataDirectory
	}
	if v := os.Getenv("GPTCLI_DATA_DIR"); v != "" {
		cfg.DataDirectory = v
	}

	dataDir := cfg.DataDir()
	if err := EnsureDataDirPermissions(dataDir); err != nil {
		return nil, fmt.Errorf("failed to set data directory permissions: %w", err)
	}

	userCfg, err := LoadUserConfig(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	}
	cfg.applyUserConfig(userCfg)
	cfg.applyEnvOverrides()

	if err := cfg.openCredentialStore(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) openCredentialStore() error {
	if c.Security == SecuritySSHKey && c.SSHKeyPath == "" {
		keys, err := FindSSHKeys()
		if err != nil || len(keys) == 0 {
			return fmt.Errorf("credential_storage is %q but no SSH key was found", SecuritySSHKey)
		}
		c.SSHKeyPath = keys[0]
	}
	c.CredentialStore = NewCredentialStore(c.Security, c.SSHKeyPath)

	// An encrypted store whose key needs a passphrase is unlocked later,
	// on demand.
	if err := c.CredentialStore.Load(c.DataDir()); err != nil {
		if c.Security == SecuritySSHKey && IsPassphraseRequired(err) {
			Logger.Debug("credential store locked", zap.Error(err))
			return nil
		}
		return fmt.Errorf("failed to load credentials: %w", err)
	}
	return nil
}

// CredentialsLocked reports whether the encrypted credential store is
// waiting for an SSH key passphrase.
func (c *Config) CredentialsLocked() bool {
	if c.Security != SecuritySSHKey || !FileExists(encryptedCredentialsPath(c.DataDir())) {
		return false
	}
	encrypted, err := IsSSHKeyEncrypted(c.SSHKeyPath)
	return err == nil && encrypted && c.CredentialStore != nil && c.CredentialStore.passphrase == ""
}

// UnlockCredentials decrypts the credential store with the SSH key
// passphrase.
func (c *Config) UnlockCredentials(passphrase string) error {
	c.CredentialStore.SetPassphrase(passphrase)
	if err := c.CredentialStore.Load(c.DataDir()); err != nil {
		return fmt.Errorf("failed to unlock credentials: %w", err)
	}
	return nil
}
