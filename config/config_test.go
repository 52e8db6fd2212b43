package config

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
)

// isolate points HOME at a temp dir and clears every variable Load reads.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, env := range []string{
		"GPTCLI_PROVIDER", "GPTCLI_MODEL", "GPTCLI_DATA_DIR", "GPTCLI_BASE_URL",
		"GPTCLI_TRUST", "GPTCLI_CONTEXT_LENGTH", "GPTCLI_DEBUG",
		"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "OPENROUTER_API_KEY", "GEMINI_API_KEY",
	} {
		t.Setenv(env, "")
	}
	return home
}

func TestLoadDefaults(t *testing.T) {
	home := isolate(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultProvider, cfg.Provider)
	assert.Equal(t, DefaultModel, cfg.Model)
	assert.Equal(t, DefaultContextLength, cfg.ContextLength)
	assert.True(t, cfg.PrettyPrint)
	assert.True(t, cfg.Tools.Enabled)
	assert.Equal(t, "read_only", cfg.Tools.TrustLevel)
	assert.True(t, cfg.Summarization.Enabled)
	assert.Equal(t, filepath.Join(home, ".local", "share", "gptcli"), cfg.DataDir())

	assert.FileExists(t, filepath.Join(home, ".config", "gptcli", "settings.toml"))
	assert.FileExists(t, filepath.Join(cfg.DataDir(), "config.toml"))

	info, err := os.Stat(cfg.DataDir())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0700), info.Mode().Perm())

	// The generated template parses back to the defaults.
	u, err := LoadUserConfig(cfg.DataDir())
	require.NoError(t, err)
	assert.Equal(t, DefaultUserConfig(), u)
}

func TestLoadUserConfigFile(t *testing.T) {
	isolate(t)
	dataDir := t.TempDir()
	t.Setenv("GPTCLI_DATA_DIR", dataDir)

	content := `
default_provider = "anthropic"
default_model = "claude-sonnet-4-5"
context_length = 200000
pretty_print = false
system_prompt = "be brief"

[tools]
enabled = true
force = true
trust_level = "full"

[summarization]
enabled = false
model = "claude-haiku"

[[providers]]
id = "ollama"
base_url = "http://gpu-box:11434"
enabled = true
`
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "config.toml"), []byte(content), 0600))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "anthropic", cfg.Provider)
	assert.Equal(t, "claude-sonnet-4-5", cfg.Model)
	assert.Equal(t, 200000, cfg.ContextLength)
	assert.False(t, cfg.PrettyPrint)
	assert.Equal(t, "be brief", cfg.SystemPrompt)
	assert.True(t, cfg.Tools.Force)
	assert.Equal(t, "full", cfg.Tools.TrustLevel)
	assert.False(t, cfg.Summarization.Enabled)
	assert.Equal(t, "claude-haiku", cfg.Summarization.Model)
	require.Len(t, cfg.Providers, 1)
	assert.Equal(t, "http://gpu-box:11434", cfg.ProviderBaseURL("ollama"))
	assert.Equal(t, "", cfg.ProviderBaseURL("openai"))
	assert.True(t, cfg.ProviderConfigured("ollama"))
	assert.True(t, cfg.ProviderConfigured("anthropic"))
	assert.False(t, cfg.ProviderConfigured("openai"))
}

func TestEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("GPTCLI_DATA_DIR", t.TempDir())
	t.Setenv("GPTCLI_PROVIDER", "ollama")
	t.Setenv("GPTCLI_MODEL", "qwen3")
	t.Setenv("GPTCLI_BASE_URL", "http://localhost:9999")
	t.Setenv("GPTCLI_TRUST", "none")
	t.Setenv("GPTCLI_CONTEXT_LENGTH", "32768")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "ollama", cfg.Provider)
	assert.Equal(t, "qwen3", cfg.Model)
	assert.Equal(t, "none", cfg.Tools.TrustLevel)
	assert.Equal(t, 32768, cfg.ContextLength)
	assert.Equal(t, "http://localhost:9999", cfg.ProviderBaseURL("ollama"))
	assert.Equal(t, "http://localhost:11434", DefaultProviders()[4].BaseURL)
}

func TestAPIKeyResolution(t *testing.T) {
	isolate(t)
	t.Setenv("GPTCLI_DATA_DIR", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.APIKey("openai"))

	require.NoError(t, cfg.SetAPIKey("openai", "sk-stored"))
	assert.Equal(t, "sk-stored", cfg.APIKey("openai"))

	t.Setenv("OPENAI_API_KEY", "sk-env")
	assert.Equal(t, "sk-env", cfg.APIKey("openai"))

	t.Setenv("GEMINI_API_KEY", "g-key")
	assert.Equal(t, "g-key", cfg.APIKey("google"))
	assert.Empty(t, cfg.APIKey("ollama"))

	// The stored key survives a reload.
	t.Setenv("OPENAI_API_KEY", "")
	reloaded, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-stored", reloaded.APIKey("openai"))
	assert.Equal(t, []string{"openai"}, reloaded.CredentialStore.Providers())

	require.NoError(t, reloaded.SetAPIKey("openai", ""))
	assert.Empty(t, reloaded.APIKey("openai"))
}

func TestPlainTextCredentialPermissions(t *testing.T) {
	dir := t.TempDir()
	store := NewCredentialStore(SecurityPlainText, "")
	store.Set("anthropic", "key")
	require.NoError(t, store.Save(dir))

	info, err := os.Stat(filepath.Join(dir, "credentials.toml"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded := NewCredentialStore(SecurityPlainText, "")
	require.NoError(t, loaded.Load(dir))
	assert.Equal(t, "key", loaded.Get("anthropic"))
}

func writeSSHKey(t *testing.T, passphrase string) string {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	var block *pem.Block
	if passphrase == "" {
		block, err = ssh.MarshalPrivateKey(priv, "test")
	} else {
		block, err = ssh.MarshalPrivateKeyWithPassphrase(priv, "test", []byte(passphrase))
	}
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "id_ed25519")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0600))
	return path
}

func TestEncryptedCredentials(t *testing.T) {
	dir := t.TempDir()
	keyPath := writeSSHKey(t, "")

	store := NewCredentialStore(SecuritySSHKey, keyPath)
	store.Set("openrouter", "or-key")
	require.NoError(t, store.Save(dir))

	raw, err := os.ReadFile(filepath.Join(dir, "credentials.enc"))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "or-key")

	loaded := NewCredentialStore(SecuritySSHKey, keyPath)
	require.NoError(t, loaded.Load(dir))
	assert.Equal(t, "or-key", loaded.Get("openrouter"))

	other := NewCredentialStore(SecuritySSHKey, writeSSHKey(t, ""))
	assert.Error(t, other.Load(dir))
}

func TestEncryptedCredentialsPassphrase(t *testing.T) {
	dir := t.TempDir()
	keyPath := writeSSHKey(t, "hunter2")

	encrypted, err := IsSSHKeyEncrypted(keyPath)
	require.NoError(t, err)
	assert.True(t, encrypted)

	store := NewCredentialStore(SecuritySSHKey, keyPath)
	store.Set("openai", "sk")
	err = store.Save(dir)
	require.Error(t, err)
	assert.True(t, IsPassphraseRequired(err))

	store.SetPassphrase("hunter2")
	require.NoError(t, store.Save(dir))

	locked := NewCredentialStore(SecuritySSHKey, keyPath)
	assert.True(t, IsPassphraseRequired(locked.Load(dir)))

	locked.SetPassphrase("wrong")
	assert.Error(t, locked.Load(dir))

	locked.SetPassphrase("hunter2")
	require.NoError(t, locked.Load(dir))
	assert.Equal(t, "sk", locked.Get("openai"))
}

func TestSetProviderEnabled(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, SetProviderEnabled(dir, "gemini", true))
	require.NoError(t, SetProviderEnabled(dir, "custom", true))

	u, err := LoadUserConfig(dir)
	require.NoError(t, err)
	byID := map[string]ProviderConfig{}
	for _, p := range u.Providers {
		byID[p.ID] = p
	}
	assert.True(t, byID["gemini"].Enabled)
	assert.True(t, byID["custom"].Enabled)
	assert.Equal(t, "custom", byID["custom"].Name)
}

func TestExpandPath(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	t.Setenv("GPTCLI_TEST_DIR", "/srv/data")

	assert.Equal(t, "/home/tester/notes", ExpandPath("~/notes"))
	assert.Equal(t, "/home/tester", ExpandPath("~"))
	assert.Equal(t, "/srv/data/x", ExpandPath("$GPTCLI_TEST_DIR/x"))
	assert.Equal(t, "", ExpandPath(""))
}

func TestInitLogger(t *testing.T) {
	t.Cleanup(func() {
		Logger = zap.NewNop()
		Debug = false
	})
	t.Setenv("GPTCLI_DEBUG", "")
	dir := t.TempDir()

	logger, err := InitLogger(dir, false)
	require.NoError(t, err)
	assert.False(t, Debug)
	assert.NoFileExists(t, filepath.Join(dir, "debug.log"))
	logger.Info("discarded")

	t.Setenv("GPTCLI_DEBUG", "1")
	logger, err = InitLogger(dir, false)
	require.NoError(t, err)
	assert.True(t, Debug)
	logger.Debug("hello", zap.String("k", "v"))
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(filepath.Join(dir, "debug.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
	assert.Contains(t, string(data), `"k":"v"`)

	info, err := os.Stat(filepath.Join(dir, "debug.log"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}
