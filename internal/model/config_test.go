package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 15, cfg.Worker.PollIntervalSec)
	assert.Equal(t, 20, cfg.Worker.BatchSize)
	assert.Equal(t, 5, cfg.Worker.MaxAttempts)
	assert.Empty(t, cfg.Accounts)
}

func TestLoadConfig_Accounts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
worker:
  max_attempts: 2
accounts:
  - id: personal
    email: me@gmail.com
    provider: gmail
    imap_host: imap.gmail.com
  - id: work
    email: me@example.com
    imap_host: mail.example.com
    imap_port: "143"
    imap_tls: false
`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Worker.MaxAttempts)
	assert.Equal(t, 15, cfg.Worker.PollIntervalSec)
	require.Len(t, cfg.Accounts, 2)

	gmail := cfg.Account("personal")
	require.NotNil(t, gmail)
	assert.Equal(t, ProviderGmail, gmail.Provider)
	assert.Equal(t, "993", gmail.IMAPPort)
	assert.True(t, gmail.IMAPTLS)

	work := cfg.Account("work")
	require.NotNil(t, work)
	assert.Equal(t, ProviderIMAP, work.Provider)
	assert.Equal(t, "143", work.IMAPPort)
	assert.False(t, work.IMAPTLS)

	assert.Nil(t, cfg.Account("other"))
}

func TestLoadConfig_RejectsUnknownProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
accounts:
  - id: x
    provider: exchange
`), 0o600))

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider")
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := defaultAppConfig()
	cfg.Logging.Level = "debug"

	require.NoError(t, SaveConfig(path, cfg))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", loaded.Logging.Level)
	assert.Equal(t, cfg.Database.Path, loaded.Database.Path)
}

func TestProvider(t *testing.T) {
	assert.True(t, ProviderGmail.AutoCreatesSentCopy())
	assert.False(t, ProviderIMAP.AutoCreatesSentCopy())
	assert.False(t, Provider("exchange").Valid())
}
