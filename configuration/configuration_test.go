package configuration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadExample(t *testing.T) {
	cfg, err := Read("../setup_example.yaml")
	require.Nil(t, err)

	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, "./data/rollup.db", cfg.Database.Path)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Nil(t, cfg.Server.Validate())
	assert.Nil(t, cfg.Bookkeeper.Validate())
	assert.Nil(t, cfg.Client.Validate())
	assert.Nil(t, cfg.Sequencer.Validate())
	assert.Nil(t, cfg.Scheduler.Validate())
	assert.Nil(t, cfg.Watcher.Validate())
	assert.Equal(t, "./data/archive", cfg.Archive.Path)
	assert.Equal(t, 2112, cfg.Telemetry.Port)
	assert.Equal(t, "a5c19fed89739383", cfg.Sequencer.FranchiseeID)
	assert.Equal(t, int64(600), cfg.Scheduler.BlockIntervalSeconds)
	assert.Equal(t, cfg.Server.AccessToken, cfg.Client.AccessToken)
	assert.Equal(t, "", cfg.ZincLogger.Address)
	assert.Equal(t, "rollup", cfg.ZincLogger.Index)
}

func TestReadMissingFile(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.NotNil(t, err)
}

func TestReadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.Nil(t, os.WriteFile(path, []byte("server:\n  port: [eighty]\n"), 0644))
	_, err := Read(path)
	assert.ErrorContains(t, err, path)
}

func TestReadWithEnvOverridesSecrets(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.Nil(t, os.WriteFile(envFile, []byte(EnvDBConnStr+"=postgres://user:secret@db:5432\n"), 0644))

	t.Setenv(EnvAccessToken, "from-environment")
	t.Setenv(EnvWalletPath, "/secrets/wallet")
	t.Setenv(EnvZincToken, "Basic emluYw==")

	cfg, err := ReadWithEnv("../setup_example.yaml", envFile)
	require.Nil(t, err)
	os.Unsetenv(EnvDBConnStr)

	assert.Equal(t, "from-environment", cfg.Server.AccessToken)
	assert.Equal(t, "from-environment", cfg.Client.AccessToken)
	assert.Equal(t, "postgres://user:secret@db:5432", cfg.Database.ConnStr)
	assert.Equal(t, "/secrets/wallet", cfg.Sequencer.WalletPath)
	assert.Equal(t, "Basic emluYw==", cfg.ZincLogger.Token)
}

func TestReadWithEnvMissingEnvFile(t *testing.T) {
	_, err := ReadWithEnv("../setup_example.yaml", filepath.Join(t.TempDir(), ".env"))
	assert.NotNil(t, err)
}
