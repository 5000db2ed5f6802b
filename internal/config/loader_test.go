package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "conf"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "conf", "global.yaml"), []byte(body), 0o644))
	return root
}

type fakeSecrets map[string]string

func (f fakeSecrets) Resolve(_ context.Context, ref string) (string, error) {
	if v, ok := f[ref]; ok {
		return v, nil
	}
	return "", errors.New("no such secret")
}

func TestLoadDefaultsAndYAML(t *testing.T) {
	UseSecrets(nil)
	root := writeYAML(t, `
database:
  dsn: "pdb:@tcp(127.0.0.1:3306)/pdb?parseTime=true"
locale:
  timezone: "America/New_York"
`)
	cfg, err := LoadFrom(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.ListenAddr)
	assert.Equal(t, "pdb_", cfg.Database.TablePrefix)
	assert.Equal(t, "pdb_participants", cfg.Database.Table("participants"))
	assert.Equal(t, time.Hour, cfg.Calc.CacheTTL)
	assert.Equal(t, "America/New_York", cfg.Locale.Timezone)
	assert.Equal(t, 6, cfg.AdminList.RecentFields)
	assert.Equal(t, root, cfg.Paths.Root)
	assert.Same(t, cfg, Get())
}

func TestLoadEnvOverride(t *testing.T) {
	UseSecrets(nil)
	root := writeYAML(t, "database:\n  dsn: \"u:@tcp(db:3306)/pdb\"\n")
	t.Setenv("PDB_QUEUE__DRIVER", "redis")
	t.Setenv("PDB_QUEUE__REDIS_ADDR", "localhost:6379")

	cfg, err := LoadFrom(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.Queue.Driver)
	assert.Equal(t, "localhost:6379", cfg.Queue.RedisAddr)
}

func TestLoadValidationFailure(t *testing.T) {
	UseSecrets(nil)
	root := writeYAML(t, "queue:\n  driver: kafka\n")
	_, err := LoadFrom(context.Background(), root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.dsn required")
	assert.Contains(t, err.Error(), "queue.driver oneof=memory redis")
}

func TestLoadRejectsIdleAbovePool(t *testing.T) {
	UseSecrets(nil)
	root := writeYAML(t, "database:\n  dsn: \"u:@tcp(db:3306)/pdb\"\n  max_open: 4\n  max_idle: 8\n")
	_, err := LoadFrom(context.Background(), root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.max_idle ltefield=max_open")

	root = writeYAML(t, "database:\n  dsn: \"u:@tcp(db:3306)/pdb\"\n  max_open: 0\n  max_idle: 8\n")
	_, err = LoadFrom(context.Background(), root)
	assert.NoError(t, err)
}

func TestLoadResolvesVaultReferences(t *testing.T) {
	root := writeYAML(t, `
database:
  dsn: "pdb@tcp(db:3306)/pdb"
  password: "vault:secret/pdb#password"
`)
	UseSecrets(fakeSecrets{"secret/pdb#password": "s3cret"})
	t.Cleanup(func() { UseSecrets(nil) })

	cfg, err := LoadFrom(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Database.Password)

	dsn, err := cfg.Database.DSNWithPassword()
	require.NoError(t, err)
	assert.Contains(t, dsn, "pdb:s3cret@tcp(db:3306)/pdb")
}

func TestLoadVaultReferenceWithoutResolver(t *testing.T) {
	UseSecrets(nil)
	root := writeYAML(t, `
database:
  dsn: "pdb@tcp(db:3306)/pdb"
  password: "vault:secret/pdb#password"
`)
	_, err := LoadFrom(context.Background(), root)
	assert.Error(t, err)
}
