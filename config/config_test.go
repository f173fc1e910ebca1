package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
connections:
  local:
    type: sqlite
    path: /var/data/app.db
  warehouse:
    type: postgres
    host: db.local
    port: 5433
    database: analytics
    user: svc
    password: s3cret
  legacy:
    type: mssql
    connection_string: sqlserver://sa:pw@legacy:1433?database=old
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Connections, 3)

	local := cfg.Connections["local"]
	assert.Equal(t, "sqlite", local.Type)
	assert.Equal(t, "/var/data/app.db", local.Path)

	wh := cfg.Connections["warehouse"]
	assert.Equal(t, "postgres", wh.Type)
	assert.Equal(t, "db.local", wh.Host)
	assert.Equal(t, 5433, wh.Port)
	assert.Equal(t, "analytics", wh.Database)
	assert.Equal(t, "svc", wh.User)
	assert.Equal(t, "s3cret", wh.Password)

	assert.Equal(t, "sqlserver://sa:pw@legacy:1433?database=old", cfg.Connections["legacy"].ConnString)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadMalformedYAML(t *testing.T) {
	path := writeConfig(t, "connections: [not: a: map")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadEmptyConfig(t *testing.T) {
	path := writeConfig(t, "")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, cfg.Connections)
}
