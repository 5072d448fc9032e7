package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSkipsCommentsAndBlankLines(t *testing.T) {
	src := `
# this is a comment
network_password = s3cret

node_directory = /var/lib/mckoi
`
	f, err := Parse(strings.NewReader(src))
	require.NoError(t, err)

	pw, ok := f.Get("network_password")
	assert.True(t, ok)
	assert.Equal(t, "s3cret", pw)

	dir, ok := f.Get("node_directory")
	assert.True(t, ok)
	assert.Equal(t, "/var/lib/mckoi", dir)
}

func TestParseMalformedLine(t *testing.T) {
	_, err := Parse(strings.NewReader("not_a_kv_pair"))
	assert.Error(t, err)
}

func TestRequireMissingKey(t *testing.T) {
	f, err := Parse(strings.NewReader("a = 1"))
	require.NoError(t, err)
	_, err = f.Require("network_password")
	assert.Error(t, err)
}

func TestLoadNodeConfigDefaults(t *testing.T) {
	f, err := Parse(strings.NewReader("network_password = secret\nnode_directory = /data\n"))
	require.NoError(t, err)
	cfg, err := LoadNodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, int64(14*1024*1024), cfg.RootServerTransactionCache)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadNodeConfigRejectsEmptyPassword(t *testing.T) {
	f, err := Parse(strings.NewReader("network_password = \nnode_directory = /data\n"))
	require.NoError(t, err)
	_, err = LoadNodeConfig(f)
	assert.Error(t, err)
}

func TestLoadClientConfigRequiresManagerAddress(t *testing.T) {
	f, err := Parse(strings.NewReader("network_password = secret\n"))
	require.NoError(t, err)
	_, err = LoadClientConfig(f)
	assert.Error(t, err)
}
