package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalDefinition = `
project:
  name: chatifier
  url: https://github.com/example/chatifier.git
build:
  entry_point: chatifier/cli.py
`

func TestParseMinimalAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalDefinition))
	require.NoError(t, err)

	assert.Equal(t, "v*", cfg.Trigger.TagPattern)
	assert.Equal(t, "python3", cfg.Runtime.Tool)
	assert.Equal(t, "pyinstaller", cfg.Build.Packager)
	assert.Equal(t, "chatifier", cfg.Build.OutputName)
	assert.Equal(t, 100, cfg.Daemon.QueueSize)
	assert.Equal(t, 30, cfg.Storage.RetentionDays)

	require.Len(t, cfg.Platforms, 3)
	assert.Equal(t, "chatifier-linux", cfg.Platforms[0].Asset)
	assert.Equal(t, "chatifier.exe", cfg.Platforms[1].Executable)
	assert.Equal(t, "chatifier-macos", cfg.Platforms[2].Asset)
}

func TestArchiveNameAlwaysZip(t *testing.T) {
	for _, p := range DefaultPlatforms("chatifier") {
		if !strings.HasSuffix(p.ArchiveName(), ".zip") {
			t.Errorf("ArchiveName() = %q, want .zip suffix", p.ArchiveName())
		}
	}
	p := PlatformConfig{OS: "windows", Executable: "x.exe", Asset: "x-windows"}
	assert.Equal(t, "x-windows.zip", p.ArchiveName())
}

func TestValidateRejectsDuplicateAssetNames(t *testing.T) {
	cfg, err := Parse([]byte(minimalDefinition))
	require.NoError(t, err)

	cfg.Platforms[1].Asset = cfg.Platforms[0].Asset
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate asset name")
}

func TestValidateRejectsBadTagPattern(t *testing.T) {
	def := minimalDefinition + "\ntrigger:\n  tag_pattern: \"[\"\n"
	_, err := Parse([]byte(def))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a valid glob")
}

func TestValidateRejectsUnknownForge(t *testing.T) {
	def := minimalDefinition + `
forge:
  type: sourcehut
  owner: example
  repo: chatifier
`
	_, err := Parse([]byte(def))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported forge type")
}

func TestEnvExpansionInDefinition(t *testing.T) {
	t.Setenv("TEST_RELFORGE_TOKEN", "sekrit")

	def := minimalDefinition + `
forge:
  type: github
  owner: example
  repo: chatifier
  auth:
    type: token
    token: ${TEST_RELFORGE_TOKEN}
`
	cfg, err := Parse([]byte(def))
	require.NoError(t, err)
	require.NotNil(t, cfg.Forge)
	assert.Equal(t, "sekrit", cfg.Forge.Auth.Token)
	assert.True(t, cfg.Forge.HasCredential())
}

func TestSnapshotRedactsSecrets(t *testing.T) {
	def := minimalDefinition + `
forge:
  type: github
  owner: example
  repo: chatifier
  auth:
    type: token
    token: supersecret
daemon:
  webhook_secret: hooksecret
`
	cfg, err := Parse([]byte(def))
	require.NoError(t, err)

	snap := cfg.Snapshot()
	assert.Equal(t, "[REDACTED]", snap.Forge.Auth.Token)
	assert.Equal(t, "[REDACTED]", snap.Daemon.WebhookSecret)

	// Original untouched.
	assert.Equal(t, "supersecret", cfg.Forge.Auth.Token)
	assert.Equal(t, "hooksecret", cfg.Daemon.WebhookSecret)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestWriteSampleRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relforge.yaml")
	require.NoError(t, WriteSample(path, false))

	// Second write without force must refuse.
	err := WriteSample(path, false)
	require.Error(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	cfg, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, "chatifier", cfg.Project.Name)
	require.Len(t, cfg.Platforms, 3)
}
