package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWithNoFileUsesDefaults(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	empty := t.TempDir()
	require.NoError(t, os.Chdir(empty))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, ":1935", cfg.RTMP.Addr)
	assert.Equal(t, "local", cfg.Storage.Backend)
	assert.Equal(t, "./data/streams", cfg.Storage.LocalDir)
	assert.Equal(t, 60*time.Second, cfg.Stream.SourceTimeout)
	assert.Equal(t, 2*time.Second, cfg.HLS.SegmentDuration)
	assert.Equal(t, 10, cfg.HLS.MaxSegments)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9090"
rtmp:
  addr: ":2935"
storage:
  backend: gcs
  gcs_project_id: proj
  gcs_bucket_name: bucket
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, ":2935", cfg.RTMP.Addr)
	assert.Equal(t, "gcs", cfg.Storage.Backend)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage:
  backend: gcs
`), 0644))

	_, err := Load(path)
	assert.Error(t, err, "gcs backend without project/bucket must fail validation")
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	cfg := &Config{Storage: StorageConfig{Backend: "sftp"}}
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsNegativeRetryLimit(t *testing.T) {
	cfg := &Config{
		Storage: StorageConfig{Backend: "local", LocalDir: "/tmp"},
		Stream:  StreamConfig{RetryLimit: -1},
	}
	assert.Error(t, cfg.Validate())
}
