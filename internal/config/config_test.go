package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err, "explicit missing config file must fail")

	// No path falls back to defaults when no config file is found.
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	defer func() { _ = os.Chdir(cwd) }()

	cfg, err = Load("")
	require.NoError(t, err)

	assert.Equal(t, "nats", cfg.Queue.Type)
	assert.Equal(t, "combatlog", cfg.ObjectStore.Bucket)
	assert.Equal(t, "combatlog.ingest", cfg.Ingest.Subject)
	assert.Equal(t, "combatlog.objects.created", cfg.Compiler.Subject)
	assert.Equal(t, "combatlog.reports.ready", cfg.Compiler.DownstreamSubject)
	assert.Equal(t, 32, cfg.Ingest.StateCacheSize)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
queue:
  type: memory
object_store:
  backend: memory
  bucket: test-bucket
ingest:
  subject: test.ingest
  state_cache_size: 8
compiler:
  subject: test.objects
  work_dir: /tmp/work
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Queue.Type)
	assert.Equal(t, "test-bucket", cfg.ObjectStore.Bucket)
	assert.Equal(t, 8, cfg.Ingest.StateCacheSize)
	assert.Equal(t, "test.objects", cfg.Compiler.Subject)
	// Unset keys keep their defaults.
	assert.Equal(t, "combatlog.reports.ready", cfg.Compiler.DownstreamSubject)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing bucket",
			mutate:  func(c *Config) { c.ObjectStore.Bucket = "" },
			wantErr: "object_store.bucket",
		},
		{
			name:    "zero cache size",
			mutate:  func(c *Config) { c.Ingest.StateCacheSize = 0 },
			wantErr: "state_cache_size",
		},
		{
			name:    "missing ingest subject",
			mutate:  func(c *Config) { c.Ingest.Subject = "" },
			wantErr: "ingest.subject",
		},
		{
			name:    "missing compiler subject",
			mutate:  func(c *Config) { c.Compiler.Subject = "" },
			wantErr: "compiler.subject",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				ObjectStore: ObjectStoreConfig{Bucket: "b"},
				Ingest:      IngestConfig{Subject: "s", StateCacheSize: 32},
				Compiler:    CompilerConfig{Subject: "c"},
			}
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
