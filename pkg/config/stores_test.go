package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/wcstore/internal/bytesize"
	"github.com/marmos91/wcstore/pkg/wc/db"
	"github.com/marmos91/wcstore/pkg/wc/store"
)

func TestCreatePristineStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	tests := []struct {
		name    string
		cfg     PristineConfig
		backend string
	}{
		{"memory", PristineConfig{Type: "memory"}, "memory"},
		{"filesystem", PristineConfig{Type: "filesystem", Filesystem: map[string]any{
			"path":       filepath.Join(dir, "fs"),
			"create_dir": true,
			"file_mode":  "0600",
		}}, "fs"},
		{"badger", PristineConfig{Type: "badger", Badger: PristineBadgerConfig{
			Path:           filepath.Join(dir, "badger"),
			BlockCacheSize: 8 * bytesize.MiB,
		}}, "badger"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			texts, err := CreatePristineStore(ctx, tt.cfg, nil)
			require.NoError(t, err)
			defer func() { _ = texts.Close() }()

			assert.Equal(t, tt.backend, texts.Backend().Name())

			checksum, err := texts.Install(ctx, strings.NewReader("text"))
			require.NoError(t, err)
			ok, err := texts.Has(ctx, checksum)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestCreatePristineStore_FileModeHook(t *testing.T) {
	ctx := context.Background()
	base := filepath.Join(t.TempDir(), "texts")
	texts, err := CreatePristineStore(ctx, PristineConfig{Type: "filesystem", Filesystem: map[string]any{
		"path":       base,
		"create_dir": "true",
		"file_mode":  "0640",
	}}, nil)
	require.NoError(t, err)
	defer func() { _ = texts.Close() }()

	checksum, err := texts.InstallBytes(ctx, []byte("abc"))
	require.NoError(t, err)
	digest := strings.TrimPrefix(checksum, "sha1$")

	info, err := os.Stat(filepath.Join(base, digest[:2], digest))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0640), info.Mode().Perm())
}

func TestCreatePristineStore_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := CreatePristineStore(ctx, PristineConfig{Type: "tape"}, nil)
	assert.ErrorContains(t, err, "unknown pristine store type")

	_, err = CreatePristineStore(ctx, PristineConfig{Type: "s3", S3: map[string]any{"region": "us-east-1"}}, nil)
	assert.ErrorContains(t, err, "Bucket")

	_, err = CreatePristineStore(ctx, PristineConfig{Type: "filesystem", Filesystem: map[string]any{
		"path":      t.TempDir(),
		"file_mode": "rw-r--r--",
	}}, nil)
	assert.ErrorContains(t, err, "invalid file mode")
}

func TestCreateKeventRegistry(t *testing.T) {
	reg := CreateKeventRegistry(KeventConfig{MaxTimers: 1, PollInterval: time.Millisecond}, nil)
	kq := reg.NewInstance()
	defer func() { _ = kq.Close() }()

	assert.Zero(t, reg.OutstandingTimers())
}

func TestInitializeRuntime(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	cfg := GetDefaultConfig()
	cfg.Database = store.Config{Type: store.DatabaseTypeSQLite, SQLite: store.SQLiteConfig{Path: filepath.Join(dir, "wc.db")}}
	cfg.Pristine = PristineConfig{Type: "memory"}
	ApplyDefaults(cfg)
	require.NoError(t, Validate(cfg))

	rt, err := InitializeRuntime(ctx, cfg, "test")
	require.NoError(t, err)

	root, err := rt.DB.Init(ctx, filepath.Join(dir, "wc"), db.InitOptions{
		ReposRootURL: "https://svn.example.com/repos",
		Revision:     0,
	})
	require.NoError(t, err)
	info, err := root.ReadInfo(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, db.KindDir, info.Kind)

	assert.Equal(t, "memory", rt.Pristine.Backend().Name())
	assert.NotNil(t, rt.Kevent)
	assert.Nil(t, rt.WCMetrics)

	require.NoError(t, rt.Close(ctx))
}

func TestInitializeRuntime_Failure(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Database.SQLite.Path = store.MemoryPath
	cfg.Pristine = PristineConfig{Type: "tape"}

	_, err := InitializeRuntime(context.Background(), cfg, "test")
	assert.ErrorContains(t, err, "pristine")

	_, err = InitializeRuntime(context.Background(), nil, "test")
	assert.Error(t, err)
}
