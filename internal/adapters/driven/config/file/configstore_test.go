package file

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigStore_Success(t *testing.T) {
	tmpDir := t.TempDir()

	store, err := NewConfigStore(tmpDir)

	require.NoError(t, err)
	require.NotNil(t, store)
	assert.Equal(t, filepath.Join(tmpDir, "config.toml"), store.Path())
}

func TestNewConfigStore_DefaultDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	store, err := NewConfigStore("")

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".lakegate", "config.toml"), store.Path())
}

func TestNewConfigStore_NestedDirectory(t *testing.T) {
	nested := filepath.Join(t.TempDir(), "a", "b")

	_, err := NewConfigStore(nested)
	require.NoError(t, err)

	info, err := os.Stat(nested)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, os.FileMode(0700), info.Mode().Perm())
}

func TestNewConfigStore_MkdirAllError(t *testing.T) {
	store, err := NewConfigStore("/dev/null/cannot/create")

	assert.Error(t, err)
	assert.Nil(t, store)
}

func TestNewConfigStore_CorruptedFile(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte("not toml {{[["), 0600))

	store, err := NewConfigStore(tmpDir)

	assert.Error(t, err)
	assert.Nil(t, store)
}

func assertValue(t *testing.T, store *ConfigStore, key string, want any) {
	t.Helper()
	got, ok := store.Get(key)
	require.True(t, ok, "%s should be set", key)
	assert.Equal(t, want, got)
}

func TestConfigStore_Getters(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Set("notify.topic", "lake.alerts"))
	require.NoError(t, store.Set("pipeline.concurrency", 8))
	require.NoError(t, store.Set("blobstore.path_style", true))
	require.NoError(t, store.Set("validation.required_fields", []string{"id", "timestamp"}))

	assertValue(t, store, "notify.topic", "lake.alerts")
	assertValue(t, store, "pipeline.concurrency", 8)
	assertValue(t, store, "blobstore.path_style", true)
	assert.Equal(t, []string{"id", "timestamp"}, store.GetStringSlice("validation.required_fields"))

	// Scalars and missing keys are not lists.
	assert.Nil(t, store.GetStringSlice("notify.topic"))
	assert.Nil(t, store.GetStringSlice("missing"))
	_, ok := store.Get("missing")
	assert.False(t, ok)
}

func TestConfigStore_GetStringSlice_TOMLArray(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)

	store.mu.Lock()
	store.data["validation.required_fields"] = []any{"id", 7, "timestamp"}
	store.mu.Unlock()

	assert.Equal(t, []string{"id", "timestamp"}, store.GetStringSlice("validation.required_fields"))
}

func TestConfigStore_WritesNestedTables(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Set("blobstore.driver", "s3"))
	require.NoError(t, store.Set("blobstore.bucket", "lake"))
	require.NoError(t, store.Set("data_dir", "/var/lib/lakegate"))

	raw, err := os.ReadFile(store.Path())
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, toml.Unmarshal(raw, &decoded))
	assert.Equal(t, "/var/lib/lakegate", decoded["data_dir"])
	blob, ok := decoded["blobstore"].(map[string]any)
	require.True(t, ok, "blobstore should be a table")
	assert.Equal(t, "s3", blob["driver"])
	assert.Equal(t, "lake", blob["bucket"])
}

func TestConfigStore_PersistenceRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewConfigStore(tmpDir)
	require.NoError(t, err)

	require.NoError(t, store.Set("prefixes.staging", "staging/"))
	require.NoError(t, store.Set("pipeline.concurrency", int64(4)))
	require.NoError(t, store.Set("validation.min_completeness", 0.95))

	reloaded, err := NewConfigStore(tmpDir)
	require.NoError(t, err)

	assertValue(t, reloaded, "prefixes.staging", "staging/")
	assertValue(t, reloaded, "pipeline.concurrency", int64(4))
	val, ok := reloaded.Get("validation.min_completeness")
	require.True(t, ok)
	assert.InDelta(t, 0.95, val, 0.0001)
}

func TestConfigStore_LoadsHandWrittenFile(t *testing.T) {
	tmpDir := t.TempDir()
	content := "[notify]\ndriver = \"nats\"\ntopic = \"lake.alerts\"\n\n[pipeline]\nconcurrency = 2\n"
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(content), 0600))

	store, err := NewConfigStore(tmpDir)
	require.NoError(t, err)

	assertValue(t, store, "notify.driver", "nats")
	assertValue(t, store, "notify.topic", "lake.alerts")
	assertValue(t, store, "pipeline.concurrency", int64(2))
}

func TestConfigStore_EmptyFile(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte("# comment only\n"), 0600))

	store, err := NewConfigStore(tmpDir)
	require.NoError(t, err)

	_, ok := store.Get("anything")
	assert.False(t, ok)
}

func TestConfigStore_FilePermissions(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Set("ingest.rest_token", "secret"))

	info, err := os.Stat(store.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestConfigStore_SaveError(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Set("a", "b"))

	require.NoError(t, os.Remove(store.Path()))
	require.NoError(t, os.Mkdir(store.Path(), 0700))

	assert.Error(t, store.Set("c", "d"))
	assert.Error(t, store.Save())
}

func TestConfigStore_UnmarshallableValue(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)

	assert.Error(t, store.Set("channel", make(chan int)))
}

func TestConfigStore_Concurrency(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = store.Set("pipeline.concurrency", n)
			_, _ = store.Get("pipeline.concurrency")
		}(i)
	}
	wg.Wait()

	_, ok := store.Get("pipeline.concurrency")
	assert.True(t, ok)
}

func TestNestMap(t *testing.T) {
	tests := []struct {
		name string
		in   map[string]any
		want map[string]any
	}{
		{
			name: "flat keys stay flat",
			in:   map[string]any{"data_dir": "/tmp"},
			want: map[string]any{"data_dir": "/tmp"},
		},
		{
			name: "dotted keys become tables",
			in:   map[string]any{"a.b": 1, "a.c": 2, "d.e.f": "x"},
			want: map[string]any{
				"a": map[string]any{"b": 1, "c": 2},
				"d": map[string]any{"e": map[string]any{"f": "x"}},
			},
		},
		{
			name: "scalar shadowing a table keeps the dotted name",
			in:   map[string]any{"a": 1, "a.b": 2},
			want: map[string]any{"a": 1, "a.b": 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, nestMap(tt.in))
			assert.Equal(t, tt.in, flattenMap(nestMap(tt.in), ""))
		})
	}
}

func TestOpenConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etc", "pipeline.toml")

	store, err := OpenConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, store.Path())

	require.NoError(t, store.Set("notify.topic", "alerts"))

	reopened, err := OpenConfigFile(path)
	require.NoError(t, err)
	assertValue(t, reopened, "notify.topic", "alerts")
}
