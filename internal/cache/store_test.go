package cache

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersistLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFile)
	want := map[string]Record{
		"a.js":            {Fingerprint: "f1", RemoteLocation: "https://cdn/a.js", LastSeen: 1700000000000},
		"assets/logo.png": {Fingerprint: "f2", RemoteLocation: "https://cdn/assets/logo.png", LastSeen: 1700000000001},
		"index.html":      {Fingerprint: "f3", RemoteLocation: "https://cdn/index.html", LastSeen: 0},
	}
	store, err := NewStore(path, nil)
	require.NoError(t, err)
	for id, rec := range want {
		store.Upsert(id, rec)
	}
	require.NoError(t, store.Persist())

	res := Load(path)
	if res.Status != Loaded {
		t.Fatalf("status = %v, want loaded", res.Status)
	}
	if !reflect.DeepEqual(res.Records, want) {
		t.Fatalf("round trip mismatch:\n got %#v\nwant %#v", res.Records, want)
	}
	if _, err := os.Stat(path + ".lock"); !os.IsNotExist(err) {
		t.Fatalf("lock file left behind: %v", err)
	}
}

func TestPersistWritesDocumentFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFile)
	store, err := NewStore(path, map[string]Record{
		"a.js": {Fingerprint: "abc", RemoteLocation: "https://cdn/a.js", LastSeen: 42},
	})
	require.NoError(t, err)
	require.NoError(t, store.Persist())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a.js":{"fingerprint":"abc","remoteLocation":"https://cdn/a.js","lastSeen":42}}`, string(raw))

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestLoadMissingFile(t *testing.T) {
	res := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Equal(t, Missing, res.Status)
	assert.NotNil(t, res.Records)
	assert.Empty(t, res.Records)
	assert.Nil(t, res.Warning)
}

func TestLoadCorruptFileDegradesToEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFile)
	require.NoError(t, os.WriteFile(path, []byte(`{"a.js": {"fingerprint": `), 0o644))

	res := Load(path)
	assert.Equal(t, Corrupt, res.Status)
	assert.Empty(t, res.Records)
	require.NotNil(t, res.Warning)
	assert.Equal(t, path, res.Warning.Path)

	var warn *CorruptionWarning
	assert.True(t, errors.As(error(res.Warning), &warn))
}

func TestLoadDropsPartialRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFile)
	doc := `{
  "ok.js": {"fingerprint": "f", "remoteLocation": "https://cdn/ok.js", "lastSeen": 1},
  "nolocation.js": {"fingerprint": "f", "remoteLocation": "", "lastSeen": 1},
  "nofp.js": {"remoteLocation": "https://cdn/nofp.js", "lastSeen": 1}
}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	res := Load(path)
	assert.Equal(t, Loaded, res.Status)
	assert.Equal(t, 2, res.Dropped)
	assert.Len(t, res.Records, 1)
	_, ok := res.Records["ok.js"]
	assert.True(t, ok)
}

func TestLookupUpsertRemove(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), DefaultFile), nil)
	require.NoError(t, err)

	_, ok := store.Lookup("a.js")
	assert.False(t, ok)

	store.Upsert("a.js", Record{Fingerprint: "f1", RemoteLocation: "u1", LastSeen: 1})
	store.Upsert("a.js", Record{Fingerprint: "f2", RemoteLocation: "u2", LastSeen: 2})
	rec, ok := store.Lookup("a.js")
	require.True(t, ok)
	assert.Equal(t, "f2", rec.Fingerprint)
	assert.Equal(t, 1, store.Len())

	store.Remove("a.js")
	_, ok = store.Lookup("a.js")
	assert.False(t, ok)
}

func TestPersistFailsWhenLockHeld(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFile)
	store, err := NewStore(path, map[string]Record{"a.js": {Fingerprint: "f", RemoteLocation: "u", LastSeen: 1}})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path+".lock", []byte("123"), 0o644))

	err = store.Persist()
	if !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Fatalf("cache file should not be written while locked")
	}
}

func TestPersistBreaksStaleLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFile)
	store, err := NewStore(path, map[string]Record{"a.js": {Fingerprint: "f", RemoteLocation: "u", LastSeen: 1}})
	require.NoError(t, err)
	store.SetStaleLockAge(time.Minute)

	lock := path + ".lock"
	require.NoError(t, os.WriteFile(lock, []byte("123"), 0o644))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(lock, old, old))

	require.NoError(t, store.Persist())
	assert.Len(t, Load(path).Records, 1)
}
