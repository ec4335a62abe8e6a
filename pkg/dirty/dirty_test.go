package dirty

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_New(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
	}{
		{
			name: "default options",
			opts: nil,
		},
		{
			name: "custom cache dir",
			opts: []Option{WithCacheDir(".test-cache")},
		},
		{
			name: "custom cache file",
			opts: []Option{WithCacheFile("test-stamps.json")},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tracker := New(tc.opts...)
			assert.NotNil(t, tracker)
			assert.Equal(t, 0, tracker.Len())
		})
	}
}

func TestTracker_Stamp(t *testing.T) {
	tracker := New()

	steps := []struct {
		content  string
		expected uint64
	}{
		{content: "x = 1", expected: 1},
		{content: "x = 1", expected: 1},
		{content: "x = 2", expected: 2},
		{content: "x = 2", expected: 2},
		{content: "x = 1", expected: 3},
	}
	for _, s := range steps {
		assert.Equal(t, s.expected, tracker.Stamp("scope", []byte(s.content)), s.content)
	}

	// scopes are independent
	assert.Equal(t, uint64(1), tracker.Stamp("other", []byte("x = 1")))
	assert.Equal(t, 2, tracker.Len())
	assert.Equal(t, []string{"other", "scope"}, tracker.IDs())
}

func TestTracker_Changed(t *testing.T) {
	tracker := New()

	assert.True(t, tracker.Changed("scope", []byte("a")), "untracked scopes count as changed")
	tracker.Stamp("scope", []byte("a"))
	assert.False(t, tracker.Changed("scope", []byte("a")))
	assert.True(t, tracker.Changed("scope", []byte("b")))

	gen, ok := tracker.Generation("scope")
	require.True(t, ok)
	assert.Equal(t, uint64(1), gen, "Changed does not stamp")
}

func TestTracker_StampFile(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "test.py")
	require.NoError(t, os.WriteFile(testFile, []byte("x = 1\n"), 0644))

	tracker := New()

	content, gen, err := tracker.StampFile(testFile)
	require.NoError(t, err)
	assert.Equal(t, "x = 1\n", string(content))
	assert.Equal(t, uint64(1), gen)

	_, gen, err = tracker.StampFile(testFile)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), gen)

	require.NoError(t, os.WriteFile(testFile, []byte("x = 2\n"), 0644))
	_, gen, err = tracker.StampFile(testFile)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), gen)

	_, _, err = tracker.StampFile(filepath.Join(tmpDir, "missing.py"))
	assert.Error(t, err)
}

func TestTracker_GetHash(t *testing.T) {
	tracker := New()

	hash, exists := tracker.GetHash("scope")
	assert.Empty(t, hash)
	assert.False(t, exists)

	tracker.Stamp("scope", []byte("x = 1"))
	hash, exists = tracker.GetHash("scope")
	assert.Len(t, hash, 64)
	assert.True(t, exists)
}

func TestTracker_RemoveAndClear(t *testing.T) {
	tracker := New()
	tracker.Stamp("a", []byte("1"))
	tracker.Stamp("a", []byte("2"))
	tracker.Stamp("b", []byte("1"))

	tracker.Remove("a")
	_, ok := tracker.Generation("a")
	assert.False(t, ok)
	assert.Equal(t, uint64(1), tracker.Stamp("a", []byte("2")), "removed scopes start over")

	tracker.Clear()
	assert.Equal(t, 0, tracker.Len())
}

func TestTracker_SaveLoad(t *testing.T) {
	tmpDir := t.TempDir()

	tracker := New(WithCacheDir(tmpDir))
	tracker.Stamp("a", []byte("1"))
	tracker.Stamp("a", []byte("2"))
	tracker.Stamp("b", []byte("1"))
	require.NoError(t, tracker.Save())

	tracker2 := New(WithCacheDir(tmpDir))
	require.NoError(t, tracker2.Load())

	assert.Equal(t, 2, tracker2.Len())
	gen, ok := tracker2.Generation("a")
	require.True(t, ok)
	assert.Equal(t, uint64(2), gen)
	assert.Equal(t, uint64(2), tracker2.Stamp("a", []byte("2")), "loaded hashes are compared")
	assert.Equal(t, uint64(3), tracker2.Stamp("a", []byte("3")))
}

func TestTracker_LoadMissing(t *testing.T) {
	tracker := New(WithCacheDir(t.TempDir()))
	require.NoError(t, tracker.Load())
	assert.Equal(t, 0, tracker.Len())
}

func TestTracker_SaveToLoadFrom(t *testing.T) {
	tracker := New()
	tracker.Stamp("scope", []byte("x = 1"))

	var buf bytes.Buffer
	require.NoError(t, tracker.SaveTo(&buf))
	assert.Contains(t, buf.String(), `"generation": 1`)

	tracker2 := New()
	require.NoError(t, tracker2.LoadFrom(&buf))
	assert.False(t, tracker2.Changed("scope", []byte("x = 1")))

	assert.Error(t, tracker2.LoadFrom(bytes.NewBufferString("{")))
}

func TestTracker_Concurrent(t *testing.T) {
	tracker := New()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tracker.Stamp("scope", []byte("same"))
			}
		}()
	}
	wg.Wait()

	gen, ok := tracker.Generation("scope")
	require.True(t, ok)
	assert.Equal(t, uint64(1), gen)
}
