// Package dirty turns scope contents into modification stamps. Each scope
// ID is tracked by the hash of its content; the generation stamp advances
// whenever the hash changes, so inference caches keyed by the stamp go
// stale exactly when the scope's source does.
package dirty

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// DefaultCacheDir is the default directory for persisted stamps.
const DefaultCacheDir = ".gtq/cache"

// DefaultCacheFile is the default filename for persisted stamps.
const DefaultCacheFile = "stamps.json"

// scopeState is the tracked state of one scope.
type scopeState struct {
	ID         string `json:"id"`
	Hash       string `json:"hash"`
	Generation uint64 `json:"generation"`
	LastSeen   int64  `json:"last_seen"` // Unix timestamp
}

// stampData is the on-disk JSON structure.
type stampData struct {
	Version int          `json:"version"`
	Scopes  []scopeState `json:"scopes"`
}

// Tracker maps scope IDs to content hashes and generation stamps. It is
// safe for concurrent use.
type Tracker struct {
	mu        sync.RWMutex
	scopes    map[string]scopeState
	cacheDir  string
	cacheFile string
	now       func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithCacheDir sets the cache directory.
func WithCacheDir(dir string) Option {
	return func(t *Tracker) {
		t.cacheDir = dir
	}
}

// WithCacheFile sets the cache filename.
func WithCacheFile(file string) Option {
	return func(t *Tracker) {
		t.cacheFile = file
	}
}

// New creates a new Tracker with optional configuration.
func New(opts ...Option) *Tracker {
	t := &Tracker{
		scopes:    make(map[string]scopeState),
		cacheDir:  DefaultCacheDir,
		cacheFile: DefaultCacheFile,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func hashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Stamp records the current content of a scope and returns its generation.
// The first content seen for an ID is generation 1; every later change of
// content advances it by one.
func (t *Tracker) Stamp(id string, content []byte) uint64 {
	hash := hashContent(content)

	t.mu.Lock()
	defer t.mu.Unlock()

	state, exists := t.scopes[id]
	if exists && state.Hash == hash {
		return state.Generation
	}
	state = scopeState{
		ID:         id,
		Hash:       hash,
		Generation: state.Generation + 1,
		LastSeen:   t.now().Unix(),
	}
	t.scopes[id] = state
	return state.Generation
}

// StampFile stamps a file under its absolute path and returns the content
// it read along with the generation.
func (t *Tracker) StampFile(path string) ([]byte, uint64, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get absolute path: %w", err)
	}
	content, err := os.ReadFile(absPath)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	return content, t.Stamp(absPath, content), nil
}

// Changed reports whether content differs from what was last stamped for
// the scope. Untracked scopes count as changed.
func (t *Tracker) Changed(id string, content []byte) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	state, exists := t.scopes[id]
	return !exists || state.Hash != hashContent(content)
}

// Generation returns the current generation of a scope.
func (t *Tracker) Generation(id string) (uint64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	state, exists := t.scopes[id]
	return state.Generation, exists
}

// GetHash returns the content hash last stamped for a scope.
func (t *Tracker) GetHash(id string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	state, exists := t.scopes[id]
	return state.Hash, exists
}

// IDs returns the tracked scope IDs in sorted order.
func (t *Tracker) IDs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ids := make([]string, 0, len(t.scopes))
	for id := range t.scopes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of tracked scopes.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.scopes)
}

// Remove stops tracking a scope. Stamping it again starts over at
// generation 1.
func (t *Tracker) Remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.scopes, id)
}

// Clear removes all tracked scopes.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.scopes = make(map[string]scopeState)
}

// cachePath returns the full path to the cache file.
func (t *Tracker) cachePath() string {
	return filepath.Join(t.cacheDir, t.cacheFile)
}

// Save persists the stamps to the cache file.
func (t *Tracker) Save() error {
	if err := os.MkdirAll(t.cacheDir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	f, err := os.Create(t.cachePath())
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	defer f.Close()

	return t.SaveTo(f)
}

// Load restores the stamps from the cache file. A missing file leaves the
// tracker empty.
func (t *Tracker) Load() error {
	f, err := os.Open(t.cachePath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open cache file: %w", err)
	}
	defer f.Close()

	return t.LoadFrom(f)
}

// SaveTo writes the stamps to w, ordered by scope ID.
func (t *Tracker) SaveTo(w io.Writer) error {
	t.mu.RLock()
	data := stampData{Version: 1, Scopes: make([]scopeState, 0, len(t.scopes))}
	for _, state := range t.scopes {
		data.Scopes = append(data.Scopes, state)
	}
	t.mu.RUnlock()

	sort.Slice(data.Scopes, func(i, j int) bool {
		return data.Scopes[i].ID < data.Scopes[j].ID
	})

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		return fmt.Errorf("failed to encode stamps: %w", err)
	}
	return nil
}

// LoadFrom replaces the tracked stamps with the ones read from r.
func (t *Tracker) LoadFrom(r io.Reader) error {
	var data stampData
	if err := json.NewDecoder(r).Decode(&data); err != nil {
		return fmt.Errorf("failed to decode stamps: %w", err)
	}

	scopes := make(map[string]scopeState, len(data.Scopes))
	for _, state := range data.Scopes {
		scopes[state.ID] = state
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.scopes = scopes
	return nil
}
