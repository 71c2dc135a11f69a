// Package cache stores classification reports on disk, keyed by the bytes
// of the analyzed module and of the configuration that produced them.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"lanevar/internal/report"
)

// SchemaVersion is stored with every entry. Bump it when the payload or
// report layout changes; entries of another schema read as misses.
const SchemaVersion uint16 = 1

// Digest identifies one cached analysis.
type Digest [sha256.Size]byte

// String returns the hex form of d.
func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// Key hashes every part with a length prefix so that part boundaries
// cannot collide.
func Key(parts ...[]byte) Digest {
	h := sha256.New()
	var n [8]byte
	for _, p := range parts {
		l := uint64(len(p))
		for i := range n {
			n[i] = byte(l >> (8 * i))
		}
		h.Write(n[:])
		h.Write(p)
	}
	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}

// DiskCache keeps one msgpack file per key. Thread-safe.
type DiskCache struct {
	mu  sync.RWMutex
	dir string
}

type payload struct {
	Schema  uint16
	Kernels []report.Kernel
}

// DefaultDir returns $XDG_CACHE_HOME/<app>, falling back to
// ~/.cache/<app>. Nothing is created.
func DefaultDir(app string) (string, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to locate cache directory: %w", err)
		}
		base = filepath.Join(home, ".cache")
	}
	return filepath.Join(base, app), nil
}

// Open returns the cache under DefaultDir(app).
func Open(app string) (*DiskCache, error) {
	dir, err := DefaultDir(app)
	if err != nil {
		return nil, err
	}
	return OpenDir(dir)
}

// OpenDir returns a cache rooted at dir, creating it if needed.
func OpenDir(dir string) (*DiskCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &DiskCache{dir: dir}, nil
}

// Dir returns the cache root.
func (c *DiskCache) Dir() string {
	if c == nil {
		return ""
	}
	return c.dir
}

func (c *DiskCache) pathFor(key Digest) string {
	return filepath.Join(c.dir, "reports", key.String()+".mp")
}

// Put writes kernels under key, replacing any previous entry atomically.
func (c *DiskCache) Put(key Digest, kernels []report.Kernel) (err error) {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	if err = msgpack.NewEncoder(f).Encode(&payload{Schema: SchemaVersion, Kernels: kernels}); err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, p)
}

// Get reads the entry for key. A missing entry or one written with an
// older schema is a miss, not an error.
func (c *DiskCache) Get(key Digest) ([]report.Kernel, bool, error) {
	if c == nil {
		return nil, false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, err := os.Open(c.pathFor(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer f.Close()

	var out payload
	if err := msgpack.NewDecoder(f).Decode(&out); err != nil {
		return nil, false, fmt.Errorf("failed to decode cache entry %s: %w", key, err)
	}
	if out.Schema != SchemaVersion {
		return nil, false, nil
	}
	return out.Kernels, true, nil
}

// Clean removes every cached entry.
func (c *DiskCache) Clean() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := os.RemoveAll(filepath.Join(c.dir, "reports")); err != nil {
		return fmt.Errorf("failed to clean cache: %w", err)
	}
	return nil
}
