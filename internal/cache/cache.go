// Package cache stores analysis reports on disk, keyed by source content.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/phobologic/codelens/internal/model"
)

// Cache is a directory of JSON entries. A disabled Cache misses on every
// Get and ignores every Set.
type Cache struct {
	dir     string
	ttl     time.Duration
	enabled bool
	now     func() time.Time
}

// Entry is one cached report.
type Entry struct {
	Key       string        `json:"key"`
	Timestamp time.Time     `json:"timestamp"`
	Report    *model.Report `json:"report"`
}

// New creates a cache in dir. A ttlHours of 0 means entries never expire.
func New(dir string, ttlHours int, enabled bool) (*Cache, error) {
	if !enabled {
		return &Cache{}, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}
	return &Cache{
		dir:     dir,
		ttl:     time.Duration(ttlHours) * time.Hour,
		enabled: true,
		now:     time.Now,
	}, nil
}

// Key derives the cache key for a source under the given settings. Any
// change to the source bytes or to a part changes the key.
func Key(source []byte, parts ...string) string {
	d := xxhash.New()
	for _, p := range parts {
		_, _ = d.WriteString(p)
		_, _ = d.Write([]byte{0})
	}
	_, _ = d.Write(source)
	return strconv.FormatUint(d.Sum64(), 16)
}

// Get returns the report stored under key, if present and not expired.
func (c *Cache) Get(key string) (*model.Report, bool) {
	if !c.enabled {
		return nil, false
	}
	path := c.keyPath(key)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil || entry.Key != key || entry.Report == nil {
		return nil, false
	}
	if c.ttl > 0 && c.now().Sub(entry.Timestamp) > c.ttl {
		_ = os.Remove(path)
		return nil, false
	}
	return entry.Report, true
}

// Set stores rep under key. The write goes through a temp file so readers
// never see a partial entry.
func (c *Cache) Set(key string, rep *model.Report) error {
	if !c.enabled {
		return nil
	}
	data, err := json.Marshal(Entry{Key: key, Timestamp: c.now(), Report: rep})
	if err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}
	tmp, err := os.CreateTemp(c.dir, ".entry-*")
	if err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing cache entry: %w", err)
	}
	return os.Rename(tmp.Name(), c.keyPath(key))
}

// Clear removes every entry.
func (c *Cache) Clear() error {
	if !c.enabled {
		return nil
	}
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".json" {
			if err := os.Remove(filepath.Join(c.dir, e.Name())); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Cache) keyPath(key string) string {
	return filepath.Join(c.dir, key+".json")
}
