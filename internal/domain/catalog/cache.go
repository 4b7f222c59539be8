package catalog

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/felixgeelhaar/modkeeper/internal/ports"
)

// Envelope is the persisted catalog snapshot.
type Envelope struct {
	// Timestamp is the build time in epoch seconds.
	Timestamp int64     `json:"timestamp"`
	Packages  []Package `json:"packages"`
}

// Age returns how old the envelope is relative to now.
func (e *Envelope) Age(now time.Time) time.Duration {
	return now.Sub(time.Unix(e.Timestamp, 0))
}

// Fresh reports whether the envelope is non-empty and younger than ttl.
func (e *Envelope) Fresh(now time.Time, ttl time.Duration) bool {
	return e != nil && len(e.Packages) > 0 && e.Age(now) < ttl
}

// Cache stores one Envelope as a JSON file.
type Cache struct {
	path string
	fs   ports.FileSystem
}

// NewCache creates a cache backed by the file at path.
func NewCache(path string, fs ports.FileSystem) *Cache {
	return &Cache{path: path, fs: fs}
}

// Path returns the cache file location.
func (c *Cache) Path() string {
	return c.path
}

// Load reads the stored envelope. It returns ErrCacheMiss when no file
// exists and ErrMalformedPayload when the file cannot be decoded.
func (c *Cache) Load() (*Envelope, error) {
	if !c.fs.Exists(c.path) {
		return nil, ErrCacheMiss
	}
	data, err := c.fs.ReadFile(c.path)
	if err != nil {
		return nil, fmt.Errorf("read catalog cache: %w", err)
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: catalog cache: %v", ErrMalformedPayload, err)
	}
	return &env, nil
}

// Save replaces the stored envelope.
func (c *Cache) Save(env *Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode catalog cache: %w", err)
	}
	if err := c.fs.WriteFile(c.path, data, 0o644); err != nil {
		return fmt.Errorf("write catalog cache: %w", err)
	}
	return nil
}
