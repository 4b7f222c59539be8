package catalog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/modkeeper/internal/adapters/filesystem"
)

func TestCache_LoadMiss(t *testing.T) {
	t.Parallel()

	cache := NewCache(filepath.Join(t.TempDir(), "catalog.json"), filesystem.NewRealFileSystem())

	_, err := cache.Load()
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestCache_SaveLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "catalog.json")
	cache := NewCache(path, filesystem.NewRealFileSystem())

	env := &Envelope{
		Timestamp: 1_700_000_000,
		Packages: []Package{{
			Name:          "LethalLib",
			FullName:      "Evaisa-LethalLib",
			Categories:    []string{"Libraries"},
			LatestVersion: LatestVersion{VersionNumber: "0.16.1", Dependencies: []string{"BepInEx-BepInExPack-5.4.2100"}},
		}},
	}
	require.NoError(t, cache.Save(env))

	loaded, err := cache.Load()
	require.NoError(t, err)
	assert.Equal(t, env, loaded)
	assert.Equal(t, path, cache.Path())
}

func TestCache_LoadMalformed(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewCache(path, filesystem.NewRealFileSystem()).Load()
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestEnvelope_Fresh(t *testing.T) {
	t.Parallel()

	now := time.Unix(10_000, 0)
	pkgs := []Package{{Name: "a", FullName: "x-a"}}

	tests := []struct {
		name string
		env  *Envelope
		want bool
	}{
		{"nil", nil, false},
		{"young", &Envelope{Timestamp: 9_000, Packages: pkgs}, true},
		{"expired", &Envelope{Timestamp: 5_000, Packages: pkgs}, false},
		{"exactly at ttl", &Envelope{Timestamp: 6_400, Packages: pkgs}, false},
		{"empty", &Envelope{Timestamp: 9_999}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.env.Fresh(now, time.Hour))
		})
	}
}
