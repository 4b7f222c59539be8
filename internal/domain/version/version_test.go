package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsNewer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		current  string
		latest   string
		expected bool
	}{
		{"patch bump", "1.0.0", "1.0.1", true},
		{"older", "1.0.1", "1.0.0", false},
		{"equal", "1.2.3", "1.2.3", false},
		{"suffix stripped", "v2.0-beta", "2.0.0", false},
		{"v prefix", "v1.2", "1.3", true},
		{"upper V prefix", "V1.9", "v1.10", true},
		{"shorter padded", "1.2", "1.2.0.1", true},
		{"four segments", "1.0.0.9", "1.0.0.10", true},
		{"leading zeros", "01.02", "1.3", true},
		{"patch suffix ignored", "1.4.2", "1.4.2-patch1", false},
		{"build metadata ignored", "1.0.0", "1.0.0+build7", false},
		{"non-numeric segment is zero", "1.x", "1.1", true},
		{"free text is not newer than a release", "1.0.0", "latest", false},
		{"release is newer than free text", "latest", "1.0.0", true},
		{"free text pair is equal", "abc", "abd", false},
		{"free text pair reversed", "abd", "abc", false},
		{"free text against zero", "0.0.0", "release", false},
		{"empty current", "", "1.0.0", true},
		{"both empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, IsNewer(tt.current, tt.latest))
		})
	}
}

func TestIsNewer_Irreflexive(t *testing.T) {
	t.Parallel()

	for _, v := range []string{"1.0.0", "v2", "2.0-rc1", "release", "", "1..2", "0.0.0.0.1"} {
		assert.False(t, IsNewer(v, v), "IsNewer(%q, %q)", v, v)
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"v1.2.3":       "1.2.3",
		" V2.0 ":       "2.0",
		"1.4.2-patch1": "1.4.2",
		"3.0+meta":     "3.0",
		"release":      "release",
	}
	for in, want := range tests {
		assert.Equal(t, want, Normalize(in), in)
	}
}

func TestEqual(t *testing.T) {
	t.Parallel()

	assert.True(t, Equal("v1.0", "1.0.0"))
	assert.True(t, Equal("2.0.0-beta", "2.0.0"))
	assert.False(t, Equal("1.9.0", "2.0.0"))
	assert.True(t, Equal("latest", "stable"))
	assert.False(t, Equal("latest", "0.1"))
}
