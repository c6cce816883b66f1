package migration

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"add coupon index", "add_coupon_index"},
		{"Add-Coupon-Index", "add_coupon_index"},
		{"add__coupon__index", "add_coupon_index"},
		{"   spaces   ", "spaces"},
		{"special!@#$chars", "specialchars"},
		{"_leading", "leading"},
		{"trailing_", "trailing"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, slugify(tt.input))
		})
	}
}

func TestCreate_NumbersAfterExisting(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"000001_init.up.sql", "000001_init.down.sql", "000002_seed.up.sql", "README.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	f, err := Create(dir, "add usage index", "Speeds up resets", now)
	require.NoError(t, err)

	assert.Equal(t, uint(3), f.Version)
	assert.Equal(t, filepath.Join(dir, "000003_add_usage_index.up.sql"), f.UpPath)
	assert.Equal(t, filepath.Join(dir, "000003_add_usage_index.down.sql"), f.DownPath)

	up, err := os.ReadFile(f.UpPath)
	require.NoError(t, err)
	assert.Contains(t, string(up), "-- Migration: add usage index")
	assert.Contains(t, string(up), "-- Description: Speeds up resets")
	assert.Contains(t, string(up), "2025-03-01T12:00:00Z")

	down, err := os.ReadFile(f.DownPath)
	require.NoError(t, err)
	assert.Contains(t, string(down), "(Rollback)")
}

func TestCreate_EmptyDirStartsAtOne(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	f, err := Create(dir, "init", "", time.Now())
	require.NoError(t, err)
	assert.Equal(t, uint(1), f.Version)
}

func TestCreate_RejectsUnusableName(t *testing.T) {
	_, err := Create(t.TempDir(), "!!!", "", time.Now())
	assert.Error(t, err)
}

func TestVersions(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"000010_b.up.sql", "000002_a.up.sql", "000002_a.down.sql", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	versions, err := Versions(dir)
	require.NoError(t, err)
	assert.Equal(t, []uint{2, 10}, versions)

	missing, err := Versions(filepath.Join(dir, "absent"))
	require.NoError(t, err)
	assert.Empty(t, missing)
}
