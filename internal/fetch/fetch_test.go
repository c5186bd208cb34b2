package fetch

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitS3Location(t *testing.T) {
	tests := []struct {
		location string
		bucket   string
		key      string
		ok       bool
	}{
		{"s3://bucket/db/customers.db", "bucket", "db/customers.db", true},
		{"s3://bucket/file.db", "bucket", "file.db", true},
		{"/local/path/file.db", "", "", false},
		{"relative/file.db", "", "", false},
		{"s3://bucket", "", "", false},
		{"s3:///key-without-bucket", "", "", false},
		{"s3://bucket/", "", "", false},
	}

	for _, tt := range tests {
		bucket, key, ok := SplitS3Location(tt.location)
		assert.Equal(t, tt.ok, ok, "location %q", tt.location)
		assert.Equal(t, tt.bucket, bucket, "location %q", tt.location)
		assert.Equal(t, tt.key, key, "location %q", tt.location)
	}
}

func TestResolve_LocalPathsPassThrough(t *testing.T) {
	f := New(Config{CacheDir: t.TempDir()}, nil)

	locations := []string{"/data/a.db", "relative/b.db"}
	resolved, err := f.Resolve(context.Background(), locations)
	require.NoError(t, err)
	assert.Equal(t, locations, resolved)
}

func TestResolve_CachedObjectSkipsDownload(t *testing.T) {
	cacheDir := t.TempDir()
	f := New(Config{CacheDir: cacheDir}, nil)

	// pre-populate the cache; no S3 client should ever be built
	cached := f.cachePath("bucket", "db/customers.db")
	require.NoError(t, os.MkdirAll(filepath.Dir(cached), 0o755))
	require.NoError(t, os.WriteFile(cached, []byte("duckdb"), 0o644))

	resolved, err := f.Resolve(context.Background(), []string{"s3://bucket/db/customers.db"})
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.Equal(t, cached, resolved[0])
}

func TestCachePath_IsStable(t *testing.T) {
	f := New(Config{CacheDir: "/cache"}, nil)
	a := f.cachePath("bucket", "db/customers.db")
	b := f.cachePath("bucket", "db/customers.db")
	assert.Equal(t, a, b)
	assert.Equal(t, filepath.Join("/cache", "bucket", "db_customers.db"), a)
}
