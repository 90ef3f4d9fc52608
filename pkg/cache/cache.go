// Package cache is a content-addressed artifact store backed by a gocloud
// blob bucket. Entries are keyed by their hex digest so a verified jar
// downloaded for one profile can be reused by every other profile.
package cache

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	"gocloud.dev/gcerrors"

	"github.com/go-modpackinstaller/pkg/utils"
)

// Cache stores verified artifacts by checksum
type Cache struct {
	bucket *blob.Bucket
	logger *utils.Logger
}

// Open opens a cache from a bucket URL such as file:///var/cache/modpacks or mem://
func Open(ctx context.Context, url string, logger *utils.Logger) (*Cache, error) {
	bucket, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact cache %s: %w", url, err)
	}
	return New(bucket, logger), nil
}

// New wraps an already opened bucket
func New(bucket *blob.Bucket, logger *utils.Logger) *Cache {
	return &Cache{bucket: bucket, logger: logger}
}

// key shards entries by algorithm and digest prefix
func key(checksum string) string {
	sum := strings.ToLower(strings.TrimSpace(checksum))
	algo := "unknown"
	switch len(sum) {
	case 32:
		algo = "md5"
	case 40:
		algo = "sha1"
	case 64:
		algo = "sha256"
	case 128:
		algo = "sha512"
	}
	if len(sum) < 2 {
		return algo + "/" + sum
	}
	return algo + "/" + sum[:2] + "/" + sum
}

// Get copies the artifact with checksum into w. found is false on a miss.
func (c *Cache) Get(ctx context.Context, checksum string, w io.Writer) (n int64, found bool, err error) {
	if checksum == "" {
		return 0, false, nil
	}
	r, err := c.bucket.NewReader(ctx, key(checksum), nil)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("cache read %s: %w", checksum, err)
	}
	defer r.Close()

	n, err = io.Copy(w, r)
	if err != nil {
		return n, true, fmt.Errorf("cache read %s: %w", checksum, err)
	}
	c.logger.Debug("Cache hit for %s (%d bytes)", checksum, n)
	return n, true, nil
}

// Has reports whether an artifact is stored under checksum
func (c *Cache) Has(ctx context.Context, checksum string) bool {
	if checksum == "" {
		return false
	}
	ok, err := c.bucket.Exists(ctx, key(checksum))
	return err == nil && ok
}

// Put stores the file at path under checksum. The caller has verified it.
func (c *Cache) Put(ctx context.Context, checksum, path string) error {
	if checksum == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := c.bucket.Upload(ctx, key(checksum), f, nil); err != nil {
		return fmt.Errorf("cache write %s: %w", checksum, err)
	}
	c.logger.Verbose("Cached %s as %s", path, checksum)
	return nil
}

// Remove deletes an entry; a missing entry is not an error.
func (c *Cache) Remove(ctx context.Context, checksum string) error {
	err := c.bucket.Delete(ctx, key(checksum))
	if err != nil && gcerrors.Code(err) != gcerrors.NotFound {
		return err
	}
	return nil
}

// Close releases the bucket
func (c *Cache) Close() error {
	return c.bucket.Close()
}
