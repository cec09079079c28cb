package storage

import (
	"context"
	"fmt"

	"github.com/hyperjump/embedapi/internal/cache"
)

// WarmCache loads the newest archived embeddings into c, at most its
// capacity, preserving creation order. Rows whose key does not match their
// text and backend are skipped.
// It returns the number of entries loaded.
func WarmCache(ctx context.Context, c *cache.Cache, a *SQLiteArchive) (int, error) {
	recent, err := a.Recent(ctx, c.Capacity())
	if err != nil {
		return 0, fmt.Errorf("failed to read archive: %w", err)
	}
	loaded := 0
	for _, e := range recent {
		key, err := cache.ParseKey(e.Key)
		if err != nil || key != cache.DeriveKey(e.Text, e.Backend) {
			continue
		}
		c.Put(key, e.Vector)
		loaded++
	}
	return loaded, nil
}
