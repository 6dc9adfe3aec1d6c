// internal/common/kvstore/store.go
package kvstore

import (
	"context"
	"strings"
)

// Store is a namespaced key-value store holding strings and string lists.
// Writes are synchronous; Sync flushes anything an implementation buffers.
type Store interface {
	Get(ctx context.Context, namespace, key string) (string, bool, error)
	Set(ctx context.Context, namespace, key, value string) error
	GetList(ctx context.Context, namespace, key string) ([]string, error)
	SetList(ctx context.Context, namespace, key string, values []string) error
	Sync(ctx context.Context) error
}

// Key joins key parts with "|" after trimming them, giving a stable
// composite key.
func Key(parts ...string) string {
	clean := make([]string, len(parts))
	for i, p := range parts {
		clean[i] = strings.TrimSpace(p)
	}
	return strings.Join(clean, "|")
}
