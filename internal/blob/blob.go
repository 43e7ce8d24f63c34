// Package blob reads exported review documents from object storage.
package blob

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
)

var ErrNotFound = errors.New("blob not found")

// Store opens stored objects by storage key.
type Store interface {
	Open(ctx context.Context, storageKey string) (io.ReadCloser, error)
}

// AccessURL builds the URL under which a stored document is served to clients.
func AccessURL(baseURL, storageKey string) string {
	parts := strings.Split(strings.TrimLeft(storageKey, "/"), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.TrimRight(baseURL, "/") + "/" + strings.Join(parts, "/")
}
