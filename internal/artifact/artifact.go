// Package artifact stores job input and output files. Stores are write-once: a key is written at
// most one time and Put refuses to replace it.
package artifact

import (
	"errors"
	"path"
	"strings"
)

var (
	// ErrExists is returned by Put when the key was already written.
	ErrExists = errors.New("artifact already exists")
	// ErrNotFound is returned by Open when the artifact does not exist.
	ErrNotFound = errors.New("artifact not found")
	// ErrInvalidKey is returned for empty keys or keys escaping the store root.
	ErrInvalidKey = errors.New("invalid artifact key")
	// ErrForeignURI is returned by Open for URIs that belong to another store.
	ErrForeignURI = errors.New("artifact uri not served by this store")
)

// cleanKey normalizes key to a slash separated relative path.
func cleanKey(key string) (string, error) {
	k := strings.TrimSpace(strings.ReplaceAll(key, "\\", "/"))
	if k == "" || strings.HasPrefix(k, "/") {
		return "", ErrInvalidKey
	}
	for seg := range strings.SplitSeq(k, "/") {
		if seg == ".." {
			return "", ErrInvalidKey
		}
	}
	k = path.Clean(k)
	if k == "." {
		return "", ErrInvalidKey
	}
	return k, nil
}
