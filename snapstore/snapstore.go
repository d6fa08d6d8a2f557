package snapstore

import "context"

// Store persists snapshot documents. Write is idempotent: a document whose
// content is byte-identical to the stored one is not rewritten, and a
// reader never observes a partially written document.
type Store interface {
	// Write stores data under name, returning false if it was already up
	// to date.
	Write(ctx context.Context, name string, data []byte) (bool, error)
	Read(ctx context.Context, name string) ([]byte, error)
	// URL describes where name is stored.
	URL(name string) string
}
