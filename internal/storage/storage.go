// Package storage abstracts where finished artifacts live: the local work
// directory by default, or an S3 bucket when workers and the API run on
// different hosts.
package storage

import "context"

type BlobStore interface {
	// Put stores the file at localPath under key.
	Put(ctx context.Context, key, localPath string) error

	// Fetch materializes key at localPath.
	Fetch(ctx context.Context, key, localPath string) error

	// Delete removes key. Deleting a missing blob is a no-op.
	Delete(ctx context.Context, key string) error
}
