// Package storage provides scratch space for media acquisition and
// optional publication of finished slide decks to S3-compatible object
// storage.
package storage

import (
	"context"
)

// Publisher pushes a finished slide directory to durable storage.
type Publisher interface {
	// PublishDir uploads every regular file in dir under the given source
	// id and returns the uploaded object URLs.
	PublishDir(ctx context.Context, sourceID, dir string) ([]string, error)
}

// NopPublisher discards publish requests. Used when no object storage is
// configured.
type NopPublisher struct{}

var _ Publisher = NopPublisher{}

// PublishDir does nothing and reports no uploads.
func (NopPublisher) PublishDir(context.Context, string, string) ([]string, error) {
	return nil, nil
}
