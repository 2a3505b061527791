// Package search is the optional full-text index. With no Elasticsearch URL
// configured every operation degrades to a no-op.
package search

import (
	"context"
	"errors"
)

// ErrDisabled is returned by Ping when no backend is configured.
var ErrDisabled = errors.New("search disabled")

// Index is a document index keyed by string ids.
type Index interface {
	Add(ctx context.Context, index, id string, doc map[string]interface{}) error
	Remove(ctx context.Context, index, id string) error
	// Query returns matching ids in relevance order and the total hit count.
	Query(ctx context.Context, index, query string, page, perPage int) ([]string, int64, error)
	Ping(ctx context.Context) error
	Enabled() bool
}

// Disabled is the Index used when search is not configured.
type Disabled struct{}

func (Disabled) Add(context.Context, string, string, map[string]interface{}) error { return nil }
func (Disabled) Remove(context.Context, string, string) error                      { return nil }
func (Disabled) Query(context.Context, string, string, int, int) ([]string, int64, error) {
	return nil, 0, nil
}
func (Disabled) Ping(context.Context) error { return ErrDisabled }
func (Disabled) Enabled() bool              { return false }
