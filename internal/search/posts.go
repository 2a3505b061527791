package search

import (
	"context"
	"fmt"
	"strconv"

	"github.com/pysugar/microblog/internal/config"
	"github.com/pysugar/microblog/internal/db/models"
	"github.com/pysugar/microblog/internal/store"
	"go.uber.org/zap"
)

const postsIndexName = "posts"

// New picks the Index for cfg.
func New(cfg *config.Config) (Index, error) {
	if !cfg.SearchEnabled() {
		return Disabled{}, nil
	}
	return NewElastic(cfg.ElasticsearchURL)
}

// Posts keeps the post index in step with the database and answers searches
// by mapping index hits back onto stored rows.
type Posts struct {
	index Index
	store *store.Store
	name  string
	log   *zap.SugaredLogger
}

func NewPosts(index Index, st *store.Store, prefix string, log *zap.SugaredLogger) *Posts {
	return &Posts{
		index: index,
		store: st,
		name:  prefix + postsIndexName,
		log:   log,
	}
}

// IndexName is the physical index posts are written to.
func (p *Posts) IndexName() string {
	return p.name
}

func (p *Posts) Enabled() bool {
	return p.index.Enabled()
}

// Ping checks the backend is reachable.
func (p *Posts) Ping(ctx context.Context) error {
	return p.index.Ping(ctx)
}

// IndexPost adds or replaces the post's document. Failures are logged and
// swallowed so a search outage never blocks posting.
func (p *Posts) IndexPost(ctx context.Context, post *models.Post) {
	if err := p.index.Add(ctx, p.name, post.DocumentID(), post.SearchDocument()); err != nil {
		p.log.Warnw("failed to index post", "post_id", post.ID, "error", err)
	}
}

func (p *Posts) RemovePost(ctx context.Context, post *models.Post) {
	if err := p.index.Remove(ctx, p.name, post.DocumentID()); err != nil {
		p.log.Warnw("failed to remove post from index", "post_id", post.ID, "error", err)
	}
}

// Results is one page of search hits.
type Results struct {
	Query   string
	Posts   []models.Post
	Total   int64
	Page    int
	HasNext bool
	HasPrev bool
}

func (r Results) NextNumber() int { return r.Page + 1 }
func (r Results) PrevNumber() int { return r.Page - 1 }

func (p *Posts) SearchPosts(ctx context.Context, query string, page, perPage int) (Results, error) {
	if page < 1 {
		page = 1
	}
	res := Results{Query: query, Page: page, HasPrev: page > 1}

	hits, total, err := p.index.Query(ctx, p.name, query, page, perPage)
	if err != nil {
		return res, err
	}
	ids := make([]uint, 0, len(hits))
	for _, hit := range hits {
		id, err := strconv.ParseUint(hit, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, uint(id))
	}

	posts, err := p.store.PostsByIDs(ctx, ids)
	if err != nil {
		return res, err
	}
	res.Posts = posts
	res.Total = total
	res.HasNext = int64(page*perPage) < total
	return res, nil
}

// Reindex writes every stored post to the index and returns the count.
func (p *Posts) Reindex(ctx context.Context) (int, error) {
	if !p.index.Enabled() {
		return 0, ErrDisabled
	}
	n := 0
	err := p.store.EachPost(ctx, 200, func(post models.Post) error {
		if err := p.index.Add(ctx, p.name, post.DocumentID(), post.SearchDocument()); err != nil {
			return fmt.Errorf("index post %d: %w", post.ID, err)
		}
		n++
		return nil
	})
	return n, err
}
