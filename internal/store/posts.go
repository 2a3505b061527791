package store

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pysugar/microblog/internal/db/models"
	"gorm.io/gorm"
)

// MaxPostLength is counted in runes.
const MaxPostLength = 140

func (s *Store) CreatePost(ctx context.Context, userID uint, body string) (*models.Post, error) {
	body = strings.TrimSpace(body)
	if n := utf8.RuneCountInString(body); n == 0 || n > MaxPostLength {
		return nil, ErrInvalidPost
	}

	post := &models.Post{Body: body, UserID: userID}
	if err := s.db.WithContext(ctx).Create(post).Error; err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	if err := s.db.WithContext(ctx).Preload("Author").First(post, post.ID).Error; err != nil {
		return nil, fmt.Errorf("reload post: %w", err)
	}
	return post, nil
}

// Feed lists the user's own posts and those of everyone they follow.
func (s *Store) Feed(ctx context.Context, userID uint, page, perPage int) (Page[models.Post], error) {
	followed := s.db.Table(followersTable).Select("followed_id").Where("follower_id = ?", userID)
	q := s.db.WithContext(ctx).Where("user_id = ? OR user_id IN (?)", userID, followed)
	return s.paginate(q, page, perPage)
}

// Explore lists every post.
func (s *Store) Explore(ctx context.Context, page, perPage int) (Page[models.Post], error) {
	return s.paginate(s.db.WithContext(ctx), page, perPage)
}

func (s *Store) PostsByUser(ctx context.Context, userID uint, page, perPage int) (Page[models.Post], error) {
	return s.paginate(s.db.WithContext(ctx).Where("user_id = ?", userID), page, perPage)
}

func (s *Store) paginate(q *gorm.DB, page, perPage int) (Page[models.Post], error) {
	page = clampPage(page)
	var posts []models.Post
	err := q.Preload("Author").
		Order("created_at DESC").Order("id DESC").
		Limit(perPage + 1).Offset((page - 1) * perPage).
		Find(&posts).Error
	if err != nil {
		return Page[models.Post]{}, fmt.Errorf("list posts: %w", err)
	}

	result := Page[models.Post]{Number: page, HasPrev: page > 1}
	if len(posts) > perPage {
		result.HasNext = true
		posts = posts[:perPage]
	}
	result.Items = posts
	return result, nil
}

// PostsByIDs loads posts and returns them in the order of ids. Unknown ids
// are skipped, which covers index entries for deleted rows.
func (s *Store) PostsByIDs(ctx context.Context, ids []uint) ([]models.Post, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var posts []models.Post
	if err := s.db.WithContext(ctx).Preload("Author").Where("id IN ?", ids).Find(&posts).Error; err != nil {
		return nil, fmt.Errorf("load posts: %w", err)
	}

	byID := make(map[uint]models.Post, len(posts))
	for _, p := range posts {
		byID[p.ID] = p
	}
	ordered := make([]models.Post, 0, len(posts))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			ordered = append(ordered, p)
		}
	}
	return ordered, nil
}

// EachPost walks every post in id order, batchSize rows at a time.
func (s *Store) EachPost(ctx context.Context, batchSize int, fn func(models.Post) error) error {
	var batch []models.Post
	var fnErr error
	res := s.db.WithContext(ctx).FindInBatches(&batch, batchSize, func(tx *gorm.DB, _ int) error {
		for _, p := range batch {
			if err := fn(p); err != nil {
				fnErr = err
				return err
			}
		}
		return nil
	})
	if fnErr != nil {
		return fnErr
	}
	return res.Error
}
