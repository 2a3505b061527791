package store

import (
	"context"

	"github.com/pysugar/microblog/internal/db/models"
)

const followersTable = "followers"

func (s *Store) Follow(ctx context.Context, follower, followed *models.User) error {
	if follower.ID == followed.ID {
		return ErrSelfFollow
	}
	following, err := s.IsFollowing(ctx, follower.ID, followed.ID)
	if err != nil || following {
		return err
	}
	return s.db.WithContext(ctx).Model(follower).Association("Followed").Append(followed)
}

func (s *Store) Unfollow(ctx context.Context, follower, followed *models.User) error {
	return s.db.WithContext(ctx).Model(follower).Association("Followed").Delete(followed)
}

func (s *Store) IsFollowing(ctx context.Context, followerID, followedID uint) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Table(followersTable).
		Where("follower_id = ? AND followed_id = ?", followerID, followedID).
		Count(&count).Error
	return count > 0, err
}

// FollowerCount is the number of users following id.
func (s *Store) FollowerCount(ctx context.Context, id uint) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Table(followersTable).Where("followed_id = ?", id).Count(&count).Error
	return count, err
}

// FollowingCount is the number of users id follows.
func (s *Store) FollowingCount(ctx context.Context, id uint) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Table(followersTable).Where("follower_id = ?", id).Count(&count).Error
	return count, err
}
