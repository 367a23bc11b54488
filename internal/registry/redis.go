package registry

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the registry in Redis so several gateway instances can
// share it without a SQL database. Layout: one hash per project plus
// per-owner and global sorted sets scored by last access time.
type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

func projectKey(projectID string) string { return "refine:project:" + projectID }
func ownerKey(ownerID string) string     { return "refine:owner:" + ownerID }

const accessKey = "refine:access"

func (s *RedisStore) Register(ctx context.Context, projectID, ownerID, name string) error {
	owner, err := s.client.HGet(ctx, projectKey(projectID), "owner").Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("register project %s: %w", projectID, err)
	}
	if err == nil && owner != ownerID {
		return ErrOwnershipConflict
	}

	now := s.now()
	score := float64(now.UnixMilli())
	pipe := s.client.TxPipeline()
	fields := map[string]any{
		"owner":          ownerID,
		"name":           name,
		"last_access_at": now.UnixMilli(),
	}
	if err == redis.Nil {
		fields["created_at"] = now.UnixMilli()
	}
	pipe.HSet(ctx, projectKey(projectID), fields)
	pipe.ZAdd(ctx, ownerKey(ownerID), redis.Z{Score: score, Member: projectID})
	pipe.ZAdd(ctx, accessKey, redis.Z{Score: score, Member: projectID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("register project %s: %w", projectID, err)
	}
	return nil
}

func (s *RedisStore) Touch(ctx context.Context, projectID, ownerID string) error {
	owner, err := s.client.HGet(ctx, projectKey(projectID), "owner").Result()
	if err != nil || owner != ownerID {
		if err != nil && err != redis.Nil {
			log.Printf("[warn] operation=touch_project project_id=%s error=%v", projectID, err)
		}
		return nil
	}

	now := s.now()
	score := float64(now.UnixMilli())
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, projectKey(projectID), "last_access_at", now.UnixMilli())
	pipe.ZAdd(ctx, ownerKey(ownerID), redis.Z{Score: score, Member: projectID})
	pipe.ZAdd(ctx, accessKey, redis.Z{Score: score, Member: projectID})
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[warn] operation=touch_project project_id=%s error=%v", projectID, err)
	}
	return nil
}

func (s *RedisStore) BelongsTo(ctx context.Context, projectID, ownerID string) (bool, error) {
	owner, err := s.client.HGet(ctx, projectKey(projectID), "owner").Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("ownership check for project %s: %w", projectID, err)
	}
	return owner == ownerID, nil
}

func (s *RedisStore) ListOwned(ctx context.Context, ownerID string) ([]string, error) {
	ids, err := s.client.ZRevRange(ctx, ownerKey(ownerID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list owned projects: %w", err)
	}
	return ids, nil
}

func (s *RedisStore) Remove(ctx context.Context, projectID, ownerID string) error {
	owner, err := s.client.HGet(ctx, projectKey(projectID), "owner").Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("remove project %s: %w", projectID, err)
	}
	if owner != ownerID {
		return nil
	}
	return s.delete(ctx, projectID, owner)
}

func (s *RedisStore) ListStale(ctx context.Context, maxAge time.Duration) ([]string, error) {
	threshold := s.now().Add(-maxAge).UnixMilli()
	ids, err := s.client.ZRangeByScore(ctx, accessKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(threshold, 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("list stale projects: %w", err)
	}
	return ids, nil
}

func (s *RedisStore) RemoveAny(ctx context.Context, projectID string) error {
	owner, err := s.client.HGet(ctx, projectKey(projectID), "owner").Result()
	if err == redis.Nil {
		// Entry may already be gone; still clear the access index.
		return s.client.ZRem(ctx, accessKey, projectID).Err()
	}
	if err != nil {
		return fmt.Errorf("remove project %s during cleanup: %w", projectID, err)
	}
	return s.delete(ctx, projectID, owner)
}

func (s *RedisStore) delete(ctx context.Context, projectID, ownerID string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, projectKey(projectID))
	pipe.ZRem(ctx, ownerKey(ownerID), projectID)
	pipe.ZRem(ctx, accessKey, projectID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("remove project %s: %w", projectID, err)
	}
	return nil
}
