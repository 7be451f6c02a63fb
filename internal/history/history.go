// Package history keeps the user-scoped, non-authoritative state of the
// import flow: the recent-uploads list, the last import pointer, progress
// of running imports, and previews awaiting confirmation.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/loadboard/internal/domain"
	"github.com/redis/go-redis/v9"
)

var (
	ErrPreviewNotFound = errors.New("history: preview not found or expired")
)

// MaxPostedLoads caps the recent-uploads list per user.
const MaxPostedLoads = 500

const progressTTL = 24 * time.Hour

// maxWatchRetries bounds optimistic transactions that keep losing to writers.
const maxWatchRetries = 10

var clearIfEqual = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// RedisStore implements the history and preview cache on Redis.
type RedisStore struct {
	client     *redis.Client
	previewTTL time.Duration
}

// NewRedisStore creates a store. previewTTL bounds how long an unconfirmed preview survives.
func NewRedisStore(client *redis.Client, previewTTL time.Duration) *RedisStore {
	if previewTTL <= 0 {
		previewTTL = 24 * time.Hour
	}
	return &RedisStore{client: client, previewTTL: previewTTL}
}

func postedKey(userID string) string     { return fmt.Sprintf("loadboard:user:%s:posted", userID) }
func lastImportKey(userID string) string { return fmt.Sprintf("loadboard:user:%s:last_import", userID) }
func progressKey(sessionID string) string {
	return fmt.Sprintf("loadboard:import:progress:%s", sessionID)
}
func previewKey(previewID string) string { return fmt.Sprintf("loadboard:preview:%s", previewID) }

// AppendPosted pushes loads to the front of the user's list, newest first.
func (s *RedisStore) AppendPosted(ctx context.Context, userID string, loads []domain.PostedLoad) error {
	if len(loads) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(loads))
	for _, l := range loads {
		data, err := json.Marshal(l)
		if err != nil {
			return fmt.Errorf("encode posted load %s: %w", l.ID, err)
		}
		values = append(values, data)
	}
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, postedKey(userID), values...)
	pipe.LTrim(ctx, postedKey(userID), 0, MaxPostedLoads-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append posted loads: %w", err)
	}
	return nil
}

// RecentUploads returns up to limit entries, newest first.
func (s *RedisStore) RecentUploads(ctx context.Context, userID string, limit int) ([]domain.PostedLoad, error) {
	if limit <= 0 || limit > MaxPostedLoads {
		limit = MaxPostedLoads
	}
	raw, err := s.client.LRange(ctx, postedKey(userID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read posted loads: %w", err)
	}
	out := make([]domain.PostedLoad, 0, len(raw))
	for _, r := range raw {
		var l domain.PostedLoad
		if err := json.Unmarshal([]byte(r), &l); err != nil {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

// RemovePosted drops every entry belonging to an import session. The list is
// watched, so a concurrent append makes the removal start over instead of
// being overwritten.
func (s *RedisStore) RemovePosted(ctx context.Context, userID, sessionID string) error {
	key := postedKey(userID)
	remove := func(tx *redis.Tx) error {
		raw, err := tx.LRange(ctx, key, 0, -1).Result()
		if err != nil {
			return err
		}
		drop := make(map[string]bool)
		for _, r := range raw {
			var l domain.PostedLoad
			if json.Unmarshal([]byte(r), &l) == nil && l.BulkImportID == sessionID {
				drop[r] = true
			}
		}
		if len(drop) == 0 {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for r := range drop {
				pipe.LRem(ctx, key, 0, r)
			}
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxWatchRetries; attempt++ {
		err := s.client.Watch(ctx, remove, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("remove posted loads: %w", err)
		}
		return nil
	}
	return fmt.Errorf("remove posted loads: %w", redis.TxFailedErr)
}

func (s *RedisStore) SetLastImport(ctx context.Context, userID, sessionID string) error {
	return s.client.Set(ctx, lastImportKey(userID), sessionID, 0).Err()
}

// LastImport returns "" when the user has no import on record.
func (s *RedisStore) LastImport(ctx context.Context, userID string) (string, error) {
	id, err := s.client.Get(ctx, lastImportKey(userID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	return id, err
}

// ClearLastImport removes the pointer only if it still names sessionID.
func (s *RedisStore) ClearLastImport(ctx context.Context, userID, sessionID string) error {
	return clearIfEqual.Run(ctx, s.client, []string{lastImportKey(userID)}, sessionID).Err()
}

func (s *RedisStore) SetProgress(ctx context.Context, sessionID string, p domain.Progress) error {
	data, _ := json.Marshal(p)
	return s.client.Set(ctx, progressKey(sessionID), data, progressTTL).Err()
}

func (s *RedisStore) Progress(ctx context.Context, sessionID string) (domain.Progress, error) {
	var p domain.Progress
	data, err := s.client.Get(ctx, progressKey(sessionID)).Bytes()
	if err == redis.Nil {
		return p, nil
	}
	if err != nil {
		return p, err
	}
	err = json.Unmarshal(data, &p)
	return p, err
}

// SavePreview stores p, refreshing its TTL.
func (s *RedisStore) SavePreview(ctx context.Context, p *domain.Preview) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode preview %s: %w", p.ID, err)
	}
	return s.client.Set(ctx, previewKey(p.ID), data, s.previewTTL).Err()
}

func (s *RedisStore) LoadPreview(ctx context.Context, previewID string) (*domain.Preview, error) {
	data, err := s.client.Get(ctx, previewKey(previewID)).Bytes()
	if err == redis.Nil {
		return nil, ErrPreviewNotFound
	}
	if err != nil {
		return nil, err
	}
	var p domain.Preview
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode preview %s: %w", previewID, err)
	}
	return &p, nil
}
