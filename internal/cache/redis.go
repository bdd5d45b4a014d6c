package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"swing-service/internal/ingest"
	"swing-service/internal/models"
)

const (
	recentSwingsKey = "swings:recent"
	recentLimit     = 1000

	swingTTL   = time.Hour
	sessionTTL = 24 * time.Hour
	rawTTL     = time.Hour
)

// RedisClient keeps the hot view of the service in Redis: a hash per session,
// recently detected swings, and markers that make raw batch delivery
// idempotent. It implements ingest.Store.
type RedisClient struct {
	client *redis.Client
}

var _ ingest.Store = (*RedisClient)(nil)

func NewRedisClient(addr string) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     "",
		DB:           0,
		PoolSize:     100,
		MinIdleConns: 10,
		MaxRetries:   3,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return &RedisClient{client: client}, nil
}

func sessionKey(id string) string {
	return "session:" + id
}

func (r *RedisClient) StartSession(ctx context.Context, rec models.SessionRecord) error {
	key := sessionKey(rec.SessionID)

	// HSETNX keeps the first start; later starts only refresh the TTL
	pipe := r.client.TxPipeline()
	pipe.HSetNX(ctx, key, "device", rec.Device)
	pipe.HSetNX(ctx, key, "start_time", rec.StartTime.Unix())
	pipe.HSetNX(ctx, key, "status", string(models.StatusActive))
	pipe.Expire(ctx, key, sessionTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store session in Redis: %w", err)
	}
	return nil
}

// StoreRawBatch only records that the batch was seen. The samples themselves
// live in SQLite.
func (r *RedisClient) StoreRawBatch(ctx context.Context, sessionID string, samples []models.Sample) error {
	if len(samples) == 0 {
		return nil
	}
	start, end := ingest.BatchRange(samples)
	marker := fmt.Sprintf("raw:%s:%s:%s", sessionID,
		strconv.FormatFloat(start, 'f', -1, 64), strconv.FormatFloat(end, 'f', -1, 64))

	fresh, err := r.client.SetNX(ctx, marker, len(samples), rawTTL).Result()
	if err != nil {
		return fmt.Errorf("failed to mark raw batch: %w", err)
	}
	if !fresh {
		return nil
	}
	if err := r.client.HIncrBy(ctx, sessionKey(sessionID), "raw_samples", int64(len(samples))).Err(); err != nil {
		return fmt.Errorf("failed to count raw samples: %w", err)
	}
	return nil
}

func (r *RedisClient) StoreSwing(ctx context.Context, rec models.SwingRecord) error {
	key := fmt.Sprintf("swing:%s:%s", rec.SessionID, rec.ShotID)

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal swing: %w", err)
	}

	// a swing stored twice keeps one entry in the recent list
	fresh, err := r.client.SetNX(ctx, key, data, swingTTL).Result()
	if err != nil {
		return fmt.Errorf("failed to store swing in Redis: %w", err)
	}
	if !fresh {
		return nil
	}

	err = r.client.LPush(ctx, recentSwingsKey, key).Err()
	if err != nil {
		return fmt.Errorf("failed to update recent swings list: %w", err)
	}

	r.client.LTrim(ctx, recentSwingsKey, 0, recentLimit-1)

	return nil
}

func (r *RedisClient) UpsertSessionSummary(ctx context.Context, sessionID string, endTime time.Time, shotCount int) error {
	key := sessionKey(sessionID)

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key,
		"status", string(models.StatusEnded),
		"end_time", endTime.Unix(),
		"shot_count", shotCount,
	)
	pipe.Expire(ctx, key, sessionTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to update session in Redis: %w", err)
	}
	return nil
}

// Session returns the cached hash of a session, or nil when it is not cached.
func (r *RedisClient) Session(ctx context.Context, id string) (map[string]string, error) {
	fields, err := r.client.HGetAll(ctx, sessionKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read session from Redis: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return fields, nil
}

// GetRecentSwings returns up to count swings, newest first. Entries whose
// payload has expired are skipped.
func (r *RedisClient) GetRecentSwings(ctx context.Context, count int64) ([]models.SwingRecord, error) {
	keys, err := r.client.LRange(ctx, recentSwingsKey, 0, count-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get recent swing keys: %w", err)
	}

	swings := []models.SwingRecord{}
	for _, key := range keys {
		data, err := r.client.Get(ctx, key).Result()
		if err != nil {
			continue
		}

		var rec models.SwingRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			continue
		}

		swings = append(swings, rec)
	}

	return swings, nil
}

func (r *RedisClient) Close() error {
	return r.client.Close()
}
