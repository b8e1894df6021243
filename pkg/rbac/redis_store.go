package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// RedisStore keeps assignments in Redis so several engine instances share one view.
//
// Layout:
//
//	<prefix>:assignments:<userID>  hash   roleID -> JSON Assignment
//	<prefix>:expiry                zset   [userID, roleID] scored by expiry (unix ms)
type RedisStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisClient parses a redis:// URL and verifies the server is reachable
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// NewRedisStore creates a Redis-backed assignment store.
// An empty prefix defaults to "lmsauthz".
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "lmsauthz"
	}
	return &RedisStore{client: client, prefix: prefix, now: time.Now}
}

func (s *RedisStore) userKey(userID string) string {
	return fmt.Sprintf("%s:assignments:%s", s.prefix, userID)
}

func (s *RedisStore) expiryKey() string {
	return s.prefix + ":expiry"
}

func expiryMember(userID, roleID string) string {
	b, _ := json.Marshal([2]string{userID, roleID})
	return string(b)
}

// Assign implements AssignmentStore
func (s *RedisStore) Assign(ctx context.Context, a Assignment) (bool, error) {
	ctx, span := storeTracer.Start(ctx, "RedisStore.Assign", trace.WithAttributes(
		attribute.String("user.id", a.UserID),
		attribute.String("role.id", a.RoleID),
	))
	defer span.End()

	if a.AssignedAt.IsZero() {
		a.AssignedAt = s.now().UTC()
	}
	data, err := json.Marshal(a)
	if err != nil {
		return false, fmt.Errorf("failed to marshal assignment: %w", err)
	}

	created, err := s.client.HSetNX(ctx, s.userKey(a.UserID), a.RoleID, data).Result()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "hsetnx failed")
		return false, fmt.Errorf("redis hsetnx failed: %w", err)
	}
	if !created || a.ExpiresAt == nil {
		return created, nil
	}

	// An unindexed expiring entry would never be purged, so the grant is undone
	if err := s.client.ZAdd(ctx, s.expiryKey(), &redis.Z{
		Score:  float64(a.ExpiresAt.UnixMilli()),
		Member: expiryMember(a.UserID, a.RoleID),
	}).Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "zadd failed")
		if rbErr := s.deleteIfUnchanged(ctx, s.userKey(a.UserID), a.RoleID, string(data)); rbErr != nil {
			return false, fmt.Errorf("redis zadd failed: %w (rollback: %v)", err, rbErr)
		}
		return false, fmt.Errorf("redis zadd failed: %w", err)
	}
	return true, nil
}

// deleteIfUnchanged removes field from key only while it still holds raw
func (s *RedisStore) deleteIfUnchanged(ctx context.Context, key, field, raw string) error {
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, key, field).Result()
		if errors.Is(err, redis.Nil) || (err == nil && current != raw) {
			return nil
		}
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HDel(ctx, key, field)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return nil
	}
	return err
}

// Revoke implements AssignmentStore
func (s *RedisStore) Revoke(ctx context.Context, userID, roleID string) error {
	ctx, span := storeTracer.Start(ctx, "RedisStore.Revoke", trace.WithAttributes(
		attribute.String("user.id", userID),
		attribute.String("role.id", roleID),
	))
	defer span.End()

	pipe := s.client.TxPipeline()
	del := pipe.HDel(ctx, s.userKey(userID), roleID)
	pipe.ZRem(ctx, s.expiryKey(), expiryMember(userID, roleID))
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "revoke pipeline failed")
		return fmt.Errorf("redis revoke failed: %w", err)
	}

	if del.Val() == 0 {
		return ErrNotAssigned
	}
	return nil
}

// Assignments implements AssignmentStore
func (s *RedisStore) Assignments(ctx context.Context, userID string) ([]Assignment, error) {
	ctx, span := storeTracer.Start(ctx, "RedisStore.Assignments", trace.WithAttributes(
		attribute.String("user.id", userID),
	))
	defer span.End()

	fields, err := s.client.HGetAll(ctx, s.userKey(userID)).Result()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "hgetall failed")
		return nil, fmt.Errorf("redis hgetall failed: %w", err)
	}

	out := make([]Assignment, 0, len(fields))
	for roleID, raw := range fields {
		var a Assignment
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "corrupt assignment")
			return nil, fmt.Errorf("failed to unmarshal assignment %s/%s: %w", userID, roleID, err)
		}
		out = append(out, a)
	}

	sortAssignments(out)
	return out, nil
}

// PurgeExpired implements AssignmentStore
func (s *RedisStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	ctx, span := storeTracer.Start(ctx, "RedisStore.PurgeExpired")
	defer span.End()

	members, err := s.client.ZRangeByScore(ctx, s.expiryKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "zrangebyscore failed")
		return 0, fmt.Errorf("redis zrangebyscore failed: %w", err)
	}

	purged := 0
	for _, member := range members {
		var ids [2]string
		if err := json.Unmarshal([]byte(member), &ids); err != nil {
			s.client.ZRem(ctx, s.expiryKey(), member)
			continue
		}
		n, err := s.purgeOne(ctx, ids[0], ids[1], member, now)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "purge failed")
			return purged, err
		}
		purged += n
	}

	span.SetStatus(codes.Ok, fmt.Sprintf("purged %d assignments", purged))
	return purged, nil
}

// purgeOne re-reads the assignment so the sub-millisecond expiry is compared exactly.
// The check and the delete run under WATCH on the user's hash: a renewal landing
// in between aborts the transaction and the renewed assignment is left alone.
func (s *RedisStore) purgeOne(ctx context.Context, userID, roleID, member string, now time.Time) (int, error) {
	key := s.userKey(userID)
	purged := 0

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.HGet(ctx, key, roleID).Result()
		if errors.Is(err, redis.Nil) {
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.ZRem(ctx, s.expiryKey(), member)
				return nil
			})
			return err
		}
		if err != nil {
			return fmt.Errorf("redis hget failed: %w", err)
		}

		var a Assignment
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			return fmt.Errorf("failed to unmarshal assignment %s/%s: %w", userID, roleID, err)
		}
		if a.ActiveAt(now) {
			return nil
		}

		var del *redis.IntCmd
		if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			del = pipe.HDel(ctx, key, roleID)
			pipe.ZRem(ctx, s.expiryKey(), member)
			return nil
		}); err != nil {
			return err
		}
		purged = int(del.Val())
		return nil
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		// changed underneath us; the next sweep sees the new state
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis purge failed: %w", err)
	}
	return purged, nil
}
