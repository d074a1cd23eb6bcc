package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisOrderKey    = "shrinkray:queue"
	redisRecordKey   = "shrinkray:record:"
	defaultRedisTTL  = 30 * time.Minute
	redisDialTimeout = 5 * time.Second
)

// RedisStore keeps the queue in redis: a list holds the record ids in
// insertion order and each record lives in its own hash. Every key carries
// the session TTL, refreshed on writes, so entries expire with the session
// instead of persisting.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(addr string, sessionTTL time.Duration) (*RedisStore, error) {
	if sessionTTL <= 0 {
		sessionTTL = defaultRedisTTL
	}

	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: redisDialTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), redisDialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return &RedisStore{
		client: client,
		ttl:    sessionTTL,
	}, nil
}

func (s *RedisStore) Append(record *Record) error {
	ctx := context.Background()

	fields := map[string]any{
		"name":            record.Name,
		"size":            record.Size,
		"content_type":    record.ContentType,
		"original":        record.Original,
		"compressed":      record.Compressed,
		"compressed_size": record.CompressedSize,
		"compressed_type": record.CompressedType,
		"quality":         record.Quality,
		"status":          string(record.Status),
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, redisRecordKey+record.ID, fields)
	pipe.RPush(ctx, redisOrderKey, record.ID)
	pipe.Expire(ctx, redisRecordKey+record.ID, s.ttl)
	pipe.Expire(ctx, redisOrderKey, s.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) List() ([]*Record, error) {
	ctx := context.Background()

	ids, err := s.client.LRange(ctx, redisOrderKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}

	var records []*Record
	for _, id := range ids {
		record, err := s.Get(id)
		if errors.Is(err, ErrNotFound) {
			// Hash expired or was deleted out of band; skip the stale id
			continue
		}
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

func (s *RedisStore) Get(id string) (*Record, error) {
	ctx := context.Background()

	fields, err := s.client.HGetAll(ctx, redisRecordKey+id).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return recordFromFields(id, fields)
}

func (s *RedisStore) SetQuality(id string, quality int) error {
	ctx := context.Background()

	if err := s.requireRecord(ctx, id); err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, redisRecordKey+id, "quality", quality)
	pipe.Expire(ctx, redisRecordKey+id, s.ttl)
	pipe.Expire(ctx, redisOrderKey, s.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) SetCompressed(id string, data []byte, contentType string) error {
	ctx := context.Background()

	if err := s.requireRecord(ctx, id); err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, redisRecordKey+id, map[string]any{
		"compressed":      data,
		"compressed_size": int64(len(data)),
		"compressed_type": contentType,
		"status":          string(StatusCompressed),
	})
	pipe.Expire(ctx, redisRecordKey+id, s.ttl)
	pipe.Expire(ctx, redisOrderKey, s.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Remove(id string) error {
	ctx := context.Background()

	if err := s.requireRecord(ctx, id); err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.LRem(ctx, redisOrderKey, 0, id)
	pipe.Del(ctx, redisRecordKey+id)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Clear() error {
	ctx := context.Background()

	ids, err := s.client.LRange(ctx, redisOrderKey, 0, -1).Result()
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, redisRecordKey+id)
	}
	keys = append(keys, redisOrderKey)
	return s.client.Del(ctx, keys...).Err()
}

func (s *RedisStore) Len() (int, error) {
	count, err := s.client.LLen(context.Background(), redisOrderKey).Result()
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) requireRecord(ctx context.Context, id string) error {
	exists, err := s.client.Exists(ctx, redisRecordKey+id).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return ErrNotFound
	}
	return nil
}

func recordFromFields(id string, fields map[string]string) (*Record, error) {
	size, err := strconv.ParseInt(fields["size"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid size for record %s: %w", id, err)
	}
	compressedSize, err := strconv.ParseInt(fields["compressed_size"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid compressed size for record %s: %w", id, err)
	}
	quality, err := strconv.Atoi(fields["quality"])
	if err != nil {
		return nil, fmt.Errorf("invalid quality for record %s: %w", id, err)
	}

	record := &Record{
		ID:             id,
		Name:           fields["name"],
		Size:           size,
		ContentType:    fields["content_type"],
		Original:       []byte(fields["original"]),
		CompressedSize: compressedSize,
		CompressedType: fields["compressed_type"],
		Quality:        quality,
		Status:         Status(fields["status"]),
	}
	if compressed := fields["compressed"]; compressed != "" {
		record.Compressed = []byte(compressed)
	}
	return record, nil
}
