package anchor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"veridoc/internal/platform/redis"
	"veridoc/internal/sentinel"
)

const recordKeyPrefix = "veridoc:anchor:"

// RedisRecordStore keeps anchor records in Redis so verification survives
// process restarts and is shared across instances.
type RedisRecordStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisRecordStore constructs a Redis-backed record store. A zero TTL
// keeps records indefinitely.
func NewRedisRecordStore(client *redis.Client, ttl time.Duration) *RedisRecordStore {
	return &RedisRecordStore{client: client, ttl: ttl}
}

func (s *RedisRecordStore) Put(ctx context.Context, record StoredRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal anchor record: %w", err)
	}
	if err := s.client.Set(ctx, recordKeyPrefix+record.Reference, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("store anchor record: %w", err)
	}
	return nil
}

func (s *RedisRecordStore) Get(ctx context.Context, reference string) (*StoredRecord, error) {
	data, err := s.client.Get(ctx, recordKeyPrefix+reference).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("fetch anchor record: %w", err)
	}
	var record StoredRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("unmarshal anchor record: %w", err)
	}
	return &record, nil
}
