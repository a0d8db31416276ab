package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"callbridge.app/bridge/internal/model"
	"github.com/redis/go-redis/v9"
)

const (
	scanCount   = 100
	deleteBatch = 100
)

type RedisTranscriptStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisTranscriptStore(client *redis.Client, prefix string, ttl time.Duration) *RedisTranscriptStore {
	if prefix == "" {
		prefix = "conversation:"
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisTranscriptStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisTranscriptStore) key(callID string) string {
	return s.prefix + callID
}

// Save writes the record with SET ... EX, so readers never see a partial
// transcript.
func (s *RedisTranscriptStore) Save(ctx context.Context, rec model.TranscriptRecord) error {
	if rec.CallID == "" {
		return fmt.Errorf("saving transcript: call id is required")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding transcript: %w", err)
	}
	if err := s.client.Set(ctx, s.key(rec.CallID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("saving transcript (call=%s): %w", rec.CallID, err)
	}
	return nil
}

func (s *RedisTranscriptStore) Load(ctx context.Context, callID string) (*model.TranscriptRecord, error) {
	data, err := s.client.Get(ctx, s.key(callID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("loading transcript (call=%s): %w", callID, err)
	}

	var rec model.TranscriptRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decoding transcript (call=%s): %w", callID, err)
	}
	if rec.CallID == "" {
		rec.CallID = callID
	}
	if rec.Entries == nil {
		rec.Entries = []model.TranscriptEntry{}
	}
	return &rec, nil
}

func (s *RedisTranscriptStore) ListCallIDs(ctx context.Context) ([]string, error) {
	keys, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, strings.TrimPrefix(k, s.prefix))
	}
	sort.Strings(ids)
	return ids, nil
}

// DeleteAll removes every transcript under the prefix and reports how many
// keys were deleted.
func (s *RedisTranscriptStore) DeleteAll(ctx context.Context) (int, error) {
	keys, err := s.scan(ctx)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for start := 0; start < len(keys); start += deleteBatch {
		end := min(start+deleteBatch, len(keys))
		n, err := s.client.Del(ctx, keys[start:end]...).Result()
		if err != nil {
			return deleted, fmt.Errorf("deleting transcripts: %w", err)
		}
		deleted += int(n)
	}

	slog.InfoContext(ctx, "transcripts purged", "prefix", s.prefix, "deleted", deleted)
	return deleted, nil
}

func (s *RedisTranscriptStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisTranscriptStore) scan(ctx context.Context) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := s.client.Scan(ctx, cursor, s.prefix+"*", scanCount).Result()
		if err != nil {
			return nil, fmt.Errorf("scanning transcripts: %w", err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}

// DisabledTranscriptStore stands in when the shared store could not be reached
// at startup. Calls still complete, with no persistence and no cross-call
// conflict detection.
type DisabledTranscriptStore struct{}

func (DisabledTranscriptStore) Save(context.Context, model.TranscriptRecord) error {
	return ErrUnavailable
}

func (DisabledTranscriptStore) Load(context.Context, string) (*model.TranscriptRecord, error) {
	return nil, ErrUnavailable
}

func (DisabledTranscriptStore) ListCallIDs(context.Context) ([]string, error) {
	return []string{}, nil
}

func (DisabledTranscriptStore) DeleteAll(context.Context) (int, error) {
	return 0, nil
}

func (DisabledTranscriptStore) Ping(context.Context) error {
	return ErrUnavailable
}
