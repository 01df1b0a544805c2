package automation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisAutomationsKey = "sylvia:automations"
	redisResultsKey     = "sylvia:results"
)

// NewRedisClient connects and pings so a bad SYLVIA_REDIS_URL fails at
// startup rather than on the first scheduled run.
func NewRedisClient(redisURL string) (*redis.Client, error) {
	url := strings.TrimSpace(redisURL)
	if url == "" {
		return nil, errors.New("redis url is required")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// RedisStore keeps automations in a single hash keyed by automation id.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) List(ctx context.Context) ([]Automation, error) {
	fields, err := s.client.HGetAll(ctx, redisAutomationsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list automations: %w", err)
	}
	out := make([]Automation, 0, len(fields))
	for id, raw := range fields {
		var a Automation
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			return nil, fmt.Errorf("decode automation %s: %w", id, err)
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (Automation, bool, error) {
	raw, err := s.client.HGet(ctx, redisAutomationsKey, strings.TrimSpace(id)).Result()
	if errors.Is(err, redis.Nil) {
		return Automation{}, false, nil
	}
	if err != nil {
		return Automation{}, false, fmt.Errorf("get automation: %w", err)
	}
	var a Automation
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return Automation{}, false, fmt.Errorf("decode automation %s: %w", id, err)
	}
	return a, true, nil
}

func (s *RedisStore) Save(ctx context.Context, a Automation) (Automation, error) {
	now := time.Now().UTC()
	a, err := normalizeAutomation(a, now)
	if err != nil {
		return Automation{}, err
	}

	if existing, ok, err := s.Get(ctx, a.ID); err != nil {
		return Automation{}, err
	} else if ok {
		a.CreatedAt = existing.CreatedAt
	}

	data, err := json.Marshal(a)
	if err != nil {
		return Automation{}, err
	}
	if err := s.client.HSet(ctx, redisAutomationsKey, a.ID, data).Err(); err != nil {
		return Automation{}, fmt.Errorf("save automation: %w", err)
	}
	return a, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	removed, err := s.client.HDel(ctx, redisAutomationsKey, strings.TrimSpace(id)).Result()
	if err != nil {
		return fmt.Errorf("delete automation: %w", err)
	}
	if removed == 0 {
		return ErrNotFound
	}
	return nil
}

// RedisResultLog keeps results in a newest-first list. LPUSH + LTRIM gives
// the capacity bound without a separate eviction pass.
type RedisResultLog struct {
	client *redis.Client
}

func NewRedisResultLog(client *redis.Client) (*RedisResultLog, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	return &RedisResultLog{client: client}, nil
}

func (l *RedisResultLog) Append(ctx context.Context, r Result) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	pipe := l.client.Pipeline()
	pipe.LPush(ctx, redisResultsKey, data)
	pipe.LTrim(ctx, redisResultsKey, 0, resultCapacity-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append result: %w", err)
	}
	return nil
}

func (l *RedisResultLog) all(ctx context.Context) ([]Result, error) {
	raws, err := l.client.LRange(ctx, redisResultsKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load results: %w", err)
	}
	out := make([]Result, 0, len(raws))
	for _, raw := range raws {
		var r Result
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
		out = append(out, r)
	}
	return out, nil
}

func (l *RedisResultLog) Query(ctx context.Context, q Query) (ResultPage, error) {
	all, err := l.all(ctx)
	if err != nil {
		return ResultPage{}, err
	}
	return paginate(all, q), nil
}

func (l *RedisResultLog) Get(ctx context.Context, id string) (Result, bool, error) {
	all, err := l.all(ctx)
	if err != nil {
		return Result{}, false, err
	}
	id = strings.TrimSpace(id)
	for _, r := range all {
		if r.ID == id {
			return r, true, nil
		}
	}
	return Result{}, false, nil
}

func (l *RedisResultLog) Clear(ctx context.Context, automationID string) error {
	automationID = strings.TrimSpace(automationID)
	if automationID == "" {
		return l.client.Del(ctx, redisResultsKey).Err()
	}

	all, err := l.all(ctx)
	if err != nil {
		return err
	}
	kept := make([]any, 0, len(all))
	for _, r := range all {
		if r.AutomationID == automationID {
			continue
		}
		data, err := json.Marshal(r)
		if err != nil {
			return err
		}
		kept = append(kept, data)
	}

	pipe := l.client.TxPipeline()
	pipe.Del(ctx, redisResultsKey)
	if len(kept) > 0 {
		// RPush in stored order keeps the list newest-first.
		pipe.RPush(ctx, redisResultsKey, kept...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("clear results: %w", err)
	}
	return nil
}
