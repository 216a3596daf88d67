package storage

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"watchbot/pkg/logx"
)

const defaultRedisPrefix = "watchbot"

// redisStore keeps dedup entries as keys that expire on their own and the
// newest deliveries as a capped list.
type redisStore struct {
	client *redis.Client
	log    logx.Logger
	prefix string
	limit  int
}

func openRedis(cfg Config, log logx.Logger) (Store, error) {
	rc := cfg.Redis
	if strings.TrimSpace(rc.Addr) == "" {
		return nil, errors.New("storage.redis.addr is required for redis driver")
	}
	opts := &redis.Options{
		Addr:     rc.Addr,
		Password: rc.Password,
		DB:       rc.DB,
	}
	if rc.UseTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	prefix := strings.TrimSpace(rc.Prefix)
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &redisStore{client: client, log: log, prefix: prefix, limit: historyLimit(cfg)}, nil
}

func (s *redisStore) Driver() string { return "redis" }

func (s *redisStore) Close() error { return s.client.Close() }

func (s *redisStore) dedupKey(key string) string { return s.prefix + ":dedup:" + key }
func (s *redisStore) listKey() string            { return s.prefix + ":deliveries" }

func (s *redisStore) AppendDelivery(ctx context.Context, d Delivery) error {
	if d.At.IsZero() {
		d.At = time.Now()
	}
	b, err := json.Marshal(d)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, s.listKey(), b)
	pipe.LTrim(ctx, s.listKey(), 0, int64(s.limit-1))
	_, err = pipe.Exec(ctx)
	return err
}

func (s *redisStore) RecentDeliveries(ctx context.Context, limit int) ([]Delivery, error) {
	n := clampLimit(limit, s.limit)
	raw, err := s.client.LRange(ctx, s.listKey(), 0, int64(n-1)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Delivery, 0, len(raw))
	for _, item := range raw {
		var d Delivery
		if err := json.Unmarshal([]byte(item), &d); err != nil {
			s.log.Debug("skip undecodable delivery", logx.Err(err))
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (s *redisStore) PutDedup(ctx context.Context, key string, until time.Time) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	ttl := time.Until(until)
	if ttl <= 0 {
		return s.client.Del(ctx, s.dedupKey(key)).Err()
	}
	return s.client.Set(ctx, s.dedupKey(key), until.UnixMilli(), ttl).Err()
}

func (s *redisStore) GetDedup(ctx context.Context, key string) (time.Time, bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return time.Time{}, false, nil
	}
	v, err := s.client.Get(ctx, s.dedupKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("dedup %q: %w", key, err)
	}
	return time.UnixMilli(ms), true, nil
}

// PruneDedup is a no-op; redis expires dedup keys itself.
func (s *redisStore) PruneDedup(context.Context, time.Time) (int, error) { return 0, nil }
