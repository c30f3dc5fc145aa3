package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// scanBatch 每次 SCAN 的数量
const scanBatch = 200

// RateStore 基于 Redis 的报价缓存存储
type RateStore struct {
	client *redis.Client
}

// NewRateStore 创建 RateStore 并测试连接
func NewRateStore(addr, password string, db int) (*RateStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// 测试连接
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RateStore{client: client}, nil
}

// NewRateStoreWithClient 使用已有客户端
func NewRateStoreWithClient(client *redis.Client) *RateStore {
	return &RateStore{client: client}
}

// Get 读取缓存，key 不存在时返回 ok=false
func (s *RateStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return data, true, nil
}

// Set SET key value EX ttl
func (s *RateStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// globEscaper 转义 MATCH 模式中的通配符
var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

// DeletePrefix SCAN MATCH prefix* 后分批 UNLINK，前缀按字面量匹配
func (s *RateStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	var (
		cursor  uint64
		deleted int
	)
	pattern := globEscaper.Replace(prefix) + "*"
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return deleted, fmt.Errorf("failed to scan %s: %w", pattern, err)
		}
		keys = withPrefix(keys, prefix)
		if len(keys) > 0 {
			n, err := s.client.Unlink(ctx, keys...).Result()
			if err != nil {
				return deleted, fmt.Errorf("failed to unlink keys: %w", err)
			}
			deleted += int(n)
		}
		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}

func withPrefix(keys []string, prefix string) []string {
	out := keys[:0]
	for _, key := range keys {
		if strings.HasPrefix(key, prefix) {
			out = append(out, key)
		}
	}
	return out
}

// Ping 检查连接
func (s *RateStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close 关闭 Redis 连接
func (s *RateStore) Close() error {
	return s.client.Close()
}
