package quote

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/atomic"

	"oip/liverates/internal/model"
	"oip/liverates/pkg/logger"
)

// DefaultKeyPrefix 缓存 key 前缀
const DefaultKeyPrefix = "shippo_rates_"

// Store 缓存存储边界（内存 / Redis）
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// DeletePrefix 删除所有以 prefix 开头的 key，返回删除数量
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

// FingerprintInput 影响报价结果的全部输入
type FingerprintInput struct {
	Destination model.Address
	Items       []model.CartItem
	Units       model.Units
	Carriers    []string
	Services    []string
	Markup      model.Markup
}

// Fingerprint 生成缓存 key：<prefix><md5 地址>_<md5 货物>_<md5 承运商>_<md5 计价>
// 承运商和服务列表排序后参与计算，顺序不影响结果
func Fingerprint(prefix string, in FingerprintInput) string {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}

	dest := in.Destination.Normalize()
	destPart := strings.Join([]string{
		dest.Street1, dest.Street2, dest.City, dest.State, dest.PostalCode, dest.Country,
	}, "|")

	var contents strings.Builder
	fmt.Fprintf(&contents, "%s|%s", strings.ToLower(in.Units.Weight), strings.ToLower(in.Units.Dimension))
	for _, item := range in.Items {
		fmt.Fprintf(&contents, ";%s:%d:%g:%g:%g:%g",
			item.ProductID, item.Quantity, item.Weight, item.Length, item.Width, item.Height)
	}

	carriers := sortedCopy(in.Carriers)
	services := sortedCopy(in.Services)
	pricing := fmt.Sprintf("%s|%s|%s", in.Markup.Type, in.Markup.Amount.String(), strings.Join(services, ","))

	return prefix + strings.Join([]string{
		md5Hex(destPart),
		md5Hex(contents.String()),
		md5Hex(strings.Join(carriers, ",")),
		md5Hex(pricing),
	}, "_")
}

// CacheStats 缓存统计
type CacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Writes int64 `json:"writes"`
	Clears int64 `json:"clears"`
}

// RateCache 报价缓存
type RateCache struct {
	store  Store
	prefix string
	logger logger.Logger

	hits   atomic.Int64
	misses atomic.Int64
	writes atomic.Int64
	clears atomic.Int64
}

// NewRateCache 创建报价缓存
func NewRateCache(store Store, prefix string, log logger.Logger) *RateCache {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &RateCache{store: store, prefix: prefix, logger: log}
}

// Prefix 返回 key 前缀
func (c *RateCache) Prefix() string {
	return c.prefix
}

// Key 计算请求对应的缓存 key
func (c *RateCache) Key(in FingerprintInput) string {
	return Fingerprint(c.prefix, in)
}

// Get 读取缓存；存储错误或数据损坏按未命中处理
func (c *RateCache) Get(ctx context.Context, key string) (model.QuoteSet, bool) {
	data, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warnf(ctx, "[RateCache] get %s failed: %v", key, err)
		c.misses.Inc()
		return nil, false
	}
	if !ok {
		c.misses.Inc()
		return nil, false
	}

	var set model.QuoteSet
	if err := json.Unmarshal(data, &set); err != nil {
		c.logger.Warnf(ctx, "[RateCache] corrupted entry %s: %v", key, err)
		c.misses.Inc()
		return nil, false
	}
	c.hits.Inc()
	return set, true
}

// Put 写入缓存，ttl <= 0 表示不缓存
func (c *RateCache) Put(ctx context.Context, key string, set model.QuoteSet, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	data, err := json.Marshal(set)
	if err != nil {
		c.logger.Warnf(ctx, "[RateCache] marshal %s failed: %v", key, err)
		return
	}
	if err := c.store.Set(ctx, key, data, ttl); err != nil {
		c.logger.Warnf(ctx, "[RateCache] set %s failed: %v", key, err)
		return
	}
	c.writes.Inc()
}

// ClearAll 清空全部报价缓存
func (c *RateCache) ClearAll(ctx context.Context) (int, error) {
	n, err := c.store.DeletePrefix(ctx, c.prefix)
	if err != nil {
		return n, fmt.Errorf("clear rate cache: %w", err)
	}
	c.clears.Inc()
	c.logger.Infof(ctx, "[RateCache] cleared %d entries", n)
	return n, nil
}

// Stats 返回统计快照
func (c *RateCache) Stats() CacheStats {
	return CacheStats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Writes: c.writes.Load(),
		Clears: c.clears.Load(),
	}
}

func sortedCopy(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, strings.ToLower(strings.TrimSpace(v)))
	}
	sort.Strings(out)
	return out
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
