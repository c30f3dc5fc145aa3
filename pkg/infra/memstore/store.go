package memstore

import (
	"context"
	"strings"
	"sync"
	"time"
)

type entry struct {
	value     []byte
	expiresAt time.Time
}

// Store 进程内 KV 存储，读取时检查过期
type Store struct {
	mu    sync.RWMutex
	items map[string]entry
	now   func() time.Time
}

// New 创建内存存储
func New() *Store {
	return &Store{items: make(map[string]entry), now: time.Now}
}

// WithClock 替换时钟（测试用）
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Get 读取，过期条目视为不存在并被删除
func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	e, ok := s.items[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}

	if !s.now().Before(e.expiresAt) {
		s.mu.Lock()
		if cur, ok := s.items[key]; ok && !s.now().Before(cur.expiresAt) {
			delete(s.items, key)
		}
		s.mu.Unlock()
		return nil, false, nil
	}
	return append([]byte(nil), e.value...), true, nil
}

// Set 写入，同 key 后写覆盖
func (s *Store) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	s.mu.Lock()
	s.items[key] = entry{value: append([]byte(nil), value...), expiresAt: s.now().Add(ttl)}
	s.mu.Unlock()
	return nil
}

// DeletePrefix 删除前缀匹配的条目
func (s *Store) DeletePrefix(_ context.Context, prefix string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for key := range s.items {
		if strings.HasPrefix(key, prefix) {
			delete(s.items, key)
			n++
		}
	}
	return n, nil
}

// Len 当前条目数（含未清理的过期条目）
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
