// Package cache provides caching for analysis results, both in-process and
// backed by Redis.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// Stats reports cache effectiveness counters.
type Stats struct {
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	Evictions   int64   `json:"evictions"`
	Size        int     `json:"size"`
	Utilization float64 `json:"utilization"`
}

type memoryEntry struct {
	key       string
	value     any
	expiresAt time.Time
}

// Memory is an LRU cache with per-entry TTL. It is safe for concurrent use.
type Memory struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	order   *list.List
	entries map[string]*list.Element
	hits    int64
	misses  int64
	evicted int64
	nowFunc func() time.Time
}

// NewMemory creates a cache holding at most maxSize entries, each expiring
// ttl after insertion. maxSize values below 1 default to 1.
func NewMemory(maxSize int, ttl time.Duration) *Memory {
	if maxSize < 1 {
		maxSize = 1
	}
	return &Memory{
		maxSize: maxSize,
		ttl:     ttl,
		order:   list.New(),
		entries: make(map[string]*list.Element),
		nowFunc: time.Now,
	}
}

// Get returns the cached value for key, if present and unexpired.
func (m *Memory) Get(key string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.entries[key]
	if !ok {
		m.misses++
		return nil, false
	}

	entry := el.Value.(*memoryEntry)
	if m.nowFunc().After(entry.expiresAt) {
		m.removeLocked(el)
		m.misses++
		return nil, false
	}

	m.order.MoveToFront(el)
	m.hits++
	return entry.value, true
}

// Set stores value under key, evicting the least recently used entry when
// the cache is full.
func (m *Memory) Set(key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.entries[key]; ok {
		entry := el.Value.(*memoryEntry)
		entry.value = value
		entry.expiresAt = m.nowFunc().Add(m.ttl)
		m.order.MoveToFront(el)
		return
	}

	if m.order.Len() >= m.maxSize {
		if oldest := m.order.Back(); oldest != nil {
			m.removeLocked(oldest)
			m.evicted++
		}
	}

	entry := &memoryEntry{key: key, value: value, expiresAt: m.nowFunc().Add(m.ttl)}
	m.entries[key] = m.order.PushFront(entry)
}

// Delete removes key from the cache if present.
func (m *Memory) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.entries[key]; ok {
		m.removeLocked(el)
	}
}

// ClearExpired removes every expired entry and reports how many were
// dropped.
func (m *Memory) ClearExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.nowFunc()
	removed := 0
	for el := m.order.Back(); el != nil; {
		prev := el.Prev()
		if now.After(el.Value.(*memoryEntry).expiresAt) {
			m.removeLocked(el)
			removed++
		}
		el = prev
	}
	return removed
}

// Stats returns a snapshot of the cache counters.
func (m *Memory) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Stats{
		Hits:        m.hits,
		Misses:      m.misses,
		Evictions:   m.evicted,
		Size:        m.order.Len(),
		Utilization: float64(m.order.Len()) / float64(m.maxSize),
	}
}

func (m *Memory) removeLocked(el *list.Element) {
	entry := el.Value.(*memoryEntry)
	delete(m.entries, entry.key)
	m.order.Remove(el)
}
