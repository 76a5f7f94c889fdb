package cache

import (
	"container/list"
	"path"
	"sync"
	"time"
)

type memoryEntry struct {
	key        string
	value      []byte
	insertedAt time.Time
	ttl        time.Duration
}

func (e *memoryEntry) live(now time.Time) bool {
	return now.Before(e.insertedAt.Add(e.ttl))
}

// memoryTier is a bounded in-process map. When full, the entry inserted
// earliest is evicted; reads do not refresh an entry's position.
type memoryTier struct {
	mu      sync.Mutex
	max     int
	entries map[string]*list.Element
	order   *list.List // front = oldest insertion
}

func newMemoryTier(max int) *memoryTier {
	if max <= 0 {
		max = 100
	}
	return &memoryTier{
		max:     max,
		entries: make(map[string]*list.Element),
		order:   list.New(),
	}
}

func (m *memoryTier) get(key string, now time.Time) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*memoryEntry)
	if !entry.live(now) {
		m.removeElement(el)
		return nil, false
	}
	return entry.value, true
}

func (m *memoryTier) set(key string, value []byte, ttl time.Duration, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.entries[key]; ok {
		m.removeElement(el)
	}

	entry := &memoryEntry{key: key, value: value, insertedAt: now, ttl: ttl}
	m.entries[key] = m.order.PushBack(entry)

	for m.order.Len() > m.max {
		m.removeElement(m.order.Front())
	}
}

// deleteMatching removes every key matching the glob pattern and returns them.
func (m *memoryTier) deleteMatching(pattern string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed []string
	for key, el := range m.entries {
		if ok, _ := path.Match(pattern, key); ok {
			m.removeElement(el)
			removed = append(removed, key)
		}
	}
	return removed
}

// size returns the number of live entries.
func (m *memoryTier) size(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for el := m.order.Front(); el != nil; el = el.Next() {
		if el.Value.(*memoryEntry).live(now) {
			n++
		}
	}
	return n
}

func (m *memoryTier) removeElement(el *list.Element) {
	entry := el.Value.(*memoryEntry)
	delete(m.entries, entry.key)
	m.order.Remove(el)
}
