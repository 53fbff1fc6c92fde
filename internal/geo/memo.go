package geo

import (
	"container/list"
	"sync"
	"time"

	"eventmap/internal/model"
)

// memo is a small TTL-bound LRU of successful network lookups, keyed by the
// search query. It lives in memory only.
type memo struct {
	mu    sync.Mutex
	cap   int
	ttl   time.Duration
	now   func() time.Time
	ll    *list.List               // most-recent at front
	items map[string]*list.Element // key -> element
}

type memoEntry struct {
	key   string
	coord model.Coordinate
	exp   time.Time
}

func newMemo(maxKeys int, ttl time.Duration, now func() time.Time) *memo {
	if maxKeys <= 0 {
		maxKeys = 1000
	}
	if now == nil {
		now = time.Now
	}
	return &memo{cap: maxKeys, ttl: ttl, now: now, ll: list.New(), items: make(map[string]*list.Element)}
}

func (m *memo) get(key string) (model.Coordinate, bool) {
	if m == nil || m.ttl <= 0 {
		return model.Coordinate{}, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.items[key]
	if !ok {
		return model.Coordinate{}, false
	}
	en := el.Value.(memoEntry)
	if !m.now().Before(en.exp) {
		m.ll.Remove(el)
		delete(m.items, key)
		return model.Coordinate{}, false
	}
	m.ll.MoveToFront(el)
	return en.coord, true
}

func (m *memo) put(key string, c model.Coordinate) {
	if m == nil || m.ttl <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	en := memoEntry{key: key, coord: c, exp: m.now().Add(m.ttl)}
	if el, ok := m.items[key]; ok {
		el.Value = en
		m.ll.MoveToFront(el)
		return
	}
	m.items[key] = m.ll.PushFront(en)
	for m.ll.Len() > m.cap {
		t := m.ll.Back()
		m.ll.Remove(t)
		delete(m.items, t.Value.(memoEntry).key)
	}
}
