package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"mercator-hq/pricegate/pkg/pricing"
)

// MemoryStore implements history.Store in process memory.
//
// The outer lock only guards the product map; each product's log has its
// own RWMutex.
type MemoryStore struct {
	mu       sync.RWMutex
	products map[string]*productLog
}

type productLog struct {
	mu      sync.RWMutex
	entries []pricing.HistoryEntry
}

// NewMemoryStore creates an empty in-memory history store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{products: make(map[string]*productLog)}
}

func (m *MemoryStore) log(productID string, create bool) *productLog {
	m.mu.RLock()
	l, ok := m.products[productID]
	m.mu.RUnlock()
	if ok || !create {
		return l
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok = m.products[productID]; !ok {
		l = &productLog{}
		m.products[productID] = l
	}
	return l
}

// Append inserts entry keeping the product log ordered by timestamp.
func (m *MemoryStore) Append(ctx context.Context, entry pricing.HistoryEntry) error {
	if entry.ID == "" {
		return fmt.Errorf("history entry id cannot be empty")
	}
	if entry.ProductID == "" {
		return fmt.Errorf("history entry product id cannot be empty")
	}

	l := m.log(entry.ProductID, true)
	l.mu.Lock()
	defer l.mu.Unlock()

	// Insert after any entry with an equal timestamp so appends stay stable.
	i := sort.Search(len(l.entries), func(i int) bool {
		return l.entries[i].Timestamp.After(entry.Timestamp)
	})
	l.entries = append(l.entries, pricing.HistoryEntry{})
	copy(l.entries[i+1:], l.entries[i:])
	l.entries[i] = entry
	return nil
}

// Remove deletes one entry.
func (m *MemoryStore) Remove(ctx context.Context, productID, entryID string) error {
	l := m.log(productID, false)
	if l == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for i, e := range l.entries {
		if e.ID == entryID {
			l.entries = append(l.entries[:i], l.entries[i+1:]...)
			return nil
		}
	}
	return nil
}

// List returns entries with Timestamp >= since, oldest first.
func (m *MemoryStore) List(ctx context.Context, productID string, since time.Time) ([]pricing.HistoryEntry, error) {
	l := m.log(productID, false)
	if l == nil {
		return nil, nil
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	i := sort.Search(len(l.entries), func(i int) bool {
		return !l.entries[i].Timestamp.Before(since)
	})
	out := make([]pricing.HistoryEntry, len(l.entries)-i)
	copy(out, l.entries[i:])
	return out, nil
}

// Prune deletes entries older than olderThan.
func (m *MemoryStore) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var deleted int64
	for productID, l := range m.products {
		l.mu.Lock()
		i := sort.Search(len(l.entries), func(i int) bool {
			return !l.entries[i].Timestamp.Before(olderThan)
		})
		deleted += int64(i)
		l.entries = append([]pricing.HistoryEntry(nil), l.entries[i:]...)
		empty := len(l.entries) == 0
		l.mu.Unlock()

		if empty {
			delete(m.products, productID)
		}
	}
	return deleted, nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}

// Size returns the total number of stored entries.
func (m *MemoryStore) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, l := range m.products {
		l.mu.RLock()
		n += len(l.entries)
		l.mu.RUnlock()
	}
	return n
}
