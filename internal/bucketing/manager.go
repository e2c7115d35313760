package bucketing

import (
	"hash"
	"sync"
	"time"

	"github.com/spaolacci/murmur3"

	"security-service/internal/config"
)

// Manager assigns events and breach records to stable partitions so the
// column stores never grow unbounded single partitions.
type Manager struct {
	eventBuckets int
	hasherPool   sync.Pool
}

func NewManager(cfg *config.Config) *Manager {
	m := &Manager{
		eventBuckets: cfg.Bucketing.EventBuckets,
	}

	// Pool of hash functions to avoid allocation overhead on the hot path
	m.hasherPool = sync.Pool{
		New: func() interface{} {
			return murmur3.New64()
		},
	}

	return m
}

// EventBucket returns a consistent bucket for a scope key (0 to eventBuckets-1)
func (m *Manager) EventBucket(scopeKey string) int {
	hasher := m.hasherPool.Get().(hash.Hash64)
	defer m.hasherPool.Put(hasher)

	hasher.Reset()
	hasher.Write([]byte(scopeKey))
	return int(hasher.Sum64() % uint64(m.eventBuckets))
}

// DateBucket returns the UTC date partition for breach records
func (m *Manager) DateBucket(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// EventBuckets returns the configured bucket count
func (m *Manager) EventBuckets() int {
	return m.eventBuckets
}
