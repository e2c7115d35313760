package bucketing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"security-service/internal/config"
)

func TestEventBucketDeterministic(t *testing.T) {
	m := NewManager(config.Get())

	first := m.EventBucket("tenant-1|10.0.0.1")
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, m.EventBucket("tenant-1|10.0.0.1"))
	}
}

func TestEventBucketRange(t *testing.T) {
	m := NewManager(config.Get())

	keys := []string{"a", "tenant-1|10.0.0.1", "tenant-2|192.168.1.1", "auth:203.0.113.7", ""}
	for _, key := range keys {
		bucket := m.EventBucket(key)
		assert.GreaterOrEqual(t, bucket, 0)
		assert.Less(t, bucket, m.EventBuckets())
	}
}

func TestDateBucketUTC(t *testing.T) {
	m := NewManager(config.Get())

	loc := time.FixedZone("UTC+10", 10*3600)
	// 03:00 on the 2nd in UTC+10 is still the 1st in UTC.
	local := time.Date(2026, 3, 2, 3, 0, 0, 0, loc)
	assert.Equal(t, "2026-03-01", m.DateBucket(local))
}
