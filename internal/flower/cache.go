package flower

import (
	"maps"
	"time"
)

const (
	DefaultCacheTTL           = 600 * time.Second
	DefaultFailureRetryOffset = 300 * time.Second
	DefaultReadTimeout        = 10 * time.Second
)

// sensorCache holds the last complete reading of one device. It is not
// safe for concurrent use; the owning Poller serialises access.
type sensorCache struct {
	values      map[Parameter]float64
	lastSuccess time.Time
	hasSuccess  bool

	ttl                time.Duration
	failureRetryOffset time.Duration
}

func newSensorCache(ttl, failureRetryOffset time.Duration) *sensorCache {
	return &sensorCache{ttl: ttl, failureRetryOffset: failureRetryOffset}
}

// expired reports whether a refresh is due at now.
func (c *sensorCache) expired(now time.Time) bool {
	return !c.hasSuccess || now.Sub(c.lastSuccess) > c.ttl
}

// commit replaces the whole value set.
func (c *sensorCache) commit(values map[Parameter]float64, now time.Time) {
	c.values = values
	c.lastSuccess = now
	c.hasSuccess = true
}

// fail drops any values and pushes the next eligible refresh to
// now + failureRetryOffset.
func (c *sensorCache) fail(now time.Time) {
	c.values = nil
	c.lastSuccess = now.Add(-c.ttl).Add(c.failureRetryOffset)
	c.hasSuccess = true
}

func (c *sensorCache) clear() {
	c.values = nil
	c.lastSuccess = time.Time{}
	c.hasSuccess = false
}

func (c *sensorCache) available() bool {
	return c.values != nil
}

func (c *sensorCache) snapshot() map[Parameter]float64 {
	if c.values == nil {
		return nil
	}
	return maps.Clone(c.values)
}
