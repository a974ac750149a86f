// Package sigv4 computes AWS Signature Version 4 request authorization.
package sigv4

import (
	"time"

	"github.com/prn-tf/ptolemy-upload/internal/cache/memory"
)

// keyCache caches derived signing keys. The key depends on neither method nor
// payload, so a (access key, date, region, service) tuple identifies it for
// the whole validity window of the date: one UTC day.
type keyCache struct {
	store *memory.Cache
}

// newKeyCache creates a key cache backed by the in-memory TTL store.
func newKeyCache() *keyCache {
	return &keyCache{store: memory.NewCache()}
}

// Get returns the signing key for the given credentials and scope, deriving
// and caching it on a miss. The second return reports whether the key came
// from the cache.
func (c *keyCache) Get(creds Credentials, region, service string, requestTime time.Time) ([]byte, bool) {
	cacheKey := creds.AccessKeyID + "/" + requestTime.UTC().Format(YYYYMMDD) + "/" + region + "/" + service

	if key, err := c.store.Get(cacheKey); err == nil {
		return key, true
	}

	key := DeriveSigningKey(creds.SecretAccessKey, requestTime, region, service)

	// The key is valid until the end of its UTC day. Signing with a date
	// whose window already closed is still legal, it just isn't cached.
	if ttl := time.Until(endOfUTCDay(requestTime)); ttl > 0 {
		c.store.Set(cacheKey, key, ttl)
	}

	return key, false
}

// Stop releases the underlying store and zeroes cached key material.
func (c *keyCache) Stop() {
	c.store.Stop()
}

// endOfUTCDay returns the first instant of the UTC day after t.
func endOfUTCDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
}
