package facilitator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// SettlementCache deduplicates settle attempts for the same payload bytes.
// Successful responses are cached for a TTL; concurrent attempts for an
// in-flight key wait for the first attempt instead of submitting again.
// Failed attempts are not cached, so clients can retry them.
type SettlementCache struct {
	mu       sync.Mutex
	results  map[string]*SettleResponse
	expiry   map[string]time.Time
	inFlight map[string]chan struct{}
	ttl      time.Duration
}

func NewSettlementCache(ttl time.Duration) *SettlementCache {
	return &SettlementCache{
		results:  make(map[string]*SettleResponse),
		expiry:   make(map[string]time.Time),
		inFlight: make(map[string]chan struct{}),
		ttl:      ttl,
	}
}

// SettlementKey derives the cache key from payload bytes. The payload
// embeds the client's signature and nonce, so the hash is unique per
// payment attempt.
func SettlementKey(payloadBytes []byte) string {
	sum := sha256.Sum256(payloadBytes)
	return hex.EncodeToString(sum[:])
}

// SettlementStatus is the outcome of a cache lookup.
type SettlementStatus int

const (
	// SettlementNotFound means the caller should proceed; the key is now
	// marked in-flight.
	SettlementNotFound SettlementStatus = iota
	// SettlementCached means a previous attempt's response is available.
	SettlementCached
	// SettlementInFlight means another attempt is currently settling.
	SettlementInFlight
)

// CheckAndMark atomically looks up the key and, when absent, marks it
// in-flight. The returned channel is the waiters' signal (in-flight) or the
// caller's completion obligation (not found).
func (c *SettlementCache) CheckAndMark(key string) (SettlementStatus, *SettleResponse, chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if expiry, ok := c.expiry[key]; ok {
		if time.Now().Before(expiry) {
			if result, ok := c.results[key]; ok {
				return SettlementCached, result, nil
			}
		}
		delete(c.results, key)
		delete(c.expiry, key)
	}

	if done, ok := c.inFlight[key]; ok {
		return SettlementInFlight, nil, done
	}

	done := make(chan struct{})
	c.inFlight[key] = done
	return SettlementNotFound, nil, done
}

// WaitForResult blocks until the in-flight attempt completes or the context
// is cancelled. A nil response with nil error means the attempt failed
// without caching and the caller may retry.
func (c *SettlementCache) WaitForResult(ctx context.Context, key string, done chan struct{}) (*SettleResponse, error) {
	select {
	case <-done:
		return c.get(key), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *SettlementCache) get(key string) *SettleResponse {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiry, ok := c.expiry[key]
	if !ok {
		return nil
	}
	if time.Now().After(expiry) {
		delete(c.results, key)
		delete(c.expiry, key)
		return nil
	}
	return c.results[key]
}

// Complete caches the response, clears the in-flight marker, and signals
// waiters.
func (c *SettlementCache) Complete(key string, response *SettleResponse, done chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.results[key] = response
	c.expiry[key] = time.Now().Add(c.ttl)
	delete(c.inFlight, key)
	close(done)

	now := time.Now()
	for k, exp := range c.expiry {
		if now.After(exp) {
			delete(c.results, k)
			delete(c.expiry, k)
		}
	}
}

// Fail clears the in-flight marker without caching, so the settlement can
// be retried, and signals waiters.
func (c *SettlementCache) Fail(key string, done chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.inFlight, key)
	close(done)
}
