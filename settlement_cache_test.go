package facilitator

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestSettlementKey(t *testing.T) {
	payload1 := []byte(`{"x402Version":2,"payload":{"nonce":"123"},"accepted":{"scheme":"exact"}}`)
	payload2 := []byte(`{"x402Version":2,"payload":{"nonce":"456"},"accepted":{"scheme":"exact"}}`)

	key1 := SettlementKey(payload1)
	key2 := SettlementKey(payload2)
	key3 := SettlementKey(payload1)

	if key1 != key3 {
		t.Errorf("Expected same payload to produce same key, got %s and %s", key1, key3)
	}
	if key1 == key2 {
		t.Errorf("Expected different payloads to produce different keys")
	}
	if len(key1) != 64 {
		t.Errorf("Expected key to be 64 hex chars, got %d", len(key1))
	}
}

func TestSettlementCache_CheckAndMark_Cached(t *testing.T) {
	cache := NewSettlementCache(5 * time.Minute)
	key := "test-key"
	response := &SettleResponse{
		Success:     true,
		Transaction: "0x123",
		Payer:       "0xabc",
		Network:     "eip155:1",
	}

	status, result, done := cache.CheckAndMark(key)
	if status != SettlementNotFound {
		t.Errorf("Expected SettlementNotFound, got %v", status)
	}
	if result != nil {
		t.Error("Expected nil result for not-found key")
	}

	cache.Complete(key, response, done)

	status, result, _ = cache.CheckAndMark(key)
	if status != SettlementCached {
		t.Errorf("Expected SettlementCached, got %v", status)
	}
	if result == nil || result.Transaction != "0x123" {
		t.Errorf("Expected cached result with transaction 0x123")
	}
}

func TestSettlementCache_CheckAndMark_InFlight(t *testing.T) {
	cache := NewSettlementCache(5 * time.Minute)
	key := "inflight-test"

	status1, _, done1 := cache.CheckAndMark(key)
	if status1 != SettlementNotFound {
		t.Errorf("Expected SettlementNotFound, got %v", status1)
	}

	status2, _, done2 := cache.CheckAndMark(key)
	if status2 != SettlementInFlight {
		t.Errorf("Expected SettlementInFlight, got %v", status2)
	}

	if done1 != done2 {
		t.Error("Expected same done channel for in-flight requests")
	}
}

func TestSettlementCache_Expiry(t *testing.T) {
	cache := NewSettlementCache(50 * time.Millisecond)
	key := "expiry-test"
	response := &SettleResponse{Success: true, Transaction: "0x999"}

	status, _, done := cache.CheckAndMark(key)
	if status != SettlementNotFound {
		t.Fatalf("Expected SettlementNotFound, got %v", status)
	}
	cache.Complete(key, response, done)

	status, result, _ := cache.CheckAndMark(key)
	if status != SettlementCached {
		t.Error("Expected SettlementCached immediately after complete")
	}
	if result == nil {
		t.Error("Expected non-nil result")
	}

	time.Sleep(60 * time.Millisecond)

	status, _, done = cache.CheckAndMark(key)
	if status != SettlementNotFound {
		t.Errorf("Expected SettlementNotFound after expiry, got %v", status)
	}
	cache.Fail(key, done)
}

func TestSettlementCache_Fail(t *testing.T) {
	cache := NewSettlementCache(5 * time.Minute)
	key := "fail-test"

	status, _, done := cache.CheckAndMark(key)
	if status != SettlementNotFound {
		t.Fatalf("Expected SettlementNotFound, got %v", status)
	}

	cache.Fail(key, done)

	status, _, done2 := cache.CheckAndMark(key)
	if status != SettlementNotFound {
		t.Errorf("Expected SettlementNotFound after fail (retry allowed), got %v", status)
	}
	cache.Fail(key, done2)
}

func TestSettlementCache_WaitForResult(t *testing.T) {
	cache := NewSettlementCache(5 * time.Minute)
	key := "wait-test"
	response := &SettleResponse{Success: true, Transaction: "0xwaited"}

	_, _, done := cache.CheckAndMark(key)

	var wg sync.WaitGroup
	results := make([]*SettleResponse, 3)
	for i := 0; i < 3; i++ {
		status, _, waiterDone := cache.CheckAndMark(key)
		if status != SettlementInFlight {
			t.Fatalf("Expected SettlementInFlight, got %v", status)
		}
		wg.Add(1)
		go func(i int, ch chan struct{}) {
			defer wg.Done()
			result, err := cache.WaitForResult(context.Background(), key, ch)
			if err != nil {
				t.Errorf("WaitForResult() error = %v", err)
				return
			}
			results[i] = result
		}(i, waiterDone)
	}

	cache.Complete(key, response, done)
	wg.Wait()

	for i, result := range results {
		if result == nil || result.Transaction != "0xwaited" {
			t.Errorf("waiter %d got %+v, want cached response", i, result)
		}
	}
}

func TestSettlementCache_WaitForResult_Cancelled(t *testing.T) {
	cache := NewSettlementCache(5 * time.Minute)
	key := "cancel-test"

	_, _, done := cache.CheckAndMark(key)
	_, _, waiterDone := cache.CheckAndMark(key)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := cache.WaitForResult(ctx, key, waiterDone); err == nil {
		t.Error("Expected context error from cancelled wait")
	}
	cache.Fail(key, done)
}
