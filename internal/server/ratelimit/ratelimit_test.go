package ratelimit

import (
	"sync"
	"testing"
	"time"
)

// fakeClock lets tests move time forward without sleeping.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(config *Config) (*Limiter, *fakeClock) {
	clock := newFakeClock()
	l := NewLimiter(config)
	l.now = clock.Now
	return l, clock
}

func TestTokenBucket_Take(t *testing.T) {
	now := time.Now()
	tb := newTokenBucket(5, 1.0, now)

	for i := 0; i < 5; i++ {
		if allowed, _, _ := tb.take(now); !allowed {
			t.Errorf("Expected request %d to be allowed", i+1)
		}
	}
	if allowed, remaining, _ := tb.take(now); allowed || remaining != 0 {
		t.Errorf("Expected 6th request to be denied with 0 remaining, got allowed=%v remaining=%d", allowed, remaining)
	}
}

func TestTokenBucket_Refill(t *testing.T) {
	now := time.Now()
	tb := newTokenBucket(2, 10.0, now)

	tb.take(now)
	tb.take(now)
	if allowed, _, _ := tb.take(now); allowed {
		t.Fatal("Expected empty bucket to deny")
	}

	// 150ms at 10 tokens/second refills one token
	later := now.Add(150 * time.Millisecond)
	if allowed, _, _ := tb.take(later); !allowed {
		t.Error("Expected request to be allowed after refill")
	}

	// Refill never exceeds capacity
	muchLater := later.Add(time.Hour)
	if _, remaining, _ := tb.take(muchLater); remaining != 1 {
		t.Errorf("Expected 1 remaining after capped refill, got %d", remaining)
	}
}

func TestTokenBucket_ResetTime(t *testing.T) {
	now := time.Now()
	tb := newTokenBucket(10, 1.0, now)

	_, remaining, reset := tb.take(now)
	if remaining != 9 {
		t.Errorf("Expected 9 remaining, got %d", remaining)
	}
	if want := now.Add(time.Second); !reset.Equal(want) {
		t.Errorf("Expected reset at %v, got %v", want, reset)
	}
}

func TestLimiter_Allow(t *testing.T) {
	limiter, _ := newTestLimiter(&Config{
		Enabled:       true,
		DefaultLimit:  10,
		DefaultWindow: time.Minute,
	})
	defer limiter.Stop()

	for i := 0; i < 10; i++ {
		allowed, info := limiter.Allow("127.0.0.1", "/bots", "GET")
		if !allowed {
			t.Errorf("Expected request %d to be allowed", i+1)
		}
		if info.Limit != 10 {
			t.Errorf("Expected limit 10, got %d", info.Limit)
		}
	}

	allowed, info := limiter.Allow("127.0.0.1", "/bots", "GET")
	if allowed {
		t.Error("Expected 11th request to be denied")
	}
	if info.RetryAfter <= 0 {
		t.Error("Expected a positive RetryAfter when denied")
	}

	// Other clients have their own buckets
	if allowed, _ := limiter.Allow("10.0.0.2", "/bots", "GET"); !allowed {
		t.Error("Expected a different client to be allowed")
	}
}

func TestLimiter_Whitelist(t *testing.T) {
	limiter, _ := newTestLimiter(&Config{
		Enabled:       true,
		DefaultLimit:  1,
		DefaultWindow: time.Minute,
		Whitelist:     map[string]bool{"127.0.0.1": true},
	})
	defer limiter.Stop()

	for i := 0; i < 100; i++ {
		if allowed, _ := limiter.Allow("127.0.0.1", "/bots", "GET"); !allowed {
			t.Fatalf("Expected whitelisted request %d to be allowed", i+1)
		}
	}
}

func TestLimiter_Blacklist(t *testing.T) {
	limiter, _ := newTestLimiter(&Config{
		Enabled:       true,
		DefaultLimit:  1000,
		DefaultWindow: time.Minute,
		Blacklist:     map[string]bool{"192.168.1.1": true},
	})
	defer limiter.Stop()

	if allowed, _ := limiter.Allow("192.168.1.1", "/health", "GET"); allowed {
		t.Error("Expected blacklisted client to be denied")
	}
}

func TestLimiter_Disabled(t *testing.T) {
	limiter, _ := newTestLimiter(&Config{Enabled: false})
	defer limiter.Stop()

	for i := 0; i < 100; i++ {
		allowed, info := limiter.Allow("127.0.0.1", "/users/x/bot/start", "POST")
		if !allowed {
			t.Fatalf("Expected request %d to be allowed when disabled", i+1)
		}
		if info.Limit != 0 {
			t.Errorf("Expected limit 0 when disabled, got %d", info.Limit)
		}
	}
}

func TestLimiter_EndpointPatternSharesBucket(t *testing.T) {
	limiter, _ := newTestLimiter(&Config{
		Enabled:         true,
		DefaultLimit:    1000,
		DefaultWindow:   time.Minute,
		EndpointConfigs: DefaultEndpointConfigs(),
	})
	defer limiter.Stop()

	// Burst of 3 starts, spread across different users
	for _, user := range []string{"a", "b", "c"} {
		allowed, info := limiter.Allow("127.0.0.1", "/users/"+user+"/bot/start", "POST")
		if !allowed {
			t.Errorf("Expected start for %s to be allowed", user)
		}
		if info.Limit != 10 {
			t.Errorf("Expected limit 10, got %d", info.Limit)
		}
	}
	if allowed, _ := limiter.Allow("127.0.0.1", "/users/d/bot/start", "POST"); allowed {
		t.Error("Expected 4th start to be denied")
	}

	// Reads are unaffected
	allowed, info := limiter.Allow("127.0.0.1", "/users/d/bot/status", "GET")
	if !allowed || info.Limit != 1000 {
		t.Errorf("Expected status read to use the default limit, got allowed=%v limit=%d", allowed, info.Limit)
	}
}

func TestLimiter_RefillOverTime(t *testing.T) {
	limiter, clock := newTestLimiter(&Config{
		Enabled:       true,
		DefaultLimit:  1000,
		DefaultWindow: time.Minute,
		EndpointConfigs: []EndpointConfig{
			{Path: "/bots/stop-all", Method: "POST", Limit: 60, Window: time.Hour, Burst: 1},
		},
	})
	defer limiter.Stop()

	if allowed, _ := limiter.Allow("c", "/bots/stop-all", "POST"); !allowed {
		t.Fatal("Expected first request to be allowed")
	}
	allowed, info := limiter.Allow("c", "/bots/stop-all", "POST")
	if allowed {
		t.Fatal("Expected second request to be denied")
	}
	if info.RetryAfter < 59*time.Second || info.RetryAfter > 61*time.Second {
		t.Errorf("Expected RetryAfter of about one minute, got %v", info.RetryAfter)
	}

	clock.Advance(61 * time.Second)
	if allowed, _ := limiter.Allow("c", "/bots/stop-all", "POST"); !allowed {
		t.Error("Expected request to be allowed after one refill interval")
	}
}

func TestLimiter_HealthUnlimited(t *testing.T) {
	limiter, _ := newTestLimiter(&Config{
		Enabled:       true,
		DefaultLimit:  1,
		DefaultWindow: time.Hour,
	})
	defer limiter.Stop()

	for i := 0; i < 50; i++ {
		if allowed, _ := limiter.Allow("127.0.0.1", "/health", "GET"); !allowed {
			t.Fatalf("Expected health check %d to be allowed", i+1)
		}
	}
}

func TestLimiter_Concurrent(t *testing.T) {
	limiter, _ := newTestLimiter(&Config{
		Enabled:       true,
		DefaultLimit:  100,
		DefaultWindow: time.Minute,
	})
	defer limiter.Stop()

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowedCount := 0

	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if allowed, _ := limiter.Allow("127.0.0.1", "/bots", "GET"); allowed {
				mu.Lock()
				allowedCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// The clock is frozen, so exactly the burst gets through
	if allowedCount != 100 {
		t.Errorf("Expected 100 allowed requests, got %d", allowedCount)
	}
}

func TestLimiter_CleanupDropsIdleBuckets(t *testing.T) {
	limiter, clock := newTestLimiter(&Config{
		Enabled:       true,
		DefaultLimit:  10,
		DefaultWindow: time.Minute,
		IdleTTL:       10 * time.Minute,
	})
	defer limiter.Stop()

	limiter.Allow("old", "/bots", "GET")
	clock.Advance(11 * time.Minute)
	limiter.Allow("fresh", "/bots", "GET")

	limiter.cleanupBuckets()

	limiter.mu.RLock()
	defer limiter.mu.RUnlock()
	if len(limiter.buckets) != 1 {
		t.Fatalf("Expected 1 bucket after cleanup, got %d", len(limiter.buckets))
	}
	if _, ok := limiter.buckets["fresh:GET:/bots"]; !ok {
		t.Error("Expected the recently used bucket to survive cleanup")
	}
}

func TestLimiter_StopTwice(t *testing.T) {
	limiter := NewLimiter(nil)
	limiter.Stop()
	limiter.Stop()
}

func TestMatchEndpoint(t *testing.T) {
	configs := []EndpointConfig{
		{Path: "/users/*/bot/start", Method: "POST", Limit: 1},
		{Path: "/bots/stop-all", Method: "POST", Limit: 2},
		{Path: "/monitoring/", Method: "GET", Limit: 3},
	}

	tests := []struct {
		path, method string
		wantLimit    int
		wantNil      bool
	}{
		{"/users/123/bot/start", "POST", 1, false},
		{"/users/123/bot/start", "GET", 0, true},
		{"/users//bot/start", "POST", 0, true},
		{"/users/123/bot/start/now", "POST", 0, true},
		{"/bots/stop-all", "POST", 2, false},
		{"/monitoring/metrics", "GET", 3, false},
		{"/monitoring", "GET", 0, true},
		{"/health", "GET", 0, false},
	}

	for _, tt := range tests {
		got := MatchEndpoint(tt.path, tt.method, configs)
		if tt.wantNil {
			if got != nil {
				t.Errorf("%s %s: expected no match, got %+v", tt.method, tt.path, got)
			}
			continue
		}
		if got == nil {
			t.Errorf("%s %s: expected a match", tt.method, tt.path)
			continue
		}
		if got.Limit != tt.wantLimit {
			t.Errorf("%s %s: expected limit %d, got %d", tt.method, tt.path, tt.wantLimit, got.Limit)
		}
	}
}

func TestLoadConfig_FromEnv(t *testing.T) {
	t.Setenv("RATE_LIMIT_ENABLED", "true")
	t.Setenv("RATE_LIMIT_DEFAULT_LIMIT", "42")
	t.Setenv("RATE_LIMIT_WHITELIST", "10.0.0.1, 10.0.0.2,")

	config := LoadConfig()
	if config.DefaultLimit != 42 {
		t.Errorf("Expected default limit 42, got %d", config.DefaultLimit)
	}
	if len(config.Whitelist) != 2 || !config.Whitelist["10.0.0.2"] {
		t.Errorf("Unexpected whitelist: %v", config.Whitelist)
	}
	if len(config.EndpointConfigs) == 0 {
		t.Error("Expected default endpoint configs")
	}

	t.Setenv("RATE_LIMIT_ENABLED", "false")
	if LoadConfig().Enabled {
		t.Error("Expected limiter to be disabled")
	}
}
