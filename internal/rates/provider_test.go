package rates

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"naira-wallet-bot-go/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePayload = `{
  "bitcoin": {"ngn": 98000000, "usd": 64000},
  "ethereum": {"ngn": 5100000, "usd": 3300.5},
  "solana": {"ngn": 230000, "usd": 150},
  "tether": {"ngn": 1530, "usd": 1}
}`

type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *mapCache) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	return v, nil
}

func (m *mapCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = map[string][]byte{}
	}
	m.data[key] = value
	return nil
}

func newServer(t *testing.T, status int, body string, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		assert.Equal(t, "/simple/price", r.URL.Path)
		assert.Equal(t, "ngn,usd", r.URL.Query().Get("vs_currencies"))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGetRates_Live(t *testing.T) {
	var hits int32
	srv := newServer(t, http.StatusOK, samplePayload, &hits)
	p := NewProvider(models.RatesConfig{BaseURL: srv.URL, Timeout: time.Second, CacheTTL: time.Minute}, nil, nil)

	r := p.GetRates(context.Background())
	assert.False(t, r.Fallback)
	btc, ok := r.Quote(models.AssetBTC)
	require.True(t, ok)
	assert.True(t, btc.NGN.Equal(decimal.NewFromInt(98000000)))
	eth, _ := r.Quote(models.AssetETH)
	assert.True(t, eth.USD.Equal(decimal.RequireFromString("3300.5")))

	// served from memory within the ttl
	p.GetRates(context.Background())
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestGetRates_FallbackOnError(t *testing.T) {
	var hits int32
	srv := newServer(t, http.StatusTooManyRequests, `{"status":{"error_code":429}}`, &hits)
	p := NewProvider(models.RatesConfig{BaseURL: srv.URL, Timeout: time.Second, CacheTTL: time.Minute}, nil, nil)

	r := p.GetRates(context.Background())
	assert.True(t, r.Fallback)
	btc, _ := r.Quote(models.AssetBTC)
	assert.True(t, btc.NGN.Equal(decimal.NewFromInt(50000000)))
	assert.True(t, r.USDNGN.Sell.Equal(decimal.NewFromInt(1500)))

	// failures are not memoized
	p.GetRates(context.Background())
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestGetRates_FallbackOnIncompletePayload(t *testing.T) {
	var hits int32
	srv := newServer(t, http.StatusOK, `{"bitcoin": {"ngn": 1, "usd": 1}}`, &hits)
	p := NewProvider(models.RatesConfig{BaseURL: srv.URL, Timeout: time.Second}, nil, nil)
	assert.True(t, p.GetRates(context.Background()).Fallback)
}

func TestGetRates_FallbackOnUnreachable(t *testing.T) {
	p := NewProvider(models.RatesConfig{BaseURL: "http://127.0.0.1:1", Timeout: 200 * time.Millisecond}, nil, nil)
	assert.True(t, p.GetRates(context.Background()).Fallback)
}

func TestGetRates_SharedCache(t *testing.T) {
	var hits int32
	srv := newServer(t, http.StatusOK, samplePayload, &hits)
	cache := &mapCache{}
	cfg := models.RatesConfig{BaseURL: srv.URL, Timeout: time.Second, CacheTTL: time.Minute}

	first := NewProvider(cfg, nil, cache)
	first.GetRates(context.Background())

	second := NewProvider(cfg, nil, cache)
	r := second.GetRates(context.Background())
	assert.False(t, r.Fallback)
	sol, _ := r.Quote(models.AssetSOL)
	assert.True(t, sol.USD.Equal(decimal.NewFromInt(150)))
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestGetRates_Coalesces(t *testing.T) {
	var hits int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		<-release
		_, _ = w.Write([]byte(samplePayload))
	}))
	defer srv.Close()
	p := NewProvider(models.RatesConfig{BaseURL: srv.URL, Timeout: 5 * time.Second, CacheTTL: time.Minute}, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.GetRates(context.Background())
		}()
	}
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}
