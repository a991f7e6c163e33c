package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"naira-wallet-bot-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const cacheKey = "rates:simple_price"

// coin ids on the price feed
var coinIds = map[string]models.Asset{
	"bitcoin":  models.AssetBTC,
	"ethereum": models.AssetETH,
	"solana":   models.AssetSOL,
	"tether":   models.AssetUSDT,
}

// Provider serves current quotes from the CoinGecko simple price API. It
// never fails: any error degrades to the static fallback table.
type Provider struct {
	client  *http.Client
	baseURL string
	timeout time.Duration
	ttl     time.Duration
	cache   Cache

	group singleflight.Group

	mu     sync.RWMutex
	last   *models.Rates
	lastAt time.Time

	now func() time.Time
}

// NewProvider builds a provider. client and cache may be nil.
func NewProvider(cfg models.RatesConfig, client *http.Client, cache Cache) *Provider {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Provider{
		client:  client,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: cfg.Timeout,
		ttl:     cfg.CacheTTL,
		cache:   cache,
		now:     time.Now,
	}
}

// GetRates returns live quotes when available, otherwise the fallback.
func (p *Provider) GetRates(ctx context.Context) models.Rates {
	if r, ok := p.memo(); ok {
		return r
	}
	if r, ok := p.fromCache(ctx); ok {
		p.remember(r)
		return r
	}

	v, err, _ := p.group.Do(cacheKey, func() (interface{}, error) {
		return p.fetch(context.WithoutCancel(ctx))
	})
	if err != nil {
		zap.L().Warn("Failed to fetch rates, using fallback", zap.Error(err))
		return Fallback(p.now())
	}

	r := v.(models.Rates)
	p.remember(r)
	p.toCache(ctx, r)
	return r
}

func (p *Provider) memo() (models.Rates, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.last == nil || p.ttl <= 0 || p.now().Sub(p.lastAt) > p.ttl {
		return models.Rates{}, false
	}
	return *p.last, true
}

func (p *Provider) remember(r models.Rates) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last = &r
	p.lastAt = p.now()
}

func (p *Provider) fromCache(ctx context.Context) (models.Rates, bool) {
	if p.cache == nil {
		return models.Rates{}, false
	}
	data, err := p.cache.Get(ctx, cacheKey)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			zap.L().Debug("Rate cache read failed", zap.Error(err))
		}
		return models.Rates{}, false
	}
	var r models.Rates
	if err := json.Unmarshal(data, &r); err != nil {
		zap.L().Warn("Discarding undecodable cached rates", zap.Error(err))
		return models.Rates{}, false
	}
	return r, true
}

func (p *Provider) toCache(ctx context.Context, r models.Rates) {
	if p.cache == nil || p.ttl <= 0 {
		return
	}
	data, err := json.Marshal(r)
	if err != nil {
		return
	}
	if err := p.cache.Set(ctx, cacheKey, data, p.ttl); err != nil {
		zap.L().Debug("Rate cache write failed", zap.Error(err))
	}
}

type simplePrice map[string]map[string]decimal.Decimal

func (p *Provider) fetch(ctx context.Context) (models.Rates, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	url := p.baseURL + "/simple/price?ids=bitcoin,ethereum,solana,tether&vs_currencies=ngn,usd"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.Rates{}, fmt.Errorf("unable to build rates request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return models.Rates{}, fmt.Errorf("rates request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return models.Rates{}, fmt.Errorf("rates request returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload simplePrice
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return models.Rates{}, fmt.Errorf("unable to decode rates: %w", err)
	}

	r := models.Rates{
		Quotes:    make(map[models.Asset]models.Quote, len(coinIds)),
		USDNGN:    fallbackFX,
		FetchedAt: p.now(),
	}
	for id, asset := range coinIds {
		prices, ok := payload[id]
		if !ok {
			return models.Rates{}, fmt.Errorf("rates response missing %s", id)
		}
		ngn, hasNgn := prices["ngn"]
		usd, hasUsd := prices["usd"]
		if !hasNgn || !hasUsd || !ngn.IsPositive() || !usd.IsPositive() {
			return models.Rates{}, fmt.Errorf("rates response has no usable quote for %s", id)
		}
		r.Quotes[asset] = models.Quote{NGN: ngn, USD: usd}
	}
	return r, nil
}
