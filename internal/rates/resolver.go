package rates

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zad/exchange-api/internal/cache"
	"github.com/zad/exchange-api/internal/interfaces"
	"github.com/zad/exchange-api/internal/models"
)

// ErrRateUnavailable means the external source has no quote for the pair.
var ErrRateUnavailable = errors.New("exchange rate not available")

const (
	keyPrefix = "rate:"
	cacheTTL  = 30 * time.Minute
)

// Resolver answers currency-pair rate lookups, consulting a TTL-bounded
// cache before the external source. The cache is an accelerator only:
// correctness depends on the TTL bounding staleness, not on cache
// consistency.
type Resolver struct {
	store  cache.Store
	source interfaces.RateSource
	log    *slog.Logger
}

func NewResolver(store cache.Store, source interfaces.RateSource, log *slog.Logger) *Resolver {
	return &Resolver{store: store, source: source, log: log}
}

// GetRate resolves the from→to rate. An identity pair is always exactly 1
// and touches neither cache nor network.
func (r *Resolver) GetRate(ctx context.Context, from, to models.Currency) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}

	key := cacheKey(from, to)
	if cached, err := r.store.Get(ctx, key); err == nil {
		rate, perr := decimal.NewFromString(cached)
		if perr == nil {
			r.log.Debug("rate cache hit", "from", from, "to", to)
			return rate, nil
		}
		r.log.Warn("discarding unparseable cached rate", "key", key, "value", cached)
	}

	r.log.Info("fetching rate from external source", "from", from, "to", to)
	quotes, err := r.source.FetchRates(ctx, from)
	if err != nil {
		return decimal.Zero, fmt.Errorf("fetch rates for %s: %w", from, err)
	}

	rate, ok := quotes[to]
	if !ok {
		return decimal.Zero, fmt.Errorf("rate %s->%s: %w", from, to, ErrRateUnavailable)
	}

	if err := r.store.Set(ctx, key, rate.String(), cacheTTL); err != nil {
		r.log.Warn("rate cache write failed", "key", key, "error", err)
	}
	return rate, nil
}

func cacheKey(from, to models.Currency) string {
	return keyPrefix + string(from) + ":" + string(to)
}

var _ interfaces.RateResolver = (*Resolver)(nil)
