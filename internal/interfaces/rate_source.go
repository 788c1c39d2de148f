package interfaces

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/zad/exchange-api/internal/models"
)

// RateSource is the external quote provider. It returns every rate quoted
// against the base currency.
type RateSource interface {
	FetchRates(ctx context.Context, base models.Currency) (map[models.Currency]decimal.Decimal, error)
}

// RateResolver resolves one currency pair, consulting a cache before the
// external source.
type RateResolver interface {
	GetRate(ctx context.Context, from, to models.Currency) (decimal.Decimal, error)
}
