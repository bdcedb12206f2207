package deposit

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RateSource quotes the USD price per unit of a crypto currency.
type RateSource interface {
	QuoteUSD(ctx context.Context, currency string) (decimal.Decimal, error)
}

// AddressSource generates a receiving wallet address for a deposit.
type AddressSource interface {
	Address(ctx context.Context, currency string) (string, error)
}

// StaticRateSource serves a fixed rate table. It stands in for the external
// pricing feed in tests and local development.
type StaticRateSource map[string]decimal.Decimal

// DefaultRates returns the static quote table used when no feed is wired.
func DefaultRates() StaticRateSource {
	return StaticRateSource{
		"BTC":  decimal.NewFromInt(64_000),
		"ETH":  decimal.NewFromInt(3_100),
		"LTC":  decimal.NewFromInt(85),
		"USDT": decimal.NewFromInt(1),
	}
}

// QuoteUSD returns the table rate for the currency.
func (s StaticRateSource) QuoteUSD(_ context.Context, currency string) (decimal.Decimal, error) {
	rate, ok := s[strings.ToUpper(currency)]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("unsupported currency %q", currency)
	}
	return rate, nil
}

// StaticAddressSource fabricates per-currency receiving addresses.
type StaticAddressSource struct{}

// Address returns a synthetic address tagged with the currency.
func (StaticAddressSource) Address(_ context.Context, currency string) (string, error) {
	return strings.ToLower(currency) + ":" + strings.ReplaceAll(uuid.NewString(), "-", ""), nil
}
