package tier

import "context"

// Source resolves the seller-favorable credit rate applied on top of a sale,
// derived from historical sales volume. The ledger applies the rate without
// recomputation.
type Source interface {
	CreditRate(ctx context.Context, seller string) (float64, error)
}

// VolumeReader reports a seller's lifetime sales volume in cents.
type VolumeReader interface {
	SalesVolumeCents(ctx context.Context, seller string) (int64, error)
}

// Threshold maps a minimum sales volume to a credit rate.
type Threshold struct {
	MinVolumeCents int64
	Rate           float64
}

// StaticSource derives tier rates from volume thresholds. Thresholds must be
// sorted ascending by volume; the highest one reached wins.
type StaticSource struct {
	volumes    VolumeReader
	thresholds []Threshold
}

// DefaultThresholds is the production tier table: 5% from $1,000 of sales,
// 10% from $10,000.
func DefaultThresholds() []Threshold {
	return []Threshold{
		{MinVolumeCents: 100_000, Rate: 0.05},
		{MinVolumeCents: 1_000_000, Rate: 0.10},
	}
}

// NewStaticSource builds a tier source over a sales-volume reader. A nil
// reader yields a zero rate for every seller.
func NewStaticSource(volumes VolumeReader, thresholds []Threshold) *StaticSource {
	return &StaticSource{volumes: volumes, thresholds: thresholds}
}

// CreditRate returns the rate for the highest threshold the seller's volume
// reaches, zero if none.
func (s *StaticSource) CreditRate(ctx context.Context, seller string) (float64, error) {
	if s.volumes == nil {
		return 0, nil
	}
	volume, err := s.volumes.SalesVolumeCents(ctx, seller)
	if err != nil {
		return 0, err
	}
	rate := 0.0
	for _, t := range s.thresholds {
		if volume >= t.MinVolumeCents {
			rate = t.Rate
		}
	}
	return rate, nil
}
