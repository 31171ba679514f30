package datasource

import (
	"math"
	"math/rand"
	"time"

	"github.com/quantframe/quantframe/internal/types"
)

// BarGenerator produces synthetic OHLCV series for tests and benchmarks.
// A fixed seed gives a reproducible series.
type BarGenerator struct {
	rng *rand.Rand
}

func NewBarGenerator(seed int64) *BarGenerator {
	return &BarGenerator{
		rng: rand.New(rand.NewSource(seed)),
	}
}

// GeneratorConfig controls the shape of the generated series.
type GeneratorConfig struct {
	// StartDate is the trade date of the first bar
	StartDate time.Time
	// Interval is the duration between bars
	Interval time.Duration
	// Count is the number of bars to generate
	Count int
	// InitialPrice is the first bar's open
	InitialPrice float64
	// Volatility is the per-bar price movement, e.g. 0.01 for 1%
	Volatility float64
	// Trend is the total drift spread across the whole series
	Trend float64
	// VolumeBase is the average volume per bar
	VolumeBase float64
	// VolumeVariance is the relative volume spread, 0.0 to 1.0
	VolumeVariance float64
}

// DefaultGeneratorConfig returns a one-year daily series with mild
// volatility and no trend.
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		StartDate:      time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		Interval:       24 * time.Hour,
		Count:          252,
		InitialPrice:   100.0,
		Volatility:     0.01,
		Trend:          0.0,
		VolumeBase:     10000,
		VolumeVariance: 0.3,
	}
}

// Generate produces a bar series following geometric Brownian motion.
func (g *BarGenerator) Generate(config GeneratorConfig) []types.Bar {
	bars := make([]types.Bar, config.Count)
	price := config.InitialPrice
	date := config.StartDate

	for i := 0; i < config.Count; i++ {
		open := price

		// Box-Muller transform for a normally distributed step
		u1 := g.rng.Float64()
		u2 := g.rng.Float64()
		z := math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)

		drift := config.Trend / float64(config.Count)

		close := open * (1 + config.Volatility*z + drift)
		if close <= 0 {
			close = open * 0.99
		}

		highExtension := math.Abs(g.rng.Float64() * config.Volatility * open * 0.5)
		lowExtension := math.Abs(g.rng.Float64() * config.Volatility * open * 0.5)

		high := math.Max(open, close) + highExtension

		low := math.Min(open, close) - lowExtension
		if low <= 0 {
			low = math.Min(open, close) * 0.99
		}

		volumeVariation := 1.0 + (g.rng.Float64()*2-1)*config.VolumeVariance

		volume := config.VolumeBase * volumeVariation
		if volume < 0 {
			volume = config.VolumeBase * 0.1
		}

		bars[i] = types.Bar{
			TradeDate: date,
			Open:      roundToDecimals(open, 4),
			High:      roundToDecimals(high, 4),
			Low:       roundToDecimals(low, 4),
			Close:     roundToDecimals(close, 4),
			Volume:    roundToDecimals(volume, 2),
		}

		price = close
		date = date.Add(config.Interval)
	}

	return bars
}

func roundToDecimals(val float64, decimals int) float64 {
	factor := math.Pow(10, float64(decimals))

	return math.Round(val*factor) / factor
}
