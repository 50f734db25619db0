package pricing

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLineTotal(t *testing.T) {
	cfg := Default()
	tests := []struct {
		express string
		want    string
	}{
		{"", "3000"},
		{"standard", "3000"},
		{"next_day", "4500"},
		{"same_day", "6000"},
	}
	for _, tc := range tests {
		t.Run(tc.express, func(t *testing.T) {
			total, tier, err := cfg.LineTotal(decimal.NewFromInt(1500), decimal.NewFromInt(2), tc.express)
			require.NoError(t, err)
			assert.True(t, total.Equal(decimal.RequireFromString(tc.want)), "got %s", total)
			assert.NotEmpty(t, tier.Name)
		})
	}
}

func TestLineTotal_RoundsToCents(t *testing.T) {
	total, _, err := Default().LineTotal(decimal.RequireFromString("333.333"), decimal.NewFromInt(1), "standard")
	require.NoError(t, err)
	assert.Equal(t, "333.33", total.StringFixed(2))
}

func TestLineTotal_UnknownTier(t *testing.T) {
	_, _, err := Default().LineTotal(decimal.NewFromInt(1), decimal.NewFromInt(1), "instant")
	assert.ErrorIs(t, err, ErrUnknownExpress)
}

func TestEstimatedCollection(t *testing.T) {
	tier, err := Default().ExpressTier("same_day")
	require.NoError(t, err)

	from := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	assert.Equal(t, from.Add(8*time.Hour), tier.EstimatedCollection(from))
}

func TestLoyaltyTier(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "bronze", cfg.LoyaltyTier(0).Name)
	assert.Equal(t, "bronze", cfg.LoyaltyTier(499).Name)
	assert.Equal(t, "silver", cfg.LoyaltyTier(500).Name)
	assert.Equal(t, "gold", cfg.LoyaltyTier(2500).Name)
}

func TestPointsFor(t *testing.T) {
	cfg := Default()
	assert.Equal(t, int64(0), cfg.PointsFor(decimal.NewFromInt(999), 0))
	assert.Equal(t, int64(3), cfg.PointsFor(decimal.NewFromInt(3000), 0))
	// silver: floor(3 × 1.25)
	assert.Equal(t, int64(3), cfg.PointsFor(decimal.NewFromInt(3000), 600))
	assert.Equal(t, int64(5), cfg.PointsFor(decimal.NewFromInt(4000), 600))
	assert.Equal(t, int64(15), cfg.PointsFor(decimal.NewFromInt(10500), 2000))
	assert.Equal(t, int64(0), cfg.PointsFor(decimal.Zero, 0))
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pricing.yaml")
	content := `
currency: TSh
default_express: standard
points_per_amount: 500
express:
  - name: standard
    multiplier: 1
    turnaround_hours: 48
  - name: rush
    multiplier: 1.75
    turnaround_hours: 6
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Express, 2)
	assert.Equal(t, float64(500), cfg.PointsPerAmount)
	assert.Len(t, cfg.Loyalty, 3, "loyalty keeps defaults when omitted")

	total, tier, err := cfg.LineTotal(decimal.NewFromInt(1000), decimal.NewFromInt(1), "rush")
	require.NoError(t, err)
	assert.Equal(t, 6, tier.TurnaroundHours)
	assert.True(t, total.Equal(decimal.NewFromInt(1750)), "got %s", total)
}

func TestLoadFile_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFile_RejectsUndefinedDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pricing.yaml")
	content := "default_express: same_week\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	_, err := LoadFile(path)
	assert.Error(t, err)
}
