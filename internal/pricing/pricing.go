// Package pricing turns catalog prices into line totals and computes loyalty
// accrual. The tables are configurable through a YAML file.
package pricing

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"laundrypos/backend/internal/domain"
)

var ErrUnknownExpress = errors.New("unknown express tier")

// ExpressTier is a turnaround option with its price multiplier.
type ExpressTier struct {
	Name            string  `yaml:"name" json:"name"`
	Multiplier      float64 `yaml:"multiplier" json:"multiplier"`
	TurnaroundHours int     `yaml:"turnaround_hours" json:"turnaround_hours"`
}

// LoyaltyTier applies from MinPoints lifetime points upwards.
type LoyaltyTier struct {
	Name       string  `yaml:"name" json:"name"`
	MinPoints  int64   `yaml:"min_points" json:"min_points"`
	Multiplier float64 `yaml:"multiplier" json:"multiplier"`
}

type Config struct {
	Currency        string        `yaml:"currency" json:"currency"`
	DefaultExpress  string        `yaml:"default_express" json:"default_express"`
	PointsPerAmount float64       `yaml:"points_per_amount" json:"points_per_amount"`
	Express         []ExpressTier `yaml:"express" json:"express"`
	Loyalty         []LoyaltyTier `yaml:"loyalty" json:"loyalty"`
}

func Default() Config {
	return Config{
		Currency:        "TSh",
		DefaultExpress:  "standard",
		PointsPerAmount: 1000,
		Express: []ExpressTier{
			{Name: "standard", Multiplier: 1.0, TurnaroundHours: 72},
			{Name: "next_day", Multiplier: 1.5, TurnaroundHours: 24},
			{Name: "same_day", Multiplier: 2.0, TurnaroundHours: 8},
		},
		Loyalty: []LoyaltyTier{
			{Name: "bronze", MinPoints: 0, Multiplier: 1.0},
			{Name: "silver", MinPoints: 500, Multiplier: 1.25},
			{Name: "gold", MinPoints: 2000, Multiplier: 1.5},
		},
	}
}

// LoadFile reads a YAML pricing file. Keys missing from the file keep their
// default values. An empty path returns the defaults.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read pricing config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse pricing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if len(c.Express) == 0 {
		return errors.New("pricing: at least one express tier is required")
	}
	seen := make(map[string]bool, len(c.Express))
	for _, tier := range c.Express {
		name := strings.TrimSpace(tier.Name)
		if name == "" {
			return errors.New("pricing: express tier name is required")
		}
		if seen[name] {
			return fmt.Errorf("pricing: duplicate express tier %q", name)
		}
		seen[name] = true
		if tier.Multiplier < 1 {
			return fmt.Errorf("pricing: express tier %q multiplier must be at least 1", name)
		}
		if tier.TurnaroundHours <= 0 {
			return fmt.Errorf("pricing: express tier %q turnaround must be positive", name)
		}
	}
	if !seen[c.DefaultExpress] {
		return fmt.Errorf("pricing: default express tier %q is not defined", c.DefaultExpress)
	}
	if c.PointsPerAmount <= 0 {
		return errors.New("pricing: points_per_amount must be positive")
	}
	if len(c.Loyalty) == 0 {
		return errors.New("pricing: at least one loyalty tier is required")
	}
	hasBase := false
	for _, tier := range c.Loyalty {
		if tier.MinPoints == 0 {
			hasBase = true
		}
		if tier.MinPoints < 0 || tier.Multiplier <= 0 {
			return fmt.Errorf("pricing: loyalty tier %q is invalid", tier.Name)
		}
	}
	if !hasBase {
		return errors.New("pricing: a loyalty tier starting at 0 points is required")
	}
	return nil
}

// ExpressTier resolves name, falling back to the default tier when empty.
func (c Config) ExpressTier(name string) (ExpressTier, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = c.DefaultExpress
	}
	for _, tier := range c.Express {
		if tier.Name == name {
			return tier, nil
		}
	}
	return ExpressTier{}, fmt.Errorf("%w: %q", ErrUnknownExpress, name)
}

// LineTotal is unit price × quantity × express multiplier, rounded to money.
func (c Config) LineTotal(unitPrice decimal.Decimal, quantity decimal.Decimal, express string) (decimal.Decimal, ExpressTier, error) {
	tier, err := c.ExpressTier(express)
	if err != nil {
		return decimal.Zero, ExpressTier{}, err
	}
	total := unitPrice.Mul(quantity).Mul(decimal.NewFromFloat(tier.Multiplier))
	return domain.RoundMoney(total), tier, nil
}

// EstimatedCollection is the time the order is promised for.
func (t ExpressTier) EstimatedCollection(from time.Time) time.Time {
	return from.Add(time.Duration(t.TurnaroundHours) * time.Hour).UTC()
}

// LoyaltyTier returns the highest tier reached with points.
func (c Config) LoyaltyTier(points int64) LoyaltyTier {
	tiers := append([]LoyaltyTier(nil), c.Loyalty...)
	sort.SliceStable(tiers, func(i, j int) bool { return tiers[i].MinPoints < tiers[j].MinPoints })
	current := LoyaltyTier{Name: "bronze", Multiplier: 1}
	for _, tier := range tiers {
		if points >= tier.MinPoints {
			current = tier
		}
	}
	return current
}

// PointsFor is the number of points earned on collecting a receipt of
// receiptTotal, given the customer's current lifetime points.
func (c Config) PointsFor(receiptTotal decimal.Decimal, currentPoints int64) int64 {
	if !receiptTotal.IsPositive() {
		return 0
	}
	base := receiptTotal.Div(decimal.NewFromFloat(c.PointsPerAmount)).Floor()
	tier := c.LoyaltyTier(currentPoints)
	return base.Mul(decimal.NewFromFloat(tier.Multiplier)).Floor().IntPart()
}
