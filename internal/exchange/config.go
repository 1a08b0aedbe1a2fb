package exchange

import (
	"fmt"

	"github.com/xtrntr/otcexchange/internal/models"
)

const (
	StrategyScan   = "scan"
	StrategyBucket = "bucket"
)

// Config holds the matching knobs whose historical meaning was inconsistent
type Config struct {
	// TerminalStatus is assigned when a settlement drives remaining to zero
	TerminalStatus models.Status
	// ClearProcessedOnPartial unsets processed on an order left partially
	// filled, so it needs a fresh confirmation before the next batch run
	ClearProcessedOnPartial bool
	// Strategy selects how the batch matcher finds equal-price sells
	Strategy string
}

// DefaultConfig closes orders with status 3 and clears processed on partial fills
func DefaultConfig() Config {
	return Config{
		TerminalStatus:          models.StatusClosed,
		ClearProcessedOnPartial: true,
		Strategy:                StrategyScan,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.TerminalStatus != models.StatusMatched && c.TerminalStatus != models.StatusClosed {
		return fmt.Errorf("terminal status must be 2 or 3, got %d", c.TerminalStatus)
	}
	if c.Strategy != StrategyScan && c.Strategy != StrategyBucket {
		return fmt.Errorf("unknown matching strategy %q", c.Strategy)
	}
	return nil
}
