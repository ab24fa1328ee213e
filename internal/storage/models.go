package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceChange is one applied price update. Rows are append-only.
type PriceChange struct {
	ID              int64
	CycleID         string
	ProductID       string
	DisplayName     string
	OldPrice        decimal.Decimal
	NewPrice        decimal.Decimal
	CompetitorPrice decimal.Decimal
	Delta           decimal.Decimal
	Reason          string
	CreatedAt       time.Time
}

// BudgetRecord is the persisted daily change counter.
type BudgetRecord struct {
	Date        string
	ChangesMade int
	UpdatedAt   time.Time
}

// ChangeStats aggregates price changes over a period.
type ChangeStats struct {
	Total       int
	Increases   int
	Decreases   int
	TotalChange decimal.Decimal
	AvgChange   decimal.Decimal
}

// Summarize computes statistics over a set of price changes.
func Summarize(changes []PriceChange) ChangeStats {
	stats := ChangeStats{TotalChange: decimal.Zero, AvgChange: decimal.Zero}
	for _, c := range changes {
		stats.Total++
		switch c.Delta.Sign() {
		case 1:
			stats.Increases++
		case -1:
			stats.Decreases++
		}
		stats.TotalChange = stats.TotalChange.Add(c.Delta)
	}
	if stats.Total > 0 {
		stats.AvgChange = stats.TotalChange.Div(decimal.NewFromInt(int64(stats.Total))).Round(2)
	}
	return stats
}
