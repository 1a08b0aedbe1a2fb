package stats

import (
	"github.com/shopspring/decimal"
	"github.com/xtrntr/otcexchange/internal/models"
)

// Aggregate builds the OHLC summary of trades, which must be ordered by
// creation time. The average is weighted by amount. When btcRate is set the
// BTC-denominated prices are filled in as KRW price / rate.
// An empty day yields all zeroes.
func Aggregate(date string, trades []models.Trade, btcRate *decimal.Decimal) models.DailyStat {
	stat := models.DailyStat{Date: date}
	var btc btcPrices
	for i, t := range trades {
		if i == 0 {
			stat.OpenPrice, stat.HighPrice, stat.LowPrice = t.Price, t.Price, t.Price
		}
		stat.TotalAmount = stat.TotalAmount.Add(t.Amount)
		stat.TotalPrice = stat.TotalPrice.Add(t.Price.Mul(t.Amount))
		stat.HighPrice = decimal.Max(stat.HighPrice, t.Price)
		stat.LowPrice = decimal.Min(stat.LowPrice, t.Price)
		stat.ClosePrice = t.Price
		if btcRate != nil {
			btc.add(i == 0, t.Price.Div(*btcRate))
		}
	}
	if stat.TotalAmount.IsPositive() {
		stat.AveragePrice = stat.TotalPrice.Div(stat.TotalAmount)
	}
	if btcRate != nil {
		stat.OpenPriceBTC, stat.HighPriceBTC = &btc.open, &btc.high
		stat.LowPriceBTC, stat.ClosePriceBTC = &btc.low, &btc.close
	}
	return stat
}

type btcPrices struct {
	open, high, low, close decimal.Decimal
}

func (b *btcPrices) add(first bool, p decimal.Decimal) {
	if first {
		b.open, b.high, b.low = p, p, p
	}
	b.high = decimal.Max(b.high, p)
	b.low = decimal.Min(b.low, p)
	b.close = p
}
