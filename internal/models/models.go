package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Valid reports whether s is BUY or SELL
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Status is the integer lifecycle state of an order
type Status int

const (
	StatusAwaitingDeposit Status = 0 // deposit not yet confirmed
	StatusConfirmed       Status = 1 // deposit confirmed, awaiting match
	StatusMatched         Status = 2
	StatusClosed          Status = 3 // fully settled or cancelled
)

// Valid reports whether s is one of the known states
func (s Status) Valid() bool {
	return s >= StatusAwaitingDeposit && s <= StatusClosed
}

// Contact holds the counterparty's contact and payout fields.
// They are copied verbatim into every trade that settles the order.
type Contact struct {
	PhoneNumber       string `json:"phoneNumber"`
	AccountNumber     string `json:"accountNumber"`
	BlockchainAddress string `json:"blockchainAddress"`
	BankName          string `json:"bankName"`
	Nickname          string `json:"nickname"`
	Username          string `json:"username"`
}

// Order represents a buy or sell order for the exchange's single asset
type Order struct {
	ID                 string          `json:"id"`
	OrderNumber        string          `json:"orderNumber"` // YYYYMMDDNNNN, KST day
	Side               Side            `json:"type"`
	Amount             decimal.Decimal `json:"amount"`
	RemainingAmount    decimal.Decimal `json:"remainingAmount"`
	Price              decimal.Decimal `json:"price"`
	Status             Status          `json:"status"`
	Processed          bool            `json:"processed"`
	CancellationReason *string         `json:"cancellationReason"`
	Contact
	CreatedAt time.Time `json:"createdAt"` // Used for time priority
	UpdatedAt time.Time `json:"updatedAt"`
}

// Trade is an immutable settlement record between one buy and one sell order
type Trade struct {
	ID          string          `json:"id"`
	BuyOrderID  string          `json:"buyOrderId"`
	SellOrderID string          `json:"sellOrderId"`
	Amount      decimal.Decimal `json:"amount"`
	Price       decimal.Decimal `json:"price"`
	Buy         Contact         `json:"buy"`
	Sell        Contact         `json:"sell"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// TradeView is a trade joined with the current quantities of both orders
type TradeView struct {
	Trade
	BuyAmount           *decimal.Decimal `json:"buyAmount"`
	BuyRemainingAmount  *decimal.Decimal `json:"buyRemainingAmount"`
	SellAmount          *decimal.Decimal `json:"sellAmount"`
	SellRemainingAmount *decimal.Decimal `json:"sellRemainingAmount"`
}

// DailyStat is the stored OHLC summary of one KST calendar day
type DailyStat struct {
	Date          string           `json:"date" validate:"required,datetime=2006-01-02"` // YYYY-MM-DD
	AveragePrice  decimal.Decimal  `json:"averagePrice"`
	OpenPrice     decimal.Decimal  `json:"openPrice"`
	HighPrice     decimal.Decimal  `json:"highPrice"`
	LowPrice      decimal.Decimal  `json:"lowPrice"`
	ClosePrice    decimal.Decimal  `json:"closePrice"`
	TotalAmount   decimal.Decimal  `json:"totalAmount"`
	TotalPrice    decimal.Decimal  `json:"totalPrice"`
	OpenPriceBTC  *decimal.Decimal `json:"openPriceBTC"`
	HighPriceBTC  *decimal.Decimal `json:"highPriceBTC"`
	LowPriceBTC   *decimal.Decimal `json:"lowPriceBTC"`
	ClosePriceBTC *decimal.Decimal `json:"closePriceBTC"`
}
