package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Valid reports whether s is a known order side.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Opposite returns the counter side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderStatus is the lifecycle state of an order. An order is created open
// and transitions exactly once, to filled or cancelled.
type OrderStatus string

const (
	StatusOpen      OrderStatus = "open"
	StatusFilled    OrderStatus = "filled"
	StatusCancelled OrderStatus = "cancelled"
)

// User represents a registered user holding a USD cash balance.
type User struct {
	ID           int             `json:"id"`
	Name         string          `json:"name"`
	Email        string          `json:"email"`
	PasswordHash string          `json:"-"`
	Balance      decimal.Decimal `json:"balance"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Asset is a per-user, per-symbol holding split into an available pool and
// a pool locked as collateral for open sell orders. Both amounts stay >= 0.
type Asset struct {
	ID           int             `json:"id"`
	UserID       int             `json:"user_id"`
	Symbol       string          `json:"symbol"`
	Amount       decimal.Decimal `json:"amount"`
	LockedAmount decimal.Decimal `json:"locked_amount"`
}

// Order is a resting limit order. While the order is open exactly one of
// LockedUSD / LockedAsset is non-zero, matching its side; both are zero
// once the order leaves the open state.
type Order struct {
	ID          int             `json:"id"`
	UserID      int             `json:"user_id"`
	Symbol      string          `json:"symbol"`
	Side        Side            `json:"side"`
	Price       decimal.Decimal `json:"price"`
	Amount      decimal.Decimal `json:"amount"`
	Status      OrderStatus     `json:"status"`
	LockedUSD   decimal.Decimal `json:"locked_usd"`
	LockedAsset decimal.Decimal `json:"locked_asset"`
	CreatedAt   time.Time       `json:"created_at"` // used for time priority
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Trade is an immutable settlement record referencing both filled orders.
type Trade struct {
	ID             int             `json:"id"`
	Symbol         string          `json:"symbol"`
	BuyOrderID     int             `json:"buy_order_id"`
	SellOrderID    int             `json:"sell_order_id"`
	Price          decimal.Decimal `json:"price"`
	Amount         decimal.Decimal `json:"amount"`
	UsdValue       decimal.Decimal `json:"usd_value"`
	BuyerFeeUsd    decimal.Decimal `json:"buyer_fee_usd"`
	SellerFeeAsset decimal.Decimal `json:"seller_fee_asset"`
	ExecutedAt     time.Time       `json:"executed_at"`
}
