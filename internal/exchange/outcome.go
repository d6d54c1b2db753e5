package exchange

import "github.com/shopspring/decimal"

// MatchResult enumerates every outcome TryMatch can produce. Expected
// no-match states are values here rather than errors so callers handle each
// case explicitly.
type MatchResult int

const (
	// Matched means a trade settled; Settlement carries the details.
	Matched MatchResult = iota
	// OrderNotOpenOrInvalid means the order is missing or no longer open.
	// This is the idempotent no-op path for duplicate or stale dispatches.
	OrderNotOpenOrInvalid
	// NoCounterOrder means no open opposite-side order satisfies the price
	// condition.
	NoCounterOrder
	// AmountsNotEqual means the best counter-order exists but its quantity
	// differs; only full matches are settled.
	AmountsNotEqual
	// BuyerNotFound means the buy order's owner row is missing.
	BuyerNotFound
	// InsufficientBuyerFunds means the buy order's locked USD does not
	// cover value plus fee at the counter's price.
	InsufficientBuyerFunds
	// InsufficientSellerAssetLocked means the seller's locked asset pool
	// does not cover the trade amount. Indicates a consistency fault.
	InsufficientSellerAssetLocked
)

func (r MatchResult) String() string {
	switch r {
	case Matched:
		return "MATCHED"
	case OrderNotOpenOrInvalid:
		return "ORDER_NOT_OPEN_OR_INVALID"
	case NoCounterOrder:
		return "NO_COUNTER_ORDER"
	case AmountsNotEqual:
		return "AMOUNTS_NOT_EQUAL"
	case BuyerNotFound:
		return "BUYER_NOT_FOUND"
	case InsufficientBuyerFunds:
		return "INSUFFICIENT_BUYER_FUNDS"
	case InsufficientSellerAssetLocked:
		return "INSUFFICIENT_SELLER_ASSET_LOCKED"
	}
	return "UNKNOWN"
}

// Settlement carries the financial details of a settled match.
type Settlement struct {
	Price          decimal.Decimal `json:"price"`
	Amount         decimal.Decimal `json:"amount"`
	UsdValue       decimal.Decimal `json:"usd_value"`
	BuyerFeeUsd    decimal.Decimal `json:"buyer_fee_usd"`
	SellerFeeAsset decimal.Decimal `json:"seller_fee_asset"`
}

// MatchOutcome is the tagged result of a matching attempt. Settlement is
// non-nil iff Result == Matched.
type MatchOutcome struct {
	Result     MatchResult
	Settlement *Settlement
}
