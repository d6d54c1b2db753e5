package exchange

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestMulFixedTruncates(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want string
	}{
		{name: "ExactProduct", a: "0.1", b: "49000", want: "4900"},
		{name: "FeeOnValue", a: "4900", b: "0.015", want: "73.5"},
		{name: "FeeOnAmount", a: "0.1", b: "0.015", want: "0.0015"},
		{name: "TruncatesBelowScale", a: "0.00000003", b: "0.5", want: "0.00000001"},
		{name: "TruncatesNotRounds", a: "0.00000019", b: "0.5", want: "0.00000009"},
		{name: "ZeroFactor", a: "0", b: "123.456", want: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := decimal.RequireFromString(tt.a)
			b := decimal.RequireFromString(tt.b)
			got := mulFixed(a, b)
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("mulFixed(%s, %s) = %s, want %s", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestMatchResultString(t *testing.T) {
	tests := []struct {
		result MatchResult
		want   string
	}{
		{Matched, "MATCHED"},
		{OrderNotOpenOrInvalid, "ORDER_NOT_OPEN_OR_INVALID"},
		{NoCounterOrder, "NO_COUNTER_ORDER"},
		{AmountsNotEqual, "AMOUNTS_NOT_EQUAL"},
		{BuyerNotFound, "BUYER_NOT_FOUND"},
		{InsufficientBuyerFunds, "INSUFFICIENT_BUYER_FUNDS"},
		{InsufficientSellerAssetLocked, "INSUFFICIENT_SELLER_ASSET_LOCKED"},
		{MatchResult(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := tt.result.String(); got != tt.want {
			t.Errorf("MatchResult(%d).String() = %q, want %q", tt.result, got, tt.want)
		}
	}
}
