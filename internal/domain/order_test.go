package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validSeed() Order {
	return Order{
		MarketID:  "mkt_1",
		AccountID: "alice",
		Kind:      OrderKindSeed,
		CoinDelta: 10000,
		Time:      time.Now(),
	}
}

func TestOrderValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Order)
		wantErr bool
	}{
		{"valid seed", func(o *Order) {}, false},
		{"valid trade", func(o *Order) {
			o.Kind = OrderKindTrade
			o.Outcome = 1
			o.TokenDelta = 10
			o.CoinDelta = -5125
		}, false},
		{"valid settlement", func(o *Order) {
			o.Kind = OrderKindSettlement
			o.Outcome = 2
			o.TokenDelta = -10
			o.CoinDelta = 10000
		}, false},
		{"missing market id", func(o *Order) { o.MarketID = "" }, true},
		{"missing account id", func(o *Order) { o.AccountID = "" }, true},
		{"missing timestamp", func(o *Order) { o.Time = time.Time{} }, true},
		{"seed moves tokens", func(o *Order) { o.TokenDelta = 5 }, true},
		{"seed grants nothing", func(o *Order) { o.CoinDelta = 0 }, true},
		{"seed charges coins", func(o *Order) { o.CoinDelta = -100 }, true},
		{"trade without tokens", func(o *Order) {
			o.Kind = OrderKindTrade
			o.TokenDelta = 0
		}, true},
		{"losing settlement is free", func(o *Order) {
			o.Kind = OrderKindSettlement
			o.TokenDelta = -10
			o.CoinDelta = 0
		}, false},
		{"settlement charges coins", func(o *Order) {
			o.Kind = OrderKindSettlement
			o.TokenDelta = -10
			o.CoinDelta = -1
		}, true},
		{"settlement without tokens", func(o *Order) {
			o.Kind = OrderKindSettlement
			o.TokenDelta = 0
			o.CoinDelta = 100
		}, true},
		{"unknown kind", func(o *Order) { o.Kind = "refund" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := validSeed()
			tt.mutate(&o)
			err := o.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidOrder)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
