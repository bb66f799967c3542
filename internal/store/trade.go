// Package store is the Trade Store (C2): the durable mapping from
// trade_id to Trade, the principal ledger, and the race-closing queries
// the rest of the engine depends on (spec §4.1). Money and share fields
// use shopspring/decimal so the ledger identities spec §3 requires
// (dollars_spent = filled_shares * fill_price, within $0.01) hold exactly
// rather than accumulating float64 drift.
package store

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus mirrors the buy/sell sub-machine statuses (spec §3).
type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "open"
	OrderStatusPartial   OrderStatus = "partial"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusFailed    OrderStatus = "failed"
)

// OrderSide is the outcome token side a trade bets on.
type OrderSide string

const (
	OrderSideYes OrderSide = "YES"
	OrderSideNo  OrderSide = "NO"
)

// Trade is the central record: one per intended position (spec §3).
type Trade struct {
	TradeID      string
	DeploymentID string
	MarketID     string
	Slug         string
	TokenID      string
	OrderSide    OrderSide

	// ConfigSnapshot freezes the config parameter values in effect when
	// this trade was created (spec §3 "config parameter values at
	// creation"), serialized as JSON for storage.
	ConfigSnapshot string

	BuyOrderID       *string
	BuyPrice         decimal.Decimal
	BuySizeOrdered   decimal.Decimal
	BuyStatus        OrderStatus
	BuyFilledShares  *decimal.Decimal
	BuyFillPrice     *decimal.Decimal
	BuyDollarsSpent  *decimal.Decimal
	BuyFee           *decimal.Decimal
	BuyPlacedAt      time.Time
	BuyFilledAt      *time.Time

	SellOrderID          *string
	SellPrice            *decimal.Decimal
	SellSize             *decimal.Decimal
	SellStatus           OrderStatus
	SellSharesFilled     *decimal.Decimal
	SellDollarsReceived  *decimal.Decimal
	SellFee              *decimal.Decimal
	SellPlacedAt         *time.Time
	SellFilledAt         *time.Time

	OutcomePrice    *decimal.Decimal
	WinningSide     *OrderSide
	Payout          *decimal.Decimal
	NetPayout       *decimal.Decimal
	ROI             *decimal.Decimal
	IsWin           *bool
	PrincipalBefore decimal.Decimal
	PrincipalAfter  *decimal.Decimal
	ResolvedAt      *time.Time
	ErrorMessage    *string

	CreatedAt time.Time
}

// CreateTradeParams holds the fields needed to open a new trade.
type CreateTradeParams struct {
	DeploymentID    string
	MarketID        string
	Slug            string
	TokenID         string
	OrderSide       OrderSide
	ConfigSnapshot  string
	BuyPrice        decimal.Decimal
	BuySizeOrdered  decimal.Decimal
	PrincipalBefore decimal.Decimal
}
