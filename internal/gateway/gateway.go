// Package gateway declares the Exchange Gateway contract the trading
// engine consumes (spec §6). The concrete exchange REST/WebSocket client
// and CLOB order-signing are explicitly out of scope (spec §1) — this
// package is interface-only plus the fixed, parsed wire types every
// caller gets back, per the re-architecture note in spec §9: "introduce a
// single parser returning a fixed struct; do not leak the raw map beyond
// that boundary."
package gateway

import (
	"context"
	"time"
)

// Side is a buy/sell order side.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType is always GTC in this engine (spec §6).
const OrderType = "GTC"

// OrderStatus is the normalized status of an order after parsing any of
// the exchange's synonymous status strings (live, open, matched, filled,
// complete, cancelled).
type OrderStatus string

const (
	OrderStatusLive      OrderStatus = "live"
	OrderStatusOpen      OrderStatus = "open"
	OrderStatusPartial   OrderStatus = "partial"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusFailed    OrderStatus = "failed"
	OrderStatusUnknown   OrderStatus = "unknown"
)

// NormalizeStatus maps any of the exchange's synonymous status strings to
// one OrderStatus. Unrecognized strings map to OrderStatusUnknown rather
// than panicking — callers must fail closed on unknown status (spec §9).
func NormalizeStatus(raw string) OrderStatus {
	switch raw {
	case "live", "open":
		return OrderStatusOpen
	case "matched", "filled", "complete":
		return OrderStatusFilled
	case "cancelled", "canceled":
		return OrderStatusCancelled
	case "failed":
		return OrderStatusFailed
	default:
		return OrderStatusUnknown
	}
}

// IsFilled implements the spec §4.4(c) is_filled predicate: status
// indicates filled, or the reported filled amount has reached the total.
func IsFilled(status OrderStatus, filledAmount, totalAmount float64) bool {
	if status == OrderStatusFilled {
		return true
	}
	return totalAmount > 0 && filledAmount >= totalAmount
}

// OrderResponse is the fixed-shape result of placing an order.
type OrderResponse struct {
	OrderID string
	Status  OrderStatus
}

// OrderState is the fixed-shape result of get_order, after synonym
// normalization (size_matched/filled_amount, original_size/total_amount).
type OrderState struct {
	OrderID       string
	Status        OrderStatus
	FilledAmount  float64
	TotalAmount   float64
	MarketID      string
	AssetID       string
}

// FillStatus mirrors the exchange's trade-history fill status values.
type FillStatus string

const (
	FillStatusMatched   FillStatus = "MATCHED"
	FillStatusMined     FillStatus = "MINED"
	FillStatusConfirmed FillStatus = "CONFIRMED"
	FillStatusFailed    FillStatus = "FAILED"
)

// MakerOrder is one maker-side leg of a fill.
type MakerOrder struct {
	OrderID string
}

// Fill is one entry from get_trades, after synonym normalization
// (taker_order_id vs orderID, etc).
type Fill struct {
	ID            string
	TakerOrderID  string
	MakerOrders   []MakerOrder
	Size          float64
	Price         float64
	Status        FillStatus
	Timestamp     time.Time
}

// ReferencesOrder reports whether this fill corresponds to orderID, either
// as the taker or as one of the maker legs — the two places spec §4.4(a)
// says a fill may name an order.
func (f Fill) ReferencesOrder(orderID string) bool {
	if f.TakerOrderID == orderID {
		return true
	}
	for _, m := range f.MakerOrders {
		if m.OrderID == orderID {
			return true
		}
	}
	return false
}

// BookLevel is a single (price, size) level.
type BookLevel struct {
	Price float64
	Size  float64
}

// Book is a raw orderbook snapshot for one token id, unsorted — callers
// must scan, never trust ordering (spec §3/§4.2).
type Book struct {
	TokenID        string
	Bids           []BookLevel
	Asks           []BookLevel
	LastUpdateTime time.Time
}

// Market is the catalog's view of a discovered market (spec §3).
type Market struct {
	MarketID   string
	Slug       string
	YesTokenID string
	NoTokenID  string
	StartTime  time.Time
	EndTime    time.Time
	Active     bool
	// OutcomePrices holds the exchange's published final outcome prices
	// (YES, NO) once resolved; both 0 until resolution.
	OutcomePrices [2]float64
}

// UserEvent is a normalized order/trade push from the user WebSocket
// channel (spec §4.4(b)).
type UserEvent struct {
	Kind     UserEventKind
	OrderID  string
	Status   OrderStatus
	FillSize float64
}

type UserEventKind string

const (
	UserEventOrder UserEventKind = "order"
	UserEventTrade UserEventKind = "trade"
)

// Gateway is the thin contract the engine consumes. Implementations live
// outside this module's core scope (spec §1); internal/gateway/paper
// provides a fake implementation for tests.
type Gateway interface {
	ExecuteOrder(ctx context.Context, price, size float64, side Side, tokenID string) (OrderResponse, error)
	CancelOrder(ctx context.Context, orderID string) (bool, error)
	GetOrder(ctx context.Context, orderID string) (*OrderState, error)
	GetOpenOrders(ctx context.Context) ([]OrderState, error)
	GetTrades(ctx context.Context, makerAddress string) ([]Fill, error)

	GetPolymarketBalance(ctx context.Context) (float64, error)
	GetConditionalTokenBalance(ctx context.Context, tokenID, wallet string) (float64, error)
	EnsureConditionalTokenAllowances(ctx context.Context) (bool, error)

	FetchBook(ctx context.Context, tokenID string) (*Book, error)
}

// MarketCatalogSource is the subset of catalog behavior the engine needs
// from the exchange (listing markets by schedule); implementations are
// external per spec §1.
type MarketCatalogSource interface {
	ListMarkets(ctx context.Context, schedule string) ([]Market, error)
	MarketBySlug(ctx context.Context, slug string) (*Market, error)
}
