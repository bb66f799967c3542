// Package paper provides a fake gateway.Gateway backed by in-memory
// balance and inventory bookkeeping, adapted from the teacher's
// internal/paper simulator so the Order Lifecycle Manager and Strategy
// Kernel test suites have something to exercise in place of a live
// exchange (the real Exchange Gateway is out of scope per spec §1).
package paper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/schenkmanjack/polymarket-agents-sub000/internal/engerr"
	"github.com/schenkmanjack/polymarket-agents-sub000/internal/gateway"
)

// Config seeds the simulator's starting state.
type Config struct {
	InitialBalanceUSDC float64
	FeeBps             float64
}

// Gateway is an in-memory fake implementing gateway.Gateway.
type Gateway struct {
	mu sync.Mutex

	cfg Config

	sequence    int64
	balanceUSDC float64
	inventory   map[string]float64 // tokenID -> shares held

	books  map[string]*gateway.Book
	orders map[string]*gateway.OrderState
	fills  []gateway.Fill

	// Books injected by tests drive ExecuteOrder's fill price; orders
	// that cannot fill against the injected book stay "open" (GTC).
}

// New creates a paper Gateway.
func New(cfg Config) *Gateway {
	initial := cfg.InitialBalanceUSDC
	if initial <= 0 {
		initial = 1000
	}
	return &Gateway{
		cfg:         cfg,
		balanceUSDC: initial,
		inventory:   make(map[string]float64),
		books:       make(map[string]*gateway.Book),
		orders:      make(map[string]*gateway.OrderState),
	}
}

// SetBook installs the book paper fills are evaluated against for tokenID.
func (g *Gateway) SetBook(tokenID string, book gateway.Book) {
	g.mu.Lock()
	defer g.mu.Unlock()
	b := book
	g.books[tokenID] = &b
}

// Balance returns the current simulated cash balance.
func (g *Gateway) Balance() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.balanceUSDC
}

func (g *Gateway) ExecuteOrder(ctx context.Context, price, size float64, side gateway.Side, tokenID string) (gateway.OrderResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	book := g.books[tokenID]
	fillable, execPrice := g.resolveFill(book, side, price)

	g.sequence++
	orderID := fmt.Sprintf("paper-order-%06d", g.sequence)

	state := &gateway.OrderState{
		OrderID:      orderID,
		Status:       gateway.OrderStatusOpen,
		TotalAmount:  size,
		AssetID:      tokenID,
	}

	if fillable {
		fee := execPrice * size * g.cfg.FeeBps / 10000
		switch side {
		case gateway.SideBuy:
			cost := execPrice*size + fee
			if cost > g.balanceUSDC {
				return gateway.OrderResponse{}, engerr.Terminal("paper buy", fmt.Errorf("insufficient paper balance: need %.4f have %.4f", cost, g.balanceUSDC))
			}
			g.balanceUSDC -= cost
			g.inventory[tokenID] += size
		case gateway.SideSell:
			held := g.inventory[tokenID]
			if held+1e-9 < size {
				return gateway.OrderResponse{}, fmt.Errorf("insufficient paper inventory: need %.8f have %.8f", size, held)
			}
			g.balanceUSDC += execPrice*size - fee
			g.inventory[tokenID] -= size
		}
		state.Status = gateway.OrderStatusFilled
		state.FilledAmount = size
		g.fills = append(g.fills, gateway.Fill{
			ID:           fmt.Sprintf("paper-fill-%06d", g.sequence),
			TakerOrderID: orderID,
			Size:         size,
			Price:        execPrice,
			Status:       gateway.FillStatusConfirmed,
			Timestamp:    time.Now().UTC(),
		})
	}

	g.orders[orderID] = state
	return gateway.OrderResponse{OrderID: orderID, Status: state.Status}, nil
}

func (g *Gateway) resolveFill(book *gateway.Book, side gateway.Side, limitPrice float64) (fillable bool, execPrice float64) {
	if book == nil {
		return false, 0
	}
	switch side {
	case gateway.SideBuy:
		bestAsk, ok := minAsk(book.Asks)
		if ok && bestAsk <= limitPrice {
			return true, bestAsk
		}
	case gateway.SideSell:
		bestBid, ok := maxBid(book.Bids)
		if ok && bestBid >= limitPrice {
			return true, bestBid
		}
	}
	return false, 0
}

func minAsk(levels []gateway.BookLevel) (float64, bool) {
	if len(levels) == 0 {
		return 0, false
	}
	m := levels[0].Price
	for _, l := range levels[1:] {
		if l.Price < m {
			m = l.Price
		}
	}
	return m, true
}

func maxBid(levels []gateway.BookLevel) (float64, bool) {
	if len(levels) == 0 {
		return 0, false
	}
	m := levels[0].Price
	for _, l := range levels[1:] {
		if l.Price > m {
			m = l.Price
		}
	}
	return m, true
}

func (g *Gateway) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	state, ok := g.orders[orderID]
	if !ok {
		return false, nil
	}
	if state.Status == gateway.OrderStatusFilled {
		return false, nil
	}
	state.Status = gateway.OrderStatusCancelled
	return true, nil
}

func (g *Gateway) GetOrder(ctx context.Context, orderID string) (*gateway.OrderState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	state, ok := g.orders[orderID]
	if !ok {
		return nil, nil
	}
	cp := *state
	return &cp, nil
}

func (g *Gateway) GetOpenOrders(ctx context.Context) ([]gateway.OrderState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []gateway.OrderState
	for _, s := range g.orders {
		if s.Status == gateway.OrderStatusOpen || s.Status == gateway.OrderStatusPartial {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (g *Gateway) GetTrades(ctx context.Context, makerAddress string) ([]gateway.Fill, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]gateway.Fill, len(g.fills))
	copy(out, g.fills)
	return out, nil
}

func (g *Gateway) GetPolymarketBalance(ctx context.Context) (float64, error) {
	return g.Balance(), nil
}

func (g *Gateway) GetConditionalTokenBalance(ctx context.Context, tokenID, wallet string) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inventory[tokenID], nil
}

func (g *Gateway) EnsureConditionalTokenAllowances(ctx context.Context) (bool, error) {
	return true, nil
}

func (g *Gateway) FetchBook(ctx context.Context, tokenID string) (*gateway.Book, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	b, ok := g.books[tokenID]
	if !ok {
		return nil, fmt.Errorf("no book for %s", tokenID)
	}
	cp := *b
	return &cp, nil
}

var _ gateway.Gateway = (*Gateway)(nil)
