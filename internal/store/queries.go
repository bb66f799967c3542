package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// GetTrade returns the trade identified by tradeID, or sql.ErrNoRows if
// none exists.
func (s *Store) GetTrade(tradeID string) (*Trade, error) {
	row := s.db.QueryRow(`SELECT `+tradeColumns+` FROM trades WHERE trade_id = ?`, tradeID)
	return scanTrade(row)
}

// OpenBuys returns trades whose buy order is still open or partially
// filled — candidates for fill-detection and stale-open cancellation
// (spec §4.4).
func (s *Store) OpenBuys(deploymentID string) ([]Trade, error) {
	rows, err := s.db.Query(`
		SELECT `+tradeColumns+` FROM trades
		WHERE deployment_id = ? AND buy_status IN (?, ?)
		ORDER BY buy_placed_at ASC
	`, deploymentID, string(OrderStatusOpen), string(OrderStatusPartial))
	if err != nil {
		return nil, fmt.Errorf("open buys: %w", err)
	}
	defer rows.Close()
	return scanTrades(rows)
}

// OpenSells returns trades with a placed sell order not yet terminal.
func (s *Store) OpenSells(deploymentID string) ([]Trade, error) {
	rows, err := s.db.Query(`
		SELECT `+tradeColumns+` FROM trades
		WHERE deployment_id = ? AND sell_order_id IS NOT NULL
		  AND sell_status IN (?, ?)
		ORDER BY sell_placed_at ASC
	`, deploymentID, string(OrderStatusOpen), string(OrderStatusPartial))
	if err != nil {
		return nil, fmt.Errorf("open sells: %w", err)
	}
	defer rows.Close()
	return scanTrades(rows)
}

// UnresolvedTrades returns trades with no resolved_at yet — candidates
// for the Resolution Engine's poll (spec §4.6).
func (s *Store) UnresolvedTrades(deploymentID string) ([]Trade, error) {
	rows, err := s.db.Query(`
		SELECT `+tradeColumns+` FROM trades
		WHERE deployment_id = ? AND resolved_at IS NULL
		ORDER BY created_at ASC
	`, deploymentID)
	if err != nil {
		return nil, fmt.Errorf("unresolved trades: %w", err)
	}
	defer rows.Close()
	return scanTrades(rows)
}

// MostRecentFilledWithoutSell returns the most recently buy-filled trade
// that has not yet had a sell order placed, or nil if none. Resolved
// trades are included.
func (s *Store) MostRecentFilledWithoutSell(deploymentID string) (*Trade, error) {
	row := s.db.QueryRow(`
		SELECT `+tradeColumns+` FROM trades
		WHERE deployment_id = ? AND buy_status = ? AND sell_order_id IS NULL
		ORDER BY buy_filled_at DESC
		LIMIT 1
	`, deploymentID, string(OrderStatusFilled))
	t, err := scanTrade(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// TradesByDeploymentAndMarket returns every trade this deployment has
// opened for slug: at most one for the Threshold strategy (enforced by
// HasBetOnMarket), two for a Limit-Buy dual position.
func (s *Store) TradesByDeploymentAndMarket(deploymentID, slug string) ([]Trade, error) {
	rows, err := s.db.Query(`
		SELECT `+tradeColumns+` FROM trades
		WHERE deployment_id = ? AND slug = ?
		ORDER BY created_at ASC
	`, deploymentID, slug)
	if err != nil {
		return nil, fmt.Errorf("trades by deployment and market: %w", err)
	}
	defer rows.Close()
	return scanTrades(rows)
}

const tradeColumns = `
	trade_id, deployment_id, market_id, slug, token_id, order_side,
	config_snapshot, buy_order_id, buy_price, buy_size_ordered, buy_status,
	buy_filled_shares, buy_fill_price, buy_dollars_spent, buy_fee,
	buy_placed_at, buy_filled_at,
	sell_order_id, sell_price, sell_size, sell_status, sell_shares_filled,
	sell_dollars_received, sell_fee, sell_placed_at, sell_filled_at,
	outcome_price, winning_side, payout, net_payout, roi, is_win,
	principal_before, principal_after, resolved_at, error_message, created_at
`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTrade(r rowScanner) (*Trade, error) {
	var t Trade
	var (
		buyOrderID                                                     sql.NullString
		buyFilledShares, buyFillPrice, buyDollarsSpent, buyFee          sql.NullString
		buyFilledAt                                                    sql.NullTime
		sellOrderID, sellPrice, sellSize, sellStatus                   sql.NullString
		sellSharesFilled, sellDollarsReceived, sellFee                 sql.NullString
		sellPlacedAt, sellFilledAt                                     sql.NullTime
		outcomePrice, winningSide, payout, netPayout, roi, principalAfter sql.NullString
		isWin                                                          sql.NullInt64
		resolvedAt                                                     sql.NullTime
		errorMessage                                                   sql.NullString
	)

	err := r.Scan(
		&t.TradeID, &t.DeploymentID, &t.MarketID, &t.Slug, &t.TokenID, &t.OrderSide,
		&t.ConfigSnapshot, &buyOrderID, &t.BuyPrice, &t.BuySizeOrdered, &t.BuyStatus,
		&buyFilledShares, &buyFillPrice, &buyDollarsSpent, &buyFee,
		&t.BuyPlacedAt, &buyFilledAt,
		&sellOrderID, &sellPrice, &sellSize, &sellStatus, &sellSharesFilled,
		&sellDollarsReceived, &sellFee, &sellPlacedAt, &sellFilledAt,
		&outcomePrice, &winningSide, &payout, &netPayout, &roi, &isWin,
		&t.PrincipalBefore, &principalAfter, &resolvedAt, &errorMessage, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.BuyOrderID = nullStringPtr(buyOrderID)
	t.BuyFilledShares = nullDecimalPtr(buyFilledShares)
	t.BuyFillPrice = nullDecimalPtr(buyFillPrice)
	t.BuyDollarsSpent = nullDecimalPtr(buyDollarsSpent)
	t.BuyFee = nullDecimalPtr(buyFee)
	t.BuyFilledAt = nullTimePtr(buyFilledAt)

	t.SellOrderID = nullStringPtr(sellOrderID)
	t.SellPrice = nullDecimalPtr(sellPrice)
	t.SellSize = nullDecimalPtr(sellSize)
	if sellStatus.Valid {
		t.SellStatus = OrderStatus(sellStatus.String)
	}
	t.SellSharesFilled = nullDecimalPtr(sellSharesFilled)
	t.SellDollarsReceived = nullDecimalPtr(sellDollarsReceived)
	t.SellFee = nullDecimalPtr(sellFee)
	t.SellPlacedAt = nullTimePtr(sellPlacedAt)
	t.SellFilledAt = nullTimePtr(sellFilledAt)

	t.OutcomePrice = nullDecimalPtr(outcomePrice)
	if winningSide.Valid {
		side := OrderSide(winningSide.String)
		t.WinningSide = &side
	}
	t.Payout = nullDecimalPtr(payout)
	t.NetPayout = nullDecimalPtr(netPayout)
	t.ROI = nullDecimalPtr(roi)
	if isWin.Valid {
		b := isWin.Int64 != 0
		t.IsWin = &b
	}
	t.PrincipalAfter = nullDecimalPtr(principalAfter)
	t.ResolvedAt = nullTimePtr(resolvedAt)
	t.ErrorMessage = nullStringPtr(errorMessage)

	return &t, nil
}

func scanTrades(rows *sql.Rows) ([]Trade, error) {
	var out []Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func nullStringPtr(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	s := n.String
	return &s
}

func nullTimePtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time
	return &t
}

func nullDecimalPtr(n sql.NullString) *decimal.Decimal {
	if !n.Valid || n.String == "" {
		return nil
	}
	d, err := decimal.NewFromString(n.String)
	if err != nil {
		return nil
	}
	return &d
}
