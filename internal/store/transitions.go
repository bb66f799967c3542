package store

import (
	"fmt"
	"time"
)

// UpdateBuyOrderID persists the order id returned by a successful buy
// placement, transitioning pending_place -> open (spec §4.4).
func (s *Store) UpdateBuyOrderID(tradeID, orderID string) error {
	_, err := s.db.Exec(`
		UPDATE trades SET buy_order_id = ?, buy_status = ?, buy_placed_at = ?
		WHERE trade_id = ?
	`, orderID, string(OrderStatusOpen), time.Now().UTC(), tradeID)
	if err != nil {
		return fmt.Errorf("update buy order id: %w", err)
	}
	return nil
}

// MarkBuyFailed records a terminal placement error with no retry (spec
// §7 class 3).
func (s *Store) MarkBuyFailed(tradeID, message string) error {
	_, err := s.db.Exec(`
		UPDATE trades SET buy_status = ?, error_message = ? WHERE trade_id = ?
	`, string(OrderStatusFailed), message, tradeID)
	if err != nil {
		return fmt.Errorf("mark buy failed: %w", err)
	}
	return nil
}

// MarkBuyCancelled records a cancelled buy leg (sibling cancellation or
// cancel-if-stalled).
func (s *Store) MarkBuyCancelled(tradeID string) error {
	res, err := s.db.Exec(`
		UPDATE trades SET buy_status = ? WHERE trade_id = ? AND buy_status <> ?
	`, string(OrderStatusCancelled), tradeID, string(OrderStatusCancelled))
	if err != nil {
		return fmt.Errorf("mark buy cancelled: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		s.log.Debug().Str("trade_id", tradeID).Msg("mark buy cancelled: already cancelled, no-op")
	}
	return nil
}

// MarkSellCancelledIfStillOpen records a sell leg that never filled
// (cancelled outright, or still live after the resolution engine's final
// reconciliation retries) without disturbing a row already resolved as
// filled or partial (spec §4.6 sell_unfilled_or_cancelled case).
func (s *Store) MarkSellCancelledIfStillOpen(tradeID string) error {
	res, err := s.db.Exec(`
		UPDATE trades SET sell_status = ? WHERE trade_id = ? AND sell_status = ?
	`, string(OrderStatusCancelled), tradeID, string(OrderStatusOpen))
	if err != nil {
		return fmt.Errorf("mark sell cancelled: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		s.log.Debug().Str("trade_id", tradeID).Msg("mark sell cancelled: already terminal, no-op")
	}
	return nil
}
