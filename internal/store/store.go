package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	_ "modernc.org/sqlite"
)

// Store wraps a *sql.DB, providing the durable trade operations spec
// §4.1 names. Writes are sessioned (single-statement or transaction);
// readers never observe partial updates because every write is one
// statement or one transaction (spec §4.1).
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open opens (creating if needed) the SQLite database at path and runs
// migrations. Migration failure is fatal per spec §7 class 6.
func Open(path string, log zerolog.Logger) (*Store, error) {
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := migrate(db, log); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// CreateTrade atomically inserts a new trade with buy_status=open.
func (s *Store) CreateTrade(p CreateTradeParams) (string, error) {
	tradeID := uuid.New().String()
	now := time.Now().UTC()
	_, err := s.db.Exec(`
		INSERT INTO trades (
			trade_id, deployment_id, market_id, slug, token_id, order_side,
			config_snapshot, buy_price, buy_size_ordered, buy_status,
			principal_before, created_at, buy_placed_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)
	`,
		tradeID, p.DeploymentID, p.MarketID, p.Slug, p.TokenID, string(p.OrderSide),
		p.ConfigSnapshot, p.BuyPrice.String(), p.BuySizeOrdered.String(), string(OrderStatusOpen),
		p.PrincipalBefore.String(), now, now,
	)
	if err != nil {
		return "", fmt.Errorf("create trade: %w", err)
	}
	return tradeID, nil
}

// UpdateBuyFill records a buy-side fill (or terminal status). Idempotent
// on (trade_id, status): calling this again with the same status is a
// no-op, satisfying P7 reconciler idempotence.
func (s *Store) UpdateBuyFill(tradeID string, filledShares, fillPrice, dollarsSpent, fee decimal.Decimal, status OrderStatus) error {
	res, err := s.db.Exec(`
		UPDATE trades SET
			buy_filled_shares = ?, buy_fill_price = ?, buy_dollars_spent = ?,
			buy_fee = ?, buy_status = ?, buy_filled_at = ?
		WHERE trade_id = ? AND buy_status <> ?
	`, filledShares.String(), fillPrice.String(), dollarsSpent.String(), fee.String(),
		string(status), time.Now().UTC(), tradeID, string(status))
	if err != nil {
		return fmt.Errorf("update buy fill: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		s.log.Debug().Str("trade_id", tradeID).Str("status", string(status)).Msg("update buy fill: already applied, no-op")
	}
	return nil
}

// UpdateSellOrder records a placed-and-verified sell order (spec §4.4's
// placement-verification invariant: callers must only call this after
// get_order has confirmed the id).
func (s *Store) UpdateSellOrder(tradeID, sellOrderID string, price, size decimal.Decimal, status OrderStatus) error {
	_, err := s.db.Exec(`
		UPDATE trades SET sell_order_id = ?, sell_price = ?, sell_size = ?,
			sell_status = ?, sell_placed_at = ?
		WHERE trade_id = ?
	`, sellOrderID, price.String(), size.String(), string(status), time.Now().UTC(), tradeID)
	if err != nil {
		return fmt.Errorf("update sell order: %w", err)
	}
	return nil
}

// UpdateSellFill records the sell-side fill outcome. Idempotent on
// (trade_id, status).
func (s *Store) UpdateSellFill(tradeID string, status OrderStatus, sharesFilled, dollarsReceived, fee decimal.Decimal) error {
	res, err := s.db.Exec(`
		UPDATE trades SET sell_status = ?, sell_shares_filled = ?,
			sell_dollars_received = ?, sell_fee = ?, sell_filled_at = ?
		WHERE trade_id = ? AND sell_status <> ?
	`, string(status), sharesFilled.String(), dollarsReceived.String(), fee.String(),
		time.Now().UTC(), tradeID, string(status))
	if err != nil {
		return fmt.Errorf("update sell fill: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		s.log.Debug().Str("trade_id", tradeID).Str("status", string(status)).Msg("update sell fill: already applied, no-op")
	}
	return nil
}

// UpdateResolution writes the final resolution fields exactly once (spec
// §3 invariant 4, §4.6): principal_after = principal_before + net_payout.
func (s *Store) UpdateResolution(tradeID string, outcomePrice, payout, netPayout, roi decimal.Decimal, isWin bool, principalAfter decimal.Decimal, winningSide OrderSide) error {
	res, err := s.db.Exec(`
		UPDATE trades SET outcome_price = ?, payout = ?, net_payout = ?,
			roi = ?, is_win = ?, principal_after = ?, winning_side = ?,
			resolved_at = ?
		WHERE trade_id = ? AND resolved_at IS NULL
	`, outcomePrice.String(), payout.String(), netPayout.String(), roi.String(),
		boolToInt(isWin), principalAfter.String(), string(winningSide), time.Now().UTC(), tradeID)
	if err != nil {
		return fmt.Errorf("update resolution: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		s.log.Debug().Str("trade_id", tradeID).Msg("update resolution: already resolved, no-op")
	}
	return nil
}

// HasBetOnMarket reports whether this deployment already has a trade for
// slug — queried twice before every buy to close the race window (spec
// §4.1).
func (s *Store) HasBetOnMarket(deploymentID, slug string) (bool, error) {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM trades WHERE deployment_id = ? AND slug = ?
	`, deploymentID, slug).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("has bet on market: %w", err)
	}
	return count > 0, nil
}

// LatestPrincipal returns the principal_after of the most recent resolved
// trade of this deployment satisfying spec §3's startup policy: an
// order_id set, market resolved, order_status != failed, principal_after
// > 0. Returns nil if none qualifies.
func (s *Store) LatestPrincipal(deploymentID string) (*decimal.Decimal, error) {
	rows, err := s.db.Query(`
		SELECT principal_after FROM trades
		WHERE deployment_id = ?
		  AND buy_order_id IS NOT NULL
		  AND resolved_at IS NOT NULL
		  AND buy_status <> ?
		  AND principal_after IS NOT NULL
		ORDER BY resolved_at DESC
	`, deploymentID, string(OrderStatusFailed))
	if err != nil {
		return nil, fmt.Errorf("latest principal: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			continue
		}
		if d.IsPositive() {
			return &d, nil
		}
	}
	return nil, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
