package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// migrate applies schema migrations in sequence, gated by a schema_version
// table, exactly the pattern in stadam23-Eve-flipper/internal/db/db.go:
// read the current max version, then run each "if version < N" block in
// order, inserting N into schema_version at the end of the block. Missing-
// column errors from a concurrent startup racing this same migration are
// swallowed — schema migration failure is otherwise fatal (spec §4.1/§7).
func migrate(db *sql.DB, log zerolog.Logger) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}

	version := 0
	row := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`)
	if err := row.Scan(&version); err != nil {
		return fmt.Errorf("read schema_version: %w", err)
	}

	if version < 1 {
		if _, err := db.Exec(`
			CREATE TABLE IF NOT EXISTS trades (
				trade_id TEXT PRIMARY KEY,
				deployment_id TEXT NOT NULL,
				market_id TEXT NOT NULL,
				slug TEXT NOT NULL,
				token_id TEXT NOT NULL,
				order_side TEXT NOT NULL,
				config_snapshot TEXT NOT NULL,
				buy_order_id TEXT,
				buy_price TEXT NOT NULL,
				buy_size_ordered TEXT NOT NULL,
				buy_status TEXT NOT NULL,
				buy_filled_shares TEXT,
				buy_fill_price TEXT,
				buy_dollars_spent TEXT,
				buy_fee TEXT,
				buy_placed_at TIMESTAMP NOT NULL,
				buy_filled_at TIMESTAMP,
				principal_before TEXT NOT NULL,
				created_at TIMESTAMP NOT NULL
			)
		`); err != nil {
			return fmt.Errorf("migrate v1 create trades: %w", err)
		}
		if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_trades_deployment_slug ON trades(deployment_id, slug)`); err != nil {
			return fmt.Errorf("migrate v1 create index: %w", err)
		}
		if _, err := db.Exec(`INSERT OR IGNORE INTO schema_version (version) VALUES (1)`); err != nil {
			return fmt.Errorf("migrate v1 record version: %w", err)
		}
		log.Info().Int("version", 1).Msg("store: applied migration")
	}

	if version < 2 {
		// Sell-order columns — added in one transaction per spec §4.1.
		// A concurrent startup may have already added these; swallow
		// "duplicate column name" rather than fail.
		sellColumns := []struct{ name, def string }{
			{"sell_order_id", "TEXT"},
			{"sell_price", "TEXT"},
			{"sell_size", "TEXT"},
			{"sell_status", "TEXT"},
			{"sell_shares_filled", "TEXT"},
			{"sell_dollars_received", "TEXT"},
			{"sell_fee", "TEXT"},
			{"sell_placed_at", "TIMESTAMP"},
			{"sell_filled_at", "TIMESTAMP"},
		}
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("migrate v2 begin: %w", err)
		}
		for _, col := range sellColumns {
			if err := addColumnIfMissing(tx, "trades", col.name, col.def); err != nil {
				tx.Rollback()
				return fmt.Errorf("migrate v2 add column %s: %w", col.name, err)
			}
		}
		if _, err := tx.Exec(`INSERT OR IGNORE INTO schema_version (version) VALUES (2)`); err != nil {
			tx.Rollback()
			return fmt.Errorf("migrate v2 record version: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migrate v2 commit: %w", err)
		}
		log.Info().Int("version", 2).Msg("store: applied migration")
	}

	if version < 3 {
		resolutionColumns := []struct{ name, def string }{
			{"outcome_price", "TEXT"},
			{"winning_side", "TEXT"},
			{"payout", "TEXT"},
			{"net_payout", "TEXT"},
			{"roi", "TEXT"},
			{"is_win", "INTEGER"},
			{"principal_after", "TEXT"},
			{"resolved_at", "TIMESTAMP"},
			{"error_message", "TEXT"},
		}
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("migrate v3 begin: %w", err)
		}
		for _, col := range resolutionColumns {
			if err := addColumnIfMissing(tx, "trades", col.name, col.def); err != nil {
				tx.Rollback()
				return fmt.Errorf("migrate v3 add column %s: %w", col.name, err)
			}
		}
		if _, err := tx.Exec(`INSERT OR IGNORE INTO schema_version (version) VALUES (3)`); err != nil {
			tx.Rollback()
			return fmt.Errorf("migrate v3 record version: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migrate v3 commit: %w", err)
		}
		log.Info().Int("version", 3).Msg("store: applied migration")
	}

	return nil
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
}

func tableHasColumn(e execer, table, column string) (bool, error) {
	rows, err := e.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt interface{}
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return false, err
		}
		if strings.EqualFold(name, column) {
			return true, nil
		}
	}
	return false, rows.Err()
}

func addColumnIfMissing(e execer, table, column, def string) error {
	has, err := tableHasColumn(e, table, column)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = e.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, def))
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "duplicate column") {
		// Another process's concurrent startup won the race; not an error.
		return nil
	}
	return err
}
