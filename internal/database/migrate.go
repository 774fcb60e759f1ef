package database

import (
	"context"
	"database/sql"
	"fmt"
)

// Dialect names accepted by Migrate.
const (
	DialectMySQL  = "mysql"
	DialectSQLite = "sqlite"
)

// auctionsTable is shared by both dialects.  Timestamps are unix
// milliseconds so the same scan code works on MySQL and SQLite.
const auctionsTable = `CREATE TABLE IF NOT EXISTS auctions (
	id                  VARCHAR(64)  NOT NULL PRIMARY KEY,
	owner_id            VARCHAR(128) NOT NULL,
	base_price_cents    BIGINT       NOT NULL,
	starts_at_ms        BIGINT       NOT NULL,
	ends_at_ms          BIGINT       NOT NULL,
	status              VARCHAR(16)  NOT NULL,
	current_price_cents BIGINT       NOT NULL DEFAULT 0,
	current_bidder_id   VARCHAR(128) NOT NULL DEFAULT '',
	payment_ref         VARCHAR(255) NOT NULL DEFAULT '',
	revision            BIGINT       NOT NULL,
	title               VARCHAR(255) NOT NULL,
	description         TEXT         NOT NULL,
	image_ref           VARCHAR(512) NOT NULL DEFAULT '',
	seller_username     VARCHAR(128) NOT NULL DEFAULT '',
	seller_contact      VARCHAR(64)  NOT NULL DEFAULT '',
	seller_email        VARCHAR(255) NOT NULL DEFAULT '',
	created_at_ms       BIGINT       NOT NULL,
	updated_at_ms       BIGINT       NOT NULL,
	closed_at_ms        BIGINT       NULL,
	paid_at_ms          BIGINT       NULL%s
)`

const mysqlIndexes = `,
	INDEX idx_auctions_owner (owner_id, created_at_ms),
	INDEX idx_auctions_status_end (status, ends_at_ms)`

var sqliteIndexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_auctions_owner ON auctions (owner_id, created_at_ms)`,
	`CREATE INDEX IF NOT EXISTS idx_auctions_status_end ON auctions (status, ends_at_ms)`,
}

// Migrate creates the auctions table and its indexes if they do not exist.
// It is safe to run on every start.
func Migrate(ctx context.Context, db *sql.DB, dialect string) error {
	switch dialect {
	case DialectMySQL:
		if _, err := db.ExecContext(ctx, fmt.Sprintf(auctionsTable, mysqlIndexes)); err != nil {
			return fmt.Errorf("create auctions table: %w", err)
		}
	case DialectSQLite:
		if _, err := db.ExecContext(ctx, fmt.Sprintf(auctionsTable, "")); err != nil {
			return fmt.Errorf("create auctions table: %w", err)
		}
		for _, stmt := range sqliteIndexes {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("create index: %w", err)
			}
		}
	default:
		return fmt.Errorf("unknown sql dialect %q", dialect)
	}
	return nil
}
