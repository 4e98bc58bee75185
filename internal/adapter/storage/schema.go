package storage

import (
	"context"
	"database/sql"
	"fmt"
)

var inventorySchema = []string{
	`CREATE TABLE IF NOT EXISTS batches (
		batch_id     BIGINT       NOT NULL AUTO_INCREMENT PRIMARY KEY,
		product_id   BIGINT       NOT NULL,
		product_name VARCHAR(255) NOT NULL,
		quantity     INT          NOT NULL,
		expiry_date  DATE         NOT NULL,
		version      BIGINT       NOT NULL DEFAULT 0,
		CONSTRAINT chk_batches_quantity CHECK (quantity >= 0),
		INDEX idx_batches_product_expiry (product_id, expiry_date, batch_id)
	)`,
	`CREATE TABLE IF NOT EXISTS reservations (
		reservation_id  VARCHAR(36)  NOT NULL PRIMARY KEY,
		product_id      BIGINT       NOT NULL,
		quantity        INT          NOT NULL,
		idempotency_key VARCHAR(128) NULL,
		status          VARCHAR(16)  NOT NULL,
		created_at      DATETIME(3)  NOT NULL,
		UNIQUE KEY uk_reservations_key (idempotency_key)
	)`,
	`CREATE TABLE IF NOT EXISTS reservation_lines (
		reservation_id VARCHAR(36) NOT NULL,
		line_no        INT         NOT NULL,
		batch_id       BIGINT      NOT NULL,
		quantity       INT         NOT NULL,
		PRIMARY KEY (reservation_id, line_no)
	)`,
}

var orderSchema = []string{
	`CREATE TABLE IF NOT EXISTS orders (
		order_id        BIGINT       NOT NULL AUTO_INCREMENT PRIMARY KEY,
		product_id      BIGINT       NOT NULL,
		product_name    VARCHAR(255) NOT NULL,
		quantity        INT          NOT NULL,
		status          VARCHAR(16)  NOT NULL,
		order_date      DATE         NOT NULL,
		reservation_id  VARCHAR(36)  NOT NULL,
		idempotency_key VARCHAR(128) NULL,
		UNIQUE KEY uk_orders_key (idempotency_key)
	)`,
	`CREATE TABLE IF NOT EXISTS order_batches (
		order_id BIGINT NOT NULL,
		position INT    NOT NULL,
		batch_id BIGINT NOT NULL,
		PRIMARY KEY (order_id, position)
	)`,
}

func MigrateInventory(ctx context.Context, db *sql.DB) error {
	return migrate(ctx, db, inventorySchema)
}

func MigrateOrders(ctx context.Context, db *sql.DB) error {
	return migrate(ctx, db, orderSchema)
}

func migrate(ctx context.Context, db *sql.DB, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
