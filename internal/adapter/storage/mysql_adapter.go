package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/stock-reservation/internal/core/domain"
)

const mysqlDuplicateEntry = 1062

// OpenMySQL opens a pool for dsn. Dates are scanned as time.Time in UTC.
func OpenMySQL(ctx context.Context, dsn string) (*sql.DB, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("mysql connector: %w", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	return db, nil
}

func isDuplicateEntry(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

type MySQLBatchStore struct {
	db *sql.DB
}

func NewMySQLBatchStore(db *sql.DB) *MySQLBatchStore {
	return &MySQLBatchStore{db: db}
}

func (m *MySQLBatchStore) FindByProductID(ctx context.Context, productID int64) ([]*domain.Batch, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT batch_id, product_id, product_name, quantity, expiry_date, version
		FROM batches WHERE product_id = ?
		ORDER BY expiry_date ASC, batch_id ASC`, productID,
	)
	if err != nil {
		return nil, fmt.Errorf("query batches: %w", err)
	}
	defer rows.Close()

	var batches []*domain.Batch
	for rows.Next() {
		var b domain.Batch
		if err := rows.Scan(&b.ID, &b.ProductID, &b.ProductName, &b.Quantity, &b.ExpiryDate, &b.Version); err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		batches = append(batches, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate batches: %w", err)
	}
	return batches, nil
}

func (m *MySQLBatchStore) SaveReservation(ctx context.Context, res *domain.Reservation, batches []*domain.Batch) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, b := range batches {
		result, err := tx.ExecContext(ctx, `
			UPDATE batches
			SET quantity = ?, version = version + 1
			WHERE batch_id = ? AND version = ?`,
			b.Quantity, b.ID, b.Version,
		)
		if err != nil {
			return fmt.Errorf("update batch %d: %w", b.ID, err)
		}
		rows, _ := result.RowsAffected()
		if rows == 0 {
			return fmt.Errorf("batch %d changed since read: %w", b.ID, domain.ErrReservationConflict)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO reservations (reservation_id, product_id, quantity, idempotency_key, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		res.ID, res.ProductID, res.Quantity, nullString(res.IdempotencyKey), res.Status, res.CreatedAt,
	)
	if isDuplicateEntry(err) {
		return fmt.Errorf("reservation key %q already used: %w", res.IdempotencyKey, domain.ErrReservationConflict)
	}
	if err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}

	for i, a := range res.Allocations {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO reservation_lines (reservation_id, line_no, batch_id, quantity)
			VALUES (?, ?, ?, ?)`,
			res.ID, i, a.BatchID, a.Quantity,
		)
		if err != nil {
			return fmt.Errorf("insert reservation line: %w", err)
		}
	}

	return tx.Commit()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (m *MySQLBatchStore) FindReservation(ctx context.Context, reservationID string) (*domain.Reservation, error) {
	return m.loadReservation(ctx, m.db, `WHERE reservation_id = ?`, reservationID)
}

func (m *MySQLBatchStore) FindReservationByKey(ctx context.Context, key string) (*domain.Reservation, error) {
	return m.loadReservation(ctx, m.db, `WHERE idempotency_key = ?`, key)
}

func (m *MySQLBatchStore) loadReservation(ctx context.Context, q queryer, where string, arg any) (*domain.Reservation, error) {
	var (
		res domain.Reservation
		key sql.NullString
	)
	err := q.QueryRowContext(ctx, `
		SELECT reservation_id, product_id, quantity, idempotency_key, status, created_at
		FROM reservations `+where, arg,
	).Scan(&res.ID, &res.ProductID, &res.Quantity, &key, &res.Status, &res.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundError("Reservation not found: %v", arg)
	}
	if err != nil {
		return nil, fmt.Errorf("query reservation: %w", err)
	}
	res.IdempotencyKey = key.String

	rows, err := q.QueryContext(ctx, `
		SELECT batch_id, quantity FROM reservation_lines
		WHERE reservation_id = ? ORDER BY line_no`, res.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("query reservation lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a domain.Allocation
		if err := rows.Scan(&a.BatchID, &a.Quantity); err != nil {
			return nil, fmt.Errorf("scan reservation line: %w", err)
		}
		res.Allocations = append(res.Allocations, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reservation lines: %w", err)
	}
	return &res, nil
}

func (m *MySQLBatchStore) ReleaseReservation(ctx context.Context, reservationID string) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var status domain.ReservationStatus
	err = tx.QueryRowContext(ctx, `
		SELECT status FROM reservations WHERE reservation_id = ? FOR UPDATE`, reservationID,
	).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NotFoundError("Reservation not found: %s", reservationID)
	}
	if err != nil {
		return fmt.Errorf("lock reservation: %w", err)
	}
	if status == domain.ReservationStatusReleased {
		return nil
	}

	res, err := m.loadReservation(ctx, tx, `WHERE reservation_id = ?`, reservationID)
	if err != nil {
		return err
	}

	for _, a := range res.Allocations {
		result, err := tx.ExecContext(ctx, `
			UPDATE batches SET quantity = quantity + ?, version = version + 1
			WHERE batch_id = ?`,
			a.Quantity, a.BatchID,
		)
		if err != nil {
			return fmt.Errorf("restore batch %d: %w", a.BatchID, err)
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return domain.NotFoundError("batch %d not found", a.BatchID)
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE reservations SET status = ? WHERE reservation_id = ?`,
		domain.ReservationStatusReleased, reservationID,
	)
	if err != nil {
		return fmt.Errorf("mark reservation released: %w", err)
	}

	return tx.Commit()
}

func (m *MySQLBatchStore) SeedBatches(ctx context.Context, batches []*domain.Batch) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, b := range batches {
		// A zero id lets the table assign one.
		var id any
		if b.ID > 0 {
			id = b.ID
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO batches (batch_id, product_id, product_name, quantity, expiry_date, version)
			VALUES (?, ?, ?, ?, ?, 0)
			ON DUPLICATE KEY UPDATE batch_id = batch_id`,
			id, b.ProductID, b.ProductName, b.Quantity, b.ExpiryDate,
		)
		if err != nil {
			return fmt.Errorf("seed batch %d: %w", b.ID, err)
		}
	}
	return tx.Commit()
}

type MySQLOrderStore struct {
	db *sql.DB
}

func NewMySQLOrderStore(db *sql.DB) *MySQLOrderStore {
	return &MySQLOrderStore{db: db}
}

func (m *MySQLOrderStore) Create(ctx context.Context, order *domain.Order) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO orders (product_id, product_name, quantity, status, order_date, reservation_id, idempotency_key)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		order.ProductID, order.ProductName, order.Quantity, order.Status,
		order.CreatedAt, order.ReservationID, nullString(order.IdempotencyKey),
	)
	if isDuplicateEntry(err) {
		return fmt.Errorf("order with key %q exists: %w", order.IdempotencyKey, domain.ErrDuplicateRequest)
	}
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("order id: %w", err)
	}

	for i, batchID := range order.ReservedBatchIDs {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_batches (order_id, position, batch_id) VALUES (?, ?, ?)`,
			id, i, batchID,
		)
		if err != nil {
			return fmt.Errorf("insert order batch: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	order.ID = id
	return nil
}

func (m *MySQLOrderStore) FindByID(ctx context.Context, id int64) (*domain.Order, error) {
	return m.find(ctx, `WHERE order_id = ?`, id)
}

func (m *MySQLOrderStore) FindByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error) {
	return m.find(ctx, `WHERE idempotency_key = ?`, key)
}

func (m *MySQLOrderStore) find(ctx context.Context, where string, arg any) (*domain.Order, error) {
	var (
		o   domain.Order
		key sql.NullString
	)
	err := m.db.QueryRowContext(ctx, `
		SELECT order_id, product_id, product_name, quantity, status, order_date, reservation_id, idempotency_key
		FROM orders `+where, arg,
	).Scan(&o.ID, &o.ProductID, &o.ProductName, &o.Quantity, &o.Status, &o.CreatedAt, &o.ReservationID, &key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundError("Order not found: %v", arg)
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}
	o.IdempotencyKey = key.String

	rows, err := m.db.QueryContext(ctx, `
		SELECT batch_id FROM order_batches WHERE order_id = ? ORDER BY position`, o.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("query order batches: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var batchID int64
		if err := rows.Scan(&batchID); err != nil {
			return nil, fmt.Errorf("scan order batch: %w", err)
		}
		o.ReservedBatchIDs = append(o.ReservedBatchIDs, batchID)
	}
	return &o, rows.Err()
}
