package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

const orderNumberConstraint = "orders_order_number_key"

// UpdateFunc mutates a private copy of the order inside the store's
// transaction. Returning changed=false skips the write.
type UpdateFunc func(o *Order) (changed bool, err error)

type ListFilter struct {
	Status Status
	Limit  int
}

type Repository interface {
	CreateOrder(ctx context.Context, o *Order) (uuid.UUID, error)
	GetOrderByID(ctx context.Context, id uuid.UUID) (*Order, error)
	UpdateOrder(ctx context.Context, id uuid.UUID, fn UpdateFunc) (*Order, error)
	AppendStatusTransition(ctx context.Context, id uuid.UUID, status Status, note string) (*Order, error)
	ListOrders(ctx context.Context, filter ListFilter) ([]Order, error)
	ListOrdersByEmail(ctx context.Context, email string) ([]Order, error)
}

type postgresRepository struct {
	db  *pgxpool.Pool
	now func() time.Time
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db, now: time.Now}
}

const selectOrderColumns = `
	SELECT id, order_number, COALESCE(user_id, ''), user_email, items, shipping_address,
		shipping_method, shipping_cost, subtotal, total, status, payment_method, payment_status,
		COALESCE(payment_id, ''), COALESCE(notes, ''), status_history, schema_version, version,
		created_at, updated_at
	FROM orders
`

func (r *postgresRepository) CreateOrder(ctx context.Context, o *Order) (uuid.UUID, error) {
	if o.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			log.Error().Err(err).Msg("repository: failed to generate order ID")
			return uuid.Nil, fmt.Errorf("repository: failed to generate order ID: %w", err)
		}
		o.ID = id
	}
	o.Version = 1

	items, address, history, err := encodeDocuments(o)
	if err != nil {
		return uuid.Nil, err
	}

	query := `
		INSERT INTO orders (id, order_number, user_id, user_email, items, shipping_address,
			shipping_method, shipping_cost, subtotal, total, status, payment_method, payment_status,
			payment_id, notes, status_history, schema_version, version, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
			NULLIF($14, ''), NULLIF($15, ''), $16, $17, $18, $19, $20)
	`
	_, err = r.db.Exec(ctx, query,
		o.ID,
		o.OrderNumber,
		o.UserID,
		o.UserEmail,
		items,
		address,
		string(o.ShippingMethod),
		o.ShippingCost,
		o.Subtotal,
		o.Total,
		string(o.Status),
		o.PaymentMethod,
		string(o.PaymentStatus),
		o.PaymentID,
		o.Notes,
		history,
		o.SchemaVersion,
		o.Version,
		o.CreatedAt,
		o.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation && pgErr.ConstraintName == orderNumberConstraint {
			return uuid.Nil, ErrDuplicateOrderNumber
		}
		return uuid.Nil, fmt.Errorf("repository: failed to insert order: %w", err)
	}

	return o.ID, nil
}

func (r *postgresRepository) GetOrderByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := scanOrder(r.db.QueryRow(ctx, selectOrderColumns+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to select order by id %s: %w", id, err)
	}

	return o, nil
}

func (r *postgresRepository) UpdateOrder(ctx context.Context, id uuid.UUID, fn UpdateFunc) (updated *Order, err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic_value", p).Stringer("order_id", id).Msg("Panic recovered during UpdateOrder, rolling back")
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Stringer("order_id", id).Msg("Failed to rollback transaction after panic")
			}
			panic(p)
		} else if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Stringer("order_id", id).Msg("Failed to rollback transaction")
			}
		} else if commitErr := tx.Commit(ctx); commitErr != nil {
			log.Error().Err(commitErr).Stringer("order_id", id).Msg("Failed to commit transaction")
			updated = nil
			err = fmt.Errorf("repository: failed to commit transaction: %w", commitErr)
		}
	}()

	current, err := scanOrder(tx.QueryRow(ctx, selectOrderColumns+` WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to lock order %s: %w", id, err)
	}

	next := current.Clone()
	changed, err := fn(next)
	if err != nil {
		return nil, err
	}
	if !changed {
		return current, nil
	}
	if err = next.Validate(); err != nil {
		return nil, fmt.Errorf("repository: refusing to write order: %w", err)
	}

	history, err := json.Marshal(next.StatusHistory)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to encode status history: %w", err)
	}
	if next.UpdatedAt.IsZero() || !next.UpdatedAt.After(current.UpdatedAt) {
		next.UpdatedAt = r.now().UTC()
	}
	next.Version = current.Version + 1

	query := `
		UPDATE orders
		SET status = $1, payment_status = $2, payment_id = NULLIF($3, ''), notes = NULLIF($4, ''),
			status_history = $5, updated_at = $6, version = $7
		WHERE id = $8 AND version = $9
	`
	cmdTag, err := tx.Exec(ctx, query,
		string(next.Status),
		string(next.PaymentStatus),
		next.PaymentID,
		next.Notes,
		history,
		next.UpdatedAt,
		next.Version,
		id,
		current.Version,
	)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to update order %s: %w", id, err)
	}
	if cmdTag.RowsAffected() == 0 {
		log.Warn().Stringer("order_id", id).Int64("version", current.Version).Msg("repository: order version moved during update")
		return nil, ErrConcurrentUpdate
	}

	return next, nil
}

func (r *postgresRepository) AppendStatusTransition(ctx context.Context, id uuid.UUID, status Status, note string) (*Order, error) {
	return r.UpdateOrder(ctx, id, appendTransition(status, note, r.now))
}

func (r *postgresRepository) ListOrders(ctx context.Context, filter ListFilter) ([]Order, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, "status = $"+strconv.Itoa(len(args)))
	}

	query := selectOrderColumns
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}

	return r.queryOrders(ctx, query, args...)
}

func (r *postgresRepository) ListOrdersByEmail(ctx context.Context, email string) ([]Order, error) {
	return r.queryOrders(ctx, selectOrderColumns+` WHERE user_email = $1 ORDER BY created_at DESC`, email)
}

func (r *postgresRepository) queryOrders(ctx context.Context, query string, args ...any) ([]Order, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query orders: %w", err)
	}
	defer rows.Close()

	orders := make([]Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating orders: %w", err)
	}

	return orders, nil
}

func scanOrder(row pgx.Row) (*Order, error) {
	var (
		o                       Order
		items, address, history []byte
	)
	err := row.Scan(
		&o.ID,
		&o.OrderNumber,
		&o.UserID,
		&o.UserEmail,
		&items,
		&address,
		&o.ShippingMethod,
		&o.ShippingCost,
		&o.Subtotal,
		&o.Total,
		&o.Status,
		&o.PaymentMethod,
		&o.PaymentStatus,
		&o.PaymentID,
		&o.Notes,
		&history,
		&o.SchemaVersion,
		&o.Version,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, fmt.Errorf("decode items of order %s: %w", o.ID, err)
	}
	if err := json.Unmarshal(address, &o.ShippingAddress); err != nil {
		return nil, fmt.Errorf("decode shipping address of order %s: %w", o.ID, err)
	}
	if err := json.Unmarshal(history, &o.StatusHistory); err != nil {
		return nil, fmt.Errorf("decode status history of order %s: %w", o.ID, err)
	}
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	for i := range o.StatusHistory {
		o.StatusHistory[i].Timestamp = o.StatusHistory[i].Timestamp.UTC()
	}

	if err := o.Validate(); err != nil {
		return nil, err
	}

	return &o, nil
}

func encodeDocuments(o *Order) (items, address, history []byte, err error) {
	if items, err = json.Marshal(o.Items); err != nil {
		return nil, nil, nil, fmt.Errorf("repository: failed to encode items: %w", err)
	}
	if address, err = json.Marshal(o.ShippingAddress); err != nil {
		return nil, nil, nil, fmt.Errorf("repository: failed to encode shipping address: %w", err)
	}
	if history, err = json.Marshal(o.StatusHistory); err != nil {
		return nil, nil, nil, fmt.Errorf("repository: failed to encode status history: %w", err)
	}
	return items, address, history, nil
}

func appendTransition(status Status, note string, now func() time.Time) UpdateFunc {
	return func(o *Order) (bool, error) {
		if !status.Valid() {
			return false, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
		}
		o.Transition(status, note, now().UTC())
		return true, nil
	}
}
