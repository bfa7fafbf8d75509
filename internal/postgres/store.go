package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ariefcatur/go-bakery-cart/internal/metrics"
	"github.com/ariefcatur/go-bakery-cart/internal/orders"
	"github.com/ariefcatur/go-bakery-cart/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const pgForeignKeyViolation = "23503"

// Store is the Postgres implementation of store.Store.
type Store struct {
	DB      *pgxpool.Pool
	Metrics *metrics.Metrics
	Log     zerolog.Logger
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) (err error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return orders.Unavailable(fmt.Errorf("begin: %w", err))
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
			panic(p)
		}
	}()

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.Metrics.RollbackFailed()
			s.Log.Error().Err(rbErr).AnErr("cause", err).
				Msg("transaction rollback failed, manual reconciliation required")
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return orders.Unavailable(fmt.Errorf("commit: %w", err))
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

func dbErr(op string, err error) error {
	return orders.Unavailable(fmt.Errorf("%s: %w", op, err))
}

func isFKViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation
}

func parseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse numeric %q: %w", s, err)
	}
	return d, nil
}

// ---- products ----

const productCols = `id, name, price::text, available_quantity, created_at, updated_at`

func scanProduct(row pgx.Row) (orders.Product, error) {
	var (
		p     orders.Product
		price string
	)
	if err := row.Scan(&p.ID, &p.Name, &price, &p.AvailableQuantity, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return orders.Product{}, err
	}
	d, err := parseDecimal(price)
	if err != nil {
		return orders.Product{}, err
	}
	p.Price = d
	return p, nil
}

func (t *pgTx) Product(ctx context.Context, id string) (orders.Product, error) {
	p, err := scanProduct(t.tx.QueryRow(ctx, `SELECT `+productCols+` FROM products WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Product{}, orders.ErrProductNotFound
	}
	if err != nil {
		return orders.Product{}, dbErr("select product", err)
	}
	return p, nil
}

func (t *pgTx) ListProducts(ctx context.Context) ([]orders.Product, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+productCols+` FROM products ORDER BY name`)
	if err != nil {
		return nil, dbErr("list products", err)
	}
	defer rows.Close()

	out := []orders.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, dbErr("scan product", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("list products", err)
	}
	return out, nil
}

func (t *pgTx) SaveProduct(ctx context.Context, p orders.Product) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO products (id, name, price, available_quantity, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, price = EXCLUDED.price,
		    available_quantity = EXCLUDED.available_quantity, updated_at = now()`,
		p.ID, p.Name, p.Price, p.AvailableQuantity, p.CreatedAt)
	if err != nil {
		return dbErr("save product", err)
	}
	return nil
}

// DecrementStock is one conditional update; concurrent callers can never
// drive available_quantity below zero.
func (t *pgTx) DecrementStock(ctx context.Context, productID string, qty int) (int, error) {
	var left int
	err := t.tx.QueryRow(ctx, `
		UPDATE products
		SET available_quantity = available_quantity - $2, updated_at = now()
		WHERE id = $1 AND available_quantity >= $2
		RETURNING available_quantity`, productID, qty).Scan(&left)
	if err == nil {
		return left, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, dbErr("decrement stock", err)
	}

	var exists bool
	if err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID).Scan(&exists); err != nil {
		return 0, dbErr("decrement stock", err)
	}
	if !exists {
		return 0, orders.ErrProductNotFound
	}
	return 0, orders.ErrInsufficientStock
}

func (t *pgTx) IncrementStock(ctx context.Context, productID string, qty int) (int, error) {
	var left int
	err := t.tx.QueryRow(ctx, `
		UPDATE products
		SET available_quantity = available_quantity + $2, updated_at = now()
		WHERE id = $1
		RETURNING available_quantity`, productID, qty).Scan(&left)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, orders.ErrProductNotFound
	}
	if err != nil {
		return 0, dbErr("increment stock", err)
	}
	return left, nil
}

// ---- reservations ----

const reservationCols = `shopper_id, product_id, quantity, expires_at, created_at, updated_at`

func scanReservation(row pgx.Row) (orders.Reservation, error) {
	var r orders.Reservation
	err := row.Scan(&r.ShopperID, &r.ProductID, &r.Quantity, &r.ExpiresAt, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

// Reservation serialises every transaction touching (shopper, product) with a
// transaction scoped advisory lock, then reads the row FOR UPDATE. The
// advisory lock also covers the case where no row exists yet.
func (t *pgTx) Reservation(ctx context.Context, shopperID, productID string) (orders.Reservation, error) {
	if _, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1 || '/' || $2, 0))`,
		shopperID, productID); err != nil {
		return orders.Reservation{}, dbErr("lock reservation", err)
	}
	r, err := scanReservation(t.tx.QueryRow(ctx, `
		SELECT `+reservationCols+` FROM reservations
		WHERE shopper_id = $1 AND product_id = $2
		FOR UPDATE`, shopperID, productID))
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Reservation{}, orders.ErrReservationNotFound
	}
	if err != nil {
		return orders.Reservation{}, dbErr("select reservation", err)
	}
	return r, nil
}

func (t *pgTx) SaveReservation(ctx context.Context, r orders.Reservation) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO reservations (shopper_id, product_id, quantity, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (shopper_id, product_id) DO UPDATE
		SET quantity = EXCLUDED.quantity, expires_at = EXCLUDED.expires_at,
		    created_at = EXCLUDED.created_at, updated_at = EXCLUDED.updated_at`,
		r.ShopperID, r.ProductID, r.Quantity, r.ExpiresAt, r.CreatedAt, r.UpdatedAt)
	if isFKViolation(err) {
		return orders.ErrProductNotFound
	}
	if err != nil {
		return dbErr("save reservation", err)
	}
	return nil
}

func (t *pgTx) DeleteReservation(ctx context.Context, shopperID, productID string) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM reservations WHERE shopper_id = $1 AND product_id = $2`,
		shopperID, productID); err != nil {
		return dbErr("delete reservation", err)
	}
	return nil
}

func (t *pgTx) ExpiredReservations(ctx context.Context, now time.Time, limit int) ([]orders.Reservation, error) {
	return t.queryReservations(ctx, "expired reservations", `
		SELECT `+reservationCols+` FROM reservations
		WHERE expires_at <= $1
		ORDER BY expires_at
		LIMIT $2`, now, limit)
}

func (t *pgTx) ShopperReservations(ctx context.Context, shopperID string) ([]orders.Reservation, error) {
	return t.queryReservations(ctx, "shopper reservations", `
		SELECT `+reservationCols+` FROM reservations
		WHERE shopper_id = $1
		ORDER BY product_id`, shopperID)
}

func (t *pgTx) queryReservations(ctx context.Context, op, sql string, args ...any) ([]orders.Reservation, error) {
	rows, err := t.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, dbErr(op, err)
	}
	defer rows.Close()

	out := []orders.Reservation{}
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, dbErr(op, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr(op, err)
	}
	return out, nil
}

// ---- carts ----

func (t *pgTx) CartLines(ctx context.Context, shopperID string) ([]orders.CartLine, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT shopper_id, product_id, quantity, updated_at FROM cart_lines
		WHERE shopper_id = $1
		ORDER BY product_id`, shopperID)
	if err != nil {
		return nil, dbErr("cart lines", err)
	}
	defer rows.Close()

	out := []orders.CartLine{}
	for rows.Next() {
		var l orders.CartLine
		if err := rows.Scan(&l.ShopperID, &l.ProductID, &l.Quantity, &l.UpdatedAt); err != nil {
			return nil, dbErr("scan cart line", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("cart lines", err)
	}
	return out, nil
}

func (t *pgTx) CartLine(ctx context.Context, shopperID, productID string) (orders.CartLine, error) {
	var l orders.CartLine
	err := t.tx.QueryRow(ctx, `
		SELECT shopper_id, product_id, quantity, updated_at FROM cart_lines
		WHERE shopper_id = $1 AND product_id = $2
		FOR UPDATE`, shopperID, productID).Scan(&l.ShopperID, &l.ProductID, &l.Quantity, &l.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.CartLine{}, orders.ErrCartItemNotFound
	}
	if err != nil {
		return orders.CartLine{}, dbErr("select cart line", err)
	}
	return l, nil
}

func (t *pgTx) SaveCartLine(ctx context.Context, l orders.CartLine) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO cart_lines (shopper_id, product_id, quantity, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (shopper_id, product_id) DO UPDATE
		SET quantity = EXCLUDED.quantity, updated_at = EXCLUDED.updated_at`,
		l.ShopperID, l.ProductID, l.Quantity, l.UpdatedAt)
	if isFKViolation(err) {
		return orders.ErrProductNotFound
	}
	if err != nil {
		return dbErr("save cart line", err)
	}
	return nil
}

func (t *pgTx) DeleteCartLine(ctx context.Context, shopperID, productID string) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM cart_lines WHERE shopper_id = $1 AND product_id = $2`,
		shopperID, productID); err != nil {
		return dbErr("delete cart line", err)
	}
	return nil
}

func (t *pgTx) ClearCart(ctx context.Context, shopperID string) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM cart_lines WHERE shopper_id = $1`, shopperID); err != nil {
		return dbErr("clear cart", err)
	}
	return nil
}

// ---- orders ----

const orderCols = `id::text, customer_id, status, total_price::text, COALESCE(assigned_staff_id, ''), created_at, updated_at`

func scanOrder(row pgx.Row) (orders.Order, error) {
	var (
		o      orders.Order
		status string
		total  string
	)
	if err := row.Scan(&o.ID, &o.CustomerID, &status, &total, &o.AssignedStaffID, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return orders.Order{}, err
	}
	d, err := parseDecimal(total)
	if err != nil {
		return orders.Order{}, err
	}
	o.Status = orders.Status(status)
	o.TotalPrice = d
	return o, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (t *pgTx) CreateOrder(ctx context.Context, o orders.Order) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO orders (id, customer_id, status, total_price, assigned_staff_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		o.ID, o.CustomerID, string(o.Status), o.TotalPrice, nullable(o.AssignedStaffID), o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return dbErr("insert order", err)
	}
	for _, l := range o.Lines {
		_, err := t.tx.Exec(ctx, `
			INSERT INTO order_lines (order_id, product_id, quantity, unit_price)
			VALUES ($1, $2, $3, $4)`,
			o.ID, l.ProductID, l.Quantity, l.UnitPrice)
		if isFKViolation(err) {
			return orders.ErrProductNotFound
		}
		if err != nil {
			return dbErr("insert order line", err)
		}
	}
	return nil
}

func (t *pgTx) Order(ctx context.Context, id string) (orders.Order, error) {
	return t.order(ctx, id, "")
}

func (t *pgTx) LockOrder(ctx context.Context, id string) (orders.Order, error) {
	return t.order(ctx, id, " FOR UPDATE")
}

func (t *pgTx) order(ctx context.Context, id, lock string) (orders.Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return orders.Order{}, orders.ErrOrderNotFound
	}
	o, err := scanOrder(t.tx.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id = $1`+lock, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Order{}, orders.ErrOrderNotFound
	}
	if err != nil {
		return orders.Order{}, dbErr("select order", err)
	}
	lines, err := t.orderLines(ctx, []string{o.ID})
	if err != nil {
		return orders.Order{}, err
	}
	o.Lines = lines[o.ID]
	return o, nil
}

func (t *pgTx) orderLines(ctx context.Context, ids []string) (map[string][]orders.OrderLine, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT order_id::text, product_id, quantity, unit_price::text FROM order_lines
		WHERE order_id = ANY($1::uuid[])
		ORDER BY product_id`, ids)
	if err != nil {
		return nil, dbErr("order lines", err)
	}
	defer rows.Close()

	out := make(map[string][]orders.OrderLine, len(ids))
	for rows.Next() {
		var (
			orderID string
			l       orders.OrderLine
			price   string
		)
		if err := rows.Scan(&orderID, &l.ProductID, &l.Quantity, &price); err != nil {
			return nil, dbErr("scan order line", err)
		}
		if l.UnitPrice, err = parseDecimal(price); err != nil {
			return nil, dbErr("scan order line", err)
		}
		out[orderID] = append(out[orderID], l)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("order lines", err)
	}
	return out, nil
}

func (t *pgTx) UpdateOrder(ctx context.Context, o orders.Order) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE orders SET status = $2, assigned_staff_id = $3, updated_at = $4
		WHERE id = $1`,
		o.ID, string(o.Status), nullable(o.AssignedStaffID), o.UpdatedAt)
	if err != nil {
		return dbErr("update order", err)
	}
	if tag.RowsAffected() == 0 {
		return orders.ErrOrderNotFound
	}
	return nil
}

func (t *pgTx) DeleteOrder(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return nil
	}
	if _, err := t.tx.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id); err != nil {
		return dbErr("delete order", err)
	}
	return nil
}

func (t *pgTx) ListOrders(ctx context.Context, f orders.OrderFilter) ([]orders.Order, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.CustomerID != "" {
		add("customer_id = $%d", f.CustomerID)
	}
	if f.AssignedStaffID != "" {
		add("assigned_staff_id = $%d", f.AssignedStaffID)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	q := `SELECT ` + orderCols + ` FROM orders`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY created_at DESC`

	rows, err := t.tx.Query(ctx, q, args...)
	if err != nil {
		return nil, dbErr("list orders", err)
	}
	out := []orders.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, dbErr("scan order", err)
		}
		out = append(out, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, dbErr("list orders", err)
	}
	if len(out) == 0 {
		return out, nil
	}

	ids := make([]string, len(out))
	for i, o := range out {
		ids[i] = o.ID
	}
	lines, err := t.orderLines(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Lines = lines[out[i].ID]
	}
	return out, nil
}

func (t *pgTx) StaffReports(ctx context.Context, staffID string) ([]orders.StaffReport, error) {
	q := `SELECT COALESCE(assigned_staff_id, ''), status, count(*) FROM orders`
	var args []any
	if staffID != "" {
		q += ` WHERE assigned_staff_id = $1`
		args = append(args, staffID)
	}
	q += ` GROUP BY 1, 2 ORDER BY 1`

	rows, err := t.tx.Query(ctx, q, args...)
	if err != nil {
		return nil, dbErr("staff reports", err)
	}
	defer rows.Close()

	var (
		out []orders.StaffReport
		cur *orders.StaffReport
	)
	for rows.Next() {
		var (
			staff, status string
			n             int
		)
		if err := rows.Scan(&staff, &status, &n); err != nil {
			return nil, dbErr("scan staff report", err)
		}
		if cur == nil || cur.StaffID != staff {
			out = append(out, orders.StaffReport{StaffID: staff})
			cur = &out[len(out)-1]
		}
		cur.Add(orders.Status(status), n)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("staff reports", err)
	}
	if out == nil {
		out = []orders.StaffReport{}
	}
	return out, nil
}
