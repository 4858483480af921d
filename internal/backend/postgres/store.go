// Package postgres is a durable authoritative cart store on PostgreSQL,
// accessed through the pgx database/sql driver.
//
// Every mutation runs in one transaction that row-locks the cart, so
// concurrent sessions on the same cart serialize at the database.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"storefront-cart/internal/backend"
	"storefront-cart/internal/model"
)

//go:embed schema.sql
var schema string

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Store implements backend.Backend, backend.Applier and backend.Catalog.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open connects with the pgx driver and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// NewStore wraps an open database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Migrate creates the cart tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate cart schema: %w", err)
	}
	return nil
}

// PutProduct upserts a catalog product and its expanded variants.
func (s *Store) PutProduct(ctx context.Context, p model.Product) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
        insert into cart_products (id, title, slug, price_amount, currency, inventory, enable_variants)
        values ($1,$2,$3,$4,$5,$6,$7)
        on conflict (id) do update
        set title = excluded.title,
            slug = excluded.slug,
            price_amount = excluded.price_amount,
            currency = excluded.currency,
            inventory = excluded.inventory,
            enable_variants = excluded.enable_variants
    `, p.ID, p.Title, p.Slug, p.Price.Amount, currencyOr(p.Price.Currency), nullInt(p.Inventory), p.EnableVariants)
	if err != nil {
		return fmt.Errorf("upsert product %s: %w", p.ID, err)
	}

	for _, ref := range p.Variants {
		v, ok := ref.Resolve()
		if !ok {
			continue
		}
		_, err = tx.ExecContext(ctx, `
            insert into cart_variants (id, product_id, title, price_amount, currency, inventory)
            values ($1,$2,$3,$4,$5,$6)
            on conflict (id) do update
            set product_id = excluded.product_id,
                title = excluded.title,
                price_amount = excluded.price_amount,
                currency = excluded.currency,
                inventory = excluded.inventory
        `, v.ID, p.ID, v.Title, v.Price.Amount, currencyOr(v.Price.Currency), nullInt(v.Inventory))
		if err != nil {
			return fmt.Errorf("upsert variant %s: %w", v.ID, err)
		}
	}

	return tx.Commit()
}

// Product implements backend.Catalog.
func (s *Store) Product(ctx context.Context, productID string) (*model.Product, error) {
	return loadProduct(ctx, s.db, productID)
}

// Fetch implements backend.Backend.
func (s *Store) Fetch(ctx context.Context, cartID string) (*model.CartSnapshot, error) {
	return loadSnapshot(ctx, s.db, cartID)
}

// Mutate implements backend.Backend.
func (s *Store) Mutate(ctx context.Context, cartID string, m model.Mutation) (*model.CartSnapshot, error) {
	return s.Apply(ctx, cartID, []model.Mutation{m})
}

// Apply implements backend.Applier.
func (s *Store) Apply(ctx context.Context, cartID string, ms []model.Mutation) (*model.CartSnapshot, error) {
	if cartID == "" {
		cartID = uuid.NewString()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`insert into carts (id, version, updated_at_utc) values ($1, 0, $2) on conflict (id) do nothing`,
		cartID, s.now()); err != nil {
		return nil, fmt.Errorf("ensure cart: %w", err)
	}

	var version int64
	if err := tx.QueryRowContext(ctx,
		`select version from carts where id = $1 for update`, cartID).Scan(&version); err != nil {
		return nil, fmt.Errorf("lock cart: %w", err)
	}

	lines, err := loadLines(ctx, tx, cartID)
	if err != nil {
		return nil, err
	}

	// Catalog rows are read inside the transaction; cache per Apply.
	products := make(map[string]*model.Product)
	var lookupErr error
	lookup := func(id string) (model.Product, bool) {
		if p, ok := products[id]; ok {
			if p == nil {
				return model.Product{}, false
			}
			return *p, true
		}
		p, err := loadProduct(ctx, tx, id)
		if err != nil {
			if !errors.Is(err, model.ErrNotFound) {
				lookupErr = err
			}
			products[id] = nil
			return model.Product{}, false
		}
		products[id] = p
		return *p, true
	}
	rules := backend.Rules{
		Ceiling: backend.ProductCeiling(lookup),
		HasVariants: func(id string) bool {
			p, ok := lookup(id)
			return !ok || p.EnableVariants
		},
	}

	next, err := rules.ApplyAll(lines, ms)
	if lookupErr != nil {
		return nil, lookupErr
	}
	if err != nil {
		return nil, err
	}

	if err := writeLines(ctx, tx, cartID, next); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx,
		`update carts set version = version + 1, updated_at_utc = $2 where id = $1`,
		cartID, s.now()); err != nil {
		return nil, fmt.Errorf("bump cart version: %w", err)
	}

	snap, err := loadSnapshot(ctx, tx, cartID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit cart mutation: %w", err)
	}
	return snap, nil
}

func loadLines(ctx context.Context, q querier, cartID string) ([]backend.Line, error) {
	rows, err := q.QueryContext(ctx, `
        select id, product_id, variant_id, quantity
        from cart_lines
        where cart_id = $1
        order by position, id
    `, cartID)
	if err != nil {
		return nil, fmt.Errorf("load cart lines: %w", err)
	}
	defer rows.Close()

	var lines []backend.Line
	for rows.Next() {
		var l backend.Line
		if err := rows.Scan(&l.ID, &l.ProductID, &l.VariantID, &l.Quantity); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func writeLines(ctx context.Context, tx *sql.Tx, cartID string, lines []backend.Line) error {
	if _, err := tx.ExecContext(ctx, `delete from cart_lines where cart_id = $1`, cartID); err != nil {
		return fmt.Errorf("clear cart lines: %w", err)
	}
	if len(lines) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `
        insert into cart_lines (id, cart_id, product_id, variant_id, quantity, position)
        values ($1,$2,$3,$4,$5,$6)
    `)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, l := range lines {
		if _, err := stmt.ExecContext(ctx, l.ID, cartID, l.ProductID, l.VariantID, l.Quantity, i); err != nil {
			return fmt.Errorf("write cart line %s: %w", l.ID, err)
		}
	}
	return nil
}

func loadProduct(ctx context.Context, q querier, productID string) (*model.Product, error) {
	var p model.Product
	var inventory sql.NullInt64
	err := q.QueryRowContext(ctx, `
        select id, title, slug, price_amount, currency, inventory, enable_variants
        from cart_products
        where id = $1
    `, productID).Scan(&p.ID, &p.Title, &p.Slug, &p.Price.Amount, &p.Price.Currency, &inventory, &p.EnableVariants)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.NewNotFoundError("product " + productID)
		}
		return nil, fmt.Errorf("load product %s: %w", productID, err)
	}
	p.Inventory = intPtr(inventory)

	rows, err := q.QueryContext(ctx, `
        select id, title, price_amount, currency, inventory
        from cart_variants
        where product_id = $1
        order by id
    `, productID)
	if err != nil {
		return nil, fmt.Errorf("load variants for %s: %w", productID, err)
	}
	defer rows.Close()

	for rows.Next() {
		v := model.Variant{ProductID: productID}
		var vInv sql.NullInt64
		if err := rows.Scan(&v.ID, &v.Title, &v.Price.Amount, &v.Price.Currency, &vInv); err != nil {
			return nil, err
		}
		v.Inventory = intPtr(vInv)
		p.Variants = append(p.Variants, model.Expand(v))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &p, nil
}

func loadSnapshot(ctx context.Context, q querier, cartID string) (*model.CartSnapshot, error) {
	snap := &model.CartSnapshot{ID: cartID, Items: []model.CartLine{}}

	var version int64
	var customerID, customerEmail sql.NullString
	err := q.QueryRowContext(ctx, `
        select version, updated_at_utc, customer_id, customer_email
        from carts
        where id = $1
    `, cartID).Scan(&version, &snap.UpdatedAt, &customerID, &customerEmail)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return snap, nil
		}
		return nil, fmt.Errorf("load cart: %w", err)
	}
	snap.Version = uint64(version)
	if customerID.Valid {
		snap.Customer = &model.UserIdentity{ID: customerID.String, Email: customerEmail.String}
	}

	lines, err := loadLines(ctx, q, cartID)
	if err != nil {
		return nil, err
	}

	products := make(map[string]*model.Product)
	for _, l := range lines {
		p, seen := products[l.ProductID]
		if !seen {
			p, err = loadProduct(ctx, q, l.ProductID)
			if err != nil && !errors.Is(err, model.ErrNotFound) {
				return nil, err
			}
			products[l.ProductID] = p
		}
		cl := backend.ExpandLine(l, p)
		snap.Items = append(snap.Items, cl)
		snap.Subtotal = snap.Subtotal.Add(cl.UnitPrice.Mul(cl.Quantity))
	}
	return snap, nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func currencyOr(code string) string {
	if code == "" {
		return "USD"
	}
	return code
}

var (
	_ backend.Backend = (*Store)(nil)
	_ backend.Applier = (*Store)(nil)
	_ backend.Catalog = (*Store)(nil)
)
