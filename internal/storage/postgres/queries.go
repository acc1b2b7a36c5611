package postgres

import (
	"context"
	"fmt"

	"purchaseservice/internal/purchase"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// queries implements the settlement ports over a pool or a transaction.
type queries struct {
	q querier
}

const productColumns = `id::text, title, price::text, inventory, created_at, updated_at`

func scanProduct(row pgx.Row) (*purchase.Product, error) {
	var (
		p     purchase.Product
		price string
	)
	if err := row.Scan(&p.ID, &p.Title, &price, &p.Inventory, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("parse price of %s: %w", p.ID, err)
	}
	p.Price = d
	return &p, nil
}

func (r queries) FindByID(ctx context.Context, id string) (*purchase.Product, error) {
	p, err := scanProduct(r.q.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if notFound(err) {
		return nil, fmt.Errorf("%w: %s", purchase.ErrProductNotFound, id)
	}
	return p, err
}

func (r queries) ApplyDebit(ctx context.Context, id string, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("debit quantity must be positive, got %d", quantity)
	}

	tag, err := r.q.Exec(ctx,
		`UPDATE products SET inventory = inventory - $2, updated_at = NOW()
		 WHERE id = $1 AND inventory >= $2`,
		id, quantity)
	if notFound(err) {
		return fmt.Errorf("%w: %s", purchase.ErrProductNotFound, id)
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := r.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", purchase.ErrProductNotFound, id)
	}
	return fmt.Errorf("%w: %s", purchase.ErrInsufficientInventory, id)
}

func (r queries) Exists(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists)
	if isPgError(err, codeInvalidTextEncoding) {
		return false, nil
	}
	return exists, err
}

func (r queries) AppendPurchases(ctx context.Context, userID string, records []purchase.Record) error {
	for _, rec := range records {
		_, err := r.q.Exec(ctx,
			`INSERT INTO purchases (user_id, title, price, quantity, purchased_at)
			 VALUES ($1, $2, $3::numeric, $4, $5)`,
			userID, rec.Title, rec.Price.String(), rec.Quantity, rec.Date)
		if err != nil {
			return fmt.Errorf("insert purchase %q: %w", rec.Title, err)
		}
	}
	if _, err := r.q.Exec(ctx, `UPDATE users SET updated_at = NOW() WHERE id = $1`, userID); err != nil {
		return err
	}
	return nil
}

func (r queries) purchases(ctx context.Context, userID string) ([]purchase.Record, error) {
	rows, err := r.q.Query(ctx,
		`SELECT title, price::text, quantity, purchased_at FROM purchases
		 WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []purchase.Record{}
	for rows.Next() {
		var (
			rec   purchase.Record
			price string
		)
		if err := rows.Scan(&rec.Title, &price, &rec.Quantity, &rec.Date); err != nil {
			return nil, err
		}
		if rec.Price, err = decimal.NewFromString(price); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
