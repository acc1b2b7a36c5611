package postgres

import (
	"context"
	"fmt"
	"strings"

	"purchaseservice/internal/catalog"
	"purchaseservice/internal/purchase"
)

func (s *Store) CreateProduct(ctx context.Context, in catalog.NewProduct) (*purchase.Product, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	row := s.pool.QueryRow(ctx,
		`INSERT INTO products (title, price, inventory) VALUES ($1, $2::numeric, $3)
		 RETURNING `+productColumns,
		strings.TrimSpace(in.Title), in.Price.String(), in.Inventory)
	return scanProduct(row)
}

func (s *Store) GetProduct(ctx context.Context, id string) (*purchase.Product, error) {
	return s.FindByID(ctx, id)
}

func (s *Store) ListProducts(ctx context.Context, filter catalog.ProductFilter) ([]purchase.Product, int, error) {
	filter = filter.Normalize()
	where, args := productWhere(filter)

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	order := ` ORDER BY created_at ASC, id`
	if filter.Date == catalog.DateNewest {
		order = ` ORDER BY created_at DESC, id`
	}
	args = append(args, filter.Limit, filter.Offset())
	query := fmt.Sprintf(`SELECT %s FROM products%s%s LIMIT $%d OFFSET $%d`,
		productColumns, where, order, len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	products := []purchase.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		products = append(products, *p)
	}
	return products, total, rows.Err()
}

func productWhere(f catalog.ProductFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.Title != "" {
		add(`title ILIKE '%%' || $%d || '%%'`, f.Title)
	}
	if f.MinPrice != nil {
		add(`price >= $%d::numeric`, f.MinPrice.String())
	}
	if f.MaxPrice != nil {
		add(`price <= $%d::numeric`, f.MaxPrice.String())
	}
	switch f.Inventory {
	case catalog.InventorySoldOut:
		conds = append(conds, `inventory = 0`)
	case catalog.InventoryAvailable:
		conds = append(conds, `inventory > 0`)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if notFound(err) || (err == nil && tag.RowsAffected() == 0) {
		return fmt.Errorf("%w: %s", purchase.ErrProductNotFound, id)
	}
	return err
}

func (s *Store) CreateUser(ctx context.Context, email string) (*purchase.User, error) {
	if err := catalog.ValidateEmail(email); err != nil {
		return nil, err
	}

	u := purchase.User{Purchases: []purchase.Record{}}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (email) VALUES ($1) RETURNING id::text, email, created_at, updated_at`,
		strings.ToLower(strings.TrimSpace(email)),
	).Scan(&u.ID, &u.Email, &u.CreatedAt, &u.UpdatedAt)
	if isPgError(err, codeUniqueViolation) {
		return nil, catalog.ErrEmailTaken
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*purchase.User, error) {
	var u purchase.User
	err := s.pool.QueryRow(ctx,
		`SELECT id::text, email, created_at, updated_at FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Email, &u.CreatedAt, &u.UpdatedAt)
	if notFound(err) {
		return nil, fmt.Errorf("%w: %s", purchase.ErrUserNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	if u.Purchases, err = s.purchases(ctx, u.ID); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) ListUsers(ctx context.Context, page catalog.Paging) ([]purchase.User, int, error) {
	page = page.Normalize()

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id::text, email, created_at, updated_at FROM users
		 ORDER BY created_at ASC, id LIMIT $1 OFFSET $2`, page.Limit, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	users := []purchase.User{}
	for rows.Next() {
		var u purchase.User
		if err := rows.Scan(&u.ID, &u.Email, &u.CreatedAt, &u.UpdatedAt); err != nil {
			rows.Close()
			return nil, 0, err
		}
		users = append(users, u)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	// Ledgers are loaded after the page is read so the pool is not asked
	// for a second connection while rows are open.
	for i := range users {
		if users[i].Purchases, err = s.purchases(ctx, users[i].ID); err != nil {
			return nil, 0, err
		}
	}
	return users, total, nil
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if notFound(err) || (err == nil && tag.RowsAffected() == 0) {
		return fmt.Errorf("%w: %s", purchase.ErrUserNotFound, id)
	}
	return err
}

func (s *Store) Purchases(ctx context.Context, userID string) ([]purchase.Record, error) {
	ok, err := s.Exists(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", purchase.ErrUserNotFound, userID)
	}
	return s.purchases(ctx, userID)
}
