package app

import (
	"context"
	"errors"
	"fmt"

	"purchaseservice/internal/cart"
	"purchaseservice/internal/catalog"
	"purchaseservice/internal/config"
	"purchaseservice/internal/platform/observability"
	"purchaseservice/internal/purchase"
	"purchaseservice/internal/storage/memory"
	"purchaseservice/internal/storage/postgres"

	"go.uber.org/zap"
)

// stores groups the backends chosen by configuration.
type stores struct {
	products purchase.ProductStore
	ledger   purchase.LedgerStore
	tx       purchase.Transactor
	catalog  catalog.Products
	users    catalog.Users
	carts    cart.Store

	closers []func() error
}

func (s *stores) close() error {
	var err error
	for i := len(s.closers) - 1; i >= 0; i-- {
		err = errors.Join(err, s.closers[i]())
	}
	return err
}

func (c *Container) setupStores(ctx context.Context) error {
	s, err := openStores(ctx, c.config, c.logger)
	if err != nil {
		return err
	}
	c.stores = s
	return nil
}

func openStores(ctx context.Context, cfg *config.Config, logger observability.Logger) (*stores, error) {
	s := &stores{}

	if cfg.DatabaseURL == "" {
		mem := memory.New()
		s.products, s.ledger, s.tx, s.catalog, s.users = mem, mem, mem, mem, mem
		logger.Info("Using in-memory product and user stores")
	} else {
		pg, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func() error { pg.Close(); return nil })
		if err := pg.Migrate(ctx); err != nil {
			_ = s.close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		s.products, s.ledger, s.tx, s.catalog, s.users = pg, pg, pg, pg, pg
		logger.Info("Using Postgres product and user stores")
	}

	if cfg.RedisURL == "" {
		s.carts = cart.NewMemoryStore()
		logger.Info("Using in-memory cart store")
	} else {
		rs, err := cart.NewRedisStore(ctx, cfg.RedisURL, cfg.CartTTL)
		if err != nil {
			_ = s.close()
			return nil, err
		}
		s.closers = append(s.closers, rs.Close)
		s.carts = rs
		logger.Info("Using Redis cart store", zap.Duration("ttl", cfg.CartTTL))
	}

	return s, nil
}
