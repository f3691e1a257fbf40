package main

import (
	"context"
	"flag"
	"time"

	"go.uber.org/zap"

	"retailpos/backend/internal/config"
	"retailpos/backend/internal/logging"
	"retailpos/backend/internal/store"
	pgstore "retailpos/backend/internal/store/postgres"
)

func main() {
	seed := flag.Bool("seed", false, "load the demo catalog and dev accounts after migrating")
	flag.Parse()

	cfg := config.Load()
	logger := logging.New(cfg.Environment)
	defer func() { _ = logger.Sync() }()

	if cfg.DatabaseURL == "" {
		logger.Fatal("DATABASE_URL is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg, err := pgstore.New(ctx, cfg.DatabaseURL, pgstore.WithMaxRetries(cfg.DBMaxRetries))
	if err != nil {
		logger.Fatal("connect to postgres", zap.Error(err))
	}
	defer func() { _ = pg.Close() }()

	if err := pg.Migrate(ctx); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}
	logger.Info("migrations applied")

	if !*seed {
		return
	}
	if cfg.IsProduction() {
		logger.Fatal("refusing to load demo data in production")
	}
	if err := seedDemoData(ctx, pg); err != nil {
		logger.Fatal("seed demo data", zap.Error(err))
	}
	logger.Info("demo data loaded",
		zap.Int("locations", len(store.DemoLocations)),
		zap.Int("suppliers", len(store.DemoSuppliers)),
		zap.Int("products", len(store.DemoProducts)),
	)
}

func seedDemoData(ctx context.Context, pg *pgstore.Store) error {
	for _, loc := range store.DemoLocations {
		if err := pg.UpsertStoreLocation(ctx, loc); err != nil {
			return err
		}
	}
	for _, sup := range store.DemoSuppliers {
		if err := pg.UpsertSupplier(ctx, sup); err != nil {
			return err
		}
	}
	for _, p := range store.DemoProducts {
		if err := pg.UpsertProduct(ctx, p); err != nil {
			return err
		}
	}
	users, err := store.DemoUsers(time.Now())
	if err != nil {
		return err
	}
	for _, u := range users {
		if err := pg.UpsertUser(ctx, u); err != nil {
			return err
		}
	}
	return nil
}
