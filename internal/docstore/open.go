package docstore

import (
	"context"
	"fmt"

	"github.com/fjod/go_pharmacy/internal/config"
)

// Open builds the backend selected by cfg.Driver and prepares its schema.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "mongo", "mongodb":
		db, err := ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		store := NewMongoStore(db)
		if err := store.CreateIndexes(ctx); err != nil {
			return nil, err
		}
		return store, nil
	case "firestore":
		client, err := NewFirestoreClient(ctx, cfg.FirestoreProjectID, cfg.FirestoreCredFile)
		if err != nil {
			return nil, err
		}
		return NewFirestoreStore(client), nil
	case "postgres":
		store, err := OpenPostgres(cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if err := store.RunMigrations(); err != nil {
			return nil, err
		}
		return store, nil
	case "sqlite":
		store, err := OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		if err := store.RunMigrations(); err != nil {
			return nil, err
		}
		return store, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}
