package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fjod/go_pharmacy/internal/catalog"
	"github.com/fjod/go_pharmacy/internal/config"
	"github.com/fjod/go_pharmacy/internal/docstore"
	"github.com/fjod/go_pharmacy/internal/domain"
	"github.com/fjod/go_pharmacy/internal/logger"
)

//go:embed medicines.json
var defaultMedicines []byte

// seed loads a medicine catalog into the configured document store.
// Without -file the bundled sample catalog is used.
func main() {
	file := flag.String("file", os.Getenv("SEED_FILE"), "path to a JSON array of medicines")
	timeout := flag.Duration("timeout", time.Minute, "overall seed timeout")
	flag.Parse()

	cfg := config.Load()
	log, err := logger.New("pharmacy-seed", cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	raw := defaultMedicines
	if *file != "" {
		if raw, err = os.ReadFile(*file); err != nil {
			log.Fatal("failed to read seed file", zap.String("file", *file), zap.Error(err))
		}
	}

	var medicines []domain.Medicine
	if err := json.Unmarshal(raw, &medicines); err != nil {
		log.Fatal("failed to parse seed data", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	docs, err := docstore.Open(ctx, cfg.Store)
	if err != nil {
		log.Fatal("failed to open document store", zap.String("driver", cfg.Store.Driver), zap.Error(err))
	}
	defer docs.Close(context.Background())

	var cache catalog.Cache = catalog.NoCache{}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		cache = catalog.NewRedisCache(rdb, cfg.CatalogTTL)
	}

	if err := catalog.New(docs, cache, log).Import(ctx, medicines); err != nil {
		log.Fatal("seed failed", zap.Error(err))
	}
	log.Info("catalog seeded", zap.Int("medicines", len(medicines)), zap.String("driver", cfg.Store.Driver))
}
