// Package main 商品目录导入工具：从 JSON（可选 gzip 压缩）读取商品，
// 生成检索关键词后写入持久化的文档存储，并重建筛选项文档。
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"go.uber.org/zap"

	"github.com/prmnaa30/vintage-marketplace/internal/config"
	"github.com/prmnaa30/vintage-marketplace/internal/database"
	"github.com/prmnaa30/vintage-marketplace/internal/docstore"
	"github.com/prmnaa30/vintage-marketplace/internal/logger"
	"github.com/prmnaa30/vintage-marketplace/internal/repo"
	"github.com/prmnaa30/vintage-marketplace/internal/seed"
)

func main() {
	var (
		file    = flag.String("file", "", "Product JSON file (.json or .json.gz)")
		backend = flag.String("backend", "", "Store backend: firestore, mysql, postgres (default: STORE_BACKEND)")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *backend != "" {
		cfg.Store.Backend = *backend
	}

	lg, err := logger.New(cfg.App.Env, cfg.Log.Level, cfg.Log.Encoding, "seed-catalog", cfg.App.Version)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	if *file == "" {
		lg.Fatal("-file is required")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, cfg, *file, lg); err != nil {
		lg.Sugar().Fatalw("catalog seed failed", "error", err)
	}
	lg.Info("catalog seed completed successfully")
}

func run(ctx context.Context, cfg *config.Config, path string, lg *zap.Logger) error {
	products, err := seed.ReadFile(path)
	if err != nil {
		return err
	}
	lg.Sugar().Infow("products loaded", "file", path, "count", len(products))

	w, closeFn, err := openWriter(ctx, cfg, lg)
	if err != nil {
		return err
	}
	defer closeFn()

	cols := repo.Collections{
		Products:    cfg.Catalog.ProductsCollection,
		Metadata:    cfg.Catalog.MetadataCollection,
		MetadataDoc: cfg.Catalog.MetadataDocID,
	}
	meta, err := seed.Import(ctx, repo.NewCatalogWriter(w, cols), products, time.Now().UTC())
	if err != nil {
		return err
	}
	lg.Sugar().Infow("facet metadata saved", "brands", len(meta.Brands), "categories", len(meta.Categories))
	return nil
}

// openWriter 连接目标存储；内存存储随进程退出丢失，改用 catalog-server 的 STORE_SEED_FILE
func openWriter(ctx context.Context, cfg *config.Config, lg *zap.Logger) (docstore.Writer, func(), error) {
	switch cfg.Store.Backend {
	case config.StoreFirestore:
		fs, err := docstore.NewFirestoreStore(ctx, cfg.Firestore.ProjectID, cfg.Firestore.CredentialsFile)
		if err != nil {
			return nil, nil, err
		}
		return fs, func() { _ = fs.Close() }, nil

	case config.StoreMySQL:
		db, err := database.New(cfg, lg)
		if err != nil {
			return nil, nil, err
		}
		if err := db.RunMigrations(cfg.Migrations.Dir); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return docstore.NewMySQLStore(db.DB), func() { _ = db.Close() }, nil

	case config.StorePostgres:
		pool, err := database.NewPostgresPool(ctx, cfg.Postgres.URL, lg)
		if err != nil {
			return nil, nil, err
		}
		if err := database.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return docstore.NewPostgresStore(pool), pool.Close, nil

	default:
		return nil, nil, fmt.Errorf("backend %q cannot be seeded", cfg.Store.Backend)
	}
}
