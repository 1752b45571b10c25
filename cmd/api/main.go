package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"storeapi/internal/config"
	"storeapi/internal/handler"
	"storeapi/internal/infra/cache"
	"storeapi/internal/infra/db"
	"storeapi/internal/infra/feed"
	infraRepo "storeapi/internal/infra/repository"
	repo "storeapi/internal/repository"
	"storeapi/internal/server"
	"storeapi/internal/usecase"
	"storeapi/internal/validator"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type realClock struct{}

func (c *realClock) Now() time.Time {
	return time.Now()
}

func main() {
	// .envは無くてもよい（本番は環境変数で渡す）
	if err := godotenv.Load("../.env"); err != nil {
		_ = godotenv.Load()
	}

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := config.NewLogger(cfg.LogLevel, cfg.GoEnv)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	//DB接続（primaryは必須、replicaは落ちていても起動する）
	primary, err := db.Connect(dbOptions(cfg, cfg.Primary))
	if err != nil {
		logger.Fatal("primary connect failed", zap.Error(err))
	}

	// replicaは落ちていても起動し、Routerが後から再接続する
	dialReplica := func() (*gorm.DB, error) {
		return db.Connect(dbOptions(cfg, cfg.Replica))
	}
	replica, err := dialReplica()
	if err != nil {
		logger.Warn("replica connect failed, general reads unavailable until it recovers", zap.Error(err))
		replica = nil
	}

	router := db.NewRouter(primary, replica, db.RouterConfig{
		Timeout:         cfg.DBTimeout,
		ReplicaFallback: cfg.DBReplicaFallback,
		ReplicaDialer:   dialReplica,
	}, logger.Named("router"))

	//Repository（GORM実装）生成
	productRepo := infraRepo.NewProductGormRepository(router)

	var productCache repo.ProductCache = cache.NopProductCache{}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = rdb.Close() }()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis ping failed, product cache disabled", zap.Error(err))
		} else {
			productCache = cache.NewRedisProductCache(rdb, "storeapi:", cfg.CacheTTL)
		}
	}

	feedClient := feed.NewClient(feed.Config{
		URL:     cfg.FeedURL,
		Timeout: cfg.FeedTimeout,
	}, logger.Named("feed"))

	//Usecase生成
	clock := &realClock{}
	productUC := usecase.NewProductUsecase(productRepo, productCache, validator.NewProductValidator(), clock, logger.Named("product"))
	importUC := usecase.NewImportUsecase(productRepo, feedClient, clock, usecase.ImportConfig{
		BatchSize:            cfg.ImportBatchSize,
		CaseInsensitiveDedup: cfg.ImportDedupCaseInsensitive,
		Timeout:              cfg.ImportTimeout,
	}, logger.Named("import"))

	//定期取り込み
	if cfg.ImportCron != "" {
		c := cron.New()
		if _, err := c.AddFunc(cfg.ImportCron, func() {
			if _, err := importUC.Import(ctx); err != nil {
				logger.Warn("scheduled import failed", zap.Error(err))
			}
		}); err != nil {
			logger.Fatal("invalid IMPORT_CRON", zap.String("expr", cfg.ImportCron), zap.Error(err))
		}
		c.Start()
		defer c.Stop()
	}

	//Handler生成
	e := server.New(server.Handlers{
		Product: handler.NewProductHandler(productUC, logger),
		Import:  handler.NewImportHandler(importUC, logger),
		Health:  handler.NewHealthHandler(router),
	}, logger)

	//Server起動
	addr := cfg.Port
	if addr[0] != ':' {
		addr = ":" + addr
	}
	if err := server.Start(ctx, e, addr, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func dbOptions(cfg config.Config, c config.DBConfig) db.Options {
	dsn := c.DSN
	if dsn == "" {
		dsn = db.BuildDSN(c.Host, strconv.Itoa(c.Port), c.User, c.Password, c.Name, c.SSLMode)
	}
	return db.Options{
		DSN:             dsn,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxOpenConns,
		ConnMaxLifetime: 30 * time.Minute,
	}
}
