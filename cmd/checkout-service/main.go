// cmd/checkout-service/main.go
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"stockpay/internal/pkg/bootstrap"
	"stockpay/internal/pkg/httpclient"
	"stockpay/internal/pkg/lock"
	"stockpay/internal/pkg/metrics"
	"stockpay/internal/pkg/mq"
	"stockpay/internal/pkg/redis"
	checkoutapp "stockpay/internal/service/checkout/application"
	checkoutinfra "stockpay/internal/service/checkout/infrastructure"
	"stockpay/internal/service/checkout/infrastructure/adapter"
	checkoutiface "stockpay/internal/service/checkout/interfaces"
	inventoryapp "stockpay/internal/service/inventory/application"
	inventorydomain "stockpay/internal/service/inventory/domain"
	inventoryinfra "stockpay/internal/service/inventory/infrastructure"
	inventoryiface "stockpay/internal/service/inventory/interfaces"
	"stockpay/internal/zookeeper"
)

const redisLockPrefix = "stockpay:lock:"

// main 函数是应用的"组装根" (Composition Root)，负责创建并组装所有依赖项
func main() {
	cfg, err := bootstrap.LoadConfig("")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	err = bootstrap.StartService(cfg, bootstrap.AppInfo{
		ServiceName:      cfg.App.ServiceName,
		Port:             cfg.App.Port,
		RegisterHandlers: wire,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("checkout service exited with error")
	}
}

func wire(appCtx *bootstrap.AppCtx) error {
	cfg := appCtx.Config
	tracer := otel.Tracer(cfg.App.ServiceName)
	checkoutMetrics := metrics.NewCheckoutMetrics(nil)

	db, err := openMySQL(cfg.Infra.MySQL)
	if err != nil {
		return err
	}
	appCtx.OnShutdown(func(context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})

	rdb, err := redis.NewClient(context.Background(), cfg.Infra.Redis.Addrs, cfg.Infra.Redis.Password)
	if err != nil {
		return err
	}
	appCtx.OnShutdown(func(context.Context) error { return rdb.Close() })

	// 1. 库存: 存储、锁、预占
	products := inventoryinfra.NewGormProductRepository(db)
	store, err := buildStockStore(appCtx, cfg.Lock, products, rdb, cfg.Infra.Zookeeper)
	if err != nil {
		return err
	}
	feed := inventoryiface.NewStockFeed()
	reservations := inventoryapp.NewReservationManager(store, tracer,
		inventoryapp.WithMetrics(checkoutMetrics),
		inventoryapp.WithObserver(feed),
	)

	// 2. 结账的出站适配器
	bank := buildBankAdapter(appCtx, tracer)
	policy, err := adapter.NewCELResultPolicy(cfg.Checkout.SuccessPolicy)
	if err != nil {
		return err
	}
	eventsWriter := mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.EventsTopic)
	appCtx.OnShutdown(func(context.Context) error { return eventsWriter.Close() })

	idempotency := adapter.NewIdempotencyRedisAdapter(rdb, cfg.Checkout.IdempotencyTTL).
		WithPrefixTTL(checkoutapp.ReleaseClaimPrefix, cfg.Checkout.ReleaseClaimTTL)
	svc := checkoutapp.NewCheckoutService(checkoutapp.Dependencies{
		Reservations: adapter.NewInventoryLocalAdapter(reservations, products),
		Catalog:      adapter.NewInventoryLocalAdapter(reservations, products),
		Gateway:      bank,
		Policy:       policy,
		Ledger:       checkoutinfra.NewGormPaymentLedger(db),
		Idempotency:  idempotency,
		Publisher:    adapter.NewEventKafkaAdapter(eventsWriter),
		Metrics:      checkoutMetrics,
	}, tracer, cfg.Checkout.PaymentTimeout, cfg.Checkout.CompensationTimeout)

	// 3. 入站: HTTP、WebSocket、Kafka 消费者
	checkoutiface.NewCheckoutHandler(svc, tracer).RegisterRoutes(appCtx.Mux)
	appCtx.Mux.Handle("/ws/stock", feed)

	kafkaCfg := cfg.Infra.Kafka
	dltWriter := mq.NewKafkaWriter(kafkaCfg.Brokers, kafkaCfg.DLTTopic)
	appCtx.OnShutdown(func(context.Context) error { return dltWriter.Close() })

	releaseReader := mq.NewKafkaReader(kafkaCfg.Brokers, kafkaCfg.ReleaseTopic, kafkaCfg.ConsumerGroup)
	appCtx.AddWorker(checkoutiface.NewReleaseConsumer(releaseReader, svc, mq.NewFailureHandler(dltWriter), tracer, kafkaCfg.ReleaseTopic))

	dltReader := mq.NewKafkaReader(kafkaCfg.Brokers, kafkaCfg.DLTTopic, kafkaCfg.ConsumerGroup+"-dlt")
	appCtx.AddWorker(checkoutiface.NewDLTConsumer(dltReader, kafkaCfg.DLTTopic))

	log.Info().
		Str("lock_backend", cfg.Lock.Backend).
		Dur("payment_timeout", cfg.Checkout.PaymentTimeout).
		Msg("checkout service wired")
	return nil
}

func openMySQL(cfg bootstrap.MySQLConfig) (*gorm.DB, error) {
	dsn := cfg.DSN
	if dsn == "" {
		mc := mysql.NewConfig()
		mc.User = cfg.User
		mc.Passwd = cfg.Password
		mc.Net = "tcp"
		mc.Addr = cfg.Addr
		mc.DBName = cfg.Database
		mc.ParseTime = true
		mc.Params = map[string]string{"charset": "utf8mb4"}
		dsn = mc.FormatDSN()
	}

	db, err := gorm.Open(gormmysql.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mysql: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := db.AutoMigrate(&inventoryinfra.ProductModel{}, &checkoutinfra.PaymentModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return db, nil
}

// buildStockStore 按配置选择互斥方式。db 直接使用行锁，其他后端在普通读写外面包一把按商品划分的锁。
func buildStockStore(appCtx *bootstrap.AppCtx, cfg bootstrap.LockConfig, products *inventoryinfra.GormProductRepository,
	rdb goredis.UniversalClient, zkCfg bootstrap.ZookeeperConfig) (inventorydomain.StockStore, error) {
	switch cfg.Backend {
	case "db":
		return products, nil
	case "local":
		return inventoryinfra.NewLockingStockStore(lock.NewKeyedMutex(), products), nil
	case "redis":
		return inventoryinfra.NewLockingStockStore(lock.NewRedisLocker(rdb, redisLockPrefix, cfg.TTL, cfg.Wait), products), nil
	case "zookeeper":
		conn, err := zookeeper.Connect(zkCfg.Servers, zkCfg.SessionTimeout)
		if err != nil {
			return nil, err
		}
		appCtx.OnShutdown(func(context.Context) error { conn.Close(); return nil })
		return inventoryinfra.NewLockingStockStore(zookeeper.NewLocker(conn), products), nil
	default:
		return nil, fmt.Errorf("unknown lock backend %q", cfg.Backend)
	}
}

func buildBankAdapter(appCtx *bootstrap.AppCtx, tracer trace.Tracer) *adapter.BankHTTPAdapter {
	client := httpclient.NewClient(tracer)
	bankCfg := appCtx.Config.Bank
	if bankCfg.ServiceName != "" && appCtx.Nacos != nil {
		return adapter.NewDiscoveredBankHTTPAdapter(client, appCtx.Nacos, bankCfg.ServiceName)
	}
	return adapter.NewBankHTTPAdapter(client, bankCfg.URL)
}
