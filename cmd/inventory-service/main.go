// cmd/inventory-service/main.go
package main

import (
	"context"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	zlog "github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"
	"storefront/internal/pkg/bootstrap"
	"storefront/internal/pkg/metrics"
	"storefront/internal/pkg/mq"
	"storefront/internal/service/inventory/application"
	"storefront/internal/service/inventory/domain"
	"storefront/internal/service/inventory/infrastructure/adapter"
	"storefront/internal/service/inventory/infrastructure/memory"
	"storefront/internal/service/inventory/infrastructure/persistence"
	"storefront/internal/service/inventory/interfaces"
)

const serviceName = "inventory-service"

func main() {
	cfg, err := bootstrap.LoadConfig(getConfigPath())
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to load config")
	}

	var cleanups []func(ctx context.Context)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        cfg.App.Port,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			// --- 依赖注入 ---
			store, closeStore := newLedgerStore(appCtx.Config)
			cleanups = append(cleanups, closeStore)

			opts := []application.Option{
				application.WithLockTimeout(appCtx.Config.App.LockTimeout),
				application.WithTracer(otel.Tracer(serviceName)),
				application.WithMetrics(metrics.NewTransferMetrics(prometheus.DefaultRegisterer)),
			}

			if addr := appCtx.Config.Infra.Redis.Addr; addr != "" {
				rdb := redis.NewClient(&redis.Options{
					Addr:     addr,
					Password: appCtx.Config.Infra.Redis.Password,
					DB:       appCtx.Config.Infra.Redis.DB,
				})
				opts = append(opts, application.WithIdempotencyGuard(adapter.NewRedisIdempotencyGuard(rdb, appCtx.Config.App.IdempotencyTTL, appCtx.Config.App.ClaimTTL())))
				cleanups = append(cleanups, func(context.Context) { _ = rdb.Close() })
				zlog.Info().Str("addr", addr).Msg("idempotency guard enabled")
			}

			if brokers := appCtx.Config.Infra.Kafka.Brokers; len(brokers) > 0 {
				writer := mq.NewKafkaWriter(brokers, appCtx.Config.Infra.Kafka.Topic)
				opts = append(opts, application.WithPublisher(adapter.NewTransferEventKafkaAdapter(writer)))
				cleanups = append(cleanups, func(context.Context) { _ = writer.Close() })
				zlog.Info().Strs("brokers", brokers).Str("topic", appCtx.Config.Infra.Kafka.Topic).Msg("event publishing enabled")
			} else {
				opts = append(opts, application.WithPublisher(adapter.NopPublisher{}))
			}

			svc := application.NewTransferService(store, opts...)
			handler := interfaces.NewInventoryHandler(svc, prometheus.DefaultGatherer)
			handler.RegisterRoutes(appCtx.Mux)
		},
		Cleanup: func(ctx context.Context) {
			for i := len(cleanups) - 1; i >= 0; i-- {
				cleanups[i](ctx)
			}
		},
	})
}

// newLedgerStore 根据 store_driver 选择库存存储
func newLedgerStore(cfg *bootstrap.Config) (domain.LedgerStore, func(context.Context)) {
	switch cfg.App.StoreDriver {
	case "mysql":
		db, err := persistence.OpenMySQL(cfg.Infra.MySQL.DSN)
		if err != nil {
			zlog.Fatal().Err(err).Msg("failed to connect to mysql")
		}
		return persistence.NewGormLedgerStore(db), func(context.Context) { closeDB(db) }
	default:
		zlog.Warn().Msg("using in-memory ledger store, stock is not persisted")
		return memory.NewLedgerStore(cfg.App.LockTimeout), func(context.Context) {}
	}
}

func closeDB(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		zlog.Error().Err(err).Msg("error closing mysql connection")
	}
}

func getConfigPath() string {
	if p := os.Getenv("CONFIG_FILE"); p != "" {
		return p
	}
	return "configs/inventory.yaml"
}
