// cmd/fulfillment-service/main.go
package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	zlog "github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"fulfillment/internal/pkg/bootstrap"
	"fulfillment/internal/pkg/config"
	"fulfillment/internal/pkg/database"
	"fulfillment/internal/pkg/mq"
	"fulfillment/internal/pkg/redis"
	invapp "fulfillment/internal/service/inventory/application"
	invdomain "fulfillment/internal/service/inventory/domain"
	invinfra "fulfillment/internal/service/inventory/infrastructure"
	"fulfillment/internal/service/order/application"
	"fulfillment/internal/service/order/domain"
	"fulfillment/internal/service/order/domain/port"
	orderinfra "fulfillment/internal/service/order/infrastructure"
	"fulfillment/internal/service/order/infrastructure/adapter"
	"fulfillment/internal/service/order/interfaces"
)

// main 函数是应用的"组装根" (Composition Root)
// 它的核心职责是：创建并组装所有依赖项，然后启动应用。
func main() {
	cfg, err := config.Load("")
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to load config")
	}

	err = bootstrap.StartService(bootstrap.AppInfo{
		Config:           cfg,
		RegisterHandlers: register,
	})
	if err != nil {
		zlog.Fatal().Err(err).Msg("Service exited with error")
	}
}

func register(appCtx *bootstrap.AppCtx) error {
	ctx := context.Background()
	cfg := appCtx.Config

	var db *gorm.DB
	if cfg.Ledger.Backend == "mysql" || cfg.Store.Backend == "mysql" {
		var err error
		if db, err = database.OpenMySQL(cfg.Infra.MySQL.MySQLDSN()); err != nil {
			return err
		}
		appCtx.AddCloser("mysql", func() error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		})
		if err := invinfra.AutoMigrate(db); err != nil {
			return err
		}
		if err := orderinfra.AutoMigrate(db); err != nil {
			return err
		}
	}

	ledger, err := newLedger(ctx, appCtx, db)
	if err != nil {
		return err
	}

	var (
		orders  domain.OrderRepository
		tokens  domain.ClientTokenStore
		journal invdomain.ReservationJournal
	)
	if cfg.Store.Backend == "mysql" {
		orders = orderinfra.NewGormOrderRepository(db)
		tokens = orderinfra.NewGormClientTokenStore(db)
		journal = invinfra.NewGormReservationJournal(db)
	} else {
		orders = orderinfra.NewMemoryOrderRepository()
		tokens = orderinfra.NewMemoryClientTokenStore()
		journal = invinfra.NewMemoryReservationJournal()
	}

	policy, err := domain.NewAdmissionPolicy(cfg.Order.AdmissionRule)
	if err != nil {
		return err
	}

	metrics := invapp.NewMetrics(prometheus.DefaultRegisterer)
	engine := invapp.NewReservationEngine(ledger, appCtx.Tracer, metrics, cfg.Ledger.CallTimeout)
	reserver := invapp.NewReservationService(engine, journal)

	kafkaCfg := cfg.Infra.Kafka
	var (
		publisher port.EventPublisher  = adapter.LogAdapter{}
		workflow  port.WorkflowStarter = adapter.LogAdapter{}
	)
	if len(kafkaCfg.Brokers) > 0 {
		eventWriter := mq.NewKafkaWriter(kafkaCfg.Brokers, kafkaCfg.Topics.Events)
		workflowWriter := mq.NewKafkaWriter(kafkaCfg.Brokers, kafkaCfg.Topics.Workflow)
		appCtx.AddCloser("event writer", eventWriter.Close)
		appCtx.AddCloser("workflow writer", workflowWriter.Close)
		publisher = adapter.NewEventKafkaAdapter(eventWriter)
		workflow = adapter.NewWorkflowKafkaAdapter(workflowWriter)
	}

	// 本节点的 WebSocket 订阅者和事件总线收到同样的事件
	hub := adapter.NewEventHub(publisher)

	svc := application.NewOrderApplicationService(application.Deps{
		Orders:    orders,
		Tokens:    tokens,
		Policy:    policy,
		Publisher: hub,
		Workflow:  workflow,
		Payments:  adapter.NewSimulatedPaymentAdapter(),
		Inventory: reserver,
	}, appCtx.Tracer, cfg.App.ProcessingTimeout)

	interfaces.NewOrderHandler(svc, appCtx.Tracer, prometheus.DefaultGatherer).RegisterRoutes(appCtx.Mux)
	interfaces.NewEventStreamHandler(orders, hub, appCtx.Tracer).RegisterRoutes(appCtx.Mux)

	if len(kafkaCfg.Brokers) > 0 {
		resultWriter := mq.NewKafkaWriter(kafkaCfg.Brokers, kafkaCfg.Topics.StepResults)
		dltWriter := mq.NewKafkaWriter(kafkaCfg.Brokers, kafkaCfg.Topics.DeadLetter)
		appCtx.AddCloser("step result writer", resultWriter.Close)
		appCtx.AddCloser("dead letter writer", dltWriter.Close)

		reader := mq.NewKafkaReader(kafkaCfg.Brokers, kafkaCfg.Topics.StepRequests, kafkaCfg.GroupID)
		appCtx.AddRunner(interfaces.NewStepConsumerAdapter(
			reader, resultWriter, interfaces.NewStepRouter(svc), mq.NewFailureHandler(dltWriter), appCtx.Tracer,
		))
	}
	return nil
}

func newLedger(ctx context.Context, appCtx *bootstrap.AppCtx, db *gorm.DB) (invdomain.StockLedger, error) {
	switch appCtx.Config.Ledger.Backend {
	case "redis":
		client, err := redis.NewClient(ctx, appCtx.Config.Infra.Redis.Addrs)
		if err != nil {
			return nil, err
		}
		appCtx.AddCloser("redis", client.Close)
		ledger, err := invinfra.NewRedisLedger(client)
		if err != nil {
			return nil, err
		}
		return ledger, nil
	case "mysql":
		return invinfra.NewGormLedger(db), nil
	default:
		// 内存账本只在本进程内有效，启动时写入演示库存
		ledger := invinfra.NewMemoryLedger()
		if _, err := invapp.NewSeeder(ledger, nil).Seed(ctx, invapp.DefaultSeedItems()); err != nil {
			return nil, err
		}
		return ledger, nil
	}
}
