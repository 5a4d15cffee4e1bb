// cmd/inventory-seed/main.go
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"fulfillment/internal/pkg/config"
	"fulfillment/internal/pkg/database"
	"fulfillment/internal/pkg/logger"
	"fulfillment/internal/pkg/redis"
	invapp "fulfillment/internal/service/inventory/application"
	invdomain "fulfillment/internal/service/inventory/domain"
	invinfra "fulfillment/internal/service/inventory/infrastructure"
	"fulfillment/internal/zookeeper"
)

const lockResource = "inventory-seed"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configFile string
		seedFile   string
		backend    string
	)
	cmd := &cobra.Command{
		Use:          "inventory-seed",
		Short:        "Upsert stock records into the inventory ledger",
		Long:         "Upsert stock records by SKU. Without --file a built-in sample list is used. Re-running is idempotent.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			if backend != "" {
				cfg.Ledger.Backend = backend
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			logger.Init("inventory-seed", cfg.App.LogLevel)
			return run(cmd.Context(), cmd, cfg, seedFile)
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "c", "", "config file (default $CONFIG_FILE or configs/fulfillment.yaml)")
	cmd.Flags().StringVarP(&seedFile, "file", "f", "", "seed file, a JSON or YAML array of {sku, available, name, price}")
	cmd.Flags().StringVar(&backend, "backend", "", "override ledger backend (redis|mysql)")
	return cmd
}

func run(ctx context.Context, cmd *cobra.Command, cfg *config.Config, seedFile string) error {
	items := invapp.DefaultSeedItems()
	if seedFile != "" {
		var err error
		if items, err = invapp.LoadSeedFile(seedFile); err != nil {
			return err
		}
	}

	ledger, closeLedger, err := openLedger(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLedger()

	// 配置了 ZooKeeper 时，多个并发执行的 seed 任务互斥
	var lock invapp.SeedLock
	if zkCfg := cfg.Infra.Zookeeper; len(zkCfg.Servers) > 0 {
		conn, err := zookeeper.Connect(ctx, zkCfg.Servers, zkCfg.SessionTimeout)
		if err != nil {
			return err
		}
		defer conn.Close()
		zkLock, err := zookeeper.NewDistributedLock(conn, lockResource, zkCfg.LockTimeout)
		if err != nil {
			return err
		}
		lock = zkLock
	}

	report, err := invapp.NewSeeder(ledger, lock).Seed(ctx, items)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, sku := range report.Skipped {
		fmt.Fprintf(out, "Skipped invalid item %q\n", sku)
	}
	for _, rec := range report.Upserted {
		fmt.Fprintf(out, "Upserted SKU %s (available=%d)\n", rec.SKU, rec.Available)
	}
	fmt.Fprintln(out, "Done.")
	return nil
}

func openLedger(ctx context.Context, cfg *config.Config) (invdomain.StockLedger, func(), error) {
	switch cfg.Ledger.Backend {
	case "redis":
		client, err := redis.NewClient(ctx, cfg.Infra.Redis.Addrs)
		if err != nil {
			return nil, nil, err
		}
		ledger, err := invinfra.NewRedisLedger(client)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return ledger, func() { _ = client.Close() }, nil
	case "mysql":
		db, err := database.OpenMySQL(cfg.Infra.MySQL.MySQLDSN())
		if err != nil {
			return nil, nil, err
		}
		if err := invinfra.AutoMigrate(db); err != nil {
			closeDB(db)()
			return nil, nil, err
		}
		return invinfra.NewGormLedger(db), closeDB(db), nil
	default:
		return nil, nil, errors.Errorf("ledger backend %q lives inside the service process and cannot be seeded externally", cfg.Ledger.Backend)
	}
}

func closeDB(db *gorm.DB) func() {
	return func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}
