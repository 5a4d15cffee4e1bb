package application

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"fulfillment/internal/pkg/logger"
	"fulfillment/internal/service/inventory/domain"
)

const seedConcurrency = 4

// SeedItem 是种子文件中的一条记录，Available 缺失视为无效
type SeedItem struct {
	SKU       string          `json:"sku" yaml:"sku"`
	Available *int64          `json:"available" yaml:"available"`
	Name      string          `json:"name,omitempty" yaml:"name,omitempty"`
	Price     decimal.Decimal `json:"price" yaml:"price"`
}

// SeedReport 汇总一次初始化的结果
type SeedReport struct {
	Upserted []domain.StockRecord
	Skipped  []string
}

// SeedLock 防止多个实例同时初始化库存
type SeedLock interface {
	Lock(ctx context.Context) error
	Unlock() error
}

func qty(n int64) *int64 { return &n }

// DefaultSeedItems 是没有提供种子文件时使用的演示库存
func DefaultSeedItems() []SeedItem {
	return []SeedItem{
		{SKU: "ABC123", Available: qty(100), Name: "Blue T-Shirt (M)", Price: decimal.RequireFromString("19.99")},
		{SKU: "ABC124", Available: qty(50), Name: "Blue T-Shirt (L)", Price: decimal.RequireFromString("19.99")},
		{SKU: "XYZ789", Available: qty(200), Name: "Coffee Mug", Price: decimal.RequireFromString("9.99")},
		{SKU: "LMN456", Available: qty(30), Name: "Wireless Mouse", Price: decimal.RequireFromString("24.99")},
		{SKU: "BKL321", Available: qty(75), Name: "Notebook (A5)", Price: decimal.RequireFromString("4.99")},
	}
}

// LoadSeedFile 读取 YAML (.yaml/.yml) 或 JSON 格式的种子文件，顶层是一个数组
func LoadSeedFile(path string) ([]SeedItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read seed file %s", path)
	}
	var items []SeedItem
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &items)
	default:
		err = json.Unmarshal(data, &items)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "parse seed file %s", path)
	}
	return items, nil
}

// Seeder 把种子数据写入账本。重复执行是幂等的（last-write-wins）。
type Seeder struct {
	ledger domain.StockLedger
	lock   SeedLock
}

func NewSeeder(ledger domain.StockLedger, lock SeedLock) *Seeder {
	return &Seeder{ledger: ledger, lock: lock}
}

// Seed 跳过无效条目；同一 SKU 出现多次时以最后一次为准
func (s *Seeder) Seed(ctx context.Context, items []SeedItem) (*SeedReport, error) {
	if s.lock != nil {
		if err := s.lock.Lock(ctx); err != nil {
			return nil, errors.Wrap(err, "acquire seed lock")
		}
		defer func() {
			if err := s.lock.Unlock(); err != nil {
				logger.Ctx(ctx).Warn().Err(err).Msg("Failed to release seed lock")
			}
		}()
	}

	report := &SeedReport{}
	index := make(map[string]int)
	var records []domain.StockRecord
	for i, it := range items {
		if it.Available == nil {
			report.Skipped = append(report.Skipped, it.SKU)
			logger.Ctx(ctx).Warn().Int("index", i).Str("sku", it.SKU).Msg("Skipping seed item without available")
			continue
		}
		rec := domain.StockRecord{SKU: it.SKU, Available: *it.Available, Name: it.Name, Price: it.Price}
		if err := rec.Validate(); err != nil {
			report.Skipped = append(report.Skipped, it.SKU)
			logger.Ctx(ctx).Warn().Err(err).Int("index", i).Msg("Skipping invalid seed item")
			continue
		}
		if pos, ok := index[rec.SKU]; ok {
			records[pos] = rec
			continue
		}
		index[rec.SKU] = len(records)
		records = append(records, rec)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(seedConcurrency)
	for i := range records {
		rec := &records[i]
		g.Go(func() error {
			if err := s.ledger.Upsert(gctx, rec); err != nil {
				return errors.Wrapf(err, "upsert %s", rec.SKU)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report.Upserted = records
	return report, nil
}
