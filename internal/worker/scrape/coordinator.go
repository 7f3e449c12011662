// Package scrape はリージョン横断のスクレイプ実行を調整する。
// リージョンごとのスクレイプ・照合・通知を1つのパスとしてまとめ、
// 同時に処理するリージョン数をsemaphoreパターンで制御する。
package scrape

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/dealhunter/internal/metrics"
	"github.com/hitoshi/dealhunter/internal/model"
	"github.com/hitoshi/dealhunter/internal/notify"
)

// RegionScraper はリージョン単位のカタログ巡回のインターフェース。
type RegionScraper interface {
	ScrapeRegion(ctx context.Context, regionCode string, pageBudget int) ([]model.RawDeal, []int, error)
	DiscoverTotalPages(ctx context.Context, regionCode string) int
}

// DealPersister は観測結果の照合・永続化のインターフェース。
type DealPersister interface {
	Persist(ctx context.Context, regionCode string, observed []model.RawDeal, scrapedPages []int) ([]model.RawDeal, error)
}

// DealNotifier は通知配信のインターフェース。
type DealNotifier interface {
	NotifyNewDeals(ctx context.Context, regionCode string, deals []model.RawDeal) (notify.DeliveryResult, error)
	CheckPriceAlerts(ctx context.Context) (notify.DeliveryResult, error)
	ReassignPlaceholderWishlists(ctx context.Context) error
}

// Coordinator は定期スクレイプの起点。リージョンごとの処理を起動し、
// パス全体の完了後に価格アラートを評価する。
type Coordinator struct {
	scraper   RegionScraper
	persister DealPersister
	notifier  DealNotifier
	logger    *slog.Logger
	collector metrics.MetricsCollector

	regions           []string
	incrementalPages  int
	regionConcurrency int
	initialFullScrape bool
}

// NewCoordinator はCoordinatorを生成する。
// regionConcurrencyが0以下の場合はリージョンを1つずつ処理する。
func NewCoordinator(
	scraper RegionScraper,
	persister DealPersister,
	notifier DealNotifier,
	regions []string,
	incrementalPages int,
	regionConcurrency int,
	initialFullScrape bool,
	logger *slog.Logger,
	collector metrics.MetricsCollector,
) *Coordinator {
	if regionConcurrency <= 0 {
		regionConcurrency = 1
	}
	return &Coordinator{
		scraper:           scraper,
		persister:         persister,
		notifier:          notifier,
		regions:           regions,
		incrementalPages:  incrementalPages,
		regionConcurrency: regionConcurrency,
		initialFullScrape: initialFullScrape,
		logger:            logger,
		collector:         collector,
	}
}

// Start は定期スクレイプを起動する。起動時に全ページスクレイプを1回実行し
// （設定で無効化可能）、以降は指定間隔で増分スクレイプを繰り返す。
// コンテキストがキャンセルされるまで実行を継続する。
func (c *Coordinator) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.logger.Info("スクレイプコーディネーターを開始しました",
		slog.Duration("interval", interval),
		slog.Int("region_concurrency", c.regionConcurrency),
		slog.Bool("initial_full_scrape", c.initialFullScrape),
	)

	if c.initialFullScrape {
		c.ScrapeAllRegions(ctx, true)
	} else {
		c.ScrapeAllRegions(ctx, false)
	}

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("スクレイプコーディネーターを停止しました")
			return
		case <-ticker.C:
			c.ScrapeAllRegions(ctx, false)
		}
	}
}

// ScrapeAllRegions は全リージョンのスクレイプパスを1回実行する。
// fullがtrueの場合はカタログの全ページを対象にし、falseの場合は
// 設定された増分ページ数のみを対象にする。リージョン間の失敗は独立で、
// 1リージョンの失敗やパニックが他のリージョンを止めることはない。
func (c *Coordinator) ScrapeAllRegions(ctx context.Context, full bool) {
	passID := uuid.NewString()
	start := time.Now()

	c.logger.Info("スクレイプパスを開始します",
		slog.String("pass_id", passID),
		slog.Bool("full", full),
		slog.Int("regions", len(c.regions)),
	)

	sem := make(chan struct{}, c.regionConcurrency)
	var wg sync.WaitGroup

	for _, region := range c.regions {
		wg.Add(1)
		sem <- struct{}{} // semaphore取得（ブロック）

		go func(regionCode string) {
			defer wg.Done()
			defer func() { <-sem }() // semaphore解放
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error("リージョン処理でパニックが発生しました",
						slog.String("pass_id", passID),
						slog.String("region", regionCode),
						slog.Any("panic", r),
					)
				}
			}()

			c.scrapeRegion(ctx, passID, regionCode, full)
		}(region)
	}

	wg.Wait()

	// 全リージョン反映後に価格アラートを評価する
	if _, err := c.notifier.CheckPriceAlerts(ctx); err != nil {
		c.logger.Error("価格アラートの評価に失敗しました",
			slog.String("pass_id", passID),
			slog.String("error", err.Error()),
		)
	}

	c.logger.Info("スクレイプパスが完了しました",
		slog.String("pass_id", passID),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
}

// scrapeRegion は1リージョン分のスクレイプ・照合・通知を実行する。
func (c *Coordinator) scrapeRegion(ctx context.Context, passID, regionCode string, full bool) {
	start := time.Now()

	budget := c.incrementalPages
	if full {
		budget = c.scraper.DiscoverTotalPages(ctx, regionCode)
	}

	deals, pages, err := c.scraper.ScrapeRegion(ctx, regionCode, budget)
	if err != nil {
		c.logger.Error("リージョンのスクレイプに失敗しました",
			slog.String("pass_id", passID),
			slog.String("region", regionCode),
			slog.String("error", err.Error()),
		)
		return
	}

	changed, err := c.persister.Persist(ctx, regionCode, deals, pages)
	if err != nil {
		c.logger.Error("スクレイプ結果の永続化に失敗しました",
			slog.String("pass_id", passID),
			slog.String("region", regionCode),
			slog.String("error", err.Error()),
		)
		return
	}

	// 新しく観測されたゲームに仮ウィッシュリストを付け替えてから通知する
	if err := c.notifier.ReassignPlaceholderWishlists(ctx); err != nil {
		c.logger.Error("仮ウィッシュリストの付け替えに失敗しました",
			slog.String("pass_id", passID),
			slog.String("error", err.Error()),
		)
	}

	if len(changed) > 0 {
		if _, err := c.notifier.NotifyNewDeals(ctx, regionCode, changed); err != nil {
			c.logger.Error("ディール通知の配信に失敗しました",
				slog.String("pass_id", passID),
				slog.String("region", regionCode),
				slog.String("error", err.Error()),
			)
		}
	}

	duration := time.Since(start)
	if c.collector != nil {
		c.collector.RecordScrapeLatency(regionCode, duration)
	}

	c.logger.Info("リージョンの処理が完了しました",
		slog.String("pass_id", passID),
		slog.String("region", regionCode),
		slog.Int("page_budget", budget),
		slog.Int("deals", len(deals)),
		slog.Int("changed", len(changed)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)
}
