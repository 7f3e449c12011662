package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/hitoshi/dealhunter/internal/config"
	"github.com/hitoshi/dealhunter/internal/metrics"
	"github.com/hitoshi/dealhunter/internal/model"
)

// PageFetcher はカタログページ取得のインターフェース。
type PageFetcher interface {
	FetchPage(ctx context.Context, url string) ([]byte, error)
}

// PageParser はカタログページのパースのインターフェース。
type PageParser interface {
	ParsePage(body []byte, regionCode string, pageNumber int) ([]model.RawDeal, error)
	ParseTotalPages(body []byte) (int, bool)
}

// CatalogScraper は1リージョンのカタログを逐次ページングで巡回する。
// ページは必ず順番に取得し、同一リージョン内で並行フェッチは行わない。
type CatalogScraper struct {
	fetcher   PageFetcher
	parser    PageParser
	logger    *slog.Logger
	collector metrics.MetricsCollector

	baseURL       string
	maxTotalPages int

	// テストから差し替えるための注入ポイント
	rng   *rand.Rand
	sleep func(ctx context.Context, d time.Duration) error
}

// NewCatalogScraper はCatalogScraperを生成する。
func NewCatalogScraper(
	fetcher PageFetcher,
	parser PageParser,
	baseURL string,
	maxTotalPages int,
	logger *slog.Logger,
	collector metrics.MetricsCollector,
) *CatalogScraper {
	return &CatalogScraper{
		fetcher:       fetcher,
		parser:        parser,
		logger:        logger,
		collector:     collector,
		baseURL:       baseURL,
		maxTotalPages: maxTotalPages,
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:         sleepContext,
	}
}

// pageURL は指定リージョンセグメントとページ番号のカタログURLを組み立てる。
func (s *CatalogScraper) pageURL(segment string, page int) string {
	return fmt.Sprintf("%s/region-%s/collection/all-discounts?page=%d&platform=PS5%%2CPS4",
		s.baseURL, segment, page)
}

// interPageDelay はページ間の待機時間（5〜10秒）を返す。
func (s *CatalogScraper) interPageDelay() time.Duration {
	return randomDuration(s.rng, 5*time.Second, 10*time.Second)
}

// DiscoverTotalPages はカタログの総ページ数を1ページ目から読み取る。
// 読み取れない場合や上限を超える場合は設定された上限を返す。
func (s *CatalogScraper) DiscoverTotalPages(ctx context.Context, regionCode string) int {
	info, ok := config.RegionByCode(regionCode)
	if !ok {
		return s.maxTotalPages
	}

	body, err := s.fetcher.FetchPage(ctx, s.pageURL(info.SourceSegment, 1))
	if err != nil {
		s.logger.Warn("総ページ数の取得に失敗しました。上限値を使用します",
			slog.String("region", regionCode),
			slog.Int("fallback", s.maxTotalPages),
			slog.String("error", err.Error()),
		)
		return s.maxTotalPages
	}

	total, ok := s.parser.ParseTotalPages(body)
	if !ok {
		s.logger.Warn("総ページ数を読み取れませんでした。上限値を使用します",
			slog.String("region", regionCode),
			slog.Int("fallback", s.maxTotalPages),
		)
		return s.maxTotalPages
	}

	if total > s.maxTotalPages {
		s.logger.Info("総ページ数が上限を超えています。上限で打ち切ります",
			slog.String("region", regionCode),
			slog.Int("total", total),
			slog.Int("cap", s.maxTotalPages),
		)
		return s.maxTotalPages
	}
	return total
}

// ScrapeRegion は指定リージョンをページ1からpageBudgetまで巡回し、
// 観測したディールと正常に読み取れたページ番号の集合を返す。
// 空ページが2回連続した場合と、既知のディールのみのページに達した場合は
// 早期に打ち切る。取得失敗ページは空として継続する。
func (s *CatalogScraper) ScrapeRegion(ctx context.Context, regionCode string, pageBudget int) ([]model.RawDeal, []int, error) {
	info, ok := config.RegionByCode(regionCode)
	if !ok {
		return nil, nil, fmt.Errorf("未知のリージョンコードです: %s", regionCode)
	}

	var (
		deals            []model.RawDeal
		scrapedPages     []int
		seenIDs          = make(map[string]struct{})
		consecutiveEmpty = 0
	)

	for page := 1; page <= pageBudget; page++ {
		if page > 1 {
			if err := s.sleep(ctx, s.interPageDelay()); err != nil {
				return deals, scrapedPages, err
			}
		}

		body, err := s.fetcher.FetchPage(ctx, s.pageURL(info.SourceSegment, page))
		if err != nil {
			if errors.Is(err, ErrRetryExhausted) {
				// 取得できなかったページは空として扱い、巡回は継続する
				s.logger.Warn("ページを取得できませんでした",
					slog.String("region", regionCode),
					slog.Int("page", page),
				)
				consecutiveEmpty++
				if consecutiveEmpty >= 2 {
					break
				}
				continue
			}
			return deals, scrapedPages, err
		}

		if s.collector != nil {
			s.collector.RecordPageFetched(regionCode)
		}

		pageDeals, err := s.parser.ParsePage(body, regionCode, page)
		if err != nil {
			s.logger.Warn("ページのパースに失敗しました",
				slog.String("region", regionCode),
				slog.Int("page", page),
				slog.String("error", err.Error()),
			)
			consecutiveEmpty++
			if consecutiveEmpty >= 2 {
				break
			}
			continue
		}

		scrapedPages = append(scrapedPages, page)

		if len(pageDeals) == 0 {
			consecutiveEmpty++
			s.logger.Info("空のページに達しました",
				slog.String("region", regionCode),
				slog.Int("page", page),
				slog.Int("consecutive_empty", consecutiveEmpty),
			)
			if consecutiveEmpty >= 2 {
				break
			}
			continue
		}
		consecutiveEmpty = 0

		// リージョン内でのディールの重複を除去する
		newCount := 0
		for _, deal := range pageDeals {
			if _, dup := seenIDs[deal.GameID]; dup {
				continue
			}
			seenIDs[deal.GameID] = struct{}{}
			deals = append(deals, deal)
			newCount++
		}

		if s.collector != nil {
			s.collector.RecordDealsParsed(regionCode, newCount)
		}

		s.logger.Info("ページのスクレイプが完了しました",
			slog.String("region", regionCode),
			slog.Int("page", page),
			slog.Int("deals_on_page", len(pageDeals)),
			slog.Int("new_deals", newCount),
		)

		// 既知のディールしか載っていないページに達したらカタログ末尾とみなす
		if newCount == 0 {
			s.logger.Info("既知のディールのみのページに達したため巡回を終了します",
				slog.String("region", regionCode),
				slog.Int("page", page),
			)
			break
		}
	}

	return deals, scrapedPages, nil
}
