// Package reconcile はスクレイプ結果と保存済みセールの照合を行う。
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/dealhunter/internal/metrics"
	"github.com/hitoshi/dealhunter/internal/model"
	"github.com/hitoshi/dealhunter/internal/repository"
)

// Service は1リージョン分の観測結果を既存データと照合し、
// 差分を単一トランザクションで適用する。
type Service struct {
	gameRepo  repository.GameRepository
	dealRepo  repository.DealRepository
	logger    *slog.Logger
	collector metrics.MetricsCollector

	now func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	gameRepo repository.GameRepository,
	dealRepo repository.DealRepository,
	logger *slog.Logger,
	collector metrics.MetricsCollector,
) *Service {
	return &Service{
		gameRepo:  gameRepo,
		dealRepo:  dealRepo,
		logger:    logger,
		collector: collector,
		now:       time.Now,
	}
}

// Persist は観測されたディールを既存データと照合して永続化し、
// 新規または価格・割引が変動したディールを返す。
//
// ゲームは存在しなければ作成し、カバー画像は未設定の場合のみ補完する。
// セール行は毎回すべての可変フィールドを上書きし、掲載ページ情報も更新する。
// 価格履歴は変動の有無にかかわらず観測ごとに1行追記する。
// scrapedPagesに含まれるページに記録されていながら今回観測されなかった
// セールは掲載終了とみなして削除する。
func (s *Service) Persist(ctx context.Context, regionCode string, observed []model.RawDeal, scrapedPages []int) ([]model.RawDeal, error) {
	if len(observed) == 0 && len(scrapedPages) == 0 {
		return nil, nil
	}

	gameIDs := make([]string, 0, len(observed))
	observedSet := make(map[string]struct{}, len(observed))
	for _, deal := range observed {
		if _, dup := observedSet[deal.GameID]; dup {
			continue
		}
		observedSet[deal.GameID] = struct{}{}
		gameIDs = append(gameIDs, deal.GameID)
	}

	games, err := s.gameRepo.ListByIDs(ctx, gameIDs)
	if err != nil {
		return nil, fmt.Errorf("既存ゲームの読み込みに失敗しました: %w", err)
	}
	gameByID := make(map[string]*model.Game, len(games))
	for _, game := range games {
		gameByID[game.ID] = game
	}

	activeDeals, err := s.dealRepo.ListActiveByRegion(ctx, regionCode)
	if err != nil {
		return nil, fmt.Errorf("掲載中セールの読み込みに失敗しました: %w", err)
	}
	dealByGameID := make(map[string]*model.ActiveDeal, len(activeDeals))
	for _, deal := range activeDeals {
		dealByGameID[deal.GameID] = deal
	}

	batch := &repository.DealBatch{
		RegionCode:   regionCode,
		CoverPatches: make(map[string]string),
	}
	var changed []model.RawDeal
	now := s.now()

	for _, raw := range observed {
		game, exists := gameByID[raw.GameID]
		if !exists {
			batch.NewGames = append(batch.NewGames, &model.Game{
				ID:       raw.GameID,
				Title:    raw.Title,
				CoverURL: raw.CoverURL,
				Genre:    raw.Genre,
				Platform: raw.Platform,
			})
		} else if game.CoverURL == "" && raw.CoverURL != "" {
			batch.CoverPatches[raw.GameID] = raw.CoverURL
		}

		dealRow := &model.ActiveDeal{
			GameID:          raw.GameID,
			RegionCode:      regionCode,
			Price:           raw.Price,
			OriginalPrice:   raw.OriginalPrice,
			DiscountPercent: raw.DiscountPercent,
			Currency:        raw.Currency,
			SaleEndDate:     raw.SaleEndDate,
			PriceTag:        raw.PriceTag,
			PageNumber:      raw.PageNumber,
			PositionOnPage:  raw.PositionOnPage,
		}

		existing, hasDeal := dealByGameID[raw.GameID]
		if !hasDeal {
			batch.InsertDeals = append(batch.InsertDeals, dealRow)
			changed = append(changed, raw)
		} else {
			// 価格か割引率が動いた場合のみ通知対象。掲載位置の変動は対象外
			if existing.Price != raw.Price || existing.DiscountPercent != raw.DiscountPercent {
				changed = append(changed, raw)
			}
			batch.UpdateDeals = append(batch.UpdateDeals, dealRow)
		}

		batch.PriceRows = append(batch.PriceRows, &model.Price{
			GameID:          raw.GameID,
			RegionCode:      regionCode,
			Price:           raw.Price,
			OriginalPrice:   raw.OriginalPrice,
			DiscountPercent: raw.DiscountPercent,
			Currency:        raw.Currency,
			SaleEndDate:     raw.SaleEndDate,
			ScrapedAt:       now,
		})
	}

	// 掲載終了の判定は今回読み取れたページの範囲に限定する
	pageSet := make(map[int]struct{}, len(scrapedPages))
	for _, page := range scrapedPages {
		pageSet[page] = struct{}{}
	}
	for _, deal := range activeDeals {
		if _, scraped := pageSet[deal.PageNumber]; !scraped {
			continue
		}
		if _, seen := observedSet[deal.GameID]; seen {
			continue
		}
		batch.StaleDealIDs = append(batch.StaleDealIDs, deal.ID)
	}

	if err := s.dealRepo.ApplyBatch(ctx, batch); err != nil {
		return nil, fmt.Errorf("照合結果の適用に失敗しました: %w", err)
	}

	if s.collector != nil {
		s.collector.RecordDealsChanged(regionCode, len(changed))
		s.collector.RecordStaleRemoved(regionCode, len(batch.StaleDealIDs))
	}

	s.logger.Info("セールの照合が完了しました",
		slog.String("region", regionCode),
		slog.Int("observed", len(observed)),
		slog.Int("new_games", len(batch.NewGames)),
		slog.Int("inserted", len(batch.InsertDeals)),
		slog.Int("updated", len(batch.UpdateDeals)),
		slog.Int("changed", len(changed)),
		slog.Int("stale_removed", len(batch.StaleDealIDs)),
	)

	return changed, nil
}
