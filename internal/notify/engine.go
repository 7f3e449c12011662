package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/dealhunter/internal/metrics"
	"github.com/hitoshi/dealhunter/internal/model"
	"github.com/hitoshi/dealhunter/internal/repository"
)

// DeliveryResult は1回の配信処理の集計結果。
type DeliveryResult struct {
	Sent   int
	Failed int
}

// Engine はディール通知と価格アラートの配信を行う。
// 個々の受信者への送信失敗は記録するだけで処理全体は止めない。
type Engine struct {
	userRepo  repository.UserRepository
	gameRepo  repository.GameRepository
	dealRepo  repository.DealRepository
	alertRepo repository.AlertRepository
	sender    Sender
	limiter   *rate.Limiter
	logger    *slog.Logger
	collector metrics.MetricsCollector

	now func() time.Time
}

// NewEngine はEngineを生成する。ratePerSecは秒あたりの送信上限。
func NewEngine(
	userRepo repository.UserRepository,
	gameRepo repository.GameRepository,
	dealRepo repository.DealRepository,
	alertRepo repository.AlertRepository,
	sender Sender,
	ratePerSec float64,
	logger *slog.Logger,
	collector metrics.MetricsCollector,
) *Engine {
	return &Engine{
		userRepo:  userRepo,
		gameRepo:  gameRepo,
		dealRepo:  dealRepo,
		alertRepo: alertRepo,
		sender:    sender,
		limiter:   rate.NewLimiter(rate.Limit(ratePerSec), 1),
		logger:    logger,
		collector: collector,
		now:       time.Now,
	}
}

// NotifyNewDeals は新規・価格変動ディールを関心のあるユーザーへ配信する。
// ディールごとに、まずウィッシュリスト登録者へ送り、次にリージョン購読者のうち
// まだ送っていないユーザーへ送る。同一ディールを同じユーザーに二度送ることはない。
func (e *Engine) NotifyNewDeals(ctx context.Context, regionCode string, deals []model.RawDeal) (DeliveryResult, error) {
	var result DeliveryResult

	subscribers, err := e.userRepo.ListRegionSubscriberIDs(ctx, regionCode)
	if err != nil {
		return result, fmt.Errorf("リージョン購読者の取得に失敗しました: %w", err)
	}

	for _, deal := range deals {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		sent := make(map[int64]struct{})

		// ウィッシュリスト登録者を優先して配信する
		wishers, err := e.userRepo.ListWishlistUserIDs(ctx, deal.GameID)
		if err != nil {
			e.logger.Error("ウィッシュリストユーザーの取得に失敗しました",
				slog.String("game_id", deal.GameID),
				slog.String("error", err.Error()),
			)
		} else {
			text := FormatDealMessage(deal, true)
			for _, userID := range wishers {
				sent[userID] = struct{}{}
				e.deliver(ctx, userID, text, "wishlist", &result)
			}
		}

		text := FormatDealMessage(deal, false)
		for _, userID := range subscribers {
			if _, already := sent[userID]; already {
				continue
			}
			e.deliver(ctx, userID, text, "deal", &result)
		}
	}

	e.logger.Info("ディール通知の配信が完了しました",
		slog.String("region", regionCode),
		slog.Int("deals", len(deals)),
		slog.Int("sent", result.Sent),
		slog.Int("failed", result.Failed),
	)
	return result, nil
}

// CheckPriceAlerts は有効な価格アラートを評価し、条件を満たしたものを発火させる。
// アラートは送信の成否にかかわらず一度だけ無効化される。
func (e *Engine) CheckPriceAlerts(ctx context.Context) (DeliveryResult, error) {
	var result DeliveryResult

	alerts, err := e.alertRepo.ListActive(ctx)
	if err != nil {
		return result, fmt.Errorf("価格アラートの取得に失敗しました: %w", err)
	}

	for _, alert := range alerts {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		deal, err := e.dealRepo.FindActive(ctx, alert.GameID, alert.RegionCode)
		if err != nil {
			e.logger.Error("セールの検索に失敗しました",
				slog.Int64("alert_id", alert.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if deal == nil {
			// セール対象外のゲームはアラートを保留したまま次回に持ち越す
			continue
		}

		if !alertMatches(alert, deal) {
			continue
		}

		fired, err := e.alertRepo.Deactivate(ctx, alert.ID, e.now())
		if err != nil {
			e.logger.Error("価格アラートの無効化に失敗しました",
				slog.Int64("alert_id", alert.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if !fired {
			continue
		}

		if e.collector != nil {
			e.collector.RecordAlertTriggered()
		}

		title := alert.GameID
		if game, err := e.gameRepo.FindByID(ctx, alert.GameID); err == nil && game != nil {
			title = game.Title
		}

		e.deliver(ctx, alert.UserID, FormatAlertMessage(alert, deal, title), "alert", &result)
	}

	return result, nil
}

// alertMatches はアラートの発火条件を評価する。
// 目標価格は現在価格以上、目標割引率は現在割引率以下で満たされる。
func alertMatches(alert *model.PriceAlert, deal *model.ActiveDeal) bool {
	if alert.TargetPrice != nil && *alert.TargetPrice >= deal.Price {
		return true
	}
	if alert.TargetDiscount != nil && *alert.TargetDiscount <= deal.DiscountPercent {
		return true
	}
	return false
}

// ReassignPlaceholderWishlists は検索由来の仮ゲームを実ゲームに付け替える。
// タイトルの部分一致で対応するスクレイプ由来ゲームが見つかった場合、
// ウィッシュリストの参照だけを付け替える。仮ゲームの行自体は
// 価格アラートなどから参照され得るため削除しない。
func (e *Engine) ReassignPlaceholderWishlists(ctx context.Context) error {
	placeholders, err := e.gameRepo.ListPlaceholders(ctx)
	if err != nil {
		return fmt.Errorf("仮ゲームの取得に失敗しました: %w", err)
	}

	for _, placeholder := range placeholders {
		if err := ctx.Err(); err != nil {
			return err
		}

		match, err := e.gameRepo.FindScrapedByTitle(ctx, placeholder.Title)
		if err != nil {
			e.logger.Error("タイトルによるゲームの検索に失敗しました",
				slog.String("placeholder_id", placeholder.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if match == nil {
			continue
		}

		if err := e.userRepo.ReassignWishlist(ctx, placeholder.ID, match.ID); err != nil {
			e.logger.Error("ウィッシュリストの付け替えに失敗しました",
				slog.String("placeholder_id", placeholder.ID),
				slog.String("game_id", match.ID),
				slog.String("error", err.Error()),
			)
			continue
		}

		e.logger.Info("仮ゲームを実ゲームに付け替えました",
			slog.String("placeholder_id", placeholder.ID),
			slog.String("game_id", match.ID),
			slog.String("title", match.Title),
		)
	}

	return nil
}

// deliver はレート制限を守って1通のメッセージを送信し、結果を集計する。
func (e *Engine) deliver(ctx context.Context, userID int64, text, kind string, result *DeliveryResult) {
	if err := e.limiter.Wait(ctx); err != nil {
		result.Failed++
		return
	}

	if err := e.sender.SendMessage(ctx, userID, text); err != nil {
		result.Failed++
		if e.collector != nil {
			e.collector.RecordNotificationFailure(kind)
		}
		e.logger.Warn("通知の送信に失敗しました",
			slog.Int64("user_id", userID),
			slog.String("kind", kind),
			slog.String("error", err.Error()),
		)
		return
	}

	result.Sent++
	if e.collector != nil {
		e.collector.RecordNotificationSent(kind)
	}
}
