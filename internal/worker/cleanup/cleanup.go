// Package cleanup は期限切れセールと古い価格履歴の自動削除ジョブを提供する。
// セール終了日時を過ぎたactive_dealsと、保持期間（デフォルト90日）を
// 超過したprices行を日次バッチで削除する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DealCleaner はクリーンアップに必要な削除操作のインターフェース。
type DealCleaner interface {
	// DeleteExpired はセール終了日時を過ぎた掲載中セールを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	// DeletePricesBefore は指定日時より古い価格履歴を削除し、削除件数を返す。
	DeletePricesBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// CleanupJob は期限切れセールと古い価格履歴の自動削除ジョブ。
// 日次実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
type CleanupJob struct {
	deals         DealCleaner
	logger        *slog.Logger
	RetentionDays int // 価格履歴の保持日数（デフォルト: 90）

	now func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。
// デフォルトの保持日数は90日。
func NewCleanupJob(deals DealCleaner, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		deals:         deals,
		logger:        logger,
		RetentionDays: 90,
		now:           time.Now,
	}
}

// Run は期限切れセールと保持期間を超過した価格履歴を削除する。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := j.now()

	expiredCount, err := j.deals.DeleteExpired(ctx, start)
	if err != nil {
		j.logger.Error("期限切れセールの削除に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("期限切れセールの削除に失敗: %w", err)
	}

	cutoff := start.AddDate(0, 0, -j.RetentionDays)
	priceCount, err := j.deals.DeletePricesBefore(ctx, cutoff)
	if err != nil {
		j.logger.Error("価格履歴の削除に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return fmt.Errorf("価格履歴の削除に失敗: %w", err)
	}

	j.logger.Info("クリーンアップジョブが完了しました",
		slog.Int64("expired_deals_deleted", expiredCount),
		slog.Int64("price_rows_deleted", priceCount),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return nil
}
