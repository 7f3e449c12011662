package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/dealhunter/internal/model"
)

// PostgresAlertRepo はPostgreSQLを使用した価格アラートリポジトリ。
type PostgresAlertRepo struct {
	db *sql.DB
}

// NewPostgresAlertRepo はPostgresAlertRepoを生成する。
func NewPostgresAlertRepo(db *sql.DB) *PostgresAlertRepo {
	return &PostgresAlertRepo{db: db}
}

// ListActive は有効な価格アラートを全件取得する。
func (r *PostgresAlertRepo) ListActive(ctx context.Context) ([]*model.PriceAlert, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, game_id, region_code, target_price, target_discount,
		        is_active, created_at, triggered_at
		 FROM price_alerts
		 WHERE is_active = true
		 ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("有効な価格アラートの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var alerts []*model.PriceAlert
	for rows.Next() {
		alert := &model.PriceAlert{}
		var targetPrice sql.NullFloat64
		var targetDiscount sql.NullInt64
		var triggeredAt sql.NullTime

		if err := rows.Scan(
			&alert.ID, &alert.UserID, &alert.GameID, &alert.RegionCode,
			&targetPrice, &targetDiscount,
			&alert.IsActive, &alert.CreatedAt, &triggeredAt,
		); err != nil {
			return nil, fmt.Errorf("価格アラート行の読み取りに失敗しました: %w", err)
		}

		if targetPrice.Valid {
			alert.TargetPrice = &targetPrice.Float64
		}
		if targetDiscount.Valid {
			d := int(targetDiscount.Int64)
			alert.TargetDiscount = &d
		}
		if triggeredAt.Valid {
			alert.TriggeredAt = &triggeredAt.Time
		}

		alerts = append(alerts, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("価格アラート一覧の走査に失敗しました: %w", err)
	}

	return alerts, nil
}

// Deactivate は指定アラートを無効化し、発火日時を記録する。
// 既に無効化されていた場合はfalseを返す。
func (r *PostgresAlertRepo) Deactivate(ctx context.Context, id int64, triggeredAt time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE price_alerts SET is_active = false, triggered_at = $2
		 WHERE id = $1 AND is_active = true`,
		id, triggeredAt,
	)
	if err != nil {
		return false, fmt.Errorf("価格アラートの無効化に失敗しました: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("更新件数の取得に失敗しました: %w", err)
	}
	return affected == 1, nil
}

// compile-time interface check
var _ AlertRepository = (*PostgresAlertRepo)(nil)
