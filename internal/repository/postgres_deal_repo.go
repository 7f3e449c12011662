package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/dealhunter/internal/model"
)

// PostgresDealRepo はPostgreSQLを使用したセール情報リポジトリ。
type PostgresDealRepo struct {
	db *sql.DB
}

// NewPostgresDealRepo はPostgresDealRepoを生成する。
func NewPostgresDealRepo(db *sql.DB) *PostgresDealRepo {
	return &PostgresDealRepo{db: db}
}

const activeDealColumns = `id, game_id, region_code, price, original_price,
	discount_percent, currency, sale_end_date, first_seen, price_tag,
	page_number, position_on_page`

func scanActiveDeal(scanner interface{ Scan(...interface{}) error }) (*model.ActiveDeal, error) {
	deal := &model.ActiveDeal{}
	var saleEndDate sql.NullTime
	var priceTag sql.NullString

	err := scanner.Scan(
		&deal.ID, &deal.GameID, &deal.RegionCode, &deal.Price, &deal.OriginalPrice,
		&deal.DiscountPercent, &deal.Currency, &saleEndDate, &deal.FirstSeen, &priceTag,
		&deal.PageNumber, &deal.PositionOnPage,
	)
	if err != nil {
		return nil, err
	}

	deal.PriceTag = nullStringValue(priceTag)
	if saleEndDate.Valid {
		deal.SaleEndDate = &saleEndDate.Time
	}

	return deal, nil
}

// ListActiveByRegion は指定リージョンの掲載中セールを全件取得する。
func (r *PostgresDealRepo) ListActiveByRegion(ctx context.Context, regionCode string) ([]*model.ActiveDeal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+activeDealColumns+` FROM active_deals WHERE region_code = $1`,
		regionCode,
	)
	if err != nil {
		return nil, fmt.Errorf("掲載中セールの一覧取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var deals []*model.ActiveDeal
	for rows.Next() {
		deal, err := scanActiveDeal(rows)
		if err != nil {
			return nil, fmt.Errorf("セール行の読み取りに失敗しました: %w", err)
		}
		deals = append(deals, deal)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("セール一覧の走査に失敗しました: %w", err)
	}

	return deals, nil
}

// FindActive はゲームIDとリージョンで掲載中セールを検索する。見つからない場合はnilを返す。
func (r *PostgresDealRepo) FindActive(ctx context.Context, gameID, regionCode string) (*model.ActiveDeal, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+activeDealColumns+`
		 FROM active_deals
		 WHERE game_id = $1 AND region_code = $2`,
		gameID, regionCode,
	)

	deal, err := scanActiveDeal(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("セールの検索に失敗しました: %w", err)
	}

	return deal, nil
}

// ApplyBatch は1リージョン分の照合結果を単一トランザクションで適用する。
func (r *PostgresDealRepo) ApplyBatch(ctx context.Context, batch *DealBatch) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	for _, game := range batch.NewGames {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO games (id, title, cover_url, genre, platform)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (id) DO NOTHING`,
			game.ID, game.Title, nullString(game.CoverURL),
			nullString(game.Genre), nullString(game.Platform),
		); err != nil {
			return fmt.Errorf("ゲームの作成に失敗しました: %w", err)
		}
	}

	// カバー画像の補完は追加のみ。既存の画像は上書きしない。
	for gameID, coverURL := range batch.CoverPatches {
		if _, err := tx.ExecContext(ctx,
			`UPDATE games SET cover_url = $2
			 WHERE id = $1 AND (cover_url IS NULL OR cover_url = '')`,
			gameID, coverURL,
		); err != nil {
			return fmt.Errorf("カバー画像の補完に失敗しました: %w", err)
		}
	}

	for _, deal := range batch.InsertDeals {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO active_deals (game_id, region_code, price, original_price,
			                           discount_percent, currency, sale_end_date,
			                           first_seen, price_tag, page_number, position_on_page)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, now(), $8, $9, $10)`,
			deal.GameID, deal.RegionCode, deal.Price, deal.OriginalPrice,
			deal.DiscountPercent, deal.Currency, deal.SaleEndDate,
			nullString(deal.PriceTag), deal.PageNumber, deal.PositionOnPage,
		); err != nil {
			return fmt.Errorf("セールの作成に失敗しました: %w", err)
		}
	}

	for _, deal := range batch.UpdateDeals {
		if _, err := tx.ExecContext(ctx,
			`UPDATE active_deals SET
			    price = $3, original_price = $4, discount_percent = $5,
			    currency = $6, sale_end_date = $7, price_tag = $8,
			    page_number = $9, position_on_page = $10
			 WHERE game_id = $1 AND region_code = $2`,
			deal.GameID, deal.RegionCode, deal.Price, deal.OriginalPrice,
			deal.DiscountPercent, deal.Currency, deal.SaleEndDate,
			nullString(deal.PriceTag), deal.PageNumber, deal.PositionOnPage,
		); err != nil {
			return fmt.Errorf("セールの更新に失敗しました: %w", err)
		}
	}

	for _, price := range batch.PriceRows {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO prices (game_id, region_code, price, original_price,
			                     discount_percent, currency, sale_end_date, scraped_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			price.GameID, price.RegionCode, price.Price, price.OriginalPrice,
			price.DiscountPercent, price.Currency, price.SaleEndDate, price.ScrapedAt,
		); err != nil {
			return fmt.Errorf("価格履歴の追記に失敗しました: %w", err)
		}
	}

	if len(batch.StaleDealIDs) > 0 {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM active_deals WHERE id = ANY($1)`,
			pq.Array(batch.StaleDealIDs),
		); err != nil {
			return fmt.Errorf("掲載終了セールの削除に失敗しました: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return nil
}

// DeleteExpired はセール終了日時を過ぎた掲載中セールを削除し、削除件数を返す。
func (r *PostgresDealRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM active_deals WHERE sale_end_date IS NOT NULL AND sale_end_date < $1`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("期限切れセールの削除に失敗しました: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// DeletePricesBefore は指定日時より古い価格履歴を削除し、削除件数を返す。
func (r *PostgresDealRepo) DeletePricesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM prices WHERE scraped_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("価格履歴の削除に失敗しました: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// compile-time interface check
var _ DealRepository = (*PostgresDealRepo)(nil)
