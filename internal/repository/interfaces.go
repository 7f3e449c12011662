// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/dealhunter/internal/model"
)

// GameRepository はゲームデータの永続化インターフェース。
type GameRepository interface {
	// FindByID は指定IDのゲームを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Game, error)

	// ListByIDs は指定ID群のゲームを一括取得する。
	// 存在しないIDは結果に含まれない。
	ListByIDs(ctx context.Context, ids []string) ([]*model.Game, error)

	// ListPlaceholders は検索由来の仮ゲーム（IDがsearch_で始まる）を取得する。
	ListPlaceholders(ctx context.Context) ([]*model.Game, error)

	// FindScrapedByTitle はスクレイプ由来ゲーム（IDがpsp_で始まる）を
	// タイトルの部分一致（大文字小文字無視）で1件検索する。見つからない場合はnilを返す。
	FindScrapedByTitle(ctx context.Context, title string) (*model.Game, error)
}

// DealRepository はセール情報と価格履歴の永続化インターフェース。
type DealRepository interface {
	// ListActiveByRegion は指定リージョンの掲載中セールを全件取得する。
	ListActiveByRegion(ctx context.Context, regionCode string) ([]*model.ActiveDeal, error)

	// FindActive はゲームIDとリージョンで掲載中セールを検索する。見つからない場合はnilを返す。
	FindActive(ctx context.Context, gameID, regionCode string) (*model.ActiveDeal, error)

	// ApplyBatch は1リージョン分の照合結果を単一トランザクションで適用する。
	// ゲーム作成・カバー画像補完・セールの挿入/更新・価格履歴追記・
	// 掲載終了セールの削除を原子的に行う。
	ApplyBatch(ctx context.Context, batch *DealBatch) error

	// DeleteExpired はセール終了日時を過ぎた掲載中セールを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)

	// DeletePricesBefore は指定日時より古い価格履歴を削除し、削除件数を返す。
	DeletePricesBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// UserRepository はユーザー・リージョン購読・ウィッシュリストの永続化インターフェース。
type UserRepository interface {
	// ListWishlistUserIDs は指定ゲームをウィッシュリストに入れているユーザーIDを返す。
	ListWishlistUserIDs(ctx context.Context, gameID string) ([]int64, error)

	// ListRegionSubscriberIDs は指定リージョンを購読しているユーザーIDを返す。
	ListRegionSubscriberIDs(ctx context.Context, regionCode string) ([]int64, error)

	// ReassignWishlist はウィッシュリストの参照先ゲームを付け替える。
	// 付け替え先が既にウィッシュリストに存在するユーザーの行は削除する。
	ReassignWishlist(ctx context.Context, fromGameID, toGameID string) error
}

// AlertRepository は価格アラートの永続化インターフェース。
type AlertRepository interface {
	// ListActive は有効な価格アラートを全件取得する。
	ListActive(ctx context.Context) ([]*model.PriceAlert, error)

	// Deactivate は指定アラートを無効化し、発火日時を記録する。
	// 既に無効化されていた場合はfalseを返す。発火は一度だけ起こる。
	Deactivate(ctx context.Context, id int64, triggeredAt time.Time) (bool, error)
}

// DealBatch は1リージョン分の照合結果。ApplyBatchで原子的に適用される。
type DealBatch struct {
	RegionCode   string
	NewGames     []*model.Game
	CoverPatches map[string]string
	InsertDeals  []*model.ActiveDeal
	UpdateDeals  []*model.ActiveDeal
	PriceRows    []*model.Price
	StaleDealIDs []int64
}
