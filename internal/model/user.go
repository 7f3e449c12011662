package model

import "time"

// User はTelegramユーザーを表す。IDはTelegramのチャットID。
type User struct {
	ID        int64
	Username  string
	FirstName string
	CreatedAt time.Time
}

// WishlistEntry はユーザーとゲームのウィッシュリスト関係を表す。
type WishlistEntry struct {
	ID      int64
	UserID  int64
	GameID  string
	AddedAt time.Time
}

// PriceAlert は(ユーザー, ゲーム, リージョン)ごとに高々1件の価格アラート。
// TargetPriceとTargetDiscountは排他で、どちらか一方のみ設定される。
// 発火すると非アクティブ化されTriggeredAtが記録される（再発火しない）。
type PriceAlert struct {
	ID             int64
	UserID         int64
	GameID         string
	RegionCode     string
	TargetPrice    *float64
	TargetDiscount *int
	IsActive       bool
	CreatedAt      time.Time
	TriggeredAt    *time.Time
}
