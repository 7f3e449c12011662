package model

import "time"

// RawDeal はスクレイプで得られた未永続化のディール観測値。
// ページ上の出現順（PositionOnPage、0始まり）を保持する。
type RawDeal struct {
	GameID          string
	Title           string
	CoverURL        string
	RegionCode      string
	Price           float64
	OriginalPrice   float64
	DiscountPercent int
	Currency        string
	SaleEndDate     *time.Time
	Platform        string
	Genre           string
	PriceTag        string // "New lowest!" / "Lowest" / 空
	PageNumber      int
	PositionOnPage  int
}

// ActiveDeal は(ゲーム, リージョン)ごとに高々1件の現行セール行。
// 再観測のたびに可変フィールドを上書きし、掲載ページ情報も常に更新する。
type ActiveDeal struct {
	ID              int64
	GameID          string
	RegionCode      string
	Price           float64
	OriginalPrice   float64
	DiscountPercent int
	Currency        string
	SaleEndDate     *time.Time
	FirstSeen       time.Time
	PriceTag        string
	PageNumber      int
	PositionOnPage  int
}

// Price は追記専用の価格履歴行。観測ごとに1行追加され、更新されない。
type Price struct {
	ID              int64
	GameID          string
	RegionCode      string
	Price           float64
	OriginalPrice   float64
	DiscountPercent int
	Currency        string
	SaleEndDate     *time.Time
	ScrapedAt       time.Time
}
