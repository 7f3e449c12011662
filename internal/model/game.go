// Package model はドメインモデルを定義する。
package model

import "strings"

// PlaceholderIDPrefix は検索テキストから生成された仮ゲームIDのプレフィックス。
// スクレイプで実ゲームが観測されたとき、タイトル一致でウィッシュリストを付け替える。
const PlaceholderIDPrefix = "search_"

// ScrapedIDPrefix はスクレイプ元のゲームIDに付与するプレフィックス。
const ScrapedIDPrefix = "psp_"

// Game はカタログ上のゲームを表す。
// IDはスクレイプ元の数値IDにプレフィックスを付けた文字列、
// または検索由来のプレースホルダID（search_*）。
type Game struct {
	ID       string
	Title    string
	CoverURL string
	Genre    string
	Platform string
}

// IsPlaceholder はこのゲームが検索由来のプレースホルダかどうかを返す。
func (g *Game) IsPlaceholder() bool {
	return strings.HasPrefix(g.ID, PlaceholderIDPrefix)
}
