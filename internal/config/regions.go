package config

// RegionInfo はストアフロントのリージョン（ロケール）のメタデータ。
type RegionInfo struct {
	Name           string
	Flag           string
	Currency       string
	CurrencySymbol string
	StoreURL       string
	// スクレイプ元URLで使うリージョンセグメント（小文字）
	SourceSegment string
}

// Regions はサポートするリージョンのテーブル。
// 通貨とストアURLは通知メッセージの組み立てに使用する。
var Regions = map[string]RegionInfo{
	"IL": {Name: "Israel", Flag: "🇮🇱", Currency: "ILS", CurrencySymbol: "₪", StoreURL: "https://store.playstation.com/en-il", SourceSegment: "il"},
	"US": {Name: "USA", Flag: "🇺🇸", Currency: "USD", CurrencySymbol: "$", StoreURL: "https://store.playstation.com/en-us", SourceSegment: "us"},
	"IN": {Name: "India", Flag: "🇮🇳", Currency: "INR", CurrencySymbol: "₹", StoreURL: "https://store.playstation.com/en-in", SourceSegment: "in"},
	"GB": {Name: "UK", Flag: "🇬🇧", Currency: "GBP", CurrencySymbol: "£", StoreURL: "https://store.playstation.com/en-gb", SourceSegment: "gb"},
	"DE": {Name: "Germany", Flag: "🇩🇪", Currency: "EUR", CurrencySymbol: "€", StoreURL: "https://store.playstation.com/de-de", SourceSegment: "de"},
	"FR": {Name: "France", Flag: "🇫🇷", Currency: "EUR", CurrencySymbol: "€", StoreURL: "https://store.playstation.com/fr-fr", SourceSegment: "fr"},
	"BR": {Name: "Brazil", Flag: "🇧🇷", Currency: "BRL", CurrencySymbol: "R$", StoreURL: "https://store.playstation.com/pt-br", SourceSegment: "br"},
	"JP": {Name: "Japan", Flag: "🇯🇵", Currency: "JPY", CurrencySymbol: "¥", StoreURL: "https://store.playstation.com/ja-jp", SourceSegment: "jp"},
	"AU": {Name: "Australia", Flag: "🇦🇺", Currency: "AUD", CurrencySymbol: "A$", StoreURL: "https://store.playstation.com/en-au", SourceSegment: "au"},
}

// RegionByCode は指定コードのリージョン情報を返す。
// 未知のコードの場合は第2戻り値がfalseになる。
func RegionByCode(code string) (RegionInfo, bool) {
	info, ok := Regions[code]
	return info, ok
}
