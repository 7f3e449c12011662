package notify

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/hitoshi/dealhunter/internal/config"
	"github.com/hitoshi/dealhunter/internal/model"
)

// FormatDealMessage はディール通知のメッセージ本文を組み立てる。
// wishlistがtrueの場合はウィッシュリスト向けの見出しを使う。
func FormatDealMessage(deal model.RawDeal, wishlist bool) string {
	info, _ := config.RegionByCode(deal.RegionCode)

	var b strings.Builder
	if wishlist {
		b.WriteString("⭐ Wishlist deal!\n")
	} else {
		b.WriteString("💰 New deal!\n")
	}

	fmt.Fprintf(&b, "%s %s\n", info.Flag, deal.Title)
	fmt.Fprintf(&b, "💵 %s (-%d%%)", formatPrice(info, deal.Price), deal.DiscountPercent)
	if deal.OriginalPrice > deal.Price {
		fmt.Fprintf(&b, " — was %s", formatPrice(info, deal.OriginalPrice))
	}
	b.WriteString("\n")

	if deal.PriceTag != "" {
		fmt.Fprintf(&b, "🏷 %s\n", deal.PriceTag)
	}
	if deal.SaleEndDate != nil {
		fmt.Fprintf(&b, "⏰ Until %s\n", deal.SaleEndDate.Format("02 Jan 2006"))
	}
	if deal.Platform != "" {
		fmt.Fprintf(&b, "🎮 %s\n", deal.Platform)
	}

	fmt.Fprintf(&b, "🛒 %s\n", storeSearchURL(info, deal.Title))
	fmt.Fprintf(&b, "🔑 %s", cdkeysSearchURL(deal.Title))

	return b.String()
}

// FormatAlertMessage は価格アラート発火時のメッセージ本文を組み立てる。
func FormatAlertMessage(alert *model.PriceAlert, deal *model.ActiveDeal, title string) string {
	info, _ := config.RegionByCode(deal.RegionCode)

	var b strings.Builder
	b.WriteString("🔔 Price alert!\n")
	fmt.Fprintf(&b, "%s %s\n", info.Flag, title)
	fmt.Fprintf(&b, "💵 %s (-%d%%)\n", formatPrice(info, deal.Price), deal.DiscountPercent)

	switch {
	case alert.TargetPrice != nil:
		fmt.Fprintf(&b, "🎯 Target price: %s\n", formatPrice(info, *alert.TargetPrice))
	case alert.TargetDiscount != nil:
		fmt.Fprintf(&b, "🎯 Target discount: %d%%\n", *alert.TargetDiscount)
	}

	fmt.Fprintf(&b, "🛒 %s", storeSearchURL(info, title))
	return b.String()
}

// formatPrice は通貨記号付きの価格表記を返す。無料は専用表記にする。
func formatPrice(info config.RegionInfo, price float64) string {
	if price == 0 {
		return "Free"
	}
	return fmt.Sprintf("%s%.2f", info.CurrencySymbol, price)
}

// storeSearchURL はストアのタイトル検索URLを返す。
func storeSearchURL(info config.RegionInfo, title string) string {
	return info.StoreURL + "/search/" + url.PathEscape(title)
}

// cdkeysSearchURL は比較用のCDKeys検索URLを返す。
func cdkeysSearchURL(title string) string {
	return "https://www.cdkeys.com/catalogsearch/result/?q=" + url.QueryEscape(title)
}
