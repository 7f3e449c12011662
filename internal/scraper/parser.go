package scraper

import (
	"bytes"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/hitoshi/dealhunter/internal/config"
	"github.com/hitoshi/dealhunter/internal/model"
	"github.com/hitoshi/dealhunter/internal/security"
)

var (
	// titlePrefixRe はタイトル先頭の国旗画像などの装飾文字列にマッチする。
	titlePrefixRe = regexp.MustCompile(`^[^\p{L}\p{N}_\s(]+`)
	// discountRe は割引率バッジから数値を取り出す。
	discountRe = regexp.MustCompile(`(\d+)`)
	// saleEndRe は「until MM/DD/YYYY」形式のセール終了日にマッチする。
	saleEndRe = regexp.MustCompile(`(?i)until\D*(\d{2}/\d{2}/\d{4})`)
	// totalPagesRe はページネーション表記「of N」から総ページ数を取り出す。
	totalPagesRe = regexp.MustCompile(`of\s+(\d+)`)
	// priceStripRe は価格文字列から数値以外の文字を取り除く。
	priceStripRe = regexp.MustCompile(`[^0-9.,]`)
)

// Parser はカタログページのHTMLからディールカードを抽出する。
type Parser struct {
	sanitizer security.TextSanitizerService
	logger    *slog.Logger
}

// NewParser はParserを生成する。
func NewParser(sanitizer security.TextSanitizerService, logger *slog.Logger) *Parser {
	return &Parser{
		sanitizer: sanitizer,
		logger:    logger,
	}
}

// ParsePage はページのHTMLをパースしてディール一覧を返す。
// 個々のカードの不備はスキップして継続し、ドキュメント自体が
// 読み取れない場合のみエラーを返す。ページ上の出現順を保持する。
func (p *Parser) ParsePage(body []byte, regionCode string, pageNumber int) ([]model.RawDeal, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("HTMLドキュメントの読み取りに失敗しました: %w", err)
	}

	currency := ""
	if info, ok := config.RegionByCode(regionCode); ok {
		currency = info.Currency
	}

	var deals []model.RawDeal
	position := 0

	doc.Find(".game-fragment").Each(func(_ int, card *goquery.Selection) {
		deal, ok := p.parseCard(card, regionCode, currency, pageNumber, position)
		if !ok {
			return
		}
		deals = append(deals, *deal)
		position++
	})

	return deals, nil
}

// parseCard は1枚のディールカードをパースする。
// 必須要素（ID、タイトル、割引率、価格）を欠くカードはfalseを返す。
func (p *Parser) parseCard(card *goquery.Selection, regionCode, currency string, pageNumber, position int) (*model.RawDeal, bool) {
	rawID := p.extractGameID(card)
	if rawID == "" {
		p.logger.Debug("ゲームIDのないカードをスキップします",
			slog.String("region", regionCode),
			slog.Int("page", pageNumber),
		)
		return nil, false
	}

	title := p.extractTitle(card)
	if title == "" {
		p.logger.Debug("タイトルのないカードをスキップします",
			slog.String("region", regionCode),
			slog.String("game_id", rawID),
		)
		return nil, false
	}

	// 無料マーカーは割引バッジより優先する。バッジのない無料カードも
	// 100%割引のディールとして扱う。
	priceContainer := card.Find(".text-xl.font-bold").First()
	isFree := strings.Contains(strings.ToLower(priceContainer.Text()), "free")

	discount, ok := p.extractDiscount(card)
	if isFree {
		discount = 100
	} else if !ok || discount <= 0 {
		// 無料でも割引でもないカードは対象外
		return nil, false
	}

	var price float64
	if isFree {
		price = 0
	} else {
		var parsed bool
		price, parsed = ParsePrice(priceContainer.Find("span.font-bold").First().Text())
		if !parsed {
			p.logger.Debug("価格を読み取れないカードをスキップします",
				slog.String("region", regionCode),
				slog.String("game_id", rawID),
			)
			return nil, false
		}
	}

	originalPrice := p.extractOriginalPrice(card, price, discount)

	deal := &model.RawDeal{
		GameID:          model.ScrapedIDPrefix + rawID,
		Title:           title,
		CoverURL:        p.extractCoverURL(card),
		RegionCode:      regionCode,
		Price:           price,
		OriginalPrice:   originalPrice,
		DiscountPercent: discount,
		Currency:        currency,
		SaleEndDate:     p.extractSaleEndDate(card),
		Platform:        p.extractPlatform(card),
		PriceTag:        p.extractPriceTag(card),
		PageNumber:      pageNumber,
		PositionOnPage:  position,
	}

	return deal, true
}

// extractGameID はカード自身または子孫要素のdata-game-id属性を返す。
func (p *Parser) extractGameID(card *goquery.Selection) string {
	if id, ok := card.Attr("data-game-id"); ok && id != "" {
		return id
	}
	id, _ := card.Find("[data-game-id]").First().Attr("data-game-id")
	return id
}

// extractTitle はカードのタイトルを返す。先頭の装飾文字列は取り除き、
// HTMLタグを除去した上で返す。
func (p *Parser) extractTitle(card *goquery.Selection) string {
	raw := strings.TrimSpace(card.Find("h3").First().Text())
	raw = titlePrefixRe.ReplaceAllString(raw, "")
	return p.sanitizer.Sanitize(raw)
}

// extractDiscount は割引率バッジから割引率（%）を返す。
func (p *Parser) extractDiscount(card *goquery.Selection) (int, bool) {
	badge := card.Find(".bg-red-700, .bg-red-600").First()
	if badge.Length() == 0 {
		return 0, false
	}
	m := discountRe.FindStringSubmatch(badge.Text())
	if m == nil {
		return 0, false
	}
	discount, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return discount, true
}

// extractOriginalPrice は取り消し線表記の元値を返す。
// 表記がない場合は割引率から逆算する。
func (p *Parser) extractOriginalPrice(card *goquery.Selection, price float64, discount int) float64 {
	if original, ok := ParsePrice(card.Find(".old-price-strike").First().Text()); ok && original > 0 {
		return original
	}
	if discount > 0 && discount < 100 {
		return price / (1 - float64(discount)/100)
	}
	return 0
}

// extractCoverURL はストア配信のカバー画像URLを返す。
func (p *Parser) extractCoverURL(card *goquery.Selection) string {
	src, _ := card.Find("img[src*='image.api.playstation.com']").First().Attr("src")
	return src
}

// extractSaleEndDate は「until MM/DD/YYYY」表記からセール終了日を返す。
func (p *Parser) extractSaleEndDate(card *goquery.Selection) *time.Time {
	m := saleEndRe.FindStringSubmatch(card.Text())
	if m == nil {
		return nil
	}
	t, err := time.Parse("01/02/2006", m[1])
	if err != nil {
		return nil
	}
	return &t
}

// extractPlatform はプラットフォームバッジ画像からPS5/PS4を判定する。
// 判定できない場合はPS5とする。
func (p *Parser) extractPlatform(card *goquery.Selection) string {
	platform := "PS5"
	card.Find("img[alt*='PlayStation']").EachWithBreak(func(_ int, img *goquery.Selection) bool {
		alt, _ := img.Attr("alt")
		if strings.Contains(alt, "4") {
			platform = "PS4"
			return false
		}
		if strings.Contains(alt, "5") {
			platform = "PS5"
			return false
		}
		return true
	})
	return platform
}

// extractPriceTag は最安値バッジのテキストを正規化して返す。
func (p *Parser) extractPriceTag(card *goquery.Selection) string {
	text := card.Find(".text-purple-700, .text-green-700").First().Text()
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "new lowest"):
		return "New lowest!"
	case strings.Contains(lower, "lowest"):
		return "Lowest"
	default:
		return ""
	}
}

// ParseTotalPages はページネーション表記から総ページ数を取り出す。
// 見つからない場合は第2戻り値がfalseになる。
func (p *Parser) ParseTotalPages(body []byte) (int, bool) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return 0, false
	}

	total := 0
	doc.Find("span[class*='text-gray-700']").EachWithBreak(func(_ int, span *goquery.Selection) bool {
		m := totalPagesRe.FindStringSubmatch(span.Text())
		if m == nil {
			return true
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n <= 0 {
			return true
		}
		total = n
		return false
	})

	return total, total > 0
}

// ParsePrice は価格文字列を数値に変換する。
// 桁区切りのカンマを除去し、"N/A"や空文字列は価格なしとして扱う。
func ParsePrice(text string) (float64, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || strings.EqualFold(trimmed, "N/A") {
		return 0, false
	}

	cleaned := priceStripRe.ReplaceAllString(trimmed, "")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	if cleaned == "" {
		return 0, false
	}

	price, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return price, true
}
