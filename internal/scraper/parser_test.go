package scraper

import (
	"log/slog"
	"testing"
	"time"

	"github.com/hitoshi/dealhunter/internal/security"
)

func newTestParser(t *testing.T) *Parser {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(nopWriter{}, nil))
	return NewParser(security.NewTextSanitizer(), logger)
}

func wrapPage(cards string) []byte {
	return []byte(`<html><body><div class="collection">` + cards + `</div></body></html>`)
}

const sampleCard = `
<div class="game-fragment">
  <a data-game-id="10742" href="/game/10742">
    <img src="https://image.api.playstation.com/vulcan/ap/rnd/202010/0222/cover.png">
    <img alt="PlayStation 5" src="/icons/ps5.svg">
    <h3>🇺🇸 Ghost of Tsushima Director's Cut</h3>
    <div class="bg-red-700">-60%</div>
    <div class="text-xl font-bold"><span class="font-bold">$23.99</span></div>
    <span class="old-price-strike">$59.99</span>
    <span class="text-purple-700">New lowest!</span>
    <span>Offer valid until 09/30/2026</span>
  </a>
</div>`

// --- ParsePrice のテスト ---

// TestParsePrice_Table は各種価格表記の変換をテストする。
func TestParsePrice_Table(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  float64
		ok    bool
	}{
		{"ドル表記", "$23.99", 23.99, true},
		{"桁区切りカンマ", "1,799", 1799, true},
		{"通貨記号と桁区切り", "₹3,999", 3999, true},
		{"シェケル表記", "₪189.90", 189.90, true},
		{"前後の空白", "  $9.99  ", 9.99, true},
		{"空文字列", "", 0, false},
		{"NA表記", "N/A", 0, false},
		{"小文字のna", "n/a", 0, false},
		{"数値なし", "Free", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParsePrice(tt.input)
			if ok != tt.ok {
				t.Fatalf("ParsePrice(%q) ok = %v, want %v", tt.input, ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Errorf("ParsePrice(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

// --- ParsePage のテスト ---

// TestParsePage_FullCard は完全なカードから全フィールドが抽出されることをテストする。
func TestParsePage_FullCard(t *testing.T) {
	p := newTestParser(t)
	deals, err := p.ParsePage(wrapPage(sampleCard), "US", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(deals) != 1 {
		t.Fatalf("len(deals) = %d, want 1", len(deals))
	}

	deal := deals[0]
	if deal.GameID != "psp_10742" {
		t.Errorf("GameID = %q, want %q", deal.GameID, "psp_10742")
	}
	if deal.Title != "Ghost of Tsushima Director's Cut" {
		t.Errorf("Title = %q", deal.Title)
	}
	if deal.DiscountPercent != 60 {
		t.Errorf("DiscountPercent = %d, want 60", deal.DiscountPercent)
	}
	if deal.Price != 23.99 {
		t.Errorf("Price = %v, want 23.99", deal.Price)
	}
	if deal.OriginalPrice != 59.99 {
		t.Errorf("OriginalPrice = %v, want 59.99", deal.OriginalPrice)
	}
	if deal.Currency != "USD" {
		t.Errorf("Currency = %q, want USD", deal.Currency)
	}
	if deal.Platform != "PS5" {
		t.Errorf("Platform = %q, want PS5", deal.Platform)
	}
	if deal.PriceTag != "New lowest!" {
		t.Errorf("PriceTag = %q", deal.PriceTag)
	}
	if deal.CoverURL == "" {
		t.Error("CoverURL should not be empty")
	}
	if deal.SaleEndDate == nil {
		t.Fatal("SaleEndDate should not be nil")
	}
	want := time.Date(2026, 9, 30, 0, 0, 0, 0, time.UTC)
	if !deal.SaleEndDate.Equal(want) {
		t.Errorf("SaleEndDate = %v, want %v", deal.SaleEndDate, want)
	}
	if deal.PageNumber != 1 || deal.PositionOnPage != 0 {
		t.Errorf("provenance = (page %d, pos %d), want (1, 0)", deal.PageNumber, deal.PositionOnPage)
	}
}

// TestParsePage_FreeGame は無料表記のカードが割引100%・価格0になることをテストする。
func TestParsePage_FreeGame(t *testing.T) {
	card := `
<div class="game-fragment">
  <a data-game-id="777">
    <h3>Fall Guys</h3>
    <div class="bg-red-600">-75%</div>
    <div class="text-xl font-bold">Free</div>
  </a>
</div>`

	p := newTestParser(t)
	deals, err := p.ParsePage(wrapPage(card), "US", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(deals) != 1 {
		t.Fatalf("len(deals) = %d, want 1", len(deals))
	}
	if deals[0].DiscountPercent != 100 {
		t.Errorf("DiscountPercent = %d, want 100", deals[0].DiscountPercent)
	}
	if deals[0].Price != 0 {
		t.Errorf("Price = %v, want 0", deals[0].Price)
	}
}

// TestParsePage_FreeGameWithoutBadge は割引バッジのない無料カードも
// 割引100%・価格0のディールになることをテストする。
func TestParsePage_FreeGameWithoutBadge(t *testing.T) {
	card := `
<div class="game-fragment">
  <a data-game-id="888">
    <h3>Rocket League</h3>
    <div class="text-xl font-bold">Free</div>
  </a>
</div>`

	p := newTestParser(t)
	deals, err := p.ParsePage(wrapPage(card), "US", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(deals) != 1 {
		t.Fatalf("len(deals) = %d, want 1", len(deals))
	}
	if deals[0].DiscountPercent != 100 {
		t.Errorf("DiscountPercent = %d, want 100", deals[0].DiscountPercent)
	}
	if deals[0].Price != 0 {
		t.Errorf("Price = %v, want 0", deals[0].Price)
	}
}

// TestParsePage_SkipsZeroDiscount は割引バッジのないカードがスキップされることをテストする。
func TestParsePage_SkipsZeroDiscount(t *testing.T) {
	card := `
<div class="game-fragment">
  <a data-game-id="100">
    <h3>Full Price Game</h3>
    <div class="text-xl font-bold"><span class="font-bold">$69.99</span></div>
  </a>
</div>`

	p := newTestParser(t)
	deals, err := p.ParsePage(wrapPage(card), "US", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(deals) != 0 {
		t.Errorf("len(deals) = %d, want 0", len(deals))
	}
}

// TestParsePage_DerivesOriginalPrice は元値表記がない場合に割引率から
// 逆算されることをテストする。
func TestParsePage_DerivesOriginalPrice(t *testing.T) {
	card := `
<div class="game-fragment">
  <a data-game-id="200">
    <h3>Half Off Game</h3>
    <div class="bg-red-700">-50%</div>
    <div class="text-xl font-bold"><span class="font-bold">$30.00</span></div>
  </a>
</div>`

	p := newTestParser(t)
	deals, err := p.ParsePage(wrapPage(card), "US", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(deals) != 1 {
		t.Fatalf("len(deals) = %d, want 1", len(deals))
	}
	if got := deals[0].OriginalPrice; got != 60.00 {
		t.Errorf("OriginalPrice = %v, want 60.00", got)
	}
}

// TestParsePage_SkipsCardWithoutID はIDのないカードがスキップされ、
// 後続のカードは処理されることをテストする。
func TestParsePage_SkipsCardWithoutID(t *testing.T) {
	cards := `
<div class="game-fragment">
  <a><h3>Broken Card</h3><div class="bg-red-700">-50%</div></a>
</div>` + sampleCard

	p := newTestParser(t)
	deals, err := p.ParsePage(wrapPage(cards), "US", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(deals) != 1 {
		t.Fatalf("len(deals) = %d, want 1", len(deals))
	}
	if deals[0].GameID != "psp_10742" {
		t.Errorf("GameID = %q", deals[0].GameID)
	}
	if deals[0].PositionOnPage != 0 {
		t.Errorf("PositionOnPage = %d, want 0", deals[0].PositionOnPage)
	}
}

// TestParsePage_PreservesOrder は複数カードの出現順が保持されることをテストする。
func TestParsePage_PreservesOrder(t *testing.T) {
	cards := `
<div class="game-fragment">
  <a data-game-id="1"><h3>First</h3><div class="bg-red-700">-10%</div>
  <div class="text-xl font-bold"><span class="font-bold">$9.00</span></div></a>
</div>
<div class="game-fragment">
  <a data-game-id="2"><h3>Second</h3><div class="bg-red-700">-20%</div>
  <div class="text-xl font-bold"><span class="font-bold">$8.00</span></div></a>
</div>
<div class="game-fragment">
  <a data-game-id="3"><h3>Third</h3><div class="bg-red-700">-30%</div>
  <div class="text-xl font-bold"><span class="font-bold">$7.00</span></div></a>
</div>`

	p := newTestParser(t)
	deals, err := p.ParsePage(wrapPage(cards), "US", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(deals) != 3 {
		t.Fatalf("len(deals) = %d, want 3", len(deals))
	}
	for i, wantID := range []string{"psp_1", "psp_2", "psp_3"} {
		if deals[i].GameID != wantID {
			t.Errorf("deals[%d].GameID = %q, want %q", i, deals[i].GameID, wantID)
		}
		if deals[i].PositionOnPage != i {
			t.Errorf("deals[%d].PositionOnPage = %d, want %d", i, deals[i].PositionOnPage, i)
		}
		if deals[i].PageNumber != 3 {
			t.Errorf("deals[%d].PageNumber = %d, want 3", i, deals[i].PageNumber)
		}
	}
}

// TestParsePage_PS4Platform はPS4バッジの判定をテストする。
func TestParsePage_PS4Platform(t *testing.T) {
	card := `
<div class="game-fragment">
  <a data-game-id="44">
    <img alt="PlayStation 4" src="/icons/ps4.svg">
    <h3>Legacy Game</h3>
    <div class="bg-red-700">-40%</div>
    <div class="text-xl font-bold"><span class="font-bold">$12.00</span></div>
  </a>
</div>`

	p := newTestParser(t)
	deals, err := p.ParsePage(wrapPage(card), "US", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(deals) != 1 {
		t.Fatalf("len(deals) = %d, want 1", len(deals))
	}
	if deals[0].Platform != "PS4" {
		t.Errorf("Platform = %q, want PS4", deals[0].Platform)
	}
}

// TestParsePage_SanitizesTitle はタイトル内のマークアップが除去されることをテストする。
func TestParsePage_SanitizesTitle(t *testing.T) {
	card := `
<div class="game-fragment">
  <a data-game-id="55">
    <h3>Game <b>Deluxe</b> &amp; DLC</h3>
    <div class="bg-red-700">-25%</div>
    <div class="text-xl font-bold"><span class="font-bold">$15.00</span></div>
  </a>
</div>`

	p := newTestParser(t)
	deals, err := p.ParsePage(wrapPage(card), "US", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(deals) != 1 {
		t.Fatalf("len(deals) = %d, want 1", len(deals))
	}
	if deals[0].Title != "Game Deluxe & DLC" {
		t.Errorf("Title = %q, want %q", deals[0].Title, "Game Deluxe & DLC")
	}
}

// TestParsePage_EmptyDocument は空ページで空の結果が返ることをテストする。
func TestParsePage_EmptyDocument(t *testing.T) {
	p := newTestParser(t)
	deals, err := p.ParsePage([]byte("<html><body></body></html>"), "US", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(deals) != 0 {
		t.Errorf("len(deals) = %d, want 0", len(deals))
	}
}

// --- ParseTotalPages のテスト ---

// TestParseTotalPages_Found はページネーション表記から総ページ数が読めることをテストする。
func TestParseTotalPages_Found(t *testing.T) {
	body := []byte(`<html><body><span class="text-sm text-gray-700">Page 1 of 42</span></body></html>`)
	p := newTestParser(t)
	total, ok := p.ParseTotalPages(body)
	if !ok {
		t.Fatal("expected total pages to be found")
	}
	if total != 42 {
		t.Errorf("total = %d, want 42", total)
	}
}

// TestParseTotalPages_NotFound は表記がない場合にfalseが返ることをテストする。
func TestParseTotalPages_NotFound(t *testing.T) {
	body := []byte(`<html><body><span class="text-gray-700">no pagination here</span></body></html>`)
	p := newTestParser(t)
	if _, ok := p.ParseTotalPages(body); ok {
		t.Error("expected total pages to be missing")
	}
}
