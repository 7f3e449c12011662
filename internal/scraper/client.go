// Package scraper はカタログページの取得とパースを提供する。
package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/http/cookiejar"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/hitoshi/dealhunter/internal/metrics"
)

// ErrRetryExhausted はリトライ上限までページを取得できなかったことを示す。
// 呼び出し側はこのページを空として扱い、スクレイプを継続する。
var ErrRetryExhausted = errors.New("リトライ上限に達しました")

// maxFetchAttempts は1ページあたりの最大試行回数。
const maxFetchAttempts = 5

// FetchResult はHTTPステータスコードに基づく取得結果の分類。
type FetchResult int

const (
	// FetchResultOK は取得成功（200）。
	FetchResultOK FetchResult = iota
	// FetchResultBlocked はアクセス制限ステータス（403/429/503）。
	FetchResultBlocked
	// FetchResultUnexpected はその他のステータスコード。
	FetchResultUnexpected
)

// ClassifyHTTPStatus はHTTPステータスコードを取得結果に分類する。
func ClassifyHTTPStatus(statusCode int) FetchResult {
	switch {
	case statusCode == http.StatusOK:
		return FetchResultOK
	case statusCode == http.StatusForbidden,
		statusCode == http.StatusTooManyRequests,
		statusCode == http.StatusServiceUnavailable:
		return FetchResultBlocked
	default:
		return FetchResultUnexpected
	}
}

// Identity はリクエストに使用するブラウザプロファイル。
type Identity struct {
	Browser        string
	Platform       string
	UserAgent      string
	AcceptLanguage string
}

// identityPool はローテーション対象のブラウザプロファイル。
var identityPool = []Identity{
	{
		Browser:        "chrome",
		Platform:       "windows",
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
		AcceptLanguage: "en-US,en;q=0.9",
	},
	{
		Browser:        "firefox",
		Platform:       "windows",
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:127.0) Gecko/20100101 Firefox/127.0",
		AcceptLanguage: "en-US,en;q=0.5",
	},
	{
		Browser:        "chrome",
		Platform:       "linux",
		UserAgent:      "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
		AcceptLanguage: "en-US,en;q=0.9",
	},
	{
		Browser:        "chrome",
		Platform:       "darwin",
		UserAgent:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
		AcceptLanguage: "en-US,en;q=0.9",
	},
}

// FetchClient はブラウザプロファイルのローテーションとリトライ付きで
// カタログページを取得するHTTPクライアント。
// 失敗のたびにプロファイルを切り替え、cookieセッションも作り直す。
type FetchClient struct {
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
	collector  metrics.MetricsCollector

	identityIndex int
	identity      Identity

	// テストから差し替えるための注入ポイント
	rng   *rand.Rand
	sleep func(ctx context.Context, d time.Duration) error
}

// NewFetchClient はFetchClientを生成する。最初のプロファイルでセッションを開始する。
func NewFetchClient(timeout time.Duration, logger *slog.Logger, collector metrics.MetricsCollector) *FetchClient {
	c := &FetchClient{
		timeout:   timeout,
		logger:    logger,
		collector: collector,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:     sleepContext,
	}
	c.applyIdentity(0)
	return c
}

// applyIdentity は指定インデックスのプロファイルを適用し、
// 新しいcookieジャーでHTTPクライアントを作り直す。
func (c *FetchClient) applyIdentity(index int) {
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	c.identityIndex = index
	c.identity = identityPool[index]
	c.httpClient = &http.Client{
		Timeout: c.timeout,
		Jar:     jar,
	}
}

// renewIdentity は次のプロファイルへローテーションする。
// プロファイル切り替えはリトライと1対1で起きるため、ここでリトライ数を記録する。
func (c *FetchClient) renewIdentity() {
	if c.collector != nil {
		c.collector.RecordFetchRetry()
	}
	next := (c.identityIndex + 1) % len(identityPool)
	c.applyIdentity(next)
	c.logger.Info("ブラウザプロファイルを切り替えました",
		slog.String("browser", c.identity.Browser),
		slog.String("platform", c.identity.Platform),
	)
}

// CurrentIdentity は現在のブラウザプロファイルを返す。
func (c *FetchClient) CurrentIdentity() Identity {
	return c.identity
}

// FetchPage は指定URLのページを取得する。
// 各試行の前にランダムなジッターを入れ、アクセス制限や通信エラー時は
// プロファイルを切り替えて待機後に再試行する。上限到達でErrRetryExhaustedを返す。
func (c *FetchClient) FetchPage(ctx context.Context, url string) ([]byte, error) {
	for attempt := 0; attempt < maxFetchAttempts; attempt++ {
		// リクエスト間隔を人間の操作に近づけるためのジッター
		if err := c.sleep(ctx, c.preRequestJitter()); err != nil {
			return nil, err
		}

		body, result, err := c.doFetch(ctx, url)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.Warn("HTTPリクエストに失敗しました",
				slog.String("url", url),
				slog.Int("attempt", attempt+1),
				slog.String("error", err.Error()),
			)
			c.renewIdentity()
			if err := c.sleep(ctx, c.transportErrorWait()); err != nil {
				return nil, err
			}
			continue
		}

		switch result {
		case FetchResultOK:
			return body, nil
		case FetchResultBlocked:
			c.logger.Warn("アクセス制限を受けました",
				slog.String("url", url),
				slog.Int("attempt", attempt+1),
			)
			c.renewIdentity()
			if err := c.sleep(ctx, c.blockedWait(attempt)); err != nil {
				return nil, err
			}
		default:
			c.logger.Warn("予期しないHTTPステータスコード",
				slog.String("url", url),
				slog.Int("attempt", attempt+1),
			)
			c.renewIdentity()
			if err := c.sleep(ctx, c.transportErrorWait()); err != nil {
				return nil, err
			}
		}
	}

	return nil, fmt.Errorf("ページの取得に失敗しました %s: %w", url, ErrRetryExhausted)
}

// doFetch は1回のHTTPリクエストを実行し、ボディと分類結果を返す。
func (c *FetchClient) doFetch(ctx context.Context, url string) ([]byte, FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, FetchResultUnexpected, fmt.Errorf("リクエスト作成に失敗: %w", err)
	}

	req.Header.Set("User-Agent", c.identity.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", c.identity.AcceptLanguage)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, FetchResultUnexpected, err
	}
	defer resp.Body.Close()

	if c.collector != nil {
		c.collector.RecordHTTPStatus(resp.StatusCode)
	}

	result := ClassifyHTTPStatus(resp.StatusCode)
	if result != FetchResultOK {
		return nil, result, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, FetchResultUnexpected, fmt.Errorf("レスポンス読み取りに失敗: %w", err)
	}
	return body, FetchResultOK, nil
}

// preRequestJitter はリクエスト前の待機時間（0.5〜2.0秒）を返す。
func (c *FetchClient) preRequestJitter() time.Duration {
	return randomDuration(c.rng, 500*time.Millisecond, 2*time.Second)
}

// blockedWait はアクセス制限時の待機時間を返す。
// 基礎待機5〜10秒に試行回数に応じた係数を掛ける。
func (c *FetchClient) blockedWait(attempt int) time.Duration {
	base := randomDuration(c.rng, 5*time.Second, 10*time.Second)
	return base * time.Duration(attempt+1)
}

// transportErrorWait は通信エラー時の待機時間（3〜6秒）を返す。
func (c *FetchClient) transportErrorWait() time.Duration {
	return randomDuration(c.rng, 3*time.Second, 6*time.Second)
}

// randomDuration は[min, max)の範囲の待機時間を返す。
func randomDuration(rng *rand.Rand, min, max time.Duration) time.Duration {
	return min + time.Duration(rng.Int63n(int64(max-min)))
}

// sleepContext はコンテキストのキャンセルを尊重して待機する。
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
