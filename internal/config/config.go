// Package config は環境変数からのアプリケーション設定読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Telegram
	TelegramBotToken string

	// Scrape
	ScrapeBaseURL     string
	ScrapeRegions     []string
	ScrapeInterval    time.Duration
	FetchTimeout      time.Duration
	IncrementalPages  int // 通常パスの1リージョンあたりページ上限
	MaxTotalPages     int // フルスクレイプ時の安全上限
	RegionConcurrency int // 同時進行できるリージョンスクレイプ数

	// Notification
	NotifyRatePerSec float64

	// Cleanup
	PriceRetentionDays int

	// Ops server
	OpsPort string

	// 初回起動時にフルスクレイプを実行するか
	InitialFullScrape bool
}

// Load は.envと環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	// .envがあれば読み込む（なくてもエラーにしない）
	_ = godotenv.Load()

	cfg := &Config{}

	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.TelegramBotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	if cfg.TelegramBotToken == "" {
		missing = append(missing, "TELEGRAM_BOT_TOKEN")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	cfg.ScrapeBaseURL = getEnvString("SCRAPE_BASE_URL", "https://psprices.com")
	cfg.ScrapeRegions = splitRegions(getEnvString("SCRAPE_REGIONS", "IL,US,IN"))
	cfg.ScrapeInterval = getEnvDuration("SCRAPE_INTERVAL", 3*time.Hour)
	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 30*time.Second)
	cfg.IncrementalPages = getEnvInt("INCREMENTAL_PAGES", 2)
	cfg.MaxTotalPages = getEnvInt("MAX_TOTAL_PAGES", 200)
	cfg.RegionConcurrency = getEnvInt("REGION_CONCURRENCY", 1)
	cfg.NotifyRatePerSec = getEnvFloat("NOTIFY_RATE_PER_SEC", 20)
	cfg.PriceRetentionDays = getEnvInt("PRICE_RETENTION_DAYS", 90)
	cfg.OpsPort = getEnvString("OPS_PORT", "8080")
	cfg.InitialFullScrape = getEnvBool("INITIAL_FULL_SCRAPE", true)

	return cfg, nil
}

// splitRegions はカンマ区切りのリージョンコード列を正規化して分割する。
func splitRegions(s string) []string {
	var regions []string
	for _, part := range strings.Split(s, ",") {
		code := strings.ToUpper(strings.TrimSpace(part))
		if code != "" {
			regions = append(regions, code)
		}
	}
	return regions
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
