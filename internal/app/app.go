// Package app はアプリケーションの起動と依存関係のワイヤリングを提供する。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/dealhunter/internal/config"
	"github.com/hitoshi/dealhunter/internal/database"
	"github.com/hitoshi/dealhunter/internal/handler"
	"github.com/hitoshi/dealhunter/internal/logger"
	"github.com/hitoshi/dealhunter/internal/metrics"
	"github.com/hitoshi/dealhunter/internal/notify"
	"github.com/hitoshi/dealhunter/internal/reconcile"
	"github.com/hitoshi/dealhunter/internal/repository"
	"github.com/hitoshi/dealhunter/internal/scraper"
	"github.com/hitoshi/dealhunter/internal/security"
	"github.com/hitoshi/dealhunter/internal/worker/cleanup"
	"github.com/hitoshi/dealhunter/internal/worker/scrape"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("OPS_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.Any("regions", cfg.ScrapeRegions),
		slog.Duration("scrape_interval", cfg.ScrapeInterval),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runWorker(cfg)
	}
}

// runWorker はスクレイプワーカーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、スクレイプコーディネーターと
// 運用HTTPサーバー（/health・/metrics）を起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	gameRepo := repository.NewPostgresGameRepo(db)
	dealRepo := repository.NewPostgresDealRepo(db)
	userRepo := repository.NewPostgresUserRepo(db)
	alertRepo := repository.NewPostgresAlertRepo(db)

	// 3. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 4. スクレイパーの初期化
	sanitizer := security.NewTextSanitizer()
	fetchClient := scraper.NewFetchClient(cfg.FetchTimeout, slog.Default(), collector)
	parser := scraper.NewParser(sanitizer, slog.Default())
	catalogScraper := scraper.NewCatalogScraper(
		fetchClient, parser, cfg.ScrapeBaseURL, cfg.MaxTotalPages,
		slog.Default(), collector,
	)

	// 5. 照合サービスの初期化
	reconcileSvc := reconcile.NewService(gameRepo, dealRepo, slog.Default(), collector)

	// 6. 通知エンジンの初期化
	sender, err := notify.NewTelegramSender(cfg.TelegramBotToken)
	if err != nil {
		return fmt.Errorf("failed to initialize telegram sender: %w", err)
	}
	engine := notify.NewEngine(
		userRepo, gameRepo, dealRepo, alertRepo, sender,
		cfg.NotifyRatePerSec, slog.Default(), collector,
	)

	// 7. スクレイプコーディネーターの初期化
	coordinator := scrape.NewCoordinator(
		catalogScraper, reconcileSvc, engine,
		cfg.ScrapeRegions, cfg.IncrementalPages, cfg.RegionConcurrency,
		cfg.InitialFullScrape, slog.Default(), collector,
	)

	// 8. クリーンアップジョブの初期化
	cleanupJob := cleanup.NewCleanupJob(dealRepo, slog.Default())
	cleanupJob.RetentionDays = cfg.PriceRetentionDays

	// 9. 運用HTTPサーバーの構築
	opsRouter := handler.NewOpsRouter(&handler.OpsDeps{
		HealthChecker: db,
		Gatherer:      registry,
		Logger:        slog.Default(),
	})
	opsServer := &http.Server{
		Addr:         ":" + cfg.OpsPort,
		Handler:      opsRouter,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	go func() {
		slog.Info("ops server starting",
			slog.String("addr", opsServer.Addr),
		)
		if err := opsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("ops server listen error", slog.String("error", err.Error()))
		}
	}()

	// クリーンアップジョブを日次でバックグラウンド実行
	go func() {
		// 起動直後に1回実行
		if err := cleanupJob.Run(ctx); err != nil {
			slog.Error("cleanup job failed", slog.String("error", err.Error()))
		}

		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := cleanupJob.Run(ctx); err != nil {
					slog.Error("cleanup job failed", slog.String("error", err.Error()))
				}
			}
		}
	}()

	slog.Info("worker starting",
		slog.Any("regions", cfg.ScrapeRegions),
		slog.Duration("scrape_interval", cfg.ScrapeInterval),
		slog.Int("region_concurrency", cfg.RegionConcurrency),
	)

	// スクレイプコーディネーターをメインgoroutineで実行（ブロッキング）
	coordinator.Start(ctx, cfg.ScrapeInterval)

	// 運用HTTPサーバーを停止
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := opsServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ops server shutdown failed: %w", err)
	}

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
