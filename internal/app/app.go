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
	"golang.org/x/time/rate"

	"github.com/hitoshi/storyrank/internal/boost"
	"github.com/hitoshi/storyrank/internal/config"
	"github.com/hitoshi/storyrank/internal/database"
	"github.com/hitoshi/storyrank/internal/handler"
	"github.com/hitoshi/storyrank/internal/logger"
	"github.com/hitoshi/storyrank/internal/metrics"
	"github.com/hitoshi/storyrank/internal/middleware"
	"github.com/hitoshi/storyrank/internal/payment"
	"github.com/hitoshi/storyrank/internal/ranking"
	"github.com/hitoshi/storyrank/internal/repository"
	"github.com/hitoshi/storyrank/internal/security"
	"github.com/hitoshi/storyrank/internal/story"
	"github.com/hitoshi/storyrank/internal/vote"
	"github.com/hitoshi/storyrank/internal/worker/expire"
	"github.com/hitoshi/storyrank/internal/worker/reconcile"
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

	// 3. 決済プロバイダのエンドポイントを事前検証する
	// プライベートIPやループバックを指すエンドポイントは設定ミスとして弾く
	ssrfGuard := security.NewSSRFGuard()
	if err := ssrfGuard.ValidateURL(cfg.PaymentEndpoint); err != nil {
		return nil, fmt.Errorf("invalid PAYMENT_ENDPOINT: %w", err)
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
		port := os.Getenv("SERVER_PORT")
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
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
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
	storyRepo := repository.NewPostgresStoryRepo(db)
	ledgerRepo := repository.NewPostgresVoteLedgerRepo(db)
	boostRepo := repository.NewPostgresBoostRepo(db)
	purchaseRepo := repository.NewPostgresPurchaseRepo(db)

	// 3. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 4. セキュリティサービスと決済クライアントの初期化
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewContentSanitizer()
	paymentClient := payment.NewClient(
		ssrfGuard.NewSafeClient(cfg.PaymentTimeout),
		slog.Default(),
		cfg.PaymentEndpoint,
	)

	// 5. ドメインサービスの初期化
	storyService := story.NewService(storyRepo, sanitizer, collector)
	voteService := vote.NewService(
		ledgerRepo, purchaseRepo, paymentClient,
		collector, slog.Default(), cfg.BaseURL,
	)
	boostService := boost.NewService(
		boostRepo, storyRepo, purchaseRepo, paymentClient,
		collector, slog.Default(), cfg.PendingPaymentTimeout, cfg.BaseURL,
	)
	rankingService := ranking.NewService(storyRepo, boostRepo, collector)

	// 6. レート制限の初期化（configはreq/min単位、rate.Limitはreq/sec単位）
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	rateLimiterCfg.PurchaseRate = rate.Limit(float64(cfg.RateLimitPurchase) / 60.0)
	rateLimiterCfg.PurchaseBurst = cfg.RateLimitPurchase

	// 7. ルーターの構築
	deps := &handler.RouterDeps{
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       middleware.NewRateLimiter(rateLimiterCfg),
		Logger:            slog.Default(),
		HTTPMetrics:       collector,

		MetricsHandler: metrics.Handler(registry),

		StoryService:   storyService,
		RankingService: rankingService,

		VoteService:       voteService,
		VotePackPurchaser: voteService,
		VotePackOutcomes:  voteService,

		BoostService:      boostService,
		BoostOutcomes:     boostService,
		PriorityPurchaser: boostService,
		PriorityOutcomes:  boostService,
	}

	router := handler.NewRouter(deps)

	// 8. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、期限切れブーストのスイープを定期実行する。
// 期限切れ判定自体はAPI側の読み取り時にも行われるため、
// スイープは行の状態を事実に追いつかせるための補助的なジョブとなる。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
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

	slog.Info("database connection established (worker)")

	// 2. リポジトリの初期化
	storyRepo := repository.NewPostgresStoryRepo(db)
	ledgerRepo := repository.NewPostgresVoteLedgerRepo(db)
	boostRepo := repository.NewPostgresBoostRepo(db)
	purchaseRepo := repository.NewPostgresPurchaseRepo(db)

	// 3. ブーストサービスの初期化
	// ワーカーは決済フローを開始しないが、状態遷移の実装を共有するため
	// API側と同じサービスを使用する
	ssrfGuard := security.NewSSRFGuard()
	paymentClient := payment.NewClient(
		ssrfGuard.NewSafeClient(cfg.PaymentTimeout),
		slog.Default(),
		cfg.PaymentEndpoint,
	)
	boostService := boost.NewService(
		boostRepo, storyRepo, purchaseRepo, paymentClient,
		nil, slog.Default(), cfg.PendingPaymentTimeout, cfg.BaseURL,
	)

	// 4. スイーパーと投票数照合の初期化
	sweeper := expire.NewSweeper(boostService, slog.Default())
	reconciler := reconcile.NewReconciler(storyRepo, ledgerRepo, slog.Default())

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

	slog.Info("worker starting",
		slog.Duration("sweep_interval", cfg.ExpireSweepInterval),
		slog.Duration("reconcile_interval", cfg.VoteReconcileInterval),
	)

	// 投票数照合はスイープより低頻度のためバックグラウンドで実行
	go reconciler.Start(ctx, cfg.VoteReconcileInterval)

	// スイーパーをメインgoroutineで実行（ブロッキング）
	sweeper.Start(ctx, cfg.ExpireSweepInterval)

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
