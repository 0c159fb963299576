package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/storyrank/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger
	HTTPMetrics       middleware.HTTPStatusRecorder

	// /metrics のハンドラー（Prometheusスクレイプ用）
	MetricsHandler http.Handler

	// ストーリー・ランキング
	StoryService   StoryServiceInterface
	RankingService RankingServiceInterface

	// 投票（投票パック購入を含む）
	VoteService       VoteServiceInterface
	VotePackPurchaser VotePackPurchaser
	VotePackOutcomes  VotePackOutcomeReporter

	// ブースト（優先表示購入を含む）
	BoostService      BoostServiceInterface
	BoostOutcomes     BoostOutcomeReporter
	PriorityPurchaser PriorityPurchaser
	PriorityOutcomes  PriorityOutcomeReporter
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORS → SecurityHeaders → Logging → Recovery → Identity → RateLimit(General)
//
// /health・/metrics・決済Webhookは認証ミドルウェアの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	if deps.HTTPMetrics != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.HTTPMetrics))
	}
	r.Use(middleware.NewRecoveryMiddleware())

	storyHandler := NewStoryHandler(deps.StoryService, deps.RankingService, deps.BoostService)
	voteHandler := NewVoteHandler(deps.VoteService)
	boostHandler := NewBoostHandler(deps.BoostService)
	purchaseHandler := NewPurchaseHandler(deps.VotePackPurchaser, deps.PriorityPurchaser)
	webhookHandler := NewWebhookHandler(deps.BoostOutcomes, deps.PriorityOutcomes, deps.VotePackOutcomes)

	// --- 認証不要のルート ---

	r.Get("/health", handleHealthCheck)

	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// 決済プロバイダからの通知（呼び出し元はユーザーではない）
	r.Post("/api/payments/webhook", webhookHandler.HandlePaymentWebhook)

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Identity → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewIdentityMiddleware())
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// ストーリー
		r.Route("/api/stories", func(r chi.Router) {
			r.Post("/", storyHandler.SubmitStory)
			r.Get("/", storyHandler.ListStories)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", storyHandler.GetStory)
				r.Post("/votes", voteHandler.CastVote)
			})
		})

		// クレジット残高
		r.Get("/api/votes/balance", voteHandler.GetBalance)

		// ブースト（申込は決済専用レート制限を追加）
		r.Route("/api/boosts", func(r chi.Router) {
			r.With(deps.RateLimiter.PurchaseMiddleware()).Post("/", boostHandler.RequestBoost)

			r.Get("/story/{id}", boostHandler.GetStoryBoosts)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", boostHandler.GetBoost)
				r.Delete("/", boostHandler.CancelBoost)
			})
		})

		// 購入（決済専用レート制限を追加）
		r.Route("/api/purchases", func(r chi.Router) {
			r.Use(deps.RateLimiter.PurchaseMiddleware())
			r.Post("/vote-pack", purchaseHandler.PurchaseVotePack)
			r.Post("/priority", purchaseHandler.PurchasePriority)
		})
	})

	return r
}

// handleHealthCheck は稼働確認のレスポンスを返す。
// GET /health
func handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
