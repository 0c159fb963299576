package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/storyrank/internal/middleware"
	"github.com/hitoshi/storyrank/internal/model"
)

// BoostOutcomeReporter はブースト決済結果の反映インターフェース。
type BoostOutcomeReporter interface {
	ReportPaymentOutcome(ctx context.Context, boostID string, outcome model.PaymentStatus) (*model.BoostSession, error)
}

// PriorityOutcomeReporter は優先表示購入の決済結果の反映インターフェース。
type PriorityOutcomeReporter interface {
	ReportPriorityOutcome(ctx context.Context, purchaseID string, outcome model.PaymentStatus) (*model.Purchase, error)
}

// VotePackOutcomeReporter は投票パック購入の決済結果の反映インターフェース。
type VotePackOutcomeReporter interface {
	ReportVotePackOutcome(ctx context.Context, purchaseID string, outcome model.PaymentStatus) (*model.Purchase, error)
}

// WebhookHandler は決済プロバイダからの結果通知を受けるHTTPハンドラー。
// 通知は認証ミドルウェアの外に配置され、再送に対して冪等に動作する。
type WebhookHandler struct {
	boosts    BoostOutcomeReporter
	priority  PriorityOutcomeReporter
	votePacks VotePackOutcomeReporter
}

// NewWebhookHandler はWebhookHandlerを生成する。
func NewWebhookHandler(boosts BoostOutcomeReporter, priority PriorityOutcomeReporter, votePacks VotePackOutcomeReporter) *WebhookHandler {
	return &WebhookHandler{
		boosts:    boosts,
		priority:  priority,
		votePacks: votePacks,
	}
}

// webhookRequest は決済プロバイダからの通知のボディ。
// kindはチェックアウトセッション作成時にプロバイダへ渡したメタデータの折り返し。
type webhookRequest struct {
	Kind        string `json:"kind"`         // boost | vote_pack | priority
	ReferenceID string `json:"reference_id"` // ブーストIDまたは購入ID
	Outcome     string `json:"outcome"`      // completed | failed
}

// webhookResponse は通知処理結果のレスポンス。
type webhookResponse struct {
	ReferenceID string `json:"reference_id"`
	Status      string `json:"status"`
}

// HandlePaymentWebhook は決済結果の通知を対応するドメインに振り分けて反映する。
// POST /api/payments/webhook
func (h *WebhookHandler) HandlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	var req webhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}

	outcome := model.PaymentStatus(req.Outcome)
	if outcome != model.PaymentStatusCompleted && outcome != model.PaymentStatusFailed {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidArgumentError("決済結果はcompletedまたはfailedを指定してください"))
		return
	}

	var status string
	switch req.Kind {
	case "boost":
		session, err := h.boosts.ReportPaymentOutcome(r.Context(), req.ReferenceID, outcome)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		status = string(session.Status)

	case string(model.PurchaseKindVotePack):
		purchase, err := h.votePacks.ReportVotePackOutcome(r.Context(), req.ReferenceID, outcome)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		status = string(purchase.Status)

	case string(model.PurchaseKindPriority):
		purchase, err := h.priority.ReportPriorityOutcome(r.Context(), req.ReferenceID, outcome)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		status = string(purchase.Status)

	default:
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidArgumentError("通知種別はboost・vote_pack・priorityのいずれかを指定してください"))
		return
	}

	writeJSON(w, http.StatusOK, webhookResponse{
		ReferenceID: req.ReferenceID,
		Status:      status,
	})
}
