package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/storyrank/internal/model"
)

// BoostServiceInterface はブーストハンドラーが必要とするサービスインターフェース。
type BoostServiceInterface interface {
	// Request はブーストを申し込み、セッションと決済URLを返す。
	Request(ctx context.Context, userID, storyID string, durationHours, amount int) (*model.BoostSession, string, error)
	// Status はブーストの現在の状態を返す（遅延期限切れ判定込み）。
	Status(ctx context.Context, boostID string) (*model.BoostSession, error)
	// CurrentForStory はストーリーの現在有効なブーストを返す。
	CurrentForStory(ctx context.Context, storyID string) (*model.BoostSession, error)
	// ListForStory はストーリーの全ブースト履歴を返す。
	ListForStory(ctx context.Context, storyID string) ([]*model.BoostSession, error)
	// Cancel はユーザー操作でブーストをキャンセルする。
	Cancel(ctx context.Context, boostID string) (*model.BoostSession, error)
}

// BoostHandler はブースト申込・照会のHTTPハンドラー。
type BoostHandler struct {
	service BoostServiceInterface
}

// NewBoostHandler はBoostHandlerを生成する。
func NewBoostHandler(service BoostServiceInterface) *BoostHandler {
	return &BoostHandler{service: service}
}

// --- リクエスト・レスポンス型 ---

// boostRequestBody はブースト申込リクエストのボディ。
type boostRequestBody struct {
	StoryID       string `json:"story_id"`
	DurationHours int    `json:"duration_hours"`
	Amount        int    `json:"amount"` // セント単位。時間数に対応する価格と一致が必要
}

// boostResponse はブーストセッションのレスポンス。
type boostResponse struct {
	ID            string     `json:"id"`
	StoryID       string     `json:"story_id"`
	DurationHours int        `json:"duration_hours"`
	Amount        int        `json:"amount"`
	Status        string     `json:"status"`
	PaymentStatus string     `json:"payment_status"`
	StartTime     *time.Time `json:"start_time,omitempty"`
	EndTime       *time.Time `json:"end_time,omitempty"`
	Note          string     `json:"note,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// boostCheckoutResponse はブースト申込のレスポンス。決済ページURLを含む。
type boostCheckoutResponse struct {
	Boost       boostResponse `json:"boost"`
	CheckoutURL string        `json:"checkout_url"`
}

// storyBoostsResponse はストーリーのブースト状況のレスポンス。
type storyBoostsResponse struct {
	Current *boostResponse  `json:"current,omitempty"`
	History []boostResponse `json:"history"`
}

// RequestBoost はストーリーへのブーストを申し込む。
// POST /api/boosts
func (h *BoostHandler) RequestBoost(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req boostRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}

	session, checkoutURL, err := h.service.Request(r.Context(), userID, req.StoryID, req.DurationHours, req.Amount)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, boostCheckoutResponse{
		Boost:       toBoostResponse(session),
		CheckoutURL: checkoutURL,
	})
}

// GetBoost はブーストの現在の状態を返す。
// GET /api/boosts/:id
func (h *BoostHandler) GetBoost(w http.ResponseWriter, r *http.Request) {
	boostID := chi.URLParam(r, "id")

	session, err := h.service.Status(r.Context(), boostID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toBoostResponse(session))
}

// GetStoryBoosts はストーリーの現在有効なブーストと履歴を返す。
// GET /api/boosts/story/:id
func (h *BoostHandler) GetStoryBoosts(w http.ResponseWriter, r *http.Request) {
	storyID := chi.URLParam(r, "id")

	current, err := h.service.CurrentForStory(r.Context(), storyID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	history, err := h.service.ListForStory(r.Context(), storyID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := storyBoostsResponse{History: make([]boostResponse, 0, len(history))}
	if current != nil {
		c := toBoostResponse(current)
		resp.Current = &c
	}
	for _, session := range history {
		resp.History = append(resp.History, toBoostResponse(session))
	}

	writeJSON(w, http.StatusOK, resp)
}

// CancelBoost はブーストをキャンセルする。
// DELETE /api/boosts/:id
func (h *BoostHandler) CancelBoost(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUserID(w, r); !ok {
		return
	}

	boostID := chi.URLParam(r, "id")

	session, err := h.service.Cancel(r.Context(), boostID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toBoostResponse(session))
}

// toBoostResponse はmodel.BoostSessionからAPIレスポンスに変換する。
func toBoostResponse(session *model.BoostSession) boostResponse {
	return boostResponse{
		ID:            session.ID,
		StoryID:       session.StoryID,
		DurationHours: session.DurationHours,
		Amount:        session.Amount,
		Status:        string(session.Status),
		PaymentStatus: string(session.PaymentStatus),
		StartTime:     session.StartTime,
		EndTime:       session.EndTime,
		Note:          session.Note,
		CreatedAt:     session.CreatedAt,
	}
}
