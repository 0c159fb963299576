package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/hitoshi/storyrank/internal/model"
)

// VotePackPurchaser は投票パック購入のサービスインターフェース。
type VotePackPurchaser interface {
	PurchaseVotePack(ctx context.Context, userID, packID string) (*model.Purchase, string, error)
}

// PriorityPurchaser は優先表示購入のサービスインターフェース。
type PriorityPurchaser interface {
	PurchasePriority(ctx context.Context, userID, storyID string) (*model.Purchase, string, error)
}

// PurchaseHandler は投票パック・優先表示購入のHTTPハンドラー。
type PurchaseHandler struct {
	votePacks VotePackPurchaser
	priority  PriorityPurchaser
}

// NewPurchaseHandler はPurchaseHandlerを生成する。
func NewPurchaseHandler(votePacks VotePackPurchaser, priority PriorityPurchaser) *PurchaseHandler {
	return &PurchaseHandler{
		votePacks: votePacks,
		priority:  priority,
	}
}

// --- リクエスト・レスポンス型 ---

// votePackPurchaseRequest は投票パック購入リクエストのボディ。
type votePackPurchaseRequest struct {
	Pack string `json:"pack"` // basic | standard | premium
}

// priorityPurchaseRequest は優先表示購入リクエストのボディ。
type priorityPurchaseRequest struct {
	StoryID string `json:"story_id"`
}

// purchaseResponse は購入のレスポンス。
type purchaseResponse struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	StoryID   string    `json:"story_id,omitempty"`
	Pack      string    `json:"pack,omitempty"`
	Credits   int       `json:"credits,omitempty"`
	Amount    int       `json:"amount"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// purchaseCheckoutResponse は購入開始のレスポンス。決済ページURLを含む。
type purchaseCheckoutResponse struct {
	Purchase    purchaseResponse `json:"purchase"`
	CheckoutURL string           `json:"checkout_url"`
}

// PurchaseVotePack は投票パックの購入を開始する。
// POST /api/purchases/vote-pack
func (h *PurchaseHandler) PurchaseVotePack(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req votePackPurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}

	purchase, checkoutURL, err := h.votePacks.PurchaseVotePack(r.Context(), userID, req.Pack)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, purchaseCheckoutResponse{
		Purchase:    toPurchaseResponse(purchase),
		CheckoutURL: checkoutURL,
	})
}

// PurchasePriority はストーリーの優先表示の購入を開始する。
// POST /api/purchases/priority
func (h *PurchaseHandler) PurchasePriority(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req priorityPurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}

	purchase, checkoutURL, err := h.priority.PurchasePriority(r.Context(), userID, req.StoryID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, purchaseCheckoutResponse{
		Purchase:    toPurchaseResponse(purchase),
		CheckoutURL: checkoutURL,
	})
}

// toPurchaseResponse はmodel.PurchaseからAPIレスポンスに変換する。
func toPurchaseResponse(purchase *model.Purchase) purchaseResponse {
	return purchaseResponse{
		ID:        purchase.ID,
		Kind:      string(purchase.Kind),
		StoryID:   purchase.StoryID,
		Pack:      purchase.Pack,
		Credits:   purchase.Credits,
		Amount:    purchase.Amount,
		Status:    string(purchase.Status),
		CreatedAt: purchase.CreatedAt,
	}
}
