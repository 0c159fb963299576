package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/storyrank/internal/model"
)

// VoteServiceInterface は投票ハンドラーが必要とするサービスインターフェース。
type VoteServiceInterface interface {
	// CastVote は投票を確定し、投票記録と適用後のストーリー投票数を返す。
	CastVote(ctx context.Context, userID, storyID string, voteType model.VoteType) (*model.VoteRecord, int, error)
	// Balance はユーザーのクレジット残高を返す。
	Balance(ctx context.Context, userID string) (int, error)
}

// VoteHandler は投票のHTTPハンドラー。
type VoteHandler struct {
	service VoteServiceInterface
}

// NewVoteHandler はVoteHandlerを生成する。
func NewVoteHandler(service VoteServiceInterface) *VoteHandler {
	return &VoteHandler{service: service}
}

// --- リクエスト・レスポンス型 ---

// castVoteRequest は投票リクエストのボディ。
type castVoteRequest struct {
	VoteType string `json:"vote_type"`
}

// castVoteResponse は投票確定のレスポンス。
type castVoteResponse struct {
	VoteID    string    `json:"vote_id"`
	StoryID   string    `json:"story_id"`
	VoteType  string    `json:"vote_type"`
	VoteCount int       `json:"vote_count"` // 適用後のストーリー投票数
	CreatedAt time.Time `json:"created_at"`
}

// balanceResponse はクレジット残高のレスポンス。
type balanceResponse struct {
	Balance int `json:"balance"`
}

// CastVote は指定ストーリーに投票する。
// POST /api/stories/:id/votes
func (h *VoteHandler) CastVote(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	storyID := chi.URLParam(r, "id")

	var req castVoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}

	record, voteCount, err := h.service.CastVote(r.Context(), userID, storyID, model.VoteType(req.VoteType))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, castVoteResponse{
		VoteID:    record.ID,
		StoryID:   record.StoryID,
		VoteType:  string(record.VoteType),
		VoteCount: voteCount,
		CreatedAt: record.CreatedAt,
	})
}

// GetBalance は呼び出しユーザーのクレジット残高を返す。
// GET /api/votes/balance
func (h *VoteHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	balance, err := h.service.Balance(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, balanceResponse{Balance: balance})
}
