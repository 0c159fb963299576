package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/storyrank/internal/model"
	"github.com/hitoshi/storyrank/internal/ranking"
)

// StoryServiceInterface はストーリーハンドラーが必要とするサービスインターフェース。
type StoryServiceInterface interface {
	// Submit は新しいストーリーを投稿する。
	Submit(ctx context.Context, authorID, title, content, category string, tags []string, wantsPriority bool) (*model.Story, error)
	// Get は指定IDのストーリーを返す。
	Get(ctx context.Context, id string) (*model.Story, error)
}

// RankingServiceInterface はストーリー一覧のクエリインターフェース。
type RankingServiceInterface interface {
	List(ctx context.Context, q ranking.Query) (*ranking.Page, error)
}

// CurrentBoostFinder はストーリーの現在有効なブーストの取得インターフェース。
type CurrentBoostFinder interface {
	CurrentForStory(ctx context.Context, storyID string) (*model.BoostSession, error)
}

// StoryHandler はストーリー投稿・一覧・詳細のHTTPハンドラー。
type StoryHandler struct {
	storyService   StoryServiceInterface
	rankingService RankingServiceInterface
	boostFinder    CurrentBoostFinder
}

// NewStoryHandler はStoryHandlerを生成する。
func NewStoryHandler(storyService StoryServiceInterface, rankingService RankingServiceInterface, boostFinder CurrentBoostFinder) *StoryHandler {
	return &StoryHandler{
		storyService:   storyService,
		rankingService: rankingService,
		boostFinder:    boostFinder,
	}
}

// --- リクエスト・レスポンス型 ---

// storySubmitRequest はストーリー投稿リクエストのボディ。
type storySubmitRequest struct {
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
	// WantsPriority は優先表示の決済完了後にのみtrueで送られる。
	WantsPriority bool `json:"wants_priority"`
}

// storyResponse はストーリーのレスポンス。
type storyResponse struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"` // サニタイズ済みHTML
	AuthorID   string    `json:"author_id"`
	Category   string    `json:"category"`
	Tags       []string  `json:"tags"`
	VoteCount  int       `json:"vote_count"`
	IsPriority bool      `json:"is_priority"`
	CreatedAt  time.Time `json:"created_at"`
}

// storyListResponse はストーリー一覧のレスポンス。
type storyListResponse struct {
	Stories      []storyResponse `json:"stories"`
	CurrentPage  int             `json:"current_page"`
	TotalPages   int             `json:"total_pages"`
	TotalStories int             `json:"total_stories"`
	HasNext      bool            `json:"has_next"`
	HasPrev      bool            `json:"has_prev"`
}

// storyDetailResponse はストーリー詳細のレスポンス。現在有効なブーストを含む。
type storyDetailResponse struct {
	storyResponse
	CurrentBoost *boostResponse `json:"current_boost,omitempty"`
}

// SubmitStory は新しいストーリーを投稿する。
// POST /api/stories
func (h *StoryHandler) SubmitStory(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req storySubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}

	story, err := h.storyService.Submit(r.Context(), userID, req.Title, req.Content, req.Category, req.Tags, req.WantsPriority)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toStoryResponse(story))
}

// ListStories はストーリー一覧をフィルタ・ソート・ページネーション付きで返す。
// GET /api/stories?category=xxx&featured=true&authorId=xxx&sort=ranked&page=1&pageSize=20
func (h *StoryHandler) ListStories(w http.ResponseWriter, r *http.Request) {
	query := ranking.Query{
		Category: r.URL.Query().Get("category"),
		AuthorID: r.URL.Query().Get("authorId"),
		Sort:     model.StorySort(r.URL.Query().Get("sort")),
		Featured: r.URL.Query().Get("featured") == "true",
	}
	if page, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil {
		query.Page = page
	}
	if pageSize, err := strconv.Atoi(r.URL.Query().Get("pageSize")); err == nil {
		query.PageSize = pageSize
	}

	page, err := h.rankingService.List(r.Context(), query)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := storyListResponse{
		Stories:      make([]storyResponse, 0, len(page.Stories)),
		CurrentPage:  page.CurrentPage,
		TotalPages:   page.TotalPages,
		TotalStories: page.TotalStories,
		HasNext:      page.HasNext,
		HasPrev:      page.HasPrev,
	}
	for _, story := range page.Stories {
		resp.Stories = append(resp.Stories, toStoryResponse(story))
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetStory はストーリー詳細を現在有効なブースト付きで返す。
// GET /api/stories/:id
func (h *StoryHandler) GetStory(w http.ResponseWriter, r *http.Request) {
	storyID := chi.URLParam(r, "id")

	story, err := h.storyService.Get(r.Context(), storyID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	current, err := h.boostFinder.CurrentForStory(r.Context(), storyID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := storyDetailResponse{storyResponse: toStoryResponse(story)}
	if current != nil {
		boost := toBoostResponse(current)
		resp.CurrentBoost = &boost
	}

	writeJSON(w, http.StatusOK, resp)
}

// toStoryResponse はmodel.StoryからAPIレスポンスに変換する。
func toStoryResponse(story *model.Story) storyResponse {
	tags := story.Tags
	if tags == nil {
		tags = []string{}
	}
	return storyResponse{
		ID:         story.ID,
		Title:      story.Title,
		Content:    story.Content,
		AuthorID:   story.AuthorID,
		Category:   story.Category,
		Tags:       tags,
		VoteCount:  story.VoteCount,
		IsPriority: story.IsPriority,
		CreatedAt:  story.CreatedAt,
	}
}
