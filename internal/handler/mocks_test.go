package handler

import (
	"context"

	"github.com/hitoshi/storyrank/internal/model"
	"github.com/hitoshi/storyrank/internal/ranking"
)

// --- モック定義 ---

// mockStoryService はStoryServiceInterfaceのテスト用モック。
type mockStoryService struct {
	submitFn func(ctx context.Context, authorID, title, content, category string, tags []string, wantsPriority bool) (*model.Story, error)
	getFn    func(ctx context.Context, id string) (*model.Story, error)
}

func (m *mockStoryService) Submit(ctx context.Context, authorID, title, content, category string, tags []string, wantsPriority bool) (*model.Story, error) {
	if m.submitFn != nil {
		return m.submitFn(ctx, authorID, title, content, category, tags, wantsPriority)
	}
	return &model.Story{ID: "story-1", AuthorID: authorID, Title: title}, nil
}

func (m *mockStoryService) Get(ctx context.Context, id string) (*model.Story, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return &model.Story{ID: id}, nil
}

// mockRankingService はRankingServiceInterfaceのテスト用モック。
type mockRankingService struct {
	listFn func(ctx context.Context, q ranking.Query) (*ranking.Page, error)
}

func (m *mockRankingService) List(ctx context.Context, q ranking.Query) (*ranking.Page, error) {
	if m.listFn != nil {
		return m.listFn(ctx, q)
	}
	return &ranking.Page{Stories: []*model.Story{}}, nil
}

// mockVoteService はVoteServiceInterfaceのテスト用モック。
type mockVoteService struct {
	castVoteFn func(ctx context.Context, userID, storyID string, voteType model.VoteType) (*model.VoteRecord, int, error)
	balanceFn  func(ctx context.Context, userID string) (int, error)
}

func (m *mockVoteService) CastVote(ctx context.Context, userID, storyID string, voteType model.VoteType) (*model.VoteRecord, int, error) {
	if m.castVoteFn != nil {
		return m.castVoteFn(ctx, userID, storyID, voteType)
	}
	return &model.VoteRecord{ID: "vote-1", StoryID: storyID, UserID: userID, VoteType: voteType}, 1, nil
}

func (m *mockVoteService) Balance(ctx context.Context, userID string) (int, error) {
	if m.balanceFn != nil {
		return m.balanceFn(ctx, userID)
	}
	return 0, nil
}

// mockBoostService はBoostServiceInterfaceのテスト用モック。
type mockBoostService struct {
	requestFn         func(ctx context.Context, userID, storyID string, durationHours, amount int) (*model.BoostSession, string, error)
	statusFn          func(ctx context.Context, boostID string) (*model.BoostSession, error)
	currentForStoryFn func(ctx context.Context, storyID string) (*model.BoostSession, error)
	listForStoryFn    func(ctx context.Context, storyID string) ([]*model.BoostSession, error)
	cancelFn          func(ctx context.Context, boostID string) (*model.BoostSession, error)
}

func (m *mockBoostService) Request(ctx context.Context, userID, storyID string, durationHours, amount int) (*model.BoostSession, string, error) {
	if m.requestFn != nil {
		return m.requestFn(ctx, userID, storyID, durationHours, amount)
	}
	return &model.BoostSession{ID: "boost-1", StoryID: storyID, Status: model.BoostStatusPendingPayment}, "https://pay.example.com/cs_1", nil
}

func (m *mockBoostService) Status(ctx context.Context, boostID string) (*model.BoostSession, error) {
	if m.statusFn != nil {
		return m.statusFn(ctx, boostID)
	}
	return &model.BoostSession{ID: boostID}, nil
}

func (m *mockBoostService) CurrentForStory(ctx context.Context, storyID string) (*model.BoostSession, error) {
	if m.currentForStoryFn != nil {
		return m.currentForStoryFn(ctx, storyID)
	}
	return nil, nil
}

func (m *mockBoostService) ListForStory(ctx context.Context, storyID string) ([]*model.BoostSession, error) {
	if m.listForStoryFn != nil {
		return m.listForStoryFn(ctx, storyID)
	}
	return nil, nil
}

func (m *mockBoostService) Cancel(ctx context.Context, boostID string) (*model.BoostSession, error) {
	if m.cancelFn != nil {
		return m.cancelFn(ctx, boostID)
	}
	return &model.BoostSession{ID: boostID, Status: model.BoostStatusCancelled}, nil
}

// mockPurchaseService は購入系インターフェースのテスト用モック。
type mockPurchaseService struct {
	purchaseVotePackFn     func(ctx context.Context, userID, packID string) (*model.Purchase, string, error)
	purchasePriorityFn     func(ctx context.Context, userID, storyID string) (*model.Purchase, string, error)
	reportVotePackFn       func(ctx context.Context, purchaseID string, outcome model.PaymentStatus) (*model.Purchase, error)
	reportPriorityFn       func(ctx context.Context, purchaseID string, outcome model.PaymentStatus) (*model.Purchase, error)
	reportPaymentOutcomeFn func(ctx context.Context, boostID string, outcome model.PaymentStatus) (*model.BoostSession, error)
}

func (m *mockPurchaseService) PurchaseVotePack(ctx context.Context, userID, packID string) (*model.Purchase, string, error) {
	if m.purchaseVotePackFn != nil {
		return m.purchaseVotePackFn(ctx, userID, packID)
	}
	return &model.Purchase{ID: "purchase-1", Kind: model.PurchaseKindVotePack, Pack: packID}, "https://pay.example.com/cs_1", nil
}

func (m *mockPurchaseService) PurchasePriority(ctx context.Context, userID, storyID string) (*model.Purchase, string, error) {
	if m.purchasePriorityFn != nil {
		return m.purchasePriorityFn(ctx, userID, storyID)
	}
	return &model.Purchase{ID: "purchase-1", Kind: model.PurchaseKindPriority, StoryID: storyID}, "https://pay.example.com/cs_1", nil
}

func (m *mockPurchaseService) ReportVotePackOutcome(ctx context.Context, purchaseID string, outcome model.PaymentStatus) (*model.Purchase, error) {
	if m.reportVotePackFn != nil {
		return m.reportVotePackFn(ctx, purchaseID, outcome)
	}
	return &model.Purchase{ID: purchaseID, Kind: model.PurchaseKindVotePack, Status: model.PurchaseStatusCompleted}, nil
}

func (m *mockPurchaseService) ReportPriorityOutcome(ctx context.Context, purchaseID string, outcome model.PaymentStatus) (*model.Purchase, error) {
	if m.reportPriorityFn != nil {
		return m.reportPriorityFn(ctx, purchaseID, outcome)
	}
	return &model.Purchase{ID: purchaseID, Kind: model.PurchaseKindPriority, Status: model.PurchaseStatusCompleted}, nil
}

func (m *mockPurchaseService) ReportPaymentOutcome(ctx context.Context, boostID string, outcome model.PaymentStatus) (*model.BoostSession, error) {
	if m.reportPaymentOutcomeFn != nil {
		return m.reportPaymentOutcomeFn(ctx, boostID, outcome)
	}
	return &model.BoostSession{ID: boostID, Status: model.BoostStatusActive}, nil
}
