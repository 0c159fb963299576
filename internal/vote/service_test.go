package vote

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hitoshi/storyrank/internal/model"
	"github.com/hitoshi/storyrank/internal/payment"
)

// mockVoteLedgerRepository はVoteLedgerRepositoryのモック実装。
type mockVoteLedgerRepository struct {
	findCreditFn         func(ctx context.Context, userID string) (*model.VoteCredit, error)
	grantCreditsFn       func(ctx context.Context, userID string, amount int) (int, error)
	castVoteFn           func(ctx context.Context, userID, storyID string, voteType model.VoteType) (*model.VoteRecord, int, error)
	findRecordFn         func(ctx context.Context, storyID, userID string) (*model.VoteRecord, error)
	listRecordsByStoryFn func(ctx context.Context, storyID string) ([]*model.VoteRecord, error)
}

func (m *mockVoteLedgerRepository) FindCredit(ctx context.Context, userID string) (*model.VoteCredit, error) {
	if m.findCreditFn != nil {
		return m.findCreditFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockVoteLedgerRepository) GrantCredits(ctx context.Context, userID string, amount int) (int, error) {
	if m.grantCreditsFn != nil {
		return m.grantCreditsFn(ctx, userID, amount)
	}
	return amount, nil
}

func (m *mockVoteLedgerRepository) CastVote(ctx context.Context, userID, storyID string, voteType model.VoteType) (*model.VoteRecord, int, error) {
	if m.castVoteFn != nil {
		return m.castVoteFn(ctx, userID, storyID, voteType)
	}
	return nil, 0, nil
}

func (m *mockVoteLedgerRepository) FindRecord(ctx context.Context, storyID, userID string) (*model.VoteRecord, error) {
	if m.findRecordFn != nil {
		return m.findRecordFn(ctx, storyID, userID)
	}
	return nil, nil
}

func (m *mockVoteLedgerRepository) ListRecordsByStory(ctx context.Context, storyID string) ([]*model.VoteRecord, error) {
	if m.listRecordsByStoryFn != nil {
		return m.listRecordsByStoryFn(ctx, storyID)
	}
	return nil, nil
}

// mockPurchaseRepository はPurchaseRepositoryのモック実装。
type mockPurchaseRepository struct {
	createFn   func(ctx context.Context, purchase *model.Purchase) error
	findByIDFn func(ctx context.Context, id string) (*model.Purchase, error)
	completeFn func(ctx context.Context, id string, now time.Time) (bool, error)
	failFn     func(ctx context.Context, id string, now time.Time) (bool, error)
}

func (m *mockPurchaseRepository) Create(ctx context.Context, purchase *model.Purchase) error {
	if m.createFn != nil {
		return m.createFn(ctx, purchase)
	}
	return nil
}

func (m *mockPurchaseRepository) FindByID(ctx context.Context, id string) (*model.Purchase, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockPurchaseRepository) Complete(ctx context.Context, id string, now time.Time) (bool, error) {
	if m.completeFn != nil {
		return m.completeFn(ctx, id, now)
	}
	return true, nil
}

func (m *mockPurchaseRepository) Fail(ctx context.Context, id string, now time.Time) (bool, error) {
	if m.failFn != nil {
		return m.failFn(ctx, id, now)
	}
	return true, nil
}

// mockCheckout はCheckoutClientのモック実装。
type mockCheckout struct {
	createFn func(ctx context.Context, req payment.CheckoutRequest) (*payment.CheckoutSession, error)
}

func (m *mockCheckout) CreateCheckoutSession(ctx context.Context, req payment.CheckoutRequest) (*payment.CheckoutSession, error) {
	if m.createFn != nil {
		return m.createFn(ctx, req)
	}
	return &payment.CheckoutSession{ID: "cs_1", URL: "https://pay.example.com/cs_1"}, nil
}

// mockMetrics は投票メトリクスの記録を捕捉するモック。
type mockMetrics struct {
	castTypes       []string
	rejectedReasons []string
	purchaseKinds   []string
}

func (m *mockMetrics) RecordVoteCast(voteType string) {
	m.castTypes = append(m.castTypes, voteType)
}

func (m *mockMetrics) RecordVoteRejected(reason string) {
	m.rejectedReasons = append(m.rejectedReasons, reason)
}

func (m *mockMetrics) RecordPurchaseCompleted(kind string) {
	m.purchaseKinds = append(m.purchaseKinds, kind)
}

func newTestService(ledgerRepo *mockVoteLedgerRepository, metrics *mockMetrics) *Service {
	return newTestServiceWithPurchases(ledgerRepo, &mockPurchaseRepository{}, &mockCheckout{}, metrics)
}

func newTestServiceWithPurchases(ledgerRepo *mockVoteLedgerRepository, purchaseRepo *mockPurchaseRepository, checkout *mockCheckout, metrics *mockMetrics) *Service {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	var m Metrics
	if metrics != nil {
		m = metrics
	}
	return NewService(ledgerRepo, purchaseRepo, checkout, m, logger, "https://app.example.com")
}

func TestCastVote_Success_ReturnsRecordAndCount(t *testing.T) {
	repo := &mockVoteLedgerRepository{
		castVoteFn: func(ctx context.Context, userID, storyID string, voteType model.VoteType) (*model.VoteRecord, int, error) {
			return &model.VoteRecord{
				ID:        "vote-1",
				StoryID:   storyID,
				UserID:    userID,
				VoteType:  voteType,
				CreatedAt: time.Now(),
			}, 5, nil
		},
	}
	metrics := &mockMetrics{}

	svc := newTestService(repo, metrics)

	record, count, err := svc.CastVote(context.Background(), "user-1", "story-1", model.VoteTypeUp)
	if err != nil {
		t.Fatalf("CastVote returned error: %v", err)
	}

	if record.ID != "vote-1" {
		t.Errorf("record ID = %q, want %q", record.ID, "vote-1")
	}
	if count != 5 {
		t.Errorf("count = %d, want 5", count)
	}
	if len(metrics.castTypes) != 1 || metrics.castTypes[0] != "up" {
		t.Errorf("cast metrics = %v, want [up]", metrics.castTypes)
	}
}

func TestCastVote_InvalidVoteType_ReturnsValidationError(t *testing.T) {
	called := false
	repo := &mockVoteLedgerRepository{
		castVoteFn: func(ctx context.Context, userID, storyID string, voteType model.VoteType) (*model.VoteRecord, int, error) {
			called = true
			return nil, 0, nil
		},
	}

	svc := newTestService(repo, nil)

	_, _, err := svc.CastVote(context.Background(), "user-1", "story-1", model.VoteType("sideways"))
	if err == nil {
		t.Fatal("expected error for invalid vote type")
	}
	if called {
		t.Error("repository should not be called for invalid vote type")
	}

	apiErr, ok := err.(*model.APIError)
	if !ok {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.Code != "INVALID_ARGUMENT" {
		t.Errorf("code = %q, want INVALID_ARGUMENT", apiErr.Code)
	}
}

func TestCastVote_InsufficientCredits_RecordsRejection(t *testing.T) {
	repo := &mockVoteLedgerRepository{
		castVoteFn: func(ctx context.Context, userID, storyID string, voteType model.VoteType) (*model.VoteRecord, int, error) {
			return nil, 0, model.NewInsufficientCreditsError()
		},
	}
	metrics := &mockMetrics{}

	svc := newTestService(repo, metrics)

	_, _, err := svc.CastVote(context.Background(), "user-1", "story-1", model.VoteTypeUp)
	if err == nil {
		t.Fatal("expected insufficient credits error")
	}

	apiErr, ok := err.(*model.APIError)
	if !ok {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.Code != "INSUFFICIENT_CREDITS" {
		t.Errorf("code = %q, want INSUFFICIENT_CREDITS", apiErr.Code)
	}

	if len(metrics.rejectedReasons) != 1 || metrics.rejectedReasons[0] != "insufficient_credits" {
		t.Errorf("rejection metrics = %v, want [insufficient_credits]", metrics.rejectedReasons)
	}
}

func TestCastVote_DuplicateVote_RecordsRejection(t *testing.T) {
	repo := &mockVoteLedgerRepository{
		castVoteFn: func(ctx context.Context, userID, storyID string, voteType model.VoteType) (*model.VoteRecord, int, error) {
			return nil, 0, model.NewDuplicateVoteError(storyID)
		},
	}
	metrics := &mockMetrics{}

	svc := newTestService(repo, metrics)

	_, _, err := svc.CastVote(context.Background(), "user-1", "story-1", model.VoteTypeDown)
	if err == nil {
		t.Fatal("expected duplicate vote error")
	}

	if len(metrics.rejectedReasons) != 1 || metrics.rejectedReasons[0] != "duplicate" {
		t.Errorf("rejection metrics = %v, want [duplicate]", metrics.rejectedReasons)
	}
}

func TestBalance_NoCreditRecord_ReturnsZero(t *testing.T) {
	repo := &mockVoteLedgerRepository{
		findCreditFn: func(ctx context.Context, userID string) (*model.VoteCredit, error) {
			return nil, nil
		},
	}

	svc := newTestService(repo, nil)

	balance, err := svc.Balance(context.Background(), "user-new")
	if err != nil {
		t.Fatalf("Balance returned error: %v", err)
	}
	if balance != 0 {
		t.Errorf("balance = %d, want 0", balance)
	}
}

func TestBalance_ReturnsCurrentBalance(t *testing.T) {
	repo := &mockVoteLedgerRepository{
		findCreditFn: func(ctx context.Context, userID string) (*model.VoteCredit, error) {
			return &model.VoteCredit{UserID: userID, Balance: 25}, nil
		},
	}

	svc := newTestService(repo, nil)

	balance, err := svc.Balance(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Balance returned error: %v", err)
	}
	if balance != 25 {
		t.Errorf("balance = %d, want 25", balance)
	}
}

func TestGrantCredits_PositiveAmount_ReturnsNewBalance(t *testing.T) {
	repo := &mockVoteLedgerRepository{
		grantCreditsFn: func(ctx context.Context, userID string, amount int) (int, error) {
			return 10 + amount, nil
		},
	}

	svc := newTestService(repo, nil)

	newBalance, err := svc.GrantCredits(context.Background(), "user-1", 25)
	if err != nil {
		t.Fatalf("GrantCredits returned error: %v", err)
	}
	if newBalance != 35 {
		t.Errorf("newBalance = %d, want 35", newBalance)
	}
}

func TestGrantCredits_NonPositiveAmount_ReturnsValidationError(t *testing.T) {
	svc := newTestService(&mockVoteLedgerRepository{}, nil)

	for _, amount := range []int{0, -5} {
		_, err := svc.GrantCredits(context.Background(), "user-1", amount)
		if err == nil {
			t.Errorf("GrantCredits(%d) should return error", amount)
		}
	}
}

func TestPurchaseVotePack_Success_RecordsPendingPurchase(t *testing.T) {
	var created *model.Purchase
	purchaseRepo := &mockPurchaseRepository{
		createFn: func(ctx context.Context, purchase *model.Purchase) error {
			created = purchase
			return nil
		},
	}
	var checkoutReq payment.CheckoutRequest
	checkout := &mockCheckout{
		createFn: func(ctx context.Context, req payment.CheckoutRequest) (*payment.CheckoutSession, error) {
			checkoutReq = req
			return &payment.CheckoutSession{ID: "cs_vp", URL: "https://pay.example.com/cs_vp"}, nil
		},
	}

	svc := newTestServiceWithPurchases(&mockVoteLedgerRepository{}, purchaseRepo, checkout, nil)

	purchase, url, err := svc.PurchaseVotePack(context.Background(), "user-1", "standard")
	if err != nil {
		t.Fatalf("PurchaseVotePack returned error: %v", err)
	}

	if created == nil {
		t.Fatal("expected purchase to be created")
	}
	if created.Kind != model.PurchaseKindVotePack {
		t.Errorf("kind = %q, want vote_pack", created.Kind)
	}
	if created.Pack != "standard" || created.Credits != 25 || created.Amount != 1000 {
		t.Errorf("purchase = %+v, want standard/25 credits/1000", created)
	}
	if created.Status != model.PurchaseStatusPending {
		t.Errorf("status = %q, want pending", created.Status)
	}
	if created.PaymentRef != "cs_vp" {
		t.Errorf("payment ref = %q, want cs_vp", created.PaymentRef)
	}
	if checkoutReq.Amount != 1000 || checkoutReq.ReferenceID != purchase.ID {
		t.Errorf("checkout request = %+v", checkoutReq)
	}
	if url != "https://pay.example.com/cs_vp" {
		t.Errorf("checkout URL = %q", url)
	}
}

func TestPurchaseVotePack_UnknownPack_ReturnsValidationError(t *testing.T) {
	svc := newTestService(&mockVoteLedgerRepository{}, nil)

	_, _, err := svc.PurchaseVotePack(context.Background(), "user-1", "mega")
	if err == nil {
		t.Fatal("expected error for unknown pack")
	}

	apiErr, ok := err.(*model.APIError)
	if !ok {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.Code != "INVALID_ARGUMENT" {
		t.Errorf("code = %q, want INVALID_ARGUMENT", apiErr.Code)
	}
}

func TestPurchaseVotePack_CheckoutFailure_DoesNotCreatePurchase(t *testing.T) {
	createCalled := false
	purchaseRepo := &mockPurchaseRepository{
		createFn: func(ctx context.Context, purchase *model.Purchase) error {
			createCalled = true
			return nil
		},
	}
	checkout := &mockCheckout{
		createFn: func(ctx context.Context, req payment.CheckoutRequest) (*payment.CheckoutSession, error) {
			return nil, errors.New("provider unavailable")
		},
	}

	svc := newTestServiceWithPurchases(&mockVoteLedgerRepository{}, purchaseRepo, checkout, nil)

	_, _, err := svc.PurchaseVotePack(context.Background(), "user-1", "basic")
	if err == nil {
		t.Fatal("expected error when checkout creation fails")
	}
	if createCalled {
		t.Error("purchase should not be created when checkout fails")
	}
}

func TestReportVotePackOutcome_Completed_GrantsCredits(t *testing.T) {
	var grantedUser string
	var grantedAmount int
	ledgerRepo := &mockVoteLedgerRepository{
		grantCreditsFn: func(ctx context.Context, userID string, amount int) (int, error) {
			grantedUser = userID
			grantedAmount = amount
			return amount, nil
		},
	}
	purchaseRepo := &mockPurchaseRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.Purchase, error) {
			return &model.Purchase{
				ID:      id,
				Kind:    model.PurchaseKindVotePack,
				UserID:  "user-1",
				Pack:    "premium",
				Credits: 50,
				Status:  model.PurchaseStatusPending,
			}, nil
		},
	}
	metrics := &mockMetrics{}

	svc := newTestServiceWithPurchases(ledgerRepo, purchaseRepo, &mockCheckout{}, metrics)

	purchase, err := svc.ReportVotePackOutcome(context.Background(), "purchase-1", model.PaymentStatusCompleted)
	if err != nil {
		t.Fatalf("ReportVotePackOutcome returned error: %v", err)
	}

	if purchase.Status != model.PurchaseStatusCompleted {
		t.Errorf("status = %q, want completed", purchase.Status)
	}
	if grantedUser != "user-1" || grantedAmount != 50 {
		t.Errorf("granted %d credits to %q, want 50 to user-1", grantedAmount, grantedUser)
	}
	if len(metrics.purchaseKinds) != 1 || metrics.purchaseKinds[0] != "vote_pack" {
		t.Errorf("purchase metrics = %v, want [vote_pack]", metrics.purchaseKinds)
	}
}

func TestReportVotePackOutcome_Redelivery_DoesNotGrantTwice(t *testing.T) {
	grantCalls := 0
	ledgerRepo := &mockVoteLedgerRepository{
		grantCreditsFn: func(ctx context.Context, userID string, amount int) (int, error) {
			grantCalls++
			return amount, nil
		},
	}
	purchaseRepo := &mockPurchaseRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.Purchase, error) {
			return &model.Purchase{
				ID:      id,
				Kind:    model.PurchaseKindVotePack,
				UserID:  "user-1",
				Credits: 10,
				Status:  model.PurchaseStatusCompleted,
			}, nil
		},
		completeFn: func(ctx context.Context, id string, now time.Time) (bool, error) {
			return false, nil
		},
	}

	svc := newTestServiceWithPurchases(ledgerRepo, purchaseRepo, &mockCheckout{}, nil)

	purchase, err := svc.ReportVotePackOutcome(context.Background(), "purchase-1", model.PaymentStatusCompleted)
	if err != nil {
		t.Fatalf("redelivered outcome should be accepted as no-op, got: %v", err)
	}
	if purchase.Status != model.PurchaseStatusCompleted {
		t.Errorf("status = %q, want completed", purchase.Status)
	}
	if grantCalls != 0 {
		t.Errorf("GrantCredits calls = %d, want 0 on redelivery", grantCalls)
	}
}

func TestReportVotePackOutcome_Failed_MarksPurchaseFailed(t *testing.T) {
	purchaseRepo := &mockPurchaseRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.Purchase, error) {
			return &model.Purchase{
				ID:     id,
				Kind:   model.PurchaseKindVotePack,
				Status: model.PurchaseStatusPending,
			}, nil
		},
	}

	svc := newTestServiceWithPurchases(&mockVoteLedgerRepository{}, purchaseRepo, &mockCheckout{}, nil)

	purchase, err := svc.ReportVotePackOutcome(context.Background(), "purchase-1", model.PaymentStatusFailed)
	if err != nil {
		t.Fatalf("ReportVotePackOutcome returned error: %v", err)
	}
	if purchase.Status != model.PurchaseStatusFailed {
		t.Errorf("status = %q, want failed", purchase.Status)
	}
}

func TestReportVotePackOutcome_NotFound_ReturnsError(t *testing.T) {
	svc := newTestService(&mockVoteLedgerRepository{}, nil)

	_, err := svc.ReportVotePackOutcome(context.Background(), "missing", model.PaymentStatusCompleted)
	if err == nil {
		t.Fatal("expected error for missing purchase")
	}

	apiErr, ok := err.(*model.APIError)
	if !ok {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.Code != "PURCHASE_NOT_FOUND" {
		t.Errorf("code = %q, want PURCHASE_NOT_FOUND", apiErr.Code)
	}
}

func TestReportVotePackOutcome_WrongKind_ReturnsValidationError(t *testing.T) {
	purchaseRepo := &mockPurchaseRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.Purchase, error) {
			return &model.Purchase{ID: id, Kind: model.PurchaseKindPriority, Status: model.PurchaseStatusPending}, nil
		},
	}

	svc := newTestServiceWithPurchases(&mockVoteLedgerRepository{}, purchaseRepo, &mockCheckout{}, nil)

	_, err := svc.ReportVotePackOutcome(context.Background(), "purchase-1", model.PaymentStatusCompleted)
	if err == nil {
		t.Fatal("expected error for non-vote-pack purchase")
	}
}

func TestHasVoted_ReturnsTrueForExistingRecord(t *testing.T) {
	repo := &mockVoteLedgerRepository{
		findRecordFn: func(ctx context.Context, storyID, userID string) (*model.VoteRecord, error) {
			if storyID == "story-1" && userID == "user-1" {
				return &model.VoteRecord{ID: "vote-1"}, nil
			}
			return nil, nil
		},
	}

	svc := newTestService(repo, nil)

	voted, err := svc.HasVoted(context.Background(), "story-1", "user-1")
	if err != nil {
		t.Fatalf("HasVoted returned error: %v", err)
	}
	if !voted {
		t.Error("expected voted = true")
	}

	voted, err = svc.HasVoted(context.Background(), "story-1", "user-2")
	if err != nil {
		t.Fatalf("HasVoted returned error: %v", err)
	}
	if voted {
		t.Error("expected voted = false for user without record")
	}
}
