// Package vote は投票クレジットと投票確定のビジネスロジックを提供する。
// 投票パック購入によるクレジット付与もここで扱う。
package vote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/storyrank/internal/model"
	"github.com/hitoshi/storyrank/internal/payment"
	"github.com/hitoshi/storyrank/internal/repository"
)

// Metrics は投票サービスが依存するメトリクス収集の部分インターフェース。
type Metrics interface {
	RecordVoteCast(voteType string)
	RecordVoteRejected(reason string)
	RecordPurchaseCompleted(kind string)
}

// Service は投票の確定とクレジット残高の管理を提供する。
// 投票確定の原子性（残高減算・投票記録・投票数更新）はRepository層の
// トランザクションで担保され、本サービスは検証とメトリクスを担う。
type Service struct {
	ledgerRepo   repository.VoteLedgerRepository
	purchaseRepo repository.PurchaseRepository
	checkout     payment.CheckoutClient
	metrics      Metrics
	logger       *slog.Logger
	baseURL      string
}

// NewService はServiceの新しいインスタンスを生成する。
// metricsはnilを許容する。
func NewService(
	ledgerRepo repository.VoteLedgerRepository,
	purchaseRepo repository.PurchaseRepository,
	checkout payment.CheckoutClient,
	metrics Metrics,
	logger *slog.Logger,
	baseURL string,
) *Service {
	return &Service{
		ledgerRepo:   ledgerRepo,
		purchaseRepo: purchaseRepo,
		checkout:     checkout,
		metrics:      metrics,
		logger:       logger,
		baseURL:      baseURL,
	}
}

// CastVote は指定ストーリーへの投票を確定する。
// 投票1回につきクレジットを1消費する。アップ投票は+1、ダウン投票は-1が
// ストーリーの投票数に適用される（下限0）。
// 同一ユーザーは同一ストーリーに1回しか投票できない。
// 返り値は作成された投票記録と適用後のストーリー投票数。
func (s *Service) CastVote(ctx context.Context, userID, storyID string, voteType model.VoteType) (*model.VoteRecord, int, error) {
	if !model.ValidVoteType(voteType) {
		return nil, 0, model.NewInvalidArgumentError("投票種別はupまたはdownを指定してください")
	}

	record, newCount, err := s.ledgerRepo.CastVote(ctx, userID, storyID, voteType)
	if err != nil {
		s.recordRejection(err)
		return nil, 0, err
	}

	if s.metrics != nil {
		s.metrics.RecordVoteCast(string(voteType))
	}

	return record, newCount, nil
}

// Balance は指定ユーザーのクレジット残高を返す。
// クレジットレコード未作成のユーザーは残高0として扱う。
func (s *Service) Balance(ctx context.Context, userID string) (int, error) {
	credit, err := s.ledgerRepo.FindCredit(ctx, userID)
	if err != nil {
		return 0, err
	}
	if credit == nil {
		return 0, nil
	}
	return credit.Balance, nil
}

// GrantCredits はユーザーにクレジットを付与し、付与後の残高を返す。
// 投票パック購入の決済完了時に呼ばれる。
func (s *Service) GrantCredits(ctx context.Context, userID string, amount int) (int, error) {
	if amount <= 0 {
		return 0, model.NewInvalidArgumentError("付与するクレジット数は正の値を指定してください")
	}
	return s.ledgerRepo.GrantCredits(ctx, userID, amount)
}

// HasVoted はユーザーが指定ストーリーに投票済みかを返す。
func (s *Service) HasVoted(ctx context.Context, storyID, userID string) (bool, error) {
	record, err := s.ledgerRepo.FindRecord(ctx, storyID, userID)
	if err != nil {
		return false, err
	}
	return record != nil, nil
}

// PurchaseVotePack は投票クレジットパックの購入を開始する。
// チェックアウトセッションの作成に成功した場合のみ購入をpendingで記録し、
// ユーザーをリダイレクトさせる決済URLを返す。
func (s *Service) PurchaseVotePack(ctx context.Context, userID, packID string) (*model.Purchase, string, error) {
	pack, ok := model.VotePacks[packID]
	if !ok {
		return nil, "", model.NewInvalidArgumentError("投票パックはbasic・standard・premiumのいずれかを指定してください")
	}

	purchaseID := uuid.New().String()
	checkout, err := s.checkout.CreateCheckoutSession(ctx, payment.CheckoutRequest{
		Amount:      pack.Amount,
		Description: fmt.Sprintf("投票パック（%dクレジット）の購入", pack.Credits),
		ReferenceID: purchaseID,
		ReturnURL:   fmt.Sprintf("%s/purchases/%s", s.baseURL, purchaseID),
	})
	if err != nil {
		return nil, "", fmt.Errorf("チェックアウトセッションの作成に失敗しました: %w", err)
	}

	now := time.Now().UTC()
	purchase := &model.Purchase{
		ID:         purchaseID,
		Kind:       model.PurchaseKindVotePack,
		UserID:     userID,
		Pack:       pack.ID,
		Credits:    pack.Credits,
		Amount:     pack.Amount,
		Status:     model.PurchaseStatusPending,
		PaymentRef: checkout.ID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.purchaseRepo.Create(ctx, purchase); err != nil {
		return nil, "", fmt.Errorf("購入の記録に失敗しました: %w", err)
	}

	s.logger.Info("投票パックの購入を開始しました",
		slog.String("purchase_id", purchaseID),
		slog.String("user_id", userID),
		slog.String("pack", pack.ID),
		slog.Int("credits", pack.Credits),
	)

	return purchase, checkout.URL, nil
}

// ReportVotePackOutcome は投票パック購入の決済結果を反映する。
// 完了時はクレジットを付与する。pending→終端の遷移は1回しか成立しないため、
// Webhookの再送があってもクレジット付与は1回に限られる。
func (s *Service) ReportVotePackOutcome(ctx context.Context, purchaseID string, outcome model.PaymentStatus) (*model.Purchase, error) {
	purchase, err := s.purchaseRepo.FindByID(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	if purchase == nil {
		return nil, model.NewPurchaseNotFoundError(purchaseID)
	}
	if purchase.Kind != model.PurchaseKindVotePack {
		return nil, model.NewInvalidArgumentError("投票パックの購入ではありません")
	}

	now := time.Now().UTC()

	switch outcome {
	case model.PaymentStatusCompleted:
		transitioned, err := s.purchaseRepo.Complete(ctx, purchaseID, now)
		if err != nil {
			return nil, err
		}
		if !transitioned {
			if purchase.Status == model.PurchaseStatusCompleted {
				return purchase, nil
			}
			return nil, model.NewInvalidStateTransitionError(string(purchase.Status), string(model.PurchaseStatusCompleted))
		}
		if _, err := s.GrantCredits(ctx, purchase.UserID, purchase.Credits); err != nil {
			return nil, fmt.Errorf("クレジットの付与に失敗しました: %w", err)
		}
		if s.metrics != nil {
			s.metrics.RecordPurchaseCompleted(string(model.PurchaseKindVotePack))
		}
		purchase.Status = model.PurchaseStatusCompleted
		return purchase, nil

	case model.PaymentStatusFailed:
		transitioned, err := s.purchaseRepo.Fail(ctx, purchaseID, now)
		if err != nil {
			return nil, err
		}
		if !transitioned {
			if purchase.Status == model.PurchaseStatusFailed {
				return purchase, nil
			}
			return nil, model.NewInvalidStateTransitionError(string(purchase.Status), string(model.PurchaseStatusFailed))
		}
		purchase.Status = model.PurchaseStatusFailed
		return purchase, nil

	default:
		return nil, model.NewInvalidArgumentError("決済結果はcompletedまたはfailedを指定してください")
	}
}

// recordRejection は拒否理由をメトリクスに記録する。
func (s *Service) recordRejection(err error) {
	if s.metrics == nil {
		return
	}

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		return
	}

	switch apiErr.Code {
	case "INSUFFICIENT_CREDITS":
		s.metrics.RecordVoteRejected("insufficient_credits")
	case "DUPLICATE_VOTE":
		s.metrics.RecordVoteRejected("duplicate")
	case "STORY_NOT_FOUND":
		s.metrics.RecordVoteRejected("story_not_found")
	}
}
