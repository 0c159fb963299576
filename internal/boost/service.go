// Package boost はブーストセッションのライフサイクル管理を提供する。
// 状態機械 requested -> pending_payment -> active -> expired と、
// 各状態からのキャンセル遷移を本パッケージが専有的に適用する。
package boost

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/storyrank/internal/model"
	"github.com/hitoshi/storyrank/internal/payment"
	"github.com/hitoshi/storyrank/internal/repository"
)

// Metrics はブーストサービスが依存するメトリクス収集の部分インターフェース。
type Metrics interface {
	RecordBoostActivated(durationHours int)
	RecordBoostExpired(count int)
	RecordPurchaseCompleted(kind string)
}

// Service はブーストの申込・決済結果反映・状態照会を提供する。
// 期限切れはバックグラウンドのスイープに依存せず、読み取り時に遅延判定する。
// スイープは行の状態を事実に追いつかせるための最適化にすぎない。
type Service struct {
	boostRepo      repository.BoostRepository
	storyRepo      repository.StoryRepository
	purchaseRepo   repository.PurchaseRepository
	checkout       payment.CheckoutClient
	metrics        Metrics
	logger         *slog.Logger
	pendingTimeout time.Duration
	baseURL        string
}

// NewService はServiceの新しいインスタンスを生成する。
// pendingTimeoutは決済結果を待つ上限で、超過したpending_paymentは
// 照会時に自動キャンセルされる。metricsはnilを許容する。
func NewService(
	boostRepo repository.BoostRepository,
	storyRepo repository.StoryRepository,
	purchaseRepo repository.PurchaseRepository,
	checkout payment.CheckoutClient,
	metrics Metrics,
	logger *slog.Logger,
	pendingTimeout time.Duration,
	baseURL string,
) *Service {
	return &Service{
		boostRepo:      boostRepo,
		storyRepo:      storyRepo,
		purchaseRepo:   purchaseRepo,
		checkout:       checkout,
		metrics:        metrics,
		logger:         logger,
		pendingTimeout: pendingTimeout,
		baseURL:        baseURL,
	}
}

// Request はストーリーへのブーストを申し込む。
// クライアントが申告した金額は時間数に対応する価格と一致しなければならない。
// 決済プロバイダにチェックアウトセッションを作成してpending_paymentへ遷移させ、
// ユーザーをリダイレクトさせる決済URLを返す。
func (s *Service) Request(ctx context.Context, userID, storyID string, durationHours, amount int) (*model.BoostSession, string, error) {
	if !model.ValidBoostDuration(durationHours) {
		return nil, "", model.NewInvalidArgumentError("ブースト時間は24・72・168時間のいずれかを指定してください")
	}
	if amount != model.SupportedBoostDurations[durationHours] {
		return nil, "", model.NewInvalidArgumentError("金額がブースト時間の価格と一致しません")
	}

	story, err := s.storyRepo.FindByID(ctx, storyID)
	if err != nil {
		return nil, "", err
	}
	if story == nil {
		return nil, "", model.NewStoryNotFoundError(storyID)
	}

	now := time.Now().UTC()
	session := &model.BoostSession{
		ID:            uuid.New().String(),
		StoryID:       storyID,
		DurationHours: durationHours,
		Amount:        model.SupportedBoostDurations[durationHours],
		Status:        model.BoostStatusRequested,
		PaymentStatus: model.PaymentStatusUnpaid,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.boostRepo.Create(ctx, session); err != nil {
		return nil, "", fmt.Errorf("ブーストセッションの作成に失敗しました: %w", err)
	}

	checkout, err := s.checkout.CreateCheckoutSession(ctx, payment.CheckoutRequest{
		Amount:      session.Amount,
		Description: fmt.Sprintf("%d時間ブースト", durationHours),
		ReferenceID: session.ID,
		ReturnURL:   fmt.Sprintf("%s/boosts/%s", s.baseURL, session.ID),
	})
	if err != nil {
		// チェックアウト作成に失敗したブーストは回復しないため即キャンセルする
		if cancelErr := s.boostRepo.Cancel(ctx, session.ID, model.PaymentStatusFailed, "チェックアウトセッションの作成に失敗", time.Now().UTC()); cancelErr != nil {
			s.logger.Error("決済失敗後のブーストキャンセルに失敗しました",
				slog.String("boost_id", session.ID),
				slog.String("error", cancelErr.Error()),
			)
		}
		return nil, "", fmt.Errorf("チェックアウトセッションの作成に失敗しました: %w", err)
	}

	if err := s.boostRepo.MarkPendingPayment(ctx, session.ID, checkout.ID, time.Now().UTC()); err != nil {
		return nil, "", err
	}

	session.Status = model.BoostStatusPendingPayment
	session.PaymentRef = checkout.ID

	s.logger.Info("ブーストを申し込みました",
		slog.String("boost_id", session.ID),
		slog.String("story_id", storyID),
		slog.String("user_id", userID),
		slog.Int("duration_hours", durationHours),
		slog.Int("amount", session.Amount),
	)

	return session, checkout.URL, nil
}

// ReportPaymentOutcome は決済プロバイダから通知された決済結果を反映する。
// completedならactiveへ遷移させ、同一ストーリーの既存activeブーストは
// 同一トランザクション内で上書きキャンセルされる。failedならcancelledへ遷移させる。
// 同一結果の再通知は冪等な無操作として成功を返す。処理済みのブーストに
// 異なる結果が届いた場合は状態遷移違反として拒否する。
// 結果の適用前に遅延判定を通すため、待機上限を超えたpending_paymentは
// まずキャンセルされ、遅れて届いたcompleted通知で有効化されることはない。
func (s *Service) ReportPaymentOutcome(ctx context.Context, boostID string, outcome model.PaymentStatus) (*model.BoostSession, error) {
	if outcome != model.PaymentStatusCompleted && outcome != model.PaymentStatusFailed {
		return nil, model.NewInvalidArgumentError("決済結果はcompletedまたはfailedを指定してください")
	}

	session, err := s.boostRepo.FindByID(ctx, boostID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, model.NewBoostNotFoundError(boostID)
	}

	session, err = s.reconcile(ctx, session)
	if err != nil {
		return nil, err
	}

	if session.Status != model.BoostStatusPendingPayment {
		// Webhookの再送は同一結果なら無操作で受理する
		if session.PaymentStatus == outcome {
			return session, nil
		}
		return nil, model.NewInvalidStateTransitionError(string(session.Status), outcomeTarget(outcome))
	}

	now := time.Now().UTC()

	switch outcome {
	case model.PaymentStatusCompleted:
		end := now.Add(time.Duration(session.DurationHours) * time.Hour)
		superseded, err := s.boostRepo.Activate(ctx, boostID, now, end)
		if err != nil {
			return nil, err
		}
		if superseded != nil {
			s.logger.Info("既存のアクティブブーストを上書きキャンセルしました",
				slog.String("story_id", session.StoryID),
				slog.String("superseded_boost_id", superseded.ID),
				slog.String("new_boost_id", boostID),
			)
		}
		if s.metrics != nil {
			s.metrics.RecordBoostActivated(session.DurationHours)
		}
		session.Status = model.BoostStatusActive
		session.PaymentStatus = model.PaymentStatusCompleted
		session.StartTime = &now
		session.EndTime = &end
		return session, nil

	case model.PaymentStatusFailed:
		if err := s.boostRepo.Cancel(ctx, boostID, model.PaymentStatusFailed, "決済失敗", now); err != nil {
			return nil, err
		}
		session.Status = model.BoostStatusCancelled
		session.PaymentStatus = model.PaymentStatusFailed
		return session, nil

	default:
		// 冒頭で検証済みのため到達しない
		return nil, model.NewInvalidArgumentError("決済結果はcompletedまたはfailedを指定してください")
	}
}

// Status は指定ブーストの現在の状態を返す。
// 期限超過のactiveはここで遅延的にexpiredへ遷移させてから返す。
// 決済結果待ちの上限を超えたpending_paymentも同様にキャンセルする。
func (s *Service) Status(ctx context.Context, boostID string) (*model.BoostSession, error) {
	session, err := s.boostRepo.FindByID(ctx, boostID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, model.NewBoostNotFoundError(boostID)
	}
	return s.reconcile(ctx, session)
}

// CurrentForStory はストーリーの現在有効なブーストを返す。ない場合はnil。
// 期限超過のブーストは遅延的にexpiredへ遷移させ、有効なものとしては返さない。
func (s *Service) CurrentForStory(ctx context.Context, storyID string) (*model.BoostSession, error) {
	session, err := s.boostRepo.FindActiveByStory(ctx, storyID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, nil
	}

	session, err = s.reconcile(ctx, session)
	if err != nil {
		return nil, err
	}
	if session.Status != model.BoostStatusActive {
		return nil, nil
	}
	return session, nil
}

// ListForStory はストーリーの全ブースト履歴を返す。
// 履歴にも遅延期限切れ判定を適用し、観測される状態を常に事実と一致させる。
func (s *Service) ListForStory(ctx context.Context, storyID string) ([]*model.BoostSession, error) {
	sessions, err := s.boostRepo.ListByStory(ctx, storyID)
	if err != nil {
		return nil, err
	}

	for i, session := range sessions {
		reconciled, err := s.reconcile(ctx, session)
		if err != nil {
			return nil, err
		}
		sessions[i] = reconciled
	}
	return sessions, nil
}

// Cancel はユーザー操作によるブーストのキャンセルを行う。
// requestedとpending_paymentからのみ許可する。activeの途中解約は返金を
// 伴うため対応せず、終端状態への再キャンセルも拒否する。
func (s *Service) Cancel(ctx context.Context, boostID string) (*model.BoostSession, error) {
	session, err := s.boostRepo.FindByID(ctx, boostID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, model.NewBoostNotFoundError(boostID)
	}

	if session.Status != model.BoostStatusRequested && session.Status != model.BoostStatusPendingPayment {
		// 上書きキャンセル済みは入力の誤りではなく競合の結果のため区別して返す
		if session.Superseded() {
			return nil, model.NewSupersededError(session.ID)
		}
		return nil, model.NewInvalidStateTransitionError(string(session.Status), string(model.BoostStatusCancelled))
	}

	if err := s.boostRepo.Cancel(ctx, boostID, session.PaymentStatus, "ユーザーによるキャンセル", time.Now().UTC()); err != nil {
		return nil, err
	}

	session.Status = model.BoostStatusCancelled
	return session, nil
}

// PurchasePriority はストーリーの恒久的な優先フラグの購入を開始する。
// チェックアウトセッションの作成に成功した場合のみ購入をpendingで記録し、
// ユーザーをリダイレクトさせる決済URLを返す。
func (s *Service) PurchasePriority(ctx context.Context, userID, storyID string) (*model.Purchase, string, error) {
	story, err := s.storyRepo.FindByID(ctx, storyID)
	if err != nil {
		return nil, "", err
	}
	if story == nil {
		return nil, "", model.NewStoryNotFoundError(storyID)
	}
	if story.IsPriority {
		return nil, "", model.NewInvalidArgumentError("このストーリーは既に優先表示されています")
	}

	purchaseID := uuid.New().String()
	checkout, err := s.checkout.CreateCheckoutSession(ctx, payment.CheckoutRequest{
		Amount:      model.PriorityAmount,
		Description: "ストーリー優先表示の購入",
		ReferenceID: purchaseID,
		ReturnURL:   fmt.Sprintf("%s/purchases/%s", s.baseURL, purchaseID),
	})
	if err != nil {
		return nil, "", fmt.Errorf("チェックアウトセッションの作成に失敗しました: %w", err)
	}

	now := time.Now().UTC()
	purchase := &model.Purchase{
		ID:         purchaseID,
		Kind:       model.PurchaseKindPriority,
		UserID:     userID,
		StoryID:    storyID,
		Amount:     model.PriorityAmount,
		Status:     model.PurchaseStatusPending,
		PaymentRef: checkout.ID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.purchaseRepo.Create(ctx, purchase); err != nil {
		return nil, "", fmt.Errorf("購入の記録に失敗しました: %w", err)
	}

	s.logger.Info("優先表示の購入を開始しました",
		slog.String("purchase_id", purchaseID),
		slog.String("story_id", storyID),
		slog.String("user_id", userID),
	)

	return purchase, checkout.URL, nil
}

// ReportPriorityOutcome は優先表示購入の決済結果を反映する。
// 完了時は優先フラグを立てる。pending→終端の遷移は1回しか成立しないため、
// Webhookの再送があっても特典付与は1回に限られる。
func (s *Service) ReportPriorityOutcome(ctx context.Context, purchaseID string, outcome model.PaymentStatus) (*model.Purchase, error) {
	purchase, err := s.purchaseRepo.FindByID(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	if purchase == nil {
		return nil, model.NewPurchaseNotFoundError(purchaseID)
	}
	if purchase.Kind != model.PurchaseKindPriority {
		return nil, model.NewInvalidArgumentError("優先表示の購入ではありません")
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
		if err := s.storyRepo.MarkPriority(ctx, purchase.StoryID); err != nil {
			return nil, fmt.Errorf("優先フラグの付与に失敗しました: %w", err)
		}
		if s.metrics != nil {
			s.metrics.RecordPurchaseCompleted(string(model.PurchaseKindPriority))
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

// ExpireOverdue は期限を過ぎた全activeブーストをまとめてexpiredへ遷移させる。
// バックグラウンドワーカーから定期的に呼ばれる。
func (s *Service) ExpireOverdue(ctx context.Context) (int64, error) {
	count, err := s.boostRepo.ExpireAllOverdue(ctx, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("期限切れブーストの一括遷移に失敗しました: %w", err)
	}
	if count > 0 {
		if s.metrics != nil {
			s.metrics.RecordBoostExpired(int(count))
		}
		s.logger.Info("期限切れブーストを遷移させました", slog.Int64("count", count))
	}
	return count, nil
}

// reconcile は読み取ったブーストの状態を現在時刻の事実に追いつかせる。
// 期限超過のactiveはexpiredへ、待機上限超過のpending_paymentはcancelledへ。
func (s *Service) reconcile(ctx context.Context, session *model.BoostSession) (*model.BoostSession, error) {
	now := time.Now().UTC()

	if session.ExpiredAt(now) {
		transitioned, err := s.boostRepo.ExpireIfOverdue(ctx, session.ID, now)
		if err != nil {
			return nil, err
		}
		if transitioned && s.metrics != nil {
			s.metrics.RecordBoostExpired(1)
		}
		session.Status = model.BoostStatusExpired
		return session, nil
	}

	if session.Status == model.BoostStatusPendingPayment && !session.CreatedAt.After(now.Add(-s.pendingTimeout)) {
		transitioned, err := s.boostRepo.CancelStalePending(ctx, session.ID, now.Add(-s.pendingTimeout))
		if err != nil {
			return nil, err
		}
		if transitioned {
			s.logger.Warn("決済結果待ちの上限を超えたブーストをキャンセルしました",
				slog.String("boost_id", session.ID),
			)
		}
		session.Status = model.BoostStatusCancelled
		return session, nil
	}

	return session, nil
}

// outcomeTarget は決済結果に対応する遷移先の状態名を返す。エラーメッセージ用。
func outcomeTarget(outcome model.PaymentStatus) string {
	if outcome == model.PaymentStatusCompleted {
		return string(model.BoostStatusActive)
	}
	return string(model.BoostStatusCancelled)
}
