package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, vote, boost, payment, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidArgument        = "INVALID_ARGUMENT"
	ErrCodeStoryNotFound          = "STORY_NOT_FOUND"
	ErrCodeBoostNotFound          = "BOOST_NOT_FOUND"
	ErrCodePurchaseNotFound       = "PURCHASE_NOT_FOUND"
	ErrCodeInsufficientCredits    = "INSUFFICIENT_CREDITS"
	ErrCodeDuplicateVote          = "DUPLICATE_VOTE"
	ErrCodeInvalidStateTransition = "INVALID_STATE_TRANSITION"
	ErrCodeConflict               = "CONFLICT"
)

// NewInvalidArgumentError は入力不正エラーを生成する。
// 呼び出し側で修正可能な不正入力に対して即座に返す。内部リトライはしない。
func NewInvalidArgumentError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidArgument,
		Message:  fmt.Sprintf("入力が不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewStoryNotFoundError はストーリー未検出エラーを生成する。
func NewStoryNotFoundError(storyID string) *APIError {
	return &APIError{
		Code:     ErrCodeStoryNotFound,
		Message:  fmt.Sprintf("指定されたストーリーが見つかりません: %s", storyID),
		Category: "validation",
		Action:   "ストーリーIDを確認してください。",
	}
}

// NewBoostNotFoundError はブーストセッション未検出エラーを生成する。
func NewBoostNotFoundError(boostID string) *APIError {
	return &APIError{
		Code:     ErrCodeBoostNotFound,
		Message:  fmt.Sprintf("指定されたブーストセッションが見つかりません: %s", boostID),
		Category: "boost",
		Action:   "ブーストセッションIDを確認してください。",
	}
}

// NewPurchaseNotFoundError は購入未検出エラーを生成する。
func NewPurchaseNotFoundError(purchaseID string) *APIError {
	return &APIError{
		Code:     ErrCodePurchaseNotFound,
		Message:  fmt.Sprintf("指定された購入が見つかりません: %s", purchaseID),
		Category: "payment",
		Action:   "購入IDを確認してください。",
	}
}

// NewInsufficientCreditsError は投票クレジット不足エラーを生成する。
// ビジネスルールによる拒否であり障害ではない。リトライせずそのまま返す。
func NewInsufficientCreditsError() *APIError {
	return &APIError{
		Code:     ErrCodeInsufficientCredits,
		Message:  "投票クレジットが不足しています。",
		Category: "vote",
		Action:   "投票パックを購入してから再度お試しください。",
	}
}

// NewDuplicateVoteError は同一ストーリーへの二重投票エラーを生成する。
func NewDuplicateVoteError(storyID string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateVote,
		Message:  fmt.Sprintf("このストーリーには既に投票済みです: %s", storyID),
		Category: "vote",
		Action:   "1つのストーリーに投票できるのは1回までです。",
	}
}

// NewInvalidStateTransitionError はブースト状態機械に違反する遷移のエラーを生成する。
// 呼び出し側または決済プロバイダ側の不具合を示すため、異常としてログに記録される。
func NewInvalidStateTransitionError(from, to string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidStateTransition,
		Message:  fmt.Sprintf("許可されない状態遷移です: %s -> %s", from, to),
		Category: "boost",
		Action:   "現在の状態を確認してください。",
	}
}

// NewSupersededError は同一ストーリーの新しいブーストに上書きされた場合のエラーを生成する。
// 入力の誤りではなく並行処理の競合に敗れたことを呼び出し側に伝える。
func NewSupersededError(boostID string) *APIError {
	return &APIError{
		Code:     ErrCodeConflict,
		Message:  fmt.Sprintf("このブーストは同一ストーリーの新しいブーストに上書きされました: %s", boostID),
		Category: "boost",
		Action:   "最新のブースト状態を確認してください。",
	}
}
