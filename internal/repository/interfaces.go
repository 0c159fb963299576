// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/storyrank/internal/model"
)

// StoryRepository はストーリーデータの永続化インターフェース。
type StoryRepository interface {
	// FindByID は指定IDのストーリーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Story, error)

	// Create はストーリーを作成する。
	Create(ctx context.Context, story *model.Story) error

	// ListAll は全ストーリーを作成日時の降順で返す。
	// ストーリーは物理削除されないため、全件がランキングの候補集合になる。
	ListAll(ctx context.Context) ([]*model.Story, error)

	// ApplyVoteDelta はストーリーの投票数に符号付き増分を適用し、適用後の値を返す。
	// 投票数は0未満には下がらない（下限0でクランプ）。
	// ストーリーが存在しない場合はSTORY_NOT_FOUNDエラーを返す。
	ApplyVoteDelta(ctx context.Context, storyID string, delta int) (int, error)

	// MarkPriority はストーリーの優先フラグを恒久的に立てる。冪等。
	MarkPriority(ctx context.Context, storyID string) error
}

// VoteLedgerRepository は投票クレジット残高と投票記録の永続化インターフェース。
// クレジット消費と二重投票防止を単一の原子的単位として適用する責務を持つ。
type VoteLedgerRepository interface {
	// FindCredit は指定ユーザーのクレジットを取得する。未作成の場合はnilを返す。
	FindCredit(ctx context.Context, userID string) (*model.VoteCredit, error)

	// GrantCredits はユーザーの残高を加算し、加算後の残高を返す。
	// クレジットレコードは初回付与時に遅延作成される。
	GrantCredits(ctx context.Context, userID string, amount int) (int, error)

	// CastVote は投票を1トランザクションで確定する。
	// 同一トランザクション内で、二重投票チェック、投票記録の作成、
	// 残高の減算、ストーリー投票数への増分適用を行う。
	// 返り値は作成された投票記録と適用後のストーリー投票数。
	// 残高0の場合はINSUFFICIENT_CREDITS、(story,user)の組が既存の場合は
	// DUPLICATE_VOTE、ストーリー不在の場合はSTORY_NOT_FOUNDを返す。
	CastVote(ctx context.Context, userID, storyID string, voteType model.VoteType) (*model.VoteRecord, int, error)

	// FindRecord は(storyID, userID)の投票記録を取得する。見つからない場合はnilを返す。
	FindRecord(ctx context.Context, storyID, userID string) (*model.VoteRecord, error)

	// ListRecordsByStory はストーリーの全投票記録を返す。投票数の照合に使用する。
	ListRecordsByStory(ctx context.Context, storyID string) ([]*model.VoteRecord, error)
}

// BoostRepository はブーストセッションの永続化インターフェース。
// 状態遷移は条件付きUPDATEで適用し、競合する遷移が二重に成立しないことを保証する。
type BoostRepository interface {
	// Create はブーストセッションをrequested状態で作成する。
	Create(ctx context.Context, boost *model.BoostSession) error

	// FindByID は指定IDのブーストセッションを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.BoostSession, error)

	// FindActiveByStory はストーリーのactiveなブーストを取得する。
	// 期限切れ判定は行わない（サービス層が遅延判定する）。見つからない場合はnilを返す。
	FindActiveByStory(ctx context.Context, storyID string) (*model.BoostSession, error)

	// ListByStory はストーリーの全ブースト履歴を作成日時の降順で返す。
	ListByStory(ctx context.Context, storyID string) ([]*model.BoostSession, error)

	// ListActive は全ストーリーのactiveなブーストを返す。
	// ランキングのクエリ時評価と期限切れスイープに使用する。
	ListActive(ctx context.Context) ([]*model.BoostSession, error)

	// MarkPendingPayment はrequested状態のブーストをpending_paymentに遷移させ、
	// 決済プロバイダの参照を保存する。requested以外からの遷移は失敗する。
	MarkPendingPayment(ctx context.Context, id, paymentRef string, now time.Time) error

	// Activate はpending_paymentのブーストをactiveに遷移させる。
	// 同一ストーリーに既存のactiveブーストがあれば同一トランザクション内で
	// 上書きキャンセルし、キャンセルされたブーストを返す（なければnil）。
	// 同一ストーリーに対する有効化は直列化され、競合しても二重にactiveにならない。
	Activate(ctx context.Context, id string, start, end time.Time) (*model.BoostSession, error)

	// Cancel はrequestedまたはpending_paymentのブーストをcancelledに遷移させる。
	Cancel(ctx context.Context, id string, paymentStatus model.PaymentStatus, note string, now time.Time) error

	// ExpireIfOverdue は期限を過ぎたactiveブーストをexpiredに遷移させる。
	// 遷移した場合はtrueを返す。既に他の観測者が遷移済みの場合はfalseを返す。
	ExpireIfOverdue(ctx context.Context, id string, now time.Time) (bool, error)

	// ExpireAllOverdue は期限を過ぎた全activeブーストをexpiredに遷移させ、
	// 遷移した件数を返す。バックグラウンドスイープ用の最適化であり、
	// 正しさは読み取り側の遅延判定で担保される。
	ExpireAllOverdue(ctx context.Context, now time.Time) (int64, error)

	// CancelStalePending は作成からcutoff以前のpending_paymentブーストを
	// cancelledに遷移させる。遷移した場合はtrueを返す。
	CancelStalePending(ctx context.Context, id string, cutoff time.Time) (bool, error)
}

// PurchaseRepository は投票パック・優先フラグ購入の永続化インターフェース。
type PurchaseRepository interface {
	// Create は購入をpending状態で作成する。
	Create(ctx context.Context, purchase *model.Purchase) error

	// FindByID は指定IDの購入を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Purchase, error)

	// Complete はpendingの購入をcompletedに遷移させる。
	// 遷移した場合はtrueを返す。既に終端状態の場合はfalseを返す（冪等性の要）。
	Complete(ctx context.Context, id string, now time.Time) (bool, error)

	// Fail はpendingの購入をfailedに遷移させる。遷移した場合はtrueを返す。
	Fail(ctx context.Context, id string, now time.Time) (bool, error)
}
