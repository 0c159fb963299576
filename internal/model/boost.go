package model

import (
	"strings"
	"time"
)

// BoostStatus はブーストセッションの状態を表す。
type BoostStatus string

const (
	// BoostStatusRequested はブースト申込直後の初期状態。
	BoostStatusRequested BoostStatus = "requested"
	// BoostStatusPendingPayment は決済プロバイダへの送信後、結果待ちの状態。
	BoostStatusPendingPayment BoostStatus = "pending_payment"
	// BoostStatusActive は決済完了後、掲載優遇が有効な状態。
	BoostStatusActive BoostStatus = "active"
	// BoostStatusExpired は有効期限切れの終端状態。
	BoostStatusExpired BoostStatus = "expired"
	// BoostStatusCancelled は決済失敗・ユーザー取消・上書きによる終端状態。
	BoostStatusCancelled BoostStatus = "cancelled"
)

// Terminal はこの状態が終端（以後の遷移なし）かどうかを返す。
func (s BoostStatus) Terminal() bool {
	return s == BoostStatusExpired || s == BoostStatusCancelled
}

// PaymentStatus は決済の進行状態を表す。
type PaymentStatus string

const (
	// PaymentStatusUnpaid は決済未完了の状態。
	PaymentStatusUnpaid PaymentStatus = "unpaid"
	// PaymentStatusCompleted は決済完了の状態。
	PaymentStatusCompleted PaymentStatus = "completed"
	// PaymentStatusFailed は決済失敗の状態。
	PaymentStatusFailed PaymentStatus = "failed"
)

// SupportedBoostDurations はサポートするブースト時間（時間単位）と
// 対応する価格（セント）の対応表。
var SupportedBoostDurations = map[int]int{
	24:  1000,
	72:  2500,
	168: 5000,
}

// ValidBoostDuration はブースト時間がサポートされているかを返す。
func ValidBoostDuration(hours int) bool {
	_, ok := SupportedBoostDurations[hours]
	return ok
}

// BoostSession はストーリーの有料ブーストを表す。
// ライフサイクルはBoost Lifecycle Managerが専有的に管理し、
// Storyは参照のみを保持する。終端状態になっても監査用に物理削除はしない。
type BoostSession struct {
	ID            string
	StoryID       string
	DurationHours int
	Amount        int // セント単位
	Status        BoostStatus
	PaymentStatus PaymentStatus
	PaymentRef    string // 決済プロバイダが発行する不透明な参照
	StartTime     *time.Time
	EndTime       *time.Time
	Note          string // 上書きキャンセル等の補足
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SupersededNotePrefix は上書きキャンセルされたブーストのNoteに付く接頭辞。
// 接頭辞の後ろには上書きした新しいブーストのIDが続く。
const SupersededNotePrefix = "新しいブーストにより上書きされました: "

// ExpiredAt はアクティブなブーストが指定時刻で期限切れかどうかを返す。
// 遅延期限切れ判定（読み取り側での再導出）に使用する。
func (b *BoostSession) ExpiredAt(now time.Time) bool {
	return b.Status == BoostStatusActive && b.EndTime != nil && !now.Before(*b.EndTime)
}

// Superseded はこのブーストが同一ストーリーの新しいブーストに
// 上書きキャンセルされたかどうかを返す。
func (b *BoostSession) Superseded() bool {
	return b.Status == BoostStatusCancelled && strings.HasPrefix(b.Note, SupersededNotePrefix)
}
