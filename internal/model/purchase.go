package model

import "time"

// PurchaseKind は購入の種別を表す。
type PurchaseKind string

const (
	// PurchaseKindVotePack は投票クレジットのパック購入。
	PurchaseKindVotePack PurchaseKind = "vote_pack"
	// PurchaseKindPriority はストーリーの恒久的な優先フラグの購入。
	PurchaseKindPriority PurchaseKind = "priority"
)

// PurchaseStatus は購入の進行状態を表す。
type PurchaseStatus string

const (
	// PurchaseStatusPending は決済結果待ちの状態。
	PurchaseStatusPending PurchaseStatus = "pending"
	// PurchaseStatusCompleted は決済完了・特典付与済みの終端状態。
	PurchaseStatusCompleted PurchaseStatus = "completed"
	// PurchaseStatusFailed は決済失敗の終端状態。
	PurchaseStatusFailed PurchaseStatus = "failed"
)

// VotePack は投票クレジットパックの定義。
type VotePack struct {
	ID      string
	Credits int
	Amount  int // セント単位
}

// VotePacks は販売中の投票クレジットパック。
var VotePacks = map[string]VotePack{
	"basic":    {ID: "basic", Credits: 10, Amount: 500},
	"standard": {ID: "standard", Credits: 25, Amount: 1000},
	"premium":  {ID: "premium", Credits: 50, Amount: 1800},
}

// PriorityAmount は優先フラグ購入の価格（セント）。
const PriorityAmount = 500

// Purchase は投票パックまたは優先フラグの購入を表す。
// Webhookの冪等性はstatusのpending→終端遷移を1回だけ許すことで保証する。
type Purchase struct {
	ID         string
	Kind       PurchaseKind
	UserID     string // vote_pack購入者。priorityでは購入操作を行ったユーザー
	StoryID    string // priorityの対象ストーリー。vote_packでは空
	Pack       string // vote_packのパックID。priorityでは空
	Credits    int    // vote_packで付与されるクレジット数
	Amount     int    // セント単位
	Status     PurchaseStatus
	PaymentRef string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
