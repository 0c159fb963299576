package model

import "time"

// VoteType は投票の種別（賛成/反対）を表す。
type VoteType string

const (
	// VoteTypeUp は賛成票。ストーリーの投票数を+1する。
	VoteTypeUp VoteType = "up"
	// VoteTypeDown は反対票。ストーリーの投票数を-1する（0未満には下がらない）。
	VoteTypeDown VoteType = "down"
)

// Delta は投票種別に対応する符号付きの増分を返す。
func (v VoteType) Delta() int {
	if v == VoteTypeDown {
		return -1
	}
	return 1
}

// ValidVoteType は投票種別がサポートされているかを返す。
func ValidVoteType(v VoteType) bool {
	return v == VoteTypeUp || v == VoteTypeDown
}

// VoteCredit はユーザーごとの投票クレジット残高を表す。
// 初回付与または初回購入時に遅延作成される。残高は負にならない。
type VoteCredit struct {
	UserID    string
	Balance   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// VoteRecord は確定した投票の記録を表す。
// (story_id, user_id) の組につき最大1件。作成後は変更も削除もされない。
type VoteRecord struct {
	ID        string
	StoryID   string
	UserID    string
	VoteType  VoteType
	CreatedAt time.Time
}
