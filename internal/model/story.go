// Package model はドメインモデルを定義する。
package model

import "time"

// Story は投稿されたストーリーを表す。
type Story struct {
	ID        string
	Title     string
	Content   string // サニタイズ済みHTML
	AuthorID  string
	Category  string
	Tags      []string // 投稿時の順序を保持する
	VoteCount int      // 投票の符号付き合計（0未満にはならない）
	// IsPriority は有料の優先フラグ。一度trueになったら恒久的に維持される。
	IsPriority bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// StorySort はストーリー一覧のソート種別を表す。
type StorySort string

const (
	// StorySortRanked は優先フラグ > アクティブブースト > 投票数 > 新しさの
	// 重み付けソート（デフォルト）。
	StorySortRanked StorySort = "ranked"
	// StorySortNewest は作成日時の降順ソート。
	StorySortNewest StorySort = "newest"
	// StorySortOldest は作成日時の昇順ソート。
	StorySortOldest StorySort = "oldest"
	// StorySortVotes は投票数の降順ソート。
	StorySortVotes StorySort = "votes"
	// StorySortTitle はタイトルの辞書順ソート（大文字小文字を区別する）。
	StorySortTitle StorySort = "title"
)

// ValidStorySort はソート種別がサポートされているかを返す。
func ValidStorySort(s StorySort) bool {
	switch s {
	case StorySortRanked, StorySortNewest, StorySortOldest, StorySortVotes, StorySortTitle:
		return true
	}
	return false
}
