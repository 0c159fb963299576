// Package ranking はストーリー一覧のフィルタ・ソート・ページネーションを提供する。
// ランキングはクエリ時に都度評価され、事前計算した順位は保持しない。
package ranking

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/hitoshi/storyrank/internal/model"
	"github.com/hitoshi/storyrank/internal/repository"
)

// 注目ストーリーとみなす投票数の閾値（この値より大きい場合に該当）。
const featuredVoteThreshold = 35

// ページネーションの既定値と上限。
const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Metrics はランキングエンジンが依存するメトリクス収集の部分インターフェース。
type Metrics interface {
	RecordRankingLatency(duration time.Duration)
}

// Query はストーリー一覧の問い合わせ条件。
type Query struct {
	Category string // 部分一致（大文字小文字を区別しない）。空なら全件
	Featured bool   // trueなら注目ストーリーのみ
	AuthorID string // 完全一致。空なら全件
	Sort     model.StorySort
	Page     int
	PageSize int
}

// Page はページネーション済みのストーリー一覧。
type Page struct {
	Stories      []*model.Story
	CurrentPage  int
	TotalPages   int
	TotalStories int
	HasNext      bool
	HasPrev      bool
}

// Service はストーリー一覧のクエリ評価を提供する。
type Service struct {
	storyRepo repository.StoryRepository
	boostRepo repository.BoostRepository
	metrics   Metrics
}

// NewService はServiceの新しいインスタンスを生成する。
// metricsはnilを許容する。
func NewService(storyRepo repository.StoryRepository, boostRepo repository.BoostRepository, metrics Metrics) *Service {
	return &Service{
		storyRepo: storyRepo,
		boostRepo: boostRepo,
		metrics:   metrics,
	}
}

// List はクエリ条件に従ってストーリー一覧を返す。
// ブーストの有効判定はクエリ時点の時刻で行い、期限を過ぎたブーストは
// DB上の状態にかかわらず有効とみなさない。
func (s *Service) List(ctx context.Context, q Query) (*Page, error) {
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.RecordRankingLatency(time.Since(start))
		}
	}()

	if q.Sort == "" {
		q.Sort = model.StorySortRanked
	}
	if !model.ValidStorySort(q.Sort) {
		return nil, model.NewInvalidArgumentError("ソート種別はranked・newest・oldest・votes・titleのいずれかを指定してください")
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = defaultPageSize
	}
	if q.PageSize > maxPageSize {
		q.PageSize = maxPageSize
	}

	stories, err := s.storyRepo.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	boosted, err := s.activeBoostSet(ctx)
	if err != nil {
		return nil, err
	}

	filtered := s.filter(stories, boosted, q)
	s.sortStories(filtered, boosted, q.Sort)

	return paginate(filtered, q.Page, q.PageSize), nil
}

// activeBoostSet は現在有効なブーストを持つストーリーIDの集合を返す。
// 期限超過のブーストは評価から除外する（行の遷移は読み取り側と
// スイープに委ねる）。
func (s *Service) activeBoostSet(ctx context.Context) (map[string]bool, error) {
	actives, err := s.boostRepo.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	boosted := make(map[string]bool, len(actives))
	for _, b := range actives {
		if b.ExpiredAt(now) {
			continue
		}
		boosted[b.StoryID] = true
	}
	return boosted, nil
}

func (s *Service) filter(stories []*model.Story, boosted map[string]bool, q Query) []*model.Story {
	category := strings.ToLower(strings.TrimSpace(q.Category))

	filtered := make([]*model.Story, 0, len(stories))
	for _, story := range stories {
		if category != "" && !strings.Contains(strings.ToLower(story.Category), category) {
			continue
		}
		if q.AuthorID != "" && story.AuthorID != q.AuthorID {
			continue
		}
		if q.Featured && !isFeatured(story, boosted) {
			continue
		}
		filtered = append(filtered, story)
	}
	return filtered
}

// isFeatured はストーリーが注目扱いかどうかを返す。
// 優先フラグ、有効なブースト、閾値超えの投票数のいずれかで該当する。
func isFeatured(story *model.Story, boosted map[string]bool) bool {
	return story.IsPriority || boosted[story.ID] || story.VoteCount > featuredVoteThreshold
}

// sortStories は一覧を指定された順序に並べ替える。
// 同順位の相対順序を保つため安定ソートを使う。
func (s *Service) sortStories(stories []*model.Story, boosted map[string]bool, sortKey model.StorySort) {
	switch sortKey {
	case model.StorySortRanked:
		sort.SliceStable(stories, func(i, j int) bool {
			a, b := stories[i], stories[j]
			if a.IsPriority != b.IsPriority {
				return a.IsPriority
			}
			if boosted[a.ID] != boosted[b.ID] {
				return boosted[a.ID]
			}
			if a.VoteCount != b.VoteCount {
				return a.VoteCount > b.VoteCount
			}
			return a.CreatedAt.After(b.CreatedAt)
		})
	case model.StorySortNewest:
		sort.SliceStable(stories, func(i, j int) bool {
			return stories[i].CreatedAt.After(stories[j].CreatedAt)
		})
	case model.StorySortOldest:
		sort.SliceStable(stories, func(i, j int) bool {
			return stories[i].CreatedAt.Before(stories[j].CreatedAt)
		})
	case model.StorySortVotes:
		sort.SliceStable(stories, func(i, j int) bool {
			return stories[i].VoteCount > stories[j].VoteCount
		})
	case model.StorySortTitle:
		sort.SliceStable(stories, func(i, j int) bool {
			return stories[i].Title < stories[j].Title
		})
	}
}

func paginate(stories []*model.Story, page, pageSize int) *Page {
	total := len(stories)
	totalPages := (total + pageSize - 1) / pageSize

	start := (page - 1) * pageSize
	end := start + pageSize
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	return &Page{
		Stories:      stories[start:end],
		CurrentPage:  page,
		TotalPages:   totalPages,
		TotalStories: total,
		HasNext:      page < totalPages,
		HasPrev:      page > 1 && total > 0,
	}
}
