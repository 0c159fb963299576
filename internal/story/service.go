// Package story はストーリー投稿・取得のビジネスロジックを提供する。
package story

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/storyrank/internal/model"
	"github.com/hitoshi/storyrank/internal/repository"
	"github.com/hitoshi/storyrank/internal/security"
)

// 投稿内容の上限。
const (
	maxTitleLength   = 200
	maxContentLength = 10000
	maxTagCount      = 5
	maxTagLength     = 50
)

// Metrics はストーリーサービスが依存するメトリクス収集の部分インターフェース。
type Metrics interface {
	RecordStorySubmitted()
}

// Service はストーリーの投稿と取得を提供する。
// 本文はXSS対策のため保存前にサニタイズされる。
type Service struct {
	storyRepo repository.StoryRepository
	sanitizer security.ContentSanitizerService
	metrics   Metrics
}

// NewService はServiceの新しいインスタンスを生成する。
// metricsはnilを許容する（ワーカーやテストでメトリクス収集が不要な場合）。
func NewService(
	storyRepo repository.StoryRepository,
	sanitizer security.ContentSanitizerService,
	metrics Metrics,
) *Service {
	return &Service{
		storyRepo: storyRepo,
		sanitizer: sanitizer,
		metrics:   metrics,
	}
}

// Submit は新しいストーリーを投稿する。
// タイトル・本文は必須で、本文はサニタイズしてから保存する。
// 新規ストーリーは投票数0で作成される。wantsPriorityは優先表示の決済が
// 既に完了している場合にのみ呼び出し側がtrueを渡す（決済確認は外部の責務で、
// 本サービスはフラグを信頼して保存するだけ）。
func (s *Service) Submit(ctx context.Context, authorID, title, content, category string, tags []string, wantsPriority bool) (*model.Story, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, model.NewInvalidArgumentError("タイトルは必須です")
	}
	if len(title) > maxTitleLength {
		return nil, model.NewInvalidArgumentError("タイトルが長すぎます")
	}

	if strings.TrimSpace(content) == "" {
		return nil, model.NewInvalidArgumentError("本文は必須です")
	}
	if len(content) > maxContentLength {
		return nil, model.NewInvalidArgumentError("本文が長すぎます")
	}

	if len(tags) > maxTagCount {
		return nil, model.NewInvalidArgumentError("タグは5個までです")
	}
	cleaned := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if len(tag) > maxTagLength {
			return nil, model.NewInvalidArgumentError("タグが長すぎます")
		}
		cleaned = append(cleaned, tag)
	}

	now := time.Now().UTC()
	story := &model.Story{
		ID:         uuid.New().String(),
		Title:      title,
		Content:    s.sanitizer.Sanitize(content),
		AuthorID:   authorID,
		Category:   strings.TrimSpace(category),
		Tags:       cleaned,
		VoteCount:  0,
		IsPriority: wantsPriority,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.storyRepo.Create(ctx, story); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordStorySubmitted()
	}

	return story, nil
}

// Get は指定IDのストーリーを取得する。
// 存在しない場合はSTORY_NOT_FOUNDエラーを返す。
func (s *Service) Get(ctx context.Context, id string) (*model.Story, error) {
	story, err := s.storyRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if story == nil {
		return nil, model.NewStoryNotFoundError(id)
	}
	return story, nil
}

// MarkPriority はストーリーに優先表示フラグを付与する。
// すでに付与済みの場合も成功として扱う（冪等）。
func (s *Service) MarkPriority(ctx context.Context, id string) error {
	return s.storyRepo.MarkPriority(ctx, id)
}
