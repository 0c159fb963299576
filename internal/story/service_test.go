package story

import (
	"context"
	"strings"
	"testing"

	"github.com/hitoshi/storyrank/internal/model"
)

// mockStoryRepository はStoryRepositoryのモック実装。
type mockStoryRepository struct {
	findByIDFn       func(ctx context.Context, id string) (*model.Story, error)
	createFn         func(ctx context.Context, story *model.Story) error
	listAllFn        func(ctx context.Context) ([]*model.Story, error)
	applyVoteDeltaFn func(ctx context.Context, storyID string, delta int) (int, error)
	markPriorityFn   func(ctx context.Context, storyID string) error
}

func (m *mockStoryRepository) FindByID(ctx context.Context, id string) (*model.Story, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockStoryRepository) Create(ctx context.Context, story *model.Story) error {
	if m.createFn != nil {
		return m.createFn(ctx, story)
	}
	return nil
}

func (m *mockStoryRepository) ListAll(ctx context.Context) ([]*model.Story, error) {
	if m.listAllFn != nil {
		return m.listAllFn(ctx)
	}
	return nil, nil
}

func (m *mockStoryRepository) ApplyVoteDelta(ctx context.Context, storyID string, delta int) (int, error) {
	if m.applyVoteDeltaFn != nil {
		return m.applyVoteDeltaFn(ctx, storyID, delta)
	}
	return 0, nil
}

func (m *mockStoryRepository) MarkPriority(ctx context.Context, storyID string) error {
	if m.markPriorityFn != nil {
		return m.markPriorityFn(ctx, storyID)
	}
	return nil
}

// mockSanitizer はContentSanitizerServiceのモック実装。
type mockSanitizer struct {
	sanitizeFn func(rawHTML string) string
}

func (m *mockSanitizer) Sanitize(rawHTML string) string {
	if m.sanitizeFn != nil {
		return m.sanitizeFn(rawHTML)
	}
	return rawHTML
}

func TestSubmit_CreatesStoryWithDefaults(t *testing.T) {
	var created *model.Story
	repo := &mockStoryRepository{
		createFn: func(ctx context.Context, story *model.Story) error {
			created = story
			return nil
		},
	}

	svc := NewService(repo, &mockSanitizer{}, nil)

	story, err := svc.Submit(context.Background(), "author-1", "タイトル", "本文です", "tech", []string{"go", "db"}, false)
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}

	if created == nil {
		t.Fatal("expected Create to be called")
	}
	if story.ID == "" {
		t.Error("expected non-empty story ID")
	}
	if story.VoteCount != 0 {
		t.Errorf("VoteCount = %d, want 0", story.VoteCount)
	}
	if story.IsPriority {
		t.Error("new story should not have priority flag")
	}
	if story.AuthorID != "author-1" {
		t.Errorf("AuthorID = %q, want %q", story.AuthorID, "author-1")
	}
	if len(story.Tags) != 2 {
		t.Errorf("tags = %v, want 2 entries", story.Tags)
	}
	if story.CreatedAt.IsZero() || story.UpdatedAt.IsZero() {
		t.Error("timestamps should be set")
	}
}

func TestSubmit_WantsPriority_SetsFlagAtCreation(t *testing.T) {
	var created *model.Story
	repo := &mockStoryRepository{
		createFn: func(ctx context.Context, story *model.Story) error {
			created = story
			return nil
		},
	}

	svc := NewService(repo, &mockSanitizer{}, nil)

	story, err := svc.Submit(context.Background(), "author-1", "タイトル", "本文です", "tech", nil, true)
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}

	if !story.IsPriority {
		t.Error("story should carry the priority flag when requested at submission")
	}
	if created == nil || !created.IsPriority {
		t.Error("persisted story should carry the priority flag")
	}
}

func TestSubmit_SanitizesContent(t *testing.T) {
	repo := &mockStoryRepository{}
	sanitizer := &mockSanitizer{
		sanitizeFn: func(rawHTML string) string {
			return strings.ReplaceAll(rawHTML, "<script>alert(1)</script>", "")
		},
	}

	svc := NewService(repo, sanitizer, nil)

	story, err := svc.Submit(context.Background(), "author-1", "タイトル", "安全な本文<script>alert(1)</script>", "", nil, false)
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}

	if strings.Contains(story.Content, "<script>") {
		t.Errorf("content should be sanitized, got %q", story.Content)
	}
}

func TestSubmit_EmptyTitle_ReturnsValidationError(t *testing.T) {
	svc := NewService(&mockStoryRepository{}, &mockSanitizer{}, nil)

	_, err := svc.Submit(context.Background(), "author-1", "   ", "本文", "", nil, false)
	if err == nil {
		t.Fatal("expected error for empty title")
	}

	apiErr, ok := err.(*model.APIError)
	if !ok {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.Code != "INVALID_ARGUMENT" {
		t.Errorf("code = %q, want INVALID_ARGUMENT", apiErr.Code)
	}
}

func TestSubmit_EmptyContent_ReturnsValidationError(t *testing.T) {
	svc := NewService(&mockStoryRepository{}, &mockSanitizer{}, nil)

	_, err := svc.Submit(context.Background(), "author-1", "タイトル", "", "", nil, false)
	if err == nil {
		t.Fatal("expected error for empty content")
	}
}

func TestSubmit_TitleTooLong_ReturnsValidationError(t *testing.T) {
	svc := NewService(&mockStoryRepository{}, &mockSanitizer{}, nil)

	longTitle := strings.Repeat("a", maxTitleLength+1)
	_, err := svc.Submit(context.Background(), "author-1", longTitle, "本文", "", nil, false)
	if err == nil {
		t.Fatal("expected error for title over limit")
	}
}

func TestSubmit_TooManyTags_ReturnsValidationError(t *testing.T) {
	svc := NewService(&mockStoryRepository{}, &mockSanitizer{}, nil)

	tags := []string{"a", "b", "c", "d", "e", "f"}
	_, err := svc.Submit(context.Background(), "author-1", "タイトル", "本文", "", tags, false)
	if err == nil {
		t.Fatal("expected error for too many tags")
	}
}

func TestSubmit_DropsEmptyTags(t *testing.T) {
	svc := NewService(&mockStoryRepository{}, &mockSanitizer{}, nil)

	story, err := svc.Submit(context.Background(), "author-1", "タイトル", "本文", "", []string{"go", "  ", ""}, false)
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}

	if len(story.Tags) != 1 || story.Tags[0] != "go" {
		t.Errorf("tags = %v, want [go]", story.Tags)
	}
}

func TestGet_ReturnsStory(t *testing.T) {
	repo := &mockStoryRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.Story, error) {
			return &model.Story{ID: id, Title: "タイトル"}, nil
		},
	}

	svc := NewService(repo, &mockSanitizer{}, nil)

	story, err := svc.Get(context.Background(), "story-1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if story.ID != "story-1" {
		t.Errorf("ID = %q, want %q", story.ID, "story-1")
	}
}

func TestGet_NotFound_ReturnsStoryNotFoundError(t *testing.T) {
	repo := &mockStoryRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.Story, error) {
			return nil, nil
		},
	}

	svc := NewService(repo, &mockSanitizer{}, nil)

	_, err := svc.Get(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected error for missing story")
	}

	apiErr, ok := err.(*model.APIError)
	if !ok {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.Code != "STORY_NOT_FOUND" {
		t.Errorf("code = %q, want STORY_NOT_FOUND", apiErr.Code)
	}
}

func TestMarkPriority_DelegatesToRepository(t *testing.T) {
	var markedID string
	repo := &mockStoryRepository{
		markPriorityFn: func(ctx context.Context, storyID string) error {
			markedID = storyID
			return nil
		},
	}

	svc := NewService(repo, &mockSanitizer{}, nil)

	if err := svc.MarkPriority(context.Background(), "story-9"); err != nil {
		t.Fatalf("MarkPriority returned error: %v", err)
	}
	if markedID != "story-9" {
		t.Errorf("marked ID = %q, want %q", markedID, "story-9")
	}
}
