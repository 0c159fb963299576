package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/storyrank/internal/model"
)

// PostgresStoryRepo はPostgreSQLを使用したストーリーリポジトリ。
type PostgresStoryRepo struct {
	db *sql.DB
}

// NewPostgresStoryRepo はPostgresStoryRepoを生成する。
func NewPostgresStoryRepo(db *sql.DB) *PostgresStoryRepo {
	return &PostgresStoryRepo{db: db}
}

// FindByID は指定IDのストーリーを取得する。見つからない場合はnilを返す。
func (r *PostgresStoryRepo) FindByID(ctx context.Context, id string) (*model.Story, error) {
	story := &model.Story{}
	var tags pq.StringArray

	err := r.db.QueryRowContext(ctx,
		`SELECT id, title, content, author_id, category, tags, vote_count, is_priority, created_at, updated_at
		 FROM stories WHERE id = $1`,
		id,
	).Scan(
		&story.ID, &story.Title, &story.Content, &story.AuthorID, &story.Category,
		&tags, &story.VoteCount, &story.IsPriority, &story.CreatedAt, &story.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ストーリーの取得に失敗しました: %w", err)
	}

	story.Tags = []string(tags)
	return story, nil
}

// Create はストーリーを作成する。
func (r *PostgresStoryRepo) Create(ctx context.Context, story *model.Story) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO stories (id, title, content, author_id, category, tags, vote_count, is_priority, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		story.ID, story.Title, story.Content, story.AuthorID, story.Category,
		pq.Array(story.Tags), story.VoteCount, story.IsPriority,
		story.CreatedAt, story.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("ストーリーの作成に失敗しました: %w", err)
	}
	return nil
}

// ListAll は全ストーリーを作成日時の降順で返す。
func (r *PostgresStoryRepo) ListAll(ctx context.Context) ([]*model.Story, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, title, content, author_id, category, tags, vote_count, is_priority, created_at, updated_at
		 FROM stories ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("ストーリー一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var stories []*model.Story
	for rows.Next() {
		story := &model.Story{}
		var tags pq.StringArray
		if err := rows.Scan(
			&story.ID, &story.Title, &story.Content, &story.AuthorID, &story.Category,
			&tags, &story.VoteCount, &story.IsPriority, &story.CreatedAt, &story.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("ストーリー行の読み取りに失敗しました: %w", err)
		}
		story.Tags = []string(tags)
		stories = append(stories, story)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ストーリー一覧の走査に失敗しました: %w", err)
	}

	return stories, nil
}

// ApplyVoteDelta はストーリーの投票数に符号付き増分を適用し、適用後の値を返す。
// GREATESTによる下限0のクランプをSQL側で行い、読んでから書く競合を避ける。
func (r *PostgresStoryRepo) ApplyVoteDelta(ctx context.Context, storyID string, delta int) (int, error) {
	var newCount int
	err := r.db.QueryRowContext(ctx,
		`UPDATE stories
		 SET vote_count = GREATEST(0, vote_count + $2), updated_at = NOW()
		 WHERE id = $1
		 RETURNING vote_count`,
		storyID, delta,
	).Scan(&newCount)

	if err == sql.ErrNoRows {
		return 0, model.NewStoryNotFoundError(storyID)
	}
	if err != nil {
		return 0, fmt.Errorf("投票数の更新に失敗しました: %w", err)
	}

	return newCount, nil
}

// MarkPriority はストーリーの優先フラグを恒久的に立てる。
// 既にtrueの場合も成功として扱う（冪等）。
func (r *PostgresStoryRepo) MarkPriority(ctx context.Context, storyID string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE stories SET is_priority = TRUE, updated_at = NOW() WHERE id = $1`,
		storyID,
	)
	if err != nil {
		return fmt.Errorf("優先フラグの更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新行数の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return model.NewStoryNotFoundError(storyID)
	}
	return nil
}

// compile-time interface check
var _ StoryRepository = (*PostgresStoryRepo)(nil)
