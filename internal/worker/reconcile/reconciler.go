// Package reconcile はストーリー投票数と投票記録台帳の定期照合を提供する。
// 投票数は台帳から導出される値であり、CastVoteが両者を同一トランザクションで
// 更新するため通常は乖離しない。照合は障害復旧や手動操作で生じた乖離を
// 台帳側の事実へ引き戻すための補助的なジョブである。
package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/storyrank/internal/model"
)

// StoryCounts は照合対象のストーリーの列挙と投票数の補正インターフェース。
type StoryCounts interface {
	// ListAll は全ストーリーを返す。
	ListAll(ctx context.Context) ([]*model.Story, error)
	// ApplyVoteDelta はストーリーの投票数に符号付き増分を適用し、適用後の値を返す。
	ApplyVoteDelta(ctx context.Context, storyID string, delta int) (int, error)
}

// VoteRecords は投票記録台帳の読み取りインターフェース。
type VoteRecords interface {
	// ListRecordsByStory はストーリーの全投票記録を返す。
	ListRecordsByStory(ctx context.Context, storyID string) ([]*model.VoteRecord, error)
}

// Reconciler はストーリー投票数の定期照合を実行する。
type Reconciler struct {
	stories StoryCounts
	votes   VoteRecords
	logger  *slog.Logger
}

// NewReconciler はReconcilerの新しいインスタンスを生成する。
func NewReconciler(stories StoryCounts, votes VoteRecords, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		stories: stories,
		votes:   votes,
		logger:  logger,
	}
}

// Start は指定間隔のティッカーで照合を起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (r *Reconciler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("投票数照合を開始しました",
		slog.Duration("interval", interval),
	)

	// 起動直後に1回実行
	if _, err := r.RunOnce(ctx); err != nil {
		r.logger.Error("投票数照合の実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("投票数照合を停止しました")
			return
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil {
				r.logger.Error("投票数照合の実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は照合を1回実行し、補正したストーリー数を返す。
// 乖離のないストーリーには書き込みを行わない（冪等）。
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	start := time.Now()

	stories, err := r.stories.ListAll(ctx)
	if err != nil {
		return 0, err
	}

	corrected := 0
	for _, story := range stories {
		records, err := r.votes.ListRecordsByStory(ctx, story.ID)
		if err != nil {
			return corrected, err
		}

		derived := 0
		for _, record := range records {
			derived += record.VoteType.Delta()
		}
		if derived < 0 {
			derived = 0
		}

		if derived == story.VoteCount {
			continue
		}

		applied, err := r.stories.ApplyVoteDelta(ctx, story.ID, derived-story.VoteCount)
		if err != nil {
			return corrected, err
		}
		corrected++

		r.logger.Warn("投票数の乖離を補正しました",
			slog.String("story_id", story.ID),
			slog.Int("stored", story.VoteCount),
			slog.Int("derived", derived),
			slog.Int("applied", applied),
		)
	}

	if corrected > 0 {
		r.logger.Info("投票数照合が完了しました",
			slog.Int("corrected_count", corrected),
			slog.Int("story_count", len(stories)),
			slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
		)
	}

	return corrected, nil
}
