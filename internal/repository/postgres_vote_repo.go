package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/hitoshi/storyrank/internal/model"
)

// uniqueViolation はPostgreSQLの一意制約違反のエラーコード。
const uniqueViolation = "23505"

// PostgresVoteLedgerRepo はPostgreSQLを使用した投票台帳リポジトリ。
// クレジット残高・投票記録・ストーリー投票数の3テーブルを
// 単一トランザクションで更新する原子的単位を実装する。
type PostgresVoteLedgerRepo struct {
	db *sql.DB
}

// NewPostgresVoteLedgerRepo はPostgresVoteLedgerRepoを生成する。
func NewPostgresVoteLedgerRepo(db *sql.DB) *PostgresVoteLedgerRepo {
	return &PostgresVoteLedgerRepo{db: db}
}

// FindCredit は指定ユーザーのクレジットを取得する。未作成の場合はnilを返す。
func (r *PostgresVoteLedgerRepo) FindCredit(ctx context.Context, userID string) (*model.VoteCredit, error) {
	credit := &model.VoteCredit{}
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, balance, created_at, updated_at FROM vote_credits WHERE user_id = $1`,
		userID,
	).Scan(&credit.UserID, &credit.Balance, &credit.CreatedAt, &credit.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("クレジット残高の取得に失敗しました: %w", err)
	}

	return credit, nil
}

// GrantCredits はユーザーの残高を加算し、加算後の残高を返す。
// クレジットレコードは初回付与時にUPSERTで遅延作成される。
func (r *PostgresVoteLedgerRepo) GrantCredits(ctx context.Context, userID string, amount int) (int, error) {
	var newBalance int
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO vote_credits (user_id, balance, created_at, updated_at)
		 VALUES ($1, $2, NOW(), NOW())
		 ON CONFLICT (user_id) DO UPDATE SET
		     balance = vote_credits.balance + EXCLUDED.balance,
		     updated_at = NOW()
		 RETURNING balance`,
		userID, amount,
	).Scan(&newBalance)
	if err != nil {
		return 0, fmt.Errorf("クレジットの付与に失敗しました: %w", err)
	}

	return newBalance, nil
}

// CastVote は投票を1トランザクションで確定する。
// ロック順序はストーリー行 → クレジット行で固定し、デッドロックを避ける。
// 二重投票はvote_recordsのUNIQUE(story_id, user_id)制約違反で検出する。
// トランザクション内の部分的な変更が外部から観測されることはない。
func (r *PostgresVoteLedgerRepo) CastVote(ctx context.Context, userID, storyID string, voteType model.VoteType) (*model.VoteRecord, int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	// 1. ストーリー行をロックし存在を確認
	var voteCount int
	err = tx.QueryRowContext(ctx,
		`SELECT vote_count FROM stories WHERE id = $1 FOR UPDATE`,
		storyID,
	).Scan(&voteCount)
	if err == sql.ErrNoRows {
		return nil, 0, model.NewStoryNotFoundError(storyID)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("ストーリー行のロックに失敗しました: %w", err)
	}

	// 2. クレジット行をロックし残高を確認
	var balance int
	err = tx.QueryRowContext(ctx,
		`SELECT balance FROM vote_credits WHERE user_id = $1 FOR UPDATE`,
		userID,
	).Scan(&balance)
	if err == sql.ErrNoRows {
		// クレジットレコード未作成 = 残高0
		return nil, 0, model.NewInsufficientCreditsError()
	}
	if err != nil {
		return nil, 0, fmt.Errorf("クレジット行のロックに失敗しました: %w", err)
	}
	if balance < 1 {
		return nil, 0, model.NewInsufficientCreditsError()
	}

	// 3. 投票記録を作成（二重投票はUNIQUE制約違反で検出）
	now := time.Now().UTC()
	record := &model.VoteRecord{
		ID:        uuid.New().String(),
		StoryID:   storyID,
		UserID:    userID,
		VoteType:  voteType,
		CreatedAt: now,
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO vote_records (id, story_id, user_id, vote_type, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		record.ID, record.StoryID, record.UserID, record.VoteType, record.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return nil, 0, model.NewDuplicateVoteError(storyID)
		}
		return nil, 0, fmt.Errorf("投票記録の作成に失敗しました: %w", err)
	}

	// 4. 残高を1減算
	_, err = tx.ExecContext(ctx,
		`UPDATE vote_credits SET balance = balance - 1, updated_at = $2 WHERE user_id = $1`,
		userID, now,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("残高の減算に失敗しました: %w", err)
	}

	// 5. ストーリー投票数へ符号付き増分を適用（下限0でクランプ）
	var newCount int
	err = tx.QueryRowContext(ctx,
		`UPDATE stories
		 SET vote_count = GREATEST(0, vote_count + $2), updated_at = $3
		 WHERE id = $1
		 RETURNING vote_count`,
		storyID, voteType.Delta(), now,
	).Scan(&newCount)
	if err != nil {
		return nil, 0, fmt.Errorf("投票数の更新に失敗しました: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, 0, fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}

	return record, newCount, nil
}

// FindRecord は(storyID, userID)の投票記録を取得する。見つからない場合はnilを返す。
func (r *PostgresVoteLedgerRepo) FindRecord(ctx context.Context, storyID, userID string) (*model.VoteRecord, error) {
	record := &model.VoteRecord{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, story_id, user_id, vote_type, created_at
		 FROM vote_records WHERE story_id = $1 AND user_id = $2`,
		storyID, userID,
	).Scan(&record.ID, &record.StoryID, &record.UserID, &record.VoteType, &record.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("投票記録の取得に失敗しました: %w", err)
	}

	return record, nil
}

// ListRecordsByStory はストーリーの全投票記録を作成日時の昇順で返す。
// story_idのインデックスを使用する。投票数の照合に使用される。
func (r *PostgresVoteLedgerRepo) ListRecordsByStory(ctx context.Context, storyID string) ([]*model.VoteRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, story_id, user_id, vote_type, created_at
		 FROM vote_records WHERE story_id = $1 ORDER BY created_at ASC`,
		storyID,
	)
	if err != nil {
		return nil, fmt.Errorf("投票記録一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var records []*model.VoteRecord
	for rows.Next() {
		record := &model.VoteRecord{}
		if err := rows.Scan(&record.ID, &record.StoryID, &record.UserID, &record.VoteType, &record.CreatedAt); err != nil {
			return nil, fmt.Errorf("投票記録行の読み取りに失敗しました: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("投票記録一覧の走査に失敗しました: %w", err)
	}

	return records, nil
}

// compile-time interface check
var _ VoteLedgerRepository = (*PostgresVoteLedgerRepo)(nil)
