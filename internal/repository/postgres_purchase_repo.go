package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/storyrank/internal/model"
)

// PostgresPurchaseRepo はPostgreSQLを使用した購入リポジトリ。
type PostgresPurchaseRepo struct {
	db *sql.DB
}

// NewPostgresPurchaseRepo はPostgresPurchaseRepoを生成する。
func NewPostgresPurchaseRepo(db *sql.DB) *PostgresPurchaseRepo {
	return &PostgresPurchaseRepo{db: db}
}

// Create は購入をpending状態で作成する。
func (r *PostgresPurchaseRepo) Create(ctx context.Context, purchase *model.Purchase) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO purchases (id, kind, user_id, story_id, pack, credits, amount, status, payment_ref, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		purchase.ID, purchase.Kind, purchase.UserID, nullString(purchase.StoryID),
		nullString(purchase.Pack), purchase.Credits, purchase.Amount,
		purchase.Status, nullString(purchase.PaymentRef),
		purchase.CreatedAt, purchase.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("購入の作成に失敗しました: %w", err)
	}
	return nil
}

// FindByID は指定IDの購入を取得する。見つからない場合はnilを返す。
func (r *PostgresPurchaseRepo) FindByID(ctx context.Context, id string) (*model.Purchase, error) {
	purchase := &model.Purchase{}
	var storyID, pack, paymentRef sql.NullString

	err := r.db.QueryRowContext(ctx,
		`SELECT id, kind, user_id, story_id, pack, credits, amount, status, payment_ref, created_at, updated_at
		 FROM purchases WHERE id = $1`,
		id,
	).Scan(
		&purchase.ID, &purchase.Kind, &purchase.UserID, &storyID,
		&pack, &purchase.Credits, &purchase.Amount,
		&purchase.Status, &paymentRef,
		&purchase.CreatedAt, &purchase.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("購入の取得に失敗しました: %w", err)
	}

	purchase.StoryID = storyID.String
	purchase.Pack = pack.String
	purchase.PaymentRef = paymentRef.String
	return purchase, nil
}

// Complete はpendingの購入をcompletedに遷移させる。
// 条件付きUPDATEにより遷移は最大1回しか成立しない（Webhook再送への冪等性）。
func (r *PostgresPurchaseRepo) Complete(ctx context.Context, id string, now time.Time) (bool, error) {
	return r.transition(ctx, id, model.PurchaseStatusCompleted, now)
}

// Fail はpendingの購入をfailedに遷移させる。遷移した場合はtrueを返す。
func (r *PostgresPurchaseRepo) Fail(ctx context.Context, id string, now time.Time) (bool, error) {
	return r.transition(ctx, id, model.PurchaseStatusFailed, now)
}

// transition はpending状態からの終端遷移を適用する。
func (r *PostgresPurchaseRepo) transition(ctx context.Context, id string, to model.PurchaseStatus, now time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE purchases SET status = $2, updated_at = $3
		 WHERE id = $1 AND status = 'pending'`,
		id, to, now,
	)
	if err != nil {
		return false, fmt.Errorf("購入状態の遷移に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("更新行数の取得に失敗しました: %w", err)
	}
	return rowsAffected > 0, nil
}

// compile-time interface check
var _ PurchaseRepository = (*PostgresPurchaseRepo)(nil)
