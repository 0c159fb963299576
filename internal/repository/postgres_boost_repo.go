package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/storyrank/internal/model"
)

// PostgresBoostRepo はPostgreSQLを使用したブーストセッションリポジトリ。
// 状態遷移は条件付きUPDATE（WHERE句に現在状態を含める）で適用し、
// 競合する遷移が二重に成立しないことをデータベース側で保証する。
type PostgresBoostRepo struct {
	db *sql.DB
}

// NewPostgresBoostRepo はPostgresBoostRepoを生成する。
func NewPostgresBoostRepo(db *sql.DB) *PostgresBoostRepo {
	return &PostgresBoostRepo{db: db}
}

// boostColumns はブーストセッションのSELECT対象カラム。
const boostColumns = `id, story_id, duration_hours, amount, status, payment_status, payment_ref, start_time, end_time, note, created_at, updated_at`

// scanBoost は1行をBoostSessionに読み取る。
func scanBoost(scan func(...any) error) (*model.BoostSession, error) {
	boost := &model.BoostSession{}
	var startTime, endTime sql.NullTime
	var paymentRef, note sql.NullString

	err := scan(
		&boost.ID, &boost.StoryID, &boost.DurationHours, &boost.Amount,
		&boost.Status, &boost.PaymentStatus, &paymentRef,
		&startTime, &endTime, &note,
		&boost.CreatedAt, &boost.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	boost.PaymentRef = paymentRef.String
	boost.Note = note.String
	if startTime.Valid {
		boost.StartTime = &startTime.Time
	}
	if endTime.Valid {
		boost.EndTime = &endTime.Time
	}

	return boost, nil
}

// Create はブーストセッションをrequested状態で作成する。
func (r *PostgresBoostRepo) Create(ctx context.Context, boost *model.BoostSession) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO boost_sessions (id, story_id, duration_hours, amount, status, payment_status, payment_ref, start_time, end_time, note, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		boost.ID, boost.StoryID, boost.DurationHours, boost.Amount,
		boost.Status, boost.PaymentStatus, nullString(boost.PaymentRef),
		boost.StartTime, boost.EndTime, nullString(boost.Note),
		boost.CreatedAt, boost.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("ブーストセッションの作成に失敗しました: %w", err)
	}
	return nil
}

// FindByID は指定IDのブーストセッションを取得する。見つからない場合はnilを返す。
func (r *PostgresBoostRepo) FindByID(ctx context.Context, id string) (*model.BoostSession, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+boostColumns+` FROM boost_sessions WHERE id = $1`, id)

	boost, err := scanBoost(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ブーストセッションの取得に失敗しました: %w", err)
	}
	return boost, nil
}

// FindActiveByStory はストーリーのactiveなブーストを取得する。見つからない場合はnilを返す。
// story_idのインデックスを使用する。activeは同時に最大1件という不変条件を前提とする。
func (r *PostgresBoostRepo) FindActiveByStory(ctx context.Context, storyID string) (*model.BoostSession, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+boostColumns+` FROM boost_sessions WHERE story_id = $1 AND status = 'active'`,
		storyID)

	boost, err := scanBoost(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("activeブーストの取得に失敗しました: %w", err)
	}
	return boost, nil
}

// ListByStory はストーリーの全ブースト履歴を作成日時の降順で返す。
func (r *PostgresBoostRepo) ListByStory(ctx context.Context, storyID string) ([]*model.BoostSession, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+boostColumns+` FROM boost_sessions WHERE story_id = $1 ORDER BY created_at DESC`,
		storyID)
	if err != nil {
		return nil, fmt.Errorf("ブースト履歴の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return collectBoosts(rows)
}

// ListActive は全ストーリーのactiveなブーストを返す。
func (r *PostgresBoostRepo) ListActive(ctx context.Context) ([]*model.BoostSession, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+boostColumns+` FROM boost_sessions WHERE status = 'active'`)
	if err != nil {
		return nil, fmt.Errorf("activeブースト一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return collectBoosts(rows)
}

// collectBoosts は結果セットをBoostSessionのスライスに読み取る。
func collectBoosts(rows *sql.Rows) ([]*model.BoostSession, error) {
	var boosts []*model.BoostSession
	for rows.Next() {
		boost, err := scanBoost(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("ブースト行の読み取りに失敗しました: %w", err)
		}
		boosts = append(boosts, boost)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ブースト一覧の走査に失敗しました: %w", err)
	}
	return boosts, nil
}

// MarkPendingPayment はrequested状態のブーストをpending_paymentに遷移させる。
func (r *PostgresBoostRepo) MarkPendingPayment(ctx context.Context, id, paymentRef string, now time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE boost_sessions
		 SET status = 'pending_payment', payment_ref = $2, updated_at = $3
		 WHERE id = $1 AND status = 'requested'`,
		id, paymentRef, now,
	)
	if err != nil {
		return fmt.Errorf("pending_paymentへの遷移に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新行数の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		current, err := r.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return model.NewBoostNotFoundError(id)
		}
		return model.NewInvalidStateTransitionError(string(current.Status), string(model.BoostStatusPendingPayment))
	}
	return nil
}

// Activate はpending_paymentのブーストをactiveに遷移させる。
// 同一ストーリーの既存activeブーストの上書きキャンセルと新ブーストの
// 有効化を1トランザクションで適用する。トランザクション冒頭でストーリー行を
// ロックして同一ストーリーの有効化を直列化するため、2つの決済確定が競合した
// 場合も後から確定した側が既存activeを観測して上書きキャンセルし、
// 同時に2件がactiveになることはない。
func (r *PostgresBoostRepo) Activate(ctx context.Context, id string, start, end time.Time) (*model.BoostSession, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	// 1. 対象ブーストのストーリーを特定（story_idは作成後に変わらない）
	var storyID string
	err = tx.QueryRowContext(ctx,
		`SELECT story_id FROM boost_sessions WHERE id = $1`,
		id,
	).Scan(&storyID)
	if err == sql.ErrNoRows {
		return nil, model.NewBoostNotFoundError(id)
	}
	if err != nil {
		return nil, fmt.Errorf("ブースト行の取得に失敗しました: %w", err)
	}

	// 2. ストーリー行をロックし、同一ストーリーの有効化を直列化する。
	// ロック順序はCastVoteと同じくストーリー行を先頭に固定する。
	var lockedID string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM stories WHERE id = $1 FOR UPDATE`,
		storyID,
	).Scan(&lockedID)
	if err == sql.ErrNoRows {
		return nil, model.NewStoryNotFoundError(storyID)
	}
	if err != nil {
		return nil, fmt.Errorf("ストーリー行のロックに失敗しました: %w", err)
	}

	// 3. 対象行をロックし、現在状態を確認
	var status model.BoostStatus
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM boost_sessions WHERE id = $1 FOR UPDATE`,
		id,
	).Scan(&status)
	if err == sql.ErrNoRows {
		return nil, model.NewBoostNotFoundError(id)
	}
	if err != nil {
		return nil, fmt.Errorf("ブースト行のロックに失敗しました: %w", err)
	}
	if status != model.BoostStatusPendingPayment {
		return nil, model.NewInvalidStateTransitionError(string(status), string(model.BoostStatusActive))
	}

	// 4. 同一ストーリーの既存activeブーストを上書きキャンセル
	row := tx.QueryRowContext(ctx,
		`UPDATE boost_sessions
		 SET status = 'cancelled', note = $4 || $2, updated_at = $3
		 WHERE story_id = $1 AND status = 'active'
		 RETURNING `+boostColumns,
		storyID, id, start, model.SupersededNotePrefix,
	)
	superseded, err := scanBoost(row.Scan)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("既存ブーストの上書きキャンセルに失敗しました: %w", err)
	}
	if err == sql.ErrNoRows {
		superseded = nil
	}

	// 5. 対象ブーストを有効化
	_, err = tx.ExecContext(ctx,
		`UPDATE boost_sessions
		 SET status = 'active', payment_status = 'completed', start_time = $2, end_time = $3, updated_at = $2
		 WHERE id = $1`,
		id, start, end,
	)
	if err != nil {
		return nil, fmt.Errorf("ブーストの有効化に失敗しました: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}

	return superseded, nil
}

// Cancel はrequestedまたはpending_paymentのブーストをcancelledに遷移させる。
func (r *PostgresBoostRepo) Cancel(ctx context.Context, id string, paymentStatus model.PaymentStatus, note string, now time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE boost_sessions
		 SET status = 'cancelled', payment_status = $2, note = $3, updated_at = $4
		 WHERE id = $1 AND status IN ('requested', 'pending_payment')`,
		id, paymentStatus, note, now,
	)
	if err != nil {
		return fmt.Errorf("ブーストのキャンセルに失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新行数の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		current, err := r.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return model.NewBoostNotFoundError(id)
		}
		return model.NewInvalidStateTransitionError(string(current.Status), string(model.BoostStatusCancelled))
	}
	return nil
}

// ExpireIfOverdue は期限を過ぎたactiveブーストをexpiredに遷移させる。
// 条件付きUPDATEにより、最初に観測した側だけが遷移を永続化する。
func (r *PostgresBoostRepo) ExpireIfOverdue(ctx context.Context, id string, now time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE boost_sessions
		 SET status = 'expired', updated_at = $2
		 WHERE id = $1 AND status = 'active' AND end_time <= $2`,
		id, now,
	)
	if err != nil {
		return false, fmt.Errorf("ブーストの期限切れ遷移に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("更新行数の取得に失敗しました: %w", err)
	}
	return rowsAffected > 0, nil
}

// ExpireAllOverdue は期限を過ぎた全activeブーストをexpiredに遷移させる。
func (r *PostgresBoostRepo) ExpireAllOverdue(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE boost_sessions
		 SET status = 'expired', updated_at = $1
		 WHERE status = 'active' AND end_time <= $1`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("期限切れブーストの一括遷移に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("更新行数の取得に失敗しました: %w", err)
	}
	return rowsAffected, nil
}

// CancelStalePending は作成からcutoff以前のpending_paymentブーストをcancelledに遷移させる。
// 決済結果が届かないまま放置されたセッションをactiveと誤認しないための遅延判定。
func (r *PostgresBoostRepo) CancelStalePending(ctx context.Context, id string, cutoff time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE boost_sessions
		 SET status = 'cancelled', note = '決済結果の待機時間を超過しました', updated_at = NOW()
		 WHERE id = $1 AND status = 'pending_payment' AND created_at <= $2`,
		id, cutoff,
	)
	if err != nil {
		return false, fmt.Errorf("期限切れpendingブーストのキャンセルに失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("更新行数の取得に失敗しました: %w", err)
	}
	return rowsAffected > 0, nil
}

// nullString は空文字列をNULLとして扱うsql.NullStringを返す。
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// compile-time interface check
var _ BoostRepository = (*PostgresBoostRepo)(nil)
