// Package expire はブースト期限切れのバックグラウンドスイープを提供する。
// 期限切れの正しさは読み取り側の遅延判定で担保されるため、スイープは
// 行の状態を事実に追いつかせてランキングや一覧のDB負荷を抑える最適化である。
package expire

import (
	"context"
	"log/slog"
	"time"
)

// BoostExpirer は期限切れブーストの一括遷移インターフェース。
type BoostExpirer interface {
	// ExpireOverdue は期限を過ぎた全activeブーストをexpiredへ遷移させ、件数を返す。
	ExpireOverdue(ctx context.Context) (int64, error)
}

// Sweeper はブースト期限切れの定期スイープを実行する。
type Sweeper struct {
	expirer BoostExpirer
	logger  *slog.Logger
}

// NewSweeper はSweeperの新しいインスタンスを生成する。
func NewSweeper(expirer BoostExpirer, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		expirer: expirer,
		logger:  logger,
	}
}

// Start は指定間隔のティッカーでスイープを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Sweeper) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("ブースト期限スイープを開始しました",
		slog.Duration("interval", interval),
	)

	// 起動直後に1回実行
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("ブースト期限スイープの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("ブースト期限スイープを停止しました")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("ブースト期限スイープの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce はスイープを1回実行する。冪等で、対象がない場合もエラーにならない。
func (s *Sweeper) RunOnce(ctx context.Context) error {
	start := time.Now()

	count, err := s.expirer.ExpireOverdue(ctx)
	if err != nil {
		return err
	}

	if count > 0 {
		s.logger.Info("ブースト期限スイープが完了しました",
			slog.Int64("expired_count", count),
			slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
		)
	}

	return nil
}
