// Package cleanup はログインセッションの自動削除ジョブを提供する。
// 最終ログインから保持期間（デフォルト30日）を超過したセッションを
// 定期バッチで削除する。削除されたアカウントは次回ログイン時に新しいセッションを受け取る。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultRetention はセッションの保持期間のデフォルト値。
const DefaultRetention = 720 * time.Hour

// SessionPurger は古いセッションを削除するインターフェース。
// repository.SessionRepositoryが実装する。
type SessionPurger interface {
	DeleteIdleBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// PurgeRecorder は削除件数を記録するインターフェース。metrics.Collectorが実装する。
type PurgeRecorder interface {
	RecordSessionsPurged(count int64)
}

// CleanupJob は保持期間を超過したセッションの自動削除ジョブ。
// 削除対象がなくてもエラーにならないため、何度実行してもよい。
type CleanupJob struct {
	repo      SessionPurger
	recorder  PurgeRecorder
	logger    *slog.Logger
	Retention time.Duration // 最終ログインからの保持期間（デフォルト: 720h）
	now       func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。
// recorderはnilでもよい。
func NewCleanupJob(repo SessionPurger, recorder PurgeRecorder, logger *slog.Logger) *CleanupJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &CleanupJob{
		repo:      repo,
		recorder:  recorder,
		logger:    logger,
		Retention: DefaultRetention,
		now:       time.Now,
	}
}

// Run は最終ログインがRetentionより前のセッションを削除する。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()
	cutoff := j.now().Add(-j.Retention)

	deletedCount, err := j.repo.DeleteIdleBefore(ctx, cutoff)
	if err != nil {
		j.logger.Error("セッションクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Duration("retention", j.Retention),
		)
		return fmt.Errorf("セッションクリーンアップの実行に失敗: %w", err)
	}

	if j.recorder != nil {
		j.recorder.RecordSessionsPurged(deletedCount)
	}

	j.logger.Info("セッションクリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Duration("retention", j.Retention),
		slog.Time("cutoff", cutoff),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return nil
}

// Start は起動直後に1回、その後intervalごとにRunを実行する。
// ctxがキャンセルされるまでブロックする。intervalが0以下の場合は何も実行せずエラーを返す。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("クリーンアップ間隔は正の値である必要があります: %s", interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("セッションクリーンアップジョブを開始しました",
		slog.Duration("interval", interval),
		slog.Duration("retention", j.Retention),
	)

	// 起動直後に1回実行（エラーはRun内でログ出力済み）
	_ = j.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("セッションクリーンアップジョブを停止しました")
			return nil
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}
