package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"
)

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

// mockDealCleaner はDealCleanerのモック。渡された日時を記録する。
type mockDealCleaner struct {
	expiredAt    time.Time
	pricesCutoff time.Time
	expiredCount int64
	priceCount   int64
	failExpired  bool
	failPrices   bool
}

func (m *mockDealCleaner) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	if m.failExpired {
		return 0, fmt.Errorf("削除失敗")
	}
	m.expiredAt = now
	return m.expiredCount, nil
}

func (m *mockDealCleaner) DeletePricesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if m.failPrices {
		return 0, fmt.Errorf("削除失敗")
	}
	m.pricesCutoff = cutoff
	return m.priceCount, nil
}

func newTestJob(cleaner *mockDealCleaner) *CleanupJob {
	logger := slog.New(slog.NewTextHandler(nopWriter{}, nil))
	return NewCleanupJob(cleaner, logger)
}

// TestNewCleanupJob_DefaultRetention はデフォルトの保持日数が90日であることをテストする。
func TestNewCleanupJob_DefaultRetention(t *testing.T) {
	job := newTestJob(&mockDealCleaner{})
	if job.RetentionDays != 90 {
		t.Errorf("RetentionDays = %d, want 90", job.RetentionDays)
	}
}

// TestRun_DeletesExpiredAndOldPrices は両方の削除が現在時刻基準で
// 実行されることをテストする。
func TestRun_DeletesExpiredAndOldPrices(t *testing.T) {
	cleaner := &mockDealCleaner{expiredCount: 3, priceCount: 100}
	job := newTestJob(cleaner)
	fixed := time.Date(2026, 9, 1, 3, 0, 0, 0, time.UTC)
	job.now = func() time.Time { return fixed }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !cleaner.expiredAt.Equal(fixed) {
		t.Errorf("expired cutoff = %v, want %v", cleaner.expiredAt, fixed)
	}
	wantCutoff := fixed.AddDate(0, 0, -90)
	if !cleaner.pricesCutoff.Equal(wantCutoff) {
		t.Errorf("prices cutoff = %v, want %v", cleaner.pricesCutoff, wantCutoff)
	}
}

// TestRun_CustomRetention は保持日数の変更が反映されることをテストする。
func TestRun_CustomRetention(t *testing.T) {
	cleaner := &mockDealCleaner{}
	job := newTestJob(cleaner)
	job.RetentionDays = 30
	fixed := time.Date(2026, 9, 1, 3, 0, 0, 0, time.UTC)
	job.now = func() time.Time { return fixed }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantCutoff := fixed.AddDate(0, 0, -30)
	if !cleaner.pricesCutoff.Equal(wantCutoff) {
		t.Errorf("prices cutoff = %v, want %v", cleaner.pricesCutoff, wantCutoff)
	}
}

// TestRun_ExpiredDeleteFailure は期限切れ削除の失敗でエラーが返ることをテストする。
func TestRun_ExpiredDeleteFailure(t *testing.T) {
	job := newTestJob(&mockDealCleaner{failExpired: true})
	if err := job.Run(context.Background()); err == nil {
		t.Error("expected error when expired-deal deletion fails")
	}
}

// TestRun_PricesDeleteFailure は履歴削除の失敗でエラーが返ることをテストする。
func TestRun_PricesDeleteFailure(t *testing.T) {
	job := newTestJob(&mockDealCleaner{failPrices: true})
	if err := job.Run(context.Background()); err == nil {
		t.Error("expected error when price-history deletion fails")
	}
}

// TestRun_Idempotent は削除対象ゼロでもエラーにならないことをテストする。
func TestRun_Idempotent(t *testing.T) {
	job := newTestJob(&mockDealCleaner{expiredCount: 0, priceCount: 0})
	if err := job.Run(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Errorf("unexpected error on rerun: %v", err)
	}
}
