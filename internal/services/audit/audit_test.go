package audit_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/access-gatekeeper/internal/lib/clock"
	"github.com/magabrotheeeer/access-gatekeeper/internal/models"
	"github.com/magabrotheeeer/access-gatekeeper/internal/services/audit"
)

type mockAuditRepo struct {
	InsertFunc func(ctx context.Context, event models.AuditEvent) error
	DeleteFunc func(ctx context.Context, cutoff time.Time) (int, error)
}

func (m *mockAuditRepo) InsertAuditEvent(ctx context.Context, event models.AuditEvent) error {
	return m.InsertFunc(ctx, event)
}

func (m *mockAuditRepo) DeleteAuditEventsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	return m.DeleteFunc(ctx, cutoff)
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (discardHandler) WithAttrs([]slog.Attr) slog.Handler        { return discardHandler{} }
func (discardHandler) WithGroup(string) slog.Handler             { return discardHandler{} }

func makeLogger() *slog.Logger {
	return slog.New(discardHandler{})
}

func TestClassify(t *testing.T) {
	tests := []struct {
		category string
		want     string
	}{
		{models.AuditCategorySignup, models.ThreatLevelLow},
		{models.AuditCategoryReturningUserSignup, models.ThreatLevelHigh},
		{models.AuditCategoryWebhookReplay, models.ThreatLevelCritical},
		{models.AuditCategoryAccountDeletion, models.ThreatLevelMedium},
		{"unknown_category", models.ThreatLevelMedium},
	}

	for _, tt := range tests {
		t.Run(tt.category, func(t *testing.T) {
			assert.Equal(t, tt.want, audit.Classify(tt.category))
		})
	}
}

func TestRecorder_Record(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	var recorded models.AuditEvent
	repo := &mockAuditRepo{
		InsertFunc: func(_ context.Context, event models.AuditEvent) error {
			recorded = event
			return nil
		},
	}

	rec := audit.NewRecorder(repo, clock.Fixed{Time: now}, makeLogger())
	rec.Record(context.Background(), "acc-1", models.AuditCategoryWebhookReplay, "event evt_1 replayed")

	assert.NotEmpty(t, recorded.ID)
	assert.Equal(t, "acc-1", recorded.AccountUID)
	assert.Equal(t, models.ThreatLevelCritical, recorded.ThreatLevel)
	assert.Equal(t, now, recorded.CreatedAt)
}

func TestRecorder_RecordSwallowsStorageError(t *testing.T) {
	repo := &mockAuditRepo{
		InsertFunc: func(_ context.Context, _ models.AuditEvent) error {
			return errors.New("db down")
		},
	}

	rec := audit.NewRecorder(repo, clock.System(), makeLogger())
	// Не должно паниковать и не должно возвращать ошибку наружу.
	rec.Record(context.Background(), "", models.AuditCategorySignup, "")
}

func TestRecorder_Sweep(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	repo := &mockAuditRepo{
		DeleteFunc: func(_ context.Context, cutoff time.Time) (int, error) {
			assert.Equal(t, now.Add(-90*24*time.Hour), cutoff)
			return 7, nil
		},
	}

	rec := audit.NewRecorder(repo, clock.Fixed{Time: now}, makeLogger())
	removed, err := rec.Sweep(context.Background(), 90*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 7, removed)
}
