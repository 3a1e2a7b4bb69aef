package sweeper_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/magabrotheeeer/access-gatekeeper/internal/lib/clock"
	"github.com/magabrotheeeer/access-gatekeeper/internal/models"
	"github.com/magabrotheeeer/access-gatekeeper/internal/services/sweeper"
)

type mockTrialRepo struct {
	FindTrialsExpiredFunc         func(ctx context.Context, now time.Time, limit int) ([]string, error)
	FindTrialsExpiringBetweenFunc func(ctx context.Context, from, to time.Time) ([]*models.TrialRecord, error)
}

func (m *mockTrialRepo) FindTrialsExpired(ctx context.Context, now time.Time, limit int) ([]string, error) {
	return m.FindTrialsExpiredFunc(ctx, now, limit)
}

func (m *mockTrialRepo) FindTrialsExpiringBetween(ctx context.Context, from, to time.Time) ([]*models.TrialRecord, error) {
	return m.FindTrialsExpiringBetweenFunc(ctx, from, to)
}

type mockTransactor struct {
	batches [][]string
}

func (m *mockTransactor) ExpireTrialsBatch(_ context.Context, accountUIDs []string) int {
	m.batches = append(m.batches, accountUIDs)
	return len(accountUIDs)
}

type mockGate struct {
	swept int
}

func (m *mockGate) Sweep(_ context.Context) (int, error) {
	m.swept++
	return 3, nil
}

type mockAudit struct {
	retention time.Duration
}

func (m *mockAudit) Sweep(_ context.Context, retention time.Duration) (int, error) {
	m.retention = retention
	return 5, nil
}

type mockPublisher struct {
	keys []string
}

func (m *mockPublisher) Publish(routingKey string, _ any) error {
	m.keys = append(m.keys, routingKey)
	return nil
}

func TestService_RunExpiry_ExpiresAndNotifies(t *testing.T) {
	now := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)

	trials := &mockTrialRepo{
		FindTrialsExpiredFunc: func(_ context.Context, got time.Time, limit int) ([]string, error) {
			assert.Equal(t, now, got)
			assert.Positive(t, limit)
			return []string{"acc-1", "acc-2"}, nil
		},
		FindTrialsExpiringBetweenFunc: func(_ context.Context, from, to time.Time) ([]*models.TrialRecord, error) {
			assert.Equal(t, now, from)
			assert.Equal(t, 24*time.Hour, to.Sub(from))
			return []*models.TrialRecord{{AccountUID: "acc-3"}}, nil
		},
	}
	transactor := &mockTransactor{}
	publisher := &mockPublisher{}

	svc := sweeper.NewService(trials, transactor, &mockGate{}, &mockAudit{}, publisher,
		clock.Fixed{Time: now}, makeLogger(), time.Hour, time.Hour, 90*24*time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc.RunExpiry(ctx)

	assert.Equal(t, [][]string{{"acc-1", "acc-2"}}, transactor.batches)
	assert.Equal(t, []string{"trial_expiring"}, publisher.keys)
}

func TestService_RunRetention_SweepsBothStores(t *testing.T) {
	gate := &mockGate{}
	audit := &mockAudit{}
	retention := 90 * 24 * time.Hour

	trials := &mockTrialRepo{}
	svc := sweeper.NewService(trials, &mockTransactor{}, gate, audit, &mockPublisher{},
		clock.System(), makeLogger(), time.Hour, time.Hour, retention)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc.RunRetention(ctx)

	assert.Equal(t, 1, gate.swept)
	assert.Equal(t, retention, audit.retention)
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (discardHandler) WithAttrs([]slog.Attr) slog.Handler        { return discardHandler{} }
func (discardHandler) WithGroup(string) slog.Handler             { return discardHandler{} }

func makeLogger() *slog.Logger {
	return slog.New(discardHandler{})
}
