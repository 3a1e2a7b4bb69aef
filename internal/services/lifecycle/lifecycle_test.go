package lifecycle_test

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/access-gatekeeper/internal/lib/clock"
	"github.com/magabrotheeeer/access-gatekeeper/internal/lib/identity"
	"github.com/magabrotheeeer/access-gatekeeper/internal/locker"
	"github.com/magabrotheeeer/access-gatekeeper/internal/models"
	"github.com/magabrotheeeer/access-gatekeeper/internal/services/lifecycle"
)

// memoryRepo — потокобезопасное хранилище в памяти, повторяющее контракты
// SQL-слоя: условное обновление статуса, upsert журнала удалений, nil при
// отсутствии записи.
type memoryRepo struct {
	mu            sync.Mutex
	accounts      map[string]models.Account
	trials        map[string]models.TrialRecord
	subscriptions map[string]models.SubscriptionRecord
	ledger        map[string]models.DeletionLedgerEntry
	nextUID       int

	failLedger bool
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		accounts:      make(map[string]models.Account),
		trials:        make(map[string]models.TrialRecord),
		subscriptions: make(map[string]models.SubscriptionRecord),
		ledger:        make(map[string]models.DeletionLedgerEntry),
	}
}

func (r *memoryRepo) CreateAccount(_ context.Context, acc models.Account) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.accounts {
		if existing.Email == acc.Email && !existing.IsDeleted {
			return "", models.ErrAccountAlreadyExists
		}
	}
	r.nextUID++
	acc.UID = fmt.Sprintf("acc-%d", r.nextUID)
	if acc.CreatedAt.IsZero() {
		acc.CreatedAt = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	}
	r.accounts[acc.UID] = acc
	return acc.UID, nil
}

func (r *memoryRepo) GetAccount(_ context.Context, uid string) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	acc, ok := r.accounts[uid]
	if !ok || acc.IsDeleted {
		return nil, models.ErrAccountNotFound
	}
	return &acc, nil
}

func (r *memoryRepo) MarkAccountDeleted(_ context.Context, uid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	acc, ok := r.accounts[uid]
	if !ok {
		return models.ErrAccountNotFound
	}
	acc.IsDeleted = true
	r.accounts[uid] = acc
	return nil
}

func (r *memoryRepo) CreateTrial(_ context.Context, trial models.TrialRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trials[trial.AccountUID] = trial
	return nil
}

func (r *memoryRepo) GetTrial(_ context.Context, accountUID string) (*models.TrialRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	trial, ok := r.trials[accountUID]
	if !ok {
		return nil, nil
	}
	return &trial, nil
}

func (r *memoryRepo) UpdateTrialStatus(_ context.Context, accountUID, from, to string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	trial, ok := r.trials[accountUID]
	if !ok || trial.Status != from {
		return 0, nil
	}
	trial.Status = to
	r.trials[accountUID] = trial
	return 1, nil
}

func (r *memoryRepo) UpsertSubscription(_ context.Context, sub models.SubscriptionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscriptions[sub.SubscriptionID] = sub
	return nil
}

func (r *memoryRepo) CancelSubscriptionsForAccount(_ context.Context, accountUID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	canceled := 0
	for id, sub := range r.subscriptions {
		if sub.AccountUID == accountUID && sub.Status != models.SubscriptionStatusCanceled {
			sub.Status = models.SubscriptionStatusCanceled
			r.subscriptions[id] = sub
			canceled++
		}
	}
	return canceled, nil
}

func (r *memoryRepo) HasEverSubscribed(_ context.Context, accountUID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sub := range r.subscriptions {
		if sub.AccountUID == accountUID {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryRepo) UpsertDeletionEntry(_ context.Context, entry models.DeletionLedgerEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failLedger {
		return fmt.Errorf("storage.UpsertDeletionEntry: %w", models.ErrHistoryRecordFailed)
	}
	if existing, ok := r.ledger[entry.IdentityKey]; ok {
		entry.TrialWasUsed = entry.TrialWasUsed || existing.TrialWasUsed
		entry.EverSubscribed = entry.EverSubscribed || existing.EverSubscribed
	}
	r.ledger[entry.IdentityKey] = entry
	return nil
}

func (r *memoryRepo) FindDeletionEntry(_ context.Context, identityKey string) (*models.DeletionLedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.ledger[identityKey]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

type mockProvisioner struct {
	mu    sync.Mutex
	calls []string
}

func (m *mockProvisioner) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

func (m *mockProvisioner) Activate(_ context.Context, uid, _ string) error {
	m.record("activate:" + uid)
	return nil
}

func (m *mockProvisioner) Deactivate(_ context.Context, uid string) error {
	m.record("deactivate:" + uid)
	return nil
}

func (m *mockProvisioner) Delete(_ context.Context, uid string) error {
	m.record("delete:" + uid)
	return nil
}

type mockAuditor struct {
	mu         sync.Mutex
	categories []string
}

func (m *mockAuditor) Record(_ context.Context, _ string, category, _ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.categories = append(m.categories, category)
}

func (m *mockAuditor) has(category string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.categories {
		if c == category {
			return true
		}
	}
	return false
}

type mockPublisher struct {
	mu       sync.Mutex
	messages []string
}

func (m *mockPublisher) Publish(routingKey string, _ any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, routingKey)
	return nil
}

type mockMetrics struct {
	mu          sync.Mutex
	transitions []string
	contention  int
}

func (m *mockMetrics) RecordTransition(operation string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = append(m.transitions, operation)
}

func (m *mockMetrics) RecordLockContention() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contention++
}

type fixture struct {
	repo        *memoryRepo
	locks       *locker.MemoryLocker
	provisioner *mockProvisioner
	auditor     *mockAuditor
	publisher   *mockPublisher
	metrics     *mockMetrics
	svc         *lifecycle.Service
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()
	f := &fixture{
		repo:        newMemoryRepo(),
		locks:       locker.NewMemoryLocker(500 * time.Millisecond),
		provisioner: &mockProvisioner{},
		auditor:     &mockAuditor{},
		publisher:   &mockPublisher{},
		metrics:     &mockMetrics{},
	}
	f.svc = lifecycle.NewService(f.repo, f.locks, f.provisioner,
		f.auditor, f.publisher, f.metrics, clock.Fixed{Time: now}, makeLogger())
	return f
}

func TestService_Signup_NewUserGetsTrial(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f := newFixture(t, now)

	result, err := f.svc.Signup(context.Background(), "john.doe@gmail.com", "hash")
	require.NoError(t, err)

	assert.Equal(t, "trial_active", result.NewState)
	assert.False(t, result.ReturningUser)

	trial, err := f.repo.GetTrial(context.Background(), result.AccountUID)
	require.NoError(t, err)
	require.NotNil(t, trial)
	assert.Equal(t, models.TrialStatusActive, trial.Status)
	assert.Equal(t, trial.TrialStart.Add(models.TrialDuration), trial.TrialEnd)

	assert.Contains(t, f.provisioner.calls, "activate:"+result.AccountUID)
	assert.True(t, f.auditor.has(models.AuditCategorySignup))
	assert.Equal(t, []string{"signup"}, f.metrics.transitions)
}

func TestService_Signup_ReturningIdentityWithheldTrial(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f := newFixture(t, now)

	// Идентичность уже числится в журнале удалений.
	key := identity.Normalize("john.doe+old@gmail.com")
	require.NoError(t, f.repo.UpsertDeletionEntry(context.Background(), models.DeletionLedgerEntry{
		IdentityKey:  key,
		TrialWasUsed: true,
		DeletedAt:    now.Add(-30 * 24 * time.Hour),
	}))

	// Алиасный вариант того же адреса сводится к тому же ключу.
	result, err := f.svc.Signup(context.Background(), "JohnDoe+new@gmail.com", "hash")
	require.NoError(t, err)

	assert.True(t, result.ReturningUser)
	assert.Equal(t, "no_trial", result.NewState)
	assert.Contains(t, result.Message, "welcome back")

	trial, err := f.repo.GetTrial(context.Background(), result.AccountUID)
	require.NoError(t, err)
	assert.Nil(t, trial)

	// Повторный пользователь не активируется во внешней системе.
	assert.Empty(t, f.provisioner.calls)
	assert.True(t, f.auditor.has(models.AuditCategoryReturningUserSignup))

	// Пробный период не создавался, переход "signup" не учитывается.
	assert.Equal(t, []string{"returning_user_signup"}, f.metrics.transitions)
}

func TestService_ExpireTrial_BeforeWindowEndIsNoOp(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f := newFixture(t, now)

	result, err := f.svc.Signup(context.Background(), "alice@example.com", "hash")
	require.NoError(t, err)

	expire, err := f.svc.ExpireTrial(context.Background(), result.AccountUID)
	require.NoError(t, err)
	assert.True(t, expire.NoOp)

	trial, _ := f.repo.GetTrial(context.Background(), result.AccountUID)
	assert.Equal(t, models.TrialStatusActive, trial.Status)
}

func TestService_ExpireTrial_ConcurrentCallsTransitionOnce(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	f := newFixture(t, start)

	result, err := f.svc.Signup(context.Background(), "bob@example.com", "hash")
	require.NoError(t, err)

	// Окно истекло: пересобираем сервис с часами за его пределом.
	after := start.Add(models.TrialDuration + time.Hour)
	f.svc = lifecycle.NewService(f.repo, f.locks, f.provisioner,
		f.auditor, f.publisher, f.metrics, clock.Fixed{Time: after}, makeLogger())

	const workers = 8
	results := make(chan *models.TransitionResult, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.ExpireTrial(context.Background(), result.AccountUID)
			assert.NoError(t, err)
			results <- res
		}()
	}
	wg.Wait()
	close(results)

	transitioned := 0
	for res := range results {
		if res != nil && !res.NoOp {
			transitioned++
		}
	}
	assert.Equal(t, 1, transitioned)

	trial, _ := f.repo.GetTrial(context.Background(), result.AccountUID)
	assert.Equal(t, models.TrialStatusExpired, trial.Status)
}

func TestService_ApplySubscriptionEvent_ConvertsActiveTrial(t *testing.T) {
	now := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	f := newFixture(t, now)

	signup, err := f.svc.Signup(context.Background(), "carol@example.com", "hash")
	require.NoError(t, err)

	result, err := f.svc.ApplySubscriptionEvent(context.Background(), models.SubscriptionEvent{
		EventID:          "evt-1",
		EventType:        "subscription.created",
		SubscriptionID:   "sub-1",
		CustomerID:       "cus-1",
		AccountUID:       signup.AccountUID,
		Status:           models.SubscriptionStatusActive,
		CurrentPeriodEnd: now.Add(30 * 24 * time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, "subscription_active", result.NewState)

	trial, _ := f.repo.GetTrial(context.Background(), signup.AccountUID)
	assert.Equal(t, models.TrialStatusConverted, trial.Status)
	assert.True(t, f.auditor.has(models.AuditCategorySubscriptionChange))
}

func TestService_ApplySubscriptionEvent_MissingAccountRejected(t *testing.T) {
	f := newFixture(t, time.Now())

	_, err := f.svc.ApplySubscriptionEvent(context.Background(), models.SubscriptionEvent{
		EventID:        "evt-2",
		SubscriptionID: "sub-2",
	})
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
	assert.True(t, f.auditor.has(models.AuditCategoryRejectedOperation))
}

func TestService_Delete_RecordsHistoryAndCleansUp(t *testing.T) {
	now := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	f := newFixture(t, now)

	signup, err := f.svc.Signup(context.Background(), "dave@example.com", "hash")
	require.NoError(t, err)
	_, err = f.svc.ApplySubscriptionEvent(context.Background(), models.SubscriptionEvent{
		EventID:        "evt-3",
		SubscriptionID: "sub-3",
		AccountUID:     signup.AccountUID,
		Status:         models.SubscriptionStatusActive,
	})
	require.NoError(t, err)

	result, err := f.svc.Delete(context.Background(), signup.AccountUID, "user request")
	require.NoError(t, err)
	assert.Equal(t, "deleted", result.NewState)

	entry, err := f.repo.FindDeletionEntry(context.Background(), identity.Normalize("dave@example.com"))
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.True(t, entry.TrialWasUsed)
	assert.True(t, entry.EverSubscribed)
	assert.Equal(t, signup.AccountUID, entry.OriginalAccountUID)

	_, err = f.repo.GetAccount(context.Background(), signup.AccountUID)
	assert.ErrorIs(t, err, models.ErrAccountNotFound)

	assert.Contains(t, f.provisioner.calls, "deactivate:"+signup.AccountUID)
	assert.Contains(t, f.provisioner.calls, "delete:"+signup.AccountUID)
	assert.Contains(t, f.publisher.messages, "account_deleted")
}

func TestService_Delete_AbortsWhenHistoryWriteFails(t *testing.T) {
	now := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	f := newFixture(t, now)

	signup, err := f.svc.Signup(context.Background(), "erin@example.com", "hash")
	require.NoError(t, err)

	f.repo.failLedger = true
	_, err = f.svc.Delete(context.Background(), signup.AccountUID, "user request")
	assert.ErrorIs(t, err, models.ErrHistoryRecordFailed)

	// Аккаунт остаётся живым, внешняя зачистка не вызывалась.
	acc, err := f.repo.GetAccount(context.Background(), signup.AccountUID)
	require.NoError(t, err)
	assert.False(t, acc.IsDeleted)
	for _, call := range f.provisioner.calls {
		assert.NotContains(t, call, "delete:")
	}
}

func TestService_SignupAfterDelete_FullCycle(t *testing.T) {
	now := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	f := newFixture(t, now)

	first, err := f.svc.Signup(context.Background(), "frank@gmail.com", "hash")
	require.NoError(t, err)
	_, err = f.svc.Delete(context.Background(), first.AccountUID, "leaving")
	require.NoError(t, err)

	// Повторная регистрация с точечным алиасом того же ящика.
	second, err := f.svc.Signup(context.Background(), "f.r.a.n.k@gmail.com", "hash")
	require.NoError(t, err)
	assert.True(t, second.ReturningUser)
	assert.NotEqual(t, first.AccountUID, second.AccountUID)

	trial, _ := f.repo.GetTrial(context.Background(), second.AccountUID)
	assert.Nil(t, trial)
}

func TestService_LockContention(t *testing.T) {
	now := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	f := newFixture(t, now)
	f.locks = locker.NewMemoryLocker(50 * time.Millisecond)
	f.svc = lifecycle.NewService(f.repo, f.locks, f.provisioner,
		f.auditor, f.publisher, f.metrics, clock.Fixed{Time: now}, makeLogger())

	signup, err := f.svc.Signup(context.Background(), "grace@example.com", "hash")
	require.NoError(t, err)

	release, err := f.locks.Acquire(context.Background(), signup.AccountUID)
	require.NoError(t, err)
	defer release()

	_, err = f.svc.ExpireTrial(context.Background(), signup.AccountUID)
	assert.ErrorIs(t, err, models.ErrConcurrentOperation)
	assert.Equal(t, 1, f.metrics.contention)
	assert.True(t, f.auditor.has(models.AuditCategoryLockContention))
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (discardHandler) WithAttrs([]slog.Attr) slog.Handler        { return discardHandler{} }
func (discardHandler) WithGroup(string) slog.Handler             { return discardHandler{} }

func makeLogger() *slog.Logger {
	return slog.New(discardHandler{})
}
