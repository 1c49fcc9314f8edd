package cli

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/lakegate/internal/core/domain"
)

// mockCoordinator implements driving.Coordinator.
type mockCoordinator struct {
	result  *domain.BatchResult
	err     error
	gotKeys []string
	ranAll  bool
}

func (m *mockCoordinator) RunBatch(_ context.Context, keys []string) (*domain.BatchResult, error) {
	m.gotKeys = keys
	return m.result, m.err
}

func (m *mockCoordinator) Run(_ context.Context) (*domain.BatchResult, error) {
	m.ranAll = true
	return m.result, m.err
}

// mockValidator implements driving.Validator.
type mockValidator struct {
	verdict domain.Verdict
	err     error
}

func (m *mockValidator) Validate(_ context.Context, _ string) (domain.Verdict, error) {
	return m.verdict, m.err
}

// mockRouter implements driving.Router.
type mockRouter struct {
	report domain.ReconcileReport
	err    error
}

func (m *mockRouter) Route(_ context.Context, key string, _ domain.Verdict) (domain.RoutingOutcome, error) {
	return domain.RoutingOutcome{SourceKey: key}, nil
}

func (m *mockRouter) Reconcile(_ context.Context) (domain.ReconcileReport, error) {
	return m.report, m.err
}

// mockHistory implements driving.RunHistory.
type mockHistory struct {
	runs []domain.RunRecord
	err  error
}

func (m *mockHistory) List(_ context.Context, limit int) ([]domain.RunRecord, error) {
	if limit > 0 && len(m.runs) > limit {
		return m.runs[:limit], m.err
	}
	return m.runs, m.err
}

func (m *mockHistory) Get(_ context.Context, runID string) (*domain.RunRecord, error) {
	for i := range m.runs {
		if m.runs[i].RunID == runID {
			return &m.runs[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

// mockScheduler implements driving.Scheduler. Start blocks until ctx is done.
type mockScheduler struct {
	mu       sync.Mutex
	started  chan struct{}
	stopped  bool
	triggers int
}

func newMockScheduler() *mockScheduler {
	return &mockScheduler{started: make(chan struct{})}
}

func (m *mockScheduler) Start(ctx context.Context) error {
	close(m.started)
	<-ctx.Done()
	return ctx.Err()
}

func (m *mockScheduler) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	return nil
}

func (m *mockScheduler) Trigger() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.triggers++
}

func (m *mockScheduler) triggerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.triggers
}

// mockCatalog implements driven.CatalogReader.
type mockCatalog struct {
	tables  []domain.CatalogTable
	changes []domain.SchemaChange
}

func (m *mockCatalog) Tables(_ context.Context) ([]domain.CatalogTable, error) {
	return m.tables, nil
}

func (m *mockCatalog) SchemaChanges(_ context.Context, _ time.Time) ([]domain.SchemaChange, error) {
	return m.changes, nil
}

// useServices installs s for the duration of the test.
func useServices(t *testing.T, s *Services) {
	t.Helper()
	old := services
	services = s
	t.Cleanup(func() { services = old })
}

// execute runs the root command with args and returns its output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetContext(context.Background())
	})
	err := rootCmd.Execute()
	return buf.String(), err
}

func sampleBatch() *domain.BatchResult {
	started := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	failed := domain.FailedVerdict(domain.CheckRecordRules, "record 2: email does not match")
	return &domain.BatchResult{
		RunID:          "3b1f6a0c-1111-2222-3333-444455556666",
		StartedAt:      started,
		EndedAt:        started.Add(1500 * time.Millisecond),
		BatchTimestamp: "2024/03/01/090000",
		Curated: []domain.ItemResult{{
			Key: "raw/orders.json", State: domain.StateCurated,
			CuratedLocation: "curated/2024/03/01/090000/year=2024/month=03/orders.jsonl",
		}},
		Quarantined: []domain.ItemResult{{
			Key: "raw/users.json", State: domain.StateQuarantined, Verdict: &failed,
			Routing: &domain.RoutingOutcome{DestinationKey: "quarantine/users.json", Zone: domain.ZoneQuarantine},
		}},
	}
}

func requireContains(t *testing.T, out string, parts ...string) {
	t.Helper()
	for _, p := range parts {
		require.Contains(t, out, p)
	}
}
