package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/custodia-labs/lakegate/internal/core/domain"
	"github.com/custodia-labs/lakegate/internal/core/ports/driven"
)

// --- Mock implementations for pipeline testing ---

// mockBlobStore implements driven.BlobStore over a map with injectable failures.
type mockBlobStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	getErr    map[string]error
	copyErr   map[string]error
	deleteErr map[string]error
	listErr   error
	copies    int
}

func newMockBlobStore() *mockBlobStore {
	return &mockBlobStore{
		objects:   make(map[string][]byte),
		getErr:    make(map[string]error),
		copyErr:   make(map[string]error),
		deleteErr: make(map[string]error),
	}
}

func (m *mockBlobStore) put(key, data string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = []byte(data)
}

func (m *mockBlobStore) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

func (m *mockBlobStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.getErr[key]; err != nil {
		return nil, err
	}
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, key)
	}
	return append([]byte(nil), data...), nil
}

func (m *mockBlobStore) Put(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
	return nil
}

func (m *mockBlobStore) Copy(_ context.Context, src, dst string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.copyErr[src]; err != nil {
		return err
	}
	data, ok := m.objects[src]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, src)
	}
	m.objects[dst] = append([]byte(nil), data...)
	m.copies++
	return nil
}

func (m *mockBlobStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.deleteErr[key]; err != nil {
		return err
	}
	if _, ok := m.objects[key]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, key)
	}
	delete(m.objects, key)
	return nil
}

func (m *mockBlobStore) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *mockBlobStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok, nil
}

// mockCheck implements driven.Check and counts invocations.
type mockCheck struct {
	name  domain.CheckName
	run   func(ds *domain.Dataset) (domain.CheckResult, error)
	calls atomic.Int32
}

func passCheck(name domain.CheckName) *mockCheck {
	return &mockCheck{name: name, run: func(*domain.Dataset) (domain.CheckResult, error) {
		return domain.Pass(), nil
	}}
}

func resultCheck(name domain.CheckName, result domain.CheckResult) *mockCheck {
	return &mockCheck{name: name, run: func(*domain.Dataset) (domain.CheckResult, error) {
		return result, nil
	}}
}

func (m *mockCheck) Name() domain.CheckName { return m.name }

func (m *mockCheck) Run(_ context.Context, ds *domain.Dataset) (domain.CheckResult, error) {
	m.calls.Add(1)
	return m.run(ds)
}

// mockNotifier implements driven.Notifier and records messages.
type mockNotifier struct {
	mu       sync.Mutex
	messages []publishedMessage
	err      error
}

type publishedMessage struct {
	topic, subject, message string
}

func (m *mockNotifier) Publish(_ context.Context, topic, subject, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, publishedMessage{topic, subject, message})
	return nil
}

func (m *mockNotifier) published() []publishedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]publishedMessage(nil), m.messages...)
}

// mockCurator implements driven.Curator by writing a deterministic curated copy.
type mockCurator struct {
	store    *mockBlobStore
	prefixes domain.Prefixes
	err      error

	mu    sync.Mutex
	calls map[string]int
}

func newMockCurator(store *mockBlobStore, prefixes domain.Prefixes) *mockCurator {
	return &mockCurator{store: store, prefixes: prefixes, calls: make(map[string]int)}
}

func (m *mockCurator) EnrichAndCurate(ctx context.Context, stagedKey string, _ time.Time) (string, error) {
	m.mu.Lock()
	m.calls[stagedKey]++
	m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	data, err := m.store.Get(ctx, stagedKey)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrTransform, err)
	}
	dst := m.prefixes.Relocate(stagedKey, domain.ZoneCurated)
	return dst, m.store.Put(ctx, dst, data)
}

func (m *mockCurator) CuratedLocation(ctx context.Context, stagedKey string) (string, error) {
	dst := m.prefixes.Relocate(stagedKey, domain.ZoneCurated)
	if ok, _ := m.store.Exists(ctx, dst); ok {
		return dst, nil
	}
	return "", nil
}

func (m *mockCurator) callsFor(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[key]
}

// mockCatalog implements driven.Catalog.
type mockCatalog struct {
	refreshes atomic.Int32
	target    string
	err       error
}

func (m *mockCatalog) Refresh(_ context.Context, target string) error {
	m.refreshes.Add(1)
	m.target = target
	return m.err
}

// mockMonitor implements driven.Monitor.
type mockMonitor struct {
	observed []*domain.BatchResult
	err      error
}

func (m *mockMonitor) Observe(_ context.Context, result *domain.BatchResult) error {
	m.observed = append(m.observed, result)
	return m.err
}

// mockRunStore implements driven.RunStore.
type mockRunStore struct {
	mu      sync.Mutex
	runs    []domain.RunRecord
	pruned  int
	stale   map[string]domain.StaleSource
	cleared []string
}

func (m *mockRunStore) SaveRun(_ context.Context, run *domain.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, *run)
	for _, item := range run.Items {
		if item.StaleDigest == "" {
			continue
		}
		if m.stale == nil {
			m.stale = make(map[string]domain.StaleSource)
		}
		m.stale[item.Key] = domain.StaleSource{Key: item.Key, Digest: item.StaleDigest, RunID: run.RunID}
	}
	return nil
}

func (m *mockRunStore) StaleSources(_ context.Context) ([]domain.StaleSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.StaleSource, 0, len(m.stale))
	for _, src := range m.stale {
		out = append(out, src)
	}
	return out, nil
}

func (m *mockRunStore) ClearStaleSource(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.stale, key)
	m.cleared = append(m.cleared, key)
	return nil
}

func (m *mockRunStore) GetRun(_ context.Context, runID string) (*domain.RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.runs {
		if m.runs[i].RunID == runID {
			run := m.runs[i]
			return &run, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockRunStore) ListRuns(_ context.Context, limit int) ([]domain.RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	runs := append([]domain.RunRecord(nil), m.runs...)
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (m *mockRunStore) PruneRuns(_ context.Context, keep int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruned = keep
	return nil
}

// mockIngestor implements driven.Ingestor by landing fixed objects.
type mockIngestor struct {
	store   *mockBlobStore
	objects map[string]string
	err     error
}

func (m *mockIngestor) Name() string { return "mock" }

func (m *mockIngestor) Ingest(_ context.Context, _ time.Time) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	keys := make([]string, 0, len(m.objects))
	for k, v := range m.objects {
		m.store.put(k, v)
		keys = append(keys, k)
	}
	return keys, nil
}

// Ensure mocks implement interfaces
var (
	_ driven.BlobStore = (*mockBlobStore)(nil)
	_ driven.Check     = (*mockCheck)(nil)
	_ driven.Notifier  = (*mockNotifier)(nil)
	_ driven.Curator   = (*mockCurator)(nil)
	_ driven.Catalog   = (*mockCatalog)(nil)
	_ driven.Monitor   = (*mockMonitor)(nil)
	_ driven.RunStore  = (*mockRunStore)(nil)
	_ driven.Ingestor  = (*mockIngestor)(nil)
)
