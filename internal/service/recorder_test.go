package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"security-service/internal/bucketing"
	"security-service/internal/config"
	"security-service/internal/models"
)

type fakeEventStore struct {
	mu     sync.Mutex
	events []*models.SecurityEvent
	err    error
}

func (s *fakeEventStore) Insert(ctx context.Context, event *models.SecurityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func (s *fakeEventStore) last(t *testing.T) *models.SecurityEvent {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.events)
	return s.events[len(s.events)-1]
}

type fakeIndexer struct {
	indexed chan *models.SecurityEvent
}

func (i *fakeIndexer) IndexEvent(ctx context.Context, event *models.SecurityEvent) error {
	i.indexed <- event
	return nil
}

type fakeDispatcher struct {
	evaluated chan *models.SecurityEvent
}

func (d *fakeDispatcher) Evaluate(ctx context.Context, eventType models.EventType, scopeKey string, event *models.SecurityEvent) {
	d.evaluated <- event
}

func testBuckets() *bucketing.Manager {
	return bucketing.NewManager(config.Get())
}

func newTestRecorder(store EventStore, indexer EventIndexer, evaluator AnomalyDispatcher) *Recorder {
	return NewRecorder(store, indexer, evaluator, testBuckets(), zap.NewNop())
}

func waitFor[T any](t *testing.T, ch chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for background dispatch")
		panic("unreachable")
	}
}

func TestRecordNormalizesEvent(t *testing.T) {
	store := &fakeEventStore{}
	r := newTestRecorder(store, nil, nil)

	empty := ""
	tenant := "tenant-1"
	ok := r.Record(context.Background(), &models.SecurityEvent{
		EventType: models.EventAuthFailure,
		Severity:  models.SeverityWarning,
		ScopeKey:  "tenant-1|10.0.0.1",
		TenantID:  &tenant,
		UserID:    &empty,
	})

	require.True(t, ok)
	event := store.last(t)
	assert.Nil(t, event.UserID, "empty optional should become nil")
	require.NotNil(t, event.TenantID)
	assert.Equal(t, "tenant-1", *event.TenantID)
	assert.NotNil(t, event.Metadata)
	assert.False(t, event.RecordedAt.IsZero())
	assert.Equal(t, time.UTC, event.RecordedAt.Location())
}

func TestRecordRejectsMalformedEvents(t *testing.T) {
	store := &fakeEventStore{}
	r := newTestRecorder(store, nil, nil)

	cases := []struct {
		name  string
		event *models.SecurityEvent
	}{
		{"nil event", nil},
		{"unknown type", &models.SecurityEvent{EventType: "nonsense", Severity: models.SeverityInfo, ScopeKey: "k"}},
		{"unknown severity", &models.SecurityEvent{EventType: models.EventAuthFailure, Severity: "urgent", ScopeKey: "k"}},
		{"missing scope", &models.SecurityEvent{EventType: models.EventAuthFailure, Severity: models.SeverityInfo}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.False(t, r.Record(context.Background(), tc.event))
		})
	}
	assert.Empty(t, store.events)
}

func TestRecordReturnsFalseOnStoreError(t *testing.T) {
	store := &fakeEventStore{err: errors.New("insert failed")}
	r := newTestRecorder(store, nil, nil)

	ok := r.Record(context.Background(), &models.SecurityEvent{
		EventType: models.EventAuthFailure,
		Severity:  models.SeverityWarning,
		ScopeKey:  "tenant-1|10.0.0.1",
	})

	assert.False(t, ok)
}

func TestRecordDispatchesIndexAndEvaluation(t *testing.T) {
	store := &fakeEventStore{}
	indexer := &fakeIndexer{indexed: make(chan *models.SecurityEvent, 1)}
	dispatcher := &fakeDispatcher{evaluated: make(chan *models.SecurityEvent, 1)}
	r := newTestRecorder(store, indexer, dispatcher)

	ok := r.Record(context.Background(), &models.SecurityEvent{
		EventType: models.EventAuthFailure,
		Severity:  models.SeverityWarning,
		ScopeKey:  "tenant-1|10.0.0.1",
	})
	require.True(t, ok)

	indexed := waitFor(t, indexer.indexed)
	assert.Equal(t, models.EventAuthFailure, indexed.EventType)

	evaluated := waitFor(t, dispatcher.evaluated)
	assert.Equal(t, "tenant-1|10.0.0.1", evaluated.ScopeKey)
}

func TestRecordStoreErrorSkipsDispatch(t *testing.T) {
	store := &fakeEventStore{err: errors.New("insert failed")}
	dispatcher := &fakeDispatcher{evaluated: make(chan *models.SecurityEvent, 1)}
	r := newTestRecorder(store, nil, dispatcher)

	r.Record(context.Background(), &models.SecurityEvent{
		EventType: models.EventAuthFailure,
		Severity:  models.SeverityWarning,
		ScopeKey:  "tenant-1|10.0.0.1",
	})

	select {
	case <-dispatcher.evaluated:
		t.Fatal("evaluation should not run for unrecorded events")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRecordAuthFailureDefaults(t *testing.T) {
	store := &fakeEventStore{}
	r := newTestRecorder(store, nil, nil)

	ok := r.RecordAuthFailure(context.Background(), AuthFailureInput{
		TenantID:  "tenant-1",
		IPAddress: "10.0.0.1",
	})

	require.True(t, ok)
	event := store.last(t)
	assert.Equal(t, models.EventAuthFailure, event.EventType)
	assert.Equal(t, models.SeverityWarning, event.Severity)
	assert.Equal(t, "tenant-1|10.0.0.1", event.ScopeKey)
	assert.Equal(t, "Authentication failed", event.Description)
	assert.Nil(t, event.UserID)
}

func TestRecordBulkDataAccessSeverity(t *testing.T) {
	cases := []struct {
		records  int
		severity models.Severity
	}{
		{999, models.SeverityWarning},
		{1000, models.SeverityWarning},
		{1001, models.SeverityCritical},
	}

	for _, tc := range cases {
		store := &fakeEventStore{}
		r := newTestRecorder(store, nil, nil)

		ok := r.RecordBulkDataAccess(context.Background(), BulkDataAccessInput{
			TenantID:    "tenant-1",
			IPAddress:   "10.0.0.1",
			RecordCount: tc.records,
		})

		require.True(t, ok)
		event := store.last(t)
		assert.Equal(t, tc.severity, event.Severity, "record count %d", tc.records)
		assert.Equal(t, models.EventBulkDataAccess, event.EventType)
	}
}

func TestRecordShareBruteForceTruncatesToken(t *testing.T) {
	store := &fakeEventStore{}
	r := newTestRecorder(store, nil, nil)

	ok := r.RecordShareBruteForce(context.Background(), ShareBruteForceInput{
		TenantID:  "tenant-1",
		IPAddress: "10.0.0.1",
		Token:     "abcdefghijklmnop",
	})

	require.True(t, ok)
	event := store.last(t)
	assert.Contains(t, event.Description, "abcdefgh...")
	assert.NotContains(t, event.Description, "ijklmnop")
	require.NotNil(t, event.ResourceID)
	assert.Equal(t, "abcdefghijklmnop", *event.ResourceID, "resource ID keeps the full token for correlation")
}

func TestRecordDataExportAlwaysInfo(t *testing.T) {
	store := &fakeEventStore{}
	r := newTestRecorder(store, nil, nil)

	ok := r.RecordDataExport(context.Background(), DataExportInput{
		TenantID:    "tenant-1",
		IPAddress:   "10.0.0.1",
		RecordCount: 500_000,
	})

	require.True(t, ok)
	assert.Equal(t, models.SeverityInfo, store.last(t).Severity)
}

func TestRecordRateLimitExceededScopeKey(t *testing.T) {
	store := &fakeEventStore{}
	r := newTestRecorder(store, nil, nil)

	ok := r.RecordRateLimitExceeded(context.Background(), "auth:10.0.0.1")

	require.True(t, ok)
	event := store.last(t)
	assert.Equal(t, models.EventRateLimitExceeded, event.EventType)
	assert.Equal(t, "auth:10.0.0.1", event.ScopeKey)
	assert.Equal(t, "auth:10.0.0.1", event.Metadata["identifier"])
}
