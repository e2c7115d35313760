package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"security-service/internal/bucketing"
	"security-service/internal/client"
	"security-service/internal/config"
	"security-service/internal/models"
	"security-service/internal/ratelimit"
	"security-service/internal/service"
)

type memoryEventStore struct {
	mu     sync.Mutex
	events []*models.SecurityEvent
}

func (s *memoryEventStore) Insert(ctx context.Context, event *models.SecurityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *memoryEventStore) last(t *testing.T) *models.SecurityEvent {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.events)
	return s.events[len(s.events)-1]
}

type memoryBreachReader struct {
	records []*models.BreachRecord
	err     error
	gotDate string
}

func (r *memoryBreachReader) RecentForDate(ctx context.Context, dateBucket string, limit int) ([]*models.BreachRecord, error) {
	r.gotDate = dateBucket
	return r.records, r.err
}

func newTestHandler(store *memoryEventStore, breaches BreachReader, searcher EventSearcher) *SecurityHandler {
	buckets := bucketing.NewManager(config.Get())
	recorder := service.NewRecorder(store, nil, nil, buckets, zap.NewNop())
	counter := ratelimit.NewDistributedCounter(nil, nil, zap.NewNop())
	return NewSecurityHandler(recorder, counter, breaches, searcher, zap.NewNop())
}

func serveHandler(h *SecurityHandler) http.Handler {
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func postJSON(t *testing.T, handler http.Handler, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRecordEventAuthFailure(t *testing.T) {
	store := &memoryEventStore{}
	h := serveHandler(newTestHandler(store, &memoryBreachReader{}, nil))

	rec := postJSON(t, h, "/events/", RecordEventRequest{
		EventType: "auth_failure",
		TenantID:  "tenant-1",
		IPAddress: "10.0.0.1",
		Reason:    "invalid password",
	})

	require.Equal(t, http.StatusOK, rec.Code)

	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Success)

	event := store.last(t)
	assert.Equal(t, models.EventAuthFailure, event.EventType)
	assert.Equal(t, "tenant-1|10.0.0.1", event.ScopeKey)
	assert.Equal(t, "invalid password", event.Description)
}

func TestRecordEventUnknownType(t *testing.T) {
	h := serveHandler(newTestHandler(&memoryEventStore{}, &memoryBreachReader{}, nil))

	rec := postJSON(t, h, "/events/", RecordEventRequest{EventType: "nonsense"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecordEventGenericTypeDefaults(t *testing.T) {
	store := &memoryEventStore{}
	h := serveHandler(newTestHandler(store, &memoryBreachReader{}, nil))

	rec := postJSON(t, h, "/events/", RecordEventRequest{
		EventType: "token_compromise",
		TenantID:  "tenant-1",
		IPAddress: "10.0.0.1",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	event := store.last(t)
	assert.Equal(t, models.EventTokenCompromise, event.EventType)
	assert.Equal(t, models.SeverityCritical, event.Severity)
	assert.Equal(t, "tenant-1|10.0.0.1", event.ScopeKey)
}

func TestCheckRateLimit(t *testing.T) {
	h := serveHandler(newTestHandler(&memoryEventStore{}, &memoryBreachReader{}, nil))

	for i := 0; i < ratelimit.ProfileAuth.Limit; i++ {
		rec := postJSON(t, h, "/ratelimit/check", CheckRateLimitRequest{Profile: "auth", Identifier: "10.0.0.1"})
		require.Equal(t, http.StatusOK, rec.Code, "check %d", i+1)
		assert.Equal(t, "5", rec.Header().Get("X-RateLimit-Limit"))
	}

	rec := postJSON(t, h, "/ratelimit/check", CheckRateLimitRequest{Profile: "auth", Identifier: "10.0.0.1"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestCheckRateLimitValidation(t *testing.T) {
	h := serveHandler(newTestHandler(&memoryEventStore{}, &memoryBreachReader{}, nil))

	rec := postJSON(t, h, "/ratelimit/check", CheckRateLimitRequest{Profile: "nonexistent", Identifier: "10.0.0.1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, h, "/ratelimit/check", CheckRateLimitRequest{Profile: "auth"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecentBreachesDefaultsToToday(t *testing.T) {
	reader := &memoryBreachReader{records: []*models.BreachRecord{}}
	h := serveHandler(newTestHandler(&memoryEventStore{}, reader, nil))

	req := httptest.NewRequest(http.MethodGet, "/breaches/recent", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2}$`, reader.gotDate)
}

func TestRecentBreachesRejectsBadDate(t *testing.T) {
	h := serveHandler(newTestHandler(&memoryEventStore{}, &memoryBreachReader{}, nil))

	req := httptest.NewRequest(http.MethodGet, "/breaches/recent?date=not-a-date", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchEventsUnavailableWithoutIndex(t *testing.T) {
	h := serveHandler(newTestHandler(&memoryEventStore{}, &memoryBreachReader{}, nil))

	req := httptest.NewRequest(http.MethodGet, "/events/search?event_type=auth_failure", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type stubSearcher struct {
	params client.EventSearchParams
	events []models.SecurityEvent
}

func (s *stubSearcher) SearchEvents(ctx context.Context, params client.EventSearchParams) ([]models.SecurityEvent, error) {
	s.params = params
	return s.events, nil
}

func TestSearchEventsPassesParams(t *testing.T) {
	searcher := &stubSearcher{events: []models.SecurityEvent{{EventType: models.EventAuthFailure}}}
	h := serveHandler(newTestHandler(&memoryEventStore{}, &memoryBreachReader{}, searcher))

	req := httptest.NewRequest(http.MethodGet, "/events/search?event_type=auth_failure&tenant_id=tenant-1&size=25", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "auth_failure", searcher.params.EventType)
	assert.Equal(t, "tenant-1", searcher.params.TenantID)
	assert.Equal(t, 25, searcher.params.Size)
}
