package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"security-service/internal/client"
	"security-service/internal/models"
	"security-service/internal/ratelimit"
	"security-service/internal/service"
	"security-service/internal/util"
)

// BreachReader serves recent breach records.
type BreachReader interface {
	RecentForDate(ctx context.Context, dateBucket string, limit int) ([]*models.BreachRecord, error)
}

// EventSearcher serves the investigation search index.
type EventSearcher interface {
	SearchEvents(ctx context.Context, params client.EventSearchParams) ([]models.SecurityEvent, error)
}

// SecurityHandler exposes the abuse-detection subsystem to sibling services.
type SecurityHandler struct {
	recorder *service.Recorder
	counter  *ratelimit.DistributedCounter
	breaches BreachReader
	searcher EventSearcher
	logger   *zap.Logger
}

func NewSecurityHandler(
	recorder *service.Recorder,
	counter *ratelimit.DistributedCounter,
	breaches BreachReader,
	searcher EventSearcher,
	logger *zap.Logger,
) *SecurityHandler {
	return &SecurityHandler{
		recorder: recorder,
		counter:  counter,
		breaches: breaches,
		searcher: searcher,
		logger:   logger,
	}
}

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

func successResponse(data interface{}, message string) Response {
	return Response{
		Success: true,
		Data:    data,
		Message: message,
	}
}

func errorResponse(err error, message string) Response {
	return Response{
		Success: false,
		Error:   err.Error(),
		Message: message,
	}
}

// RegisterRoutes registers all security routes
func (h *SecurityHandler) RegisterRoutes(router chi.Router) {
	router.Route("/ratelimit", func(r chi.Router) {
		r.Post("/check", h.CheckRateLimit)
	})

	router.Route("/events", func(r chi.Router) {
		r.Post("/", h.RecordEvent)
		r.Get("/search", h.SearchEvents)
	})

	router.Route("/breaches", func(r chi.Router) {
		r.Get("/recent", h.RecentBreaches)
	})
}

// CheckRateLimitRequest asks for one check of a named profile.
type CheckRateLimitRequest struct {
	Profile    string `json:"profile"`
	Identifier string `json:"identifier"`
}

// CheckRateLimit performs one distributed rate limit check. A blocked check
// renders the standard 429 so callers can relay it verbatim.
func (h *SecurityHandler) CheckRateLimit(w http.ResponseWriter, r *http.Request) {
	var req CheckRateLimitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if req.Identifier == "" {
		h.respondWithError(w, http.StatusBadRequest, fmt.Errorf("identifier is required"), "Invalid request")
		return
	}

	profile, ok := ratelimit.ProfileByName(req.Profile)
	if !ok {
		h.respondWithError(w, http.StatusBadRequest, fmt.Errorf("unknown profile %q", req.Profile), "Invalid request")
		return
	}

	result := h.counter.CheckProfile(r.Context(), profile, req.Identifier)
	if !result.Allowed {
		ratelimit.BuildThrottledResponse(result).WriteHTTP(w)
		return
	}

	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.Reset, 10))
	h.respondWithJSON(w, http.StatusOK, successResponse(result, "Check passed"))
}

// RecordEventRequest carries one security event from a sibling service.
// Fields beyond event_type are optional; type-specific defaults fill the
// rest.
type RecordEventRequest struct {
	EventType    string            `json:"event_type"`
	Severity     string            `json:"severity"`
	TenantID     string            `json:"tenant_id"`
	UserID       string            `json:"user_id"`
	IPAddress    string            `json:"ip_address"`
	UserAgent    string            `json:"user_agent"`
	ResourceType string            `json:"resource_type"`
	ResourceID   string            `json:"resource_id"`
	Description  string            `json:"description"`
	Metadata     map[string]string `json:"metadata"`
	ScopeKey     string            `json:"scope_key"`
	RecordCount  int               `json:"record_count"`
	Token        string            `json:"token"`
	Reason       string            `json:"reason"`
}

// RecordEvent records one security event. Recording failures surface as
// recorded=false, never as an error status: the caller's operation must not
// depend on audit availability.
func (h *SecurityHandler) RecordEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var req RecordEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	eventType := models.EventType(req.EventType)
	if !eventType.Valid() {
		h.respondWithError(w, http.StatusBadRequest, fmt.Errorf("unknown event type %q", req.EventType), "Invalid request")
		return
	}

	recorded := h.dispatchRecord(ctx, eventType, &req)

	h.respondWithJSON(w, http.StatusOK, successResponse(map[string]bool{"recorded": recorded}, "Event processed"))
	h.logger.Debug("Security event received via HTTP",
		util.String("event_type", req.EventType),
		util.Bool("recorded", recorded),
		util.Duration("duration", time.Since(startTime)),
	)
}

func (h *SecurityHandler) dispatchRecord(ctx context.Context, eventType models.EventType, req *RecordEventRequest) bool {
	switch eventType {
	case models.EventAuthFailure:
		return h.recorder.RecordAuthFailure(ctx, service.AuthFailureInput{
			TenantID:  req.TenantID,
			UserID:    req.UserID,
			IPAddress: req.IPAddress,
			UserAgent: req.UserAgent,
			Reason:    req.Reason,
		})
	case models.EventBulkDataAccess:
		return h.recorder.RecordBulkDataAccess(ctx, service.BulkDataAccessInput{
			TenantID:     req.TenantID,
			UserID:       req.UserID,
			IPAddress:    req.IPAddress,
			ResourceType: req.ResourceType,
			RecordCount:  req.RecordCount,
		})
	case models.EventShareBruteForce:
		return h.recorder.RecordShareBruteForce(ctx, service.ShareBruteForceInput{
			TenantID:  req.TenantID,
			IPAddress: req.IPAddress,
			UserAgent: req.UserAgent,
			Token:     req.Token,
		})
	case models.EventDataExport:
		return h.recorder.RecordDataExport(ctx, service.DataExportInput{
			TenantID:     req.TenantID,
			UserID:       req.UserID,
			IPAddress:    req.IPAddress,
			ResourceType: req.ResourceType,
			RecordCount:  req.RecordCount,
		})
	}

	severity := models.Severity(req.Severity)
	if severity == "" {
		severity = defaultSeverity(eventType)
	}
	scopeKey := req.ScopeKey
	if scopeKey == "" {
		scopeKey = models.ScopeKey(req.TenantID, req.IPAddress)
	}

	return h.recorder.Record(ctx, &models.SecurityEvent{
		EventType:    eventType,
		Severity:     severity,
		ScopeKey:     scopeKey,
		TenantID:     optionalField(req.TenantID),
		UserID:       optionalField(req.UserID),
		IPAddress:    optionalField(req.IPAddress),
		UserAgent:    optionalField(req.UserAgent),
		ResourceType: optionalField(req.ResourceType),
		ResourceID:   optionalField(req.ResourceID),
		Description:  req.Description,
		Metadata:     req.Metadata,
	})
}

func defaultSeverity(eventType models.EventType) models.Severity {
	switch eventType {
	case models.EventTokenCompromise:
		return models.SeverityCritical
	case models.EventDataExport:
		return models.SeverityInfo
	default:
		return models.SeverityWarning
	}
}

// SearchEvents queries the investigation index.
func (h *SecurityHandler) SearchEvents(w http.ResponseWriter, r *http.Request) {
	if h.searcher == nil {
		h.respondWithError(w, http.StatusServiceUnavailable, fmt.Errorf("event search is not configured"), "Search unavailable")
		return
	}

	params := client.EventSearchParams{
		EventType: r.URL.Query().Get("event_type"),
		TenantID:  r.URL.Query().Get("tenant_id"),
		ScopeKey:  r.URL.Query().Get("scope_key"),
	}
	if sinceStr := r.URL.Query().Get("since"); sinceStr != "" {
		since, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			h.respondWithError(w, http.StatusBadRequest, err, "Invalid since timestamp, expected RFC3339")
			return
		}
		params.Since = since
	}
	if sizeStr := r.URL.Query().Get("size"); sizeStr != "" {
		if size, err := strconv.Atoi(sizeStr); err == nil {
			params.Size = size
		}
	}

	events, err := h.searcher.SearchEvents(r.Context(), params)
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, err, "Failed to search events")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(events, "Events retrieved"))
}

// RecentBreaches lists breach records for one UTC date (default today).
func (h *SecurityHandler) RecentBreaches(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = time.Now().UTC().Format("2006-01-02")
	} else if _, err := time.Parse("2006-01-02", date); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid date, expected YYYY-MM-DD")
		return
	}

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil {
			limit = parsed
		}
	}

	records, err := h.breaches.RecentForDate(r.Context(), date, limit)
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, err, "Failed to load breach records")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(records, "Breach records retrieved"))
}

func (h *SecurityHandler) respondWithJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("Failed to encode response", util.ErrorField(err))
	}
}

func (h *SecurityHandler) respondWithError(w http.ResponseWriter, status int, err error, message string) {
	h.respondWithJSON(w, status, errorResponse(err, message))
}

func optionalField(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
