package ratelimit

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildThrottledResponse(t *testing.T) {
	reset := time.Now().Unix() + 45
	resp := BuildThrottledResponse(Result{Allowed: false, Limit: 10, Remaining: 0, Reset: reset, Count: 11})

	assert.Equal(t, http.StatusTooManyRequests, resp.Status)
	assert.Equal(t, "10", resp.Headers["X-RateLimit-Limit"])
	assert.Equal(t, "0", resp.Headers["X-RateLimit-Remaining"])
	assert.Equal(t, strconv.FormatInt(reset, 10), resp.Headers["X-RateLimit-Reset"])

	retryAfter, err := strconv.Atoi(resp.Headers["Retry-After"])
	require.NoError(t, err)
	assert.InDelta(t, 45, retryAfter, 2)

	assert.Equal(t, "Too Many Requests", resp.Body.Error)
	assert.Equal(t, fmt.Sprintf("Rate limit exceeded. Try again in %d seconds.", retryAfter), resp.Body.Message)
}

func TestBuildThrottledResponsePastReset(t *testing.T) {
	resp := BuildThrottledResponse(Result{Limit: 10, Reset: time.Now().Unix() - 30})

	assert.Equal(t, "0", resp.Headers["Retry-After"])
	assert.Equal(t, "Rate limit exceeded. Try again in 0 seconds.", resp.Body.Message)
}

func TestThrottledResponseWriteHTTP(t *testing.T) {
	reset := time.Now().Unix() + 60
	rec := httptest.NewRecorder()

	BuildThrottledResponse(Result{Limit: 5, Reset: reset}).WriteHTTP(rec)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "5", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	var body ThrottledBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "Too Many Requests", body.Error)
}
