package ratelimit

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// ThrottledBody is the JSON body of a 429 response.
type ThrottledBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ThrottledResponse is the standard rendering of a rejected check.
type ThrottledResponse struct {
	Status  int
	Headers map[string]string
	Body    ThrottledBody
}

// BuildThrottledResponse translates a blocked Result into the standard 429
// response. Pure aside from reading the clock for Retry-After.
func BuildThrottledResponse(result Result) ThrottledResponse {
	retryAfter := result.Reset - time.Now().Unix()
	if retryAfter < 0 {
		retryAfter = 0
	}

	return ThrottledResponse{
		Status: http.StatusTooManyRequests,
		Headers: map[string]string{
			"X-RateLimit-Limit":     fmt.Sprintf("%d", result.Limit),
			"X-RateLimit-Remaining": "0",
			"X-RateLimit-Reset":     fmt.Sprintf("%d", result.Reset),
			"Retry-After":           fmt.Sprintf("%d", retryAfter),
		},
		Body: ThrottledBody{
			Error:   "Too Many Requests",
			Message: fmt.Sprintf("Rate limit exceeded. Try again in %d seconds.", retryAfter),
		},
	}
}

// WriteHTTP renders the response onto w.
func (t ThrottledResponse) WriteHTTP(w http.ResponseWriter) {
	for k, v := range t.Headers {
		w.Header().Set(k, v)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(t.Status)
	_ = json.NewEncoder(w).Encode(t.Body)
}
