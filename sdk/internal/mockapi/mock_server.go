// Package mockapi emulates the UserInfoAPI plugin for client tests.
package mockapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// APIPrefix is the path the mock API is mounted under
const APIPrefix = "/api"

// MockServer emulates the UserInfoAPI plugin over httptest
type MockServer struct {
	*httptest.Server
	mu           sync.RWMutex
	handlers     map[string]HandlerFunc
	requestCount atomic.Int32
	requests     []RecordedRequest
}

// HandlerFunc handles one route. A []byte or string response is written
// as is; anything else is JSON encoded.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) (int, interface{})

// RecordedRequest stores information about a received request
type RecordedRequest struct {
	Method   string
	Path     string
	RawQuery string
	Query    url.Values
	Headers  http.Header
	Body     []byte
	Time     time.Time
}

// NewMockServer creates a mock server with the default routes
func NewMockServer() *MockServer {
	ms := &MockServer{
		handlers: make(map[string]HandlerFunc),
		requests: make([]RecordedRequest, 0),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", ms.handleRequest)

	ms.Server = httptest.NewServer(mux)
	ms.setupDefaultHandlers()

	return ms
}

// BaseURL returns the API root to configure clients with
func (ms *MockServer) BaseURL() string {
	return ms.URL + APIPrefix
}

func (ms *MockServer) setupDefaultHandlers() {
	ms.RegisterHandler("GET /status", func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
		return http.StatusOK, ServerStatus()
	})

	ms.RegisterHandler("GET /online-players", func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
		return http.StatusOK, OnlinePlayers("Steve", "Alex")
	})

	ms.RegisterHandler("GET /security/info", func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
		return http.StatusOK, SecurityInfo()
	})

	ms.RegisterHandler("GET /user/info", func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
		return http.StatusOK, UserProfile(r.URL.Query().Get("username"))
	})

	ms.RegisterHandler("GET /user/level", func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
		return http.StatusOK, LevelInfo(r.URL.Query().Get("username"))
	})

	ms.RegisterHandler("GET /user/login-records", func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
		return http.StatusOK, LoginRecords(r.URL.Query().Get("username"))
	})

	ms.RegisterHandler("POST /user/batch", func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
		var body struct {
			Usernames []string `json:"usernames"`
			QueryType string   `json:"queryType"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return http.StatusBadRequest, ErrorBody("invalid request body")
		}
		return http.StatusOK, BatchResults(body.QueryType, body.Usernames...)
	})
}

// RegisterHandler registers a handler for "METHOD /path", the path
// relative to APIPrefix
func (ms *MockServer) RegisterHandler(pattern string, handler HandlerFunc) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.handlers[pattern] = handler
}

func (ms *MockServer) handleRequest(w http.ResponseWriter, r *http.Request) {
	body := make([]byte, 0)
	if r.Body != nil {
		body, _ = io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(body))
	}

	path := strings.TrimPrefix(r.URL.Path, APIPrefix)

	ms.mu.Lock()
	ms.requests = append(ms.requests, RecordedRequest{
		Method:   r.Method,
		Path:     path,
		RawQuery: r.URL.RawQuery,
		Query:    r.URL.Query(),
		Headers:  r.Header.Clone(),
		Body:     body,
		Time:     time.Now(),
	})
	ms.mu.Unlock()

	ms.requestCount.Add(1)

	ms.mu.RLock()
	handler := ms.handlers[r.Method+" "+path]
	ms.mu.RUnlock()

	if handler == nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(ErrorBody("not found"))
		return
	}

	status, response := handler(w, r)

	switch v := response.(type) {
	case nil:
		w.WriteHeader(status)
	case []byte:
		w.WriteHeader(status)
		_, _ = w.Write(v)
	case string:
		w.WriteHeader(status)
		_, _ = io.WriteString(w, v)
	default:
		w.Header().Set("Content-Type", "application/json; charset=UTF-8")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}
}

// GetRequestCount returns the total number of requests received
func (ms *MockServer) GetRequestCount() int {
	return int(ms.requestCount.Load())
}

// GetRequests returns all recorded requests
func (ms *MockServer) GetRequests() []RecordedRequest {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	result := make([]RecordedRequest, len(ms.requests))
	copy(result, ms.requests)
	return result
}

// LastRequest returns the most recent request
func (ms *MockServer) LastRequest() (RecordedRequest, bool) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	if len(ms.requests) == 0 {
		return RecordedRequest{}, false
	}
	return ms.requests[len(ms.requests)-1], true
}

// Reset clears all recorded requests
func (ms *MockServer) Reset() {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.requestCount.Store(0)
	ms.requests = ms.requests[:0]
}

// WithErrorResponse answers pattern with statusCode and an error body
func (ms *MockServer) WithErrorResponse(pattern string, statusCode int, errorMsg string) {
	ms.RegisterHandler(pattern, func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
		return statusCode, ErrorBody(errorMsg)
	})
}

// WithRateLimit answers pattern with 429. retryAfter is written verbatim
// into the body when non-nil.
func (ms *MockServer) WithRateLimit(pattern string, retryAfter interface{}) {
	ms.RegisterHandler(pattern, func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
		return http.StatusTooManyRequests, RateLimitBody(retryAfter)
	})
}

// WithRetryResponse fails failCount times with failStatus, then delegates
// to success
func (ms *MockServer) WithRetryResponse(pattern string, failCount int, failStatus int, success HandlerFunc) {
	attempts := atomic.Int32{}
	ms.RegisterHandler(pattern, func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
		current := int(attempts.Add(1))
		if current <= failCount {
			return failStatus, ErrorBody("temporary failure")
		}
		return success(w, r)
	})
}

// WithDelayedResponse delays before delegating to handler
func (ms *MockServer) WithDelayedResponse(pattern string, delay time.Duration, handler HandlerFunc) {
	ms.RegisterHandler(pattern, func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
		}
		return handler(w, r)
	})
}

// Close shuts down the mock server
func (ms *MockServer) Close() {
	if ms.Server != nil {
		ms.Server.Close()
	}
}
