package sdk

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"
)

// RawResponse is the undecoded result of one HTTP exchange
type RawResponse struct {
	StatusCode int
	Body       []byte
	Header     http.Header
}

// transport performs exactly one HTTP exchange per call. It does not retry
// and does not interpret status codes.
type transport interface {
	do(ctx context.Context, spec *RequestSpec, apiKey, requestID string) (*RawResponse, error)
	setTimeout(d time.Duration)
	getTimeout() time.Duration
	close() error
}

// httpTransport handles HTTP communication with the API using net/http.
type httpTransport struct {
	// client is the underlying HTTP client. Its Timeout is zero; the
	// per-attempt timeout is applied through the request context.
	client *http.Client
	// baseURL is the API root without trailing slash
	baseURL string
	// timeout is the current per-attempt timeout in nanoseconds
	timeout atomic.Int64
	// headers are custom headers sent with every request
	headers map[string]string
	// userAgent is sent as the User-Agent header
	userAgent string
	// maxBody caps the bytes read from one response
	maxBody int64
}

func (t *httpTransport) setTimeout(d time.Duration) {
	t.timeout.Store(int64(d))
}

func (t *httpTransport) getTimeout() time.Duration {
	return time.Duration(t.timeout.Load())
}

// buildURL renders the full request URL for this transport
func (t *httpTransport) buildURL(spec *RequestSpec, apiKey string) string {
	return requestURL(t.baseURL, spec, apiKey)
}

// requestURL renders a request URL. GET requests carry the credential as
// the trailing api_key parameter.
func requestURL(baseURL string, spec *RequestSpec, apiKey string) string {
	query := spec.Query
	if spec.Method == http.MethodGet && apiKey != "" {
		query = copyParams(spec.Query)
		query.Set("api_key", apiKey)
	}

	u := baseURL + spec.Path
	if q := query.Encode(); q != "" {
		u += "?" + q
	}
	return u
}

func copyParams(p Params) Params {
	var out Params
	for _, k := range p.keys {
		out.Set(k, p.values[k])
	}
	return out
}

// redactURL hides the api_key parameter so URLs can be logged
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if !strings.Contains(u.RawQuery, "api_key=") {
		return raw
	}

	parts := strings.Split(u.RawQuery, "&")
	for i, part := range parts {
		if strings.HasPrefix(part, "api_key=") {
			parts[i] = "api_key=REDACTED"
		}
	}
	u.RawQuery = strings.Join(parts, "&")
	return u.String()
}
