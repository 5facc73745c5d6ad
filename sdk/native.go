package sdk

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Version is the client library version sent in the User-Agent header
const Version = "2.0.0"

// defaultUserAgent identifies the client to the server
const defaultUserAgent = "fetchplayers-go/" + Version

// maxResponseBytes caps a response body. Exports of large servers stay well
// below it.
const maxResponseBytes = 64 << 20

// newHTTPTransport creates a native HTTP transport
func newHTTPTransport(config *Config) *httpTransport {
	maxRedirects := config.TransportConfig.MaxRedirects

	// Configure the HTTP transport. Compression is negotiated by
	// net/http, which also decompresses gzip bodies transparently.
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        config.TransportConfig.MaxIdleConns,
		MaxConnsPerHost:     config.TransportConfig.MaxConnsPerHost,
		IdleConnTimeout:     config.TransportConfig.IdleConnTimeout,
		DisableCompression:  false,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	client := &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}

	userAgent := config.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	t := &httpTransport{
		client:    client,
		baseURL:   config.BaseURL,
		headers:   config.Headers,
		userAgent: userAgent,
		maxBody:   maxResponseBytes,
	}
	t.setTimeout(config.Timeout)
	return t
}

// do performs a single HTTP request bounded by the current timeout
func (t *httpTransport) do(ctx context.Context, spec *RequestSpec, apiKey, requestID string) (*RawResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, t.getTimeout())
	defer cancel()

	var bodyReader io.Reader
	if len(spec.Body) > 0 {
		bodyReader = bytes.NewReader(spec.Body)
	}

	fullURL := t.buildURL(spec, apiKey)
	op := spec.Method + " " + spec.Path

	// Create request
	req, err := http.NewRequestWithContext(ctx, spec.Method, fullURL, bodyReader)
	if err != nil {
		return nil, &NetworkError{Op: op, Err: fmt.Errorf("failed to create request: %w", err)}
	}

	// Set headers
	for key, value := range t.headers {
		req.Header.Set(key, value)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", t.userAgent)
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	if requestID != "" {
		req.Header.Set("X-Request-ID", requestID)
	}
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	// Execute request
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: op, Err: unwrapURLError(err)}
	}
	defer resp.Body.Close()

	// Read response body
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, t.maxBody+1))
	if err != nil {
		return nil, &NetworkError{Op: "reading response of " + op, Err: err}
	}
	if int64(len(respBody)) > t.maxBody {
		return nil, &NetworkError{Op: "reading response of " + op, Err: fmt.Errorf("response body exceeds %d bytes", t.maxBody)}
	}

	return &RawResponse{
		StatusCode: resp.StatusCode,
		Body:       respBody,
		Header:     resp.Header,
	}, nil
}

// unwrapURLError drops the *url.Error layer, whose message repeats the
// request URL and with it the credential.
func unwrapURLError(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Err != nil {
		return uerr.Err
	}
	return err
}

// close closes the transport
func (t *httpTransport) close() error {
	t.client.CloseIdleConnections()
	return nil
}
