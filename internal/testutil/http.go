package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// HTTPTestHelper drives a handler with in-memory requests
type HTTPTestHelper struct {
	Handler http.Handler
	// Token is sent as a bearer token when set
	Token string
}

// NewHTTPTestHelper creates a new HTTP test helper
func NewHTTPTestHelper(handler http.Handler) *HTTPTestHelper {
	return &HTTPTestHelper{Handler: handler}
}

// MakeRequest creates and executes an HTTP request, returning the response
func (h *HTTPTestHelper) MakeRequest(method, path string, body any) *httptest.ResponseRecorder {
	return h.MakeRequestWithHeaders(method, path, body, nil)
}

// MakeRequestWithHeaders creates and executes an HTTP request with custom headers
func (h *HTTPTestHelper) MakeRequestWithHeaders(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var reqBody []byte
	if body != nil {
		var err error
		reqBody, err = json.Marshal(body)
		if err != nil {
			panic(err)
		}
	}

	req := httptest.NewRequest(method, path, bytes.NewBuffer(reqBody))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if h.Token != "" {
		req.Header.Set("Authorization", "Bearer "+h.Token)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	rr := httptest.NewRecorder()
	h.Handler.ServeHTTP(rr, req)
	return rr
}

// DecodeJSON decodes a recorded response body, failing the test on error
func DecodeJSON[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rr.Body).Decode(&out); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rr.Body.String(), err)
	}
	return out
}

// WebSocketURL converts an httptest server URL into a ws:// URL for path
func WebSocketURL(serverURL, path string) string {
	return "ws" + strings.TrimPrefix(serverURL, "http") + path
}
