// Package testutil holds helpers shared by handler and end-to-end tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ErrorBody is the envelope httputil.WriteError answers with.
type ErrorBody struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

// NewRequest builds a request without a body.
func NewRequest(t *testing.T, method, path string) *http.Request {
	t.Helper()
	return httptest.NewRequest(method, path, nil)
}

// NewJSONRequest builds a request whose body is v encoded as JSON.
func NewJSONRequest(t *testing.T, method, path string, v any) *http.Request {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err, "encode request body")
	return NewRequestWithBody(t, method, path, string(raw))
}

// NewRequestWithBody builds a JSON-typed request around a raw body, for
// malformed-input cases.
func NewRequestWithBody(t *testing.T, method, path, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// DoRequest serves req on handler and returns the recorded response.
func DoRequest(handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

// UnmarshalResponse decodes the JSON response body into a T.
func UnmarshalResponse[T any](t *testing.T, rr *httptest.ResponseRecorder) *T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), "decode response: %s", rr.Body.String())
	return &out
}

// AssertError checks the status and the error code of an error envelope and
// returns the decoded envelope for further checks.
func AssertError(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) ErrorBody {
	t.Helper()
	assert.Equal(t, status, rr.Code, "status, body: %s", rr.Body.String())
	body := UnmarshalResponse[ErrorBody](t, rr)
	assert.Equal(t, code, body.Error, "error code")
	return *body
}
