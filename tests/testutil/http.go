package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Envelope mirrors the response wrapper every endpoint returns
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *EnvelopeError  `json:"error"`
	Meta    *EnvelopeMeta   `json:"meta"`
}

// EnvelopeError is the error part of Envelope
type EnvelopeError struct {
	Kind    string         `json:"kind"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details"`
	Fields  []struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	} `json:"fields"`
}

// EnvelopeMeta is the pagination part of Envelope
type EnvelopeMeta struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalPages int   `json:"total_pages"`
}

// DoJSON sends a request with an optional JSON body through h
func DoJSON(t *testing.T, h http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		reader = ToJSONReader(t, body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// DecodeEnvelope parses the response wrapper
func DecodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) Envelope {
	t.Helper()

	var env Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), "Failed to parse response: %s", w.Body.String())
	return env
}

// DecodeData asserts a success response and parses its data into T
func DecodeData[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	env := DecodeEnvelope(t, w)
	require.True(t, env.Success, "Expected success, got %s", w.Body.String())
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out), "Failed to parse data")
	return out
}

// AssertError asserts a failure response with the given status and error kind
func AssertError(t *testing.T, w *httptest.ResponseRecorder, status int, kind string) *EnvelopeError {
	t.Helper()

	assert.Equal(t, status, w.Code, "Unexpected status, body: %s", w.Body.String())
	env := DecodeEnvelope(t, w)
	assert.False(t, env.Success)
	require.NotNil(t, env.Error, "Expected error object in response")
	assert.Equal(t, kind, env.Error.Kind)
	return env.Error
}

// ToJSONReader converts a value to a JSON io.Reader.
func ToJSONReader(t *testing.T, v any) io.Reader {
	t.Helper()

	data, err := json.Marshal(v)
	require.NoError(t, err, "Failed to marshal to JSON")
	return bytes.NewReader(data)
}
