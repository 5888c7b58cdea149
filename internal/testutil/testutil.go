// Package testutil provides shared test helpers for the storefront
// services.
//
// All helpers accept [testing.TB] for compatibility with both tests and
// benchmarks. Functions that halt the test on failure use [require] from
// testify; functions that record failures without stopping use [assert].
//
// Every helper calls t.Helper() so that test failure messages report the
// caller's file and line number rather than this package's.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sserr "github.com/StricklySoft/storefront/pkg/errors"
	"github.com/StricklySoft/storefront/pkg/httpx"
)

// RequireErrorCode halts the test if err is nil, is not an *sserr.Error,
// or does not carry the expected error code. It returns the typed error
// for further assertions on its message and fields.
//
// Example:
//
//	e := testutil.RequireErrorCode(t, err, sserr.CodeBusinessDuplicate)
//	assert.Contains(t, e.Fields, "email")
func RequireErrorCode(t testing.TB, err error, code sserr.Code, msgAndArgs ...any) *sserr.Error {
	t.Helper()
	require.Error(t, err, msgAndArgs...)
	ssErr, ok := sserr.AsError(err)
	require.True(t, ok, "expected *sserr.Error, got %T: %v", err, err)
	require.Equal(t, code, ssErr.Code,
		"error code mismatch: got %q, want %q (message: %s)",
		ssErr.Code, code, ssErr.Message)
	return ssErr
}

// AssertErrorCode records a test failure (without halting) if err is nil,
// is not an *sserr.Error, or does not carry the expected error code.
// Use this in table-driven tests where you want to check all rows.
func AssertErrorCode(t testing.TB, err error, code sserr.Code, msgAndArgs ...any) bool {
	t.Helper()
	if !assert.Error(t, err, msgAndArgs...) {
		return false
	}
	ssErr, ok := sserr.AsError(err)
	if !assert.True(t, ok, "expected *sserr.Error, got %T: %v", err, err) {
		return false
	}
	return assert.Equal(t, code, ssErr.Code,
		"error code mismatch: got %q, want %q (message: %s)",
		ssErr.Code, code, ssErr.Message)
}

// TempFile creates a file with the given name and content inside
// t.TempDir() and returns its path.
func TempFile(t testing.TB, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	err := os.WriteFile(path, []byte(content), 0o600)
	require.NoError(t, err, "failed to write temp file %s", path)
	return path
}

// MapLookup returns a config lookup function backed by env, so config
// tests never touch the process environment.
func MapLookup(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

// ---------------------------------------------------------------------------
// HTTP helpers
// ---------------------------------------------------------------------------

// Request is one call made with [Do].
type Request struct {
	Method string
	Path   string
	// Body is sent as JSON unless it is a string, which is sent verbatim.
	Body any
	// Authorization sets the header of the same name when not empty.
	Authorization string
}

// Do serves req on h and returns the recorded response.
func Do(t testing.TB, h http.Handler, req Request) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	switch b := req.Body.(type) {
	case nil:
	case string:
		body = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err, "failed to encode request body")
		body = bytes.NewReader(data)
	}

	r := httptest.NewRequest(req.Method, req.Path, body)
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	if req.Authorization != "" {
		r.Header.Set("Authorization", req.Authorization)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

// DecodeData decodes a {"data": ...} response body into T.
func DecodeData[T any](t testing.TB, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "body: %s", rec.Body.String())
	return out.Data
}

// DecodeError decodes an error envelope.
func DecodeError(t testing.TB, rec *httptest.ResponseRecorder) httpx.ErrorBody {
	t.Helper()
	var out httpx.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "body: %s", rec.Body.String())
	return out.Error
}

// AssertError checks the status and message of an error response.
func AssertError(t testing.TB, rec *httptest.ResponseRecorder, status int, message string) httpx.ErrorBody {
	t.Helper()
	assert.Equal(t, status, rec.Code, "body: %s", rec.Body.String())
	body := DecodeError(t, rec)
	assert.Equal(t, httpx.StatusCode(status), body.Code)
	assert.Equal(t, message, body.Message)
	return body
}
