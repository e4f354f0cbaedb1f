package middleware

import (
	"bufio"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	hijacked bool
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h.hijacked = true
	return nil, nil, nil
}

func TestLogging_StatusCapture(t *testing.T) {
	handler := Logging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
}

func TestLogging_HijackPassthrough(t *testing.T) {
	inner := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	wrapped := &responseWriter{ResponseWriter: inner, status: http.StatusOK}

	hj, ok := any(wrapped).(http.Hijacker)
	require.True(t, ok, "the logging wrapper must stay hijackable for websocket upgrades")

	_, _, err := hj.Hijack()
	require.NoError(t, err)
	assert.True(t, inner.hijacked, "hijack must reach the underlying writer")
}

func TestLogging_HijackUnsupported(t *testing.T) {
	wrapped := &responseWriter{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK}

	_, _, err := wrapped.Hijack()
	assert.Error(t, err)
}
