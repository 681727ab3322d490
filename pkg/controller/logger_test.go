package controller_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"iconload/pkg/controller"
	"iconload/pkg/logger"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name   string
		header map[string]string
		remote string
		want   string
	}{
		{name: "forwarded for", header: map[string]string{"X-Forwarded-For": "1.2.3.4, 5.6.7.8"}, want: "1.2.3.4"},
		{name: "real ip", header: map[string]string{"X-Real-IP": "9.8.7.6"}, want: "9.8.7.6"},
		{name: "remote addr", remote: "10.0.0.1:12345", want: "10.0.0.1"},
		{name: "invalid remote addr", remote: "not-an-addr", want: "not-an-addr"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			if tt.remote != "" {
				req.RemoteAddr = tt.remote
			}
			require.Equal(t, tt.want, controller.ClientIP(req))
		})
	}
}

// withObservedLogger serves req through WithLogger with an observed logger
// in the request context.
func withObservedLogger(t *testing.T, next http.Handler, req *http.Request) (*httptest.ResponseRecorder, *observer.ObservedLogs) {
	t.Helper()

	core, logs := observer.New(zapcore.DebugLevel)
	ctx := logger.WithLogger(context.Background(), zap.New(core))

	rec := httptest.NewRecorder()
	controller.WithLogger(next).ServeHTTP(rec, req.WithContext(ctx))

	return rec, logs
}

func TestWithLogger_RequestID(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Echo", controller.RequestID(r.Context()))
		w.WriteHeader(http.StatusCreated)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(controller.RequestIDHeader, "abc-123")
	rec, logs := withObservedLogger(t, next, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "abc-123", rec.Header().Get("X-Echo"))
	require.Equal(t, "abc-123", rec.Header().Get(controller.RequestIDHeader))

	entries := logs.FilterMessage("access log").All()
	require.Len(t, entries, 1)
	require.Equal(t, zapcore.DebugLevel, entries[0].Level)
	require.Equal(t, "abc-123", entries[0].ContextMap()["requestID"])
	require.EqualValues(t, http.StatusCreated, entries[0].ContextMap()["status"])
}

func TestWithLogger_GeneratesRequestID(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {})

	rec, _ := withObservedLogger(t, next, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Len(t, rec.Header().Get(controller.RequestIDHeader), 36)
}

func TestWithLogger_ErrorsAreWarnings(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.NotFound(w, nil)
	})

	_, logs := withObservedLogger(t, next, httptest.NewRequest(http.MethodGet, "/nope", nil))

	entries := logs.FilterMessage("access log").All()
	require.Len(t, entries, 1)
	require.Equal(t, zapcore.WarnLevel, entries[0].Level)
	require.EqualValues(t, http.StatusNotFound, entries[0].ContextMap()["status"])
	require.EqualValues(t, len("404 page not found\n"), entries[0].ContextMap()["bytes"])
}
