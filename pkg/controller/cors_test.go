package controller_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"iconload/pkg/controller"

	"github.com/stretchr/testify/require"
)

func TestWithCORS(t *testing.T) {
	tests := []struct {
		method     string
		wantStatus int
		wantCalled bool
	}{
		{method: http.MethodOptions, wantStatus: http.StatusNoContent, wantCalled: false},
		{method: http.MethodGet, wantStatus: http.StatusTeapot, wantCalled: true},
		{method: http.MethodHead, wantStatus: http.StatusTeapot, wantCalled: true},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			called := false
			next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				called = true
				w.WriteHeader(http.StatusTeapot)
			})

			rec := httptest.NewRecorder()
			controller.WithCORS(next).ServeHTTP(rec, httptest.NewRequest(tt.method, "/www.google.com/icon.png", nil))

			res := rec.Result()
			require.Equal(t, tt.wantCalled, called)
			require.Equal(t, tt.wantStatus, res.StatusCode)
			require.Equal(t, "*", res.Header.Get("Access-Control-Allow-Origin"))
			require.Contains(t, res.Header.Get("Access-Control-Allow-Methods"), "GET")
			require.Contains(t, res.Header.Get("Access-Control-Expose-Headers"), "X-Icon-Cache")
		})
	}
}
