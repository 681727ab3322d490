package controller_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"iconload/pkg/controller"

	"github.com/stretchr/testify/require"
)

func TestRegisterPprof(t *testing.T) {
	mux := http.NewServeMux()
	controller.RegisterPprof(mux)

	for _, path := range []string{"/debug/pprof/", "/debug/pprof/cmdline", "/debug/pprof/goroutine?debug=1"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code, path)
		require.NotEmpty(t, rec.Header().Get("Content-Type"), path)
	}
}
