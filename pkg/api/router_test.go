package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/droidprobe/droidprobe/pkg/debugger"
)

func TestHealth(t *testing.T) {
	router := NewRouter(debugger.New(debugger.Options{}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestStatusDetached(t *testing.T) {
	router := NewRouter(debugger.New(debugger.Options{}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var st debugger.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, debugger.StateDisconnected, st.State)
	assert.Zero(t, st.Breakpoints)
}

func TestMetricsDisabled(t *testing.T) {
	router := NewRouter(debugger.New(debugger.Options{}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	// Without InitRegistry there is nothing to scrape.
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
