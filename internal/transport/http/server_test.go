package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"breakbot/internal/config"
	"breakbot/internal/live"
	"breakbot/internal/strategy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{
		Trading: config.TradingConfig{OrderCurrency: "XRP", PaymentCurrency: "KRW", Interval: "1h"},
	}
	engine := live.NewEngine(cfg, strategy.DefaultVariant(), nil, nil, nil, nil, nil)
	s, err := NewServer(ServerConfig{Addr: ":0", Engine: engine})
	require.NoError(t, err)
	return s
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}

func TestStatusAndPosition(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "XRP_KRW")

	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/position", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"has_position":false`)
}

func TestRequiresEngine(t *testing.T) {
	_, err := NewServer(ServerConfig{Addr: ":0"})
	assert.Error(t, err)
}
