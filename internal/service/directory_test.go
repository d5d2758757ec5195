package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"ServerMonitorAPI/internal/clock"
	"ServerMonitorAPI/internal/config"
	"ServerMonitorAPI/internal/logger"
	"ServerMonitorAPI/internal/models"
	"ServerMonitorAPI/internal/resilience"

	"github.com/stretchr/testify/assert"
)

func newTestDirectory(t *testing.T, handler http.Handler) (*Directory, *clock.Mock) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	clk := clock.NewMock(testNow)
	reg := resilience.NewRegistry(resilience.RegistryConfig{
		Services: []config.ServiceEndpoint{
			{Name: ServerServiceName, BaseURL: srv.URL, HealthPath: "/health", Timeout: time.Second},
			{Name: UserServiceName, BaseURL: srv.URL, HealthPath: "/health", Timeout: time.Second},
		},
		Breaker: resilience.BreakerConfig{FailureThreshold: 2, ResetTimeout: time.Minute},
		Clock:   clk,
	}, logger.Nop())

	return NewDirectory(reg, logger.Nop()), clk
}

func TestDirectory_Lookups(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/servers/s1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"s1","name":"web-01"}`))
	})
	mux.HandleFunc("/api/v1/users/u1/contact", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"email":"ops@example.com","phone":"5551234567","carrier":"tmobile"}`))
	})

	dir, _ := newTestDirectory(t, mux)
	ctx := context.Background()

	assert.Equal(t, "web-01", dir.ServerName(ctx, "s1"))
	assert.Equal(t, Contact{Address: "ops@example.com"}, dir.Contact(ctx, "u1", models.ChannelEmail))
	assert.Equal(t, Contact{Address: "5551234567", Carrier: "tmobile"}, dir.Contact(ctx, "u1", models.ChannelSMS))
	assert.Equal(t, Contact{Address: "u1"}, dir.Contact(ctx, "u1", models.ChannelWebhook), "no webhook url on file")
}

func TestDirectory_CachesServerNames(t *testing.T) {
	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/servers/s1", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"id":"s1","name":"web-01"}`))
	})
	mux.HandleFunc("/api/v1/servers/s2", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	})

	dir, _ := newTestDirectory(t, mux)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		assert.Equal(t, "web-01", dir.ServerName(ctx, "s1"))
	}
	assert.Equal(t, int32(1), hits.Load())

	// fallbacks are looked up again
	assert.Equal(t, "s2", dir.ServerName(ctx, "s2"))
	assert.Equal(t, "s2", dir.ServerName(ctx, "s2"))
	assert.Equal(t, int32(3), hits.Load())
}

func TestDirectory_FallsBackWhenServiceFails(t *testing.T) {
	var hits atomic.Int32
	dir, _ := newTestDirectory(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		assert.Equal(t, "s9", dir.ServerName(ctx, "s9"))
	}
	// the breaker opens after two failures and short-circuits the rest
	assert.Equal(t, int32(2), hits.Load())
}

func TestDirectory_WithoutServices(t *testing.T) {
	dir := NewDirectory(nil, logger.Nop())
	assert.Equal(t, "s1", dir.ServerName(context.Background(), "s1"))
	assert.Equal(t, Contact{Address: "u1"}, dir.Contact(context.Background(), "u1", models.ChannelEmail))
}
