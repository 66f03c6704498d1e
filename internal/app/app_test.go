package app

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quill-hq/quill/internal/config"
	"github.com/quill-hq/quill/internal/probe"
	"github.com/quill-hq/quill/pkg/notifiers"
)

type discardAlerter struct{}

func (discardAlerter) Alert(string) {}

func testConfig(apiURL string) *config.Config {
	return &config.Config{
		AppName:                "quill",
		APIBaseURL:             apiURL,
		AuthToken:              "tok",
		Host:                   "127.0.0.1",
		Port:                   8000,
		Workers:                1,
		StorageType:            "memory",
		SessionTTL:             time.Hour,
		StorageCleanupInterval: time.Minute,
		AnthropicBaseURL:       "https://api.anthropic.com",
	}
}

func TestNewClientSubscribeNotifiesWebhook(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"checkout_url":"https://pay.example/cs_9","session_id":"cs_9"}`))
	}))
	defer api.Close()

	var mu sync.Mutex
	var eventTypes []string
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		mu.Lock()
		eventTypes = append(eventTypes, r.Header.Get("X-Event-Type"))
		mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	defer hook.Close()

	path := filepath.Join(t.TempDir(), "notifiers.yaml")
	require.NoError(t, os.WriteFile(path, []byte("notifiers:\n  - id: hook\n    type: http\n    http:\n      url: "+hook.URL+"\n"), 0o644))

	cfg := testConfig(api.URL)
	cfg.NotifiersFile = path

	var out bytes.Buffer
	rt, err := NewClient(context.Background(), cfg, nil, ClientOptions{Out: &out, Alerter: discardAlerter{}})
	require.NoError(t, err)
	defer rt.Close()

	_, err = rt.Flow.Subscribe(context.Background(), "pro")
	require.NoError(t, err)
	assert.True(t, strings.Contains(out.String(), "https://pay.example/cs_9"))

	sid, ok, err := rt.Flow.PendingSession()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "cs_9", sid)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{notifiers.EventSubscriptionCheckout}, eventTypes)
}

func TestNewClientRejectsBadNotifiersFile(t *testing.T) {
	cfg := testConfig("http://localhost:1")
	cfg.NotifiersFile = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := NewClient(context.Background(), cfg, nil, ClientOptions{Out: io.Discard})
	assert.Error(t, err)
}

func TestClientProberRequiresKey(t *testing.T) {
	rt, err := NewClient(context.Background(), testConfig("http://localhost:1"), nil, ClientOptions{Out: io.Discard})
	require.NoError(t, err)
	defer rt.Close()

	_, err = rt.Prober()
	assert.ErrorIs(t, err, probe.ErrMissingAPIKey)
}

func TestNewServerServesHealth(t *testing.T) {
	srv, err := NewServer(testConfig("http://localhost:1"), nil)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
