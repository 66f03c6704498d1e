package probe

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(Options{APIKey: "  "})
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "sk-ant-a...99999999", MaskKey("sk-ant-REDACTED"))
	assert.Equal(t, "*****", MaskKey("short"))
}

func TestCheckAccount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/account", r.URL.Path)
		assert.Equal(t, "key-123", r.Header.Get("x-api-key"))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"acct_1"}`))
	}))
	defer srv.Close()

	p, err := New(Options{BaseURL: srv.URL, APIKey: "key-123"})
	require.NoError(t, err)

	res, err := p.CheckAccount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "acct_1", res.Data["id"])
}

func TestCheckAccountReportsNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"not_found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	p, err := New(Options{BaseURL: srv.URL, APIKey: "key-123"})
	require.NoError(t, err)

	res, err := p.CheckAccount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Nil(t, res.Data)
	assert.Contains(t, res.Body, "not_found")
}

func TestProbeModelsClassifies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))

		var body struct {
			Model     string `json:"model"`
			MaxTokens int    `json:"max_tokens"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, 10, body.MaxTokens)

		switch body.Model {
		case "good":
			_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"Hello"}]}`))
		case "empty":
			_, _ = w.Write([]byte(`{"content":[]}`))
		default:
			http.Error(w, `{"error":{"type":"not_found_error"}}`, http.StatusNotFound)
		}
	}))
	defer srv.Close()

	p, err := New(Options{BaseURL: srv.URL, APIKey: "key-123"})
	require.NoError(t, err)

	report, err := p.ProbeModels(context.Background(), []string{"good", "empty", "missing"})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Tested)
	assert.Equal(t, []string{"good"}, report.Working)
	require.Len(t, report.Failed, 2)
	assert.Equal(t, "no response", report.Failed[0].Error)
	assert.Equal(t, "missing", report.Failed[1].Model)
	assert.Contains(t, report.Failed[1].Error, "status 404")
}

func TestProbeModelsStopsOnCancel(t *testing.T) {
	p, err := New(Options{BaseURL: "http://127.0.0.1:1", APIKey: "key-123"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := p.ProbeModels(ctx, []string{"a", "b"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, report.Tested)
}
