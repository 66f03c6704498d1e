// Package probe checks API key validity and which Claude models the key can use.
package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/quill-hq/quill/internal/logger"
	"github.com/quill-hq/quill/pkg/httpclient"
)

const (
	anthropicVersion = "2023-06-01"
	probeMaxTokens   = 10
	snippetLimit     = 512
)

// DefaultModels is the candidate list tried by ProbeModels when none is given.
var DefaultModels = []string{
	"claude-sonnet-4-20250514",
	"claude-opus-4-20250514",
	"claude-opus-4-1-20250805",
	"claude-4-sonnet-20250514",
	"claude-4-opus-20250514",
	"claude-sonnet-4-0",
	"claude-opus-4-0",
	"claude-3-7-sonnet-20250219",
	"claude-3-5-sonnet-20241022",
	"claude-3-5-haiku-20241022",
	"claude-3-haiku-20240307",
	"claude-3-sonnet-20240229",
	"claude-3-opus-20240229",
	"claude-3-5-sonnet-latest",
}

// ErrMissingAPIKey is returned when no API key is configured.
var ErrMissingAPIKey = errors.New("probe: ANTHROPIC_API_KEY not set")

// Options configures a Prober.
type Options struct {
	BaseURL string
	APIKey  string
	HTTP    httpclient.Client
	Log     logger.Logger
}

// Prober issues diagnostic requests against the Anthropic API.
type Prober struct {
	baseURL string
	apiKey  string
	http    httpclient.Client
	log     logger.Logger
}

// New validates opts.
func New(opts Options) (*Prober, error) {
	key := strings.TrimSpace(opts.APIKey)
	if key == "" {
		return nil, ErrMissingAPIKey
	}
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = "https://api.anthropic.com"
	}
	p := &Prober{baseURL: base, apiKey: key, http: opts.HTTP, log: opts.Log}
	if p.http == nil {
		p.http = httpclient.NewRestyClient(0)
	}
	if p.log == nil {
		p.log = logger.NopLogger{}
	}
	return p, nil
}

// MaskedKey returns the key with its middle hidden.
func (p *Prober) MaskedKey() string { return MaskKey(p.apiKey) }

// MaskKey keeps the first and last 8 characters of key.
func MaskKey(key string) string {
	if len(key) <= 16 {
		return strings.Repeat("*", len(key))
	}
	return key[:8] + "..." + key[len(key)-8:]
}

// AccountResult is the outcome of CheckAccount.
type AccountResult struct {
	StatusCode int
	Body       string
	Data       map[string]any
}

// CheckAccount queries the account endpoint. A non-200 status is reported in
// the result, not as an error.
func (p *Prober) CheckAccount(ctx context.Context) (*AccountResult, error) {
	resp, err := p.http.Do(ctx, httpclient.Request{
		Method:  http.MethodGet,
		URL:     p.baseURL + "/v1/account",
		Headers: p.headers(),
	})
	if err != nil {
		return nil, fmt.Errorf("account check: %w", err)
	}

	res := &AccountResult{StatusCode: resp.StatusCode(), Body: string(resp.Body())}
	if res.StatusCode == http.StatusOK {
		var data map[string]any
		if err := json.Unmarshal(resp.Body(), &data); err == nil {
			res.Data = data
		}
	}
	p.log.InfoObj("account check completed", "account_check", map[string]any{
		"status": res.StatusCode,
	})
	return res, nil
}

// ModelFailure records why a model probe failed.
type ModelFailure struct {
	Model string
	Error string
}

// Report summarises a ProbeModels run.
type Report struct {
	Tested  int
	Working []string
	Failed  []ModelFailure
}

type messageContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type messageResponse struct {
	Content []messageContent `json:"content"`
}

// ProbeModels sends a minimal message request for each model and classifies
// the result. Probes run sequentially and stop early only on ctx cancellation.
func (p *Prober) ProbeModels(ctx context.Context, models []string) (*Report, error) {
	if len(models) == 0 {
		models = DefaultModels
	}
	report := &Report{}
	for _, model := range models {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Tested++
		if reason := p.probeModel(ctx, model); reason != "" {
			report.Failed = append(report.Failed, ModelFailure{Model: model, Error: reason})
			p.log.DebugObj("model probe failed", "model_probe", map[string]any{"model": model, "error": reason})
			continue
		}
		report.Working = append(report.Working, model)
	}
	return report, nil
}

// probeModel returns an empty string when model answered with content.
func (p *Prober) probeModel(ctx context.Context, model string) string {
	headers := p.headers()
	headers["anthropic-version"] = anthropicVersion

	resp, err := p.http.Do(ctx, httpclient.Request{
		Method:  http.MethodPost,
		URL:     p.baseURL + "/v1/messages",
		Headers: headers,
		Body: map[string]any{
			"model":      model,
			"max_tokens": probeMaxTokens,
			"messages":   []map[string]string{{"role": "user", "content": "Say hello"}},
		},
	})
	if err != nil {
		return err.Error()
	}
	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		return fmt.Sprintf("status %d: %s", resp.StatusCode(), snippet(resp.Body()))
	}

	var msg messageResponse
	if err := json.Unmarshal(resp.Body(), &msg); err != nil {
		return fmt.Sprintf("decode response: %v", err)
	}
	if len(msg.Content) == 0 {
		return "no response"
	}
	return ""
}

func (p *Prober) headers() map[string]string {
	return map[string]string{
		"x-api-key":    p.apiKey,
		"Content-Type": "application/json",
	}
}

func snippet(body []byte) string {
	if len(body) > snippetLimit {
		body = body[:snippetLimit]
	}
	return strings.TrimSpace(string(body))
}
