package notifiers

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	return path
}

func TestLoadRegistryEnabledFilter(t *testing.T) {
	path := writeFile(t, "notifiers.yaml", `
notifiers:
  - id: hook1
    type: http
    enabled: false
    http:
      url: https://example.com
  - id: hook2
    type: HTTP
    http:
      url: " https://example.com/2 "
      headers:
        X-Empty: ""
        X-Token: abc
`)

	reg, err := LoadRegistry(path)
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	enabled := reg.Enabled()
	if len(enabled) != 1 || enabled[0].ID != "hook2" {
		t.Fatalf("expected only hook2 enabled, got %#v", enabled)
	}
	hook := enabled[0]
	if hook.Type != TypeHTTP || hook.HTTP.URL != "https://example.com/2" {
		t.Fatalf("expected sanitized config, got %#v", hook.HTTP)
	}
	if hook.HTTP.Method != "POST" || hook.HTTP.TimeoutSeconds != httpDefaultTimeoutSeconds {
		t.Fatalf("expected defaults applied, got %#v", hook.HTTP)
	}
	if len(hook.HTTP.Headers) != 1 || hook.HTTP.Headers["X-Token"] != "abc" {
		t.Fatalf("expected empty headers dropped, got %#v", hook.HTTP.Headers)
	}
	if _, ok := reg.ByID("hook1"); !ok {
		t.Fatalf("expected disabled notifier still addressable by id")
	}
}

func TestLoadRegistryJSONAndEmpty(t *testing.T) {
	path := writeFile(t, "notifiers.json", `{"notifiers":[{"id":"q","type":"sqs","sqs":{"uri":"https://sqs/q","region":"us-east-1"}}]}`)
	reg, err := LoadRegistry(path)
	if err != nil {
		t.Fatalf("LoadRegistry json: %v", err)
	}
	if len(reg.All()) != 1 {
		t.Fatalf("expected 1 notifier, got %d", len(reg.All()))
	}

	empty := writeFile(t, "empty.yaml", "notifiers: []\n")
	reg, err = LoadRegistry(empty)
	if err != nil {
		t.Fatalf("LoadRegistry empty: %v", err)
	}
	if len(reg.Enabled()) != 0 {
		t.Fatalf("expected no notifiers")
	}
}

func TestLoadRegistryDuplicateID(t *testing.T) {
	path := writeFile(t, "dup.yaml", `
notifiers:
  - id: same
    type: http
    http: {url: https://a}
  - id: same
    type: http
    http: {url: https://b}
`)
	if _, err := LoadRegistry(path); err == nil {
		t.Fatalf("expected duplicate id error")
	}
}

func TestValidateNotifierConfigRejectsMissingBlocks(t *testing.T) {
	cases := []NotifierConfig{
		{ID: "h1", Type: TypeHTTP},
		{ID: "s1", Type: TypeSQS, SQS: &SQSNotifierConfig{QueueURL: "https://q"}},
		{ID: "t1", Type: TypeSNS, SNS: &SNSNotifierConfig{Region: "us-east-1"}},
		{ID: "p1", Type: TypePubSub, PubSub: &PubSubNotifierConfig{ProjectID: "proj"}},
		{Type: TypeHTTP},
	}
	for _, cfg := range cases {
		if err := validateNotifierConfig(cfg); err == nil {
			t.Fatalf("expected validation error for %#v", cfg)
		}
	}
}
