package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestExtractJSONPlain(t *testing.T) {
	data, err := ExtractJSON(`{"key": "value", "num": 42}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != `{"key": "value", "num": 42}` {
		t.Errorf("got %q", data)
	}
}

func TestExtractJSONWithCodeFence(t *testing.T) {
	data, err := ExtractJSON("```json\n{\"key\": \"value\"}\n```")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != `{"key": "value"}` {
		t.Errorf("got %q", data)
	}
}

func TestExtractJSONWithPlainFence(t *testing.T) {
	data, err := ExtractJSON("```\n{\"key\": \"value\"}\n```")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != `{"key": "value"}` {
		t.Errorf("got %q", data)
	}
}

func TestExtractJSONWithLeadingProse(t *testing.T) {
	data, err := ExtractJSON("Here is the analysis:\n{\"key\": \"value\"}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != `{"key": "value"}` {
		t.Errorf("got %q", data)
	}
}

func TestExtractJSONNoJSON(t *testing.T) {
	if _, err := ExtractJSON("not json at all"); err == nil {
		t.Error("expected error for prose-only response")
	}
}

func TestExtractJSONEmpty(t *testing.T) {
	if _, err := ExtractJSON(""); err == nil {
		t.Error("expected error for empty string")
	}
}

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"server error", &APIError{Provider: "ollama", Status: 500}, true},
		{"rate limited", &APIError{Provider: "openai", Status: 429}, true},
		{"bad request", &APIError{Provider: "openai", Status: 400}, false},
		{"unauthorized", &APIError{Provider: "openai", Status: 401}, false},
		{"network failure", &transportError{errors.New("connection refused")}, true},
		{"timeout", context.DeadlineExceeded, true},
		{"wrapped timeout", fmt.Errorf("calling model: %w", context.DeadlineExceeded), true},
		{"plain error", errors.New("garbled output"), false},
	}
	for _, tc := range cases {
		if got := IsTransient(tc.err); got != tc.want {
			t.Errorf("%s: IsTransient = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestThrottleSpacesRequests(t *testing.T) {
	p := Throttle(&fakeProvider{response: "ok"}, 600) // 100ms apart

	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := p.Complete(ctx, "prompt", 100); err != nil {
			t.Fatalf("Complete: %v", err)
		}
	}
	// First request is immediate, the next two wait ~100ms each.
	if elapsed := time.Since(start); elapsed < 150*time.Millisecond {
		t.Errorf("expected throttling, 3 requests took %v", elapsed)
	}
}

func TestThrottleDisabled(t *testing.T) {
	inner := &fakeProvider{response: "ok"}
	if p := Throttle(inner, 0); p != Provider(inner) {
		t.Error("expected unwrapped provider when limit is disabled")
	}
}

func TestThrottleNilProvider(t *testing.T) {
	// CreateProvider returns nil when nothing is configured; wrapping must
	// not turn that into a non-nil provider around a nil interface.
	if p := Throttle(nil, 30); p != nil {
		t.Errorf("Throttle(nil) = %v, want nil", p)
	}
}

func TestCapTokens(t *testing.T) {
	inner := &fakeProvider{response: "ok"}
	p := CapTokens(inner, 512)

	ctx := context.Background()
	if _, err := p.Complete(ctx, "prompt", 2048); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if inner.lastMaxTokens != 512 {
		t.Errorf("maxTokens = %d, want 512", inner.lastMaxTokens)
	}

	if _, err := p.Complete(ctx, "prompt", 100); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if inner.lastMaxTokens != 100 {
		t.Errorf("maxTokens = %d, want 100 (under the cap)", inner.lastMaxTokens)
	}
}

func TestCapTokensPassthrough(t *testing.T) {
	inner := &fakeProvider{response: "ok"}
	if p := CapTokens(inner, 0); p != Provider(inner) {
		t.Error("expected unwrapped provider when cap is disabled")
	}
	if p := CapTokens(nil, 512); p != nil {
		t.Errorf("CapTokens(nil) = %v, want nil", p)
	}
}

type fakeProvider struct {
	response      string
	lastMaxTokens int
}

func (f *fakeProvider) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	f.lastMaxTokens = maxTokens
	return f.response, nil
}

func (f *fakeProvider) IsConfigured() bool { return true }
