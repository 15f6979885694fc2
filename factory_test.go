package beacon

import (
	"context"
	"testing"
)

func TestNewRequiresTransport(t *testing.T) {
	_, err := New(nil, newFakeBackend())
	if err != ErrNilTransport {
		t.Fatalf("expected ErrNilTransport, got %v", err)
	}
}

func TestNewRequiresBackendUnlessPersistenceDisabled(t *testing.T) {
	transport := &stubTransport{results: []Result{{Type: ResultSuccess}}}

	if _, err := New(transport, nil); err != ErrNilBackend {
		t.Fatalf("expected ErrNilBackend, got %v", err)
	}

	client, err := New(transport, nil, WithDisablePersistenceRetry())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.Queue() != nil {
		t.Fatalf("expected a nil queue when persistence is disabled")
	}
}

func TestClientBeaconDelegatesToTransport(t *testing.T) {
	transport := &stubTransport{results: []Result{{Type: ResultSuccess, StatusCode: 200}}}
	client, err := New(transport, newFakeBackend())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result := client.Beacon(context.Background(), "http://example.invalid", "hi", nil)
	if result.Type != ResultSuccess {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestClientBeaconPersistsThroughSharedQueue(t *testing.T) {
	transport := &stubTransport{results: []Result{{Type: ResultResponse, StatusCode: 429, RawError: "429"}}}
	client, err := New(transport, newFakeBackend(), WithInMemoryRetryConfig(InMemoryRetryConfig{AttemptLimit: 0}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result := client.Beacon(context.Background(), "http://example.invalid", "hi", nil)
	if result.Type != ResultPersisted {
		t.Fatalf("expected persisted, got %+v", result)
	}

	entries, err := client.Queue().Peek(context.Background(), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one persisted entry, got %d", len(entries))
	}
}

func TestClientBeaconInheritsHeaderNameFromInMemoryConfig(t *testing.T) {
	var gotHeader string
	transport := &stubTransport{
		results: []Result{{Type: ResultResponse, StatusCode: 429, RawError: "429"}},
		onSend:  func(req Request) { gotHeader = req.Headers["X-Retry-Context"] },
	}
	client, err := New(transport, newFakeBackend(),
		WithInMemoryRetryConfig(InMemoryRetryConfig{AttemptLimit: 0, HeaderName: "X-Retry-Context"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	client.Beacon(context.Background(), "http://example.invalid", "hi", nil)

	if gotHeader != "" {
		t.Fatalf("first attempt must never carry a retry header, got %q", gotHeader)
	}
	if got := client.Queue().persist.HeaderName; got != "X-Retry-Context" {
		t.Fatalf("expected the persistence queue to inherit the header name, got %q", got)
	}
}
