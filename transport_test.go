package beacon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestKeepaliveTransportSuccess(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 16)
		n, _ := r.Body.Read(buf)
		gotBody = string(buf[:n])
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	transport := NewKeepaliveTransport(nil)
	result := transport.Send(context.Background(), Request{URL: srv.URL, Body: []byte("hi")})

	if result.Type != ResultSuccess || result.StatusCode != http.StatusOK {
		t.Fatalf("unexpected result: %+v", result)
	}
	if gotBody != "hi" {
		t.Fatalf("expected body %q, got %q", "hi", gotBody)
	}
}

func TestKeepaliveTransportResponseFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	transport := NewKeepaliveTransport(nil)
	result := transport.Send(context.Background(), Request{URL: srv.URL, Body: []byte("hi")})

	if result.Type != ResultResponse || result.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Drop {
		t.Fatalf("transport must never set Drop")
	}
}

func TestKeepaliveTransportNetworkFailure(t *testing.T) {
	transport := NewKeepaliveTransport(nil)
	result := transport.Send(context.Background(), Request{URL: "http://127.0.0.1:1", Body: []byte("hi")})

	if result.Type != ResultNetwork {
		t.Fatalf("expected network failure, got %+v", result)
	}
	if result.RawError == "" {
		t.Fatalf("expected a raw error message")
	}
}

func TestFireAndForgetTransportUsesBeaconFunc(t *testing.T) {
	var called int32
	transport := &FireAndForgetTransport{
		BeaconFunc: func(url string, body []byte) bool {
			atomic.AddInt32(&called, 1)

			return true
		},
	}

	result := transport.Send(context.Background(), Request{URL: "http://example.invalid", Body: []byte("hi")})
	if result.Type != ResultUnknown {
		t.Fatalf("expected unknown, got %+v", result)
	}
	if atomic.LoadInt32(&called) != 1 {
		t.Fatalf("expected BeaconFunc to be called once")
	}
}

func TestFireAndForgetTransportFallsBackOnRejection(t *testing.T) {
	done := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(done)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	transport := &FireAndForgetTransport{
		BeaconFunc: func(string, []byte) bool { return false },
	}
	result := transport.Send(context.Background(), Request{URL: srv.URL, Body: []byte("hi")})
	if result.Type != ResultUnknown {
		t.Fatalf("expected unknown, got %+v", result)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected detached dispatch to reach the server")
	}
}

func TestFireAndForgetTransportSwallowsPanic(t *testing.T) {
	transport := &FireAndForgetTransport{
		BeaconFunc: func(string, []byte) bool { panic("boom") },
	}

	result := transport.Send(context.Background(), Request{URL: "http://example.invalid", Body: []byte("hi")})
	if result.Type != ResultUnknown {
		t.Fatalf("expected unknown even after a panicking BeaconFunc, got %+v", result)
	}
}
