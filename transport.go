package beacon

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"
)

const (
	defaultContentType  = "text/plain;charset=UTF-8"
	headerContentType   = "Content-Type"
	headerContentEncode = "Content-Encoding"
	gzipEncoding        = "gzip"
	detachedSendTimeout = 30 * time.Second
)

// Request is a single POST attempt's inputs.
type Request struct {
	URL      string
	Body     []byte
	Headers  map[string]string
	Compress bool
}

// Transport sends a single attempt and classifies its outcome. It never
// panics and never returns an error to the caller; failures are encoded in
// the returned Result.
type Transport interface {
	Send(ctx context.Context, req Request) Result
}

// BeaconFunc mirrors navigator.sendBeacon: a synchronous, fire-and-forget
// dispatch primitive that reports whether the payload was accepted for
// queued delivery. Its outcome is never observable beyond that boolean.
type BeaconFunc func(url string, body []byte) bool

// KeepaliveTransport issues requests over a pooled HTTP client and, on a
// transport-level failure (not an HTTP status), retries once with a
// dedicated client that disables connection reuse — the analogue of
// retrying a browser keepalive fetch without keepalive after hitting the
// 64 KiB cap.
type KeepaliveTransport struct {
	client         *http.Client
	fallbackClient *http.Client
}

// NewKeepaliveTransport builds a KeepaliveTransport. client is used for the
// first attempt; if nil, http.DefaultClient is used. A second client with
// connection reuse disabled is derived automatically for the fallback
// attempt.
func NewKeepaliveTransport(client *http.Client) *KeepaliveTransport {
	if client == nil {
		client = http.DefaultClient
	}

	fallback := &http.Client{Timeout: client.Timeout}
	if base, ok := client.Transport.(*http.Transport); ok {
		clone := base.Clone()
		clone.DisableKeepAlives = true
		fallback.Transport = clone
	} else {
		fallback.Transport = &http.Transport{DisableKeepAlives: true}
	}

	return &KeepaliveTransport{client: client, fallbackClient: fallback}
}

// Send implements Transport.
func (t *KeepaliveTransport) Send(ctx context.Context, req Request) Result {
	result := attempt(ctx, t.client, req)
	if result.Type == ResultNetwork {
		return attempt(ctx, t.fallbackClient, req)
	}

	return result
}

func attempt(ctx context.Context, client *http.Client, req Request) Result {
	body, encoding, err := encodeBody(req)
	if err != nil {
		return Result{Type: ResultNetwork, RawError: networkErrorMessage(err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(body))
	if err != nil {
		return Result{Type: ResultNetwork, RawError: networkErrorMessage(err)}
	}
	applyHeaders(httpReq, req.Headers, encoding)

	resp, err := client.Do(httpReq)
	if err != nil {
		return Result{Type: ResultNetwork, RawError: networkErrorMessage(err)}
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		return Result{Type: ResultSuccess, StatusCode: resp.StatusCode}
	}

	return Result{Type: ResultResponse, StatusCode: resp.StatusCode, RawError: resp.Status}
}

// FireAndForgetTransport models the sendBeacon fallback strategy: it tries a
// caller-supplied BeaconFunc first, and otherwise dispatches a detached POST
// that the caller never waits on.
type FireAndForgetTransport struct {
	BeaconFunc BeaconFunc
	Client     *http.Client
	Logger     Logger
}

// Send implements Transport. It always returns ResultUnknown.
func (t *FireAndForgetTransport) Send(_ context.Context, req Request) Result {
	if t.BeaconFunc != nil && t.tryBeaconFunc(req) {
		return Result{Type: ResultUnknown}
	}

	t.dispatchDetached(req)

	return Result{Type: ResultUnknown}
}

func (t *FireAndForgetTransport) tryBeaconFunc(req Request) (accepted bool) {
	defer func() {
		if recover() != nil {
			accepted = false
		}
	}()

	return t.BeaconFunc(req.URL, req.Body)
}

func (t *FireAndForgetTransport) dispatchDetached(req Request) {
	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	logger := t.Logger
	if logger == nil {
		logger = NopLogger{}
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), detachedSendTimeout)
		defer cancel()

		body, encoding, err := encodeBody(req)
		if err != nil {
			logger.Warn("beacon detached encode failed", "err", err)

			return
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(body))
		if err != nil {
			logger.Warn("beacon detached request build failed", "err", err)

			return
		}
		applyHeaders(httpReq, req.Headers, encoding)

		resp, err := client.Do(httpReq)
		if err != nil {
			logger.Debug("beacon detached send failed", "err", err)

			return
		}
		drainAndClose(resp.Body)
	}()
}

func encodeBody(req Request) (body []byte, encoding string, err error) {
	if !req.Compress {
		return req.Body, "", nil
	}

	compressed, err := gzipEncode(req.Body)
	if err != nil {
		return nil, "", err
	}

	return compressed, gzipEncoding, nil
}

func applyHeaders(httpReq *http.Request, headers map[string]string, encoding string) {
	httpReq.Header.Set(headerContentType, defaultContentType)
	if encoding != "" {
		httpReq.Header.Set(headerContentEncode, encoding)
	}
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}
}

func networkErrorMessage(err error) string {
	if err == nil {
		return "UNKNOWN_ERROR"
	}
	msg := err.Error()
	if msg == "" {
		return "UNKNOWN_ERROR"
	}

	return msg
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}
