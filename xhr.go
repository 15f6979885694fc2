package beacon

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
)

// PostOnce is the auxiliary no-retry entry point for callers in a minimal
// environment that want a single best-effort POST with no in-process retry
// and no persistence fallback, the Go analogue of the spec's plain xhr()
// beacon strategy.
func PostOnce(ctx context.Context, url, body string, headers map[string]string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader([]byte(body)))
	if err != nil {
		return fmt.Errorf("beacon: build request: %w", err)
	}
	req.Header.Set(headerContentType, defaultContentType)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("beacon: post once: %w", err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("beacon: post once: unexpected status %s", resp.Status)
	}

	return nil
}
