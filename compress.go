package beacon

import (
	"bytes"
	"compress/gzip"
	"fmt"
)

// gzipEncode compresses body using gzip at the default compression level.
func gzipEncode(body []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(body); err != nil {
		_ = w.Close()

		return nil, fmt.Errorf("beacon: gzip write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("beacon: gzip close failed: %w", err)
	}

	return buf.Bytes(), nil
}
