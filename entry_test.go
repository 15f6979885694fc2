package beacon

import "testing"

func TestRetryEntryValidate(t *testing.T) {
	cases := []struct {
		name  string
		entry RetryEntry
		err   error
	}{
		{
			name:  "missing url",
			entry: RetryEntry{Body: []byte("x")},
			err:   ErrURLRequired,
		},
		{
			name:  "empty body is not an error",
			entry: RetryEntry{URL: "http://example.invalid"},
			err:   nil,
		},
		{
			name:  "negative attempt count",
			entry: RetryEntry{URL: "http://example.invalid", Body: []byte("x"), AttemptCount: -1},
			err:   ErrNegativeAttemptCount,
		},
		{
			name:  "valid",
			entry: RetryEntry{URL: "http://example.invalid", Body: []byte("x")},
			err:   nil,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			err := tc.entry.Validate()
			if tc.err == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tc.err != nil && err != tc.err {
				t.Fatalf("expected %v, got %v", tc.err, err)
			}
		})
	}
}

func TestRetryEntryWithAttemptDoesNotMutateReceiver(t *testing.T) {
	original := RetryEntry{URL: "http://example.invalid", Body: []byte("x"), Timestamp: 5, AttemptCount: 1}

	updated := original.WithAttempt(3)

	if original.AttemptCount != 1 {
		t.Fatalf("expected original AttemptCount unchanged, got %d", original.AttemptCount)
	}
	if updated.AttemptCount != 3 {
		t.Fatalf("expected updated AttemptCount 3, got %d", updated.AttemptCount)
	}
	if updated.Timestamp != original.Timestamp {
		t.Fatalf("expected Timestamp preserved across WithAttempt, got %d", updated.Timestamp)
	}
}
