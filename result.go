package beacon

// ResultType tags the outcome of a beacon send.
type ResultType string

const (
	// ResultSuccess means the payload was delivered with a 2xx response.
	ResultSuccess ResultType = "success"
	// ResultUnknown means a fire-and-forget dispatch was accepted but its
	// outcome cannot be observed.
	ResultUnknown ResultType = "unknown"
	// ResultResponse means the payload was delivered but the server returned
	// a non-2xx status.
	ResultResponse ResultType = "response"
	// ResultNetwork means the request failed before a response was received.
	ResultNetwork ResultType = "network"
	// ResultPersisted means the payload was handed to the persistence queue.
	ResultPersisted ResultType = "persisted"
)

// Result is the tagged outcome of a single Beacon.Send call or a Transport
// attempt. StatusCode is zero when not applicable; RawError is empty on
// success.
type Result struct {
	Type       ResultType
	StatusCode int
	RawError   string
	// Drop is true only once the core has committed to abandoning the
	// payload without persisting it.
	Drop bool
}

func (r Result) isRetryableStatus(codes []int) bool {
	if r.Type != ResultResponse {
		return false
	}
	for _, code := range codes {
		if code == r.StatusCode {
			return true
		}
	}

	return false
}

func (r Result) statusCodePtr() *int {
	if r.Type != ResultResponse || r.StatusCode == 0 {
		return nil
	}
	code := r.StatusCode

	return &code
}
