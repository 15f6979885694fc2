package beacon

import (
	"fmt"
	"maps"
	"strconv"
	"strings"
)

// BuildHeaders composes the header set for a single attempt. If headerName
// is empty or attemptIndex is below 1, caller is returned unmodified.
// Otherwise it inserts headerName with a JSON-shaped value encoding attempt
// and, when present, errorCode.
func BuildHeaders(caller map[string]string, headerName string, attemptIndex int, errorCode *int) map[string]string {
	if headerName == "" || attemptIndex < 1 {
		return caller
	}

	out := make(map[string]string, len(caller)+1)
	maps.Copy(out, caller)
	out[headerName] = retryContextJSON(attemptIndex, errorCode)

	return out
}

func retryContextJSON(attempt int, errorCode *int) string {
	var b strings.Builder
	b.WriteString(`{"attempt":`)
	b.WriteString(strconv.Itoa(attempt))
	if errorCode != nil {
		b.WriteString(fmt.Sprintf(`,"errorCode":%d`, *errorCode))
	}
	b.WriteByte('}')

	return b.String()
}
