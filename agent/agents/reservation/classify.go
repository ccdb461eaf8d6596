package reservationagent

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/tanpawarit/reservation-concierge/agent/agents/base"
	reservationx "github.com/tanpawarit/reservation-concierge/agent/reservation"
)

// IsToolResult reports whether text carries one of the reservation tool
// headers.
func IsToolResult(text string) bool {
	for _, m := range reservationx.Markers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

// Normalize turns a tool-result reply into a JSON object. An object is kept
// as is; any other JSON value, or text that is not JSON, is wrapped under
// "response".
func Normalize(text string) string {
	body := base.StripCodeFence(text)
	var v any
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		return wrap(text)
	}
	if _, ok := v.(map[string]any); ok {
		return body
	}
	return wrap(v)
}

func wrap(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(map[string]any{"response": v}); err != nil {
		return `{"response":""}`
	}
	return strings.TrimSpace(buf.String())
}
